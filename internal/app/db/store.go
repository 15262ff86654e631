package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"livechat/internal/app/docstore"
	"livechat/internal/pkg/logx"
	"livechat/internal/pkg/randx"
)

// ChangeChannel is the NOTIFY channel carrying document changes.
const ChangeChannel = "docstore_changes"

const maxWriteRetries = 5

// notification is the pg_notify payload. Document data is not included
// because NOTIFY payloads are limited to 8000 bytes.
type notification struct {
	Collection string    `json:"collection"`
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Updated    time.Time `json:"updated"`
}

// Store is a PostgreSQL-backed docstore.Store.
type Store struct {
	pool  *pgxpool.Pool
	clock docstore.Clock
	log   zerolog.Logger

	mu      sync.Mutex
	cancels map[*docstore.Stream]context.CancelFunc
	closed  bool
}

var _ docstore.Store = (*Store)(nil)

// NewStore wraps a pool whose schema has been migrated by NewPool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		pool:    pool,
		log:     logx.Component("pgdoc"),
		cancels: make(map[*docstore.Stream]context.CancelFunc),
	}
}

func (s *Store) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Store) write(ctx context.Context, ref string, fields docstore.Fields, merge, mustExist bool) error {
	collection, id, err := docstore.SplitRef(ref)
	if err != nil {
		return err
	}

	if s.isClosed() {
		return docstore.ErrClosed
	}

	for attempt := 1; ; attempt++ {
		err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			return s.writeTx(ctx, tx, collection, id, fields, merge, mustExist)
		})
		if err == nil || !IsSerializationFailure(err) || attempt == maxWriteRetries {
			return err
		}
	}
}

func (s *Store) writeTx(ctx context.Context, tx pgx.Tx, collection, id string, fields docstore.Fields, merge, mustExist bool) error {
	var existing []byte
	var prevUpdated time.Time
	err := tx.QueryRow(ctx,
		`SELECT data, updated_at FROM documents WHERE collection = $1 AND id = $2 FOR UPDATE`,
		collection, id,
	).Scan(&existing, &prevUpdated)

	exists := err == nil
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("read %s/%s: %w", collection, id, err)
	}

	if mustExist && !exists {
		return fmt.Errorf("%w: %s/%s", docstore.ErrNotFound, collection, id)
	}

	var dbNow time.Time
	if err := tx.QueryRow(ctx, `SELECT clock_timestamp()`).Scan(&dbNow); err != nil {
		return fmt.Errorf("read database time: %w", err)
	}
	now := s.clock.Next(dbNow.Truncate(time.Microsecond))
	// The row lock orders writers from every instance; stay past the stored
	// version so a change is never mistaken for a replay.
	if exists && !now.After(prevUpdated) {
		now = prevUpdated.Add(time.Microsecond)
	}

	var base []byte
	if merge {
		base = existing
	}

	data, err := docstore.Merge(base, fields, now)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO documents (collection, id, data, created_at, updated_at)
		VALUES ($1, $2, $3::jsonb, $4, $4)
		ON CONFLICT (collection, id) DO UPDATE
		SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		collection, id, string(data), now,
	)
	if err != nil {
		return fmt.Errorf("write %s/%s: %w", collection, id, err)
	}

	kind := docstore.Added
	if exists {
		kind = docstore.Modified
	}
	return notify(ctx, tx, notification{Collection: collection, ID: id, Kind: kind.String(), Updated: now})
}

func notify(ctx context.Context, tx pgx.Tx, n notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode change: %w", err)
	}

	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, ChangeChannel, string(payload)); err != nil {
		return fmt.Errorf("notify change: %w", err)
	}
	return nil
}

// Get implements docstore.Store.
func (s *Store) Get(ctx context.Context, ref string) (*docstore.Snapshot, error) {
	collection, id, err := docstore.SplitRef(ref)
	if err != nil {
		return nil, err
	}

	if s.isClosed() {
		return nil, docstore.ErrClosed
	}

	var (
		data    []byte
		updated time.Time
	)
	err = s.pool.QueryRow(ctx,
		`SELECT data, updated_at FROM documents WHERE collection = $1 AND id = $2`,
		collection, id,
	).Scan(&data, &updated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", docstore.ErrNotFound, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ref, err)
	}

	return docstore.NewSnapshot(ref, data, updated.UTC())
}

// Set implements docstore.Store.
func (s *Store) Set(ctx context.Context, ref string, fields docstore.Fields, merge bool) error {
	return s.write(ctx, ref, fields, merge, false)
}

// Update implements docstore.Store.
func (s *Store) Update(ctx context.Context, ref string, fields docstore.Fields) error {
	return s.write(ctx, ref, fields, true, true)
}

// Add implements docstore.Store. Generated ids that collide with an
// existing row are regenerated.
func (s *Store) Add(ctx context.Context, collection string, fields docstore.Fields) (string, error) {
	if err := docstore.CheckCollection(collection); err != nil {
		return "", err
	}

	if s.isClosed() {
		return "", docstore.ErrClosed
	}

	for {
		id := randx.DocumentID()

		err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			var dbNow time.Time
			if err := tx.QueryRow(ctx, `SELECT clock_timestamp()`).Scan(&dbNow); err != nil {
				return fmt.Errorf("read database time: %w", err)
			}
			now := s.clock.Next(dbNow.Truncate(time.Microsecond))

			data, err := docstore.Encode(fields, now)
			if err != nil {
				return err
			}

			_, err = tx.Exec(ctx, `
				INSERT INTO documents (collection, id, data, created_at, updated_at)
				VALUES ($1, $2, $3::jsonb, $4, $4)`,
				collection, id, string(data), now,
			)
			if err != nil {
				return err
			}

			return notify(ctx, tx, notification{Collection: collection, ID: id, Kind: docstore.Added.String(), Updated: now})
		})

		if IsUniqueViolation(err) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("add to %s: %w", collection, err)
		}
		return id, nil
	}
}

// Delete implements docstore.Store.
func (s *Store) Delete(ctx context.Context, ref string) error {
	collection, id, err := docstore.SplitRef(ref)
	if err != nil {
		return err
	}

	if s.isClosed() {
		return docstore.ErrClosed
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var dbNow time.Time
		err := tx.QueryRow(ctx,
			`DELETE FROM documents WHERE collection = $1 AND id = $2 RETURNING clock_timestamp()`,
			collection, id,
		).Scan(&dbNow)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("delete %s: %w", ref, err)
		}

		now := s.clock.Next(dbNow.Truncate(time.Microsecond))
		return notify(ctx, tx, notification{Collection: collection, ID: id, Kind: docstore.Removed.String(), Updated: now})
	})
}

func (s *Store) query(ctx context.Context, collection, sql string, args ...any) ([]*docstore.Snapshot, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer rows.Close()

	var out []*docstore.Snapshot
	for rows.Next() {
		var (
			id      string
			data    []byte
			updated time.Time
		)
		if err := rows.Scan(&id, &data, &updated); err != nil {
			return nil, fmt.Errorf("scan %s: %w", collection, err)
		}

		snap, err := docstore.NewSnapshot(docstore.Join(collection, id), data, updated.UTC())
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	return out, nil
}

// List implements docstore.Store.
func (s *Store) List(ctx context.Context, collection string) ([]*docstore.Snapshot, error) {
	if err := docstore.CheckCollection(collection); err != nil {
		return nil, err
	}

	if s.isClosed() {
		return nil, docstore.ErrClosed
	}

	return s.query(ctx, collection,
		`SELECT id, data, updated_at FROM documents WHERE collection = $1 ORDER BY id`,
		collection,
	)
}

// Where implements docstore.Store with a jsonb equality match.
func (s *Store) Where(ctx context.Context, collection, field string, value any) ([]*docstore.Snapshot, error) {
	if err := docstore.CheckCollection(collection); err != nil {
		return nil, err
	}

	if s.isClosed() {
		return nil, docstore.ErrClosed
	}

	want, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode query value: %w", err)
	}

	return s.query(ctx, collection,
		`SELECT id, data, updated_at FROM documents
		 WHERE collection = $1 AND data -> $2::text = $3::jsonb
		 ORDER BY id`,
		collection, field, string(want),
	)
}

// Ping implements docstore.Store.
func (s *Store) Ping(ctx context.Context) error {
	if s.isClosed() {
		return docstore.ErrClosed
	}
	return s.pool.Ping(ctx)
}

// Close implements docstore.Store. It stops every subscription listener and
// closes the pool.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cancels := s.cancels
	s.cancels = make(map[*docstore.Stream]context.CancelFunc)
	s.mu.Unlock()

	for stream, cancel := range cancels {
		stream.Fail(docstore.ErrClosed)
		cancel()
	}

	s.pool.Close()
	return nil
}
