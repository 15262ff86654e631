package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"livechat/internal/app/docstore"
)

// Subscribe implements docstore.Store. The listener connection issues LISTEN
// before the initial snapshot is read so no commit can fall between the two.
func (s *Store) Subscribe(ctx context.Context, q docstore.Query) (docstore.Subscription, error) {
	if err := docstore.CheckCollection(q.Collection); err != nil {
		return nil, err
	}

	if s.isClosed() {
		return nil, docstore.ErrClosed
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire listener connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{ChangeChannel}.Sanitize()); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listen for changes: %w", err)
	}

	docs, err := s.query(ctx, q.Collection,
		`SELECT id, data, updated_at FROM documents
		 WHERE collection = $1 AND jsonb_exists(data, $2::text)`,
		q.Collection, q.OrderBy,
	)
	if err != nil {
		conn.Release()
		return nil, err
	}

	listenCtx, cancel := context.WithCancel(context.Background())

	var stream *docstore.Stream
	stream = docstore.NewStream(q, func() {
		s.mu.Lock()
		delete(s.cancels, stream)
		s.mu.Unlock()
		cancel()
	})
	stream.Prime(docs)

	s.mu.Lock()
	s.cancels[stream] = cancel
	s.mu.Unlock()

	go s.listen(listenCtx, conn, stream)

	return stream, nil
}

// listen waits for notifications on conn and pushes the matching changes.
func (s *Store) listen(ctx context.Context, conn *pgxpool.Conn, stream *docstore.Stream) {
	q := stream.Query()

	defer func() {
		// A wait interrupted by cancellation leaves the connection unusable;
		// pgx closes it and the pool drops it on release.
		conn.Release()
	}()

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			switch {
			case errors.Is(ctx.Err(), context.Canceled) && s.isClosed():
				stream.Fail(docstore.ErrClosed)
			case ctx.Err() != nil:
			default:
				stream.Fail(fmt.Errorf("wait for changes: %w", err))
			}
			return
		}

		var msg notification
		if err := json.Unmarshal([]byte(n.Payload), &msg); err != nil {
			s.log.Warn().Err(err).Str("payload", n.Payload).Msg("Dropping undecodable notification")
			continue
		}

		if msg.Collection != q.Collection {
			continue
		}

		ref := docstore.Join(msg.Collection, msg.ID)

		if msg.Kind == docstore.Removed.String() {
			stream.Push(docstore.Change{
				Kind: docstore.Removed,
				Doc:  &docstore.Snapshot{ID: msg.ID, Ref: ref, UpdateTime: msg.Updated},
			})
			continue
		}

		snap, err := s.Get(ctx, ref)
		if errors.Is(err, docstore.ErrNotFound) {
			// Deleted since; its removal notification follows.
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			stream.Fail(fmt.Errorf("read changed document %s: %w", ref, err))
			return
		}

		stream.Push(docstore.Change{Kind: docstore.Modified, Doc: snap})
	}
}
