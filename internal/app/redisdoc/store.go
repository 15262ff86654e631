/*
Package redisdoc implements docstore.Store on Redis.

Each document is a JSON string key; each collection keeps a sorted set index of
its document ids scored by creation time and a pub/sub channel that carries
the change events feeding subscriptions. Writes run as WATCH/MULTI
transactions stamped with the Redis server TIME.
*/
package redisdoc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"livechat/internal/app/docstore"
	"livechat/internal/pkg/logx"
	"livechat/internal/pkg/randx"
)

// DefaultPrefix namespaces every key the store writes.
const DefaultPrefix = "livechat:"

// maxTxRetries bounds optimistic transaction retries on concurrent writers.
const maxTxRetries = 8

// record is the stored form of one document.
type record struct {
	Data    json.RawMessage `json:"data"`
	Updated time.Time       `json:"updated"`
}

// event is published on the collection channel for every write.
type event struct {
	Kind    string          `json:"kind"`
	ID      string          `json:"id"`
	Data    json.RawMessage `json:"data,omitempty"`
	Updated time.Time       `json:"updated"`
}

// Store is a Redis-backed docstore.Store.
type Store struct {
	client *redis.Client
	prefix string
	clock  docstore.Clock
	log    zerolog.Logger

	mu      sync.Mutex
	streams map[*docstore.Stream]*redis.PubSub
	closed  bool
}

var _ docstore.Store = (*Store)(nil)

// Open connects to the Redis server at redisURL and verifies the connection.
func Open(redisURL string) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return New(client, DefaultPrefix), nil
}

// New wraps an existing client. Keys are namespaced with prefix.
func New(client *redis.Client, prefix string) *Store {
	return &Store{
		client:  client,
		prefix:  prefix,
		log:     logx.Component("redisdoc"),
		streams: make(map[*docstore.Stream]*redis.PubSub),
	}
}

func (s *Store) docKey(ref string) string {
	return s.prefix + "doc:" + ref
}

func (s *Store) indexKey(collection string) string {
	return s.prefix + "index:" + collection
}

func (s *Store) channel(collection string) string {
	return s.prefix + "changes:" + collection
}

func (s *Store) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// commitStep is the resolution of Redis TIME.
const commitStep = time.Microsecond

// commitTime reads the server clock and makes it strictly increasing.
func (s *Store) commitTime(ctx context.Context) (time.Time, error) {
	now, err := s.client.Time(ctx).Result()
	if err != nil {
		return time.Time{}, fmt.Errorf("read redis time: %w", err)
	}
	return s.clock.Next(now), nil
}

func decodeRecord(raw string) (*record, error) {
	var rec record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return &rec, nil
}

// transact runs fn in a WATCH transaction on the document key, retrying
// when another writer touched the key first.
func (s *Store) transact(ctx context.Context, ref string, fn func(tx *redis.Tx) error) error {
	if s.isClosed() {
		return docstore.ErrClosed
	}

	key := s.docKey(ref)
	for range maxTxRetries {
		err := s.client.Watch(ctx, fn, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("redis transaction on %s: too much contention", ref)
}

func (s *Store) write(ctx context.Context, ref string, fields docstore.Fields, merge, mustExist bool) error {
	collection, id, err := docstore.SplitRef(ref)
	if err != nil {
		return err
	}

	return s.transact(ctx, ref, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, s.docKey(ref)).Result()
		exists := err == nil
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("read %s: %w", ref, err)
		}

		if mustExist && !exists {
			return fmt.Errorf("%w: %s", docstore.ErrNotFound, ref)
		}

		var prev *record
		if exists {
			if prev, err = decodeRecord(raw); err != nil {
				return err
			}
		}

		var base []byte
		if merge && prev != nil {
			base = prev.Data
		}

		now, err := s.commitTime(ctx)
		if err != nil {
			return err
		}
		// The local clock only orders this process. Writes to one key are
		// serialized by WATCH, so stepping past the stored version keeps
		// versions increasing across instances too.
		if prev != nil && !now.After(prev.Updated) {
			now = prev.Updated.Add(commitStep)
		}

		data, err := docstore.Merge(base, fields, now)
		if err != nil {
			return err
		}

		stored, err := json.Marshal(record{Data: data, Updated: now})
		if err != nil {
			return fmt.Errorf("encode document: %w", err)
		}

		kind := docstore.Added
		if exists {
			kind = docstore.Modified
		}
		msg, err := json.Marshal(event{Kind: kind.String(), ID: id, Data: data, Updated: now})
		if err != nil {
			return fmt.Errorf("encode change: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.docKey(ref), stored, 0)
			if !exists {
				pipe.ZAdd(ctx, s.indexKey(collection), redis.Z{Score: float64(now.UnixMicro()), Member: id})
			}
			pipe.Publish(ctx, s.channel(collection), msg)
			return nil
		})
		return err
	})
}

// Get implements docstore.Store.
func (s *Store) Get(ctx context.Context, ref string) (*docstore.Snapshot, error) {
	if _, _, err := docstore.SplitRef(ref); err != nil {
		return nil, err
	}

	if s.isClosed() {
		return nil, docstore.ErrClosed
	}

	raw, err := s.client.Get(ctx, s.docKey(ref)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", docstore.ErrNotFound, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ref, err)
	}

	rec, err := decodeRecord(raw)
	if err != nil {
		return nil, err
	}
	return docstore.NewSnapshot(ref, rec.Data, rec.Updated)
}

// Set implements docstore.Store.
func (s *Store) Set(ctx context.Context, ref string, fields docstore.Fields, merge bool) error {
	return s.write(ctx, ref, fields, merge, false)
}

// Update implements docstore.Store.
func (s *Store) Update(ctx context.Context, ref string, fields docstore.Fields) error {
	return s.write(ctx, ref, fields, true, true)
}

// Add implements docstore.Store.
func (s *Store) Add(ctx context.Context, collection string, fields docstore.Fields) (string, error) {
	if err := docstore.CheckCollection(collection); err != nil {
		return "", err
	}

	id := randx.DocumentID()
	if err := s.write(ctx, docstore.Join(collection, id), fields, false, false); err != nil {
		return "", err
	}
	return id, nil
}

// Delete implements docstore.Store.
func (s *Store) Delete(ctx context.Context, ref string) error {
	collection, id, err := docstore.SplitRef(ref)
	if err != nil {
		return err
	}

	return s.transact(ctx, ref, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, s.docKey(ref)).Result()
		if err != nil {
			return fmt.Errorf("read %s: %w", ref, err)
		}
		if n == 0 {
			return nil
		}

		now, err := s.commitTime(ctx)
		if err != nil {
			return err
		}

		msg, err := json.Marshal(event{Kind: docstore.Removed.String(), ID: id, Updated: now})
		if err != nil {
			return fmt.Errorf("encode change: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, s.docKey(ref))
			pipe.ZRem(ctx, s.indexKey(collection), id)
			pipe.Publish(ctx, s.channel(collection), msg)
			return nil
		})
		return err
	})
}

// List implements docstore.Store.
func (s *Store) List(ctx context.Context, collection string) ([]*docstore.Snapshot, error) {
	if err := docstore.CheckCollection(collection); err != nil {
		return nil, err
	}

	if s.isClosed() {
		return nil, docstore.ErrClosed
	}

	ids, err := s.client.ZRange(ctx, s.indexKey(collection), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.docKey(docstore.Join(collection, id))
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}

	out := make([]*docstore.Snapshot, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// Index entry without a document; a delete raced the read.
			continue
		}

		rec, err := decodeRecord(raw)
		if err != nil {
			s.log.Warn().Err(err).Str("ref", keys[i]).Msg("Skipping undecodable document")
			continue
		}

		snap, err := docstore.NewSnapshot(docstore.Join(collection, ids[i]), rec.Data, rec.Updated)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}

// Where implements docstore.Store by filtering the collection.
func (s *Store) Where(ctx context.Context, collection, field string, value any) ([]*docstore.Snapshot, error) {
	all, err := s.List(ctx, collection)
	if err != nil {
		return nil, err
	}

	var out []*docstore.Snapshot
	for _, snap := range all {
		if docstore.Matches(snap.Raw(), field, value) {
			out = append(out, snap)
		}
	}
	return out, nil
}

// Subscribe implements docstore.Store. The channel subscription is confirmed
// before the initial snapshot is read so no write can fall between the two.
func (s *Store) Subscribe(ctx context.Context, q docstore.Query) (docstore.Subscription, error) {
	if err := docstore.CheckCollection(q.Collection); err != nil {
		return nil, err
	}

	if s.isClosed() {
		return nil, docstore.ErrClosed
	}

	pubsub := s.client.Subscribe(ctx, s.channel(q.Collection))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", q.Collection, err)
	}

	docs, err := s.List(ctx, q.Collection)
	if err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	var stream *docstore.Stream
	stream = docstore.NewStream(q, func() {
		s.mu.Lock()
		delete(s.streams, stream)
		s.mu.Unlock()
		_ = pubsub.Close()
	})
	stream.Prime(docs)

	s.mu.Lock()
	s.streams[stream] = pubsub
	s.mu.Unlock()

	go s.pump(q.Collection, stream, pubsub)

	return stream, nil
}

// pump forwards channel events into stream until either side ends.
func (s *Store) pump(collection string, stream *docstore.Stream, pubsub *redis.PubSub) {
	ch := pubsub.Channel()

	for {
		select {
		case <-stream.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				if s.isClosed() {
					stream.Fail(docstore.ErrClosed)
				} else {
					stream.Fail(fmt.Errorf("redis change channel for %s closed", collection))
				}
				return
			}

			change, err := s.decodeEvent(collection, msg.Payload)
			if err != nil {
				s.log.Warn().Err(err).Str("collection", collection).Msg("Dropping undecodable change event")
				continue
			}
			stream.Push(change)
		}
	}
}

func (s *Store) decodeEvent(collection, payload string) (docstore.Change, error) {
	var ev event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return docstore.Change{}, fmt.Errorf("decode change: %w", err)
	}

	snap, err := docstore.NewSnapshot(docstore.Join(collection, ev.ID), ev.Data, ev.Updated)
	if err != nil {
		return docstore.Change{}, err
	}

	kind := docstore.Added
	switch ev.Kind {
	case docstore.Modified.String():
		kind = docstore.Modified
	case docstore.Removed.String():
		kind = docstore.Removed
	}
	return docstore.Change{Kind: kind, Doc: snap}, nil
}

// Ping implements docstore.Store.
func (s *Store) Ping(ctx context.Context) error {
	if s.isClosed() {
		return docstore.ErrClosed
	}
	return s.client.Ping(ctx).Err()
}

// Close implements docstore.Store.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	streams := s.streams
	s.streams = make(map[*docstore.Stream]*redis.PubSub)
	s.mu.Unlock()

	for stream, pubsub := range streams {
		stream.Fail(docstore.ErrClosed)
		_ = pubsub.Close()
	}
	return s.client.Close()
}
