package docstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"livechat/internal/pkg/randx"
)

type record struct {
	data    []byte
	updated time.Time
}

// Memory is a Store kept in process memory. It is the default backend for
// development and the backend used by tests.
type Memory struct {
	mu          sync.Mutex
	collections map[string]map[string]*record
	streams     map[string]map[*Stream]struct{}
	clock       Clock
	closed      bool
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		collections: make(map[string]map[string]*record),
		streams:     make(map[string]map[*Stream]struct{}),
	}
}

func (m *Memory) snapshotLocked(collection, id string, rec *record) *Snapshot {
	return &Snapshot{ID: id, Ref: Join(collection, id), UpdateTime: rec.updated, data: rec.data}
}

func (m *Memory) publishLocked(collection string, c Change) {
	for s := range m.streams[collection] {
		s.Push(c)
	}
}

// write applies fields to the document at ref. With mustExist the document
// has to be present; with merge the existing fields are kept.
func (m *Memory) write(ref string, fields Fields, merge, mustExist bool) error {
	collection, id, err := SplitRef(ref)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	docs := m.collections[collection]
	rec, exists := docs[id]
	if mustExist && !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, ref)
	}

	var base []byte
	if exists && merge {
		base = rec.data
	}

	now := m.clock.Next(time.Time{})
	data, err := Merge(base, fields, now)
	if err != nil {
		return err
	}

	if docs == nil {
		docs = make(map[string]*record)
		m.collections[collection] = docs
	}

	rec = &record{data: data, updated: now}
	docs[id] = rec

	kind := Added
	if exists {
		kind = Modified
	}
	m.publishLocked(collection, Change{Kind: kind, Doc: m.snapshotLocked(collection, id, rec)})
	return nil
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, ref string) (*Snapshot, error) {
	collection, id, err := SplitRef(ref)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}

	rec, ok := m.collections[collection][id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return m.snapshotLocked(collection, id, rec), nil
}

// Set implements Store.
func (m *Memory) Set(_ context.Context, ref string, fields Fields, merge bool) error {
	return m.write(ref, fields, merge, false)
}

// Update implements Store.
func (m *Memory) Update(_ context.Context, ref string, fields Fields) error {
	return m.write(ref, fields, true, true)
}

// Add implements Store.
func (m *Memory) Add(_ context.Context, collection string, fields Fields) (string, error) {
	if err := CheckCollection(collection); err != nil {
		return "", err
	}

	for {
		id := randx.DocumentID()

		m.mu.Lock()
		_, taken := m.collections[collection][id]
		m.mu.Unlock()

		if taken {
			continue
		}

		if err := m.write(Join(collection, id), fields, false, false); err != nil {
			return "", err
		}
		return id, nil
	}
}

// Delete removes the document at ref. Removing a missing document is not an error.
func (m *Memory) Delete(_ context.Context, ref string) error {
	collection, id, err := SplitRef(ref)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	if _, ok := m.collections[collection][id]; !ok {
		return nil
	}
	delete(m.collections[collection], id)

	gone := &Snapshot{ID: id, Ref: ref, UpdateTime: m.clock.Next(time.Time{})}
	m.publishLocked(collection, Change{Kind: Removed, Doc: gone})
	return nil
}

func (m *Memory) listLocked(collection string) []*Snapshot {
	docs := m.collections[collection]
	out := make([]*Snapshot, 0, len(docs))
	for id, rec := range docs {
		out = append(out, m.snapshotLocked(collection, id, rec))
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Where implements Store.
func (m *Memory) Where(_ context.Context, collection, field string, value any) ([]*Snapshot, error) {
	if err := CheckCollection(collection); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}

	var out []*Snapshot
	for _, s := range m.listLocked(collection) {
		if Matches(s.data, field, value) {
			out = append(out, s)
		}
	}
	return out, nil
}

// List implements Store.
func (m *Memory) List(_ context.Context, collection string) ([]*Snapshot, error) {
	if err := CheckCollection(collection); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	return m.listLocked(collection), nil
}

// Subscribe implements Store.
func (m *Memory) Subscribe(_ context.Context, q Query) (Subscription, error) {
	if err := CheckCollection(q.Collection); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}

	var stream *Stream
	stream = NewStream(q, func() {
		m.mu.Lock()
		delete(m.streams[q.Collection], stream)
		m.mu.Unlock()
	})
	stream.Prime(m.listLocked(q.Collection))

	if m.streams[q.Collection] == nil {
		m.streams[q.Collection] = make(map[*Stream]struct{})
	}
	m.streams[q.Collection][stream] = struct{}{}

	return stream, nil
}

// Interrupt fails every open subscription on collection with err, as a lost
// connection would.
func (m *Memory) Interrupt(collection string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for s := range m.streams[collection] {
		s.Fail(err)
	}
}

// Subscribers returns the number of open subscriptions on collection.
func (m *Memory) Subscribers(collection string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.streams[collection])
}

// Ping implements Store.
func (m *Memory) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	return nil
}

// Close implements Store.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	for _, streams := range m.streams {
		for s := range streams {
			s.Fail(ErrClosed)
		}
	}
	return nil
}
