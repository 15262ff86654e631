package docstore

import (
	"context"
	"sync"
	"time"
)

// ChangeKind tags one entry of a change batch.
type ChangeKind int

const (
	Added ChangeKind = iota
	Modified
	Removed
)

func (k ChangeKind) String() string {
	switch k {
	case Added:
		return "added"
	case Modified:
		return "modified"
	case Removed:
		return "removed"
	default:
		return "unknown"
	}
}

// Change is one added, modified or removed document. Removed changes carry a
// snapshot with only ID, Ref and UpdateTime set.
type Change struct {
	Kind ChangeKind
	Doc  *Snapshot
}

// Batch is the set of changes delivered together by a subscription.
type Batch struct {
	Changes []Change

	// Size is the number of documents in the query result after the batch.
	Size int
}

// Stream is a Subscription fed by a backend through Prime, Push and Fail.
//
// It keeps the version of every document in the result so that pushed changes
// are normalized: an add of a known document becomes a modify, a modify of an
// unknown document becomes an add, stale versions and removals of unknown
// documents are dropped, and a document losing the order field is removed.
// Changes pushed between two calls to Next are delivered as one batch.
type Stream struct {
	query Query

	mu        sync.Mutex
	known     map[string]time.Time
	pending   []Change
	early     []Change
	primed    bool
	delivered bool
	stopped   bool
	err       error

	signal   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	onStop   func()
}

// NewStream creates a stream for q. onStop, if not nil, runs once when the
// subscriber stops the stream.
func NewStream(q Query, onStop func()) *Stream {
	return &Stream{
		query:  q,
		known:  make(map[string]time.Time),
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
		onStop: onStop,
	}
}

// Query returns the query the stream serves.
func (s *Stream) Query() Query {
	return s.query
}

// Done is closed when the subscriber stops the stream.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

func (s *Stream) wake() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// Prime installs the initial result, which becomes the first batch.
// Changes pushed before Prime are applied on top of it.
func (s *Stream) Prime(docs []*Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.primed {
		return
	}

	for _, d := range SortByField(docs, s.query.OrderBy) {
		s.known[d.ID] = d.UpdateTime
		s.pending = append(s.pending, Change{Kind: Added, Doc: d})
	}
	s.primed = true

	for _, c := range s.early {
		s.pushLocked(c)
	}
	s.early = nil

	s.wake()
}

// Push queues changes for delivery.
func (s *Stream) Push(changes ...Change) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}

	if !s.primed {
		s.early = append(s.early, changes...)
		return
	}

	for _, c := range changes {
		s.pushLocked(c)
	}
	s.wake()
}

func (s *Stream) pushLocked(c Change) {
	if c.Doc == nil {
		return
	}

	id := c.Doc.ID
	version, isKnown := s.known[id]

	if isKnown && !c.Doc.UpdateTime.IsZero() {
		if c.Kind == Removed && c.Doc.UpdateTime.Before(version) {
			return
		}
		if c.Kind != Removed && !c.Doc.UpdateTime.After(version) {
			return
		}
	}

	if c.Kind != Removed && !c.Doc.HasField(s.query.OrderBy) {
		c.Kind = Removed
	}

	switch c.Kind {
	case Removed:
		if !isKnown {
			return
		}
		delete(s.known, id)
	default:
		if isKnown {
			c.Kind = Modified
		} else {
			c.Kind = Added
		}
		s.known[id] = c.Doc.UpdateTime
	}

	s.pending = append(s.pending, c)
}

// Fail terminates the stream with err once pending changes are delivered.
func (s *Stream) Fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()

	s.wake()
}

// Next implements Subscription.
func (s *Stream) Next(ctx context.Context) (*Batch, error) {
	for {
		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			return nil, ErrStopped
		}

		if s.primed && (!s.delivered || len(s.pending) > 0) {
			batch := &Batch{Changes: s.pending, Size: len(s.known)}
			s.pending = nil
			s.delivered = true
			s.mu.Unlock()
			return batch, nil
		}

		if s.err != nil {
			err := s.err
			s.mu.Unlock()
			return nil, err
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.done:
		case <-s.signal:
		}
	}
}

// Stop implements Subscription.
func (s *Stream) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.pending = nil
		s.mu.Unlock()

		close(s.done)

		if s.onStop != nil {
			s.onStop()
		}
	})
}
