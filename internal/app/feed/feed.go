/*
Package feed reconciles document store subscriptions into view sinks.

A Feed follows one room or private conversation: it subscribes to the ordered
message collection, resolves the senders of each change batch, applies the
batch to its sink element by element and keeps the view scrolled to the
bottom. The Manager keeps exactly one feed per UI target.
*/
package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"livechat/internal/app/chat"
	"livechat/internal/app/docstore"
	"livechat/internal/app/user"
	"livechat/internal/app/view"
	"livechat/internal/metrics"
	"livechat/internal/pkg/errs"
	"livechat/internal/pkg/logx"
)

// DefaultScrollDebounce delays the scroll check of room feeds after a batch.
const DefaultScrollDebounce = 100 * time.Millisecond

// State is the lifecycle state of a Feed.
type State int

const (
	Uninitialized State = iota
	Loading
	Synced
	Unsubscribed
	Failed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Loading:
		return "loading"
	case Synced:
		return "synced"
	case Unsubscribed:
		return "unsubscribed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Scope is the kind of conversation a feed follows.
type Scope string

const (
	ScopeRoom    Scope = "room"
	ScopePrivate Scope = "private"
)

// Feed renders one subscription into one sink.
type Feed struct {
	scope    Scope
	query    docstore.Query
	store    docstore.Store
	resolver *user.Resolver
	viewer   string
	sink     view.Sink
	debounce time.Duration
	log      zerolog.Logger

	mu          sync.Mutex
	state       State
	started     bool
	sub         docstore.Subscription
	err         error
	emptyShown  bool
	scrollTimer *time.Timer
	onDone      func(*Feed)

	done     chan struct{}
	doneOnce sync.Once
}

// NewRoomFeed creates a feed of the public messages of roomID.
func NewRoomFeed(store docstore.Store, resolver *user.Resolver, sink view.Sink, roomID string, debounce time.Duration) *Feed {
	f := newFeed(ScopeRoom, store, sink, chat.RoomMessages(roomID), debounce)
	f.resolver = resolver
	f.log = f.log.With().Str("room_id", roomID).Logger()
	return f
}

// NewPrivateFeed creates a feed of the conversation between viewerID and
// peerID, rendered from viewerID's side.
func NewPrivateFeed(store docstore.Store, sink view.Sink, viewerID, peerID string) *Feed {
	key := chat.ConversationKey(viewerID, peerID)
	f := newFeed(ScopePrivate, store, sink, chat.PrivateMessages(key), 0)
	f.viewer = viewerID
	f.log = f.log.With().Str("conversation", key).Logger()
	return f
}

func newFeed(scope Scope, store docstore.Store, sink view.Sink, collection string, debounce time.Duration) *Feed {
	return &Feed{
		scope:    scope,
		query:    docstore.Query{Collection: collection, OrderBy: "timestamp"},
		store:    store,
		sink:     sink,
		debounce: debounce,
		log:      logx.Component("feed").With().Str("scope", string(scope)).Logger(),
		done:     make(chan struct{}),
	}
}

// Scope returns the scope of the feed.
func (f *Feed) Scope() Scope {
	return f.scope
}

// State returns the current lifecycle state.
func (f *Feed) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Err returns the stream error of a failed feed.
func (f *Feed) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Done is closed once the feed stopped receiving batches.
func (f *Feed) Done() <-chan struct{} {
	return f.done
}

// Start shows the loading placeholder and subscribes. Batches are processed
// on a dedicated goroutine until Stop or a stream error. Identity lookups run
// under ctx without its cancellation, so a batch in flight always finishes.
func (f *Feed) Start(ctx context.Context) error {
	f.mu.Lock()
	if f.started {
		state := f.state
		f.mu.Unlock()
		return fmt.Errorf("feed already %s", state)
	}
	f.started = true
	if f.state == Unsubscribed {
		// Stopped before it ever subscribed.
		f.mu.Unlock()
		f.finish()
		return nil
	}
	f.state = Loading
	f.mu.Unlock()

	f.sink.ShowPlaceholder(view.PlaceholderLoading)

	sub, err := f.store.Subscribe(ctx, f.query)
	if err != nil {
		f.fail(err)
		f.finish()
		return errs.Wrap(errs.ErrStreamFailure, err)
	}

	f.mu.Lock()
	if f.state == Unsubscribed {
		f.mu.Unlock()
		sub.Stop()
		f.finish()
		return nil
	}
	f.sub = sub
	f.mu.Unlock()

	metrics.ActiveFeeds.Inc()
	go f.run(context.WithoutCancel(ctx), sub)
	return nil
}

// Stop unsubscribes. A batch already being applied completes; no further
// batch is delivered. Stopping a failed feed keeps it Failed.
func (f *Feed) Stop() {
	f.mu.Lock()
	sub := f.sub
	if f.state != Failed {
		f.state = Unsubscribed
	}
	if f.scrollTimer != nil {
		f.scrollTimer.Stop()
	}
	f.mu.Unlock()

	if sub != nil {
		sub.Stop()
	}
}

func (f *Feed) run(ctx context.Context, sub docstore.Subscription) {
	defer func() {
		metrics.ActiveFeeds.Dec()
		f.finish()
	}()

	for {
		batch, err := sub.Next(ctx)
		if err != nil {
			if errors.Is(err, docstore.ErrStopped) || f.State() == Unsubscribed {
				return
			}
			f.fail(err)
			return
		}

		f.apply(ctx, batch)
	}
}

// finish closes Done and reports the feed to its owner, once.
func (f *Feed) finish() {
	f.doneOnce.Do(func() {
		f.mu.Lock()
		onDone := f.onDone
		f.mu.Unlock()

		close(f.done)
		if onDone != nil {
			onDone(f)
		}
	})
}

func (f *Feed) fail(err error) {
	f.mu.Lock()
	f.state = Failed
	f.err = err
	f.mu.Unlock()

	metrics.StreamFailures.WithLabelValues(string(f.scope)).Inc()
	f.log.Error().Err(err).Msg("Subscription failed")
	f.sink.ShowPlaceholder(view.PlaceholderFailed)
}

func (f *Feed) apply(ctx context.Context, batch *docstore.Batch) {
	f.mu.Lock()
	first := f.state == Loading
	if first {
		f.state = Synced
	}
	f.mu.Unlock()

	if first {
		f.sink.ShowPlaceholder(view.PlaceholderNone)
	}

	if f.scope == ScopeRoom {
		f.applyRoom(ctx, batch.Changes)
	} else {
		f.applyPrivate(batch.Changes)
	}

	// Nothing renderable in the initial result: show emptiness distinctly
	// from loading.
	if first && f.sink.Len() == 0 {
		f.sink.ShowPlaceholder(view.PlaceholderEmpty)
		f.setEmptyShown(true)
	}

	metrics.FeedBatches.WithLabelValues(string(f.scope)).Inc()
	f.scheduleScroll()
}

func (f *Feed) setEmptyShown(v bool) {
	f.mu.Lock()
	f.emptyShown = v
	f.mu.Unlock()
}

// shown clears the empty placeholder once an element is visible.
func (f *Feed) shown() {
	f.mu.Lock()
	wasEmpty := f.emptyShown
	f.emptyShown = false
	f.mu.Unlock()

	if wasEmpty {
		f.sink.ShowPlaceholder(view.PlaceholderNone)
	}
}

func (f *Feed) decode(c docstore.Change) (*chat.Message, bool) {
	msg, err := chat.Decode(c.Doc)
	if err != nil {
		f.log.Warn().Err(err).Str("message_id", c.Doc.ID).Msg("Skipping undecodable message")
		return nil, false
	}
	return msg, true
}

func (f *Feed) count(kind docstore.ChangeKind) {
	metrics.FeedChanges.WithLabelValues(string(f.scope), kind.String()).Inc()
}

// applyRoom resolves the senders of the batch in one pass, then applies the
// changes in delivery order. A modified message moves to the end.
func (f *Feed) applyRoom(ctx context.Context, changes []docstore.Change) {
	msgs := make([]*chat.Message, len(changes))
	var senders []string

	for i, c := range changes {
		if c.Kind == docstore.Removed {
			continue
		}
		msg, ok := f.decode(c)
		if !ok {
			continue
		}
		msgs[i] = msg
		if msg.Type != chat.KindPrivate && msg.SenderID != "" {
			senders = append(senders, msg.SenderID)
		}
	}

	var lookups map[string]user.Lookup
	if f.resolver != nil && len(senders) > 0 {
		lookups = f.resolver.Resolve(ctx, senders)
	}

	for i, c := range changes {
		if c.Kind == docstore.Removed {
			if f.sink.Remove(c.Doc.ID) {
				f.count(c.Kind)
			}
			continue
		}

		msg := msgs[i]
		if msg == nil || msg.Type == chat.KindPrivate {
			continue
		}

		lookup, ok := lookups[msg.SenderID]
		if !ok {
			lookup = user.Unknown()
		}
		el := roomElement(msg, lookup)

		switch c.Kind {
		case docstore.Added:
			if f.sink.Has(el.ID) {
				continue
			}
			f.sink.Append(el)
		case docstore.Modified:
			f.sink.Remove(el.ID)
			f.sink.Append(el)
		}
		f.count(c.Kind)
		f.shown()
	}
}

// applyPrivate applies changes without identity lookups. A modified message
// is updated in place.
func (f *Feed) applyPrivate(changes []docstore.Change) {
	for _, c := range changes {
		if c.Kind == docstore.Removed {
			if f.sink.Remove(c.Doc.ID) {
				f.count(c.Kind)
			}
			continue
		}

		msg, ok := f.decode(c)
		if !ok {
			continue
		}
		el := privateElement(msg, f.viewer)

		switch c.Kind {
		case docstore.Added:
			if f.sink.Has(el.ID) {
				continue
			}
			f.sink.Append(el)
		case docstore.Modified:
			if !f.sink.Replace(el) {
				continue
			}
		}
		f.count(c.Kind)
		f.shown()
	}
}

func (f *Feed) scheduleScroll() {
	if f.debounce <= 0 {
		f.checkScroll()
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state == Unsubscribed {
		return
	}

	if f.scrollTimer == nil {
		f.scrollTimer = time.AfterFunc(f.debounce, f.checkScroll)
		return
	}
	f.scrollTimer.Reset(f.debounce)
}

func (f *Feed) checkScroll() {
	if f.sink.Overflowing() {
		f.sink.ScrollToBottom()
	}
}

func quote(q *chat.Quote) *view.Quote {
	if q == nil {
		return nil
	}
	return &view.Quote{SenderName: q.SenderName, Content: q.Content}
}

func roomElement(msg *chat.Message, lookup user.Lookup) view.Element {
	if msg.Type == chat.KindSystem {
		return view.Element{ID: msg.ID, Kind: view.KindSystem, Text: msg.Text, Timestamp: msg.Timestamp}
	}

	return view.Element{
		ID:         msg.ID,
		Kind:       view.KindChat,
		Text:       msg.Text,
		Timestamp:  msg.Timestamp,
		SenderID:   msg.SenderID,
		SenderName: msg.DisplayName(),
		Avatar:     msg.DisplayAvatar(),
		UserType:   lookup.Type,
		Rank:       lookup.Rank,
		Level:      lookup.Level,
		Quote:      quote(msg.Quoted),
	}
}

func privateElement(msg *chat.Message, viewer string) view.Element {
	direction := view.DirectionReceived
	if msg.SenderID == viewer {
		direction = view.DirectionSent
	}

	return view.Element{
		ID:         msg.ID,
		Kind:       view.KindPrivate,
		Text:       msg.Text,
		Timestamp:  msg.Timestamp,
		SenderID:   msg.SenderID,
		SenderName: msg.DisplayName(),
		Avatar:     msg.DisplayAvatar(),
		Direction:  direction,
		Quote:      quote(msg.Quoted),
	}
}
