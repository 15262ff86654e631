package feed

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"livechat/internal/pkg/logx"
)

// ErrShutdown is returned by Open after Shutdown.
var ErrShutdown = errors.New("feed manager shut down")

// cleanupMsg notifies the Manager that a feed terminated.
type cleanupMsg struct {
	target string
	feed   *Feed
}

// Manager keeps at most one active feed per UI target.
type Manager struct {
	// feeds stores the current feed of every target.
	feeds map[string]*Feed

	// mu protects concurrent access to the feeds map.
	mu sync.RWMutex

	// the channel used by feeds to notify the Manager to remove them.
	cleanup chan cleanupMsg

	// wg is used to wait for the runCleanupLoop goroutine to finish during shutdown.
	wg sync.WaitGroup

	// closed is set once Shutdown started.
	closed bool

	logger zerolog.Logger
}

// NewManager constructs a Manager and starts its cleanup loop.
func NewManager() *Manager {
	m := &Manager{
		feeds:   make(map[string]*Feed),
		cleanup: make(chan cleanupMsg, 64),
		logger:  logx.Component("FeedManager"),
	}

	m.wg.Add(1)
	go m.runCleanupLoop()

	return m
}

// runCleanupLoop removes terminated feeds until the cleanup channel closes.
func (m *Manager) runCleanupLoop() {
	defer m.wg.Done()

	for msg := range m.cleanup {
		m.deleteFeed(msg.target, msg.feed)
	}
}

// deleteFeed removes feed if it is still the current one of target.
// Notifications from replaced feeds are stale and ignored.
func (m *Manager) deleteFeed(target string, feed *Feed) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.feeds[target]
	if !ok || current != feed {
		m.logger.Debug().Str("target", target).Msg("Ignoring cleanup for stale feed")
		return
	}

	delete(m.feeds, target)
	m.logger.Debug().Str("target", target).Str("state", feed.State().String()).Msg("Feed removed")
}

func (m *Manager) notify(target string, f *Feed) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Debug().Str("target", target).Msg("Cleanup channel closed, skipping notification")
		}
	}()

	select {
	case m.cleanup <- cleanupMsg{target: target, feed: f}:
	default:
		m.logger.Warn().Str("target", target).Msg("Cleanup channel full, skipping notification")
	}
}

// Open makes f the feed of target: the previous feed of target is stopped
// before f subscribes.
func (m *Manager) Open(ctx context.Context, target string, f *Feed) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrShutdown
	}

	if prev, ok := m.feeds[target]; ok {
		prev.Stop()
		m.logger.Debug().Str("target", target).Msg("Replaced previous feed")
	}
	m.feeds[target] = f

	f.mu.Lock()
	f.onDone = func(done *Feed) { m.notify(target, done) }
	f.mu.Unlock()
	m.mu.Unlock()

	return f.Start(ctx)
}

// Close stops and forgets the feed of target, if any.
func (m *Manager) Close(target string) {
	m.mu.Lock()
	f, ok := m.feeds[target]
	delete(m.feeds, target)
	m.mu.Unlock()

	if ok {
		f.Stop()
	}
}

// Get returns the current feed of target, or nil.
func (m *Manager) Get(target string) *Feed {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.feeds[target]
}

// Len returns the number of tracked feeds.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.feeds)
}

// Shutdown stops every feed, closes the cleanup channel and waits for the
// cleanup goroutine to exit.
func (m *Manager) Shutdown() {
	m.logger.Info().Msg("Shutting down feed manager...")

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	feeds := m.feeds
	m.feeds = make(map[string]*Feed)
	m.mu.Unlock()

	for _, f := range feeds {
		f.Stop()
	}

	close(m.cleanup)
	m.wg.Wait()

	m.logger.Info().Msg("Feed manager shutdown complete.")
}
