package chat

import "sync"

// QuoteBox holds the pending quote of each sender per target (a room or a
// conversation), set when the user picks a message to reply to.
type QuoteBox struct {
	mu      sync.Mutex
	pending map[string]Quote
}

// NewQuoteBox creates an empty box.
func NewQuoteBox() *QuoteBox {
	return &QuoteBox{pending: make(map[string]Quote)}
}

func quoteKey(senderID, target string) string {
	return senderID + "\x00" + target
}

// Set stores q as the pending quote of senderID on target.
func (b *QuoteBox) Set(senderID, target string, q Quote) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending[quoteKey(senderID, target)] = q
}

// Get returns the pending quote, or nil.
func (b *QuoteBox) Get(senderID, target string) *Quote {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.pending[quoteKey(senderID, target)]
	if !ok {
		return nil
	}
	return &q
}

// Clear drops the pending quote.
func (b *QuoteBox) Clear(senderID, target string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.pending, quoteKey(senderID, target))
}

// ClearIf drops the pending quote only while it still equals q, so a quote
// picked during a send survives it.
func (b *QuoteBox) ClearIf(senderID, target string, q Quote) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := quoteKey(senderID, target)
	if cur, ok := b.pending[key]; ok && cur == q {
		delete(b.pending, key)
	}
}

// RoomTarget names the quote target of a room.
func RoomTarget(roomID string) string {
	return "room/" + roomID
}
