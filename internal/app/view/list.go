package view

import "sync"

// Op types reported to a List observer.
const (
	OpPlaceholder = "placeholder"
	OpAppend      = "append"
	OpReplace     = "replace"
	OpRemove      = "remove"
	OpScroll      = "scroll"
)

// Op is one mutation of a List.
type Op struct {
	Type        string      `json:"op"`
	ID          string      `json:"id,omitempty"`
	Element     *Element    `json:"element,omitempty"`
	Placeholder Placeholder `json:"placeholder,omitempty"`
}

// DefaultVisibleRows is the number of elements that fit without scrolling.
const DefaultVisibleRows = 20

// List is a Sink holding elements in display order. It is safe for
// concurrent use; the observer runs under the list lock, in mutation order.
type List struct {
	mu          sync.Mutex
	items       []Element
	index       map[string]int
	placeholder Placeholder
	visible     int
	scrolls     int
	observe     func(Op)
}

var _ Sink = (*List)(nil)

// NewList creates a list that overflows past visible elements and reports
// mutations to observe (which may be nil).
func NewList(visible int, observe func(Op)) *List {
	if visible <= 0 {
		visible = DefaultVisibleRows
	}
	return &List{index: make(map[string]int), visible: visible, observe: observe}
}

func (l *List) emit(op Op) {
	if l.observe != nil {
		l.observe(op)
	}
}

func (l *List) reindex(from int) {
	for i := from; i < len(l.items); i++ {
		l.index[l.items[i].ID] = i
	}
}

// ShowPlaceholder implements Sink.
func (l *List) ShowPlaceholder(p Placeholder) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.placeholder == p {
		return
	}
	l.placeholder = p
	l.emit(Op{Type: OpPlaceholder, Placeholder: p})
}

// Has implements Sink.
func (l *List) Has(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, ok := l.index[id]
	return ok
}

// Append implements Sink. An element whose id is already shown is ignored.
func (l *List) Append(e Element) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.index[e.ID]; ok {
		return
	}

	l.index[e.ID] = len(l.items)
	l.items = append(l.items, e)
	l.emit(Op{Type: OpAppend, ID: e.ID, Element: &e})
}

// Replace implements Sink.
func (l *List) Replace(e Element) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	i, ok := l.index[e.ID]
	if !ok {
		return false
	}

	l.items[i] = e
	l.emit(Op{Type: OpReplace, ID: e.ID, Element: &e})
	return true
}

// Remove implements Sink.
func (l *List) Remove(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	i, ok := l.index[id]
	if !ok {
		return false
	}

	l.items = append(l.items[:i], l.items[i+1:]...)
	delete(l.index, id)
	l.reindex(i)
	l.emit(Op{Type: OpRemove, ID: id})
	return true
}

// Len implements Sink.
func (l *List) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

// Overflowing implements Sink.
func (l *List) Overflowing() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items) > l.visible
}

// ScrollToBottom implements Sink.
func (l *List) ScrollToBottom() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.scrolls++
	l.emit(Op{Type: OpScroll})
}

// IDs returns the element ids in display order.
func (l *List) IDs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	ids := make([]string, len(l.items))
	for i, e := range l.items {
		ids[i] = e.ID
	}
	return ids
}

// Elements returns a copy of the elements in display order.
func (l *List) Elements() []Element {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Element, len(l.items))
	copy(out, l.items)
	return out
}

// Placeholder returns the current placeholder.
func (l *List) Placeholder() Placeholder {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.placeholder
}

// Scrolls returns how many times the list was scrolled to the bottom.
func (l *List) Scrolls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.scrolls
}
