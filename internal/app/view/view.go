/*
Package view models what a browser displays for a feed: an ordered list of
message elements, a placeholder state and scroll requests, plus user-visible
alerts.

A List records the state and reports every mutation to an observer, which the
live transport forwards to the connected browser.
*/
package view

import "time"

// Placeholder is the state shown in place of messages.
type Placeholder int

const (
	PlaceholderNone Placeholder = iota
	PlaceholderLoading
	PlaceholderEmpty
	PlaceholderFailed
)

func (p Placeholder) String() string {
	switch p {
	case PlaceholderNone:
		return "none"
	case PlaceholderLoading:
		return "loading"
	case PlaceholderEmpty:
		return "empty"
	case PlaceholderFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText renders the placeholder by name in JSON frames.
func (p Placeholder) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Element kinds.
const (
	KindChat    = "chat"
	KindSystem  = "system"
	KindPrivate = "private"
)

// Directions of private elements relative to the viewer.
const (
	DirectionSent     = "sent"
	DirectionReceived = "received"
)

// Quote is the quoted-message snapshot shown above a message.
type Quote struct {
	SenderName string `json:"senderName"`
	Content    string `json:"content"`
}

// Element is one rendered message.
type Element struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp,omitzero"`

	// Sender metadata; empty for system elements.
	SenderID   string `json:"senderId,omitempty"`
	SenderName string `json:"senderName,omitempty"`
	Avatar     string `json:"avatar,omitempty"`
	UserType   string `json:"userType,omitempty"`
	Rank       string `json:"rank,omitempty"`
	Level      *int   `json:"level,omitempty"`

	// Direction is set for private elements.
	Direction string `json:"direction,omitempty"`

	Quote *Quote `json:"quote,omitempty"`
}

// Sink receives the rendering of one feed.
type Sink interface {
	// ShowPlaceholder replaces the placeholder; PlaceholderNone clears it.
	ShowPlaceholder(p Placeholder)

	// Has reports whether an element with id is shown.
	Has(id string) bool

	// Append adds e at the end.
	Append(e Element)

	// Replace swaps the element with e.ID in place and reports whether it existed.
	Replace(e Element) bool

	// Remove deletes the element with id and reports whether it existed.
	Remove(id string) bool

	// Len returns the number of elements shown.
	Len() int

	// Overflowing reports whether the content exceeds the visible area.
	Overflowing() bool

	// ScrollToBottom scrolls to the last element.
	ScrollToBottom()
}

// Alerter shows blocking notifications to a user.
type Alerter interface {
	Alert(userID, message string)
}

// AlertFunc adapts a function to Alerter.
type AlertFunc func(userID, message string)

// Alert implements Alerter.
func (f AlertFunc) Alert(userID, message string) {
	f(userID, message)
}
