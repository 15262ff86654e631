/*
Package live connects browser sessions to feeds over WebSocket.

This file defines the wire format: the commands a browser sends and the
frames the server pushes for every view mutation and alert.
*/
package live

import (
	"livechat/internal/app/feed"
	"livechat/internal/app/view"
)

// Command types sent by the browser.
const (
	CmdSubscribeRoom    = "subscribe_room"
	CmdSubscribePrivate = "subscribe_private"
	CmdUnsubscribe      = "unsubscribe"
)

// Frame types pushed by the server, besides the view.Op types.
const (
	FrameAlert       = "alert"
	FrameError       = "error"
	FrameTokenUpdate = "token_update"
)

// Command is one inbound browser request.
type Command struct {
	Type string `json:"type"`

	// RoomID selects the room of subscribe_room.
	RoomID string `json:"roomId,omitempty"`

	// PeerID selects the conversation partner of subscribe_private.
	PeerID string `json:"peerId,omitempty"`

	// Target names the feed to drop for unsubscribe: "room" or "private".
	Target feed.Scope `json:"target,omitempty"`
}

// Frame is one outbound message.
type Frame struct {
	Type   string     `json:"type"`
	Target feed.Scope `json:"target,omitempty"`

	// Sub numbers the subscription a view mutation belongs to. It grows with
	// every subscribe on the connection.
	Sub uint64 `json:"sub,omitempty"`

	ID          string        `json:"id,omitempty"`
	Element     *view.Element `json:"element,omitempty"`
	Placeholder string        `json:"placeholder,omitempty"`

	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
	Token   string `json:"token,omitempty"`
}

// opFrame tags a view mutation with the feed target and subscription it
// belongs to.
func opFrame(target feed.Scope, sub uint64, op view.Op) Frame {
	f := Frame{Type: op.Type, Target: target, Sub: sub, ID: op.ID, Element: op.Element}
	if op.Type == view.OpPlaceholder {
		f.Placeholder = op.Placeholder.String()
	}
	return f
}
