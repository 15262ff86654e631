/*
Package chat contains the message model and the write side of the chat layer.

Public messages are stored under rooms/{roomId}/messages, private messages
under privateChats/{conversationKey}/messages next to a conversation summary
document. The Composer builds and persists outgoing messages; ContactBook
lists the counterparts of a user's private conversations.
*/
package chat

import (
	"sort"
	"strings"
	"time"

	"livechat/internal/app/docstore"
)

// Kind is the type field of a stored message.
type Kind string

const (
	KindChat    Kind = "chat"
	KindSystem  Kind = "system"
	KindPrivate Kind = "private"
)

const (
	// MaxContentBytes is the maximum allowed size (in bytes) of message text.
	MaxContentBytes = 5000

	// PublicUserNum is the userNum stamped on public messages.
	PublicUserNum = "100"

	// RoomsCollection holds one document per room.
	RoomsCollection = "rooms"

	// PrivateChatsCollection holds one summary document per conversation.
	PrivateChatsCollection = "privateChats"

	messagesCollection = "messages"
)

// Quote is the snapshot of a quoted message, copied at send time.
type Quote struct {
	SenderName string `json:"senderName"`
	Content    string `json:"content"`
}

func (q *Quote) fields() map[string]any {
	return map[string]any{"senderName": q.SenderName, "content": q.Content}
}

// Message is a stored public or private message. Public messages carry
// User/Avatar, private ones SenderName/SenderAvatar/ReceiverID.
type Message struct {
	ID string `json:"-"`

	SenderID  string    `json:"senderId"`
	Text      string    `json:"text"`
	Type      Kind      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Quoted    *Quote    `json:"quoted,omitempty"`

	User       string `json:"user,omitempty"`
	Avatar     string `json:"avatar,omitempty"`
	UserNum    string `json:"userNum,omitempty"`
	SenderRank string `json:"senderRank,omitempty"`
	Level      *int   `json:"level,omitempty"`

	SenderName   string `json:"senderName,omitempty"`
	SenderAvatar string `json:"senderAvatar,omitempty"`
	ReceiverID   string `json:"receiverId,omitempty"`
}

// DisplayName returns the sender name of either message shape.
func (m *Message) DisplayName() string {
	if m.User != "" {
		return m.User
	}
	return m.SenderName
}

// DisplayAvatar returns the sender avatar of either message shape.
func (m *Message) DisplayAvatar() string {
	if m.Avatar != "" {
		return m.Avatar
	}
	return m.SenderAvatar
}

// Decode reads a message snapshot.
func Decode(snap *docstore.Snapshot) (*Message, error) {
	var m Message
	if err := snap.DataTo(&m); err != nil {
		return nil, err
	}
	m.ID = snap.ID
	return &m, nil
}

// Summary is the conversation summary document of a private chat.
type Summary struct {
	SenderID             string    `json:"senderId"`
	ReceiverID           string    `json:"receiverId"`
	LastMessageTimestamp time.Time `json:"lastMessageTimestamp"`
}

var keyEscaper = strings.NewReplacer("%", "%25", "_", "%5F", "/", "%2F")

// ConversationKey derives the key of the private conversation between a and b.
// It is symmetric, and identifiers are escaped so that distinct pairs never
// share a key; ids without '%', '_' or '/' produce the plain "a_b" form.
func ConversationKey(a, b string) string {
	ids := []string{keyEscaper.Replace(a), keyEscaper.Replace(b)}
	sort.Strings(ids)
	return ids[0] + "_" + ids[1]
}

// RoomMessages returns the message collection of a room.
func RoomMessages(roomID string) string {
	return docstore.Join(RoomsCollection, roomID, messagesCollection)
}

// PrivateMessages returns the message collection of a conversation.
func PrivateMessages(key string) string {
	return docstore.Join(PrivateChatsCollection, key, messagesCollection)
}

// SummaryRef returns the summary document of a conversation.
func SummaryRef(key string) string {
	return docstore.Join(PrivateChatsCollection, key)
}
