/*
Package user contains the identity and profile model of chat participants.

Registered users live in the "users" collection and carry level and experience
counters; visitors live in "visitors" and never do. The Resolver classifies
sender ids for message rendering and the Directory serves profile reads and
edits.
*/
package user

import "livechat/internal/app/docstore"

// Participant types.
const (
	TypeRegistered = "registered"
	TypeVisitor    = "visitor"
	TypeUnknown    = "unknown"
)

// Rank labels. RankMember and RankVisitor are the defaults; RankAdmin is
// assigned manually and unlocks level changes.
const (
	RankMember  = "member"
	RankVisitor = "visitor"
	RankAdmin   = "admin"
)

// Defaults applied when a profile omits a field.
const (
	DefaultAvatar         = "https://i.imgur.com/Uo9V2Yx.png"
	DefaultInnerImage     = "images/Interior.png"
	DefaultLevel          = 1
	DefaultExpToNextLevel = 200
)

// Collection names.
const (
	UsersCollection    = "users"
	VisitorsCollection = "visitors"
)

// User represents the session identity of a chat participant, as carried by
// the bearer token.
type User struct {

	// ID is the unique identifier for the user or visitor.
	ID string `json:"id"`

	// Nickname is the display name of the user in the chat room.
	Nickname string `json:"nickname"`

	// Avatar is the URL for the user's avatar.
	Avatar string `json:"avatar,omitempty"`

	// UserType defines the role/status of the participant ("registered" or "visitor").
	UserType string `json:"userType"`
}

// Profile is the stored document of a registered user.
type Profile struct {
	Username       string `json:"username"`
	Avatar         string `json:"avatar,omitempty"`
	InnerImage     string `json:"innerImage,omitempty"`
	Rank           string `json:"rank,omitempty"`
	UserType       string `json:"userType,omitempty"`
	Level          int    `json:"level,omitempty"`
	CurrentExp     int    `json:"currentExp"`
	TotalExp       int    `json:"totalExp"`
	ExpToNextLevel int    `json:"expToNextLevel,omitempty"`
}

// EffectiveLevel returns the level with the default applied.
func (p *Profile) EffectiveLevel() int {
	if p.Level < 1 {
		return DefaultLevel
	}
	return p.Level
}

// EffectiveThreshold returns expToNextLevel with the default applied.
func (p *Profile) EffectiveThreshold() int {
	if p.ExpToNextLevel <= 0 {
		return DefaultExpToNextLevel
	}
	return p.ExpToNextLevel
}

// Visitor is the stored document of a visitor.
type Visitor struct {
	Name       string `json:"name"`
	Avatar     string `json:"avatar,omitempty"`
	InnerImage string `json:"innerImage,omitempty"`
	Rank       string `json:"rank,omitempty"`
}

// Lookup is the classification of one sender id.
type Lookup struct {
	Type  string `json:"type"`
	Rank  string `json:"rank"`
	Level *int   `json:"level"`
}

// Unknown is the lookup of an id found in neither collection.
func Unknown() Lookup {
	return Lookup{Type: TypeUnknown, Rank: RankVisitor}
}

// UserRef returns the document path of a registered user.
func UserRef(id string) string {
	return docstore.Join(UsersCollection, id)
}

// VisitorRef returns the document path of a visitor.
func VisitorRef(id string) string {
	return docstore.Join(VisitorsCollection, id)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
