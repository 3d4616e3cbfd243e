package types

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	Id           int       `json:"id"`
	Username     string    `json:"username"`
	EmailAddress string    `json:"email_address,omitempty"`
	Moderator    bool      `json:"moderator,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

type Message struct {
	Id        uuid.UUID  `json:"id"`
	UserId    int        `json:"user_id"`
	Body      string     `json:"body"`
	PostedAt  time.Time  `json:"posted_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Deleted reports whether the message has been soft deleted.
func (m Message) Deleted() bool {
	return m.DeletedAt != nil
}

// RoomState is a point-in-time snapshot of a room's history and
// membership, keyed by client session id.
type RoomState struct {
	RoomId   string          `json:"room_id"`
	Messages []Message       `json:"messages"`
	Users    map[string]User `json:"users"`
}
