package store

import (
	"time"
)

// Roles a message can carry. The backend stores the role as plain text and
// the client only ever writes these two values.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DefaultChatTitle is used when a chat is created without an explicit title.
const DefaultChatTitle = "New Chat"

// Chat is one conversation row. LastMessage is a denormalized preview the
// backend maintains; it can be absent.
type Chat struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	LastMessage *string   `json:"last_message"`
	CreatedAt   time.Time `json:"created_at"`
}

// Message is one turn in a chat. ID and CreatedAt are assigned by the
// backend on insert; CreatedAt is the sole server-side sort key. Response is
// a reserved column that is always null.
type Message struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Response  *string   `json:"response"`
	CreatedAt time.Time `json:"created_at"`
}

// NewMessage is the insert payload for a message. The backend fills in the
// rest of the row.
type NewMessage struct {
	ChatID   string  `json:"chat_id"`
	Role     string  `json:"role"`
	Content  string  `json:"content"`
	Response *string `json:"response"`
}

// Subscription is a handle on a realtime channel. Close tears the channel
// down; once it returns, no further callbacks fire.
type Subscription interface {
	Close() error
}
