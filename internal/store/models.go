package store

import "time"

type User struct {
	ID             int64     `json:"id"`
	ExternalUserID string    `json:"external_user_id"`
	PasswordHash   string    `json:"-"` // Do not expose this in JSON responses
	CreatedAt      time.Time `json:"created_at"`
}

type Document struct {
	ID        string    `json:"id"` // UUID
	UserID    int64     `json:"user_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Conversation struct {
	ID         string    `json:"id"` // UUID
	UserID     int64     `json:"user_id"`
	DocumentID string    `json:"document_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// Roles for conversation messages.
const (
	RoleHuman     = "human"
	RoleAssistant = "assistant"
)

type Message struct {
	ID               string    `json:"id"` // UUID
	ConversationID   string    `json:"conversation_id"`
	Role             string    `json:"role"` // "human" or "assistant"
	Content          string    `json:"content"`
	Sequence         int64     `json:"sequence"`
	Timestamp        time.Time `json:"timestamp"`
	NegativeFeedback bool      `json:"negative_feedback"`
}
