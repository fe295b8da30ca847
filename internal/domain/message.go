package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies who produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	// RoleSystem marks error text shown to the user, not instructions to the model.
	RoleSystem Role = "system"
)

// Message is one turn of a conversation. It is a value type and is never
// modified after creation.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewMessage constructs a Message with a fresh id and the current time.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:        newID(),
		Role:      role,
		Content:   content,
		CreatedAt: now(),
	}
}

var newID = func() string {
	return uuid.NewString()
}

var now = func() time.Time {
	return time.Now().UTC()
}
