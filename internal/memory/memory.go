// Package memory provides conversation history storage for multi-turn
// questions against a tender document.
package memory

import (
	"context"
	"strings"
	"time"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Defaults: 20 messages (10 turns) kept per session, expiring after an hour
// of inactivity.
const (
	DefaultMaxMessages = 20
	DefaultTTL         = time.Hour
)

// Message represents a single message in a conversation.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"ts"`
}

// Store keeps the recent messages of each session.
type Store interface {
	// Append adds a message and trims the session to its maximum length.
	Append(ctx context.Context, sessionID string, msg Message) error

	// Recent returns up to the last n messages, oldest first.
	Recent(ctx context.Context, sessionID string, n int) ([]Message, error)

	// Clear removes a session.
	Clear(ctx context.Context, sessionID string) error
}

// FormatForPrompt formats the conversation history for inclusion in an LLM prompt.
// Returns empty string if no history exists.
func FormatForPrompt(messages []Message) string {
	var sb strings.Builder
	for _, msg := range messages {
		switch msg.Role {
		case RoleUser:
			sb.WriteString("User: " + msg.Content + "\n")
		case RoleAssistant:
			sb.WriteString("Assistant: " + msg.Content + "\n")
		}
	}
	return sb.String()
}

func lastN(messages []Message, n int) []Message {
	if n <= 0 || len(messages) <= n {
		return messages
	}
	return messages[len(messages)-n:]
}
