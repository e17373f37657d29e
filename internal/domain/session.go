package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Role identifies the author of a transcript message.
type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

// Valid reports whether r is a known transcript role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleBot
}

// DefaultSessionTitle is used when a session is created without a first
// message to derive a title from.
const DefaultSessionTitle = "New Conversation"

const titleMaxRunes = 30

// Message is a single immutable transcript entry.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatSession is one ordered, append-only transcript owned by a single user.
type ChatSession struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SessionTitle derives a session title from the first user message,
// truncated to a sidebar-friendly length. Empty input yields the default.
func SessionTitle(firstMessage string) string {
	firstMessage = strings.TrimSpace(firstMessage)
	if firstMessage == "" {
		return DefaultSessionTitle
	}
	if utf8.RuneCountInString(firstMessage) <= titleMaxRunes {
		return firstMessage
	}
	runes := []rune(firstMessage)
	return string(runes[:titleMaxRunes]) + "..."
}
