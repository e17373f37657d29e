// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/coddyhq/coddy-server/internal/domain"
)

// Repository defines the interface for persisting users and chat transcripts.
//
// Lookups return (nil, nil) when the referenced record does not exist;
// callers decide whether that means 404 or "create a new user".
type Repository interface {
	// GetUser retrieves a user by ID.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// CreateUser persists a new user and assigns its ID in place.
	CreateUser(ctx context.Context, user *domain.User) error

	// UpdateUser persists the mutable fields of an existing user.
	UpdateUser(ctx context.Context, user *domain.User) error

	// CreateSession creates a transcript for a user. When firstMessage is
	// empty the session is seeded with the bot's greeting; otherwise the
	// first message is recorded as the user's opening turn and used to
	// derive the title.
	CreateSession(ctx context.Context, userID, firstMessage string) (*domain.ChatSession, error)

	// ListSessions returns a user's sessions, newest first, without
	// message bodies.
	ListSessions(ctx context.Context, userID string) ([]*domain.ChatSession, error)

	// GetSession retrieves one session with its ordered messages.
	GetSession(ctx context.Context, sessionID string) (*domain.ChatSession, error)

	// AppendMessage appends one immutable transcript entry.
	AppendMessage(ctx context.Context, sessionID string, role domain.Role, content string) error

	// RenameSession replaces a session's title.
	RenameSession(ctx context.Context, sessionID, title string) error

	// DeleteSession removes a session and its messages.
	DeleteSession(ctx context.Context, sessionID string) error

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
