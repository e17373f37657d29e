package chat

import (
	"context"
	"log/slog"

	"github.com/coddyhq/coddy-server/internal/domain"
	"github.com/coddyhq/coddy-server/internal/engine"
	"github.com/coddyhq/coddy-server/internal/store"
)

// Channel event names, shared by both directions of the wire protocol.
const (
	EventClientReady        = "client_ready"
	EventClientMessage      = "client_message"
	EventSessionEstablished = "session_established"
	EventServerMessage      = "server_message"
	EventError              = "error"
)

// ClientReady is the handshake payload sent when the client finishes loading.
type ClientReady struct {
	UserID string `json:"userId,omitempty"`
}

// ClientMessage is one inbound chat message.
type ClientMessage struct {
	UserID    string `json:"userId,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Message   string `json:"message"`
}

// SessionEstablished reports a freshly assigned user ID back to the client
// so it can be remembered across reconnects.
type SessionEstablished struct {
	UserID string `json:"userId"`
}

// ServerMessage is one outbound bot reply.
type ServerMessage struct {
	Content      string   `json:"content"`
	Type         string   `json:"type"`
	QuickReplies []string `json:"quickReplies,omitempty"`
}

// ErrorEvent reports an unexpected failure to the client.
type ErrorEvent struct {
	Message string `json:"message"`
}

// Emitter sends a named event to one client connection.
type Emitter interface {
	Emit(ctx context.Context, event string, payload interface{}) error
}

// Gateway orchestrates one inbound chat event: resolve or create the user,
// run the conversation engine, apply its effects in order, and emit the
// replies. All I/O lives here; the engine stays pure.
//
// Known race, kept deliberately: two concurrent messages for the same user
// (duplicate tabs) can both read the pre-transition state and both apply a
// transition, losing one update to currentState/preferences. No per-user
// mutual exclusion was ever specified, so none is provided.
type Gateway struct {
	repo   store.Repository
	engine *engine.Engine
	logger *slog.Logger
}

// NewGateway creates a session gateway.
func NewGateway(repo store.Repository, eng *engine.Engine, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{repo: repo, engine: eng, logger: logger}
}

// HandleReady resolves or creates the acting user for the initial handshake.
func (g *Gateway) HandleReady(ctx context.Context, emit Emitter, payload ClientReady) {
	user, err := g.resolveUser(ctx, emit, payload.UserID)
	if err != nil {
		g.logger.Error("client_ready failed", "error", err)
		g.emitError(ctx, emit)
		return
	}
	g.logger.Info("Client ready", "user_id", user.ID, "name", user.Name, "state", user.State)
}

// HandleMessage drives one inbound chat message through the engine and
// applies the resulting effects in order: the user's turn is already in the
// transcript before the engine runs, then each bot reply is recorded and
// emitted. No individual effect failure may prevent delivering the reply.
func (g *Gateway) HandleMessage(ctx context.Context, emit Emitter, payload ClientMessage) {
	user, err := g.resolveUser(ctx, emit, payload.UserID)
	if err != nil {
		g.logger.Error("client_message failed to resolve user", "error", err)
		g.emitError(ctx, emit)
		return
	}

	// Record the user's turn before computing the bot's, so a crash between
	// the two leaves no gap in the transcript. The /reset branch relies on
	// the inbound text already being recorded here. Without a session ID the
	// transcript is skipped but chat still works.
	if payload.SessionID != "" && payload.Message != engine.ResetCommand {
		if err := g.repo.AppendMessage(ctx, payload.SessionID, domain.RoleUser, payload.Message); err != nil {
			g.logger.Warn("failed to persist user turn", "session_id", payload.SessionID, "error", err)
		}
	}

	g.logger.Info("Message received", "user_id", user.ID, "name", user.Name, "state", user.State)

	outcome := g.engine.Handle(ctx, *user, payload.Message)

	if err := g.repo.UpdateUser(ctx, &outcome.User); err != nil {
		g.logger.Error("failed to persist user transition",
			"user_id", outcome.User.ID, "state", outcome.User.State, "error", err)
	}

	for _, reply := range outcome.Replies {
		if payload.SessionID != "" {
			if err := g.repo.AppendMessage(ctx, payload.SessionID, domain.RoleBot, reply.Content); err != nil {
				g.logger.Warn("failed to persist bot turn", "session_id", payload.SessionID, "error", err)
			}
		}
		msg := ServerMessage{
			Content:      reply.Content,
			Type:         "text",
			QuickReplies: reply.QuickReplies,
		}
		if err := emit.Emit(ctx, EventServerMessage, msg); err != nil {
			g.logger.Warn("failed to emit server message", "user_id", outcome.User.ID, "error", err)
		}
	}
}

// resolveUser loads the referenced user, or creates a fresh guest when the
// ID is absent or unknown. A newly assigned ID is reported back via
// session_established.
func (g *Gateway) resolveUser(ctx context.Context, emit Emitter, userID string) (*domain.User, error) {
	if userID != "" {
		user, err := g.repo.GetUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		if user != nil {
			return user, nil
		}
	}

	user := domain.NewGuest()
	if err := g.repo.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	g.logger.Info("Created new user", "user_id", user.ID)

	if err := emit.Emit(ctx, EventSessionEstablished, SessionEstablished{UserID: user.ID}); err != nil {
		g.logger.Warn("failed to emit session_established", "user_id", user.ID, "error", err)
	}
	return user, nil
}

func (g *Gateway) emitError(ctx context.Context, emit Emitter) {
	if err := emit.Emit(ctx, EventError, ErrorEvent{Message: "Internal Server Error"}); err != nil {
		g.logger.Debug("failed to emit error event", "error", err)
	}
}
