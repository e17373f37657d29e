// Package engine implements the conversation state machine.
//
// The engine is a pure decision function: it maps (user snapshot, inbound
// text) to an updated snapshot plus an ordered list of reply effects. It
// performs no I/O itself; the chat gateway owns persisting the user, writing
// transcripts, and emitting replies over the channel. The one collaborator
// it consults — the learning-path lister — is injected, and its failures
// degrade to an empty option list so a catalog outage never blocks a
// transition.
package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/coddyhq/coddy-server/internal/domain"
)

// ResetCommand unconditionally restarts onboarding, regardless of state.
// Exact, case-sensitive match only.
const ResetCommand = "/reset"

const (
	resetReply      = "🔄 State reset to Onboarding. Please type your name again."
	assessmentReply = "The assessment feature is still under construction..."
	recoveryReply   = "System Error: Unknown State recovered."
)

// PathLister supplies learning-path display names for quick replies.
// Implementations must degrade to an empty slice instead of failing.
type PathLister interface {
	PathNames(ctx context.Context) []string
}

// Reply is one outbound reply effect: bot text plus optional quick-reply
// options. The gateway both persists it as a bot transcript turn and emits
// it over the live channel.
type Reply struct {
	Content      string
	QuickReplies []string
}

// Outcome is the engine's full decision for one inbound message.
type Outcome struct {
	User    domain.User
	Replies []Reply
}

// Engine routes inbound messages purely by conversation state. No content
// classification happens here; every state handles every input.
type Engine struct {
	paths PathLister
}

// New creates an engine backed by the given path lister.
func New(paths PathLister) *Engine {
	return &Engine{paths: paths}
}

// Handle computes the transition for one inbound message. It never returns
// an error: every reachable state has a defined transition for every input,
// and corrupted state values recover to idle.
func (e *Engine) Handle(ctx context.Context, user domain.User, text string) Outcome {
	// Reset override wins over every state handler.
	if text == ResetCommand {
		user.ResetOnboarding()
		return Outcome{User: user, Replies: []Reply{{Content: resetReply}}}
	}

	switch user.State {
	case domain.StateOnboarding:
		return e.handleOnboarding(ctx, user, text)
	case domain.StateAwaitingChoice:
		return e.handlePathSelection(user, text)
	case domain.StateAssessment:
		return Outcome{User: user, Replies: []Reply{{Content: assessmentReply}}}
	case domain.StateIdle:
		return e.handleIdle(user, text)
	default:
		// Corrupted or future-incompatible persisted state. Force idle so
		// the user can never get permanently stuck.
		user.State = domain.StateIdle
		return Outcome{User: user, Replies: []Reply{{Content: recoveryReply}}}
	}
}

// handleOnboarding treats the inbound text as the user's chosen name and
// offers the catalog's learning paths as quick replies.
func (e *Engine) handleOnboarding(ctx context.Context, user domain.User, text string) Outcome {
	user.Name = strings.TrimSpace(text)
	user.State = domain.StateAwaitingChoice

	options := e.paths.PathNames(ctx)

	reply := Reply{
		Content:      fmt.Sprintf("Hi %s! Nice to meet you. Pick the learning path you're interested in:", user.Name),
		QuickReplies: options,
	}
	return Outcome{User: user, Replies: []Reply{reply}}
}

// handlePathSelection records the chosen path and finishes onboarding.
// A coding-experience preference that was already captured is preserved;
// otherwise it is marked with the explicit "Not set" sentinel.
func (e *Engine) handlePathSelection(user domain.User, text string) Outcome {
	path := text
	user.Preferences.InterestedPath = &path
	if user.Preferences.CodingExperience == nil {
		notSet := domain.ExperienceNotSet
		user.Preferences.CodingExperience = &notSet
	}
	user.State = domain.StateIdle

	reply := Reply{
		Content: fmt.Sprintf("Great choice! I've noted your interest in **%s**.\n\nYour profile is ready. Ask me anything about the topic, or type \"Start\" to see the first material.", text),
	}
	return Outcome{User: user, Replies: []Reply{reply}}
}

// handleIdle echoes the message back. This is the hook where the content
// routing service will plug in once it exists.
func (e *Engine) handleIdle(user domain.User, text string) Outcome {
	reply := Reply{
		Content: fmt.Sprintf("I received your message: %q. (Waiting for ML integration...)", text),
	}
	return Outcome{User: user, Replies: []Reply{reply}}
}
