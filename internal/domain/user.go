// Package domain contains core domain types for the Coddy tutoring server.
package domain

import (
	"time"
)

// ConversationState governs how an inbound chat message is interpreted.
// The set is closed; any persisted value outside it is treated as corrupt
// and recovered to StateIdle by the conversation engine.
type ConversationState string

const (
	// StateOnboarding expects the user's name.
	StateOnboarding ConversationState = "STATE_ONBOARDING"
	// StateAwaitingChoice expects a learning-path selection.
	StateAwaitingChoice ConversationState = "STATE_AWAITING_CHOICE"
	// StateAssessment is reserved for the leveling quiz (not built yet).
	StateAssessment ConversationState = "STATE_ASSESSMENT"
	// StateIdle is the steady free-form Q&A state.
	StateIdle ConversationState = "STATE_IDLE"
)

// Valid reports whether s is a member of the closed state set.
func (s ConversationState) Valid() bool {
	switch s {
	case StateOnboarding, StateAwaitingChoice, StateAssessment, StateIdle:
		return true
	}
	return false
}

// GuestName is the placeholder display name assigned before onboarding
// captures the user's real name, and restored by /reset.
const GuestName = "Guest Learner"

// DefaultLevel is the level label assigned to freshly created users.
const DefaultLevel = "Beginner"

// ExperienceNotSet marks a coding-experience preference that was explicitly
// defaulted during path selection, as opposed to never touched (nil).
const ExperienceNotSet = "Not set"

// Preferences holds optional learner context gathered during onboarding.
// Pointer fields distinguish "never set" (nil) from "set to a value".
type Preferences struct {
	InterestedPath   *string `json:"interestedPath,omitempty"`
	CodingExperience *string `json:"codingExperience,omitempty"`
}

// User represents one learner with their conversation state.
type User struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Email       string            `json:"email,omitempty"`
	Avatar      string            `json:"avatar,omitempty"`
	XP          int               `json:"xp"`
	Level       string            `json:"level"`
	State       ConversationState `json:"currentState"`
	Preferences Preferences       `json:"preferences"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// NewGuest returns a user snapshot in the shape the store assigns on first
// contact: placeholder name, zero XP, onboarding state.
func NewGuest() *User {
	now := time.Now()
	return &User{
		Name:      GuestName,
		XP:        0,
		Level:     DefaultLevel,
		State:     StateOnboarding,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ResetOnboarding returns the user to the pre-onboarding state: placeholder
// name, onboarding state, and both preference fields cleared to unset.
func (u *User) ResetOnboarding() {
	u.State = StateOnboarding
	u.Name = GuestName
	u.Preferences = Preferences{}
}
