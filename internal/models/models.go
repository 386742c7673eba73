package models

import "time"

// User represents a user in the system
type User struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Token     string    `json:"token"`
	PushToken *string   `json:"push_token,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Habit represents a recurring commitment with a daily reminder time
type Habit struct {
	ID               string     `json:"id"`
	UserID           string     `json:"user_id"`
	Name             string     `json:"name"`
	NotificationTime string     `json:"notification_time"` // HH:MM wall clock
	Active           bool       `json:"active"`
	CreatedAt        time.Time  `json:"created_at"`
	LastNotifiedAt   *time.Time `json:"last_notified_at,omitempty"`
}

// SubmissionStatus is the review state of a submission
type SubmissionStatus string

const (
	StatusPending  SubmissionStatus = "pending"
	StatusApproved SubmissionStatus = "approved"
	StatusRejected SubmissionStatus = "rejected"
)

// Outcome is an admin decision on a pending submission
type Outcome string

const (
	OutcomeApproved Outcome = "approved"
	OutcomeRejected Outcome = "rejected"
)

// Status returns the submission status an outcome moves to
func (o Outcome) Status() SubmissionStatus {
	if o == OutcomeApproved {
		return StatusApproved
	}
	return StatusRejected
}

// Valid reports whether o is a known outcome
func (o Outcome) Valid() bool {
	return o == OutcomeApproved || o == OutcomeRejected
}

// Submission represents one proof-of-progress photo awaiting or past review
type Submission struct {
	ID              string           `json:"id"`
	HabitID         string           `json:"habit_id"`
	UserID          string           `json:"user_id"`
	SubmittedAt     time.Time        `json:"submitted_at"`
	PhotoRef        string           `json:"photo_ref"`
	Status          SubmissionStatus `json:"status"`
	ReviewedAt      *time.Time       `json:"reviewed_at,omitempty"`
	ReviewerID      *string          `json:"reviewer_id,omitempty"`
	RejectionReason *string          `json:"rejection_reason,omitempty"`
}

// Streak holds the per-(user, habit) counters
type Streak struct {
	UserID         string     `json:"user_id"`
	HabitID        string     `json:"habit_id"`
	Current        int        `json:"current_streak"`
	Longest        int        `json:"longest_streak"`
	TotalApproved  int        `json:"total_approved"`
	LastAdvancedAt *time.Time `json:"last_advanced_at,omitempty"`
}

// Event types delivered by the transport
const (
	EventCommand  = "command"
	EventPhoto    = "photo"
	EventCallback = "callback"
)

// InboundEvent is a single message or callback received from a chat
type InboundEvent struct {
	Type      string
	UserID    string
	ChatID    string
	Payload   EventPayload
	Timestamp time.Time
}

// EventPayload carries the type-specific part of an inbound event
type EventPayload struct {
	Text     string `json:"text,omitempty"`
	PhotoRef string `json:"photo_ref,omitempty"`
	HabitID  string `json:"habit_id,omitempty"`
	Data     string `json:"data,omitempty"`
}

// Button is an inline action attached to an outbound message
type Button struct {
	Label string `json:"label"`
	Data  string `json:"data"`
}

// OutboundMessage is content sent to a chat
type OutboundMessage struct {
	Text     string   `json:"text"`
	PhotoURL string   `json:"photo_url,omitempty"`
	Buttons  []Button `json:"buttons,omitempty"`
}
