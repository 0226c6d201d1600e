package audit

import "time"

// Event is an immutable, append-only platform audit record.
//
// Invariants:
// - Events are never updated or deleted.
// - survey_id is required; every event belongs to one survey.
// - actor capture is best-effort; do not block lifecycle operations on audit failures.
//
// Storage (Postgres): table audit_events with an INSERT-only policy.
// This log is ops-facing; the customer-visible trail lives on the survey itself.
type Event struct {
	ID       string `json:"id" db:"id"`
	SurveyID string `json:"survey_id" db:"survey_id"`

	// Type indicates the business category of the audit record.
	Type EventType `json:"type" db:"type"`

	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`
	ActorRole   string `json:"actor_role,omitempty" db:"actor_role"`

	// Action is the lifecycle action, e.g. "approved" or "notification_failed".
	Action string `json:"action" db:"action"`

	FromStatus string `json:"from_status,omitempty" db:"from_status"`
	ToStatus   string `json:"to_status,omitempty" db:"to_status"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	OccurredAt time.Time `json:"occurred_at" db:"occurred_at"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeSurveyAction EventType = "survey_action"
	EventTypeNotification EventType = "notification"
)
