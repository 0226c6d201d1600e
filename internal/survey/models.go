package survey

import (
	"maps"
	"slices"
	"time"

	"survey-platform/internal/rbac"
)

// Status is the closed set of survey lifecycle states.
type Status string

const (
	StatusDraft       Status = "draft"
	StatusUnderReview Status = "under_review"
	StatusApproved    Status = "approved"
	StatusRejected    Status = "rejected"
	StatusPublished   Status = "published"
	StatusInProgress  Status = "in_progress"
	StatusCompleted   Status = "completed"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{
	StatusDraft,
	StatusUnderReview,
	StatusApproved,
	StatusRejected,
	StatusPublished,
	StatusInProgress,
	StatusCompleted,
}

func ParseStatus(s string) (Status, bool) {
	st := Status(s)
	if slices.Contains(Statuses, st) {
		return st, true
	}
	return "", false
}

// terminal reports whether no transition leaves st.
func (st Status) terminal() bool {
	return st == StatusRejected || st == StatusCompleted
}

// Action names what an audit record documents.
type Action string

const (
	ActionCreated            Action = "created"
	ActionSubmittedForReview Action = "submitted_for_review"
	ActionApproved           Action = "approved"
	ActionRejected           Action = "rejected"
	ActionChangesRequested   Action = "changes_requested"
	ActionPublished          Action = "published"
	ActionNotificationSent   Action = "notification_sent"
	ActionNotificationFailed Action = "notification_failed"
	ActionResponsesRecorded  Action = "responses_recorded"
	ActionSubmitted          Action = "submitted"
)

// Decision is a CoE review outcome.
type Decision string

const (
	DecisionApprove        Decision = "approve"
	DecisionReject         Decision = "reject"
	DecisionRequestChanges Decision = "request_changes"
)

// Actor is the authenticated caller of a lifecycle operation.
// For customers, ID is the customer id.
type Actor struct {
	ID   string    `json:"id"`
	Role rbac.Role `json:"role"`
}

// AuditRecord is one immutable entry of a survey's audit trail.
type AuditRecord struct {
	At        time.Time `json:"at" bson:"at"`
	ActorRole rbac.Role `json:"actor_role" bson:"actorRole"`
	ActorID   string    `json:"actor_id,omitempty" bson:"actorId,omitempty"`
	Action    Action    `json:"action" bson:"action"`
	From      Status    `json:"from,omitempty" bson:"from,omitempty"`
	To        Status    `json:"to,omitempty" bson:"to,omitempty"`
	Message   string    `json:"message,omitempty" bson:"message,omitempty"`
}

// Survey is the aggregate owned by the lifecycle.
//
// Invariants:
// - Status only changes through the transition table in machine.go.
// - Responses keys are a subset of Questions.
// - AuditTrail is append-only; each successful mutation adds exactly one record.
type Survey struct {
	ID              string            `json:"id"`
	Title           string            `json:"title"`
	Questions       []string          `json:"questions"`
	OwnerCustomerID string            `json:"owner_customer_id"`
	CreatedBy       string            `json:"created_by"`
	StartDate       time.Time         `json:"start_date"`
	EndDate         time.Time         `json:"end_date"`
	Status          Status            `json:"status"`
	Responses       map[string]string `json:"responses"`
	AuditTrail      []AuditRecord     `json:"audit_trail"`

	// Version is the storage revision; repositories reject stale saves.
	Version int64 `json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasQuestion reports whether q is one of the survey's questions.
func (s Survey) HasQuestion(q string) bool {
	return slices.Contains(s.Questions, q)
}

// Clone returns a deep copy; no slice or map is shared with s.
func (s Survey) Clone() Survey {
	out := s
	out.Questions = slices.Clone(s.Questions)
	out.Responses = maps.Clone(s.Responses)
	if out.Responses == nil {
		out.Responses = map[string]string{}
	}
	out.AuditTrail = slices.Clone(s.AuditTrail)
	return out
}

// CreateInput carries the fields a Lead Manager supplies when drafting a survey.
type CreateInput struct {
	Title           string    `json:"title"`
	Questions       []string  `json:"questions"`
	StartDate       time.Time `json:"start_date"`
	EndDate         time.Time `json:"end_date"`
	OwnerCustomerID string    `json:"owner_customer_id"`
}

// Snapshot is a read-only export of a survey.
type Snapshot struct {
	ID              string            `json:"id"`
	Title           string            `json:"title"`
	Status          Status            `json:"status"`
	OwnerCustomerID string            `json:"owner_customer_id"`
	Questions       []string          `json:"questions"`
	StartDate       time.Time         `json:"start_date"`
	EndDate         time.Time         `json:"end_date"`
	Responses       map[string]string `json:"responses"`
	AuditTrail      []AuditRecord     `json:"audit_trail"`
	Version         int64             `json:"version"`
}
