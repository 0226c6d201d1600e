package survey

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"survey-platform/internal/rbac"
)

// The functions in this file are pure: they never modify their input survey.
// On success they return the next state together with the single audit record
// that was appended to it; on failure they return a *Error and nothing else.

// New drafts a survey on behalf of a Lead Manager.
func New(id string, in CreateInput, actor Actor, now time.Time) (Survey, error) {
	const op = "create"

	if actor.Role != rbac.RoleLeadManager {
		return Survey{}, newError(op, ErrPermission, "role %q cannot create surveys", actor.Role)
	}
	if strings.TrimSpace(id) == "" {
		return Survey{}, newError(op, ErrValidation, "id is required")
	}
	if err := validateCreate(op, in); err != nil {
		return Survey{}, err
	}

	now = now.UTC()
	s := Survey{
		ID:              id,
		Title:           strings.TrimSpace(in.Title),
		Questions:       slices.Clone(in.Questions),
		OwnerCustomerID: strings.TrimSpace(in.OwnerCustomerID),
		CreatedBy:       actor.ID,
		StartDate:       in.StartDate.UTC(),
		EndDate:         in.EndDate.UTC(),
		Status:          StatusDraft,
		Responses:       map[string]string{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	s.AuditTrail = []AuditRecord{{
		At:        now,
		ActorRole: actor.Role,
		ActorID:   actor.ID,
		Action:    ActionCreated,
		To:        StatusDraft,
		Message:   fmt.Sprintf("survey created for customer %s", s.OwnerCustomerID),
	}}
	return s, nil
}

func validateCreate(op string, in CreateInput) error {
	if strings.TrimSpace(in.Title) == "" {
		return newError(op, ErrValidation, "title is required")
	}
	if strings.TrimSpace(in.OwnerCustomerID) == "" {
		return newError(op, ErrValidation, "owner customer id is required")
	}
	if len(in.Questions) == 0 {
		return newError(op, ErrValidation, "at least one question is required")
	}
	seen := make(map[string]struct{}, len(in.Questions))
	for i, q := range in.Questions {
		if strings.TrimSpace(q) == "" {
			return newError(op, ErrValidation, "question %d is blank", i+1)
		}
		if _, dup := seen[q]; dup {
			return newError(op, ErrValidation, "duplicate question %q", q)
		}
		seen[q] = struct{}{}
	}
	if in.StartDate.IsZero() || in.EndDate.IsZero() {
		return newError(op, ErrValidation, "start and end dates are required")
	}
	if in.EndDate.Before(in.StartDate) {
		return newError(op, ErrValidation, "end date %s is before start date %s",
			in.EndDate.Format(time.DateOnly), in.StartDate.Format(time.DateOnly))
	}
	return nil
}

// SubmitForReview hands a draft to the CoE.
func SubmitForReview(s Survey, actor Actor, now time.Time) (Survey, AuditRecord, error) {
	const op = "submit_for_review"
	e, err := lookup(op, s.Status, EventSubmitForReview, actor)
	if err != nil {
		return Survey{}, AuditRecord{}, err
	}
	next, rec := apply(s, e, actor, now, "submitted for CoE review", nil)
	return next, rec, nil
}

// ParseDecision maps a caller-supplied decision onto the closed set.
func ParseDecision(raw string) (Decision, error) {
	switch d := Decision(strings.ToLower(strings.TrimSpace(raw))); d {
	case DecisionApprove, DecisionReject, DecisionRequestChanges:
		return d, nil
	default:
		return "", newError("review", ErrValidation, "unknown decision %q", raw)
	}
}

// Review applies a CoE decision to a survey under review.
func Review(s Survey, actor Actor, decision Decision, now time.Time) (Survey, AuditRecord, error) {
	const op = "review"

	var ev Event
	var msg string
	switch decision {
	case DecisionApprove:
		ev, msg = EventApprove, "approved by CoE"
	case DecisionReject:
		ev, msg = EventReject, "rejected by CoE"
	case DecisionRequestChanges:
		ev, msg = EventRequestChanges, "changes requested by CoE"
	default:
		return Survey{}, AuditRecord{}, newError(op, ErrValidation, "unknown decision %q", decision)
	}

	e, err := lookup(op, s.Status, ev, actor)
	if err != nil {
		return Survey{}, AuditRecord{}, err
	}
	next, rec := apply(s, e, actor, now, msg, nil)
	return next, rec, nil
}

// Publish makes an approved survey available to its customer. Notifying the
// customer is the caller's job; see RecordNotification.
func Publish(s Survey, actor Actor, now time.Time) (Survey, AuditRecord, error) {
	const op = "publish"
	e, err := lookup(op, s.Status, EventPublish, actor)
	if err != nil {
		return Survey{}, AuditRecord{}, err
	}
	next, rec := apply(s, e, actor, now, "published by CoE", nil)
	return next, rec, nil
}

// RecordNotification appends the outcome of the publish notification. It never
// changes status: a failed notification does not revert the publication.
func RecordNotification(s Survey, notifyErr error, now time.Time) (Survey, AuditRecord, error) {
	const op = "record_notification"
	if s.Status != StatusPublished {
		return Survey{}, AuditRecord{}, newError(op, ErrInvalidTransition, "survey in status %q was not just published", s.Status)
	}

	rec := AuditRecord{
		At:        now.UTC(),
		ActorRole: rbac.RoleSystem,
		Action:    ActionNotificationSent,
		Message:   fmt.Sprintf("notification sent to customer %s", s.OwnerCustomerID),
	}
	if notifyErr != nil {
		rec.Action = ActionNotificationFailed
		rec.Message = fmt.Sprintf("notification to customer %s failed: %v", s.OwnerCustomerID, notifyErr)
	}

	next := s.Clone()
	next.AuditTrail = append(next.AuditTrail, rec)
	next.UpdatedAt = rec.At
	return next, rec, nil
}

// FillResponses merges answers into the survey on behalf of its customer.
// Later answers overwrite earlier ones for the same question. Either every
// answer is accepted or none is.
func FillResponses(s Survey, actor Actor, answers map[string]string, now time.Time) (Survey, AuditRecord, error) {
	const op = "fill_responses"

	if err := checkOwner(op, s, actor); err != nil {
		return Survey{}, AuditRecord{}, err
	}
	e, err := lookup(op, s.Status, EventRecordResponses, actor)
	if err != nil {
		return Survey{}, AuditRecord{}, err
	}
	if len(answers) == 0 {
		return Survey{}, AuditRecord{}, newError(op, ErrValidation, "no answers given")
	}
	var unknown []string
	for q := range answers {
		if !s.HasQuestion(q) {
			unknown = append(unknown, q)
		}
	}
	if len(unknown) > 0 {
		slices.Sort(unknown)
		return Survey{}, AuditRecord{}, newError(op, ErrValidation, "unknown question(s): %s", strings.Join(unknown, ", "))
	}

	msg := fmt.Sprintf("customer recorded %d answer(s)", len(answers))
	next, rec := apply(s, e, actor, now, msg, func(out *Survey) {
		maps.Copy(out.Responses, answers)
	})
	return next, rec, nil
}

// SubmitFinal completes the survey on behalf of its customer. A published
// survey may be completed without any answers.
func SubmitFinal(s Survey, actor Actor, now time.Time) (Survey, AuditRecord, error) {
	const op = "submit_final"

	if err := checkOwner(op, s, actor); err != nil {
		return Survey{}, AuditRecord{}, err
	}
	e, err := lookup(op, s.Status, EventSubmitFinal, actor)
	if err != nil {
		return Survey{}, AuditRecord{}, err
	}
	next, rec := apply(s, e, actor, now, "customer submitted completed survey", nil)
	return next, rec, nil
}

// Export returns an immutable snapshot of s.
func Export(s Survey) Snapshot {
	c := s.Clone()
	return Snapshot{
		ID:              c.ID,
		Title:           c.Title,
		Status:          c.Status,
		OwnerCustomerID: c.OwnerCustomerID,
		Questions:       c.Questions,
		StartDate:       c.StartDate,
		EndDate:         c.EndDate,
		Responses:       c.Responses,
		AuditTrail:      c.AuditTrail,
		Version:         c.Version,
	}
}

func checkOwner(op string, s Survey, actor Actor) error {
	if actor.Role != rbac.RoleCustomer {
		return newError(op, ErrPermission, "role %q cannot answer surveys", actor.Role)
	}
	if actor.ID == "" || actor.ID != s.OwnerCustomerID {
		return newError(op, ErrPermission, "customer %q does not own survey %s", actor.ID, s.ID)
	}
	return nil
}

func apply(s Survey, e edge, actor Actor, now time.Time, msg string, mutate func(*Survey)) (Survey, AuditRecord) {
	now = now.UTC()
	next := s.Clone()
	if mutate != nil {
		mutate(&next)
	}
	rec := AuditRecord{
		At:        now,
		ActorRole: actor.Role,
		ActorID:   actor.ID,
		Action:    e.action,
		From:      s.Status,
		To:        e.to,
		Message:   msg,
	}
	next.Status = e.to
	next.UpdatedAt = now
	next.AuditTrail = append(next.AuditTrail, rec)
	return next, rec
}
