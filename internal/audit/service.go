package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only; no Update/Delete methods exist.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service logs internal audit information.
// Callers should treat audit logging as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.SurveyID == "" || e.Type == "" || e.Action == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = e.CreatedAt
	}
	return s.repo.Append(ctx, e)
}

// LogSurveyAction records one lifecycle step of a survey.
func (s *Service) LogSurveyAction(ctx context.Context, surveyID, actorUserID, actorRole, action, from, to, message string, at time.Time) error {
	return s.Append(ctx, Event{
		SurveyID:    surveyID,
		Type:        EventTypeSurveyAction,
		ActorUserID: actorUserID,
		ActorRole:   actorRole,
		Action:      action,
		FromStatus:  from,
		ToStatus:    to,
		Message:     message,
		OccurredAt:  at,
	})
}

// LogNotification records a customer notification attempt.
func (s *Service) LogNotification(ctx context.Context, surveyID, action, message string, at time.Time) error {
	return s.Append(ctx, Event{
		SurveyID:   surveyID,
		Type:       EventTypeNotification,
		ActorRole:  "system",
		Action:     action,
		Message:    message,
		OccurredAt: at,
	})
}
