package survey

import (
	"context"
	"errors"
	"fmt"
	"time"

	"survey-platform/internal/locking"
	"survey-platform/internal/rbac"
	"survey-platform/pkg/logger"

	"github.com/google/uuid"
)

// Notifier delivers the "survey published" message to a customer.
type Notifier interface {
	Notify(ctx context.Context, customerID, message string) error
}

// Locker serializes operations per survey id.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// AuditSink receives a copy of every audit record after it is persisted.
// Sinks are best-effort: a failing sink never fails the operation.
type AuditSink interface {
	RecordSurveyAction(ctx context.Context, surveyID string, rec AuditRecord) error
}

// Service runs lifecycle operations against a repository.
//
// Each operation holds the survey's lock across load, transition and save.
// Collaborators are injected; nothing is process-global.
type Service struct {
	repo     Repository
	notifier Notifier
	locker   Locker
	sink     AuditSink

	// clock and newID are injectable for deterministic tests.
	clock func() time.Time
	newID func() string
}

type Option func(*Service)

func WithLocker(l Locker) Option { return func(s *Service) { s.locker = l } }

func WithAuditSink(a AuditSink) Option { return func(s *Service) { s.sink = a } }

func WithClock(clock func() time.Time) Option { return func(s *Service) { s.clock = clock } }

func WithIDGenerator(newID func() string) Option { return func(s *Service) { s.newID = newID } }

func NewService(repo Repository, notifier Notifier, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		notifier: notifier,
		locker:   locking.NewKeyedMutex(0),
		clock:    time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

const notificationMessage = "A new survey is available: %q"

func lockKey(id string) string { return "survey:lock:" + id }

// Create drafts and persists a new survey.
func (s *Service) Create(ctx context.Context, actor Actor, in CreateInput) (Survey, error) {
	sv, err := New(s.newID(), in, actor, s.clock())
	if err != nil {
		return Survey{}, err
	}
	if err := s.repo.Create(ctx, sv); err != nil {
		return Survey{}, fmt.Errorf("survey: create %s: %w", sv.ID, err)
	}
	sv.Version = 1
	s.afterCommit(ctx, sv, sv.AuditTrail[0])
	return sv, nil
}

func (s *Service) SubmitForReview(ctx context.Context, actor Actor, id string) (Survey, error) {
	return s.mutate(ctx, id, func(cur Survey, now time.Time) (Survey, AuditRecord, error) {
		return SubmitForReview(cur, actor, now)
	})
}

// Review applies a raw decision string; unknown decisions fail validation
// before the survey is even loaded.
func (s *Service) Review(ctx context.Context, actor Actor, id string, decision string) (Survey, error) {
	d, err := ParseDecision(decision)
	if err != nil {
		return Survey{}, err
	}
	return s.mutate(ctx, id, func(cur Survey, now time.Time) (Survey, AuditRecord, error) {
		return Review(cur, actor, d, now)
	})
}

// Publish publishes an approved survey and notifies its customer. The
// notification outcome is appended as its own audit record; a notifier
// failure is logged and never reverts the publication.
func (s *Service) Publish(ctx context.Context, actor Actor, id string) (Survey, error) {
	unlock, err := s.lock(ctx, id)
	if err != nil {
		return Survey{}, err
	}
	defer unlock()

	published, err := s.commit(ctx, id, func(cur Survey, now time.Time) (Survey, AuditRecord, error) {
		return Publish(cur, actor, now)
	})
	if err != nil {
		return Survey{}, err
	}

	log := logger.From(ctx).With("survey_id", id, "customer_id", published.OwnerCustomerID)

	var notifyErr error
	if s.notifier == nil {
		notifyErr = errors.New("notifier not configured")
	} else {
		notifyErr = s.notifier.Notify(ctx, published.OwnerCustomerID, fmt.Sprintf(notificationMessage, published.Title))
	}
	if notifyErr != nil {
		log.Warn("survey notification failed", "err", notifyErr)
	}

	notified, rec, err := RecordNotification(published, notifyErr, s.clock())
	if err != nil {
		log.Error("survey notification audit not recorded", "err", err)
		return published, nil
	}
	notified.Version = published.Version + 1
	if err := s.repo.Save(ctx, notified); err != nil {
		// The publication itself is already durable.
		log.Error("survey notification audit not persisted", "err", err)
		return published, nil
	}
	s.afterCommit(ctx, notified, rec)
	return notified, nil
}

// FillResponses records a customer's answers.
func (s *Service) FillResponses(ctx context.Context, actor Actor, id string, answers map[string]string) (Survey, error) {
	return s.mutate(ctx, id, func(cur Survey, now time.Time) (Survey, AuditRecord, error) {
		return FillResponses(cur, actor, answers, now)
	})
}

func (s *Service) SubmitFinal(ctx context.Context, actor Actor, id string) (Survey, error) {
	return s.mutate(ctx, id, func(cur Survey, now time.Time) (Survey, AuditRecord, error) {
		return SubmitFinal(cur, actor, now)
	})
}

// Get loads a survey. Customers may only read their own surveys.
func (s *Service) Get(ctx context.Context, actor Actor, id string) (Survey, error) {
	sv, err := s.repo.Load(ctx, id)
	if err != nil {
		return Survey{}, err
	}
	if err := canRead(sv, actor); err != nil {
		return Survey{}, err
	}
	return sv, nil
}

// Snapshot exports a survey without mutating it.
func (s *Service) Snapshot(ctx context.Context, actor Actor, id string) (Snapshot, error) {
	sv, err := s.Get(ctx, actor, id)
	if err != nil {
		return Snapshot{}, err
	}
	return Export(sv), nil
}

// List returns surveys matching f. Customers only ever see their own surveys.
func (s *Service) List(ctx context.Context, actor Actor, f ListFilter) ([]Survey, error) {
	if actor.Role == "" {
		return nil, newError("list", ErrPermission, "role required")
	}
	if actor.Role == rbac.RoleCustomer {
		if actor.ID == "" {
			return nil, newError("list", ErrPermission, "customer id required")
		}
		f.OwnerCustomerID = actor.ID
	}
	return s.repo.List(ctx, f)
}

func (s *Service) mutate(ctx context.Context, id string, fn transitionFunc) (Survey, error) {
	unlock, err := s.lock(ctx, id)
	if err != nil {
		return Survey{}, err
	}
	defer unlock()
	return s.commit(ctx, id, fn)
}

type transitionFunc func(cur Survey, now time.Time) (Survey, AuditRecord, error)

// commit loads, transitions and saves; the caller must hold the survey lock.
func (s *Service) commit(ctx context.Context, id string, fn transitionFunc) (Survey, error) {
	cur, err := s.repo.Load(ctx, id)
	if err != nil {
		return Survey{}, err
	}
	next, rec, err := fn(cur, s.clock())
	if err != nil {
		return Survey{}, err
	}
	next.Version = cur.Version + 1
	if err := s.repo.Save(ctx, next); err != nil {
		return Survey{}, fmt.Errorf("survey: save %s: %w", id, err)
	}
	s.afterCommit(ctx, next, rec)
	return next, nil
}

func (s *Service) lock(ctx context.Context, id string) (func(), error) {
	if id == "" {
		return nil, newError("lock", ErrValidation, "survey id is required")
	}
	unlock, err := s.locker.Lock(ctx, lockKey(id))
	if err != nil {
		return nil, fmt.Errorf("survey: lock %s: %w", id, err)
	}
	return unlock, nil
}

func (s *Service) afterCommit(ctx context.Context, sv Survey, rec AuditRecord) {
	log := logger.From(ctx)
	log.Info("survey transition",
		"survey_id", sv.ID,
		"action", rec.Action,
		"actor_role", rec.ActorRole,
		"status", sv.Status,
		"version", sv.Version,
	)
	if s.sink == nil {
		return
	}
	if err := s.sink.RecordSurveyAction(ctx, sv.ID, rec); err != nil {
		log.Warn("audit mirror failed", "survey_id", sv.ID, "action", rec.Action, "err", err)
	}
}

func canRead(sv Survey, actor Actor) error {
	switch actor.Role {
	case "":
		return newError("get", ErrPermission, "role required")
	case rbac.RoleCustomer:
		if actor.ID != sv.OwnerCustomerID {
			// foreign surveys read as missing
			return fmt.Errorf("%w: %s", ErrNotFound, sv.ID)
		}
	}
	return nil
}
