package survey

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"survey-platform/internal/audit"
	"survey-platform/internal/locking"
	"survey-platform/internal/rbac"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNotifier struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeNotifier) Notify(_ context.Context, customerID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, customerID)
	return f.err
}

func (f *fakeNotifier) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// flakyRepo fails the n-th Save (1-based) with err.
type flakyRepo struct {
	*MemoryRepo
	mu     sync.Mutex
	saves  int
	failAt int
	err    error
}

func (r *flakyRepo) Save(ctx context.Context, s Survey) error {
	r.mu.Lock()
	r.saves++
	fail := r.saves == r.failAt
	r.mu.Unlock()
	if fail {
		return r.err
	}
	return r.MemoryRepo.Save(ctx, s)
}

func newTestService(repo Repository, n Notifier, opts ...Option) *Service {
	ids := 0
	base := []Option{
		WithClock(func() time.Time { return t0 }),
		WithIDGenerator(func() string {
			ids++
			return fmt.Sprintf("s-%d", ids)
		}),
	}
	return NewService(repo, n, append(base, opts...)...)
}

func publishedSurvey(t *testing.T, svc *Service) Survey {
	t.Helper()
	ctx := context.Background()
	sv, err := svc.Create(ctx, lead, validInput())
	require.NoError(t, err)
	_, err = svc.SubmitForReview(ctx, lead, sv.ID)
	require.NoError(t, err)
	_, err = svc.Review(ctx, coe, sv.ID, "approve")
	require.NoError(t, err)
	sv, err = svc.Publish(ctx, coe, sv.ID)
	require.NoError(t, err)
	return sv
}

func TestService_Scenario(t *testing.T) {
	ctx := context.Background()
	n := &fakeNotifier{}
	svc := newTestService(NewMemoryRepo(), n)

	sv, err := svc.Create(ctx, lead, validInput())
	require.NoError(t, err)
	assert.Equal(t, "s-1", sv.ID)
	assert.Equal(t, int64(1), sv.Version)

	sv, err = svc.SubmitForReview(ctx, lead, sv.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusUnderReview, sv.Status)

	sv, err = svc.Review(ctx, coe, sv.ID, "approve")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, sv.Status)

	sv, err = svc.Publish(ctx, coe, sv.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPublished, sv.Status)
	assert.Equal(t, []string{"C1"}, n.Calls())
	last := sv.AuditTrail[len(sv.AuditTrail)-1]
	assert.Equal(t, ActionNotificationSent, last.Action)

	sv, err = svc.FillResponses(ctx, customer, sv.ID, map[string]string{"Q1": "yes"})
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, sv.Status)
	assert.Equal(t, map[string]string{"Q1": "yes"}, sv.Responses)

	sv, err = svc.FillResponses(ctx, customer, sv.ID, map[string]string{"Q1": "no", "Q2": "maybe"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Q1": "no", "Q2": "maybe"}, sv.Responses)

	sv, err = svc.SubmitFinal(ctx, customer, sv.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, sv.Status)

	stored, err := svc.Get(ctx, lead, sv.ID)
	require.NoError(t, err)
	assert.Equal(t, sv.Version, stored.Version)
	assert.Len(t, stored.AuditTrail, 8)
	assert.Equal(t, []string{"C1"}, n.Calls())
}

func TestService_ForeignCustomerCannotFill(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(NewMemoryRepo(), &fakeNotifier{})
	sv := publishedSurvey(t, svc)

	_, err := svc.FillResponses(ctx, stranger, sv.ID, map[string]string{"Q1": "no"})
	assert.ErrorIs(t, err, ErrPermission)

	stored, err := svc.Get(ctx, coe, sv.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Responses)
	assert.Equal(t, len(sv.AuditTrail), len(stored.AuditTrail))
}

func TestService_NotificationFailureKeepsPublication(t *testing.T) {
	ctx := context.Background()
	n := &fakeNotifier{err: errors.New("smtp down")}
	svc := newTestService(NewMemoryRepo(), n)

	sv := publishedSurvey(t, svc)
	assert.Equal(t, StatusPublished, sv.Status)
	last := sv.AuditTrail[len(sv.AuditTrail)-1]
	assert.Equal(t, ActionNotificationFailed, last.Action)
	assert.Contains(t, last.Message, "smtp down")

	stored, err := svc.Get(ctx, coe, sv.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPublished, stored.Status)
}

// Publish is the one operation that grows the trail by two: the transition
// itself and the notification outcome recorded by the system role.
func TestService_PublishAppendsTransitionAndNotificationRecords(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(NewMemoryRepo(), &fakeNotifier{})
	sv, err := svc.Create(ctx, lead, validInput())
	require.NoError(t, err)
	_, err = svc.SubmitForReview(ctx, lead, sv.ID)
	require.NoError(t, err)
	approved, err := svc.Review(ctx, coe, sv.ID, "approve")
	require.NoError(t, err)

	published, err := svc.Publish(ctx, coe, sv.ID)
	require.NoError(t, err)

	require.Len(t, published.AuditTrail, len(approved.AuditTrail)+2)
	assert.Equal(t, approved.Version+2, published.Version)
	tail := published.AuditTrail[len(approved.AuditTrail):]
	assert.Equal(t, ActionPublished, tail[0].Action)
	assert.Equal(t, rbac.RoleCoE, tail[0].ActorRole)
	assert.Equal(t, ActionNotificationSent, tail[1].Action)
	assert.Equal(t, rbac.RoleSystem, tail[1].ActorRole)
	assert.Equal(t, StatusPublished, published.Status)
}

func TestService_NilNotifierRecordsFailure(t *testing.T) {
	svc := newTestService(NewMemoryRepo(), nil)
	sv := publishedSurvey(t, svc)
	assert.Equal(t, ActionNotificationFailed, sv.AuditTrail[len(sv.AuditTrail)-1].Action)
}

func TestService_PublishSurvivesNotificationAuditSaveFailure(t *testing.T) {
	// Saves: submit, review, publish, notification record.
	repo := &flakyRepo{MemoryRepo: NewMemoryRepo(), failAt: 4, err: errors.New("disk full")}
	svc := newTestService(repo, &fakeNotifier{})

	sv := publishedSurvey(t, svc)
	assert.Equal(t, StatusPublished, sv.Status)
	assert.Equal(t, ActionPublished, sv.AuditTrail[len(sv.AuditTrail)-1].Action)
}

func TestService_FailedCallLeavesStoreUntouched(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(NewMemoryRepo(), &fakeNotifier{})
	sv, err := svc.Create(ctx, lead, validInput())
	require.NoError(t, err)

	_, err = svc.Publish(ctx, coe, sv.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = svc.Review(ctx, coe, sv.ID, "perhaps")
	assert.ErrorIs(t, err, ErrValidation)

	stored, err := svc.Get(ctx, lead, sv.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, stored.Status)
	assert.Len(t, stored.AuditTrail, 1)
	assert.Equal(t, int64(1), stored.Version)
}

func TestService_NotFoundAndConflict(t *testing.T) {
	ctx := context.Background()
	_, err := newTestService(NewMemoryRepo(), nil).SubmitForReview(ctx, lead, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	repo := &flakyRepo{MemoryRepo: NewMemoryRepo(), failAt: 1, err: ErrConflict}
	svc := newTestService(repo, nil)
	sv, err := svc.Create(ctx, lead, validInput())
	require.NoError(t, err)
	_, err = svc.SubmitForReview(ctx, lead, sv.ID)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestService_ConcurrentSubmitsSerialize(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(NewMemoryRepo(), nil)
	sv, err := svc.Create(ctx, lead, validInput())
	require.NoError(t, err)

	const workers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.SubmitForReview(ctx, lead, sv.ID)
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, ErrInvalidTransition)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	stored, err := svc.Get(ctx, lead, sv.ID)
	require.NoError(t, err)
	assert.Len(t, stored.AuditTrail, 2)
}

func TestService_ConcurrentFillsAllRecorded(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(NewMemoryRepo(), &fakeNotifier{}, WithLocker(locking.NewKeyedMutex(0)))
	sv := publishedSurvey(t, svc)
	before := len(sv.AuditTrail)

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			answers := map[string]string{"Q1": fmt.Sprintf("a%d", i), "Q2": fmt.Sprintf("a%d", i)}
			_, err := svc.FillResponses(ctx, customer, sv.ID, answers)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	stored, err := svc.Get(ctx, customer, sv.ID)
	require.NoError(t, err)
	assert.Len(t, stored.AuditTrail, before+workers)
	assert.Equal(t, int64(before+workers), stored.Version)
	// Each call merges atomically, so both answers come from the same writer.
	assert.Equal(t, stored.Responses["Q1"], stored.Responses["Q2"])
}

func TestService_CustomerVisibility(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(NewMemoryRepo(), nil)
	sv, err := svc.Create(ctx, lead, validInput())
	require.NoError(t, err)
	other := validInput()
	other.OwnerCustomerID = "C2"
	_, err = svc.Create(ctx, lead, other)
	require.NoError(t, err)

	_, err = svc.Get(ctx, stranger, sv.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.Get(ctx, Actor{ID: "x"}, sv.ID)
	assert.ErrorIs(t, err, ErrPermission)

	snap, err := svc.Snapshot(ctx, customer, sv.ID)
	require.NoError(t, err)
	assert.Equal(t, sv.ID, snap.ID)

	mine, err := svc.List(ctx, customer, ListFilter{})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "C1", mine[0].OwnerCustomerID)

	_, err = svc.List(ctx, Actor{Role: rbac.RoleCustomer}, ListFilter{})
	assert.ErrorIs(t, err, ErrPermission)

	all, err := svc.List(ctx, lead, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	drafts, err := svc.List(ctx, coe, ListFilter{Status: StatusDraft, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, drafts, 1)
}

func TestService_AuditMirror(t *testing.T) {
	auditRepo := audit.NewMemoryRepo()
	svc := newTestService(NewMemoryRepo(), &fakeNotifier{}, WithAuditSink(AuditAdapter{Audit: audit.NewService(auditRepo)}))

	sv := publishedSurvey(t, svc)
	events := auditRepo.ForSurvey(sv.ID)
	require.Len(t, events, len(sv.AuditTrail))

	for i, rec := range sv.AuditTrail {
		assert.Equal(t, string(rec.Action), events[i].Action)
	}
	assert.Equal(t, audit.EventTypeSurveyAction, events[0].Type)
	assert.Equal(t, audit.EventTypeNotification, events[len(events)-1].Type)
	assert.Equal(t, "approved", events[2].ToStatus)
}

type failingSink struct{}

func (failingSink) RecordSurveyAction(context.Context, string, AuditRecord) error {
	return errors.New("audit down")
}

func TestService_AuditSinkFailureIsIgnored(t *testing.T) {
	svc := newTestService(NewMemoryRepo(), nil, WithAuditSink(failingSink{}))
	_, err := svc.Create(context.Background(), lead, validInput())
	assert.NoError(t, err)
}

func TestService_LockBusy(t *testing.T) {
	ctx := context.Background()
	locker := locking.NewKeyedMutex(10 * time.Millisecond)
	svc := newTestService(NewMemoryRepo(), nil, WithLocker(locker))
	sv, err := svc.Create(ctx, lead, validInput())
	require.NoError(t, err)

	unlock, err := locker.Lock(ctx, lockKey(sv.ID))
	require.NoError(t, err)
	defer unlock()

	_, err = svc.SubmitForReview(ctx, lead, sv.ID)
	assert.ErrorIs(t, err, locking.ErrBusy)
}
