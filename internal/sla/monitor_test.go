package sla

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/dispute-service/internal/config"
	"github.com/spec-kit/dispute-service/internal/domain"
)

// fakeStore implements Store with a mutex standing in for the row lock, and
// the same duplicate-entry semantics the real timeline index enforces.
type fakeStore struct {
	mu       sync.Mutex
	disputes map[string]*domain.Dispute
	entries  []domain.TimelineEntry
	audits   []domain.AuditLog
}

func newFakeStore(disputes ...*domain.Dispute) *fakeStore {
	s := &fakeStore{disputes: map[string]*domain.Dispute{}}
	for _, d := range disputes {
		s.disputes[d.ID] = d
	}
	return s
}

func (s *fakeStore) ListOverdue(ctx context.Context, now time.Time) ([]domain.Dispute, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Dispute
	for _, d := range s.disputes {
		if d.SLADeadline != nil && d.SLADeadline.Before(now) && isActive(d.State) {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (s *fakeStore) ListApproaching(ctx context.Context, now time.Time, window time.Duration) ([]domain.Dispute, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Dispute
	for _, d := range s.disputes {
		if d.SLADeadline == nil {
			continue
		}
		if d.SLADeadline.After(now) && d.SLADeadline.Sub(now) <= window && isNotifiable(d.State) {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (s *fakeStore) ListStale(ctx context.Context, cutoff time.Time) ([]domain.Dispute, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Dispute
	for _, d := range s.disputes {
		if d.UpdatedAt.Before(cutoff) && isActive(d.State) {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (s *fakeStore) WithDisputeLock(ctx context.Context, disputeID string, fn func(ctx context.Context, tx DisputeTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.disputes[disputeID]
	if !ok {
		return errors.New("dispute not found")
	}
	copied := *d
	tx := &fakeTx{store: s, dispute: &copied}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	// Commit: apply staged writes.
	s.disputes[disputeID] = tx.dispute
	s.entries = append(s.entries, tx.stagedEntries...)
	s.audits = append(s.audits, tx.stagedAudits...)
	return nil
}

func (s *fakeStore) entriesOf(disputeID string, entryType domain.TimelineType) []domain.TimelineEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.TimelineEntry
	for _, e := range s.entries {
		if e.DisputeID == disputeID && e.Type == entryType {
			out = append(out, e)
		}
	}
	return out
}

type fakeTx struct {
	store         *fakeStore
	dispute       *domain.Dispute
	stagedEntries []domain.TimelineEntry
	stagedAudits  []domain.AuditLog
}

func (t *fakeTx) Dispute() *domain.Dispute { return t.dispute }

func (t *fakeTx) HasProcessedEntry(ctx context.Context, entryType domain.TimelineType, reason string) (bool, error) {
	for _, e := range t.store.entries {
		if e.DisputeID == t.dispute.ID && e.Type == entryType &&
			e.Payload["status"] == domain.StatusProcessed && e.Payload["reason"] == reason {
			return true, nil
		}
	}
	return false, nil
}

func (t *fakeTx) UpdateDispute(ctx context.Context, d *domain.Dispute) error {
	t.dispute = d
	return nil
}

func (t *fakeTx) AppendTimeline(ctx context.Context, e *domain.TimelineEntry) error {
	for _, existing := range t.store.entries {
		if existing.ContentHash == e.ContentHash && existing.DisputeID == e.DisputeID && existing.Type == e.Type {
			return domain.ErrDuplicateTimelineEntry
		}
	}
	t.stagedEntries = append(t.stagedEntries, *e)
	return nil
}

func (t *fakeTx) AppendAudit(ctx context.Context, a *domain.AuditLog) error {
	t.stagedAudits = append(t.stagedAudits, *a)
	return nil
}

type recordingEnqueuer struct {
	mu       sync.Mutex
	jobs     []string
	payloads []map[string]any
}

func (r *recordingEnqueuer) Enqueue(ctx context.Context, queueName string, payload map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, queueName)
	r.payloads = append(r.payloads, payload)
	return nil
}

func (r *recordingEnqueuer) payloadFor(queueName string) map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, name := range r.jobs {
		if name == queueName {
			return r.payloads[i]
		}
	}
	return nil
}

func overdueDispute(id string, deadline time.Time) *domain.Dispute {
	agent := "agent-1"
	return &domain.Dispute{
		ID:              id,
		UserID:          "user-1",
		Category:        domain.CategoryWrongAmount,
		Amount:          "120.00",
		State:           domain.StateInvestigating,
		Priority:        domain.PriorityMedium,
		AssignedAgentID: &agent,
		SLADeadline:     &deadline,
		CreatedAt:       deadline.Add(-24 * time.Hour),
		UpdatedAt:       deadline.Add(-24 * time.Hour),
	}
}

func testMonitor(store Store, jobs Enqueuer, now time.Time) *Monitor {
	return NewMonitor(store, jobs, slaConfig(false), config.ScoringConfig{
		PriorityCritical: 85, PriorityHigh: 65, PriorityMedium: 35,
	}, zap.NewNop(), func() time.Time { return now })
}

func TestRunOnce_EscalatesOverdueExactlyOnce(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	store := newFakeStore(overdueDispute("d1", now.Add(-time.Hour)))
	jobs := &recordingEnqueuer{}
	m := testMonitor(store, jobs, now)

	require.NoError(t, m.RunOnce(context.Background()))

	d := store.disputes["d1"]
	assert.Equal(t, domain.StateEscalated, d.State)
	assert.Equal(t, 1, d.EscalationLevel)
	assert.Nil(t, d.AssignedAgentID)
	require.Len(t, store.entriesOf("d1", domain.TimelineSLAViolation), 1)
	assert.Contains(t, jobs.jobs, "assignment")
	assert.Contains(t, jobs.jobs, "notification")
	// The notice carries the filer so delivery can actually address someone.
	notice := jobs.payloadFor("notification")
	require.NotNil(t, notice)
	assert.Equal(t, "user-1", notice["user_id"])
	assert.Equal(t, ReasonSLAViolation, notice["kind"])

	// Second sweep finds the dispute already escalated and recorded; nothing
	// more is written.
	require.NoError(t, m.RunOnce(context.Background()))
	assert.Equal(t, 1, store.disputes["d1"].EscalationLevel)
	assert.Len(t, store.entriesOf("d1", domain.TimelineSLAViolation), 1)
}

func TestRunOnce_ConcurrentSweepsEscalateOnce(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	store := newFakeStore(overdueDispute("d1", now.Add(-time.Hour)))
	jobs := &recordingEnqueuer{}
	m := testMonitor(store, jobs, now)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.RunOnce(context.Background())
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, store.disputes["d1"].EscalationLevel)
	assert.Len(t, store.entriesOf("d1", domain.TimelineSLAViolation), 1)
}

func TestRunOnce_CapHoldsState(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	d := overdueDispute("d1", now.Add(-time.Hour))
	d.State = domain.StateEscalated
	d.EscalationLevel = 3 // at the configured cap
	store := newFakeStore(d)
	jobs := &recordingEnqueuer{}
	m := testMonitor(store, jobs, now)

	require.NoError(t, m.RunOnce(context.Background()))

	assert.Equal(t, domain.StateEscalated, store.disputes["d1"].State)
	assert.Equal(t, 3, store.disputes["d1"].EscalationLevel)
	assert.Empty(t, store.entriesOf("d1", domain.TimelineSLAViolation))
	assert.Empty(t, jobs.jobs)
}

func TestRunOnce_EscalatedBecomesCritical(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	d := overdueDispute("d1", now.Add(-time.Hour))
	d.State = domain.StateEscalated
	d.EscalationLevel = 1
	store := newFakeStore(d)
	m := testMonitor(store, &recordingEnqueuer{}, now)

	require.NoError(t, m.RunOnce(context.Background()))

	assert.Equal(t, domain.StateCriticalEscalation, store.disputes["d1"].State)
	assert.Equal(t, 2, store.disputes["d1"].EscalationLevel)
}

func TestRunOnce_SkipsResolvedUnderLock(t *testing.T) {
	// The dispute looks overdue in the sweep query but resolves before the
	// lock is taken; nothing must change.
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	d := overdueDispute("d1", now.Add(-time.Hour))
	store := newFakeStore(d)
	m := testMonitor(store, &recordingEnqueuer{}, now)

	overdue, err := store.ListOverdue(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, overdue, 1)

	store.disputes["d1"].State = domain.StateResolved
	require.NoError(t, m.escalateOverdue(context.Background(), "d1"))
	assert.Equal(t, domain.StateResolved, store.disputes["d1"].State)
	assert.Empty(t, store.entriesOf("d1", domain.TimelineSLAViolation))
}

func TestRunOnce_ApproachingNotifiesOnce(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	d := overdueDispute("d1", now.Add(time.Hour))
	d.State = domain.StateOpen
	store := newFakeStore(d)
	jobs := &recordingEnqueuer{}
	m := testMonitor(store, jobs, now)

	require.NoError(t, m.RunOnce(context.Background()))
	require.NoError(t, m.RunOnce(context.Background()))

	assert.Len(t, store.entriesOf("d1", domain.TimelineNotification), 1)
	assert.Equal(t, []string{"notification"}, jobs.jobs)
	notice := jobs.payloadFor("notification")
	require.NotNil(t, notice)
	assert.Equal(t, "user-1", notice["user_id"])
	assert.Equal(t, ReasonSLAApproaching, notice["kind"])
	// The notice never mutates the dispute itself.
	assert.Equal(t, domain.StateOpen, store.disputes["d1"].State)
	assert.Equal(t, 0, store.disputes["d1"].EscalationLevel)
}

func TestRunOnce_EscalatedGetsNoApproachingNotice(t *testing.T) {
	// An escalated dispute inside the warning window is already being handled;
	// only open and investigating disputes get the approaching notice.
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	d := overdueDispute("d1", now.Add(time.Hour))
	d.State = domain.StateEscalated
	d.EscalationLevel = 1
	store := newFakeStore(d)
	jobs := &recordingEnqueuer{}
	m := testMonitor(store, jobs, now)

	require.NoError(t, m.RunOnce(context.Background()))

	assert.Empty(t, store.entriesOf("d1", domain.TimelineNotification))
	assert.Empty(t, jobs.jobs)

	// Even if the sweep query were stale, the state re-check under the lock
	// still refuses the notice.
	require.NoError(t, m.notifyApproaching(context.Background(), "d1"))
	assert.Empty(t, store.entriesOf("d1", domain.TimelineNotification))
}

func TestRunStaleCheck(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	d := overdueDispute("d1", now.Add(48*time.Hour))
	d.State = domain.StateOpen
	d.UpdatedAt = now.AddDate(0, 0, -10)
	fresh := overdueDispute("d2", now.Add(48*time.Hour))
	fresh.State = domain.StateOpen
	fresh.UpdatedAt = now.Add(-time.Hour)
	store := newFakeStore(d, fresh)
	m := testMonitor(store, &recordingEnqueuer{}, now)

	require.NoError(t, m.RunStaleCheck(context.Background()))

	assert.Equal(t, domain.StateEscalated, store.disputes["d1"].State)
	require.Len(t, store.entriesOf("d1", domain.TimelineEscalation), 1)
	assert.Equal(t, ReasonStaleDispute, store.entriesOf("d1", domain.TimelineEscalation)[0].Payload["reason"])

	assert.Equal(t, domain.StateOpen, store.disputes["d2"].State)

	// Re-running is a no-op.
	require.NoError(t, m.RunStaleCheck(context.Background()))
	assert.Equal(t, 1, store.disputes["d1"].EscalationLevel)
}
