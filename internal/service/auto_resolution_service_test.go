package service

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/dispute-service/internal/config"
	"github.com/spec-kit/dispute-service/internal/domain"
	"github.com/spec-kit/dispute-service/internal/resolution"
	apperrors "github.com/spec-kit/dispute-service/pkg/util"
)

type fakeEvidenceRepo struct {
	byDispute map[string][]domain.Evidence
}

func (r *fakeEvidenceRepo) Create(ctx context.Context, evidence *domain.Evidence) error { return nil }
func (r *fakeEvidenceRepo) Update(ctx context.Context, evidence *domain.Evidence) error { return nil }
func (r *fakeEvidenceRepo) GetByID(ctx context.Context, id string) (*domain.Evidence, error) {
	return nil, pgx.ErrNoRows
}
func (r *fakeEvidenceRepo) ListByDispute(ctx context.Context, disputeID string) ([]domain.Evidence, error) {
	return r.byDispute[disputeID], nil
}
func (r *fakeEvidenceRepo) DeleteByDisputeIDs(ctx context.Context, ids []string) (int64, error) {
	return 0, nil
}

func newAutoResolutionFixture(t *testing.T) (*AutoResolutionService, *fakeLocker) {
	t.Helper()
	disputes := newFakeDisputeRepo()
	timeline := &fakeTimelineRepo{}
	locker := &fakeLocker{disputes: disputes, timeline: timeline, audits: &fakeAuditRepo{}}
	cfg := config.AutoResolutionConfig{
		MaxFraudScore:           40,
		StrictFraudScore:        20,
		LowFraudScore:           10,
		SmallAmountCeilingMinor: 2000,
	}
	svc := NewAutoResolutionService(locker, &fakeEvidenceRepo{byDispute: map[string][]domain.Evidence{}}, nil, nil, cfg, zap.NewNop())
	return svc, locker
}

func TestAutoResolutionRun_CorruptAmountIsIntegrityViolation(t *testing.T) {
	svc, locker := newAutoResolutionFixture(t)
	locker.disputes.disputes["dsp-1"] = &domain.Dispute{
		ID:            "dsp-1",
		UserID:        "user-1",
		TransactionID: "txn-1",
		Category:      domain.CategoryDuplicateCharge,
		Amount:        "not-a-number",
		State:         domain.StateOpen,
		CreatedAt:     time.Now(),
	}

	err := svc.Run(context.Background(), "dsp-1")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "INTEGRITY_VIOLATION"))

	// The dispute is parked for an agent, with the reason on record.
	stored := locker.disputes.disputes["dsp-1"]
	assert.Equal(t, domain.StateOpen, stored.State)
	entries := locker.timeline.ofType("dsp-1", domain.TimelineAutoResolution)
	require.Len(t, entries, 1)
	assert.Equal(t, resolution.ReasonInvalidAmountFormat, entries[0].Payload["reason"])
	assert.Equal(t, false, entries[0].Payload["eligible"])

	// A rerun reports the same corruption without duplicating the record.
	err = svc.Run(context.Background(), "dsp-1")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "INTEGRITY_VIOLATION"))
	assert.Len(t, locker.timeline.ofType("dsp-1", domain.TimelineAutoResolution), 1)
}

func TestAutoResolutionRun_SkipsNonOpenDisputes(t *testing.T) {
	svc, locker := newAutoResolutionFixture(t)
	locker.disputes.disputes["dsp-1"] = &domain.Dispute{
		ID:            "dsp-1",
		UserID:        "user-1",
		TransactionID: "txn-1",
		Category:      domain.CategoryDuplicateCharge,
		Amount:        "not-a-number",
		State:         domain.StateInvestigating,
		CreatedAt:     time.Now(),
	}

	require.NoError(t, svc.Run(context.Background(), "dsp-1"))
	assert.Empty(t, locker.timeline.ofType("dsp-1", domain.TimelineAutoResolution))
}
