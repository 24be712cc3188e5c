package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/dispute-service/internal/domain"
	"github.com/spec-kit/dispute-service/internal/sla"
)

// sweepBatchSize bounds how many disputes a single monitor sweep picks up.
const sweepBatchSize = 200

// DisputeStore is the transactional facade the SLA monitor and background
// workers mutate disputes through. Every mutation runs under a row-level
// write lock so concurrent sweeps serialize per dispute.
type DisputeStore struct {
	pool     *pgxpool.Pool
	disputes DisputeRepository
	timeline TimelineRepository
	audits   AuditRepository
}

// NewDisputeStore instantiates the store.
func NewDisputeStore(pool *pgxpool.Pool, disputes DisputeRepository, timeline TimelineRepository, audits AuditRepository) *DisputeStore {
	return &DisputeStore{pool: pool, disputes: disputes, timeline: timeline, audits: audits}
}

func (s *DisputeStore) ListOverdue(ctx context.Context, now time.Time) ([]domain.Dispute, error) {
	return s.disputes.ListOverdue(ctx, now, sweepBatchSize)
}

func (s *DisputeStore) ListApproaching(ctx context.Context, now time.Time, window time.Duration) ([]domain.Dispute, error) {
	return s.disputes.ListApproaching(ctx, now, window, sweepBatchSize)
}

func (s *DisputeStore) ListStale(ctx context.Context, cutoff time.Time) ([]domain.Dispute, error) {
	return s.disputes.ListStale(ctx, cutoff, sweepBatchSize)
}

// WithDisputeLock opens a transaction, locks and re-reads the dispute row,
// and hands a transaction-scoped view to fn. The transaction commits only
// when fn returns nil; any error rolls everything back.
func (s *DisputeStore) WithDisputeLock(ctx context.Context, disputeID string, fn func(ctx context.Context, tx sla.DisputeTx) error) error {
	txn, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer txn.Rollback(ctx)

	query := `SELECT ` + disputeColumns + ` FROM disputes WHERE id=$1 FOR UPDATE`
	dispute, err := fetchDispute(ctx, txn, query, disputeID)
	if err != nil {
		return err
	}

	view := &disputeTxView{tx: txn, store: s, dispute: dispute}
	if err := fn(ctx, view); err != nil {
		return err
	}
	return txn.Commit(ctx)
}

type disputeTxView struct {
	tx      pgx.Tx
	store   *DisputeStore
	dispute *domain.Dispute
}

func (v *disputeTxView) Dispute() *domain.Dispute {
	return v.dispute
}

func (v *disputeTxView) HasProcessedEntry(ctx context.Context, entryType domain.TimelineType, reason string) (bool, error) {
	return v.store.timeline.HasProcessedEntry(ctx, v.tx, v.dispute.ID, entryType, reason)
}

func (v *disputeTxView) UpdateDispute(ctx context.Context, d *domain.Dispute) error {
	return v.store.disputes.Update(ctx, v.tx, d)
}

func (v *disputeTxView) AppendTimeline(ctx context.Context, e *domain.TimelineEntry) error {
	return v.store.timeline.Append(ctx, v.tx, e)
}

func (v *disputeTxView) AppendAudit(ctx context.Context, a *domain.AuditLog) error {
	return v.store.audits.Append(ctx, v.tx, a)
}
