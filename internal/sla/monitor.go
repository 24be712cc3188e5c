package sla

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/dispute-service/internal/config"
	"github.com/spec-kit/dispute-service/internal/domain"
	"github.com/spec-kit/dispute-service/internal/lifecycle"
	"github.com/spec-kit/dispute-service/internal/money"
	"github.com/spec-kit/dispute-service/internal/scoring"
)

// Reasons written into timeline payloads; together with the processed marker
// they form the monitor's idempotency checks.
const (
	ReasonSLAViolation   = "sla_violation"
	ReasonSLAApproaching = "sla_approaching"
	ReasonStaleDispute   = "stale_dispute"
)

// ErrAlreadyRecorded signals a duplicate timeline insert detected inside a
// transaction. The monitor treats it as a benign no-op.
var ErrAlreadyRecorded = domain.ErrDuplicateTimelineEntry

// DisputeTx is the transaction-scoped view the store hands to the monitor's
// check-then-act callback. The dispute row is locked for the callback's
// duration.
type DisputeTx interface {
	Dispute() *domain.Dispute
	HasProcessedEntry(ctx context.Context, entryType domain.TimelineType, reason string) (bool, error)
	UpdateDispute(ctx context.Context, d *domain.Dispute) error
	AppendTimeline(ctx context.Context, e *domain.TimelineEntry) error
	AppendAudit(ctx context.Context, a *domain.AuditLog) error
}

// Store abstracts the persistence the monitor needs. The pgx implementation
// takes a row-level write lock and re-reads the dispute before invoking fn;
// returning an error (including ErrAlreadyRecorded) rolls the transaction
// back.
type Store interface {
	ListOverdue(ctx context.Context, now time.Time) ([]domain.Dispute, error)
	ListApproaching(ctx context.Context, now time.Time, window time.Duration) ([]domain.Dispute, error)
	ListStale(ctx context.Context, cutoff time.Time) ([]domain.Dispute, error)
	WithDisputeLock(ctx context.Context, disputeID string, fn func(ctx context.Context, tx DisputeTx) error) error
}

// Enqueuer enqueues follow-up jobs. Called only after a successful commit.
type Enqueuer interface {
	Enqueue(ctx context.Context, queueName string, payload map[string]any) error
}

// Monitor finds disputes past or near their deadline and escalates or alerts
// exactly once per violation.
type Monitor struct {
	store   Store
	jobs    Enqueuer
	sla     config.SLAConfig
	scoring config.ScoringConfig
	logger  *zap.Logger
	now     func() time.Time
}

// NewMonitor constructs the monitor. now is overridable for tests; pass nil
// for wall-clock time.
func NewMonitor(store Store, jobs Enqueuer, sla config.SLAConfig, sc config.ScoringConfig, logger *zap.Logger, now func() time.Time) *Monitor {
	if now == nil {
		now = time.Now
	}
	return &Monitor{store: store, jobs: jobs, sla: sla, scoring: sc, logger: logger, now: now}
}

// RunOnce performs one sweep: escalate everything overdue, then notify
// everything approaching its deadline. Errors on individual disputes are
// logged and do not stop the sweep; the first error is returned so the job
// framework can retry.
func (m *Monitor) RunOnce(ctx context.Context) error {
	now := m.now()
	var firstErr error

	overdue, err := m.store.ListOverdue(ctx, now)
	if err != nil {
		return err
	}
	for i := range overdue {
		if err := m.escalateOverdue(ctx, overdue[i].ID); err != nil {
			m.logger.Error("sla escalation failed", zap.String("dispute_id", overdue[i].ID), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	approaching, err := m.store.ListApproaching(ctx, now, m.sla.ApproachingWindow())
	if err != nil {
		if firstErr == nil {
			firstErr = err
		}
		return firstErr
	}
	for i := range approaching {
		if err := m.notifyApproaching(ctx, approaching[i].ID); err != nil {
			m.logger.Error("sla approaching notice failed", zap.String("dispute_id", approaching[i].ID), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// RunStaleCheck escalates disputes unmodified for the configured stale window
// using the same lock-check-mutate-commit path, tagged stale_dispute.
func (m *Monitor) RunStaleCheck(ctx context.Context) error {
	cutoff := m.now().AddDate(0, 0, -m.sla.StaleAfterDays)
	stale, err := m.store.ListStale(ctx, cutoff)
	if err != nil {
		return err
	}
	var firstErr error
	for i := range stale {
		if err := m.escalate(ctx, stale[i].ID, ReasonStaleDispute, domain.TimelineEscalation); err != nil {
			m.logger.Error("stale escalation failed", zap.String("dispute_id", stale[i].ID), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (m *Monitor) escalateOverdue(ctx context.Context, disputeID string) error {
	return m.escalate(ctx, disputeID, ReasonSLAViolation, domain.TimelineSLAViolation)
}

// escalate runs the lock-check-mutate-commit sequence for one dispute. Side
// effects (re-assignment, alert) are enqueued only after the transaction
// committed.
func (m *Monitor) escalate(ctx context.Context, disputeID, reason string, entryType domain.TimelineType) error {
	var committed bool
	var capHeld bool
	var userID string

	err := m.store.WithDisputeLock(ctx, disputeID, func(ctx context.Context, tx DisputeTx) error {
		d := tx.Dispute()
		userID = d.UserID

		// Re-check state under the lock; the dispute may have moved on.
		if !isActive(d.State) {
			return nil
		}
		if reason == ReasonSLAViolation && (d.SLADeadline == nil || !d.SLADeadline.Before(m.now())) {
			return nil
		}

		done, err := tx.HasProcessedEntry(ctx, entryType, reason)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		target, actions, err := lifecycle.Apply(d.State, lifecycle.EventEscalate, lifecycle.Context{
			EscalationLevel: d.EscalationLevel,
			EscalationCap:   m.sla.EscalationCap,
		})
		if err != nil {
			if errors.Is(err, lifecycle.ErrEscalationCapReached) {
				// At the cap the monitor holds state rather than erroring.
				capHeld = true
				return nil
			}
			return err
		}

		previous := d.State
		d.State = target
		escalationReason := reason
		d.EscalationReason = &escalationReason
		for _, action := range actions {
			switch action {
			case lifecycle.ActionIncrementEscalation:
				d.EscalationLevel++
			case lifecycle.ActionClearAssignee:
				d.AssignedAgentID = nil
			case lifecycle.ActionComputePriority:
				m.recomputePriority(d)
			}
		}

		if err := tx.UpdateDispute(ctx, d); err != nil {
			return err
		}

		entry := domain.NewTimelineEntry(d.ID, entryType, domain.ActorSystem, nil, map[string]any{
			"reason":           reason,
			"status":           domain.StatusProcessed,
			"previous_state":   string(previous),
			"new_state":        string(target),
			"escalation_level": d.EscalationLevel,
		})
		if err := tx.AppendTimeline(ctx, entry); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, &domain.AuditLog{
			DisputeID: &d.ID,
			Action:    domain.AuditDisputeEscalated,
			ActorType: domain.ActorSystem,
			Details:   map[string]any{"reason": reason, "escalation_level": d.EscalationLevel},
		})
	})
	if err != nil {
		// A concurrent invocation won the race; the work is already done.
		if errors.Is(err, ErrAlreadyRecorded) {
			return nil
		}
		return err
	}
	committed = true

	if capHeld {
		m.logger.Warn("dispute at escalation cap; holding state",
			zap.String("dispute_id", disputeID), zap.String("reason", reason))
		return nil
	}

	// Post-commit side effects are best effort: a failed enqueue never rolls
	// back the committed state change.
	if committed && m.jobs != nil {
		if err := m.jobs.Enqueue(ctx, "assignment", map[string]any{"dispute_id": disputeID}); err != nil {
			m.logger.Error("enqueue assignment after escalation failed", zap.String("dispute_id", disputeID), zap.Error(err))
		}
		if err := m.jobs.Enqueue(ctx, "notification", map[string]any{
			"dispute_id": disputeID,
			"user_id":    userID,
			"kind":       reason,
		}); err != nil {
			m.logger.Error("enqueue notification after escalation failed", zap.String("dispute_id", disputeID), zap.Error(err))
		}
	}
	return nil
}

// notifyApproaching records a single "deadline approaching" notice per
// dispute deadline using the same transactional guard.
func (m *Monitor) notifyApproaching(ctx context.Context, disputeID string) error {
	var notified bool
	var userID string
	err := m.store.WithDisputeLock(ctx, disputeID, func(ctx context.Context, tx DisputeTx) error {
		d := tx.Dispute()
		userID = d.UserID
		if !isNotifiable(d.State) {
			return nil
		}
		done, err := tx.HasProcessedEntry(ctx, domain.TimelineNotification, ReasonSLAApproaching)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		entry := domain.NewTimelineEntry(d.ID, domain.TimelineNotification, domain.ActorSystem, nil, map[string]any{
			"reason":   ReasonSLAApproaching,
			"status":   domain.StatusProcessed,
			"deadline": deadlineString(d.SLADeadline),
		})
		if err := tx.AppendTimeline(ctx, entry); err != nil {
			return err
		}
		notified = true
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyRecorded) {
			return nil
		}
		return err
	}
	if notified && m.jobs != nil {
		if err := m.jobs.Enqueue(ctx, "notification", map[string]any{
			"dispute_id": disputeID,
			"user_id":    userID,
			"kind":       ReasonSLAApproaching,
		}); err != nil {
			m.logger.Error("enqueue approaching notice failed", zap.String("dispute_id", disputeID), zap.Error(err))
		}
	}
	return nil
}

func (m *Monitor) recomputePriority(d *domain.Dispute) {
	amountMinor, err := money.ParseMinorUnits(d.Amount)
	if err != nil {
		amountMinor = 0
	}
	score := scoring.PriorityScore(scoring.PriorityInput{
		Category:        d.Category,
		FraudScore:      d.FraudScore,
		AmountMinor:     amountMinor,
		AgeHours:        m.now().Sub(d.CreatedAt).Hours(),
		EscalationLevel: d.EscalationLevel,
	})
	d.Priority = scoring.ClassifyPriority(score, m.scoring)
}

func isActive(s domain.DisputeState) bool {
	for _, a := range domain.ActiveStates {
		if s == a {
			return true
		}
	}
	return false
}

func isNotifiable(s domain.DisputeState) bool {
	for _, a := range domain.NotifiableStates {
		if s == a {
			return true
		}
	}
	return false
}

func deadlineString(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
