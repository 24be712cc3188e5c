package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/dispute-service/internal/config"
	"github.com/spec-kit/dispute-service/internal/domain"
	"github.com/spec-kit/dispute-service/internal/events"
	"github.com/spec-kit/dispute-service/internal/lifecycle"
	"github.com/spec-kit/dispute-service/internal/queue"
	"github.com/spec-kit/dispute-service/internal/repository"
	"github.com/spec-kit/dispute-service/internal/resolution"
	"github.com/spec-kit/dispute-service/internal/sla"
	apperrors "github.com/spec-kit/dispute-service/pkg/util"
)

// AutoResolutionService drives the evaluator against open disputes. The
// evaluator itself is pure; this service owns locking, persistence, and
// follow-up jobs.
type AutoResolutionService struct {
	store      DisputeLocker
	evidence   repository.EvidenceRepository
	dispatcher events.Dispatcher
	jobs       *queue.Queue
	cfg        config.AutoResolutionConfig
	logger     *zap.Logger
}

// NewAutoResolutionService constructs the service.
func NewAutoResolutionService(store DisputeLocker, evidence repository.EvidenceRepository, dispatcher events.Dispatcher, jobs *queue.Queue, cfg config.AutoResolutionConfig, logger *zap.Logger) *AutoResolutionService {
	return &AutoResolutionService{
		store:      store,
		evidence:   evidence,
		dispatcher: dispatcher,
		jobs:       jobs,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run evaluates one dispute under a row lock. An ineligible outcome records
// the reason on the timeline and leaves the dispute open for an agent; only
// an eligible decision moves the state. Reruns are harmless: a non-open
// dispute is skipped and duplicate timeline entries collapse.
func (s *AutoResolutionService) Run(ctx context.Context, disputeID string) error {
	evidence, err := s.evidence.ListByDispute(ctx, disputeID)
	if err != nil {
		return err
	}

	var (
		resolved domain.Dispute
		decision resolution.Decision
		applied  bool
	)
	err = s.store.WithDisputeLock(ctx, disputeID, func(ctx context.Context, tx sla.DisputeTx) error {
		dispute := tx.Dispute()
		if dispute.State != domain.StateOpen {
			s.logger.Debug("auto-resolution skipped",
				zap.String("dispute_id", disputeID),
				zap.String("state", string(dispute.State)))
			return nil
		}

		decision = resolution.Evaluate(dispute, evidence, s.cfg)
		if !decision.Eligible {
			entry := domain.NewTimelineEntry(dispute.ID, domain.TimelineAutoResolution, domain.ActorSystem, nil, map[string]any{
				"status":   domain.StatusProcessed,
				"reason":   decision.Reason,
				"eligible": false,
			})
			if err := tx.AppendTimeline(ctx, entry); err != nil && !errors.Is(err, domain.ErrDuplicateTimelineEntry) {
				return err
			}
			return nil
		}

		state, _, err := lifecycle.Apply(dispute.State, lifecycle.EventBeginAutoResolve, lifecycle.Context{})
		if err != nil {
			return err
		}
		state, _, err = lifecycle.Apply(state, lifecycle.EventFinishAutoResolve, lifecycle.Context{})
		if err != nil {
			return err
		}

		now := time.Now()
		outcome := decision.Outcome
		details := decision.Details
		refund := decision.RefundAmountMinor
		dispute.State = state
		dispute.Outcome = &outcome
		dispute.OutcomeDetails = &details
		dispute.ResolvedAt = &now
		if refund > 0 {
			dispute.RefundAmount = &refund
		}
		if err := tx.UpdateDispute(ctx, dispute); err != nil {
			return err
		}

		entry := domain.NewTimelineEntry(dispute.ID, domain.TimelineAutoResolution, domain.ActorSystem, nil, map[string]any{
			"status":        domain.StatusProcessed,
			"reason":        decision.Reason,
			"eligible":      true,
			"outcome":       decision.Outcome,
			"refund_amount": decision.RefundAmountMinor,
		})
		if err := tx.AppendTimeline(ctx, entry); err != nil && !errors.Is(err, domain.ErrDuplicateTimelineEntry) {
			return err
		}
		if err := tx.AppendAudit(ctx, &domain.AuditLog{
			DisputeID: &dispute.ID,
			Action:    domain.AuditDisputeResolved,
			ActorType: domain.ActorSystem,
			Details: map[string]any{
				"reason":  decision.Reason,
				"outcome": decision.Outcome,
			},
		}); err != nil {
			return err
		}

		resolved = *dispute
		applied = true
		return nil
	})
	if err != nil {
		return err
	}
	if !applied {
		// A stored amount that no longer parses means the row was corrupted
		// after validation; the manual-review entry is committed, but the
		// caller should know the data is bad rather than treat it as a
		// routine ineligibility.
		if decision.Reason == resolution.ReasonInvalidAmountFormat {
			return apperrors.NewIntegrityError("stored dispute amount does not parse", map[string]any{"dispute_id": disputeID})
		}
		return nil
	}

	if s.dispatcher != nil {
		_ = s.dispatcher.Publish(ctx, events.Event{
			ID:        uuid.NewString(),
			Type:      events.EventDisputeResolved,
			DisputeID: resolved.ID,
			UserID:    resolved.UserID,
			Actor:     systemActor(),
			Timestamp: time.Now(),
			Payload: events.ResolvedPayload{
				Outcome:      decision.Outcome,
				RefundAmount: resolved.RefundAmount,
				AutoResolved: true,
			},
		})
	}
	if s.jobs != nil {
		if resolved.RefundAmount != nil {
			if _, err := s.jobs.Enqueue(ctx, queue.QueueRefund, map[string]any{"dispute_id": resolved.ID}); err != nil {
				s.logger.Error("enqueue refund", zap.String("dispute_id", resolved.ID), zap.Error(err))
			}
		}
		if _, err := s.jobs.Enqueue(ctx, queue.QueueNotification, map[string]any{"dispute_id": resolved.ID, "user_id": resolved.UserID, "kind": "auto_resolved"}); err != nil {
			s.logger.Error("enqueue notification", zap.String("dispute_id", resolved.ID), zap.Error(err))
		}
	}
	return nil
}
