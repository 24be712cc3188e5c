package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/dispute-service/internal/domain"
	"github.com/spec-kit/dispute-service/internal/events"
	"github.com/spec-kit/dispute-service/internal/external"
	"github.com/spec-kit/dispute-service/internal/queue"
	"github.com/spec-kit/dispute-service/internal/sla"
	apperrors "github.com/spec-kit/dispute-service/pkg/util"
)

// RefundService executes refunds decided during resolution. Exactly-once is
// enforced two ways: the stored refund transaction id and the processed
// refund timeline entry both make a retried job a no-op.
type RefundService struct {
	store      DisputeLocker
	gateway    external.RefundGateway
	dispatcher events.Dispatcher
	jobs       *queue.Queue
	logger     *zap.Logger
}

// NewRefundService constructs the service.
func NewRefundService(store DisputeLocker, gateway external.RefundGateway, dispatcher events.Dispatcher, jobs *queue.Queue, logger *zap.Logger) *RefundService {
	return &RefundService{
		store:      store,
		gateway:    gateway,
		dispatcher: dispatcher,
		jobs:       jobs,
		logger:     logger,
	}
}

// Run initiates the refund for one dispute under a row lock.
func (s *RefundService) Run(ctx context.Context, disputeID string) error {
	var (
		refunded domain.Dispute
		applied  bool
	)
	err := s.store.WithDisputeLock(ctx, disputeID, func(ctx context.Context, tx sla.DisputeTx) error {
		dispute := tx.Dispute()
		if dispute.RefundAmount == nil || *dispute.RefundAmount <= 0 {
			return nil
		}
		if dispute.State != domain.StateResolved && dispute.State != domain.StateClosed {
			return nil
		}
		if dispute.RefundTransactionID != nil {
			return nil
		}
		done, err := tx.HasProcessedEntry(ctx, domain.TimelineRefund, "refund_initiated")
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		refundTxID, err := s.gateway.InitiateRefund(ctx, dispute.ID, *dispute.RefundAmount)
		if err != nil {
			return apperrors.NewDownstreamFailure("refund gateway", err)
		}

		dispute.RefundTransactionID = &refundTxID
		if err := tx.UpdateDispute(ctx, dispute); err != nil {
			return err
		}
		entry := domain.NewTimelineEntry(dispute.ID, domain.TimelineRefund, domain.ActorSystem, nil, map[string]any{
			"status":                domain.StatusProcessed,
			"reason":                "refund_initiated",
			"amount_minor":          *dispute.RefundAmount,
			"refund_transaction_id": refundTxID,
		})
		if err := tx.AppendTimeline(ctx, entry); err != nil && !errors.Is(err, domain.ErrDuplicateTimelineEntry) {
			return err
		}
		if err := tx.AppendAudit(ctx, &domain.AuditLog{
			DisputeID: &dispute.ID,
			Action:    domain.AuditRefundInitiated,
			ActorType: domain.ActorSystem,
			Details: map[string]any{
				"amount_minor":          *dispute.RefundAmount,
				"refund_transaction_id": refundTxID,
			},
		}); err != nil {
			return err
		}

		refunded = *dispute
		applied = true
		return nil
	})
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}

	if s.dispatcher != nil {
		_ = s.dispatcher.Publish(ctx, events.Event{
			ID:        uuid.NewString(),
			Type:      events.EventRefundInitiated,
			DisputeID: refunded.ID,
			UserID:    refunded.UserID,
			Actor:     systemActor(),
			Timestamp: time.Now(),
			Payload: events.RefundInitiatedPayload{
				AmountMinor:         *refunded.RefundAmount,
				RefundTransactionID: *refunded.RefundTransactionID,
			},
		})
	}
	if s.jobs != nil {
		if _, err := s.jobs.Enqueue(ctx, queue.QueueNotification, map[string]any{"dispute_id": refunded.ID, "user_id": refunded.UserID, "kind": "refund_initiated"}); err != nil {
			s.logger.Error("enqueue notification", zap.String("dispute_id", refunded.ID), zap.Error(err))
		}
	}
	return nil
}
