package worker

import (
	"context"

	"github.com/spec-kit/dispute-service/internal/queue"
	"github.com/spec-kit/dispute-service/internal/service"
	"github.com/spec-kit/dispute-service/internal/sla"
	apperrors "github.com/spec-kit/dispute-service/pkg/util"
)

// Dependencies bundles everything the background workers drive.
type Dependencies struct {
	Assignments    *service.AssignmentService
	AutoResolution *service.AutoResolutionService
	Refunds        *service.RefundService
	Evidence       *service.EvidenceService
	Monitor        *sla.Monitor
	Notifications  *service.NotificationService
}

// Register binds every queue to its handler. Handlers are written to be
// retried: each one re-checks state before mutating, so at-least-once
// delivery never double-applies an effect.
func Register(w *queue.Worker, deps Dependencies) {
	w.Register(queue.QueueAssignment, func(ctx context.Context, job *queue.Job) error {
		id := job.DisputeID()
		if id == "" {
			return nil
		}
		_, err := deps.Assignments.AutoAssign(ctx, id)
		if apperrors.IsCode(err, "NOT_FOUND") {
			return nil
		}
		// CONFLICT (no assignable agents) flows into the retry policy.
		return err
	})

	w.Register(queue.QueueAutoResolution, func(ctx context.Context, job *queue.Job) error {
		id := job.DisputeID()
		if id == "" {
			return nil
		}
		err := deps.AutoResolution.Run(ctx, id)
		if apperrors.IsCode(err, "INTEGRITY_VIOLATION") {
			// Corrupted amounts never fix themselves; the dispute is already
			// parked for manual review, so retrying is pointless.
			return nil
		}
		return err
	})

	w.Register(queue.QueueRefund, func(ctx context.Context, job *queue.Job) error {
		id := job.DisputeID()
		if id == "" {
			return nil
		}
		return deps.Refunds.Run(ctx, id)
	})

	w.Register(queue.QueueEvidenceProcessing, func(ctx context.Context, job *queue.Job) error {
		evidenceID, _ := job.Payload["evidence_id"].(string)
		if evidenceID == "" {
			return nil
		}
		return deps.Evidence.Process(ctx, evidenceID)
	})

	w.Register(queue.QueueSLACheck, func(ctx context.Context, job *queue.Job) error {
		kind, _ := job.Payload["kind"].(string)
		if kind == "stale" {
			return deps.Monitor.RunStaleCheck(ctx)
		}
		return deps.Monitor.RunOnce(ctx)
	})

	w.Register(queue.QueueNotification, func(ctx context.Context, job *queue.Job) error {
		// Deliveries already happen through the event dispatcher; the queue
		// exists so escalation and refund notices survive process restarts.
		return deps.Notifications.DeliverQueued(ctx, job.Payload)
	})
}
