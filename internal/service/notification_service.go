package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/dispute-service/internal/config"
	"github.com/spec-kit/dispute-service/internal/events"
	"github.com/spec-kit/dispute-service/internal/external"
)

// NotificationService fans domain events out to the notifier, best effort.
type NotificationService struct {
	dispatcher events.Dispatcher
	notifier   external.Notifier
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, notifier external.Notifier, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		notifier:   notifier,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventDisputeCreated, n.handleDisputeEvent("dispute_created"))
	n.dispatcher.Subscribe(events.EventDisputeStateChanged, n.handleDisputeEvent("dispute_state_changed"))
	n.dispatcher.Subscribe(events.EventDisputeAssigned, n.handleDisputeEvent("dispute_assigned"))
	n.dispatcher.Subscribe(events.EventDisputeEscalated, n.handleDisputeEvent("dispute_escalated"))
	n.dispatcher.Subscribe(events.EventDisputeResolved, n.handleDisputeEvent("dispute_resolved"))
	n.dispatcher.Subscribe(events.EventRefundInitiated, n.handleDisputeEvent("dispute_refund_initiated"))
}

func (n *NotificationService) handleDisputeEvent(kind string) events.EventHandler {
	return func(ctx context.Context, event events.Event) error {
		n.logger.Info("dispute event",
			zap.String("kind", kind),
			zap.String("dispute_id", event.DisputeID),
			zap.Any("payload", event.Payload))
		if n.notifier != nil && event.UserID != "" {
			delivered := n.notifier.Notify(ctx, event.UserID, kind, map[string]any{
				"dispute_id": event.DisputeID,
				"payload":    event.Payload,
			})
			if !delivered {
				n.logger.Warn("notification not delivered",
					zap.String("kind", kind),
					zap.String("dispute_id", event.DisputeID))
			}
		}
		n.sendWebhookStub(event)
		return nil
	}
}

// DeliverQueued handles a notification job picked up from the queue. These
// carry dispute-level notices produced outside a request (escalations,
// refunds), where the in-process dispatcher alone would not survive a crash.
func (n *NotificationService) DeliverQueued(ctx context.Context, payload map[string]any) error {
	disputeID, _ := payload["dispute_id"].(string)
	kind, _ := payload["kind"].(string)
	if disputeID == "" || kind == "" {
		return nil
	}
	userID, _ := payload["user_id"].(string)
	n.logger.Info("queued notification",
		zap.String("kind", kind),
		zap.String("dispute_id", disputeID))
	if n.notifier != nil && userID != "" {
		n.notifier.Notify(ctx, userID, kind, payload)
	}
	return nil
}

func (n *NotificationService) sendWebhookStub(event events.Event) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	n.logger.Debug("webhook notification",
		zap.String("url", n.cfg.WebhookURL),
		zap.String("dispute_id", event.DisputeID),
		zap.String("event_type", string(event.Type)))
}
