package events

import (
	"time"

	"github.com/spec-kit/dispute-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventDisputeCreated      EventType = "dispute_created"
	EventDisputeStateChanged EventType = "dispute_state_changed"
	EventDisputeAssigned     EventType = "dispute_assigned"
	EventDisputeEscalated    EventType = "dispute_escalated"
	EventDisputeResolved     EventType = "dispute_resolved"
	EventCommentAdded        EventType = "dispute_comment_added"
	EventEvidenceUploaded    EventType = "dispute_evidence_uploaded"
	EventRefundInitiated     EventType = "dispute_refund_initiated"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Type    domain.ActorType `json:"type"`
	UserID  *string          `json:"user_id,omitempty"`
	AgentID *string          `json:"agent_id,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	DisputeID string      `json:"dispute_id"`
	UserID    string      `json:"user_id,omitempty"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// DisputeCreatedPayload payload.
type DisputeCreatedPayload struct {
	Category      domain.DisputeCategory `json:"category"`
	Amount        string                 `json:"amount"`
	Priority      domain.DisputePriority `json:"priority"`
	TransactionID string                 `json:"transaction_id"`
}

// StateChangedPayload payload.
type StateChangedPayload struct {
	OldState domain.DisputeState `json:"old_state"`
	NewState domain.DisputeState `json:"new_state"`
	Comment  string              `json:"comment,omitempty"`
}

// AssignedPayload payload.
type AssignedPayload struct {
	AgentID *string `json:"agent_id,omitempty"`
}

// EscalatedPayload payload.
type EscalatedPayload struct {
	Level  int    `json:"level"`
	Reason string `json:"reason"`
}

// ResolvedPayload payload.
type ResolvedPayload struct {
	Outcome      domain.DisputeOutcome `json:"outcome"`
	RefundAmount *int64                `json:"refund_amount,omitempty"`
	AutoResolved bool                  `json:"auto_resolved"`
}

// CommentAddedPayload payload.
type CommentAddedPayload struct {
	Internal    bool   `json:"internal"`
	BodyPreview string `json:"body_preview"`
}

// EvidenceUploadedPayload payload.
type EvidenceUploadedPayload struct {
	EvidenceID string `json:"evidence_id"`
	FileName   string `json:"file_name"`
	MimeType   string `json:"mime_type"`
}

// RefundInitiatedPayload payload.
type RefundInitiatedPayload struct {
	AmountMinor         int64  `json:"amount_minor"`
	RefundTransactionID string `json:"refund_transaction_id"`
}
