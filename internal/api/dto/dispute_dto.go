package dto

import (
	"time"

	"github.com/spec-kit/dispute-service/internal/domain"
)

// CreateDisputeRequest payload.
type CreateDisputeRequest struct {
	TransactionID string                 `json:"transaction_id"`
	Category      domain.DisputeCategory `json:"category"`
	Amount        string                 `json:"amount"`
	Description   string                 `json:"description"`
	TransactionAt time.Time              `json:"transaction_at"`
}

// DisputeSummary response.
type DisputeSummary struct {
	ID              string                 `json:"id"`
	ReferenceKey    string                 `json:"reference_key"`
	TransactionID   string                 `json:"transaction_id"`
	Category        domain.DisputeCategory `json:"category"`
	Amount          string                 `json:"amount"`
	State           domain.DisputeState    `json:"state"`
	Priority        domain.DisputePriority `json:"priority"`
	SLADeadline     *time.Time             `json:"sla_deadline"`
	EscalationLevel int                    `json:"escalation_level"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

// DisputeDetailResponse provides full dispute info.
type DisputeDetailResponse struct {
	ID                  string                  `json:"id"`
	ReferenceKey        string                  `json:"reference_key"`
	TransactionID       string                  `json:"transaction_id"`
	Category            domain.DisputeCategory  `json:"category"`
	Amount              string                  `json:"amount"`
	Description         string                  `json:"description"`
	State               domain.DisputeState     `json:"state"`
	Priority            domain.DisputePriority  `json:"priority"`
	AssignedAgentID     *string                 `json:"assigned_agent_id"`
	SLADeadline         *time.Time              `json:"sla_deadline"`
	EscalationLevel     int                     `json:"escalation_level"`
	EscalationReason    *string                 `json:"escalation_reason"`
	FraudScore          float64                 `json:"fraud_score"`
	Outcome             *domain.DisputeOutcome  `json:"outcome"`
	OutcomeDetails      *string                 `json:"outcome_details"`
	RefundAmount        *int64                  `json:"refund_amount"`
	RefundTransactionID *string                 `json:"refund_transaction_id"`
	TransactionAt       time.Time               `json:"transaction_at"`
	CreatedAt           time.Time               `json:"created_at"`
	UpdatedAt           time.Time               `json:"updated_at"`
	ResolvedAt          *time.Time              `json:"resolved_at"`
	Timeline            []TimelineEntryResponse `json:"timeline"`
}

// TimelineEntryResponse represents one timeline fact.
type TimelineEntryResponse struct {
	ID        string              `json:"id"`
	Type      domain.TimelineType `json:"type"`
	ActorType domain.ActorType    `json:"actor_type"`
	ActorID   *string             `json:"actor_id"`
	Payload   map[string]any      `json:"payload"`
	CreatedAt time.Time           `json:"created_at"`
}

// AddCommentRequest payload.
type AddCommentRequest struct {
	Body     string `json:"body"`
	Internal bool   `json:"internal"`
}

// ResolveRequest payload.
type ResolveRequest struct {
	Outcome           domain.DisputeOutcome `json:"outcome"`
	Details           string                `json:"details"`
	RefundAmountMinor *int64                `json:"refund_amount_minor"`
}

// EscalateRequest payload.
type EscalateRequest struct {
	Reason string `json:"reason"`
}

// ReasonRequest is shared by cancel, reopen, appeal, and request-info.
type ReasonRequest struct {
	Reason string `json:"reason"`
}

// AssignRequest payload.
type AssignRequest struct {
	AgentID string `json:"agent_id"`
}

// EvidenceResponse metadata.
type EvidenceResponse struct {
	ID           string              `json:"id"`
	FileName     string              `json:"file_name"`
	MimeType     string              `json:"mime_type"`
	SizeBytes    int64               `json:"size_bytes"`
	UploadStatus domain.UploadStatus `json:"upload_status"`
	Confidence   *float64            `json:"confidence,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
}
