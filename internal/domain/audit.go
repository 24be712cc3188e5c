package domain

import "time"

// AuditAction enumerates privileged actions recorded for compliance.
type AuditAction string

const (
	AuditDisputeCreated   AuditAction = "dispute_created"
	AuditDisputeUpdated   AuditAction = "dispute_updated"
	AuditDisputeAssigned  AuditAction = "dispute_assigned"
	AuditDisputeResolved  AuditAction = "dispute_resolved"
	AuditDisputeEscalated AuditAction = "dispute_escalated"
	AuditRefundInitiated  AuditAction = "refund_initiated"
)

// AuditLog is a compliance record, separate from the user-facing timeline and
// retained for a multi-year window.
type AuditLog struct {
	ID        string
	DisputeID *string
	Action    AuditAction
	ActorType ActorType
	ActorID   *string
	Details   map[string]any
	CreatedAt time.Time
}
