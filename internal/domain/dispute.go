package domain

import (
	"errors"
	"time"
)

// ErrDuplicateDispute signals that another non-cancelled dispute already
// exists for the same transaction.
var ErrDuplicateDispute = errors.New("active dispute already exists for transaction")

// DisputeState enumerates lifecycle states for disputes.
type DisputeState string

const (
	StateDraft              DisputeState = "draft"
	StateOpen               DisputeState = "open"
	StateInvestigating      DisputeState = "investigating"
	StateAutoResolving      DisputeState = "auto_resolving"
	StateEscalated          DisputeState = "escalated"
	StateCriticalEscalation DisputeState = "critical_escalation"
	StateResolved           DisputeState = "resolved"
	StateClosed             DisputeState = "closed"
	StateCancelled          DisputeState = "cancelled"
)

// IsTerminal reports whether no further transitions are possible.
func (s DisputeState) IsTerminal() bool {
	return s == StateClosed || s == StateCancelled
}

// DisputeCategory classifies what the user is contesting.
type DisputeCategory string

const (
	CategoryUnauthorizedTransaction DisputeCategory = "unauthorized_transaction"
	CategoryTransactionFailed       DisputeCategory = "transaction_failed"
	CategoryWrongAmount             DisputeCategory = "wrong_amount"
	CategoryDuplicateCharge         DisputeCategory = "duplicate_charge"
	CategoryServiceNotReceived      DisputeCategory = "service_not_received"
	CategoryTechnicalError          DisputeCategory = "technical_error"
	CategoryFraudSuspected          DisputeCategory = "fraud_suspected"
	CategoryOther                   DisputeCategory = "other"
)

// Categories lists all valid dispute categories.
var Categories = []DisputeCategory{
	CategoryUnauthorizedTransaction,
	CategoryTransactionFailed,
	CategoryWrongAmount,
	CategoryDuplicateCharge,
	CategoryServiceNotReceived,
	CategoryTechnicalError,
	CategoryFraudSuspected,
	CategoryOther,
}

// DisputePriority enumerates SLA urgency.
type DisputePriority string

const (
	PriorityCritical DisputePriority = "critical"
	PriorityHigh     DisputePriority = "high"
	PriorityMedium   DisputePriority = "medium"
	PriorityLow      DisputePriority = "low"
)

// DisputeOutcome records who a resolved dispute favors.
type DisputeOutcome string

const (
	OutcomeUserFavor     DisputeOutcome = "user_favor"
	OutcomeMerchantFavor DisputeOutcome = "merchant_favor"
	OutcomeSplit         DisputeOutcome = "split"
)

// Dispute is the aggregate for a contested transaction.
//
// Amount is kept exactly as filed by the user; logic that needs a number goes
// through money.ParseMinorUnits so that malformed persisted amounts surface as
// integrity errors instead of being silently treated as zero.
type Dispute struct {
	ID                  string
	ReferenceKey        string
	TransactionID       string
	UserID              string
	Category            DisputeCategory
	Amount              string
	Description         string
	State               DisputeState
	Priority            DisputePriority
	AssignedAgentID     *string
	SLADeadline         *time.Time
	EscalationLevel     int
	EscalationReason    *string
	FraudScore          float64
	IsFraudulent        bool
	Outcome             *DisputeOutcome
	OutcomeDetails      *string
	RefundAmount        *int64
	RefundTransactionID *string
	TransactionAt       time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
	ResolvedAt          *time.Time
}

// ActiveStates are the states in which a dispute still demands work and is
// subject to SLA monitoring.
var ActiveStates = []DisputeState{StateOpen, StateInvestigating, StateEscalated}

// NotifiableStates are the states eligible for a deadline-approaching notice.
// An escalated dispute is already past alerting and gets escalation handling
// instead.
var NotifiableStates = []DisputeState{StateOpen, StateInvestigating}
