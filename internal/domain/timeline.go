package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"
)

// ErrDuplicateTimelineEntry signals that an identical entry was already
// recorded. Writers treat it as "already done", never as a failure.
var ErrDuplicateTimelineEntry = errors.New("timeline entry already recorded")

// TimelineType captures what fact a timeline entry records.
type TimelineType string

const (
	TimelineCreated        TimelineType = "created"
	TimelineStateChange    TimelineType = "state_change"
	TimelineComment        TimelineType = "comment"
	TimelineEvidence       TimelineType = "evidence"
	TimelineAssignment     TimelineType = "assignment"
	TimelineNotification   TimelineType = "notification"
	TimelineEscalation     TimelineType = "escalation"
	TimelineResolution     TimelineType = "resolution"
	TimelineRefund         TimelineType = "refund"
	TimelineSLAViolation   TimelineType = "sla_violation"
	TimelineAutoResolution TimelineType = "auto_resolution"
)

// ActorType identifies who performed a recorded action.
type ActorType string

const (
	ActorUser   ActorType = "user"
	ActorAgent  ActorType = "agent"
	ActorSystem ActorType = "system"
)

// StatusProcessed is the payload marker background jobs write once a mutation
// has committed; its presence is the "already handled" signal for retries.
const StatusProcessed = "processed"

// TimelineEntry is an immutable, de-duplicated fact about a dispute. The
// content hash over (dispute, type, payload) is enforced unique and makes
// retried background jobs idempotent.
type TimelineEntry struct {
	ID          string
	DisputeID   string
	Type        TimelineType
	ActorType   ActorType
	ActorID     *string
	Payload     map[string]any
	ContentHash string
	CreatedAt   time.Time
}

// HashTimelinePayload derives the idempotency key for a timeline entry.
// encoding/json sorts map keys, so equal payloads hash equally.
func HashTimelinePayload(disputeID string, entryType TimelineType, payload map[string]any) string {
	raw, err := json.Marshal(payload)
	if err != nil {
		raw = []byte("{}")
	}
	h := sha256.New()
	h.Write([]byte(disputeID))
	h.Write([]byte{0})
	h.Write([]byte(entryType))
	h.Write([]byte{0})
	h.Write(raw)
	return hex.EncodeToString(h.Sum(nil))
}

// NewTimelineEntry builds an entry with its content hash populated.
func NewTimelineEntry(disputeID string, entryType TimelineType, actorType ActorType, actorID *string, payload map[string]any) *TimelineEntry {
	if payload == nil {
		payload = map[string]any{}
	}
	return &TimelineEntry{
		DisputeID:   disputeID,
		Type:        entryType,
		ActorType:   actorType,
		ActorID:     actorID,
		Payload:     payload,
		ContentHash: HashTimelinePayload(disputeID, entryType, payload),
	}
}
