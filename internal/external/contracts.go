// Package external defines the contracts of collaborators the dispute core
// consumes as black boxes: evidence storage, OCR extraction, notification
// delivery, refund execution. Stub implementations log and succeed so the
// service runs without the real integrations configured.
package external

import (
	"context"

	"github.com/spec-kit/dispute-service/internal/domain"
)

// EvidenceStore holds uploaded artifacts; the core only sees opaque keys.
type EvidenceStore interface {
	Upload(ctx context.Context, fileName, mimeType string, data []byte) (key string, err error)
	Download(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// OCRResult is what the OCR collaborator returns for an artifact.
type OCRResult struct {
	Text           string
	Confidence     float64
	StructuredData *domain.ExtractedFields
}

// OCRClient extracts text from stored evidence. Failures mean "evidence not
// processed"; dispute transitions never block on OCR completion.
type OCRClient interface {
	Extract(ctx context.Context, key, mimeType string) (*OCRResult, error)
}

// Notifier delivers user/agent notifications, best effort.
type Notifier interface {
	Notify(ctx context.Context, userID, kind string, payload map[string]any) bool
}

// RefundGateway executes refunds against the payments backend.
type RefundGateway interface {
	InitiateRefund(ctx context.Context, disputeID string, amountMinor int64) (refundTransactionID string, err error)
}
