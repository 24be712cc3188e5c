package external

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/dispute-service/internal/config"
	"github.com/spec-kit/dispute-service/internal/extraction"
)

// StubEvidenceStore keeps artifacts in memory. Development only.
type StubEvidenceStore struct {
	logger *zap.Logger
	blobs  map[string][]byte
}

// NewStubEvidenceStore builds the in-memory store.
func NewStubEvidenceStore(logger *zap.Logger) *StubEvidenceStore {
	return &StubEvidenceStore{logger: logger, blobs: make(map[string][]byte)}
}

func (s *StubEvidenceStore) Upload(ctx context.Context, fileName, mimeType string, data []byte) (string, error) {
	key := fmt.Sprintf("evidence/%s/%s", uuid.NewString(), fileName)
	s.blobs[key] = data
	s.logger.Debug("stub evidence upload", zap.String("key", key), zap.String("mime_type", mimeType))
	return key, nil
}

func (s *StubEvidenceStore) Download(ctx context.Context, key string) ([]byte, error) {
	data, ok := s.blobs[key]
	if !ok {
		return nil, errors.New("object not found")
	}
	return data, nil
}

func (s *StubEvidenceStore) Delete(ctx context.Context, key string) error {
	delete(s.blobs, key)
	return nil
}

// StubOCRClient pretends stored text evidence is already plain text and runs
// the pattern extractor over it.
type StubOCRClient struct {
	store  EvidenceStore
	logger *zap.Logger
}

// NewStubOCRClient builds the stub.
func NewStubOCRClient(store EvidenceStore, logger *zap.Logger) *StubOCRClient {
	return &StubOCRClient{store: store, logger: logger}
}

func (c *StubOCRClient) Extract(ctx context.Context, key, mimeType string) (*OCRResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := c.store.Download(ctx, key)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(mimeType, "text/") {
		// Real OCR lives behind this contract; the stub only handles text.
		return nil, fmt.Errorf("stub ocr cannot process %s", mimeType)
	}
	text := string(data)
	return &OCRResult{
		Text:           text,
		Confidence:     0.99,
		StructuredData: extraction.Fields(text),
	}, nil
}

// LogNotifier writes notifications to the log instead of delivering them.
type LogNotifier struct {
	logger *zap.Logger
	cfg    config.NotificationConfig
}

// NewLogNotifier builds the stub notifier.
func NewLogNotifier(logger *zap.Logger, cfg config.NotificationConfig) *LogNotifier {
	return &LogNotifier{logger: logger, cfg: cfg}
}

func (n *LogNotifier) Notify(ctx context.Context, userID, kind string, payload map[string]any) bool {
	n.logger.Info("notification",
		zap.String("user_id", userID),
		zap.String("kind", kind),
		zap.String("from", n.cfg.EmailFrom),
		zap.Any("payload", payload))
	return true
}

// StubRefundGateway fabricates refund transaction ids.
type StubRefundGateway struct {
	logger *zap.Logger
}

// NewStubRefundGateway builds the stub.
func NewStubRefundGateway(logger *zap.Logger) *StubRefundGateway {
	return &StubRefundGateway{logger: logger}
}

func (g *StubRefundGateway) InitiateRefund(ctx context.Context, disputeID string, amountMinor int64) (string, error) {
	refundID := "rfd_" + uuid.NewString()
	g.logger.Info("stub refund initiated",
		zap.String("dispute_id", disputeID),
		zap.Int64("amount_minor", amountMinor),
		zap.String("refund_transaction_id", refundID))
	return refundID, nil
}
