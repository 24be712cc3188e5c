package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/dispute-service/internal/config"
	"github.com/spec-kit/dispute-service/internal/domain"
	"github.com/spec-kit/dispute-service/internal/events"
	"github.com/spec-kit/dispute-service/internal/external"
	"github.com/spec-kit/dispute-service/internal/queue"
	"github.com/spec-kit/dispute-service/internal/repository"
	apperrors "github.com/spec-kit/dispute-service/pkg/util"
)

// EvidenceService handles evidence upload and asynchronous OCR ingestion.
type EvidenceService struct {
	evidence   repository.EvidenceRepository
	disputes   repository.DisputeRepository
	timeline   repository.TimelineRepository
	pool       repository.DBTX
	store      external.EvidenceStore
	ocr        external.OCRClient
	dispatcher events.Dispatcher
	jobs       *queue.Queue
	cfg        config.EvidenceConfig
	logger     *zap.Logger
}

// EvidenceDependencies bundles collaborators.
type EvidenceDependencies struct {
	EvidenceRepo repository.EvidenceRepository
	DisputeRepo  repository.DisputeRepository
	TimelineRepo repository.TimelineRepository
	Pool         repository.DBTX
	Store        external.EvidenceStore
	OCR          external.OCRClient
	Dispatcher   events.Dispatcher
	Jobs         *queue.Queue
	Config       config.EvidenceConfig
	Logger       *zap.Logger
}

// NewEvidenceService constructs the service.
func NewEvidenceService(deps EvidenceDependencies) *EvidenceService {
	return &EvidenceService{
		evidence:   deps.EvidenceRepo,
		disputes:   deps.DisputeRepo,
		timeline:   deps.TimelineRepo,
		pool:       deps.Pool,
		store:      deps.Store,
		ocr:        deps.OCR,
		dispatcher: deps.Dispatcher,
		jobs:       deps.Jobs,
		cfg:        deps.Config,
		logger:     deps.Logger,
	}
}

// Upload stores an artifact and queues it for OCR. The dispute transition
// flow never waits on processing.
func (s *EvidenceService) Upload(ctx context.Context, userID, disputeID, fileName, mimeType string, data []byte) (*domain.Evidence, error) {
	if len(data) == 0 {
		return nil, apperrors.NewValidationError("empty upload", nil)
	}
	if s.cfg.MaxSizeBytes > 0 && int64(len(data)) > s.cfg.MaxSizeBytes {
		return nil, apperrors.NewValidationError("upload exceeds size limit", map[string]any{"max_bytes": s.cfg.MaxSizeBytes})
	}
	dispute, err := s.disputes.GetByID(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if dispute.UserID != userID {
		return nil, apperrors.NewForbidden("access denied")
	}
	if dispute.State.IsTerminal() {
		return nil, apperrors.NewConflict("dispute no longer accepts evidence", map[string]any{"state": dispute.State})
	}

	key, err := s.store.Upload(ctx, fileName, mimeType, data)
	if err != nil {
		return nil, apperrors.NewDownstreamFailure("evidence store", err)
	}

	ev := &domain.Evidence{
		DisputeID:    dispute.ID,
		StorageKey:   key,
		FileName:     strings.TrimSpace(fileName),
		MimeType:     mimeType,
		SizeBytes:    int64(len(data)),
		UploadStatus: domain.UploadPending,
	}
	if err := s.evidence.Create(ctx, ev); err != nil {
		return nil, err
	}

	entry := domain.NewTimelineEntry(dispute.ID, domain.TimelineEvidence, domain.ActorUser, &userID, map[string]any{
		"evidence_id": ev.ID,
		"file_name":   ev.FileName,
		"mime_type":   ev.MimeType,
		"size_bytes":  ev.SizeBytes,
	})
	if err := s.timeline.Append(ctx, s.pool, entry); err != nil && !errors.Is(err, domain.ErrDuplicateTimelineEntry) {
		s.logger.Error("record evidence upload", zap.String("dispute_id", dispute.ID), zap.Error(err))
	}

	if s.dispatcher != nil {
		_ = s.dispatcher.Publish(ctx, events.Event{
			ID:        uuid.NewString(),
			Type:      events.EventEvidenceUploaded,
			DisputeID: dispute.ID,
			UserID:    dispute.UserID,
			Actor:     userActor(userID),
			Payload: events.EvidenceUploadedPayload{
				EvidenceID: ev.ID,
				FileName:   ev.FileName,
				MimeType:   ev.MimeType,
			},
		})
	}
	if s.jobs != nil {
		if _, err := s.jobs.Enqueue(ctx, queue.QueueEvidenceProcessing, map[string]any{
			"dispute_id":  dispute.ID,
			"evidence_id": ev.ID,
		}); err != nil {
			s.logger.Error("enqueue evidence processing", zap.String("evidence_id", ev.ID), zap.Error(err))
		}
	}
	return ev, nil
}

// ListForDispute returns evidence visible to the dispute owner.
func (s *EvidenceService) ListForDispute(ctx context.Context, userID, disputeID string) ([]domain.Evidence, error) {
	dispute, err := s.disputes.GetByID(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if dispute.UserID != userID {
		return nil, apperrors.NewForbidden("access denied")
	}
	return s.evidence.ListByDispute(ctx, disputeID)
}

// Process runs OCR for one artifact. The call is bounded by the configured
// timeout; on expiry the artifact is marked failed and the job may retry.
// A completed artifact is never reprocessed, so OCR results attach at most
// once.
func (s *EvidenceService) Process(ctx context.Context, evidenceID string) error {
	ev, err := s.evidence.GetByID(ctx, evidenceID)
	if err != nil {
		return err
	}
	if ev.UploadStatus == domain.UploadCompleted {
		s.logger.Debug("evidence already processed", zap.String("evidence_id", evidenceID))
		return nil
	}

	procCtx, cancel := context.WithTimeout(ctx, s.cfg.ProcessTimeout())
	defer cancel()

	result, err := s.ocr.Extract(procCtx, ev.StorageKey, ev.MimeType)
	if err != nil {
		ev.UploadStatus = domain.UploadFailed
		if updateErr := s.evidence.Update(ctx, ev); updateErr != nil {
			return updateErr
		}
		return apperrors.NewDownstreamFailure("ocr", err)
	}

	ev.UploadStatus = domain.UploadCompleted
	text := result.Text
	confidence := result.Confidence
	ev.ExtractedText = &text
	ev.Confidence = &confidence
	ev.StructuredData = result.StructuredData
	if err := s.evidence.Update(ctx, ev); err != nil {
		return err
	}

	entry := domain.NewTimelineEntry(ev.DisputeID, domain.TimelineEvidence, domain.ActorSystem, nil, map[string]any{
		"status":      domain.StatusProcessed,
		"reason":      "evidence_processed",
		"evidence_id": ev.ID,
		"confidence":  confidence,
	})
	if err := s.timeline.Append(ctx, s.pool, entry); err != nil && !errors.Is(err, domain.ErrDuplicateTimelineEntry) {
		s.logger.Error("record evidence processing", zap.String("evidence_id", ev.ID), zap.Error(err))
	}
	return nil
}
