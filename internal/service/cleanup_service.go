package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/dispute-service/internal/config"
	"github.com/spec-kit/dispute-service/internal/repository"
)

const cleanupBatchSize = 500

// CleanupService purges terminal disputes past the retention window. Audit
// logs keep their own, much longer window.
type CleanupService struct {
	disputes repository.DisputeRepository
	timeline repository.TimelineRepository
	evidence repository.EvidenceRepository
	audits   repository.AuditRepository
	cfg      config.RetentionConfig
	logger   *zap.Logger
}

// NewCleanupService constructs the service.
func NewCleanupService(disputes repository.DisputeRepository, timeline repository.TimelineRepository, evidence repository.EvidenceRepository, audits repository.AuditRepository, cfg config.RetentionConfig, logger *zap.Logger) *CleanupService {
	return &CleanupService{
		disputes: disputes,
		timeline: timeline,
		evidence: evidence,
		audits:   audits,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run performs one retention sweep.
func (s *CleanupService) Run(ctx context.Context) error {
	now := time.Now()
	disputeCutoff := now.AddDate(0, 0, -s.cfg.DisputeRetentionDays)

	ids, err := s.disputes.ListExpiredRetention(ctx, disputeCutoff, cleanupBatchSize)
	if err != nil {
		return err
	}
	if len(ids) > 0 {
		if _, err := s.evidence.DeleteByDisputeIDs(ctx, ids); err != nil {
			return err
		}
		if _, err := s.timeline.DeleteByDisputeIDs(ctx, ids); err != nil {
			return err
		}
		deleted, err := s.disputes.DeleteByIDs(ctx, ids)
		if err != nil {
			return err
		}
		s.logger.Info("retention sweep removed disputes", zap.Int64("count", deleted))
	}

	auditCutoff := now.AddDate(0, 0, -s.cfg.AuditRetentionDays)
	purged, err := s.audits.DeleteOlderThan(ctx, auditCutoff)
	if err != nil {
		return err
	}
	if purged > 0 {
		s.logger.Info("retention sweep removed audit logs", zap.Int64("count", purged))
	}
	return nil
}
