package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/dispute-service/internal/domain"
)

// AuditRepository encapsulates compliance audit records.
type AuditRepository interface {
	Append(ctx context.Context, db DBTX, log *domain.AuditLog) error
	ListByDispute(ctx context.Context, disputeID string, limit, offset int) ([]domain.AuditLog, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type auditRepository struct {
	pool *pgxpool.Pool
}

// NewAuditRepository instantiates repository.
func NewAuditRepository(pool *pgxpool.Pool) AuditRepository {
	return &auditRepository{pool: pool}
}

func (r *auditRepository) Append(ctx context.Context, db DBTX, log *domain.AuditLog) error {
	const query = `
        INSERT INTO audit_logs (dispute_id, action, actor_type, actor_id, details)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at`
	return db.QueryRow(ctx, query,
		log.DisputeID,
		log.Action,
		log.ActorType,
		log.ActorID,
		log.Details,
	).Scan(&log.ID, &log.CreatedAt)
}

func (r *auditRepository) ListByDispute(ctx context.Context, disputeID string, limit, offset int) ([]domain.AuditLog, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	const query = `
        SELECT id, dispute_id, action, actor_type, actor_id, details, created_at
        FROM audit_logs WHERE dispute_id=$1
        ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, disputeID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []domain.AuditLog
	for rows.Next() {
		var log domain.AuditLog
		if err := rows.Scan(
			&log.ID,
			&log.DisputeID,
			&log.Action,
			&log.ActorType,
			&log.ActorID,
			&log.Details,
			&log.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, log)
	}
	return result, rows.Err()
}

func (r *auditRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM audit_logs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
