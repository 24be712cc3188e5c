package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/dispute-service/internal/domain"
)

// EvidenceRepository handles persistence for uploaded evidence artifacts.
type EvidenceRepository interface {
	Create(ctx context.Context, evidence *domain.Evidence) error
	Update(ctx context.Context, evidence *domain.Evidence) error
	GetByID(ctx context.Context, id string) (*domain.Evidence, error)
	ListByDispute(ctx context.Context, disputeID string) ([]domain.Evidence, error)
	DeleteByDisputeIDs(ctx context.Context, ids []string) (int64, error)
}

type evidenceRepository struct {
	pool *pgxpool.Pool
}

// NewEvidenceRepository instantiates the repository.
func NewEvidenceRepository(pool *pgxpool.Pool) EvidenceRepository {
	return &evidenceRepository{pool: pool}
}

func (r *evidenceRepository) Create(ctx context.Context, evidence *domain.Evidence) error {
	const query = `
        INSERT INTO evidence (dispute_id, storage_key, file_name, mime_type, size_bytes, upload_status)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		evidence.DisputeID,
		evidence.StorageKey,
		evidence.FileName,
		evidence.MimeType,
		evidence.SizeBytes,
		evidence.UploadStatus,
	).Scan(&evidence.ID, &evidence.CreatedAt, &evidence.UpdatedAt)
}

func (r *evidenceRepository) Update(ctx context.Context, evidence *domain.Evidence) error {
	const query = `
        UPDATE evidence SET upload_status=$1, extracted_text=$2, confidence=$3, structured_data=$4, updated_at=NOW()
        WHERE id=$5`
	cmd, err := r.pool.Exec(ctx, query,
		evidence.UploadStatus,
		evidence.ExtractedText,
		evidence.Confidence,
		evidence.StructuredData,
		evidence.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *evidenceRepository) GetByID(ctx context.Context, id string) (*domain.Evidence, error) {
	const query = `
        SELECT id, dispute_id, storage_key, file_name, mime_type, size_bytes, upload_status,
               extracted_text, confidence, structured_data, created_at, updated_at
        FROM evidence WHERE id=$1`
	var ev domain.Evidence
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&ev.ID,
		&ev.DisputeID,
		&ev.StorageKey,
		&ev.FileName,
		&ev.MimeType,
		&ev.SizeBytes,
		&ev.UploadStatus,
		&ev.ExtractedText,
		&ev.Confidence,
		&ev.StructuredData,
		&ev.CreatedAt,
		&ev.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &ev, nil
}

func (r *evidenceRepository) ListByDispute(ctx context.Context, disputeID string) ([]domain.Evidence, error) {
	const query = `
        SELECT id, dispute_id, storage_key, file_name, mime_type, size_bytes, upload_status,
               extracted_text, confidence, structured_data, created_at, updated_at
        FROM evidence WHERE dispute_id=$1
        ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, disputeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvidence(rows)
}

func (r *evidenceRepository) DeleteByDisputeIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	cmd, err := r.pool.Exec(ctx, `DELETE FROM evidence WHERE dispute_id = ANY($1)`, ids)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func scanEvidence(rows pgx.Rows) ([]domain.Evidence, error) {
	var result []domain.Evidence
	for rows.Next() {
		var ev domain.Evidence
		if err := rows.Scan(
			&ev.ID,
			&ev.DisputeID,
			&ev.StorageKey,
			&ev.FileName,
			&ev.MimeType,
			&ev.SizeBytes,
			&ev.UploadStatus,
			&ev.ExtractedText,
			&ev.Confidence,
			&ev.StructuredData,
			&ev.CreatedAt,
			&ev.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, ev)
	}
	return result, rows.Err()
}
