package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/dispute-service/internal/domain"
)

// TimelineRepository encapsulates the append-only dispute timeline.
type TimelineRepository interface {
	Append(ctx context.Context, db DBTX, entry *domain.TimelineEntry) error
	ListByDispute(ctx context.Context, disputeID string, limit, offset int) ([]domain.TimelineEntry, error)
	HasProcessedEntry(ctx context.Context, db DBTX, disputeID string, entryType domain.TimelineType, reason string) (bool, error)
	DeleteByDisputeIDs(ctx context.Context, ids []string) (int64, error)
}

type timelineRepository struct {
	pool *pgxpool.Pool
}

// NewTimelineRepository instantiates repository.
func NewTimelineRepository(pool *pgxpool.Pool) TimelineRepository {
	return &timelineRepository{pool: pool}
}

// Append inserts a timeline entry. A content-hash collision on the same
// dispute and type returns domain.ErrDuplicateTimelineEntry; callers decide
// whether that is benign. The insert skips on conflict instead of raising, so
// a duplicate never poisons an enclosing transaction that wants to keep its
// other writes.
func (r *timelineRepository) Append(ctx context.Context, db DBTX, entry *domain.TimelineEntry) error {
	const query = `
        INSERT INTO timeline_entries (dispute_id, type, actor_type, actor_id, payload, content_hash)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT (dispute_id, type, content_hash) DO NOTHING
        RETURNING id, created_at`
	err := db.QueryRow(ctx, query,
		entry.DisputeID,
		entry.Type,
		entry.ActorType,
		entry.ActorID,
		entry.Payload,
		entry.ContentHash,
	).Scan(&entry.ID, &entry.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// Nothing inserted: an identical entry is already recorded.
		return domain.ErrDuplicateTimelineEntry
	}
	return err
}

func (r *timelineRepository) ListByDispute(ctx context.Context, disputeID string, limit, offset int) ([]domain.TimelineEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	const query = `
        SELECT id, dispute_id, type, actor_type, actor_id, payload, content_hash, created_at
        FROM timeline_entries WHERE dispute_id=$1
        ORDER BY created_at ASC, id ASC LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, disputeID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTimelineEntries(rows)
}

// HasProcessedEntry reports whether a committed entry of the given type
// carries the processed marker for reason. Background jobs consult this
// before repeating a side-effecting mutation.
func (r *timelineRepository) HasProcessedEntry(ctx context.Context, db DBTX, disputeID string, entryType domain.TimelineType, reason string) (bool, error) {
	const query = `
        SELECT EXISTS (
            SELECT 1 FROM timeline_entries
            WHERE dispute_id=$1 AND type=$2
              AND payload->>'status'=$3 AND payload->>'reason'=$4
        )`
	var exists bool
	err := db.QueryRow(ctx, query, disputeID, entryType, domain.StatusProcessed, reason).Scan(&exists)
	return exists, err
}

func (r *timelineRepository) DeleteByDisputeIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	cmd, err := r.pool.Exec(ctx, `DELETE FROM timeline_entries WHERE dispute_id = ANY($1)`, ids)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func scanTimelineEntries(rows pgx.Rows) ([]domain.TimelineEntry, error) {
	var result []domain.TimelineEntry
	for rows.Next() {
		var entry domain.TimelineEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.DisputeID,
			&entry.Type,
			&entry.ActorType,
			&entry.ActorID,
			&entry.Payload,
			&entry.ContentHash,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}
