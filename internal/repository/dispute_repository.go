package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/dispute-service/internal/domain"
)

// DisputeFilter captures agent search parameters.
type DisputeFilter struct {
	UserID        *string
	AssigneeID    *string
	TransactionID *string
	States        []domain.DisputeState
	Priorities    []domain.DisputePriority
	Categories    []domain.DisputeCategory
	SearchTerm    *string
	CreatedFrom   *time.Time
	CreatedTo     *time.Time
	Limit         int
	Offset        int
}

// UserOutcomeStats summarizes a user's resolved dispute history for fraud scoring.
type UserOutcomeStats struct {
	TotalDisputes      int
	DisputesLast30Days int
	ResolvedDisputes   int
	FavorableOutcomes  int
}

// DisputeRepository encapsulates dispute persistence.
type DisputeRepository interface {
	Create(ctx context.Context, db DBTX, dispute *domain.Dispute) error
	Update(ctx context.Context, db DBTX, dispute *domain.Dispute) error
	GetByID(ctx context.Context, id string) (*domain.Dispute, error)
	GetByReference(ctx context.Context, key string) (*domain.Dispute, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]domain.Dispute, error)
	ListWithFilter(ctx context.Context, filter DisputeFilter) ([]domain.Dispute, error)
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]domain.Dispute, error)
	ListApproaching(ctx context.Context, now time.Time, window time.Duration, limit int) ([]domain.Dispute, error)
	ListStale(ctx context.Context, cutoff time.Time, limit int) ([]domain.Dispute, error)
	ListExpiredRetention(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
	ListTransactionTimes(ctx context.Context, userID string, from, to time.Time) ([]time.Time, error)
	CountRecentByUser(ctx context.Context, userID string, since time.Time) (int, error)
	CountRecentByUserCategory(ctx context.Context, userID string, category domain.DisputeCategory, since time.Time) (int, error)
	UserOutcomeStats(ctx context.Context, userID string) (*UserOutcomeStats, error)
}

type disputeRepository struct {
	pool *pgxpool.Pool
}

// NewDisputeRepository instantiates repository.
func NewDisputeRepository(pool *pgxpool.Pool) DisputeRepository {
	return &disputeRepository{pool: pool}
}

const disputeColumns = `id, reference_key, transaction_id, user_id, category, amount, description,
               state, priority, assigned_agent_id, sla_deadline, escalation_level, escalation_reason,
               fraud_score, is_fraudulent, outcome, outcome_details, refund_amount, refund_transaction_id,
               transaction_at, created_at, updated_at, resolved_at`

func (r *disputeRepository) Create(ctx context.Context, db DBTX, dispute *domain.Dispute) error {
	const query = `
        INSERT INTO disputes (reference_key, transaction_id, user_id, category, amount, description,
            state, priority, assigned_agent_id, sla_deadline, escalation_level, escalation_reason,
            fraud_score, is_fraudulent, transaction_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
        RETURNING id, created_at, updated_at`
	err := db.QueryRow(ctx, query,
		dispute.ReferenceKey,
		dispute.TransactionID,
		dispute.UserID,
		dispute.Category,
		dispute.Amount,
		dispute.Description,
		dispute.State,
		dispute.Priority,
		dispute.AssignedAgentID,
		dispute.SLADeadline,
		dispute.EscalationLevel,
		dispute.EscalationReason,
		dispute.FraudScore,
		dispute.IsFraudulent,
		dispute.TransactionAt,
	).Scan(&dispute.ID, &dispute.CreatedAt, &dispute.UpdatedAt)
	if err != nil && isUniqueViolation(err, "disputes_active_transaction_idx") {
		return domain.ErrDuplicateDispute
	}
	return err
}

func (r *disputeRepository) Update(ctx context.Context, db DBTX, dispute *domain.Dispute) error {
	const query = `
        UPDATE disputes SET category=$1, amount=$2, description=$3, state=$4, priority=$5,
            assigned_agent_id=$6, sla_deadline=$7, escalation_level=$8, escalation_reason=$9,
            fraud_score=$10, is_fraudulent=$11, outcome=$12, outcome_details=$13,
            refund_amount=$14, refund_transaction_id=$15, resolved_at=$16, updated_at=NOW()
        WHERE id=$17`
	cmd, err := db.Exec(ctx, query,
		dispute.Category,
		dispute.Amount,
		dispute.Description,
		dispute.State,
		dispute.Priority,
		dispute.AssignedAgentID,
		dispute.SLADeadline,
		dispute.EscalationLevel,
		dispute.EscalationReason,
		dispute.FraudScore,
		dispute.IsFraudulent,
		dispute.Outcome,
		dispute.OutcomeDetails,
		dispute.RefundAmount,
		dispute.RefundTransactionID,
		dispute.ResolvedAt,
		dispute.ID,
	)
	if err != nil {
		// A state change (reopen, appeal) can collide with another
		// non-cancelled dispute on the same transaction.
		if isUniqueViolation(err, "disputes_active_transaction_idx") {
			return domain.ErrDuplicateDispute
		}
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *disputeRepository) GetByID(ctx context.Context, id string) (*domain.Dispute, error) {
	query := `SELECT ` + disputeColumns + ` FROM disputes WHERE id=$1`
	return fetchDispute(ctx, r.pool, query, id)
}

func (r *disputeRepository) GetByReference(ctx context.Context, key string) (*domain.Dispute, error) {
	query := `SELECT ` + disputeColumns + ` FROM disputes WHERE reference_key=$1`
	return fetchDispute(ctx, r.pool, query, key)
}

func fetchDispute(ctx context.Context, db DBTX, query string, args ...any) (*domain.Dispute, error) {
	var dispute domain.Dispute
	if err := db.QueryRow(ctx, query, args...).Scan(
		&dispute.ID,
		&dispute.ReferenceKey,
		&dispute.TransactionID,
		&dispute.UserID,
		&dispute.Category,
		&dispute.Amount,
		&dispute.Description,
		&dispute.State,
		&dispute.Priority,
		&dispute.AssignedAgentID,
		&dispute.SLADeadline,
		&dispute.EscalationLevel,
		&dispute.EscalationReason,
		&dispute.FraudScore,
		&dispute.IsFraudulent,
		&dispute.Outcome,
		&dispute.OutcomeDetails,
		&dispute.RefundAmount,
		&dispute.RefundTransactionID,
		&dispute.TransactionAt,
		&dispute.CreatedAt,
		&dispute.UpdatedAt,
		&dispute.ResolvedAt,
	); err != nil {
		return nil, err
	}
	return &dispute, nil
}

func (r *disputeRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]domain.Dispute, error) {
	filter := DisputeFilter{
		UserID: &userID,
		Limit:  limit,
		Offset: offset,
	}
	return r.ListWithFilter(ctx, filter)
}

func (r *disputeRepository) ListWithFilter(ctx context.Context, filter DisputeFilter) ([]domain.Dispute, error) {
	base := `SELECT ` + disputeColumns + ` FROM disputes`
	clauses := []string{"1=1"}
	args := []any{}

	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		clauses = append(clauses, fmt.Sprintf("user_id=$%d", len(args)))
	}
	if filter.AssigneeID != nil {
		args = append(args, *filter.AssigneeID)
		clauses = append(clauses, fmt.Sprintf("assigned_agent_id=$%d", len(args)))
	}
	if filter.TransactionID != nil {
		args = append(args, *filter.TransactionID)
		clauses = append(clauses, fmt.Sprintf("transaction_id=$%d", len(args)))
	}
	if len(filter.States) > 0 {
		placeholders := make([]string, len(filter.States))
		for i, state := range filter.States {
			args = append(args, state)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("state IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, pr := range filter.Priorities {
			args = append(args, pr)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Categories) > 0 {
		placeholders := make([]string, len(filter.Categories))
		for i, cat := range filter.Categories {
			args = append(args, cat)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("category IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(LOWER(description) LIKE %s OR LOWER(reference_key) LIKE %s)", placeholder, placeholder))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY updated_at DESC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDisputes(rows)
}

func (r *disputeRepository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]domain.Dispute, error) {
	query := `SELECT ` + disputeColumns + ` FROM disputes
        WHERE state = ANY($1) AND sla_deadline IS NOT NULL AND sla_deadline < $2
        ORDER BY sla_deadline ASC LIMIT $3`
	rows, err := r.pool.Query(ctx, query, activeStateStrings(), now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDisputes(rows)
}

// ListApproaching feeds the deadline-approaching notices, which only apply to
// disputes nobody has escalated yet.
func (r *disputeRepository) ListApproaching(ctx context.Context, now time.Time, window time.Duration, limit int) ([]domain.Dispute, error) {
	query := `SELECT ` + disputeColumns + ` FROM disputes
        WHERE state = ANY($1) AND sla_deadline IS NOT NULL AND sla_deadline >= $2 AND sla_deadline <= $3
        ORDER BY sla_deadline ASC LIMIT $4`
	rows, err := r.pool.Query(ctx, query, stateStrings(domain.NotifiableStates), now, now.Add(window), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDisputes(rows)
}

func (r *disputeRepository) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]domain.Dispute, error) {
	query := `SELECT ` + disputeColumns + ` FROM disputes
        WHERE state = ANY($1) AND updated_at < $2
        ORDER BY updated_at ASC LIMIT $3`
	rows, err := r.pool.Query(ctx, query, activeStateStrings(), cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDisputes(rows)
}

func (r *disputeRepository) ListExpiredRetention(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	const query = `SELECT id FROM disputes
        WHERE state IN ('resolved','closed','cancelled') AND updated_at < $1
        ORDER BY updated_at ASC LIMIT $2`
	rows, err := r.pool.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *disputeRepository) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	cmd, err := r.pool.Exec(ctx, `DELETE FROM disputes WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

// ListTransactionTimes returns the transaction timestamps of the user's
// disputes inside [from, to]; the fraud scorer uses them for burst detection.
func (r *disputeRepository) ListTransactionTimes(ctx context.Context, userID string, from, to time.Time) ([]time.Time, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT transaction_at FROM disputes
         WHERE user_id=$1 AND transaction_at >= $2 AND transaction_at <= $3
         ORDER BY transaction_at ASC`,
		userID, from, to,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var times []time.Time
	for rows.Next() {
		var ts time.Time
		if err := rows.Scan(&ts); err != nil {
			return nil, err
		}
		times = append(times, ts)
	}
	return times, rows.Err()
}

func (r *disputeRepository) CountRecentByUser(ctx context.Context, userID string, since time.Time) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM disputes WHERE user_id=$1 AND created_at >= $2`,
		userID, since,
	).Scan(&count)
	return count, err
}

func (r *disputeRepository) CountRecentByUserCategory(ctx context.Context, userID string, category domain.DisputeCategory, since time.Time) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM disputes WHERE user_id=$1 AND category=$2 AND created_at >= $3`,
		userID, category, since,
	).Scan(&count)
	return count, err
}

func (r *disputeRepository) UserOutcomeStats(ctx context.Context, userID string) (*UserOutcomeStats, error) {
	const query = `
        SELECT COUNT(*),
               COUNT(*) FILTER (WHERE created_at >= NOW() - INTERVAL '30 days'),
               COUNT(*) FILTER (WHERE state IN ('resolved','closed')),
               COUNT(*) FILTER (WHERE outcome = 'user_favor')
        FROM disputes WHERE user_id=$1`
	var stats UserOutcomeStats
	if err := r.pool.QueryRow(ctx, query, userID).Scan(
		&stats.TotalDisputes,
		&stats.DisputesLast30Days,
		&stats.ResolvedDisputes,
		&stats.FavorableOutcomes,
	); err != nil {
		return nil, err
	}
	return &stats, nil
}

func activeStateStrings() []string {
	return stateStrings(domain.ActiveStates)
}

func stateStrings(states []domain.DisputeState) []string {
	out := make([]string, len(states))
	for i, s := range states {
		out[i] = string(s)
	}
	return out
}

func scanDisputes(rows pgx.Rows) ([]domain.Dispute, error) {
	var result []domain.Dispute
	for rows.Next() {
		var dispute domain.Dispute
		if err := rows.Scan(
			&dispute.ID,
			&dispute.ReferenceKey,
			&dispute.TransactionID,
			&dispute.UserID,
			&dispute.Category,
			&dispute.Amount,
			&dispute.Description,
			&dispute.State,
			&dispute.Priority,
			&dispute.AssignedAgentID,
			&dispute.SLADeadline,
			&dispute.EscalationLevel,
			&dispute.EscalationReason,
			&dispute.FraudScore,
			&dispute.IsFraudulent,
			&dispute.Outcome,
			&dispute.OutcomeDetails,
			&dispute.RefundAmount,
			&dispute.RefundTransactionID,
			&dispute.TransactionAt,
			&dispute.CreatedAt,
			&dispute.UpdatedAt,
			&dispute.ResolvedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, dispute)
	}
	return result, rows.Err()
}
