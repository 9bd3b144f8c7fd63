package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/invoscore/backend/internal/storage/models"
)

type CreditLimitRepo struct {
	db *sql.DB
}

func NewCreditLimitRepo(c *Client) *CreditLimitRepo {
	return &CreditLimitRepo{db: c.db}
}

func (r *CreditLimitRepo) Create(ctx context.Context, l *models.CreditLimit) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO credit_limits (id, buyer_id, tenant_id, assessment_id,
			approved_limit, temporary_increase, temporary_expires_at,
			current_utilization, status, calculation_method, review_date,
			expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.BuyerID, l.TenantID, l.AssessmentID,
		l.ApprovedLimit, nullableFloat(l.TemporaryIncrease), unixPtr(l.TemporaryExpiresAt),
		l.CurrentUtilization, string(l.Status), l.CalculationMethod, l.ReviewDate.Unix(),
		unixPtr(l.ExpiresAt), l.CreatedAt.Unix(), l.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert credit limit: %w", err)
	}
	return nil
}

func (r *CreditLimitRepo) Update(ctx context.Context, l *models.CreditLimit) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE credit_limits SET approved_limit = ?, temporary_increase = ?,
			temporary_expires_at = ?, current_utilization = ?, status = ?,
			review_date = ?, expires_at = ?, updated_at = ?
		WHERE id = ?`,
		l.ApprovedLimit, nullableFloat(l.TemporaryIncrease), unixPtr(l.TemporaryExpiresAt),
		l.CurrentUtilization, string(l.Status), l.ReviewDate.Unix(),
		unixPtr(l.ExpiresAt), l.UpdatedAt.Unix(), l.ID)
	if err != nil {
		return fmt.Errorf("failed to update credit limit: %w", err)
	}
	return nil
}

func (r *CreditLimitRepo) FindByID(ctx context.Context, id string) (*models.CreditLimit, error) {
	row := r.db.QueryRowContext(ctx, selectLimit+" WHERE id = ?", id)
	return scanLimit(row)
}

func (r *CreditLimitRepo) FindActiveByBuyer(ctx context.Context, buyerID, tenantID string) (*models.CreditLimit, error) {
	row := r.db.QueryRowContext(ctx,
		selectLimit+" WHERE buyer_id = ? AND tenant_id = ? AND status = ? LIMIT 1",
		buyerID, tenantID, string(models.LimitApproved))
	return scanLimit(row)
}

func (r *CreditLimitRepo) ListActiveBuyers(ctx context.Context, tenantID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT DISTINCT buyer_id FROM credit_limits WHERE tenant_id = ? AND status = ?",
		tenantID, string(models.LimitApproved))
	if err != nil {
		return nil, fmt.Errorf("failed to list active buyers: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan buyer id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *CreditLimitRepo) ListExpiring(ctx context.Context, tenantID string, before time.Time) ([]*models.CreditLimit, error) {
	return r.queryLimits(ctx,
		selectLimit+" WHERE tenant_id = ? AND status = ? AND expires_at IS NOT NULL AND expires_at <= ?",
		tenantID, string(models.LimitApproved), before.Unix())
}

func (r *CreditLimitRepo) ListDueForReview(ctx context.Context, tenantID string, before time.Time) ([]*models.CreditLimit, error) {
	return r.queryLimits(ctx,
		selectLimit+" WHERE tenant_id = ? AND status = ? AND review_date <= ?",
		tenantID, string(models.LimitApproved), before.Unix())
}

func (r *CreditLimitRepo) ListHighUtilization(ctx context.Context, tenantID string, thresholdPct float64) ([]*models.CreditLimit, error) {
	// Utilization percentage is derived against the approved limit here;
	// temporary increases are applied in memory by the caller.
	return r.queryLimits(ctx,
		selectLimit+` WHERE tenant_id = ? AND status = ? AND approved_limit > 0
			AND current_utilization / approved_limit * 100 >= ?`,
		tenantID, string(models.LimitApproved), thresholdPct)
}

func (r *CreditLimitRepo) queryLimits(ctx context.Context, query string, args ...any) ([]*models.CreditLimit, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query credit limits: %w", err)
	}
	defer rows.Close()

	var out []*models.CreditLimit
	for rows.Next() {
		l, err := scanLimit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *CreditLimitRepo) AppendHistory(ctx context.Context, h *models.CreditLimitHistory) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO credit_limit_history (id, credit_limit_id, buyer_id, action,
			previous_limit, new_limit, reason, actor_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.ID, h.CreditLimitID, h.BuyerID, h.Action,
		h.PreviousLimit, h.NewLimit, h.Reason, h.ActorID, h.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to append limit history: %w", err)
	}
	return nil
}

func (r *CreditLimitRepo) ListHistory(ctx context.Context, creditLimitID string) ([]*models.CreditLimitHistory, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, credit_limit_id, buyer_id, action, previous_limit, new_limit,
			reason, actor_id, created_at
		FROM credit_limit_history WHERE credit_limit_id = ? ORDER BY created_at`,
		creditLimitID)
	if err != nil {
		return nil, fmt.Errorf("failed to query limit history: %w", err)
	}
	defer rows.Close()

	var out []*models.CreditLimitHistory
	for rows.Next() {
		var h models.CreditLimitHistory
		var createdAt int64
		if err := rows.Scan(&h.ID, &h.CreditLimitID, &h.BuyerID, &h.Action,
			&h.PreviousLimit, &h.NewLimit, &h.Reason, &h.ActorID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan limit history: %w", err)
		}
		h.CreatedAt = time.Unix(createdAt, 0)
		out = append(out, &h)
	}
	return out, rows.Err()
}

func (r *CreditLimitRepo) CreateApproval(ctx context.Context, a *models.CreditLimitApproval) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO credit_limit_approvals (id, credit_limit_id, buyer_id,
			proposed_limit, current_limit, reason, status, requested_at,
			decided_at, decided_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.CreditLimitID, a.BuyerID, a.ProposedLimit, a.CurrentLimit,
		a.Reason, string(a.Status), a.RequestedAt.Unix(), unixPtr(a.DecidedAt), a.DecidedBy)
	if err != nil {
		return fmt.Errorf("failed to insert limit approval: %w", err)
	}
	return nil
}

func (r *CreditLimitRepo) FindApprovalByID(ctx context.Context, id string) (*models.CreditLimitApproval, error) {
	row := r.db.QueryRowContext(ctx, selectApproval+" WHERE id = ?", id)
	return scanApproval(row)
}

func (r *CreditLimitRepo) FindPendingApproval(ctx context.Context, creditLimitID string) (*models.CreditLimitApproval, error) {
	row := r.db.QueryRowContext(ctx,
		selectApproval+" WHERE credit_limit_id = ? AND status = ? LIMIT 1",
		creditLimitID, string(models.ApprovalPending))
	return scanApproval(row)
}

func (r *CreditLimitRepo) UpdateApproval(ctx context.Context, a *models.CreditLimitApproval) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE credit_limit_approvals SET status = ?, decided_at = ?, decided_by = ?
		WHERE id = ?`,
		string(a.Status), unixPtr(a.DecidedAt), a.DecidedBy, a.ID)
	if err != nil {
		return fmt.Errorf("failed to update limit approval: %w", err)
	}
	return nil
}

const selectLimit = `
	SELECT id, buyer_id, tenant_id, assessment_id, approved_limit,
		temporary_increase, temporary_expires_at, current_utilization, status,
		calculation_method, review_date, expires_at, created_at, updated_at
	FROM credit_limits`

func scanLimit(row rowScanner) (*models.CreditLimit, error) {
	var l models.CreditLimit
	var tempIncrease sql.NullFloat64
	var tempExpires, expiresAt sql.NullInt64
	var status string
	var reviewDate, createdAt, updatedAt int64

	err := row.Scan(&l.ID, &l.BuyerID, &l.TenantID, &l.AssessmentID, &l.ApprovedLimit,
		&tempIncrease, &tempExpires, &l.CurrentUtilization, &status,
		&l.CalculationMethod, &reviewDate, &expiresAt, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan credit limit: %w", err)
	}

	l.TemporaryIncrease = floatPtr(tempIncrease)
	l.TemporaryExpiresAt = timePtr(tempExpires)
	l.ExpiresAt = timePtr(expiresAt)
	l.Status = models.LimitStatus(status)
	l.ReviewDate = time.Unix(reviewDate, 0)
	l.CreatedAt = time.Unix(createdAt, 0)
	l.UpdatedAt = time.Unix(updatedAt, 0)
	return &l, nil
}

const selectApproval = `
	SELECT id, credit_limit_id, buyer_id, proposed_limit, current_limit, reason,
		status, requested_at, decided_at, decided_by
	FROM credit_limit_approvals`

func scanApproval(row rowScanner) (*models.CreditLimitApproval, error) {
	var a models.CreditLimitApproval
	var status string
	var requestedAt int64
	var decidedAt sql.NullInt64

	err := row.Scan(&a.ID, &a.CreditLimitID, &a.BuyerID, &a.ProposedLimit,
		&a.CurrentLimit, &a.Reason, &status, &requestedAt, &decidedAt, &a.DecidedBy)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan limit approval: %w", err)
	}

	a.Status = models.ApprovalStatus(status)
	a.RequestedAt = time.Unix(requestedAt, 0)
	a.DecidedAt = timePtr(decidedAt)
	return &a, nil
}
