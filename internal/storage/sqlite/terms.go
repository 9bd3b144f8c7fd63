package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/invoscore/backend/internal/storage/models"
)

type PaymentTermsRepo struct {
	db *sql.DB
}

func NewPaymentTermsRepo(c *Client) *PaymentTermsRepo {
	return &PaymentTermsRepo{db: c.db}
}

func (r *PaymentTermsRepo) Upsert(ctx context.Context, t *models.PaymentTerms) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payment_terms (id, organization_id, buyer_id, risk_category,
			term_days, early_discount_pct, late_fee_pct, deposit_pct,
			installments_allowed, source, review_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(organization_id, buyer_id) DO UPDATE SET
			risk_category = excluded.risk_category,
			term_days = excluded.term_days,
			early_discount_pct = excluded.early_discount_pct,
			late_fee_pct = excluded.late_fee_pct,
			deposit_pct = excluded.deposit_pct,
			installments_allowed = excluded.installments_allowed,
			source = excluded.source,
			review_at = excluded.review_at,
			updated_at = excluded.updated_at`,
		t.ID, t.OrganizationID, t.BuyerID, t.RiskCategory,
		t.TermDays, t.EarlyDiscountPct, t.LateFeePct, t.DepositPct,
		t.InstallmentsAllowed, t.Source, t.ReviewAt.Unix(),
		t.CreatedAt.Unix(), t.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert payment terms: %w", err)
	}
	return nil
}

func (r *PaymentTermsRepo) FindByBuyer(ctx context.Context, orgID, buyerID string) (*models.PaymentTerms, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, organization_id, buyer_id, risk_category, term_days,
			early_discount_pct, late_fee_pct, deposit_pct, installments_allowed,
			source, review_at, created_at, updated_at
		FROM payment_terms WHERE organization_id = ? AND buyer_id = ?`,
		orgID, buyerID)

	var t models.PaymentTerms
	var reviewAt, createdAt, updatedAt int64

	err := row.Scan(&t.ID, &t.OrganizationID, &t.BuyerID, &t.RiskCategory,
		&t.TermDays, &t.EarlyDiscountPct, &t.LateFeePct, &t.DepositPct,
		&t.InstallmentsAllowed, &t.Source, &reviewAt, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan payment terms: %w", err)
	}

	t.ReviewAt = time.Unix(reviewAt, 0)
	t.CreatedAt = time.Unix(createdAt, 0)
	t.UpdatedAt = time.Unix(updatedAt, 0)
	return &t, nil
}
