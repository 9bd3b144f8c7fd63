package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/invoscore/backend/internal/storage/models"
)

type PaymentRepo struct {
	db *sql.DB
}

func NewPaymentRepo(c *Client) *PaymentRepo {
	return &PaymentRepo{db: c.db}
}

func (r *PaymentRepo) Create(ctx context.Context, p *models.PaymentRecord) error {
	onTime := 0
	if p.OnTime {
		onTime = 1
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payment_records (id, buyer_id, tenant_id, amount, due_date,
			paid_date, days_late, on_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.BuyerID, p.TenantID, p.Amount, p.DueDate.Unix(),
		unixPtr(p.PaidDate), p.DaysLate, onTime)
	if err != nil {
		return fmt.Errorf("failed to insert payment record: %w", err)
	}
	return nil
}

// FindByBuyer returns records with due dates after since, newest first.
func (r *PaymentRepo) FindByBuyer(ctx context.Context, buyerID, tenantID string, since time.Time) ([]*models.PaymentRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, buyer_id, tenant_id, amount, due_date, paid_date, days_late, on_time
		FROM payment_records
		WHERE buyer_id = ? AND tenant_id = ? AND due_date >= ?
		ORDER BY due_date DESC`,
		buyerID, tenantID, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query payment records: %w", err)
	}
	defer rows.Close()

	var out []*models.PaymentRecord
	for rows.Next() {
		var p models.PaymentRecord
		var dueDate int64
		var paidDate sql.NullInt64
		var onTime int
		if err := rows.Scan(&p.ID, &p.BuyerID, &p.TenantID, &p.Amount, &dueDate,
			&paidDate, &p.DaysLate, &onTime); err != nil {
			return nil, fmt.Errorf("failed to scan payment record: %w", err)
		}
		p.DueDate = time.Unix(dueDate, 0)
		p.PaidDate = timePtr(paidDate)
		p.OnTime = onTime == 1
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (r *PaymentRepo) MaxPaymentAmount(ctx context.Context, buyerID, tenantID string, since time.Time) (float64, error) {
	var max sql.NullFloat64
	err := r.db.QueryRowContext(ctx, `
		SELECT MAX(amount) FROM payment_records
		WHERE buyer_id = ? AND tenant_id = ? AND due_date >= ?`,
		buyerID, tenantID, since.Unix()).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("failed to query max payment amount: %w", err)
	}
	if !max.Valid {
		return 0, nil
	}
	return max.Float64, nil
}
