package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/invoscore/backend/internal/storage/models"
)

type RiskIndicatorRepo struct {
	db *sql.DB
}

func NewRiskIndicatorRepo(c *Client) *RiskIndicatorRepo {
	return &RiskIndicatorRepo{db: c.db}
}

// CreateBatch persists one detection run's indicators in a single
// transaction.
func (r *RiskIndicatorRepo) CreateBatch(ctx context.Context, indicators []*models.RiskIndicator) error {
	if len(indicators) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO risk_indicators (id, buyer_id, tenant_id, type, risk_level,
			value, threshold, trend, confidence, status, notes, detected_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare indicator insert: %w", err)
	}
	defer stmt.Close()

	for _, ind := range indicators {
		_, err := stmt.ExecContext(ctx, ind.ID, ind.BuyerID, ind.TenantID,
			string(ind.Type), string(ind.RiskLevel), ind.Value, ind.Threshold,
			ind.Trend, ind.Confidence, string(ind.Status), ind.Notes,
			ind.DetectedAt.Unix(), ind.UpdatedAt.Unix())
		if err != nil {
			return fmt.Errorf("failed to insert risk indicator: %w", err)
		}
	}
	return tx.Commit()
}

func (r *RiskIndicatorRepo) FindByID(ctx context.Context, id string) (*models.RiskIndicator, error) {
	row := r.db.QueryRowContext(ctx, selectIndicator+" WHERE id = ?", id)
	return scanIndicator(row)
}

func (r *RiskIndicatorRepo) FindActiveByBuyer(ctx context.Context, buyerID, tenantID string) ([]*models.RiskIndicator, error) {
	rows, err := r.db.QueryContext(ctx,
		selectIndicator+" WHERE buyer_id = ? AND tenant_id = ? AND status IN (?, ?) ORDER BY detected_at DESC",
		buyerID, tenantID, string(models.IndicatorActive), string(models.IndicatorAcknowledged))
	if err != nil {
		return nil, fmt.Errorf("failed to query risk indicators: %w", err)
	}
	defer rows.Close()

	var out []*models.RiskIndicator
	for rows.Next() {
		ind, err := scanIndicator(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ind)
	}
	return out, rows.Err()
}

func (r *RiskIndicatorRepo) UpdateStatus(ctx context.Context, id string, status models.IndicatorStatus, notes string) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE risk_indicators SET status = ?, notes = ?, updated_at = ? WHERE id = ?",
		string(status), notes, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to update indicator status: %w", err)
	}
	return nil
}

const selectIndicator = `
	SELECT id, buyer_id, tenant_id, type, risk_level, value, threshold, trend,
		confidence, status, notes, detected_at, updated_at
	FROM risk_indicators`

func scanIndicator(row rowScanner) (*models.RiskIndicator, error) {
	var ind models.RiskIndicator
	var typ, level, status string
	var detectedAt, updatedAt int64

	err := row.Scan(&ind.ID, &ind.BuyerID, &ind.TenantID, &typ, &level,
		&ind.Value, &ind.Threshold, &ind.Trend, &ind.Confidence, &status,
		&ind.Notes, &detectedAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan risk indicator: %w", err)
	}

	ind.Type = models.IndicatorType(typ)
	ind.RiskLevel = models.RiskLevel(level)
	ind.Status = models.IndicatorStatus(status)
	ind.DetectedAt = time.Unix(detectedAt, 0)
	ind.UpdatedAt = time.Unix(updatedAt, 0)
	return &ind, nil
}
