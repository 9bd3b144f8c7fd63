package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/invoscore/backend/internal/storage/models"
)

// AssessmentRepo persists immutable assessment versions. Factors,
// evidence, and the adjustment trace are stored as JSON documents
// alongside the indexed columns.
type AssessmentRepo struct {
	db *sql.DB
}

func NewAssessmentRepo(c *Client) *AssessmentRepo {
	return &AssessmentRepo{db: c.db}
}

func (r *AssessmentRepo) Create(ctx context.Context, a *models.Assessment) error {
	factors, err := json.Marshal(a.Factors)
	if err != nil {
		return fmt.Errorf("failed to encode factors: %w", err)
	}
	evidence, err := json.Marshal(a.Evidence)
	if err != nil {
		return fmt.Errorf("failed to encode evidence: %w", err)
	}
	var trace []byte
	if a.AdjustmentTrace != nil {
		trace, err = json.Marshal(a.AdjustmentTrace)
		if err != nil {
			return fmt.Errorf("failed to encode adjustment trace: %w", err)
		}
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO assessments (id, buyer_id, tenant_id, model_version, version,
			previous_assessment_id, score_value, confidence_level, risk_level, status,
			data_sufficiency, factors, evidence, adjustment_trace, assessed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.BuyerID, a.TenantID, a.ModelVersion, a.Version,
		a.PreviousAssessmentID, a.ScoreValue, string(a.ConfidenceLevel), string(a.RiskLevel),
		string(a.Status), a.DataSufficiency, string(factors), string(evidence),
		string(trace), a.AssessedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert assessment: %w", err)
	}
	return nil
}

func (r *AssessmentRepo) FindByID(ctx context.Context, id string) (*models.Assessment, error) {
	row := r.db.QueryRowContext(ctx, selectAssessment+" WHERE id = ?", id)
	return scanAssessment(row)
}

func (r *AssessmentRepo) FindLatestByBuyer(ctx context.Context, buyerID, tenantID string) (*models.Assessment, error) {
	row := r.db.QueryRowContext(ctx,
		selectAssessment+" WHERE buyer_id = ? AND tenant_id = ? ORDER BY version DESC LIMIT 1",
		buyerID, tenantID)
	return scanAssessment(row)
}

func (r *AssessmentRepo) FindRecentByBuyer(ctx context.Context, buyerID, tenantID string, limit int) ([]*models.Assessment, error) {
	rows, err := r.db.QueryContext(ctx,
		selectAssessment+" WHERE buyer_id = ? AND tenant_id = ? ORDER BY version DESC LIMIT ?",
		buyerID, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query assessments: %w", err)
	}
	defer rows.Close()

	var out []*models.Assessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *AssessmentRepo) MarkSuperseded(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE assessments SET status = ? WHERE id = ?",
		string(models.AssessmentSuperseded), id)
	if err != nil {
		return fmt.Errorf("failed to mark assessment superseded: %w", err)
	}
	return nil
}

const selectAssessment = `
	SELECT id, buyer_id, tenant_id, model_version, version, previous_assessment_id,
		score_value, confidence_level, risk_level, status, data_sufficiency,
		factors, evidence, adjustment_trace, assessed_at
	FROM assessments`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAssessment(row rowScanner) (*models.Assessment, error) {
	var a models.Assessment
	var confidence, riskLevel, status string
	var factors, evidence, trace sql.NullString
	var assessedAt int64

	err := row.Scan(&a.ID, &a.BuyerID, &a.TenantID, &a.ModelVersion, &a.Version,
		&a.PreviousAssessmentID, &a.ScoreValue, &confidence, &riskLevel, &status,
		&a.DataSufficiency, &factors, &evidence, &trace, &assessedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan assessment: %w", err)
	}

	a.ConfidenceLevel = models.ConfidenceLevel(confidence)
	a.RiskLevel = models.RiskLevel(riskLevel)
	a.Status = models.AssessmentStatus(status)
	a.AssessedAt = time.Unix(assessedAt, 0)

	if factors.Valid && factors.String != "" {
		if err := json.Unmarshal([]byte(factors.String), &a.Factors); err != nil {
			return nil, fmt.Errorf("failed to decode factors: %w", err)
		}
	}
	if evidence.Valid && evidence.String != "" {
		if err := json.Unmarshal([]byte(evidence.String), &a.Evidence); err != nil {
			return nil, fmt.Errorf("failed to decode evidence: %w", err)
		}
	}
	if trace.Valid && trace.String != "" {
		a.AdjustmentTrace = &models.AdjustmentTrace{}
		if err := json.Unmarshal([]byte(trace.String), a.AdjustmentTrace); err != nil {
			return nil, fmt.Errorf("failed to decode adjustment trace: %w", err)
		}
	}
	return &a, nil
}
