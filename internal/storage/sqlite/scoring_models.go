package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/invoscore/backend/internal/storage/models"
)

type ScoringModelRepo struct {
	db *sql.DB
}

func NewScoringModelRepo(c *Client) *ScoringModelRepo {
	return &ScoringModelRepo{db: c.db}
}

func (r *ScoringModelRepo) Create(ctx context.Context, m *models.ScoringModel) error {
	factors, err := json.Marshal(m.Factors)
	if err != nil {
		return fmt.Errorf("failed to encode factor definitions: %w", err)
	}

	isDefault := 0
	if m.IsDefault {
		isDefault = 1
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO scoring_models (id, tenant_id, version, industry, is_default,
			min_score, max_score, factors, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.TenantID, m.Version, m.Industry, isDefault,
		m.MinScore, m.MaxScore, string(factors), m.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert scoring model: %w", err)
	}
	return nil
}

func (r *ScoringModelRepo) FindByVersion(ctx context.Context, tenantID, version string) (*models.ScoringModel, error) {
	row := r.db.QueryRowContext(ctx,
		selectModel+" WHERE tenant_id = ? AND version = ?", tenantID, version)
	return scanModel(row)
}

func (r *ScoringModelRepo) FindDefaultForIndustry(ctx context.Context, tenantID, industryCode string) (*models.ScoringModel, error) {
	row := r.db.QueryRowContext(ctx,
		selectModel+" WHERE tenant_id = ? AND industry = ? AND is_default = 1 ORDER BY created_at DESC LIMIT 1",
		tenantID, industryCode)
	return scanModel(row)
}

func (r *ScoringModelRepo) FindTenantDefault(ctx context.Context, tenantID string) (*models.ScoringModel, error) {
	row := r.db.QueryRowContext(ctx,
		selectModel+" WHERE tenant_id = ? AND industry = '' AND is_default = 1 ORDER BY created_at DESC LIMIT 1",
		tenantID)
	return scanModel(row)
}

const selectModel = `
	SELECT id, tenant_id, version, industry, is_default, min_score, max_score, factors, created_at
	FROM scoring_models`

func scanModel(row rowScanner) (*models.ScoringModel, error) {
	var m models.ScoringModel
	var isDefault int
	var factors string
	var createdAt int64

	err := row.Scan(&m.ID, &m.TenantID, &m.Version, &m.Industry, &isDefault,
		&m.MinScore, &m.MaxScore, &factors, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan scoring model: %w", err)
	}

	m.IsDefault = isDefault == 1
	m.CreatedAt = time.Unix(createdAt, 0)
	if err := json.Unmarshal([]byte(factors), &m.Factors); err != nil {
		return nil, fmt.Errorf("failed to decode factor definitions: %w", err)
	}
	return &m, nil
}
