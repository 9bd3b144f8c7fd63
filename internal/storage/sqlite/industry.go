package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/invoscore/backend/internal/storage/models"
)

type IndustryRepo struct {
	db *sql.DB
}

func NewIndustryRepo(c *Client) *IndustryRepo {
	return &IndustryRepo{db: c.db}
}

func (r *IndustryRepo) FindProfile(ctx context.Context, industryCode string) (*models.IndustryRiskProfile, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, industry_code, sector, seasonality_impact, supply_chain_risk,
			working_capital_need, competitive_intensity, tech_disruption_risk,
			regulatory_burden, base_risk_rating, default_rate, growth_trend,
			benchmark_credit_amount, factors
		FROM industry_risk_profiles WHERE industry_code = ?`, industryCode)

	var p models.IndustryRiskProfile
	var factors sql.NullString

	err := row.Scan(&p.ID, &p.IndustryCode, &p.Sector, &p.SeasonalityImpact,
		&p.SupplyChainRisk, &p.WorkingCapitalNeed, &p.CompetitiveIntensity,
		&p.TechDisruptionRisk, &p.RegulatoryBurden, &p.BaseRiskRating,
		&p.DefaultRate, &p.GrowthTrend, &p.BenchmarkCreditAmount, &factors)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan industry profile: %w", err)
	}

	if factors.Valid && factors.String != "" {
		if err := json.Unmarshal([]byte(factors.String), &p.Factors); err != nil {
			return nil, fmt.Errorf("failed to decode industry factors: %w", err)
		}
	}
	return &p, nil
}

func (r *IndustryRepo) FindRegional(ctx context.Context, regionCode string) (*models.RegionalRiskAdjustment, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, region_code, infrastructure_quality, labor_availability,
			economic_stability, policy_support, disaster_exposure, risk_level
		FROM regional_risk_adjustments WHERE region_code = ?`, regionCode)

	var a models.RegionalRiskAdjustment
	err := row.Scan(&a.ID, &a.RegionCode, &a.InfrastructureQuality,
		&a.LaborAvailability, &a.EconomicStability, &a.PolicySupport,
		&a.DisasterExposure, &a.RiskLevel)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan regional adjustment: %w", err)
	}
	return &a, nil
}
