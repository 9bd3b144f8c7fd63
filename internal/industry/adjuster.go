// Package industry shifts a raw credit score by structural sector and
// regional risk. Every sector shares one generic evaluator walking a
// strategy table of named adjustments; sectors differ only in which
// adjustments they amplify.
package industry

import (
	"context"

	"go.uber.org/zap"

	"github.com/invoscore/backend/internal/ports"
	"github.com/invoscore/backend/internal/storage/models"
	"github.com/invoscore/backend/pkg/logger"
)

type ratingSource int

const (
	fromIndustry ratingSource = iota
	fromRegional
)

// adjustmentDef is one entry in a sector strategy: the rating it reads,
// its coefficient, the neutral midpoint subtracted from the rating, and
// a sector-specific multiplier.
type adjustmentDef struct {
	Name        string
	Source      ratingSource
	Coefficient float64
	Neutral     float64
	Multiplier  float64
}

const (
	SectorManufacturing = "manufacturing"
	SectorRetail        = "retail"
	SectorConstruction  = "construction"
	SectorIT            = "it"
	SectorDefault       = "default"
)

var baseStrategy = []adjustmentDef{
	{Name: "seasonality", Source: fromIndustry, Coefficient: -0.3, Neutral: 5, Multiplier: 1},
	{Name: "supply_chain", Source: fromIndustry, Coefficient: -0.5, Neutral: 5, Multiplier: 1},
	{Name: "working_capital", Source: fromIndustry, Coefficient: -0.4, Neutral: 5, Multiplier: 1},
	{Name: "competitive_intensity", Source: fromIndustry, Coefficient: -0.4, Neutral: 5, Multiplier: 1},
	{Name: "tech_disruption", Source: fromIndustry, Coefficient: -0.5, Neutral: 5, Multiplier: 1},
	{Name: "regulatory_burden", Source: fromIndustry, Coefficient: -0.4, Neutral: 5, Multiplier: 1},
	{Name: "base_risk", Source: fromIndustry, Coefficient: -1, Neutral: 5, Multiplier: 1},
	{Name: "default_rate", Source: fromIndustry, Coefficient: -1, Neutral: 2, Multiplier: 1},
	{Name: "growth_trend", Source: fromIndustry, Coefficient: 0.05, Neutral: 0, Multiplier: 1},
	{Name: "infrastructure", Source: fromRegional, Coefficient: 0.4, Neutral: 5, Multiplier: 1},
	{Name: "labor_availability", Source: fromRegional, Coefficient: 0.3, Neutral: 5, Multiplier: 1},
	{Name: "economic_stability", Source: fromRegional, Coefficient: 0.5, Neutral: 5, Multiplier: 1},
	{Name: "policy_support", Source: fromRegional, Coefficient: 0.4, Neutral: 5, Multiplier: 1},
	{Name: "disaster_exposure", Source: fromRegional, Coefficient: -0.3, Neutral: 5, Multiplier: 1},
	{Name: "regional_risk_level", Source: fromRegional, Coefficient: -1, Neutral: 0, Multiplier: 1},
}

// sectorMultipliers amplify specific adjustments per sector. Sectors
// without an entry fall through to the base strategy unchanged.
var sectorMultipliers = map[string]map[string]float64{
	SectorRetail: {
		"seasonality":        1.5,
		"economic_stability": 1.5,
	},
	SectorConstruction: {
		"seasonality":       1.2,
		"regulatory_burden": 1.5,
		"policy_support":    1.5,
	},
	SectorIT: {
		"tech_disruption":    2.0,
		"infrastructure":     1.5,
		"labor_availability": 1.8,
	},
}

var sectorStrategies = buildStrategies()

func buildStrategies() map[string][]adjustmentDef {
	strategies := map[string][]adjustmentDef{
		SectorManufacturing: baseStrategy,
		SectorDefault:       baseStrategy,
	}
	for sector, overrides := range sectorMultipliers {
		defs := make([]adjustmentDef, len(baseStrategy))
		copy(defs, baseStrategy)
		for i := range defs {
			if m, ok := overrides[defs[i].Name]; ok {
				defs[i].Multiplier = m
			}
		}
		strategies[sector] = defs
	}
	return strategies
}

type Adjuster struct {
	repo ports.IndustryRepository
	log  *zap.Logger
}

func NewAdjuster(repo ports.IndustryRepository) *Adjuster {
	return &Adjuster{repo: repo, log: logger.Named("industry")}
}

// Adjust applies the sector strategy to score and returns a full trace.
// Missing industry or regional data skips the affected adjustments
// rather than failing the run.
func (a *Adjuster) Adjust(ctx context.Context, score float64, profile *models.BuyerProfile, factors []models.RiskFactor) *models.AdjustmentTrace {
	trace := &models.AdjustmentTrace{
		OriginalScore:   score,
		Adjustments:     map[string]float64{},
		IndustryFactors: map[string]float64{},
		RegionalFactors: map[string]float64{},
	}

	var industryProfile *models.IndustryRiskProfile
	var regional *models.RegionalRiskAdjustment

	if profile != nil && profile.IndustryCode != "" {
		ip, err := a.repo.FindProfile(ctx, profile.IndustryCode)
		if err != nil {
			a.log.Warn("industry profile lookup failed",
				zap.String("industry_code", profile.IndustryCode), zap.Error(err))
		} else {
			industryProfile = ip
		}
	}
	if profile != nil && profile.RegionCode != "" {
		ra, err := a.repo.FindRegional(ctx, profile.RegionCode)
		if err != nil {
			a.log.Warn("regional adjustment lookup failed",
				zap.String("region_code", profile.RegionCode), zap.Error(err))
		} else {
			regional = ra
		}
	}

	sector := SectorDefault
	if profile != nil {
		if _, ok := sectorStrategies[profile.Sector]; ok {
			sector = profile.Sector
		}
	}
	trace.SectorAlgorithm = sector

	adjusted := score
	for _, def := range sectorStrategies[sector] {
		rating, ok := ratingValue(def, industryProfile, regional)
		if !ok {
			continue
		}
		delta := def.Coefficient * (rating - def.Neutral) * def.Multiplier
		trace.Adjustments[def.Name] = delta
		adjusted += delta
		if def.Source == fromIndustry {
			trace.IndustryFactors[def.Name] = rating
		} else {
			trace.RegionalFactors[def.Name] = rating
		}
	}

	// Per-factor industry weightings get equal treatment across sectors.
	if industryProfile != nil {
		for _, f := range industryProfile.Factors {
			delta := -(f.RiskScore - 5) * f.Weight / 100
			trace.Adjustments["industry_factor:"+f.Name] = delta
			trace.IndustryFactors[f.Name] = f.RiskScore
			adjusted += delta
		}
	}

	if adjusted < 0 {
		adjusted = 0
	}
	if adjusted > 100 {
		adjusted = 100
	}
	trace.AdjustedScore = adjusted
	return trace
}

func ratingValue(def adjustmentDef, ip *models.IndustryRiskProfile, ra *models.RegionalRiskAdjustment) (float64, bool) {
	switch def.Source {
	case fromIndustry:
		if ip == nil {
			return 0, false
		}
		switch def.Name {
		case "seasonality":
			return ip.SeasonalityImpact, true
		case "supply_chain":
			return ip.SupplyChainRisk, true
		case "working_capital":
			return ip.WorkingCapitalNeed, true
		case "competitive_intensity":
			return ip.CompetitiveIntensity, true
		case "tech_disruption":
			return ip.TechDisruptionRisk, true
		case "regulatory_burden":
			return ip.RegulatoryBurden, true
		case "base_risk":
			return ip.BaseRiskRating, true
		case "default_rate":
			return ip.DefaultRate, true
		case "growth_trend":
			return ip.GrowthTrend, true
		}
	case fromRegional:
		if ra == nil {
			return 0, false
		}
		switch def.Name {
		case "infrastructure":
			return ra.InfrastructureQuality, true
		case "labor_availability":
			return ra.LaborAvailability, true
		case "economic_stability":
			return ra.EconomicStability, true
		case "policy_support":
			return ra.PolicySupport, true
		case "disaster_exposure":
			return ra.DisasterExposure, true
		case "regional_risk_level":
			return ra.RiskLevel, true
		}
	}
	return 0, false
}
