package scoring

import "github.com/invoscore/backend/internal/storage/models"

type AggregateResult struct {
	ScoreValue      float64
	ConfidenceLevel models.ConfidenceLevel
	RiskLevel       models.RiskLevel
}

// Aggregate combines factor contributions into one bounded score.
// Confidence degrades with the share of factors that errored or
// normalized to exactly zero; risk level is a fixed bucket mapping of
// the normalized score that downstream consumers depend on.
func Aggregate(factors []models.RiskFactor, model *models.ScoringModel) AggregateResult {
	var sumContribution, sumWeight float64
	for _, f := range factors {
		sumContribution += f.Contribution
		sumWeight += f.Weight
	}

	normalized := 0.0
	if sumWeight > 0 {
		normalized = sumContribution * 100 / sumWeight
	}

	score := model.MinScore + normalized/100*(model.MaxScore-model.MinScore)
	score = round2(clamp(score, model.MinScore, model.MaxScore))

	return AggregateResult{
		ScoreValue:      score,
		ConfidenceLevel: ConfidenceFor(factors),
		RiskLevel:       RiskLevelFor(normalized),
	}
}

func ConfidenceFor(factors []models.RiskFactor) models.ConfidenceLevel {
	if len(factors) == 0 {
		return models.ConfidenceVeryLow
	}
	degraded := 0
	for _, f := range factors {
		if f.ErrorNote != "" || f.NormalizedValue == 0 {
			degraded++
		}
	}
	share := float64(degraded) / float64(len(factors)) * 100
	switch {
	case share >= 50:
		return models.ConfidenceVeryLow
	case share >= 30:
		return models.ConfidenceLow
	case share >= 15:
		return models.ConfidenceModerate
	case share >= 5:
		return models.ConfidenceHigh
	default:
		return models.ConfidenceVeryHigh
	}
}

// RiskLevelFor maps a 0-100 normalized score to its risk bucket.
// Pure function; the thresholds are a contract other services read.
func RiskLevelFor(normalized float64) models.RiskLevel {
	switch {
	case normalized >= 90:
		return models.RiskVeryLow
	case normalized >= 75:
		return models.RiskLow
	case normalized >= 50:
		return models.RiskMedium
	case normalized >= 25:
		return models.RiskHigh
	case normalized >= 10:
		return models.RiskVeryHigh
	default:
		return models.RiskExtreme
	}
}
