package scoring

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/invoscore/backend/internal/metrics"
	"github.com/invoscore/backend/internal/ports"
	"github.com/invoscore/backend/internal/storage/models"
	"github.com/invoscore/backend/pkg/logger"
)

const (
	MethodPaymentTimeliness  = "payment_timeliness"
	MethodPaymentConsistency = "payment_consistency"
	MethodBusinessLongevity  = "business_longevity"
	MethodTransactionVolume  = "transaction_volume"

	neutralRawValue = 50
)

// defaultExplanations keyed by score band. A factor definition may
// override individual bands with its own templates.
var defaultExplanations = map[string]string{
	"excellent":     "%s is excellent and strongly supports creditworthiness",
	"good":          "%s is good with minor room for improvement",
	"average":       "%s is average for this buyer segment",
	"below_average": "%s is below average and weighs on the score",
	"poor":          "%s is poor and significantly increases risk",
}

// FactorCalculator turns collected evidence into normalized risk
// factors. A factor whose calculation fails is recorded with zero
// contribution and an error note so the run always produces an
// explainable partial result.
type FactorCalculator struct {
	payments ports.PaymentRepository
	profiles ports.BuyerProfileRepository
	lookback time.Duration
	log      *zap.Logger
}

func NewFactorCalculator(payments ports.PaymentRepository, profiles ports.BuyerProfileRepository, lookbackMonths int) *FactorCalculator {
	if lookbackMonths < 1 {
		lookbackMonths = 12
	}
	return &FactorCalculator{
		payments: payments,
		profiles: profiles,
		lookback: time.Duration(lookbackMonths) * 30 * 24 * time.Hour,
		log:      logger.Named("factors"),
	}
}

type factorInput struct {
	buyerID  string
	tenantID string
	evidence []models.EvidenceSource
	records  []*models.PaymentRecord
	profile  *models.BuyerProfile
}

func (f *FactorCalculator) ComputeFactors(ctx context.Context, model *models.ScoringModel, buyerID, tenantID string, evidence []models.EvidenceSource) ([]models.RiskFactor, error) {
	in := &factorInput{buyerID: buyerID, tenantID: tenantID, evidence: evidence}

	// Raw inputs load once per run; an individual load failure leaves the
	// corresponding factors to neutral-default with an error note.
	records, err := f.payments.FindByBuyer(ctx, buyerID, tenantID, time.Now().Add(-f.lookback))
	if err != nil {
		f.log.Warn("payment records unavailable for factor calculation",
			zap.String("buyer_id", buyerID), zap.Error(err))
	} else {
		in.records = records
	}

	profile, err := f.profiles.FindByID(ctx, buyerID, tenantID)
	if err != nil {
		f.log.Warn("buyer profile unavailable for factor calculation",
			zap.String("buyer_id", buyerID), zap.Error(err))
	} else {
		in.profile = profile
	}

	factors := make([]models.RiskFactor, 0, len(model.Factors))
	for _, def := range model.Factors {
		factors = append(factors, f.computeOne(def, in))
	}
	return factors, nil
}

func (f *FactorCalculator) computeOne(def models.FactorDefinition, in *factorInput) models.RiskFactor {
	factor := models.RiskFactor{
		ID:          uuid.New().String(),
		Name:        def.Name,
		Weight:      def.Weight,
		SourceTypes: def.SourceTypes,
	}

	raw, err := f.rawValue(def, in)
	if err != nil {
		metrics.FactorErrors.WithLabelValues(def.Name).Inc()
		f.log.Warn("factor calculation failed",
			zap.String("factor", def.Name),
			zap.String("buyer_id", in.buyerID),
			zap.Error(err))
		factor.RawValue = 0
		factor.NormalizedValue = 0
		factor.Contribution = 0
		factor.ImpactDirection = "negative"
		factor.ErrorNote = err.Error()
		factor.Explanation = fmt.Sprintf("%s could not be calculated", def.Name)
		return factor
	}

	factor.RawValue = round2(raw)
	factor.NormalizedValue = normalize(raw, def.MinValue, def.MaxValue)
	factor.Contribution = round2(factor.NormalizedValue * def.Weight / 100)
	if factor.NormalizedValue >= 50 {
		factor.ImpactDirection = "positive"
	} else {
		factor.ImpactDirection = "negative"
	}
	factor.Explanation = explain(def, factor.NormalizedValue)
	return factor
}

func (f *FactorCalculator) rawValue(def models.FactorDefinition, in *factorInput) (float64, error) {
	switch def.CalculationMethod {
	case MethodPaymentTimeliness:
		return paymentTimeliness(in.records)
	case MethodPaymentConsistency:
		return paymentConsistency(in.records)
	case MethodBusinessLongevity:
		return businessLongevity(in.profile)
	case MethodTransactionVolume:
		return transactionVolume(in.records)
	default:
		if def.DefaultValue > 0 {
			return def.DefaultValue, nil
		}
		return 0, fmt.Errorf("unknown calculation method %q", def.CalculationMethod)
	}
}

func paymentTimeliness(records []*models.PaymentRecord) (float64, error) {
	if len(records) == 0 {
		return neutralRawValue, nil
	}
	totalLate := 0
	onTime := 0
	for _, r := range records {
		totalLate += r.DaysLate
		if r.OnTime {
			onTime++
		}
	}
	avgDaysLate := float64(totalLate) / float64(len(records))
	onTimePct := float64(onTime) / float64(len(records)) * 100
	return clamp(100-2*avgDaysLate+0.5*onTimePct, 0, 100), nil
}

func paymentConsistency(records []*models.PaymentRecord) (float64, error) {
	if len(records) < 3 {
		return neutralRawValue, nil
	}
	daysLate := make([]float64, len(records))
	for i, r := range records {
		daysLate[i] = float64(r.DaysLate)
	}
	return clamp(100-3*stddev(daysLate), 0, 100), nil
}

func businessLongevity(profile *models.BuyerProfile) (float64, error) {
	if profile == nil || profile.IncorporatedAt == nil {
		return neutralRawValue, nil
	}
	ageYears := time.Since(*profile.IncorporatedAt).Hours() / 24 / 365.25
	v := ageYears * 5
	if v > 100 {
		v = 100
	}
	return v, nil
}

func transactionVolume(records []*models.PaymentRecord) (float64, error) {
	v := float64(len(records)) * 5
	if v > 100 {
		v = 100
	}
	return v, nil
}

func normalize(raw, min, max float64) float64 {
	if max <= min {
		return 0
	}
	return round2(clamp((raw-min)/(max-min)*100, 0, 100))
}

func explain(def models.FactorDefinition, normalized float64) string {
	band := scoreBand(normalized)
	if tmpl, ok := def.ExplanationTemplate[band]; ok && tmpl != "" {
		return fmt.Sprintf(tmpl, def.Name)
	}
	return fmt.Sprintf(defaultExplanations[band], def.Name)
}

func scoreBand(normalized float64) string {
	switch {
	case normalized >= 80:
		return "excellent"
	case normalized >= 60:
		return "good"
	case normalized >= 40:
		return "average"
	case normalized >= 20:
		return "below_average"
	default:
		return "poor"
	}
}
