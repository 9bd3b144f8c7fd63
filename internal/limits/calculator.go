package limits

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/invoscore/backend/internal/metrics"
	"github.com/invoscore/backend/internal/ports"
	"github.com/invoscore/backend/internal/storage/models"
	"github.com/invoscore/backend/pkg/apperr"
	"github.com/invoscore/backend/pkg/logger"
)

const (
	MethodScoreBased     = "score-based"
	MethodPaymentHistory = "payment-history-based"
	MethodIndustry       = "industry-benchmark-based"
	MethodHybrid         = "hybrid"
)

type Options struct {
	CalculationMethod string   `validate:"omitempty,oneof=score-based payment-history-based industry-benchmark-based hybrid"`
	BaseAmount        float64  `validate:"omitempty,gt=0"`
	MinLimit          float64  `validate:"omitempty,gte=0"`
	MaxLimit          float64  `validate:"omitempty,gtefield=MinLimit"`
	HybridWeights     *Weights `validate:"omitempty"`
}

type Weights struct {
	ScoreBased     float64 `validate:"gte=0,lte=1"`
	PaymentHistory float64 `validate:"gte=0,lte=1"`
	Industry       float64 `validate:"gte=0,lte=1"`
}

var defaultWeights = Weights{ScoreBased: 0.3, PaymentHistory: 0.5, Industry: 0.2}

type Recommendation struct {
	BuyerID          string
	RecommendedLimit float64
	Method           string
	Score            float64
	ReviewRiskLevel  int
	ReviewDate       time.Time
	Components       map[string]float64
}

// Calculator converts an assessment plus payment history into a bounded
// monetary limit recommendation under one of four strategies.
type Calculator struct {
	assessments ports.AssessmentRepository
	profiles    ports.BuyerProfileRepository
	payments    ports.PaymentRepository
	industries  ports.IndustryRepository
	baseFloor   float64
	baseCeiling float64
	validate    *validator.Validate
	log         *zap.Logger
}

func NewCalculator(
	assessments ports.AssessmentRepository,
	profiles ports.BuyerProfileRepository,
	payments ports.PaymentRepository,
	industries ports.IndustryRepository,
	baseFloor, baseCeiling float64,
) *Calculator {
	return &Calculator{
		assessments: assessments,
		profiles:    profiles,
		payments:    payments,
		industries:  industries,
		baseFloor:   baseFloor,
		baseCeiling: baseCeiling,
		validate:    validator.New(),
		log:         logger.Named("limits"),
	}
}

func (c *Calculator) Recommend(ctx context.Context, buyerID, tenantID string, opts Options) (*Recommendation, error) {
	if err := c.validate.Struct(opts); err != nil {
		return nil, apperr.Validation("options", err.Error())
	}
	if opts.CalculationMethod == "" {
		opts.CalculationMethod = MethodScoreBased
	}
	if opts.BaseAmount <= 0 {
		opts.BaseAmount = c.baseFloor
	}

	assessment, err := c.assessments.FindLatestByBuyer(ctx, buyerID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load assessment: %w", err)
	}
	if assessment == nil {
		return nil, apperr.NotFound("assessment", buyerID)
	}

	profile, err := c.profiles.FindByID(ctx, buyerID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load buyer profile: %w", err)
	}
	if profile == nil {
		return nil, apperr.NotFound("buyer profile", buyerID)
	}

	score := assessment.ScoreValue
	components := map[string]float64{}

	var amount float64
	switch opts.CalculationMethod {
	case MethodScoreBased:
		amount = c.scoreBased(score, opts.BaseAmount)
	case MethodPaymentHistory:
		amount, err = c.paymentHistoryBased(ctx, buyerID, tenantID, score, opts.BaseAmount)
	case MethodIndustry:
		amount, err = c.industryBased(ctx, profile, score, opts.BaseAmount)
	case MethodHybrid:
		amount, err = c.hybrid(ctx, buyerID, tenantID, profile, score, opts, components)
	}
	if err != nil {
		return nil, err
	}

	if opts.MinLimit > 0 && amount < opts.MinLimit {
		amount = opts.MinLimit
	}
	if opts.MaxLimit > 0 && amount > opts.MaxLimit {
		amount = opts.MaxLimit
	}
	if amount > c.baseCeiling*10 {
		amount = c.baseCeiling * 10
	}
	amount = roundToDenomination(amount)

	reviewRisk := reviewRiskLevel(score)
	rec := &Recommendation{
		BuyerID:          buyerID,
		RecommendedLimit: amount,
		Method:           opts.CalculationMethod,
		Score:            score,
		ReviewRiskLevel:  reviewRisk,
		ReviewDate:       reviewDate(time.Now(), reviewRisk),
		Components:       components,
	}

	metrics.LimitRecommendations.WithLabelValues(opts.CalculationMethod).Inc()
	c.log.Info("limit recommendation calculated",
		zap.String("buyer_id", buyerID),
		zap.String("method", opts.CalculationMethod),
		zap.Float64("score", score),
		zap.Float64("recommended_limit", amount))

	return rec, nil
}

func (c *Calculator) scoreBased(score, baseAmount float64) float64 {
	return scoreMultiplier(score) * baseAmount
}

func scoreMultiplier(score float64) float64 {
	switch {
	case score >= 90:
		return 5.0
	case score >= 80:
		return 4.0
	case score >= 70:
		return 3.0
	case score >= 60:
		return 2.0
	case score >= 50:
		return 1.5
	case score >= 40:
		return 1.0
	case score >= 30:
		return 0.5
	default:
		return 0.25
	}
}

func (c *Calculator) paymentHistoryBased(ctx context.Context, buyerID, tenantID string, score, baseAmount float64) (float64, error) {
	since := time.Now().AddDate(-1, 0, 0)
	records, err := c.payments.FindByBuyer(ctx, buyerID, tenantID, since)
	if err != nil {
		return 0, fmt.Errorf("failed to load payment history: %w", err)
	}
	if len(records) == 0 {
		// No trailing history to lean on.
		return c.scoreBased(score, baseAmount), nil
	}

	onTime := 0
	for _, r := range records {
		if r.OnTime {
			onTime++
		}
	}
	onTimePct := float64(onTime) / float64(len(records)) * 100

	maxPayment, err := c.payments.MaxPaymentAmount(ctx, buyerID, tenantID, since)
	if err != nil {
		return 0, fmt.Errorf("failed to load max payment amount: %w", err)
	}
	if maxPayment <= 0 {
		maxPayment = baseAmount
	}

	amount := onTimeMultiplier(onTimePct) * maxPayment
	amount *= 1 + (score-50)/100
	if amount < 0 {
		amount = 0
	}
	return amount, nil
}

func onTimeMultiplier(onTimePct float64) float64 {
	switch {
	case onTimePct >= 95:
		return 3.0
	case onTimePct >= 90:
		return 2.5
	case onTimePct >= 80:
		return 2.0
	case onTimePct >= 70:
		return 1.5
	case onTimePct >= 60:
		return 1.0
	default:
		return 0.5
	}
}

func (c *Calculator) industryBased(ctx context.Context, profile *models.BuyerProfile, score, baseAmount float64) (float64, error) {
	if profile.IndustryCode == "" {
		return c.scoreBased(score, baseAmount), nil
	}
	ip, err := c.industries.FindProfile(ctx, profile.IndustryCode)
	if err != nil {
		return 0, fmt.Errorf("failed to load industry profile: %w", err)
	}
	if ip == nil || ip.BenchmarkCreditAmount <= 0 {
		return c.scoreBased(score, baseAmount), nil
	}
	return benchmarkMultiplier(score) * ip.BenchmarkCreditAmount, nil
}

func benchmarkMultiplier(score float64) float64 {
	switch {
	case score >= 90:
		return 2.5
	case score >= 80:
		return 2.0
	case score >= 70:
		return 1.5
	case score >= 60:
		return 1.0
	case score >= 50:
		return 0.8
	default:
		return 0.5
	}
}

func (c *Calculator) hybrid(ctx context.Context, buyerID, tenantID string, profile *models.BuyerProfile, score float64, opts Options, components map[string]float64) (float64, error) {
	weights := defaultWeights
	if opts.HybridWeights != nil {
		weights = *opts.HybridWeights
	}
	total := weights.ScoreBased + weights.PaymentHistory + weights.Industry
	if total <= 0 {
		return 0, apperr.Validation("hybrid_weights", "weights must sum to a positive value")
	}

	scoreAmt := c.scoreBased(score, opts.BaseAmount)
	paymentAmt, err := c.paymentHistoryBased(ctx, buyerID, tenantID, score, opts.BaseAmount)
	if err != nil {
		return 0, err
	}
	industryAmt, err := c.industryBased(ctx, profile, score, opts.BaseAmount)
	if err != nil {
		return 0, err
	}

	components[MethodScoreBased] = scoreAmt
	components[MethodPaymentHistory] = paymentAmt
	components[MethodIndustry] = industryAmt

	return blend(weights, scoreAmt, paymentAmt, industryAmt), nil
}

func blend(w Weights, scoreAmt, paymentAmt, industryAmt float64) float64 {
	total := w.ScoreBased + w.PaymentHistory + w.Industry
	return (scoreAmt*w.ScoreBased + paymentAmt*w.PaymentHistory + industryAmt*w.Industry) / total
}

// roundToDenomination snaps an amount to the granularity customary for
// its magnitude: 10 lakh steps above 1 crore, 1 lakh above 10 lakh,
// 10k above 1 lakh, 1k otherwise.
func roundToDenomination(amount float64) float64 {
	var step float64
	switch {
	case amount >= 10_000_000:
		step = 1_000_000
	case amount >= 1_000_000:
		step = 100_000
	case amount >= 100_000:
		step = 10_000
	default:
		step = 1_000
	}
	return math.Round(amount/step) * step
}

func reviewRiskLevel(score float64) int {
	level := int(math.Round(11 - score/10))
	if level < 1 {
		level = 1
	}
	if level > 10 {
		level = 10
	}
	return level
}

func reviewDate(now time.Time, riskLevel int) time.Time {
	switch {
	case riskLevel >= 8:
		return now.AddDate(0, 3, 0)
	case riskLevel >= 6:
		return now.AddDate(0, 6, 0)
	case riskLevel >= 4:
		return now.AddDate(0, 9, 0)
	default:
		return now.AddDate(0, 12, 0)
	}
}
