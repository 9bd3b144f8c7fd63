package scoring

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/invoscore/backend/internal/industry"
	"github.com/invoscore/backend/internal/metrics"
	"github.com/invoscore/backend/internal/ports"
	"github.com/invoscore/backend/internal/storage/models"
	"github.com/invoscore/backend/pkg/apperr"
	"github.com/invoscore/backend/pkg/logger"
)

const EventAssessmentCompleted = "assessment.completed"

// Engine runs the full assessment pipeline for one buyer: evidence
// collection, factor calculation, industry adjustment, aggregation,
// and persistence of a new immutable assessment version.
type Engine struct {
	collector   *Collector
	factors     *FactorCalculator
	adjuster    *industry.Adjuster
	assessments ports.AssessmentRepository
	modelRepo   ports.ScoringModelRepository
	profiles    ports.BuyerProfileRepository
	publisher   ports.EventPublisher
	cache       ports.AssessmentCache
	log         *zap.Logger
}

func NewEngine(
	collector *Collector,
	factors *FactorCalculator,
	adjuster *industry.Adjuster,
	assessments ports.AssessmentRepository,
	modelRepo ports.ScoringModelRepository,
	profiles ports.BuyerProfileRepository,
	publisher ports.EventPublisher,
	cache ports.AssessmentCache,
) *Engine {
	return &Engine{
		collector:   collector,
		factors:     factors,
		adjuster:    adjuster,
		assessments: assessments,
		modelRepo:   modelRepo,
		profiles:    profiles,
		publisher:   publisher,
		cache:       cache,
		log:         logger.Named("engine"),
	}
}

type AssessOptions struct {
	ModelVersion string
}

func (e *Engine) Assess(ctx context.Context, buyerID, tenantID string, opts AssessOptions) (*models.Assessment, error) {
	start := time.Now()

	profile, err := e.profiles.FindByID(ctx, buyerID, tenantID)
	if err != nil {
		metrics.AssessmentTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to load buyer profile: %w", err)
	}

	model, err := e.selectModel(ctx, tenantID, profile, opts.ModelVersion)
	if err != nil {
		metrics.AssessmentTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	evidence, err := e.collector.Collect(ctx, buyerID, tenantID)
	if err != nil {
		metrics.AssessmentTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("evidence collection failed: %w", err)
	}

	factors, err := e.factors.ComputeFactors(ctx, model, buyerID, tenantID, evidence)
	if err != nil {
		metrics.AssessmentTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("factor calculation failed: %w", err)
	}

	result := Aggregate(factors, model)
	trace := e.adjuster.Adjust(ctx, result.ScoreValue, profile, factors)

	assessment := &models.Assessment{
		ID:              uuid.New().String(),
		BuyerID:         buyerID,
		TenantID:        tenantID,
		ModelVersion:    model.Version,
		Version:         1,
		ScoreValue:      trace.AdjustedScore,
		ConfidenceLevel: result.ConfidenceLevel,
		RiskLevel:       RiskLevelFor(trace.AdjustedScore),
		Status:          models.AssessmentFinal,
		DataSufficiency: "ok",
		Factors:         factors,
		Evidence:        evidence,
		AdjustmentTrace: trace,
		AssessedAt:      time.Now(),
	}

	// A buyer with no evidence at all still gets a result, but it is
	// explicitly marked as resting on nothing.
	if len(evidence) == 0 {
		assessment.DataSufficiency = "no_data"
		assessment.ConfidenceLevel = models.ConfidenceVeryLow
	}

	if err := e.persistVersion(ctx, assessment); err != nil {
		metrics.AssessmentTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	e.cache.Invalidate(ctx, buyerID, tenantID)
	e.cache.SetLatest(ctx, assessment)
	e.publisher.Emit(ctx, EventAssessmentCompleted, map[string]any{
		"assessment_id": assessment.ID,
		"buyer_id":      buyerID,
		"tenant_id":     tenantID,
		"score":         assessment.ScoreValue,
		"risk_level":    assessment.RiskLevel,
		"confidence":    assessment.ConfidenceLevel,
	})

	metrics.AssessmentTotal.WithLabelValues("success").Inc()
	metrics.AssessmentDuration.WithLabelValues(tenantID).Observe(time.Since(start).Seconds())
	metrics.ScoreDistribution.Observe(assessment.ScoreValue)

	e.log.Info("assessment completed",
		zap.String("buyer_id", buyerID),
		zap.String("assessment_id", assessment.ID),
		zap.Float64("score", assessment.ScoreValue),
		zap.String("risk_level", string(assessment.RiskLevel)),
		zap.String("confidence", string(assessment.ConfidenceLevel)),
		zap.Int("version", assessment.Version))

	return assessment, nil
}

// Override records a manual score override as a new assessment version.
// The prior assessment is marked superseded, never rewritten.
func (e *Engine) Override(ctx context.Context, buyerID, tenantID string, score float64, reason string) (*models.Assessment, error) {
	if score < 0 || score > 100 {
		return nil, apperr.Validation("score", fmt.Sprintf("must be within [0,100], got %.2f", score))
	}
	if reason == "" {
		return nil, apperr.Validation("reason", "override reason is required")
	}

	latest, err := e.assessments.FindLatestByBuyer(ctx, buyerID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest assessment: %w", err)
	}
	if latest == nil {
		return nil, apperr.NotFound("assessment", buyerID)
	}

	overridden := &models.Assessment{
		ID:              uuid.New().String(),
		BuyerID:         buyerID,
		TenantID:        tenantID,
		ModelVersion:    latest.ModelVersion,
		ScoreValue:      score,
		ConfidenceLevel: latest.ConfidenceLevel,
		RiskLevel:       RiskLevelFor(score),
		Status:          models.AssessmentOverridden,
		DataSufficiency: latest.DataSufficiency,
		Factors:         latest.Factors,
		Evidence:        latest.Evidence,
		AssessedAt:      time.Now(),
	}

	if err := e.persistVersion(ctx, overridden); err != nil {
		return nil, err
	}

	e.cache.Invalidate(ctx, buyerID, tenantID)
	e.cache.SetLatest(ctx, overridden)
	e.publisher.Emit(ctx, EventAssessmentCompleted, map[string]any{
		"assessment_id": overridden.ID,
		"buyer_id":      buyerID,
		"tenant_id":     tenantID,
		"score":         overridden.ScoreValue,
		"risk_level":    overridden.RiskLevel,
		"overridden":    true,
		"reason":        reason,
	})

	e.log.Info("assessment overridden",
		zap.String("buyer_id", buyerID),
		zap.Float64("score", score),
		zap.String("reason", reason))

	return overridden, nil
}

// Latest returns the buyer's current assessment, cache first.
func (e *Engine) Latest(ctx context.Context, buyerID, tenantID string) (*models.Assessment, error) {
	if cached, ok := e.cache.GetLatest(ctx, buyerID, tenantID); ok {
		metrics.CacheHits.WithLabelValues("assessment").Inc()
		return cached, nil
	}
	metrics.CacheMisses.WithLabelValues("assessment").Inc()

	latest, err := e.assessments.FindLatestByBuyer(ctx, buyerID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest assessment: %w", err)
	}
	if latest == nil {
		return nil, apperr.NotFound("assessment", buyerID)
	}
	e.cache.SetLatest(ctx, latest)
	return latest, nil
}

func (e *Engine) persistVersion(ctx context.Context, a *models.Assessment) error {
	previous, err := e.assessments.FindLatestByBuyer(ctx, a.BuyerID, a.TenantID)
	if err != nil {
		return fmt.Errorf("failed to look up previous assessment: %w", err)
	}
	if previous != nil {
		a.Version = previous.Version + 1
		a.PreviousAssessmentID = previous.ID
	}

	if err := e.assessments.Create(ctx, a); err != nil {
		return fmt.Errorf("failed to persist assessment: %w", err)
	}
	if previous != nil && previous.Status == models.AssessmentFinal {
		if err := e.assessments.MarkSuperseded(ctx, previous.ID); err != nil {
			e.log.Warn("failed to mark previous assessment superseded",
				zap.String("assessment_id", previous.ID), zap.Error(err))
		}
	}
	return nil
}

func (e *Engine) selectModel(ctx context.Context, tenantID string, profile *models.BuyerProfile, version string) (*models.ScoringModel, error) {
	if version != "" {
		model, err := e.modelRepo.FindByVersion(ctx, tenantID, version)
		if err != nil {
			return nil, fmt.Errorf("failed to load scoring model: %w", err)
		}
		if model == nil {
			return nil, apperr.Configuration("scoring_model", fmt.Sprintf("version %q not found", version))
		}
		return model, nil
	}

	if profile != nil && profile.IndustryCode != "" {
		model, err := e.modelRepo.FindDefaultForIndustry(ctx, tenantID, profile.IndustryCode)
		if err != nil {
			return nil, fmt.Errorf("failed to load industry scoring model: %w", err)
		}
		if model != nil {
			return model, nil
		}
	}

	model, err := e.modelRepo.FindTenantDefault(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load default scoring model: %w", err)
	}
	if model == nil {
		return nil, apperr.Configuration("scoring_model", "no default scoring model configured")
	}
	return model, nil
}
