package terms

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/invoscore/backend/internal/metrics"
	"github.com/invoscore/backend/internal/ports"
	"github.com/invoscore/backend/internal/storage/models"
	"github.com/invoscore/backend/pkg/apperr"
	"github.com/invoscore/backend/pkg/logger"
)

const (
	EventTermsUpdated = "payment.terms.updated"

	SourceAuto   = "auto"
	SourceManual = "manual"

	autoReviewCadence   = 30 * 24 * time.Hour
	manualReviewCadence = 90 * 24 * time.Hour
)

// assessmentReader is the slice of the scoring engine the resolver
// needs: the buyer's current assessment.
type assessmentReader interface {
	Latest(ctx context.Context, buyerID, tenantID string) (*models.Assessment, error)
}

// Resolver derives buyer payment terms from the current risk category
// via the ordered rule table. Fresh terms are returned as-is; manual
// overrides outlast the automatic review cadence.
type Resolver struct {
	repo        ports.PaymentTermsRepository
	assessments assessmentReader
	rules       []Rule
	freshness   time.Duration
	publisher   ports.EventPublisher
	log         *zap.Logger
}

func NewResolver(repo ports.PaymentTermsRepository, assessments assessmentReader, rules []Rule, freshness time.Duration, publisher ports.EventPublisher) *Resolver {
	if freshness <= 0 {
		freshness = autoReviewCadence
	}
	return &Resolver{
		repo:        repo,
		assessments: assessments,
		rules:       rules,
		freshness:   freshness,
		publisher:   publisher,
		log:         logger.Named("terms"),
	}
}

func (r *Resolver) Resolve(ctx context.Context, orgID, buyerID, tenantID string, force bool) (*models.PaymentTerms, error) {
	now := time.Now()

	existing, err := r.repo.FindByBuyer(ctx, orgID, buyerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load payment terms: %w", err)
	}
	if existing != nil && !force {
		if existing.Source == SourceManual && now.Before(existing.ReviewAt) {
			metrics.TermsResolved.WithLabelValues("manual_hold").Inc()
			return existing, nil
		}
		if now.Sub(existing.UpdatedAt) < r.freshness {
			metrics.TermsResolved.WithLabelValues("fresh").Inc()
			return existing, nil
		}
	}

	assessment, err := r.assessments.Latest(ctx, buyerID, tenantID)
	if err != nil {
		return nil, err
	}

	category := riskCategoryFor(assessment.RiskLevel)
	rule := matchRule(r.rules, category, assessment.ScoreValue)
	if rule == nil {
		return nil, apperr.Configuration("terms_rules",
			fmt.Sprintf("no rule matches category %s or score %.2f", category, assessment.ScoreValue))
	}

	terms := &models.PaymentTerms{
		ID:                  uuid.New().String(),
		OrganizationID:      orgID,
		BuyerID:             buyerID,
		RiskCategory:        rule.Category,
		TermDays:            rule.TermDays,
		EarlyDiscountPct:    rule.EarlyDiscountPct,
		LateFeePct:          rule.LateFeePct,
		DepositPct:          rule.DepositPct,
		InstallmentsAllowed: rule.InstallmentsAllowed,
		Source:              SourceAuto,
		ReviewAt:            now.Add(autoReviewCadence),
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if existing != nil {
		terms.ID = existing.ID
		terms.CreatedAt = existing.CreatedAt
	}

	if err := r.repo.Upsert(ctx, terms); err != nil {
		return nil, fmt.Errorf("failed to persist payment terms: %w", err)
	}

	metrics.TermsResolved.WithLabelValues("derived").Inc()
	r.publisher.Emit(ctx, EventTermsUpdated, map[string]any{
		"buyer_id":      buyerID,
		"org_id":        orgID,
		"risk_category": terms.RiskCategory,
		"term_days":     terms.TermDays,
		"source":        SourceAuto,
	})

	r.log.Info("payment terms resolved",
		zap.String("buyer_id", buyerID),
		zap.String("risk_category", terms.RiskCategory),
		zap.Int("term_days", terms.TermDays))

	return terms, nil
}

type Override struct {
	TermDays            *int
	EarlyDiscountPct    *float64
	LateFeePct          *float64
	DepositPct          *float64
	InstallmentsAllowed *int
}

// ApplyOverride patches specific fields of the buyer's terms, marks
// them manual, and extends the review cadence to 90 days.
func (r *Resolver) ApplyOverride(ctx context.Context, orgID, buyerID string, o Override) (*models.PaymentTerms, error) {
	existing, err := r.repo.FindByBuyer(ctx, orgID, buyerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load payment terms: %w", err)
	}
	if existing == nil {
		return nil, apperr.NotFound("payment terms", buyerID)
	}

	if o.TermDays != nil {
		if *o.TermDays < 0 {
			return nil, apperr.Validation("term_days", "must not be negative")
		}
		existing.TermDays = *o.TermDays
	}
	if o.EarlyDiscountPct != nil {
		existing.EarlyDiscountPct = *o.EarlyDiscountPct
	}
	if o.LateFeePct != nil {
		existing.LateFeePct = *o.LateFeePct
	}
	if o.DepositPct != nil {
		if *o.DepositPct < 0 || *o.DepositPct > 100 {
			return nil, apperr.Validation("deposit_pct", "must be within [0,100]")
		}
		existing.DepositPct = *o.DepositPct
	}
	if o.InstallmentsAllowed != nil {
		existing.InstallmentsAllowed = *o.InstallmentsAllowed
	}

	now := time.Now()
	existing.Source = SourceManual
	existing.ReviewAt = now.Add(manualReviewCadence)
	existing.UpdatedAt = now

	if err := r.repo.Upsert(ctx, existing); err != nil {
		return nil, fmt.Errorf("failed to persist terms override: %w", err)
	}

	metrics.TermsResolved.WithLabelValues("override").Inc()
	r.publisher.Emit(ctx, EventTermsUpdated, map[string]any{
		"buyer_id":      buyerID,
		"org_id":        orgID,
		"risk_category": existing.RiskCategory,
		"term_days":     existing.TermDays,
		"source":        SourceManual,
	})

	r.log.Info("payment terms overridden",
		zap.String("buyer_id", buyerID),
		zap.Int("term_days", existing.TermDays))

	return existing, nil
}
