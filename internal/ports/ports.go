// Package ports declares the persistence and messaging contracts the
// scoring, limit, monitoring, and terms services depend on. Adapters
// live under internal/storage/sqlite, internal/events, and
// internal/cache/redis.
package ports

import (
	"context"
	"time"

	"github.com/invoscore/backend/internal/storage/models"
)

type AssessmentRepository interface {
	Create(ctx context.Context, a *models.Assessment) error
	FindByID(ctx context.Context, id string) (*models.Assessment, error)
	FindLatestByBuyer(ctx context.Context, buyerID, tenantID string) (*models.Assessment, error)
	FindRecentByBuyer(ctx context.Context, buyerID, tenantID string, limit int) ([]*models.Assessment, error)
	MarkSuperseded(ctx context.Context, id string) error
}

type ScoringModelRepository interface {
	FindByVersion(ctx context.Context, tenantID, version string) (*models.ScoringModel, error)
	FindDefaultForIndustry(ctx context.Context, tenantID, industryCode string) (*models.ScoringModel, error)
	FindTenantDefault(ctx context.Context, tenantID string) (*models.ScoringModel, error)
}

type BuyerProfileRepository interface {
	FindByID(ctx context.Context, buyerID, tenantID string) (*models.BuyerProfile, error)
}

type PaymentRepository interface {
	FindByBuyer(ctx context.Context, buyerID, tenantID string, since time.Time) ([]*models.PaymentRecord, error)
	MaxPaymentAmount(ctx context.Context, buyerID, tenantID string, since time.Time) (float64, error)
}

type IndustryRepository interface {
	FindProfile(ctx context.Context, industryCode string) (*models.IndustryRiskProfile, error)
	FindRegional(ctx context.Context, regionCode string) (*models.RegionalRiskAdjustment, error)
}

type CreditLimitRepository interface {
	Create(ctx context.Context, l *models.CreditLimit) error
	Update(ctx context.Context, l *models.CreditLimit) error
	FindByID(ctx context.Context, id string) (*models.CreditLimit, error)
	FindActiveByBuyer(ctx context.Context, buyerID, tenantID string) (*models.CreditLimit, error)
	ListActiveBuyers(ctx context.Context, tenantID string) ([]string, error)
	ListExpiring(ctx context.Context, tenantID string, before time.Time) ([]*models.CreditLimit, error)
	ListDueForReview(ctx context.Context, tenantID string, before time.Time) ([]*models.CreditLimit, error)
	ListHighUtilization(ctx context.Context, tenantID string, thresholdPct float64) ([]*models.CreditLimit, error)
	AppendHistory(ctx context.Context, h *models.CreditLimitHistory) error
	ListHistory(ctx context.Context, creditLimitID string) ([]*models.CreditLimitHistory, error)
	CreateApproval(ctx context.Context, a *models.CreditLimitApproval) error
	FindApprovalByID(ctx context.Context, id string) (*models.CreditLimitApproval, error)
	FindPendingApproval(ctx context.Context, creditLimitID string) (*models.CreditLimitApproval, error)
	UpdateApproval(ctx context.Context, a *models.CreditLimitApproval) error
}

type RiskIndicatorRepository interface {
	CreateBatch(ctx context.Context, indicators []*models.RiskIndicator) error
	FindByID(ctx context.Context, id string) (*models.RiskIndicator, error)
	FindActiveByBuyer(ctx context.Context, buyerID, tenantID string) ([]*models.RiskIndicator, error)
	UpdateStatus(ctx context.Context, id string, status models.IndicatorStatus, notes string) error
}

type PaymentTermsRepository interface {
	Upsert(ctx context.Context, t *models.PaymentTerms) error
	FindByBuyer(ctx context.Context, orgID, buyerID string) (*models.PaymentTerms, error)
}

// EventPublisher is fire-and-forget: implementations log and swallow
// delivery failures instead of surfacing them to the caller.
type EventPublisher interface {
	Emit(ctx context.Context, event string, payload any)
}

type AssessmentCache interface {
	GetLatest(ctx context.Context, buyerID, tenantID string) (*models.Assessment, bool)
	SetLatest(ctx context.Context, a *models.Assessment)
	Invalidate(ctx context.Context, buyerID, tenantID string)
}
