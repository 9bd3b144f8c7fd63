package scoring

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/invoscore/backend/internal/ports"
	"github.com/invoscore/backend/internal/storage/models"
	"github.com/invoscore/backend/pkg/logger"
)

const (
	SourcePaymentLedger = "payment_ledger"
	SourceBuyerProfile  = "buyer_profile"

	paymentSourceTTL = 30 * 24 * time.Hour
	profileSourceTTL = 90 * 24 * time.Hour
)

// Collector gathers evidence sources for an assessment and scores the
// quality, completeness, and freshness of each. A failing source is
// skipped, not fatal; sources with no underlying records are omitted
// rather than zero-scored.
type Collector struct {
	payments ports.PaymentRepository
	profiles ports.BuyerProfileRepository
	lookback time.Duration
	log      *zap.Logger
}

func NewCollector(payments ports.PaymentRepository, profiles ports.BuyerProfileRepository, lookbackMonths int) *Collector {
	if lookbackMonths < 1 {
		lookbackMonths = 12
	}
	return &Collector{
		payments: payments,
		profiles: profiles,
		lookback: time.Duration(lookbackMonths) * 30 * 24 * time.Hour,
		log:      logger.Named("collector"),
	}
}

func (c *Collector) Collect(ctx context.Context, buyerID, tenantID string) ([]models.EvidenceSource, error) {
	now := time.Now()
	var sources []models.EvidenceSource

	if src, err := c.collectPaymentLedger(ctx, buyerID, tenantID, now); err != nil {
		c.log.Warn("payment ledger collection failed",
			zap.String("buyer_id", buyerID),
			zap.Error(err))
	} else if src != nil {
		sources = append(sources, *src)
	}

	if src, err := c.collectProfile(ctx, buyerID, tenantID, now); err != nil {
		c.log.Warn("profile collection failed",
			zap.String("buyer_id", buyerID),
			zap.Error(err))
	} else if src != nil {
		sources = append(sources, *src)
	}

	return sources, nil
}

func (c *Collector) collectPaymentLedger(ctx context.Context, buyerID, tenantID string, now time.Time) (*models.EvidenceSource, error) {
	records, err := c.payments.FindByBuyer(ctx, buyerID, tenantID, now.Add(-c.lookback))
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	total := len(records)
	recent := 0
	cutoff := now.Add(-180 * 24 * time.Hour)
	for _, r := range records {
		if r.PaidDate != nil && r.PaidDate.After(cutoff) {
			recent++
		}
	}

	quality := float64(recent) / float64(total) * 100
	denom := total
	if denom > 10 {
		denom = 10
	}
	freshness := float64(recent) / float64(denom) * 100
	if freshness > 100 {
		freshness = 100
	}

	return &models.EvidenceSource{
		ID:                uuid.New().String(),
		SourceType:        SourcePaymentLedger,
		QualityScore:      round2(quality),
		CompletenessScore: 100,
		FreshnessScore:    round2(freshness),
		Weight:            50,
		Metadata: map[string]any{
			"record_count": total,
			"recent_count": recent,
		},
		CollectedAt: now,
		ExpiresAt:   now.Add(paymentSourceTTL),
	}, nil
}

func (c *Collector) collectProfile(ctx context.Context, buyerID, tenantID string, now time.Time) (*models.EvidenceSource, error) {
	profile, err := c.profiles.FindByID(ctx, buyerID, tenantID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, nil
	}

	completeness := profileCompleteness(profile)

	freshness := 0.0
	if profile.VerifiedAt != nil {
		days := now.Sub(*profile.VerifiedAt).Hours() / 24
		freshness = clamp(100-days/3.65, 0, 100)
	}

	quality := (completeness + freshness) / 2

	return &models.EvidenceSource{
		ID:                uuid.New().String(),
		SourceType:        SourceBuyerProfile,
		QualityScore:      round2(quality),
		CompletenessScore: round2(completeness),
		FreshnessScore:    round2(freshness),
		Weight:            20,
		Metadata: map[string]any{
			"industry_code": profile.IndustryCode,
			"region_code":   profile.RegionCode,
		},
		CollectedAt: now,
		ExpiresAt:   now.Add(profileSourceTTL),
	}, nil
}

func profileCompleteness(p *models.BuyerProfile) float64 {
	fields := []bool{
		p.LegalName != "",
		p.IndustryCode != "",
		p.Sector != "",
		p.RegionCode != "",
		p.IncorporatedAt != nil,
		p.EmployeeCount != nil,
		p.AnnualRevenue != nil,
		p.WebsiteURL != "",
		p.TaxID != "",
		p.VerifiedAt != nil,
	}
	filled := 0
	for _, ok := range fields {
		if ok {
			filled++
		}
	}
	return float64(filled) / float64(len(fields)) * 100
}
