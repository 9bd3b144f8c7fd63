package monitor

import (
	"context"
	"errors"
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

const EventIndicatorDetected = "risk.indicator.detected"

const (
	scoreDropThreshold    = -10.0
	lowScoreThreshold     = 40.0
	lateShareThresholdPct = 30.0
	veryLateDays          = 15
	utilizationThreshold  = 85.0
)

// reductionProposer is the slice of the limits service the monitor
// needs when a severe score indicator fires.
type reductionProposer interface {
	ProposeReduction(ctx context.Context, buyerID, tenantID, reason string) error
}

// Monitor scans a buyer for score deterioration, late-payment behavior,
// and credit utilization breaches. Detection runs are idempotent over
// the same inputs; each indicator is independent, so there is no
// partial-rollback handling.
type Monitor struct {
	assessments ports.AssessmentRepository
	payments    ports.PaymentRepository
	limitRepo   ports.CreditLimitRepository
	indicators  ports.RiskIndicatorRepository
	publisher   ports.EventPublisher
	reducer     reductionProposer
	log         *zap.Logger
}

func New(
	assessments ports.AssessmentRepository,
	payments ports.PaymentRepository,
	limitRepo ports.CreditLimitRepository,
	indicators ports.RiskIndicatorRepository,
	publisher ports.EventPublisher,
	reducer reductionProposer,
) *Monitor {
	return &Monitor{
		assessments: assessments,
		payments:    payments,
		limitRepo:   limitRepo,
		indicators:  indicators,
		publisher:   publisher,
		reducer:     reducer,
		log:         logger.Named("monitor"),
	}
}

func (m *Monitor) MonitorBuyer(ctx context.Context, buyerID, tenantID string) ([]*models.RiskIndicator, error) {
	now := time.Now()
	var detected []*models.RiskIndicator

	scoreIndicators, err := m.detectScoreChanges(ctx, buyerID, tenantID, now)
	if err != nil {
		return nil, fmt.Errorf("score change detection failed: %w", err)
	}
	detected = append(detected, scoreIndicators...)

	paymentIndicators, err := m.detectPaymentBehavior(ctx, buyerID, tenantID, now)
	if err != nil {
		return nil, fmt.Errorf("payment behavior detection failed: %w", err)
	}
	detected = append(detected, paymentIndicators...)

	utilIndicator, err := m.detectUtilization(ctx, buyerID, tenantID, now)
	if err != nil {
		return nil, fmt.Errorf("utilization detection failed: %w", err)
	}
	if utilIndicator != nil {
		detected = append(detected, utilIndicator)
	}

	if len(detected) == 0 {
		return nil, nil
	}

	if err := m.indicators.CreateBatch(ctx, detected); err != nil {
		return nil, fmt.Errorf("failed to persist risk indicators: %w", err)
	}

	for _, ind := range detected {
		metrics.IndicatorsDetected.WithLabelValues(string(ind.Type), string(ind.RiskLevel)).Inc()
		m.publisher.Emit(ctx, EventIndicatorDetected, map[string]any{
			"indicator_id": ind.ID,
			"buyer_id":     buyerID,
			"tenant_id":    tenantID,
			"type":         ind.Type,
			"risk_level":   ind.RiskLevel,
			"value":        ind.Value,
			"threshold":    ind.Threshold,
		})
		m.log.Warn("risk indicator detected",
			zap.String("buyer_id", buyerID),
			zap.String("type", string(ind.Type)),
			zap.String("risk_level", string(ind.RiskLevel)),
			zap.Float64("value", ind.Value))

		if ind.Type == models.IndicatorScoreChange &&
			(ind.RiskLevel == models.RiskCritical || ind.RiskLevel == models.RiskVeryHigh) {
			reason := fmt.Sprintf("score dropped %.1f points", -ind.Value)
			if err := m.reducer.ProposeReduction(ctx, buyerID, tenantID, reason); err != nil {
				var nf *apperr.NotFoundError
				if !errors.As(err, &nf) {
					m.log.Error("failed to propose limit reduction",
						zap.String("buyer_id", buyerID), zap.Error(err))
				}
			}
		}
	}

	return detected, nil
}

func (m *Monitor) detectScoreChanges(ctx context.Context, buyerID, tenantID string, now time.Time) ([]*models.RiskIndicator, error) {
	recent, err := m.assessments.FindRecentByBuyer(ctx, buyerID, tenantID, 2)
	if err != nil {
		return nil, err
	}
	if len(recent) == 0 {
		return nil, nil
	}

	var out []*models.RiskIndicator

	if len(recent) >= 2 {
		delta := recent[0].ScoreValue - recent[1].ScoreValue
		if delta <= scoreDropThreshold {
			out = append(out, m.newIndicator(buyerID, tenantID, models.IndicatorScoreChange,
				scoreDropLevel(delta), delta, scoreDropThreshold, "deteriorating", now))
		}
	}

	current := recent[0].ScoreValue
	if current < lowScoreThreshold {
		out = append(out, m.newIndicator(buyerID, tenantID, models.IndicatorLowScore,
			lowScoreLevel(current), current, lowScoreThreshold, "low", now))
	}

	return out, nil
}

func (m *Monitor) detectPaymentBehavior(ctx context.Context, buyerID, tenantID string, now time.Time) ([]*models.RiskIndicator, error) {
	records, err := m.payments.FindByBuyer(ctx, buyerID, tenantID, now.Add(-90*24*time.Hour))
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	var out []*models.RiskIndicator

	late := 0
	veryLate := 0
	for _, r := range records {
		if !r.OnTime {
			late++
		}
		if r.DaysLate >= veryLateDays {
			veryLate++
		}
	}

	latePct := float64(late) / float64(len(records)) * 100
	if latePct >= lateShareThresholdPct {
		out = append(out, m.newIndicator(buyerID, tenantID, models.IndicatorLatePayments,
			lateShareLevel(latePct), latePct, lateShareThresholdPct, "deteriorating", now))
	}

	if veryLate > 0 {
		level := models.RiskMedium
		if veryLate >= 3 {
			level = models.RiskHigh
		}
		out = append(out, m.newIndicator(buyerID, tenantID, models.IndicatorVeryLatePayment,
			level, float64(veryLate), float64(veryLateDays), "deteriorating", now))
	}

	if worseningStreak(records) {
		out = append(out, m.newIndicator(buyerID, tenantID, models.IndicatorWorseningPattern,
			models.RiskMedium, 3, 3, "deteriorating", now))
	}

	return out, nil
}

func (m *Monitor) detectUtilization(ctx context.Context, buyerID, tenantID string, now time.Time) (*models.RiskIndicator, error) {
	limit, err := m.limitRepo.FindActiveByBuyer(ctx, buyerID, tenantID)
	if err != nil {
		return nil, err
	}
	if limit == nil {
		return nil, nil
	}

	pct := limit.UtilizationPercentage(now)
	if pct < utilizationThreshold {
		return nil, nil
	}
	return m.newIndicator(buyerID, tenantID, models.IndicatorCreditUtilization,
		utilizationLevel(pct), pct, utilizationThreshold, "rising", now), nil
}

func (m *Monitor) newIndicator(buyerID, tenantID string, typ models.IndicatorType, level models.RiskLevel, value, threshold float64, trend string, now time.Time) *models.RiskIndicator {
	return &models.RiskIndicator{
		ID:         uuid.New().String(),
		BuyerID:    buyerID,
		TenantID:   tenantID,
		Type:       typ,
		RiskLevel:  level,
		Value:      value,
		Threshold:  threshold,
		Trend:      trend,
		Confidence: 1,
		Status:     models.IndicatorActive,
		DetectedAt: now,
		UpdatedAt:  now,
	}
}

// Transition moves an indicator forward through its lifecycle. Active
// indicators may be acknowledged or closed directly; terminal states
// are final.
func (m *Monitor) Transition(ctx context.Context, indicatorID string, target models.IndicatorStatus, notes string) error {
	ind, err := m.indicators.FindByID(ctx, indicatorID)
	if err != nil {
		return fmt.Errorf("failed to load indicator: %w", err)
	}
	if ind == nil {
		return apperr.NotFound("risk indicator", indicatorID)
	}

	if !validTransition(ind.Status, target) {
		return apperr.Validation("status",
			fmt.Sprintf("cannot transition indicator from %s to %s", ind.Status, target))
	}

	if err := m.indicators.UpdateStatus(ctx, indicatorID, target, notes); err != nil {
		return fmt.Errorf("failed to update indicator status: %w", err)
	}

	m.log.Info("risk indicator transitioned",
		zap.String("indicator_id", indicatorID),
		zap.String("from", string(ind.Status)),
		zap.String("to", string(target)))
	return nil
}

func validTransition(from, to models.IndicatorStatus) bool {
	switch from {
	case models.IndicatorActive:
		return to == models.IndicatorAcknowledged ||
			to == models.IndicatorResolved ||
			to == models.IndicatorFalsePositive
	case models.IndicatorAcknowledged:
		return to == models.IndicatorResolved || to == models.IndicatorFalsePositive
	default:
		return false
	}
}

func (m *Monitor) ActiveIndicators(ctx context.Context, buyerID, tenantID string) ([]*models.RiskIndicator, error) {
	return m.indicators.FindActiveByBuyer(ctx, buyerID, tenantID)
}

func scoreDropLevel(delta float64) models.RiskLevel {
	switch {
	case delta <= -30:
		return models.RiskCritical
	case delta <= -20:
		return models.RiskVeryHigh
	case delta <= -15:
		return models.RiskHigh
	default:
		return models.RiskMedium
	}
}

func lowScoreLevel(score float64) models.RiskLevel {
	switch {
	case score < 20:
		return models.RiskCritical
	case score < 30:
		return models.RiskVeryHigh
	default:
		return models.RiskHigh
	}
}

func lateShareLevel(pct float64) models.RiskLevel {
	switch {
	case pct >= 70:
		return models.RiskCritical
	case pct >= 50:
		return models.RiskVeryHigh
	case pct >= 40:
		return models.RiskHigh
	default:
		return models.RiskMedium
	}
}

func utilizationLevel(pct float64) models.RiskLevel {
	switch {
	case pct >= 95:
		return models.RiskCritical
	case pct >= 90:
		return models.RiskVeryHigh
	default:
		return models.RiskHigh
	}
}

// worseningStreak reports whether the three most recent payments show
// strictly increasing days late. Records arrive newest first.
func worseningStreak(records []*models.PaymentRecord) bool {
	if len(records) < 3 {
		return false
	}
	return records[0].DaysLate > records[1].DaysLate && records[1].DaysLate > records[2].DaysLate &&
		records[2].DaysLate >= 0 && records[0].DaysLate > 0
}
