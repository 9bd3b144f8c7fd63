package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invoscore/backend/internal/storage/models"
	"github.com/invoscore/backend/pkg/apperr"
)

type monitorDeps struct {
	assessments *fakeAssessments
	payments    *fakePayments
	limits      *fakeLimitRepo
	indicators  *fakeIndicatorRepo
	publisher   *fakePublisher
	reducer     *fakeReducer
}

func newTestMonitor() (*Monitor, *monitorDeps) {
	deps := &monitorDeps{
		assessments: &fakeAssessments{},
		payments:    &fakePayments{records: map[string][]*models.PaymentRecord{}},
		limits:      &fakeLimitRepo{limits: map[string]*models.CreditLimit{}},
		indicators:  newFakeIndicatorRepo(),
		publisher:   &fakePublisher{},
		reducer:     &fakeReducer{},
	}
	m := New(deps.assessments, deps.payments, deps.limits, deps.indicators, deps.publisher, deps.reducer)
	return m, deps
}

func addAssessment(deps *monitorDeps, buyerID string, version int, score float64) {
	deps.assessments.assessments = append(deps.assessments.assessments, &models.Assessment{
		ID: "a", BuyerID: buyerID, TenantID: "t1", Version: version, ScoreValue: score,
	})
}

func indicatorOfType(indicators []*models.RiskIndicator, typ models.IndicatorType) *models.RiskIndicator {
	for _, ind := range indicators {
		if ind.Type == typ {
			return ind
		}
	}
	return nil
}

func TestMonitorBuyerCleanHistoryDetectsNothing(t *testing.T) {
	m, deps := newTestMonitor()
	addAssessment(deps, "b1", 1, 80)
	addAssessment(deps, "b1", 2, 82)

	detected, err := m.MonitorBuyer(context.Background(), "b1", "t1")
	require.NoError(t, err)
	assert.Empty(t, detected)
	assert.Empty(t, deps.publisher.events)
}

func TestMonitorBuyerDetectsScoreDrop(t *testing.T) {
	m, deps := newTestMonitor()
	addAssessment(deps, "b1", 1, 70)
	addAssessment(deps, "b1", 2, 55)

	detected, err := m.MonitorBuyer(context.Background(), "b1", "t1")
	require.NoError(t, err)

	ind := indicatorOfType(detected, models.IndicatorScoreChange)
	require.NotNil(t, ind)
	assert.Equal(t, models.RiskHigh, ind.RiskLevel)
	assert.Equal(t, -15.0, ind.Value)
	assert.Equal(t, models.IndicatorActive, ind.Status)

	// High severity does not trigger a reduction proposal, only
	// critical and very_high do.
	assert.Empty(t, deps.reducer.calls)
	assert.Len(t, deps.publisher.events, 1)
}

func TestMonitorBuyerSevereDropProposesReduction(t *testing.T) {
	m, deps := newTestMonitor()
	addAssessment(deps, "b1", 1, 85)
	addAssessment(deps, "b1", 2, 60)

	detected, err := m.MonitorBuyer(context.Background(), "b1", "t1")
	require.NoError(t, err)

	ind := indicatorOfType(detected, models.IndicatorScoreChange)
	require.NotNil(t, ind)
	assert.Equal(t, models.RiskVeryHigh, ind.RiskLevel)
	assert.Len(t, deps.reducer.calls, 1)
}

func TestMonitorBuyerSevereDropWithoutActiveLimit(t *testing.T) {
	m, deps := newTestMonitor()
	deps.reducer.noActive = true
	addAssessment(deps, "b1", 1, 90)
	addAssessment(deps, "b1", 2, 55)

	// A missing active limit is not an error for the monitoring pass.
	detected, err := m.MonitorBuyer(context.Background(), "b1", "t1")
	require.NoError(t, err)
	require.NotNil(t, indicatorOfType(detected, models.IndicatorScoreChange))
}

func TestMonitorBuyerDetectsLowAbsoluteScore(t *testing.T) {
	m, deps := newTestMonitor()
	addAssessment(deps, "b1", 1, 25)

	detected, err := m.MonitorBuyer(context.Background(), "b1", "t1")
	require.NoError(t, err)

	ind := indicatorOfType(detected, models.IndicatorLowScore)
	require.NotNil(t, ind)
	assert.Equal(t, models.RiskVeryHigh, ind.RiskLevel)
	assert.Equal(t, 25.0, ind.Value)
}

func TestMonitorBuyerDetectsLatePaymentShare(t *testing.T) {
	m, deps := newTestMonitor()
	var records []*models.PaymentRecord
	for i := 0; i < 10; i++ {
		records = append(records, &models.PaymentRecord{OnTime: i >= 4, DaysLate: 0})
	}
	deps.payments.records["b1"] = records

	detected, err := m.MonitorBuyer(context.Background(), "b1", "t1")
	require.NoError(t, err)

	ind := indicatorOfType(detected, models.IndicatorLatePayments)
	require.NotNil(t, ind)
	assert.Equal(t, models.RiskHigh, ind.RiskLevel)
	assert.Equal(t, 40.0, ind.Value)
}

func TestMonitorBuyerDetectsVeryLatePayments(t *testing.T) {
	m, deps := newTestMonitor()
	deps.payments.records["b1"] = []*models.PaymentRecord{
		{OnTime: true},
		{OnTime: false, DaysLate: 20},
		{OnTime: true},
		{OnTime: true},
	}

	detected, err := m.MonitorBuyer(context.Background(), "b1", "t1")
	require.NoError(t, err)

	ind := indicatorOfType(detected, models.IndicatorVeryLatePayment)
	require.NotNil(t, ind)
	assert.Equal(t, models.RiskMedium, ind.RiskLevel)
	assert.Equal(t, 1.0, ind.Value)
}

func TestMonitorBuyerDetectsWorseningPattern(t *testing.T) {
	m, deps := newTestMonitor()
	// Newest first: 8 > 5 > 2 days late.
	deps.payments.records["b1"] = []*models.PaymentRecord{
		{OnTime: false, DaysLate: 8},
		{OnTime: false, DaysLate: 5},
		{OnTime: false, DaysLate: 2},
		{OnTime: true},
	}

	detected, err := m.MonitorBuyer(context.Background(), "b1", "t1")
	require.NoError(t, err)
	require.NotNil(t, indicatorOfType(detected, models.IndicatorWorseningPattern))
}

func TestMonitorBuyerDetectsHighUtilization(t *testing.T) {
	m, deps := newTestMonitor()
	deps.limits.limits["b1"] = &models.CreditLimit{
		ID: "l1", BuyerID: "b1", TenantID: "t1",
		ApprovedLimit:      100_000,
		CurrentUtilization: 92_000,
		Status:             models.LimitApproved,
	}

	detected, err := m.MonitorBuyer(context.Background(), "b1", "t1")
	require.NoError(t, err)
	require.Len(t, detected, 1)

	ind := detected[0]
	assert.Equal(t, models.IndicatorCreditUtilization, ind.Type)
	assert.Equal(t, models.RiskVeryHigh, ind.RiskLevel)
	assert.InDelta(t, 92.0, ind.Value, 0.01)
}

func TestMonitorBuyerUtilizationBelowThresholdIgnored(t *testing.T) {
	m, deps := newTestMonitor()
	deps.limits.limits["b1"] = &models.CreditLimit{
		ID: "l1", BuyerID: "b1", TenantID: "t1",
		ApprovedLimit:      100_000,
		CurrentUtilization: 60_000,
		Status:             models.LimitApproved,
	}

	detected, err := m.MonitorBuyer(context.Background(), "b1", "t1")
	require.NoError(t, err)
	assert.Empty(t, detected)
}

func TestScoreDropLevels(t *testing.T) {
	assert.Equal(t, models.RiskCritical, scoreDropLevel(-35))
	assert.Equal(t, models.RiskCritical, scoreDropLevel(-30))
	assert.Equal(t, models.RiskVeryHigh, scoreDropLevel(-25))
	assert.Equal(t, models.RiskHigh, scoreDropLevel(-15))
	assert.Equal(t, models.RiskMedium, scoreDropLevel(-10))
}

func TestLateShareLevels(t *testing.T) {
	assert.Equal(t, models.RiskCritical, lateShareLevel(75))
	assert.Equal(t, models.RiskVeryHigh, lateShareLevel(55))
	assert.Equal(t, models.RiskHigh, lateShareLevel(45))
	assert.Equal(t, models.RiskMedium, lateShareLevel(35))
}

func TestUtilizationLevels(t *testing.T) {
	assert.Equal(t, models.RiskCritical, utilizationLevel(97))
	assert.Equal(t, models.RiskVeryHigh, utilizationLevel(91))
	assert.Equal(t, models.RiskHigh, utilizationLevel(86))
}

func TestWorseningStreak(t *testing.T) {
	assert.False(t, worseningStreak([]*models.PaymentRecord{
		{DaysLate: 5}, {DaysLate: 3},
	}))
	assert.True(t, worseningStreak([]*models.PaymentRecord{
		{DaysLate: 9}, {DaysLate: 4}, {DaysLate: 1},
	}))
	assert.False(t, worseningStreak([]*models.PaymentRecord{
		{DaysLate: 4}, {DaysLate: 4}, {DaysLate: 1},
	}))
	assert.False(t, worseningStreak([]*models.PaymentRecord{
		{DaysLate: 1}, {DaysLate: 4}, {DaysLate: 9},
	}))
}

func TestTransitionLifecycle(t *testing.T) {
	m, deps := newTestMonitor()
	addAssessment(deps, "b1", 1, 25)

	detected, err := m.MonitorBuyer(context.Background(), "b1", "t1")
	require.NoError(t, err)
	require.Len(t, detected, 1)
	id := detected[0].ID

	require.NoError(t, m.Transition(context.Background(), id, models.IndicatorAcknowledged, "reviewing"))
	require.NoError(t, m.Transition(context.Background(), id, models.IndicatorResolved, "score recovered"))

	// Terminal states are final.
	err = m.Transition(context.Background(), id, models.IndicatorAcknowledged, "")
	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)

	stored, err := deps.indicators.FindByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.IndicatorResolved, stored.Status)
	assert.Equal(t, "score recovered", stored.Notes)
}

func TestTransitionActiveDirectlyToFalsePositive(t *testing.T) {
	m, deps := newTestMonitor()
	addAssessment(deps, "b1", 1, 25)

	detected, err := m.MonitorBuyer(context.Background(), "b1", "t1")
	require.NoError(t, err)
	require.Len(t, detected, 1)

	require.NoError(t, m.Transition(context.Background(), detected[0].ID, models.IndicatorFalsePositive, "seasonal dip"))
}

func TestTransitionUnknownIndicator(t *testing.T) {
	m, _ := newTestMonitor()
	err := m.Transition(context.Background(), "missing", models.IndicatorResolved, "")
	var nf *apperr.NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestActiveIndicatorsExcludesClosed(t *testing.T) {
	m, deps := newTestMonitor()
	addAssessment(deps, "b1", 1, 70)
	addAssessment(deps, "b1", 2, 55)
	addAssessment(deps, "b1", 3, 35)

	detected, err := m.MonitorBuyer(context.Background(), "b1", "t1")
	require.NoError(t, err)
	require.Len(t, detected, 2)

	require.NoError(t, m.Transition(context.Background(), detected[0].ID, models.IndicatorResolved, ""))

	active, err := m.ActiveIndicators(context.Background(), "b1", "t1")
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestSweepOnceToleratesBuyerFailure(t *testing.T) {
	m, deps := newTestMonitor()
	deps.limits.limits["b1"] = &models.CreditLimit{
		ID: "l1", BuyerID: "b1", TenantID: "t1",
		ApprovedLimit: 100_000, CurrentUtilization: 95_000,
		Status: models.LimitApproved,
	}
	deps.limits.limits["b2"] = &models.CreditLimit{
		ID: "l2", BuyerID: "b2", TenantID: "t1",
		ApprovedLimit: 100_000, CurrentUtilization: 98_000,
		Status: models.LimitApproved,
	}

	s := NewSweeper(m, deps.limits, "t1", time.Hour, 10)
	s.SweepOnce(context.Background())

	// Both buyers breach the utilization threshold; each gets an indicator.
	b1, err := deps.indicators.FindActiveByBuyer(context.Background(), "b1", "t1")
	require.NoError(t, err)
	assert.Len(t, b1, 1)
	b2, err := deps.indicators.FindActiveByBuyer(context.Background(), "b2", "t1")
	require.NoError(t, err)
	assert.Len(t, b2, 1)
}

func TestSweepOnceStopsOnCancelledContext(t *testing.T) {
	m, deps := newTestMonitor()
	deps.limits.limits["b1"] = &models.CreditLimit{
		ID: "l1", BuyerID: "b1", TenantID: "t1",
		ApprovedLimit: 100_000, CurrentUtilization: 95_000,
		Status: models.LimitApproved,
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewSweeper(m, deps.limits, "t1", time.Hour, 10)
	s.SweepOnce(ctx)

	active, err := deps.indicators.FindActiveByBuyer(context.Background(), "b1", "t1")
	require.NoError(t, err)
	assert.Empty(t, active)
}
