package limits

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invoscore/backend/internal/storage/models"
	"github.com/invoscore/backend/pkg/apperr"
)

func newTestService(repo *fakeLimitRepo, assessments *fakeAssessments, payments *fakePayments, publisher *fakePublisher) *Service {
	if repo == nil {
		repo = newFakeLimitRepo()
	}
	if assessments == nil {
		assessments = &fakeAssessments{}
	}
	if payments == nil {
		payments = &fakePayments{}
	}
	if publisher == nil {
		publisher = &fakePublisher{}
	}
	calc := newTestCalculator(assessments, &fakeProfiles{}, payments, &fakeIndustry{})
	return NewService(repo, assessments, payments, calc, publisher)
}

func createLimit(t *testing.T, svc *Service, buyerID string, amount float64) *models.CreditLimit {
	t.Helper()
	limit, err := svc.CreateLimit(context.Background(), CreateLimitInput{
		BuyerID:       buyerID,
		TenantID:      "t1",
		AssessmentID:  "asmt-1",
		ApprovedLimit: amount,
		ActorID:       "analyst-1",
	})
	require.NoError(t, err)
	return limit
}

func TestCreateLimitRecordsHistoryAndEvent(t *testing.T) {
	repo := newFakeLimitRepo()
	publisher := &fakePublisher{}
	svc := newTestService(repo, nil, nil, publisher)

	limit := createLimit(t, svc, "b1", 250_000)
	assert.Equal(t, models.LimitApproved, limit.Status)
	assert.False(t, limit.ReviewDate.IsZero())

	history, err := svc.History(context.Background(), limit.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "created", history[0].Action)
	assert.Equal(t, 250_000.0, history[0].NewLimit)

	assert.Equal(t, 1, publisher.count(EventLimitCreated))
}

func TestCreateLimitRejectsSecondActiveLimit(t *testing.T) {
	svc := newTestService(nil, nil, nil, nil)
	createLimit(t, svc, "b1", 250_000)

	_, err := svc.CreateLimit(context.Background(), CreateLimitInput{
		BuyerID:       "b1",
		TenantID:      "t1",
		ApprovedLimit: 300_000,
	})
	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "buyer_id", ve.Field)
}

func TestCreateLimitAllowedAfterDeactivation(t *testing.T) {
	svc := newTestService(nil, nil, nil, nil)
	first := createLimit(t, svc, "b1", 250_000)

	require.NoError(t, svc.Deactivate(context.Background(), first.ID, "buyer offboarded", "analyst-1"))

	second := createLimit(t, svc, "b1", 100_000)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestCreateLimitRejectsNonPositiveAmount(t *testing.T) {
	svc := newTestService(nil, nil, nil, nil)
	_, err := svc.CreateLimit(context.Background(), CreateLimitInput{
		BuyerID:       "b1",
		TenantID:      "t1",
		ApprovedLimit: 0,
	})
	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestUpdateApprovedLimitRoutineChange(t *testing.T) {
	repo := newFakeLimitRepo()
	publisher := &fakePublisher{}
	svc := newTestService(repo, nil, nil, publisher)
	limit := createLimit(t, svc, "b1", 250_000)

	updated, err := svc.UpdateApprovedLimit(context.Background(), limit.ID, 300_000, "revenue growth", "analyst-1")
	require.NoError(t, err)
	assert.Equal(t, 300_000.0, updated.ApprovedLimit)

	history, err := svc.History(context.Background(), limit.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "limit_changed", history[1].Action)
	assert.Equal(t, 250_000.0, history[1].PreviousLimit)

	assert.Equal(t, 1, publisher.count(EventLimitUpdated))
}

func TestUpdateApprovedLimitSignificantScoreSwingOpensApproval(t *testing.T) {
	repo := newFakeLimitRepo()
	assessments := &fakeAssessments{}
	require.NoError(t, assessments.Create(context.Background(), &models.Assessment{
		ID: "a1", BuyerID: "b1", TenantID: "t1", Version: 1, ScoreValue: 75,
	}))
	require.NoError(t, assessments.Create(context.Background(), &models.Assessment{
		ID: "a2", BuyerID: "b1", TenantID: "t1", Version: 2, ScoreValue: 60,
	}))

	svc := newTestService(repo, assessments, nil, nil)
	limit := createLimit(t, svc, "b1", 400_000)

	// Score moved 15 points; the change is routed through approval and
	// the approved amount stays untouched.
	got, err := svc.UpdateApprovedLimit(context.Background(), limit.ID, 500_000, "requested raise", "analyst-1")
	require.NoError(t, err)
	assert.Equal(t, 400_000.0, got.ApprovedLimit)

	pending, err := repo.FindPendingApproval(context.Background(), limit.ID)
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, 300_000.0, pending.ProposedLimit)
	assert.Equal(t, 400_000.0, pending.CurrentLimit)
}

func TestUpdateApprovedLimitHighLateShareOpensApproval(t *testing.T) {
	repo := newFakeLimitRepo()
	var records []*models.PaymentRecord
	for i := 0; i < 10; i++ {
		records = append(records, &models.PaymentRecord{OnTime: i >= 4})
	}
	svc := newTestService(repo, nil, &fakePayments{records: records}, nil)
	limit := createLimit(t, svc, "b1", 400_000)

	// 40% late over the trailing quarter crosses the risk gate.
	_, err := svc.UpdateApprovedLimit(context.Background(), limit.ID, 500_000, "requested raise", "analyst-1")
	require.NoError(t, err)

	pending, err := repo.FindPendingApproval(context.Background(), limit.ID)
	require.NoError(t, err)
	require.NotNil(t, pending)
}

func TestProposeReductionSkipsDuplicatePending(t *testing.T) {
	repo := newFakeLimitRepo()
	svc := newTestService(repo, nil, nil, nil)
	limit := createLimit(t, svc, "b1", 400_000)

	require.NoError(t, svc.ProposeReduction(context.Background(), "b1", "t1", "score dropped sharply"))
	require.NoError(t, svc.ProposeReduction(context.Background(), "b1", "t1", "score dropped again"))

	count := 0
	for _, a := range repo.approvals {
		if a.CreditLimitID == limit.ID {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestProposeReductionWithoutActiveLimit(t *testing.T) {
	svc := newTestService(nil, nil, nil, nil)
	err := svc.ProposeReduction(context.Background(), "ghost", "t1", "reason")
	var nf *apperr.NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestDecideApprovalApproveAppliesReduction(t *testing.T) {
	repo := newFakeLimitRepo()
	publisher := &fakePublisher{}
	svc := newTestService(repo, nil, nil, publisher)
	limit := createLimit(t, svc, "b1", 400_000)

	require.NoError(t, svc.ProposeReduction(context.Background(), "b1", "t1", "sustained deterioration"))
	pending, err := repo.FindPendingApproval(context.Background(), limit.ID)
	require.NoError(t, err)
	require.NotNil(t, pending)

	require.NoError(t, svc.DecideApproval(context.Background(), pending.ID, true, "manager-1"))

	updated, err := repo.FindByID(context.Background(), limit.ID)
	require.NoError(t, err)
	assert.Equal(t, 300_000.0, updated.ApprovedLimit)

	decided, err := repo.FindApprovalByID(context.Background(), pending.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalApproved, decided.Status)
	assert.Equal(t, "manager-1", decided.DecidedBy)
	require.NotNil(t, decided.DecidedAt)
	assert.Equal(t, 1, publisher.count(EventLimitUpdated))
}

func TestDecideApprovalRejectKeepsLimit(t *testing.T) {
	repo := newFakeLimitRepo()
	svc := newTestService(repo, nil, nil, nil)
	limit := createLimit(t, svc, "b1", 400_000)

	require.NoError(t, svc.ProposeReduction(context.Background(), "b1", "t1", "sustained deterioration"))
	pending, _ := repo.FindPendingApproval(context.Background(), limit.ID)

	require.NoError(t, svc.DecideApproval(context.Background(), pending.ID, false, "manager-1"))

	unchanged, err := repo.FindByID(context.Background(), limit.ID)
	require.NoError(t, err)
	assert.Equal(t, 400_000.0, unchanged.ApprovedLimit)

	decided, _ := repo.FindApprovalByID(context.Background(), pending.ID)
	assert.Equal(t, models.ApprovalRejected, decided.Status)
}

func TestDecideApprovalTwiceFails(t *testing.T) {
	repo := newFakeLimitRepo()
	svc := newTestService(repo, nil, nil, nil)
	limit := createLimit(t, svc, "b1", 400_000)

	require.NoError(t, svc.ProposeReduction(context.Background(), "b1", "t1", "reason"))
	pending, _ := repo.FindPendingApproval(context.Background(), limit.ID)

	require.NoError(t, svc.DecideApproval(context.Background(), pending.ID, false, "manager-1"))

	err := svc.DecideApproval(context.Background(), pending.ID, true, "manager-2")
	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestTemporaryIncreaseLifecycle(t *testing.T) {
	repo := newFakeLimitRepo()
	svc := newTestService(repo, nil, nil, nil)
	limit := createLimit(t, svc, "b1", 200_000)

	expiry := time.Now().Add(30 * 24 * time.Hour)
	updated, err := svc.ApplyTemporaryIncrease(context.Background(), limit.ID, 50_000, expiry, "analyst-1")
	require.NoError(t, err)
	assert.Equal(t, 250_000.0, updated.EffectiveLimit(time.Now()))

	// Past expiry the increase no longer counts.
	assert.Equal(t, 200_000.0, updated.EffectiveLimit(expiry.Add(time.Hour)))

	removed, err := svc.RemoveTemporaryIncrease(context.Background(), limit.ID, "analyst-1")
	require.NoError(t, err)
	assert.Nil(t, removed.TemporaryIncrease)
	assert.Equal(t, 200_000.0, removed.EffectiveLimit(time.Now()))
}

func TestTemporaryIncreaseValidation(t *testing.T) {
	svc := newTestService(nil, nil, nil, nil)
	limit := createLimit(t, svc, "b1", 200_000)

	var ve *apperr.ValidationError
	_, err := svc.ApplyTemporaryIncrease(context.Background(), limit.ID, 0, time.Now().Add(time.Hour), "a")
	require.ErrorAs(t, err, &ve)

	_, err = svc.ApplyTemporaryIncrease(context.Background(), limit.ID, 10_000, time.Now().Add(-time.Hour), "a")
	require.ErrorAs(t, err, &ve)
}

func TestUpdateUtilizationDerivesAvailability(t *testing.T) {
	repo := newFakeLimitRepo()
	svc := newTestService(repo, nil, nil, nil)
	limit := createLimit(t, svc, "b1", 200_000)

	updated, err := svc.UpdateUtilization(context.Background(), limit.ID, 150_000)
	require.NoError(t, err)

	now := time.Now()
	assert.Equal(t, 75.0, updated.UtilizationPercentage(now))
	assert.Equal(t, 50_000.0, updated.AvailableCredit(now))

	_, err = svc.UpdateUtilization(context.Background(), limit.ID, -1)
	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestHasSufficientCredit(t *testing.T) {
	repo := newFakeLimitRepo()
	svc := newTestService(repo, nil, nil, nil)
	limit := createLimit(t, svc, "b1", 100_000)
	_, err := svc.UpdateUtilization(context.Background(), limit.ID, 60_000)
	require.NoError(t, err)

	ok, err := svc.HasSufficientCredit(context.Background(), "b1", "t1", 40_000)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.HasSufficientCredit(context.Background(), "b1", "t1", 40_001)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = svc.HasSufficientCredit(context.Background(), "nobody", "t1", 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListDueForReview(t *testing.T) {
	repo := newFakeLimitRepo()
	svc := newTestService(repo, nil, nil, nil)

	overdue, err := svc.CreateLimit(context.Background(), CreateLimitInput{
		BuyerID:       "b1",
		TenantID:      "t1",
		ApprovedLimit: 100_000,
		ReviewDate:    time.Now().AddDate(0, 0, -1),
	})
	require.NoError(t, err)
	_, err = svc.CreateLimit(context.Background(), CreateLimitInput{
		BuyerID:       "b2",
		TenantID:      "t1",
		ApprovedLimit: 100_000,
		ReviewDate:    time.Now().AddDate(0, 6, 0),
	})
	require.NoError(t, err)

	due, err := svc.ListDueForReview(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, overdue.ID, due[0].ID)
}

func TestListHighUtilization(t *testing.T) {
	repo := newFakeLimitRepo()
	svc := newTestService(repo, nil, nil, nil)

	hot := createLimit(t, svc, "b1", 100_000)
	_, err := svc.UpdateUtilization(context.Background(), hot.ID, 90_000)
	require.NoError(t, err)

	cool := createLimit(t, svc, "b2", 100_000)
	_, err = svc.UpdateUtilization(context.Background(), cool.ID, 20_000)
	require.NoError(t, err)

	high, err := svc.ListHighUtilization(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, high, 1)
	assert.Equal(t, hot.ID, high[0].ID)
}
