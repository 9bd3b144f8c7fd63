package monitor

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/invoscore/backend/internal/storage/models"
	"github.com/invoscore/backend/pkg/apperr"
)

type fakeAssessments struct {
	assessments []*models.Assessment
}

func (f *fakeAssessments) Create(_ context.Context, a *models.Assessment) error {
	f.assessments = append(f.assessments, a)
	return nil
}

func (f *fakeAssessments) FindByID(context.Context, string) (*models.Assessment, error) {
	return nil, nil
}

func (f *fakeAssessments) FindLatestByBuyer(ctx context.Context, buyerID, tenantID string) (*models.Assessment, error) {
	recent, err := f.FindRecentByBuyer(ctx, buyerID, tenantID, 1)
	if err != nil || len(recent) == 0 {
		return nil, err
	}
	return recent[0], nil
}

func (f *fakeAssessments) FindRecentByBuyer(_ context.Context, buyerID, tenantID string, limit int) ([]*models.Assessment, error) {
	var out []*models.Assessment
	for _, a := range f.assessments {
		if a.BuyerID == buyerID && a.TenantID == tenantID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeAssessments) MarkSuperseded(context.Context, string) error { return nil }

type fakePayments struct {
	records map[string][]*models.PaymentRecord
	err     error
}

func (f *fakePayments) FindByBuyer(_ context.Context, buyerID, _ string, _ time.Time) ([]*models.PaymentRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.records[buyerID], nil
}

func (f *fakePayments) MaxPaymentAmount(context.Context, string, string, time.Time) (float64, error) {
	return 0, nil
}

type fakeLimitRepo struct {
	limits map[string]*models.CreditLimit // keyed by buyer
}

func (f *fakeLimitRepo) Create(context.Context, *models.CreditLimit) error { return nil }
func (f *fakeLimitRepo) Update(context.Context, *models.CreditLimit) error { return nil }
func (f *fakeLimitRepo) FindByID(context.Context, string) (*models.CreditLimit, error) {
	return nil, nil
}

func (f *fakeLimitRepo) FindActiveByBuyer(_ context.Context, buyerID, _ string) (*models.CreditLimit, error) {
	return f.limits[buyerID], nil
}

func (f *fakeLimitRepo) ListActiveBuyers(context.Context, string) ([]string, error) {
	var out []string
	for buyerID := range f.limits {
		out = append(out, buyerID)
	}
	sort.Strings(out)
	return out, nil
}

func (f *fakeLimitRepo) ListExpiring(context.Context, string, time.Time) ([]*models.CreditLimit, error) {
	return nil, nil
}

func (f *fakeLimitRepo) ListDueForReview(context.Context, string, time.Time) ([]*models.CreditLimit, error) {
	return nil, nil
}

func (f *fakeLimitRepo) ListHighUtilization(context.Context, string, float64) ([]*models.CreditLimit, error) {
	return nil, nil
}

func (f *fakeLimitRepo) AppendHistory(context.Context, *models.CreditLimitHistory) error { return nil }
func (f *fakeLimitRepo) ListHistory(context.Context, string) ([]*models.CreditLimitHistory, error) {
	return nil, nil
}

func (f *fakeLimitRepo) CreateApproval(context.Context, *models.CreditLimitApproval) error {
	return nil
}

func (f *fakeLimitRepo) FindApprovalByID(context.Context, string) (*models.CreditLimitApproval, error) {
	return nil, nil
}

func (f *fakeLimitRepo) FindPendingApproval(context.Context, string) (*models.CreditLimitApproval, error) {
	return nil, nil
}

func (f *fakeLimitRepo) UpdateApproval(context.Context, *models.CreditLimitApproval) error {
	return nil
}

type fakeIndicatorRepo struct {
	mu         sync.Mutex
	indicators map[string]*models.RiskIndicator
}

func newFakeIndicatorRepo() *fakeIndicatorRepo {
	return &fakeIndicatorRepo{indicators: map[string]*models.RiskIndicator{}}
}

func (f *fakeIndicatorRepo) CreateBatch(_ context.Context, indicators []*models.RiskIndicator) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ind := range indicators {
		cp := *ind
		f.indicators[ind.ID] = &cp
	}
	return nil
}

func (f *fakeIndicatorRepo) FindByID(_ context.Context, id string) (*models.RiskIndicator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ind, ok := f.indicators[id]
	if !ok {
		return nil, nil
	}
	cp := *ind
	return &cp, nil
}

func (f *fakeIndicatorRepo) FindActiveByBuyer(_ context.Context, buyerID, _ string) ([]*models.RiskIndicator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.RiskIndicator
	for _, ind := range f.indicators {
		if ind.BuyerID == buyerID && ind.Status == models.IndicatorActive {
			cp := *ind
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeIndicatorRepo) UpdateStatus(_ context.Context, id string, status models.IndicatorStatus, notes string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ind, ok := f.indicators[id]
	if !ok {
		return errors.New("indicator not found")
	}
	ind.Status = status
	ind.Notes = notes
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []string
}

func (f *fakePublisher) Emit(_ context.Context, event string, _ any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

type fakeReducer struct {
	mu       sync.Mutex
	calls    []string
	noActive bool
}

func (f *fakeReducer) ProposeReduction(_ context.Context, buyerID, _ string, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.noActive {
		return apperr.NotFound("credit limit", buyerID)
	}
	f.calls = append(f.calls, buyerID+": "+reason)
	return nil
}
