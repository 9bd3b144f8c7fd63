package limits

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/invoscore/backend/internal/storage/models"
)

type fakeAssessments struct {
	assessments []*models.Assessment
}

func (f *fakeAssessments) Create(_ context.Context, a *models.Assessment) error {
	f.assessments = append(f.assessments, a)
	return nil
}

func (f *fakeAssessments) FindByID(_ context.Context, id string) (*models.Assessment, error) {
	for _, a := range f.assessments {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, nil
}

func (f *fakeAssessments) FindLatestByBuyer(_ context.Context, buyerID, tenantID string) (*models.Assessment, error) {
	var latest *models.Assessment
	for _, a := range f.assessments {
		if a.BuyerID != buyerID || a.TenantID != tenantID {
			continue
		}
		if latest == nil || a.Version > latest.Version {
			latest = a
		}
	}
	return latest, nil
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

type fakeProfiles struct {
	profile *models.BuyerProfile
}

func (f *fakeProfiles) FindByID(context.Context, string, string) (*models.BuyerProfile, error) {
	return f.profile, nil
}

type fakePayments struct {
	records []*models.PaymentRecord
	maxAmt  float64
}

func (f *fakePayments) FindByBuyer(context.Context, string, string, time.Time) ([]*models.PaymentRecord, error) {
	return f.records, nil
}

func (f *fakePayments) MaxPaymentAmount(context.Context, string, string, time.Time) (float64, error) {
	return f.maxAmt, nil
}

type fakeIndustry struct {
	profile *models.IndustryRiskProfile
}

func (f *fakeIndustry) FindProfile(context.Context, string) (*models.IndustryRiskProfile, error) {
	return f.profile, nil
}

func (f *fakeIndustry) FindRegional(context.Context, string) (*models.RegionalRiskAdjustment, error) {
	return nil, nil
}

type fakeLimitRepo struct {
	mu        sync.Mutex
	limits    map[string]*models.CreditLimit
	history   []*models.CreditLimitHistory
	approvals map[string]*models.CreditLimitApproval
}

func newFakeLimitRepo() *fakeLimitRepo {
	return &fakeLimitRepo{
		limits:    map[string]*models.CreditLimit{},
		approvals: map[string]*models.CreditLimitApproval{},
	}
}

func (f *fakeLimitRepo) Create(_ context.Context, l *models.CreditLimit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *l
	f.limits[l.ID] = &cp
	return nil
}

func (f *fakeLimitRepo) Update(_ context.Context, l *models.CreditLimit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *l
	f.limits[l.ID] = &cp
	return nil
}

func (f *fakeLimitRepo) FindByID(_ context.Context, id string) (*models.CreditLimit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.limits[id]
	if !ok {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}

func (f *fakeLimitRepo) FindActiveByBuyer(_ context.Context, buyerID, tenantID string) (*models.CreditLimit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.limits {
		if l.BuyerID == buyerID && l.TenantID == tenantID && l.Status == models.LimitApproved {
			cp := *l
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeLimitRepo) ListActiveBuyers(_ context.Context, tenantID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, l := range f.limits {
		if l.TenantID == tenantID && l.Status == models.LimitApproved && !seen[l.BuyerID] {
			seen[l.BuyerID] = true
			out = append(out, l.BuyerID)
		}
	}
	return out, nil
}

func (f *fakeLimitRepo) ListExpiring(_ context.Context, tenantID string, before time.Time) ([]*models.CreditLimit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.CreditLimit
	for _, l := range f.limits {
		if l.TenantID == tenantID && l.ExpiresAt != nil && l.ExpiresAt.Before(before) {
			cp := *l
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeLimitRepo) ListDueForReview(_ context.Context, tenantID string, before time.Time) ([]*models.CreditLimit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.CreditLimit
	for _, l := range f.limits {
		if l.TenantID == tenantID && l.Status == models.LimitApproved && l.ReviewDate.Before(before) {
			cp := *l
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeLimitRepo) ListHighUtilization(_ context.Context, tenantID string, thresholdPct float64) ([]*models.CreditLimit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.CreditLimit
	for _, l := range f.limits {
		if l.TenantID == tenantID && l.Status == models.LimitApproved && l.ApprovedLimit > 0 &&
			l.CurrentUtilization/l.ApprovedLimit*100 >= thresholdPct {
			cp := *l
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeLimitRepo) AppendHistory(_ context.Context, h *models.CreditLimitHistory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history = append(f.history, h)
	return nil
}

func (f *fakeLimitRepo) ListHistory(_ context.Context, creditLimitID string) ([]*models.CreditLimitHistory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.CreditLimitHistory
	for _, h := range f.history {
		if h.CreditLimitID == creditLimitID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (f *fakeLimitRepo) CreateApproval(_ context.Context, a *models.CreditLimitApproval) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *a
	f.approvals[a.ID] = &cp
	return nil
}

func (f *fakeLimitRepo) FindApprovalByID(_ context.Context, id string) (*models.CreditLimitApproval, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.approvals[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (f *fakeLimitRepo) FindPendingApproval(_ context.Context, creditLimitID string) (*models.CreditLimitApproval, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.approvals {
		if a.CreditLimitID == creditLimitID && a.Status == models.ApprovalPending {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeLimitRepo) UpdateApproval(_ context.Context, a *models.CreditLimitApproval) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *a
	f.approvals[a.ID] = &cp
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

func (f *fakePublisher) count(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e == event {
			n++
		}
	}
	return n
}
