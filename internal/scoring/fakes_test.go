package scoring

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/invoscore/backend/internal/storage/models"
)

type fakePayments struct {
	records []*models.PaymentRecord
	err     error
}

func (f *fakePayments) FindByBuyer(_ context.Context, buyerID, tenantID string, since time.Time) ([]*models.PaymentRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []*models.PaymentRecord
	for _, r := range f.records {
		if r.DueDate.After(since) || r.DueDate.Equal(since) || r.DueDate.IsZero() {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakePayments) MaxPaymentAmount(_ context.Context, buyerID, tenantID string, since time.Time) (float64, error) {
	if f.err != nil {
		return 0, f.err
	}
	max := 0.0
	for _, r := range f.records {
		if r.Amount > max {
			max = r.Amount
		}
	}
	return max, nil
}

type fakeProfiles struct {
	profile *models.BuyerProfile
	err     error
}

func (f *fakeProfiles) FindByID(context.Context, string, string) (*models.BuyerProfile, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.profile, nil
}

type fakeAssessments struct {
	mu         sync.Mutex
	created    []*models.Assessment
	superseded []string
}

func (f *fakeAssessments) Create(_ context.Context, a *models.Assessment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, a)
	return nil
}

func (f *fakeAssessments) FindByID(_ context.Context, id string) (*models.Assessment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.created {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, nil
}

func (f *fakeAssessments) FindLatestByBuyer(_ context.Context, buyerID, tenantID string) (*models.Assessment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *models.Assessment
	for _, a := range f.created {
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
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Assessment
	for _, a := range f.created {
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

func (f *fakeAssessments) MarkSuperseded(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.superseded = append(f.superseded, id)
	for _, a := range f.created {
		if a.ID == id {
			a.Status = models.AssessmentSuperseded
		}
	}
	return nil
}

type fakeModels struct {
	model *models.ScoringModel
}

func (f *fakeModels) FindByVersion(_ context.Context, _, version string) (*models.ScoringModel, error) {
	if f.model != nil && f.model.Version == version {
		return f.model, nil
	}
	return nil, nil
}

func (f *fakeModels) FindDefaultForIndustry(context.Context, string, string) (*models.ScoringModel, error) {
	return nil, nil
}

func (f *fakeModels) FindTenantDefault(context.Context, string) (*models.ScoringModel, error) {
	return f.model, nil
}

type publishedEvent struct {
	Event   string
	Payload any
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (f *fakePublisher) Emit(_ context.Context, event string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, publishedEvent{Event: event, Payload: payload})
}

func (f *fakePublisher) byName(event string) []publishedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []publishedEvent
	for _, e := range f.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

type fakeCache struct {
	mu    sync.Mutex
	store map[string]*models.Assessment
}

func newFakeCache() *fakeCache {
	return &fakeCache{store: map[string]*models.Assessment{}}
}

func (f *fakeCache) GetLatest(_ context.Context, buyerID, tenantID string) (*models.Assessment, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.store[tenantID+"/"+buyerID]
	return a, ok
}

func (f *fakeCache) SetLatest(_ context.Context, a *models.Assessment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.store[a.TenantID+"/"+a.BuyerID] = a
}

func (f *fakeCache) Invalidate(_ context.Context, buyerID, tenantID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.store, tenantID+"/"+buyerID)
}

type fakeIndustry struct {
	profile  *models.IndustryRiskProfile
	regional *models.RegionalRiskAdjustment
}

func (f *fakeIndustry) FindProfile(context.Context, string) (*models.IndustryRiskProfile, error) {
	return f.profile, nil
}

func (f *fakeIndustry) FindRegional(context.Context, string) (*models.RegionalRiskAdjustment, error) {
	return f.regional, nil
}
