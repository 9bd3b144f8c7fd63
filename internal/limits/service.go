package limits

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/invoscore/backend/internal/ports"
	"github.com/invoscore/backend/internal/storage/models"
	"github.com/invoscore/backend/pkg/apperr"
	"github.com/invoscore/backend/pkg/logger"
)

const (
	EventLimitCreated = "credit_limit.created"
	EventLimitUpdated = "credit_limit.updated"

	utilizationAlertPct = 85.0

	// Changes past these thresholds require an approval record instead
	// of direct mutation of the approved amount.
	significantScoreSwing   = 10.0
	significantRiskProbPct  = 30.0
	reductionOnSignificance = 0.25
)

// Service owns the credit limit lifecycle: creation under the
// single-active-limit invariant, approval workflow for significant
// changes, temporary increases, utilization tracking, and the
// append-only audit history.
type Service struct {
	repo        ports.CreditLimitRepository
	assessments ports.AssessmentRepository
	payments    ports.PaymentRepository
	calculator  *Calculator
	publisher   ports.EventPublisher
	log         *zap.Logger

	mu         sync.Mutex
	buyerLocks map[string]*sync.Mutex
}

func NewService(
	repo ports.CreditLimitRepository,
	assessments ports.AssessmentRepository,
	payments ports.PaymentRepository,
	calculator *Calculator,
	publisher ports.EventPublisher,
) *Service {
	return &Service{
		repo:        repo,
		assessments: assessments,
		payments:    payments,
		calculator:  calculator,
		publisher:   publisher,
		log:         logger.Named("limits"),
		buyerLocks:  map[string]*sync.Mutex{},
	}
}

// lockBuyer serializes limit state changes per buyer. Two concurrent
// creations must not both observe "no active limit".
func (s *Service) lockBuyer(buyerID string) func() {
	s.mu.Lock()
	l, ok := s.buyerLocks[buyerID]
	if !ok {
		l = &sync.Mutex{}
		s.buyerLocks[buyerID] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}

type CreateLimitInput struct {
	BuyerID           string
	TenantID          string
	AssessmentID      string
	ApprovedLimit     float64
	CalculationMethod string
	ReviewDate        time.Time
	ActorID           string
}

func (s *Service) CreateLimit(ctx context.Context, in CreateLimitInput) (*models.CreditLimit, error) {
	if in.ApprovedLimit <= 0 {
		return nil, apperr.Validation("approved_limit", "must be positive")
	}

	unlock := s.lockBuyer(in.BuyerID)
	defer unlock()

	existing, err := s.repo.FindActiveByBuyer(ctx, in.BuyerID, in.TenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to check active limit: %w", err)
	}
	if existing != nil {
		return nil, apperr.Validation("buyer_id",
			fmt.Sprintf("buyer %s already has an active credit limit %s", in.BuyerID, existing.ID))
	}

	now := time.Now()
	reviewDate := in.ReviewDate
	if reviewDate.IsZero() {
		reviewDate = now.AddDate(0, 6, 0)
	}

	limit := &models.CreditLimit{
		ID:                uuid.New().String(),
		BuyerID:           in.BuyerID,
		TenantID:          in.TenantID,
		AssessmentID:      in.AssessmentID,
		ApprovedLimit:     in.ApprovedLimit,
		Status:            models.LimitApproved,
		CalculationMethod: in.CalculationMethod,
		ReviewDate:        reviewDate,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.repo.Create(ctx, limit); err != nil {
		return nil, fmt.Errorf("failed to create credit limit: %w", err)
	}

	s.appendHistory(ctx, limit, "created", 0, in.ApprovedLimit, "initial limit", in.ActorID)
	s.publisher.Emit(ctx, EventLimitCreated, map[string]any{
		"credit_limit_id": limit.ID,
		"buyer_id":        in.BuyerID,
		"tenant_id":       in.TenantID,
		"approved_limit":  in.ApprovedLimit,
	})

	s.log.Info("credit limit created",
		zap.String("buyer_id", in.BuyerID),
		zap.String("credit_limit_id", limit.ID),
		zap.Float64("approved_limit", in.ApprovedLimit))

	return limit, nil
}

// UpdateApprovedLimit changes the approved amount. A significant change
// is routed through a pending approval record proposing a 25% reduction
// instead of mutating the limit directly.
func (s *Service) UpdateApprovedLimit(ctx context.Context, limitID string, newLimit float64, reason, actorID string) (*models.CreditLimit, error) {
	if newLimit <= 0 {
		return nil, apperr.Validation("new_limit", "must be positive")
	}

	limit, err := s.repo.FindByID(ctx, limitID)
	if err != nil {
		return nil, fmt.Errorf("failed to load credit limit: %w", err)
	}
	if limit == nil {
		return nil, apperr.NotFound("credit limit", limitID)
	}

	unlock := s.lockBuyer(limit.BuyerID)
	defer unlock()

	significant, why, err := s.significantChange(ctx, limit)
	if err != nil {
		s.log.Warn("significance check failed, treating change as routine",
			zap.String("credit_limit_id", limitID), zap.Error(err))
	}
	if significant {
		return limit, s.proposeReduction(ctx, limit, why, actorID)
	}

	previous := limit.ApprovedLimit
	limit.ApprovedLimit = newLimit
	limit.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, limit); err != nil {
		return nil, fmt.Errorf("failed to update credit limit: %w", err)
	}

	s.appendHistory(ctx, limit, "limit_changed", previous, newLimit, reason, actorID)
	s.publisher.Emit(ctx, EventLimitUpdated, map[string]any{
		"credit_limit_id": limit.ID,
		"buyer_id":        limit.BuyerID,
		"previous_limit":  previous,
		"new_limit":       newLimit,
	})

	return limit, nil
}

// ProposeReduction opens a pending approval recommending a 25% cut of
// the buyer's active limit. Used by the risk monitor when a severe
// score indicator fires.
func (s *Service) ProposeReduction(ctx context.Context, buyerID, tenantID, reason string) error {
	limit, err := s.repo.FindActiveByBuyer(ctx, buyerID, tenantID)
	if err != nil {
		return fmt.Errorf("failed to load active limit: %w", err)
	}
	if limit == nil {
		return apperr.NotFound("credit limit", buyerID)
	}

	unlock := s.lockBuyer(buyerID)
	defer unlock()

	return s.proposeReduction(ctx, limit, reason, "system")
}

func (s *Service) proposeReduction(ctx context.Context, limit *models.CreditLimit, reason, actorID string) error {
	pending, err := s.repo.FindPendingApproval(ctx, limit.ID)
	if err != nil {
		return fmt.Errorf("failed to check pending approvals: %w", err)
	}
	if pending != nil {
		// One open proposal at a time.
		return nil
	}

	proposed := limit.ApprovedLimit * (1 - reductionOnSignificance)
	approval := &models.CreditLimitApproval{
		ID:            uuid.New().String(),
		CreditLimitID: limit.ID,
		BuyerID:       limit.BuyerID,
		ProposedLimit: proposed,
		CurrentLimit:  limit.ApprovedLimit,
		Reason:        reason,
		Status:        models.ApprovalPending,
		RequestedAt:   time.Now(),
	}
	if err := s.repo.CreateApproval(ctx, approval); err != nil {
		return fmt.Errorf("failed to create approval record: %w", err)
	}

	s.appendHistory(ctx, limit, "reduction_proposed", limit.ApprovedLimit, proposed, reason, actorID)
	s.log.Warn("limit reduction proposed",
		zap.String("buyer_id", limit.BuyerID),
		zap.String("credit_limit_id", limit.ID),
		zap.Float64("current_limit", limit.ApprovedLimit),
		zap.Float64("proposed_limit", proposed),
		zap.String("reason", reason))
	return nil
}

func (s *Service) DecideApproval(ctx context.Context, approvalID string, approve bool, deciderID string) error {
	approval, err := s.repo.FindApprovalByID(ctx, approvalID)
	if err != nil {
		return fmt.Errorf("failed to load approval: %w", err)
	}
	if approval == nil {
		return apperr.NotFound("limit approval", approvalID)
	}
	if approval.Status != models.ApprovalPending {
		return apperr.Validation("approval", "already decided")
	}

	limit, err := s.repo.FindByID(ctx, approval.CreditLimitID)
	if err != nil {
		return fmt.Errorf("failed to load credit limit: %w", err)
	}
	if limit == nil {
		return apperr.NotFound("credit limit", approval.CreditLimitID)
	}

	unlock := s.lockBuyer(limit.BuyerID)
	defer unlock()

	now := time.Now()
	approval.DecidedAt = &now
	approval.DecidedBy = deciderID
	if approve {
		approval.Status = models.ApprovalApproved
	} else {
		approval.Status = models.ApprovalRejected
	}
	if err := s.repo.UpdateApproval(ctx, approval); err != nil {
		return fmt.Errorf("failed to update approval: %w", err)
	}

	if !approve {
		s.appendHistory(ctx, limit, "reduction_rejected", limit.ApprovedLimit, limit.ApprovedLimit, approval.Reason, deciderID)
		return nil
	}

	previous := limit.ApprovedLimit
	limit.ApprovedLimit = approval.ProposedLimit
	limit.UpdatedAt = now
	if err := s.repo.Update(ctx, limit); err != nil {
		return fmt.Errorf("failed to apply approved limit: %w", err)
	}

	s.appendHistory(ctx, limit, "reduction_applied", previous, limit.ApprovedLimit, approval.Reason, deciderID)
	s.publisher.Emit(ctx, EventLimitUpdated, map[string]any{
		"credit_limit_id": limit.ID,
		"buyer_id":        limit.BuyerID,
		"previous_limit":  previous,
		"new_limit":       limit.ApprovedLimit,
	})
	return nil
}

func (s *Service) ApplyTemporaryIncrease(ctx context.Context, limitID string, amount float64, expiresAt time.Time, actorID string) (*models.CreditLimit, error) {
	if amount <= 0 {
		return nil, apperr.Validation("amount", "temporary increase must be positive")
	}
	if !expiresAt.After(time.Now()) {
		return nil, apperr.Validation("expires_at", "expiry must be in the future")
	}

	limit, err := s.repo.FindByID(ctx, limitID)
	if err != nil {
		return nil, fmt.Errorf("failed to load credit limit: %w", err)
	}
	if limit == nil {
		return nil, apperr.NotFound("credit limit", limitID)
	}

	unlock := s.lockBuyer(limit.BuyerID)
	defer unlock()

	limit.TemporaryIncrease = &amount
	limit.TemporaryExpiresAt = &expiresAt
	limit.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, limit); err != nil {
		return nil, fmt.Errorf("failed to apply temporary increase: %w", err)
	}

	s.appendHistory(ctx, limit, "temporary_increase", limit.ApprovedLimit, limit.ApprovedLimit+amount,
		fmt.Sprintf("temporary increase until %s", expiresAt.Format(time.RFC3339)), actorID)
	s.publisher.Emit(ctx, EventLimitUpdated, map[string]any{
		"credit_limit_id":    limit.ID,
		"buyer_id":           limit.BuyerID,
		"temporary_increase": amount,
		"expires_at":         expiresAt,
	})
	return limit, nil
}

func (s *Service) RemoveTemporaryIncrease(ctx context.Context, limitID, actorID string) (*models.CreditLimit, error) {
	limit, err := s.repo.FindByID(ctx, limitID)
	if err != nil {
		return nil, fmt.Errorf("failed to load credit limit: %w", err)
	}
	if limit == nil {
		return nil, apperr.NotFound("credit limit", limitID)
	}
	if limit.TemporaryIncrease == nil {
		return limit, nil
	}

	unlock := s.lockBuyer(limit.BuyerID)
	defer unlock()

	removed := *limit.TemporaryIncrease
	limit.TemporaryIncrease = nil
	limit.TemporaryExpiresAt = nil
	limit.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, limit); err != nil {
		return nil, fmt.Errorf("failed to remove temporary increase: %w", err)
	}

	s.appendHistory(ctx, limit, "temporary_increase_removed", limit.ApprovedLimit+removed, limit.ApprovedLimit, "", actorID)
	return limit, nil
}

// UpdateUtilization records the buyer's current exposure and warns on
// high utilization. Available credit and utilization percentage are
// derived, never stored inconsistently.
func (s *Service) UpdateUtilization(ctx context.Context, limitID string, utilization float64) (*models.CreditLimit, error) {
	if utilization < 0 {
		return nil, apperr.Validation("utilization", "must not be negative")
	}

	limit, err := s.repo.FindByID(ctx, limitID)
	if err != nil {
		return nil, fmt.Errorf("failed to load credit limit: %w", err)
	}
	if limit == nil {
		return nil, apperr.NotFound("credit limit", limitID)
	}

	limit.CurrentUtilization = utilization
	limit.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, limit); err != nil {
		return nil, fmt.Errorf("failed to update utilization: %w", err)
	}

	pct := limit.UtilizationPercentage(time.Now())
	if pct >= utilizationAlertPct {
		s.log.Warn("credit utilization above alert threshold",
			zap.String("buyer_id", limit.BuyerID),
			zap.String("credit_limit_id", limit.ID),
			zap.Float64("utilization_pct", pct))
	}
	return limit, nil
}

func (s *Service) Deactivate(ctx context.Context, limitID, reason, actorID string) error {
	limit, err := s.repo.FindByID(ctx, limitID)
	if err != nil {
		return fmt.Errorf("failed to load credit limit: %w", err)
	}
	if limit == nil {
		return apperr.NotFound("credit limit", limitID)
	}

	unlock := s.lockBuyer(limit.BuyerID)
	defer unlock()

	limit.Status = models.LimitInactive
	limit.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, limit); err != nil {
		return fmt.Errorf("failed to deactivate credit limit: %w", err)
	}

	s.appendHistory(ctx, limit, "deactivated", limit.ApprovedLimit, limit.ApprovedLimit, reason, actorID)
	s.publisher.Emit(ctx, EventLimitUpdated, map[string]any{
		"credit_limit_id": limit.ID,
		"buyer_id":        limit.BuyerID,
		"status":          models.LimitInactive,
	})
	return nil
}

// HasSufficientCredit answers whether amount fits within the buyer's
// available credit right now.
func (s *Service) HasSufficientCredit(ctx context.Context, buyerID, tenantID string, amount float64) (bool, error) {
	limit, err := s.repo.FindActiveByBuyer(ctx, buyerID, tenantID)
	if err != nil {
		return false, fmt.Errorf("failed to load active limit: %w", err)
	}
	if limit == nil {
		return false, nil
	}
	return limit.AvailableCredit(time.Now()) >= amount, nil
}

func (s *Service) ActiveLimit(ctx context.Context, buyerID, tenantID string) (*models.CreditLimit, error) {
	limit, err := s.repo.FindActiveByBuyer(ctx, buyerID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load active limit: %w", err)
	}
	if limit == nil {
		return nil, apperr.NotFound("credit limit", buyerID)
	}
	return limit, nil
}

func (s *Service) History(ctx context.Context, limitID string) ([]*models.CreditLimitHistory, error) {
	return s.repo.ListHistory(ctx, limitID)
}

func (s *Service) ListExpiring(ctx context.Context, tenantID string, within time.Duration) ([]*models.CreditLimit, error) {
	return s.repo.ListExpiring(ctx, tenantID, time.Now().Add(within))
}

func (s *Service) ListDueForReview(ctx context.Context, tenantID string) ([]*models.CreditLimit, error) {
	return s.repo.ListDueForReview(ctx, tenantID, time.Now())
}

func (s *Service) ListHighUtilization(ctx context.Context, tenantID string) ([]*models.CreditLimit, error) {
	return s.repo.ListHighUtilization(ctx, tenantID, utilizationAlertPct)
}

// significantChange is the domain gate for the approval workflow: a
// recent score swing of 10+ points, or combined default and late
// probability above 30%, routes the change through approval.
func (s *Service) significantChange(ctx context.Context, limit *models.CreditLimit) (bool, string, error) {
	recent, err := s.assessments.FindRecentByBuyer(ctx, limit.BuyerID, limit.TenantID, 2)
	if err != nil {
		return false, "", err
	}
	if len(recent) >= 2 {
		swing := recent[0].ScoreValue - recent[1].ScoreValue
		if swing <= -significantScoreSwing || swing >= significantScoreSwing {
			return true, fmt.Sprintf("score moved %.1f points between assessments", swing), nil
		}
	}

	since := time.Now().AddDate(0, -3, 0)
	records, err := s.payments.FindByBuyer(ctx, limit.BuyerID, limit.TenantID, since)
	if err != nil {
		return false, "", err
	}
	if len(records) > 0 {
		late := 0
		for _, r := range records {
			if !r.OnTime {
				late++
			}
		}
		latePct := float64(late) / float64(len(records)) * 100
		if latePct > significantRiskProbPct {
			return true, fmt.Sprintf("late payment share at %.0f%% over trailing quarter", latePct), nil
		}
	}
	return false, "", nil
}

func (s *Service) appendHistory(ctx context.Context, limit *models.CreditLimit, action string, previous, next float64, reason, actorID string) {
	h := &models.CreditLimitHistory{
		ID:            uuid.New().String(),
		CreditLimitID: limit.ID,
		BuyerID:       limit.BuyerID,
		Action:        action,
		PreviousLimit: previous,
		NewLimit:      next,
		Reason:        reason,
		ActorID:       actorID,
		CreatedAt:     time.Now(),
	}
	if err := s.repo.AppendHistory(ctx, h); err != nil {
		s.log.Error("failed to append limit history",
			zap.String("credit_limit_id", limit.ID),
			zap.String("action", action),
			zap.Error(err))
	}
}
