package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/invoscore/backend/internal/limits"
	"github.com/invoscore/backend/internal/storage/models"
	"github.com/invoscore/backend/pkg/logger"
)

type LimitHandler struct {
	calculator *limits.Calculator
	service    *limits.Service
}

func NewLimitHandler(calculator *limits.Calculator, service *limits.Service) *LimitHandler {
	return &LimitHandler{calculator: calculator, service: service}
}

func (h *LimitHandler) Recommend(c *fiber.Ctx) error {
	var req struct {
		BuyerID           string          `json:"buyer_id"`
		TenantID          string          `json:"tenant_id"`
		CalculationMethod string          `json:"calculation_method"`
		BaseAmount        float64         `json:"base_amount"`
		MinLimit          float64         `json:"min_limit"`
		MaxLimit          float64         `json:"max_limit"`
		HybridWeights     *limits.Weights `json:"hybrid_weights"`
	}
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.BuyerID == "" || req.TenantID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "buyer_id and tenant_id are required",
		})
	}

	rec, err := h.calculator.Recommend(c.Context(), req.BuyerID, req.TenantID, limits.Options{
		CalculationMethod: req.CalculationMethod,
		BaseAmount:        req.BaseAmount,
		MinLimit:          req.MinLimit,
		MaxLimit:          req.MaxLimit,
		HybridWeights:     req.HybridWeights,
	})
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"buyer_id":          rec.BuyerID,
		"recommended_limit": rec.RecommendedLimit,
		"method":            rec.Method,
		"score":             rec.Score,
		"review_risk_level": rec.ReviewRiskLevel,
		"review_date":       rec.ReviewDate,
		"components":        rec.Components,
	})
}

func (h *LimitHandler) Create(c *fiber.Ctx) error {
	var req struct {
		BuyerID           string  `json:"buyer_id"`
		TenantID          string  `json:"tenant_id"`
		AssessmentID      string  `json:"assessment_id"`
		ApprovedLimit     float64 `json:"approved_limit"`
		CalculationMethod string  `json:"calculation_method"`
		ActorID           string  `json:"actor_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.BuyerID == "" || req.TenantID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "buyer_id and tenant_id are required",
		})
	}

	limit, err := h.service.CreateLimit(c.Context(), limits.CreateLimitInput{
		BuyerID:           req.BuyerID,
		TenantID:          req.TenantID,
		AssessmentID:      req.AssessmentID,
		ApprovedLimit:     req.ApprovedLimit,
		CalculationMethod: req.CalculationMethod,
		ActorID:           req.ActorID,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(limitResponse(limit))
}

func (h *LimitHandler) UpdateUtilization(c *fiber.Ctx) error {
	limitID := c.Params("id")

	var req struct {
		Utilization float64 `json:"utilization"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	limit, err := h.service.UpdateUtilization(c.Context(), limitID, req.Utilization)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(limitResponse(limit))
}

func (h *LimitHandler) TemporaryIncrease(c *fiber.Ctx) error {
	limitID := c.Params("id")

	var req struct {
		Amount    float64   `json:"amount"`
		ExpiresAt time.Time `json:"expires_at"`
		ActorID   string    `json:"actor_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	limit, err := h.service.ApplyTemporaryIncrease(c.Context(), limitID, req.Amount, req.ExpiresAt, req.ActorID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(limitResponse(limit))
}

func (h *LimitHandler) RemoveTemporaryIncrease(c *fiber.Ctx) error {
	limitID := c.Params("id")
	actorID := c.Query("actor_id")

	limit, err := h.service.RemoveTemporaryIncrease(c.Context(), limitID, actorID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(limitResponse(limit))
}

func (h *LimitHandler) History(c *fiber.Ctx) error {
	history, err := h.service.History(c.Context(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"history": history})
}

func (h *LimitHandler) DecideApproval(c *fiber.Ctx) error {
	approvalID := c.Params("id")

	var req struct {
		Approve   bool   `json:"approve"`
		DeciderID string `json:"decider_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if err := h.service.DecideApproval(c.Context(), approvalID, req.Approve, req.DeciderID); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"status": "decided"})
}

func (h *LimitHandler) CheckCredit(c *fiber.Ctx) error {
	buyerID := c.Params("buyer")
	tenantID := c.Query("tenant_id")
	amount := c.QueryFloat("amount")
	if tenantID == "" || amount <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "tenant_id and a positive amount are required",
		})
	}

	ok, err := h.service.HasSufficientCredit(c.Context(), buyerID, tenantID, amount)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"sufficient": ok})
}

func (h *LimitHandler) ListDueForReview(c *fiber.Ctx) error {
	tenantID := c.Query("tenant_id")
	if tenantID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "tenant_id is required",
		})
	}

	list, err := h.service.ListDueForReview(c.Context(), tenantID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"limits": list})
}

func (h *LimitHandler) ListHighUtilization(c *fiber.Ctx) error {
	tenantID := c.Query("tenant_id")
	if tenantID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "tenant_id is required",
		})
	}

	list, err := h.service.ListHighUtilization(c.Context(), tenantID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"limits": list})
}

func limitResponse(l *models.CreditLimit) fiber.Map {
	now := time.Now()
	return fiber.Map{
		"id":                  l.ID,
		"buyer_id":            l.BuyerID,
		"tenant_id":           l.TenantID,
		"assessment_id":       l.AssessmentID,
		"approved_limit":      l.ApprovedLimit,
		"temporary_increase":  l.TemporaryIncrease,
		"effective_limit":     l.EffectiveLimit(now),
		"current_utilization": l.CurrentUtilization,
		"available_credit":    l.AvailableCredit(now),
		"utilization_pct":     l.UtilizationPercentage(now),
		"status":              l.Status,
		"calculation_method":  l.CalculationMethod,
		"review_date":         l.ReviewDate,
		"created_at":          l.CreatedAt,
		"updated_at":          l.UpdatedAt,
	}
}
