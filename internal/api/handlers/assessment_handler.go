package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/invoscore/backend/internal/scoring"
	"github.com/invoscore/backend/internal/storage/models"
	"github.com/invoscore/backend/pkg/logger"
)

type AssessmentHandler struct {
	engine *scoring.Engine
}

func NewAssessmentHandler(engine *scoring.Engine) *AssessmentHandler {
	return &AssessmentHandler{engine: engine}
}

func (h *AssessmentHandler) RunAssessment(c *fiber.Ctx) error {
	var req struct {
		BuyerID      string `json:"buyer_id"`
		TenantID     string `json:"tenant_id"`
		ModelVersion string `json:"model_version"`
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

	assessment, err := h.engine.Assess(c.Context(), req.BuyerID, req.TenantID, scoring.AssessOptions{
		ModelVersion: req.ModelVersion,
	})
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(assessmentResponse(assessment))
}

func (h *AssessmentHandler) GetLatest(c *fiber.Ctx) error {
	buyerID := c.Params("buyer")
	tenantID := c.Query("tenant_id")
	if tenantID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "tenant_id is required",
		})
	}

	assessment, err := h.engine.Latest(c.Context(), buyerID, tenantID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(assessmentResponse(assessment))
}

func (h *AssessmentHandler) Override(c *fiber.Ctx) error {
	buyerID := c.Params("buyer")

	var req struct {
		TenantID string  `json:"tenant_id"`
		Score    float64 `json:"score"`
		Reason   string  `json:"reason"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.TenantID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "tenant_id is required",
		})
	}

	assessment, err := h.engine.Override(c.Context(), buyerID, req.TenantID, req.Score, req.Reason)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(assessmentResponse(assessment))
}

func assessmentResponse(a *models.Assessment) fiber.Map {
	return fiber.Map{
		"id":                     a.ID,
		"buyer_id":               a.BuyerID,
		"tenant_id":              a.TenantID,
		"model_version":          a.ModelVersion,
		"version":                a.Version,
		"previous_assessment_id": a.PreviousAssessmentID,
		"score":                  a.ScoreValue,
		"confidence_level":       a.ConfidenceLevel,
		"risk_level":             a.RiskLevel,
		"status":                 a.Status,
		"data_sufficiency":       a.DataSufficiency,
		"factors":                a.Factors,
		"evidence":               a.Evidence,
		"adjustment_trace":       a.AdjustmentTrace,
		"assessed_at":            a.AssessedAt,
	}
}
