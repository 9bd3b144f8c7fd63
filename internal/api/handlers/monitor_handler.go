package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/invoscore/backend/internal/monitor"
	"github.com/invoscore/backend/internal/storage/models"
)

type MonitorHandler struct {
	monitor *monitor.Monitor
}

func NewMonitorHandler(m *monitor.Monitor) *MonitorHandler {
	return &MonitorHandler{monitor: m}
}

func (h *MonitorHandler) RunMonitoring(c *fiber.Ctx) error {
	buyerID := c.Params("buyer")
	tenantID := c.Query("tenant_id")
	if tenantID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "tenant_id is required",
		})
	}

	indicators, err := h.monitor.MonitorBuyer(c.Context(), buyerID, tenantID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"buyer_id":   buyerID,
		"detected":   len(indicators),
		"indicators": indicators,
	})
}

func (h *MonitorHandler) ActiveIndicators(c *fiber.Ctx) error {
	buyerID := c.Params("buyer")
	tenantID := c.Query("tenant_id")
	if tenantID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "tenant_id is required",
		})
	}

	indicators, err := h.monitor.ActiveIndicators(c.Context(), buyerID, tenantID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"indicators": indicators})
}

func (h *MonitorHandler) Acknowledge(c *fiber.Ctx) error {
	return h.transition(c, models.IndicatorAcknowledged)
}

func (h *MonitorHandler) Resolve(c *fiber.Ctx) error {
	return h.transition(c, models.IndicatorResolved)
}

func (h *MonitorHandler) FalsePositive(c *fiber.Ctx) error {
	return h.transition(c, models.IndicatorFalsePositive)
}

func (h *MonitorHandler) transition(c *fiber.Ctx, target models.IndicatorStatus) error {
	var req struct {
		Notes string `json:"notes"`
	}
	// Notes body is optional.
	_ = c.BodyParser(&req)

	if err := h.monitor.Transition(c.Context(), c.Params("id"), target, req.Notes); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"status": target})
}
