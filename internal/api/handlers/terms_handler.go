package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/invoscore/backend/internal/terms"
)

type TermsHandler struct {
	resolver *terms.Resolver
}

func NewTermsHandler(resolver *terms.Resolver) *TermsHandler {
	return &TermsHandler{resolver: resolver}
}

func (h *TermsHandler) Resolve(c *fiber.Ctx) error {
	buyerID := c.Params("buyer")
	orgID := c.Query("org_id")
	tenantID := c.Query("tenant_id")
	force := c.QueryBool("force")
	if orgID == "" || tenantID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "org_id and tenant_id are required",
		})
	}

	resolved, err := h.resolver.Resolve(c.Context(), orgID, buyerID, tenantID, force)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(resolved)
}

func (h *TermsHandler) Override(c *fiber.Ctx) error {
	buyerID := c.Params("buyer")

	var req struct {
		OrgID               string   `json:"org_id"`
		TermDays            *int     `json:"term_days"`
		EarlyDiscountPct    *float64 `json:"early_discount_pct"`
		LateFeePct          *float64 `json:"late_fee_pct"`
		DepositPct          *float64 `json:"deposit_pct"`
		InstallmentsAllowed *int     `json:"installments_allowed"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.OrgID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "org_id is required",
		})
	}

	updated, err := h.resolver.ApplyOverride(c.Context(), req.OrgID, buyerID, terms.Override{
		TermDays:            req.TermDays,
		EarlyDiscountPct:    req.EarlyDiscountPct,
		LateFeePct:          req.LateFeePct,
		DepositPct:          req.DepositPct,
		InstallmentsAllowed: req.InstallmentsAllowed,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(updated)
}
