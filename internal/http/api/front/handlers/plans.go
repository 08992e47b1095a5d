package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sheetmind/sheetmind-backend/internal/apperrors"
	"github.com/sheetmind/sheetmind-backend/internal/models"
	"github.com/sheetmind/sheetmind-backend/internal/plans"
	"github.com/sheetmind/sheetmind-backend/internal/session"
)

// PlanFrontHandler serves plan-related front endpoints.
type PlanFrontHandler struct {
	table    map[models.PlanType]plans.Plan
	resolver *plans.Resolver
}

// NewPlanFrontHandler constructs a PlanFrontHandler.
func NewPlanFrontHandler(prices plans.PriceIDs, resolver *plans.Resolver) *PlanFrontHandler {
	return &PlanFrontHandler{table: plans.Table(prices), resolver: resolver}
}

// planOrder fixes the listing order.
var planOrder = []models.PlanType{models.PlanFree, models.PlanBase, models.PlanPro}

// List returns the plan table.
func (h *PlanFrontHandler) List(c *gin.Context) {
	out := make([]gin.H, 0, len(planOrder))
	for _, id := range planOrder {
		plan, ok := h.table[id]
		if !ok {
			continue
		}
		out = append(out, gin.H{
			"id":          plan.ID,
			"name":        plan.Name,
			"description": plan.Description,
			"month_price": plan.MonthPrice,
			"limits":      plan.Limits,
		})
	}
	c.JSON(http.StatusOK, gin.H{"plans": out})
}

// Current returns the signed-in user's active plan and limits.
func (h *PlanFrontHandler) Current(c *gin.Context) {
	sess, ok := session.FromContext(c)
	if !ok {
		respondError(c, apperrors.NewSessionAbsent())
		return
	}

	resolution, errResolve := h.resolver.Resolve(c.Request.Context(), sess.UserID)
	if errResolve != nil {
		respondError(c, errResolve)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"plan":   resolution.Plan,
		"limits": resolution.Limits,
	})
}
