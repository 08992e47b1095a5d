package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sheetmind/sheetmind-backend/internal/apperrors"
	"github.com/sheetmind/sheetmind-backend/internal/errlog"
	"github.com/sheetmind/sheetmind-backend/internal/plans"
	"github.com/sheetmind/sheetmind-backend/internal/session"
)

// BillingHandler serves billing portal endpoints.
type BillingHandler struct {
	plans  *plans.Resolver
	errors *errlog.Recorder
}

// NewBillingHandler constructs a BillingHandler.
func NewBillingHandler(resolver *plans.Resolver, errors *errlog.Recorder) *BillingHandler {
	return &BillingHandler{plans: resolver, errors: errors}
}

// portalRequest is the POST /billing/portal-session body.
type portalRequest struct {
	ReturnURL string `json:"return_url"`
}

// PortalSession opens a self-service billing portal session for the
// signed-in user.
func (h *BillingHandler) PortalSession(c *gin.Context) {
	sess, ok := session.FromContext(c)
	if !ok {
		respondError(c, apperrors.NewSessionAbsent())
		return
	}

	var payload portalRequest
	_ = c.ShouldBindJSON(&payload)

	portalURL, errPortal := h.plans.PortalSession(c.Request.Context(), sess.UserID, payload.ReturnURL)
	if errPortal != nil {
		h.errors.Record(c.Request.Context(), sess.UserID, errPortal.Error(), apperrors.CodeOf(errPortal))
		respondError(c, errPortal)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": portalURL})
}
