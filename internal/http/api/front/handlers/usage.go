package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sheetmind/sheetmind-backend/internal/apperrors"
	"github.com/sheetmind/sheetmind-backend/internal/quota"
	"github.com/sheetmind/sheetmind-backend/internal/session"
)

// UsageHandler serves usage counters and the scheduled reset trigger.
type UsageHandler struct {
	tracker     *quota.Tracker
	resetSecret string
}

// NewUsageHandler constructs a UsageHandler.
func NewUsageHandler(tracker *quota.Tracker, resetSecret string) *UsageHandler {
	return &UsageHandler{tracker: tracker, resetSecret: strings.TrimSpace(resetSecret)}
}

// Get returns the usage snapshot for the signed-in user.
func (h *UsageHandler) Get(c *gin.Context) {
	sess, ok := session.FromContext(c)
	if !ok {
		respondError(c, apperrors.NewSessionAbsent())
		return
	}

	usage, errSnapshot := h.tracker.Snapshot(c.Request.Context(), sess.UserID)
	if errSnapshot != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load usage failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"requests_this_week":         usage.RequestsThisWeek,
		"requests_this_month":        usage.RequestsThisMonth,
		"requests_previous_3_months": usage.RequestsPrevious3Months,
		"recent_urls":                usage.RecentURLs,
		"recent_queries":             usage.RecentQueries,
	})
}

// recordRequest is the POST /usage/record body.
type recordRequest struct {
	URL   string `json:"url"`
	Query string `json:"query"`
}

// Record increments the signed-in user's counters.
func (h *UsageHandler) Record(c *gin.Context) {
	sess, ok := session.FromContext(c)
	if !ok {
		respondError(c, apperrors.NewSessionAbsent())
		return
	}

	var payload recordRequest
	_ = c.ShouldBindJSON(&payload)

	if errRecord := h.tracker.RecordRequest(c.Request.Context(), sess.UserID, payload.URL, payload.Query); errRecord != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "record usage failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "usage recorded"})
}

// Reset runs the monthly reset cycle. Guarded by the scheduler's
// shared secret, not by a user session.
func (h *UsageHandler) Reset(c *gin.Context) {
	if h.resetSecret == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "reset not configured"})
		return
	}
	token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	if strings.TrimSpace(token) != h.resetSecret {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid reset credential"})
		return
	}

	if errReset := h.tracker.ResetCycle(c.Request.Context(), time.Now()); errReset != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reset cycle failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "monthly usage reset successful"})
}
