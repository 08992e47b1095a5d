package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sheetmind/sheetmind-backend/internal/apperrors"
)

// genericFailureMessage is returned whenever an upstream is unreachable.
const genericFailureMessage = "An unexpected error occurred"

// respondError writes the stable error envelope with a status derived
// from the error code.
func respondError(c *gin.Context, err error) {
	switch apperrors.CodeOf(err) {
	case apperrors.CodeSessionAbsent:
		c.JSON(http.StatusUnauthorized, apperrors.Envelope(err))
	case apperrors.CodeNetwork:
		c.JSON(http.StatusInternalServerError, gin.H{"error": genericFailureMessage})
	case apperrors.CodeConfiguration, apperrors.CodeCsrf, apperrors.CodeExchange, apperrors.CodeBillingMissing:
		c.JSON(http.StatusBadRequest, apperrors.Envelope(err))
	default:
		c.JSON(http.StatusInternalServerError, apperrors.Envelope(err))
	}
}
