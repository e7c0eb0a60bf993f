package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-footwear-checkout/internal/accounts"
	"github.com/imrishuroy/go-footwear-checkout/internal/apperr"
	"github.com/imrishuroy/go-footwear-checkout/internal/ledger"
)

// writeError maps err onto an HTTP response. Business rejections carry a reason the UI can
// act on; faults get a generic message and are logged with full context.
func writeError(c *gin.Context, err error) {
	var rej *ledger.Rejection
	if errors.As(err, &rej) {
		log.Printf("[http] %s %s rejected: %v", c.Request.Method, c.FullPath(), rej)
		c.JSON(rejectionStatus(rej.Reason), rej)
		return
	}

	switch {
	case errors.Is(err, accounts.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_credentials", "msg": err.Error()})
	case errors.Is(err, apperr.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "msg": err.Error()})
	case errors.Is(err, apperr.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case errors.Is(err, apperr.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden", "msg": err.Error()})
	case errors.Is(err, apperr.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "conflict", "msg": err.Error()})
	case errors.Is(err, apperr.ErrUnavailable):
		log.Printf("[http] ERROR %s %s upstream: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporarily_unavailable", "msg": "please try again later"})
	default:
		log.Printf("[http] ERROR %s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "msg": "something went wrong, please try again later"})
	}
}

func rejectionStatus(r ledger.Reason) int {
	switch r {
	case ledger.ReasonAmountMismatch:
		return http.StatusPaymentRequired
	case ledger.ReasonPaymentVerificationFailed:
		return http.StatusBadRequest
	default:
		return http.StatusConflict
	}
}
