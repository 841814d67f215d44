package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"voicecall-platform/internal/batchcall"
	"voicecall-platform/internal/calls"
	"voicecall-platform/internal/elevenlabs"
	"voicecall-platform/internal/reporting"
	"voicecall-platform/pkg/logger"
)

// Error kinds returned in the "kind" field of every error body.
const (
	KindValidation      = "validation"
	KindConfiguration   = "configuration"
	KindTimeout         = "timeout"
	KindVendor          = "vendor"
	KindNotFound        = "not_found"
	KindInvalidResponse = "invalid_response"
	KindRateLimited     = "rate_limited"
	KindConflict        = "conflict"
	KindUnauthorized    = "unauthorized"
	KindInternal        = "internal"
)

// writeError is the single place domain errors become HTTP responses.
func writeError(c *gin.Context, err error) {
	status, body := errorResponse(err)
	if status >= http.StatusInternalServerError {
		logger.FromGin(c).Error("request failed", "status", status, "err", err)
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, body)
}

func errorResponse(err error) (int, gin.H) {
	var vendorErr *elevenlabs.VendorError
	switch {
	case batchcall.IsValidation(err):
		// Validation messages are written for operators; pass them through.
		return http.StatusBadRequest, gin.H{"error": err.Error(), "kind": KindValidation}
	case errors.Is(err, elevenlabs.ErrInvalidIdentifier), errors.Is(err, reporting.ErrInvalidRequest):
		return http.StatusBadRequest, gin.H{"error": err.Error(), "kind": KindValidation}
	case errors.Is(err, elevenlabs.ErrMissingCredential):
		return http.StatusInternalServerError, gin.H{"error": "vendor API key is not configured", "kind": KindConfiguration}
	case errors.Is(err, elevenlabs.ErrTimeout):
		return http.StatusGatewayTimeout, gin.H{"error": err.Error(), "kind": KindTimeout}
	case errors.As(err, &vendorErr):
		return http.StatusBadGateway, gin.H{
			"error":         err.Error(),
			"kind":          KindVendor,
			"vendor_status": vendorErr.StatusCode,
			"vendor_body":   vendorErr.Body,
		}
	case errors.Is(err, elevenlabs.ErrNotFound), errors.Is(err, calls.ErrNotFound):
		return http.StatusNotFound, gin.H{"error": err.Error(), "kind": KindNotFound}
	case errors.Is(err, elevenlabs.ErrInvalidResponse):
		return http.StatusBadGateway, gin.H{"error": err.Error(), "kind": KindInvalidResponse}
	case errors.Is(err, calls.ErrTooManyPolls):
		return http.StatusTooManyRequests, gin.H{"error": err.Error(), "kind": KindRateLimited}
	case errors.Is(err, calls.ErrNotPolling):
		return http.StatusConflict, gin.H{"error": err.Error(), "kind": KindConflict}
	default:
		return http.StatusInternalServerError, gin.H{"error": "internal error", "kind": KindInternal}
	}
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg, "kind": KindValidation})
}
