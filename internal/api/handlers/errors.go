package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"screenwise/internal/core"
)

// errorStatus maps a core error to its HTTP status and stable error code.
// Unknown errors fall through to 500/INTERNAL_ERROR.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrChildNotFound):
		return http.StatusNotFound, "CHILD_NOT_FOUND"
	case errors.Is(err, core.ErrDeviceNotFound):
		return http.StatusNotFound, "DEVICE_NOT_FOUND"
	case errors.Is(err, core.ErrSessionNotFound):
		return http.StatusNotFound, "SESSION_NOT_FOUND"
	case errors.Is(err, core.ErrPolicyNotFound):
		return http.StatusNotFound, "POLICY_NOT_FOUND"

	case errors.Is(err, core.ErrSessionConflict):
		return http.StatusConflict, "SESSION_CONFLICT"
	case errors.Is(err, core.ErrSessionAlreadyStopped):
		return http.StatusConflict, "SESSION_ALREADY_STOPPED"
	case errors.Is(err, core.ErrSessionAlreadyPaused):
		return http.StatusConflict, "SESSION_ALREADY_PAUSED"
	case errors.Is(err, core.ErrSessionNotPaused):
		return http.StatusConflict, "SESSION_NOT_PAUSED"

	case errors.Is(err, core.ErrDeviceOwnership):
		return http.StatusBadRequest, "DEVICE_OWNERSHIP"
	case errors.Is(err, core.ErrInvalidName),
		errors.Is(err, core.ErrInvalidChildID),
		errors.Is(err, core.ErrInvalidDeviceID),
		errors.Is(err, core.ErrInvalidDeviceType),
		errors.Is(err, core.ErrInvalidGrantMinutes),
		errors.Is(err, core.ErrInvalidTimeOfDay),
		errors.Is(err, core.ErrInvalidThreshold):
		return http.StatusBadRequest, "VALIDATION_FAILED"
	}

	return http.StatusInternalServerError, "INTERNAL_ERROR"
}

// respondError writes the standard error body for a core error
func respondError(c *gin.Context, err error) {
	status, code := errorStatus(err)

	message := err.Error()
	if status == http.StatusInternalServerError {
		// Internal details stay in the logs
		message = "Internal server error"
	}

	c.JSON(status, gin.H{
		"error": message,
		"code":  code,
	})
}
