package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"screenwise/internal/core"
	"screenwise/internal/storage"
)

// PoliciesHandler handles control policy requests
type PoliciesHandler struct {
	storage storage.Storage
	logger  *slog.Logger
}

// NewPoliciesHandler creates a new policies handler
func NewPoliciesHandler(storage storage.Storage, logger *slog.Logger) *PoliciesHandler {
	return &PoliciesHandler{
		storage: storage,
		logger:  logger,
	}
}

// GetPolicy returns a child's control policy
// GET /children/:id/policy
func (h *PoliciesHandler) GetPolicy(c *gin.Context) {
	childID := c.Param("id")

	if _, err := h.storage.GetChild(c.Request.Context(), childID); err != nil {
		respondError(c, err)
		return
	}

	policy, err := h.storage.GetControlPolicy(c.Request.Context(), childID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, formatPolicyResponse(policy))
}

// PutPolicy creates or replaces a child's control policy
// PUT /children/:id/policy
func (h *PoliciesHandler) PutPolicy(c *gin.Context) {
	childID := c.Param("id")

	var req struct {
		Enabled                 *bool  `json:"enabled"`
		DailyLimitMinutes       *int   `json:"daily_limit_minutes"`
		WarningThresholdMinutes int    `json:"warning_threshold_minutes"`
		BedtimeStart            string `json:"bedtime_start"`
		BedtimeEnd              string `json:"bedtime_end"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"code":    "INVALID_REQUEST",
			"details": err.Error(),
		})
		return
	}

	if _, err := h.storage.GetChild(c.Request.Context(), childID); err != nil {
		respondError(c, err)
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	policy := &core.ControlPolicy{
		ChildID:                 childID,
		Enabled:                 enabled,
		DailyLimitMinutes:       req.DailyLimitMinutes,
		WarningThresholdMinutes: req.WarningThresholdMinutes,
		BedtimeStart:            req.BedtimeStart,
		BedtimeEnd:              req.BedtimeEnd,
	}

	if err := h.storage.UpsertControlPolicy(c.Request.Context(), policy); err != nil {
		h.logger.Error("Failed to save control policy",
			"component", "api",
			"child_id", childID,
			"error", err,
		)
		respondError(c, err)
		return
	}

	h.logger.Info("Control policy updated",
		"component", "api",
		"child_id", childID,
		"enabled", enabled,
	)

	c.JSON(http.StatusOK, formatPolicyResponse(policy))
}

// DeletePolicy disables a child's control policy
// DELETE /children/:id/policy
func (h *PoliciesHandler) DeletePolicy(c *gin.Context) {
	childID := c.Param("id")

	policy, err := h.storage.GetControlPolicy(c.Request.Context(), childID)
	if err != nil {
		if errors.Is(err, core.ErrPolicyNotFound) {
			c.JSON(http.StatusNoContent, nil)
			return
		}
		respondError(c, err)
		return
	}

	policy.Enabled = false
	if err := h.storage.UpsertControlPolicy(c.Request.Context(), policy); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusNoContent, nil)
}

func formatPolicyResponse(policy *core.ControlPolicy) gin.H {
	response := gin.H{
		"child_id":                  policy.ChildID,
		"enabled":                   policy.Enabled,
		"warning_threshold_minutes": policy.Threshold(),
		"bedtime_start":             policy.BedtimeStart,
		"bedtime_end":               policy.BedtimeEnd,
	}

	if policy.DailyLimitMinutes != nil {
		response["daily_limit_minutes"] = *policy.DailyLimitMinutes
	}

	return response
}
