package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"screenwise/internal/core"
	"screenwise/internal/storage"
)

// ActionService interface for the instant action overlay
type ActionService interface {
	PauseAll(ctx context.Context, childID, reason string) (*core.InstantAction, error)
	UnlockAll(ctx context.Context, childID string) (int, error)
	GrantTime(ctx context.Context, childID string, minutes int, reason string) (*core.InstantAction, error)
	IsPaused(ctx context.Context, childID string, ref time.Time) (bool, error)
}

// ActionsHandler handles instant action requests
type ActionsHandler struct {
	storage storage.Storage
	actions ActionService
	clock   core.Clock
	logger  *slog.Logger
}

// NewActionsHandler creates a new actions handler
func NewActionsHandler(storage storage.Storage, actions ActionService, clock core.Clock, logger *slog.Logger) *ActionsHandler {
	if clock == nil {
		clock = core.RealClock{}
	}
	return &ActionsHandler{
		storage: storage,
		actions: actions,
		clock:   clock,
		logger:  logger,
	}
}

// PauseAll pauses all of a child's devices
// POST /children/:id/actions/pause
func (h *ActionsHandler) PauseAll(c *gin.Context) {
	childID := c.Param("id")

	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&req)

	action, err := h.actions.PauseAll(c.Request.Context(), childID, req.Reason)
	if err != nil {
		h.logger.Error("Failed to pause devices",
			"component", "api",
			"child_id", childID,
			"error", err,
		)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, formatActionResponse(action))
}

// UnlockAll lifts the pause on all of a child's devices
// POST /children/:id/actions/unlock
func (h *ActionsHandler) UnlockAll(c *gin.Context) {
	childID := c.Param("id")

	deactivated, err := h.actions.UnlockAll(c.Request.Context(), childID)
	if err != nil {
		h.logger.Error("Failed to unlock devices",
			"component", "api",
			"child_id", childID,
			"error", err,
		)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"child_id":    childID,
		"deactivated": deactivated,
	})
}

// GrantTime grants extra screen time minutes
// POST /children/:id/actions/grant
func (h *ActionsHandler) GrantTime(c *gin.Context) {
	childID := c.Param("id")

	var req struct {
		Minutes int    `json:"minutes" binding:"required"`
		Reason  string `json:"reason"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"code":    "INVALID_REQUEST",
			"details": err.Error(),
		})
		return
	}

	action, err := h.actions.GrantTime(c.Request.Context(), childID, req.Minutes, req.Reason)
	if err != nil {
		h.logger.Error("Failed to grant time",
			"component", "api",
			"child_id", childID,
			"minutes", req.Minutes,
			"error", err,
		)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, formatActionResponse(action))
}

// ListActions returns a child's instant action history, newest first
// GET /children/:id/actions
func (h *ActionsHandler) ListActions(c *gin.Context) {
	childID := c.Param("id")

	if _, err := h.storage.GetChild(c.Request.Context(), childID); err != nil {
		respondError(c, err)
		return
	}

	actions, err := h.storage.ListInstantActions(c.Request.Context(), childID)
	if err != nil {
		h.logger.Error("Failed to list actions",
			"component", "api",
			"child_id", childID,
			"error", err,
		)
		respondError(c, err)
		return
	}

	response := make([]gin.H, 0, len(actions))
	for _, action := range actions {
		response = append(response, formatActionResponse(action))
	}

	c.JSON(http.StatusOK, response)
}

func formatActionResponse(action *core.InstantAction) gin.H {
	response := gin.H{
		"id":          action.ID,
		"child_id":    action.ChildID,
		"action_type": string(action.ActionType),
		"is_active":   action.IsActive,
		"reason":      action.Reason,
		"created_at":  action.CreatedAt.Format(time.RFC3339),
	}

	if action.DurationMinutes != nil {
		response["duration_minutes"] = *action.DurationMinutes
	}
	if action.ExpiresAt != nil {
		response["expires_at"] = action.ExpiresAt.Format(time.RFC3339)
	}

	return response
}
