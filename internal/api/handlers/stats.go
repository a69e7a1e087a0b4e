package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"screenwise/internal/core"
	"screenwise/internal/storage"
)

// UsageReader computes a child's consumed time for today
type UsageReader interface {
	TodayTotal(ctx context.Context, childID string, ref time.Time) (*core.TodayUsage, error)
}

// WarningEvaluator runs the warning evaluation pass for one child on demand
type WarningEvaluator interface {
	EvaluateChild(ctx context.Context, childID string) ([]core.Warning, error)
}

// StatsHandler handles usage and warning read requests
type StatsHandler struct {
	storage    storage.Storage
	aggregator UsageReader
	evaluator  WarningEvaluator
	actions    ActionService
	clock      core.Clock
	logger     *slog.Logger
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(storage storage.Storage, aggregator UsageReader, evaluator WarningEvaluator,
	actions ActionService, clock core.Clock, logger *slog.Logger) *StatsHandler {
	if clock == nil {
		clock = core.RealClock{}
	}
	return &StatsHandler{
		storage:    storage,
		aggregator: aggregator,
		evaluator:  evaluator,
		actions:    actions,
		clock:      clock,
		logger:     logger,
	}
}

// GetChildUsage returns a child's cumulative usage for today
// GET /children/:id/usage/today
func (h *StatsHandler) GetChildUsage(c *gin.Context) {
	childID := c.Param("id")

	if _, err := h.storage.GetChild(c.Request.Context(), childID); err != nil {
		respondError(c, err)
		return
	}

	ref := h.clock.Now()

	usage, err := h.aggregator.TodayTotal(c.Request.Context(), childID, ref)
	if err != nil {
		h.logger.Error("Failed to aggregate usage",
			"component", "api",
			"child_id", childID,
			"error", err,
		)
		respondError(c, err)
		return
	}

	paused, err := h.actions.IsPaused(c.Request.Context(), childID, ref)
	if err != nil {
		h.logger.Error("Failed to check pause status",
			"component", "api",
			"child_id", childID,
			"error", err,
		)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"child_id":         childID,
		"date":             ref.Format("2006-01-02"),
		"recorded_minutes": usage.RecordedMinutes,
		"active_minutes":   usage.ActiveMinutes,
		"active_sessions":  usage.ActiveSessions,
		"total_minutes":    usage.TotalMinutes,
		"paused":           paused,
	})
}

// GetChildWarnings evaluates and returns the child's current warnings without
// notifying anyone
// GET /children/:id/warnings
func (h *StatsHandler) GetChildWarnings(c *gin.Context) {
	childID := c.Param("id")

	if _, err := h.storage.GetChild(c.Request.Context(), childID); err != nil {
		respondError(c, err)
		return
	}

	warnings, err := h.evaluator.EvaluateChild(c.Request.Context(), childID)
	if err != nil {
		h.logger.Error("Failed to evaluate warnings",
			"component", "api",
			"child_id", childID,
			"error", err,
		)
		respondError(c, err)
		return
	}

	response := make([]gin.H, 0, len(warnings))
	for _, w := range warnings {
		response = append(response, gin.H{
			"type":     string(w.Type),
			"severity": string(w.Severity),
			"child_id": w.ChildID,
			"message":  w.Message,
			"minutes":  w.Minutes,
		})
	}

	c.JSON(http.StatusOK, response)
}

// GetTodayStats returns today's usage for every child
// GET /stats/today
func (h *StatsHandler) GetTodayStats(c *gin.Context) {
	children, err := h.storage.ListChildren(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list children",
			"component", "api",
			"error", err,
		)
		respondError(c, err)
		return
	}

	ref := h.clock.Now()

	response := make([]gin.H, 0, len(children))
	for _, child := range children {
		usage, err := h.aggregator.TodayTotal(c.Request.Context(), child.ID, ref)
		if err != nil {
			h.logger.Error("Failed to aggregate usage",
				"component", "api",
				"child_id", child.ID,
				"error", err,
			)
			respondError(c, err)
			return
		}

		entry := gin.H{
			"child_id":        child.ID,
			"name":            child.Name,
			"total_minutes":   usage.TotalMinutes,
			"active_sessions": usage.ActiveSessions,
		}

		// Roll in the limit when the child has one configured
		policy, err := h.storage.GetControlPolicy(c.Request.Context(), child.ID)
		if err == nil && policy.Enabled && policy.DailyLimitMinutes != nil {
			remaining := *policy.DailyLimitMinutes - usage.TotalMinutes
			if remaining < 0 {
				remaining = 0
			}
			entry["limit_minutes"] = *policy.DailyLimitMinutes
			entry["remaining_minutes"] = remaining
		} else if err != nil && !errors.Is(err, core.ErrPolicyNotFound) {
			respondError(c, err)
			return
		}

		response = append(response, entry)
	}

	c.JSON(http.StatusOK, gin.H{
		"date":     ref.Format("2006-01-02"),
		"children": response,
	})
}
