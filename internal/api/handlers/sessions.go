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

// Lifecycle interface for session state transitions
type Lifecycle interface {
	Start(ctx context.Context, childID, deviceID string, sessionType core.SessionType) (*core.Session, error)
	Stop(ctx context.Context, sessionID string) (*core.Session, error)
	Pause(ctx context.Context, sessionID, reason string) (*core.PauseInterval, error)
	Resume(ctx context.Context, sessionID string) (*core.PauseInterval, error)
	GetSession(ctx context.Context, sessionID string) (*core.Session, error)
}

// SessionsHandler handles session lifecycle requests
type SessionsHandler struct {
	storage   storage.Storage
	lifecycle Lifecycle
	logger    *slog.Logger
}

// NewSessionsHandler creates a new sessions handler
func NewSessionsHandler(storage storage.Storage, lifecycle Lifecycle, logger *slog.Logger) *SessionsHandler {
	return &SessionsHandler{
		storage:   storage,
		lifecycle: lifecycle,
		logger:    logger,
	}
}

// ListSessions returns sessions with optional filtering
// GET /sessions?childId=&active=&date=
func (h *SessionsHandler) ListSessions(c *gin.Context) {
	childID := c.Query("childId")
	activeOnly := c.Query("active") == "true"
	dateStr := c.Query("date")

	var sessions []*core.Session
	var err error

	switch {
	case childID != "" && activeOnly:
		sessions, err = h.storage.ListActiveSessionsByChild(c.Request.Context(), childID)
	case childID != "":
		sessions, err = h.storage.ListSessionsByChild(c.Request.Context(), childID)
	default:
		sessions, err = h.storage.ListActiveSessions(c.Request.Context())
	}
	if err != nil {
		h.logger.Error("Failed to list sessions",
			"component", "api",
			"child_id", childID,
			"error", err,
		)
		respondError(c, err)
		return
	}

	if dateStr != "" {
		filterDate, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid date format. Use YYYY-MM-DD",
				"code":  "INVALID_DATE_FORMAT",
			})
			return
		}

		filtered := make([]*core.Session, 0)
		for _, session := range sessions {
			if isSameDay(session.StartTime, filterDate) {
				filtered = append(filtered, session)
			}
		}
		sessions = filtered
	}

	response := make([]gin.H, 0, len(sessions))
	for _, session := range sessions {
		response = append(response, formatSessionResponse(session))
	}

	c.JSON(http.StatusOK, response)
}

// CreateSession starts a new session
// POST /sessions
func (h *SessionsHandler) CreateSession(c *gin.Context) {
	var req struct {
		ChildID     string `json:"child_id" binding:"required"`
		DeviceID    string `json:"device_id" binding:"required"`
		SessionType string `json:"session_type"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"code":    "INVALID_REQUEST",
			"details": err.Error(),
		})
		return
	}

	session, err := h.lifecycle.Start(c.Request.Context(), req.ChildID, req.DeviceID,
		core.SessionType(req.SessionType))
	if err != nil {
		h.logger.Error("Failed to start session",
			"component", "api",
			"child_id", req.ChildID,
			"device_id", req.DeviceID,
			"error", err,
		)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, formatSessionResponse(session))
}

// GetSession returns a single session by ID
// GET /sessions/:id
func (h *SessionsHandler) GetSession(c *gin.Context) {
	session, err := h.lifecycle.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, formatSessionResponse(session))
}

// StopSession ends an active session
// POST /sessions/:id/stop
func (h *SessionsHandler) StopSession(c *gin.Context) {
	sessionID := c.Param("id")

	session, err := h.lifecycle.Stop(c.Request.Context(), sessionID)
	if err != nil {
		h.logger.Error("Failed to stop session",
			"component", "api",
			"session_id", sessionID,
			"error", err,
		)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, formatSessionResponse(session))
}

// PauseSession pauses an active session
// POST /sessions/:id/pause
func (h *SessionsHandler) PauseSession(c *gin.Context) {
	sessionID := c.Param("id")

	var req struct {
		Reason string `json:"reason"`
	}
	// Body is optional for pause
	_ = c.ShouldBindJSON(&req)

	interval, err := h.lifecycle.Pause(c.Request.Context(), sessionID, req.Reason)
	if err != nil {
		h.logger.Error("Failed to pause session",
			"component", "api",
			"session_id", sessionID,
			"error", err,
		)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, formatPauseResponse(interval))
}

// ResumeSession resumes a paused session
// POST /sessions/:id/resume
func (h *SessionsHandler) ResumeSession(c *gin.Context) {
	sessionID := c.Param("id")

	interval, err := h.lifecycle.Resume(c.Request.Context(), sessionID)
	if err != nil {
		h.logger.Error("Failed to resume session",
			"component", "api",
			"session_id", sessionID,
			"error", err,
		)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, formatPauseResponse(interval))
}

// Helper functions

func formatSessionResponse(session *core.Session) gin.H {
	response := gin.H{
		"id":           session.ID,
		"child_id":     session.ChildID,
		"device_id":    session.DeviceID,
		"session_type": string(session.SessionType),
		"start_time":   session.StartTime.Format(time.RFC3339),
		"is_active":    session.IsActive(),
		"created_at":   session.CreatedAt.Format(time.RFC3339),
		"updated_at":   session.UpdatedAt.Format(time.RFC3339),
	}

	if session.EndTime != nil {
		response["end_time"] = session.EndTime.Format(time.RFC3339)
	}
	if session.DurationMinutes != nil {
		response["duration_minutes"] = *session.DurationMinutes
	}

	return response
}

func isSameDay(t1, t2 time.Time) bool {
	y1, m1, d1 := t1.Date()
	y2, m2, d2 := t2.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

func formatPauseResponse(interval *core.PauseInterval) gin.H {
	response := gin.H{
		"id":         interval.ID,
		"session_id": interval.SessionID,
		"paused_at":  interval.PausedAt.Format(time.RFC3339),
		"reason":     interval.Reason,
	}

	if interval.ResumedAt != nil {
		response["resumed_at"] = interval.ResumedAt.Format(time.RFC3339)
	}

	return response
}
