package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"screenwise/internal/core"
	"screenwise/internal/idgen"
	"screenwise/internal/storage"
)

// ChildrenHandler handles child profile requests
type ChildrenHandler struct {
	storage storage.Storage
	logger  *slog.Logger
}

// NewChildrenHandler creates a new children handler
func NewChildrenHandler(storage storage.Storage, logger *slog.Logger) *ChildrenHandler {
	return &ChildrenHandler{
		storage: storage,
		logger:  logger,
	}
}

// ListChildren returns all children
// GET /children
func (h *ChildrenHandler) ListChildren(c *gin.Context) {
	children, err := h.storage.ListChildren(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list children",
			"component", "api",
			"error", err,
		)
		respondError(c, err)
		return
	}

	response := make([]gin.H, 0, len(children))
	for _, child := range children {
		response = append(response, formatChildResponse(child))
	}

	c.JSON(http.StatusOK, response)
}

// CreateChild creates a new child profile
// POST /children
func (h *ChildrenHandler) CreateChild(c *gin.Context) {
	var req struct {
		ParentID string `json:"parent_id" binding:"required"`
		Name     string `json:"name" binding:"required"`
		AgeGroup string `json:"age_group"`
		PIN      string `json:"pin"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"code":    "INVALID_REQUEST",
			"details": err.Error(),
		})
		return
	}

	child := &core.Child{
		ID:       idgen.NewChild(),
		ParentID: req.ParentID,
		Name:     req.Name,
		AgeGroup: req.AgeGroup,
	}

	if req.PIN != "" {
		if err := child.SetPIN(req.PIN); err != nil {
			h.logger.Error("Failed to set child PIN",
				"component", "api",
				"error", err,
			)
			respondError(c, err)
			return
		}
	}

	if err := h.storage.CreateChild(c.Request.Context(), child); err != nil {
		h.logger.Error("Failed to create child",
			"component", "api",
			"name", req.Name,
			"error", err,
		)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, formatChildResponse(child))
}

// GetChild returns a single child by ID
// GET /children/:id
func (h *ChildrenHandler) GetChild(c *gin.Context) {
	child, err := h.storage.GetChild(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, formatChildResponse(child))
}

// UpdateChild updates a child profile
// PATCH /children/:id
func (h *ChildrenHandler) UpdateChild(c *gin.Context) {
	childID := c.Param("id")

	var req struct {
		Name     *string `json:"name"`
		AgeGroup *string `json:"age_group"`
		PIN      *string `json:"pin"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"code":    "INVALID_REQUEST",
			"details": err.Error(),
		})
		return
	}

	child, err := h.storage.GetChild(c.Request.Context(), childID)
	if err != nil {
		respondError(c, err)
		return
	}

	if req.Name != nil {
		child.Name = *req.Name
	}
	if req.AgeGroup != nil {
		child.AgeGroup = *req.AgeGroup
	}
	if req.PIN != nil {
		if err := child.SetPIN(*req.PIN); err != nil {
			respondError(c, err)
			return
		}
	}

	if err := h.storage.UpdateChild(c.Request.Context(), child); err != nil {
		h.logger.Error("Failed to update child",
			"component", "api",
			"child_id", childID,
			"error", err,
		)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, formatChildResponse(child))
}

// DeleteChild deletes a child profile
// DELETE /children/:id
func (h *ChildrenHandler) DeleteChild(c *gin.Context) {
	childID := c.Param("id")

	if err := h.storage.DeleteChild(c.Request.Context(), childID); err != nil {
		respondError(c, err)
		return
	}

	h.logger.Info("Child deleted",
		"component", "api",
		"child_id", childID,
	)

	c.JSON(http.StatusNoContent, nil)
}

func formatChildResponse(child *core.Child) gin.H {
	return gin.H{
		"id":         child.ID,
		"parent_id":  child.ParentID,
		"name":       child.Name,
		"age_group":  child.AgeGroup,
		"has_pin":    child.PINHash != "",
		"created_at": child.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		"updated_at": child.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}
