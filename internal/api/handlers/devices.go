package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"screenwise/internal/core"
	"screenwise/internal/idgen"
	"screenwise/internal/storage"
)

// DevicesHandler handles device registration requests
type DevicesHandler struct {
	storage storage.Storage
	logger  *slog.Logger
}

// NewDevicesHandler creates a new devices handler
func NewDevicesHandler(storage storage.Storage, logger *slog.Logger) *DevicesHandler {
	return &DevicesHandler{
		storage: storage,
		logger:  logger,
	}
}

// ListDevices returns devices, optionally filtered by child
// GET /devices?childId=
func (h *DevicesHandler) ListDevices(c *gin.Context) {
	childID := c.Query("childId")

	var devices []*core.Device
	var err error

	if childID != "" {
		devices, err = h.storage.ListDevicesByChild(c.Request.Context(), childID)
	} else {
		devices, err = h.storage.ListDevices(c.Request.Context())
	}
	if err != nil {
		h.logger.Error("Failed to list devices",
			"component", "api",
			"child_id", childID,
			"error", err,
		)
		respondError(c, err)
		return
	}

	response := make([]gin.H, 0, len(devices))
	for _, device := range devices {
		response = append(response, formatDeviceResponse(device))
	}

	c.JSON(http.StatusOK, response)
}

// CreateDevice registers a new device for a child
// POST /devices
func (h *DevicesHandler) CreateDevice(c *gin.Context) {
	var req struct {
		ChildID    string `json:"child_id" binding:"required"`
		Name       string `json:"name" binding:"required"`
		DeviceType string `json:"device_type" binding:"required"`
		Model      string `json:"model"`
		OS         string `json:"os"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"code":    "INVALID_REQUEST",
			"details": err.Error(),
		})
		return
	}

	// The child must exist before a device can be attached to it
	if _, err := h.storage.GetChild(c.Request.Context(), req.ChildID); err != nil {
		respondError(c, err)
		return
	}

	device := &core.Device{
		ID:         idgen.NewDevice(),
		ChildID:    req.ChildID,
		Name:       req.Name,
		DeviceType: req.DeviceType,
		Model:      req.Model,
		OS:         req.OS,
	}

	if err := h.storage.CreateDevice(c.Request.Context(), device); err != nil {
		h.logger.Error("Failed to create device",
			"component", "api",
			"child_id", req.ChildID,
			"name", req.Name,
			"error", err,
		)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, formatDeviceResponse(device))
}

// GetDevice returns a single device by ID
// GET /devices/:id
func (h *DevicesHandler) GetDevice(c *gin.Context) {
	device, err := h.storage.GetDevice(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, formatDeviceResponse(device))
}

// DeleteDevice removes a device registration
// DELETE /devices/:id
func (h *DevicesHandler) DeleteDevice(c *gin.Context) {
	deviceID := c.Param("id")

	if err := h.storage.DeleteDevice(c.Request.Context(), deviceID); err != nil {
		respondError(c, err)
		return
	}

	h.logger.Info("Device deleted",
		"component", "api",
		"device_id", deviceID,
	)

	c.JSON(http.StatusNoContent, nil)
}

func formatDeviceResponse(device *core.Device) gin.H {
	return gin.H{
		"id":          device.ID,
		"child_id":    device.ChildID,
		"name":        device.Name,
		"device_type": device.DeviceType,
		"model":       device.Model,
		"os":          device.OS,
		"created_at":  device.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		"updated_at":  device.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}
