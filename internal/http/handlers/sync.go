package handlers

import (
	"net/http"

	"zapdesk/internal/sync"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// SyncHandler exposes history reconciliation over HTTP
type SyncHandler struct {
	driver *sync.Driver
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(driver *sync.Driver) *SyncHandler {
	return &SyncHandler{driver: driver}
}

// Run godoc
// @Summary Run history reconciliation
// @Description Import chat history from the gateway for a channel. Per-chat
// failures are reported in the body, not as HTTP errors; only setup failures
// (unknown instance, unreachable gateway) produce an error status.
// @Tags sync
// @Accept json
// @Produce json
// @Param request body sync.RunOptions true "Run options"
// @Success 200 {object} sync.RunReport
// @Failure 400 {object} map[string]string
// @Failure 502 {object} map[string]string
// @Router /sync/run [post]
// @Security BearerAuth
func (h *SyncHandler) Run(c echo.Context) error {
	tenantID, ok := c.Get("tenant_id").(uuid.UUID)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "tenant_id not found in context"})
	}

	var opts sync.RunOptions
	if err := c.Bind(&opts); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if err := c.Validate(&opts); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	report, err := h.driver.Run(c.Request().Context(), tenantID, opts)
	if err != nil {
		return c.JSON(http.StatusBadGateway, map[string]interface{}{
			"success": false,
			"error":   err.Error(),
		})
	}

	return c.JSON(http.StatusOK, report)
}

// SyncConversation godoc
// @Summary Reconcile a single conversation
// @Description Import history for one existing conversation only
// @Tags sync
// @Accept json
// @Produce json
// @Param id path string true "Conversation ID"
// @Param request body sync.RunOptions true "Run options"
// @Success 200 {object} sync.RunReport
// @Failure 400 {object} map[string]string
// @Failure 502 {object} map[string]string
// @Router /sync/conversations/{id} [post]
// @Security BearerAuth
func (h *SyncHandler) SyncConversation(c echo.Context) error {
	tenantID, ok := c.Get("tenant_id").(uuid.UUID)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "tenant_id not found in context"})
	}

	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid conversation ID"})
	}

	var opts sync.RunOptions
	if err := c.Bind(&opts); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if err := c.Validate(&opts); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	opts.ConversationID = &conversationID

	report, err := h.driver.Run(c.Request().Context(), tenantID, opts)
	if err != nil {
		return c.JSON(http.StatusBadGateway, map[string]interface{}{
			"success": false,
			"error":   err.Error(),
		})
	}

	return c.JSON(http.StatusOK, report)
}

// RepairMedia godoc
// @Summary Repair expired media
// @Description Re-download expired WhatsApp media URLs and persist them to
// object storage. Timed-out downloads are deferred to the next pass; other
// failures are marked unavailable and not retried.
// @Tags sync
// @Accept json
// @Produce json
// @Param request body sync.RunOptions true "Run options"
// @Success 200 {object} sync.RepairReport
// @Failure 400 {object} map[string]string
// @Failure 502 {object} map[string]string
// @Router /sync/media-repair [post]
// @Security BearerAuth
func (h *SyncHandler) RepairMedia(c echo.Context) error {
	tenantID, ok := c.Get("tenant_id").(uuid.UUID)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "tenant_id not found in context"})
	}

	var opts sync.RunOptions
	if err := c.Bind(&opts); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if err := c.Validate(&opts); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	report, err := h.driver.RepairMedia(c.Request().Context(), tenantID, opts)
	if err != nil {
		return c.JSON(http.StatusBadGateway, map[string]interface{}{
			"success": false,
			"error":   err.Error(),
		})
	}

	return c.JSON(http.StatusOK, report)
}
