package handlers

import (
	"net/http"
	"time"

	"zapdesk/internal/evolution"
	"zapdesk/internal/repo"
	"zapdesk/pkg/models"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// ChannelHandler handles channel operations
type ChannelHandler struct {
	channelRepo      *repo.ChannelRepository
	conversationRepo *repo.ConversationRepository
	client           *evolution.Client
}

// NewChannelHandler creates a new channel handler
func NewChannelHandler(channelRepo *repo.ChannelRepository, conversationRepo *repo.ConversationRepository, client *evolution.Client) *ChannelHandler {
	return &ChannelHandler{
		channelRepo:      channelRepo,
		conversationRepo: conversationRepo,
		client:           client,
	}
}

// List godoc
// @Summary List channels
// @Description Get the tenant's channels
// @Tags channels
// @Produce json
// @Success 200 {array} models.Channel
// @Failure 500 {object} map[string]string
// @Router /channels [get]
// @Security BearerAuth
func (h *ChannelHandler) List(c echo.Context) error {
	tenantID, ok := c.Get("tenant_id").(uuid.UUID)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "tenant_id not found in context"})
	}

	channels, err := h.channelRepo.List(tenantID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, channels)
}

// GetByID godoc
// @Summary Get channel by ID
// @Tags channels
// @Produce json
// @Param id path string true "Channel ID"
// @Success 200 {object} models.Channel
// @Failure 404 {object} map[string]string
// @Router /channels/{id} [get]
// @Security BearerAuth
func (h *ChannelHandler) GetByID(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid ID format"})
	}

	tenantID, ok := c.Get("tenant_id").(uuid.UUID)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "tenant_id not found in context"})
	}

	channel, err := h.channelRepo.GetByIDAndTenant(id, tenantID)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Channel not found"})
	}

	return c.JSON(http.StatusOK, channel)
}

// Create godoc
// @Summary Create channel
// @Description Register a new gateway instance for the tenant
// @Tags channels
// @Accept json
// @Produce json
// @Param channel body models.Channel true "Channel data"
// @Success 201 {object} models.Channel
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /channels [post]
// @Security BearerAuth
func (h *ChannelHandler) Create(c echo.Context) error {
	tenantID, ok := c.Get("tenant_id").(uuid.UUID)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "tenant_id not found in context"})
	}

	var channel models.Channel
	if err := c.Bind(&channel); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	if channel.InstanceName == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Instance name is required"})
	}

	// Instance names are global on the gateway, so uniqueness spans tenants
	exists, err := h.channelRepo.InstanceNameExists(channel.InstanceName)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Error checking instance uniqueness"})
	}
	if exists {
		return c.JSON(http.StatusConflict, map[string]string{
			"error": "Instance name already exists. Please choose a different name.",
		})
	}

	// Force tenant_id from JWT, ignore any value from frontend
	channel.TenantID = tenantID
	channel.ID = uuid.New()
	if channel.Type == "" {
		channel.Type = "whatsapp"
	}
	if channel.Status == "" {
		channel.Status = "disconnected"
	}

	if err := h.channelRepo.Create(&channel); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusCreated, channel)
}

// Update godoc
// @Summary Update channel
// @Tags channels
// @Accept json
// @Produce json
// @Param id path string true "Channel ID"
// @Param channel body models.Channel true "Channel data"
// @Success 200 {object} models.Channel
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /channels/{id} [put]
// @Security BearerAuth
func (h *ChannelHandler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid ID format"})
	}

	tenantID, ok := c.Get("tenant_id").(uuid.UUID)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "tenant_id not found in context"})
	}

	existing, err := h.channelRepo.GetByIDAndTenant(id, tenantID)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Channel not found"})
	}

	var update models.Channel
	if err := c.Bind(&update); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	if update.Name != "" {
		existing.Name = update.Name
	}
	if update.WebhookToken != "" {
		existing.WebhookToken = update.WebhookToken
	}
	existing.IsActive = update.IsActive
	existing.UpdatedAt = time.Now()

	if err := h.channelRepo.Update(existing); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, existing)
}

// Delete godoc
// @Summary Delete channel
// @Description Delete a channel (only if it has no conversations)
// @Tags channels
// @Produce json
// @Param id path string true "Channel ID"
// @Success 204
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /channels/{id} [delete]
// @Security BearerAuth
func (h *ChannelHandler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid ID format"})
	}

	tenantID, ok := c.Get("tenant_id").(uuid.UUID)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "tenant_id not found in context"})
	}

	if _, err := h.channelRepo.GetByIDAndTenant(id, tenantID); err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Channel not found"})
	}

	conversations, err := h.conversationRepo.ListByChannel(tenantID, id, 1, 0)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if len(conversations) > 0 {
		return c.JSON(http.StatusConflict, map[string]string{
			"error": "Channel has conversations and cannot be deleted",
		})
	}

	if err := h.channelRepo.Delete(id, tenantID); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.NoContent(http.StatusNoContent)
}

// ConnectionState godoc
// @Summary Get gateway connection state
// @Description Query the gateway for the channel's live connection state
// @Tags channels
// @Produce json
// @Param id path string true "Channel ID"
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 502 {object} map[string]string
// @Router /channels/{id}/connection-state [get]
// @Security BearerAuth
func (h *ChannelHandler) ConnectionState(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid ID format"})
	}

	tenantID, ok := c.Get("tenant_id").(uuid.UUID)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "tenant_id not found in context"})
	}

	channel, err := h.channelRepo.GetByIDAndTenant(id, tenantID)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Channel not found"})
	}

	state, err := h.client.ConnectionState(c.Request().Context(), channel.InstanceName)
	if err != nil {
		return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]string{
		"instance_name": channel.InstanceName,
		"state":         state,
		"status":        channel.Status,
	})
}
