package handlers

import (
	"net/http"
	"strconv"

	"zapdesk/internal/evolution"
	"zapdesk/internal/repo"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// ConversationHandler handles conversation endpoints
type ConversationHandler struct {
	conversationRepo *repo.ConversationRepository
	messageRepo      *repo.MessageRepository
	channelRepo      *repo.ChannelRepository
	client           *evolution.Client
}

// NewConversationHandler creates a new conversation handler
func NewConversationHandler(conversationRepo *repo.ConversationRepository, messageRepo *repo.MessageRepository, channelRepo *repo.ChannelRepository, client *evolution.Client) *ConversationHandler {
	return &ConversationHandler{
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		channelRepo:      channelRepo,
		client:           client,
	}
}

// List godoc
// @Summary List conversations
// @Description Get conversations ordered by most recent activity
// @Tags conversations
// @Produce json
// @Param limit query int false "Limit" default(20)
// @Param offset query int false "Offset" default(0)
// @Param status query string false "Status filter"
// @Success 200 {object} map[string]interface{}
// @Failure 500 {object} map[string]string
// @Router /conversations [get]
// @Security BearerAuth
func (h *ConversationHandler) List(c echo.Context) error {
	tenantID, ok := c.Get("tenant_id").(uuid.UUID)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "tenant_id not found in context"})
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	if limit <= 0 {
		limit = 20
	}

	conversations, total, err := h.conversationRepo.List(tenantID, limit, offset, c.QueryParam("status"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":  conversations,
		"total": total,
	})
}

// GetByID godoc
// @Summary Get conversation by ID
// @Tags conversations
// @Produce json
// @Param id path string true "Conversation ID"
// @Success 200 {object} models.Conversation
// @Failure 404 {object} map[string]string
// @Router /conversations/{id} [get]
// @Security BearerAuth
func (h *ConversationHandler) GetByID(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid ID format"})
	}

	tenantID, ok := c.Get("tenant_id").(uuid.UUID)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "tenant_id not found in context"})
	}

	conversation, err := h.conversationRepo.GetByID(id, tenantID)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Conversation not found"})
	}

	return c.JSON(http.StatusOK, conversation)
}

// Assign godoc
// @Summary Assign conversation to agent
// @Description Assign or unassign (null user_id) a conversation
// @Tags conversations
// @Accept json
// @Produce json
// @Param id path string true "Conversation ID"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string
// @Router /conversations/{id}/assign [put]
// @Security BearerAuth
func (h *ConversationHandler) Assign(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid ID format"})
	}

	tenantID, ok := c.Get("tenant_id").(uuid.UUID)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "tenant_id not found in context"})
	}

	var req struct {
		UserID *uuid.UUID `json:"user_id"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	if err := h.conversationRepo.AssignUser(id, tenantID, req.UserID); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]string{"message": "Conversation assigned"})
}

// UpdateStatus godoc
// @Summary Update conversation status
// @Description Set conversation status (open, pending, resolved)
// @Tags conversations
// @Accept json
// @Produce json
// @Param id path string true "Conversation ID"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string
// @Router /conversations/{id}/status [put]
// @Security BearerAuth
func (h *ConversationHandler) UpdateStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid ID format"})
	}

	tenantID, ok := c.Get("tenant_id").(uuid.UUID)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "tenant_id not found in context"})
	}

	var req struct {
		Status string `json:"status" validate:"required,oneof=open pending resolved"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	if err := h.conversationRepo.UpdateStatus(id, tenantID, req.Status); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]string{"message": "Status updated"})
}

// MarkRead godoc
// @Summary Mark conversation as read
// @Description Zero the unread counter and mark inbound messages read
// @Tags conversations
// @Produce json
// @Param id path string true "Conversation ID"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string
// @Router /conversations/{id}/read [post]
// @Security BearerAuth
func (h *ConversationHandler) MarkRead(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid ID format"})
	}

	tenantID, ok := c.Get("tenant_id").(uuid.UUID)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "tenant_id not found in context"})
	}

	if err := h.conversationRepo.MarkRead(id, tenantID); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	if err := h.messageRepo.MarkConversationRead(id, tenantID); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]string{"message": "Conversation marked as read"})
}

// ListMessages godoc
// @Summary List conversation messages
// @Description Get messages of a conversation, newest first
// @Tags conversations
// @Produce json
// @Param id path string true "Conversation ID"
// @Param limit query int false "Limit" default(50)
// @Param offset query int false "Offset" default(0)
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Router /conversations/{id}/messages [get]
// @Security BearerAuth
func (h *ConversationHandler) ListMessages(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid ID format"})
	}

	tenantID, ok := c.Get("tenant_id").(uuid.UUID)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "tenant_id not found in context"})
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	if limit <= 0 {
		limit = 50
	}

	messages, total, err := h.messageRepo.ListByConversation(id, tenantID, limit, offset)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":  messages,
		"total": total,
	})
}

// Participants godoc
// @Summary List group participants
// @Description Get the live member list of a group conversation from the gateway
// @Tags conversations
// @Produce json
// @Param id path string true "Conversation ID"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Failure 502 {object} map[string]string
// @Router /conversations/{id}/participants [get]
// @Security BearerAuth
func (h *ConversationHandler) Participants(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid ID format"})
	}

	tenantID, ok := c.Get("tenant_id").(uuid.UUID)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "tenant_id not found in context"})
	}

	conversation, err := h.conversationRepo.GetByID(id, tenantID)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Conversation not found"})
	}
	if conversation.Contact == nil || !conversation.Contact.IsGroup {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Conversation is not a group"})
	}

	channel, err := h.channelRepo.GetByIDAndTenant(conversation.ChannelID, tenantID)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Channel not found"})
	}

	participants, err := h.client.GroupParticipants(c.Request().Context(), channel.InstanceName, conversation.Contact.RemoteJid)
	if err != nil {
		return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":  participants,
		"total": len(participants),
	})
}
