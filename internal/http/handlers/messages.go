package handlers

import (
	"net/http"
	"time"

	"zapdesk/internal/events"
	"zapdesk/internal/evolution"
	"zapdesk/internal/repo"
	"zapdesk/pkg/models"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// MessageHandler handles message endpoints
type MessageHandler struct {
	messageRepo      *repo.MessageRepository
	conversationRepo *repo.ConversationRepository
	channelRepo      *repo.ChannelRepository
	client           *evolution.Client
	publisher        events.Publisher
	ws               *WebSocketHandler
}

// NewMessageHandler creates a new message handler
func NewMessageHandler(messageRepo *repo.MessageRepository, conversationRepo *repo.ConversationRepository, channelRepo *repo.ChannelRepository, client *evolution.Client, publisher events.Publisher, ws *WebSocketHandler) *MessageHandler {
	return &MessageHandler{
		messageRepo:      messageRepo,
		conversationRepo: conversationRepo,
		channelRepo:      channelRepo,
		client:           client,
		publisher:        publisher,
		ws:               ws,
	}
}

// SendMessageRequest is the payload for sending a text message
type SendMessageRequest struct {
	ConversationID uuid.UUID `json:"conversation_id" validate:"required"`
	Content        string    `json:"content" validate:"required"`
}

// GetByID godoc
// @Summary Get message by ID
// @Tags messages
// @Produce json
// @Param id path string true "Message ID"
// @Success 200 {object} models.Message
// @Failure 404 {object} map[string]string
// @Router /messages/{id} [get]
// @Security BearerAuth
func (h *MessageHandler) GetByID(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid ID format"})
	}

	tenantID, ok := c.Get("tenant_id").(uuid.UUID)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "tenant_id not found in context"})
	}

	message, err := h.messageRepo.GetByID(id, tenantID)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Message not found"})
	}

	return c.JSON(http.StatusOK, message)
}

// Send godoc
// @Summary Send a text message
// @Description Deliver a text message through the gateway and record it
// @Tags messages
// @Accept json
// @Produce json
// @Param request body SendMessageRequest true "Message data"
// @Success 201 {object} models.Message
// @Failure 400 {object} map[string]string
// @Failure 502 {object} map[string]string
// @Router /messages [post]
// @Security BearerAuth
func (h *MessageHandler) Send(c echo.Context) error {
	tenantID, ok := c.Get("tenant_id").(uuid.UUID)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "tenant_id not found in context"})
	}

	var req SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	conversation, err := h.conversationRepo.GetByID(req.ConversationID, tenantID)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Conversation not found"})
	}

	channel, err := h.channelRepo.GetByIDAndTenant(conversation.ChannelID, tenantID)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Channel not found"})
	}

	number := conversation.Metadata.RemoteJid
	if number == "" && conversation.Contact != nil {
		number = conversation.Contact.Phone
	}
	if number == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Conversation has no deliverable address"})
	}

	resp, err := h.client.SendText(c.Request().Context(), channel.InstanceName, number, req.Content)
	if err != nil {
		return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
	}

	message := &models.Message{
		BaseTenantModel: models.BaseTenantModel{TenantID: tenantID},
		ConversationID:  conversation.ID,
		ContactID:       conversation.ContactID,
		SenderType:      "agent",
		Content:         req.Content,
		MediaType:       "text",
		IsRead:          true,
		Metadata: models.MessageMetadata{
			ExternalID: resp.Key.ID,
			RemoteJid:  number,
			FromMe:     true,
		},
	}

	if err := h.messageRepo.Create(message); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	if err := h.conversationRepo.TouchLastMessageAt(conversation.ID, time.Now()); err != nil {
		log.Warn().Err(err).Str("conversation_id", conversation.ID.String()).Msg("failed to touch conversation recency")
	}

	if h.publisher != nil {
		if err := h.publisher.Publish(c.Request().Context(), events.KeyMessageImported, map[string]interface{}{
			"tenant_id":       tenantID.String(),
			"conversation_id": conversation.ID.String(),
			"message_id":      message.ID.String(),
			"source":          "agent",
		}); err != nil {
			log.Warn().Err(err).Msg("failed to publish message event")
		}
	}

	if h.ws != nil {
		h.ws.BroadcastToTenant(tenantID.String(), "message", message)
	}

	return c.JSON(http.StatusCreated, message)
}
