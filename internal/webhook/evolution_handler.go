package webhook

import (
	"net/http"
	"time"

	"zapdesk/internal/events"
	"zapdesk/internal/evolution"
	"zapdesk/internal/repo"
	"zapdesk/internal/sync"
	"zapdesk/pkg/models"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// EvolutionWebhook is the envelope the gateway posts for every event
type EvolutionWebhook struct {
	Event    string               `json:"event"`
	Instance string               `json:"instance"`
	Data     evolution.RawMessage `json:"data"`
	State    string               `json:"state,omitempty"`
}

// EvolutionWebhookHandler ingests live gateway events. Incoming messages run
// through the same normalization and identity resolution as history sync, so
// a webhook delivery and a later reconciliation of the same message converge
// on a single row.
type EvolutionWebhookHandler struct {
	channels      *repo.ChannelRepository
	conversations *repo.ConversationRepository
	messages      *repo.MessageRepository
	resolver      *sync.Resolver
	publisher     events.Publisher
	notifier      WebSocketNotifier
	log           zerolog.Logger
}

// NewEvolutionWebhookHandler creates a webhook handler
func NewEvolutionWebhookHandler(channels *repo.ChannelRepository, conversations *repo.ConversationRepository, messages *repo.MessageRepository, resolver *sync.Resolver, publisher events.Publisher, log zerolog.Logger) *EvolutionWebhookHandler {
	return &EvolutionWebhookHandler{
		channels:      channels,
		conversations: conversations,
		messages:      messages,
		resolver:      resolver,
		publisher:     publisher,
		log:           log,
	}
}

// SetWebSocketNotifier attaches the dashboard notifier
func (h *EvolutionWebhookHandler) SetWebSocketNotifier(notifier WebSocketNotifier) {
	h.notifier = notifier
}

// Process godoc
// @Summary Gateway webhook
// @Description Receive events pushed by the gateway for a channel instance
// @Tags webhooks
// @Accept json
// @Produce json
// @Param instance path string true "Instance name"
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /webhook/evolution/{instance} [post]
func (h *EvolutionWebhookHandler) Process(c echo.Context) error {
	instance := c.Param("instance")

	channel, err := h.channels.GetByInstanceName(instance)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Unknown instance"})
	}

	if channel.WebhookToken != "" && c.Request().Header.Get("X-Webhook-Token") != channel.WebhookToken {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid webhook token"})
	}

	var payload EvolutionWebhook
	if err := c.Bind(&payload); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid payload"})
	}

	switch payload.Event {
	case "messages.upsert":
		if err := h.handleMessage(c, channel, payload); err != nil {
			h.log.Error().Err(err).Str("instance", instance).Msg("❌ webhook message ingest failed")
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
	case "connection.update":
		h.handleConnectionUpdate(c, channel, payload)
	default:
		h.log.Debug().Str("event", payload.Event).Str("instance", instance).Msg("ignoring webhook event")
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *EvolutionWebhookHandler) handleMessage(c echo.Context, channel *models.Channel, payload EvolutionWebhook) error {
	n, ok := sync.NormalizeMessage(payload.Data)
	if !ok {
		return nil
	}

	resolution, err := h.resolver.Resolve(channel.TenantID, n.RemoteJid, n.PushName)
	if err != nil {
		return err
	}

	conversation, err := h.conversations.GetByContactAndChannel(channel.TenantID, resolution.Contact.ID, channel.ID)
	if err != nil && err != gorm.ErrRecordNotFound {
		return err
	}
	if conversation == nil {
		conversation = &models.Conversation{
			BaseTenantModel: models.BaseTenantModel{TenantID: channel.TenantID},
			ContactID:       resolution.Contact.ID,
			ChannelID:       channel.ID,
			Status:          "open",
			Metadata: models.ConversationMetadata{
				RemoteJid:    n.RemoteJid,
				InstanceName: channel.InstanceName,
			},
		}
		if err := h.conversations.Create(conversation); err != nil {
			return err
		}
	}

	message := models.Message{
		BaseTenantModel: models.BaseTenantModel{TenantID: channel.TenantID, CreatedAt: n.Timestamp},
		ConversationID:  conversation.ID,
		ContactID:       resolution.Contact.ID,
		SenderType:      n.SenderType(),
		Content:         n.Content,
		MediaType:       n.MediaType,
		IsRead:          n.FromMe,
		Metadata: models.MessageMetadata{
			ExternalID: n.ExternalID,
			RemoteJid:  n.RemoteJid,
			FromMe:     n.FromMe,
			Attachment: n.Attachment,
			ImportedBy: "webhook",
		},
	}

	// Live events pass the same gate as history sync; the unique external-id
	// index only covers messages that carry one, so redelivered events without
	// a key.id would otherwise insert twice.
	admit, err := sync.AdmitLive(h.messages, conversation.ID, n)
	if err != nil {
		return err
	}
	if !admit {
		return nil
	}

	inserted, err := h.messages.CreateBatch([]models.Message{message})
	if err != nil {
		return err
	}
	if inserted == 0 {
		return nil
	}

	if err := h.conversations.TouchLastMessageAt(conversation.ID, n.Timestamp); err != nil {
		return err
	}
	if !n.FromMe {
		if err := h.conversations.IncrementUnread(conversation.ID, 1); err != nil {
			return err
		}
	}

	if h.publisher != nil {
		if err := h.publisher.Publish(c.Request().Context(), events.KeyMessageImported, map[string]interface{}{
			"tenant_id":       channel.TenantID.String(),
			"conversation_id": conversation.ID.String(),
			"external_id":     n.ExternalID,
			"source":          "webhook",
		}); err != nil {
			h.log.Warn().Err(err).Msg("failed to publish message event")
		}
	}

	if h.notifier != nil {
		h.notifier.BroadcastToTenant(channel.TenantID.String(), "message", map[string]interface{}{
			"conversation_id": conversation.ID.String(),
			"content":         n.Content,
			"media_type":      n.MediaType,
			"sender_type":     n.SenderType(),
			"timestamp":       n.Timestamp.Format(time.RFC3339),
		})
	}

	return nil
}

func (h *EvolutionWebhookHandler) handleConnectionUpdate(c echo.Context, channel *models.Channel, payload EvolutionWebhook) {
	status := "disconnected"
	switch payload.State {
	case "open":
		status = "connected"
	case "connecting":
		status = "connecting"
	}

	if channel.Status == status {
		return
	}

	if err := h.channels.UpdateStatus(channel.ID, status); err != nil {
		h.log.Error().Err(err).Str("instance", channel.InstanceName).Msg("failed to update channel status")
		return
	}

	h.log.Info().Str("instance", channel.InstanceName).Str("status", status).Msg("🔗 channel status changed")

	if h.publisher != nil {
		if err := h.publisher.Publish(c.Request().Context(), events.KeyChannelStatus, map[string]interface{}{
			"tenant_id":  channel.TenantID.String(),
			"channel_id": channel.ID.String(),
			"status":     status,
		}); err != nil {
			h.log.Warn().Err(err).Msg("failed to publish channel status event")
		}
	}

	if h.notifier != nil {
		h.notifier.BroadcastToTenant(channel.TenantID.String(), "channel_status", map[string]string{
			"channel_id": channel.ID.String(),
			"status":     status,
		})
	}
}
