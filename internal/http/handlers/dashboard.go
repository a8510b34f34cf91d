package handlers

import (
	"net/http"
	"time"

	"zapdesk/pkg/models"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

// DashboardHandler handles dashboard-related endpoints
type DashboardHandler struct {
	db *gorm.DB
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(db *gorm.DB) *DashboardHandler {
	return &DashboardHandler{db: db}
}

// DashboardStats aggregates counters for the tenant dashboard
type DashboardStats struct {
	Contacts            int64 `json:"contacts"`
	Conversations       int64 `json:"conversations"`
	OpenConversations   int64 `json:"open_conversations"`
	UnreadConversations int64 `json:"unread_conversations"`
	MessagesToday       int64 `json:"messages_today"`
	PendingSchedules    int64 `json:"pending_schedules"`
}

// GetStats godoc
// @Summary Dashboard stats
// @Description Aggregate counters for the current tenant
// @Tags dashboard
// @Produce json
// @Success 200 {object} DashboardStats
// @Failure 500 {object} map[string]string
// @Router /dashboard/stats [get]
// @Security BearerAuth
func (h *DashboardHandler) GetStats(c echo.Context) error {
	tenantID, ok := c.Get("tenant_id").(uuid.UUID)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "tenant_id not found in context"})
	}

	var stats DashboardStats
	startOfDay := time.Now().Truncate(24 * time.Hour)

	if err := h.db.Model(&models.Contact{}).Where("tenant_id = ?", tenantID).Count(&stats.Contacts).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	h.db.Model(&models.Conversation{}).Where("tenant_id = ?", tenantID).Count(&stats.Conversations)
	h.db.Model(&models.Conversation{}).Where("tenant_id = ? AND status = ?", tenantID, "open").Count(&stats.OpenConversations)
	h.db.Model(&models.Conversation{}).Where("tenant_id = ? AND unread_count > 0", tenantID).Count(&stats.UnreadConversations)
	h.db.Model(&models.Message{}).Where("tenant_id = ? AND created_at >= ?", tenantID, startOfDay).Count(&stats.MessagesToday)
	h.db.Model(&models.ScheduledMessage{}).Where("tenant_id = ? AND status = ?", tenantID, "pending").Count(&stats.PendingSchedules)

	return c.JSON(http.StatusOK, stats)
}

// GetConversationCounts godoc
// @Summary Conversation counts per channel
// @Tags dashboard
// @Produce json
// @Success 200 {array} models.ChannelWithConversationCount
// @Failure 500 {object} map[string]string
// @Router /dashboard/conversation-counts [get]
// @Security BearerAuth
func (h *DashboardHandler) GetConversationCounts(c echo.Context) error {
	tenantID, ok := c.Get("tenant_id").(uuid.UUID)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "tenant_id not found in context"})
	}

	var counts []models.ChannelWithConversationCount
	err := h.db.Model(&models.Channel{}).
		Select("channels.*, COUNT(conversations.id) as conversation_count").
		Joins("LEFT JOIN conversations ON conversations.channel_id = channels.id AND conversations.deleted_at IS NULL").
		Where("channels.tenant_id = ?", tenantID).
		Group("channels.id").
		Scan(&counts).Error
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, counts)
}
