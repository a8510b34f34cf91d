package handlers

import (
	"net/http"
	"time"

	"zapdesk/internal/repo"
	"zapdesk/pkg/models"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// ScheduleHandler handles scheduled message endpoints
type ScheduleHandler struct {
	scheduleRepo     *repo.ScheduledMessageRepository
	conversationRepo *repo.ConversationRepository
}

// NewScheduleHandler creates a new schedule handler
func NewScheduleHandler(scheduleRepo *repo.ScheduledMessageRepository, conversationRepo *repo.ConversationRepository) *ScheduleHandler {
	return &ScheduleHandler{
		scheduleRepo:     scheduleRepo,
		conversationRepo: conversationRepo,
	}
}

// CreateScheduleRequest is the payload for scheduling a message
type CreateScheduleRequest struct {
	ConversationID uuid.UUID `json:"conversation_id" validate:"required"`
	Content        string    `json:"content" validate:"required"`
	SendAt         time.Time `json:"send_at" validate:"required"`
}

// Create godoc
// @Summary Schedule a message
// @Description Queue a text message for later delivery
// @Tags schedules
// @Accept json
// @Produce json
// @Param request body CreateScheduleRequest true "Schedule data"
// @Success 201 {object} models.ScheduledMessage
// @Failure 400 {object} map[string]string
// @Router /schedules [post]
// @Security BearerAuth
func (h *ScheduleHandler) Create(c echo.Context) error {
	tenantID, ok := c.Get("tenant_id").(uuid.UUID)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "tenant_id not found in context"})
	}

	var req CreateScheduleRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	if req.SendAt.Before(time.Now()) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "send_at must be in the future"})
	}

	if _, err := h.conversationRepo.GetByID(req.ConversationID, tenantID); err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Conversation not found"})
	}

	var createdBy *uuid.UUID
	if userID, ok := c.Get("user_id").(uuid.UUID); ok {
		createdBy = &userID
	}

	schedule := &models.ScheduledMessage{
		BaseTenantModel: models.BaseTenantModel{TenantID: tenantID},
		ConversationID:  req.ConversationID,
		CreatedByUserID: createdBy,
		Content:         req.Content,
		SendAt:          req.SendAt,
		Status:          "pending",
	}

	if err := h.scheduleRepo.Create(schedule); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusCreated, schedule)
}

// ListByConversation godoc
// @Summary List scheduled messages
// @Description Get pending and past schedules for a conversation
// @Tags schedules
// @Produce json
// @Param conversation_id query string true "Conversation ID"
// @Success 200 {array} models.ScheduledMessage
// @Failure 400 {object} map[string]string
// @Router /schedules [get]
// @Security BearerAuth
func (h *ScheduleHandler) ListByConversation(c echo.Context) error {
	tenantID, ok := c.Get("tenant_id").(uuid.UUID)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "tenant_id not found in context"})
	}

	conversationID, err := uuid.Parse(c.QueryParam("conversation_id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid conversation_id"})
	}

	schedules, err := h.scheduleRepo.ListByConversation(conversationID, tenantID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, schedules)
}

// Cancel godoc
// @Summary Cancel a scheduled message
// @Description Cancel a pending schedule before it dispatches
// @Tags schedules
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string
// @Router /schedules/{id}/cancel [post]
// @Security BearerAuth
func (h *ScheduleHandler) Cancel(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid ID format"})
	}

	tenantID, ok := c.Get("tenant_id").(uuid.UUID)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "tenant_id not found in context"})
	}

	if err := h.scheduleRepo.Cancel(id, tenantID); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]string{"message": "Schedule cancelled"})
}
