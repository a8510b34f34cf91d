package handlers

import (
	"net/http"
	"strconv"

	"zapdesk/internal/repo"
	"zapdesk/internal/sync"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// ContactHandler handles contact endpoints
type ContactHandler struct {
	contactRepo *repo.ContactRepository
	resolver    *sync.Resolver
}

// NewContactHandler creates a new contact handler
func NewContactHandler(contactRepo *repo.ContactRepository, resolver *sync.Resolver) *ContactHandler {
	return &ContactHandler{
		contactRepo: contactRepo,
		resolver:    resolver,
	}
}

// List godoc
// @Summary List contacts
// @Description Get contacts with pagination and optional name/phone search
// @Tags contacts
// @Produce json
// @Param limit query int false "Limit" default(20)
// @Param offset query int false "Offset" default(0)
// @Param search query string false "Name or phone filter"
// @Success 200 {object} map[string]interface{}
// @Failure 500 {object} map[string]string
// @Router /contacts [get]
// @Security BearerAuth
func (h *ContactHandler) List(c echo.Context) error {
	tenantID, ok := c.Get("tenant_id").(uuid.UUID)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "tenant_id not found in context"})
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	if limit <= 0 {
		limit = 20
	}

	contacts, total, err := h.contactRepo.List(tenantID, limit, offset, c.QueryParam("search"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":  contacts,
		"total": total,
	})
}

// GetByID godoc
// @Summary Get contact by ID
// @Tags contacts
// @Produce json
// @Param id path string true "Contact ID"
// @Success 200 {object} models.Contact
// @Failure 404 {object} map[string]string
// @Router /contacts/{id} [get]
// @Security BearerAuth
func (h *ContactHandler) GetByID(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid ID format"})
	}

	tenantID, ok := c.Get("tenant_id").(uuid.UUID)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "tenant_id not found in context"})
	}

	contact, err := h.contactRepo.GetByID(id, tenantID)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Contact not found"})
	}

	return c.JSON(http.StatusOK, contact)
}

// Update godoc
// @Summary Update contact
// @Description Update a contact's display name or avatar
// @Tags contacts
// @Accept json
// @Produce json
// @Param id path string true "Contact ID"
// @Success 200 {object} models.Contact
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /contacts/{id} [put]
// @Security BearerAuth
func (h *ContactHandler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid ID format"})
	}

	tenantID, ok := c.Get("tenant_id").(uuid.UUID)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "tenant_id not found in context"})
	}

	contact, err := h.contactRepo.GetByID(id, tenantID)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Contact not found"})
	}

	var req struct {
		Name      string `json:"name"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	if req.Name != "" {
		contact.Name = req.Name
	}
	if req.AvatarURL != "" {
		contact.AvatarURL = req.AvatarURL
	}

	if err := h.contactRepo.Update(contact); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, contact)
}

// Merge godoc
// @Summary Merge duplicate contacts
// @Description Merge two contacts that share the same phone number. The older
// contact survives and absorbs the other's conversations.
// @Tags contacts
// @Accept json
// @Produce json
// @Success 200 {object} models.Contact
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /contacts/merge [post]
// @Security BearerAuth
func (h *ContactHandler) Merge(c echo.Context) error {
	tenantID, ok := c.Get("tenant_id").(uuid.UUID)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "tenant_id not found in context"})
	}

	var req struct {
		ContactID   uuid.UUID `json:"contact_id" validate:"required"`
		DuplicateID uuid.UUID `json:"duplicate_id" validate:"required"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	a, err := h.contactRepo.GetByID(req.ContactID, tenantID)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Contact not found"})
	}
	b, err := h.contactRepo.GetByID(req.DuplicateID, tenantID)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Duplicate contact not found"})
	}

	merged, err := h.resolver.MergeByPhone(tenantID, a, b)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, merged)
}
