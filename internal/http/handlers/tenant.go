package handlers

import (
	"net/http"
	"strconv"

	"zapdesk/internal/repo"
	"zapdesk/pkg/models"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

// TenantHandler handles tenant management
type TenantHandler struct {
	tenantRepo *repo.TenantRepository
	db         *gorm.DB
}

// NewTenantHandler creates a new tenant handler
func NewTenantHandler(tenantRepo *repo.TenantRepository, db *gorm.DB) *TenantHandler {
	return &TenantHandler{
		tenantRepo: tenantRepo,
		db:         db,
	}
}

// List godoc
// @Summary List tenants
// @Description Get all tenants with their admin emails (system admin only)
// @Tags tenants
// @Produce json
// @Param limit query int false "Limit" default(20)
// @Param offset query int false "Offset" default(0)
// @Success 200 {object} models.PaginationResult[repo.TenantWithAdmin]
// @Failure 500 {object} map[string]string
// @Router /admin/tenants [get]
// @Security BearerAuth
func (h *TenantHandler) List(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	if limit <= 0 {
		limit = 20
	}

	result, err := h.tenantRepo.List(limit, offset)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, result)
}

// Create godoc
// @Summary Create tenant
// @Tags tenants
// @Accept json
// @Produce json
// @Param tenant body models.Tenant true "Tenant data"
// @Success 201 {object} models.Tenant
// @Failure 400 {object} map[string]string
// @Router /admin/tenants [post]
// @Security BearerAuth
func (h *TenantHandler) Create(c echo.Context) error {
	var tenant models.Tenant
	if err := c.Bind(&tenant); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if err := c.Validate(&tenant); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	if tenant.Domain != "" {
		existing, err := h.tenantRepo.GetByDomain(tenant.Domain)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
		if existing != nil {
			return c.JSON(http.StatusConflict, map[string]string{"error": "Domain already in use"})
		}
	}

	tenant.ID = uuid.New()
	if err := h.tenantRepo.Create(&tenant); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusCreated, tenant)
}

// GetByID godoc
// @Summary Get tenant by ID
// @Tags tenants
// @Produce json
// @Param id path string true "Tenant ID"
// @Success 200 {object} models.Tenant
// @Failure 404 {object} map[string]string
// @Router /admin/tenants/{id} [get]
// @Security BearerAuth
func (h *TenantHandler) GetByID(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid ID format"})
	}

	tenant, err := h.tenantRepo.GetByID(id)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Tenant not found"})
	}

	return c.JSON(http.StatusOK, tenant)
}

// Update godoc
// @Summary Update tenant
// @Tags tenants
// @Accept json
// @Produce json
// @Param id path string true "Tenant ID"
// @Success 200 {object} models.Tenant
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /admin/tenants/{id} [put]
// @Security BearerAuth
func (h *TenantHandler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid ID format"})
	}

	tenant, err := h.tenantRepo.GetByID(id)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Tenant not found"})
	}

	var update models.Tenant
	if err := c.Bind(&update); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	if update.Name != "" {
		tenant.Name = update.Name
	}
	if update.Domain != "" {
		tenant.Domain = update.Domain
	}
	if update.Plan != "" {
		tenant.Plan = update.Plan
	}
	if update.Status != "" {
		tenant.Status = update.Status
	}
	if update.MaxUsers > 0 {
		tenant.MaxUsers = update.MaxUsers
	}
	if update.MaxChannels > 0 {
		tenant.MaxChannels = update.MaxChannels
	}
	if update.About != "" {
		tenant.About = update.About
	}

	if err := h.tenantRepo.Update(tenant); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, tenant)
}

// Delete godoc
// @Summary Delete tenant
// @Tags tenants
// @Produce json
// @Param id path string true "Tenant ID"
// @Success 204
// @Failure 400 {object} map[string]string
// @Router /admin/tenants/{id} [delete]
// @Security BearerAuth
func (h *TenantHandler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid ID format"})
	}

	if err := h.tenantRepo.Delete(id); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.NoContent(http.StatusNoContent)
}

// GetProfile godoc
// @Summary Get tenant profile
// @Description Get the current tenant's profile
// @Tags tenants
// @Produce json
// @Success 200 {object} models.Tenant
// @Failure 404 {object} map[string]string
// @Router /tenant/profile [get]
// @Security BearerAuth
func (h *TenantHandler) GetProfile(c echo.Context) error {
	tenantID, ok := c.Get("tenant_id").(uuid.UUID)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "tenant_id not found in context"})
	}

	tenant, err := h.tenantRepo.GetByID(tenantID)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Tenant not found"})
	}

	return c.JSON(http.StatusOK, tenant)
}

// UpdateProfile godoc
// @Summary Update tenant profile
// @Description Update the current tenant's profile
// @Tags tenants
// @Accept json
// @Produce json
// @Success 200 {object} models.Tenant
// @Failure 400 {object} map[string]string
// @Router /tenant/profile [put]
// @Security BearerAuth
func (h *TenantHandler) UpdateProfile(c echo.Context) error {
	tenantID, ok := c.Get("tenant_id").(uuid.UUID)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "tenant_id not found in context"})
	}

	tenant, err := h.tenantRepo.GetByID(tenantID)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Tenant not found"})
	}

	var req struct {
		Name  string `json:"name"`
		About string `json:"about"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	if req.Name != "" {
		tenant.Name = req.Name
	}
	if req.About != "" {
		tenant.About = req.About
	}

	if err := h.tenantRepo.Update(tenant); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, tenant)
}

// GetStats godoc
// @Summary System stats
// @Description Aggregate counts across the platform (system admin only)
// @Tags tenants
// @Produce json
// @Success 200 {object} map[string]int64
// @Failure 500 {object} map[string]string
// @Router /admin/stats [get]
// @Security BearerAuth
func (h *TenantHandler) GetStats(c echo.Context) error {
	stats := map[string]int64{}

	var tenants, users, channels, conversations, messages int64
	if err := h.db.Model(&models.Tenant{}).Count(&tenants).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	h.db.Model(&models.User{}).Count(&users)
	h.db.Model(&models.Channel{}).Count(&channels)
	h.db.Model(&models.Conversation{}).Count(&conversations)
	h.db.Model(&models.Message{}).Count(&messages)

	stats["tenants"] = tenants
	stats["users"] = users
	stats["channels"] = channels
	stats["conversations"] = conversations
	stats["messages"] = messages

	return c.JSON(http.StatusOK, stats)
}
