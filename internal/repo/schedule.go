package repo

import (
	"time"

	"zapdesk/pkg/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ScheduledMessageRepository handles scheduled message data access
type ScheduledMessageRepository struct {
	db *gorm.DB
}

// NewScheduledMessageRepository creates a new scheduled message repository
func NewScheduledMessageRepository(db *gorm.DB) *ScheduledMessageRepository {
	return &ScheduledMessageRepository{db: db}
}

// Create creates a new scheduled message
func (r *ScheduledMessageRepository) Create(sm *models.ScheduledMessage) error {
	return r.db.Create(sm).Error
}

// GetByID gets a scheduled message by ID and tenant
func (r *ScheduledMessageRepository) GetByID(id, tenantID uuid.UUID) (*models.ScheduledMessage, error) {
	var sm models.ScheduledMessage
	err := r.db.Where("id = ? AND tenant_id = ?", id, tenantID).First(&sm).Error
	if err != nil {
		return nil, err
	}
	return &sm, nil
}

// ListByConversation lists scheduled messages of a conversation
func (r *ScheduledMessageRepository) ListByConversation(conversationID, tenantID uuid.UUID) ([]models.ScheduledMessage, error) {
	var items []models.ScheduledMessage
	err := r.db.Where("conversation_id = ? AND tenant_id = ?", conversationID, tenantID).
		Order("send_at ASC").Find(&items).Error
	return items, err
}

// ListDue lists pending messages whose send time has passed, across tenants
func (r *ScheduledMessageRepository) ListDue(now time.Time, limit int) ([]models.ScheduledMessage, error) {
	var items []models.ScheduledMessage
	err := r.db.Where("status = ? AND send_at <= ?", "pending", now).
		Order("send_at ASC").Limit(limit).Find(&items).Error
	return items, err
}

// MarkSent marks a scheduled message as dispatched
func (r *ScheduledMessageRepository) MarkSent(id uuid.UUID) error {
	return r.db.Model(&models.ScheduledMessage{}).Where("id = ?", id).
		Update("status", "sent").Error
}

// MarkFailed records a dispatch failure
func (r *ScheduledMessageRepository) MarkFailed(id uuid.UUID, reason string) error {
	return r.db.Model(&models.ScheduledMessage{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     "failed",
			"last_error": reason,
		}).Error
}

// Cancel cancels a pending scheduled message
func (r *ScheduledMessageRepository) Cancel(id, tenantID uuid.UUID) error {
	result := r.db.Model(&models.ScheduledMessage{}).
		Where("id = ? AND tenant_id = ? AND status = ?", id, tenantID, "pending").
		Update("status", "cancelled")
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
