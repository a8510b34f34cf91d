package repo

import (
	"time"

	"zapdesk/pkg/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ChannelRepository handles channel data access
type ChannelRepository struct {
	db *gorm.DB
}

// NewChannelRepository creates a new channel repository
func NewChannelRepository(db *gorm.DB) *ChannelRepository {
	return &ChannelRepository{db: db}
}

// GetByID gets a channel by ID
func (r *ChannelRepository) GetByID(id uuid.UUID) (*models.Channel, error) {
	var channel models.Channel
	err := r.db.Where("id = ?", id).First(&channel).Error
	if err != nil {
		return nil, err
	}
	return &channel, nil
}

// GetByIDAndTenant gets a channel by ID and tenant ID for security
func (r *ChannelRepository) GetByIDAndTenant(id, tenantID uuid.UUID) (*models.Channel, error) {
	var channel models.Channel
	err := r.db.Where("id = ? AND tenant_id = ?", id, tenantID).First(&channel).Error
	if err != nil {
		return nil, err
	}
	return &channel, nil
}

// GetByInstanceName gets a channel by its Evolution instance name (globally,
// used by webhook dispatch where only the instance is known)
func (r *ChannelRepository) GetByInstanceName(instanceName string) (*models.Channel, error) {
	var channel models.Channel
	err := r.db.Where("instance_name = ?", instanceName).First(&channel).Error
	if err != nil {
		return nil, err
	}
	return &channel, nil
}

// InstanceNameExists checks if an instance name is already registered globally
func (r *ChannelRepository) InstanceNameExists(instanceName string) (bool, error) {
	var count int64
	err := r.db.Model(&models.Channel{}).Where("instance_name = ?", instanceName).Count(&count).Error
	return count > 0, err
}

// List lists channels for a tenant
func (r *ChannelRepository) List(tenantID uuid.UUID) ([]models.Channel, error) {
	var channels []models.Channel
	err := r.db.Where("tenant_id = ?", tenantID).Order("created_at ASC").Find(&channels).Error
	return channels, err
}

// ListActive lists active channels across all tenants, for the connection monitor
func (r *ChannelRepository) ListActive() ([]models.Channel, error) {
	var channels []models.Channel
	err := r.db.Where("is_active = ? AND instance_name != ''", true).Find(&channels).Error
	return channels, err
}

// Create creates a new channel
func (r *ChannelRepository) Create(channel *models.Channel) error {
	return r.db.Create(channel).Error
}

// Update updates a channel
func (r *ChannelRepository) Update(channel *models.Channel) error {
	return r.db.Save(channel).Error
}

// UpdateStatus updates only the connection status of a channel
func (r *ChannelRepository) UpdateStatus(id uuid.UUID, status string) error {
	return r.db.Model(&models.Channel{}).Where("id = ?", id).Update("status", status).Error
}

// Delete deletes a channel (soft delete)
func (r *ChannelRepository) Delete(id, tenantID uuid.UUID) error {
	result := r.db.Where("id = ? AND tenant_id = ?", id, tenantID).Delete(&models.Channel{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ContactRepository handles contact data access
type ContactRepository struct {
	db *gorm.DB
}

// NewContactRepository creates a new contact repository
func NewContactRepository(db *gorm.DB) *ContactRepository {
	return &ContactRepository{db: db}
}

// GetByID gets a contact by ID and tenant
func (r *ContactRepository) GetByID(id, tenantID uuid.UUID) (*models.Contact, error) {
	var contact models.Contact
	err := r.db.Where("id = ? AND tenant_id = ?", id, tenantID).First(&contact).Error
	if err != nil {
		return nil, err
	}
	return &contact, nil
}

// GetByRemoteJid gets a contact by its WhatsApp address
func (r *ContactRepository) GetByRemoteJid(tenantID uuid.UUID, remoteJid string) (*models.Contact, error) {
	var contact models.Contact
	err := r.db.Where("tenant_id = ? AND remote_jid = ?", tenantID, remoteJid).First(&contact).Error
	if err != nil {
		return nil, err
	}
	return &contact, nil
}

// GetByPhone gets a contact by normalized phone number
func (r *ContactRepository) GetByPhone(tenantID uuid.UUID, phone string) (*models.Contact, error) {
	var contact models.Contact
	err := r.db.Where("tenant_id = ? AND phone = ?", tenantID, phone).First(&contact).Error
	if err != nil {
		return nil, err
	}
	return &contact, nil
}

// FindByName lists contacts whose display name matches exactly, used by
// identity resolution for @lid addresses
func (r *ContactRepository) FindByName(tenantID uuid.UUID, name string) ([]models.Contact, error) {
	var contacts []models.Contact
	err := r.db.Where("tenant_id = ? AND name = ? AND phone != ''", tenantID, name).Find(&contacts).Error
	return contacts, err
}

// GetByResolvedLID gets the phone contact a LID address was previously
// resolved to, so repeated syncs skip the name-matching heuristic
func (r *ContactRepository) GetByResolvedLID(tenantID uuid.UUID, lid string) (*models.Contact, error) {
	var contact models.Contact
	err := r.db.Where("tenant_id = ? AND metadata->>'lid_resolved_from' = ?", tenantID, lid).First(&contact).Error
	if err != nil {
		return nil, err
	}
	return &contact, nil
}

// SearchByName lists contacts whose name contains the term, case-insensitive
func (r *ContactRepository) SearchByName(tenantID uuid.UUID, term string, limit int) ([]models.Contact, error) {
	var contacts []models.Contact
	err := r.db.Where("tenant_id = ? AND name ILIKE ? AND phone != ''", tenantID, "%"+term+"%").
		Limit(limit).Find(&contacts).Error
	return contacts, err
}

// List lists contacts with pagination and optional search
func (r *ContactRepository) List(tenantID uuid.UUID, limit, offset int, search string) ([]models.Contact, int64, error) {
	var contacts []models.Contact
	var total int64

	query := r.db.Model(&models.Contact{}).Where("tenant_id = ?", tenantID)
	if search != "" {
		query = query.Where("name ILIKE ? OR phone ILIKE ?", "%"+search+"%", "%"+search+"%")
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Order("name ASC").Limit(limit).Offset(offset).Find(&contacts).Error
	return contacts, total, err
}

// Create creates a new contact
func (r *ContactRepository) Create(contact *models.Contact) error {
	return r.db.Create(contact).Error
}

// Update updates a contact
func (r *ContactRepository) Update(contact *models.Contact) error {
	return r.db.Save(contact).Error
}

// HardDelete permanently removes a contact, used after duplicate merge
func (r *ContactRepository) HardDelete(id, tenantID uuid.UUID) error {
	return r.db.Unscoped().Where("id = ? AND tenant_id = ?", id, tenantID).Delete(&models.Contact{}).Error
}

// Delete deletes a contact (soft delete)
func (r *ContactRepository) Delete(id, tenantID uuid.UUID) error {
	result := r.db.Where("id = ? AND tenant_id = ?", id, tenantID).Delete(&models.Contact{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ConversationRepository handles conversation data access
type ConversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository creates a new conversation repository
func NewConversationRepository(db *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// GetByID gets a conversation by ID and tenant, with its contact preloaded
func (r *ConversationRepository) GetByID(id, tenantID uuid.UUID) (*models.Conversation, error) {
	var conversation models.Conversation
	err := r.db.Preload("Contact").Where("id = ? AND tenant_id = ?", id, tenantID).First(&conversation).Error
	if err != nil {
		return nil, err
	}
	return &conversation, nil
}

// GetByRemoteJid gets a conversation by the WhatsApp address stored in its metadata
func (r *ConversationRepository) GetByRemoteJid(tenantID, channelID uuid.UUID, remoteJid string) (*models.Conversation, error) {
	var conversation models.Conversation
	err := r.db.Where("tenant_id = ? AND channel_id = ? AND metadata->>'remoteJid' = ?",
		tenantID, channelID, remoteJid).First(&conversation).Error
	if err != nil {
		return nil, err
	}
	return &conversation, nil
}

// GetByContactAndChannel gets the conversation for a contact on a channel
func (r *ConversationRepository) GetByContactAndChannel(tenantID, contactID, channelID uuid.UUID) (*models.Conversation, error) {
	var conversation models.Conversation
	err := r.db.Where("tenant_id = ? AND contact_id = ? AND channel_id = ?",
		tenantID, contactID, channelID).First(&conversation).Error
	if err != nil {
		return nil, err
	}
	return &conversation, nil
}

// List lists conversations ordered by most recent activity
func (r *ConversationRepository) List(tenantID uuid.UUID, limit, offset int, status string) ([]models.Conversation, int64, error) {
	var conversations []models.Conversation
	var total int64

	query := r.db.Model(&models.Conversation{}).Where("tenant_id = ?", tenantID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Preload("Contact").
		Order("last_message_at DESC NULLS LAST").
		Limit(limit).Offset(offset).
		Find(&conversations).Error
	return conversations, total, err
}

// Create creates a new conversation
func (r *ConversationRepository) Create(conversation *models.Conversation) error {
	return r.db.Create(conversation).Error
}

// Update updates a conversation
func (r *ConversationRepository) Update(conversation *models.Conversation) error {
	return r.db.Save(conversation).Error
}

// TouchLastMessageAt advances last_message_at to the given time, never
// moving it backwards
func (r *ConversationRepository) TouchLastMessageAt(id uuid.UUID, at time.Time) error {
	return r.db.Model(&models.Conversation{}).
		Where("id = ? AND (last_message_at IS NULL OR last_message_at < ?)", id, at).
		Update("last_message_at", at).Error
}

// IncrementUnread increments the unread counter
func (r *ConversationRepository) IncrementUnread(id uuid.UUID, by int) error {
	return r.db.Model(&models.Conversation{}).
		Where("id = ?", id).
		Update("unread_count", gorm.Expr("unread_count + ?", by)).Error
}

// MarkRead resets the unread counter
func (r *ConversationRepository) MarkRead(id, tenantID uuid.UUID) error {
	return r.db.Model(&models.Conversation{}).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		Update("unread_count", 0).Error
}

// AssignUser assigns an agent to a conversation, or unassigns with nil
func (r *ConversationRepository) AssignUser(id, tenantID uuid.UUID, userID *uuid.UUID) error {
	result := r.db.Model(&models.Conversation{}).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		Update("assigned_user_id", userID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdateStatus changes the conversation workflow status
func (r *ConversationRepository) UpdateStatus(id, tenantID uuid.UUID, status string) error {
	result := r.db.Model(&models.Conversation{}).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ReassignContact moves every conversation of one contact to another, used
// by duplicate merge. Running it again after the move is a no-op.
func (r *ConversationRepository) ReassignContact(tenantID, fromContactID, toContactID uuid.UUID) (int64, error) {
	result := r.db.Model(&models.Conversation{}).
		Where("tenant_id = ? AND contact_id = ?", tenantID, fromContactID).
		Update("contact_id", toContactID)
	return result.RowsAffected, result.Error
}

// ListByChannel lists conversations of a channel, for reconciliation paging
func (r *ConversationRepository) ListByChannel(tenantID, channelID uuid.UUID, limit, offset int) ([]models.Conversation, error) {
	var conversations []models.Conversation
	err := r.db.Preload("Contact").
		Where("tenant_id = ? AND channel_id = ?", tenantID, channelID).
		Order("created_at ASC").
		Limit(limit).Offset(offset).
		Find(&conversations).Error
	return conversations, err
}
