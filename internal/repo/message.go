package repo

import (
	"zapdesk/pkg/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// messageInsertChunk bounds batch inserts so a large history import does not
// build one giant statement
const messageInsertChunk = 50

// MessageRepository handles message data access
type MessageRepository struct {
	db *gorm.DB
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// GetByID gets a message by ID and tenant
func (r *MessageRepository) GetByID(id, tenantID uuid.UUID) (*models.Message, error) {
	var message models.Message
	err := r.db.Where("id = ? AND tenant_id = ?", id, tenantID).First(&message).Error
	if err != nil {
		return nil, err
	}
	return &message, nil
}

// ListByConversation lists messages of a conversation, oldest first
func (r *MessageRepository) ListByConversation(conversationID, tenantID uuid.UUID, limit, offset int) ([]models.Message, int64, error) {
	var messages []models.Message
	var total int64

	query := r.db.Model(&models.Message{}).
		Where("conversation_id = ? AND tenant_id = ?", conversationID, tenantID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Order("created_at ASC").Limit(limit).Offset(offset).Find(&messages).Error
	return messages, total, err
}

// GetExternalIDs returns the set of gateway message IDs already stored for a
// conversation. The IDs live inside the metadata JSON, not in a column.
func (r *MessageRepository) GetExternalIDs(conversationID uuid.UUID) (map[string]bool, error) {
	var ids []string
	err := r.db.Model(&models.Message{}).
		Where("conversation_id = ? AND metadata->>'external_id' IS NOT NULL", conversationID).
		Pluck("metadata->>'external_id'", &ids).Error
	if err != nil {
		return nil, err
	}

	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set, nil
}

// ListRecent returns the newest messages of a conversation, for content-based
// duplicate detection against legacy rows that carry no external ID
func (r *MessageRepository) ListRecent(conversationID uuid.UUID, limit int) ([]models.Message, error) {
	var messages []models.Message
	err := r.db.Where("conversation_id = ?", conversationID).
		Order("created_at DESC").
		Limit(limit).
		Find(&messages).Error
	return messages, err
}

// CreateBatch inserts messages in chunks, silently skipping rows that collide
// with the unique (conversation, external_id) index
func (r *MessageRepository) CreateBatch(messages []models.Message) (int, error) {
	if len(messages) == 0 {
		return 0, nil
	}

	inserted := 0
	for start := 0; start < len(messages); start += messageInsertChunk {
		end := start + messageInsertChunk
		if end > len(messages) {
			end = len(messages)
		}

		chunk := messages[start:end]
		result := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&chunk)
		if result.Error != nil {
			return inserted, result.Error
		}
		inserted += int(result.RowsAffected)
	}

	return inserted, nil
}

// Create creates a single message
func (r *MessageRepository) Create(message *models.Message) error {
	return r.db.Create(message).Error
}

// Update updates a message
func (r *MessageRepository) Update(message *models.Message) error {
	return r.db.Save(message).Error
}

// ListMediaRepairCandidates returns messages of a conversation whose media
// is still recoverable: either the attachment points at a gateway-hosted
// URL, or the message was imported as a bare media placeholder with no
// attachment at all. Messages already marked permanently unavailable are
// excluded.
func (r *MessageRepository) ListMediaRepairCandidates(conversationID uuid.UUID, limit int) ([]models.Message, error) {
	var messages []models.Message
	err := r.db.Where(
		"conversation_id = ? AND metadata->'mediaUnavailable' IS NULL AND ("+
			"metadata->'attachment'->>'url' LIKE ? OR "+
			"(metadata->'attachment' IS NULL AND media_type IN ?))",
		conversationID, "%.whatsapp.net%", []string{"image", "video", "audio", "document", "sticker"}).
		Order("created_at DESC").
		Limit(limit).
		Find(&messages).Error
	return messages, err
}

// MarkConversationRead marks all inbound messages of a conversation as read
func (r *MessageRepository) MarkConversationRead(conversationID, tenantID uuid.UUID) error {
	return r.db.Model(&models.Message{}).
		Where("conversation_id = ? AND tenant_id = ? AND is_read = ?", conversationID, tenantID, false).
		Update("is_read", true).Error
}
