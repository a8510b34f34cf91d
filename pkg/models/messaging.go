package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Channel represents a messaging channel bound to one Evolution API instance
type Channel struct {
	BaseTenantModel
	Name         string `gorm:"not null" json:"name" validate:"required"`
	Type         string `gorm:"not null;default:'whatsapp'" json:"type"`
	InstanceName string `gorm:"not null" json:"instance_name" validate:"required"` // Evolution instance identifier
	Status       string `gorm:"default:'disconnected'" json:"status"`              // disconnected, connecting, connected
	WebhookToken string `json:"webhook_token"`
	IsActive     bool   `gorm:"default:true" json:"is_active"`
}

// ContactMetadata carries resolution provenance for a contact
type ContactMetadata struct {
	LIDResolvedFrom string   `json:"lid_resolved_from,omitempty"` // the @lid address this contact was resolved from
	ResolvedBy      string   `json:"resolved_by,omitempty"`       // exact_name, partial_name
	PreviousNames   []string `json:"previous_names,omitempty"`
}

func (m ContactMetadata) Value() (driver.Value, error) {
	return json.Marshal(m)
}

func (m *ContactMetadata) Scan(value interface{}) error {
	if value == nil {
		*m = ContactMetadata{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, m)
}

// Contact is the local identity for a remote chat participant or group.
// Phone is empty for groups and for unresolved LID contacts, which are
// keyed by RemoteJid instead.
type Contact struct {
	BaseTenantModel
	Name      string          `json:"name"`
	Phone     string          `gorm:"index" json:"phone"`
	RemoteJid string          `gorm:"index" json:"remote_jid"`
	IsGroup   bool            `gorm:"default:false" json:"is_group"`
	AvatarURL string          `json:"avatar_url"`
	Metadata  ContactMetadata `gorm:"type:jsonb;default:'{}'" json:"metadata"`
}

// ConversationMetadata holds the gateway addressing of a conversation
type ConversationMetadata struct {
	RemoteJid    string `json:"remoteJid,omitempty"`
	InstanceName string `json:"instanceName,omitempty"`
}

func (m ConversationMetadata) Value() (driver.Value, error) {
	return json.Marshal(m)
}

func (m *ConversationMetadata) Scan(value interface{}) error {
	if value == nil {
		*m = ConversationMetadata{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, m)
}

// Conversation represents a thread between a tenant and a contact.
// LastMessageAt is the recency key and must always equal the timestamp of
// the newest message in the thread.
type Conversation struct {
	BaseTenantModel
	ContactID      uuid.UUID            `gorm:"type:uuid;not null;constraint:OnDelete:RESTRICT" json:"contact_id"`
	ChannelID      uuid.UUID            `gorm:"type:uuid;not null;constraint:OnDelete:RESTRICT" json:"channel_id"`
	AssignedUserID *uuid.UUID           `gorm:"type:uuid;constraint:OnDelete:SET NULL" json:"assigned_user_id"`
	Status         string               `gorm:"default:'open'" json:"status"` // open, pending, resolved
	UnreadCount    int                  `gorm:"default:0" json:"unread_count"`
	LastMessageAt  *time.Time           `gorm:"index" json:"last_message_at"`
	Metadata       ConversationMetadata `gorm:"type:jsonb;default:'{}'" json:"metadata"`

	// Relations
	Contact      *Contact `gorm:"foreignKey:ContactID" json:"contact,omitempty"`
	Channel      *Channel `gorm:"foreignKey:ChannelID" json:"channel,omitempty"`
	AssignedUser *User    `gorm:"foreignKey:AssignedUserID" json:"assigned_user,omitempty"`
}

// Attachment describes persisted media referenced by a message
type Attachment struct {
	Type     string `json:"type"` // image, audio, video, document, sticker, contact, location
	URL      string `json:"url"`
	MimeType string `json:"mimetype,omitempty"`
}

// MediaUnavailable marks media that could not be recovered from the gateway.
// This is a terminal state; repair never retries it automatically.
type MediaUnavailable struct {
	Reason   string    `json:"reason"`
	MarkedAt time.Time `json:"marked_at"`
}

// MessageMetadata is the single home of gateway identifiers and media
// descriptors for a message. Key names are shared across sync, webhook and
// repair code and must not drift.
type MessageMetadata struct {
	ExternalID       string            `json:"external_id,omitempty"`
	MessageID        string            `json:"messageId,omitempty"` // raw gateway key id, when it differs from external_id
	RemoteJid        string            `json:"remoteJid,omitempty"`
	FromMe           bool              `json:"fromMe"`
	Attachment       *Attachment       `json:"attachment,omitempty"`
	MediaUnavailable *MediaUnavailable `json:"mediaUnavailable,omitempty"`
	ImportedBy       string            `json:"imported_by,omitempty"` // history_sync, webhook, media_repair
}

func (m MessageMetadata) Value() (driver.Value, error) {
	return json.Marshal(m)
}

func (m *MessageMetadata) Scan(value interface{}) error {
	if value == nil {
		*m = MessageMetadata{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, m)
}

// Message is one normalized unit of conversation content. CreatedAt holds
// the gateway's original send time, not the import time.
type Message struct {
	BaseTenantModel
	ConversationID uuid.UUID       `gorm:"type:uuid;not null;index;constraint:OnDelete:RESTRICT" json:"conversation_id"`
	ContactID      uuid.UUID       `gorm:"type:uuid;not null;constraint:OnDelete:RESTRICT" json:"contact_id"`
	SenderType     string          `gorm:"not null;default:'user'" json:"sender_type"` // user, agent, bot
	Content        string          `gorm:"type:text" json:"content"`
	MediaType      string          `json:"media_type,omitempty"`
	IsRead         bool            `gorm:"default:false" json:"is_read"`
	Metadata       MessageMetadata `gorm:"type:jsonb;default:'{}'" json:"metadata"`

	// Relations
	Conversation *Conversation `gorm:"foreignKey:ConversationID" json:"conversation,omitempty"`
	Contact      *Contact      `gorm:"foreignKey:ContactID" json:"contact,omitempty"`
}

// ScheduledMessage represents a message queued for future delivery
type ScheduledMessage struct {
	BaseTenantModel
	ConversationID  uuid.UUID  `gorm:"type:uuid;not null;index;constraint:OnDelete:RESTRICT" json:"conversation_id"`
	CreatedByUserID *uuid.UUID `gorm:"type:uuid;constraint:OnDelete:SET NULL" json:"created_by_user_id"`
	Content         string     `gorm:"not null;type:text" json:"content" validate:"required"`
	SendAt          time.Time  `gorm:"not null;index" json:"send_at" validate:"required"`
	Status          string     `gorm:"default:'pending'" json:"status"` // pending, sent, cancelled, failed
	LastError       string     `json:"last_error,omitempty"`

	// Relations
	Conversation *Conversation `gorm:"foreignKey:ConversationID" json:"conversation,omitempty"`
}
