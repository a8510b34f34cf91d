package sync

import (
	"context"
	"strings"
	"time"

	"zapdesk/internal/evolution"
	"zapdesk/pkg/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type fakeContacts struct {
	contacts []*models.Contact
	updates  int
}

func (f *fakeContacts) GetByRemoteJid(tenantID uuid.UUID, remoteJid string) (*models.Contact, error) {
	for _, c := range f.contacts {
		if c.TenantID == tenantID && c.RemoteJid == remoteJid {
			return c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeContacts) GetByPhone(tenantID uuid.UUID, phone string) (*models.Contact, error) {
	for _, c := range f.contacts {
		if c.TenantID == tenantID && c.Phone == phone {
			return c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeContacts) GetByResolvedLID(tenantID uuid.UUID, lid string) (*models.Contact, error) {
	for _, c := range f.contacts {
		if c.TenantID == tenantID && c.Metadata.LIDResolvedFrom == lid {
			return c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeContacts) FindByName(tenantID uuid.UUID, name string) ([]models.Contact, error) {
	var out []models.Contact
	for _, c := range f.contacts {
		if c.TenantID == tenantID && c.Name == name && c.Phone != "" {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeContacts) SearchByName(tenantID uuid.UUID, term string, limit int) ([]models.Contact, error) {
	var out []models.Contact
	for _, c := range f.contacts {
		if c.TenantID == tenantID && c.Phone != "" &&
			strings.Contains(strings.ToLower(c.Name), strings.ToLower(term)) {
			out = append(out, *c)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeContacts) Create(contact *models.Contact) error {
	contact.ID = uuid.New()
	contact.CreatedAt = time.Now().Add(time.Duration(len(f.contacts)) * time.Second)
	f.contacts = append(f.contacts, contact)
	return nil
}

func (f *fakeContacts) Update(contact *models.Contact) error {
	f.updates++
	for i, c := range f.contacts {
		if c.ID == contact.ID {
			f.contacts[i] = contact
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (f *fakeContacts) HardDelete(id, tenantID uuid.UUID) error {
	for i, c := range f.contacts {
		if c.ID == id && c.TenantID == tenantID {
			f.contacts = append(f.contacts[:i], f.contacts[i+1:]...)
			return nil
		}
	}
	return nil
}

type fakeConversations struct {
	convos []*models.Conversation
}

func (f *fakeConversations) GetByID(id, tenantID uuid.UUID) (*models.Conversation, error) {
	for _, c := range f.convos {
		if c.ID == id && c.TenantID == tenantID {
			return c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeConversations) GetByRemoteJid(tenantID, channelID uuid.UUID, remoteJid string) (*models.Conversation, error) {
	for _, c := range f.convos {
		if c.TenantID == tenantID && c.ChannelID == channelID && c.Metadata.RemoteJid == remoteJid {
			return c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeConversations) GetByContactAndChannel(tenantID, contactID, channelID uuid.UUID) (*models.Conversation, error) {
	for _, c := range f.convos {
		if c.TenantID == tenantID && c.ContactID == contactID && c.ChannelID == channelID {
			return c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeConversations) Create(conversation *models.Conversation) error {
	conversation.ID = uuid.New()
	f.convos = append(f.convos, conversation)
	return nil
}

func (f *fakeConversations) TouchLastMessageAt(id uuid.UUID, at time.Time) error {
	for _, c := range f.convos {
		if c.ID == id {
			if c.LastMessageAt == nil || c.LastMessageAt.Before(at) {
				t := at
				c.LastMessageAt = &t
			}
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (f *fakeConversations) ReassignContact(tenantID, fromContactID, toContactID uuid.UUID) (int64, error) {
	var moved int64
	for _, c := range f.convos {
		if c.TenantID == tenantID && c.ContactID == fromContactID {
			c.ContactID = toContactID
			moved++
		}
	}
	return moved, nil
}

func (f *fakeConversations) ListByChannel(tenantID, channelID uuid.UUID, limit, offset int) ([]models.Conversation, error) {
	var out []models.Conversation
	for _, c := range f.convos {
		if c.TenantID == tenantID && c.ChannelID == channelID {
			out = append(out, *c)
		}
	}
	if offset > len(out) {
		offset = len(out)
	}
	end := offset + limit
	if end > len(out) {
		end = len(out)
	}
	return out[offset:end], nil
}

type fakeMessages struct {
	msgs []*models.Message
}

func (f *fakeMessages) GetExternalIDs(conversationID uuid.UUID) (map[string]bool, error) {
	ids := make(map[string]bool)
	for _, m := range f.msgs {
		if m.ConversationID == conversationID && m.Metadata.ExternalID != "" {
			ids[m.Metadata.ExternalID] = true
		}
	}
	return ids, nil
}

func (f *fakeMessages) ListRecent(conversationID uuid.UUID, limit int) ([]models.Message, error) {
	var out []models.Message
	for _, m := range f.msgs {
		if m.ConversationID == conversationID {
			out = append(out, *m)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// CreateBatch emulates the unique (conversation, external id) index: rows
// whose external id already exists are silently dropped
func (f *fakeMessages) CreateBatch(messages []models.Message) (int, error) {
	inserted := 0
	for i := range messages {
		m := messages[i]
		if m.Metadata.ExternalID != "" {
			dup := false
			for _, existing := range f.msgs {
				if existing.ConversationID == m.ConversationID && existing.Metadata.ExternalID == m.Metadata.ExternalID {
					dup = true
					break
				}
			}
			if dup {
				continue
			}
		}
		m.ID = uuid.New()
		f.msgs = append(f.msgs, &m)
		inserted++
	}
	return inserted, nil
}

func (f *fakeMessages) ListMediaRepairCandidates(conversationID uuid.UUID, limit int) ([]models.Message, error) {
	var out []models.Message
	for _, m := range f.msgs {
		if m.ConversationID != conversationID || m.Metadata.MediaUnavailable != nil {
			continue
		}
		hosted := m.Metadata.Attachment != nil && strings.Contains(m.Metadata.Attachment.URL, ".whatsapp.net")
		bare := m.Metadata.Attachment == nil && isRecoverableMediaType(m.MediaType)
		if !hosted && !bare {
			continue
		}
		out = append(out, *m)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeMessages) Update(message *models.Message) error {
	for i, m := range f.msgs {
		if m.ID == message.ID {
			clone := *message
			f.msgs[i] = &clone
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

type fakeGateway struct {
	chats        []evolution.Chat
	groups       []evolution.Group
	findMsgs     map[string][]evolution.RawMessage
	fetchMsgs    map[string][]evolution.RawMessage
	findErr      error
	fetchErr     error
	media        map[string]*evolution.MediaPayload
	mediaErr     error
	findCalls    int
	fetchCalls   int
	mediaCalls   int
}

func (f *fakeGateway) FindChats(ctx context.Context, instance string) ([]evolution.Chat, error) {
	return f.chats, nil
}

func (f *fakeGateway) FetchAllGroups(ctx context.Context, instance string, getParticipants bool) ([]evolution.Group, error) {
	return f.groups, nil
}

func (f *fakeGateway) FindMessages(ctx context.Context, instance, remoteJid string, limit int) ([]evolution.RawMessage, error) {
	f.findCalls++
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.findMsgs[remoteJid], nil
}

func (f *fakeGateway) FetchMessages(ctx context.Context, instance, remoteJid string, limit int) ([]evolution.RawMessage, error) {
	f.fetchCalls++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.fetchMsgs[remoteJid], nil
}

func (f *fakeGateway) GetBase64FromMediaMessage(ctx context.Context, instance, messageID string) (*evolution.MediaPayload, error) {
	f.mediaCalls++
	if f.mediaErr != nil {
		return nil, f.mediaErr
	}
	if p, ok := f.media[messageID]; ok {
		return p, nil
	}
	return nil, gorm.ErrRecordNotFound
}

type fakeChannels struct {
	channels map[string]*models.Channel
}

func (f *fakeChannels) GetByInstanceName(instanceName string) (*models.Channel, error) {
	if c, ok := f.channels[instanceName]; ok {
		return c, nil
	}
	return nil, gorm.ErrRecordNotFound
}

type fakeBlobs struct {
	uploads int
	err     error
}

func (f *fakeBlobs) UploadBase64(ctx context.Context, data, contentType, key string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.uploads++
	return "https://media.zapdesk.example/" + key, nil
}

func rawText(id, remoteJid string, ts int64, fromMe bool, text string) evolution.RawMessage {
	return evolution.RawMessage{
		Key:              evolution.MessageKey{ID: id, RemoteJid: remoteJid, FromMe: fromMe},
		MessageTimestamp: evolution.Timestamp(ts),
		Message:          &evolution.MessageContent{Conversation: text},
	}
}

func isRecoverableMediaType(mediaType string) bool {
	switch mediaType {
	case "image", "video", "audio", "document", "sticker":
		return true
	}
	return false
}
