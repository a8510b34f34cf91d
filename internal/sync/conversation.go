package sync

import (
	"context"
	"time"

	"zapdesk/internal/evolution"
	"zapdesk/pkg/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Gateway is the Evolution API surface reconciliation depends on
type Gateway interface {
	FindChats(ctx context.Context, instance string) ([]evolution.Chat, error)
	FindMessages(ctx context.Context, instance, remoteJid string, limit int) ([]evolution.RawMessage, error)
	FetchMessages(ctx context.Context, instance, remoteJid string, limit int) ([]evolution.RawMessage, error)
	GetBase64FromMediaMessage(ctx context.Context, instance, messageID string) (*evolution.MediaPayload, error)
	FetchAllGroups(ctx context.Context, instance string, getParticipants bool) ([]evolution.Group, error)
}

// ConversationStore is the conversation persistence surface for sync
type ConversationStore interface {
	GetByID(id, tenantID uuid.UUID) (*models.Conversation, error)
	GetByRemoteJid(tenantID, channelID uuid.UUID, remoteJid string) (*models.Conversation, error)
	GetByContactAndChannel(tenantID, contactID, channelID uuid.UUID) (*models.Conversation, error)
	Create(conversation *models.Conversation) error
	TouchLastMessageAt(id uuid.UUID, at time.Time) error
}

// MessageStore is the message persistence surface for sync
type MessageStore interface {
	GetExternalIDs(conversationID uuid.UUID) (map[string]bool, error)
	ListRecent(conversationID uuid.UUID, limit int) ([]models.Message, error)
	CreateBatch(messages []models.Message) (int, error)
	ListMediaRepairCandidates(conversationID uuid.UUID, limit int) ([]models.Message, error)
	Update(message *models.Message) error
}

// ItemResult is the per-chat outcome of a reconciliation run
type ItemResult struct {
	RemoteJid           string `json:"remoteJid"`
	Status              string `json:"status"`
	ContactCreated      bool   `json:"contactCreated,omitempty"`
	ConversationCreated bool   `json:"conversationCreated,omitempty"`
	Imported            int    `json:"imported"`
	Skipped             int    `json:"skipped"`
	WouldImport         int    `json:"wouldImport,omitempty"`
	Error               string `json:"error,omitempty"`
}

// Synchronizer reconciles one conversation at a time against the gateway
type Synchronizer struct {
	gateway       Gateway
	conversations ConversationStore
	messages      MessageStore
	resolver      *Resolver
	fetchLimit    int
	recentWindow  int
	log           zerolog.Logger
}

// NewSynchronizer creates a conversation synchronizer. fetchLimit bounds the
// messages requested per chat; recentWindow bounds how many persisted
// messages feed the fuzzy-dedupe index.
func NewSynchronizer(gateway Gateway, conversations ConversationStore, messages MessageStore, resolver *Resolver, fetchLimit, recentWindow int, log zerolog.Logger) *Synchronizer {
	if fetchLimit <= 0 {
		fetchLimit = 100
	}
	if recentWindow <= 0 {
		recentWindow = 200
	}
	return &Synchronizer{
		gateway:       gateway,
		conversations: conversations,
		messages:      messages,
		resolver:      resolver,
		fetchLimit:    fetchLimit,
		recentWindow:  recentWindow,
		log:           log,
	}
}

// SyncChat reconciles one remote chat into local storage. With dryRun no
// rows are written; the result reports what would have happened.
func (s *Synchronizer) SyncChat(ctx context.Context, tenantID uuid.UUID, channel *models.Channel, remoteJid, pushName string, dryRun bool) *ItemResult {
	result := &ItemResult{RemoteJid: remoteJid, Status: StatusResolved}

	raws, err := s.fetchWithFallback(ctx, channel.InstanceName, remoteJid)
	if err != nil {
		result.Status = "fetch_failed"
		result.Error = err.Error()
		return result
	}

	var candidates []Normalized
	for _, raw := range raws {
		if n, ok := NormalizeMessage(raw); ok {
			candidates = append(candidates, n)
		}
	}

	if dryRun {
		return s.dryRunReport(tenantID, channel, remoteJid, candidates, result)
	}

	resolution, err := s.resolver.Resolve(tenantID, remoteJid, pushName)
	if err != nil {
		result.Status = "identity_failed"
		result.Error = err.Error()
		return result
	}
	result.Status = resolution.Status
	result.ContactCreated = resolution.Created

	conversation, created, err := s.findOrCreateConversation(tenantID, channel, resolution.Contact, remoteJid)
	if err != nil {
		result.Status = "persist_failed"
		result.Error = err.Error()
		return result
	}
	result.ConversationCreated = created

	imported, skipped, newest, err := s.importMessages(tenantID, conversation, candidates)
	if err != nil {
		result.Status = "persist_failed"
		result.Error = err.Error()
		return result
	}
	result.Imported = imported
	result.Skipped = skipped

	if imported > 0 && !newest.IsZero() {
		if err := s.conversations.TouchLastMessageAt(conversation.ID, newest); err != nil {
			s.log.Warn().Err(err).Str("conversation_id", conversation.ID.String()).Msg("Failed to update conversation recency")
		}
	}

	return result
}

// SyncConversation reconciles a known local conversation by its stored
// gateway address
func (s *Synchronizer) SyncConversation(ctx context.Context, tenantID uuid.UUID, channel *models.Channel, conversationID uuid.UUID, dryRun bool) *ItemResult {
	conversation, err := s.conversations.GetByID(conversationID, tenantID)
	if err != nil {
		return &ItemResult{Status: "not_found", Error: err.Error()}
	}
	remoteJid := conversation.Metadata.RemoteJid
	if remoteJid == "" && conversation.Contact != nil {
		remoteJid = conversation.Contact.RemoteJid
	}
	if remoteJid == "" {
		return &ItemResult{Status: "not_found", Error: "conversation has no gateway address"}
	}

	pushName := ""
	if conversation.Contact != nil {
		pushName = conversation.Contact.Name
	}
	return s.SyncChat(ctx, tenantID, channel, remoteJid, pushName, dryRun)
}

// fetchWithFallback tries the primary message endpoint, then the legacy one.
// The gateway exposes the same data through both with different envelopes.
func (s *Synchronizer) fetchWithFallback(ctx context.Context, instance, remoteJid string) ([]evolution.RawMessage, error) {
	raws, err := s.gateway.FindMessages(ctx, instance, remoteJid, s.fetchLimit)
	if err == nil && len(raws) > 0 {
		return raws, nil
	}
	if err != nil {
		s.log.Debug().Err(err).Str("remote_jid", remoteJid).Msg("findMessages failed, trying fetchMessages")
	}

	fallback, ferr := s.gateway.FetchMessages(ctx, instance, remoteJid, s.fetchLimit)
	if ferr != nil {
		if err != nil {
			return nil, err
		}
		return nil, ferr
	}
	return fallback, nil
}

func (s *Synchronizer) findOrCreateConversation(tenantID uuid.UUID, channel *models.Channel, contact *models.Contact, remoteJid string) (*models.Conversation, bool, error) {
	conversation, err := s.conversations.GetByRemoteJid(tenantID, channel.ID, remoteJid)
	if err != nil && err != gorm.ErrRecordNotFound {
		return nil, false, err
	}
	if conversation != nil {
		return conversation, false, nil
	}

	conversation, err = s.conversations.GetByContactAndChannel(tenantID, contact.ID, channel.ID)
	if err != nil && err != gorm.ErrRecordNotFound {
		return nil, false, err
	}
	if conversation != nil {
		return conversation, false, nil
	}

	conversation = &models.Conversation{
		BaseTenantModel: models.BaseTenantModel{TenantID: tenantID},
		ContactID:       contact.ID,
		ChannelID:       channel.ID,
		Status:          "open",
		Metadata: models.ConversationMetadata{
			RemoteJid:    remoteJid,
			InstanceName: channel.InstanceName,
		},
	}
	if err := s.conversations.Create(conversation); err != nil {
		return nil, false, err
	}
	return conversation, true, nil
}

// importMessages runs the candidates through the gate and persists the
// survivors. Returns inserted count, skipped count and the newest inserted
// timestamp.
func (s *Synchronizer) importMessages(tenantID uuid.UUID, conversation *models.Conversation, candidates []Normalized) (int, int, time.Time, error) {
	if len(candidates) == 0 {
		return 0, 0, time.Time{}, nil
	}

	knownIDs, err := s.messages.GetExternalIDs(conversation.ID)
	if err != nil {
		return 0, 0, time.Time{}, err
	}
	recent, err := s.messages.ListRecent(conversation.ID, s.recentWindow)
	if err != nil {
		return 0, 0, time.Time{}, err
	}

	gate := NewGate(knownIDs, recent)
	fresh := gate.Filter(candidates)
	skipped := len(candidates) - len(fresh)
	if len(fresh) == 0 {
		return 0, skipped, time.Time{}, nil
	}

	var newest time.Time
	rows := make([]models.Message, 0, len(fresh))
	for _, c := range fresh {
		createdAt := c.Timestamp
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		if createdAt.After(newest) {
			newest = createdAt
		}

		rows = append(rows, models.Message{
			BaseTenantModel: models.BaseTenantModel{TenantID: tenantID, CreatedAt: createdAt},
			ConversationID:  conversation.ID,
			ContactID:       conversation.ContactID,
			SenderType:      c.SenderType(),
			Content:         c.Content,
			MediaType:       c.MediaType,
			IsRead:          c.FromMe,
			Metadata: models.MessageMetadata{
				ExternalID: c.ExternalID,
				MessageID:  c.ExternalID,
				RemoteJid:  c.RemoteJid,
				FromMe:     c.FromMe,
				Attachment: c.Attachment,
				ImportedBy: "history_sync",
			},
		})
	}

	inserted, err := s.messages.CreateBatch(rows)
	if err != nil {
		return inserted, skipped, newest, err
	}
	// Rows lost to the unique-index race count as skipped, not errors
	skipped += len(rows) - inserted

	return inserted, skipped, newest, nil
}

// dryRunReport computes what a real run would import without touching storage
func (s *Synchronizer) dryRunReport(tenantID uuid.UUID, channel *models.Channel, remoteJid string, candidates []Normalized, result *ItemResult) *ItemResult {
	conversation, err := s.conversations.GetByRemoteJid(tenantID, channel.ID, remoteJid)
	if err != nil && err != gorm.ErrRecordNotFound {
		result.Status = "persist_failed"
		result.Error = err.Error()
		return result
	}

	if conversation == nil {
		result.Status = StatusUnresolvedLid
		result.ConversationCreated = true
		result.WouldImport = len(candidates)
		return result
	}

	knownIDs, err := s.messages.GetExternalIDs(conversation.ID)
	if err != nil {
		result.Status = "persist_failed"
		result.Error = err.Error()
		return result
	}
	recent, err := s.messages.ListRecent(conversation.ID, s.recentWindow)
	if err != nil {
		result.Status = "persist_failed"
		result.Error = err.Error()
		return result
	}

	fresh := NewGate(knownIDs, recent).Filter(candidates)
	result.WouldImport = len(fresh)
	result.Skipped = len(candidates) - len(fresh)
	return result
}
