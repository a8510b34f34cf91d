package sync

import (
	"context"
	"fmt"
	"strings"

	"zapdesk/internal/events"
	"zapdesk/pkg/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// JID domain suffixes used by the gateway
const (
	phoneDomain       = "@s.whatsapp.net"
	legacyPhoneDomain = "@c.us"
	groupDomain       = "@g.us"
	lidDomain         = "@lid"
)

// JIDKind classifies a gateway chat address
type JIDKind int

const (
	JIDUnknown JIDKind = iota
	JIDPhone
	JIDGroup
	JIDLid
)

// ClassifyJID returns the addressing scheme of a remote JID
func ClassifyJID(jid string) JIDKind {
	switch {
	case strings.HasSuffix(jid, phoneDomain), strings.HasSuffix(jid, legacyPhoneDomain):
		return JIDPhone
	case strings.HasSuffix(jid, groupDomain):
		return JIDGroup
	case strings.HasSuffix(jid, lidDomain):
		return JIDLid
	default:
		return JIDUnknown
	}
}

// NormalizePhone validates a raw digit string and applies the local-format
// heuristic: 10 or 11 digit numbers get the Brazilian country code prefixed.
// Already-prefixed numbers pass through unchanged.
func NormalizePhone(digits string) (string, error) {
	var b strings.Builder
	for _, r := range digits {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	clean := b.String()

	if len(clean) < 10 || len(clean) > 15 {
		return "", fmt.Errorf("phone %q has %d digits, expected 10-15", digits, len(clean))
	}
	if len(clean) == 10 || len(clean) == 11 {
		return "55" + clean, nil
	}
	return clean, nil
}

// PhoneFromJID extracts and normalizes the phone number of a phone JID.
// Group and LID addresses carry no recoverable phone.
func PhoneFromJID(jid string) (string, error) {
	if ClassifyJID(jid) != JIDPhone {
		return "", fmt.Errorf("jid %q is not a phone address", jid)
	}
	at := strings.Index(jid, "@")
	if at <= 0 {
		return "", fmt.Errorf("jid %q has no local part", jid)
	}
	// Strip the device suffix some gateways append (":12")
	local := jid[:at]
	if colon := strings.Index(local, ":"); colon >= 0 {
		local = local[:colon]
	}
	return NormalizePhone(local)
}

// IsLowQualityName reports whether a contact name is a placeholder that
// should be replaced when a better name becomes available
func IsLowQualityName(name, remoteJid string) bool {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" || trimmed == remoteJid {
		return true
	}
	switch strings.ToLower(trimmed) {
	case "unknown", "desconhecido", "whatsapp user", "contato":
		return true
	}
	numeric := true
	for _, r := range trimmed {
		if (r < '0' || r > '9') && r != '+' && r != ' ' && r != '-' {
			numeric = false
			break
		}
	}
	return numeric
}

// Resolution statuses reported per chat for operator review
const (
	StatusResolved      = "resolved"
	StatusCreated       = "created"
	StatusLidMatched    = "lid_matched"
	StatusUnresolvedLid = "missing_in_db"
	StatusPhoneExists   = "phone_exists"
)

// ContactStore is the contact persistence surface the resolver needs
type ContactStore interface {
	GetByRemoteJid(tenantID uuid.UUID, remoteJid string) (*models.Contact, error)
	GetByPhone(tenantID uuid.UUID, phone string) (*models.Contact, error)
	GetByResolvedLID(tenantID uuid.UUID, lid string) (*models.Contact, error)
	FindByName(tenantID uuid.UUID, name string) ([]models.Contact, error)
	SearchByName(tenantID uuid.UUID, term string, limit int) ([]models.Contact, error)
	Create(contact *models.Contact) error
	Update(contact *models.Contact) error
	HardDelete(id, tenantID uuid.UUID) error
}

// ConversationReassigner moves conversations between contacts during merge
type ConversationReassigner interface {
	ReassignContact(tenantID, fromContactID, toContactID uuid.UUID) (int64, error)
}

// Resolution is the outcome of resolving one remote identifier
type Resolution struct {
	Contact *models.Contact
	Status  string
	Created bool
}

// Resolver maps remote chat identifiers to local contacts. All lookup state
// is scoped to the resolver instance, never process-wide.
type Resolver struct {
	contacts      ContactStore
	conversations ConversationReassigner
	events        EventSink
	log           zerolog.Logger
}

// NewResolver creates an identity resolver. events may be nil when no broker
// is configured.
func NewResolver(contacts ContactStore, conversations ConversationReassigner, events EventSink, log zerolog.Logger) *Resolver {
	return &Resolver{contacts: contacts, conversations: conversations, events: events, log: log}
}

// Resolve returns the local contact for a remote JID, creating or merging
// records as needed. pushName is the display name hint from the gateway.
func (r *Resolver) Resolve(tenantID uuid.UUID, remoteJid, pushName string) (*Resolution, error) {
	switch ClassifyJID(remoteJid) {
	case JIDPhone:
		return r.resolvePhone(tenantID, remoteJid, pushName)
	case JIDGroup:
		return r.resolveGroup(tenantID, remoteJid, pushName)
	case JIDLid:
		return r.resolveLid(tenantID, remoteJid, pushName)
	default:
		return nil, fmt.Errorf("unsupported jid %q", remoteJid)
	}
}

func (r *Resolver) resolvePhone(tenantID uuid.UUID, remoteJid, pushName string) (*Resolution, error) {
	phone, err := PhoneFromJID(remoteJid)
	if err != nil {
		return nil, err
	}

	contact, err := r.contacts.GetByPhone(tenantID, phone)
	if err != nil && err != gorm.ErrRecordNotFound {
		return nil, err
	}
	if contact != nil {
		if err := r.RepairName(contact, pushName); err != nil {
			return nil, err
		}
		if contact.RemoteJid == "" {
			contact.RemoteJid = remoteJid
			if err := r.contacts.Update(contact); err != nil {
				return nil, err
			}
		} else if contact.RemoteJid != remoteJid {
			// The phone is already bound to a different jid: two remote
			// identities now claim one number. Keep attributing to the
			// existing contact but surface the ambiguity for operator
			// review instead of rebinding.
			return &Resolution{Contact: contact, Status: StatusPhoneExists}, nil
		}
		return &Resolution{Contact: contact, Status: StatusResolved}, nil
	}

	// A phone-less record keyed by this jid may predate phone resolution
	existing, err := r.contacts.GetByRemoteJid(tenantID, remoteJid)
	if err != nil && err != gorm.ErrRecordNotFound {
		return nil, err
	}
	if existing != nil {
		existing.Phone = phone
		if err := r.RepairName(existing, pushName); err != nil {
			return nil, err
		}
		if err := r.contacts.Update(existing); err != nil {
			return nil, err
		}
		return &Resolution{Contact: existing, Status: StatusResolved}, nil
	}

	name := pushName
	if name == "" {
		name = phone
	}
	contact = &models.Contact{
		BaseTenantModel: models.BaseTenantModel{TenantID: tenantID},
		Name:            name,
		Phone:           phone,
		RemoteJid:       remoteJid,
	}
	if err := r.contacts.Create(contact); err != nil {
		return nil, err
	}
	return &Resolution{Contact: contact, Status: StatusCreated, Created: true}, nil
}

func (r *Resolver) resolveGroup(tenantID uuid.UUID, remoteJid, pushName string) (*Resolution, error) {
	contact, err := r.contacts.GetByRemoteJid(tenantID, remoteJid)
	if err != nil && err != gorm.ErrRecordNotFound {
		return nil, err
	}
	if contact != nil {
		if err := r.RepairName(contact, pushName); err != nil {
			return nil, err
		}
		return &Resolution{Contact: contact, Status: StatusResolved}, nil
	}

	name := pushName
	if name == "" {
		name = remoteJid
	}
	contact = &models.Contact{
		BaseTenantModel: models.BaseTenantModel{TenantID: tenantID},
		Name:            name,
		RemoteJid:       remoteJid,
		IsGroup:         true,
	}
	if err := r.contacts.Create(contact); err != nil {
		return nil, err
	}
	return &Resolution{Contact: contact, Status: StatusCreated, Created: true}, nil
}

func (r *Resolver) resolveLid(tenantID uuid.UUID, remoteJid, pushName string) (*Resolution, error) {
	// A previously persisted mapping wins over any heuristic
	mapped, err := r.contacts.GetByResolvedLID(tenantID, remoteJid)
	if err != nil && err != gorm.ErrRecordNotFound {
		return nil, err
	}
	if mapped != nil {
		return &Resolution{Contact: mapped, Status: StatusResolved}, nil
	}

	degraded, err := r.contacts.GetByRemoteJid(tenantID, remoteJid)
	if err != nil && err != gorm.ErrRecordNotFound {
		return nil, err
	}
	if degraded != nil && degraded.Phone != "" {
		return &Resolution{Contact: degraded, Status: StatusResolved}, nil
	}

	if pushName != "" && !IsLowQualityName(pushName, remoteJid) {
		match, matchKind, err := r.matchByName(tenantID, pushName)
		if err != nil {
			return nil, err
		}
		if match != nil {
			match.Metadata.LIDResolvedFrom = remoteJid
			match.Metadata.ResolvedBy = matchKind
			if err := r.contacts.Update(match); err != nil {
				return nil, err
			}
			if degraded != nil {
				if err := r.merge(tenantID, match, degraded); err != nil {
					return nil, err
				}
			}
			r.log.Info().
				Str("lid", remoteJid).
				Str("phone", match.Phone).
				Str("matched_by", matchKind).
				Msg("🔗 LID resolved to phone contact")
			return &Resolution{Contact: match, Status: StatusLidMatched}, nil
		}
	}

	if degraded != nil {
		if err := r.RepairName(degraded, pushName); err != nil {
			return nil, err
		}
		return &Resolution{Contact: degraded, Status: StatusUnresolvedLid}, nil
	}

	// Degraded state: a phone-less contact keyed by its lid address
	name := pushName
	if name == "" {
		name = remoteJid
	}
	contact := &models.Contact{
		BaseTenantModel: models.BaseTenantModel{TenantID: tenantID},
		Name:            name,
		RemoteJid:       remoteJid,
	}
	if err := r.contacts.Create(contact); err != nil {
		return nil, err
	}
	return &Resolution{Contact: contact, Status: StatusUnresolvedLid, Created: true}, nil
}

// matchByName finds a phone contact whose name matches the LID display name.
// Exact matches are applied only when unambiguous; partial matches require a
// shared token of at least four characters.
func (r *Resolver) matchByName(tenantID uuid.UUID, name string) (*models.Contact, string, error) {
	exact, err := r.contacts.FindByName(tenantID, name)
	if err != nil {
		return nil, "", err
	}
	if len(exact) == 1 {
		return &exact[0], "exact_name", nil
	}
	if len(exact) > 1 {
		// Ambiguous, leave for the operator
		return nil, "", nil
	}

	tokens := nameTokens(name)
	if len(tokens) == 0 {
		return nil, "", nil
	}
	candidates, err := r.contacts.SearchByName(tenantID, tokens[0], 2)
	if err != nil {
		return nil, "", err
	}
	if len(candidates) == 1 {
		return &candidates[0], "partial_name", nil
	}
	return nil, "", nil
}

func nameTokens(name string) []string {
	var tokens []string
	for _, t := range strings.Fields(name) {
		if len(t) >= 4 {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

// MergeByPhone collapses two contacts that share a normalized phone: the
// earlier-created one stays primary, the duplicate's conversations are
// reassigned, the duplicate is removed. Safe to run repeatedly.
func (r *Resolver) MergeByPhone(tenantID uuid.UUID, a, b *models.Contact) (*models.Contact, error) {
	primary, duplicate := a, b
	if b.CreatedAt.Before(a.CreatedAt) {
		primary, duplicate = b, a
	}
	if err := r.merge(tenantID, primary, duplicate); err != nil {
		return nil, err
	}
	return primary, nil
}

func (r *Resolver) merge(tenantID uuid.UUID, primary, duplicate *models.Contact) error {
	if primary.ID == duplicate.ID {
		return nil
	}

	moved, err := r.conversations.ReassignContact(tenantID, duplicate.ID, primary.ID)
	if err != nil {
		return err
	}

	if IsLowQualityName(primary.Name, primary.RemoteJid) && !IsLowQualityName(duplicate.Name, duplicate.RemoteJid) {
		if err := r.RepairName(primary, duplicate.Name); err != nil {
			return err
		}
	}

	if err := r.contacts.HardDelete(duplicate.ID, tenantID); err != nil {
		return err
	}

	r.log.Info().
		Str("primary", primary.ID.String()).
		Str("duplicate", duplicate.ID.String()).
		Int64("conversations_moved", moved).
		Msg("🔀 Merged duplicate contacts")

	if r.events != nil {
		payload := map[string]interface{}{
			"tenantId":           tenantID,
			"primaryId":          primary.ID,
			"duplicateId":        duplicate.ID,
			"conversationsMoved": moved,
		}
		if err := r.events.Publish(context.Background(), events.KeyContactMerged, payload); err != nil {
			r.log.Warn().Err(err).Msg("Failed to publish contact.merged event")
		}
	}
	return nil
}

// RepairName upgrades a low-quality contact name when a better one is
// available. Names are never downgraded; the old name is kept in metadata.
func (r *Resolver) RepairName(contact *models.Contact, candidate string) error {
	if candidate == "" || candidate == contact.Name {
		return nil
	}
	if IsLowQualityName(candidate, contact.RemoteJid) {
		return nil
	}
	if !IsLowQualityName(contact.Name, contact.RemoteJid) {
		return nil
	}

	contact.Metadata.PreviousNames = append(contact.Metadata.PreviousNames, contact.Name)
	contact.Name = candidate
	return r.contacts.Update(contact)
}
