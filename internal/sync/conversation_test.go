package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"zapdesk/internal/evolution"
	"zapdesk/pkg/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type syncFixture struct {
	tenantID uuid.UUID
	channel  *models.Channel
	gateway  *fakeGateway
	contacts *fakeContacts
	convos   *fakeConversations
	messages *fakeMessages
	sync     *Synchronizer
}

func newSyncFixture() *syncFixture {
	tenantID := uuid.New()
	channel := &models.Channel{Name: "Loja", InstanceName: "shop-01"}
	channel.ID = uuid.New()
	channel.TenantID = tenantID

	gateway := &fakeGateway{
		findMsgs:  map[string][]evolution.RawMessage{},
		fetchMsgs: map[string][]evolution.RawMessage{},
	}
	contacts := &fakeContacts{}
	convos := &fakeConversations{}
	messages := &fakeMessages{}
	resolver := NewResolver(contacts, convos, nil, zerolog.Nop())

	return &syncFixture{
		tenantID: tenantID,
		channel:  channel,
		gateway:  gateway,
		contacts: contacts,
		convos:   convos,
		messages: messages,
		sync:     NewSynchronizer(gateway, convos, messages, resolver, 100, 200, zerolog.Nop()),
	}
}

func TestSyncChatImportsAndIsIdempotent(t *testing.T) {
	f := newSyncFixture()
	jid := "5511991480719@s.whatsapp.net"
	f.gateway.findMsgs[jid] = []evolution.RawMessage{
		rawText("M1", jid, 1700000000, false, "oi, vocês entregam hoje?"),
		rawText("M2", jid, 1700000100, true, "entregamos sim!"),
		rawText("M3", jid, 1700000200, false, "ótimo, obrigado"),
	}

	result := f.sync.SyncChat(context.Background(), f.tenantID, f.channel, jid, "Maria Souza", false)
	if result.Error != "" {
		t.Fatalf("sync failed: %s", result.Error)
	}
	if result.Imported != 3 {
		t.Fatalf("imported = %d, want 3", result.Imported)
	}
	if !result.ContactCreated || !result.ConversationCreated {
		t.Errorf("expected contact and conversation creation: %+v", result)
	}
	if len(f.messages.msgs) != 3 {
		t.Fatalf("persisted %d messages, want 3", len(f.messages.msgs))
	}

	// Sender mapping and provenance
	for _, m := range f.messages.msgs {
		if m.Metadata.ImportedBy != "history_sync" {
			t.Errorf("missing import provenance: %+v", m.Metadata)
		}
	}
	if f.messages.msgs[1].SenderType != "agent" || f.messages.msgs[0].SenderType != "user" {
		t.Error("fromMe flag not mapped to sender type")
	}

	// A second run against the unchanged remote chat imports nothing
	again := f.sync.SyncChat(context.Background(), f.tenantID, f.channel, jid, "Maria Souza", false)
	if again.Error != "" {
		t.Fatalf("second sync failed: %s", again.Error)
	}
	if again.Imported != 0 {
		t.Fatalf("second run imported %d, want 0", again.Imported)
	}
	if again.Skipped != 3 {
		t.Errorf("second run skipped %d, want 3", again.Skipped)
	}
	if len(f.messages.msgs) != 3 {
		t.Fatalf("second run grew storage to %d messages", len(f.messages.msgs))
	}
}

func TestSyncChatRecencyInvariant(t *testing.T) {
	f := newSyncFixture()
	jid := "5511991480719@s.whatsapp.net"

	t0 := time.Unix(1699999000, 0).UTC()
	t1, t2, t3 := int64(1700000000), int64(1700000100), int64(1700000200)

	// Conversation exists with an older recency marker
	contact := &models.Contact{Name: "Maria Souza", Phone: "5511991480719", RemoteJid: jid}
	contact.TenantID = f.tenantID
	if err := f.contacts.Create(contact); err != nil {
		t.Fatal(err)
	}
	conv := &models.Conversation{
		ContactID: contact.ID,
		ChannelID: f.channel.ID,
		Metadata:  models.ConversationMetadata{RemoteJid: jid, InstanceName: f.channel.InstanceName},
	}
	conv.TenantID = f.tenantID
	conv.LastMessageAt = &t0
	if err := f.convos.Create(conv); err != nil {
		t.Fatal(err)
	}

	f.gateway.findMsgs[jid] = []evolution.RawMessage{
		rawText("M1", jid, t1, false, "primeira"),
		rawText("M3", jid, t3, false, "terceira"),
		rawText("M2", jid, t2, false, "segunda"),
	}

	result := f.sync.SyncChat(context.Background(), f.tenantID, f.channel, jid, "Maria Souza", false)
	if result.Error != "" {
		t.Fatalf("sync failed: %s", result.Error)
	}
	if result.ConversationCreated {
		t.Error("existing conversation must be reused")
	}

	want := time.Unix(t3, 0).UTC()
	if conv.LastMessageAt == nil || !conv.LastMessageAt.Equal(want) {
		t.Fatalf("last_message_at = %v, want %v", conv.LastMessageAt, want)
	}

	// Messages keep the gateway send time, not the import time
	for _, m := range f.messages.msgs {
		if m.CreatedAt.After(time.Unix(t3, 0)) {
			t.Errorf("message created_at %v is later than newest gateway timestamp", m.CreatedAt)
		}
	}
}

func TestSyncChatFallsBackToLegacyEndpoint(t *testing.T) {
	f := newSyncFixture()
	jid := "5511991480719@s.whatsapp.net"

	f.gateway.findErr = errors.New("boom")
	f.gateway.fetchMsgs[jid] = []evolution.RawMessage{
		rawText("M1", jid, 1700000000, false, "via endpoint legado"),
	}

	result := f.sync.SyncChat(context.Background(), f.tenantID, f.channel, jid, "Maria", false)
	if result.Error != "" {
		t.Fatalf("sync failed: %s", result.Error)
	}
	if result.Imported != 1 {
		t.Fatalf("imported = %d, want 1", result.Imported)
	}
	if f.gateway.findCalls != 1 || f.gateway.fetchCalls != 1 {
		t.Errorf("fallback not exercised: find=%d fetch=%d", f.gateway.findCalls, f.gateway.fetchCalls)
	}
}

func TestSyncChatFallsBackOnEmptyPayload(t *testing.T) {
	f := newSyncFixture()
	jid := "5511991480719@s.whatsapp.net"

	// Primary endpoint answers but with nothing; fallback has the data
	f.gateway.findMsgs[jid] = nil
	f.gateway.fetchMsgs[jid] = []evolution.RawMessage{
		rawText("M1", jid, 1700000000, false, "oi"),
	}

	result := f.sync.SyncChat(context.Background(), f.tenantID, f.channel, jid, "Maria", false)
	if result.Imported != 1 {
		t.Fatalf("imported = %d, want 1 (error: %s)", result.Imported, result.Error)
	}
}

func TestSyncChatBothEndpointsFail(t *testing.T) {
	f := newSyncFixture()
	jid := "5511991480719@s.whatsapp.net"
	f.gateway.findErr = errors.New("primary down")
	f.gateway.fetchErr = errors.New("legacy down")

	result := f.sync.SyncChat(context.Background(), f.tenantID, f.channel, jid, "Maria", false)
	if result.Status != "fetch_failed" || result.Error == "" {
		t.Fatalf("expected fetch_failed, got %+v", result)
	}
	if len(f.contacts.contacts) != 0 {
		t.Error("no contact may be created when nothing could be fetched")
	}
}

func TestSyncChatDryRunMutatesNothing(t *testing.T) {
	f := newSyncFixture()
	jid := "5511991480719@s.whatsapp.net"
	f.gateway.findMsgs[jid] = []evolution.RawMessage{
		rawText("M1", jid, 1700000000, false, "oi"),
		rawText("M2", jid, 1700000100, false, "tudo bem?"),
	}

	result := f.sync.SyncChat(context.Background(), f.tenantID, f.channel, jid, "Maria", true)
	if result.Error != "" {
		t.Fatalf("dry run failed: %s", result.Error)
	}
	if result.WouldImport != 2 {
		t.Errorf("wouldImport = %d, want 2", result.WouldImport)
	}
	if len(f.contacts.contacts) != 0 || len(f.convos.convos) != 0 || len(f.messages.msgs) != 0 {
		t.Error("dry run must not write anything")
	}
}

func TestSyncConversationByID(t *testing.T) {
	f := newSyncFixture()
	jid := "5511991480719@s.whatsapp.net"

	contact := &models.Contact{Name: "Maria Souza", Phone: "5511991480719", RemoteJid: jid}
	contact.TenantID = f.tenantID
	if err := f.contacts.Create(contact); err != nil {
		t.Fatal(err)
	}
	conv := &models.Conversation{
		ContactID: contact.ID,
		ChannelID: f.channel.ID,
		Contact:   contact,
		Metadata:  models.ConversationMetadata{RemoteJid: jid},
	}
	conv.TenantID = f.tenantID
	if err := f.convos.Create(conv); err != nil {
		t.Fatal(err)
	}

	f.gateway.findMsgs[jid] = []evolution.RawMessage{
		rawText("M1", jid, 1700000000, false, "oi"),
	}

	result := f.sync.SyncConversation(context.Background(), f.tenantID, f.channel, conv.ID, false)
	if result.Error != "" {
		t.Fatalf("sync failed: %s", result.Error)
	}
	if result.Imported != 1 {
		t.Errorf("imported = %d, want 1", result.Imported)
	}

	missing := f.sync.SyncConversation(context.Background(), f.tenantID, f.channel, uuid.New(), false)
	if missing.Status != "not_found" {
		t.Errorf("expected not_found for unknown conversation, got %+v", missing)
	}
}
