package sync

import (
	"testing"
	"time"

	"zapdesk/pkg/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func TestClassifyJID(t *testing.T) {
	tests := []struct {
		jid  string
		want JIDKind
	}{
		{"5511999999999@s.whatsapp.net", JIDPhone},
		{"5511999999999@c.us", JIDPhone},
		{"120363041234567890@g.us", JIDGroup},
		{"98765432101234@lid", JIDLid},
		{"status@broadcast", JIDUnknown},
		{"", JIDUnknown},
	}

	for _, tt := range tests {
		if got := ClassifyJID(tt.jid); got != tt.want {
			t.Errorf("ClassifyJID(%q) = %v, want %v", tt.jid, got, tt.want)
		}
	}
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"11 digits gets country code", "11991480719", "5511991480719", false},
		{"10 digits gets country code", "1133334444", "551133334444", false},
		{"already prefixed is a no-op", "5511991480719", "5511991480719", false},
		{"formatted input is cleaned", "+55 (11) 99148-0719", "5511991480719", false},
		{"too short", "999148", "", true},
		{"too long", "5511991480719999999", "", true},
		{"empty", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizePhone(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("NormalizePhone(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestPhoneFromJID(t *testing.T) {
	got, err := PhoneFromJID("11991480719@s.whatsapp.net")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "5511991480719" {
		t.Errorf("got %q, want 5511991480719", got)
	}

	// Device suffixes are stripped
	got, err = PhoneFromJID("5511991480719:12@s.whatsapp.net")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "5511991480719" {
		t.Errorf("got %q, want 5511991480719", got)
	}

	if _, err := PhoneFromJID("120363041234567890@g.us"); err == nil {
		t.Error("expected error for group jid")
	}
	if _, err := PhoneFromJID("98765432101234@lid"); err == nil {
		t.Error("expected error for lid jid")
	}
}

func TestIsLowQualityName(t *testing.T) {
	tests := []struct {
		name   string
		jid    string
		isLow  bool
	}{
		{"Maria Souza", "", false},
		{"5511999999999", "", true},
		{"+55 11 99999-9999", "", true},
		{"5511999999999@s.whatsapp.net", "5511999999999@s.whatsapp.net", true},
		{"", "", true},
		{"Unknown", "", true},
		{"Farmácia 24h", "", false},
	}

	for _, tt := range tests {
		if got := IsLowQualityName(tt.name, tt.jid); got != tt.isLow {
			t.Errorf("IsLowQualityName(%q) = %v, want %v", tt.name, got, tt.isLow)
		}
	}
}

func newTestResolver() (*Resolver, *fakeContacts, *fakeConversations) {
	contacts := &fakeContacts{}
	convos := &fakeConversations{}
	return NewResolver(contacts, convos, nil, zerolog.Nop()), contacts, convos
}

func TestResolvePhoneCreatesAndReuses(t *testing.T) {
	resolver, contacts, _ := newTestResolver()
	tenantID := uuid.New()

	res, err := resolver.Resolve(tenantID, "11991480719@s.whatsapp.net", "Maria Souza")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if !res.Created || res.Contact.Phone != "5511991480719" {
		t.Fatalf("unexpected resolution: %+v", res)
	}

	// Same phone through the canonical jid form must hit the same contact
	res2, err := resolver.Resolve(tenantID, "5511991480719@s.whatsapp.net", "")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if res2.Created || res2.Contact.ID != res.Contact.ID {
		t.Errorf("expected existing contact, got %+v", res2)
	}
	if len(contacts.contacts) != 1 {
		t.Errorf("expected 1 contact, got %d", len(contacts.contacts))
	}
}

func TestNameRepairIsIdempotent(t *testing.T) {
	resolver, contacts, _ := newTestResolver()
	tenantID := uuid.New()

	contact := &models.Contact{
		Name:      "5511999999999",
		Phone:     "5511999999999",
		RemoteJid: "5511999999999@s.whatsapp.net",
	}
	contact.TenantID = tenantID
	if err := contacts.Create(contact); err != nil {
		t.Fatal(err)
	}

	if err := resolver.RepairName(contact, "Maria Souza"); err != nil {
		t.Fatalf("repair failed: %v", err)
	}
	if contact.Name != "Maria Souza" {
		t.Fatalf("name = %q, want Maria Souza", contact.Name)
	}
	if len(contact.Metadata.PreviousNames) != 1 || contact.Metadata.PreviousNames[0] != "5511999999999" {
		t.Errorf("previous names not recorded: %+v", contact.Metadata.PreviousNames)
	}

	updatesAfterRepair := contacts.updates
	if err := resolver.RepairName(contact, "Maria Souza"); err != nil {
		t.Fatalf("second repair failed: %v", err)
	}
	if contact.Name != "Maria Souza" || contacts.updates != updatesAfterRepair {
		t.Error("second repair pass with no new data must be a no-op")
	}

	// A good name is never downgraded
	if err := resolver.RepairName(contact, "5511888888888"); err != nil {
		t.Fatalf("repair failed: %v", err)
	}
	if contact.Name != "Maria Souza" {
		t.Errorf("name was downgraded to %q", contact.Name)
	}
}

func TestResolveLidByExactName(t *testing.T) {
	resolver, contacts, _ := newTestResolver()
	tenantID := uuid.New()

	phoneContact := &models.Contact{
		Name:      "Maria Souza",
		Phone:     "5511991480719",
		RemoteJid: "5511991480719@s.whatsapp.net",
	}
	phoneContact.TenantID = tenantID
	if err := contacts.Create(phoneContact); err != nil {
		t.Fatal(err)
	}

	res, err := resolver.Resolve(tenantID, "98765432101234@lid", "Maria Souza")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if res.Status != StatusLidMatched {
		t.Fatalf("status = %q, want %q", res.Status, StatusLidMatched)
	}
	if res.Contact.ID != phoneContact.ID {
		t.Fatal("lid did not resolve to the phone contact")
	}
	if res.Contact.Metadata.LIDResolvedFrom != "98765432101234@lid" {
		t.Error("mapping provenance not persisted")
	}

	// The persisted mapping short-circuits the heuristic on the next sync
	res2, err := resolver.Resolve(tenantID, "98765432101234@lid", "Maria Souza")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if res2.Status != StatusResolved || res2.Contact.ID != phoneContact.ID {
		t.Errorf("expected mapped resolution, got %+v", res2)
	}
}

func TestResolveLidUnmatchedStaysDegraded(t *testing.T) {
	resolver, contacts, _ := newTestResolver()
	tenantID := uuid.New()

	res, err := resolver.Resolve(tenantID, "98765432101234@lid", "Cliente Novo")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if res.Status != StatusUnresolvedLid {
		t.Fatalf("status = %q, want %q", res.Status, StatusUnresolvedLid)
	}
	if res.Contact.Phone != "" {
		t.Error("unmatched lid contact must stay phone-less")
	}
	if res.Contact.RemoteJid != "98765432101234@lid" {
		t.Error("degraded contact must be keyed by its lid")
	}
	if len(contacts.contacts) != 1 {
		t.Errorf("expected 1 contact, got %d", len(contacts.contacts))
	}
}

func TestMergeByPhoneIsIdempotent(t *testing.T) {
	resolver, contacts, convos := newTestResolver()
	tenantID := uuid.New()
	channelID := uuid.New()

	older := &models.Contact{Name: "Maria Souza", Phone: "5511991480719"}
	older.TenantID = tenantID
	newer := &models.Contact{Name: "5511991480719", Phone: "5511991480719"}
	newer.TenantID = tenantID
	if err := contacts.Create(older); err != nil {
		t.Fatal(err)
	}
	if err := contacts.Create(newer); err != nil {
		t.Fatal(err)
	}

	conv := &models.Conversation{ContactID: newer.ID, ChannelID: channelID}
	conv.TenantID = tenantID
	if err := convos.Create(conv); err != nil {
		t.Fatal(err)
	}

	primary, err := resolver.MergeByPhone(tenantID, older, newer)
	if err != nil {
		t.Fatalf("merge failed: %v", err)
	}
	if primary.ID != older.ID {
		t.Fatal("earlier-created contact must stay primary")
	}
	if len(contacts.contacts) != 1 {
		t.Fatalf("duplicate not removed, %d contacts remain", len(contacts.contacts))
	}
	if convos.convos[0].ContactID != older.ID {
		t.Fatal("conversation not reassigned to primary")
	}

	// Running the merge again on the same data is a no-op
	if _, err := resolver.MergeByPhone(tenantID, primary, primary); err != nil {
		t.Fatalf("repeat merge failed: %v", err)
	}
	if len(contacts.contacts) != 1 || convos.convos[0].ContactID != older.ID {
		t.Error("repeat merge changed state")
	}
}

func TestResolvePhoneFlagsSecondJidClaim(t *testing.T) {
	resolver, contacts, _ := newTestResolver()
	tenantID := uuid.New()

	existing := &models.Contact{
		Name:      "Maria Souza",
		Phone:     "5511991480719",
		RemoteJid: "5511991480719@s.whatsapp.net",
	}
	existing.ID = uuid.New()
	existing.TenantID = tenantID
	contacts.contacts = append(contacts.contacts, existing)

	// Same number arriving under the legacy domain counts as a second
	// identity claiming the phone
	res, err := resolver.Resolve(tenantID, "5511991480719@c.us", "Maria S")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if res.Status != StatusPhoneExists {
		t.Fatalf("status = %q, want %q", res.Status, StatusPhoneExists)
	}
	if res.Contact.ID != existing.ID {
		t.Error("ambiguous phone must still attribute to the existing contact")
	}
	if existing.RemoteJid != "5511991480719@s.whatsapp.net" {
		t.Errorf("jid was rebound to %q", existing.RemoteJid)
	}
}

func TestMergePublishesContactMerged(t *testing.T) {
	contacts := &fakeContacts{}
	convos := &fakeConversations{}
	sink := &captureSink{}
	resolver := NewResolver(contacts, convos, sink, zerolog.Nop())
	tenantID := uuid.New()

	older := &models.Contact{Name: "Maria Souza", Phone: "5511991480719"}
	older.ID = uuid.New()
	older.TenantID = tenantID
	older.CreatedAt = time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	newer := &models.Contact{Name: "Maria", Phone: "5511991480719"}
	newer.ID = uuid.New()
	newer.TenantID = tenantID
	newer.CreatedAt = time.Date(2026, 2, 5, 0, 0, 0, 0, time.UTC)
	contacts.contacts = append(contacts.contacts, older, newer)

	primary, err := resolver.MergeByPhone(tenantID, newer, older)
	if err != nil {
		t.Fatalf("merge failed: %v", err)
	}
	if primary.ID != older.ID {
		t.Error("merge must keep the earlier contact")
	}
	if len(sink.published) != 1 || sink.published[0] != "contact.merged" {
		t.Errorf("published = %v, want one contact.merged", sink.published)
	}
}
