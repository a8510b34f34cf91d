package sync

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"zapdesk/internal/evolution"
	"zapdesk/pkg/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func mediaMessage(tenantID, convID uuid.UUID, externalID string) *models.Message {
	m := &models.Message{
		ConversationID: convID,
		Content:        "[Image]",
		MediaType:      "image",
		Metadata: models.MessageMetadata{
			ExternalID: externalID,
			MessageID:  externalID,
			Attachment: &models.Attachment{
				Type:     "image",
				URL:      "https://mmg.whatsapp.net/d/f/expired-blob",
				MimeType: "image/jpeg",
			},
		},
	}
	m.ID = uuid.New()
	m.TenantID = tenantID
	return m
}

func newRepairFixture() (*RepairWorker, *fakeGateway, *fakeMessages, *fakeBlobs, *models.Channel) {
	gateway := &fakeGateway{media: map[string]*evolution.MediaPayload{}}
	messages := &fakeMessages{}
	blobs := &fakeBlobs{}
	channel := &models.Channel{InstanceName: "shop-01"}
	channel.ID = uuid.New()
	worker := NewRepairWorker(gateway, messages, blobs, zerolog.Nop())
	return worker, gateway, messages, blobs, channel
}

func TestRepairRecoversMedia(t *testing.T) {
	worker, gateway, messages, blobs, channel := newRepairFixture()
	tenantID, convID := uuid.New(), uuid.New()

	msg := mediaMessage(tenantID, convID, "MEDIA1")
	messages.msgs = append(messages.msgs, msg)
	gateway.media["MEDIA1"] = &evolution.MediaPayload{
		Base64:   base64.StdEncoding.EncodeToString([]byte("jpeg bytes")),
		MimeType: "image/jpeg",
	}

	report, err := worker.RepairConversation(context.Background(), convID, channel, 10, false)
	if err != nil {
		t.Fatalf("repair failed: %v", err)
	}
	if report.Recovered != 1 || report.MarkedUnavailable != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if blobs.uploads != 1 {
		t.Errorf("uploads = %d, want 1", blobs.uploads)
	}

	stored := messages.msgs[0]
	if stored.Metadata.Attachment == nil || !strings.HasPrefix(stored.Metadata.Attachment.URL, "https://media.zapdesk.example/") {
		t.Fatalf("attachment not rewritten: %+v", stored.Metadata.Attachment)
	}
	if stored.Metadata.MediaUnavailable != nil {
		t.Error("recovered message must not carry an unavailable marker")
	}

	// The rewritten URL no longer matches the candidate filter, so the next
	// pass has nothing to do
	again, err := worker.RepairConversation(context.Background(), convID, channel, 10, false)
	if err != nil {
		t.Fatal(err)
	}
	if again.Scanned != 0 {
		t.Errorf("second pass scanned %d, want 0", again.Scanned)
	}
}

func TestRepairMarksUnavailableTerminally(t *testing.T) {
	worker, gateway, messages, _, channel := newRepairFixture()
	tenantID, convID := uuid.New(), uuid.New()

	messages.msgs = append(messages.msgs, mediaMessage(tenantID, convID, "GONE1"))
	gateway.mediaErr = errors.New("media not found")

	report, err := worker.RepairConversation(context.Background(), convID, channel, 10, false)
	if err != nil {
		t.Fatalf("repair failed: %v", err)
	}
	if report.MarkedUnavailable != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}

	stored := messages.msgs[0]
	if stored.Metadata.MediaUnavailable == nil || stored.Metadata.MediaUnavailable.Reason == "" {
		t.Fatal("unavailable marker missing")
	}
	if stored.Metadata.MediaUnavailable.MarkedAt.IsZero() {
		t.Error("unavailable marker has no timestamp")
	}

	// Terminal: the next pass must not retry the marked message
	mediaCallsBefore := gateway.mediaCalls
	again, err := worker.RepairConversation(context.Background(), convID, channel, 10, false)
	if err != nil {
		t.Fatal(err)
	}
	if again.Scanned != 0 || gateway.mediaCalls != mediaCallsBefore {
		t.Error("marked-unavailable message was retried")
	}
}

func TestRepairRejectsOversizedMedia(t *testing.T) {
	worker, gateway, messages, blobs, channel := newRepairFixture()
	worker.maxMediaBytes = 8

	tenantID, convID := uuid.New(), uuid.New()
	messages.msgs = append(messages.msgs, mediaMessage(tenantID, convID, "BIG1"))
	gateway.media["BIG1"] = &evolution.MediaPayload{
		Base64:   base64.StdEncoding.EncodeToString([]byte("way more than eight bytes")),
		MimeType: "video/mp4",
	}

	report, err := worker.RepairConversation(context.Background(), convID, channel, 10, false)
	if err != nil {
		t.Fatal(err)
	}
	if report.MarkedUnavailable != 1 || blobs.uploads != 0 {
		t.Fatalf("oversized media not rejected: %+v", report)
	}
	if !strings.Contains(messages.msgs[0].Metadata.MediaUnavailable.Reason, "too large") {
		t.Errorf("reason = %q", messages.msgs[0].Metadata.MediaUnavailable.Reason)
	}
}

func TestRepairDryRunMutatesNothing(t *testing.T) {
	worker, gateway, messages, blobs, channel := newRepairFixture()
	tenantID, convID := uuid.New(), uuid.New()

	messages.msgs = append(messages.msgs, mediaMessage(tenantID, convID, "MEDIA1"))
	messages.msgs = append(messages.msgs, mediaMessage(tenantID, convID, "GONE1"))
	gateway.media["MEDIA1"] = &evolution.MediaPayload{
		Base64:   base64.StdEncoding.EncodeToString([]byte("jpeg bytes")),
		MimeType: "image/jpeg",
	}

	report, err := worker.RepairConversation(context.Background(), convID, channel, 10, true)
	if err != nil {
		t.Fatal(err)
	}
	if !report.DryRun || report.Recovered != 1 || report.MarkedUnavailable != 1 {
		t.Fatalf("unexpected dry-run report: %+v", report)
	}
	if blobs.uploads != 0 {
		t.Error("dry run uploaded media")
	}
	for _, m := range messages.msgs {
		if m.Metadata.MediaUnavailable != nil {
			t.Error("dry run wrote an unavailable marker")
		}
		if !strings.Contains(m.Metadata.Attachment.URL, ".whatsapp.net") {
			t.Error("dry run rewrote an attachment")
		}
	}
}

func TestRepairHandlesDataURIPrefix(t *testing.T) {
	worker, gateway, messages, _, channel := newRepairFixture()
	tenantID, convID := uuid.New(), uuid.New()

	messages.msgs = append(messages.msgs, mediaMessage(tenantID, convID, "MEDIA1"))
	gateway.media["MEDIA1"] = &evolution.MediaPayload{
		Base64:   "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString([]byte("jpeg bytes")),
		MimeType: "image/jpeg",
	}

	report, err := worker.RepairConversation(context.Background(), convID, channel, 10, false)
	if err != nil {
		t.Fatal(err)
	}
	if report.Recovered != 1 {
		t.Fatalf("data-uri payload not recovered: %+v", report)
	}
}

func TestRepairScansBarePlaceholders(t *testing.T) {
	worker, gateway, messages, blobs, channel := newRepairFixture()
	tenantID, convID := uuid.New(), uuid.New()

	// Degraded import: the gateway payload carried no URL, so the message
	// landed as a placeholder with no attachment at all.
	msg := &models.Message{
		ConversationID: convID,
		Content:        "[Audio]",
		MediaType:      "audio",
		Metadata: models.MessageMetadata{
			ExternalID: "AUDIO1",
			MessageID:  "AUDIO1",
		},
	}
	msg.ID = uuid.New()
	msg.TenantID = tenantID
	messages.msgs = append(messages.msgs, msg)
	gateway.media["AUDIO1"] = &evolution.MediaPayload{
		Base64:   base64.StdEncoding.EncodeToString([]byte("ogg bytes")),
		MimeType: "audio/ogg",
	}

	report, err := worker.RepairConversation(context.Background(), convID, channel, 10, false)
	if err != nil {
		t.Fatalf("repair failed: %v", err)
	}
	if report.Scanned != 1 || report.Recovered != 1 {
		t.Fatalf("bare placeholder not repaired: %+v", report)
	}
	if blobs.uploads != 1 {
		t.Errorf("uploads = %d, want 1", blobs.uploads)
	}
	if att := messages.msgs[0].Metadata.Attachment; att == nil || att.Type != "audio" {
		t.Fatalf("attachment not written: %+v", att)
	}
}

func TestRepairMarksBarePlaceholderUnavailable(t *testing.T) {
	worker, _, messages, _, channel := newRepairFixture()
	convID := uuid.New()

	msg := &models.Message{
		ConversationID: convID,
		Content:        "[Video]",
		MediaType:      "video",
		Metadata:       models.MessageMetadata{ExternalID: "GONE1", MessageID: "GONE1"},
	}
	msg.ID = uuid.New()
	messages.msgs = append(messages.msgs, msg)

	report, err := worker.RepairConversation(context.Background(), convID, channel, 10, false)
	if err != nil {
		t.Fatal(err)
	}
	if report.MarkedUnavailable != 1 {
		t.Fatalf("expected terminal marker, got %+v", report)
	}

	// Terminal: the next pass must not scan it again
	again, err := worker.RepairConversation(context.Background(), convID, channel, 10, false)
	if err != nil {
		t.Fatal(err)
	}
	if again.Scanned != 0 {
		t.Errorf("second pass scanned %d, want 0", again.Scanned)
	}
}
