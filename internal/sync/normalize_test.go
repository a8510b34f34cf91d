package sync

import (
	"testing"
	"time"

	"zapdesk/internal/evolution"
)

func TestNormalizeContentRules(t *testing.T) {
	tests := []struct {
		name        string
		message     *evolution.MessageContent
		wantContent string
		wantMedia   string
		wantKept    bool
	}{
		{
			name:        "plain text",
			message:     &evolution.MessageContent{Conversation: "oi, tudo bem?"},
			wantContent: "oi, tudo bem?",
			wantKept:    true,
		},
		{
			name:        "extended text",
			message:     &evolution.MessageContent{ExtendedTextMessage: &evolution.ExtendedText{Text: "quoted reply"}},
			wantContent: "quoted reply",
			wantKept:    true,
		},
		{
			name:        "image with caption",
			message:     &evolution.MessageContent{ImageMessage: &evolution.MediaContent{Caption: "look"}},
			wantContent: "[Image] look",
			wantMedia:   "image",
			wantKept:    true,
		},
		{
			name:        "image without caption",
			message:     &evolution.MessageContent{ImageMessage: &evolution.MediaContent{}},
			wantContent: "[Image]",
			wantMedia:   "image",
			wantKept:    true,
		},
		{
			name:        "audio",
			message:     &evolution.MessageContent{AudioMessage: &evolution.MediaContent{}},
			wantContent: "[Audio]",
			wantMedia:   "audio",
			wantKept:    true,
		},
		{
			name:        "video with caption",
			message:     &evolution.MessageContent{VideoMessage: &evolution.MediaContent{Caption: "veja"}},
			wantContent: "[Video] veja",
			wantMedia:   "video",
			wantKept:    true,
		},
		{
			name:        "document with file name",
			message:     &evolution.MessageContent{DocumentMessage: &evolution.DocumentContent{FileName: "receita.pdf"}},
			wantContent: "[Document] receita.pdf",
			wantMedia:   "document",
			wantKept:    true,
		},
		{
			name:        "sticker",
			message:     &evolution.MessageContent{StickerMessage: &evolution.MediaContent{}},
			wantContent: "[Sticker]",
			wantMedia:   "sticker",
			wantKept:    true,
		},
		{
			name:        "contact card",
			message:     &evolution.MessageContent{ContactMessage: &evolution.ContactCard{DisplayName: "Dr. Silva"}},
			wantContent: "[Contact] Dr. Silva",
			wantMedia:   "contact",
			wantKept:    true,
		},
		{
			name:        "location with name",
			message:     &evolution.MessageContent{LocationMessage: &evolution.LocationContent{Name: "Farmácia Central"}},
			wantContent: "[Location] Farmácia Central",
			wantMedia:   "location",
			wantKept:    true,
		},
		{
			name:     "reaction dropped",
			message:  &evolution.MessageContent{ReactionMessage: []byte(`{"text":"👍"}`)},
			wantKept: false,
		},
		{
			name:     "protocol dropped",
			message:  &evolution.MessageContent{ProtocolMessage: []byte(`{"type":"REVOKE"}`)},
			wantKept: false,
		},
		{
			name:     "empty body dropped",
			message:  &evolution.MessageContent{},
			wantKept: false,
		},
		{
			name:     "nil body dropped",
			message:  nil,
			wantKept: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := evolution.RawMessage{
				Key:              evolution.MessageKey{ID: "MSG1", RemoteJid: "5511999999999@s.whatsapp.net"},
				MessageTimestamp: evolution.Timestamp(1700000000),
				Message:          tt.message,
			}

			n, kept := NormalizeMessage(raw)
			if kept != tt.wantKept {
				t.Fatalf("kept = %v, want %v", kept, tt.wantKept)
			}
			if !kept {
				return
			}
			if n.Content != tt.wantContent {
				t.Errorf("content = %q, want %q", n.Content, tt.wantContent)
			}
			if n.MediaType != tt.wantMedia {
				t.Errorf("mediaType = %q, want %q", n.MediaType, tt.wantMedia)
			}
			if n.ExternalID != "MSG1" {
				t.Errorf("externalId = %q", n.ExternalID)
			}
		})
	}
}

func TestNormalizeTimestampUnits(t *testing.T) {
	secs := int64(1700000000)

	tests := []struct {
		name string
		ts   int64
		want time.Time
	}{
		{"seconds", secs, time.Unix(secs, 0).UTC()},
		{"milliseconds used as-is", secs * 1000, time.UnixMilli(secs * 1000).UTC()},
		{"zero", 0, time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalizeTimestamp(tt.ts)
			if !got.Equal(tt.want) {
				t.Errorf("normalizeTimestamp(%d) = %v, want %v", tt.ts, got, tt.want)
			}
		})
	}

	// Seconds and milliseconds encodings of the same instant must agree
	a := normalizeTimestamp(secs)
	b := normalizeTimestamp(secs * 1000)
	if !a.Equal(b) {
		t.Errorf("unit detection diverged: %v vs %v", a, b)
	}
}

func TestSenderType(t *testing.T) {
	cases := []struct {
		name string
		n    Normalized
		want string
	}{
		{"from me", Normalized{FromMe: true, RemoteJid: "5511999990000@s.whatsapp.net"}, "agent"},
		{"from me in group", Normalized{FromMe: true, RemoteJid: "120363040000000000@g.us"}, "agent"},
		{"inbound direct", Normalized{RemoteJid: "5511999990000@s.whatsapp.net"}, "user"},
		{"inbound group participant", Normalized{RemoteJid: "120363040000000000@g.us"}, "contact"},
	}
	for _, tc := range cases {
		if got := tc.n.SenderType(); got != tc.want {
			t.Errorf("%s: sender = %q, want %q", tc.name, got, tc.want)
		}
	}
}
