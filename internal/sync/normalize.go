package sync

import (
	"fmt"
	"strings"
	"time"

	"zapdesk/internal/evolution"
	"zapdesk/pkg/models"
)

// millisecondFloor separates second from millisecond timestamps; gateway
// endpoints disagree on the unit
const millisecondFloor = 1_000_000_000_000

// Normalized is one gateway message reduced to canonical form, ready for
// the deduplication gate
type Normalized struct {
	ExternalID string
	RemoteJid  string
	Content    string
	MediaType  string
	FromMe     bool
	PushName   string
	Timestamp  time.Time
	Attachment *models.Attachment
}

// NormalizeMessage maps a raw gateway message to canonical form. The second
// return is false for messages that must be dropped: reactions, protocol and
// system messages, and anything with no extractable content.
func NormalizeMessage(raw evolution.RawMessage) (Normalized, bool) {
	n := Normalized{
		ExternalID: raw.Key.ID,
		RemoteJid:  raw.Key.RemoteJid,
		FromMe:     raw.Key.FromMe,
		PushName:   raw.PushName,
		Timestamp:  normalizeTimestamp(raw.MessageTimestamp.Int64()),
	}

	m := raw.Message
	if m == nil {
		return n, false
	}
	if len(m.ReactionMessage) > 0 || len(m.ProtocolMessage) > 0 || len(m.PollCreationMessage) > 0 {
		return n, false
	}

	switch {
	case m.Conversation != "":
		n.Content = m.Conversation

	case m.ExtendedTextMessage != nil && m.ExtendedTextMessage.Text != "":
		n.Content = m.ExtendedTextMessage.Text

	case m.ImageMessage != nil:
		n.Content = withCaption("[Image]", m.ImageMessage.Caption)
		n.MediaType = "image"
		n.Attachment = mediaAttachment("image", m.ImageMessage)

	case m.VideoMessage != nil:
		n.Content = withCaption("[Video]", m.VideoMessage.Caption)
		n.MediaType = "video"
		n.Attachment = mediaAttachment("video", m.VideoMessage)

	case m.AudioMessage != nil:
		n.Content = "[Audio]"
		n.MediaType = "audio"
		n.Attachment = mediaAttachment("audio", m.AudioMessage)

	case m.StickerMessage != nil:
		n.Content = "[Sticker]"
		n.MediaType = "sticker"
		n.Attachment = mediaAttachment("sticker", m.StickerMessage)

	case m.DocumentMessage != nil:
		label := m.DocumentMessage.FileName
		if label == "" {
			label = m.DocumentMessage.Caption
		}
		n.Content = withCaption("[Document]", label)
		n.MediaType = "document"
		if m.DocumentMessage.URL != "" {
			n.Attachment = &models.Attachment{
				Type:     "document",
				URL:      m.DocumentMessage.URL,
				MimeType: m.DocumentMessage.MimeType,
			}
		}

	case m.ContactMessage != nil:
		n.Content = withCaption("[Contact]", m.ContactMessage.DisplayName)
		n.MediaType = "contact"

	case m.LocationMessage != nil:
		label := m.LocationMessage.Name
		if label == "" && (m.LocationMessage.Latitude != 0 || m.LocationMessage.Longitude != 0) {
			label = fmt.Sprintf("%.6f, %.6f", m.LocationMessage.Latitude, m.LocationMessage.Longitude)
		}
		n.Content = withCaption("[Location]", label)
		n.MediaType = "location"

	default:
		return n, false
	}

	if strings.TrimSpace(n.Content) == "" {
		return n, false
	}
	return n, true
}

func withCaption(tag, caption string) string {
	if caption == "" {
		return tag
	}
	return tag + " " + caption
}

func mediaAttachment(kind string, m *evolution.MediaContent) *models.Attachment {
	if m == nil || m.URL == "" {
		return nil
	}
	return &models.Attachment{Type: kind, URL: m.URL, MimeType: m.MimeType}
}

// normalizeTimestamp interprets a gateway timestamp as Unix seconds unless
// its magnitude says milliseconds
func normalizeTimestamp(ts int64) time.Time {
	if ts <= 0 {
		return time.Time{}
	}
	if ts >= millisecondFloor {
		return time.UnixMilli(ts).UTC()
	}
	return time.Unix(ts, 0).UTC()
}

// SenderType maps the message origin to the local sender taxonomy: agent
// for fromMe, contact for other participants in a group chat, user otherwise.
func (n Normalized) SenderType() string {
	if n.FromMe {
		return "agent"
	}
	if ClassifyJID(n.RemoteJid) == JIDGroup {
		return "contact"
	}
	return "user"
}
