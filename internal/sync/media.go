package sync

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"zapdesk/pkg/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Media recovery bounds. Gateways retain media for a short TTL, so most
// repair attempts on old messages end in a terminal unavailable marker.
const (
	defaultDownloadTimeout = 5 * time.Second
	defaultMaxMediaBytes   = 16 << 20
)

// BlobStore persists recovered media bytes and returns a durable URL
type BlobStore interface {
	UploadBase64(ctx context.Context, data, contentType, key string) (string, error)
}

// RepairAction describes one intended or applied repair step
type RepairAction struct {
	MessageID uuid.UUID `json:"messageId"`
	Action    string    `json:"action"` // recovered, marked_unavailable, skipped
	Reason    string    `json:"reason,omitempty"`
	URL       string    `json:"url,omitempty"`
}

// RepairReport aggregates one media repair pass
type RepairReport struct {
	Scanned           int            `json:"scanned"`
	Recovered         int            `json:"recovered"`
	MarkedUnavailable int            `json:"markedUnavailable"`
	Skipped           int            `json:"skipped"`
	DryRun            bool           `json:"dryRun"`
	Actions           []RepairAction `json:"actions"`
}

// RepairWorker recovers expired-looking media attachments from the gateway
// into blob storage, or marks them permanently unavailable
type RepairWorker struct {
	gateway         Gateway
	messages        MessageStore
	blobs           BlobStore
	downloadTimeout time.Duration
	maxMediaBytes   int
	log             zerolog.Logger
}

// NewRepairWorker creates a media repair worker
func NewRepairWorker(gateway Gateway, messages MessageStore, blobs BlobStore, log zerolog.Logger) *RepairWorker {
	return &RepairWorker{
		gateway:         gateway,
		messages:        messages,
		blobs:           blobs,
		downloadTimeout: defaultDownloadTimeout,
		maxMediaBytes:   defaultMaxMediaBytes,
		log:             log,
	}
}

// RepairConversation scans up to limit repair candidates of a conversation.
// Marking media unavailable is terminal and never retried, so dryRun reports
// intended actions without mutating anything.
func (w *RepairWorker) RepairConversation(ctx context.Context, conversationID uuid.UUID, channel *models.Channel, limit int, dryRun bool) (*RepairReport, error) {
	if limit <= 0 {
		limit = 50
	}

	candidates, err := w.messages.ListMediaRepairCandidates(conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list repair candidates: %w", err)
	}

	report := &RepairReport{Scanned: len(candidates), DryRun: dryRun}
	for i := range candidates {
		if ctx.Err() != nil {
			break
		}
		w.repairOne(ctx, &candidates[i], channel, dryRun, report)
	}

	return report, nil
}

func (w *RepairWorker) repairOne(ctx context.Context, msg *models.Message, channel *models.Channel, dryRun bool, report *RepairReport) {
	externalID := msg.Metadata.MessageID
	if externalID == "" {
		externalID = msg.Metadata.ExternalID
	}
	if externalID == "" {
		w.markUnavailable(msg, "message has no gateway id", dryRun, report)
		return
	}

	fetchCtx, cancel := context.WithTimeout(ctx, w.downloadTimeout)
	defer cancel()

	payload, err := w.gateway.GetBase64FromMediaMessage(fetchCtx, channel.InstanceName, externalID)
	if err != nil {
		// A timed-out download is abandoned and left for the next pass;
		// everything else means the gateway no longer has the media.
		if errors.Is(err, context.DeadlineExceeded) {
			report.Skipped++
			report.Actions = append(report.Actions, RepairAction{MessageID: msg.ID, Action: "skipped", Reason: "download timed out"})
			return
		}
		w.markUnavailable(msg, fmt.Sprintf("gateway recovery failed: %v", err), dryRun, report)
		return
	}

	raw := stripDataPrefix(payload.Base64)
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		w.markUnavailable(msg, "gateway returned invalid base64", dryRun, report)
		return
	}
	if len(decoded) > w.maxMediaBytes {
		w.markUnavailable(msg, fmt.Sprintf("media too large (%d bytes)", len(decoded)), dryRun, report)
		return
	}

	key := fmt.Sprintf("media/%s/%s/%s", msg.TenantID, msg.ConversationID, externalID)
	if dryRun {
		report.Recovered++
		report.Actions = append(report.Actions, RepairAction{MessageID: msg.ID, Action: "recovered", Reason: "dry run"})
		return
	}

	url, err := w.blobs.UploadBase64(ctx, raw, payload.MimeType, key)
	if err != nil {
		report.Skipped++
		report.Actions = append(report.Actions, RepairAction{MessageID: msg.ID, Action: "skipped", Reason: fmt.Sprintf("upload failed: %v", err)})
		w.log.Warn().Err(err).Str("message_id", msg.ID.String()).Msg("Media upload failed")
		return
	}

	mediaType := msg.MediaType
	if mediaType == "" && msg.Metadata.Attachment != nil {
		mediaType = msg.Metadata.Attachment.Type
	}
	msg.Metadata.Attachment = &models.Attachment{
		Type:     mediaType,
		URL:      url,
		MimeType: payload.MimeType,
	}
	msg.Metadata.MediaUnavailable = nil
	if err := w.messages.Update(msg); err != nil {
		report.Skipped++
		report.Actions = append(report.Actions, RepairAction{MessageID: msg.ID, Action: "skipped", Reason: fmt.Sprintf("persist failed: %v", err)})
		return
	}

	report.Recovered++
	report.Actions = append(report.Actions, RepairAction{MessageID: msg.ID, Action: "recovered", URL: url})
	w.log.Info().Str("message_id", msg.ID.String()).Str("url", url).Msg("📎 Recovered media attachment")
}

func (w *RepairWorker) markUnavailable(msg *models.Message, reason string, dryRun bool, report *RepairReport) {
	if dryRun {
		report.MarkedUnavailable++
		report.Actions = append(report.Actions, RepairAction{MessageID: msg.ID, Action: "marked_unavailable", Reason: reason + " (dry run)"})
		return
	}

	msg.Metadata.Attachment = nil
	msg.Metadata.MediaUnavailable = &models.MediaUnavailable{
		Reason:   reason,
		MarkedAt: time.Now().UTC(),
	}
	if err := w.messages.Update(msg); err != nil {
		report.Skipped++
		report.Actions = append(report.Actions, RepairAction{MessageID: msg.ID, Action: "skipped", Reason: fmt.Sprintf("persist failed: %v", err)})
		return
	}

	report.MarkedUnavailable++
	report.Actions = append(report.Actions, RepairAction{MessageID: msg.ID, Action: "marked_unavailable", Reason: reason})
}

func stripDataPrefix(b64 string) string {
	if i := strings.Index(b64, ","); i >= 0 && strings.HasPrefix(b64, "data:") {
		return b64[i+1:]
	}
	return b64
}
