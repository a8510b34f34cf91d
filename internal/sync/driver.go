package sync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"zapdesk/internal/events"
	"zapdesk/pkg/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// defaultPageSize bounds one reconciliation invocation; full-tenant backfills
// resume via offset
const defaultPageSize = 50

// ChannelStore resolves the channel backing an Evolution instance
type ChannelStore interface {
	GetByInstanceName(instanceName string) (*models.Channel, error)
}

// ConversationPager pages a channel's conversations for media repair
type ConversationPager interface {
	ListByChannel(tenantID, channelID uuid.UUID, limit, offset int) ([]models.Conversation, error)
}

// EventSink receives reconciliation lifecycle events
type EventSink interface {
	Publish(ctx context.Context, routingKey string, payload interface{}) error
}

// RunOptions selects the working set of one reconciliation run
type RunOptions struct {
	InstanceName   string     `json:"instanceName" validate:"required"`
	Limit          int        `json:"limit"`
	Offset         int        `json:"offset"`
	DryRun         bool       `json:"dryRun"`
	ConversationID *uuid.UUID `json:"conversationId,omitempty"`
}

// RunStats aggregates counters across one run
type RunStats struct {
	ChatsProcessed       int `json:"chatsProcessed"`
	ContactsCreated      int `json:"contactsCreated"`
	ConversationsCreated int `json:"conversationsCreated"`
	MessagesImported     int `json:"messagesImported"`
	MessagesSkipped      int `json:"messagesSkipped"`
	Errors               int `json:"errors"`
}

// RunReport is the structured outcome of a reconciliation run. Partial
// failures keep Success true per item granularity; Success is false only
// when at least one item errored.
type RunReport struct {
	Success    bool         `json:"success"`
	DryRun     bool         `json:"dryRun"`
	Stats      RunStats     `json:"stats"`
	Results    []ItemResult `json:"results"`
	Errors     []string     `json:"errors,omitempty"`
	NextOffset int          `json:"nextOffset,omitempty"`
	HasMore    bool         `json:"hasMore"`
}

// Driver is the top-level reconciliation entry point. Each run is a
// sequential loop over its working set, one gateway call at a time.
type Driver struct {
	gateway       Gateway
	channels      ChannelStore
	conversations ConversationPager
	sync          *Synchronizer
	repair        *RepairWorker
	events        EventSink
	log           zerolog.Logger
}

// NewDriver creates a reconciliation driver
func NewDriver(gateway Gateway, channels ChannelStore, conversations ConversationPager, sync *Synchronizer, repair *RepairWorker, events EventSink, log zerolog.Logger) *Driver {
	return &Driver{
		gateway:       gateway,
		channels:      channels,
		conversations: conversations,
		sync:          sync,
		repair:        repair,
		events:        events,
		log:           log,
	}
}

// Run reconciles the selected working set. Setup failures (unknown instance,
// unreachable chat list) abort with an error; per-item failures are recorded
// in the report and the loop continues.
func (d *Driver) Run(ctx context.Context, tenantID uuid.UUID, opts RunOptions) (*RunReport, error) {
	channel, err := d.resolveChannel(tenantID, opts.InstanceName)
	if err != nil {
		return nil, err
	}

	report := &RunReport{Success: true, DryRun: opts.DryRun}
	started := time.Now()

	if opts.ConversationID != nil {
		result := d.sync.SyncConversation(ctx, tenantID, channel, *opts.ConversationID, opts.DryRun)
		d.record(report, result)
	} else {
		if err := d.runChatList(ctx, tenantID, channel, opts, report); err != nil {
			return nil, err
		}
	}

	d.log.Info().
		Str("instance", opts.InstanceName).
		Bool("dry_run", opts.DryRun).
		Int("chats", report.Stats.ChatsProcessed).
		Int("imported", report.Stats.MessagesImported).
		Int("errors", report.Stats.Errors).
		Dur("elapsed", time.Since(started)).
		Msg("✅ Reconciliation run finished")

	if !opts.DryRun && d.events != nil {
		payload := map[string]interface{}{
			"tenantId":     tenantID,
			"instanceName": opts.InstanceName,
			"stats":        report.Stats,
		}
		if err := d.events.Publish(ctx, events.KeySyncCompleted, payload); err != nil {
			d.log.Warn().Err(err).Msg("Failed to publish sync.completed event")
		}
	}

	return report, nil
}

func (d *Driver) runChatList(ctx context.Context, tenantID uuid.UUID, channel *models.Channel, opts RunOptions, report *RunReport) error {
	chats, err := d.gateway.FindChats(ctx, channel.InstanceName)
	if err != nil {
		return fmt.Errorf("failed to list chats: %w", err)
	}

	syncable := make([]chatRef, 0, len(chats))
	unnamedGroups := 0
	for _, chat := range chats {
		jid := chat.JID()
		if !isSyncableJID(jid) {
			continue
		}
		ref := chatRef{jid: jid, name: chat.DisplayName()}
		if ref.name == "" && ClassifyJID(jid) == JIDGroup {
			unnamedGroups++
		}
		syncable = append(syncable, ref)
	}

	// The chat list often omits group subjects; pull them from the groups
	// endpoint so group contacts get a real name instead of the raw jid.
	if unnamedGroups > 0 {
		if groups, gerr := d.gateway.FetchAllGroups(ctx, channel.InstanceName, false); gerr != nil {
			d.log.Warn().Err(gerr).Str("instance", channel.InstanceName).Msg("Failed to fetch group subjects")
		} else {
			subjects := make(map[string]string, len(groups))
			for _, g := range groups {
				subjects[g.ID] = g.Subject
			}
			for i := range syncable {
				if syncable[i].name == "" {
					syncable[i].name = subjects[syncable[i].jid]
				}
			}
		}
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	offset := opts.Offset
	if offset > len(syncable) {
		offset = len(syncable)
	}
	end := offset + limit
	if end > len(syncable) {
		end = len(syncable)
	}
	report.HasMore = end < len(syncable)
	if report.HasMore {
		report.NextOffset = end
	}

	for _, chat := range syncable[offset:end] {
		if ctx.Err() != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("run aborted: %v", ctx.Err()))
			report.Success = false
			report.HasMore = true
			break
		}

		result := d.sync.SyncChat(ctx, tenantID, channel, chat.jid, chat.name, opts.DryRun)
		d.record(report, result)
	}

	return nil
}

type chatRef struct {
	jid  string
	name string
}

// RepairMedia runs a media repair pass over one conversation or over a page
// of the channel's conversations
func (d *Driver) RepairMedia(ctx context.Context, tenantID uuid.UUID, opts RunOptions) (*RepairReport, error) {
	if d.repair == nil {
		return nil, fmt.Errorf("media repair is not configured")
	}

	channel, err := d.resolveChannel(tenantID, opts.InstanceName)
	if err != nil {
		return nil, err
	}

	if opts.ConversationID != nil {
		return d.repair.RepairConversation(ctx, *opts.ConversationID, channel, opts.Limit, opts.DryRun)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	conversations, err := d.conversations.ListByChannel(tenantID, channel.ID, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	total := &RepairReport{DryRun: opts.DryRun}
	for i := range conversations {
		if ctx.Err() != nil {
			break
		}
		report, err := d.repair.RepairConversation(ctx, conversations[i].ID, channel, 0, opts.DryRun)
		if err != nil {
			d.log.Warn().Err(err).Str("conversation_id", conversations[i].ID.String()).Msg("Media repair pass failed")
			continue
		}
		total.Scanned += report.Scanned
		total.Recovered += report.Recovered
		total.MarkedUnavailable += report.MarkedUnavailable
		total.Skipped += report.Skipped
		total.Actions = append(total.Actions, report.Actions...)
	}

	return total, nil
}

func (d *Driver) resolveChannel(tenantID uuid.UUID, instanceName string) (*models.Channel, error) {
	if instanceName == "" {
		return nil, fmt.Errorf("instanceName is required")
	}
	channel, err := d.channels.GetByInstanceName(instanceName)
	if err != nil {
		return nil, fmt.Errorf("instance %q not found: %w", instanceName, err)
	}
	if channel.TenantID != tenantID {
		return nil, fmt.Errorf("instance %q does not belong to tenant", instanceName)
	}
	return channel, nil
}

func (d *Driver) record(report *RunReport, result *ItemResult) {
	report.Stats.ChatsProcessed++
	report.Stats.MessagesImported += result.Imported
	report.Stats.MessagesSkipped += result.Skipped
	if result.ContactCreated {
		report.Stats.ContactsCreated++
	}
	if result.ConversationCreated && !report.DryRun {
		report.Stats.ConversationsCreated++
	}
	if result.Error != "" {
		report.Stats.Errors++
		report.Errors = append(report.Errors, fmt.Sprintf("%s: %s", result.RemoteJid, result.Error))
		report.Success = false
	}
	report.Results = append(report.Results, *result)
}

// isSyncableJID filters out broadcast and newsletter addresses that carry no
// conversation state
func isSyncableJID(jid string) bool {
	if jid == "" || strings.Contains(jid, "@broadcast") || strings.Contains(jid, "@newsletter") {
		return false
	}
	return ClassifyJID(jid) != JIDUnknown
}
