package services

import (
	"context"
	"sync"
	"time"

	"zapdesk/internal/events"
	"zapdesk/internal/evolution"
	"zapdesk/internal/repo"
	"zapdesk/pkg/models"

	"github.com/rs/zerolog"
)

// ChannelMonitorService polls the gateway connection state of every active
// channel and keeps the stored status in sync
type ChannelMonitorService struct {
	channels      *repo.ChannelRepository
	client        *evolution.Client
	events        events.Publisher
	checkInterval time.Duration
	mutex         sync.Mutex
	isRunning     bool
	stopChan      chan struct{}
	log           zerolog.Logger
}

// NewChannelMonitorService creates a new channel monitor
func NewChannelMonitorService(channels *repo.ChannelRepository, client *evolution.Client, publisher events.Publisher, log zerolog.Logger) *ChannelMonitorService {
	return &ChannelMonitorService{
		channels:      channels,
		client:        client,
		events:        publisher,
		checkInterval: 1 * time.Minute,
		stopChan:      make(chan struct{}),
		log:           log,
	}
}

// Start begins the monitoring loop
func (cms *ChannelMonitorService) Start(ctx context.Context) {
	cms.mutex.Lock()
	if cms.isRunning {
		cms.mutex.Unlock()
		return
	}
	cms.isRunning = true
	cms.mutex.Unlock()

	cms.log.Info().Dur("interval", cms.checkInterval).Msg("📡 Starting channel connection monitor")

	go func() {
		ticker := time.NewTicker(cms.checkInterval)
		defer ticker.Stop()

		cms.checkAllChannels(ctx)

		for {
			select {
			case <-ticker.C:
				cms.checkAllChannels(ctx)
			case <-cms.stopChan:
				cms.log.Info().Msg("📡 Channel monitor stopped")
				return
			case <-ctx.Done():
				cms.log.Info().Msg("📡 Context cancelled, stopping channel monitor")
				return
			}
		}
	}()
}

// Stop stops the monitoring loop
func (cms *ChannelMonitorService) Stop() {
	cms.mutex.Lock()
	defer cms.mutex.Unlock()

	if !cms.isRunning {
		return
	}
	cms.isRunning = false
	close(cms.stopChan)
}

func (cms *ChannelMonitorService) checkAllChannels(ctx context.Context) {
	channels, err := cms.channels.ListActive()
	if err != nil {
		cms.log.Error().Err(err).Msg("❌ Failed to list active channels")
		return
	}

	for i := range channels {
		if ctx.Err() != nil {
			return
		}
		cms.checkChannel(ctx, &channels[i])
	}
}

func (cms *ChannelMonitorService) checkChannel(ctx context.Context, channel *models.Channel) {
	state, err := cms.client.ConnectionState(ctx, channel.InstanceName)
	status := mapConnectionState(state, err)

	if status == channel.Status {
		return
	}

	if err := cms.channels.UpdateStatus(channel.ID, status); err != nil {
		cms.log.Error().Err(err).Str("channel_id", channel.ID.String()).Msg("Failed to update channel status")
		return
	}

	cms.log.Info().
		Str("instance", channel.InstanceName).
		Str("from", channel.Status).
		Str("to", status).
		Msg("🔌 Channel connection status changed")

	payload := map[string]interface{}{
		"tenantId":     channel.TenantID,
		"channelId":    channel.ID,
		"instanceName": channel.InstanceName,
		"status":       status,
	}
	if err := cms.events.Publish(ctx, events.KeyChannelStatus, payload); err != nil {
		cms.log.Warn().Err(err).Msg("Failed to publish channel status event")
	}
}

// mapConnectionState reduces the gateway state strings to the channel status
// taxonomy
func mapConnectionState(state string, err error) string {
	if err != nil {
		return "disconnected"
	}
	switch state {
	case "open":
		return "connected"
	case "connecting":
		return "connecting"
	default:
		return "disconnected"
	}
}
