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

// SchedulerService dispatches scheduled messages whose send time has passed
type SchedulerService struct {
	schedules     *repo.ScheduledMessageRepository
	conversations *repo.ConversationRepository
	channels      *repo.ChannelRepository
	messages      *repo.MessageRepository
	client        *evolution.Client
	events        events.Publisher
	tickInterval  time.Duration
	batchSize     int
	mutex         sync.Mutex
	isRunning     bool
	stopChan      chan struct{}
	log           zerolog.Logger
}

// NewSchedulerService creates a new scheduled message dispatcher
func NewSchedulerService(schedules *repo.ScheduledMessageRepository, conversations *repo.ConversationRepository, channels *repo.ChannelRepository, messages *repo.MessageRepository, client *evolution.Client, publisher events.Publisher, log zerolog.Logger) *SchedulerService {
	return &SchedulerService{
		schedules:     schedules,
		conversations: conversations,
		channels:      channels,
		messages:      messages,
		client:        client,
		events:        publisher,
		tickInterval:  30 * time.Second,
		batchSize:     20,
		stopChan:      make(chan struct{}),
		log:           log,
	}
}

// Start begins the dispatch loop
func (s *SchedulerService) Start(ctx context.Context) {
	s.mutex.Lock()
	if s.isRunning {
		s.mutex.Unlock()
		return
	}
	s.isRunning = true
	s.mutex.Unlock()

	s.log.Info().Dur("interval", s.tickInterval).Msg("⏰ Starting scheduled message dispatcher")

	go func() {
		ticker := time.NewTicker(s.tickInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.dispatchDue(ctx)
			case <-s.stopChan:
				s.log.Info().Msg("⏰ Scheduler stopped")
				return
			case <-ctx.Done():
				s.log.Info().Msg("⏰ Context cancelled, stopping scheduler")
				return
			}
		}
	}()
}

// Stop stops the dispatch loop
func (s *SchedulerService) Stop() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isRunning {
		return
	}
	s.isRunning = false
	close(s.stopChan)
}

func (s *SchedulerService) dispatchDue(ctx context.Context) {
	due, err := s.schedules.ListDue(time.Now(), s.batchSize)
	if err != nil {
		s.log.Error().Err(err).Msg("❌ Failed to list due scheduled messages")
		return
	}

	for i := range due {
		if ctx.Err() != nil {
			return
		}
		s.dispatchOne(ctx, &due[i])
	}
}

func (s *SchedulerService) dispatchOne(ctx context.Context, sm *models.ScheduledMessage) {
	conversation, err := s.conversations.GetByID(sm.ConversationID, sm.TenantID)
	if err != nil {
		s.fail(sm, "conversation not found: "+err.Error())
		return
	}

	channel, err := s.channels.GetByID(conversation.ChannelID)
	if err != nil {
		s.fail(sm, "channel not found: "+err.Error())
		return
	}

	number := conversation.Metadata.RemoteJid
	if number == "" && conversation.Contact != nil {
		number = conversation.Contact.Phone
	}
	if number == "" {
		s.fail(sm, "conversation has no deliverable address")
		return
	}

	sent, err := s.client.SendText(ctx, channel.InstanceName, number, sm.Content)
	if err != nil {
		s.fail(sm, err.Error())
		return
	}

	// Record the outbound message in the thread
	now := time.Now().UTC()
	msg := &models.Message{
		ConversationID: conversation.ID,
		ContactID:      conversation.ContactID,
		SenderType:     "agent",
		Content:        sm.Content,
		IsRead:         true,
		Metadata: models.MessageMetadata{
			ExternalID: sent.Key.ID,
			MessageID:  sent.Key.ID,
			RemoteJid:  conversation.Metadata.RemoteJid,
			FromMe:     true,
			ImportedBy: "scheduler",
		},
	}
	msg.TenantID = sm.TenantID
	msg.CreatedAt = now
	if err := s.messages.Create(msg); err != nil {
		s.log.Warn().Err(err).Str("schedule_id", sm.ID.String()).Msg("Sent but failed to record message")
	}
	if err := s.conversations.TouchLastMessageAt(conversation.ID, now); err != nil {
		s.log.Warn().Err(err).Msg("Failed to update conversation recency")
	}

	if err := s.schedules.MarkSent(sm.ID); err != nil {
		s.log.Error().Err(err).Str("schedule_id", sm.ID.String()).Msg("Failed to mark schedule as sent")
		return
	}

	s.log.Info().Str("schedule_id", sm.ID.String()).Str("instance", channel.InstanceName).Msg("📤 Scheduled message dispatched")

	payload := map[string]interface{}{
		"tenantId":       sm.TenantID,
		"scheduleId":     sm.ID,
		"conversationId": conversation.ID,
	}
	if err := s.events.Publish(ctx, events.KeyScheduleSent, payload); err != nil {
		s.log.Warn().Err(err).Msg("Failed to publish schedule event")
	}
}

func (s *SchedulerService) fail(sm *models.ScheduledMessage, reason string) {
	s.log.Warn().Str("schedule_id", sm.ID.String()).Str("reason", reason).Msg("Scheduled message dispatch failed")
	if err := s.schedules.MarkFailed(sm.ID, reason); err != nil {
		s.log.Error().Err(err).Msg("Failed to mark schedule as failed")
	}
}
