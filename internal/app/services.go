package app

import (
	"context"

	"zapdesk/internal/auth"
	"zapdesk/internal/events"
	"zapdesk/internal/evolution"
	"zapdesk/internal/repo"
	"zapdesk/internal/services"
	"zapdesk/internal/sync"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Services holds all application services
type Services struct {
	DB          *gorm.DB
	AuthService *auth.Service

	UserRepo         *repo.UserRepository
	TenantRepo       *repo.TenantRepository
	ChannelRepo      *repo.ChannelRepository
	ContactRepo      *repo.ContactRepository
	ConversationRepo *repo.ConversationRepository
	MessageRepo      *repo.MessageRepository
	ScheduleRepo     *repo.ScheduledMessageRepository

	EvolutionClient *evolution.Client
	Publisher       events.Publisher
	StorageService  *services.StorageService

	Resolver     *sync.Resolver
	Synchronizer *sync.Synchronizer
	RepairWorker *sync.RepairWorker
	SyncDriver   *sync.Driver

	ChannelMonitorService *services.ChannelMonitorService
	SchedulerService      *services.SchedulerService
}

// NewServices creates a new services container
func NewServices(ctx context.Context, db *gorm.DB) *Services {
	userRepo := repo.NewUserRepository(db)
	tenantRepo := repo.NewTenantRepository(db)
	channelRepo := repo.NewChannelRepository(db)
	contactRepo := repo.NewContactRepository(db)
	conversationRepo := repo.NewConversationRepository(db)
	messageRepo := repo.NewMessageRepository(db)
	scheduleRepo := repo.NewScheduledMessageRepository(db)

	authService := auth.NewService(userRepo)

	client, err := evolution.NewClientFromEnv()
	if err != nil {
		log.Warn().Err(err).Msg("⚠️ evolution client not configured, gateway operations will fail")
		client = evolution.NewClient("", "")
	}

	publisher := events.NewFromEnv(ctx, log.Logger)

	storageService, err := services.NewStorageService()
	if err != nil {
		log.Warn().Err(err).Msg("⚠️ storage service not configured, media repair disabled")
	}

	resolver := sync.NewResolver(contactRepo, conversationRepo, publisher, log.Logger)
	synchronizer := sync.NewSynchronizer(client, conversationRepo, messageRepo, resolver, 0, 0, log.Logger)

	var repairWorker *sync.RepairWorker
	if storageService != nil {
		repairWorker = sync.NewRepairWorker(client, messageRepo, storageService, log.Logger)
	}

	syncDriver := sync.NewDriver(client, channelRepo, conversationRepo, synchronizer, repairWorker, publisher, log.Logger)

	channelMonitorService := services.NewChannelMonitorService(channelRepo, client, publisher, log.Logger)
	schedulerService := services.NewSchedulerService(scheduleRepo, conversationRepo, channelRepo, messageRepo, client, publisher, log.Logger)

	return &Services{
		DB:          db,
		AuthService: authService,

		UserRepo:         userRepo,
		TenantRepo:       tenantRepo,
		ChannelRepo:      channelRepo,
		ContactRepo:      contactRepo,
		ConversationRepo: conversationRepo,
		MessageRepo:      messageRepo,
		ScheduleRepo:     scheduleRepo,

		EvolutionClient: client,
		Publisher:       publisher,
		StorageService:  storageService,

		Resolver:     resolver,
		Synchronizer: synchronizer,
		RepairWorker: repairWorker,
		SyncDriver:   syncDriver,

		ChannelMonitorService: channelMonitorService,
		SchedulerService:      schedulerService,
	}
}
