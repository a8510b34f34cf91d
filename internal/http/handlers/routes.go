package handlers

import (
	"zapdesk/internal/app"
	"zapdesk/internal/http/middleware"
	"zapdesk/internal/webhook"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// SetupRoutes sets up all API routes
func SetupRoutes(api *echo.Group, services *app.Services) {
	wsHandler := NewWebSocketHandler(services.AuthService)

	// Auth routes (no authentication required)
	authHandler := NewAuthHandler(services.AuthService)
	auth := api.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.RefreshToken)

	// WebSocket endpoint (handles authentication manually via query parameter)
	api.GET("/ws", wsHandler.HandleWebSocket)

	// Webhooks (authenticated per-channel via webhook token)
	webhookHandler := webhook.NewEvolutionWebhookHandler(
		services.ChannelRepo,
		services.ConversationRepo,
		services.MessageRepo,
		services.Resolver,
		services.Publisher,
		log.Logger,
	)
	webhookHandler.SetWebSocketNotifier(wsHandler)
	api.POST("/webhook/evolution/:instance", webhookHandler.Process)

	// Protected routes (require authentication)
	protected := api.Group("")
	protected.Use(middleware.JWTAuth(services.AuthService))
	protected.Use(middleware.TenantResolver(services.DB))

	// User profile routes
	profileAuth := protected.Group("/auth")
	profileAuth.PUT("/profile", authHandler.UpdateProfile)
	profileAuth.PUT("/change-password", authHandler.ChangePassword)

	// System admin routes
	admin := protected.Group("/admin")
	admin.Use(middleware.SystemAdminOnly())
	tenantHandler := NewTenantHandler(services.TenantRepo, services.DB)
	admin.GET("/tenants", tenantHandler.List)
	admin.POST("/tenants", tenantHandler.Create)
	admin.GET("/tenants/:id", tenantHandler.GetByID)
	admin.PUT("/tenants/:id", tenantHandler.Update)
	admin.DELETE("/tenants/:id", tenantHandler.Delete)
	admin.GET("/stats", tenantHandler.GetStats)

	userHandler := NewUserHandler(services.UserRepo, services.AuthService)
	admin.POST("/tenants/:tenant_id/admin", userHandler.CreateTenantAdmin)

	// Tenant routes (require tenant context)
	tenant := protected.Group("")
	tenant.Use(middleware.RequireTenantRole())
	tenant.Use(middleware.RequireTenant())

	// Tenant profile management
	tenant.GET("/tenant/profile", tenantHandler.GetProfile)
	tenant.PUT("/tenant/profile", tenantHandler.UpdateProfile)

	// User management (tenant admins only)
	users := tenant.Group("/users", middleware.TenantAdminOrAbove())
	users.POST("", userHandler.Create)
	users.GET("", userHandler.List)
	users.GET("/:id", userHandler.GetByID)
	users.PUT("/:id", userHandler.Update)
	users.PUT("/:id/password", userHandler.ChangeUserPassword)
	users.DELETE("/:id", userHandler.Delete)

	// Channels
	channelHandler := NewChannelHandler(services.ChannelRepo, services.ConversationRepo, services.EvolutionClient)
	channels := tenant.Group("/channels")
	channels.GET("", channelHandler.List)
	channels.POST("", channelHandler.Create, middleware.TenantAdminOrAbove())
	channels.GET("/:id", channelHandler.GetByID)
	channels.PUT("/:id", channelHandler.Update, middleware.TenantAdminOrAbove())
	channels.DELETE("/:id", channelHandler.Delete, middleware.TenantAdminOrAbove())
	channels.GET("/:id/connection-state", channelHandler.ConnectionState)

	// Contacts
	contactHandler := NewContactHandler(services.ContactRepo, services.Resolver)
	contacts := tenant.Group("/contacts")
	contacts.GET("", contactHandler.List)
	contacts.GET("/:id", contactHandler.GetByID)
	contacts.PUT("/:id", contactHandler.Update)
	contacts.POST("/merge", contactHandler.Merge, middleware.TenantAdminOrAbove())

	// Conversations
	conversationHandler := NewConversationHandler(services.ConversationRepo, services.MessageRepo, services.ChannelRepo, services.EvolutionClient)
	conversations := tenant.Group("/conversations")
	conversations.GET("", conversationHandler.List)
	conversations.GET("/:id", conversationHandler.GetByID)
	conversations.PUT("/:id/assign", conversationHandler.Assign)
	conversations.PUT("/:id/status", conversationHandler.UpdateStatus)
	conversations.POST("/:id/read", conversationHandler.MarkRead)
	conversations.GET("/:id/messages", conversationHandler.ListMessages)
	conversations.GET("/:id/participants", conversationHandler.Participants)

	// Messages
	messageHandler := NewMessageHandler(services.MessageRepo, services.ConversationRepo, services.ChannelRepo, services.EvolutionClient, services.Publisher, wsHandler)
	messages := tenant.Group("/messages")
	messages.POST("", messageHandler.Send)
	messages.GET("/:id", messageHandler.GetByID)

	// Scheduled messages
	scheduleHandler := NewScheduleHandler(services.ScheduleRepo, services.ConversationRepo)
	schedules := tenant.Group("/schedules")
	schedules.POST("", scheduleHandler.Create)
	schedules.GET("", scheduleHandler.ListByConversation)
	schedules.POST("/:id/cancel", scheduleHandler.Cancel)

	// History reconciliation
	syncHandler := NewSyncHandler(services.SyncDriver)
	syncGroup := tenant.Group("/sync", middleware.TenantAdminOrAbove())
	syncGroup.POST("/run", syncHandler.Run)
	syncGroup.POST("/conversations/:id", syncHandler.SyncConversation)
	syncGroup.POST("/media-repair", syncHandler.RepairMedia)

	// Dashboard
	dashboardHandler := NewDashboardHandler(services.DB)
	dashboard := tenant.Group("/dashboard")
	dashboard.GET("/stats", dashboardHandler.GetStats)
	dashboard.GET("/conversation-counts", dashboardHandler.GetConversationCounts)

	// Health check
	api.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{"status": "ok"})
	})
}
