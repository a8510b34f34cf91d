package models

// PaginationResult represents paginated results
type PaginationResult[T any] struct {
	Data       []T   `json:"data"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	TotalPages int   `json:"total_pages"`
}

// ChannelWithConversationCount represents a channel with conversation count
type ChannelWithConversationCount struct {
	Channel
	ConversationCount int64 `json:"conversation_count"`
}

// GetAllModels returns all models for GORM AutoMigrate
func GetAllModels() []interface{} {
	return []interface{}{
		// Core models
		&Tenant{},
		&User{},

		// Messaging models
		&Channel{},
		&Contact{},
		&Conversation{},
		&Message{},
		&ScheduledMessage{},
	}
}
