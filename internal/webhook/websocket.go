package webhook

// WebSocketNotifier defines the interface for WebSocket notifications
type WebSocketNotifier interface {
	BroadcastToTenant(tenantID string, messageType string, data interface{})
}
