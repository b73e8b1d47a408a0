package api

import (
	"context"
	"fmt"
	"os"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/fiber/v2"

	"github.com/example/realtime-chatroom/internal/logging"
	"github.com/example/realtime-chatroom/modules/auth"
	"github.com/example/realtime-chatroom/modules/chat"
	"github.com/example/realtime-chatroom/modules/relay"
)

// APIModule is the HTTP API module with the WebSocket topic gateway.
type APIModule struct {
	app         *fiber.App
	gateway     *Gateway
	chatModule  *chat.Module
	relayModule *relay.Module
	jwt         *auth.JWTManager
	logger      types.Logger
	port        string
}

// Compile-time interface checks.
var _ mono.Module = (*APIModule)(nil)
var _ mono.HealthCheckableModule = (*APIModule)(nil)

// NewModule creates a new APIModule.
func NewModule(jwt *auth.JWTManager, logger types.Logger) *APIModule {
	port := os.Getenv("PORT")
	if port == "" {
		port = "3000"
	}
	logger = logging.OrDefault(logger)
	return &APIModule{
		jwt:    jwt,
		logger: logger,
		port:   port,
	}
}

// Name returns the module name.
func (m *APIModule) Name() string {
	return "api"
}

// SetChatModule sets the chat module dependency.
func (m *APIModule) SetChatModule(cm *chat.Module) {
	m.chatModule = cm
}

// SetRelayModule sets the relay module dependency.
func (m *APIModule) SetRelayModule(rm *relay.Module) {
	m.relayModule = rm
}

// Start initializes the Fiber HTTP server.
func (m *APIModule) Start(_ context.Context) error {
	if m.chatModule == nil || m.chatModule.Service() == nil {
		return fmt.Errorf("chat module not started")
	}
	if m.relayModule == nil || m.relayModule.Relay() == nil {
		return fmt.Errorf("relay module not started")
	}

	svc := m.chatModule.Service()
	m.gateway = NewGateway(m.relayModule.Relay(), svc, m.logger)
	m.app = NewApp(svc, m.gateway, m.jwt)

	// Start server in goroutine
	go func() {
		if err := m.app.Listen(":" + m.port); err != nil {
			m.logger.Error("HTTP server error", "error", err)
		}
	}()

	m.logger.Info("HTTP server started", "port", m.port)
	return nil
}

// Stop shuts down the Fiber HTTP server.
func (m *APIModule) Stop(_ context.Context) error {
	if m.app == nil {
		return nil
	}
	m.logger.Info("Shutting down HTTP server")
	m.gateway.Close()
	return m.app.Shutdown()
}

// Health returns the health status.
func (m *APIModule) Health(_ context.Context) mono.HealthStatus {
	if m.app == nil {
		return mono.HealthStatus{Healthy: false, Message: "not started"}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"port":              m.port,
			"connected_clients": m.gateway.ClientCount(),
			"relay_topics":      m.gateway.TopicCount(),
			"dropped_frames":    m.gateway.Dropped(),
		},
	}
}
