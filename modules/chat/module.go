package chat

import (
	"context"
	"errors"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"

	"github.com/example/realtime-chatroom/internal/logging"
	"github.com/example/realtime-chatroom/modules/relay"
	"github.com/example/realtime-chatroom/modules/store"
)

// Module provides the chat service on top of the store and relay modules.
type Module struct {
	storeModule *store.Module
	relayModule *relay.Module
	service     *Service
	logger      types.Logger
}

// Compile-time interface checks.
var _ mono.Module = (*Module)(nil)

// NewModule creates a new chat module.
func NewModule(logger types.Logger) *Module {
	logger = logging.OrDefault(logger)
	return &Module{logger: logger}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "chat"
}

// SetStoreModule sets the store module dependency.
func (m *Module) SetStoreModule(sm *store.Module) {
	m.storeModule = sm
}

// SetRelayModule sets the relay module dependency.
func (m *Module) SetRelayModule(rm *relay.Module) {
	m.relayModule = rm
}

// Service returns the chat service. Valid after Start.
func (m *Module) Service() *Service {
	return m.service
}

// Start builds the service. The store and relay modules must be started.
func (m *Module) Start(_ context.Context) error {
	if m.storeModule == nil || m.storeModule.Repository() == nil {
		return errors.New("store module not started")
	}
	if m.relayModule == nil || m.relayModule.Publisher() == nil {
		return errors.New("relay module not started")
	}

	service, err := NewService(m.storeModule.Repository(), m.relayModule.Publisher(), m.logger)
	if err != nil {
		return err
	}
	m.service = service

	m.logger.Info("Chat module started")
	return nil
}

// Stop stops the module.
func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("Chat module stopped")
	return nil
}
