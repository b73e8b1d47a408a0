package relay

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/nats-io/nats-server/v2/server"

	"github.com/example/realtime-chatroom/internal/logging"
)

// Backend names accepted in RELAY_BACKEND.
const (
	BackendMemory       = "memory"
	BackendNATS         = "nats"
	BackendNATSEmbedded = "nats-embedded"
	BackendRedis        = "redis"
)

// Config holds relay configuration.
type Config struct {
	Backend        string
	Codec          string
	NATSURL        string
	RedisAddr      string
	RedisPrefix    string
	QueueSize      int
	ConnectTimeout time.Duration
}

// DefaultConfig returns the default relay configuration.
func DefaultConfig() Config {
	return Config{
		Backend:        BackendMemory,
		Codec:          "json",
		NATSURL:        "nats://localhost:4222",
		RedisAddr:      "localhost:6379",
		RedisPrefix:    "chatroom:",
		QueueSize:      DefaultQueueSize,
		ConnectTimeout: 5 * time.Second,
	}
}

// ConfigFromEnv overlays RELAY_BACKEND, RELAY_CODEC, NATS_URL, REDIS_ADDR and
// REDIS_CHANNEL_PREFIX on the defaults.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	if v := os.Getenv("RELAY_BACKEND"); v != "" {
		cfg.Backend = v
	}
	if v := os.Getenv("RELAY_CODEC"); v != "" {
		cfg.Codec = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		cfg.NATSURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_CHANNEL_PREFIX"); v != "" {
		cfg.RedisPrefix = v
	}
	return cfg
}

// Module provides the relay and the server-side event publisher.
type Module struct {
	config    Config
	logger    types.Logger
	relay     Relay
	embedded  *server.Server
	publisher *EventPublisher
}

// Compile-time interface checks.
var _ mono.Module = (*Module)(nil)
var _ mono.HealthCheckableModule = (*Module)(nil)

// NewModule creates a new relay module.
func NewModule(cfg Config, logger types.Logger) *Module {
	logger = logging.OrDefault(logger)
	return &Module{config: cfg, logger: logger}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "relay"
}

// Relay returns the active relay. Valid after Start.
func (m *Module) Relay() Relay {
	return m.relay
}

// Publisher returns the event publisher. Valid after Start.
func (m *Module) Publisher() *EventPublisher {
	return m.publisher
}

// Start connects the configured backend.
func (m *Module) Start(ctx context.Context) error {
	codec, err := CodecByName(m.config.Codec)
	if err != nil {
		return err
	}

	switch m.config.Backend {
	case BackendMemory:
		m.relay = NewMemory(m.config.QueueSize, m.logger)
	case BackendNATS:
		m.relay, err = ConnectNATS(m.config.NATSURL, codec, m.logger)
	case BackendNATSEmbedded:
		m.relay, err = m.startEmbedded(codec)
	case BackendRedis:
		ctx, cancel := context.WithTimeout(ctx, m.config.ConnectTimeout)
		defer cancel()
		m.relay, err = ConnectRedis(ctx, m.config.RedisAddr, m.config.RedisPrefix, codec, m.logger)
	default:
		return fmt.Errorf("unknown relay backend %q", m.config.Backend)
	}
	if err != nil {
		return err
	}

	m.publisher = NewEventPublisher(m.relay, m.logger)
	m.logger.Info("Relay module started", "backend", m.config.Backend, "codec", codec.Name())
	return nil
}

// startEmbedded runs a NATS server inside the process and connects to it.
func (m *Module) startEmbedded(codec Codec) (Relay, error) {
	ns, err := server.NewServer(&server.Options{
		Host:   "127.0.0.1",
		Port:   server.RANDOM_PORT,
		NoLog:  true,
		NoSigs: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedded NATS server: %w", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(m.config.ConnectTimeout) {
		ns.Shutdown()
		return nil, errors.New("embedded NATS server not ready")
	}
	m.embedded = ns
	m.logger.Info("Embedded NATS server listening", "url", ns.ClientURL())
	return ConnectNATS(ns.ClientURL(), codec, m.logger)
}

// Stop closes the relay.
func (m *Module) Stop(_ context.Context) error {
	var err error
	if m.relay != nil {
		err = m.relay.Close()
	}
	if m.embedded != nil {
		m.embedded.Shutdown()
		m.embedded.WaitForShutdown()
	}
	m.logger.Info("Relay module stopped")
	return err
}

// Health reports backend connectivity and publish counters.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	if m.relay == nil {
		return mono.HealthStatus{Healthy: false, Message: "relay not started"}
	}

	details := map[string]any{"backend": m.config.Backend}
	if m.publisher != nil {
		stats := m.publisher.Stats()
		details["published"] = stats.Published
		details["publish_failures"] = stats.Failed
	}

	healthy := true
	message := "operational"
	switch r := m.relay.(type) {
	case *Memory:
		details["dropped"] = r.Dropped()
	case *NATS:
		if !r.IsConnected() {
			healthy, message = false, "NATS disconnected"
		}
	case *Redis:
		if err := r.Ping(ctx); err != nil {
			healthy, message = false, fmt.Sprintf("Redis ping failed: %v", err)
		}
	}

	return mono.HealthStatus{Healthy: healthy, Message: message, Details: details}
}
