package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/example/realtime-chatroom/client"
	"github.com/example/realtime-chatroom/client/dispatch"
	"github.com/example/realtime-chatroom/client/subscribe"
	"github.com/example/realtime-chatroom/modules/relay"
)

const requestTimeout = 15 * time.Second

// session is a started client plus the relay connection it reads from,
// if any.
type session struct {
	*client.Client
	relay relay.Relay
}

func (s *session) Close() error {
	err := s.Client.Close()
	if s.relay != nil {
		err = errors.Join(err, s.relay.Close())
	}
	return err
}

// newSession starts a client for the configured identity.
func newSession(ctx context.Context) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Auth.Token == "" || cfg.Auth.UserID == "" {
		return nil, errors.New("not signed in. Run 'chatcli token <user-id>' first")
	}

	rl, err := openRelay(ctx, cfg.Server)
	if err != nil {
		return nil, err
	}
	var transport subscribe.Transport
	if rl != nil {
		transport = rl
	}

	c, err := client.New(client.Config{
		BaseURL:   cfg.Server.BaseURL,
		Token:     cfg.Auth.Token,
		UserID:    cfg.Auth.UserID,
		Handle:    cfg.Auth.Handle,
		Transport: transport,
	})
	if err != nil {
		if rl != nil {
			rl.Close()
		}
		return nil, err
	}
	s := &session{Client: c, relay: rl}
	if err := c.Start(ctx); err != nil {
		s.Close()
		return nil, friendly(err)
	}
	return s, nil
}

// openRelay connects to the relay directly for the nats and redis
// transports. It returns nil for the gateway transport.
func openRelay(ctx context.Context, server ConfigServer) (relay.Relay, error) {
	if server.Transport == "" || server.Transport == defaultTransport {
		return nil, nil
	}

	defaults := relay.DefaultConfig()
	codecName := server.Codec
	if codecName == "" {
		codecName = defaults.Codec
	}
	codec, err := relay.CodecByName(codecName)
	if err != nil {
		return nil, err
	}

	switch server.Transport {
	case relay.BackendNATS:
		url := server.NATSURL
		if url == "" {
			url = defaults.NATSURL
		}
		return relay.ConnectNATS(url, codec, nil)
	case relay.BackendRedis:
		addr, prefix := server.RedisAddr, server.RedisPrefix
		if addr == "" {
			addr = defaults.RedisAddr
		}
		if prefix == "" {
			prefix = defaults.RedisPrefix
		}
		return relay.ConnectRedis(ctx, addr, prefix, codec, nil)
	default:
		return nil, fmt.Errorf("unknown transport %q", server.Transport)
	}
}

// run executes fn with a started client and a request timeout.
func run(fn func(ctx context.Context, c *client.Client) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	s, err := newSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()
	return friendly(fn(ctx, s.Client))
}

// friendly replaces server errors with their user-facing message.
func friendly(err error) error {
	if err == nil {
		return nil
	}
	var httpErr *dispatch.HTTPError
	if errors.As(err, &httpErr) {
		return errors.New(dispatch.UserMessage(err))
	}
	return err
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseTTL(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid ttl %q: %w", s, err)
	}
	return d, nil
}
