package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/example/realtime-chatroom/modules/auth"
)

// Config is the CLI configuration stored in ~/.chatcli.toml.
type Config struct {
	Server ConfigServer `toml:"server"`
	Auth   ConfigAuth   `toml:"auth"`
}

// ConfigServer holds the server address and how events reach the CLI.
type ConfigServer struct {
	BaseURL string `toml:"base_url"`
	// Transport is "ws" (the server's /ws gateway), "nats" or "redis". The
	// latter two read the relay directly and are meant for deployments
	// where the CLI runs next to the server.
	Transport   string `toml:"transport"`
	NATSURL     string `toml:"nats_url,omitempty"`
	RedisAddr   string `toml:"redis_addr,omitempty"`
	RedisPrefix string `toml:"redis_prefix,omitempty"`
	Codec       string `toml:"codec,omitempty"`
}

// ConfigAuth holds the signed-in identity.
type ConfigAuth struct {
	Token  string `toml:"token"`
	UserID string `toml:"user_id"`
	Handle string `toml:"handle"`
}

const (
	defaultBaseURL   = "http://localhost:3000"
	defaultTransport = "ws"
)

var configFile string

func configPath() (string, error) {
	if configFile != "" {
		return configFile, nil
	}
	if path := os.Getenv("CHATCLI_CONFIG"); path != "" {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".chatcli.toml"), nil
}

// loadConfig reads the config file. A missing file yields the defaults.
func loadConfig() (*Config, error) {
	cfg := &Config{Server: ConfigServer{BaseURL: defaultBaseURL, Transport: defaultTransport}}
	path, err := configPath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("cannot read config: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config: %w", err)
	}
	return cfg, nil
}

func saveConfig(cfg *Config) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("cannot write config: %w", err)
	}
	return nil
}

// setConfigValue sets a field by dotted key, e.g. "server.base_url".
func setConfigValue(cfg *Config, key, value string) error {
	section, field, ok := strings.Cut(key, ".")
	if !ok {
		return fmt.Errorf("key must use dot notation: section.field (e.g. server.base_url)")
	}
	switch section + "." + field {
	case "server.base_url":
		cfg.Server.BaseURL = value
	case "server.transport":
		switch value {
		case "ws", "nats", "redis":
		default:
			return fmt.Errorf("transport must be ws, nats or redis")
		}
		cfg.Server.Transport = value
	case "server.nats_url":
		cfg.Server.NATSURL = value
	case "server.redis_addr":
		cfg.Server.RedisAddr = value
	case "server.redis_prefix":
		cfg.Server.RedisPrefix = value
	case "server.codec":
		cfg.Server.Codec = value
	case "auth.token":
		cfg.Auth.Token = value
	case "auth.user_id":
		cfg.Auth.UserID = value
	case "auth.handle":
		cfg.Auth.Handle = value
	default:
		return fmt.Errorf("unknown config key %q", key)
	}
	return nil
}

var tokenTTL string

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default ~/.chatcli.toml)")
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().StringVar(&tokenTTL, "ttl", "", "Token lifetime, e.g. 2h (default 24h)")
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage chatcli configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		data, err := toml.Marshal(cfg)
		if err != nil {
			return err
		}
		fmt.Print(string(data))
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := setConfigValue(cfg, args[0], args[1]); err != nil {
			return err
		}
		if err := saveConfig(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		fmt.Printf("Set %s = %s\n", args[0], args[1])
		return nil
	},
}

// tokenCmd signs a token with the server secret (JWT_SECRET) for local
// development and saves it as the current identity.
var tokenCmd = &cobra.Command{
	Use:   "token <user-id> [handle]",
	Short: "Sign a development token and sign in with it",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, handle := args[0], args[0]
		if len(args) == 2 {
			handle = args[1]
		}
		ttl, err := parseTTL(tokenTTL)
		if err != nil {
			return err
		}

		token, err := auth.NewJWTManager(auth.JWTConfigFromEnv()).IssueToken(userID, handle, ttl)
		if err != nil {
			return fmt.Errorf("failed to sign token: %w", err)
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cfg.Auth = ConfigAuth{Token: token, UserID: userID, Handle: handle}
		if err := saveConfig(cfg); err != nil {
			return err
		}
		fmt.Printf("Signed in as %s (%s)\n", handle, userID)
		return nil
	},
}
