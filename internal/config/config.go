// Package config loads and validates the chatlink client configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the chatlink client.
type Config struct {
	General GeneralConfig `yaml:"general"`
	Server  ServerConfig  `yaml:"server"`
	Chat    ChatConfig    `yaml:"chat"`
	Audio   AudioConfig   `yaml:"audio"`
}

type GeneralConfig struct {
	LogLevel string `yaml:"logLevel"` // debug | info | warn | error
}

// ServerConfig holds the connection parameters for the chat endpoint.
type ServerConfig struct {
	Endpoint             string   `yaml:"endpoint"`             // base address, e.g. http://localhost:8000
	Path                 string   `yaml:"path"`                 // logical channel path
	Transports           []string `yaml:"transports"`           // preference order
	ReconnectDelayMs     int      `yaml:"reconnectDelayMs"`     // fixed delay between attempts
	MaxReconnectAttempts int      `yaml:"maxReconnectAttempts"` // budget before terminal disconnect
	HandshakeTimeoutMs   int      `yaml:"handshakeTimeoutMs"`
}

type ChatConfig struct {
	Sender string `yaml:"sender"` // display name attached to outbound messages
}

type AudioConfig struct {
	// ArtifactPath is the single fixed slot voice recordings are captured
	// into; each new recording overwrites it.
	ArtifactPath string `yaml:"artifactPath"`
	// RecordCommand is the capture argv; the artifact path is appended.
	RecordCommand []string `yaml:"recordCommand"`
}

// DefaultConfigDir returns ~/.chatlink.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".chatlink"
	}
	return filepath.Join(home, ".chatlink")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Defaults returns the configuration used when no file is present.
func Defaults() *Config {
	return &Config{
		General: GeneralConfig{LogLevel: "info"},
		Server: ServerConfig{
			Endpoint:             "http://localhost:8000",
			Path:                 "/ws/chat/",
			Transports:           []string{"websocket", "polling"},
			ReconnectDelayMs:     1000,
			MaxReconnectAttempts: 5,
			HandshakeTimeoutMs:   20000,
		},
		Chat: ChatConfig{Sender: "anonymous"},
		Audio: AudioConfig{
			ArtifactPath: filepath.Join(DefaultConfigDir(), "voice-note.wav"),
		},
	}
}

// Load reads, env-expands and validates the config at path.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.Audio.ArtifactPath = ExpandPath(cfg.Audio.ArtifactPath)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Save writes the config as YAML, creating the directory if needed.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is
// unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match
		}
		return val
	})
}

// Validate checks that the config has usable values.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Endpoint == "" {
		errs = append(errs, "server.endpoint is required")
	}
	if cfg.Server.Path == "" {
		errs = append(errs, "server.path is required")
	}
	if cfg.Server.ReconnectDelayMs < 0 {
		errs = append(errs, "server.reconnectDelayMs must be >= 0")
	}
	if cfg.Server.MaxReconnectAttempts < 1 {
		errs = append(errs, "server.maxReconnectAttempts must be >= 1")
	}
	if cfg.Server.HandshakeTimeoutMs < 1 {
		errs = append(errs, "server.handshakeTimeoutMs must be >= 1")
	}
	for _, t := range cfg.Server.Transports {
		switch t {
		case "websocket", "polling":
		default:
			errs = append(errs, fmt.Sprintf("server.transports: unknown transport %q", t))
		}
	}
	switch cfg.General.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	if cfg.Audio.ArtifactPath == "" {
		errs = append(errs, "audio.artifactPath is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
