package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  endpoint: http://chat.example.com:9000
  reconnectDelayMs: 250
chat:
  sender: alice
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Endpoint != "http://chat.example.com:9000" {
		t.Fatalf("endpoint not loaded: %q", cfg.Server.Endpoint)
	}
	if cfg.Server.ReconnectDelayMs != 250 {
		t.Fatalf("reconnectDelayMs not loaded: %d", cfg.Server.ReconnectDelayMs)
	}
	// Untouched fields keep their defaults.
	if cfg.Server.Path != "/ws/chat/" {
		t.Fatalf("default path lost: %q", cfg.Server.Path)
	}
	if cfg.Server.MaxReconnectAttempts != 5 {
		t.Fatalf("default attempts lost: %d", cfg.Server.MaxReconnectAttempts)
	}
	if cfg.Chat.Sender != "alice" {
		t.Fatalf("sender not loaded: %q", cfg.Chat.Sender)
	}
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("CHATLINK_TEST_ENDPOINT", "http://env.example.com")
	path := writeConfig(t, `
server:
  endpoint: ${CHATLINK_TEST_ENDPOINT}
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Endpoint != "http://env.example.com" {
		t.Fatalf("env var not expanded: %q", cfg.Server.Endpoint)
	}
}

func TestExpandEnvVars_Default(t *testing.T) {
	os.Unsetenv("CHATLINK_TEST_UNSET")
	got := ExpandEnvVars("${CHATLINK_TEST_UNSET:-fallback}")
	if got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
	// No default and unset: keep the literal so the error is visible.
	got = ExpandEnvVars("${CHATLINK_TEST_UNSET}")
	if got != "${CHATLINK_TEST_UNSET}" {
		t.Fatalf("expected literal kept, got %q", got)
	}
}

func TestLoad_RejectsUnknownTransport(t *testing.T) {
	path := writeConfig(t, `
server:
  transports: [websocket, carrier-pigeon]
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "carrier-pigeon") {
		t.Fatalf("error should name the bad transport: %v", err)
	}
}

func TestLoad_RejectsBadLogLevel(t *testing.T) {
	path := writeConfig(t, `
general:
  logLevel: verbose
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for bad log level")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	cfg := Defaults()
	cfg.Chat.Sender = "bob"
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Chat.Sender != "bob" {
		t.Fatalf("round trip lost sender: %q", loaded.Chat.Sender)
	}
}

func TestValidate_Defaults(t *testing.T) {
	if err := Validate(Defaults()); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}
