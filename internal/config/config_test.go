package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zalando/go-keyring"
)

func TestFindConfig_Explicit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	os.WriteFile(path, []byte("listen:\n  port: 9999\n"), 0600)

	got, err := FindConfig(path)
	if err != nil {
		t.Fatalf("FindConfig(%q) error: %v", path, err)
	}
	if got != path {
		t.Errorf("FindConfig(%q) = %q, want %q", path, got, path)
	}
}

func TestFindConfig_ExplicitMissing(t *testing.T) {
	_, err := FindConfig("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("FindConfig with missing explicit path should error")
	}
}

func TestFindConfig_CWD(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("listen:\n  port: 8080\n"), 0600)

	orig, _ := os.Getwd()
	os.Chdir(dir)
	defer os.Chdir(orig)

	got, err := FindConfig("")
	if err != nil {
		t.Fatalf("FindConfig(\"\") error: %v", err)
	}
	if got != "config.yaml" {
		t.Errorf("FindConfig(\"\") = %q, want %q", got, "config.yaml")
	}
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("llm:\n  api_key: ${AXIS_TEST_KEY}\n"), 0600)
	t.Setenv("AXIS_TEST_KEY", "sk-test-123")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.LLM.APIKey != "sk-test-123" {
		t.Errorf("api_key = %q, want %q", cfg.LLM.APIKey, "sk-test-123")
	}
}

func TestLoad_AppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("llm:\n  provider: anthropic\n"), 0600)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Listen.Port != 3000 {
		t.Errorf("port = %d, want 3000", cfg.Listen.Port)
	}
	if cfg.LLM.Model != "claude-sonnet-4-20250514" {
		t.Errorf("model = %q, want anthropic default", cfg.LLM.Model)
	}
	if cfg.Agent.MaxSteps != 6 || cfg.Agent.MaxTasks != 120 || cfg.Agent.MaxHabits != 80 {
		t.Errorf("agent limits = %+v, want 6/120/80", cfg.Agent)
	}
	if cfg.PublicURL != "http://localhost:3000" {
		t.Errorf("public_url = %q", cfg.PublicURL)
	}
	if cfg.Database.Driver != "sqlite3" {
		t.Errorf("driver = %q, want sqlite3", cfg.Database.Driver)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults valid", func(*Config) {}, ""},
		{"bad provider", func(c *Config) { c.LLM.Provider = "gemini" }, "llm.provider"},
		{"bad driver", func(c *Config) { c.Database.Driver = "postgres" }, "database.driver"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "unknown log level"},
		{"steps too high", func(c *Config) { c.Agent.MaxSteps = 50 }, "agent.max_steps"},
		{"bad format", func(c *Config) { c.LogFormat = "xml" }, "log_format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateServe_RequiresSecret(t *testing.T) {
	cfg := Default()
	if err := cfg.ValidateServe(); err == nil {
		t.Fatal("ValidateServe() without jwt_secret should error")
	}
	cfg.Auth.JWTSecret = "0123456789abcdef0123"
	if err := cfg.ValidateServe(); err != nil {
		t.Fatalf("ValidateServe() = %v", err)
	}
}

func TestResolveAPIKey(t *testing.T) {
	keyring.MockInit()

	cfg := Default()
	cfg.LLM.APIKey = "inline"
	if got, err := cfg.ResolveAPIKey(); err != nil || got != "inline" {
		t.Errorf("inline: got %q, %v", got, err)
	}

	cfg.LLM.APIKey = ""
	if _, err := cfg.ResolveAPIKey(); err == nil {
		t.Error("missing key without keyring should error")
	}

	cfg.LLM.APIKeyFromKeyring = true
	if err := keyring.Set(KeyringService, "openai", "from-keyring"); err != nil {
		t.Fatalf("keyring.Set: %v", err)
	}
	if got, err := cfg.ResolveAPIKey(); err != nil || got != "from-keyring" {
		t.Errorf("keyring: got %q, %v", got, err)
	}

	cfg.LLM.Provider = "ollama"
	cfg.LLM.APIKeyFromKeyring = false
	if got, err := cfg.ResolveAPIKey(); err != nil || got != "" {
		t.Errorf("ollama: got %q, %v", got, err)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"", slog.LevelInfo},
		{"TRACE", LevelTrace},
		{" debug ", slog.LevelDebug},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLogLevel(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
}

func TestNewLogger_RendersTrace(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, LevelTrace, "text")
	logger.Log(t.Context(), LevelTrace, "payload")
	if !strings.Contains(buf.String(), "level=TRACE") {
		t.Errorf("expected TRACE level in output, got %q", buf.String())
	}
}

func TestLogWriter_File(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "axis.log")
	w, closeFn := LogWriter(&buf, LogFileConfig{Path: path, MaxSizeMB: 1, MaxBackups: 1, MaxAgeDays: 1})
	defer closeFn()

	if _, err := w.Write([]byte("hello\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "hello\n" || buf.String() != "hello\n" {
		t.Errorf("file = %q, stdout = %q", data, buf.String())
	}
}
