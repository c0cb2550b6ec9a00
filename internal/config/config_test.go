package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
gateway:
  url: wss://example.test/gateway
  hello_timeout: 5s
  resume_window: 2m
  max_reconnects: 4
claim:
  api_base: https://example.test/api
  targets: ["111", "222"]
  rotate: true
  stop_after_first: false
  retries: 7
  cooldown: 45s
  ignore: ["333"]
notify:
  webhook_url: https://example.test/hook
tokens:
  valid_file: /tmp/valid.txt
  invalid_file: /tmp/invalid.txt
health:
  report_interval: 30s
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Gateway.URL != "wss://example.test/gateway" {
		t.Errorf("Gateway.URL = %q", cfg.Gateway.URL)
	}
	if cfg.Gateway.HelloTimeout.Std() != 5*time.Second {
		t.Errorf("Gateway.HelloTimeout = %v, want 5s", cfg.Gateway.HelloTimeout)
	}
	if cfg.Gateway.ResumeWindow.Std() != 2*time.Minute {
		t.Errorf("Gateway.ResumeWindow = %v, want 2m", cfg.Gateway.ResumeWindow)
	}
	if cfg.Gateway.MaxReconnects != 4 {
		t.Errorf("Gateway.MaxReconnects = %d, want 4", cfg.Gateway.MaxReconnects)
	}
	if got := len(cfg.Claim.Targets); got != 2 {
		t.Errorf("len(Claim.Targets) = %d, want 2", got)
	}
	if !cfg.Claim.Rotate {
		t.Error("Claim.Rotate = false, want true")
	}
	if cfg.Claim.StopAfterFirst {
		t.Error("Claim.StopAfterFirst = true, want false")
	}
	if cfg.Claim.Retries != 7 {
		t.Errorf("Claim.Retries = %d, want 7", cfg.Claim.Retries)
	}
	if cfg.Claim.Cooldown.Std() != 45*time.Second {
		t.Errorf("Claim.Cooldown = %v, want 45s", cfg.Claim.Cooldown)
	}
	if cfg.Notify.WebhookURL != "https://example.test/hook" {
		t.Errorf("Notify.WebhookURL = %q", cfg.Notify.WebhookURL)
	}
	if cfg.Health.ReportInterval.Std() != 30*time.Second {
		t.Errorf("Health.ReportInterval = %v, want 30s", cfg.Health.ReportInterval)
	}
}

func TestDurationForms(t *testing.T) {
	path := writeConfig(t, `
claim:
  targets: ["111"]
  cooldown: 90
gateway:
  hello_timeout: 1m30s
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Claim.Cooldown.Std() != 90*time.Second {
		t.Errorf("bare-integer cooldown = %v, want 90s", cfg.Claim.Cooldown)
	}
	if cfg.Gateway.HelloTimeout.Std() != 90*time.Second {
		t.Errorf("compound hello_timeout = %v, want 1m30s", cfg.Gateway.HelloTimeout)
	}

	bad := writeConfig(t, "claim:\n  targets: [\"111\"]\n  cooldown: soon\n")
	if _, err := Load(bad); err == nil {
		t.Fatal("Load accepted an unparseable duration")
	}
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
claim:
  targets: ["111"]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	def := defaultConfig()
	if cfg.Gateway.URL != def.Gateway.URL {
		t.Errorf("Gateway.URL = %q, want default %q", cfg.Gateway.URL, def.Gateway.URL)
	}
	if cfg.Gateway.HelloTimeout != def.Gateway.HelloTimeout {
		t.Errorf("Gateway.HelloTimeout = %v, want default %v", cfg.Gateway.HelloTimeout, def.Gateway.HelloTimeout)
	}
	if cfg.Claim.Retries != def.Claim.Retries {
		t.Errorf("Claim.Retries = %d, want default %d", cfg.Claim.Retries, def.Claim.Retries)
	}
	if !cfg.Claim.StopAfterFirst {
		t.Error("Claim.StopAfterFirst default should be true")
	}
	if cfg.Tokens.ValidFile != def.Tokens.ValidFile {
		t.Errorf("Tokens.ValidFile = %q, want default %q", cfg.Tokens.ValidFile, def.Tokens.ValidFile)
	}
}

func TestLoadRejectsMissingTargets(t *testing.T) {
	path := writeConfig(t, `
gateway:
  url: wss://example.test/gateway
`)

	if _, err := Load(path); err == nil {
		t.Fatal("Load accepted config with no claim targets")
	}
}

func TestLoadRejectsNegativeValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"negative retries", "claim:\n  targets: [\"1\"]\n  retries: -1\n"},
		{"negative cooldown", "claim:\n  targets: [\"1\"]\n  cooldown: -5s\n"},
		{"negative reconnects", "claim:\n  targets: [\"1\"]\ngateway:\n  max_reconnects: -2\n"},
	}

	for _, tt := range tests {
		path := writeConfig(t, tt.yaml)
		if _, err := Load(path); err == nil {
			t.Errorf("%s: Load accepted invalid config", tt.name)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("Load of missing file did not error")
	}
}

func TestIgnored(t *testing.T) {
	c := ClaimConfig{Ignore: []string{"111", "222"}}

	tests := []struct {
		id   string
		want bool
	}{
		{"111", true},
		{"222", true},
		{"333", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := c.Ignored(tt.id); got != tt.want {
			t.Errorf("Ignored(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}
