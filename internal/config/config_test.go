package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseTTL(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"15m", 15 * time.Minute, false},
		{"2h", 2 * time.Hour, false},
		{"7d", 7 * 24 * time.Hour, false},
		{" 30m ", 30 * time.Minute, false},
		{"", 0, true},
		{"0m", 0, true},
		{"15", 0, true},
		{"15s", 0, true},
		{"m", 0, true},
		{"-5m", 0, true},
		{"1.5h", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseTTL(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseTTL(%q) = %v, want error", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseTTL(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseTTL(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("COURSEBASE_AUTH_SECRET", "env-secret")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if cfg.AccessTokenTTL() != 15*time.Minute {
		t.Errorf("AccessTokenTTL = %v", cfg.AccessTokenTTL())
	}
	if cfg.RefreshTokenTTL() != 7*24*time.Hour {
		t.Errorf("RefreshTokenTTL = %v", cfg.RefreshTokenTTL())
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
		t.Errorf("Log = %+v", cfg.Log)
	}
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("COURSEBASE_AUTH_SECRET", "")
	if _, err := Load(""); err == nil {
		t.Fatal("Load without a secret must fail")
	}
}

func TestLoadFileAndEnvOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`
addr: ":9090"
auth:
  secret: file-secret
  access_token_ttl: 30m
  refresh_token_ttl: 14d
log:
  level: debug
  format: console
oauth:
  redirect_base_url: https://app.example.com
  google:
    client_id: g-id
    client_secret: g-secret
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	// Environment wins over the file.
	t.Setenv("COURSEBASE_AUTH_SECRET", "env-secret")
	t.Setenv("COURSEBASE_ACCESS_TOKEN_TTL", "45m")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":9090" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if cfg.Auth.Secret != "env-secret" {
		t.Errorf("Secret = %q, env must win", cfg.Auth.Secret)
	}
	if cfg.AccessTokenTTL() != 45*time.Minute {
		t.Errorf("AccessTokenTTL = %v", cfg.AccessTokenTTL())
	}
	if cfg.RefreshTokenTTL() != 14*24*time.Hour {
		t.Errorf("RefreshTokenTTL = %v", cfg.RefreshTokenTTL())
	}
	if cfg.OAuth.Google.ClientID != "g-id" {
		t.Errorf("Google.ClientID = %q", cfg.OAuth.Google.ClientID)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "console" {
		t.Errorf("Log = %+v", cfg.Log)
	}
}

func TestLoadRejectsBadTTL(t *testing.T) {
	t.Setenv("COURSEBASE_AUTH_SECRET", "s")
	t.Setenv("COURSEBASE_ACCESS_TOKEN_TTL", "15s")
	if _, err := Load(""); err == nil {
		t.Fatal("invalid TTL must fail validation")
	}
}
