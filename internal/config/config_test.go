package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.WeekStart != "monday" {
		t.Fatalf("expected monday week start, got %q", cfg.WeekStart)
	}
	if cfg.AutosaveDelay != 2*time.Second {
		t.Fatalf("expected 2s autosave delay, got %s", cfg.AutosaveDelay)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("expected 0600 permissions, got %o", perm)
	}
}

func TestLoadNormalizesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := []byte("api_url: https://api.example.com/v1/\nweek_start: Sunday\nautosave_delay: 3s\nsubscriptions:\n  - id: holidays\n    url: https://example.com/h.ics\n")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIURL != "https://api.example.com/v1" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.APIURL)
	}
	if cfg.WeekStart != "sunday" {
		t.Fatalf("expected sunday, got %q", cfg.WeekStart)
	}
	if cfg.AutosaveDelay != 3*time.Second {
		t.Fatalf("expected 3s, got %s", cfg.AutosaveDelay)
	}
	if cfg.Listen != defaultListen {
		t.Fatalf("expected default listen, got %q", cfg.Listen)
	}
	if len(cfg.Subscriptions) != 1 || cfg.Subscriptions[0].ID != "holidays" {
		t.Fatalf("unexpected subscriptions: %+v", cfg.Subscriptions)
	}
}

func TestSaveRoundTripKeepsValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.Timezone = "Asia/Seoul"
	cfg.BasicAuth = &BasicAuthConfig{Username: "me", Password: "secret"}

	if err := cfg.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Timezone != "Asia/Seoul" {
		t.Fatalf("expected timezone to persist, got %q", loaded.Timezone)
	}
	if loaded.BasicAuth == nil || loaded.BasicAuth.Username != "me" {
		t.Fatalf("expected basic auth to persist, got %+v", loaded.BasicAuth)
	}
}

func TestApplyEnvOverridesFile(t *testing.T) {
	cfg := DefaultConfig()
	env := map[string]string{
		EnvAPIURL:      "https://prod.example.com/api/",
		EnvIdentityKey: "-----BEGIN PUBLIC KEY-----",
	}
	cfg.ApplyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})

	if cfg.APIURL != "https://prod.example.com/api" {
		t.Fatalf("unexpected api url %q", cfg.APIURL)
	}
	if cfg.IdentityPublicKey == "" {
		t.Fatalf("expected identity key from env")
	}
}

func TestLocationFallsBackToLocal(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timezone = "Nowhere/Invalid"
	loc, err := cfg.Location()
	if err == nil {
		t.Fatalf("expected error for invalid zone")
	}
	if loc != time.Local {
		t.Fatalf("expected time.Local fallback")
	}
}
