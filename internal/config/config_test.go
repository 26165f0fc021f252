package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFromMissingFileReturnsDefaults(t *testing.T) {
	store, err := LoadFrom(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s := store.Snapshot()
	if s.BaseURL != DefaultBaseURL {
		t.Errorf("expected default base url, got %q", s.BaseURL)
	}
	if s.Mode != ModeToggle {
		t.Errorf("expected Toggle mode by default, got %q", s.Mode)
	}
	if len(s.Webhooks) != 1 || s.Webhooks[0].Name != "Default" {
		t.Errorf("expected a Default webhook preset, got %+v", s.Webhooks)
	}
}

func TestLoadFromNormalizesEmptyWebhookList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{"api_key":"k","base_url":"","webhooks":[],"active_webhook_index":4}`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	store, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s := store.Snapshot()
	if s.APIKey != "k" {
		t.Errorf("expected api key to survive load, got %q", s.APIKey)
	}
	if s.BaseURL != DefaultBaseURL {
		t.Errorf("expected blank base url to fall back to default, got %q", s.BaseURL)
	}
	if s.ActiveWebhookIndex != 0 {
		t.Errorf("expected out-of-range index to reset, got %d", s.ActiveWebhookIndex)
	}
}

func TestLoadFromRejectsMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadFrom(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestActiveWebhook(t *testing.T) {
	s := Settings{
		Webhooks: []WebhookPreset{
			{Name: "first", URL: "https://a.example/hook"},
			{Name: "second", URL: "https://b.example/hook"},
		},
		ActiveWebhookIndex: 1,
	}

	got, ok := s.ActiveWebhook()
	if !ok || got.Name != "second" {
		t.Fatalf("expected second preset, got %+v (ok=%v)", got, ok)
	}

	s.Webhooks = nil
	if _, ok := s.ActiveWebhook(); ok {
		t.Fatal("expected no active webhook for an empty list")
	}
}

func TestSnapshotIsIsolated(t *testing.T) {
	store := NewStore("", Defaults())

	snap := store.Snapshot()
	snap.Webhooks[0].URL = "https://mutated.example"

	if got := store.Snapshot().Webhooks[0].URL; got != "" {
		t.Fatalf("snapshot mutation leaked into store: %q", got)
	}
}

func TestUpdatePersistsAndValidates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	store := NewStore(path, Defaults())

	err := store.Update(func(s *Settings) {
		s.APIKey = "secret"
		s.NumSpeakers = 3
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reloaded, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := reloaded.Snapshot(); got.APIKey != "secret" || got.NumSpeakers != 3 {
		t.Fatalf("update not persisted: %+v", got)
	}

	err = store.Update(func(s *Settings) { s.NumSpeakers = 11 })
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Fields[0].Field != "num_speakers" {
		t.Errorf("expected num_speakers field, got %q", verr.Fields[0].Field)
	}
	if store.Snapshot().NumSpeakers != 3 {
		t.Error("rejected update must not change stored settings")
	}
}

func TestValidateWebhookURL(t *testing.T) {
	s := Defaults()
	s.Webhooks = []WebhookPreset{{Name: "bad", URL: "not a url"}}

	if err := Validate(s); err == nil {
		t.Fatal("expected invalid webhook url to be rejected")
	}

	s.Webhooks[0].URL = "https://hooks.example/abc"
	if err := Validate(s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadProxyDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadProxy("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != DefaultProxyPort {
		t.Errorf("expected port %d, got %d", DefaultProxyPort, cfg.Port)
	}
	if cfg.UpstreamURL != DefaultUpstreamURL {
		t.Errorf("unexpected upstream %q", cfg.UpstreamURL)
	}
	if cfg.RequestTimeout != 5*time.Minute {
		t.Errorf("unexpected timeout %v", cfg.RequestTimeout)
	}
	if cfg.MaxUploadBytes() != 100<<20 {
		t.Errorf("unexpected upload cap %d", cfg.MaxUploadBytes())
	}
}

func TestLoadProxyFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("NEXARA_PROXY_PORT", "8088")
	t.Setenv("NEXARA_PROXY_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg, err := LoadProxy("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != 8088 {
		t.Errorf("expected port from env, got %d", cfg.Port)
	}
	if len(cfg.AllowedOrigins) != 2 {
		t.Errorf("expected two origins, got %v", cfg.AllowedOrigins)
	}
	if cfg.Addr() != ":8088" {
		t.Errorf("unexpected addr %q", cfg.Addr())
	}
}

func TestLoadProxyEnvFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	envFile := filepath.Join(dir, "proxy.env")
	if err := os.WriteFile(envFile, []byte("NEXARA_PROXY_UPSTREAM_URL=http://127.0.0.1:9/transcribe\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("NEXARA_PROXY_UPSTREAM_URL") })

	cfg, err := LoadProxy(envFile)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.UpstreamURL != "http://127.0.0.1:9/transcribe" {
		t.Errorf("expected upstream from env file, got %q", cfg.UpstreamURL)
	}
}

func TestLoadProxyMissingEnvFile(t *testing.T) {
	if _, err := LoadProxy(filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Fatal("expected error for explicit missing env file")
	}
}
