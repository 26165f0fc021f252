package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
)

// Hotkey modes.
const (
	ModeToggle     = "Toggle"
	ModePushToTalk = "PushToTalk"
)

const (
	DefaultBaseURL         = "https://api.nexara.ru/api/v1"
	DefaultDiarizationMode = "general"
	DefaultUserName        = "Unknown user"
)

// Settings is the persisted user configuration.
type Settings struct {
	APIKey   string `json:"api_key"`
	BaseURL  string `json:"base_url" validate:"required,url"`
	ProxyURL string `json:"proxy_url,omitempty" validate:"omitempty,url"`

	UserName   string `json:"user_name"`
	TelegramID string `json:"telegram_id"`

	Diarization     bool   `json:"diarization"`
	DiarizationMode string `json:"diarization_mode" validate:"omitempty,oneof=general meeting telephonic"`
	NumSpeakers     int    `json:"num_speakers" validate:"gte=0,lte=10"`
	Language        string `json:"language"`

	Hotkey          string      `json:"hotkey"`
	HotkeyDarwin    string      `json:"hotkey_darwin"`
	Mode            string      `json:"mode" validate:"omitempty,oneof=Toggle PushToTalk"`
	Audio           AudioConfig `json:"audio"`
	CopyToClipboard bool        `json:"copy_to_clipboard"`
	LogLevel        string      `json:"log_level"`

	Webhooks           []WebhookPreset `json:"webhooks" validate:"dive"`
	ActiveWebhookIndex int             `json:"active_webhook_index" validate:"gte=0"`
}

type AudioConfig struct {
	DeviceID string `json:"device_id"`
	// RecordSystemAudio mixes the loopback device into the recording.
	RecordSystemAudio bool `json:"record_system_audio"`
	// SystemAudioDevice names the loopback input (BlackHole, a PulseAudio monitor, ...).
	SystemAudioDevice string `json:"system_audio_device"`
}

// WebhookPreset is a named delivery target. An empty URL means "not configured".
type WebhookPreset struct {
	Name string `json:"name" validate:"required"`
	URL  string `json:"url" validate:"omitempty,url"`
}

// Defaults returns the settings used when no file exists yet.
func Defaults() Settings {
	return Settings{
		BaseURL:         DefaultBaseURL,
		DiarizationMode: DefaultDiarizationMode,
		Language:        "auto",
		Hotkey:          "Alt+Space",
		HotkeyDarwin:    "Ctrl+Space",
		Mode:            ModeToggle,
		LogLevel:        "info",
		Webhooks:        []WebhookPreset{{Name: "Default"}},
	}
}

// ActiveWebhook returns the selected preset. ok is false when the list is
// empty or the index is out of range.
func (s Settings) ActiveWebhook() (WebhookPreset, bool) {
	if s.ActiveWebhookIndex < 0 || s.ActiveWebhookIndex >= len(s.Webhooks) {
		return WebhookPreset{}, false
	}
	return s.Webhooks[s.ActiveWebhookIndex], true
}

// PlatformHotkey returns the appropriate hotkey for the current platform
func (s Settings) PlatformHotkey() string {
	if runtime.GOOS == "darwin" && s.HotkeyDarwin != "" {
		return s.HotkeyDarwin
	}
	return s.Hotkey
}

func (s Settings) clone() Settings {
	out := s
	out.Webhooks = append([]WebhookPreset(nil), s.Webhooks...)
	return out
}

// normalize fills fields an older or hand-edited file may have left blank.
func (s *Settings) normalize() {
	if s.BaseURL == "" {
		s.BaseURL = DefaultBaseURL
	}
	if s.DiarizationMode == "" {
		s.DiarizationMode = DefaultDiarizationMode
	}
	if s.Mode == "" {
		s.Mode = ModeToggle
	}
	if len(s.Webhooks) == 0 {
		s.Webhooks = []WebhookPreset{{Name: "Default"}}
	}
	if s.ActiveWebhookIndex >= len(s.Webhooks) || s.ActiveWebhookIndex < 0 {
		s.ActiveWebhookIndex = 0
	}
}

// Store guards the settings shared by the tray, the hotkey handler and the
// orchestrator.
type Store struct {
	mu       sync.RWMutex
	path     string
	settings Settings
}

// Load reads the settings from the platform config path or returns defaults.
func Load() (*Store, error) {
	return LoadFrom(Path())
}

// LoadFrom reads the settings stored at path. A missing file yields defaults.
func LoadFrom(path string) (*Store, error) {
	settings := Defaults()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &settings); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	settings.normalize()
	return &Store{path: path, settings: settings}, nil
}

// NewStore wraps in-memory settings; Save writes to path when it is not empty.
func NewStore(path string, s Settings) *Store {
	s.normalize()
	return &Store{path: path, settings: s.clone()}
}

// Snapshot returns a copy safe to read without further locking.
func (s *Store) Snapshot() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings.clone()
}

// Update applies fn to a copy, validates it and persists it. The stored
// settings are left untouched when validation or saving fails.
func (s *Store) Update(fn func(*Settings)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.settings.clone()
	fn(&next)
	next.normalize()

	if err := Validate(next); err != nil {
		return err
	}
	if err := write(s.path, next); err != nil {
		return err
	}
	s.settings = next
	return nil
}

// Save writes the current settings to disk
func (s *Store) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return write(s.path, s.settings)
}

func (s *Store) Path() string {
	return s.path
}

func write(path string, settings Settings) error {
	if path == "" {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}

	// The file carries the API key.
	return os.WriteFile(path, data, 0o600)
}

// Path returns the platform-specific settings file path
func Path() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("APPDATA")
	default: // linux
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.config"
		}
	}

	return filepath.Join(base, "nexara-tray", "config.json")
}
