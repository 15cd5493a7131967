package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"
	"golang.org/x/text/language"
)

const DefaultSettingsFile = "/app/config/settings.json"

// Settings is the mutable runtime slice of the configuration: everything a
// user may change while the daemon runs. A change swaps the whole snapshot;
// consumers never see a half-updated value set.
type Settings struct {
	ProviderID          string `json:"provider_id"`
	APIKey              string `json:"api_key"`
	APIURL              string `json:"api_url"`
	Model               string `json:"model"`
	TargetLanguage      string `json:"target_language"`
	DualSubtitleEnabled bool   `json:"dual_subtitle_enabled"`
	AutoPauseEnabled    bool   `json:"auto_pause_enabled"`
	EvictionCronExpr    string `json:"eviction_cron_expr"`
}

func SettingsFilePath() string {
	return getEnvString("SETTINGS_FILE", DefaultSettingsFile)
}

func (s Settings) Validate() error {
	if strings.TrimSpace(s.ProviderID) == "" {
		return fmt.Errorf("provider_id is required")
	}
	if s.ProviderID != "webfree" && strings.TrimSpace(s.APIKey) == "" {
		return fmt.Errorf("api_key is required for provider %q", s.ProviderID)
	}
	if strings.TrimSpace(s.TargetLanguage) == "" {
		return fmt.Errorf("target_language is required")
	}
	if _, err := language.Parse(s.TargetLanguage); err != nil {
		return fmt.Errorf("invalid target_language: %w", err)
	}
	if strings.TrimSpace(s.EvictionCronExpr) == "" {
		return fmt.Errorf("eviction_cron_expr is required")
	}
	if _, err := cron.ParseStandard(s.EvictionCronExpr); err != nil {
		return fmt.Errorf("invalid eviction_cron_expr: %w", err)
	}
	return nil
}

// TargetLanguageTag returns the parsed target language. Validate has already
// established it parses.
func (s Settings) TargetLanguageTag() language.Tag {
	tag, err := language.Parse(s.TargetLanguage)
	if err != nil {
		return language.Und
	}
	return tag
}

// Settings derives the initial runtime settings from the static config.
func (c *Config) Settings() Settings {
	return Settings{
		ProviderID:          c.Provider.ID,
		APIKey:              c.Provider.APIKey,
		APIURL:              c.Provider.APIURL,
		Model:               c.Provider.Model,
		TargetLanguage:      c.Translate.TargetLanguage.String(),
		DualSubtitleEnabled: c.Translate.DualSubtitleEnabled,
		AutoPauseEnabled:    c.Translate.AutoPauseEnabled,
		EvictionCronExpr:    c.Cache.EvictionCronExpr,
	}
}

// WithSettings overlays persisted runtime settings onto the env config.
func WithSettings(settings Settings) Option {
	return func(c *Config) {
		if strings.TrimSpace(settings.ProviderID) != "" {
			c.Provider.ID = settings.ProviderID
		}
		if strings.TrimSpace(settings.APIKey) != "" {
			c.Provider.APIKey = settings.APIKey
		}
		if strings.TrimSpace(settings.APIURL) != "" {
			c.Provider.APIURL = settings.APIURL
		}
		if strings.TrimSpace(settings.Model) != "" {
			c.Provider.Model = settings.Model
		}
		if tag, err := language.Parse(settings.TargetLanguage); err == nil {
			c.Translate.TargetLanguage = tag
		}
		if strings.TrimSpace(settings.EvictionCronExpr) != "" {
			c.Cache.EvictionCronExpr = settings.EvictionCronExpr
		}
		c.Translate.DualSubtitleEnabled = settings.DualSubtitleEnabled
		c.Translate.AutoPauseEnabled = settings.AutoPauseEnabled
	}
}

func LoadSettingsFile(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, err
	}
	var settings Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return Settings{}, fmt.Errorf("invalid settings file: %w", err)
	}
	return settings, nil
}

func WriteSettingsFile(path string, settings Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	content, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	content = append(content, '\n')

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, content, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// SettingsStore holds the current runtime settings, persists updates
// atomically, and fans out change notifications.
type SettingsStore struct {
	path string

	mu      sync.RWMutex
	current Settings
	nextID  int
	subs    map[int]func(Settings)
}

func NewSettingsStore(path string, initial Settings) (*SettingsStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("settings file path is required")
	}
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	return &SettingsStore{
		path:    path,
		current: initial,
		subs:    make(map[int]func(Settings)),
	}, nil
}

func (s *SettingsStore) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Subscribe registers a change callback and returns its cancel function.
// Callbacks run synchronously inside Update, after the new snapshot is
// persisted and installed.
func (s *SettingsStore) Subscribe(fn func(Settings)) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Update validates, persists, installs, and announces a new snapshot.
func (s *SettingsStore) Update(next Settings) (Settings, error) {
	if err := next.Validate(); err != nil {
		return Settings{}, err
	}
	if err := WriteSettingsFile(s.path, next); err != nil {
		return Settings{}, err
	}

	s.mu.Lock()
	s.current = next
	subs := make([]func(Settings), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(next)
	}
	return next, nil
}
