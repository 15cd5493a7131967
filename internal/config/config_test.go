package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestNewFromEnv_Defaults(t *testing.T) {
	cfg, err := NewFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "webfree", cfg.Provider.ID)
	assert.Equal(t, language.English, cfg.Translate.TargetLanguage)
	assert.True(t, cfg.Translate.DualSubtitleEnabled)
	assert.False(t, cfg.Translate.AutoPauseEnabled)
	assert.Equal(t, 30, cfg.Cache.SubtitleRetentionDays)
	assert.Equal(t, 60, cfg.Cache.WordRetentionDays)
	assert.Equal(t, ":8090", cfg.HTTP.Addr)
}

func TestNewFromEnv_KeyBasedProviderRequiresAPIKey(t *testing.T) {
	t.Setenv("PROVIDER_ID", "llm")

	_, err := NewFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PROVIDER_API_KEY")

	t.Setenv("PROVIDER_API_KEY", "sk-test")
	cfg, err := NewFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "llm", cfg.Provider.ID)
}

func TestNewFromEnv_EnvOverrides(t *testing.T) {
	t.Setenv("TARGET_LANGUAGE", "es")
	t.Setenv("AUTO_PAUSE_ENABLED", "true")
	t.Setenv("SUBTITLE_RETENTION_DAYS", "7")
	t.Setenv("HTTP_ADDR", "127.0.0.1:9000")

	cfg, err := NewFromEnv()
	require.NoError(t, err)

	assert.Equal(t, language.Spanish, cfg.Translate.TargetLanguage)
	assert.True(t, cfg.Translate.AutoPauseEnabled)
	assert.Equal(t, 7, cfg.Cache.SubtitleRetentionDays)
	assert.Equal(t, "127.0.0.1:9000", cfg.HTTP.Addr)
}

func TestNewFromEnv_InvalidTargetLanguage(t *testing.T) {
	t.Setenv("TARGET_LANGUAGE", "not a language")

	_, err := NewFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TARGET_LANGUAGE")
}

func TestWithSettingsOverlaysConfig(t *testing.T) {
	cfg, err := NewFromEnv(WithSettings(Settings{
		ProviderID:          "llm",
		APIKey:              "sk-test",
		Model:               "openai/gpt-4o-mini",
		TargetLanguage:      "fr",
		DualSubtitleEnabled: true,
		AutoPauseEnabled:    true,
		EvictionCronExpr:    "30 3 * * *",
	}))
	require.NoError(t, err)

	assert.Equal(t, "llm", cfg.Provider.ID)
	assert.Equal(t, "openai/gpt-4o-mini", cfg.Provider.Model)
	assert.Equal(t, language.French, cfg.Translate.TargetLanguage)
	assert.True(t, cfg.Translate.AutoPauseEnabled)
	assert.Equal(t, "30 3 * * *", cfg.Cache.EvictionCronExpr)
}
