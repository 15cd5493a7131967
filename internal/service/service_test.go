package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/kinodub/dualsub/internal/autopause"
	"github.com/kinodub/dualsub/internal/config"
	"github.com/kinodub/dualsub/internal/detector"
	"github.com/kinodub/dualsub/internal/provider"
	"github.com/kinodub/dualsub/internal/rpc"
)

var (
	fakeMu        sync.Mutex
	fakeBatchErr  error
	fakeLastBatch provider.BatchRequest
	fakeWordCalls int
)

func resetFake() {
	fakeMu.Lock()
	fakeBatchErr = nil
	fakeLastBatch = provider.BatchRequest{}
	fakeWordCalls = 0
	fakeMu.Unlock()
}

// fakeAdapter prefixes every text with the configured model name, so
// provider-config swaps are observable in output.
type fakeAdapter struct {
	prefix string
}

func (f fakeAdapter) Name() string { return "fake-svc" }

func (f fakeAdapter) TranslateBatch(_ context.Context, req provider.BatchRequest) ([]string, error) {
	fakeMu.Lock()
	fakeLastBatch = req
	err := fakeBatchErr
	fakeMu.Unlock()
	if err != nil {
		return nil, err
	}
	out := make([]string, len(req.Texts))
	for i, text := range req.Texts {
		out[i] = f.prefix + ":" + text
	}
	return out, nil
}

func (f fakeAdapter) TranslateWord(_ context.Context, req provider.WordRequest) (provider.WordResult, error) {
	fakeMu.Lock()
	fakeWordCalls++
	fakeMu.Unlock()
	return provider.WordResult{Text: "W:" + req.Word, Source: provider.SourceLLM}, nil
}

func init() {
	provider.Register("fake-svc", func(cfg provider.Config) (provider.Translator, error) {
		return fakeAdapter{prefix: cfg.Model}, nil
	})
}

// noWordSource forces the router onto the configured adapter for words.
type noWordSource struct{}

func (noWordSource) TranslateWord(context.Context, provider.WordRequest) (provider.WordResult, error) {
	return provider.WordResult{}, provider.NewError(provider.KindUnsupported, "no definition")
}

func testSettings() config.Settings {
	return config.Settings{
		ProviderID:          "fake-svc",
		APIKey:              "test-key",
		Model:               "m1",
		TargetLanguage:      "es",
		DualSubtitleEnabled: true,
		EvictionCronExpr:    "0 4 * * *",
	}
}

func newTestService(t *testing.T) (*Service, *config.SettingsStore) {
	t.Helper()
	resetFake()

	dir := t.TempDir()
	cfg := &config.Config{
		Provider: config.ProviderConfig{
			ID: "fake-svc", APIKey: "test-key", Model: "m1",
			MaxTokens: 1000, Temperature: 0.3, Timeout: 5,
		},
		Cache: config.CacheConfig{
			DBPath:                filepath.Join(dir, "dualsub.db"),
			SubtitleRetentionDays: 30,
			WordRetentionDays:     60,
			EvictionCronExpr:      "0 4 * * *",
		},
	}
	store, err := config.NewSettingsStore(filepath.Join(dir, "settings.json"), testSettings())
	require.NoError(t, err)

	svc, err := New(cfg, store, WithWordSource(noWordSource{}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc, store
}

func TestService_BatchRoundTripLandsInCache(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.EnterWork(ctx, "Some Movie (2021)", language.English))

	resolved := map[string]string{}
	svc.Notifier().SubscribeAll(func(key, translated string) { resolved[key] = translated })

	svc.Queue().Enqueue("Hello there")
	svc.Queue().Process(ctx)

	got, ok := svc.Cache().Get("hello there", language.Spanish)
	require.True(t, ok)
	assert.Equal(t, "m1:Hello there", got)
	assert.Equal(t, "m1:Hello there", resolved["hello there"])

	fakeMu.Lock()
	defer fakeMu.Unlock()
	assert.Equal(t, "Some Movie (2021)", fakeLastBatch.Work)
	assert.True(t, fakeLastBatch.Contextual)
	assert.Equal(t, language.Spanish, fakeLastBatch.TargetLang)
}

func TestService_SettingsChangeSwapsProviderSnapshot(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	next := testSettings()
	next.Model = "m2"
	_, err := store.Update(next)
	require.NoError(t, err)

	out, err := svc.TranslateBatch(ctx, rpc.TranslateBatchRequest{
		Texts:      []string{"hello"},
		TargetLang: "es",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"m2:hello"}, out)
}

func TestService_DisablingDualSubtitleStopsQueue(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	next := testSettings()
	next.DualSubtitleEnabled = false
	_, err := store.Update(next)
	require.NoError(t, err)

	svc.Queue().Enqueue("Hello there")
	svc.Queue().Process(ctx)
	assert.Equal(t, 1, svc.Queue().Pending())
}

func TestService_TranslateWordCachesAndReuses(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	resp, err := svc.TranslateWord(ctx, rpc.TranslateWordRequest{
		Word:       "Ubiquitous",
		SourceLang: "en",
		TargetLang: "es",
	})
	require.NoError(t, err)
	assert.Equal(t, "W:Ubiquitous", resp.Translation)
	assert.Equal(t, provider.SourceLLM, resp.Source)

	// Second lookup is served from the durable cache.
	resp, err = svc.TranslateWord(ctx, rpc.TranslateWordRequest{
		Word:       "ubiquitous",
		SourceLang: "en",
		TargetLang: "es",
	})
	require.NoError(t, err)
	assert.Equal(t, "W:Ubiquitous", resp.Translation)

	fakeMu.Lock()
	defer fakeMu.Unlock()
	assert.Equal(t, 1, fakeWordCalls)
}

type sessionRenderer struct {
	mu         sync.Mutex
	translated []string
	pending    []string
}

func (r *sessionRenderer) Clear() {}

func (r *sessionRenderer) RenderOriginal(string) {}

func (r *sessionRenderer) RenderTranslated(text string) {
	r.mu.Lock()
	r.translated = append(r.translated, text)
	r.mu.Unlock()
}

func (r *sessionRenderer) RenderPending(textKey string) {
	r.mu.Lock()
	r.pending = append(r.pending, textKey)
	r.mu.Unlock()
}

type stillPlayback struct{}

func (stillPlayback) Position() float64 { return 0 }
func (stillPlayback) Rate() float64     { return 1.0 }
func (stillPlayback) Pause()            {}

func TestService_BatchFailureStartsDetectorCooldown(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	ex := &detector.StaticExtractor{}
	renderer := &sessionRenderer{}
	session := svc.StartSession(ex, renderer, stillPlayback{}, autopause.SystemClock())
	require.NotNil(t, session.Scheduler)

	fakeMu.Lock()
	fakeBatchErr = provider.NewError(provider.KindAuth, "bad key")
	fakeMu.Unlock()

	line := "Hello there, how are you doing today?"
	svc.Queue().Enqueue(line)
	svc.Queue().Process(ctx)

	// The permanent failure started a cooldown; the next render of that key
	// falls back to the original text instead of going pending again.
	ex.Set(line)
	require.NoError(t, session.Detector.HandleChange(ctx))

	renderer.mu.Lock()
	defer renderer.mu.Unlock()
	require.Len(t, renderer.translated, 1)
	assert.Equal(t, line, renderer.translated[0])
	assert.Empty(t, renderer.pending)
}

func TestService_StatusReportsEvictionSchedule(t *testing.T) {
	svc, _ := newTestService(t)

	c := cron.New()
	require.NoError(t, svc.ScheduleEviction(c))

	status, ok := svc.Status().(Status)
	require.True(t, ok)
	assert.Equal(t, "fake-svc", status.Provider)
	assert.Equal(t, 0, status.PendingUnits)
	require.NotNil(t, status.Eviction)
	assert.Equal(t, "0 4 * * *", status.Eviction.Expression)
	assert.False(t, status.Eviction.Next.IsZero())
}
