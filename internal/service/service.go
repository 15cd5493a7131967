package service

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/text/language"

	"github.com/kinodub/dualsub/internal/autopause"
	"github.com/kinodub/dualsub/internal/cache"
	"github.com/kinodub/dualsub/internal/config"
	"github.com/kinodub/dualsub/internal/detector"
	"github.com/kinodub/dualsub/internal/persistence"
	"github.com/kinodub/dualsub/internal/provider"
	"github.com/kinodub/dualsub/internal/queue"
	"github.com/kinodub/dualsub/internal/rpc"
	"github.com/kinodub/dualsub/pkg/log"
)

// Service wires the translation pipeline: provider router, durable cache,
// queue, and the resolved-translation fan-out. Playback sessions attach a
// detector and an auto-pause scheduler on top.
type Service struct {
	cfg      *config.Config
	settings *config.SettingsStore
	store    *persistence.SQLiteStore
	cache    *cache.Cache
	router   *provider.Router
	client   *rpc.Client
	queue    *queue.Queue
	notifier *detector.Notifier

	wordSource provider.WordTranslator

	unsubscribe func()

	mu           sync.Mutex
	work         string
	sourceLang   string
	evictionExpr string
	sessions     []*Session
}

// Session is one playback surface: its change detector and pause scheduler.
type Session struct {
	Detector  *detector.Detector
	Scheduler *autopause.Scheduler
}

type Option func(*Service)

// WithWordSource replaces the authoritative word source consulted before
// the configured provider.
func WithWordSource(w provider.WordTranslator) Option {
	return func(s *Service) { s.wordSource = w }
}

func New(cfg *config.Config, settings *config.SettingsStore, opts ...Option) (*Service, error) {
	store, err := persistence.NewSQLiteStore(cfg.Cache.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open translation store: %w", err)
	}

	s := &Service{
		cfg:      cfg,
		settings: settings,
		store:    store,
		notifier: detector.NewNotifier(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.wordSource == nil {
		s.wordSource = provider.NewWiktionaryClient("")
	}
	s.cache = cache.New(store,
		cache.WithRetention(cfg.Cache.SubtitleRetentionDays, cfg.Cache.WordRetentionDays))

	s.router = provider.NewRouter(providerConfig(settings.Get(), cfg)).
		WithWordSource(s.wordSource)
	s.client = rpc.NewClient(&rpc.LocalTransport{Router: s.router})

	s.queue = queue.New(s.client, s.cache, s.batchParams)
	s.queue.SetEnabled(settings.Get().DualSubtitleEnabled)
	s.queue.OnResolved(s.notifier.Publish)
	s.queue.OnFailed(s.markFailure)

	s.unsubscribe = settings.Subscribe(s.applySettings)
	return s, nil
}

// Close releases the durable store and detaches from settings changes.
func (s *Service) Close() error {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	return s.store.Close()
}

func (s *Service) Notifier() *detector.Notifier { return s.notifier }
func (s *Service) Cache() *cache.Cache          { return s.cache }
func (s *Service) Queue() *queue.Queue          { return s.queue }

// EnterWork scopes the cache to a new title and records the request context
// used for every following batch.
func (s *Service) EnterWork(ctx context.Context, work string, sourceLang language.Tag) error {
	target := s.settings.Get().TargetLanguageTag()
	if err := s.cache.EnterWork(ctx, work, sourceLang, target); err != nil {
		return err
	}
	s.mu.Lock()
	s.work = work
	s.sourceLang = sourceLang.String()
	s.mu.Unlock()
	return nil
}

// StartSession attaches a detector and an auto-pause scheduler to one
// playback surface. The scheduler learns about rendered lines through a
// renderer hook, so cue matching needs no second event source.
func (s *Service) StartSession(extractor detector.Extractor, renderer detector.Renderer,
	playback autopause.Playback, clock autopause.Clock) *Session {
	scheduler := autopause.NewScheduler(playback, clock, func() bool {
		return s.settings.Get().AutoPauseEnabled
	})

	hooked := &pauseHookRenderer{Renderer: renderer, scheduler: scheduler}
	det := detector.New(extractor, hooked, s.cache, s.queue, s.notifier,
		func() bool { return s.settings.Get().DualSubtitleEnabled },
		func() language.Tag { return s.settings.Get().TargetLanguageTag() })

	session := &Session{Detector: det, Scheduler: scheduler}
	s.mu.Lock()
	s.sessions = append(s.sessions, session)
	s.mu.Unlock()
	return session
}

// pauseHookRenderer forwards every rendered original line to the scheduler.
type pauseHookRenderer struct {
	detector.Renderer
	scheduler *autopause.Scheduler
}

func (r *pauseHookRenderer) RenderOriginal(text string) {
	r.Renderer.RenderOriginal(text)
	r.scheduler.OnSubtitleRendered(text)
}

func (s *Service) markFailure(textKey string, err error) {
	s.mu.Lock()
	sessions := make([]*Session, len(s.sessions))
	copy(sessions, s.sessions)
	s.mu.Unlock()
	for _, session := range sessions {
		session.Detector.MarkFailure(textKey, err)
	}
}

// applySettings swaps the provider snapshot wholesale and re-evaluates the
// feature toggles. Runs synchronously from SettingsStore.Update.
func (s *Service) applySettings(next config.Settings) {
	s.router.Reload(providerConfig(next, s.cfg))
	s.queue.SetEnabled(next.DualSubtitleEnabled)

	s.mu.Lock()
	sessions := make([]*Session, len(s.sessions))
	copy(sessions, s.sessions)
	s.mu.Unlock()
	for _, session := range sessions {
		if next.AutoPauseEnabled {
			session.Scheduler.Schedule()
		} else {
			session.Scheduler.Cancel()
		}
	}
	log.Info("settings applied: provider=%s target=%s dual=%t pause=%t",
		next.ProviderID, next.TargetLanguage, next.DualSubtitleEnabled, next.AutoPauseEnabled)
}

// batchParams samples the request context for one batch. Settings changes
// apply from the next batch onward.
func (s *Service) batchParams() queue.Params {
	st := s.settings.Get()
	s.mu.Lock()
	work := s.work
	source := s.sourceLang
	s.mu.Unlock()
	return queue.Params{
		SourceLang: source,
		TargetLang: st.TargetLanguage,
		Contextual: true,
		Work:       work,
	}
}

// TranslateBatch executes one batch against the router. This is the daemon
// side of the RPC surface; remote clients reach it through the HTTP
// transport.
func (s *Service) TranslateBatch(ctx context.Context, req rpc.TranslateBatchRequest) ([]string, error) {
	return s.router.TranslateBatch(ctx, provider.BatchRequest{
		Texts:      req.Texts,
		SourceLang: parseTag(req.SourceLang),
		TargetLang: parseTag(req.TargetLang),
		Contextual: req.Contextual,
		Work:       req.Work,
	})
}

func providerConfig(st config.Settings, cfg *config.Config) provider.Config {
	baseURL := st.APIURL
	if st.ProviderID == provider.ProviderWebFree {
		// The settings URL is a chat-completion endpoint; the webfree
		// adapter has its own default.
		baseURL = ""
	}
	return provider.Config{
		ProviderID:     st.ProviderID,
		APIKey:         st.APIKey,
		BaseURL:        baseURL,
		Model:          st.Model,
		MaxTokens:      cfg.Provider.MaxTokens,
		Temperature:    cfg.Provider.Temperature,
		TimeoutSeconds: cfg.Provider.Timeout,
	}
}

func parseTag(s string) language.Tag {
	if s == "" {
		return language.Und
	}
	tag, err := language.Parse(s)
	if err != nil {
		return language.Und
	}
	return tag
}
