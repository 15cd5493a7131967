package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/kinodub/dualsub/internal/config"
	"github.com/kinodub/dualsub/internal/detector"
	"github.com/kinodub/dualsub/internal/rpc"
)

type batchTranslator interface {
	TranslateBatch(ctx context.Context, req rpc.TranslateBatchRequest) ([]string, error)
}

type wordTranslator interface {
	TranslateWord(ctx context.Context, req rpc.TranslateWordRequest) (rpc.TranslateWordResponse, error)
}

type settingsStore interface {
	Get() config.Settings
	Update(next config.Settings) (config.Settings, error)
}

type settingsApplier func(next config.Settings) error

// Server is the daemon's HTTP surface: the translate RPC endpoints the
// remote transport talks to, settings, status, and the resolved-translation
// stream.
type Server struct {
	batch    batchTranslator
	word     wordTranslator
	settings settingsStore
	apply    settingsApplier
	notifier *detector.Notifier
	status   func() any

	mux    *http.ServeMux
	server *http.Server
}

type Option func(*Server)

func WithSettingsStore(store settingsStore) Option {
	return func(s *Server) {
		s.settings = store
	}
}

func WithSettingsApplier(apply settingsApplier) Option {
	return func(s *Server) {
		s.apply = apply
	}
}

func WithNotifier(n *detector.Notifier) Option {
	return func(s *Server) {
		s.notifier = n
	}
}

func WithStatus(status func() any) Option {
	return func(s *Server) {
		s.status = status
	}
}

func NewServer(batch batchTranslator, word wordTranslator, opts ...Option) *Server {
	s := &Server{
		batch: batch,
		word:  word,
		mux:   http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/translate/batch", s.handleTranslateBatch)
	s.mux.HandleFunc("/api/translate/word", s.handleTranslateWord)
	s.mux.HandleFunc("/api/settings", s.handleSettings)
	s.mux.HandleFunc("/api/status", s.handleStatus)
	s.mux.HandleFunc("/api/translations/stream", s.handleTranslationStream)
}
