package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/text/language"
)

// Config is an immutable provider snapshot. It is never mutated in place:
// configuration changes build a fresh Config and swap it wholesale via
// Router.Reload, so in-flight requests keep observing a consistent snapshot.
type Config struct {
	ProviderID  string
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
	// TimeoutSeconds bounds one provider HTTP request.
	TimeoutSeconds int
}

func (c Config) Validate() error {
	if c.ProviderID == "" {
		return fmt.Errorf("provider id is required")
	}
	return nil
}

// BatchRequest carries one bounded batch of subtitle texts.
type BatchRequest struct {
	Texts      []string
	SourceLang language.Tag
	TargetLang language.Tag
	// Contextual selects the prompt variant that leans on surrounding
	// dialogue and insists that slang is intentional.
	Contextual bool
	// Work is the media title, used to anchor contextual prompts.
	Work string
}

// WordRequest is a single-word contextual lookup.
type WordRequest struct {
	Word       string
	Before     []string
	After      []string
	SourceLang language.Tag
	TargetLang language.Tag
	// LangName is the human-readable target language name for the prompt.
	LangName string
}

// Word provenance tags, surfaced to the renderer so authoritative lookups
// can skip the "verify" affordance.
const (
	SourceWiktionary = "wiktionary"
	SourceLLM        = "llm"
)

type WordResult struct {
	Text   string
	Source string
}

// Translator turns a batch of texts into a same-length batch of
// translations. An empty string at index i means "retry later" for that
// unit; it is distinct from a returned error, which fails the whole batch.
// The length contract is absolute: len(result) == len(req.Texts) always.
type Translator interface {
	Name() string
	TranslateBatch(ctx context.Context, req BatchRequest) ([]string, error)
}

// WordTranslator is implemented by adapters that can resolve single words.
type WordTranslator interface {
	TranslateWord(ctx context.Context, req WordRequest) (WordResult, error)
}

// Factory builds an adapter from a config snapshot.
type Factory func(cfg Config) (Translator, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes an adapter available under a provider id. Typically called
// from the adapter's init.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("provider: duplicate registration for %q", name))
	}
	registry[name] = factory
}

// New builds the adapter registered under cfg.ProviderID.
func New(cfg Config) (Translator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, WrapError(KindUnsupported, "invalid provider config", err)
	}
	registryMu.RLock()
	factory, ok := registry[cfg.ProviderID]
	registryMu.RUnlock()
	if !ok {
		return nil, NewError(KindUnsupported, fmt.Sprintf("unknown provider %q", cfg.ProviderID))
	}
	return factory(cfg)
}

// Names lists registered provider ids, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Router is the stateless adapter entry point. It holds the current config
// snapshot and resolves the adapter per call, so a Reload takes effect on
// the next request without disturbing requests already running.
type Router struct {
	cfg  atomic.Pointer[Config]
	word WordTranslator // optional authoritative word source tried first
}

func NewRouter(cfg Config) *Router {
	r := &Router{}
	snapshot := cfg
	r.cfg.Store(&snapshot)
	return r
}

// WithWordSource sets an authoritative word source (wiktionary) consulted
// before the configured provider.
func (r *Router) WithWordSource(w WordTranslator) *Router {
	r.word = w
	return r
}

// Reload replaces the config snapshot wholesale.
func (r *Router) Reload(cfg Config) {
	snapshot := cfg
	r.cfg.Store(&snapshot)
}

func (r *Router) Config() Config {
	return *r.cfg.Load()
}

func (r *Router) TranslateBatch(ctx context.Context, req BatchRequest) ([]string, error) {
	adapter, err := New(r.Config())
	if err != nil {
		return nil, err
	}
	return adapter.TranslateBatch(ctx, req)
}

// TranslateWord resolves a single word, preferring the authoritative source
// when present and falling back to the configured adapter.
func (r *Router) TranslateWord(ctx context.Context, req WordRequest) (WordResult, error) {
	if r.word != nil {
		result, err := r.word.TranslateWord(ctx, req)
		if err == nil && result.Text != "" {
			return result, nil
		}
	}

	adapter, err := New(r.Config())
	if err != nil {
		return WordResult{}, err
	}
	word, ok := adapter.(WordTranslator)
	if !ok {
		return WordResult{}, NewError(KindUnsupported,
			fmt.Sprintf("provider %q does not support word lookup", adapter.Name()))
	}
	return word.TranslateWord(ctx, req)
}
