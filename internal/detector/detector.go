package detector

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/language"

	"github.com/kinodub/dualsub/internal/cache"
	"github.com/kinodub/dualsub/internal/provider"
	"github.com/kinodub/dualsub/internal/subtitle"
	"github.com/kinodub/dualsub/pkg/log"
)

const (
	// defaultFailureCooldown holds off re-enqueueing a key after a permanent
	// provider failure. The next render inside the window falls back to the
	// original text instead of hammering a broken provider.
	defaultFailureCooldown = 30 * time.Second

	// recentWindowSize bounds the tracked line history used as word-lookup
	// context.
	recentWindowSize = 16

	// contextLines is how many tracked lines on each side of a line are
	// handed to a word lookup.
	contextLines = 2
)

// State is the detector's position in its change-tracking machine.
type State int

const (
	StateIdle State = iota
	StateUnchanged
	StateChanged
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateUnchanged:
		return "unchanged"
	case StateChanged:
		return "changed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Extractor resolves the current subtitle text from whatever surface the
// host embeds it in. Returning "" means the subtitle was cleared. Container
// re-resolution and selector heuristics live behind this interface.
type Extractor interface {
	Extract() (string, error)
}

// StaticExtractor serves a settable fixed string.
type StaticExtractor struct {
	mu   sync.Mutex
	text string
}

func (e *StaticExtractor) Set(text string) {
	e.mu.Lock()
	e.text = text
	e.mu.Unlock()
}

func (e *StaticExtractor) Extract() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.text, nil
}

// Renderer receives the detector's display decisions. RenderTranslated also
// carries the original-text fallback during a failure cooldown.
type Renderer interface {
	Clear()
	RenderOriginal(text string)
	RenderTranslated(text string)
	RenderPending(textKey string)
}

// Enqueuer is the slice of the queue the detector drives.
type Enqueuer interface {
	Enqueue(text string)
	Process(ctx context.Context)
}

// Detector watches a content-change event stream, extracts the current
// subtitle text, and decides what to render. Unrelated mutations that leave
// the text unchanged never re-render, so the overlay does not flicker.
type Detector struct {
	extractor Extractor
	renderer  Renderer
	cache     *cache.Cache
	queue     Enqueuer
	notifier  *Notifier

	enabled    func() bool
	targetLang func() language.Tag

	failureCooldown time.Duration
	now             func() time.Time
	kick            func(ctx context.Context)

	mu        sync.Mutex
	state     State
	lastText  string
	rendered  bool
	failures  map[string]time.Time
	recent    []subtitle.Unit
	cancelSub func()
}

type Option func(*Detector)

func WithFailureCooldown(d time.Duration) Option {
	return func(det *Detector) { det.failureCooldown = d }
}

func WithNowFunc(now func() time.Time) Option {
	return func(det *Detector) { det.now = now }
}

// WithKickFunc replaces the asynchronous queue kick, letting tests drain
// synchronously.
func WithKickFunc(kick func(ctx context.Context)) Option {
	return func(det *Detector) { det.kick = kick }
}

func New(extractor Extractor, renderer Renderer, c *cache.Cache, q Enqueuer, n *Notifier,
	enabled func() bool, targetLang func() language.Tag, opts ...Option) *Detector {
	d := &Detector{
		extractor:       extractor,
		renderer:        renderer,
		cache:           c,
		queue:           q,
		notifier:        n,
		enabled:         enabled,
		targetLang:      targetLang,
		failureCooldown: defaultFailureCooldown,
		now:             time.Now,
		failures:        make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.kick == nil {
		d.kick = func(ctx context.Context) { go q.Process(ctx) }
	}
	return d
}

// State returns the last transition taken.
func (d *Detector) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Run consumes the change-event stream until the context ends. Each event
// means "the watched content may have changed"; HandleChange decides whether
// it actually did.
func (d *Detector) Run(ctx context.Context, events <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-events:
			if !ok {
				return
			}
			if err := d.HandleChange(ctx); err != nil {
				log.Warn("change handling failed: %v", err)
			}
		}
	}
}

// HandleChange runs one detection pass: extract, compare, and when the text
// really changed, walk the render decision tree.
func (d *Detector) HandleChange(ctx context.Context) error {
	raw, err := d.extractor.Extract()
	if err != nil {
		return fmt.Errorf("extract subtitle text: %w", err)
	}
	text := strings.Join(strings.Fields(raw), " ")

	d.mu.Lock()
	if text == d.lastText && d.rendered {
		d.state = StateUnchanged
		d.mu.Unlock()
		return nil
	}

	d.state = StateChanged
	d.lastText = text
	d.rendered = false
	if d.cancelSub != nil {
		d.cancelSub()
		d.cancelSub = nil
	}
	d.mu.Unlock()

	d.renderer.Clear()
	if text == "" {
		return nil
	}

	// The original line always renders; it is the click-to-translate surface.
	d.renderer.RenderOriginal(text)
	d.mu.Lock()
	d.rendered = true
	d.pushRecentLocked(subtitle.NewUnit(text))
	d.mu.Unlock()

	target := d.targetLang()
	if !d.enabled() || !translationNeeded(text, target) {
		return nil
	}

	key := subtitle.NormalizeKey(text)
	if translated, ok := d.cache.Get(key, target); ok {
		d.renderer.RenderTranslated(translated)
		return nil
	}

	if d.inCooldown(key) {
		d.renderer.RenderTranslated(text)
		return nil
	}

	d.renderer.RenderPending(key)
	cancel := d.notifier.Subscribe(key, func(translated string) {
		d.renderer.RenderTranslated(translated)
	})
	d.mu.Lock()
	d.cancelSub = cancel
	d.mu.Unlock()

	d.queue.Enqueue(text)
	d.kick(ctx)
	return nil
}

// MarkFailure starts a cooldown for a key whose batch failed permanently.
// Retryable failures do not count; the queue already retried those.
func (d *Detector) MarkFailure(textKey string, err error) {
	if provider.Retryable(err) {
		return
	}
	d.mu.Lock()
	d.failures[textKey] = d.now().Add(d.failureCooldown)
	d.mu.Unlock()
}

func (d *Detector) inCooldown(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	until, ok := d.failures[key]
	if !ok {
		return false
	}
	if d.now().After(until) {
		delete(d.failures, key)
		return false
	}
	return true
}

// pushRecentLocked appends one line to the tracked history, skipping
// consecutive repeats. Caller holds d.mu.
func (d *Detector) pushRecentLocked(unit subtitle.Unit) {
	if n := len(d.recent); n > 0 && d.recent[n-1].Key == unit.Key {
		return
	}
	d.recent = append(d.recent, unit)
	if len(d.recent) > recentWindowSize {
		d.recent = d.recent[len(d.recent)-recentWindowSize:]
	}
}

// WordContext returns up to two tracked lines on each side of the line that
// contains a looked-up word. The line is addressed by its normalized key.
func (d *Detector) WordContext(lineKey string) (before, after []string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	idx := -1
	for i := len(d.recent) - 1; i >= 0; i-- {
		if d.recent[i].Key == lineKey {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, nil
	}

	for i := idx - contextLines; i < idx; i++ {
		if i >= 0 {
			before = append(before, d.recent[i].Text)
		}
	}
	for i := idx + 1; i <= idx+contextLines && i < len(d.recent); i++ {
		after = append(after, d.recent[i].Text)
	}
	return before, after
}
