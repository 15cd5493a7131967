package detector

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/kinodub/dualsub/internal/cache"
	"github.com/kinodub/dualsub/internal/provider"
)

type recordingRenderer struct {
	mu         sync.Mutex
	clears     int
	originals  []string
	translated []string
	pending    []string
}

func (r *recordingRenderer) Clear() {
	r.mu.Lock()
	r.clears++
	r.mu.Unlock()
}

func (r *recordingRenderer) RenderOriginal(text string) {
	r.mu.Lock()
	r.originals = append(r.originals, text)
	r.mu.Unlock()
}

func (r *recordingRenderer) RenderTranslated(text string) {
	r.mu.Lock()
	r.translated = append(r.translated, text)
	r.mu.Unlock()
}

func (r *recordingRenderer) RenderPending(textKey string) {
	r.mu.Lock()
	r.pending = append(r.pending, textKey)
	r.mu.Unlock()
}

type fakeQueue struct {
	enqueued  []string
	processed int
}

func (q *fakeQueue) Enqueue(text string) { q.enqueued = append(q.enqueued, text) }
func (q *fakeQueue) Process(_ context.Context) { q.processed++ }

const englishLine = "Hello there, how are you doing today?"

func enabledAlways() bool { return true }

func newTestDetector(ex Extractor, r Renderer, c *cache.Cache, q Enqueuer, n *Notifier, opts ...Option) *Detector {
	target := func() language.Tag { return language.Spanish }
	opts = append(opts, WithKickFunc(func(context.Context) {}))
	return New(ex, r, c, q, n, enabledAlways, target, opts...)
}

func TestHandleChange_UnchangedTextSkipsRerender(t *testing.T) {
	ex := &StaticExtractor{}
	r := &recordingRenderer{}
	q := &fakeQueue{}
	d := newTestDetector(ex, r, cache.New(nil), q, NewNotifier())

	ex.Set(englishLine)
	require.NoError(t, d.HandleChange(context.Background()))
	assert.Equal(t, StateChanged, d.State())

	// Whitespace-only mutation, same content.
	ex.Set("Hello   there, how are you doing today?  ")
	require.NoError(t, d.HandleChange(context.Background()))

	assert.Equal(t, StateUnchanged, d.State())
	assert.Equal(t, 1, r.clears)
	assert.Len(t, r.originals, 1)
}

func TestHandleChange_ClearedTextClearsRender(t *testing.T) {
	ex := &StaticExtractor{}
	r := &recordingRenderer{}
	d := newTestDetector(ex, r, cache.New(nil), &fakeQueue{}, NewNotifier())

	ex.Set(englishLine)
	require.NoError(t, d.HandleChange(context.Background()))
	ex.Set("")
	require.NoError(t, d.HandleChange(context.Background()))

	assert.Equal(t, StateChanged, d.State())
	assert.Equal(t, 2, r.clears)
	assert.Len(t, r.originals, 1)
}

func TestHandleChange_CacheHitRendersImmediately(t *testing.T) {
	ex := &StaticExtractor{}
	r := &recordingRenderer{}
	q := &fakeQueue{}
	c := cache.New(nil)
	require.NoError(t, c.PutBatch(context.Background(), []cache.Entry{{
		TargetLang:     "es",
		TextKey:        "hello there, how are you doing today?",
		TranslatedText: "Hola, ¿cómo estás hoy?",
	}}))
	d := newTestDetector(ex, r, c, q, NewNotifier())

	ex.Set(englishLine)
	require.NoError(t, d.HandleChange(context.Background()))

	require.Len(t, r.translated, 1)
	assert.Equal(t, "Hola, ¿cómo estás hoy?", r.translated[0])
	assert.Empty(t, r.pending)
	assert.Empty(t, q.enqueued)
}

func TestHandleChange_MissEnqueuesAndResolvesPlaceholder(t *testing.T) {
	ex := &StaticExtractor{}
	r := &recordingRenderer{}
	q := &fakeQueue{}
	n := NewNotifier()
	kicks := 0
	target := func() language.Tag { return language.Spanish }
	d := New(ex, r, cache.New(nil), q, n, enabledAlways, target,
		WithKickFunc(func(context.Context) { kicks++ }))

	ex.Set(englishLine)
	require.NoError(t, d.HandleChange(context.Background()))

	key := "hello there, how are you doing today?"
	require.Equal(t, []string{key}, r.pending)
	assert.Equal(t, []string{englishLine}, q.enqueued)
	assert.Equal(t, 1, kicks)

	// The queue/cache round trip completes later; the span updates itself.
	n.Publish(key, "Hola, ¿cómo estás hoy?")
	require.Len(t, r.translated, 1)
	assert.Equal(t, "Hola, ¿cómo estás hoy?", r.translated[0])
}

func TestHandleChange_FailureCooldownFallsBackToOriginal(t *testing.T) {
	ex := &StaticExtractor{}
	r := &recordingRenderer{}
	q := &fakeQueue{}
	now := time.Now()
	d := newTestDetector(ex, r, cache.New(nil), q, NewNotifier(),
		WithNowFunc(func() time.Time { return now }),
		WithFailureCooldown(30*time.Second))

	key := "hello there, how are you doing today?"
	d.MarkFailure(key, provider.NewError(provider.KindAuth, "bad key"))

	ex.Set(englishLine)
	require.NoError(t, d.HandleChange(context.Background()))

	// Inside the cooldown the translated line falls back to the original.
	require.Len(t, r.translated, 1)
	assert.Equal(t, englishLine, r.translated[0])
	assert.Empty(t, r.pending)
	assert.Empty(t, q.enqueued)

	// After the cooldown elapses the key is eligible again.
	now = now.Add(time.Minute)
	ex.Set("")
	require.NoError(t, d.HandleChange(context.Background()))
	ex.Set(englishLine)
	require.NoError(t, d.HandleChange(context.Background()))

	assert.Equal(t, []string{key}, r.pending)
	assert.Equal(t, []string{englishLine}, q.enqueued)
}

func TestMarkFailure_RetryableErrorsDoNotStartCooldown(t *testing.T) {
	ex := &StaticExtractor{}
	r := &recordingRenderer{}
	q := &fakeQueue{}
	d := newTestDetector(ex, r, cache.New(nil), q, NewNotifier())

	key := "hello there, how are you doing today?"
	d.MarkFailure(key, provider.NewError(provider.KindRateLimited, "provider rate limit: status 429"))

	ex.Set(englishLine)
	require.NoError(t, d.HandleChange(context.Background()))

	assert.Equal(t, []string{key}, r.pending)
	assert.Equal(t, []string{englishLine}, q.enqueued)
}

func TestHandleChange_NoTranslatedLineWhenSourceMatchesTarget(t *testing.T) {
	ex := &StaticExtractor{}
	r := &recordingRenderer{}
	q := &fakeQueue{}
	target := func() language.Tag { return language.English }
	d := New(ex, r, cache.New(nil), q, NewNotifier(), enabledAlways, target,
		WithKickFunc(func(context.Context) {}))

	ex.Set(englishLine)
	require.NoError(t, d.HandleChange(context.Background()))

	assert.Len(t, r.originals, 1)
	assert.Empty(t, r.translated)
	assert.Empty(t, r.pending)
	assert.Empty(t, q.enqueued)
}

func TestHandleChange_DisabledStillRendersOriginal(t *testing.T) {
	ex := &StaticExtractor{}
	r := &recordingRenderer{}
	q := &fakeQueue{}
	target := func() language.Tag { return language.Spanish }
	d := New(ex, r, cache.New(nil), q, NewNotifier(),
		func() bool { return false }, target,
		WithKickFunc(func(context.Context) {}))

	ex.Set(englishLine)
	require.NoError(t, d.HandleChange(context.Background()))

	assert.Equal(t, []string{englishLine}, r.originals)
	assert.Empty(t, r.pending)
	assert.Empty(t, q.enqueued)
}

func TestRepeatedRendersHitTheCacheAfterOneRoundTrip(t *testing.T) {
	ex := &StaticExtractor{}
	r := &recordingRenderer{}
	q := &fakeQueue{}
	c := cache.New(nil)
	n := NewNotifier()
	d := newTestDetector(ex, r, c, q, n)

	key := "hello there, how are you doing today?"

	ex.Set(englishLine)
	require.NoError(t, d.HandleChange(context.Background()))
	require.Equal(t, []string{englishLine}, q.enqueued)

	// The round trip completes: the translation lands in the cache and the
	// placeholder resolves.
	require.NoError(t, c.PutBatch(context.Background(), []cache.Entry{{
		TargetLang:     "es",
		TextKey:        key,
		TranslatedText: "Hola, ¿cómo estás hoy?",
	}}))
	n.Publish(key, "Hola, ¿cómo estás hoy?")

	// The same line rendered twice more is served from the fast path; no
	// further enqueue happens.
	for i := 0; i < 2; i++ {
		ex.Set("")
		require.NoError(t, d.HandleChange(context.Background()))
		ex.Set(englishLine)
		require.NoError(t, d.HandleChange(context.Background()))
	}

	assert.Len(t, q.enqueued, 1)
	assert.Equal(t, []string{key}, r.pending)
	assert.Len(t, r.translated, 3)
}

func TestWordContext_ReturnsSurroundingLines(t *testing.T) {
	ex := &StaticExtractor{}
	r := &recordingRenderer{}
	d := newTestDetector(ex, r, cache.New(nil), &fakeQueue{}, NewNotifier())

	lines := []string{
		"First things first.",
		"I was not expecting visitors.",
		"Who sent you here?",
		"Nobody sent me anywhere.",
		"Then we have a problem.",
	}
	for _, line := range lines {
		ex.Set(line)
		require.NoError(t, d.HandleChange(context.Background()))
	}

	before, after := d.WordContext("who sent you here?")
	assert.Equal(t, []string{"First things first.", "I was not expecting visitors."}, before)
	assert.Equal(t, []string{"Nobody sent me anywhere.", "Then we have a problem."}, after)

	before, after = d.WordContext("not a tracked line")
	assert.Nil(t, before)
	assert.Nil(t, after)
}

func TestNotifier_FanOutPerKeyAndCancel(t *testing.T) {
	n := NewNotifier()

	var first, second []string
	cancelFirst := n.Subscribe("key", func(v string) { first = append(first, v) })
	n.Subscribe("key", func(v string) { second = append(second, v) })

	n.Publish("key", "uno")
	cancelFirst()
	n.Publish("key", "dos")
	n.Publish("other", "tres")

	assert.Equal(t, []string{"uno"}, first)
	assert.Equal(t, []string{"uno", "dos"}, second)
}

func TestNotifier_SubscribeAllSeesEveryKey(t *testing.T) {
	n := NewNotifier()

	got := map[string]string{}
	cancel := n.SubscribeAll(func(key, v string) { got[key] = v })

	n.Publish("a", "1")
	n.Publish("b", "2")
	cancel()
	n.Publish("c", "3")

	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, got)
}

func TestDetectLanguage(t *testing.T) {
	assert.Equal(t, language.Und, DetectLanguage("   "))
	tag := DetectLanguage("The quick brown fox jumps over the lazy dog and keeps on running.")
	base, _ := tag.Base()
	assert.Equal(t, "en", base.String())
}
