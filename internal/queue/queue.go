package queue

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/kinodub/dualsub/internal/cache"
	"github.com/kinodub/dualsub/internal/provider"
	"github.com/kinodub/dualsub/internal/rpc"
	"github.com/kinodub/dualsub/internal/subtitle"
	"github.com/kinodub/dualsub/pkg/log"
)

const (
	// BatchMaximumSize bounds one PendingBatch dequeued from the backlog.
	BatchMaximumSize = 7

	// maxRetryAttempts caps the rate-limit backoff loop; the 4th attempt is
	// never made.
	maxRetryAttempts = 3
	backoffBase      = time.Second
	backoffJitterMax = 500 * time.Millisecond
)

// BatchTranslator is the slice of the RPC client the queue needs.
type BatchTranslator interface {
	TranslateBatch(ctx context.Context, req rpc.TranslateBatchRequest) ([]string, error)
}

// Params is the per-batch request context, sampled fresh for every batch so
// a settings change applies from the next batch onward.
type Params struct {
	SourceLang string
	TargetLang string
	Contextual bool
	Work       string
}

// ResolvedFunc is notified for every translation that lands in the cache,
// keyed by normalized text. Drives the placeholder-update fan-out.
type ResolvedFunc func(textKey, translated string)

// FailedFunc is notified once per unit when a whole batch fails after all
// retries. Lets the render side start a failure cooldown.
type FailedFunc func(textKey string, err error)

// Queue batches raw text units, invokes the router through the RPC client,
// and distributes successes into the cache. The backlog is unbounded and
// tolerates duplicates; the cache makes repeats idempotent.
type Queue struct {
	client BatchTranslator
	cache  *cache.Cache
	params func() Params

	onResolved ResolvedFunc
	onFailed   FailedFunc
	sleep      func(ctx context.Context, d time.Duration) error
	jitter     func() time.Duration

	mu         sync.Mutex
	backlog    []subtitle.Unit
	processing bool
	disabled   bool
}

func New(client BatchTranslator, c *cache.Cache, params func() Params) *Queue {
	return &Queue{
		client: client,
		cache:  c,
		params: params,
		sleep:  sleepCtx,
		jitter: func() time.Duration {
			return time.Duration(rand.Int63n(int64(backoffJitterMax)))
		},
	}
}

// OnResolved installs the resolution callback.
func (q *Queue) OnResolved(fn ResolvedFunc) {
	q.mu.Lock()
	q.onResolved = fn
	q.mu.Unlock()
}

// OnFailed installs the batch-failure callback.
func (q *Queue) OnFailed(fn FailedFunc) {
	q.mu.Lock()
	q.onFailed = fn
	q.mu.Unlock()
}

// SetEnabled toggles the queue. Disabling is cooperative: an active drain
// loop notices at its next iteration boundary, never mid-request.
func (q *Queue) SetEnabled(enabled bool) {
	q.mu.Lock()
	q.disabled = !enabled
	q.mu.Unlock()
}

// Enqueue appends one raw unit to the backlog. No deduplication here; the
// cache already filters repeats before callers reach the queue.
func (q *Queue) Enqueue(text string) {
	unit := subtitle.NewUnit(text)
	if unit.Key == "" {
		return
	}
	q.mu.Lock()
	q.backlog = append(q.backlog, unit)
	q.mu.Unlock()
}

// Pending reports the backlog depth.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.backlog)
}

// Process drains the backlog in FIFO order, one batch at a time. It is
// idempotent-reentrant: a concurrent call finds the guard set and returns
// immediately. The guard is released on every exit path.
func (q *Queue) Process(ctx context.Context) {
	q.mu.Lock()
	if q.processing {
		q.mu.Unlock()
		return
	}
	q.processing = true
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.processing = false
		q.mu.Unlock()
	}()

	for {
		if ctx.Err() != nil {
			return
		}

		q.mu.Lock()
		if q.disabled {
			q.mu.Unlock()
			return
		}
		n := len(q.backlog)
		if n == 0 {
			q.mu.Unlock()
			return
		}
		if n > BatchMaximumSize {
			n = BatchMaximumSize
		}
		batch := make([]subtitle.Unit, n)
		copy(batch, q.backlog[:n])
		q.backlog = q.backlog[n:]
		q.mu.Unlock()

		q.processBatch(ctx, batch)
	}
}

func (q *Queue) processBatch(ctx context.Context, batch []subtitle.Unit) {
	params := q.params()
	texts := make([]string, len(batch))
	for i, unit := range batch {
		texts[i] = unit.Text
	}

	translations, err := q.translateWithRetry(ctx, rpc.TranslateBatchRequest{
		Texts:      texts,
		SourceLang: params.SourceLang,
		TargetLang: params.TargetLang,
		Contextual: params.Contextual,
		Work:       params.Work,
	})
	if err != nil {
		// Nothing is cached on failure; the units stay untranslated and a
		// future render re-enqueues them.
		log.Error("batch of %d units failed: %v", len(batch), err)
		q.mu.Lock()
		failed := q.onFailed
		q.mu.Unlock()
		if failed != nil {
			for _, unit := range batch {
				failed(unit.Key, err)
			}
		}
		return
	}

	entries := make([]cache.Entry, 0, len(batch))
	resolved := make(map[string]string, len(batch))
	for i, unit := range batch {
		if i >= len(translations) {
			break
		}
		translated := translations[i]
		if translated == "" {
			// Retry-later placeholder; never cached.
			continue
		}
		entries = append(entries, cache.Entry{
			SourceLang:     params.SourceLang,
			TargetLang:     params.TargetLang,
			TextKey:        unit.Key,
			TranslatedText: translated,
		})
		resolved[unit.Key] = translated
	}

	if err := q.cache.PutBatch(ctx, entries); err != nil {
		log.Error("cache write for batch failed: %v", err)
	}

	q.mu.Lock()
	notify := q.onResolved
	q.mu.Unlock()
	if notify != nil {
		for key, translated := range resolved {
			notify(key, translated)
		}
	}
}

// translateWithRetry wraps one whole-batch call in the rate-limit backoff
// policy: exponential delay with jitter, capped at maxRetryAttempts. The
// remote-unavailable retry lives below this in the RPC client.
func (q *Queue) translateWithRetry(ctx context.Context, req rpc.TranslateBatchRequest) ([]string, error) {
	var lastErr error
	for attempt := 0; attempt < maxRetryAttempts; attempt++ {
		translations, err := q.client.TranslateBatch(ctx, req)
		if err == nil {
			return translations, nil
		}
		lastErr = err
		if !isRateLimited(err) {
			return nil, err
		}

		delay := backoffBase<<attempt + q.jitter()
		log.Warn("rate limited, backing off %s (attempt %d/%d)", delay, attempt+1, maxRetryAttempts)
		if serr := q.sleep(ctx, delay); serr != nil {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

// isRateLimited matches both the typed kind and the raw reason string,
// since reasons that crossed the RPC boundary arrive as plain text.
func isRateLimited(err error) bool {
	if provider.IsKind(err, provider.KindRateLimited) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "rate limit")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
