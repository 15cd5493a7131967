package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/text/language"

	"github.com/kinodub/dualsub/pkg/log"
)

const (
	// DefaultSubtitleRetentionDays ages out whole work identities.
	DefaultSubtitleRetentionDays = 30
	// DefaultWordRetentionDays ages out word entries, which are cheaper and
	// more reusable, so they live longer.
	DefaultWordRetentionDays = 60
)

// Cache is the two-tier translation cache: an in-process map checked before
// any durable lookup or network call, backed by a durable per-origin store.
// Entries outlive a playback session; replaying the same title hits the
// durable tier once via EnterWork and then serves renders from the fast
// path.
type Cache struct {
	store Store

	subtitleRetentionDays int
	wordRetentionDays     int
	now                   func() time.Time

	mu   sync.RWMutex
	fast map[string]string
	// Current scope; set by EnterWork, used to key durable writes.
	work       string
	sourceLang string
	targetLang string
}

type Option func(*Cache)

func WithRetention(subtitleDays, wordDays int) Option {
	return func(c *Cache) {
		c.subtitleRetentionDays = subtitleDays
		c.wordRetentionDays = wordDays
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

func New(store Store, opts ...Option) *Cache {
	c := &Cache{
		store:                 store,
		subtitleRetentionDays: DefaultSubtitleRetentionDays,
		wordRetentionDays:     DefaultWordRetentionDays,
		now:                   time.Now,
		fast:                  make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func fastKey(textKey, targetLang string) string {
	return textKey + "\x00" + targetLang
}

// EnterWork switches the cache to a new work identity: refreshes the work's
// last-accessed day (once per session, not per subtitle), clears the fast
// path, and hydrates it from one bulk durable read.
func (c *Cache) EnterWork(ctx context.Context, workIdentity string, sourceLang, targetLang language.Tag) error {
	if workIdentity == "" {
		return fmt.Errorf("work identity is required")
	}
	src := sourceLang.String()
	tgt := targetLang.String()

	if c.store != nil {
		if err := c.store.TouchWork(ctx, workIdentity, DayNumber(c.now())); err != nil {
			return fmt.Errorf("touch work: %w", err)
		}
	}

	loaded := []Entry{}
	if c.store != nil {
		var err error
		loaded, err = c.store.LoadWork(ctx, workIdentity, src, tgt)
		if err != nil {
			return fmt.Errorf("load work: %w", err)
		}
	}

	c.mu.Lock()
	c.work = workIdentity
	c.sourceLang = src
	c.targetLang = tgt
	c.fast = make(map[string]string, len(loaded))
	for _, entry := range loaded {
		if ValidTranslation(entry.TranslatedText) {
			c.fast[fastKey(entry.TextKey, entry.TargetLang)] = entry.TranslatedText
		}
	}
	c.mu.Unlock()

	log.Info("cache scope %q: %d durable entries hydrated", workIdentity, len(loaded))
	return nil
}

// Work returns the current scope identity.
func (c *Cache) Work() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.work
}

// Get serves the fast path. An invalid cached value is deleted and reported
// as a miss so the caller re-enqueues the text.
func (c *Cache) Get(textKey string, targetLang language.Tag) (string, bool) {
	key := fastKey(textKey, targetLang.String())

	c.mu.RLock()
	value, ok := c.fast[key]
	c.mu.RUnlock()
	if !ok {
		return "", false
	}
	if !ValidTranslation(value) {
		c.mu.Lock()
		delete(c.fast, key)
		c.mu.Unlock()
		return "", false
	}
	return value, true
}

// PutBatch stores one translated chunk: every entry lands in the fast path
// immediately and the durable write covers the whole chunk in one
// transaction. Invalid values are skipped, never cached.
func (c *Cache) PutBatch(ctx context.Context, entries []Entry) error {
	durable := make([]Entry, 0, len(entries))

	c.mu.Lock()
	work := c.work
	for _, entry := range entries {
		if !ValidTranslation(entry.TranslatedText) {
			continue
		}
		if entry.WorkIdentity == "" {
			entry.WorkIdentity = work
		}
		if entry.SourceLang == "" {
			entry.SourceLang = c.sourceLang
		}
		if entry.TargetLang == "" {
			entry.TargetLang = c.targetLang
		}
		c.fast[fastKey(entry.TextKey, entry.TargetLang)] = entry.TranslatedText
		if entry.WorkIdentity != "" {
			durable = append(durable, entry)
		}
	}
	c.mu.Unlock()

	if c.store == nil || len(durable) == 0 {
		return nil
	}
	if err := c.store.PutSubtitleBatch(ctx, durable); err != nil {
		return fmt.Errorf("persist batch: %w", err)
	}
	return nil
}

// GetWord reads a word entry from the durable tier, applying the validity
// guard; invalid entries are deleted and reported as a miss.
func (c *Cache) GetWord(ctx context.Context, wordKey string, sourceLang, targetLang language.Tag) (WordEntry, bool, error) {
	if c.store == nil {
		return WordEntry{}, false, nil
	}
	entry, ok, err := c.store.GetWord(ctx, wordKey, sourceLang.String(), targetLang.String())
	if err != nil || !ok {
		return WordEntry{}, false, err
	}
	if !ValidWord(entry.TranslatedText) {
		if err := c.store.DeleteWord(ctx, entry.WordKey, entry.SourceLang, entry.TargetLang); err != nil {
			log.Warn("drop invalid word entry %q: %v", entry.WordKey, err)
		}
		return WordEntry{}, false, nil
	}
	return entry, true, nil
}

// PutWord stores a word entry with a fresh last-accessed day. Invalid
// values are rejected outright.
func (c *Cache) PutWord(ctx context.Context, entry WordEntry) error {
	if !ValidWord(entry.TranslatedText) {
		return fmt.Errorf("invalid word translation for %q", entry.WordKey)
	}
	if c.store == nil {
		return nil
	}
	entry.LastAccessedDay = DayNumber(c.now())
	return c.store.PutWord(ctx, entry)
}

// EvictStale runs one mark-and-delete pass: works older than the subtitle
// retention and words older than the word retention are purged in bulk.
func (c *Cache) EvictStale(ctx context.Context) (worksRemoved, wordsRemoved int64, err error) {
	if c.store == nil {
		return 0, 0, nil
	}
	today := DayNumber(c.now())

	worksRemoved, err = c.store.DeleteWorksBefore(ctx, today-c.subtitleRetentionDays)
	if err != nil {
		return 0, 0, fmt.Errorf("evict works: %w", err)
	}
	wordsRemoved, err = c.store.DeleteWordsBefore(ctx, today-c.wordRetentionDays)
	if err != nil {
		return worksRemoved, 0, fmt.Errorf("evict words: %w", err)
	}

	if worksRemoved > 0 || wordsRemoved > 0 {
		log.Info("eviction pass removed %d subtitle entries, %d word entries", worksRemoved, wordsRemoved)
	}
	return worksRemoved, wordsRemoved, nil
}
