package cache

import (
	"context"
	"time"
)

// Entry is one durable subtitle translation, addressed by the compound key
// (work identity, source lang, target lang, normalized text).
type Entry struct {
	WorkIdentity   string
	SourceLang     string
	TargetLang     string
	TextKey        string
	TranslatedText string
}

// WordEntry is one durable word translation. Words are scoped by language
// pair only; word meaning is assumed work-independent. Source records the
// provenance ("wiktionary" or "llm").
type WordEntry struct {
	WordKey         string
	SourceLang      string
	TargetLang      string
	TranslatedText  string
	Source          string
	LastAccessedDay int
}

// Store is the durable tier behind the in-process fast path.
type Store interface {
	PutSubtitleBatch(ctx context.Context, entries []Entry) error
	// LoadWork returns the full accumulated set for one work identity and
	// language pair in a single bulk read.
	LoadWork(ctx context.Context, workIdentity, sourceLang, targetLang string) ([]Entry, error)
	TouchWork(ctx context.Context, workIdentity string, day int) error
	DeleteWorksBefore(ctx context.Context, cutoffDay int) (int64, error)

	PutWord(ctx context.Context, entry WordEntry) error
	GetWord(ctx context.Context, wordKey, sourceLang, targetLang string) (WordEntry, bool, error)
	DeleteWordsBefore(ctx context.Context, cutoffDay int) (int64, error)
	DeleteWord(ctx context.Context, wordKey, sourceLang, targetLang string) error
}

// DayNumber converts a wall-clock time to a whole-day ordinal. Eviction
// compares day ordinals, never raw timestamps; aging is coarse by design.
func DayNumber(t time.Time) int {
	return int(t.UTC().Unix() / 86400)
}
