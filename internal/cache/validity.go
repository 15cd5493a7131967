package cache

import "strings"

// maxWordLength rejects implausibly long word translations; a real word
// lookup never needs more than a short gloss.
const maxWordLength = 200

// refusalPatterns mark LLM responses that slipped through as if they were
// translations. A cached value matching any of these is treated as a miss
// and dropped, so a malformed response never poisons the cache.
var refusalPatterns = []string{
	"please provide",
	"i cannot",
	"i can't",
	"i'm sorry",
	"i am sorry",
	"as an ai",
	"error:",
	"no translation",
}

// ValidTranslation reports whether a subtitle translation is safe to cache
// and render.
func ValidTranslation(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}
	lower := strings.ToLower(trimmed)
	for _, pattern := range refusalPatterns {
		if strings.Contains(lower, pattern) {
			return false
		}
	}
	return true
}

// ValidWord applies the translation guard plus the word length bound.
func ValidWord(text string) bool {
	if !ValidTranslation(text) {
		return false
	}
	return len(strings.TrimSpace(text)) <= maxWordLength
}
