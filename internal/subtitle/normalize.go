package subtitle

import "strings"

// NormalizeKey folds a subtitle text down to its canonical cache identity:
// newlines become spaces, runs of whitespace collapse to one space, and the
// result is trimmed and lower-cased. Whitespace-only variants of the same
// line therefore share one key.
func NormalizeKey(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}

// EqualNormalized reports whether two texts share the same normalized key.
func EqualNormalized(a, b string) bool {
	return NormalizeKey(a) == NormalizeKey(b)
}
