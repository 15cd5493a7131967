package autopause

import (
	"strings"

	"github.com/kinodub/dualsub/internal/subtitle"
)

// textMatches reports whether a rendered line and a cue carry the same
// content: equal after normalization, or one contains the other. Native
// tracks often split or join lines differently from what ends up rendered.
func textMatches(rendered, cue string) bool {
	r := subtitle.NormalizeKey(rendered)
	c := subtitle.NormalizeKey(cue)
	if r == "" || c == "" {
		return false
	}
	return r == c || strings.Contains(r, c) || strings.Contains(c, r)
}

// BestTextMatch picks, among the given cues, the one matching the rendered
// text. Ties go to the latest-starting cue: when ranges overlap, the later
// start is the more specific, currently-speaking cue. Equal starts keep the
// first seen, so the choice is stable.
func BestTextMatch(cues []subtitle.Cue, rendered string) (subtitle.Cue, bool) {
	var best subtitle.Cue
	found := false
	for _, cue := range cues {
		if !textMatches(rendered, cue.Text) {
			continue
		}
		if !found || cue.Start > best.Start {
			best = cue
			found = true
		}
	}
	return best, found
}

// BestByPosition picks the latest-starting cue covering the position.
func BestByPosition(set *subtitle.CueSet, position float64) (subtitle.Cue, bool) {
	active := set.ActiveAt(position)
	var best subtitle.Cue
	found := false
	for _, cue := range active {
		if !found || cue.Start > best.Start {
			best = cue
			found = true
		}
	}
	return best, found
}
