package subtitle

import "sort"

// Unit is a single piece of subtitle text together with its normalized
// cache/queue identity. Two units with equal keys are the same translation
// obligation.
type Unit struct {
	Text string
	Key  string
}

func NewUnit(text string) Unit {
	return Unit{Text: text, Key: NormalizeKey(text)}
}

// Cue is a timed text range on the media timeline, in seconds.
// Start < End holds for every cue accepted by a CueSet.
type Cue struct {
	Start float64
	End   float64
	Text  string
}

func (c Cue) Valid() bool {
	return c.Start < c.End
}

// CueSet keeps cues sorted by ascending start time. Insertion keeps the set
// monotonically non-decreasing by Start so overlap scans stay cheap.
type CueSet struct {
	cues []Cue
}

func NewCueSet() *CueSet {
	return &CueSet{}
}

// Insert adds a cue in start-time order. Invalid cues are dropped.
func (s *CueSet) Insert(cue Cue) bool {
	if !cue.Valid() {
		return false
	}
	idx := sort.Search(len(s.cues), func(i int) bool {
		return s.cues[i].Start > cue.Start
	})
	s.cues = append(s.cues, Cue{})
	copy(s.cues[idx+1:], s.cues[idx:])
	s.cues[idx] = cue
	return true
}

// Replace swaps the whole set for a new snapshot, used when the native
// timed-text track changes wholesale (seek, track switch).
func (s *CueSet) Replace(cues []Cue) {
	s.cues = s.cues[:0]
	for _, cue := range cues {
		s.Insert(cue)
	}
}

func (s *CueSet) Len() int {
	return len(s.cues)
}

// All returns the sorted cues. The slice is shared; callers must not mutate.
func (s *CueSet) All() []Cue {
	return s.cues
}

// ActiveAt returns every cue whose range covers the given position.
func (s *CueSet) ActiveAt(position float64) []Cue {
	var active []Cue
	for _, cue := range s.cues {
		if cue.Start > position {
			break
		}
		if position >= cue.Start && position < cue.End {
			active = append(active, cue)
		}
	}
	return active
}
