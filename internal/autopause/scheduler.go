package autopause

import (
	"sync"
	"time"

	"github.com/kinodub/dualsub/internal/subtitle"
	"github.com/kinodub/dualsub/pkg/log"
)

const (
	// pauseLead pulls the pause point slightly before the cue end so the
	// pause lands while the line is still on screen.
	pauseLead = 0.05

	// driftEpsilon is the media-time slack below which "at the pause point"
	// counts as reached. Wall timers drift against media time, so expiry
	// re-checks the position and re-arms when still short by more than this.
	driftEpsilon = 0.010

	// Bounded fallback lookup when no active cue covers the position yet.
	fallbackRetries    = 3
	fallbackRetryDelay = 300 * time.Millisecond
)

// Playback is the scheduler's view of the player. Position and Rate are read
// on every scheduling decision; Pause fires at the cue boundary.
type Playback interface {
	Position() float64
	Rate() float64
	Pause()
}

// Scheduler pauses playback at the end of the subtitle currently on screen.
// It keeps at most one live timer; every Schedule call cancels whatever was
// armed before computing anew.
type Scheduler struct {
	playback Playback
	clock    Clock
	enabled  func() bool

	mu      sync.Mutex
	cues    *subtitle.CueSet
	timer   Timer
	gen     int
	endTime float64
	retries int
}

func NewScheduler(playback Playback, clock Clock, enabled func() bool) *Scheduler {
	return &Scheduler{
		playback: playback,
		clock:    clock,
		enabled:  enabled,
		cues:     subtitle.NewCueSet(),
		endTime:  -1,
	}
}

// ReplaceCues swaps the native timed-text snapshot, on seek or track switch.
func (s *Scheduler) ReplaceCues(cues []subtitle.Cue) {
	s.mu.Lock()
	s.cues.Replace(cues)
	s.mu.Unlock()
}

// AddCue inserts one cue as the native track streams in.
func (s *Scheduler) AddCue(cue subtitle.Cue) {
	s.mu.Lock()
	s.cues.Insert(cue)
	s.mu.Unlock()
}

// OnSubtitleRendered resolves the rendered text against the active cues and
// schedules a pause at the matched cue's end. This is the primary time
// source; position-based fallback only runs when it goes stale.
func (s *Scheduler) OnSubtitleRendered(text string) {
	position := s.playback.Position()

	s.mu.Lock()
	cue, ok := BestTextMatch(s.cues.ActiveAt(position), text)
	if ok {
		s.endTime = cue.End
	}
	s.mu.Unlock()

	s.Schedule()
}

// OnSeek invalidates the cached end time and re-derives from the new
// position.
func (s *Scheduler) OnSeek() {
	s.Cancel()
	s.mu.Lock()
	s.endTime = -1
	s.mu.Unlock()
	s.Schedule()
}

// OnResume re-arms after a pause, user-initiated or our own.
func (s *Scheduler) OnResume() {
	s.Schedule()
}

// OnRateChange recomputes the wall delay for the same media-time target.
func (s *Scheduler) OnRateChange() {
	s.Schedule()
}

// OnPause drops any pending timer; pausing an already-paused player is
// pointless.
func (s *Scheduler) OnPause() {
	s.Cancel()
}

// Cancel clears the live timer and resets the fallback retry count.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	s.cancelLocked()
	s.retries = 0
	s.mu.Unlock()
}

func (s *Scheduler) cancelLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
}

// Schedule computes the next pause point and arms a wall-clock timer for it.
func (s *Scheduler) Schedule() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelLocked()
	if !s.enabled() {
		return
	}

	position := s.playback.Position()
	end := s.endTime

	if end < 0 || end-pauseLead <= position {
		// Primary value is stale; re-derive from the current position.
		cue, ok := BestByPosition(s.cues, position)
		if !ok {
			s.armFallbackRetryLocked()
			return
		}
		end = cue.End
		s.endTime = end
	}
	s.retries = 0

	s.armLocked(end - pauseLead)
}

// armLocked starts the wall-clock timer for a media-time pause point.
// Caller holds s.mu.
func (s *Scheduler) armLocked(pauseAt float64) {
	position := s.playback.Position()
	rate := s.playback.Rate()
	if rate <= 0 {
		return
	}
	if pauseAt <= position {
		return
	}

	delay := time.Duration((pauseAt - position) / rate * float64(time.Second))
	gen := s.gen
	timer := s.clock.NewTimer(delay)
	s.timer = timer

	go func() {
		<-timer.C()
		s.onTimerFired(gen, pauseAt)
	}()
	log.Debug("pause armed at media %0.3fs, wall delay %s", pauseAt, delay)
}

// onTimerFired re-checks the actual position on expiry. Still short of the
// target means the wall clock ran ahead of media time, so it re-arms for
// the remaining delta instead of pausing early.
func (s *Scheduler) onTimerFired(gen int, pauseAt float64) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.timer = nil

	position := s.playback.Position()
	if position+driftEpsilon < pauseAt {
		s.gen++
		s.armLocked(pauseAt)
		s.mu.Unlock()
		return
	}
	s.gen++
	s.endTime = -1
	s.mu.Unlock()

	s.playback.Pause()
}

// armFallbackRetryLocked retries the position lookup a bounded number of
// times before giving up silently. Caller holds s.mu.
func (s *Scheduler) armFallbackRetryLocked() {
	if s.retries >= fallbackRetries {
		s.retries = 0
		return
	}
	s.retries++

	gen := s.gen
	timer := s.clock.NewTimer(fallbackRetryDelay)
	s.timer = timer

	go func() {
		<-timer.C()
		s.mu.Lock()
		stale := gen != s.gen
		if !stale {
			s.timer = nil
		}
		s.mu.Unlock()
		if !stale {
			s.Schedule()
		}
	}()
}
