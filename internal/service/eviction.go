package service

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/kinodub/dualsub/pkg/icron"
	"github.com/kinodub/dualsub/pkg/log"
)

var evictionGroup singleflight.Group

// ScheduleEviction registers the periodic cache sweep on the given cron.
// Overlapping triggers collapse into one running pass.
func (s *Service) ScheduleEviction(c *cron.Cron) error {
	expr := s.settings.Get().EvictionCronExpr

	runFunc := func() {
		_, _, _ = evictionGroup.Do("evict", func() (any, error) {
			works, words, err := s.cache.EvictStale(context.Background())
			if err != nil {
				log.Error("eviction sweep failed: %v", err)
				return nil, err
			}
			log.Info("eviction sweep done: %d subtitle entries, %d word entries", works, words)
			return nil, nil
		})
	}

	_, err := c.AddFunc(expr, runFunc)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.evictionExpr = expr
	s.mu.Unlock()
	return nil
}

// EvictNow runs one sweep immediately, outside the cron schedule.
func (s *Service) EvictNow(ctx context.Context) (worksRemoved, wordsRemoved int64, err error) {
	return s.cache.EvictStale(ctx)
}

// Status is the introspection payload for the status endpoint.
type Status struct {
	Provider            string             `json:"provider"`
	Work                string             `json:"work,omitempty"`
	PendingUnits        int                `json:"pending_units"`
	DualSubtitleEnabled bool               `json:"dual_subtitle_enabled"`
	AutoPauseEnabled    bool               `json:"auto_pause_enabled"`
	Eviction            *icron.TriggerInfo `json:"eviction,omitempty"`
}

func (s *Service) Status() any {
	st := s.settings.Get()
	s.mu.Lock()
	work := s.work
	expr := s.evictionExpr
	s.mu.Unlock()

	status := Status{
		Provider:            st.ProviderID,
		Work:                work,
		PendingUnits:        s.queue.Pending(),
		DualSubtitleEnabled: st.DualSubtitleEnabled,
		AutoPauseEnabled:    st.AutoPauseEnabled,
	}
	if expr != "" {
		info, err := icron.GetTriggerInfo(expr, time.Now())
		if err == nil {
			status.Eviction = info
		}
	}
	return status
}
