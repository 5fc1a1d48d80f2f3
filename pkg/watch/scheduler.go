package watch

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/watchcount-scraper/pkg/orchestrate"
	"github.com/Sriram-PR/watchcount-scraper/pkg/utils"
)

// RunFunc performs one scrape of the watched query
type RunFunc func(ctx context.Context) (*orchestrate.RunResult, error)

// Scheduler re-runs a query every interval, persisting each outcome so a restart picks up the schedule
type Scheduler struct {
	key      string
	interval time.Duration
	run      RunFunc
	state    *StateManager
	log      *logrus.Entry
}

func NewScheduler(stateDir, key string, interval time.Duration, run RunFunc, log *logrus.Entry) *Scheduler {
	return &Scheduler{
		key:      key,
		interval: interval,
		run:      run,
		state:    NewStateManager(stateDir),
		log:      log.WithField("component", "watch"),
	}
}

// Run blocks until ctx is done. A failed scrape is recorded and retried at the next interval.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.interval <= 0 {
		return fmt.Errorf("%w: watch interval must be positive, got %v", utils.ErrConfigValidation, s.interval)
	}
	if err := s.state.Load(); err != nil {
		s.log.Warnf("Failed to load watch state: %v (starting fresh)", err)
	}

	s.log.Infof("Watching query every %s", FormatInterval(s.interval))
	s.logLastRun()

	for {
		var wait time.Duration
		if !s.state.ShouldRun(s.key, s.interval) {
			wait = max(time.Until(s.state.NextRunTime(s.key, s.interval)), 0)
			s.log.Infof("Next scrape in %v (at %s)", wait.Round(time.Second), time.Now().Add(wait).Format("15:04:05"))
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.log.Info("Watch scheduler shutting down...")
			return nil
		case <-timer.C:
		}

		s.runOnce(ctx)
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	result, err := s.run(ctx)
	if err != nil && ctx.Err() != nil {
		return // Interrupted by shutdown; not a result worth recording
	}

	if err != nil {
		s.log.WithField("error_type", utils.CategorizeError(err)).Errorf("Scrape failed: %v", err)
		s.state.Record(s.key, false, 0, 0, err.Error())
	} else {
		s.state.Record(s.key, true, result.Pages, result.Listings.Len(), "")
	}

	if err := s.state.Save(); err != nil {
		s.log.Errorf("Failed to save watch state: %v", err)
	}
}

func (s *Scheduler) logLastRun() {
	st, ok := s.state.Get(s.key)
	if !ok {
		s.log.Info("Query never run, will run immediately")
		return
	}
	status := "success"
	if !st.LastRunSuccess {
		status = "failed"
	}
	s.log.Infof("Last run %s (%s, %d listings from %d pages)",
		st.LastRunTime.Format(time.RFC3339), status, st.Listings, st.Pages)
}

// FormatInterval formats a duration for display, using a day unit above 24h
func FormatInterval(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		hours := int(d.Hours())
		mins := int(d.Minutes()) % 60
		if mins > 0 {
			return fmt.Sprintf("%dh%dm", hours, mins)
		}
		return fmt.Sprintf("%dh", hours)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	if hours > 0 {
		return fmt.Sprintf("%dd%dh", days, hours)
	}
	return fmt.Sprintf("%dd", days)
}

// ParseInterval parses a duration string, additionally accepting a leading day count ("7d", "1d12h")
func ParseInterval(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}

	var days int
	var remaining string
	n, _ := fmt.Sscanf(s, "%dd%s", &days, &remaining)
	if n >= 1 {
		d := time.Duration(days) * 24 * time.Hour
		if remaining != "" {
			extra, err := time.ParseDuration(remaining)
			if err != nil {
				return 0, fmt.Errorf("%w: invalid interval '%s'", utils.ErrConfigValidation, s)
			}
			d += extra
		}
		return d, nil
	}

	return 0, fmt.Errorf("%w: invalid interval '%s' (examples: 30m, 1h, 24h, 7d)", utils.ErrConfigValidation, s)
}
