package dashboard

import (
	"time"

	"github.com/robfig/cron/v3"
)

// immediateEvery fires at the first time it is asked about, then every period.
//
// cron.Every is not used because it rounds periods to whole seconds and waits
// a full period before the first run.
type immediateEvery struct {
	every time.Duration
	fired bool // only touched by the cron run loop
}

var _ cron.Schedule = (*immediateEvery)(nil)

func (s *immediateEvery) Next(t time.Time) time.Time {
	if !s.fired {
		s.fired = true
		return t
	}
	return t.Add(s.every)
}
