package schedule

import (
	"time"

	"github.com/smukkama/solar-watch/pkg/config"
)

// NextDailyRun returns the next occurrence of timeOfDay ("HH:MM") in now's
// location, today if it has not passed yet
func NextDailyRun(now time.Time, timeOfDay string) (time.Time, error) {
	hour, minute, err := config.ParseTimeOfDay(timeOfDay)
	if err != nil {
		return time.Time{}, err
	}

	todayRun := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if now.After(todayRun) {
		return todayRun.AddDate(0, 0, 1), nil
	}
	return todayRun, nil
}

// Daily schedules job under id every day at timeOfDay. The job is rescheduled
// after each run. onScheduled, when set, is told each next run time.
func Daily(s *Scheduler, id, timeOfDay string, job func(), onScheduled func(time.Time)) error {
	var scheduleNext func() error
	scheduleNext = func() error {
		next, err := NextDailyRun(time.Now(), timeOfDay)
		if err != nil {
			return err
		}
		if onScheduled != nil {
			onScheduled(next)
		}
		return s.Schedule(id, next, func() {
			job()
			_ = scheduleNext()
		})
	}
	return scheduleNext()
}
