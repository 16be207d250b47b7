package queue

import (
	"context"
	"time"
)

// secondsUntilMidnight returns how many seconds remain until the next local
// midnight in loc, as measured from now.
func secondsUntilMidnight(now time.Time, loc *time.Location) time.Duration {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)
	return next.Sub(local)
}

// RunDailyLifecycle purges every bakery in bakeryIDs at each local midnight
// in q's configured timezone, until ctx is cancelled. It is meant to run as
// a single long-lived goroutine per process; each pass re-arms a timer for
// the next local midnight.
func (q *Queue) RunDailyLifecycle(ctx context.Context, bakeryIDs func() []int) {
	for {
		wait := secondsUntilMidnight(q.clock.Now(), q.timezone)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			for _, id := range bakeryIDs() {
				if err := q.cache.Purge(id); err != nil {
					logger.Errorf("daily purge of bakery %d: %v", id, err)
				}
			}
		}
	}
}
