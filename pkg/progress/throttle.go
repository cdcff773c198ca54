package progress

import (
	"time"

	"github.com/vnykmshr/parcsv/pkg/ratelimit/bucket"
)

// throttled forwards row events at a bounded rate.
type throttled struct {
	next    Reporter
	limiter bucket.Limiter
}

// Throttle returns a Reporter that passes at most one RowWritten event per
// interval to next. Every Row carries absolute totals and file events always
// pass, so the reporter behind it stays exact at each event it sees.
// A non-positive interval returns next unchanged.
func Throttle(next Reporter, interval time.Duration) Reporter {
	return ThrottleWithClock(next, interval, nil)
}

// ThrottleWithClock is Throttle with an explicit clock.
func ThrottleWithClock(next Reporter, interval time.Duration, clock bucket.Clock) Reporter {
	if interval <= 0 {
		return next
	}
	limiter, err := bucket.NewWithConfigSafe(bucket.Config{
		Rate:          bucket.Every(interval),
		Burst:         1,
		Clock:         clock,
		InitialTokens: -1,
	})
	if err != nil {
		return next
	}
	return &throttled{next: next, limiter: limiter}
}

func (t *throttled) FileStarted(info FileInfo) {
	t.next.FileStarted(info)
}

func (t *throttled) RowWritten(info FileInfo, row Row) {
	if t.limiter.Allow() {
		t.next.RowWritten(info, row)
	}
}

func (t *throttled) FileFinished(s Summary) {
	t.next.FileFinished(s)
}
