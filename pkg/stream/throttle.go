package stream

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultThrottleInterval is the minimum spacing between fetch cycles.
const DefaultThrottleInterval = 100 * time.Millisecond

// throttle rate-limits fetch cycles to at most one per interval.
//
// A call arriving inside the window schedules a single trailing
// invocation instead of firing immediately, so bursts (rapid pan/zoom,
// selector scrubbing) coalesce into one fetch wave. The trailing
// invocation runs the burst's latest callback: a coalesced wave must
// serve the final request, not the first one.
type throttle struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	next    func()
}

func newThrottle(interval time.Duration) *throttle {
	if interval <= 0 {
		interval = DefaultThrottleInterval
	}
	return &throttle{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// Do runs fn immediately when the window allows, otherwise coalesces the
// call into the single pending trailing invocation, which executes
// whatever callback is latest when it fires.
func (t *throttle) Do(fn func()) {
	t.mu.Lock()
	if t.next != nil {
		t.next = fn
		t.mu.Unlock()
		return
	}
	if t.limiter.Allow() {
		t.mu.Unlock()
		fn()
		return
	}
	t.next = fn
	delay := t.limiter.Reserve().Delay()
	t.mu.Unlock()

	time.AfterFunc(delay, func() {
		t.mu.Lock()
		fn := t.next
		t.next = nil
		t.mu.Unlock()
		if fn != nil {
			fn()
		}
	})
}
