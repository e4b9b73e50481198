package cutover

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Clock is the time source of a run. All waits of the orchestration go through Sleep.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

func (SystemClock) Sleep(d time.Duration) {
	time.Sleep(d)
}

var _ backoff.Timer = new(clockTimer)

// clockTimer drives backoff retries through a Clock instead of the runtime timers.
type clockTimer struct {
	clock Clock
	c     chan time.Time
}

func newClockTimer(clock Clock) *clockTimer {
	return &clockTimer{
		clock: clock,
		c:     make(chan time.Time, 1),
	}
}

func (t *clockTimer) Start(d time.Duration) {
	t.clock.Sleep(d)
	select {
	case t.c <- t.clock.Now():
	default:
	}
}

func (t *clockTimer) Stop() {
	select {
	case <-t.c:
	default:
	}
}

func (t *clockTimer) C() <-chan time.Time {
	return t.c
}
