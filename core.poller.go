package cutover

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultWaitTimeout  = 30 * time.Second
)

var errStateNotReached = errors.New("state not reached")

// StateProber is satisfied by Prober.
type StateProber interface {
	Probe(ctx context.Context, unit ReplicationUnit) UnitState
}

// Poller waits for a unit to reach a state by probing at a fixed interval.
// State transitions on the manager finish in short, predictable time, so there is no backoff growth.
type Poller struct {
	prober   StateProber
	clock    Clock
	interval time.Duration
}

func NewPoller(prober StateProber, clock Clock, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		prober:   prober,
		clock:    clock,
		interval: interval,
	}
}

// WaitFor returns true as soon as expected is observed and false once timeout has elapsed.
// It returns no later than timeout plus one interval after the call, a slow probe included.
func (p *Poller) WaitFor(ctx context.Context, unit ReplicationUnit, expected UnitState, timeout time.Duration) bool {
	_, ok := p.waitUntil(ctx, unit, timeout, func(s UnitState) bool {
		return s == expected
	})
	return ok
}

// WaitSettled polls until the unit reports a known state and returns the last observation.
func (p *Poller) WaitSettled(ctx context.Context, unit ReplicationUnit, timeout time.Duration) UnitState {
	state, _ := p.waitUntil(ctx, unit, timeout, func(s UnitState) bool {
		return s != StateUnknown
	})
	return state
}

func (p *Poller) waitUntil(ctx context.Context, unit ReplicationUnit, timeout time.Duration, done func(UnitState) bool) (UnitState, bool) {
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout+p.interval)
	defer cancel()
	deadline := p.clock.Now().Add(timeout)

	attempts := uint64(timeout / p.interval)
	if timeout%p.interval != 0 {
		attempts++
	}
	if attempts == 0 {
		attempts = 1
	}

	last := StateUnknown
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(p.interval), attempts-1), ctx)
	err := backoff.RetryNotifyWithTimer(func() error {
		last = p.prober.Probe(ctx, unit)
		if done(last) {
			return nil
		}
		if ctx.Err() != nil || !p.clock.Now().Before(deadline) {
			return backoff.Permanent(errStateNotReached)
		}
		return errStateNotReached
	}, b, nil, newClockTimer(p.clock))
	return last, err == nil
}
