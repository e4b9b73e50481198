package cutover

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// scriptedProber returns states in order, repeating the last one.
type scriptedProber struct {
	states []UnitState
	calls  int
}

func (s *scriptedProber) Probe(_ context.Context, _ ReplicationUnit) UnitState {
	s.calls++
	if s.calls > len(s.states) {
		return s.states[len(s.states)-1]
	}
	return s.states[s.calls-1]
}

func TestWaitForImmediate(t *testing.T) {
	clock := newFakeClock()
	prober := &scriptedProber{states: []UnitState{StateRunning}}
	p := NewPoller(prober, clock, 2*time.Second)

	if !p.WaitFor(context.Background(), Extract(testExtract), StateRunning, 30*time.Second) {
		t.Fatal("expected state observed on first probe")
	}
	if prober.calls != 1 || clock.Slept() != 0 {
		t.Fatal("poller waited although the state was reached:", prober.calls, clock.Slept())
	}
}

func TestWaitForEventually(t *testing.T) {
	clock := newFakeClock()
	prober := &scriptedProber{states: []UnitState{StateStopped, StateUnknown, StateRunning}}
	p := NewPoller(prober, clock, 2*time.Second)

	if !p.WaitFor(context.Background(), Extract(testExtract), StateRunning, 30*time.Second) {
		t.Fatal("expected state observed on third probe")
	}
	if prober.calls != 3 || clock.Slept() != 4*time.Second {
		t.Fatal("unexpected polling:", prober.calls, clock.Slept())
	}
}

func TestWaitForTimeoutBound(t *testing.T) {
	cases := []struct {
		interval time.Duration
		timeout  time.Duration
	}{
		{2 * time.Second, 30 * time.Second},
		{2 * time.Second, 5 * time.Second},
		{5 * time.Second, 1 * time.Second},
	}
	for _, tc := range cases {
		clock := newFakeClock()
		prober := &scriptedProber{states: []UnitState{StateStopped}}
		p := NewPoller(prober, clock, tc.interval)

		if p.WaitFor(context.Background(), Replicat(testReplicat), StateRunning, tc.timeout) {
			t.Fatal("state never reached but WaitFor succeeded")
		}
		if clock.Slept() > tc.timeout+tc.interval {
			t.Fatalf("waited %s, bound is %s", clock.Slept(), tc.timeout+tc.interval)
		}
		if prober.calls < 1 {
			t.Fatal("no probe issued")
		}
	}
}

// slowProber takes delay per read, or until ctx ends, and never sees the expected state.
type slowProber struct {
	delay time.Duration
	calls int
}

func (s *slowProber) Probe(ctx context.Context, _ ReplicationUnit) UnitState {
	s.calls++
	select {
	case <-time.After(s.delay):
		return StateStopped
	case <-ctx.Done():
		return StateUnknown
	}
}

func TestWaitForTimeoutBoundSlowReads(t *testing.T) {
	if testing.Short() {
		t.Skip("runs on the wall clock")
	}
	prober := &slowProber{delay: 800 * time.Millisecond}
	p := NewPoller(prober, SystemClock{}, 500*time.Millisecond)

	started := time.Now()
	ok := p.WaitFor(context.Background(), Extract(testExtract), StateRunning, time.Second)
	elapsed := time.Since(started)

	require.False(t, ok)
	require.GreaterOrEqual(t, prober.calls, 1)
	// timeout plus one interval, with slack for the scheduler
	require.Less(t, elapsed, 1500*time.Millisecond+300*time.Millisecond, "waited %s", elapsed)
}

func TestWaitSettled(t *testing.T) {
	clock := newFakeClock()
	prober := &scriptedProber{states: []UnitState{StateUnknown, StateUnknown, StateRunning}}
	p := NewPoller(prober, clock, 2*time.Second)

	require.Equal(t, StateRunning, p.WaitSettled(context.Background(), Extract(testExtract), 30*time.Second))
	require.Equal(t, 3, prober.calls)
	require.Equal(t, 4*time.Second, clock.Slept())

	clock = newFakeClock()
	prober = &scriptedProber{states: []UnitState{StateUnknown}}
	p = NewPoller(prober, clock, 2*time.Second)
	require.Equal(t, StateUnknown, p.WaitSettled(context.Background(), Extract(testExtract), 10*time.Second))
	require.LessOrEqual(t, clock.Slept(), 12*time.Second)
}

func TestWaitForCancelled(t *testing.T) {
	clock := newFakeClock()
	prober := &scriptedProber{states: []UnitState{StateStopped}}
	p := NewPoller(prober, clock, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if p.WaitFor(ctx, Extract(testExtract), StateRunning, time.Minute) {
		t.Fatal("cancelled wait succeeded")
	}
}
