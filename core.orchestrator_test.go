package cutover

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meidoworks/nekoq-cutover/internal/fakemanager"
)

func TestRunBothStopped(t *testing.T) {
	h := newHarness(t, extractUnit(fakemanager.StatusStopped), replicatUnit(fakemanager.StatusStopped))
	o := h.orchestrator(Options{})

	result, err := o.Run(context.Background())
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, StateRunning, result.ExtractFinal)
	require.Equal(t, StateRunning, result.ReplicatFinal)
	require.Equal(t, 0, result.Warnings)
	require.Equal(t, PhaseVerified, result.Phase)
	require.Equal(t, PhaseVerified, o.Phase())

	require.Equal(t, []mutation{
		{path: extractPath, begin: "now", state: "stopped"},
		{path: extractPath, state: "running"},
		{path: replicatPath, begin: "now", state: "stopped"},
		{path: replicatPath, state: "running"},
	}, mutations(h.manager))

	ext, _ := h.manager.Unit(fakemanager.CollectionExtracts, testExtract)
	rep, _ := h.manager.Unit(fakemanager.CollectionReplicats, testReplicat)
	require.Equal(t, 1, ext.Repositions)
	require.Equal(t, 1, rep.Repositions)

	entries := o.Journal().Entries()
	require.NoError(t, CheckOrdering(entries))
	require.NoError(t, CheckRepositionSafety(entries))
	require.Contains(t, h.messages(), "SUCCESS: Fallback replication is ACTIVE.")
}

func TestRunStopsRunningExtractOnly(t *testing.T) {
	h := newHarness(t, extractUnit(fakemanager.StatusRunning), replicatUnit(fakemanager.StatusStopped))
	o := h.orchestrator(Options{})

	result, err := o.Run(context.Background())
	require.NoError(t, err)
	require.True(t, result.Success)

	var stops []string
	for _, m := range mutations(h.manager) {
		if m.state == "stopped" && m.begin == "" {
			stops = append(stops, m.path)
		}
	}
	require.Equal(t, []string{extractPath}, stops)
	require.Equal(t, mutation{path: extractPath, state: "stopped"}, mutations(h.manager)[0])
	require.NoError(t, CheckRepositionSafety(o.Journal().Entries()))
	require.NoError(t, CheckOrdering(o.Journal().Entries()))
}

func TestRunReplicatNeverStarts(t *testing.T) {
	rep := replicatUnit(fakemanager.StatusStopped)
	rep.IgnoreStart = true
	h := newHarness(t, extractUnit(fakemanager.StatusStopped), rep)
	o := h.orchestrator(Options{})

	result, err := o.Run(context.Background())
	require.Error(t, err)
	var mismatch *FinalStateMismatchError
	require.True(t, errors.As(err, &mismatch))
	require.False(t, result.Success)
	require.Equal(t, StateRunning, result.ExtractFinal)
	require.Equal(t, StateStopped, result.ReplicatFinal)
	require.Equal(t, PhaseVerified, result.Phase)
	require.NotContains(t, h.messages(), "SUCCESS: Fallback replication is ACTIVE.")
}

func TestRunUnitNotFound(t *testing.T) {
	broken := extractUnit(fakemanager.StatusRunning)
	broken.Broken = true

	cases := []struct {
		name    string
		units   []fakemanager.Unit
		missing ReplicationUnit
	}{
		{name: "extract missing", units: []fakemanager.Unit{replicatUnit(fakemanager.StatusStopped)}, missing: Extract(testExtract)},
		{name: "replicat missing", units: []fakemanager.Unit{extractUnit(fakemanager.StatusRunning)}, missing: Replicat(testReplicat)},
		{name: "extract unreadable", units: []fakemanager.Unit{broken, replicatUnit(fakemanager.StatusStopped)}, missing: Extract(testExtract)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, tc.units...)
			o := h.orchestrator(Options{})

			result, err := o.Run(context.Background())
			require.ErrorIs(t, err, ErrUnitNotFound)
			var notFound *UnitNotFoundError
			require.True(t, errors.As(err, &notFound))
			require.Equal(t, tc.missing, notFound.Unit)
			require.False(t, result.Success)
			require.Equal(t, PhaseAborted, result.Phase)
			require.Empty(t, h.manager.Mutations())
			require.Zero(t, h.clock.Slept())
		})
	}
}

func TestRunTwiceIsNoop(t *testing.T) {
	h := newHarness(t, extractUnit(fakemanager.StatusStopped), replicatUnit(fakemanager.StatusStopped))

	_, err := h.orchestrator(Options{}).Run(context.Background())
	require.NoError(t, err)
	before := len(h.manager.Mutations())

	second := h.orchestrator(Options{})
	result, err := second.Run(context.Background())
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, before, len(h.manager.Mutations()))
	require.Equal(t, PhaseVerified, second.Phase())

	ext, _ := h.manager.Unit(fakemanager.CollectionExtracts, testExtract)
	require.Equal(t, 1, ext.Repositions)
}

func TestRunRepositionActivePair(t *testing.T) {
	h := newHarness(t, extractUnit(fakemanager.StatusRunning), replicatUnit(fakemanager.StatusRunning))
	o := h.orchestrator(Options{RepositionActivePair: true})

	result, err := o.Run(context.Background())
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, []mutation{
		{path: extractPath, state: "stopped"},
		{path: extractPath, begin: "now", state: "stopped"},
		{path: extractPath, state: "running"},
		{path: replicatPath, state: "stopped"},
		{path: replicatPath, begin: "now", state: "stopped"},
		{path: replicatPath, state: "running"},
	}, mutations(h.manager))

	entries := o.Journal().Entries()
	require.NoError(t, CheckOrdering(entries))
	require.NoError(t, CheckRepositionSafety(entries))
}

func TestRunSlowStop(t *testing.T) {
	ext := extractUnit(fakemanager.StatusRunning)
	ext.StopLag = 1
	h := newHarness(t, ext, replicatUnit(fakemanager.StatusStopped))
	o := h.orchestrator(Options{})

	result, err := o.Run(context.Background())
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, 1, result.Warnings)

	got, _ := h.manager.Unit(fakemanager.CollectionExtracts, testExtract)
	require.Equal(t, 1, got.Repositions)
	require.NoError(t, CheckRepositionSafety(o.Journal().Entries()))
}

func TestRunExtractNeverStarts(t *testing.T) {
	ext := extractUnit(fakemanager.StatusStopped)
	ext.IgnoreStart = true
	h := newHarness(t, ext, replicatUnit(fakemanager.StatusStopped))
	o := h.orchestrator(Options{})

	result, err := o.Run(context.Background())
	var mismatch *FinalStateMismatchError
	require.True(t, errors.As(err, &mismatch))
	require.Equal(t, StateStopped, result.ExtractFinal)
	// the wait timeout is reported and the sequence goes on with the replicat
	require.Equal(t, 1, result.Warnings)
	require.Equal(t, StateRunning, result.ReplicatFinal)
}

func TestRunOnlyOnce(t *testing.T) {
	h := newHarness(t, extractUnit(fakemanager.StatusStopped), replicatUnit(fakemanager.StatusStopped))
	o := h.orchestrator(Options{})

	_, err := o.Run(context.Background())
	require.NoError(t, err)
	_, err = o.Run(context.Background())
	require.ErrorIs(t, err, ErrAlreadyRan)
}

func TestRunRecordsMetrics(t *testing.T) {
	h := newHarness(t, extractUnit(fakemanager.StatusStopped), replicatUnit(fakemanager.StatusStopped))
	metrics := NewMetrics()
	o := h.orchestrator(Options{Metrics: metrics})

	_, err := o.Run(context.Background())
	require.NoError(t, err)

	families, err := metrics.Registry().Gather()
	require.NoError(t, err)
	values := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetGauge() != nil:
				values[mf.GetName()] = m.GetGauge().GetValue()
			case m.GetCounter() != nil:
				values[mf.GetName()] += m.GetCounter().GetValue()
			}
		}
	}
	require.Equal(t, float64(1), values["ggcutover_last_run_success"])
	require.Equal(t, float64(4), values["ggcutover_commands_total"])
	require.Equal(t, float64(h.clock.Now().Unix()), values["ggcutover_last_run_timestamp_seconds"])
}

func TestRunWaitsForTransitionalStatus(t *testing.T) {
	h := newHarness(t, extractUnit("starting"), replicatUnit(fakemanager.StatusStopped))
	h.clock.onSleep = func(n int) {
		if n == 1 {
			h.manager.SetStatus(fakemanager.CollectionExtracts, testExtract, fakemanager.StatusRunning)
		}
	}
	o := h.orchestrator(Options{})

	result, err := o.Run(context.Background())
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, 0, result.Warnings)
	require.Equal(t, []mutation{
		{path: extractPath, state: "stopped"},
		{path: extractPath, begin: "now", state: "stopped"},
		{path: extractPath, state: "running"},
		{path: replicatPath, begin: "now", state: "stopped"},
		{path: replicatPath, state: "running"},
	}, mutations(h.manager))
	require.Contains(t, h.messages(), "  Extract is starting. Waiting for it to settle...")
	require.NotContains(t, h.messages(), "ERROR: "+Extract(testExtract).String()+" not found.")
	require.NoError(t, CheckRepositionSafety(o.Journal().Entries()))
}

func TestRunUnitNeverSettles(t *testing.T) {
	h := newHarness(t, extractUnit(fakemanager.StatusStopped), replicatUnit("stopping"))
	o := h.orchestrator(Options{})

	result, err := o.Run(context.Background())
	require.ErrorIs(t, err, ErrUnitUnsettled)
	require.False(t, errors.Is(err, ErrUnitNotFound))
	var unsettled *UnitUnsettledError
	require.True(t, errors.As(err, &unsettled))
	require.Equal(t, Replicat(testReplicat), unsettled.Unit)
	require.Equal(t, "stopping", unsettled.Status)
	require.Equal(t, PhaseAborted, result.Phase)
	require.Empty(t, h.manager.Mutations())
	require.LessOrEqual(t, h.clock.Slept(), DefaultWaitTimeout+DefaultPollInterval)
}

func TestRunSkipsStartWhenGateUnknown(t *testing.T) {
	h := newHarness(t, extractUnit(fakemanager.StatusRunning), replicatUnit(fakemanager.StatusStopped))
	// status reads fail from the settle after the extract stop onwards
	h.clock.onSleep = func(n int) {
		if n == 1 {
			h.manager.SetBroken(fakemanager.CollectionExtracts, testExtract, true)
		}
	}
	o := h.orchestrator(Options{})

	result, err := o.Run(context.Background())
	var mismatch *FinalStateMismatchError
	require.True(t, errors.As(err, &mismatch))
	require.Equal(t, StateUnknown, result.ExtractFinal)
	require.Equal(t, StateRunning, result.ReplicatFinal)
	// reposition skipped, start skipped, extract not seen running
	require.Equal(t, 3, result.Warnings)
	require.Equal(t, []mutation{
		{path: extractPath, state: "stopped"},
		{path: replicatPath, begin: "now", state: "stopped"},
		{path: replicatPath, state: "running"},
	}, mutations(h.manager))
	require.Contains(t, h.messages(), "  WARNING: state of "+Extract(testExtract).String()+" is unknown. Start skipped.")
}

func TestRunCancelledBeforeStart(t *testing.T) {
	h := newHarness(t, extractUnit(fakemanager.StatusStopped), replicatUnit(fakemanager.StatusStopped))
	o := h.orchestrator(Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := o.Run(ctx)
	require.ErrorIs(t, err, ErrInterrupted)
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, errors.Is(err, ErrUnitNotFound))
	var interrupted *InterruptedError
	require.True(t, errors.As(err, &interrupted))
	require.Equal(t, PhaseInit, interrupted.Phase)
	require.Equal(t, PhaseAborted, result.Phase)
	require.False(t, result.Success)
	require.Empty(t, h.manager.Mutations())
	require.NotContains(t, h.messages(), "ERROR: "+Extract(testExtract).String()+" not found.")
}

func TestRunCancelledAfterStop(t *testing.T) {
	h := newHarness(t, extractUnit(fakemanager.StatusRunning), replicatUnit(fakemanager.StatusStopped))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.clock.onSleep = func(n int) {
		if n == 1 {
			cancel()
		}
	}
	o := h.orchestrator(Options{})

	result, err := o.Run(ctx)
	require.ErrorIs(t, err, ErrInterrupted)
	var interrupted *InterruptedError
	require.True(t, errors.As(err, &interrupted))
	require.Equal(t, PhaseExtractVerified, interrupted.Phase)
	require.Equal(t, PhaseAborted, result.Phase)
	require.Equal(t, PhaseAborted, o.Phase())
	require.Equal(t, []mutation{{path: extractPath, state: "stopped"}}, mutations(h.manager))
}
