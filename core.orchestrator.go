package cutover

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const DefaultSettleDelay = 5 * time.Second

var ErrAlreadyRan = errors.New("orchestrator already ran")

// CommandIssuer is satisfied by Issuer.
type CommandIssuer interface {
	Issue(ctx context.Context, unit ReplicationUnit, action Action) CommandOutcome
}

type Options struct {
	Extract  ReplicationUnit
	Replicat ReplicationUnit

	Markers      *MarkerCatalog
	PollInterval time.Duration
	WaitTimeout  time.Duration
	// SettleDelay is slept after a stop, after the extract start and before the final check.
	// Stop acknowledgments are asynchronous and cannot be polled reliably in short windows.
	SettleDelay time.Duration

	// RepositionActivePair makes a run reposition a pair found fully running. By default such a
	// pair is left untouched and only verified.
	RepositionActivePair bool

	RunID   string
	Clock   Clock
	Log     logrus.FieldLogger
	Metrics *Metrics
}

// Orchestrator performs one cutover run: Extract is stopped if needed, repositioned to begin
// now and started, then the same for Replicat, then both are verified running.
// Everything runs sequentially on the caller's goroutine.
type Orchestrator struct {
	opts    Options
	clock   Clock
	log     logrus.FieldLogger
	metrics *Metrics

	journal *Journal
	prober  *Prober
	poller  *Poller
	issuer  CommandIssuer
	phases  *PhaseTracker

	warnings int
}

func NewOrchestrator(transport Transport, opts Options) *Orchestrator {
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.Log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		opts.Log = l
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = DefaultSettleDelay
	}
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = DefaultWaitTimeout
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}

	o := &Orchestrator{
		opts:    opts,
		clock:   opts.Clock,
		log:     opts.Log,
		metrics: opts.Metrics,
		journal: NewJournal(opts.RunID, opts.Clock),
	}
	prober := NewProber(transport, o.log, o.journal, o.metrics)
	o.prober = prober
	o.poller = NewPoller(prober, o.clock, opts.PollInterval)
	o.issuer = NewIssuer(transport, opts.Markers, o.log, o.journal, o.metrics)
	o.phases = NewPhaseTracker(func(from, to Phase) {
		o.journal.RecordPhase(from, to)
		o.log.WithField("phase", string(to)).Debugf("phase %s -> %s", from, to)
	})
	return o
}

func (o *Orchestrator) Journal() *Journal {
	return o.journal
}

func (o *Orchestrator) Phase() Phase {
	return o.phases.Current()
}

// Run returns the verdict of the cutover. The error is a *UnitNotFoundError or a
// *UnitUnsettledError when a unit could not be resolved (nothing was changed), an
// *InterruptedError when ctx ended the run early, or a *FinalStateMismatchError when the
// sequence completed without both units running.
func (o *Orchestrator) Run(ctx context.Context) (result *CutoverResult, err error) {
	if o.phases.Current() != PhaseInit {
		return nil, ErrAlreadyRan
	}
	started := o.clock.Now()
	result = &CutoverResult{RunID: o.journal.RunID}
	defer func() {
		result.Warnings = o.warnings
		result.Phase = o.phases.Current()
		o.metrics.observeRun(result, o.clock.Now().Sub(started), o.clock.Now())
	}()

	extract, replicat := o.opts.Extract, o.opts.Replicat

	o.log.Infof("[1/6] Verifying %s exists...", extract)
	extractState, err := o.verify(ctx, extract)
	if err != nil {
		return result, err
	}
	o.log.Infof("  Current status: %s", extractState)

	o.log.Infof("[2/6] Verifying %s exists...", replicat)
	replicatState, err := o.verify(ctx, replicat)
	if err != nil {
		return result, err
	}
	o.log.Infof("  Current status: %s", replicatState)
	o.fire(ctx, EventVerifyExtract)

	if extractState == StateRunning && replicatState == StateRunning && !o.opts.RepositionActivePair {
		o.log.Info("Extract and Replicat are both running; leaving their positions untouched.")
		o.fire(ctx, EventPairActive)
	} else {
		if err := o.activate(ctx, extract, extractState, "[3/6]", "[4/6]", EventRepositionExtract, EventStartExtract); err != nil {
			return result, err
		}

		o.log.Infof("  Waiting for %s to stabilize...", extract.Kind.Title())
		o.settle("extract start")
		if err := o.interrupted(ctx); err != nil {
			return result, err
		}
		if !o.poller.WaitFor(ctx, extract, StateRunning, o.opts.WaitTimeout) {
			if err := o.interrupted(ctx); err != nil {
				return result, err
			}
			o.warn("  WARNING: %s not observed running within %s. Continuing with %s.", extract, o.opts.WaitTimeout, replicat)
		}
		o.fire(ctx, EventVerifyReplicat)

		if err := o.activate(ctx, replicat, replicatState, "[5/6]", "[6/6]", EventRepositionReplicat, EventStartReplicat); err != nil {
			return result, err
		}
		o.log.Info("")
		o.log.Info("=== Final Status Check ===")
		o.settle("final verification")
	}
	if err := o.interrupted(ctx); err != nil {
		return result, err
	}

	result.ExtractFinal = o.prober.Probe(ctx, extract)
	result.ReplicatFinal = o.prober.Probe(ctx, replicat)
	result.evaluate()
	o.fire(ctx, EventVerifyFinal)

	o.log.Infof("%s:  %s", extract, result.ExtractFinal)
	o.log.Infof("%s: %s", replicat, result.ReplicatFinal)
	if !result.Success {
		return result, &FinalStateMismatchError{Extract: extract, Replicat: replicat, Result: result}
	}
	o.log.Info("SUCCESS: Fallback replication is ACTIVE.")
	return result, nil
}

// verify resolves the state of a unit before anything is changed. A transitional status is
// waited out; a unit that cannot be read at all aborts the run.
func (o *Orchestrator) verify(ctx context.Context, unit ReplicationUnit) (UnitState, error) {
	state, status := o.prober.ProbeStatus(ctx, unit)
	if state == StateUnknown && IsTransitional(status) {
		o.log.Infof("  %s is %s. Waiting for it to settle...", unit.Kind.Title(), status)
		state = o.poller.WaitSettled(ctx, unit, o.opts.WaitTimeout)
		if state == StateUnknown {
			if err := o.interrupted(ctx); err != nil {
				return state, err
			}
			o.fire(ctx, EventAbort)
			o.log.Errorf("ERROR: %s is still %s after %s.", unit, status, o.opts.WaitTimeout)
			return state, &UnitUnsettledError{Unit: unit, Status: status}
		}
	}
	if state == StateUnknown {
		if err := o.interrupted(ctx); err != nil {
			return state, err
		}
		return state, o.abort(ctx, unit)
	}
	return state, nil
}

// activate stops the unit if it was running, repositions it to begin now and starts it.
// Reposition and start both need the gate probe to know the unit's state.
func (o *Orchestrator) activate(ctx context.Context, unit ReplicationUnit, observed UnitState, repositionStep, startStep, repositionEvent, startEvent string) error {
	o.log.Infof("%s Re-positioning %s to current SCN (BEGIN NOW)...", repositionStep, unit)
	if observed == StateRunning {
		o.log.Infof("  %s is running. Stopping first...", unit.Kind.Title())
		o.stop(ctx, unit)
	}
	if err := o.interrupted(ctx); err != nil {
		return err
	}

	// a reposition is only sent once the unit is seen stopped
	gate := o.prober.Probe(ctx, unit)
	if gate == StateRunning {
		o.warn("  WARNING: %s still running. Stopping again...", unit)
		o.stop(ctx, unit)
		gate = o.prober.Probe(ctx, unit)
	}
	if err := o.interrupted(ctx); err != nil {
		return err
	}
	switch gate {
	case StateStopped:
		outcome := o.issuer.Issue(ctx, unit, ActionReposition)
		o.report(unit, outcome, "re-positioned to current SCN")
	case StateRunning:
		o.warn("  WARNING: %s could not be stopped. Reposition skipped.", unit)
	default:
		o.warn("  WARNING: state of %s is unknown. Reposition skipped.", unit)
	}
	o.fire(ctx, repositionEvent)

	o.log.Infof("%s Starting %s...", startStep, unit)
	switch gate {
	case StateStopped:
		outcome := o.issuer.Issue(ctx, unit, ActionStart)
		o.report(unit, outcome, "started")
	case StateRunning:
		o.log.Infof("  OK: %s already running. Start skipped.", unit.Kind.Title())
	default:
		o.warn("  WARNING: state of %s is unknown. Start skipped.", unit)
	}
	o.fire(ctx, startEvent)
	return nil
}

func (o *Orchestrator) stop(ctx context.Context, unit ReplicationUnit) {
	outcome := o.issuer.Issue(ctx, unit, ActionStop)
	if !outcome.Recognized() {
		o.log.Warnf("  stop of %s not acknowledged, relying on settle delay", unit)
	}
	o.settle("stop " + unit.Name)
}

// report logs the outcome of a reposition or start. An unrecognized answer is a warning and
// the run goes on: a reposition that silently did nothing is recovered by re-running.
// This can hide a real failure until the final verification.
func (o *Orchestrator) report(unit ReplicationUnit, outcome CommandOutcome, done string) {
	switch outcome.Kind {
	case OutcomeAcknowledged:
		o.log.Infof("  OK: %s %s.", unit.Kind.Title(), done)
	case OutcomeAlreadyInState:
		o.log.Infof("  OK: %s already %s.", unit.Kind.Title(), done)
	default:
		o.warn("  WARNING: Unexpected response for %s. Check log.", unit)
		if outcome.Body != "" {
			o.log.Warn(prettyBody(outcome.Body))
		}
	}
}

func (o *Orchestrator) settle(reason string) {
	o.journal.RecordSettle(o.opts.SettleDelay, reason)
	o.clock.Sleep(o.opts.SettleDelay)
}

func (o *Orchestrator) warn(format string, args ...any) {
	o.warnings++
	o.metrics.observeWarning()
	o.log.Warnf(format, args...)
}

// interrupted ends the run once ctx is done. Further commands would fail on the closed context.
func (o *Orchestrator) interrupted(ctx context.Context) error {
	if ctx.Err() == nil {
		return nil
	}
	phase := o.phases.Current()
	o.fire(ctx, EventAbort)
	o.log.Errorf("INTERRUPTED in phase %s: %v", phase, ctx.Err())
	return &InterruptedError{Phase: phase, Err: ctx.Err()}
}

func (o *Orchestrator) abort(ctx context.Context, unit ReplicationUnit) error {
	o.fire(ctx, EventAbort)
	o.log.Errorf("ERROR: %s not found.", unit)
	return &UnitNotFoundError{Unit: unit}
}

// fire advances the phase machine. The sequence above only fires valid events, a rejection
// means the sequence itself is broken. The machine drops transitions on a cancelled context,
// so it never sees the run's cancellation.
func (o *Orchestrator) fire(ctx context.Context, event string) {
	if err := o.phases.Fire(context.WithoutCancel(ctx), event); err != nil {
		panic(fmt.Sprint("cutover phase ", o.phases.Current(), " rejected ", event, ": ", err))
	}
}
