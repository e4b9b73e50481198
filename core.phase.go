package cutover

import (
	"context"

	"github.com/looplab/fsm"
)

type Phase string

const (
	PhaseInit                 Phase = "init"
	PhaseExtractVerified      Phase = "extract_verified"
	PhaseExtractRepositioned  Phase = "extract_repositioned"
	PhaseExtractStarted       Phase = "extract_started"
	PhaseReplicatVerified     Phase = "replicat_verified"
	PhaseReplicatRepositioned Phase = "replicat_repositioned"
	PhaseReplicatStarted      Phase = "replicat_started"
	PhaseVerified             Phase = "verified"
	PhaseAborted              Phase = "aborted"
)

const (
	EventVerifyExtract      = "verify_extract"
	EventRepositionExtract  = "reposition_extract"
	EventStartExtract       = "start_extract"
	EventVerifyReplicat     = "verify_replicat"
	EventRepositionReplicat = "reposition_replicat"
	EventStartReplicat      = "start_replicat"
	EventPairActive         = "pair_active"
	EventVerifyFinal        = "verify_final"
	EventAbort              = "abort"
)

var allPhases = []Phase{
	PhaseInit,
	PhaseExtractVerified,
	PhaseExtractRepositioned,
	PhaseExtractStarted,
	PhaseReplicatVerified,
	PhaseReplicatRepositioned,
	PhaseReplicatStarted,
}

// PhaseTracker is the run's position in the cutover sequence. Phases only move forward;
// an out of order event is rejected by the machine.
type PhaseTracker struct {
	machine *fsm.FSM
}

func NewPhaseTracker(onTransition func(from, to Phase)) *PhaseTracker {
	abortSrc := make([]string, 0, len(allPhases))
	for _, p := range allPhases {
		abortSrc = append(abortSrc, string(p))
	}
	return &PhaseTracker{
		machine: fsm.NewFSM(
			string(PhaseInit),
			fsm.Events{
				{Name: EventVerifyExtract, Src: []string{string(PhaseInit)}, Dst: string(PhaseExtractVerified)},
				{Name: EventRepositionExtract, Src: []string{string(PhaseExtractVerified)}, Dst: string(PhaseExtractRepositioned)},
				{Name: EventStartExtract, Src: []string{string(PhaseExtractRepositioned)}, Dst: string(PhaseExtractStarted)},
				{Name: EventVerifyReplicat, Src: []string{string(PhaseExtractStarted)}, Dst: string(PhaseReplicatVerified)},
				{Name: EventRepositionReplicat, Src: []string{string(PhaseReplicatVerified)}, Dst: string(PhaseReplicatRepositioned)},
				{Name: EventStartReplicat, Src: []string{string(PhaseReplicatRepositioned)}, Dst: string(PhaseReplicatStarted)},
				{Name: EventPairActive, Src: []string{string(PhaseExtractVerified)}, Dst: string(PhaseReplicatStarted)},
				{Name: EventVerifyFinal, Src: []string{string(PhaseReplicatStarted)}, Dst: string(PhaseVerified)},
				{Name: EventAbort, Src: abortSrc, Dst: string(PhaseAborted)},
			},
			fsm.Callbacks{
				"enter_state": func(_ context.Context, e *fsm.Event) {
					if onTransition != nil {
						onTransition(Phase(e.Src), Phase(e.Dst))
					}
				},
			},
		),
	}
}

func (p *PhaseTracker) Current() Phase {
	return Phase(p.machine.Current())
}

func (p *PhaseTracker) Fire(ctx context.Context, event string) error {
	return p.machine.Event(ctx, event)
}
