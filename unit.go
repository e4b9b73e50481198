// Package cutover activates a replication pair: the capture side (Extract) and the apply side
// (Replicat) are repositioned to the current log position and started, Extract first.
package cutover

import (
	"fmt"
	"strings"
)

type UnitKind int

const (
	KindExtract UnitKind = iota + 1
	KindReplicat
)

// Collection is the manager REST collection the kind lives in.
func (k UnitKind) Collection() string {
	switch k {
	case KindExtract:
		return "extracts"
	case KindReplicat:
		return "replicats"
	default:
		return ""
	}
}

func (k UnitKind) String() string {
	switch k {
	case KindExtract:
		return "extract"
	case KindReplicat:
		return "replicat"
	default:
		return fmt.Sprint("kind(", int(k), ")")
	}
}

func ParseUnitKind(s string) (UnitKind, bool) {
	switch strings.ToLower(s) {
	case "extract":
		return KindExtract, true
	case "replicat":
		return KindReplicat, true
	default:
		return 0, false
	}
}

// Title is used in operator facing narration, e.g. "Extract EXB2A23A".
func (k UnitKind) Title() string {
	s := k.String()
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// ReplicationUnit identifies one managed process. It never changes during a run.
type ReplicationUnit struct {
	Kind UnitKind
	Name string
}

func Extract(name string) ReplicationUnit {
	return ReplicationUnit{Kind: KindExtract, Name: name}
}

func Replicat(name string) ReplicationUnit {
	return ReplicationUnit{Kind: KindReplicat, Name: name}
}

func (u ReplicationUnit) Endpoint() string {
	return "/services/v2/" + u.Kind.Collection() + "/" + u.Name
}

func (u ReplicationUnit) String() string {
	return u.Kind.Title() + " " + u.Name
}

type UnitState int

const (
	StateUnknown UnitState = iota
	StateRunning
	StateStopped
)

func (s UnitState) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ParseUnitState maps a manager status value onto a UnitState.
// Terminated processes (abended, killed) count as stopped: they accept a reposition.
func ParseUnitState(status string) UnitState {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "running":
		return StateRunning
	case "stopped", "abended", "killed":
		return StateStopped
	default:
		return StateUnknown
	}
}

// IsTransitional reports a status the manager shows while a process changes state. Such a unit
// exists; its state is known once the change completes.
func IsTransitional(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "starting", "stopping":
		return true
	default:
		return false
	}
}

type Action int

const (
	ActionStop Action = iota + 1
	ActionReposition
	ActionStart
)

func (a Action) String() string {
	switch a {
	case ActionStop:
		return "stop"
	case ActionReposition:
		return "reposition"
	case ActionStart:
		return "start"
	default:
		return fmt.Sprint("action(", int(a), ")")
	}
}

func ParseAction(s string) (Action, bool) {
	switch strings.ToLower(s) {
	case "stop":
		return ActionStop, true
	case "reposition":
		return ActionReposition, true
	case "start":
		return ActionStart, true
	default:
		return 0, false
	}
}

// Payload is the PATCH body for the action. Reposition is the begin-now marker and
// leaves the unit stopped; the manager rejects it for a running unit.
func (a Action) Payload() map[string]string {
	switch a {
	case ActionStop:
		return map[string]string{"status": "stopped"}
	case ActionReposition:
		return map[string]string{"begin": "now", "status": "stopped"}
	case ActionStart:
		return map[string]string{"status": "running"}
	default:
		return nil
	}
}

// TargetState is the state the unit should be in once the action took effect.
func (a Action) TargetState() UnitState {
	if a == ActionStart {
		return StateRunning
	}
	return StateStopped
}

type OutcomeKind int

const (
	OutcomeUnexpected OutcomeKind = iota
	OutcomeAcknowledged
	OutcomeAlreadyInState
)

func (o OutcomeKind) String() string {
	switch o {
	case OutcomeAcknowledged:
		return "acknowledged"
	case OutcomeAlreadyInState:
		return "already_in_state"
	default:
		return "unexpected"
	}
}

// CommandOutcome is the classified manager answer to a mutating request.
// Body is only populated for unexpected answers, empty when the request never got one.
type CommandOutcome struct {
	Kind OutcomeKind
	Body string
}

func (o CommandOutcome) Recognized() bool {
	return o.Kind != OutcomeUnexpected
}

type CutoverResult struct {
	RunID         string
	ExtractFinal  UnitState
	ReplicatFinal UnitState
	Success       bool
	Warnings      int
	Phase         Phase
}

func (r *CutoverResult) evaluate() {
	r.Success = r.ExtractFinal == StateRunning && r.ReplicatFinal == StateRunning
}
