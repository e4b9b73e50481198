package cutover

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
)

type EntryType int

const (
	EntryProbe EntryType = iota + 1
	EntryCommand
	EntrySettle
	EntryPhase
)

func (t EntryType) String() string {
	switch t {
	case EntryProbe:
		return "probe"
	case EntryCommand:
		return "command"
	case EntrySettle:
		return "settle"
	case EntryPhase:
		return "phase"
	default:
		return "entry"
	}
}

// JournalEntry is one recorded step of a run. Kind/Unit are empty for phase and settle entries.
type JournalEntry struct {
	Seq     int       `cbor:"1,keyasint"`
	At      time.Time `cbor:"2,keyasint"`
	Type    EntryType `cbor:"3,keyasint"`
	Kind    UnitKind  `cbor:"4,keyasint,omitempty"`
	Unit    string    `cbor:"5,keyasint,omitempty"`
	Action  Action    `cbor:"6,keyasint,omitempty"`
	State   UnitState `cbor:"7,keyasint,omitempty"`
	Outcome string    `cbor:"8,keyasint,omitempty"`
	Detail  string    `cbor:"9,keyasint,omitempty"`
}

var journalEncMode, _ = cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()

type journalFile struct {
	RunID   string         `cbor:"1,keyasint"`
	Entries []JournalEntry `cbor:"2,keyasint"`
}

// Journal is the machine readable audit trail of a run, written next to the run log.
type Journal struct {
	RunID string

	clock   Clock
	entries []JournalEntry
	sync.Mutex
}

func NewJournal(runID string, clock Clock) *Journal {
	return &Journal{
		RunID: runID,
		clock: clock,
	}
}

func (j *Journal) append(e JournalEntry) {
	if j == nil {
		return
	}
	j.Lock()
	defer j.Unlock()
	e.Seq = len(j.entries) + 1
	e.At = j.clock.Now()
	j.entries = append(j.entries, e)
}

func (j *Journal) RecordProbe(unit ReplicationUnit, state UnitState) {
	j.append(JournalEntry{Type: EntryProbe, Kind: unit.Kind, Unit: unit.Name, State: state})
}

func (j *Journal) RecordCommand(unit ReplicationUnit, action Action, outcome CommandOutcome) {
	j.append(JournalEntry{Type: EntryCommand, Kind: unit.Kind, Unit: unit.Name, Action: action, Outcome: outcome.Kind.String()})
}

func (j *Journal) RecordSettle(d time.Duration, reason string) {
	j.append(JournalEntry{Type: EntrySettle, Detail: fmt.Sprint(d, " ", reason)})
}

func (j *Journal) RecordPhase(from, to Phase) {
	j.append(JournalEntry{Type: EntryPhase, Detail: string(from) + " -> " + string(to)})
}

func (j *Journal) Entries() []JournalEntry {
	j.Lock()
	defer j.Unlock()
	out := make([]JournalEntry, len(j.entries))
	copy(out, j.entries)
	return out
}

func (j *Journal) WriteTo(w io.Writer) (int64, error) {
	data, err := journalEncMode.Marshal(journalFile{RunID: j.RunID, Entries: j.Entries()})
	if err != nil {
		return 0, err
	}
	n, err := w.Write(data)
	return int64(n), err
}

func ReadJournal(r io.Reader) (runID string, entries []JournalEntry, err error) {
	var f journalFile
	if err := cbor.NewDecoder(r).Decode(&f); err != nil {
		return "", nil, err
	}
	return f.RunID, f.Entries, nil
}

var (
	ErrOrderingViolated = errors.New("replicat mutated before extract activation")
	ErrUnsafeReposition = errors.New("reposition issued against a running unit")
)

// CheckOrdering verifies that every mutating replicat command comes strictly after the extract
// was activated: its start command, or a running observation when the start was skipped.
// A later extract stop or reposition withdraws the activation.
func CheckOrdering(entries []JournalEntry) error {
	var active *JournalEntry
	for i := range entries {
		e := &entries[i]
		switch {
		case e.Kind == KindExtract && e.Type == EntryCommand:
			if e.Action == ActionStart {
				if active == nil {
					active = e
				}
			} else {
				active = nil
			}
		case e.Kind == KindExtract && e.Type == EntryProbe:
			if e.State == StateRunning && active == nil {
				active = e
			}
		case e.Kind == KindReplicat && e.Type == EntryCommand:
			if active == nil || !e.At.After(active.At) {
				return fmt.Errorf("%w: %s %s at seq %d", ErrOrderingViolated, e.Action, e.Unit, e.Seq)
			}
		}
	}
	return nil
}

// CheckRepositionSafety verifies that no reposition directly follows a running probe of the
// same unit without a stop in between.
func CheckRepositionSafety(entries []JournalEntry) error {
	type unitKey struct {
		kind UnitKind
		name string
	}
	lastRunning := make(map[unitKey]bool)
	for _, e := range entries {
		k := unitKey{kind: e.Kind, name: e.Unit}
		switch e.Type {
		case EntryProbe:
			lastRunning[k] = e.State == StateRunning
		case EntryCommand:
			switch e.Action {
			case ActionStop:
				lastRunning[k] = false
			case ActionReposition:
				if lastRunning[k] {
					return fmt.Errorf("%w: %s at seq %d", ErrUnsafeReposition, e.Unit, e.Seq)
				}
			}
		}
	}
	return nil
}
