package cutover

import (
	"errors"
	"fmt"
)

// ErrUnitNotFound aborts a run before any mutating command is sent.
var ErrUnitNotFound = errors.New("replication unit not found")

type UnitNotFoundError struct {
	Unit ReplicationUnit
}

func (e *UnitNotFoundError) Error() string {
	return fmt.Sprint(e.Unit.String(), " not found")
}

func (e *UnitNotFoundError) Unwrap() error {
	return ErrUnitNotFound
}

// ErrUnitUnsettled aborts a run whose unit kept a transitional status through the wait.
var ErrUnitUnsettled = errors.New("replication unit did not settle")

type UnitUnsettledError struct {
	Unit   ReplicationUnit
	Status string
}

func (e *UnitUnsettledError) Error() string {
	return fmt.Sprint(e.Unit.String(), " is still ", e.Status)
}

func (e *UnitUnsettledError) Unwrap() error {
	return ErrUnitUnsettled
}

// ErrInterrupted ends a run whose context was cancelled. Commands already sent are not undone.
var ErrInterrupted = errors.New("cutover interrupted")

type InterruptedError struct {
	Phase Phase
	Err   error
}

func (e *InterruptedError) Error() string {
	return fmt.Sprint("cutover interrupted in phase ", e.Phase, ": ", e.Err)
}

func (e *InterruptedError) Is(target error) bool {
	return target == ErrInterrupted
}

func (e *InterruptedError) Unwrap() error {
	return e.Err
}

// FinalStateMismatchError reports a completed run whose units did not both end up running.
type FinalStateMismatchError struct {
	Extract  ReplicationUnit
	Replicat ReplicationUnit
	Result   *CutoverResult
}

func (e *FinalStateMismatchError) Error() string {
	return fmt.Sprintf("final state mismatch: %s is %s, %s is %s",
		e.Extract, e.Result.ExtractFinal, e.Replicat, e.Result.ReplicatFinal)
}
