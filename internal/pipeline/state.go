package pipeline

import (
	"fmt"

	"github.com/google/uuid"
)

type State int

const (
	Idle State = iota
	ResolvingMetadata
	Acquiring
	Transcoding
	Reading
	CleaningUp
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case ResolvingMetadata:
		return "RESOLVING_METADATA"
	case Acquiring:
		return "ACQUIRING"
	case Transcoding:
		return "TRANSCODING"
	case Reading:
		return "READING"
	case CleaningUp:
		return "CLEANING_UP"
	case Done:
		return "DONE"
	case Failed:
		return "FAILED"
	}

	return fmt.Sprintf("UNKNOWN(%d)", int(s))
}

func (s State) Terminal() bool { return s == Done || s == Failed }

// Transition describes a single state change of a pipeline run. Err is
// only set when transitioning to Failed.
type Transition struct {
	JobID uuid.UUID
	From  State
	To    State
	Err   error
}

// Observer is notified of every transition, synchronously and in order.
type Observer func(Transition)

// StageError wraps the error which caused a run to fail, recording the
// state the run was in at the time.
type StageError struct {
	JobID uuid.UUID
	Stage State
	Err   error
}

func (err *StageError) Error() string {
	return fmt.Sprintf("job %s failed during %s: %v", err.JobID, err.Stage, err.Err)
}

func (err *StageError) Unwrap() error { return err.Err }
