package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound reports a deal or drop target that does not resolve.
	ErrNotFound = errors.New("not found")
	// ErrInvalidStage reports a stage id missing from the registry. Reaching
	// it through a drop is a programming error, not a user error.
	ErrInvalidStage = errors.New("invalid stage")
	// ErrPersistence reports that the backend did not apply a stage change.
	ErrPersistence = errors.New("stage change not persisted")
)

// MoveFailure is the single user-visible signal of the engine: a move was
// rejected by the backend and has been reverted locally.
type MoveFailure struct {
	Command    MoveCommand
	RevertedTo string
	Reverted   bool
	Err        error
}

func (f MoveFailure) Error() string {
	if !f.Reverted {
		return fmt.Sprintf("move %s to %s failed: %v", f.Command.DealID, f.Command.Destination, f.Err)
	}
	return fmt.Sprintf("move %s to %s failed, reverted to %s: %v", f.Command.DealID, f.Command.Destination, f.RevertedTo, f.Err)
}

func (f MoveFailure) Unwrap() error {
	return f.Err
}
