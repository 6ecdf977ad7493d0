package design

import "fmt"

// State is a position in the sequential design state machine
type State string

const (
	StateInitialized State = "INITIALIZED"
	StateFitting     State = "FITTING"
	StateScoring     State = "SCORING"
	StateExploring   State = "EXPLORING"
	StateSelecting   State = "SELECTING"
	StateEvaluating  State = "EVALUATING"
	StateAppending   State = "APPENDING"
	StateDone        State = "DONE"
	StateFailed      State = "FAILED"
)

// StageError identifies the iteration and stage at which a campaign failed.
// Iteration is zero-based; -1 marks initialisation and the final fit.
type StageError struct {
	Iteration int
	Stage     State
	Err       error
}

func (e *StageError) Error() string {
	if e.Iteration < 0 {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("iteration %d, %s: %v", e.Iteration+1, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErr(iteration int, stage State, err error) error {
	return &StageError{Iteration: iteration, Stage: stage, Err: err}
}
