package surrogate

import "fmt"

// InsufficientDataError is returned when there are too few collocation points to fit a surrogate.
// Only acquiring more data resolves it.
type InsufficientDataError struct {
	Points int
	Needed int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: %d collocation points, need at least %d", e.Points, e.Needed)
}

// OptimizationError is returned when every hyperparameter restart failed
type OptimizationError struct {
	Output   int
	Attempts int
	Err      error
}

func (e *OptimizationError) Error() string {
	return fmt.Sprintf("hyperparameter fit for output %d failed in all %d attempts: %v", e.Output, e.Attempts, e.Err)
}

func (e *OptimizationError) Unwrap() error {
	return e.Err
}
