package simulator

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMissingLocation indicates a results table without usable rows near the observation points
var ErrMissingLocation = errors.New("no result rows to sample observation locations from")

// maxStderr bounds the stderr tail kept in a SimulatorFailureError
const maxStderr = 2048

// SimulatorFailureError reports a simulator run that did not produce an observation vector
type SimulatorFailureError struct {
	RunLabel string
	Err      error
	Stderr   string
}

func (e *SimulatorFailureError) Error() string {
	msg := fmt.Sprintf("simulator run %s failed: %v", e.RunLabel, e.Err)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func (e *SimulatorFailureError) Unwrap() error {
	return e.Err
}

func failure(label string, err error, stderr string) error {
	if len(stderr) > maxStderr {
		stderr = stderr[len(stderr)-maxStderr:]
	}
	return &SimulatorFailureError{RunLabel: label, Err: err, Stderr: stderr}
}
