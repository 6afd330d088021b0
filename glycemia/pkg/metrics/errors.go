package metrics

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyInput is returned when there are no readings to analyze.
	ErrEmptyInput = errors.New("no readings")
	// ErrInsufficientData marks a snapshot computed from a single reading.
	// It is reported through Snapshot.Warning, never returned by Compute.
	ErrInsufficientData = errors.New("fewer than two readings")
	ErrInvalidRange     = errors.New("invalid target range")
	ErrInvalidReading   = errors.New("invalid reading")
)

// InputError describes why the engine rejected its input.
type InputError struct {
	Op  string
	Err error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *InputError) Unwrap() error {
	return e.Err
}

func inputErr(op string, err error) error {
	return &InputError{Op: op, Err: err}
}
