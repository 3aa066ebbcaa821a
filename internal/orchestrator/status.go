// SPDX-License-Identifier: MPL-2.0

package orchestrator

import (
	"errors"
	"fmt"
)

const (
	// StatusIdle is the initial state; no run has started.
	StatusIdle Status = iota
	// StatusRunning means one invocation is in flight.
	StatusRunning
	// StatusCompleted is terminal: the invocation reported success.
	StatusCompleted
	// StatusFailed is terminal: the invocation reported failure.
	StatusFailed
	// StatusCancelled is terminal: cancellation was requested before the run settled.
	StatusCancelled
)

// ErrInvalidStatus is returned when a Status value is not one of the defined run states.
var ErrInvalidStatus = errors.New("invalid status")

type (
	// Status is the lifecycle state of a run.
	Status int32

	// InvalidStatusError is returned when a Status value is not recognized.
	// It wraps ErrInvalidStatus for errors.Is() compatibility.
	InvalidStatusError struct {
		Value Status
	}
)

// String returns a human-readable representation of the run status.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ParseStatus is the inverse of String.
func ParseStatus(s string) (Status, error) {
	for st := StatusIdle; st <= StatusCancelled; st++ {
		if st.String() == s {
			return st, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

// Error implements the error interface for InvalidStatusError.
func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("invalid status %d (valid: 0=idle, 1=running, 2=completed, 3=failed, 4=cancelled)", e.Value)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidStatusError) Unwrap() error {
	return ErrInvalidStatus
}

// Validate returns nil if the Status is one of the defined run states,
// or an error wrapping ErrInvalidStatus if it is not.
func (s Status) Validate() error {
	switch s {
	case StatusIdle, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled:
		return nil
	default:
		return &InvalidStatusError{Value: s}
	}
}

// IsTerminal returns true for Completed, Failed and Cancelled.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// AcceptsStart reports whether Start may begin a new run from s. Terminal
// states count as idle.
func (s Status) AcceptsStart() bool {
	return s != StatusRunning
}

// MarshalText encodes the status as its String form.
func (s Status) MarshalText() ([]byte, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return []byte(s.String()), nil
}

// UnmarshalText is the inverse of MarshalText.
func (s *Status) UnmarshalText(text []byte) error {
	st, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = st
	return nil
}
