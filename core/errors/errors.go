package errors

import (
	stderrors "errors"
	"fmt"
)

var (
	ErrOutOfRange   = stderrors.New("decimal: value outside the wire integer range")
	ErrInvalidStage = stderrors.New("operation: transition not allowed from current stage")
	ErrNoChange     = stderrors.New("operation: target equals current state")
)

// ParseError reports malformed or out-of-range numeric input. It is never
// retried.
type ParseError struct {
	Input  string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("parse %q: %s", e.Input, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error { return e.Err }

// NewParseError builds a ParseError for the supplied input.
func NewParseError(input, reason string, cause error) *ParseError {
	return &ParseError{Input: input, Reason: reason, Err: cause}
}

// UnappliedRewardsError signals that a ratio or ordering operation was invoked
// on a position whose pending redistribution has not been applied.
type UnappliedRewardsError struct {
	Op string
}

func (e *UnappliedRewardsError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s: pending redistribution rewards must be applied first", e.Op)
}

// RemoteReadError wraps any failure fetching remote ledger state.
type RemoteReadError struct {
	Op  string
	Err error
}

func (e *RemoteReadError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("remote read %s: %v", e.Op, e.Err)
}

func (e *RemoteReadError) Unwrap() error { return e.Err }

// NewRemoteReadError wraps err unless it already is a RemoteReadError.
func NewRemoteReadError(op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *RemoteReadError
	if stderrors.As(err, &existing) {
		return err
	}
	return &RemoteReadError{Op: op, Err: err}
}

// HintResolutionError reports which resolver step failed. Callers may retry
// the whole resolution or fall back to a default hint at their own risk.
type HintResolutionError struct {
	Step string
	Err  error
}

func (e *HintResolutionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("hint resolution (%s): %v", e.Step, e.Err)
}

func (e *HintResolutionError) Unwrap() error { return e.Err }

// IsRemoteRead reports whether err carries a RemoteReadError.
func IsRemoteRead(err error) bool {
	var target *RemoteReadError
	return stderrors.As(err, &target)
}

// IsParse reports whether err carries a ParseError.
func IsParse(err error) bool {
	var target *ParseError
	return stderrors.As(err, &target)
}
