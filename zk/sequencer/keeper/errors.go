package keeper

import "fmt"

// Error is the StateKeeper's own error channel (spec.md 7): Canceled maps to
// a clean shutdown, anything else is fatal and aborts the process.
type Error struct {
	canceled bool
	err      error
}

func Canceled() Error { return Error{canceled: true} }

func Fatal(err error) Error { return Error{err: err} }

func (e Error) IsCanceled() bool { return e.canceled }

func (e Error) Unwrap() error { return e.err }

func (e Error) Error() string {
	if e.canceled {
		return "canceled"
	}
	return e.err.Error()
}

// Context wraps a fatal error with additional context, leaving Canceled untouched —
// mirrors Error::context in original_source/core/node/state_keeper/src/keeper.rs.
func (e Error) Context(msg string) Error {
	if e.canceled {
		return e
	}
	return Error{err: fmt.Errorf("%s: %w", msg, e.err)}
}
