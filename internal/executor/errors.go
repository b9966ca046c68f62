package executor

import "errors"

var (
	// ErrRuntime reports that the guest trapped, a host call signalled a
	// user error, or the module violated the execution contract (missing
	// memory export, rejected heap grow, unresolvable import).
	ErrRuntime = errors.New("executor: runtime failure")

	// ErrInvalidReturn reports that the invoked export did not return the
	// single packed i64 the calling convention requires.
	ErrInvalidReturn = errors.New("executor: invalid return")
)
