package dispatch

import (
	"errors"
	"fmt"
)

// Sentinel errors for registry consistency failures. Callers branch on these
// with errors.Is rather than matching message text.
var (
	// ErrAgentNotFound means the requested agent name is absent from the registry.
	ErrAgentNotFound = errors.New("agent not found")
	// ErrMissingBaseURL means the agent's card has no resolvable base address.
	ErrMissingBaseURL = errors.New("agent has no base URL")
)

// Error wraps a network or remote failure from a single agent call.
type Error struct {
	Agent string
	Cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("failed to call agent %s: %v", e.Agent, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// IsDispatchError reports whether err is (or wraps) a dispatch failure.
func IsDispatchError(err error) bool {
	var de *Error
	return errors.As(err, &de)
}
