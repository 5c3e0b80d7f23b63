package domain

import "fmt"

// Error taxonomy for the engine. Every failure aborts the whole operation
// before any mutation; each error names the offending key so upstream
// callers can act on it.

// AuthorizationError reports that the caller lacks the required role.
type AuthorizationError struct {
	Op     string  // operation attempted
	Caller Address // who attempted it
	Role   string  // role required
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("%s: caller %s lacks role %s", e.Op, e.Caller, e.Role)
}

// ValidationError reports malformed or out-of-range input.
type ValidationError struct {
	Op     string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: invalid %s: %s", e.Op, e.Field, e.Reason)
}

// ConflictError reports that the target key is already claimed or held.
type ConflictError struct {
	Op     string
	Key    string // ticker hash, token address, pool address
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: conflict on %s: %s", e.Op, e.Key, e.Reason)
}

// StateError reports that the operation does not apply to the current state,
// such as claiming a zero balance or releasing a missing reservation.
type StateError struct {
	Op     string
	Key    string
	Reason string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Key, e.Reason)
}
