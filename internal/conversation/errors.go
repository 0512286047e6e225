package conversation

import (
	"errors"
	"fmt"
)

// Sentinel errors for store operations. Check with errors.Is().
var (
	// ErrAuthRequired indicates no authenticated identity was supplied.
	// Operations short-circuit before any network call.
	ErrAuthRequired = errors.New("authenticated identity required")

	// ErrNotFound indicates the conversation does not exist or is not
	// owned by the caller. The two cases are deliberately not
	// distinguished, so ids cannot be probed across users.
	ErrNotFound = errors.New("conversation not found")
)

// PersistenceError wraps a remote-store failure. The in-memory state of
// the caller is untouched when one is returned.
type PersistenceError struct {
	Op  string // operation that failed, e.g. "append message"
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// persistErr wraps err unless it is already one of the store's sentinel
// errors.
func persistErr(op string, err error) error {
	if errors.Is(err, ErrAuthRequired) || errors.Is(err, ErrNotFound) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}
