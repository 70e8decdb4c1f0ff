// Package gate defines the error taxonomy shared by the coordination services.
package gate

import "errors"

var (
	// ErrNotFound reports an unknown party, character or pending request.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState reports an operation that is not valid in the current
	// state (bad side, not-leader kick, self friend request).
	ErrInvalidState = errors.New("invalid state")

	// ErrConflict reports a membership conflict (character already belongs
	// to a different party).
	ErrConflict = errors.New("conflict")

	// ErrTransient reports a failed remote persistence lookup; the caller
	// may retry.
	ErrTransient = errors.New("transient failure")
)
