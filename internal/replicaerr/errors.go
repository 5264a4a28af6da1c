// Package replicaerr defines the sentinel error kinds shared across the
// replica's components. Call sites wrap these with fmt.Errorf("...: %w",
// ...) for context; callers compare with errors.Is.
package replicaerr

import "errors"

var (
	// ErrBadDelta is returned when a received delta fails hash
	// verification, or references a parent neither in the delta nor
	// locally known. The session aborts with no state change.
	ErrBadDelta = errors.New("bad delta")

	// ErrHashMismatch is the specific cause of ErrBadDelta / MissingParent
	// rejections where the computed hash does not match the advertised id.
	ErrHashMismatch = errors.New("hash mismatch")

	// ErrMissingParent signals a local insertion was attempted with a
	// dangling parent reference — a programming error, not a protocol
	// error.
	ErrMissingParent = errors.New("missing parent")

	// ErrUnknownPeer is returned when a peer uuid was not configured at
	// construction time.
	ErrUnknownPeer = errors.New("unknown peer")

	// ErrDeltaTooLarge is returned when a delta would exceed the sender's
	// or receiver's configured entry cap. The session aborts with no
	// state change, the same as ErrBadDelta.
	ErrDeltaTooLarge = errors.New("delta too large")
)
