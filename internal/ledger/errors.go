package ledger

import "errors"

// Domain error taxonomy. Handlers match these with errors.Is; they are the
// only errors that cross the command/query boundary.
var (
	// ErrValidation marks malformed input: non-positive quantity or price,
	// missing required fields, unknown asset type.
	ErrValidation = errors.New("validation error")

	// ErrInsufficientPosition is returned when a sell asks for more quantity
	// than the symbol's open lots hold.
	ErrInsufficientPosition = errors.New("insufficient position")

	// ErrInvariantViolation marks an edit or cancellation that would make the
	// recorded history internally inconsistent.
	ErrInvariantViolation = errors.New("domain invariant violation")

	// ErrNotFound is returned for unknown portfolio or transaction ids.
	ErrNotFound = errors.New("not found")

	// ErrTransactionCancelled is returned when editing or cancelling a
	// transaction that is no longer active.
	ErrTransactionCancelled = errors.New("transaction is cancelled")

	// ErrVersionConflict is the optimistic-concurrency failure from the event
	// store: another writer appended to the stream first.
	ErrVersionConflict = errors.New("stream version conflict")
)
