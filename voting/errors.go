/*
errors.go - Centralized error types for the voting engine

PURPOSE:
  All error values in one place. Callers branch with errors.Is();
  the API layer maps these to HTTP status codes.

ERROR CATEGORIES:
  1. Fatal lookups - unknown user/idea (404-equivalent)
  2. Concurrency - transaction conflicts, recovered by retrying the
     whole unit of work (never user-visible unless retries exhaust)
  3. Store failures - surfaced as 500-equivalent

  Running out of tokens and double-voting are NOT errors; they are
  VoteResult values (see types.go).

SEE ALSO:
  - engine.go: retry handling for ErrTxConflict
  - store.go: which operations return which errors
*/
package voting

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrUserNotFound is returned when the acting user has no account.
	ErrUserNotFound = errors.New("user not found")

	// ErrIdeaNotFound is returned when the vote target does not exist.
	ErrIdeaNotFound = errors.New("idea not found")

	// ErrDuplicateVote is returned by the store when an insert collides
	// with the (user, idea, year, week) uniqueness constraint. The engine
	// converts it into a VoteRejectedAlreadyVoted outcome.
	ErrDuplicateVote = errors.New("duplicate vote for user, idea and week")

	// ErrTxConflict is the store's concurrency-control signal: the unit
	// of work raced with an overlapping one and must be retried from the
	// beginning with fresh reads.
	ErrTxConflict = errors.New("transaction conflict")

	// ErrStoreUnavailable is returned when the store cannot serve the
	// operation at all, including when conflict retries are exhausted.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// RetriesExhaustedError reports that a unit of work kept conflicting.
type RetriesExhaustedError struct {
	Attempts int
	Last     error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d conflicting attempts: %v", e.Attempts, e.Last)
}

func (e *RetriesExhaustedError) Unwrap() error {
	return ErrStoreUnavailable
}
