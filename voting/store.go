/*
store.go - Persistence interfaces for accounts, the vote ledger and ideas

PURPOSE:
  Defines the boundary between the voting engine and the database. The
  engine is store-agnostic: it only requires an atomic multi-key
  read-modify-write scope with conflict detection.

UNIT OF WORK:
  TxStore.WithTx(ctx, fn) runs fn against a Store whose reads and writes
  commit together or not at all. A write-write collision with an
  overlapping unit surfaces as ErrTxConflict, which instructs the engine
  to retry the whole function with fresh reads.

LEDGER CONTRACT:
  AppendVote is the ONLY write on the votes ledger. No updates, no
  deletes; the ledger doubles as the audit trail. VoteExists must be
  evaluated inside the same transaction as the AppendVote that follows
  it, or two concurrent votes could both pass the check.

IMPLEMENTATIONS:
  - store/sqlite: production SQLite (WAL)
  - voting/store: in-memory, for tests and dev

SEE ALSO:
  - engine.go: the only caller of the mutating operations
*/
package voting

import "context"

// =============================================================================
// STORE - Keyed state the voting transaction operates on
// =============================================================================

// Store provides access to token accounts, the vote ledger and idea
// counters. Mutating methods must only be called inside TxStore.WithTx.
type Store interface {
	// GetAccount returns the user's token account.
	// Returns ErrUserNotFound if no such user exists.
	GetAccount(ctx context.Context, userID UserID) (*TokenAccount, error)

	// UpdateAccount persists a debit or refill on an existing account.
	UpdateAccount(ctx context.Context, acct TokenAccount) error

	// VoteExists reports whether the ledger already holds a record for
	// (userID, ideaID, epoch).
	VoteExists(ctx context.Context, userID UserID, ideaID IdeaID, epoch WeekEpoch) (bool, error)

	// AppendVote adds a record to the ledger. Append-only.
	// Returns ErrDuplicateVote if the uniqueness tuple already exists.
	AppendVote(ctx context.Context, rec VoteRecord) error

	// GetIdea returns the idea including its counters.
	// Returns ErrIdeaNotFound if no such idea exists.
	GetIdea(ctx context.Context, ideaID IdeaID) (*Idea, error)

	// ApplyVoteToIdea increments the idea's counters for a vote cast in
	// the given week: TotalVotes always +1; WeeklyVotes +1 when the
	// stored week stamp matches epoch, otherwise restarted at 1 with the
	// stamp advanced to epoch.
	ApplyVoteToIdea(ctx context.Context, ideaID IdeaID, epoch WeekEpoch) error

	// CreditVoteReceived bumps the votes-received stat on the idea
	// author's profile.
	CreditVoteReceived(ctx context.Context, userID UserID) error
}

// =============================================================================
// TRANSACTIONAL STORE - Atomic scope with conflict detection
// =============================================================================

// TxStore wraps Store with an all-or-nothing transaction scope.
type TxStore interface {
	Store

	// WithTx executes fn within one atomic unit of work.
	// If fn returns an error, every write is rolled back.
	// If the unit collides with a concurrent one, WithTx (or an
	// operation inside fn) returns ErrTxConflict.
	WithTx(ctx context.Context, fn func(Store) error) error
}
