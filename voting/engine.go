/*
engine.go - The cast-vote state machine

PURPOSE:
  Composes the token account, the vote ledger and the idea counters into
  one atomic unit of work:

    1. Compute the ISO week epoch from the request timestamp.
    2. Check the ledger for an existing vote this week (found -> abort,
       expected outcome).
    3. Debit one token (insufficient balance -> abort, expected outcome).
    4. Append the vote record.
    5. Increment the idea's counters (and credit the author's stat).
    6. Commit.

  All of 2-5 happen inside a single store transaction: either every
  effect lands or none does. After commit, a best-effort refill computes
  the balance reported back to the caller, and the vote is handed to the
  event publisher.

CONCURRENCY:
  No locks are taken here. The store's conflict detection is the sole
  serialization mechanism; ErrTxConflict aborts the unit and the engine
  retries it from step 2 with fresh reads, up to MaxAttempts with a
  linearly growing backoff. Conflicts are never surfaced to callers
  unless retries exhaust.

SEE ALSO:
  - store.go: the transactional interface this runs against
  - week.go: epoch computation
*/
package voting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ideaforge/vote-engine/events"
)

// errAbortVote forces a rollback for an expected business rejection.
// It never escapes the engine.
var errAbortVote = errors.New("vote aborted")

// =============================================================================
// ENGINE
// =============================================================================

// Engine executes voting transactions against a TxStore.
type Engine struct {
	store  TxStore
	policy TokenPolicy
	events events.Publisher
	log    *zap.Logger

	// MaxAttempts bounds conflict retries per operation.
	MaxAttempts int
	// RetryBackoff is the base delay between attempts; attempt n waits
	// n * RetryBackoff.
	RetryBackoff time.Duration
}

// NewEngine creates an engine with the default retry bounds.
func NewEngine(store TxStore, policy TokenPolicy) *Engine {
	return &Engine{
		store:        store,
		policy:       policy,
		events:       events.Nop{},
		log:          zap.NewNop(),
		MaxAttempts:  4,
		RetryBackoff: 25 * time.Millisecond,
	}
}

// WithEvents sets the committed-vote publisher.
func (e *Engine) WithEvents(p events.Publisher) *Engine {
	e.events = p
	return e
}

// WithLogger sets the engine logger.
func (e *Engine) WithLogger(log *zap.Logger) *Engine {
	e.log = log
	return e
}

// =============================================================================
// CAST VOTE
// =============================================================================

// CastVote spends one token to vote for an idea in the ISO week of now.
//
// Expected rejections (no tokens, already voted this week) come back as
// VoteResult values. Errors are fatal: ErrUserNotFound, ErrIdeaNotFound,
// or a wrapped store failure. On any non-accepted outcome no state has
// changed.
func (e *Engine) CastVote(ctx context.Context, userID UserID, ideaID IdeaID, now time.Time) (VoteResult, error) {
	epoch := WeekEpochOf(now)

	var (
		result VoteResult
		rec    VoteRecord
	)
	err := e.retry(ctx, func() error {
		var err error
		result, rec, err = e.castOnce(ctx, userID, ideaID, epoch, now)
		return err
	})
	if err != nil {
		return VoteResult{}, err
	}
	if !result.Accepted() {
		return result, nil
	}

	// Post-commit: refill is a best-effort secondary read to report the
	// current balance; the debited balance is the fallback.
	if remaining, err := e.Refill(ctx, userID, now); err == nil {
		result.RemainingTokens = remaining
	} else {
		e.log.Warn("post-vote refill failed",
			zap.String("user_id", string(userID)), zap.Error(err))
	}

	e.publish(ctx, rec)
	return result, nil
}

// castOnce runs one attempt of the voting transaction.
func (e *Engine) castOnce(ctx context.Context, userID UserID, ideaID IdeaID, epoch WeekEpoch, now time.Time) (VoteResult, VoteRecord, error) {
	var (
		rejection VoteStatus
		remaining int
		rec       VoteRecord
	)

	err := e.store.WithTx(ctx, func(s Store) error {
		acct, err := s.GetAccount(ctx, userID)
		if err != nil {
			return err
		}

		// Uniqueness check first, so a repeat vote is reported as a
		// repeat even on an empty balance. It shares the atomic scope
		// with the insert below, closing the check-then-act window.
		exists, err := s.VoteExists(ctx, userID, ideaID, epoch)
		if err != nil {
			return err
		}
		if exists {
			rejection = VoteRejectedAlreadyVoted
			return errAbortVote
		}

		// Debit. An empty balance is a normal outcome, not an error.
		if acct.Tokens < 1 {
			rejection = VoteRejectedNoTokens
			return errAbortVote
		}
		acct.Tokens--
		acct.TotalVotesCast++
		if err := s.UpdateAccount(ctx, *acct); err != nil {
			return err
		}
		remaining = acct.Tokens

		idea, err := s.GetIdea(ctx, ideaID)
		if err != nil {
			return err
		}

		rec = VoteRecord{
			ID:        VoteID(uuid.NewString()),
			UserID:    userID,
			IdeaID:    ideaID,
			Year:      epoch.Year,
			Week:      epoch.Week,
			CreatedAt: now,
		}
		if err := s.AppendVote(ctx, rec); err != nil {
			if errors.Is(err, ErrDuplicateVote) {
				rejection = VoteRejectedAlreadyVoted
				return errAbortVote
			}
			return err
		}

		if err := s.ApplyVoteToIdea(ctx, ideaID, epoch); err != nil {
			return err
		}
		if idea.CreatorID != userID {
			if err := s.CreditVoteReceived(ctx, idea.CreatorID); err != nil {
				return err
			}
		}
		return nil
	})

	switch {
	case err == nil:
		return VoteResult{Status: VoteAccepted, RemainingTokens: remaining}, rec, nil
	case errors.Is(err, errAbortVote):
		return VoteResult{Status: rejection}, VoteRecord{}, nil
	default:
		return VoteResult{}, VoteRecord{}, err
	}
}

// =============================================================================
// REFILL
// =============================================================================

// Refill restores the account to the full allowance when at least one
// refill interval has elapsed, and otherwise leaves it untouched.
// Returns the current balance either way. Idempotent within a week.
func (e *Engine) Refill(ctx context.Context, userID UserID, now time.Time) (int, error) {
	var balance int
	err := e.retry(ctx, func() error {
		return e.store.WithTx(ctx, func(s Store) error {
			acct, err := s.GetAccount(ctx, userID)
			if err != nil {
				return err
			}
			if !e.policy.RefillDue(*acct, now) {
				balance = acct.Tokens
				return nil
			}
			acct.Tokens = e.policy.WeeklyAllowance
			acct.LastRefillAt = now
			if err := s.UpdateAccount(ctx, *acct); err != nil {
				return err
			}
			balance = acct.Tokens
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// retry runs fn up to MaxAttempts times, backing off between conflicting
// attempts. Any error other than ErrTxConflict aborts immediately.
func (e *Engine) retry(ctx context.Context, fn func() error) error {
	var last error
	for attempt := 1; attempt <= e.MaxAttempts; attempt++ {
		last = fn()
		if last == nil || !errors.Is(last, ErrTxConflict) {
			return last
		}
		e.log.Debug("transaction conflict, retrying", zap.Int("attempt", attempt))

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry canceled: %w", ctx.Err())
		case <-time.After(time.Duration(attempt) * e.RetryBackoff):
		}
	}
	return &RetriesExhaustedError{Attempts: e.MaxAttempts, Last: last}
}

func (e *Engine) publish(ctx context.Context, rec VoteRecord) {
	ev := events.VoteEvent{
		VoteID:    string(rec.ID),
		UserID:    string(rec.UserID),
		IdeaID:    string(rec.IdeaID),
		Year:      rec.Year,
		Week:      rec.Week,
		CreatedAt: rec.CreatedAt,
	}
	if err := e.events.Publish(ctx, ev); err != nil {
		e.log.Warn("vote event publish failed",
			zap.String("idea_id", string(rec.IdeaID)), zap.Error(err))
	}
}
