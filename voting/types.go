/*
Package voting provides the core idea-voting engine.

PURPOSE:
  This package contains the domain types and the transactional voting
  algorithm: a weekly token allowance per user, an append-only vote
  ledger enforcing one vote per user per idea per ISO week, and idea
  vote counters kept in lockstep with the ledger.

KEY CONCEPTS IN THIS FILE (types.go):
  - TokenAccount: per-user balance with a weekly refill
  - VoteRecord: immutable ledger entry, one per successful vote
  - Idea / IdeaCounters: the voted-on entity and its aggregates
  - VoteResult: tagged outcome of a cast-vote attempt

DESIGN PRINCIPLES:
  1. Immutability: vote records are never modified or deleted
  2. Atomicity: every balance/ledger/counter mutation happens inside
     one store transaction (see store.go, engine.go)
  3. Type Safety: strong typing for IDs prevents mixing users and ideas
  4. Rejections are values: running out of tokens or double-voting are
     normal outcomes, not errors

SEE ALSO:
  - week.go: ISO week epoch computation
  - engine.go: the cast-vote state machine
  - store.go: persistence interfaces
*/
package voting

import (
	"time"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UserID string
type IdeaID string
type VoteID string

// =============================================================================
// TOKEN ACCOUNT - Weekly-replenished vote allowance
// =============================================================================

// TokenAccount holds a user's spendable vote tokens.
//
// INVARIANTS:
//   - Tokens stays within [0, allowance]; a debit never drives it negative.
//   - LastRefillAt only moves forward, and only when a full refill
//     interval has elapsed.
type TokenAccount struct {
	UserID       UserID
	Tokens       int
	LastRefillAt time.Time

	// TotalVotesCast is a lifetime stat, incremented with every debit.
	TotalVotesCast int
}

// =============================================================================
// USER - Profile plus embedded token account
// =============================================================================

type User struct {
	ID          UserID
	Email       string
	DisplayName string

	Account TokenAccount

	// Stats
	IdeasSubmitted int
	VotesReceived  int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// IDEA - Voted-on entity with aggregate counters
// =============================================================================

type IdeaCategory string

const (
	CategoryTechnology  IdeaCategory = "technology"
	CategoryBusiness    IdeaCategory = "business"
	CategorySocial      IdeaCategory = "social"
	CategoryEnvironment IdeaCategory = "environment"
	CategoryEducation   IdeaCategory = "education"
	CategoryHealth      IdeaCategory = "health"
	CategoryOther       IdeaCategory = "other"
)

type IdeaStatus string

const (
	StatusActive    IdeaStatus = "active"
	StatusTrending  IdeaStatus = "trending"
	StatusValidated IdeaStatus = "validated"
	StatusArchived  IdeaStatus = "archived"
)

// IdeaCounters are derived aggregates, mutated only by the voting engine.
//
// TotalVotes is monotone non-decreasing and always equals the number of
// ledger records for the idea. WeeklyVotes is stamped with the ISO week
// it counts; a vote landing in a later week restarts it at 1.
type IdeaCounters struct {
	TotalVotes  int
	WeeklyVotes int
	WeekYear    int
	WeekNumber  int
}

type Idea struct {
	ID          IdeaID
	CreatorID   UserID
	Title       string
	Description string
	Category    IdeaCategory
	Tags        []string
	Status      IdeaStatus

	Counters IdeaCounters

	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// VOTE RECORD - Append-only ledger entry
// =============================================================================

// VoteRecord is created exactly once per successful vote and is immutable.
//
// INVARIANT: at most one record exists per (UserID, IdeaID, Year, Week).
type VoteRecord struct {
	ID        VoteID
	UserID    UserID
	IdeaID    IdeaID
	Year      int
	Week      int
	CreatedAt time.Time
}

// =============================================================================
// VOTE RESULT - Tagged outcome of a cast-vote attempt
// =============================================================================

type VoteStatus string

const (
	// VoteAccepted: the vote committed; a token was spent.
	VoteAccepted VoteStatus = "accepted"

	// VoteRejectedNoTokens: the account balance was empty. Expected
	// outcome, no state change.
	VoteRejectedNoTokens VoteStatus = "insufficient_tokens"

	// VoteRejectedAlreadyVoted: a ledger record already exists for this
	// (user, idea, week). Expected outcome, no state change.
	VoteRejectedAlreadyVoted VoteStatus = "already_voted_this_week"
)

// VoteResult is returned for every cast-vote attempt that reached a
// terminal business outcome. Fatal failures (unknown user, storage down)
// are returned as errors instead.
type VoteResult struct {
	Status VoteStatus

	// RemainingTokens is only meaningful when Status == VoteAccepted.
	RemainingTokens int
}

// Accepted reports whether the vote committed.
func (r VoteResult) Accepted() bool { return r.Status == VoteAccepted }
