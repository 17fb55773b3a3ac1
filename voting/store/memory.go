// Package store provides an in-memory voting.TxStore for tests and dev.
package store

import (
	"context"
	"sync"

	"github.com/ideaforge/vote-engine/voting"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements voting.TxStore with copy-on-write rollback: WithTx
// snapshots the state, runs the unit of work, and restores the snapshot
// if it fails. One transaction runs at a time, which is all the tests
// need; the production store gets its parallelism from SQLite.
type Memory struct {
	mu    sync.Mutex
	state *state

	// conflicts is the number of upcoming WithTx calls that fail with
	// ErrTxConflict before doing anything. Tests use it to exercise the
	// engine's retry path.
	conflicts int
}

type voteKey struct {
	UserID voting.UserID
	IdeaID voting.IdeaID
	Year   int
	Week   int
}

type state struct {
	users map[voting.UserID]voting.User
	ideas map[voting.IdeaID]voting.Idea
	votes map[voteKey]voting.VoteRecord
}

func NewMemory() *Memory {
	return &Memory{state: &state{
		users: make(map[voting.UserID]voting.User),
		ideas: make(map[voting.IdeaID]voting.Idea),
		votes: make(map[voteKey]voting.VoteRecord),
	}}
}

// InjectConflicts makes the next n transactions abort with ErrTxConflict.
func (m *Memory) InjectConflicts(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conflicts = n
}

// =============================================================================
// TRANSACTIONAL SCOPE
// =============================================================================

func (m *Memory) WithTx(_ context.Context, fn func(voting.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conflicts > 0 {
		m.conflicts--
		return voting.ErrTxConflict
	}

	snapshot := m.state.clone()
	if err := fn(m.state); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

func (s *state) clone() *state {
	c := &state{
		users: make(map[voting.UserID]voting.User, len(s.users)),
		ideas: make(map[voting.IdeaID]voting.Idea, len(s.ideas)),
		votes: make(map[voteKey]voting.VoteRecord, len(s.votes)),
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.ideas {
		c.ideas[k] = v
	}
	for k, v := range s.votes {
		c.votes[k] = v
	}
	return c
}

// =============================================================================
// voting.Store (non-transactional reads delegate to the same state)
// =============================================================================

func (m *Memory) GetAccount(ctx context.Context, userID voting.UserID) (*voting.TokenAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.GetAccount(ctx, userID)
}

func (m *Memory) UpdateAccount(ctx context.Context, acct voting.TokenAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.UpdateAccount(ctx, acct)
}

func (m *Memory) VoteExists(ctx context.Context, userID voting.UserID, ideaID voting.IdeaID, epoch voting.WeekEpoch) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.VoteExists(ctx, userID, ideaID, epoch)
}

func (m *Memory) AppendVote(ctx context.Context, rec voting.VoteRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.AppendVote(ctx, rec)
}

func (m *Memory) GetIdea(ctx context.Context, ideaID voting.IdeaID) (*voting.Idea, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.GetIdea(ctx, ideaID)
}

func (m *Memory) ApplyVoteToIdea(ctx context.Context, ideaID voting.IdeaID, epoch voting.WeekEpoch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.ApplyVoteToIdea(ctx, ideaID, epoch)
}

func (m *Memory) CreditVoteReceived(ctx context.Context, userID voting.UserID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.CreditVoteReceived(ctx, userID)
}

// =============================================================================
// SEEDING HELPERS (outside the engine's interface)
// =============================================================================

// SaveUser inserts or replaces a user, account included.
func (m *Memory) SaveUser(user voting.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.users[user.ID] = user
}

// GetUser returns a user by ID, or false.
func (m *Memory) GetUser(userID voting.UserID) (voting.User, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.state.users[userID]
	return u, ok
}

// SaveIdea inserts or replaces an idea.
func (m *Memory) SaveIdea(idea voting.Idea) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.ideas[idea.ID] = idea
}

// VoteCount returns the number of ledger records.
func (m *Memory) VoteCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.votes)
}

// =============================================================================
// STATE OPERATIONS
// =============================================================================

func (s *state) GetAccount(_ context.Context, userID voting.UserID) (*voting.TokenAccount, error) {
	user, ok := s.users[userID]
	if !ok {
		return nil, voting.ErrUserNotFound
	}
	acct := user.Account
	return &acct, nil
}

func (s *state) UpdateAccount(_ context.Context, acct voting.TokenAccount) error {
	user, ok := s.users[acct.UserID]
	if !ok {
		return voting.ErrUserNotFound
	}
	user.Account = acct
	s.users[acct.UserID] = user
	return nil
}

func (s *state) VoteExists(_ context.Context, userID voting.UserID, ideaID voting.IdeaID, epoch voting.WeekEpoch) (bool, error) {
	_, ok := s.votes[voteKey{userID, ideaID, epoch.Year, epoch.Week}]
	return ok, nil
}

func (s *state) AppendVote(_ context.Context, rec voting.VoteRecord) error {
	k := voteKey{rec.UserID, rec.IdeaID, rec.Year, rec.Week}
	if _, ok := s.votes[k]; ok {
		return voting.ErrDuplicateVote
	}
	s.votes[k] = rec
	return nil
}

func (s *state) GetIdea(_ context.Context, ideaID voting.IdeaID) (*voting.Idea, error) {
	idea, ok := s.ideas[ideaID]
	if !ok {
		return nil, voting.ErrIdeaNotFound
	}
	return &idea, nil
}

func (s *state) ApplyVoteToIdea(_ context.Context, ideaID voting.IdeaID, epoch voting.WeekEpoch) error {
	idea, ok := s.ideas[ideaID]
	if !ok {
		return voting.ErrIdeaNotFound
	}
	idea.Counters.TotalVotes++
	if idea.Counters.WeekYear == epoch.Year && idea.Counters.WeekNumber == epoch.Week {
		idea.Counters.WeeklyVotes++
	} else {
		idea.Counters.WeeklyVotes = 1
		idea.Counters.WeekYear = epoch.Year
		idea.Counters.WeekNumber = epoch.Week
	}
	s.ideas[ideaID] = idea
	return nil
}

func (s *state) CreditVoteReceived(_ context.Context, userID voting.UserID) error {
	user, ok := s.users[userID]
	if !ok {
		return voting.ErrUserNotFound
	}
	user.VotesReceived++
	s.users[userID] = user
	return nil
}
