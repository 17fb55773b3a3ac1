package voting_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ideaforge/vote-engine/events"
	"github.com/ideaforge/vote-engine/voting"
	"github.com/ideaforge/vote-engine/voting/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestEngine() (*voting.Engine, *store.Memory) {
	mem := store.NewMemory()
	engine := voting.NewEngine(mem, voting.DefaultTokenPolicy())
	engine.RetryBackoff = time.Millisecond
	return engine, mem
}

func seedUser(mem *store.Memory, id voting.UserID, tokens int, refilledAt time.Time) {
	mem.SaveUser(voting.User{
		ID: id,
		Account: voting.TokenAccount{
			UserID:       id,
			Tokens:       tokens,
			LastRefillAt: refilledAt,
		},
	})
}

func seedIdea(mem *store.Memory, id voting.IdeaID, creator voting.UserID) {
	mem.SaveIdea(voting.Idea{
		ID:        id,
		CreatorID: creator,
		Title:     "test idea " + string(id),
		Category:  voting.CategoryOther,
		Status:    voting.StatusActive,
	})
}

// capturePublisher records published vote events.
type capturePublisher struct {
	mu     sync.Mutex
	events []events.VoteEvent
}

func (c *capturePublisher) Publish(_ context.Context, ev events.VoteEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *capturePublisher) Close() error { return nil }

func (c *capturePublisher) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

var monday = time.Date(2024, time.March, 4, 10, 0, 0, 0, time.UTC)

// =============================================================================
// CAST VOTE - HAPPY PATH
// =============================================================================

func TestCastVote_Accepted_DebitsAndRecords(t *testing.T) {
	// GIVEN: A fresh user with the full allowance and another user's idea
	// WHEN: The user votes
	// THEN: One token is spent, the vote is recorded, counters move

	engine, mem := newTestEngine()
	ctx := context.Background()
	seedUser(mem, "alice", 10, monday)
	seedUser(mem, "bob", 10, monday)
	seedIdea(mem, "idea-1", "bob")

	result, err := engine.CastVote(ctx, "alice", "idea-1", monday)
	require.NoError(t, err)

	assert.Equal(t, voting.VoteAccepted, result.Status)
	assert.Equal(t, 9, result.RemainingTokens)
	assert.Equal(t, 1, mem.VoteCount())

	alice, _ := mem.GetUser("alice")
	assert.Equal(t, 9, alice.Account.Tokens)
	assert.Equal(t, 1, alice.Account.TotalVotesCast)

	idea, err := mem.GetIdea(ctx, "idea-1")
	require.NoError(t, err)
	assert.Equal(t, 1, idea.Counters.TotalVotes)
	assert.Equal(t, 1, idea.Counters.WeeklyVotes)

	bob, _ := mem.GetUser("bob")
	assert.Equal(t, 1, bob.VotesReceived, "idea author gets credited")
}

func TestCastVote_SelfVote_NoAuthorCredit(t *testing.T) {
	// GIVEN: A user voting for their own idea
	// WHEN: The vote is accepted
	// THEN: The token is spent but votesReceived stays at zero

	engine, mem := newTestEngine()
	seedUser(mem, "alice", 10, monday)
	seedIdea(mem, "idea-1", "alice")

	result, err := engine.CastVote(context.Background(), "alice", "idea-1", monday)
	require.NoError(t, err)
	assert.Equal(t, voting.VoteAccepted, result.Status)

	alice, _ := mem.GetUser("alice")
	assert.Equal(t, 9, alice.Account.Tokens)
	assert.Equal(t, 0, alice.VotesReceived)
}

func TestCastVote_PublishesEvent(t *testing.T) {
	engine, mem := newTestEngine()
	pub := &capturePublisher{}
	engine.WithEvents(pub)

	seedUser(mem, "alice", 10, monday)
	seedIdea(mem, "idea-1", "alice")

	_, err := engine.CastVote(context.Background(), "alice", "idea-1", monday)
	require.NoError(t, err)
	require.Equal(t, 1, pub.count())

	ev := pub.events[0]
	assert.Equal(t, "alice", ev.UserID)
	assert.Equal(t, "idea-1", ev.IdeaID)
	assert.Equal(t, 2024, ev.Year)
	assert.Equal(t, 10, ev.Week)
	assert.NotEmpty(t, ev.VoteID)
}

// =============================================================================
// CAST VOTE - REJECTIONS
// =============================================================================

func TestCastVote_NoTokens_Rejected(t *testing.T) {
	// GIVEN: A user with zero tokens
	// WHEN: They try to vote
	// THEN: Rejection, no record, no counter movement, no event

	engine, mem := newTestEngine()
	pub := &capturePublisher{}
	engine.WithEvents(pub)

	seedUser(mem, "alice", 0, monday)
	seedUser(mem, "bob", 10, monday)
	seedIdea(mem, "idea-1", "bob")

	result, err := engine.CastVote(context.Background(), "alice", "idea-1", monday)
	require.NoError(t, err, "an empty balance is a rejection, not an error")

	assert.Equal(t, voting.VoteRejectedNoTokens, result.Status)
	assert.Equal(t, 0, mem.VoteCount())
	assert.Equal(t, 0, pub.count())

	idea, _ := mem.GetIdea(context.Background(), "idea-1")
	assert.Equal(t, 0, idea.Counters.TotalVotes)
}

func TestCastVote_DuplicateSameWeek_Rejected(t *testing.T) {
	// GIVEN: The user already voted for this idea this week
	// WHEN: They vote for it again within the same week
	// THEN: Rejection, and the token debit is rolled back

	engine, mem := newTestEngine()
	seedUser(mem, "alice", 10, monday)
	seedUser(mem, "bob", 10, monday)
	seedIdea(mem, "idea-1", "bob")

	first, err := engine.CastVote(context.Background(), "alice", "idea-1", monday)
	require.NoError(t, err)
	require.Equal(t, voting.VoteAccepted, first.Status)

	sunday := monday.AddDate(0, 0, 6)
	second, err := engine.CastVote(context.Background(), "alice", "idea-1", sunday)
	require.NoError(t, err)

	assert.Equal(t, voting.VoteRejectedAlreadyVoted, second.Status)
	assert.Equal(t, 1, mem.VoteCount())

	alice, _ := mem.GetUser("alice")
	assert.Equal(t, 9, alice.Account.Tokens, "rejected vote must not cost a token")
	assert.Equal(t, 1, alice.Account.TotalVotesCast)

	idea, _ := mem.GetIdea(context.Background(), "idea-1")
	assert.Equal(t, 1, idea.Counters.TotalVotes)
}

func TestCastVote_SameIdeaNextWeek_Accepted(t *testing.T) {
	// GIVEN: A vote for an idea last week
	// WHEN: The same user votes for the same idea the following week
	// THEN: Accepted, and the weekly counter restarts at 1

	engine, mem := newTestEngine()
	seedUser(mem, "alice", 10, monday)
	seedUser(mem, "bob", 10, monday)
	seedIdea(mem, "idea-1", "bob")

	_, err := engine.CastVote(context.Background(), "alice", "idea-1", monday)
	require.NoError(t, err)

	nextMonday := monday.AddDate(0, 0, 7)
	result, err := engine.CastVote(context.Background(), "alice", "idea-1", nextMonday)
	require.NoError(t, err)

	assert.Equal(t, voting.VoteAccepted, result.Status)
	assert.Equal(t, 2, mem.VoteCount())

	idea, _ := mem.GetIdea(context.Background(), "idea-1")
	assert.Equal(t, 2, idea.Counters.TotalVotes)
	assert.Equal(t, 1, idea.Counters.WeeklyVotes, "weekly counter restarts on a new week")
	assert.Equal(t, voting.WeekEpochOf(nextMonday).Week, idea.Counters.WeekNumber)
}

func TestCastVote_SpendsDownToRejection(t *testing.T) {
	// GIVEN: A full allowance and more ideas than tokens
	// WHEN: The user votes until the balance runs out
	// THEN: Exactly WeeklyAllowance votes land; the next one is rejected

	engine, mem := newTestEngine()
	seedUser(mem, "alice", voting.WeeklyAllowance, monday)
	seedUser(mem, "bob", 10, monday)

	ideas := make([]voting.IdeaID, voting.WeeklyAllowance+1)
	for i := range ideas {
		ideas[i] = voting.IdeaID(string(rune('a'+i)) + "-idea")
		seedIdea(mem, ideas[i], "bob")
	}

	for i := 0; i < voting.WeeklyAllowance; i++ {
		result, err := engine.CastVote(context.Background(), "alice", ideas[i], monday)
		require.NoError(t, err)
		require.Equal(t, voting.VoteAccepted, result.Status)
		assert.Equal(t, voting.WeeklyAllowance-i-1, result.RemainingTokens)
	}

	result, err := engine.CastVote(context.Background(), "alice", ideas[voting.WeeklyAllowance], monday)
	require.NoError(t, err)
	assert.Equal(t, voting.VoteRejectedNoTokens, result.Status)
	assert.Equal(t, voting.WeeklyAllowance, mem.VoteCount())
}

func TestCastVote_OneTokenTwoIdeas(t *testing.T) {
	// GIVEN: A user holding a single token and two candidate ideas
	// WHEN: They vote for A, retry A, then try B in the same week
	// THEN: Accepted with zero remaining, then the duplicate rejection
	//       wins over the empty balance, then no-tokens for B

	engine, mem := newTestEngine()
	seedUser(mem, "u", 1, monday)
	seedUser(mem, "author", 10, monday)
	seedIdea(mem, "idea-a", "author")
	seedIdea(mem, "idea-b", "author")

	first, err := engine.CastVote(context.Background(), "u", "idea-a", monday)
	require.NoError(t, err)
	assert.Equal(t, voting.VoteAccepted, first.Status)
	assert.Equal(t, 0, first.RemainingTokens)

	retry, err := engine.CastVote(context.Background(), "u", "idea-a", monday)
	require.NoError(t, err)
	assert.Equal(t, voting.VoteRejectedAlreadyVoted, retry.Status,
		"the repeat is reported as a repeat even on an empty balance")

	second, err := engine.CastVote(context.Background(), "u", "idea-b", monday)
	require.NoError(t, err)
	assert.Equal(t, voting.VoteRejectedNoTokens, second.Status)

	u, _ := mem.GetUser("u")
	assert.Equal(t, 0, u.Account.Tokens)
	assert.Equal(t, 1, mem.VoteCount())
}

// =============================================================================
// CAST VOTE - ERRORS AND ATOMICITY
// =============================================================================

func TestCastVote_UnknownUser_Error(t *testing.T) {
	engine, mem := newTestEngine()
	seedUser(mem, "bob", 10, monday)
	seedIdea(mem, "idea-1", "bob")

	_, err := engine.CastVote(context.Background(), "nobody", "idea-1", monday)
	assert.ErrorIs(t, err, voting.ErrUserNotFound)
}

func TestCastVote_UnknownIdea_Error_NoPartialEffects(t *testing.T) {
	// GIVEN: A valid user, no such idea
	// WHEN: The vote fails mid-transaction after the debit
	// THEN: The error surfaces and the debit is rolled back

	engine, mem := newTestEngine()
	seedUser(mem, "alice", 10, monday)

	_, err := engine.CastVote(context.Background(), "alice", "missing", monday)
	assert.ErrorIs(t, err, voting.ErrIdeaNotFound)

	alice, _ := mem.GetUser("alice")
	assert.Equal(t, 10, alice.Account.Tokens, "failed vote must roll back the debit")
	assert.Equal(t, 0, alice.Account.TotalVotesCast)
	assert.Equal(t, 0, mem.VoteCount())
}

// =============================================================================
// CAST VOTE - CONFLICT RETRIES
// =============================================================================

func TestCastVote_RetriesThroughConflicts(t *testing.T) {
	// GIVEN: The store rejects the first two transactions with a conflict
	// WHEN: A vote is cast
	// THEN: The retry loop absorbs the conflicts and the vote lands once

	engine, mem := newTestEngine()
	seedUser(mem, "alice", 10, monday)
	seedUser(mem, "bob", 10, monday)
	seedIdea(mem, "idea-1", "bob")

	mem.InjectConflicts(2)

	result, err := engine.CastVote(context.Background(), "alice", "idea-1", monday)
	require.NoError(t, err)
	assert.Equal(t, voting.VoteAccepted, result.Status)
	assert.Equal(t, 1, mem.VoteCount())
}

func TestCastVote_RetriesExhausted(t *testing.T) {
	// GIVEN: Every attempt conflicts
	// WHEN: The retry limit is reached
	// THEN: A RetriesExhaustedError surfaces and nothing was written

	engine, mem := newTestEngine()
	seedUser(mem, "alice", 10, monday)
	seedUser(mem, "bob", 10, monday)
	seedIdea(mem, "idea-1", "bob")

	mem.InjectConflicts(engine.MaxAttempts)

	_, err := engine.CastVote(context.Background(), "alice", "idea-1", monday)
	require.Error(t, err)

	var exhausted *voting.RetriesExhaustedError
	assert.ErrorAs(t, err, &exhausted)
	assert.ErrorIs(t, err, voting.ErrStoreUnavailable)
	assert.Equal(t, 0, mem.VoteCount())

	alice, _ := mem.GetUser("alice")
	assert.Equal(t, 10, alice.Account.Tokens)
}

func TestCastVote_ConcurrentSameIdea_ExactlyOneLands(t *testing.T) {
	// GIVEN: Many goroutines voting the same user/idea/week at once
	// WHEN: All requests race through the engine
	// THEN: Exactly one is accepted and exactly one token is spent

	engine, mem := newTestEngine()
	seedUser(mem, "alice", 10, monday)
	seedUser(mem, "bob", 10, monday)
	seedIdea(mem, "idea-1", "bob")

	const n = 16
	results := make([]voting.VoteResult, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = engine.CastVote(context.Background(), "alice", "idea-1", monday)
		}(i)
	}
	wg.Wait()

	accepted := 0
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		if results[i].Accepted() {
			accepted++
		} else {
			assert.Equal(t, voting.VoteRejectedAlreadyVoted, results[i].Status)
		}
	}
	assert.Equal(t, 1, accepted)
	assert.Equal(t, 1, mem.VoteCount())

	alice, _ := mem.GetUser("alice")
	assert.Equal(t, 9, alice.Account.Tokens)
}

// =============================================================================
// REFILL
// =============================================================================

func TestRefill_NotDue_LeavesBalance(t *testing.T) {
	// GIVEN: A refill three days ago and a partially spent balance
	// WHEN: Refill runs
	// THEN: The balance is reported unchanged

	engine, mem := newTestEngine()
	seedUser(mem, "alice", 3, monday)

	balance, err := engine.Refill(context.Background(), "alice", monday.AddDate(0, 0, 3))
	require.NoError(t, err)
	assert.Equal(t, 3, balance)

	alice, _ := mem.GetUser("alice")
	assert.Equal(t, monday, alice.Account.LastRefillAt)
}

func TestRefill_Due_RestoresAllowance(t *testing.T) {
	// GIVEN: The last refill was a full interval ago
	// WHEN: Refill runs
	// THEN: The balance returns to the full allowance, whatever it was

	engine, mem := newTestEngine()
	ctx := context.Background()
	later := monday.AddDate(0, 0, 7)

	for _, tokens := range []int{0, 3, 10} {
		seedUser(mem, "alice", tokens, monday)

		balance, err := engine.Refill(ctx, "alice", later)
		require.NoError(t, err)
		assert.Equal(t, voting.WeeklyAllowance, balance)

		alice, _ := mem.GetUser("alice")
		assert.Equal(t, later, alice.Account.LastRefillAt)
	}
}

func TestRefill_Idempotent(t *testing.T) {
	// GIVEN: A refill that already ran at time T
	// WHEN: Refill runs again shortly after T
	// THEN: The second run is a no-op

	engine, mem := newTestEngine()
	ctx := context.Background()
	later := monday.AddDate(0, 0, 8)

	seedUser(mem, "alice", 2, monday)

	_, err := engine.Refill(ctx, "alice", later)
	require.NoError(t, err)

	// Spend nothing, refill again one hour later.
	balance, err := engine.Refill(ctx, "alice", later.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, voting.WeeklyAllowance, balance)

	alice, _ := mem.GetUser("alice")
	assert.Equal(t, later, alice.Account.LastRefillAt, "second refill must not move the clock")
}

func TestRefill_UnknownUser_Error(t *testing.T) {
	engine, _ := newTestEngine()

	_, err := engine.Refill(context.Background(), "nobody", monday)
	assert.ErrorIs(t, err, voting.ErrUserNotFound)
}
