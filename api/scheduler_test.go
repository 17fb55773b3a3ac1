package api_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ideaforge/vote-engine/api"
	"github.com/ideaforge/vote-engine/store/sqlite"
	"github.com/ideaforge/vote-engine/voting"
)

func TestWeeklyResetScheduler_RunNow_ZeroesStaleCounters(t *testing.T) {
	// GIVEN: An idea whose weekly counter was stamped a year ago
	// WHEN: The scheduler sweep runs
	// THEN: The stale weekly count is zeroed, the total survives

	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	require.NoError(t, store.SaveUser(ctx, voting.User{
		ID:    "alice",
		Email: "alice@example.com",
		Account: voting.TokenAccount{
			UserID: "alice", Tokens: 10, LastRefillAt: time.Now(),
		},
	}))
	require.NoError(t, store.CreateIdea(ctx, voting.Idea{
		ID: "i1", CreatorID: "alice", Title: "old favorite",
		Category: voting.CategoryOther, Status: voting.StatusActive,
		CreatedAt: time.Now(),
	}))

	lastYear := voting.WeekEpochOf(time.Now().AddDate(-1, 0, 0))
	require.NoError(t, store.ApplyVoteToIdea(ctx, "i1", lastYear))

	scheduler := api.NewWeeklyResetScheduler(store, zap.NewNop())
	scheduler.RunNow()

	idea, err := store.GetIdea(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, 0, idea.Counters.WeeklyVotes)
	assert.Equal(t, 1, idea.Counters.TotalVotes)
}

func TestWeeklyResetScheduler_Disabled_StartIsNoop(t *testing.T) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	scheduler := api.NewWeeklyResetScheduler(store, zap.NewNop())
	scheduler.Enabled = false
	scheduler.Start()
	scheduler.Stop()
}
