/*
scheduler.go - Weekly counter reset scheduler

PURPOSE:
  Periodically zeroes stale weeklyVotes counters on ideas whose stamped
  week is older than the current calendar week. The vote path already
  rolls a counter forward when the first vote of a new week lands; the
  scheduler covers ideas that receive no votes at all in the new week,
  so listings never show a stale weekly count.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - The sweep is a single UPDATE, idempotent and safe to re-run
  - Runs once immediately on start, then on every tick

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewWeeklyResetScheduler(store, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - store/sqlite/sqlite.go: ResetStaleWeeklyCounters
  - voting/week.go: week numbering
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ideaforge/vote-engine/store/sqlite"
	"github.com/ideaforge/vote-engine/voting"
)

// WeeklyResetScheduler zeroes stale weekly vote counters in the background.
type WeeklyResetScheduler struct {
	Store         *sqlite.Store
	Log           *zap.Logger
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewWeeklyResetScheduler creates a new scheduler.
func NewWeeklyResetScheduler(store *sqlite.Store, log *zap.Logger) *WeeklyResetScheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &WeeklyResetScheduler{
		Store:         store,
		Log:           log,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (ws *WeeklyResetScheduler) Start() {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if !ws.Enabled {
		ws.Log.Info("scheduler disabled, not starting")
		return
	}

	ws.ticker = time.NewTicker(ws.CheckInterval)
	ws.wg.Add(1)

	go ws.run()

	ws.Log.Info("scheduler started", zap.Duration("check_interval", ws.CheckInterval))
}

// Stop stops the scheduler.
func (ws *WeeklyResetScheduler) Stop() {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.ticker != nil {
		ws.ticker.Stop()
		close(ws.stop)
		ws.wg.Wait()
		ws.Log.Info("scheduler stopped")
	}
}

func (ws *WeeklyResetScheduler) run() {
	defer ws.wg.Done()

	// Run immediately on start
	ws.checkAndReset()

	for {
		select {
		case <-ws.ticker.C:
			ws.checkAndReset()
		case <-ws.stop:
			return
		}
	}
}

func (ws *WeeklyResetScheduler) checkAndReset() {
	ctx := context.Background()
	epoch := voting.WeekEpochOf(time.Now())

	reset, err := ws.Store.ResetStaleWeeklyCounters(ctx, epoch)
	if err != nil {
		ws.Log.Error("weekly counter sweep failed", zap.Error(err))
		return
	}
	if reset > 0 {
		ws.Log.Info("reset stale weekly counters",
			zap.Int64("ideas", reset),
			zap.String("week", epoch.String()))
	}
}

// RunNow triggers an immediate sweep (for testing/admin).
func (ws *WeeklyResetScheduler) RunNow() {
	ws.checkAndReset()
}
