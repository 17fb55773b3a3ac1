/*
Package sqlite provides the SQLite-backed implementation of the voting
storage interfaces.

PURPOSE:
  Implements voting.Store and voting.TxStore plus the user/idea CRUD the
  API layer needs. The same patterns apply to PostgreSQL - only minor
  SQL dialect differences.

KEY TABLES:
  users:  profile, token account columns, lifetime stats
  ideas:  idea body plus the aggregate vote counters
  votes:  immutable ledger of successful votes

LEDGER ENFORCEMENT:
  The votes table is append-only: no UPDATE or DELETE statements exist
  for it. idx_unique_vote_week backs the one-vote-per-user-per-idea-
  per-week invariant at the storage level; the engine also checks
  existence inside the transaction, so the index is the second line of
  defense.

CONCURRENCY:
  No application-level locks. SQLite runs in WAL mode with a busy
  timeout; a transaction that still times out surfaces as
  voting.ErrTxConflict and the engine retries the whole unit of work.
  Readers never block on the single writer.

USAGE:
  store, err := sqlite.New("./data/votes.db")   // ":memory:" for tests
  engine := voting.NewEngine(store, voting.DefaultTokenPolicy())

SEE ALSO:
  - voting/store.go: interface definitions
  - voting/store/memory.go: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ideaforge/vote-engine/voting"
)

// Store implements the voting storage interfaces using SQLite.
type Store struct {
	db *sql.DB
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=2000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every pooled connection to ":memory:" is a separate database, so
	// in-memory mode must stay on a single connection.
	if strings.Contains(dbPath, ":memory:") {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Users (profile + token account + lifetime stats)
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL,
		display_name TEXT,
		tokens INTEGER NOT NULL,
		last_refill_at TEXT NOT NULL,
		total_votes_cast INTEGER NOT NULL DEFAULT 0,
		ideas_submitted INTEGER NOT NULL DEFAULT 0,
		votes_received INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Ideas (body + aggregate counters, mutated only by the voting engine)
	CREATE TABLE IF NOT EXISTS ideas (
		id TEXT PRIMARY KEY,
		creator_id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT,
		category TEXT NOT NULL,
		tags_json TEXT,
		status TEXT NOT NULL DEFAULT 'active',
		total_votes INTEGER NOT NULL DEFAULT 0,
		weekly_votes INTEGER NOT NULL DEFAULT 0,
		week_year INTEGER NOT NULL DEFAULT 0,
		week_number INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_ideas_creator ON ideas(creator_id);
	CREATE INDEX IF NOT EXISTS idx_ideas_created_at ON ideas(created_at DESC);

	-- Votes (append-only ledger)
	CREATE TABLE IF NOT EXISTS votes (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		idea_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		week_number INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);

	-- CRITICAL: one vote per user per idea per ISO week
	CREATE UNIQUE INDEX IF NOT EXISTS idx_unique_vote_week
		ON votes(user_id, idea_id, year, week_number);

	CREATE INDEX IF NOT EXISTS idx_votes_idea ON votes(idea_id);
	CREATE INDEX IF NOT EXISTS idx_votes_user ON votes(user_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// TRANSACTIONAL STORE (voting.TxStore interface)
// =============================================================================

// WithTx executes fn within a database transaction. A busy/locked
// database maps to voting.ErrTxConflict so the engine can retry.
func (s *Store) WithTx(ctx context.Context, fn func(voting.Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapSQLError(err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return mapSQLError(err)
	}
	return nil
}

// txStore routes voting.Store calls through an open transaction.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) GetAccount(ctx context.Context, userID voting.UserID) (*voting.TokenAccount, error) {
	return getAccount(ctx, ts.tx, userID)
}

func (ts *txStore) UpdateAccount(ctx context.Context, acct voting.TokenAccount) error {
	return updateAccount(ctx, ts.tx, acct)
}

func (ts *txStore) VoteExists(ctx context.Context, userID voting.UserID, ideaID voting.IdeaID, epoch voting.WeekEpoch) (bool, error) {
	return voteExists(ctx, ts.tx, userID, ideaID, epoch)
}

func (ts *txStore) AppendVote(ctx context.Context, rec voting.VoteRecord) error {
	return appendVote(ctx, ts.tx, rec)
}

func (ts *txStore) GetIdea(ctx context.Context, ideaID voting.IdeaID) (*voting.Idea, error) {
	return getIdea(ctx, ts.tx, ideaID)
}

func (ts *txStore) ApplyVoteToIdea(ctx context.Context, ideaID voting.IdeaID, epoch voting.WeekEpoch) error {
	return applyVoteToIdea(ctx, ts.tx, ideaID, epoch)
}

func (ts *txStore) CreditVoteReceived(ctx context.Context, userID voting.UserID) error {
	return creditVoteReceived(ctx, ts.tx, userID)
}

// =============================================================================
// STORE (voting.Store interface, non-transactional)
// =============================================================================

func (s *Store) GetAccount(ctx context.Context, userID voting.UserID) (*voting.TokenAccount, error) {
	return getAccount(ctx, s.db, userID)
}

func (s *Store) UpdateAccount(ctx context.Context, acct voting.TokenAccount) error {
	return updateAccount(ctx, s.db, acct)
}

func (s *Store) VoteExists(ctx context.Context, userID voting.UserID, ideaID voting.IdeaID, epoch voting.WeekEpoch) (bool, error) {
	return voteExists(ctx, s.db, userID, ideaID, epoch)
}

func (s *Store) AppendVote(ctx context.Context, rec voting.VoteRecord) error {
	return appendVote(ctx, s.db, rec)
}

func (s *Store) GetIdea(ctx context.Context, ideaID voting.IdeaID) (*voting.Idea, error) {
	return getIdea(ctx, s.db, ideaID)
}

func (s *Store) ApplyVoteToIdea(ctx context.Context, ideaID voting.IdeaID, epoch voting.WeekEpoch) error {
	return applyVoteToIdea(ctx, s.db, ideaID, epoch)
}

func (s *Store) CreditVoteReceived(ctx context.Context, userID voting.UserID) error {
	return creditVoteReceived(ctx, s.db, userID)
}

// =============================================================================
// ACCOUNT QUERIES
// =============================================================================

func getAccount(ctx context.Context, db dbtx, userID voting.UserID) (*voting.TokenAccount, error) {
	var (
		acct         voting.TokenAccount
		lastRefillAt string
	)
	err := db.QueryRowContext(ctx,
		"SELECT id, tokens, last_refill_at, total_votes_cast FROM users WHERE id = ?",
		userID,
	).Scan(&acct.UserID, &acct.Tokens, &lastRefillAt, &acct.TotalVotesCast)

	if err == sql.ErrNoRows {
		return nil, voting.ErrUserNotFound
	}
	if err != nil {
		return nil, mapSQLError(err)
	}

	acct.LastRefillAt, _ = time.Parse(time.RFC3339, lastRefillAt)
	return &acct, nil
}

func updateAccount(ctx context.Context, db dbtx, acct voting.TokenAccount) error {
	res, err := db.ExecContext(ctx,
		`UPDATE users SET tokens = ?, last_refill_at = ?, total_votes_cast = ?, updated_at = ?
		 WHERE id = ?`,
		acct.Tokens,
		acct.LastRefillAt.UTC().Format(time.RFC3339),
		acct.TotalVotesCast,
		time.Now().UTC().Format(time.RFC3339),
		acct.UserID,
	)
	if err != nil {
		return mapSQLError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return voting.ErrUserNotFound
	}
	return nil
}

func creditVoteReceived(ctx context.Context, db dbtx, userID voting.UserID) error {
	res, err := db.ExecContext(ctx,
		"UPDATE users SET votes_received = votes_received + 1 WHERE id = ?",
		userID,
	)
	if err != nil {
		return mapSQLError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return voting.ErrUserNotFound
	}
	return nil
}

// =============================================================================
// LEDGER QUERIES
// =============================================================================

func voteExists(ctx context.Context, db dbtx, userID voting.UserID, ideaID voting.IdeaID, epoch voting.WeekEpoch) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM votes WHERE user_id = ? AND idea_id = ? AND year = ? AND week_number = ?",
		userID, ideaID, epoch.Year, epoch.Week,
	).Scan(&count)
	if err != nil {
		return false, mapSQLError(err)
	}
	return count > 0, nil
}

func appendVote(ctx context.Context, db dbtx, rec voting.VoteRecord) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO votes (id, user_id, idea_id, year, week_number, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, rec.IdeaID, rec.Year, rec.Week,
		rec.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return voting.ErrDuplicateVote
		}
		return mapSQLError(err)
	}
	return nil
}

// VotesByUser returns a user's ledger entries, most recent first.
func (s *Store) VotesByUser(ctx context.Context, userID voting.UserID) ([]voting.VoteRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, idea_id, year, week_number, created_at
		 FROM votes WHERE user_id = ? ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, mapSQLError(err)
	}
	defer rows.Close()

	var records []voting.VoteRecord
	for rows.Next() {
		var (
			rec       voting.VoteRecord
			createdAt string
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.IdeaID, &rec.Year, &rec.Week, &createdAt); err != nil {
			return nil, mapSQLError(err)
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// VoteCountForIdea returns the total number of ledger records for an
// idea. The ideas.total_votes counter must always agree with this.
func (s *Store) VoteCountForIdea(ctx context.Context, ideaID voting.IdeaID) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM votes WHERE idea_id = ?", ideaID,
	).Scan(&count)
	if err != nil {
		return 0, mapSQLError(err)
	}
	return count, nil
}

// =============================================================================
// IDEA QUERIES
// =============================================================================

const ideaColumns = `id, creator_id, title, description, category, tags_json, status,
	total_votes, weekly_votes, week_year, week_number, created_at, updated_at`

func getIdea(ctx context.Context, db dbtx, ideaID voting.IdeaID) (*voting.Idea, error) {
	row := db.QueryRowContext(ctx,
		"SELECT "+ideaColumns+" FROM ideas WHERE id = ?", ideaID)

	idea, err := scanIdea(row.Scan)
	if err == sql.ErrNoRows {
		return nil, voting.ErrIdeaNotFound
	}
	if err != nil {
		return nil, mapSQLError(err)
	}
	return idea, nil
}

func applyVoteToIdea(ctx context.Context, db dbtx, ideaID voting.IdeaID, epoch voting.WeekEpoch) error {
	res, err := db.ExecContext(ctx,
		`UPDATE ideas SET
			total_votes = total_votes + 1,
			weekly_votes = CASE WHEN week_year = ? AND week_number = ?
				THEN weekly_votes + 1 ELSE 1 END,
			week_year = ?,
			week_number = ?,
			updated_at = ?
		 WHERE id = ?`,
		epoch.Year, epoch.Week, epoch.Year, epoch.Week,
		time.Now().UTC().Format(time.RFC3339),
		ideaID,
	)
	if err != nil {
		return mapSQLError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return voting.ErrIdeaNotFound
	}
	return nil
}

// CreateIdea inserts an idea and bumps the creator's submission stat in
// one transaction.
func (s *Store) CreateIdea(ctx context.Context, idea voting.Idea) error {
	tagsJSON, _ := json.Marshal(idea.Tags)
	now := time.Now().UTC().Format(time.RFC3339)

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapSQLError(err)
	}
	defer sqlTx.Rollback()

	_, err = sqlTx.ExecContext(ctx,
		`INSERT INTO ideas
		 (id, creator_id, title, description, category, tags_json, status,
		  total_votes, weekly_votes, week_year, week_number, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 0, 0, 0, 0, ?, ?)`,
		idea.ID, idea.CreatorID, idea.Title, idea.Description,
		idea.Category, string(tagsJSON), idea.Status,
		idea.CreatedAt.UTC().Format(time.RFC3339), now,
	)
	if err != nil {
		return mapSQLError(err)
	}

	res, err := sqlTx.ExecContext(ctx,
		"UPDATE users SET ideas_submitted = ideas_submitted + 1, updated_at = ? WHERE id = ?",
		now, idea.CreatorID,
	)
	if err != nil {
		return mapSQLError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return voting.ErrUserNotFound
	}

	return mapSQLError(sqlTx.Commit())
}

// ListIdeas returns all ideas, most recent first.
func (s *Store) ListIdeas(ctx context.Context) ([]voting.Idea, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+ideaColumns+" FROM ideas ORDER BY created_at DESC")
	if err != nil {
		return nil, mapSQLError(err)
	}
	defer rows.Close()

	var ideas []voting.Idea
	for rows.Next() {
		idea, err := scanIdea(rows.Scan)
		if err != nil {
			return nil, mapSQLError(err)
		}
		ideas = append(ideas, *idea)
	}
	return ideas, rows.Err()
}

// ResetStaleWeeklyCounters zeroes weekly_votes for every idea whose week
// stamp is older than the given epoch. Returns the number of ideas reset.
func (s *Store) ResetStaleWeeklyCounters(ctx context.Context, epoch voting.WeekEpoch) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE ideas SET weekly_votes = 0, updated_at = ?
		 WHERE weekly_votes <> 0
		   AND (week_year < ? OR (week_year = ? AND week_number < ?))`,
		time.Now().UTC().Format(time.RFC3339),
		epoch.Year, epoch.Year, epoch.Week,
	)
	if err != nil {
		return 0, mapSQLError(err)
	}
	return res.RowsAffected()
}

func scanIdea(scan func(...any) error) (*voting.Idea, error) {
	var (
		idea                 voting.Idea
		description          sql.NullString
		tagsJSON             sql.NullString
		createdAt, updatedAt string
	)
	err := scan(
		&idea.ID, &idea.CreatorID, &idea.Title, &description, &idea.Category,
		&tagsJSON, &idea.Status,
		&idea.Counters.TotalVotes, &idea.Counters.WeeklyVotes,
		&idea.Counters.WeekYear, &idea.Counters.WeekNumber,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	idea.Description = description.String
	if tagsJSON.Valid && tagsJSON.String != "" {
		json.Unmarshal([]byte(tagsJSON.String), &idea.Tags)
	}
	idea.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	idea.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &idea, nil
}

// =============================================================================
// USER CRUD (API layer)
// =============================================================================

// SaveUser inserts a new user row with its token account.
func (s *Store) SaveUser(ctx context.Context, user voting.User) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users
		 (id, email, display_name, tokens, last_refill_at, total_votes_cast,
		  ideas_submitted, votes_received, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.DisplayName,
		user.Account.Tokens,
		user.Account.LastRefillAt.UTC().Format(time.RFC3339),
		user.Account.TotalVotesCast,
		user.IdeasSubmitted, user.VotesReceived,
		now, now,
	)
	return mapSQLError(err)
}

// GetUser returns the full user row. ErrUserNotFound if missing.
func (s *Store) GetUser(ctx context.Context, userID voting.UserID) (*voting.User, error) {
	var (
		user                             voting.User
		displayName                      sql.NullString
		lastRefillAt, createdAt, updated string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, display_name, tokens, last_refill_at, total_votes_cast,
		        ideas_submitted, votes_received, created_at, updated_at
		 FROM users WHERE id = ?`,
		userID,
	).Scan(&user.ID, &user.Email, &displayName, &user.Account.Tokens,
		&lastRefillAt, &user.Account.TotalVotesCast,
		&user.IdeasSubmitted, &user.VotesReceived, &createdAt, &updated)

	if err == sql.ErrNoRows {
		return nil, voting.ErrUserNotFound
	}
	if err != nil {
		return nil, mapSQLError(err)
	}

	user.DisplayName = displayName.String
	user.Account.UserID = user.ID
	user.Account.LastRefillAt, _ = time.Parse(time.RFC3339, lastRefillAt)
	user.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	user.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	return &user, nil
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

func mapSQLError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") {
		return fmt.Errorf("%w: %v", voting.ErrTxConflict, err)
	}
	return err
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
