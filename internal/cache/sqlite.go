// ABOUTME: SQLite cache of issue-tracker records using modernc.org/sqlite.
// ABOUTME: Backs the cache tools and cache:// resources with automatic schema creation.

package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// DefaultLimit caps list queries that pass no limit.
const DefaultLimit = 50

// Store is the SQLite-backed cache.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// Open creates or opens the cache database at path. Parent directories are
// created if needed and the schema is created if it doesn't exist.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "cache")

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}
	if path == ":memory:" {
		// Each connection would get its own empty database
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &Store{
		db:     db,
		logger: logger,
		now:    time.Now,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("cache store initialized", "path", path)
	return s, nil
}

func (s *Store) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS cached_issues (
			id INTEGER PRIMARY KEY,
			project_id INTEGER NOT NULL,
			project_name TEXT NOT NULL,
			subject TEXT NOT NULL,
			description TEXT,
			status_id INTEGER NOT NULL,
			status_name TEXT NOT NULL,
			priority_id INTEGER NOT NULL,
			priority_name TEXT NOT NULL,
			assigned_to_id INTEGER,
			assigned_to_name TEXT,
			created_on TEXT NOT NULL,
			updated_on TEXT NOT NULL,
			cached_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_issues_project_id ON cached_issues(project_id);
		CREATE INDEX IF NOT EXISTS idx_issues_assigned_to_id ON cached_issues(assigned_to_id);
		CREATE INDEX IF NOT EXISTS idx_issues_status_id ON cached_issues(status_id);

		CREATE TABLE IF NOT EXISTS cached_projects (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			identifier TEXT NOT NULL UNIQUE,
			description TEXT,
			is_public INTEGER NOT NULL,
			parent_id INTEGER,
			created_on TEXT NOT NULL,
			updated_on TEXT NOT NULL,
			cached_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS cached_users (
			id INTEGER PRIMARY KEY,
			login TEXT NOT NULL UNIQUE,
			firstname TEXT NOT NULL,
			lastname TEXT NOT NULL,
			mail TEXT,
			created_on TEXT NOT NULL,
			last_login_on TEXT,
			cached_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS cached_time_entries (
			id INTEGER PRIMARY KEY,
			project_id INTEGER NOT NULL,
			project_name TEXT NOT NULL,
			issue_id INTEGER,
			user_id INTEGER NOT NULL,
			user_name TEXT NOT NULL,
			activity_id INTEGER NOT NULL,
			activity_name TEXT NOT NULL,
			hours REAL NOT NULL,
			comments TEXT,
			spent_on TEXT NOT NULL,
			created_on TEXT NOT NULL,
			updated_on TEXT NOT NULL,
			cached_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_time_entries_project_id ON cached_time_entries(project_id);
		CREATE INDEX IF NOT EXISTS idx_time_entries_issue_id ON cached_time_entries(issue_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// cachedTables lists every table the clear and stats operations cover.
var cachedTables = []string{"cached_issues", "cached_projects", "cached_users", "cached_time_entries"}

// Stats counts cached records per kind.
type Stats struct {
	Issues      int64 `json:"issues"`
	Projects    int64 `json:"projects"`
	Users       int64 `json:"users"`
	TimeEntries int64 `json:"time_entries"`
	Total       int64 `json:"total"`
}

// Stats returns record counts for every cached kind.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	counts := make([]int64, len(cachedTables))
	for i, table := range cachedTables {
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&counts[i]); err != nil {
			return Stats{}, fmt.Errorf("counting %s: %w", table, err)
		}
	}

	st := Stats{
		Issues:      counts[0],
		Projects:    counts[1],
		Users:       counts[2],
		TimeEntries: counts[3],
	}
	st.Total = st.Issues + st.Projects + st.Users + st.TimeEntries
	return st, nil
}

// ClearAll deletes every cached record.
func (s *Store) ClearAll(ctx context.Context) error {
	_, err := s.clear(ctx, "")
	return err
}

// maxClearDays bounds the age accepted by ClearOlderThan, roughly 1900 years.
const maxClearDays = 700_000

// ClearOlderThan deletes records cached more than days ago and returns how
// many were removed.
func (s *Store) ClearOlderThan(ctx context.Context, days int) (int64, error) {
	if days < 0 {
		return 0, fmt.Errorf("days must be non-negative, got %d", days)
	}
	// Any larger age predates every record; the cap keeps the cutoff a
	// four-digit year so it still compares correctly as text.
	days = min(days, maxClearDays)
	cutoff := s.now().UTC().AddDate(0, 0, -days)
	return s.clear(ctx, formatTime(cutoff))
}

func (s *Store) clear(ctx context.Context, cutoff string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var removed int64
	for _, table := range cachedTables {
		var res sql.Result
		if cutoff == "" {
			res, err = tx.ExecContext(ctx, "DELETE FROM "+table)
		} else {
			res, err = tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE cached_at < ?", cutoff)
		}
		if err != nil {
			return 0, fmt.Errorf("clearing %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		removed += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing clear: %w", err)
	}

	s.logger.Info("cache cleared", "removed", removed, "cutoff", cutoff)
	return removed, nil
}

// Timestamps are stored as RFC 3339 text in UTC so they sort lexically.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(v string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, v)
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func intPtr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}

// likePattern wraps a search term for a substring LIKE match.
func likePattern(term string) string {
	return "%" + strings.TrimSpace(term) + "%"
}
