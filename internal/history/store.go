package history

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Entry is one finished task.
type Entry struct {
	LocalID        string    `json:"local_id"`
	Name           string    `json:"name"`
	Model          string    `json:"model"`
	Prompt         string    `json:"prompt"`
	ProviderTaskID string    `json:"provider_task_id,omitempty"`
	Status         string    `json:"status"`
	VideoURL       string    `json:"video_url,omitempty"`
	FailReason     string    `json:"fail_reason,omitempty"`
	Cost           *float64  `json:"cost,omitempty"`
	SavedID        string    `json:"saved_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	FinishedAt     time.Time `json:"finished_at"`
}

// Store persists finished tasks in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or opens the history database at path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("history path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Record inserts or replaces the entry keyed by LocalID.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if strings.TrimSpace(e.LocalID) == "" {
		return fmt.Errorf("history entry missing local id")
	}
	if e.FinishedAt.IsZero() {
		e.FinishedAt = time.Now()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = e.FinishedAt
	}
	var cost any
	if e.Cost != nil {
		cost = *e.Cost
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO task_history (
  local_id, name, model, prompt, provider_task_id, status,
  video_url, fail_reason, cost, saved_id, created_at, finished_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(local_id) DO UPDATE SET
  status = excluded.status,
  video_url = excluded.video_url,
  fail_reason = excluded.fail_reason,
  cost = excluded.cost,
  saved_id = excluded.saved_id,
  finished_at = excluded.finished_at`,
		e.LocalID, e.Name, e.Model, e.Prompt, nullableString(e.ProviderTaskID), e.Status,
		nullableString(e.VideoURL), nullableString(e.FailReason), cost, nullableString(e.SavedID),
		e.CreatedAt.UTC().Format(time.RFC3339Nano), e.FinishedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record history: %w", err)
	}
	return nil
}

// List returns up to limit entries, most recently finished first. A
// non-positive limit returns everything.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	query := `
SELECT local_id, name, model, prompt, provider_task_id, status,
       video_url, fail_reason, cost, saved_id, created_at, finished_at
FROM task_history
ORDER BY finished_at DESC, local_id`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                                         Entry
			providerID, videoURL, failReason, savedID sql.NullString
			cost                                      sql.NullFloat64
			createdAt, finishedAt                     string
		)
		if err := rows.Scan(&e.LocalID, &e.Name, &e.Model, &e.Prompt, &providerID, &e.Status,
			&videoURL, &failReason, &cost, &savedID, &createdAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		e.ProviderTaskID = providerID.String
		e.VideoURL = videoURL.String
		e.FailReason = failReason.String
		e.SavedID = savedID.String
		if cost.Valid {
			v := cost.Float64
			e.Cost = &v
		}
		e.CreatedAt = parseTime(createdAt)
		e.FinishedAt = parseTime(finishedAt)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return entries, nil
}

// Clear deletes every entry and returns how many were removed.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM task_history")
	if err != nil {
		return 0, fmt.Errorf("clear history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func (s *Store) applyMigrations(ctx context.Context) error {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY)"); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	for _, name := range names {
		version := strings.TrimSuffix(name, ".sql")
		var count int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM schema_migrations WHERE version = ?", version).Scan(&count); err != nil {
			return fmt.Errorf("scan migration version: %w", err)
		}
		if count > 0 {
			continue
		}
		data, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", version, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("record migration %s: %w", version, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migrations: %w", err)
	}
	return nil
}

func nullableString(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func parseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
