// Package journal keeps a local SQLite history of preview passes: which items
// were touched, their outcome and how long they took. The journal is
// bookkeeping, not coordination; losing it never affects the content store.
package journal

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

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Run is one recorded pipeline pass.
type Run struct {
	ID         string
	WorkerID   string
	StartedAt  time.Time
	FinishedAt time.Time
	Processed  int
	Failed     int
}

// ItemRecord is one item's terminal outcome within a run.
type ItemRecord struct {
	ID         string
	RunID      string
	ContentID  string
	Outcome    string
	Pages      int
	Elapsed    time.Duration
	RecordedAt time.Time
}

// Journal wraps the SQLite database backing the run history.
type Journal struct {
	db *sql.DB
}

// Open opens (or creates) the journal database in dataDir and applies pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (used by
// tests).
func Open(dataDir string) (*Journal, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "previewd.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	j := &Journal{db: db}
	if err := j.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return j, nil
}

// Close closes the underlying database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) migrate() error {
	if _, err := j.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, k int) bool {
		return entries[i].Name() < entries[k].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		var version int
		if _, err := fmt.Sscanf(entry.Name(), "%d_", &version); err != nil {
			return fmt.Errorf("parsing migration version from %q: %w", entry.Name(), err)
		}

		var exists int
		if err := j.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := j.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}
	return nil
}

// BeginRun records the start of a pass.
func (j *Journal) BeginRun(ctx context.Context, runID, workerID string) error {
	_, err := j.db.ExecContext(ctx,
		"INSERT INTO runs (id, worker_id, started_at) VALUES (?, ?, ?)",
		runID, workerID, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("recording run start: %w", err)
	}
	return nil
}

// RecordItem records one item's terminal outcome.
func (j *Journal) RecordItem(ctx context.Context, runID, contentID, outcome string, pages int, elapsed time.Duration) error {
	id := ulid.Make().String()
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO items (id, run_id, content_id, outcome, pages, elapsed_ms, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, runID, contentID, outcome, pages, elapsed.Milliseconds(),
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("recording item %s: %w", contentID, err)
	}
	return nil
}

// FinishRun records the end of a pass with its totals.
func (j *Journal) FinishRun(ctx context.Context, runID string, processed, failed int) error {
	_, err := j.db.ExecContext(ctx,
		"UPDATE runs SET finished_at = ?, processed = ?, failed = ? WHERE id = ?",
		time.Now().UTC().Format(time.RFC3339), processed, failed, runID)
	if err != nil {
		return fmt.Errorf("recording run finish: %w", err)
	}
	return nil
}

// RecentRuns returns the most recent runs, newest first.
func (j *Journal) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, worker_id, started_at, COALESCE(finished_at, ''), processed, failed
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started, finished string
		if err := rows.Scan(&r.ID, &r.WorkerID, &started, &finished, &r.Processed, &r.Failed); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		if r.StartedAt, err = time.Parse(time.RFC3339, started); err != nil {
			return nil, fmt.Errorf("parsing run start time: %w", err)
		}
		if finished != "" {
			if r.FinishedAt, err = time.Parse(time.RFC3339, finished); err != nil {
				return nil, fmt.Errorf("parsing run finish time: %w", err)
			}
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RunItems returns all item records for a run in recording order.
func (j *Journal) RunItems(ctx context.Context, runID string) ([]ItemRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, run_id, content_id, outcome, pages, elapsed_ms, recorded_at
		FROM items WHERE run_id = ? ORDER BY id ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying items: %w", err)
	}
	defer rows.Close()

	var items []ItemRecord
	for rows.Next() {
		var rec ItemRecord
		var elapsedMs int64
		var recorded string
		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.ContentID, &rec.Outcome, &rec.Pages, &elapsedMs, &recorded); err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		rec.Elapsed = time.Duration(elapsedMs) * time.Millisecond
		if rec.RecordedAt, err = time.Parse(time.RFC3339, recorded); err != nil {
			return nil, fmt.Errorf("parsing item record time: %w", err)
		}
		items = append(items, rec)
	}
	return items, rows.Err()
}

// ItemHistory returns the recorded outcomes for one content item, newest
// first.
func (j *Journal) ItemHistory(ctx context.Context, contentID string, limit int) ([]ItemRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, run_id, content_id, outcome, pages, elapsed_ms, recorded_at
		FROM items WHERE content_id = ? ORDER BY id DESC LIMIT ?`, contentID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying item history: %w", err)
	}
	defer rows.Close()

	var items []ItemRecord
	for rows.Next() {
		var rec ItemRecord
		var elapsedMs int64
		var recorded string
		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.ContentID, &rec.Outcome, &rec.Pages, &elapsedMs, &recorded); err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		rec.Elapsed = time.Duration(elapsedMs) * time.Millisecond
		if rec.RecordedAt, err = time.Parse(time.RFC3339, recorded); err != nil {
			return nil, fmt.Errorf("parsing item record time: %w", err)
		}
		items = append(items, rec)
	}
	return items, rows.Err()
}
