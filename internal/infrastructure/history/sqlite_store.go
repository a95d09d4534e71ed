// Package history persists plugin run reports in a local SQLite database.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"kilometers.ai/pluginhost/internal/core/plugin"
	"kilometers.ai/pluginhost/internal/core/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	started_at INTEGER NOT NULL,
	finished_at INTEGER NOT NULL,
	total INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS outcomes (
	run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	plugin TEXT NOT NULL,
	kind TEXT NOT NULL,
	result TEXT NOT NULL,
	duration_ms INTEGER NOT NULL,
	PRIMARY KEY (run_id, plugin)
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`

// SQLiteStore implements ports.RunRecorder
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.Mutex
	path   string
	logger *zap.Logger
}

var _ ports.RunRecorder = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) the history database at path
func NewSQLiteStore(path string, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	// a single connection keeps writes serialized
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize history schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		path:   path,
		logger: logger.With(zap.String("component", "history")),
	}, nil
}

// Path returns the database file path
func (s *SQLiteStore) Path() string {
	return s.path
}

// Record stores a run report and all of its outcomes in one transaction
func (s *SQLiteStore) Record(ctx context.Context, report *plugin.RunReport) error {
	if report == nil {
		return fmt.Errorf("run report cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, finished_at, total) VALUES (?, ?, ?, ?)`,
		report.ID, report.StartedAt.UnixMilli(), report.FinishedAt.UnixMilli(), len(report.Results))
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", report.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO outcomes (run_id, plugin, kind, result, duration_ms) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare outcome insert: %w", err)
	}
	defer stmt.Close()

	for _, name := range report.Names() {
		o := report.Results[name]
		if _, err := stmt.ExecContext(ctx, report.ID, name, o.Kind.String(), o.String(), o.Duration.Milliseconds()); err != nil {
			return fmt.Errorf("failed to insert outcome for %s: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run %s: %w", report.ID, err)
	}

	s.logger.Debug("run recorded", zap.String("run_id", report.ID), zap.Int("plugins", len(report.Results)))
	return nil
}

// Recent returns up to limit runs, newest first
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]ports.RunSummary, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, total FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}

	var summaries []ports.RunSummary
	for rows.Next() {
		var rs ports.RunSummary
		if err := rows.Scan(&rs.ID, &rs.StartedAt, &rs.FinishedAt, &rs.Total); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		rs.Counts = make(map[string]int)
		summaries = append(summaries, rs)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	rows.Close()

	for i := range summaries {
		counts, err := s.countKinds(ctx, summaries[i].ID)
		if err != nil {
			return nil, err
		}
		summaries[i].Counts = counts
	}

	return summaries, nil
}

// Outcomes returns the stored outcomes of one run, ordered by plugin name
func (s *SQLiteStore) Outcomes(ctx context.Context, runID string) ([]ports.RunOutcome, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT plugin, kind, result, duration_ms FROM outcomes WHERE run_id = ? ORDER BY plugin`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []ports.RunOutcome
	for rows.Next() {
		var o ports.RunOutcome
		if err := rows.Scan(&o.Plugin, &o.Kind, &o.Result, &o.DurationMS); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		outcomes = append(outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate outcomes: %w", err)
	}
	if len(outcomes) == 0 {
		var exists int
		err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE id = ?`, runID).Scan(&exists)
		if err != nil {
			return nil, fmt.Errorf("failed to look up run: %w", err)
		}
		if exists == 0 {
			return nil, fmt.Errorf("run not found: %s", runID)
		}
	}
	return outcomes, nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) countKinds(ctx context.Context, runID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, COUNT(*) FROM outcomes WHERE run_id = ? GROUP BY kind`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to count outcomes: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("failed to scan outcome count: %w", err)
		}
		counts[kind] = n
	}
	return counts, rows.Err()
}
