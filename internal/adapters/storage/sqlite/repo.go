package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hylla/takt/internal/app"
	_ "modernc.org/sqlite"
)

// driverName defines a package constant value.
const driverName = "sqlite"

// Repository represents repository data used by this package.
type Repository struct {
	db *sql.DB
}

var _ app.Repository = (*Repository)(nil)

// Open opens the requested operation.
func Open(path string) (*Repository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// OpenInMemory opens in memory.
func OpenInMemory() (*Repository, error) {
	db, err := sql.Open(driverName, "file::memory:?cache=shared")
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	db.SetMaxOpenConns(1)
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Close closes the requested operation.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Ping reports whether the database answers.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// migrate handles migrate.
func (r *Repository) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA foreign_keys = ON;`,
		`PRAGMA busy_timeout = 5000;`,
		`CREATE TABLE IF NOT EXISTS work_orders (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			capability TEXT NOT NULL,
			duration_seconds INTEGER NOT NULL,
			earliest_start TEXT NOT NULL,
			due_at TEXT NOT NULL,
			priority TEXT NOT NULL DEFAULT 'normal',
			predecessors_json TEXT NOT NULL DEFAULT '[]',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS resources (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			capabilities_json TEXT NOT NULL DEFAULT '[]',
			shifts_json TEXT NOT NULL DEFAULT '[]',
			exceptions_json TEXT NOT NULL DEFAULT '[]',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS schedule_lineages (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			current_version INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS schedules (
			id TEXT PRIMARY KEY,
			lineage_id TEXT NOT NULL,
			name TEXT NOT NULL,
			version INTEGER NOT NULL,
			status TEXT NOT NULL,
			strategy TEXT NOT NULL,
			parent_id TEXT NOT NULL DEFAULT '',
			horizon_start TEXT NOT NULL,
			horizon_end TEXT NOT NULL,
			work_order_ids_json TEXT NOT NULL DEFAULT '[]',
			resource_ids_json TEXT NOT NULL DEFAULT '[]',
			created_at TEXT NOT NULL,
			confirmed_at TEXT,
			superseded_at TEXT,
			UNIQUE(lineage_id, version),
			FOREIGN KEY(lineage_id) REFERENCES schedule_lineages(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS schedule_assignments (
			schedule_id TEXT NOT NULL,
			work_order_id TEXT NOT NULL,
			resource_id TEXT NOT NULL,
			start_at TEXT NOT NULL,
			end_at TEXT NOT NULL,
			sequence INTEGER NOT NULL,
			PRIMARY KEY(schedule_id, work_order_id),
			FOREIGN KEY(schedule_id) REFERENCES schedules(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS schedule_exclusions (
			schedule_id TEXT NOT NULL,
			work_order_id TEXT NOT NULL,
			reason TEXT NOT NULL,
			PRIMARY KEY(schedule_id, work_order_id),
			FOREIGN KEY(schedule_id) REFERENCES schedules(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS resource_conflicts (
			id TEXT PRIMARY KEY,
			schedule_id TEXT NOT NULL,
			resource_id TEXT NOT NULL,
			assignment_a TEXT NOT NULL,
			assignment_b TEXT NOT NULL,
			overlap_start TEXT NOT NULL,
			overlap_end TEXT NOT NULL,
			detected_at TEXT NOT NULL,
			resolved_at TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS adjustment_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			lineage_id TEXT NOT NULL,
			schedule_id TEXT NOT NULL,
			adjustment_type TEXT NOT NULL,
			actor TEXT NOT NULL,
			before_ref TEXT NOT NULL DEFAULT '',
			after_ref TEXT NOT NULL DEFAULT '',
			reason TEXT NOT NULL DEFAULT '',
			metadata_json TEXT NOT NULL DEFAULT '{}',
			occurred_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_schedules_lineage_version ON schedules(lineage_id, version);`,
		`CREATE INDEX IF NOT EXISTS idx_assignments_work_order ON schedule_assignments(work_order_id);`,
		`CREATE INDEX IF NOT EXISTS idx_conflicts_schedule ON resource_conflicts(schedule_id, resolved_at);`,
		`CREATE INDEX IF NOT EXISTS idx_adjustment_log_lineage ON adjustment_log(lineage_id, id);`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

// withTx runs fn inside one transaction and rolls back when it fails.
func (r *Repository) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// scanner represents scanner data used by this package.
type scanner interface {
	Scan(dest ...any) error
}

// queryer represents a read contract shared by DB and Tx implementations.
type queryer interface {
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// execer represents a write contract shared by DB and Tx implementations.
type execer interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}

// translateNoRows handles translate no rows.
func translateNoRows(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return app.ErrNotFound
	}
	return nil
}

// inClause renders "?, ?, ?" for n placeholders and the matching args.
func inClause(ids []string) (string, []any) {
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	return strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", "), args
}

// ts handles ts.
func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// nullableTS handles nullable ts.
func nullableTS(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTS parses input into a normalized form.
func parseTS(v string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return ts.UTC()
}

// parseNullTS parses input into a normalized form.
func parseNullTS(v sql.NullString) *time.Time {
	if !v.Valid || strings.TrimSpace(v.String) == "" {
		return nil
	}
	ts := parseTS(v.String)
	return &ts
}
