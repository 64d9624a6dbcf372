// Package migration applies the numbered SQL files embedded for a docstore
// backend. Every applied version is recorded in schema_migrations with its
// name and time, so several processes sharing one database agree on the
// schema they see.
package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/julianstephens/studyplanner/internal/logger"
)

// ErrSchemaTooNew is returned when the database was migrated by a newer
// build than the running one.
var ErrSchemaTooNew = errors.New("database schema is newer than this build supports")

// Dialect selects the SQL flavour of the target database.
type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

func (d Dialect) String() string {
	if d == Postgres {
		return "postgres"
	}
	return "sqlite"
}

func (d Dialect) bind(n int) string {
	if d == Postgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// migrationLockKey serializes concurrent migrators on postgres.
const migrationLockKey = 7_318_220_014

// Migration is one NNN_name.sql file.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// Status compares the applied schema with the embedded files.
type Status struct {
	Current int
	Latest  int
	Pending []Migration
}

func (s Status) UpToDate() bool { return len(s.Pending) == 0 && s.Current >= s.Latest }

type Runner struct {
	db      *sql.DB
	fs      fs.FS
	dialect Dialect
	now     func() time.Time
}

func NewRunner(db *sql.DB, migrationFS fs.FS, dialect Dialect) *Runner {
	return &Runner{db: db, fs: migrationFS, dialect: dialect, now: time.Now}
}

func (r *Runner) ensureTable(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TEXT NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}
	return nil
}

// Current returns the highest applied version, 0 for a fresh database.
func (r *Runner) Current(ctx context.Context) (int, error) {
	if err := r.ensureTable(ctx); err != nil {
		return 0, err
	}
	var v int
	if err := r.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return v, nil
}

// Load parses the migration files, sorted by version.
func (r *Runner) Load() ([]Migration, error) {
	entries, err := fs.ReadDir(r.fs, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var out []Migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		m, err := r.parse(e.Name())
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	for i := 1; i < len(out); i++ {
		if out[i].Version == out[i-1].Version {
			return nil, fmt.Errorf("duplicate migration version %d", out[i].Version)
		}
	}
	return out, nil
}

func (r *Runner) parse(filename string) (Migration, error) {
	num, rest, ok := strings.Cut(filename, "_")
	if !ok {
		return Migration{}, fmt.Errorf("invalid migration filename %s: want NNN_name.sql", filename)
	}
	version, err := strconv.Atoi(num)
	if err != nil || version < 1 {
		return Migration{}, fmt.Errorf("invalid version number in migration filename %s", filename)
	}
	body, err := fs.ReadFile(r.fs, filename)
	if err != nil {
		return Migration{}, fmt.Errorf("failed to read migration %s: %w", filename, err)
	}
	return Migration{Version: version, Name: strings.TrimSuffix(rest, ".sql"), SQL: string(body)}, nil
}

// Status reports the applied version, the latest embedded version and the
// migrations still to apply. A database ahead of the files yields
// ErrSchemaTooNew alongside the status.
func (r *Runner) Status(ctx context.Context) (Status, error) {
	current, err := r.Current(ctx)
	if err != nil {
		return Status{}, err
	}
	all, err := r.Load()
	if err != nil {
		return Status{}, err
	}

	st := Status{Current: current}
	if len(all) > 0 {
		st.Latest = all[len(all)-1].Version
	}
	for _, m := range all {
		if m.Version > current {
			st.Pending = append(st.Pending, m)
		}
	}
	if current > st.Latest {
		return st, fmt.Errorf("%w: database at version %d, latest known %d", ErrSchemaTooNew, current, st.Latest)
	}
	return st, nil
}

// Apply runs every pending migration, each in its own transaction, and
// returns the ones this call applied.
func (r *Runner) Apply(ctx context.Context) ([]Migration, error) {
	st, err := r.Status(ctx)
	if err != nil {
		return nil, err
	}
	if len(st.Pending) == 0 {
		logger.Debug("Schema is up to date", "backend", r.dialect, "version", st.Current)
		return nil, nil
	}

	start := time.Now()
	var applied []Migration
	for _, m := range st.Pending {
		ran, err := r.apply(ctx, m)
		if err != nil {
			return applied, err
		}
		if ran {
			applied = append(applied, m)
			logger.Debug("Applied migration", "backend", r.dialect, "version", m.Version, "name", m.Name)
		}
	}
	logger.Debug("Migrations finished", "backend", r.dialect, "applied", len(applied), "took", time.Since(start))
	return applied, nil
}

// apply runs m unless another process recorded it first.
func (r *Runner) apply(ctx context.Context, m Migration) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin migration %d: %w", m.Version, err)
	}
	defer tx.Rollback()

	if r.dialect == Postgres {
		if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLockKey); err != nil {
			return false, fmt.Errorf("failed to lock for migration %d: %w", m.Version, err)
		}
	}

	var seen int
	q := "SELECT COUNT(*) FROM schema_migrations WHERE version = " + r.dialect.bind(1)
	if err := tx.QueryRowContext(ctx, q, m.Version).Scan(&seen); err != nil {
		return false, fmt.Errorf("failed to check migration %d: %w", m.Version, err)
	}
	if seen > 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return false, fmt.Errorf("failed to apply migration %d (%s): %w", m.Version, m.Name, err)
	}
	insert := fmt.Sprintf("INSERT INTO schema_migrations (version, name, applied_at) VALUES (%s, %s, %s)",
		r.dialect.bind(1), r.dialect.bind(2), r.dialect.bind(3))
	if _, err := tx.ExecContext(ctx, insert, m.Version, m.Name, r.now().UTC().Format(time.RFC3339)); err != nil {
		return false, fmt.Errorf("failed to record migration %d: %w", m.Version, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
	}
	return true, nil
}
