// Package backup keeps rotated snapshots of the sqlite docstore file next to
// the database, and restores the store from one of them.
package backup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/julianstephens/studyplanner/internal/constants"
	"github.com/julianstephens/studyplanner/internal/logger"
)

const timestampLayout = "20060102-150405"

// ErrNoDatabase is returned when the database file to snapshot is missing.
var ErrNoDatabase = errors.New("database does not exist")

// Snapshot describes one backup file.
type Snapshot struct {
	Path  string
	Taken time.Time
	Size  int64
}

// Name returns the snapshot's file name.
func (s Snapshot) Name() string { return filepath.Base(s.Path) }

type Manager struct {
	dbPath string
	dir    string
	keep   int
	now    func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithKeep sets how many snapshots survive rotation. Values below one keep
// everything.
func WithKeep(n int) Option {
	return func(m *Manager) { m.keep = n }
}

// WithDir overrides the snapshot directory.
func WithDir(dir string) Option {
	return func(m *Manager) { m.dir = dir }
}

// WithClock overrides the clock used to name snapshots.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager manages snapshots of the database at dbPath. Snapshots live in
// a backups directory beside it unless WithDir says otherwise.
func NewManager(dbPath string, opts ...Option) *Manager {
	m := &Manager{
		dbPath: dbPath,
		dir:    filepath.Join(filepath.Dir(dbPath), constants.BackupDirName),
		keep:   constants.MaxBackups,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Dir() string { return m.dir }

func (m *Manager) DBPath() string { return m.dbPath }

// Create writes a consistent copy of the database and rotates old snapshots.
func (m *Manager) Create(ctx context.Context) (Snapshot, error) {
	snap, err := m.create(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	if err := m.rotate(); err != nil {
		logger.Warn("Failed to rotate old backups", "dir", m.dir, "error", err)
	}
	return snap, nil
}

func (m *Manager) create(ctx context.Context) (Snapshot, error) {
	if _, err := os.Stat(m.dbPath); errors.Is(err, os.ErrNotExist) {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrNoDatabase, m.dbPath)
	}
	if err := os.MkdirAll(m.dir, 0700); err != nil {
		return Snapshot{}, fmt.Errorf("failed to create backup directory: %w", err)
	}

	taken := m.now()
	dest, err := m.uniquePath(taken)
	if err != nil {
		return Snapshot{}, err
	}
	if err := vacuumInto(ctx, m.dbPath, dest); err != nil {
		return Snapshot{}, fmt.Errorf("failed to back up database: %w", err)
	}

	info, err := os.Stat(dest)
	if err != nil {
		return Snapshot{}, err
	}
	logger.Info("Created backup", "path", dest, "size", info.Size())
	return Snapshot{Path: dest, Taken: taken.Truncate(time.Second), Size: info.Size()}, nil
}

// uniquePath names a snapshot after its timestamp, adding a counter when two
// snapshots land in the same second.
func (m *Manager) uniquePath(taken time.Time) (string, error) {
	stamp := taken.Format(timestampLayout)
	name := constants.BackupPrefix + stamp + constants.BackupSuffix
	for n := 1; n <= 100; n++ {
		path := filepath.Join(m.dir, name)
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return path, nil
		}
		name = fmt.Sprintf("%s%s-%d%s", constants.BackupPrefix, stamp, n, constants.BackupSuffix)
	}
	return "", errors.New("failed to generate unique backup filename")
}

// vacuumInto copies src to dest through sqlite so the copy includes pages
// still held in the write-ahead log.
func vacuumInto(ctx context.Context, src, dest string) error {
	db, err := sql.Open("sqlite", src+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return err
	}
	defer db.Close()

	if err := checkDatabase(ctx, db); err != nil {
		return fmt.Errorf("source database is unusable: %w", err)
	}
	if _, err := db.ExecContext(ctx, "VACUUM INTO ?", dest); err != nil {
		return err
	}
	return nil
}

// List returns the snapshots in the backup directory, newest first. Files
// that do not follow the snapshot naming are ignored.
func (m *Manager) List() ([]Snapshot, error) {
	entries, err := os.ReadDir(m.dir)
	if errors.Is(err, os.ErrNotExist) {
		return []Snapshot{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	snaps := []Snapshot{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		taken, counter, ok := parseName(entry.Name())
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		snaps = append(snaps, Snapshot{
			Path:  filepath.Join(m.dir, entry.Name()),
			Taken: taken.Add(time.Duration(counter)),
			Size:  info.Size(),
		})
	}

	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].Taken.After(snaps[j].Taken)
	})
	for i := range snaps {
		snaps[i].Taken = snaps[i].Taken.Truncate(time.Second)
	}
	return snaps, nil
}

// parseName extracts the timestamp and collision counter from a snapshot
// file name.
func parseName(name string) (time.Time, int, bool) {
	if !strings.HasPrefix(name, constants.BackupPrefix) || !strings.HasSuffix(name, constants.BackupSuffix) {
		return time.Time{}, 0, false
	}
	stem := strings.TrimSuffix(strings.TrimPrefix(name, constants.BackupPrefix), constants.BackupSuffix)
	parts := strings.Split(stem, "-")
	counter := 0
	switch len(parts) {
	case 2:
	case 3:
		n, err := strconv.Atoi(parts[2])
		if err != nil || n < 1 {
			return time.Time{}, 0, false
		}
		counter = n
	default:
		return time.Time{}, 0, false
	}
	taken, err := time.ParseInLocation(timestampLayout, parts[0]+"-"+parts[1], time.Local)
	if err != nil {
		return time.Time{}, 0, false
	}
	return taken, counter, true
}

// Resolve finds a snapshot by file name or path.
func (m *Manager) Resolve(ref string) (Snapshot, error) {
	snaps, err := m.List()
	if err != nil {
		return Snapshot{}, err
	}
	for _, s := range snaps {
		if s.Path == ref || s.Name() == ref {
			return s, nil
		}
	}
	return Snapshot{}, fmt.Errorf("no backup named %q in %s", ref, m.dir)
}

func (m *Manager) rotate() error {
	if m.keep < 1 {
		return nil
	}
	snaps, err := m.List()
	if err != nil {
		return err
	}
	for _, s := range snaps[min(m.keep, len(snaps)):] {
		if err := os.Remove(s.Path); err != nil {
			return fmt.Errorf("failed to remove old backup %s: %w", s.Name(), err)
		}
		logger.Debug("Removed old backup", "path", s.Path)
	}
	return nil
}

// Restore replaces the database with the snapshot at path. The current
// database, when present, is snapshotted first and that snapshot is
// returned. The store must not be open while restoring.
func (m *Manager) Restore(ctx context.Context, path string) (*Snapshot, error) {
	if err := verify(ctx, path); err != nil {
		return nil, fmt.Errorf("backup %s is corrupted or invalid: %w", filepath.Base(path), err)
	}

	var previous *Snapshot
	if _, err := os.Stat(m.dbPath); err == nil {
		snap, err := m.create(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to back up current database before restore: %w", err)
		}
		previous = &snap
	}

	tmp := m.dbPath + ".restore.tmp"
	if err := copyFile(path, tmp); err != nil {
		os.Remove(tmp)
		return previous, fmt.Errorf("failed to copy backup: %w", err)
	}
	// A leftover write-ahead log would be replayed over the restored file.
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Remove(m.dbPath + suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			os.Remove(tmp)
			return previous, fmt.Errorf("failed to clear %s: %w", suffix, err)
		}
	}
	if err := os.Rename(tmp, m.dbPath); err != nil {
		os.Remove(tmp)
		return previous, fmt.Errorf("failed to restore database: %w", err)
	}
	logger.Info("Restored database", "from", path, "to", m.dbPath)
	return previous, nil
}

// verify checks that path is a sqlite database holding a docstore.
func verify(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := checkDatabase(ctx, db); err != nil {
		return err
	}
	var n int
	err = db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'documents'").Scan(&n)
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.New("not a studyplanner database")
	}
	return nil
}

func checkDatabase(ctx context.Context, db *sql.DB) error {
	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA quick_check").Scan(&result); err != nil {
		return err
	}
	if result != "ok" {
		return fmt.Errorf("integrity check: %s", result)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
