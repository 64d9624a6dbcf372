// Package sqlite is the embedded docstore backend. Devices sharing one
// database file (for example on a synced folder) see each other's writes
// through data_version polling.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/julianstephens/studyplanner/internal/constants"
	"github.com/julianstephens/studyplanner/internal/docstore"
	"github.com/julianstephens/studyplanner/internal/docstore/sqlstore"
	"github.com/julianstephens/studyplanner/internal/logger"
	"github.com/julianstephens/studyplanner/internal/migration"
	"github.com/julianstephens/studyplanner/migrations"
)

type Store struct {
	db           *sql.DB
	engine       *sqlstore.Engine
	feed         *sqlstore.Feed
	pollInterval time.Duration
	now          func() time.Time

	mu          sync.Mutex
	dataVersion int64
	closed      bool
}

// Option configures a Store.
type Option func(*Store)

// WithPollInterval sets how often the store checks for commits made by other
// processes. Zero disables polling.
func WithPollInterval(d time.Duration) Option {
	return func(s *Store) {
		s.pollInterval = d
	}
}

// WithClock overrides the clock used for server timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Open opens (creating if needed) the database at path and applies pending
// migrations.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	s := &Store{
		pollInterval: constants.DefaultPollInterval,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: data_version is per connection and the store's own
	// commits are announced in-process.
	db.SetMaxOpenConns(1)
	s.db = db

	if err := s.runMigrations(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	version, err := s.readDataVersion(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.dataVersion = version

	s.engine = &sqlstore.Engine{
		DB:      db,
		Dialect: sqlstore.SQLite,
		Now:     func() time.Time { return s.now() },
	}
	s.feed = sqlstore.NewFeed(s.engine.List)

	var tick <-chan time.Time
	var ticker *time.Ticker
	if s.pollInterval > 0 {
		ticker = time.NewTicker(s.pollInterval)
		tick = ticker.C
	}
	go func() {
		if ticker != nil {
			defer ticker.Stop()
		}
		s.feed.Run(tick, s.externalChange)
	}()

	logger.Debug("Opened sqlite docstore", "path", path)
	return s, nil
}

func dsn(path string) string {
	params := "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate"
	if path != ":memory:" {
		params += "&_pragma=journal_mode(WAL)"
	}
	if strings.Contains(path, "?") {
		return path + "&" + params
	}
	return path + "?" + params
}

func (s *Store) runMigrations(ctx context.Context) error {
	subFS, err := fs.Sub(migrations.FS, "sqlite")
	if err != nil {
		return fmt.Errorf("failed to access sqlite migrations: %w", err)
	}

	_, err = migration.NewRunner(s.db, subFS, migration.SQLite).Apply(ctx)
	return err
}

func (s *Store) readDataVersion(ctx context.Context) (int64, error) {
	var v int64
	if err := s.db.QueryRowContext(ctx, "PRAGMA data_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to read data_version: %w", err)
	}
	return v, nil
}

// externalChange reports whether another connection committed since the last check.
func (s *Store) externalChange() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	v, err := s.readDataVersion(ctx)
	if err != nil {
		logger.Warn("Failed to poll sqlite data_version", "error", err)
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if v == s.dataVersion {
		return false
	}
	s.dataVersion = v
	return true
}

// SchemaVersion reports the applied and the latest embedded schema versions.
func (s *Store) SchemaVersion(ctx context.Context) (current, latest int, err error) {
	subFS, err := fs.Sub(migrations.FS, "sqlite")
	if err != nil {
		return 0, 0, fmt.Errorf("failed to access sqlite migrations: %w", err)
	}
	st, err := migration.NewRunner(s.db, subFS, migration.SQLite).Status(ctx)
	if err != nil {
		return st.Current, st.Latest, err
	}
	return st.Current, st.Latest, nil
}

func (s *Store) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Store) Create(ctx context.Context, path docstore.Path, fields docstore.Fields) (string, error) {
	if s.isClosed() {
		return "", docstore.ErrClosed
	}
	id, err := s.engine.Create(ctx, path, fields)
	if err != nil {
		return "", err
	}
	s.feed.MarkDirty(path)
	return id, nil
}

func (s *Store) Update(ctx context.Context, path docstore.Path, id string, fields docstore.Fields) error {
	if s.isClosed() {
		return docstore.ErrClosed
	}
	if err := s.engine.Update(ctx, path, id, fields); err != nil {
		return err
	}
	s.feed.MarkDirty(path)
	return nil
}

func (s *Store) Delete(ctx context.Context, path docstore.Path, id string) error {
	if s.isClosed() {
		return docstore.ErrClosed
	}
	if err := s.engine.Delete(ctx, path, id); err != nil {
		return err
	}
	s.feed.MarkDirty(path)
	return nil
}

func (s *Store) Subscribe(ctx context.Context, path docstore.Path) (*docstore.Subscription, error) {
	if s.isClosed() {
		return nil, docstore.ErrClosed
	}
	if err := path.Validate(); err != nil {
		return nil, err
	}
	return s.feed.Subscribe(ctx, path), nil
}

// List returns the current contents of path.
func (s *Store) List(ctx context.Context, path docstore.Path) ([]docstore.Document, error) {
	return s.engine.List(ctx, path)
}

func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.feed.Close()
	s.feed.Wait()
	return s.db.Close()
}
