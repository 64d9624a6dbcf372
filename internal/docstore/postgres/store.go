// Package postgres is the shared-server docstore backend. Writes announce
// themselves with NOTIFY inside the write transaction and every client
// process listens, so all devices pointed at the same database receive
// snapshots in real time.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"sync"
	"time"

	pq "github.com/lib/pq"

	"github.com/julianstephens/studyplanner/internal/constants"
	"github.com/julianstephens/studyplanner/internal/docstore"
	"github.com/julianstephens/studyplanner/internal/docstore/sqlstore"
	"github.com/julianstephens/studyplanner/internal/logger"
	"github.com/julianstephens/studyplanner/internal/migration"
	"github.com/julianstephens/studyplanner/migrations"
)

// NotifyChannel is the LISTEN/NOTIFY channel carrying changed collection paths.
const NotifyChannel = "studyplanner_docs"

var (
	ErrInvalidConnectionString = errors.New("invalid PostgreSQL connection string")
	ErrEmbeddedCredentials     = errors.New("connection string must not contain a password")
)

type Store struct {
	connStr  string
	db       *sql.DB
	engine   *sqlstore.Engine
	feed     *sqlstore.Feed
	listener *pq.Listener

	mu     sync.Mutex
	closed bool
	stop   chan struct{}
	wg     sync.WaitGroup
}

// Open connects, creates the schema, applies migrations and starts listening
// for change notifications.
func Open(ctx context.Context, connStr string) (*Store, error) {
	s := &Store{
		connStr: ensureSearchPath(connStr),
		stop:    make(chan struct{}),
	}

	db, err := sql.Open("postgres", s.connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool parameters to avoid connection exhaustion
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		if strings.Contains(err.Error(), "SSL is not enabled on the server") && !hasSSLMode(s.connStr) {
			return nil, fmt.Errorf("failed to connect to database: %w (hint: try adding ?sslmode=disable to your connection string)", err)
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := db.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+constants.AppName); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	s.db = db

	if err := s.runMigrations(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	s.engine = &sqlstore.Engine{
		DB:         db,
		Dialect:    sqlstore.Postgres,
		AfterWrite: notifyChange,
	}
	s.feed = sqlstore.NewFeed(s.engine.List)

	s.listener = pq.NewListener(s.connStr, time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logger.Warn("Postgres listener event", "event", ev, "error", err)
		}
	})
	if err := s.listener.Listen(NotifyChannel); err != nil {
		s.listener.Close()
		db.Close()
		return nil, fmt.Errorf("failed to listen for changes: %w", err)
	}

	go s.feed.Run(nil, nil)
	s.wg.Add(1)
	go s.listen()

	logger.Debug("Opened postgres docstore")
	return s, nil
}

func notifyChange(ctx context.Context, tx *sql.Tx, path docstore.Path) error {
	if _, err := tx.ExecContext(ctx, "SELECT pg_notify($1, $2)", NotifyChannel, path.String()); err != nil {
		return fmt.Errorf("failed to publish change notification: %w", err)
	}
	return nil
}

func (s *Store) listen() {
	defer s.wg.Done()
	ping := time.NewTicker(90 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-s.stop:
			return
		case n, ok := <-s.listener.Notify:
			if !ok {
				return
			}
			if n == nil {
				// Reconnected; notifications may have been missed.
				s.feed.MarkAll()
				continue
			}
			path, err := docstore.ParsePath(n.Extra)
			if err != nil {
				logger.Warn("Ignoring malformed change notification", "payload", n.Extra)
				continue
			}
			s.feed.MarkDirty(path)
		case <-ping.C:
			if err := s.listener.Ping(); err != nil {
				logger.Warn("Postgres listener ping failed", "error", err)
			}
		}
	}
}

func (s *Store) runMigrations(ctx context.Context) error {
	subFS, err := fs.Sub(migrations.FS, "postgres")
	if err != nil {
		return fmt.Errorf("failed to access postgres migrations: %w", err)
	}

	_, err = migration.NewRunner(s.db, subFS, migration.Postgres).Apply(ctx)
	return err
}

// SchemaVersion reports the applied and the latest embedded schema versions.
func (s *Store) SchemaVersion(ctx context.Context) (current, latest int, err error) {
	subFS, err := fs.Sub(migrations.FS, "postgres")
	if err != nil {
		return 0, 0, fmt.Errorf("failed to access postgres migrations: %w", err)
	}
	st, err := migration.NewRunner(s.db, subFS, migration.Postgres).Status(ctx)
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
	return s.engine.Create(ctx, path, fields)
}

func (s *Store) Update(ctx context.Context, path docstore.Path, id string, fields docstore.Fields) error {
	if s.isClosed() {
		return docstore.ErrClosed
	}
	return s.engine.Update(ctx, path, id, fields)
}

func (s *Store) Delete(ctx context.Context, path docstore.Path, id string) error {
	if s.isClosed() {
		return docstore.ErrClosed
	}
	return s.engine.Delete(ctx, path, id)
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

func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.stop)
	s.wg.Wait()
	s.feed.Close()
	s.feed.Wait()
	_ = s.listener.Close()
	return s.db.Close()
}

func ensureSearchPath(connStr string) string {
	if strings.HasPrefix(connStr, "postgres://") || strings.HasPrefix(connStr, "postgresql://") {
		u, err := url.Parse(connStr)
		if err != nil {
			logger.Warn("Failed to parse Postgres connection string", "error", err)
			return connStr
		}
		q := u.Query()
		if q.Get("search_path") == "" {
			q.Set("search_path", constants.AppName)
			u.RawQuery = q.Encode()
			return u.String()
		}
		return connStr
	}
	if !hasParam(connStr, "search_path") {
		return strings.TrimSpace(connStr) + " search_path=" + constants.AppName
	}
	return connStr
}

// hasParam reports whether a DSN-style connection string contains key (case-insensitive).
func hasParam(connStr, key string) bool {
	for _, part := range strings.Fields(connStr) {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) == 2 && strings.EqualFold(kv[0], key) {
			return true
		}
	}
	return false
}

// hasSSLMode checks if the connection string contains an sslmode parameter key (case-insensitive).
// It supports both URL-style and DSN-style connection strings.
func hasSSLMode(connStr string) bool {
	if u, err := url.Parse(connStr); err == nil && u.Scheme != "" {
		for key := range u.Query() {
			if strings.EqualFold(key, "sslmode") {
				return true
			}
		}
	}
	return hasParam(connStr, "sslmode")
}

// ValidateConnString checks if a connection string is a valid
// PostgreSQL connection string (URI or DSN) and ensures it does not
// contain a password.
func ValidateConnString(connStr string) (bool, error) {
	if strings.TrimSpace(connStr) == "" {
		return false, fmt.Errorf("%w: connection string cannot be empty", ErrInvalidConnectionString)
	}

	if _, err := pq.NewConnector(connStr); err != nil {
		return false, fmt.Errorf("%w: invalid connection string format: %v", ErrInvalidConnectionString, err)
	}

	if strings.HasPrefix(connStr, "postgres://") || strings.HasPrefix(connStr, "postgresql://") {
		parsedURL, err := url.Parse(connStr)
		if err != nil {
			return false, fmt.Errorf("%w: failed to parse connection URL: %v", ErrInvalidConnectionString, err)
		}
		if _, isSet := parsedURL.User.Password(); isSet {
			return false, ErrEmbeddedCredentials
		}
		if parsedURL.Host == "" && parsedURL.User == nil && (parsedURL.Path == "" || parsedURL.Path == "/") {
			return false, fmt.Errorf("%w: connection URL is incomplete", ErrInvalidConnectionString)
		}
	} else if hasParam(connStr, "password") {
		return false, ErrEmbeddedCredentials
	}

	return true, nil
}
