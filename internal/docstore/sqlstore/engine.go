// Package sqlstore holds the SQL plumbing shared by the sqlite and postgres
// docstore backends: document CRUD with transforms applied inside a write
// transaction, and the change feed that republishes snapshots.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/julianstephens/studyplanner/internal/docstore"
)

// Dialect captures the SQL differences between backends.
type Dialect struct {
	Name string
	// Numbered uses $N placeholders instead of ?.
	Numbered bool
	// LockSuffix is appended to the read of a document about to be modified.
	LockSuffix string
}

var (
	SQLite   = Dialect{Name: "sqlite"}
	Postgres = Dialect{Name: "postgres", Numbered: true, LockSuffix: " FOR UPDATE"}
)

// Rebind rewrites ? placeholders for the dialect.
func (d Dialect) Rebind(query string) string {
	if !d.Numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$")
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Engine executes document operations against the documents table.
type Engine struct {
	DB      *sql.DB
	Dialect Dialect
	Now     func() time.Time
	// AfterWrite runs inside the write transaction, before commit.
	AfterWrite func(ctx context.Context, tx *sql.Tx, path docstore.Path) error
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) withTx(ctx context.Context, path docstore.Path, fn func(tx *sql.Tx) error) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if e.AfterWrite != nil {
		if err := e.AfterWrite(ctx, tx, path); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func (e *Engine) Create(ctx context.Context, path docstore.Path, fields docstore.Fields) (string, error) {
	if err := path.Validate(); err != nil {
		return "", err
	}
	now := e.now()
	resolved, err := docstore.Apply(nil, fields, now)
	if err != nil {
		return "", fmt.Errorf("failed to create document: %w", err)
	}
	data, err := docstore.EncodeFields(resolved)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	stamp := now.UTC().Format(time.RFC3339Nano)
	err = e.withTx(ctx, path, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, e.Dialect.Rebind(`
			INSERT INTO documents (collection, id, fields, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)`),
			path.String(), id, string(data), stamp, stamp)
		if err != nil {
			return fmt.Errorf("failed to insert document: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (e *Engine) Update(ctx context.Context, path docstore.Path, id string, fields docstore.Fields) error {
	if err := path.Validate(); err != nil {
		return err
	}
	return e.withTx(ctx, path, func(tx *sql.Tx) error {
		var raw string
		err := tx.QueryRowContext(ctx, e.Dialect.Rebind(
			"SELECT fields FROM documents WHERE collection = ? AND id = ?"+e.Dialect.LockSuffix),
			path.String(), id).Scan(&raw)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: %s/%s", docstore.ErrNotFound, path.Collection, id)
			}
			return fmt.Errorf("failed to read document %s: %w", id, err)
		}

		current, err := docstore.DecodeFields([]byte(raw))
		if err != nil {
			return err
		}
		now := e.now()
		resolved, err := docstore.Apply(current, fields, now)
		if err != nil {
			return fmt.Errorf("failed to update document %s: %w", id, err)
		}
		data, err := docstore.EncodeFields(resolved)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, e.Dialect.Rebind(
			"UPDATE documents SET fields = ?, updated_at = ? WHERE collection = ? AND id = ?"),
			string(data), now.UTC().Format(time.RFC3339Nano), path.String(), id)
		if err != nil {
			return fmt.Errorf("failed to update document %s: %w", id, err)
		}
		return nil
	})
}

func (e *Engine) Delete(ctx context.Context, path docstore.Path, id string) error {
	if err := path.Validate(); err != nil {
		return err
	}
	return e.withTx(ctx, path, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, e.Dialect.Rebind(
			"DELETE FROM documents WHERE collection = ? AND id = ?"),
			path.String(), id)
		if err != nil {
			return fmt.Errorf("failed to delete document %s: %w", id, err)
		}
		return nil
	})
}

// List returns the documents of path in insertion order.
func (e *Engine) List(ctx context.Context, path docstore.Path) ([]docstore.Document, error) {
	rows, err := e.DB.QueryContext(ctx, e.Dialect.Rebind(
		"SELECT id, fields FROM documents WHERE collection = ? ORDER BY seq"),
		path.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", path.Collection, err)
	}
	defer rows.Close()

	var docs []docstore.Document
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		fields, err := docstore.DecodeFields([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("document %s: %w", id, err)
		}
		docs = append(docs, docstore.Document{ID: id, Fields: fields})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}
