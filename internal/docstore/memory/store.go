// Package memory is an in-process docstore backend. It backs the sync server
// when no database is configured and serves as the reference backend in tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/julianstephens/studyplanner/internal/docstore"
)

type collection struct {
	order []string
	docs  map[string]docstore.Fields
}

type Store struct {
	mu          sync.Mutex
	now         func() time.Time
	collections map[string]*collection
	hub         *docstore.Hub
	closed      bool
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for server timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		now:         time.Now,
		collections: make(map[string]*collection),
		hub:         docstore.NewHub(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) coll(path docstore.Path) *collection {
	key := path.String()
	c, ok := s.collections[key]
	if !ok {
		c = &collection{docs: make(map[string]docstore.Fields)}
		s.collections[key] = c
	}
	return c
}

// docsLocked returns the collection contents in insertion order.
func (s *Store) docsLocked(path docstore.Path) []docstore.Document {
	c := s.coll(path)
	docs := make([]docstore.Document, 0, len(c.order))
	for _, id := range c.order {
		docs = append(docs, docstore.Document{ID: id, Fields: c.docs[id]})
	}
	return docs
}

func (s *Store) Create(ctx context.Context, path docstore.Path, fields docstore.Fields) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := path.Validate(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", docstore.ErrClosed
	}

	resolved, err := docstore.Apply(nil, fields, s.now())
	if err != nil {
		return "", fmt.Errorf("failed to create document: %w", err)
	}

	id := uuid.NewString()
	c := s.coll(path)
	c.order = append(c.order, id)
	c.docs[id] = resolved

	s.hub.Publish(path, s.docsLocked(path), nil)
	return id, nil
}

func (s *Store) Update(ctx context.Context, path docstore.Path, id string, fields docstore.Fields) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := path.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return docstore.ErrClosed
	}

	c := s.coll(path)
	current, ok := c.docs[id]
	if !ok {
		return fmt.Errorf("%w: %s/%s", docstore.ErrNotFound, path.Collection, id)
	}
	resolved, err := docstore.Apply(current, fields, s.now())
	if err != nil {
		return fmt.Errorf("failed to update document %s: %w", id, err)
	}
	c.docs[id] = resolved

	s.hub.Publish(path, s.docsLocked(path), nil)
	return nil
}

func (s *Store) Delete(ctx context.Context, path docstore.Path, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := path.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return docstore.ErrClosed
	}

	c := s.coll(path)
	if _, ok := c.docs[id]; !ok {
		return nil
	}
	delete(c.docs, id)
	for i, existing := range c.order {
		if existing == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}

	s.hub.Publish(path, s.docsLocked(path), nil)
	return nil
}

func (s *Store) Subscribe(ctx context.Context, path docstore.Path) (*docstore.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := path.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, docstore.ErrClosed
	}

	sub := s.hub.Subscribe(path)
	s.hub.PublishTo(sub, s.docsLocked(path), nil)
	sub.BindContext(ctx)
	return sub, nil
}

// Len returns the number of documents stored in path.
func (s *Store) Len(path docstore.Path) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.coll(path).order)
}

func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.hub.Close()
	return nil
}
