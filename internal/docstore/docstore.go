// Package docstore defines the shared document store the sync layer reads
// and writes: collections addressed by path, documents with loosely typed
// fields, field transforms applied by the store, and live snapshot
// subscriptions that deliver the full collection on every change.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned by Update when the target document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrClosed is returned by any operation on a closed store.
	ErrClosed = errors.New("store is closed")
	// ErrInvalidPath is returned when a path has an empty namespace or collection.
	ErrInvalidPath = errors.New("invalid collection path")
)

// Fields holds the top-level fields of a document.
type Fields map[string]any

// Clone returns a deep copy of f.
func (f Fields) Clone() Fields {
	if f == nil {
		return Fields{}
	}
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// Path addresses one logical collection inside an application namespace.
type Path struct {
	Namespace  string `json:"namespace"`
	Collection string `json:"collection"`
}

// NewPath returns the path of collection within namespace.
func NewPath(namespace, collection string) Path {
	return Path{Namespace: namespace, Collection: collection}
}

// String renders the storage key for the collection.
func (p Path) String() string {
	return fmt.Sprintf("artifacts/%s/public/data/%s", p.Namespace, p.Collection)
}

// Validate checks that both path segments are present and slash free.
func (p Path) Validate() error {
	if strings.TrimSpace(p.Namespace) == "" || strings.TrimSpace(p.Collection) == "" {
		return fmt.Errorf("%w: %q", ErrInvalidPath, p.String())
	}
	if strings.Contains(p.Namespace, "/") || strings.Contains(p.Collection, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidPath, p.String())
	}
	return nil
}

// Document is one record of a collection with its store-assigned id.
type Document struct {
	ID     string `json:"id"`
	Fields Fields `json:"fields"`
}

// Snapshot is the full contents of a collection at one point of the change
// stream. Err is set instead of Docs when the store failed to produce it.
type Snapshot struct {
	Path Path
	Seq  uint64
	Docs []Document
	Err  error
}

// Store is the persistent shared store.
type Store interface {
	// Create adds a document and returns its id.
	Create(ctx context.Context, path Path, fields Fields) (string, error)
	// Update merges fields into an existing document, applying transforms.
	Update(ctx context.Context, path Path, id string, fields Fields) error
	// Delete removes a document permanently. Deleting a missing document is a no-op.
	Delete(ctx context.Context, path Path, id string) error
	// Subscribe starts a live subscription on path. The first snapshot holds
	// the current collection. The subscription ends when ctx is done or it is
	// closed.
	Subscribe(ctx context.Context, path Path) (*Subscription, error)
	// Close releases the store and ends all subscriptions.
	Close() error
}

// CloneDocs deep copies a document list.
func CloneDocs(docs []Document) []Document {
	out := make([]Document, len(docs))
	for i, d := range docs {
		out[i] = Document{ID: d.ID, Fields: d.Fields.Clone()}
	}
	return out
}

// ParsePath is the inverse of Path.String.
func ParsePath(s string) (Path, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 5 || parts[0] != "artifacts" || parts[2] != "public" || parts[3] != "data" {
		return Path{}, fmt.Errorf("%w: %q", ErrInvalidPath, s)
	}
	p := Path{Namespace: parts[1], Collection: parts[4]}
	if err := p.Validate(); err != nil {
		return Path{}, err
	}
	return p, nil
}
