// Package service holds the write paths: habit and score mutations against
// the shared store. Writes never touch the local view; results arrive through
// the subscription.
package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/julianstephens/studyplanner/internal/docstore"
	apperrors "github.com/julianstephens/studyplanner/internal/errors"
	"github.com/julianstephens/studyplanner/internal/logger"
	"github.com/julianstephens/studyplanner/internal/telemetry"
)

// ErrNoSession rejects writes before anonymous sign-in succeeded.
var ErrNoSession = errors.New("not signed in; writes are disabled")

// Scope is the session state a write runs under.
type Scope interface {
	// AcquireWrite returns the active sync identity and holds off identity
	// switches until release is called.
	AcquireWrite() (identity string, release func(), err error)
	// Notify surfaces a failed store operation to the user.
	Notify(notice string)
}

type base struct {
	store     docstore.Store
	namespace string
	scope     Scope
	now       func() time.Time
	tracer    trace.Tracer
}

func newBase(store docstore.Store, namespace string, scope Scope, now func() time.Time) base {
	if now == nil {
		now = time.Now
	}
	return base{
		store:     store,
		namespace: namespace,
		scope:     scope,
		now:       now,
		tracer:    telemetry.Tracer("service"),
	}
}

func (b base) path(collection string) docstore.Path {
	return docstore.NewPath(b.namespace, collection)
}

// run executes a store write inside a span. Failures are logged, surfaced
// once as a notice and returned.
func (b base) run(ctx context.Context, action, collection, id string, fn func(ctx context.Context) error) error {
	ctx, span := b.tracer.Start(ctx, action, trace.WithAttributes(
		attribute.String("collection", collection),
		attribute.String("id", id),
	))
	defer span.End()

	err := fn(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		logger.Error("Store write failed", "action", action, "collection", collection, "id", id, "error", err)
		b.scope.Notify(apperrors.Notice(action, err))
		return err
	}
	logger.Debug("Store write", "action", action, "collection", collection, "id", id)
	return nil
}
