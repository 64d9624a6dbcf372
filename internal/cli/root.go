package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"

	"github.com/julianstephens/studyplanner/internal/auth"
	"github.com/julianstephens/studyplanner/internal/config"
	"github.com/julianstephens/studyplanner/internal/docstore"
	"github.com/julianstephens/studyplanner/internal/identity"
	"github.com/julianstephens/studyplanner/internal/logger"
	"github.com/julianstephens/studyplanner/internal/models"
	"github.com/julianstephens/studyplanner/internal/session"
)

// DefaultWaitTimeout bounds how long one-shot commands wait for the store to
// confirm a view.
const DefaultWaitTimeout = 15 * time.Second

// Context is handed to every command's Run method.
type Context struct {
	Ctx    context.Context
	Config config.Config
	Out    io.Writer

	// Store, Provider and Slot are opened from Config when left nil.
	Store    docstore.Store
	Provider auth.Provider
	Slot     identity.Slot

	WaitTimeout time.Duration

	session   *session.Session
	ownsStore bool
}

// Context returns the command context, never nil.
func (c *Context) Context() context.Context {
	if c.Ctx == nil {
		return context.Background()
	}
	return c.Ctx
}

// Printf writes command output.
func (c *Context) Printf(format string, args ...any) {
	out := c.Out
	if out == nil {
		out = os.Stdout
	}
	fmt.Fprintf(out, format, args...)
}

// OpenStore returns the configured store without starting a session.
func (c *Context) OpenStore() (docstore.Store, error) {
	if c.Store != nil {
		return c.Store, nil
	}
	store, provider, err := c.Config.OpenStore(c.Context())
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	c.Store = store
	c.ownsStore = true
	if c.Provider == nil {
		c.Provider = provider
	}
	return store, nil
}

// Session opens the store and starts a session on first use.
func (c *Context) Session() (*session.Session, error) {
	if c.session != nil {
		return c.session, nil
	}
	store, err := c.OpenStore()
	if err != nil {
		return nil, err
	}
	if c.Slot == nil {
		if c.Slot, err = c.Config.OpenIdentity(); err != nil {
			return nil, err
		}
	}
	loc, err := c.Config.Location()
	if err != nil {
		return nil, err
	}

	sess := session.New(session.Config{
		Store:     store,
		Provider:  c.Provider,
		Identity:  identity.NewManager(c.Slot),
		Namespace: c.Config.Namespace,
		Location:  loc,
	})
	if err := sess.Start(c.Context()); err != nil {
		return nil, err
	}
	c.session = sess
	return sess, nil
}

// Close ends the session and releases a store opened by the context.
func (c *Context) Close() {
	if c.session != nil {
		c.session.Close()
		c.session = nil
	}
	if c.ownsStore && c.Store != nil {
		if err := c.Store.Close(); err != nil {
			logger.Warn("Failed to close store", "error", err)
		}
		c.Store = nil
		c.ownsStore = false
	}
}

// Ready starts the session and waits for the first habits snapshot.
func (c *Context) Ready() (*session.Session, session.View, error) {
	sess, err := c.Session()
	if err != nil {
		return nil, session.View{}, err
	}
	v, err := c.WaitFor(func(v session.View) bool { return !v.Loading })
	if err != nil {
		return nil, session.View{}, err
	}
	if v.LoadErr != nil {
		return nil, session.View{}, v.LoadErr
	}
	return sess, v, nil
}

// WaitFor blocks until the session publishes a view satisfying cond.
func (c *Context) WaitFor(cond func(session.View) bool) (session.View, error) {
	if c.session == nil {
		return session.View{}, session.ErrNotStarted
	}
	if v := c.session.Current(); cond(v) {
		return v, nil
	}

	timeout := c.WaitTimeout
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}
	ctx, cancel := context.WithTimeout(c.Context(), timeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return session.View{}, fmt.Errorf("timed out waiting for the store: %w", ctx.Err())
		case v := <-c.session.Views():
			if cond(v) {
				return v, nil
			}
		}
	}
}

// FindHabit resolves ref against the view by id, then by case-insensitive
// title.
func FindHabit(v session.View, ref string) (models.Habit, error) {
	ref = strings.TrimSpace(ref)
	for _, h := range v.Habits {
		if h.ID == ref {
			return h, nil
		}
	}
	var matches []models.Habit
	for _, h := range v.Habits {
		if strings.EqualFold(h.Title, ref) {
			matches = append(matches, h)
		}
	}
	switch len(matches) {
	case 0:
		return models.Habit{}, fmt.Errorf("habit %q not found", ref)
	case 1:
		return matches[0], nil
	default:
		return models.Habit{}, fmt.Errorf("habit title %q is ambiguous; use the ID", ref)
	}
}

// FindScore resolves id against the score log.
func FindScore(v session.View, id string) (models.MockScore, error) {
	for _, s := range v.Scores {
		if s.ID == id {
			return s, nil
		}
	}
	return models.MockScore{}, fmt.Errorf("score %q not found", id)
}

// Confirm asks before a delete unless assumeYes is set.
func Confirm(title string, assumeYes bool) (bool, error) {
	return ConfirmAction(title, "Delete", assumeYes)
}

// ConfirmAction asks before a destructive action, labelling the affirmative
// choice with action.
func ConfirmAction(title, action string, assumeYes bool) (bool, error) {
	if assumeYes {
		return true, nil
	}
	var ok bool
	err := huh.NewConfirm().
		Title(title).
		Affirmative(action).
		Negative("Cancel").
		Value(&ok).
		Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return false, nil
	}
	return ok, err
}
