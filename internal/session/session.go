// Package session is the coordinating application context. It owns the
// principal, the active sync identity, the subscriber and the services, and
// republishes a single View whenever any of them change.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/julianstephens/studyplanner/internal/auth"
	"github.com/julianstephens/studyplanner/internal/docstore"
	apperrors "github.com/julianstephens/studyplanner/internal/errors"
	"github.com/julianstephens/studyplanner/internal/identity"
	"github.com/julianstephens/studyplanner/internal/logger"
	"github.com/julianstephens/studyplanner/internal/models"
	"github.com/julianstephens/studyplanner/internal/service"
	"github.com/julianstephens/studyplanner/internal/stats"
	"github.com/julianstephens/studyplanner/internal/subscriber"
	"github.com/julianstephens/studyplanner/internal/utils"
)

// ErrNotStarted is returned by operations that need Start to have run.
var ErrNotStarted = errors.New("session not started")

// View is everything a presentation adapter renders.
type View struct {
	subscriber.View
	Today         string
	Stats         stats.Stats
	Days          []string
	Grid          []stats.Row
	Summary       stats.ScoreSummary
	Notice        string
	Authenticated bool
}

// Config wires a session.
type Config struct {
	Store     docstore.Store
	Provider  auth.Provider
	Identity  *identity.Manager
	Namespace string
	// Clock defaults to time.Now; Location defaults to time.Local.
	Clock    func() time.Time
	Location *time.Location
}

type Session struct {
	cfg Config
	sub *subscriber.Subscriber

	habits *service.HabitService
	scores *service.ScoreService

	// gate is held shared by writes and exclusively by identity switches.
	gate sync.RWMutex
	// pubMu orders the identity check of a view with its delivery.
	pubMu sync.Mutex

	mu        sync.Mutex
	started   bool
	principal *auth.Principal
	notice    string

	out     chan View
	wake    chan struct{}
	loopCtx context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

func New(cfg Config) *Session {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Provider == nil {
		cfg.Provider = auth.LocalProvider{}
	}

	s := &Session{
		cfg:  cfg,
		out:  make(chan View, 1),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	s.sub = subscriber.New(cfg.Store, cfg.Namespace, s.onSubscriptionError)
	s.habits = service.NewHabitService(cfg.Store, cfg.Namespace, s, s.now)
	s.scores = service.NewScoreService(cfg.Store, cfg.Namespace, s, s.now)
	return s
}

func (s *Session) now() time.Time {
	return s.cfg.Clock().In(s.cfg.Location)
}

func (s *Session) Habits() *service.HabitService { return s.habits }
func (s *Session) Scores() *service.ScoreService { return s.scores }

// Start signs in, loads the identity and attaches the subscriber. A sign-in
// failure leaves the session read-only with a notice. An unreadable identity
// slot is returned as an error. A failed initial habits subscription is
// reported through the view rather than returned.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	if err := s.SignIn(ctx); err != nil {
		logger.Warn("Anonymous sign-in failed, session is read-only", "error", err)
	}

	id, err := s.cfg.Identity.Load()
	if err != nil {
		return fmt.Errorf("failed to load sync identity: %w", err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.loopCtx = loopCtx
	s.cancel = cancel
	s.mu.Unlock()

	if err := s.sub.Attach(loopCtx, id); err != nil {
		var loadErr *subscriber.LoadError
		if !errors.As(err, &loadErr) {
			cancel()
			return err
		}
	}

	go s.loop(loopCtx, s.cfg.Identity.Changes())
	return nil
}

// SignIn retries anonymous sign-in. Failure sets the notice.
func (s *Session) SignIn(ctx context.Context) error {
	p, err := s.cfg.Provider.SignIn(ctx)
	if err != nil {
		s.Notify(apperrors.Notice("sign in", err))
		return err
	}
	s.mu.Lock()
	s.principal = &p
	s.mu.Unlock()
	logger.Debug("Signed in anonymously", "uid", p.UID)
	s.poke()
	return nil
}

// Principal returns the signed-in principal, if any.
func (s *Session) Principal() (auth.Principal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.principal == nil {
		return auth.Principal{}, false
	}
	return *s.principal, true
}

// Identity returns the active sync identity.
func (s *Session) Identity() string {
	return s.cfg.Identity.Current()
}

// SwitchIdentity adopts candidate and re-subscribes before any further write
// is accepted. Blank input is a no-op.
func (s *Session) SwitchIdentity(ctx context.Context, candidate string) (bool, error) {
	s.mu.Lock()
	loopCtx := s.loopCtx
	s.mu.Unlock()
	if loopCtx == nil {
		return false, ErrNotStarted
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.gate.Lock()
	defer s.gate.Unlock()

	before := s.cfg.Identity.Current()
	ok, err := s.cfg.Identity.Adopt(candidate)
	if err != nil || !ok {
		return ok, err
	}
	if s.cfg.Identity.Current() == before {
		return true, nil
	}
	err = s.sub.Attach(loopCtx, s.cfg.Identity.Current())
	s.republish()
	if err != nil {
		var loadErr *subscriber.LoadError
		if !errors.As(err, &loadErr) {
			return true, err
		}
	}
	logger.Info("Switched sync identity")
	return true, nil
}

// AcquireWrite implements service.Scope.
func (s *Session) AcquireWrite() (string, func(), error) {
	s.mu.Lock()
	authed := s.principal != nil
	s.mu.Unlock()
	if !authed {
		return "", nil, service.ErrNoSession
	}
	s.gate.RLock()
	return s.cfg.Identity.Current(), s.gate.RUnlock, nil
}

// Notify implements service.Scope. The latest notice replaces any earlier one.
func (s *Session) Notify(notice string) {
	if notice == "" {
		return
	}
	s.mu.Lock()
	s.notice = notice
	s.mu.Unlock()
	s.poke()
}

// DismissNotice clears the notice.
func (s *Session) DismissNotice() {
	s.mu.Lock()
	s.notice = ""
	s.mu.Unlock()
	s.poke()
}

func (s *Session) onSubscriptionError(collection string, err error) {
	s.Notify(apperrors.Notice("refresh "+collection, err))
}

// Toggle flips today's or dateKey's completion using the current view to
// decide the direction.
func (s *Session) Toggle(ctx context.Context, habitID, dateKey string) error {
	if dateKey == "" {
		dateKey = utils.DateKey(s.now())
	}
	h, ok := s.FindHabit(habitID)
	if !ok {
		return fmt.Errorf("habit %s is not in the current view", habitID)
	}
	return s.habits.ToggleCompletion(ctx, habitID, dateKey, h.HasCompleted(dateKey))
}

// FindHabit looks a habit up in the current view.
func (s *Session) FindHabit(id string) (models.Habit, bool) {
	for _, h := range s.sub.Current().Habits {
		if h.ID == id {
			return h, true
		}
	}
	return models.Habit{}, false
}

// Views delivers every republished view, latest wins.
func (s *Session) Views() <-chan View {
	return s.out
}

// Current composes the view from the latest state. While a switch is
// re-subscribing it reports the new identity as loading.
func (s *Session) Current() View {
	v := s.sub.Current()
	if id := s.cfg.Identity.Current(); v.Identity != id {
		v = subscriber.View{Identity: id, Loading: true}
	}
	return s.compose(v)
}

func (s *Session) compose(v subscriber.View) View {
	now := s.now()

	s.mu.Lock()
	notice := s.notice
	authed := s.principal != nil
	s.mu.Unlock()

	days, grid := stats.Grid(v.Habits, now)
	return View{
		View:          v,
		Today:         utils.DateKey(now),
		Stats:         stats.Compute(v.Habits, now),
		Days:          days,
		Grid:          grid,
		Summary:       stats.SummarizeScores(v.Scores),
		Notice:        notice,
		Authenticated: authed,
	}
}

func (s *Session) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Session) publish(v View) {
	select {
	case <-s.out:
	default:
	}
	s.out <- v
}

// deliver publishes v unless it belongs to an identity other than the
// active one.
func (s *Session) deliver(v subscriber.View) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	if v.Identity != s.cfg.Identity.Current() {
		logger.Debug("Dropped view of inactive identity")
		return
	}
	s.publish(s.compose(v))
}

// republish replaces any undelivered view with one composed from the
// subscriber's current state.
func (s *Session) republish() {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	select {
	case <-s.out:
	default:
	}
	v := s.sub.Current()
	if v.Identity != s.cfg.Identity.Current() {
		return
	}
	s.publish(s.compose(v))
}

func (s *Session) loop(ctx context.Context, changes <-chan string) {
	defer close(s.done)

	midnight := time.NewTimer(time.Until(utils.NextMidnight(s.now())))
	defer midnight.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case v := <-s.sub.Updates():
			s.deliver(v)
		case <-s.wake:
			s.deliver(s.sub.Current())
		case id := <-changes:
			// Adopted outside SwitchIdentity, e.g. by another component
			// sharing the manager.
			s.gate.Lock()
			if id == s.cfg.Identity.Current() && id != s.sub.Current().Identity {
				if err := s.sub.Attach(ctx, id); err != nil {
					logger.Warn("Re-subscribe after identity change failed", "error", err)
				}
				s.republish()
			}
			s.gate.Unlock()
		case <-midnight.C:
			logger.Debug("Day rolled over", "today", utils.DateKey(s.now()))
			s.deliver(s.sub.Current())
			midnight.Reset(time.Until(utils.NextMidnight(s.now())))
		}
	}
}

// Close tears down subscriptions. The store is owned by the caller.
func (s *Session) Close() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-s.done
	}
	s.sub.Detach()
}
