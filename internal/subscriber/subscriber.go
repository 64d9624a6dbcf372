// Package subscriber keeps the habit and score views for the active sync
// identity in step with the shared store.
package subscriber

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/julianstephens/studyplanner/internal/constants"
	"github.com/julianstephens/studyplanner/internal/docstore"
	"github.com/julianstephens/studyplanner/internal/logger"
	"github.com/julianstephens/studyplanner/internal/models"
)

// LoadError is the blocking failure of the initial habits subscription.
type LoadError struct {
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load habits: %v", e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// View is the filtered, ordered state for one identity.
type View struct {
	Identity string
	Habits   []models.Habit
	Scores   []models.MockScore
	// Loading holds until the first habits snapshot (or its failure).
	Loading bool
	LoadErr error
}

// ErrorFunc receives non-fatal subscription failures.
type ErrorFunc func(collection string, err error)

type Subscriber struct {
	store     docstore.Store
	namespace string
	onError   ErrorFunc

	attachMu sync.Mutex

	mu           sync.Mutex
	gen          uint64
	view         View
	habitsLoaded bool
	cancel       context.CancelFunc
	subs         []*docstore.Subscription
	wg           sync.WaitGroup

	out chan View
}

// New creates a subscriber reading namespace's collections from store.
// onError may be nil.
func New(store docstore.Store, namespace string, onError ErrorFunc) *Subscriber {
	if onError == nil {
		onError = func(string, error) {}
	}
	return &Subscriber{
		store:     store,
		namespace: namespace,
		onError:   onError,
		out:       make(chan View, 1),
	}
}

// Updates delivers every republished view, latest wins.
func (s *Subscriber) Updates() <-chan View {
	return s.out
}

// Current returns a copy of the latest view.
func (s *Subscriber) Current() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyView(s.view)
}

// Attach tears down any previous subscriptions, waits for their delivery
// goroutines to exit, clears the view and subscribes for identity. A failure
// to subscribe to habits is returned as a *LoadError.
func (s *Subscriber) Attach(ctx context.Context, identity string) error {
	s.attachMu.Lock()
	defer s.attachMu.Unlock()

	s.detach()

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.view = View{Identity: identity, Loading: true}
	s.habitsLoaded = false
	subCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.publishLocked()
	s.mu.Unlock()

	habits, err := s.store.Subscribe(subCtx, docstore.NewPath(s.namespace, constants.CollectionHabits))
	if err != nil {
		loadErr := &LoadError{Err: err}
		logger.Error("Failed to subscribe to habits", "error", err)
		s.mu.Lock()
		if s.gen == gen {
			s.view.Loading = false
			s.view.LoadErr = loadErr
			s.publishLocked()
		}
		s.mu.Unlock()
		return loadErr
	}

	scores, err := s.store.Subscribe(subCtx, docstore.NewPath(s.namespace, constants.CollectionScores))
	if err != nil {
		logger.Warn("Failed to subscribe to scores", "error", err)
		s.onError(constants.CollectionScores, err)
	}

	s.mu.Lock()
	s.subs = append(s.subs, habits)
	s.wg.Add(1)
	go s.consume(gen, habits, s.applyHabits)
	if scores != nil {
		s.subs = append(s.subs, scores)
		s.wg.Add(1)
		go s.consume(gen, scores, s.applyScores)
	}
	s.mu.Unlock()
	return nil
}

// Detach ends all subscriptions and waits for delivery to stop.
func (s *Subscriber) Detach() {
	s.attachMu.Lock()
	defer s.attachMu.Unlock()
	s.detach()
}

func (s *Subscriber) detach() {
	s.mu.Lock()
	s.gen++
	subs := s.subs
	s.subs = nil
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, sub := range subs {
		sub.Close()
	}
	s.wg.Wait()
}

func (s *Subscriber) consume(gen uint64, sub *docstore.Subscription, apply func(uint64, docstore.Snapshot)) {
	defer s.wg.Done()
	for snap := range sub.C() {
		apply(gen, snap)
	}
}

func (s *Subscriber) applyHabits(gen uint64, snap docstore.Snapshot) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}

	if snap.Err != nil {
		if !s.habitsLoaded {
			logger.Error("Initial habits snapshot failed", "error", snap.Err)
			s.view.Loading = false
			s.view.LoadErr = &LoadError{Err: snap.Err}
			s.publishLocked()
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
		logger.Warn("Habits snapshot failed, keeping last view", "error", snap.Err)
		s.onError(constants.CollectionHabits, snap.Err)
		return
	}

	s.habitsLoaded = true
	s.view.Loading = false
	s.view.LoadErr = nil
	s.view.Habits = FilterHabits(snap.Docs, s.view.Identity)
	s.publishLocked()
	s.mu.Unlock()
}

func (s *Subscriber) applyScores(gen uint64, snap docstore.Snapshot) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}

	if snap.Err != nil {
		s.mu.Unlock()
		logger.Warn("Scores snapshot failed, keeping last view", "error", snap.Err)
		s.onError(constants.CollectionScores, snap.Err)
		return
	}

	s.view.Scores = FilterScores(snap.Docs, s.view.Identity)
	s.publishLocked()
	s.mu.Unlock()
}

func (s *Subscriber) publishLocked() {
	v := copyView(s.view)
	select {
	case <-s.out:
	default:
	}
	s.out <- v
}

func copyView(v View) View {
	v.Habits = append([]models.Habit(nil), v.Habits...)
	v.Scores = append([]models.MockScore(nil), v.Scores...)
	return v
}

// FilterHabits decodes docs owned by owner, oldest first. Ties keep arrival
// order and habits still waiting for a creation timestamp sort first.
func FilterHabits(docs []docstore.Document, owner string) []models.Habit {
	out := make([]models.Habit, 0, len(docs))
	for _, d := range docs {
		h := models.HabitFromDocument(d)
		if h.OwnerID != owner {
			continue
		}
		out = append(out, h)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAtUnix() < out[j].CreatedAtUnix()
	})
	return out
}

// FilterScores decodes docs owned by owner, most recent day first and the
// latest entry first within a day.
func FilterScores(docs []docstore.Document, owner string) []models.MockScore {
	out := make([]models.MockScore, 0, len(docs))
	for _, d := range docs {
		sc := models.ScoreFromDocument(d)
		if sc.OwnerID != owner {
			continue
		}
		out = append(out, sc)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date > out[j].Date
		}
		return out[i].CreatedAtUnix() > out[j].CreatedAtUnix()
	})
	return out
}
