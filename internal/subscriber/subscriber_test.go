package subscriber

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/julianstephens/studyplanner/internal/docstore"
	"github.com/julianstephens/studyplanner/internal/docstore/memory"
	"github.com/julianstephens/studyplanner/internal/models"
)

const ns = "test-app"

func habitDoc(id, owner string, created float64) docstore.Document {
	f := docstore.Fields{"title": id, "ownerId": owner, "completedDates": []any{}}
	if created > 0 {
		f["createdAt"] = created
	}
	return docstore.Document{ID: id, Fields: f}
}

func ids[T any](items []T, id func(T) string) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = id(it)
	}
	return out
}

func habitIDs(h []models.Habit) []string {
	return ids(h, func(h models.Habit) string { return h.ID })
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestFilterHabitsPartitionsAndSorts(t *testing.T) {
	docs := []docstore.Document{
		habitDoc("a2", "A", 200),
		habitDoc("b1", "B", 50),
		habitDoc("a1", "A", 100),
		habitDoc("pending", "A", 0),
		habitDoc("a2-tie", "A", 200),
	}

	gotA := habitIDs(FilterHabits(docs, "A"))
	if want := []string{"pending", "a1", "a2", "a2-tie"}; !equal(gotA, want) {
		t.Errorf("FilterHabits(A) = %v, want %v", gotA, want)
	}
	gotB := habitIDs(FilterHabits(docs, "B"))
	if want := []string{"b1"}; !equal(gotB, want) {
		t.Errorf("FilterHabits(B) = %v, want %v", gotB, want)
	}
	for _, h := range FilterHabits(docs, "A") {
		if h.OwnerID != "A" {
			t.Errorf("habit %s owned by %s leaked into A's view", h.ID, h.OwnerID)
		}
	}
}

func TestFilterScoresNewestFirst(t *testing.T) {
	docs := []docstore.Document{
		{ID: "s1", Fields: docstore.Fields{"ownerId": "A", "date": "2024-01-02"}},
		{ID: "s2", Fields: docstore.Fields{"ownerId": "A", "date": "2024-02-01"}},
		{ID: "s3", Fields: docstore.Fields{"ownerId": "B", "date": "2024-03-01"}},
		{ID: "s4", Fields: docstore.Fields{"ownerId": "A", "date": "2023-12-31"}},
	}
	got := ids(FilterScores(docs, "A"), func(s models.MockScore) string { return s.ID })
	if want := []string{"s2", "s1", "s4"}; !equal(got, want) {
		t.Errorf("FilterScores(A) = %v, want %v", got, want)
	}
}

func TestFilterScoresSameDayLatestFirst(t *testing.T) {
	docs := []docstore.Document{
		{ID: "morning", Fields: docstore.Fields{"ownerId": "A", "date": "2024-02-01", "createdAt": float64(1706770800)}},
		{ID: "evening", Fields: docstore.Fields{"ownerId": "A", "date": "2024-02-01", "createdAt": float64(1706810400)}},
		{ID: "undated", Fields: docstore.Fields{"ownerId": "A", "date": "2024-02-01"}},
	}
	got := ids(FilterScores(docs, "A"), func(s models.MockScore) string { return s.ID })
	if want := []string{"evening", "morning", "undated"}; !equal(got, want) {
		t.Errorf("FilterScores(A) = %v, want %v", got, want)
	}
}

func waitView(t *testing.T, s *Subscriber, cond func(View) bool) View {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case v := <-s.Updates():
			if cond(v) {
				return v
			}
		case <-deadline:
			t.Fatalf("timed out waiting for view; last = %+v", s.Current())
			return View{}
		}
	}
}

func TestAttachDeliversFilteredViews(t *testing.T) {
	store := memory.New()
	defer store.Close()
	ctx := context.Background()
	habits := docstore.NewPath(ns, "habits")

	if _, err := store.Create(ctx, habits, docstore.Fields{"title": "Other", "ownerId": "B"}); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	s := New(store, ns, nil)
	defer s.Detach()
	if err := s.Attach(ctx, "A"); err != nil {
		t.Fatalf("Attach() failed: %v", err)
	}

	v := waitView(t, s, func(v View) bool { return !v.Loading })
	if len(v.Habits) != 0 {
		t.Fatalf("expected no habits for A, got %v", habitIDs(v.Habits))
	}

	id, err := store.Create(ctx, habits, models.NewHabitFields("Quant", "A"))
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	v = waitView(t, s, func(v View) bool { return len(v.Habits) == 1 })
	if v.Habits[0].ID != id || v.Habits[0].Title != "Quant" {
		t.Errorf("unexpected habit %+v", v.Habits[0])
	}
}

func TestSwitchIdentityShowsOnlyNewRecords(t *testing.T) {
	store := memory.New()
	defer store.Close()
	ctx := context.Background()
	habits := docstore.NewPath(ns, "habits")

	for _, owner := range []string{"A", "A", "B"} {
		if _, err := store.Create(ctx, habits, models.NewHabitFields("h", owner)); err != nil {
			t.Fatalf("Create() failed: %v", err)
		}
	}

	s := New(store, ns, nil)
	defer s.Detach()
	if err := s.Attach(ctx, "A"); err != nil {
		t.Fatalf("Attach(A) failed: %v", err)
	}
	waitView(t, s, func(v View) bool { return len(v.Habits) == 2 })

	// Writes for A keep arriving while the switch happens.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			_, _ = store.Create(ctx, habits, models.NewHabitFields("late", "A"))
		}
	}()

	if err := s.Attach(ctx, "B"); err != nil {
		t.Fatalf("Attach(B) failed: %v", err)
	}
	wg.Wait()

	if cur := s.Current(); cur.Identity != "B" {
		t.Fatalf("Current().Identity = %q, want B", cur.Identity)
	}
	v := waitView(t, s, func(v View) bool { return !v.Loading && v.Identity == "B" })
	for _, h := range v.Habits {
		if h.OwnerID != "B" {
			t.Fatalf("view for B contains %s owned by %s", h.ID, h.OwnerID)
		}
	}
	if len(v.Habits) != 1 {
		t.Errorf("expected B's single habit, got %d", len(v.Habits))
	}
}

func TestStaleGenerationIgnored(t *testing.T) {
	store := memory.New()
	defer store.Close()

	s := New(store, ns, nil)
	defer s.Detach()
	if err := s.Attach(context.Background(), "A"); err != nil {
		t.Fatalf("Attach() failed: %v", err)
	}
	waitView(t, s, func(v View) bool { return !v.Loading })

	s.mu.Lock()
	stale := s.gen - 1
	s.mu.Unlock()
	s.applyHabits(stale, docstore.Snapshot{Docs: []docstore.Document{habitDoc("x", "A", 1)}})

	if got := s.Current().Habits; len(got) != 0 {
		t.Errorf("stale snapshot applied: %v", habitIDs(got))
	}
}

// fakeStore hands out subscriptions the test publishes to directly.
type fakeStore struct {
	mu     sync.Mutex
	subErr error
	subs   map[string]*docstore.Subscription
	docstore.Store
}

func (f *fakeStore) Subscribe(ctx context.Context, path docstore.Path) (*docstore.Subscription, error) {
	if f.subErr != nil && path.Collection == "habits" {
		return nil, f.subErr
	}
	sub := docstore.NewSubscription(path, nil)
	sub.BindContext(ctx)
	f.mu.Lock()
	f.subs[path.Collection] = sub
	f.mu.Unlock()
	return sub, nil
}

func (f *fakeStore) sub(coll string) *docstore.Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[coll]
}

func TestInitialSubscribeFailureIsLoadError(t *testing.T) {
	boom := errors.New("permission denied")
	s := New(&fakeStore{subErr: boom, subs: map[string]*docstore.Subscription{}}, ns, nil)
	defer s.Detach()

	err := s.Attach(context.Background(), "A")
	var loadErr *LoadError
	if !errors.As(err, &loadErr) || !errors.Is(err, boom) {
		t.Fatalf("Attach() error = %v, want LoadError wrapping %v", err, boom)
	}
	if v := s.Current(); v.Loading || v.LoadErr == nil {
		t.Errorf("view = %+v, want load error and not loading", v)
	}
}

func TestSnapshotErrors(t *testing.T) {
	store := &fakeStore{subs: map[string]*docstore.Subscription{}}
	var mu sync.Mutex
	var reported []string
	s := New(store, ns, func(coll string, err error) {
		mu.Lock()
		reported = append(reported, coll)
		mu.Unlock()
	})
	defer s.Detach()

	if err := s.Attach(context.Background(), "A"); err != nil {
		t.Fatalf("Attach() failed: %v", err)
	}

	store.sub("habits").Publish(docstore.Snapshot{Err: errors.New("offline")})
	v := waitView(t, s, func(v View) bool { return v.LoadErr != nil })
	if v.Loading {
		t.Error("view still loading after initial failure")
	}

	store.sub("habits").Publish(docstore.Snapshot{Docs: []docstore.Document{habitDoc("h1", "A", 1)}})
	waitView(t, s, func(v View) bool { return v.LoadErr == nil && len(v.Habits) == 1 })

	store.sub("habits").Publish(docstore.Snapshot{Err: errors.New("flaky")})
	store.sub("mock_scores").Publish(docstore.Snapshot{Err: errors.New("flaky")})

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(reported)
		mu.Unlock()
		if n == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("reported = %v, want habits and scores failures", reported)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if got := s.Current(); len(got.Habits) != 1 || got.LoadErr != nil {
		t.Errorf("last good view not retained: %+v", got)
	}
}
