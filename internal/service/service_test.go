package service

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/julianstephens/studyplanner/internal/docstore"
	"github.com/julianstephens/studyplanner/internal/docstore/memory"
)

const ns = "test-app"

type fakeScope struct {
	mu       sync.Mutex
	identity string
	err      error
	notices  []string
}

func (f *fakeScope) AcquireWrite() (string, func(), error) {
	if f.err != nil {
		return "", nil, f.err
	}
	return f.identity, func() {}, nil
}

func (f *fakeScope) Notify(notice string) {
	f.mu.Lock()
	f.notices = append(f.notices, notice)
	f.mu.Unlock()
}

// countingStore records every write that reaches the store.
type countingStore struct {
	docstore.Store
	mu     sync.Mutex
	calls  []string
	failOn string
}

func (c *countingStore) record(op string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, op)
	if op == c.failOn {
		return errors.New("permission denied")
	}
	return nil
}

func (c *countingStore) Create(ctx context.Context, p docstore.Path, f docstore.Fields) (string, error) {
	if err := c.record("create"); err != nil {
		return "", err
	}
	return c.Store.Create(ctx, p, f)
}

func (c *countingStore) Update(ctx context.Context, p docstore.Path, id string, f docstore.Fields) error {
	if err := c.record("update"); err != nil {
		return err
	}
	return c.Store.Update(ctx, p, id, f)
}

func (c *countingStore) Delete(ctx context.Context, p docstore.Path, id string) error {
	if err := c.record("delete"); err != nil {
		return err
	}
	return c.Store.Delete(ctx, p, id)
}

func (c *countingStore) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

var fixedNow = time.Date(2024, 3, 10, 9, 30, 0, 0, time.Local)

func setup(t *testing.T) (*countingStore, *fakeScope, *HabitService, *ScoreService) {
	t.Helper()
	mem := memory.New()
	t.Cleanup(func() { mem.Close() })
	store := &countingStore{Store: mem}
	scope := &fakeScope{identity: "A"}
	now := func() time.Time { return fixedNow }
	return store, scope, NewHabitService(store, ns, scope, now), NewScoreService(store, ns, scope, now)
}

func current(t *testing.T, store docstore.Store, coll string) []docstore.Document {
	t.Helper()
	sub, err := store.Subscribe(context.Background(), docstore.NewPath(ns, coll))
	if err != nil {
		t.Fatalf("Subscribe() failed: %v", err)
	}
	defer sub.Close()
	select {
	case snap := <-sub.C():
		return snap.Docs
	case <-time.After(time.Second):
		t.Fatal("no snapshot")
		return nil
	}
}

func TestAddHabit(t *testing.T) {
	store, _, habits, _ := setup(t)
	ctx := context.Background()

	id, err := habits.Add(ctx, "  Quant  ")
	if err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	docs := current(t, store, "habits")
	if len(docs) != 1 || docs[0].ID != id {
		t.Fatalf("expected created habit, got %+v", docs)
	}
	f := docs[0].Fields
	if f["title"] != "Quant" || f["ownerId"] != "A" {
		t.Errorf("fields = %v", f)
	}
	if dates, ok := f["completedDates"].([]any); !ok || len(dates) != 0 {
		t.Errorf("completedDates = %v, want empty", f["completedDates"])
	}
	if _, ok := f["createdAt"].(string); !ok {
		t.Errorf("createdAt = %v, want server timestamp", f["createdAt"])
	}
}

func TestValidationRejectionsIssueNoCalls(t *testing.T) {
	store, scope, habits, scores := setup(t)
	ctx := context.Background()

	id, err := habits.Add(ctx, "seed")
	if err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	before := store.count()

	tests := []struct {
		name string
		fn   func() error
	}{
		{"add empty", func() error { _, err := habits.Add(ctx, ""); return err }},
		{"add whitespace", func() error { _, err := habits.Add(ctx, "  \t"); return err }},
		{"rename empty", func() error { return habits.Rename(ctx, id, "") }},
		{"rename whitespace", func() error { return habits.Rename(ctx, id, "   ") }},
		{"score not numeric", func() error { _, err := scores.Add(ctx, "", "abc", "50"); return err }},
		{"score empty", func() error { _, err := scores.Add(ctx, "", "", "50"); return err }},
		{"total not numeric", func() error { _, err := scores.Add(ctx, "", "10", "x"); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); err != nil {
				t.Errorf("expected silent no-op, got %v", err)
			}
		})
	}

	if store.count() != before {
		t.Errorf("validation rejections issued %d store calls", store.count()-before)
	}
	if len(scope.notices) != 0 {
		t.Errorf("validation rejections produced notices: %v", scope.notices)
	}
	if docs := current(t, store, "habits"); docs[0].Fields["title"] != "seed" {
		t.Errorf("title changed to %v", docs[0].Fields["title"])
	}
}

func TestNoIdentityIsNoop(t *testing.T) {
	store, scope, habits, scores := setup(t)
	scope.identity = ""

	if id, err := habits.Add(context.Background(), "Quant"); err != nil || id != "" {
		t.Errorf("Add() = %q, %v; want silent no-op", id, err)
	}
	if id, err := scores.Add(context.Background(), "", "45", "50"); err != nil || id != "" {
		t.Errorf("Add() = %q, %v; want silent no-op", id, err)
	}
	if store.count() != 0 {
		t.Errorf("store calls = %d, want 0", store.count())
	}
}

func TestNoSession(t *testing.T) {
	store, scope, habits, _ := setup(t)
	scope.err = ErrNoSession

	if _, err := habits.Add(context.Background(), "Quant"); !errors.Is(err, ErrNoSession) {
		t.Errorf("Add() error = %v, want ErrNoSession", err)
	}
	if store.count() != 0 {
		t.Errorf("store calls = %d, want 0", store.count())
	}
}

func TestRename(t *testing.T) {
	store, _, habits, _ := setup(t)
	ctx := context.Background()

	id, _ := habits.Add(ctx, "Quant")
	if err := habits.Rename(ctx, id, " Verbal "); err != nil {
		t.Fatalf("Rename() failed: %v", err)
	}
	if got := current(t, store, "habits")[0].Fields["title"]; got != "Verbal" {
		t.Errorf("title = %v, want Verbal", got)
	}
}

func TestToggleRoundTrip(t *testing.T) {
	store, _, habits, _ := setup(t)
	ctx := context.Background()

	id, _ := habits.Add(ctx, "Quant")
	dates := func() []any {
		d, _ := current(t, store, "habits")[0].Fields["completedDates"].([]any)
		return d
	}
	original := dates()

	if err := habits.ToggleCompletion(ctx, id, "2024-03-10", false); err != nil {
		t.Fatalf("toggle on failed: %v", err)
	}
	if got := dates(); !reflect.DeepEqual(got, []any{"2024-03-10"}) {
		t.Fatalf("after toggle on = %v", got)
	}

	// Adding a present key does not duplicate it.
	if err := habits.ToggleCompletion(ctx, id, "2024-03-10", false); err != nil {
		t.Fatalf("repeat toggle on failed: %v", err)
	}
	if got := dates(); len(got) != 1 {
		t.Fatalf("duplicate date-key stored: %v", got)
	}

	if err := habits.ToggleCompletion(ctx, id, "2024-03-10", true); err != nil {
		t.Fatalf("toggle off failed: %v", err)
	}
	if got := dates(); !reflect.DeepEqual(got, original) {
		t.Errorf("after round trip = %v, want %v", got, original)
	}

	// Removing an absent key is not an error.
	if err := habits.ToggleCompletion(ctx, id, "2024-03-10", true); err != nil {
		t.Errorf("toggle off absent key failed: %v", err)
	}
}

func TestDeleteHabit(t *testing.T) {
	store, _, habits, _ := setup(t)
	ctx := context.Background()

	id, _ := habits.Add(ctx, "Quant")
	if err := habits.Delete(ctx, id); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if docs := current(t, store, "habits"); len(docs) != 0 {
		t.Errorf("expected no habits after delete, got %d", len(docs))
	}
}

func TestAddScore(t *testing.T) {
	store, _, _, scores := setup(t)
	ctx := context.Background()

	if _, err := scores.Add(ctx, "", "45", "50"); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	docs := current(t, store, "mock_scores")
	if len(docs) != 1 {
		t.Fatalf("expected one score, got %d", len(docs))
	}
	f := docs[0].Fields
	if f["score"] != 45.0 || f["total"] != 50.0 {
		t.Errorf("score/total = %v/%v, want 45/50 numeric", f["score"], f["total"])
	}
	if f["date"] != "2024-03-10" {
		t.Errorf("date = %v, want 2024-03-10", f["date"])
	}
	if f["title"] != "Mock" || f["ownerId"] != "A" {
		t.Errorf("fields = %v", f)
	}
}

func TestAddScoreBlankTotal(t *testing.T) {
	store, _, _, scores := setup(t)

	if _, err := scores.Add(context.Background(), "Full length", "72", " "); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	f := current(t, store, "mock_scores")[0].Fields
	if f["total"] != 100.0 || f["title"] != "Full length" {
		t.Errorf("fields = %v", f)
	}
}

func TestDeleteScore(t *testing.T) {
	store, _, _, scores := setup(t)
	ctx := context.Background()

	id, _ := scores.Add(ctx, "", "1", "2")
	if err := scores.Delete(ctx, id); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if docs := current(t, store, "mock_scores"); len(docs) != 0 {
		t.Errorf("expected no scores after delete, got %d", len(docs))
	}
}

func TestStoreFailureNotifies(t *testing.T) {
	store, scope, habits, _ := setup(t)
	ctx := context.Background()

	id, _ := habits.Add(ctx, "Quant")
	store.failOn = "update"

	err := habits.ToggleCompletion(ctx, id, "2024-03-10", false)
	if err == nil {
		t.Fatal("ToggleCompletion() should return the store failure")
	}
	if len(scope.notices) != 1 {
		t.Fatalf("notices = %v, want one", scope.notices)
	}
	if d, _ := current(t, store, "habits")[0].Fields["completedDates"].([]any); len(d) != 0 {
		t.Errorf("failed write changed stored state: %v", d)
	}
}

func TestUpdateMissingHabit(t *testing.T) {
	_, scope, habits, _ := setup(t)

	err := habits.Rename(context.Background(), "missing", "Title")
	if !errors.Is(err, docstore.ErrNotFound) {
		t.Errorf("Rename() error = %v, want ErrNotFound", err)
	}
	if len(scope.notices) != 1 {
		t.Errorf("notices = %v, want one", scope.notices)
	}
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"45", 45, true},
		{" 12.5 ", 12.5, true},
		{"-3", -3, true},
		{"", 0, false},
		{"abc", 0, false},
		{"NaN", 0, false},
		{"Inf", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseNumber(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseNumber(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
