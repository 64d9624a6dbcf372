package backup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/julianstephens/studyplanner/internal/docstore"
	"github.com/julianstephens/studyplanner/internal/docstore/sqlite"
)

var habitsPath = docstore.NewPath("test-app", "habits")

// seedStore creates a docstore database at dbPath holding the given titles.
func seedStore(t *testing.T, dbPath string, titles ...string) {
	t.Helper()
	ctx := context.Background()
	store, err := sqlite.Open(ctx, dbPath, sqlite.WithPollInterval(0))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()
	for _, title := range titles {
		if _, err := store.Create(ctx, habitsPath, docstore.Fields{"title": title}); err != nil {
			t.Fatalf("Create(%q) failed: %v", title, err)
		}
	}
}

func listTitles(t *testing.T, dbPath string) []string {
	t.Helper()
	ctx := context.Background()
	store, err := sqlite.Open(ctx, dbPath, sqlite.WithPollInterval(0))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()
	docs, err := store.List(ctx, habitsPath)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	titles := make([]string, len(docs))
	for i, d := range docs {
		titles[i], _ = d.Fields["title"].(string)
	}
	return titles
}

// steppingClock returns a clock that advances one second per call.
func steppingClock(start time.Time) func() time.Time {
	next := start
	return func() time.Time {
		now := next
		next = next.Add(time.Second)
		return now
	}
}

func TestCreateBackup(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "studyplanner.db")
	seedStore(t, dbPath, "Quant drills")

	mgr := NewManager(dbPath)
	snap, err := mgr.Create(context.Background())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if filepath.Dir(snap.Path) != filepath.Join(filepath.Dir(dbPath), "backups") {
		t.Errorf("snapshot dir = %s", filepath.Dir(snap.Path))
	}
	if snap.Size == 0 {
		t.Error("snapshot should not be empty")
	}
	if got := listTitles(t, snap.Path); len(got) != 1 || got[0] != "Quant drills" {
		t.Errorf("snapshot contents = %v", got)
	}
}

func TestCreateWithoutDatabase(t *testing.T) {
	mgr := NewManager(filepath.Join(t.TempDir(), "missing.db"))
	if _, err := mgr.Create(context.Background()); !errors.Is(err, ErrNoDatabase) {
		t.Errorf("Create error = %v, want ErrNoDatabase", err)
	}
	if _, err := os.Stat(mgr.Dir()); !os.IsNotExist(err) {
		t.Error("backup dir should not be created for a missing database")
	}
}

func TestRotationKeepsNewest(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "studyplanner.db")
	seedStore(t, dbPath, "Reading")

	start := time.Date(2024, 3, 10, 9, 0, 0, 0, time.Local)
	mgr := NewManager(dbPath, WithKeep(3), WithClock(steppingClock(start)))
	var last Snapshot
	for i := 0; i < 5; i++ {
		snap, err := mgr.Create(context.Background())
		if err != nil {
			t.Fatalf("Create #%d failed: %v", i, err)
		}
		last = snap
	}

	snaps, err := mgr.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(snaps) != 3 {
		t.Fatalf("got %d snapshots, want 3", len(snaps))
	}
	if snaps[0].Path != last.Path {
		t.Errorf("newest = %s, want %s", snaps[0].Name(), last.Name())
	}
	if !snaps[2].Taken.Equal(start.Add(2 * time.Second)) {
		t.Errorf("oldest kept = %v, want %v", snaps[2].Taken, start.Add(2*time.Second))
	}
}

func TestSameSecondGetsCounter(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "studyplanner.db")
	seedStore(t, dbPath, "Reading")

	fixed := time.Date(2024, 3, 10, 9, 0, 0, 0, time.Local)
	mgr := NewManager(dbPath, WithClock(func() time.Time { return fixed }))
	first, err := mgr.Create(context.Background())
	if err != nil {
		t.Fatalf("first Create failed: %v", err)
	}
	second, err := mgr.Create(context.Background())
	if err != nil {
		t.Fatalf("second Create failed: %v", err)
	}
	if first.Name() != "studyplanner-20240310-090000.db" {
		t.Errorf("first name = %s", first.Name())
	}
	if second.Name() != "studyplanner-20240310-090000-1.db" {
		t.Errorf("second name = %s", second.Name())
	}

	snaps, err := mgr.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(snaps) != 2 || snaps[0].Path != second.Path {
		t.Errorf("List order = %v", snaps)
	}
}

func TestListIgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	mgr := NewManager(filepath.Join(dir, "studyplanner.db"))
	if err := os.MkdirAll(mgr.Dir(), 0700); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"notes.txt", "studyplanner-garbage.db", "studyplanner-20240310-0900.db", "studyplanner-20240310-090000-x.db"} {
		if err := os.WriteFile(filepath.Join(mgr.Dir(), name), []byte("x"), 0600); err != nil {
			t.Fatal(err)
		}
	}
	snaps, err := mgr.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(snaps) != 0 {
		t.Errorf("List = %v, want none", snaps)
	}
}

func TestRestoreBackup(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "studyplanner.db")
	seedStore(t, dbPath, "Quant drills")

	mgr := NewManager(dbPath, WithClock(steppingClock(time.Date(2024, 3, 10, 9, 0, 0, 0, time.Local))))
	snap, err := mgr.Create(context.Background())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	seedStore(t, dbPath, "Verbal")
	if got := listTitles(t, dbPath); len(got) != 2 {
		t.Fatalf("before restore got %v", got)
	}

	previous, err := mgr.Restore(context.Background(), snap.Path)
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if got := listTitles(t, dbPath); len(got) != 1 || got[0] != "Quant drills" {
		t.Errorf("after restore got %v", got)
	}

	if previous == nil {
		t.Fatal("restore should snapshot the current database first")
	}
	if got := listTitles(t, previous.Path); len(got) != 2 {
		t.Errorf("pre-restore snapshot holds %v", got)
	}
	if _, err := os.Stat(dbPath + ".restore.tmp"); !os.IsNotExist(err) {
		t.Error("temporary restore file should be gone")
	}
}

func TestRestoreRejectsInvalidBackup(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "studyplanner.db")
	seedStore(t, dbPath, "Quant drills")
	mgr := NewManager(dbPath)

	garbage := filepath.Join(dir, "garbage.db")
	if err := os.WriteFile(garbage, []byte("this is not a database file at all"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := mgr.Restore(context.Background(), garbage); err == nil {
		t.Error("restoring a non-database file should fail")
	}
	if _, err := mgr.Restore(context.Background(), filepath.Join(dir, "missing.db")); err == nil {
		t.Error("restoring a missing file should fail")
	}
	if got := listTitles(t, dbPath); len(got) != 1 {
		t.Errorf("database changed after failed restore: %v", got)
	}
}

func TestResolve(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "studyplanner.db")
	seedStore(t, dbPath, "Reading")
	mgr := NewManager(dbPath)
	snap, err := mgr.Create(context.Background())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	for _, ref := range []string{snap.Name(), snap.Path} {
		got, err := mgr.Resolve(ref)
		if err != nil {
			t.Errorf("Resolve(%q) failed: %v", ref, err)
			continue
		}
		if got.Path != snap.Path {
			t.Errorf("Resolve(%q) = %s", ref, got.Path)
		}
	}
	if _, err := mgr.Resolve("studyplanner-19990101-000000.db"); err == nil {
		t.Error("Resolve of an unknown name should fail")
	}
}
