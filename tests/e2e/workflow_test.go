package e2e

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

var habitIDPattern = regexp.MustCompile(`\(ID: ([^)]+)\)`)

// device runs the CLI with its own config dir and identity file against a
// shared store.
type device struct {
	t    *testing.T
	bin  string
	env  []string
	name string
}

func newDevice(t *testing.T, bin, home, store, name string) *device {
	t.Helper()
	dir := filepath.Join(home, name)
	if err := os.MkdirAll(dir, 0700); err != nil {
		t.Fatalf("Failed to create dir %s: %v", dir, err)
	}

	var env []string
	for _, e := range os.Environ() {
		if strings.HasPrefix(e, "HOME=") || strings.HasPrefix(e, "STUDYPLANNER_") {
			continue
		}
		env = append(env, e)
	}
	env = append(env,
		fmt.Sprintf("HOME=%s", home),
		fmt.Sprintf("STUDYPLANNER_STORE=%s", store),
		fmt.Sprintf("STUDYPLANNER_CONFIG_DIR=%s", dir),
		"STUDYPLANNER_IDENTITY_SLOT=file",
		"STUDYPLANNER_POLL_INTERVAL=0s",
		"STUDYPLANNER_NAMESPACE=e2e-app",
	)
	return &device{t: t, bin: bin, env: env, name: name}
}

// run executes the CLI and returns its stdout.
func (d *device) run(args ...string) string {
	d.t.Helper()
	cmd := exec.Command(d.bin, args...)
	cmd.Env = d.env
	var stderr strings.Builder
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		d.t.Fatalf("[%s] %s %v failed: %v\nstdout: %s\nstderr: %s", d.name, d.bin, args, err, out, stderr.String())
	}
	return string(out)
}

func requireContains(t *testing.T, out, want string) {
	t.Helper()
	if !strings.Contains(out, want) {
		t.Fatalf("output missing %q:\n%s", want, out)
	}
}

func findBinary(t *testing.T) string {
	t.Helper()
	if p := os.Getenv("STUDYPLANNER_BIN"); p != "" {
		return p
	}
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get cwd: %v", err)
	}
	p, _ := filepath.Abs(filepath.Join(cwd, "..", "..", "bin", "studyplanner"))
	if _, err := os.Stat(p); os.IsNotExist(err) {
		t.Skipf("CLI binary not found at %s; build it with go build -o bin/studyplanner ./cmd/studyplanner", p)
	}
	return p
}

func TestTwoDevicesShareOneStore(t *testing.T) {
	bin := findBinary(t)
	home := t.TempDir()
	store := filepath.Join(home, "shared", "studyplanner.db")

	laptop := newDevice(t, bin, home, store, "laptop")
	phone := newDevice(t, bin, home, store, "phone")

	t.Log("Adding a habit on the laptop...")
	out := laptop.run("habit", "add", "Quant drills")
	requireContains(t, out, "Added habit: Quant drills")
	if !habitIDPattern.MatchString(out) {
		t.Fatalf("add output has no habit ID: %s", out)
	}

	laptopID := strings.TrimSpace(laptop.run("sync"))
	phoneID := strings.TrimSpace(phone.run("sync", "show"))
	if laptopID == "" || laptopID == phoneID {
		t.Fatalf("devices should start with distinct sync IDs, got %q and %q", laptopID, phoneID)
	}

	t.Log("Phone cannot see the laptop's habits before adopting its ID...")
	requireContains(t, phone.run("habit", "list"), "No habits found.")

	t.Log("Adopting the laptop's sync ID on the phone...")
	requireContains(t, phone.run("sync", "adopt", laptopID), "Now syncing as "+laptopID+" (1 habits, 0 scores)")
	requireContains(t, phone.run("habit", "list"), "Quant drills")

	t.Log("Completing the habit on the phone...")
	requireContains(t, phone.run("habit", "toggle", "quant drills"), "Marked Quant drills done")
	requireContains(t, laptop.run("stats"), "1/1 habits done (100%)")

	t.Log("Logging a score on the laptop...")
	requireContains(t, laptop.run("score", "add", "45", "50", "--title", "Sectional"), "Sectional")
	requireContains(t, phone.run("score", "list"), "45/50 (90%)")
	requireContains(t, phone.run("stats"), "best 90.0%")

	t.Log("Snapshotting the shared store...")
	requireContains(t, laptop.run("backup", "create"), "Created backup")
	list := laptop.run("backup", "list")
	requireContains(t, list, "studyplanner-")

	t.Log("Deleting the habit from the phone...")
	requireContains(t, phone.run("habit", "delete", "Quant drills", "--yes"), "Deleted habit: Quant drills")
	requireContains(t, laptop.run("habit", "list"), "No habits found.")
	requireContains(t, laptop.run("stats"), "Lifetime completions: 0")
}
