package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/libretto-pm/libretto/pkg/config"
	"github.com/libretto-pm/libretto/pkg/lockfile"
	"github.com/libretto-pm/libretto/pkg/manifest"
	"github.com/libretto-pm/libretto/pkg/perr"
	"github.com/libretto-pm/libretto/pkg/solver"
	"github.com/libretto-pm/libretto/pkg/version"
)

func pid(t *testing.T, s string) manifest.PackageID {
	t.Helper()
	id, err := manifest.ParsePackageID(s)
	if err != nil {
		t.Fatalf("ParsePackageID(%q): %v", s, err)
	}
	return id
}

func constraint(t *testing.T, s string) version.Constraint {
	t.Helper()
	c, err := version.ParseConstraint(s)
	if err != nil {
		t.Fatalf("ParseConstraint(%q): %v", s, err)
	}
	return c
}

func ver(t *testing.T, s string) version.Version {
	t.Helper()
	v, err := version.Parse(s)
	if err != nil {
		t.Fatalf("Parse(%q): %v", s, err)
	}
	return v
}

// fakeFetcher serves a fixed in-memory graph, mirroring pkg/fetch's own
// test double so the fixtures here read the same way.
type fakeFetcher struct {
	mu      sync.Mutex
	entries map[manifest.PackageID]*manifest.Entry
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{entries: map[manifest.PackageID]*manifest.Entry{}}
}

func (f *fakeFetcher) add(t *testing.T, name, v string, requires ...string) {
	t.Helper()
	id := pid(t, name)
	reqs := map[manifest.PackageID]version.Constraint{}
	for _, r := range requires {
		reqs[pid(t, r)] = constraint(t, "*")
	}
	entry := f.entries[id]
	if entry == nil {
		entry = &manifest.Entry{ID: id}
		f.entries[id] = entry
	}
	entry.Versions = append(entry.Versions, manifest.PackageVersion{
		ID: id, Version: ver(t, v), Requires: reqs,
	})
}

func (f *fakeFetcher) FetchEntry(ctx context.Context, id manifest.PackageID) (*manifest.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[id]
	if !ok {
		return nil, perr.New(perr.KindNotFound, "fetch: no such package %s", id)
	}
	return e, nil
}

func writeManifest(t *testing.T, root, name, require string) {
	t.Helper()
	body := `{"name":"acme/app","require":{"` + require + `":"1.0.0"},"minimum-stability":"stable"}`
	if err := os.WriteFile(filepath.Join(root, manifest.FileName), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	_ = name
}

func newOrchestrator(t *testing.T, root string, fetcher *fakeFetcher) *Orchestrator {
	t.Helper()
	cfg, err := config.Resolve(nil, root)
	if err != nil {
		t.Fatalf("config.Resolve: %v", err)
	}
	o := New(root, cfg)
	o.Fetcher = fetcher
	o.SolveMode = solver.PreferHighest
	return o
}

func TestRunInstallFromLockWithNoPriorLockSolvesAndWritesLock(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "acme/app", "acme/lib")

	f := newFakeFetcher()
	f.add(t, "acme/lib", "1.2.0")

	o := newOrchestrator(t, root, f)
	summary, err := o.Run(context.Background(), time.Unix(0, 0), Request{Mode: InstallFromLock})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	installed, updated, removed := summary.Changes.Counts()
	if installed != 1 || updated != 0 || removed != 0 {
		t.Errorf("Counts = %d/%d/%d, want 1/0/0", installed, updated, removed)
	}

	lockPath := filepath.Join(root, lockfile.FileName)
	if _, err := os.Stat(lockPath); err != nil {
		t.Fatalf("expected a lock file to be written: %v", err)
	}
}

func TestRunInstallFromLockSkipsSolveWhenHashMatches(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "acme/app", "acme/lib")

	f := newFakeFetcher()
	f.add(t, "acme/lib", "1.2.0")

	o := newOrchestrator(t, root, f)
	if _, err := o.Run(context.Background(), time.Unix(0, 0), Request{Mode: InstallFromLock}); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	// A second orchestrator with no Fetcher configured: if the fast path
	// is taken, Run must succeed anyway since fetch+solve are skipped.
	o2 := newOrchestrator(t, root, nil)
	o2.Fetcher = nil
	summary, err := o2.Run(context.Background(), time.Unix(0, 0), Request{Mode: InstallFromLock})
	if err != nil {
		t.Fatalf("second Run (expected fast path, no fetcher needed): %v", err)
	}
	if summary.Changes.Any() {
		t.Errorf("expected no changes on the unchanged-lock fast path, got %+v", summary.Changes.Changes)
	}
}

func TestRunDryRunLeavesNoLockFile(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "acme/app", "acme/lib")

	f := newFakeFetcher()
	f.add(t, "acme/lib", "1.0.0")

	o := newOrchestrator(t, root, f)
	if _, err := o.Run(context.Background(), time.Unix(0, 0), Request{Mode: DryRun}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, lockfile.FileName)); !os.IsNotExist(err) {
		t.Errorf("expected no lock file after a dry run, stat err = %v", err)
	}
}

func TestRunDetectsUpdateBetweenRuns(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "acme/app", "acme/lib")

	f := newFakeFetcher()
	f.add(t, "acme/lib", "1.0.0")
	o := newOrchestrator(t, root, f)
	if _, err := o.Run(context.Background(), time.Unix(0, 0), Request{Mode: InstallFromLock}); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	// A newer version appears upstream and the manifest's constraint
	// widens, forcing a resolve on the next update-all run.
	widened := `{"name":"acme/app","require":{"acme/lib":"*"},"minimum-stability":"stable"}`
	if err := os.WriteFile(filepath.Join(root, manifest.FileName), []byte(widened), 0o644); err != nil {
		t.Fatal(err)
	}
	f.add(t, "acme/lib", "2.0.0")

	summary, err := o.Run(context.Background(), time.Unix(1, 0), Request{Mode: UpdateAll})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	_, updated, _ := summary.Changes.Counts()
	if updated != 1 {
		t.Errorf("expected exactly one updated package, got changes=%+v", summary.Changes.Changes)
	}
}

func TestDiffLocksClassifiesInstallUpdateRemove(t *testing.T) {
	libA := pid(t, "acme/lib-a")
	libB := pid(t, "acme/lib-b")
	libC := pid(t, "acme/lib-c")

	prior := &lockfile.LockFile{Packages: []lockfile.LockedPackage{
		{ID: libA, Version: ver(t, "1.0.0")},
		{ID: libB, Version: ver(t, "1.0.0")},
	}}
	next := &lockfile.LockFile{Packages: []lockfile.LockedPackage{
		{ID: libA, Version: ver(t, "1.0.0")},
		{ID: libB, Version: ver(t, "2.0.0")},
		{ID: libC, Version: ver(t, "1.0.0")},
	}}

	cs := diffLocks(prior, next)
	installed, updated, removed := cs.Counts()
	if installed != 1 || updated != 1 || removed != 0 {
		t.Errorf("Counts = %d/%d/%d, want 1/1/0", installed, updated, removed)
	}
}

func TestPinnedVersionsOnlyAppliesUnderUpdateSubset(t *testing.T) {
	libA := pid(t, "acme/lib-a")
	libB := pid(t, "acme/lib-b")
	prior := &lockfile.LockFile{Packages: []lockfile.LockedPackage{
		{ID: libA, Version: ver(t, "1.0.0")},
		{ID: libB, Version: ver(t, "1.0.0")},
	}}

	out := pinnedVersions(Request{Mode: UpdateSubset, Names: []string{"acme/lib-a"}}, prior)
	if _, pinned := out[libA]; pinned {
		t.Error("expected the named package to be excluded from the pinned set")
	}
	if v, pinned := out[libB]; !pinned || v.String() != "1.0.0" {
		t.Errorf("expected acme/lib-b pinned to 1.0.0, got %v, pinned=%v", v, pinned)
	}

	if out := pinnedVersions(Request{Mode: UpdateAll}, prior); out != nil {
		t.Errorf("expected no pinning outside UpdateSubset, got %v", out)
	}
}
