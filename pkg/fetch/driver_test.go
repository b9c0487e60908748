package fetch

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/libretto-pm/libretto/pkg/cache"
	"github.com/libretto-pm/libretto/pkg/manifest"
	"github.com/libretto-pm/libretto/pkg/perr"
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

// fakeFetcher serves a fixed in-memory graph and counts calls per
// package, so tests can assert request deduplication actually happened.
type fakeFetcher struct {
	mu      sync.Mutex
	entries map[manifest.PackageID]*manifest.Entry
	calls   map[manifest.PackageID]int
	fail    map[manifest.PackageID]error
	delay   time.Duration
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		entries: map[manifest.PackageID]*manifest.Entry{},
		calls:   map[manifest.PackageID]int{},
		fail:    map[manifest.PackageID]error{},
	}
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
	f.calls[id]++
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.fail[id]; ok {
		return nil, err
	}
	e, ok := f.entries[id]
	if !ok {
		return nil, perr.New(perr.KindNotFound, "fetch: no such package %s", id)
	}
	return e, nil
}

func (f *fakeFetcher) callCount(id manifest.PackageID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func TestFetchDiscoversTransitiveDependencies(t *testing.T) {
	f := newFakeFetcher()
	f.add(t, "acme/app", "1.0.0", "acme/lib-a", "acme/lib-b")
	f.add(t, "acme/lib-a", "1.0.0", "acme/lib-c")
	f.add(t, "acme/lib-b", "1.0.0", "acme/lib-c")
	f.add(t, "acme/lib-c", "1.0.0")

	d := NewDriver(f, nil)
	universe, failures, err := d.Fetch(context.Background(), time.Unix(0, 0), []manifest.PackageID{pid(t, "acme/app")})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(failures) != 0 {
		t.Fatalf("unexpected failures: %+v", failures)
	}
	for _, name := range []string{"acme/app", "acme/lib-a", "acme/lib-b", "acme/lib-c"} {
		if _, ok := universe[pid(t, name)]; !ok {
			t.Errorf("expected %s in universe", name)
		}
	}

	// lib-c is reachable from both lib-a and lib-b; the shared seen-set
	// must fetch it exactly once.
	if n := f.callCount(pid(t, "acme/lib-c")); n != 1 {
		t.Errorf("expected acme/lib-c fetched exactly once, got %d", n)
	}
}

func TestFetchSkipsPlatformRoot(t *testing.T) {
	f := newFakeFetcher()
	d := NewDriver(f, nil)
	universe, _, err := d.Fetch(context.Background(), time.Unix(0, 0), []manifest.PackageID{pid(t, "php")})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(universe) != 0 {
		t.Errorf("expected no fetches for a platform-only root, got %+v", universe)
	}
	if f.callCount(pid(t, "php")) != 0 {
		t.Errorf("platform root should never be fetched")
	}
}

func TestFetchSoftFailureIsRecordedNotFatal(t *testing.T) {
	f := newFakeFetcher()
	f.add(t, "acme/app", "1.0.0", "acme/missing")
	f.fail[pid(t, "acme/missing")] = perr.New(perr.KindNotFound, "fetch: no such package")

	d := NewDriver(f, nil)
	universe, failures, err := d.Fetch(context.Background(), time.Unix(0, 0), []manifest.PackageID{pid(t, "acme/app")})
	if err != nil {
		t.Fatalf("expected a soft failure not to bubble, got %v", err)
	}
	if _, ok := universe[pid(t, "acme/app")]; !ok {
		t.Error("expected the root to still be in the universe")
	}
	if len(failures) != 1 || failures[0].Hard {
		t.Fatalf("expected exactly one soft failure, got %+v", failures)
	}
}

func TestFetchHardFailureBubbles(t *testing.T) {
	f := newFakeFetcher()
	f.add(t, "acme/app", "1.0.0", "acme/down")
	f.fail[pid(t, "acme/down")] = perr.Wrap(perr.KindNetwork, errors.New("boom"), "fetch: request failed")

	d := NewDriver(f, nil)
	_, failures, err := d.Fetch(context.Background(), time.Unix(0, 0), []manifest.PackageID{pid(t, "acme/app")})
	if err == nil {
		t.Fatal("expected a hard failure to bubble as an error")
	}
	hard := false
	for _, fl := range failures {
		if fl.Hard {
			hard = true
		}
	}
	if !hard {
		t.Fatalf("expected a Hard failure recorded, got %+v", failures)
	}
}

func TestFetchHonorsMaxConcurrent(t *testing.T) {
	f := newFakeFetcher()
	f.delay = 20 * time.Millisecond
	roots := make([]manifest.PackageID, 0, 6)
	for i := 0; i < 6; i++ {
		name := "acme/leaf" + string(rune('a'+i))
		f.add(t, name, "1.0.0")
		roots = append(roots, pid(t, name))
	}

	d := NewDriver(f, nil)
	d.MaxConcurrent = 2

	var inFlight int32
	var maxSeen int32
	orig := f
	wrapped := &countingFetcher{inner: orig, inFlight: &inFlight, maxSeen: &maxSeen}
	d.Fetcher = wrapped

	_, _, err := d.Fetch(context.Background(), time.Unix(0, 0), roots)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if maxSeen > 2 {
		t.Errorf("expected at most 2 concurrent fetches, saw %d", maxSeen)
	}
}

type countingFetcher struct {
	inner    EntryFetcher
	inFlight *int32
	maxSeen  *int32
}

func (c *countingFetcher) FetchEntry(ctx context.Context, id manifest.PackageID) (*manifest.Entry, error) {
	n := atomic.AddInt32(c.inFlight, 1)
	for {
		cur := atomic.LoadInt32(c.maxSeen)
		if n <= cur || atomic.CompareAndSwapInt32(c.maxSeen, cur, n) {
			break
		}
	}
	defer atomic.AddInt32(c.inFlight, -1)
	return c.inner.FetchEntry(ctx, id)
}

func TestFetchCancellation(t *testing.T) {
	f := newFakeFetcher()
	f.delay = time.Second
	f.add(t, "acme/app", "1.0.0")

	d := NewDriver(f, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	_, _, _ = d.Fetch(ctx, time.Unix(0, 0), []manifest.PackageID{pid(t, "acme/app")})
	if time.Since(start) > 200*time.Millisecond {
		t.Error("expected cancellation to abort promptly rather than waiting out the fetch delay")
	}
}

func TestFetchUsesCache(t *testing.T) {
	dir := t.TempDir()
	c, err := cache.Open(cache.Options{DiskPath: dir + "/cache.db"})
	if err != nil {
		t.Fatalf("cache.Open: %v", err)
	}
	defer c.Close()

	f := newFakeFetcher()
	f.add(t, "acme/app", "1.0.0")

	d := NewDriver(f, c)
	now := time.Unix(1700000000, 0)

	if _, _, err := d.Fetch(context.Background(), now, []manifest.PackageID{pid(t, "acme/app")}); err != nil {
		t.Fatalf("first Fetch: %v", err)
	}
	if n := f.callCount(pid(t, "acme/app")); n != 1 {
		t.Fatalf("expected one live fetch, got %d", n)
	}

	// A second Fetch within the TTL window should be served entirely
	// from cache with no further registry calls.
	if _, _, err := d.Fetch(context.Background(), now.Add(time.Minute), []manifest.PackageID{pid(t, "acme/app")}); err != nil {
		t.Fatalf("second Fetch: %v", err)
	}
	if n := f.callCount(pid(t, "acme/app")); n != 1 {
		t.Errorf("expected cache hit to avoid a second live fetch, got %d calls", n)
	}
}
