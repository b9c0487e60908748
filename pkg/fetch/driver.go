// Package fetch implements the streaming fetch driver (spec.md §4.D):
// starting from the root requirements, it discovers and fetches every
// reachable package with bounded concurrent in-flight requests and
// request deduplication, assembling a manifest.Universe for the solver.
//
// The dedup mechanism is grounded on golang-dep's source_manager.go
// deducePathAndProcess: a shared map from name to an in-flight "future"
// that later callers wait on instead of re-fetching, generalized here
// from a map[path]*unifiedFuture of source futures to a
// map[PackageID]*future of registry entries. Concurrency admission is
// grounded on the same file's goroutine-per-discovery shape but
// expressed with golang.org/x/sync/errgroup and
// golang.org/x/sync/semaphore instead of hand-rolled channels, since
// errgroup already gives first-error propagation and cooperative
// ctx-cancellation for free.
package fetch

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/libretto-pm/libretto/pkg/cache"
	"github.com/libretto-pm/libretto/pkg/manifest"
	"github.com/libretto-pm/libretto/pkg/perr"
)

// EntryFetcher is the narrow registry dependency the driver needs: given
// a package id, return its full version history. pkg/registry.Client
// satisfies this; the driver never imports pkg/registry directly so
// tests can supply a fake.
type EntryFetcher interface {
	FetchEntry(ctx context.Context, id manifest.PackageID) (*manifest.Entry, error)
}

// Failure records one package's fetch failure. Hard failures bubble to
// the orchestrator; soft failures are recorded in the universe result
// and otherwise swallowed, per spec.md §4.D step 2.d.
type Failure struct {
	Package manifest.PackageID
	Err     error
	Hard    bool
}

// Driver runs the streaming fetch algorithm against a single registry
// fetcher, backed by a metadata cache.
type Driver struct {
	Fetcher EntryFetcher
	Cache   *cache.Cache

	// MaxConcurrent bounds in-flight fetch requests; spec.md §4.D's
	// "Admit requests from pending up to max_concurrent". Defaults to 10.
	MaxConcurrent int64
	// CacheTTL is the freshness window written into every cache.Entry
	// this driver stores; spec.md §4.C leaves the exact duration to the
	// caller per entry kind.
	CacheTTL time.Duration
}

// NewDriver returns a Driver with spec.md's default concurrency.
func NewDriver(f EntryFetcher, c *cache.Cache) *Driver {
	return &Driver{Fetcher: f, Cache: c, MaxConcurrent: 10, CacheTTL: 10 * time.Minute}
}

type future struct {
	done  chan struct{}
	entry *manifest.Entry
	err   error
}

// session is the per-Fetch mutable state shared across the goroutines
// spawned for one driver run; Driver itself stays stateless and
// reusable across concurrent Fetch calls.
type session struct {
	d   *Driver
	now time.Time
	sem *semaphore.Weighted
	grp *errgroup.Group

	mu       sync.Mutex
	futures  map[manifest.PackageID]*future
	universe manifest.Universe
	failures []Failure
}

// Fetch discovers and fetches every package reachable from roots,
// returning the assembled universe and any failures recorded along the
// way. now is injected (rather than read from time.Now internally) so
// the cache freshness check stays deterministic under test, matching
// pkg/cache's own now-as-parameter convention.
//
// Fetch returns a non-nil error only when a hard failure occurred on a
// root-reachable package; the partial universe and the full failure
// list (hard and soft) are always returned alongside it so a caller can
// inspect what did complete.
func (d *Driver) Fetch(ctx context.Context, now time.Time, roots []manifest.PackageID) (manifest.Universe, []Failure, error) {
	max := d.MaxConcurrent
	if max <= 0 {
		max = 10
	}
	grp, ctx := errgroup.WithContext(ctx)
	s := &session{
		d:        d,
		now:      now,
		sem:      semaphore.NewWeighted(max),
		grp:      grp,
		futures:  make(map[manifest.PackageID]*future),
		universe: manifest.Universe{},
	}

	// Seed pending with the root requirement names minus platform
	// pseudo-packages (spec.md §4.D step 1); transitive discovery is
	// kicked off as each root's fetch completes rather than waiting for
	// every root to finish first, so a package reachable from two roots
	// is still only ever fetched once via the futures map below.
	for _, id := range roots {
		if manifest.IsPlatform(id.String()) {
			continue
		}
		id := id
		s.spawn(ctx, id)
	}

	err := grp.Wait()
	if err != nil {
		return s.universe, s.failures, err
	}
	return s.universe, s.failures, nil
}

// spawn admits id into the in-flight set (subject to s.sem's
// MaxConcurrent bound) and recursively spawns its dependencies as soon
// as they are discovered, if not already seen. It is a no-op if id is
// already in flight or already fetched, giving the shared seen-set
// dedup spec.md §4.D calls for.
func (s *session) spawn(ctx context.Context, id manifest.PackageID) {
	s.mu.Lock()
	if _, seen := s.futures[id]; seen {
		s.mu.Unlock()
		return
	}
	f := &future{done: make(chan struct{})}
	s.futures[id] = f
	s.mu.Unlock()

	s.grp.Go(func() error {
		defer close(f.done)

		if err := s.sem.Acquire(ctx, 1); err != nil {
			f.err = err
			return nil
		}
		defer s.sem.Release(1)

		entry, err := s.fetchOne(ctx, id)
		if err != nil {
			f.err = err
			hard := isHardFailure(err)
			s.mu.Lock()
			s.failures = append(s.failures, Failure{Package: id, Err: err, Hard: hard})
			s.mu.Unlock()
			if hard {
				return err
			}
			return nil
		}

		f.entry = entry
		s.mu.Lock()
		s.universe[id] = entry
		s.mu.Unlock()

		for _, dep := range dependencyNames(entry) {
			if manifest.IsPlatform(dep.String()) {
				continue
			}
			s.spawn(ctx, dep)
		}
		return nil
	})
}

// dependencyNames collects every dependency name mentioned by any
// version of entry (spec.md §4.D step 2.c: "for each dependency name
// mentioned by any of its versions"), deduplicated within this single
// entry before the caller deduplicates again against the shared
// seen-set.
func dependencyNames(entry *manifest.Entry) []manifest.PackageID {
	seen := make(map[manifest.PackageID]struct{})
	var out []manifest.PackageID
	for _, v := range entry.Versions {
		for id := range v.Requires {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

// isHardFailure classifies a fetch error per spec.md §4.D step 2.d: a
// hard failure is a timeout or a 5xx surviving the registry actor's own
// retry budget. A KindNotFound (no such package) or KindAuth is soft:
// it is recorded but does not by itself abort the whole universe fetch.
func isHardFailure(err error) bool {
	switch perr.KindOf(err) {
	case perr.KindNetwork:
		return true
	default:
		return false
	}
}
