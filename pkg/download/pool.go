// Package download implements the bounded-concurrency artifact download
// pool (spec.md §4.G): per-artifact tasks resolve a primary URL plus
// configured mirrors behind a per-host circuit breaker, resume partial
// `.part` files via range requests, stream through a multi-algorithm
// hasher and an optional bandwidth throttle, verify every expected
// checksum, and atomically place the finished artifact.
//
// Concurrency admission is grounded on pkg/fetch's driver, which is
// itself grounded on golang-dep/source_manager.go's future-dedup
// pattern — here simplified to a flat task list since, unlike metadata
// discovery, the set of artifacts to download is already fully known
// before the pool starts.
package download

import (
	"context"
	"net/http"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/libretto-pm/libretto/pkg/manifest"
)

// Task is one artifact to place on disk.
type Task struct {
	Package manifest.PackageID
	// URL is the primary source; Mirrors are tried in order after it and
	// after all of them are exhausted per spec.md §4.G's "primary URL,
	// configured mirrors, fallbacks".
	URL     string
	Mirrors []string
	// Dest is the final path the artifact should occupy; the pool
	// stages it at Dest+".part" until every checksum verifies.
	Dest string
	// Expected maps a hash algorithm name ("sha256", "sha1", "blake3")
	// to its expected lowercase hex digest. A task with no entries
	// skips verification entirely (e.g. a dist with no shasum).
	Expected map[string]string
}

// Result is one completed (or failed) Task.
type Result struct {
	Task      Task
	Source    string // the URL that actually succeeded
	Checksums map[string]string
	Err       error
}

// Pool downloads a batch of Tasks with bounded concurrency, per-host
// circuit breaking, and an optional shared bandwidth throttle.
type Pool struct {
	Client *http.Client

	// MaxConcurrent bounds simultaneous artifact downloads; spec.md
	// §4.G's max_concurrent_downloads. Defaults to 5.
	MaxConcurrent int64
	// Throttle, if non-nil, bounds aggregate download bandwidth in
	// bytes/sec across every task sharing this Pool.
	Throttle *rate.Limiter
	// RetryBudget bounds attempts per candidate source before moving to
	// the next mirror. Defaults to 3.
	RetryBudget int

	breakers breakerRegistry
}

// NewPool returns a Pool with spec.md's default concurrency and no
// bandwidth throttle.
func NewPool(client *http.Client) *Pool {
	return &Pool{
		Client:        client,
		MaxConcurrent: 5,
		RetryBudget:   3,
		breakers:      breakerRegistry{m: make(map[string]*hostBreaker)},
	}
}

// Download runs every task, returning one Result per task in the same
// order tasks were given. A task's own error never aborts the others;
// the caller inspects Result.Err per artifact. The returned error is
// always nil: a task that could not be admitted because ctx was
// cancelled carries ctx's error in its own Result.Err.
func (p *Pool) Download(ctx context.Context, tasks []Task) ([]Result, error) {
	max := p.MaxConcurrent
	if max <= 0 {
		max = 5
	}
	sem := semaphore.NewWeighted(max)
	grp, ctx := errgroup.WithContext(ctx)
	results := make([]Result, len(tasks))

	for i, task := range tasks {
		i, task := i, task
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i] = Result{Task: task, Err: err}
			continue
		}
		grp.Go(func() error {
			defer sem.Release(1)
			results[i] = p.downloadOne(ctx, task)
			return nil
		})
	}

	_ = grp.Wait()
	return results, nil
}

// downloadOne tries the primary URL then each mirror in order, skipping
// any whose host has an open circuit breaker, until one succeeds or
// every candidate is exhausted.
func (p *Pool) downloadOne(ctx context.Context, task Task) Result {
	candidates := append([]string{task.URL}, task.Mirrors...)

	var lastErr error
	for _, src := range candidates {
		breaker := p.breakers.forURL(src)
		if breaker == nil {
			lastErr = errInvalidSource(src)
			continue
		}

		sums, err := breaker.run(func() (map[string]string, error) {
			return p.fetchWithRetry(ctx, src, task)
		})
		if err != nil {
			lastErr = err
			continue
		}
		return Result{Task: task, Source: src, Checksums: sums}
	}
	return Result{Task: task, Err: lastErr}
}

func retryBudget(budget int) int {
	if budget <= 0 {
		return 3
	}
	return budget
}
