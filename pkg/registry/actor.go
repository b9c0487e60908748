// Package registry implements the host-scoped HTTP actor shared by every
// repository client, and the Packagist-wire registry client built on
// top of it.
//
// Grounded on MaxSukhanov-git_pkgs_registries/internal/packagist/
// packagist.go for the registry wire shapes (packageResponse/
// versionInfo/sourceInfo/distInfo), and on Dalee-comrade-pavlik2's
// pkg/registry/composer.go for the "thin wrapper translating to
// provider REST paths" shape VCS-provider clients use.
package registry

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/libretto-pm/libretto/pkg/perr"
)

// CredentialSource is consulted by host before every request, per
// spec.md §4.B's "auth injection: before send, the credential broker is
// consulted by host." It is satisfied by pkg/credential.Broker;
// declared here rather than imported from there to avoid a dependency
// cycle (the credential broker in turn needs no knowledge of HTTP).
type CredentialSource interface {
	// Authorize sets whatever header(s) are appropriate for host on req,
	// returning ok=false if no credential is configured for it.
	Authorize(req *http.Request, host string) (ok bool)
}

// Actor is the shared per-host HTTP execution policy: rate limiting,
// conditional GET support, retry-with-backoff, and auth injection.
// One Actor is shared by every repository/VCS-provider client.
type Actor struct {
	Client      *http.Client
	Credentials CredentialSource

	// RequestsPerSecond is the default per-host token-bucket rate,
	// spec.md §4.B's "default 20 req/s, configurable."
	RequestsPerSecond float64
	Burst             int
	RetryBudget       int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewActor returns an Actor configured with spec.md's stated defaults.
func NewActor(client *http.Client, creds CredentialSource) *Actor {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Actor{
		Client:            client,
		Credentials:       creds,
		RequestsPerSecond: 20,
		Burst:             20,
		RetryBudget:       3,
		limiters:          map[string]*rate.Limiter{},
	}
}

func (a *Actor) limiterFor(host string) *rate.Limiter {
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Limit(a.RequestsPerSecond), a.Burst)
		a.limiters[host] = l
	}
	return l
}

// Do executes req with rate limiting, auth injection, conditional-GET
// passthrough, and exponential-backoff-with-jitter retry on 5xx, 429,
// and transport errors (spec.md §4.B). The caller owns closing the
// returned response body.
func (a *Actor) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	host := req.URL.Host
	if err := a.limiterFor(host).Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "registry: rate limiter wait")
	}
	if a.Credentials != nil {
		a.Credentials.Authorize(req, host)
	}

	bo := &retryAfterBackoff{BackOff: backoff.WithContext(retryPolicy(), ctx)}
	attempts := 0
	var resp *http.Response

	op := func() error {
		attempts++
		var err error
		resp, err = a.Client.Do(req.Clone(ctx))
		if err != nil {
			if attempts >= a.effectiveBudget() {
				return backoff.Permanent(perr.Wrap(perr.KindNetwork, err, "registry: request failed"))
			}
			return err
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
			resp.Body.Close()
			if attempts >= a.effectiveBudget() {
				return backoff.Permanent(perr.New(perr.KindNetwork,
					"registry: exhausted retry budget, last status "+resp.Status))
			}
			bo.next = retryAfter
			return errors.Errorf("registry: retryable status %s", resp.Status)
		}
		return nil
	}

	err := backoff.Retry(op, bo)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (a *Actor) effectiveBudget() int {
	if a.RetryBudget <= 0 {
		return 3
	}
	return a.RetryBudget
}

// retryPolicy builds the exponential-backoff-with-jitter schedule used
// for every retryable request.
func retryPolicy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.Multiplier = 2
	b.RandomizationFactor = 0.3
	b.MaxInterval = 10 * time.Second
	return b
}

// retryAfterBackoff overrides the next computed interval when the prior
// attempt set next (a server-requested Retry-After), per spec.md's "429
// honors Retry-After."
type retryAfterBackoff struct {
	backoff.BackOff
	next time.Duration
}

func (r *retryAfterBackoff) NextBackOff() time.Duration {
	if r.next > 0 {
		d := r.next
		r.next = 0
		return d
	}
	return r.BackOff.NextBackOff()
}

func parseRetryAfter(h string) time.Duration {
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(h); err == nil {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		return time.Until(t)
	}
	return 0
}

