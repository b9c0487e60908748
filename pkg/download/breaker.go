package download

import (
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// hostBreaker wraps a per-host gobreaker.CircuitBreaker guarding
// download attempts against that host. Five consecutive failures trips
// it open; it cools down for 30s before allowing a single half-open
// probe, per spec.md §4.G's "closed, open with cooldown, half-open"
// state machine. Execute is the single entry point: an open breaker
// rejects the call before it ever runs, and a closed/half-open one
// records the call's own success or failure.
type hostBreaker struct {
	cb *gobreaker.CircuitBreaker[map[string]string]
}

func newHostBreaker(host string) *hostBreaker {
	settings := gobreaker.Settings{
		Name:        host,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &hostBreaker{cb: gobreaker.NewCircuitBreaker[map[string]string](settings)}
}

// ErrCircuitOpen is returned when a host's breaker is currently open.
var ErrCircuitOpen = errors.New("download: circuit open for host")

func (h *hostBreaker) run(fn func() (map[string]string, error)) (map[string]string, error) {
	sums, err := h.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) {
		return nil, ErrCircuitOpen
	}
	return sums, err
}

// breakerRegistry lazily creates one hostBreaker per host, mirroring
// pkg/registry.Actor's per-host rate.Limiter map.
type breakerRegistry struct {
	mu sync.Mutex
	m  map[string]*hostBreaker
}

func (r *breakerRegistry) forURL(rawurl string) *hostBreaker {
	u, err := url.Parse(rawurl)
	if err != nil || u.Host == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.m[u.Host]
	if !ok {
		b = newHostBreaker(u.Host)
		r.m[u.Host] = b
	}
	return b
}
