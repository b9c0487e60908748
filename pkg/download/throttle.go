package download

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// throttledReader wraps an io.Reader, consuming limiter tokens
// proportional to bytes actually read so a download never exceeds the
// configured aggregate bandwidth. Grounded on the same token-bucket
// primitive pkg/registry's Actor uses for per-host request pacing
// (golang.org/x/time/rate), applied here to bytes instead of requests —
// the shape a-h-depot's S3 transfer manager gets from the AWS SDK for
// free, reimplemented manually since no SDK is in play for generic
// HTTP.
type throttledReader struct {
	ctx     context.Context
	r       io.Reader
	limiter *rate.Limiter
}

func (t *throttledReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if n > 0 {
		if werr := t.wait(n); werr != nil {
			return n, werr
		}
	}
	return n, err
}

// wait consumes n tokens, split into burst-sized chunks since
// rate.Limiter.WaitN rejects any single request larger than the
// limiter's burst size and io.Copy's read buffer can easily exceed a
// deliberately small throttle burst.
func (t *throttledReader) wait(n int) error {
	burst := t.limiter.Burst()
	if burst <= 0 {
		burst = n
	}
	for n > 0 {
		chunk := n
		if chunk > burst {
			chunk = burst
		}
		if err := t.limiter.WaitN(t.ctx, chunk); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}
