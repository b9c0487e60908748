package download

import (
	"context"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/zeebo/blake3"

	internalfs "github.com/libretto-pm/libretto/internal/fs"
	"github.com/libretto-pm/libretto/pkg/perr"
)

// fetchWithRetry performs src→task.Dest with exponential-backoff-and-
// jitter retry around network-level failures; a checksum mismatch is
// permanent (spec.md §4.G: "mismatch is a hard error ... do not retry
// same URL") and is never retried within this call.
func (p *Pool) fetchWithRetry(ctx context.Context, src string, task Task) (map[string]string, error) {
	var sums map[string]string

	bo := backoff.WithContext(retryBackoff(retryBudget(p.RetryBudget)), ctx)
	op := func() error {
		s, err := p.attemptOnce(ctx, src, task)
		if err != nil {
			switch perr.KindOf(err) {
			case perr.KindIntegrity, perr.KindNotFound, perr.KindInput:
				// A checksum mismatch, a 404, and a malformed request
				// are all permanent for this source: retrying the exact
				// same URL cannot change the outcome.
				return backoff.Permanent(err)
			}
			return err
		}
		sums = s
		return nil
	}

	if err := backoff.Retry(op, bo); err != nil {
		return nil, err
	}
	return sums, nil
}

func retryBackoff(budget int) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.Multiplier = 2
	b.RandomizationFactor = 0.3
	b.MaxInterval = 15 * time.Second
	return backoff.WithMaxRetries(b, uint64(budget-1))
}

// attemptOnce performs one end-to-end transfer attempt: it re-stats the
// `.part` file fresh every call, so a retry naturally resumes from
// wherever the previous attempt left off rather than restarting.
func (p *Pool) attemptOnce(ctx context.Context, src string, task Task) (map[string]string, error) {
	partPath := task.Dest + ".part"

	offset := int64(0)
	if info, err := os.Stat(partPath); err == nil {
		offset = info.Size()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, perr.Wrap(perr.KindInput, err, "download: build request for %s", src)
	}
	if offset > 0 {
		req.Header.Set("Range", "bytes="+strconv.FormatInt(offset, 10)+"-")
	}

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, perr.Wrap(perr.KindNetwork, err, "download: request %s", src)
	}
	defer resp.Body.Close()

	resuming := false
	switch resp.StatusCode {
	case http.StatusOK:
		// Full response; the server does not support range resume, or
		// this is the first attempt. Discard any partial bytes already
		// on disk and restart from zero.
		offset = 0
	case http.StatusPartialContent:
		resuming = true
	case http.StatusRequestedRangeNotSatisfiable:
		// The .part file is already complete (or stale past the
		// server's current representation); re-fetch from scratch.
		offset = 0
		req.Header.Del("Range")
		resp.Body.Close()
		resp, err = client.Do(req)
		if err != nil {
			return nil, perr.Wrap(perr.KindNetwork, err, "download: retry request %s", src)
		}
		defer resp.Body.Close()
	default:
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, perr.New(perr.KindNetwork, "download: %s responded %s", src, resp.Status)
		}
		return nil, perr.New(perr.KindNotFound, "download: %s responded %s", src, resp.Status)
	}

	if err := os.MkdirAll(filepath.Dir(partPath), 0o755); err != nil {
		return nil, perr.Wrap(perr.KindIntegrity, err, "download: create destination directory")
	}

	flags := os.O_WRONLY | os.O_CREATE
	if resuming {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(partPath, flags, 0o644)
	if err != nil {
		return nil, perr.Wrap(perr.KindIntegrity, err, "download: open %s", partPath)
	}

	hashers := newMultiHasher()
	var body io.Reader = resp.Body
	if p.Throttle != nil {
		body = &throttledReader{ctx: ctx, r: resp.Body, limiter: p.Throttle}
	}

	_, copyErr := io.Copy(io.MultiWriter(writersFor(f, hashers)...), body)
	closeErr := f.Close()
	if copyErr != nil {
		return nil, perr.Wrap(perr.KindNetwork, copyErr, "download: streaming %s", src)
	}
	if closeErr != nil {
		return nil, perr.Wrap(perr.KindIntegrity, closeErr, "download: closing %s", partPath)
	}

	// Hashers only saw the bytes from *this* attempt, not any bytes
	// resumed from a prior attempt; a resumed download must be rehashed
	// over the full file before verification.
	sums, err := sumsOverFile(partPath, hashers, resuming)
	if err != nil {
		return nil, err
	}

	if mismatch := verifyChecksums(task.Expected, sums); mismatch != "" {
		os.Remove(partPath)
		return nil, perr.New(perr.KindIntegrity, "download: checksum mismatch for %s (%s)", task.Dest, mismatch)
	}

	if err := internalfs.RenameWithFallback(partPath, task.Dest); err != nil {
		return nil, perr.Wrap(perr.KindIntegrity, err, "download: placing %s", task.Dest)
	}
	return sums, nil
}

// writersFor builds io.MultiWriter's fan-out: the staged file plus
// every hasher, so each streamed chunk is written and hashed in one pass.
func writersFor(f io.Writer, hashers map[string]hash.Hash) []io.Writer {
	out := make([]io.Writer, 0, len(hashers)+1)
	out = append(out, f)
	for _, h := range hashers {
		out = append(out, h)
	}
	return out
}

func newMultiHasher() map[string]hash.Hash {
	return map[string]hash.Hash{
		"sha256": sha256.New(),
		"sha1":   sha1.New(),
		"blake3": blake3.New(),
	}
}

// sumsOverFile returns the hex digest of every algorithm. When the
// write was a resume (append), the in-memory hashers only summed the
// newly-appended bytes, so this rehashes the whole file from disk to
// get a digest over its full contents.
func sumsOverFile(path string, hashers map[string]hash.Hash, wasAppend bool) (map[string]string, error) {
	if !wasAppend {
		out := make(map[string]string, len(hashers))
		for algo, h := range hashers {
			out[algo] = hex.EncodeToString(h.Sum(nil))
		}
		return out, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, perr.Wrap(perr.KindIntegrity, err, "download: reopen %s for full-file hash", path)
	}
	defer f.Close()

	full := newMultiHasher()
	writers := make([]io.Writer, 0, len(full))
	for _, h := range full {
		writers = append(writers, h)
	}
	if _, err := io.Copy(io.MultiWriter(writers...), f); err != nil {
		return nil, perr.Wrap(perr.KindIntegrity, err, "download: hashing %s", path)
	}
	out := make(map[string]string, len(full))
	for algo, h := range full {
		out[algo] = hex.EncodeToString(h.Sum(nil))
	}
	return out, nil
}

// verifyChecksums returns a human-readable description of the first
// mismatch found, or "" if every expected algorithm's digest matched
// (an algorithm the task didn't request is simply ignored).
func verifyChecksums(expected, actual map[string]string) string {
	for algo, want := range expected {
		got, ok := actual[algo]
		if !ok {
			continue
		}
		if !equalFoldHex(got, want) {
			return fmt.Sprintf("%s: expected %s, got %s", algo, want, got)
		}
	}
	return ""
}

func equalFoldHex(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'F' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'F' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
