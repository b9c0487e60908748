package vcs

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sync"

	"github.com/libretto-pm/libretto/pkg/perr"
)

// ReferenceCache is a content-addressed directory of bare git clones,
// one per remote URL, that accelerates repeat clones of the same
// dependency via `git clone --reference` (spec.md §4.I, grounded on
// golang-dep's crepo/repo cache: a mutex-guarded vcs.Repo plus a
// "synced" flag tracking whether it has been updated this run).
type ReferenceCache struct {
	root string

	mu    sync.Mutex
	repos map[string]*cachedRepo
}

type cachedRepo struct {
	mu     sync.Mutex
	path   string
	synced bool
}

// NewReferenceCache roots the cache at dir (cmd/libretto passes the
// "vcs-refs" subdirectory of the cache directory).
func NewReferenceCache(dir string) *ReferenceCache {
	return &ReferenceCache{root: dir, repos: make(map[string]*cachedRepo)}
}

// pathFor returns the bare-clone directory for url, content-addressed
// so two remotes never collide regardless of how their URLs are
// spelled on disk.
func (c *ReferenceCache) pathFor(url string) string {
	sum := sha256.Sum256([]byte(url))
	return filepath.Join(c.root, hex.EncodeToString(sum[:])+".git")
}

// entry returns the cachedRepo tracking url, creating it on first use.
func (c *ReferenceCache) entry(url string) *cachedRepo {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.repos[url]
	if !ok {
		r = &cachedRepo{path: c.pathFor(url)}
		c.repos[url] = r
	}
	return r
}

// ensure makes sure the bare reference clone for url exists and has
// been fetched at least once this run, creating it via mirrorFn (a
// `git clone --mirror` invocation) when it is not on disk, or else
// fetching via updateFn on the first call of the run only; later calls
// within the same run reuse it without fetching, mirroring golang-dep's ensureCacheExistence/crepo.synced pattern.
func (c *ReferenceCache) ensure(url string, mirrorFn, updateFn func(path string) error) (string, error) {
	entry := c.entry(url)
	entry.mu.Lock()
	defer entry.mu.Unlock()

	if _, err := os.Stat(entry.path); err != nil {
		if !os.IsNotExist(err) {
			return "", perr.Wrap(perr.KindIntegrity, err, "vcs: stat reference cache %s", entry.path)
		}
		if err := os.MkdirAll(filepath.Dir(entry.path), 0o755); err != nil {
			return "", perr.Wrap(perr.KindIntegrity, err, "vcs: create reference cache dir")
		}
		if err := mirrorFn(entry.path); err != nil {
			return "", err
		}
		entry.synced = true
		return entry.path, nil
	}

	if !entry.synced {
		if err := updateFn(entry.path); err != nil {
			return "", err
		}
		entry.synced = true
	}
	return entry.path, nil
}
