// Package cache implements the two-tier metadata cache (spec.md §4.C):
// an in-memory LRU tier backed by an on-disk bbolt tree, keyed by a
// content-addressed hash of the cache key and tagged by kind so a whole
// tag can be bulk-invalidated at once.
//
// Grounded on golang-dep/internal/gps/source_cache_bolt.go's bucket
// layout and revision/epoch staleness approach, adapted from a single
// VCS-source cache keyed by revision to a general tagged key/value
// store keyed by a content hash, and from BoltDB to its maintained
// fork go.etcd.io/bbolt.
package cache

import (
	"time"
)

// Tag classifies a cache entry so InvalidateTag can drop a whole kind
// at once (spec.md §4.C: "PackageMetadata, RepositoryIndex,
// SearchResult, SecurityAdvisory, Artifact").
type Tag uint8

const (
	TagPackageMetadata Tag = iota + 1
	TagRepositoryIndex
	TagSearchResult
	TagSecurityAdvisory
	TagArtifact
)

func (t Tag) String() string {
	switch t {
	case TagPackageMetadata:
		return "package-metadata"
	case TagRepositoryIndex:
		return "repository-index"
	case TagSearchResult:
		return "search-result"
	case TagSecurityAdvisory:
		return "security-advisory"
	case TagArtifact:
		return "artifact"
	default:
		return "unknown"
	}
}

// Entry is one cached value plus the staleness metadata the lookup
// path needs to decide whether it is fresh, stale-but-revalidatable, or
// expired outright.
type Entry struct {
	Tag   Tag
	Value []byte

	// StoredAt is when this entry was written.
	StoredAt time.Time
	// TTL is how long the entry is considered fresh with no
	// revalidation; zero means it never expires on TTL alone.
	TTL time.Duration
	// Validator is an opaque string (ETag or Last-Modified) usable for
	// a conditional GET once the entry is past TTL.
	Validator string
}

// Freshness classifies an Entry relative to now, per spec.md §4.C's
// staleness policy: "An entry with a validator is stale but
// revalidatable once past TTL; the cache still returns it to the
// caller but signals [...]".
type Freshness int

const (
	Fresh Freshness = iota
	StaleRevalidatable
	Expired
)

func (e *Entry) freshness(now time.Time) Freshness {
	if e.TTL <= 0 || now.Sub(e.StoredAt) < e.TTL {
		return Fresh
	}
	if e.Validator != "" {
		return StaleRevalidatable
	}
	return Expired
}

// Lookup is the result of Cache.Get: the entry (if any) and its
// freshness classification.
type Lookup struct {
	Entry     *Entry
	Freshness Freshness
	Found     bool
}

// Cache is the two-tier store: reads consult memory first, then disk;
// a disk hit is promoted back into memory (spec.md §4.C).
type Cache struct {
	memory *memoryTier
	disk   *diskTier
}

// Options configures both tiers.
type Options struct {
	// MemoryBytes bounds the in-memory tier; spec.md §4.C's default is
	// 256 MiB.
	MemoryBytes int64
	// DiskPath is the bbolt database file backing the disk tier.
	DiskPath string
}

// Open constructs a Cache with both tiers. The disk tier's bbolt file
// is created if absent.
func Open(opts Options) (*Cache, error) {
	memBytes := opts.MemoryBytes
	if memBytes <= 0 {
		memBytes = 256 << 20
	}
	mem := newMemoryTier(memBytes)

	disk, err := newDiskTier(opts.DiskPath)
	if err != nil {
		return nil, err
	}
	return &Cache{memory: mem, disk: disk}, nil
}

// Close releases the disk tier's file handle.
func (c *Cache) Close() error {
	return c.disk.close()
}

// Key is the content-addressed cache key: callers hash whatever
// uniquely identifies the cached value (registry URL + package name,
// etc.) before calling Get/Put. keyHash joins the parts and hashes
// them with SHA-256.
func Key(parts ...string) string {
	return keyHash(parts)
}

// Get looks up key, consulting memory first, then disk; a disk hit is
// promoted into memory. now is injected by the caller (tests pass a
// fixed clock; production callers pass time.Now()) since this package
// must stay deterministic and Date.now()-free at the boundary callers
// control.
func (c *Cache) Get(now time.Time, key string) Lookup {
	if e, ok := c.memory.get(key); ok {
		return Lookup{Entry: e, Freshness: e.freshness(now), Found: true}
	}
	if e, ok := c.disk.get(key); ok {
		c.memory.put(key, e)
		return Lookup{Entry: e, Freshness: e.freshness(now), Found: true}
	}
	return Lookup{}
}

// Put writes e to both tiers, atomically at the disk tier.
func (c *Cache) Put(key string, e *Entry) error {
	c.memory.put(key, e)
	return c.disk.put(key, e)
}

// InvalidateTag drops every entry of the given tag from both tiers
// (spec.md §4.C's "bulk invalidation by kind").
func (c *Cache) InvalidateTag(tag Tag) error {
	c.memory.invalidateTag(tag)
	return c.disk.invalidateTag(tag)
}

// StaleOrOffline returns e's value for offline-mode fallback: the
// caller explicitly wants the last-known entry regardless of
// freshness, per spec.md's offline-mode stale-entry fallback. It is
// the caller's job to have already tried a live fetch and fallen back
// here; Cache itself never decides offline-ness.
func StaleOrOffline(l Lookup) (*Entry, bool) {
	if !l.Found {
		return nil, false
	}
	return l.Entry, true
}
