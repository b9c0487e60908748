package cache

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	dir := t.TempDir()
	c, err := Open(Options{DiskPath: filepath.Join(dir, "cache.db")})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestPutGetRoundTrip(t *testing.T) {
	c := openTestCache(t)
	now := time.Unix(1700000000, 0)

	key := Key("https://packagist.org", "a/b")
	if err := c.Put(key, &Entry{Tag: TagPackageMetadata, Value: []byte("payload"), StoredAt: now}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	lookup := c.Get(now, key)
	if !lookup.Found {
		t.Fatal("expected a hit after Put")
	}
	if string(lookup.Entry.Value) != "payload" {
		t.Errorf("unexpected value: %s", lookup.Entry.Value)
	}
	if lookup.Freshness != Fresh {
		t.Errorf("expected Fresh, got %v", lookup.Freshness)
	}
}

func TestDiskHitPromotesToMemory(t *testing.T) {
	c := openTestCache(t)
	now := time.Unix(1700000000, 0)
	key := Key("a/b")

	// write directly to disk, bypassing memory, to simulate a
	// cold-process restart where only the disk tier is populated
	if err := c.disk.put(key, &Entry{Tag: TagPackageMetadata, Value: []byte("v1"), StoredAt: now}); err != nil {
		t.Fatalf("disk.put: %v", err)
	}
	if _, ok := c.memory.get(key); ok {
		t.Fatal("memory should be empty before the first Get")
	}

	lookup := c.Get(now, key)
	if !lookup.Found {
		t.Fatal("expected a disk hit")
	}
	if _, ok := c.memory.get(key); !ok {
		t.Error("expected the disk hit to be promoted into memory")
	}
}

func TestStalenessClassification(t *testing.T) {
	c := openTestCache(t)
	stored := time.Unix(1700000000, 0)
	key := Key("a/b")

	if err := c.Put(key, &Entry{
		Tag: TagPackageMetadata, Value: []byte("v1"),
		StoredAt: stored, TTL: time.Minute, Validator: `"etag-1"`,
	}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	fresh := c.Get(stored.Add(30*time.Second), key)
	if fresh.Freshness != Fresh {
		t.Errorf("expected Fresh within TTL, got %v", fresh.Freshness)
	}

	stale := c.Get(stored.Add(2*time.Minute), key)
	if !stale.Found {
		t.Fatal("expected a stale-but-present entry past TTL")
	}
	if stale.Freshness != StaleRevalidatable {
		t.Errorf("expected StaleRevalidatable (has a validator), got %v", stale.Freshness)
	}
}

func TestExpiredWithoutValidator(t *testing.T) {
	c := openTestCache(t)
	stored := time.Unix(1700000000, 0)
	key := Key("a/b")

	if err := c.Put(key, &Entry{
		Tag: TagPackageMetadata, Value: []byte("v1"), StoredAt: stored, TTL: time.Minute,
	}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	expired := c.Get(stored.Add(2*time.Minute), key)
	if expired.Freshness != Expired {
		t.Errorf("expected Expired with no validator, got %v", expired.Freshness)
	}
}

func TestInvalidateTagDropsOnlyThatTag(t *testing.T) {
	c := openTestCache(t)
	now := time.Unix(1700000000, 0)

	metaKey := Key("meta", "a/b")
	artifactKey := Key("artifact", "a/b-1.0.0.zip")
	c.Put(metaKey, &Entry{Tag: TagPackageMetadata, Value: []byte("m"), StoredAt: now})
	c.Put(artifactKey, &Entry{Tag: TagArtifact, Value: []byte("a"), StoredAt: now})

	if err := c.InvalidateTag(TagPackageMetadata); err != nil {
		t.Fatalf("InvalidateTag: %v", err)
	}

	if c.Get(now, metaKey).Found {
		t.Error("expected package-metadata entry to be gone")
	}
	if !c.Get(now, artifactKey).Found {
		t.Error("expected artifact entry to survive invalidating a different tag")
	}
}
