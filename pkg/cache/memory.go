package cache

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// memoryTier is the in-memory LRU tier, bounded by approximate byte
// size rather than entry count since cached values (package metadata
// blobs, search results) vary wildly in size.
type memoryTier struct {
	mu        sync.Mutex
	maxBytes  int64
	curBytes  int64
	lru       *lru.Cache[string, *Entry]
}

// newMemoryTier builds an LRU sized generously on entry count (bbolt
// entries are small JSON/gob blobs in practice); maxBytes is enforced
// separately by evicting the oldest entries once curBytes exceeds it,
// mirroring golang-lru's own eviction callback hook.
func newMemoryTier(maxBytes int64) *memoryTier {
	t := &memoryTier{maxBytes: maxBytes}
	c, _ := lru.NewWithEvict[string, *Entry](1<<20, func(_ string, e *Entry) {
		t.curBytes -= int64(len(e.Value))
	})
	t.lru = c
	return t
}

func (t *memoryTier) get(key string) (*Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lru.Get(key)
}

func (t *memoryTier) put(key string, e *Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if old, ok := t.lru.Peek(key); ok {
		t.curBytes -= int64(len(old.Value))
	}
	t.lru.Add(key, e)
	t.curBytes += int64(len(e.Value))

	for t.curBytes > t.maxBytes && t.lru.Len() > 0 {
		_, _, ok := t.lru.RemoveOldest()
		if !ok {
			break
		}
	}
}

func (t *memoryTier) invalidateTag(tag Tag) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, key := range t.lru.Keys() {
		if e, ok := t.lru.Peek(key); ok && e.Tag == tag {
			t.lru.Remove(key)
		}
	}
}
