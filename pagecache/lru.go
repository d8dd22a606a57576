package pagecache

import "github.com/tsawler/lectern/source"

// lruCache tracks cached page handles in recency order. The most
// recently used entry sits at the front, eviction takes from the back.
type lruCache struct {
	entries     map[int]*cacheEntry
	first, last *cacheEntry
}

type cacheEntry struct {
	prev, next *cacheEntry
	key        int
	page       source.Page
}

func newLRU() *lruCache {
	return &lruCache{entries: make(map[int]*cacheEntry)}
}

func (l *lruCache) len() int { return len(l.entries) }

// put stores a handle and returns any handle it displaced for the same
// key so the caller can release it.
func (l *lruCache) put(key int, page source.Page) source.Page {
	if ent, ok := l.entries[key]; ok {
		old := ent.page
		ent.page = page
		l.moveToFront(ent)
		return old
	}

	ent := &cacheEntry{key: key, page: page}
	l.entries[key] = ent
	l.moveToFront(ent)
	return nil
}

// get returns the handle for key and marks it recently used.
func (l *lruCache) get(key int) (source.Page, bool) {
	ent, ok := l.entries[key]
	if !ok {
		return nil, false
	}
	l.moveToFront(ent)
	return ent.page, true
}

// peek reports presence without touching recency order.
func (l *lruCache) peek(key int) bool {
	_, ok := l.entries[key]
	return ok
}

// remove unlinks key and returns its handle, or nil if absent.
func (l *lruCache) remove(key int) source.Page {
	ent, ok := l.entries[key]
	if !ok {
		return nil
	}
	l.unlink(ent)
	delete(l.entries, key)
	return ent.page
}

// removeLast evicts the least recently used entry, skipping keys for
// which keep returns true. It returns the evicted key and handle, or
// (0, nil) when nothing is evictable.
func (l *lruCache) removeLast(keep func(key int) bool) (int, source.Page) {
	for ent := l.last; ent != nil; ent = ent.prev {
		if keep != nil && keep(ent.key) {
			continue
		}
		l.unlink(ent)
		delete(l.entries, ent.key)
		return ent.key, ent.page
	}
	return 0, nil
}

// keys returns the cached keys in no particular order.
func (l *lruCache) keys() []int {
	out := make([]int, 0, len(l.entries))
	for k := range l.entries {
		out = append(out, k)
	}
	return out
}

func (l *lruCache) moveToFront(ent *cacheEntry) {
	if ent == l.first {
		return
	}
	l.unlink(ent)

	ent.prev = nil
	ent.next = l.first
	if l.first != nil {
		l.first.prev = ent
	}
	l.first = ent
	if l.last == nil {
		l.last = ent
	}
}

func (l *lruCache) unlink(ent *cacheEntry) {
	if ent.prev != nil {
		ent.prev.next = ent.next
	}
	if ent.next != nil {
		ent.next.prev = ent.prev
	}
	if ent == l.first {
		l.first = ent.next
	}
	if ent == l.last {
		l.last = ent.prev
	}
	ent.prev = nil
	ent.next = nil
}
