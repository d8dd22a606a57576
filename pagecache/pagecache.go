// Package pagecache keeps a bounded set of page handles warm around the
// reading position.
//
// Pages load lazily: nothing is fetched until the window around the
// current page is declared with SetVisibleWindow, and only pages inside
// the window are fetched. Fetches run on a fixed-size pool, are never
// issued twice for a page that is cached or already in flight, and are
// never cancelled once started. A fetch that completes after its page
// has left the window is discarded; the page is fetched again if the
// window returns. Handles further than twice the buffer radius from the
// window centre are evicted in least-recently-used order, while page
// dimensions learned from any handle are retained for the lifetime of
// the manager.
package pagecache

import (
	"context"
	"sync"

	"github.com/tsawler/lectern/geom"
	"github.com/tsawler/lectern/logging"
	"github.com/tsawler/lectern/source"
)

// Mapper resolves visual indices to original indices. pageorder.Model
// satisfies it.
type Mapper interface {
	Len() int
	ToOriginal(visual int) (int, error)
}

// Dims is the intrinsic geometry of a page, recorded the first time a
// handle is obtained and kept even after the handle is evicted.
type Dims struct {
	Size     geom.Size
	Rotation geom.Rotation
}

// EffectiveSize returns the size as displayed, with width and height
// swapped when the page's intrinsic rotation is 90 or 270 degrees.
func (d Dims) EffectiveSize() geom.Size {
	if d.Rotation.Swaps() {
		return d.Size.Swapped()
	}
	return d.Size
}

// Config tunes the manager.
type Config struct {
	// Workers bounds the number of concurrent page fetches. Zero or
	// negative means DefaultWorkers.
	Workers int
	// MaxPages is a hard cap on cached handles, enforced in LRU order
	// on top of the window rule. Zero means no cap.
	MaxPages int
}

// DefaultWorkers is the fetch pool size when Config.Workers is unset.
const DefaultWorkers = 4

// Stats is a point-in-time snapshot of cache activity.
type Stats struct {
	Loaded   int
	InFlight int
	Hits     uint64
	Misses   uint64
	Stale    uint64
	Evicted  uint64
	Failed   uint64
}

// Manager caches page handles by original index.
//
// The manager is safe for concurrent use, but the Mapper is read only
// while computing windows: callers that mutate the page order must call
// SetVisibleWindow again afterwards, from the same goroutine that
// mutated it, so stale pages fall out of the window.
type Manager struct {
	doc source.Document
	ord Mapper
	log logging.Logger

	maxPages int
	sem      chan struct{}
	wg       sync.WaitGroup

	mu       sync.Mutex
	cache    *lruCache
	dims     map[int]Dims
	inflight map[int]struct{}
	wanted   map[int]struct{}
	retain   map[int]struct{}
	closed   bool

	hits, misses, stale, evicted, failed uint64
}

// New creates a manager over doc using ord to translate window
// positions. A nil log discards messages.
func New(doc source.Document, ord Mapper, cfg Config, log logging.Logger) *Manager {
	workers := cfg.Workers
	if workers < 1 {
		workers = DefaultWorkers
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Manager{
		doc:      doc,
		ord:      ord,
		log:      log,
		maxPages: cfg.MaxPages,
		sem:      make(chan struct{}, workers),
		cache:    newLRU(),
		dims:     make(map[int]Dims),
		inflight: make(map[int]struct{}),
		wanted:   make(map[int]struct{}),
		retain:   make(map[int]struct{}),
	}
}

// SetVisibleWindow declares the reading position. The wanted set
// becomes the visual range [center-radius, center+radius] mapped to
// original indices and clipped to the current page order; fetches are
// issued for wanted pages that are neither cached nor in flight, centre
// first. Cached handles outside twice the radius are evicted. Out of
// range centres are clamped, so the call cannot fail.
func (m *Manager) SetVisibleWindow(ctx context.Context, centerVisual, radius int) {
	n := m.ord.Len()
	if radius < 0 {
		radius = 0
	}
	if centerVisual < 1 {
		centerVisual = 1
	}
	if centerVisual > n {
		centerVisual = n
	}

	var order []int
	wanted := make(map[int]struct{})
	retain := make(map[int]struct{})
	if n > 0 {
		order = m.windowOriginals(centerVisual, radius, n, wanted)
		m.windowOriginals(centerVisual, 2*radius, n, retain)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.wanted = wanted
	m.retain = retain
	m.evictLocked()

	launch := order[:0]
	for _, o := range order {
		if m.cache.peek(o) {
			continue
		}
		if _, busy := m.inflight[o]; busy {
			continue
		}
		m.inflight[o] = struct{}{}
		launch = append(launch, o)
	}
	m.wg.Add(len(launch))
	m.mu.Unlock()

	for _, o := range launch {
		go m.fetch(ctx, o)
	}
}

// EnsureLoaded requests specific original indices outside the normal
// window flow, for example ahead of a jump. The pages are added to the
// wanted and retained sets until the next SetVisibleWindow replaces
// them. Duplicate, cached and in-flight indices are ignored.
func (m *Manager) EnsureLoaded(ctx context.Context, originals ...int) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	var launch []int
	for _, o := range originals {
		if o < 1 {
			continue
		}
		m.wanted[o] = struct{}{}
		m.retain[o] = struct{}{}
		if m.cache.peek(o) {
			continue
		}
		if _, busy := m.inflight[o]; busy {
			continue
		}
		m.inflight[o] = struct{}{}
		launch = append(launch, o)
	}
	m.wg.Add(len(launch))
	m.mu.Unlock()

	for _, o := range launch {
		go m.fetch(ctx, o)
	}
}

// windowOriginals maps the visual range [center-radius, center+radius]
// to original indices, centre outwards, and records them in set.
func (m *Manager) windowOriginals(center, radius, n int, set map[int]struct{}) []int {
	out := make([]int, 0, 2*radius+1)
	add := func(visual int) {
		if visual < 1 || visual > n {
			return
		}
		o, err := m.ord.ToOriginal(visual)
		if err != nil {
			return
		}
		if _, dup := set[o]; dup {
			return
		}
		set[o] = struct{}{}
		out = append(out, o)
	}
	add(center)
	for d := 1; d <= radius; d++ {
		add(center + d)
		add(center - d)
	}
	return out
}

func (m *Manager) fetch(ctx context.Context, original int) {
	defer m.wg.Done()

	select {
	case m.sem <- struct{}{}:
	case <-ctx.Done():
		m.mu.Lock()
		delete(m.inflight, original)
		m.mu.Unlock()
		return
	}
	defer func() { <-m.sem }()

	// The window may have moved while this fetch sat in the queue.
	// Skipping here is cheap; a fetch that has already started is
	// always allowed to finish.
	m.mu.Lock()
	if m.closed || !m.wantedLocked(original) {
		delete(m.inflight, original)
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	page, err := m.doc.Page(ctx, original)

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inflight, original)

	if err != nil {
		m.failed++
		m.log.Warn("page load failed", "page", original, "error", err)
		return
	}

	if _, seen := m.dims[original]; !seen {
		m.dims[original] = Dims{Size: page.Size(), Rotation: page.Rotate()}
	}

	if m.closed || !m.wantedLocked(original) {
		m.stale++
		page.Release()
		return
	}

	if old := m.cache.put(original, page); old != nil {
		old.Release()
	}
	m.enforceCapLocked()
}

func (m *Manager) wantedLocked(original int) bool {
	_, ok := m.wanted[original]
	return ok
}

// evictLocked drops cached handles that fell outside the retained
// window, then re-applies the hard cap.
func (m *Manager) evictLocked() {
	for _, key := range m.cache.keys() {
		if _, keep := m.retain[key]; keep {
			continue
		}
		if page := m.cache.remove(key); page != nil {
			page.Release()
			m.evicted++
		}
	}
	m.enforceCapLocked()
}

// enforceCapLocked trims least recently used handles above MaxPages,
// never touching pages in the wanted set.
func (m *Manager) enforceCapLocked() {
	if m.maxPages <= 0 {
		return
	}
	for m.cache.len() > m.maxPages {
		_, page := m.cache.removeLast(m.wantedLocked)
		if page == nil {
			return
		}
		page.Release()
		m.evicted++
	}
}

// Get returns the cached handle for an original index, marking it
// recently used.
func (m *Manager) Get(original int) (source.Page, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	page, ok := m.cache.get(original)
	if ok {
		m.hits++
	} else {
		m.misses++
	}
	return page, ok
}

// Dimensions returns the recorded geometry for an original index. It
// stays available after the handle itself is evicted.
func (m *Manager) Dimensions(original int) (Dims, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.dims[original]
	return d, ok
}

// IsLoaded reports whether a handle for the index is cached, without
// touching recency order.
func (m *Manager) IsLoaded(original int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cache.peek(original)
}

// InFlight reports whether a fetch for the index has been issued and
// has not yet settled.
func (m *Manager) InFlight(original int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.inflight[original]
	return ok
}

// Wait blocks until every issued fetch has settled. Useful before
// rendering a page that was just requested.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Stats reports cache activity counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		Loaded:   m.cache.len(),
		InFlight: len(m.inflight),
		Hits:     m.hits,
		Misses:   m.misses,
		Stale:    m.stale,
		Evicted:  m.evicted,
		Failed:   m.failed,
	}
}

// Close releases every cached handle after in-flight fetches settle.
// The manager accepts no work afterwards. Close does not close the
// underlying document.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	m.wg.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range m.cache.keys() {
		if page := m.cache.remove(key); page != nil {
			page.Release()
		}
	}
	m.wanted = map[int]struct{}{}
	m.retain = map[int]struct{}{}
}
