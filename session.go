package lectern

import (
	"context"
	"errors"

	"github.com/tsawler/lectern/annotations"
	"github.com/tsawler/lectern/geom"
	"github.com/tsawler/lectern/logging"
	"github.com/tsawler/lectern/pagecache"
	"github.com/tsawler/lectern/pageorder"
	"github.com/tsawler/lectern/scrollsync"
	"github.com/tsawler/lectern/search"
	"github.com/tsawler/lectern/source"
)

// ErrPageNotLoaded reports that an operation needed a page handle that
// is not cached yet. The load has been queued; retry once it completes.
var ErrPageNotLoaded = errors.New("lectern: page not loaded")

// Host receives display commands from the session. Every callback fires
// synchronously from the session call that caused it. A nil Host is
// allowed; commands are then only reflected in the session's own state.
type Host interface {
	// ShowPage displays a page in single mode, positioned at the given
	// edge of the view.
	ShowPage(visual int, edge scrollsync.Edge)

	// ScrollTo moves the view's scroll position.
	ScrollTo(offset geom.Point, smooth bool)

	// ZoomChanged reports the new zoom factor after any zoom change.
	ZoomChanged(zoom float64)

	// PageChanged reports that the current page is now visual.
	PageChanged(visual int)
}

// TextRecognizer turns a rendered page image into text. It is consulted
// for pages whose source carries no embedded text, such as scanned
// documents. *ocr.Client satisfies it.
type TextRecognizer interface {
	RecognizeImage(imageData []byte) (string, error)
}

// placeholderSize stands in for pages whose dimensions are not known
// yet, so layout has something stable to work with until the first
// handle arrives.
var placeholderSize = geom.Size{W: 612, H: 792}

// Session is the view state of one open document: its page order and
// rotations, the window of loaded page handles, the annotation set with
// its history, the scroll position and current page, and any running
// search. Each open document gets its own Session; none of its state is
// shared across documents.
//
// Session methods are not safe for concurrent use. Drive a session from
// one goroutine, conventionally the view's event loop. Callbacks handed
// to RenderPage and events from a Search arrive on internal goroutines
// and must be marshalled back by the caller.
type Session struct {
	name        string
	fingerprint string
	password    string
	initialMode scrollsync.Mode
	cfg         Config
	log         logging.Logger
	host        Host
	recognizer  TextRecognizer

	doc     source.Document
	order   *pageorder.Model
	notes   *annotations.Store
	cache   *pagecache.Manager
	scroll  *scrollsync.Controller
	finder  *search.Coordinator
	renders *renderQueue

	ctx    context.Context
	cancel context.CancelFunc

	zoom      float64
	rotation  geom.Rotation
	viewport  geom.Size
	content   geom.Size
	scrollPos geom.Point
	rects     map[int]geom.Rect

	closed bool
}

// newSession builds the pre-open shell the options apply to.
func newSession(opts []Option) *Session {
	s := &Session{
		cfg:  DefaultConfig(),
		log:  logging.Nop(),
		zoom: 1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// attach wires the per-document components around an open page source.
func (s *Session) attach(doc source.Document) {
	s.doc = doc
	s.ctx, s.cancel = context.WithCancel(context.Background())

	n := doc.PageCount()
	s.order = pageorder.New(n)
	s.notes = annotations.New()
	s.cache = pagecache.New(doc, s.order, s.cfg.cacheConfig(), s.log)
	s.scroll = scrollsync.New(viewSurface{s}, viewCommands{s}, s.cfg.scrollConfig(), s.log)
	s.finder = search.NewCoordinator(textSource{s}, s.log)
	s.renders = newRenderQueue(s.ctx)
	s.rects = make(map[int]geom.Rect)

	if s.initialMode != scrollsync.ModeSingle {
		s.scroll.SetMode(s.initialMode)
	}
	s.relayout()
	if n > 0 {
		s.recomputeWindow(1)
	}
	s.log.Debug("session open", "pages", n, "mode", s.scroll.Mode().String())
}

// Close cancels outstanding work, releases every cached page handle and
// closes the document source. It is safe to call more than once.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.cancel()
	s.finder.Cancel()
	s.renders.close()
	s.cache.Close()
	err := s.doc.Close()
	s.log.Debug("session closed", "name", s.name)
	return err
}

// ============================================================================
// Document Identity
// ============================================================================

// Name is the display name of the document, the base name of the opened
// file. Empty for sessions opened from memory.
func (s *Session) Name() string { return s.name }

// Fingerprint identifies the document content, independent of file
// name or location. Empty for sessions built with OpenDocument.
func (s *Session) Fingerprint() string { return s.fingerprint }

// Metadata returns the document's descriptive metadata.
func (s *Session) Metadata() source.Metadata { return s.doc.Metadata() }

// PageCount is the number of visually present pages. It shrinks when
// pages are removed.
func (s *Session) PageCount() int { return s.order.Len() }

// OriginalPageCount is the page count at open time, the upper bound of
// original page indices.
func (s *Session) OriginalPageCount() int { return s.order.PageCount() }

// OutlineItem is a document outline entry with its target resolved to a
// visual page. Page is -1 when the entry has no target or the target
// page has been removed.
type OutlineItem struct {
	Title    string
	Page     int
	Children []OutlineItem
}

// Outline returns the document outline with targets mapped to the
// current visual order.
func (s *Session) Outline() []OutlineItem {
	return s.remapOutline(s.doc.Outline())
}

func (s *Session) remapOutline(items []source.OutlineItem) []OutlineItem {
	if len(items) == 0 {
		return nil
	}
	out := make([]OutlineItem, 0, len(items))
	for _, it := range items {
		visual := -1
		if it.Page > 0 {
			if v, err := s.order.ToVisual(it.Page); err == nil {
				visual = v
			}
		}
		out = append(out, OutlineItem{
			Title:    it.Title,
			Page:     visual,
			Children: s.remapOutline(it.Children),
		})
	}
	return out
}

// ============================================================================
// Page Order and Rotation
// ============================================================================

// Order returns the current visual order as original page indices.
func (s *Session) Order() []int { return s.order.Order() }

// VisualOf maps an original page index to its current visual position.
// ok is false when the page has been removed.
func (s *Session) VisualOf(original int) (int, bool) {
	v, err := s.order.ToVisual(original)
	return v, err == nil
}

// OriginalOf maps a visual position to its original page index.
func (s *Session) OriginalOf(visual int) (int, error) {
	return s.order.ToOriginal(visual)
}

// Reorder replaces the visual order. The new order must be a
// permutation of the present pages; invalid orders are rejected whole.
func (s *Session) Reorder(newOrder []int) error {
	if err := s.order.Reorder(newOrder); err != nil {
		return err
	}
	s.viewChanged()
	return nil
}

// MovePage moves the page at visual position from to position to.
func (s *Session) MovePage(from, to int) error {
	if err := s.order.Move(from, to); err != nil {
		return err
	}
	s.viewChanged()
	return nil
}

// RemovePage removes the page at a visual position from the view. Later
// pages shift up by one. The page's annotations are retained against its
// original index; they reappear if a saved state containing the page is
// loaded again.
func (s *Session) RemovePage(visual int) error {
	if err := s.order.RemovePage(visual); err != nil {
		return err
	}
	s.viewChanged()
	return nil
}

// RotatePage adds a quarter clockwise turn to the page at a visual
// position. The rotation sticks to the page's original identity, so it
// survives reordering.
func (s *Session) RotatePage(visual int) error {
	original, err := s.order.ToOriginal(visual)
	if err != nil {
		return err
	}
	if err := s.order.RotatePage(original); err != nil {
		return err
	}
	s.viewChanged()
	return nil
}

// Rotation is the global view rotation applied to every page.
func (s *Session) Rotation() geom.Rotation { return s.rotation }

// SetRotation replaces the global view rotation.
func (s *Session) SetRotation(r geom.Rotation) {
	r = geom.NormalizeRotation(int(r))
	if r == s.rotation {
		return
	}
	s.rotation = r
	s.viewChanged()
}

// effectiveRotation composes a page's intrinsic rotation, the global
// view rotation and the page's own override.
func (s *Session) effectiveRotation(original int, intrinsic geom.Rotation) geom.Rotation {
	return intrinsic.Plus(s.rotation).Plus(s.order.RotationOf(original))
}

// ============================================================================
// Zoom and Geometry
// ============================================================================

// Zoom is the current zoom factor.
func (s *Session) Zoom() float64 { return s.zoom }

// SetZoom sets the zoom factor, clamped to the supported range. The
// scroll position scales with the layout so the view stays anchored.
func (s *Session) SetZoom(zoom float64) {
	zoom = geom.ClampZoom(zoom)
	if zoom == s.zoom {
		return
	}
	ratio := zoom / s.zoom
	s.zoom = zoom
	s.scrollPos = geom.Point{X: s.scrollPos.X * ratio, Y: s.scrollPos.Y * ratio}
	s.relayout()
	s.scrollPos = s.clampOffset(s.scrollPos)
	if s.host != nil {
		s.host.ZoomChanged(s.zoom)
	}
}

// ZoomIn zooms in by one configured step.
func (s *Session) ZoomIn() { s.SetZoom(geom.ZoomIn(s.zoom, s.cfg.ZoomStep)) }

// ZoomOut zooms out by one configured step.
func (s *Session) ZoomOut() { s.SetZoom(geom.ZoomOut(s.zoom, s.cfg.ZoomStep)) }

// FitWidth zooms so the current page fills the viewport width.
func (s *Session) FitWidth() { s.fit(geom.FitWidth) }

// FitPage zooms so the current page is fully visible.
func (s *Session) FitPage() { s.fit(geom.FitPage) }

func (s *Session) fit(mode geom.FitMode) {
	cur := s.scroll.CurrentPage()
	if cur < 1 || s.viewport.IsEmpty() {
		return
	}
	original, err := s.order.ToOriginal(cur)
	if err != nil {
		return
	}
	base, rot := s.pageBase(original)
	s.SetZoom(geom.FitZoom(base, s.viewport, rot, mode))
}

// pageBase returns a page's unrotated size and effective rotation,
// falling back to the placeholder size until real dimensions are known.
func (s *Session) pageBase(original int) (geom.Size, geom.Rotation) {
	if d, ok := s.cache.Dimensions(original); ok {
		return d.Size, s.effectiveRotation(original, d.Rotation)
	}
	return placeholderSize, s.effectiveRotation(original, geom.Rotate0)
}

// PageViewport builds the display viewport of a visual page at the
// session's zoom and the page's effective rotation. Until the page's
// dimensions are known a placeholder size is used, so the result is
// always usable for layout.
func (s *Session) PageViewport(visual int) (geom.Viewport, error) {
	original, err := s.order.ToOriginal(visual)
	if err != nil {
		return geom.Viewport{}, err
	}
	base, rot := s.pageBase(original)
	return geom.PageViewport(base, s.zoom, rot), nil
}

// Dimensions returns the unrotated size of a visual page at zoom 1, and
// whether it is known yet. Dimensions become known when the page's
// handle first loads and are retained even after the handle is evicted.
func (s *Session) Dimensions(visual int) (geom.Size, bool) {
	original, err := s.order.ToOriginal(visual)
	if err != nil {
		return geom.Size{}, false
	}
	d, ok := s.cache.Dimensions(original)
	if !ok {
		return geom.Size{}, false
	}
	return d.Size, true
}

// IsLoaded reports whether a visual page's handle is currently cached.
func (s *Session) IsLoaded(visual int) bool {
	original, err := s.order.ToOriginal(visual)
	if err != nil {
		return false
	}
	return s.cache.IsLoaded(original)
}

// CacheStats reports page cache counters for diagnostics.
func (s *Session) CacheStats() pagecache.Stats { return s.cache.Stats() }

// Wait blocks until every in-flight page fetch has completed. Intended
// for tests and batch use, not interactive hosts.
func (s *Session) Wait() { s.cache.Wait() }

// ============================================================================
// Annotations
// ============================================================================

// Annotations is the document's annotation store. Annotations are keyed
// by original page index and normalized coordinates, so they stay
// anchored across zoom, rotation and reordering.
func (s *Session) Annotations() *annotations.Store { return s.notes }

// AnnotationRect resolves an annotation's normalized position to pixel
// bounds on its page at the current zoom and rotation.
func (s *Session) AnnotationRect(a annotations.Annotation) (geom.Rect, error) {
	visual, err := s.order.ToVisual(a.PageNumber)
	if err != nil {
		return geom.Rect{}, err
	}
	vp, err := s.PageViewport(visual)
	if err != nil {
		return geom.Rect{}, err
	}
	return vp.DenormalizeRect(geom.Rect{
		X: a.Position.X,
		Y: a.Position.Y,
		W: a.Position.Width,
		H: a.Position.Height,
	}), nil
}

// NativeAnnotations returns the read-only annotations embedded in the
// document itself, such as links. They are passed through, never merged
// into the annotation store. The page handle must be loaded.
func (s *Session) NativeAnnotations(ctx context.Context, visual int) ([]source.NativeAnnotation, error) {
	original, err := s.order.ToOriginal(visual)
	if err != nil {
		return nil, err
	}
	page, ok := s.cache.Get(original)
	if !ok {
		s.cache.EnsureLoaded(s.ctx, original)
		return nil, ErrPageNotLoaded
	}
	return page.NativeAnnotations(ctx)
}

// ============================================================================
// Navigation and Input
// ============================================================================

// CurrentPage is the visual index of the current page, 0 when the
// document has no pages.
func (s *Session) CurrentPage() int { return s.scroll.CurrentPage() }

// GoToPage navigates to a visual page.
func (s *Session) GoToPage(visual int) { s.scroll.GoToPage(visual) }

// NextPage navigates one page forward.
func (s *Session) NextPage() { s.scroll.NextPage() }

// PreviousPage navigates one page back.
func (s *Session) PreviousPage() { s.scroll.PreviousPage() }

// FirstPage navigates to the first page.
func (s *Session) FirstPage() { s.scroll.FirstPage() }

// LastPage navigates to the last page.
func (s *Session) LastPage() { s.scroll.LastPage() }

// Mode is the current layout mode.
func (s *Session) Mode() scrollsync.Mode { return s.scroll.Mode() }

// SetMode switches the layout mode and rebuilds the layout for it.
func (s *Session) SetMode(m scrollsync.Mode) {
	if m == s.scroll.Mode() {
		return
	}
	s.scroll.SetMode(m)
	s.viewChanged()
}

// Wheel feeds a wheel event to the session. The deltas are in pixels,
// positive down and right. zoomModifier marks a zoom chord (ctrl or cmd
// held). The return value reports whether the event was consumed; false
// means the host should let its native scrolling proceed.
func (s *Session) Wheel(dx, dy float64, zoomModifier bool) bool {
	return s.scroll.Wheel(dx, dy, zoomModifier)
}

// TouchStart begins a touch gesture.
func (s *Session) TouchStart(points []geom.Point) { s.scroll.TouchStart(points) }

// TouchMove continues a touch gesture.
func (s *Session) TouchMove(points []geom.Point) { s.scroll.TouchMove(points) }

// TouchEnd ends a touch gesture, committing any swipe it formed.
func (s *Session) TouchEnd() { s.scroll.TouchEnd() }

// Tick drives the session's time-based transitions: guard expiry,
// accumulator debounce and deferred page derivation. Hosts call it from
// their frame timer.
func (s *Session) Tick() { s.scroll.Tick() }

// ViewportSize is the host view size last reported.
func (s *Session) ViewportSize() geom.Size { return s.viewport }

// SetViewportSize reports the host view's size in pixels. Layout is
// rebuilt for the new size.
func (s *Session) SetViewportSize(size geom.Size) {
	if size == s.viewport {
		return
	}
	s.viewport = size
	s.viewChanged()
}

// ContentSize is the laid-out extent the view scrolls over.
func (s *Session) ContentSize() geom.Size { return s.content }

// ScrollOffset is the current scroll position.
func (s *Session) ScrollOffset() geom.Point { return s.scrollPos }

// SetScrollOffset reports a scroll position change made by the user
// (drag, scrollbar, native wheel). The offset is clamped to the content
// bounds. During the programmatic guard the change is recorded but does
// not re-derive the current page.
func (s *Session) SetScrollOffset(offset geom.Point) {
	s.scrollPos = s.clampOffset(offset)
	s.scroll.ScrollChanged()
}

// PageRect is the laid-out bounds of a visual page in two-page and
// continuous modes. The zero rect is returned for unknown pages and in
// single mode.
func (s *Session) PageRect(visual int) geom.Rect { return s.rects[visual] }

// ScrollState reports the controller state, for diagnostics.
func (s *Session) ScrollState() scrollsync.State { return s.scroll.State() }

// ============================================================================
// Search
// ============================================================================

// Search starts a text search over the visually present pages. Any
// search already running is superseded: its channel closes without a
// done event and none of its remaining results are delivered. Matches
// arrive in ascending original page order on the returned search's
// Events channel.
func (s *Session) Search(ctx context.Context, query string, opts search.Options) *search.Search {
	return s.finder.Search(ctx, query, s.order.Order(), opts)
}

// CancelSearch cancels the live search, if any.
func (s *Session) CancelSearch() { s.finder.Cancel() }

// LiveSearch returns the running search, or nil.
func (s *Session) LiveSearch() *search.Search { return s.finder.Live() }

// Text extracts the text of a visual page, falling back to OCR when the
// source has none and a recognizer is configured.
func (s *Session) Text(ctx context.Context, visual int) (string, error) {
	original, err := s.order.ToOriginal(visual)
	if err != nil {
		return "", err
	}
	return textSource{s}.PageText(ctx, original)
}

// ============================================================================
// View Wiring
// ============================================================================

// viewChanged rebuilds layout and re-syncs the controller and cache
// after anything that moves pages around: order mutations, rotation,
// mode and viewport changes.
func (s *Session) viewChanged() {
	s.relayout()
	s.scrollPos = s.clampOffset(s.scrollPos)
	s.scroll.Refresh()
	if cur := s.scroll.CurrentPage(); cur >= 1 {
		s.recomputeWindow(cur)
	}
}

// Refresh rebuilds layout from the latest known page dimensions and
// re-derives the current page. Hosts call it when page loads complete.
func (s *Session) Refresh() { s.viewChanged() }

// recomputeWindow points the cache's load window at a visual page.
func (s *Session) recomputeWindow(centerVisual int) {
	s.cache.SetVisibleWindow(s.ctx, centerVisual, s.cfg.radiusFor(s.scroll.Mode()))
}

// clampOffset keeps a scroll offset inside the content bounds.
func (s *Session) clampOffset(off geom.Point) geom.Point {
	maxX := s.content.W - s.viewport.W
	if maxX < 0 {
		maxX = 0
	}
	maxY := s.content.H - s.viewport.H
	if maxY < 0 {
		maxY = 0
	}
	if off.X < 0 {
		off.X = 0
	} else if off.X > maxX {
		off.X = maxX
	}
	if off.Y < 0 {
		off.Y = 0
	} else if off.Y > maxY {
		off.Y = maxY
	}
	return off
}

// viewSurface exposes the session's layout to the scroll controller.
type viewSurface struct{ s *Session }

func (v viewSurface) PageCount() int            { return v.s.order.Len() }
func (v viewSurface) ViewportSize() geom.Size   { return v.s.viewport }
func (v viewSurface) ContentSize() geom.Size    { return v.s.content }
func (v viewSurface) ScrollOffset() geom.Point  { return v.s.scrollPos }
func (v viewSurface) PageRect(visual int) geom.Rect {
	return v.s.rects[visual]
}

// viewCommands applies the scroll controller's commands to the session
// and forwards them to the host.
type viewCommands struct{ s *Session }

func (v viewCommands) ShowPage(visual int, edge scrollsync.Edge) {
	s := v.s
	s.relayout()
	off := geom.Point{}
	if edge == scrollsync.EdgeBottom {
		off.Y = s.content.H - s.viewport.H
		if off.Y < 0 {
			off.Y = 0
		}
	}
	s.scrollPos = off
	if s.host != nil {
		s.host.ShowPage(visual, edge)
	}
}

func (v viewCommands) ScrollTo(offset geom.Point, smooth bool) {
	s := v.s
	s.scrollPos = s.clampOffset(offset)
	if s.host != nil {
		s.host.ScrollTo(s.scrollPos, smooth)
	}
}

func (v viewCommands) ZoomBy(factor float64) {
	v.s.SetZoom(v.s.zoom * factor)
}

func (v viewCommands) PageChanged(visual int) {
	s := v.s
	s.recomputeWindow(visual)
	if s.host != nil {
		s.host.PageChanged(visual)
	}
}
