// Package scrollsync turns raw scroll, wheel and touch input into page
// navigation, and keeps the notion of "current page" honest while doing
// so.
//
// The controller is a state machine with three states. Idle means no
// input is being handled. UserScrolling means the user is actively
// moving the view. ProgrammaticScroll is a short guard window entered
// whenever the controller itself moves the view; while it is active,
// scroll-driven recalculation of the current page is suppressed, which
// is what prevents a programmatic jump from being misread as a user
// scroll and triggering a second, unwanted page change.
//
// The controller owns no goroutines and never blocks. Time-based
// behaviour (guard expiry, accumulator debounce, derivation throttling)
// runs off deadlines that are checked on every input and on Tick, so a
// host drives it either from a frame loop or from a timer. All methods
// must be called from the same goroutine.
package scrollsync

import (
	"math"
	"time"

	"github.com/tsawler/lectern/geom"
	"github.com/tsawler/lectern/logging"
)

// State is the controller's current input-handling state.
type State int

const (
	StateIdle State = iota
	StateProgrammaticScroll
	StateUserScrolling
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateProgrammaticScroll:
		return "programmatic-scroll"
	case StateUserScrolling:
		return "user-scrolling"
	}
	return "unknown"
}

// Mode is the page layout the host is displaying.
type Mode int

const (
	// ModeSingle shows one page at a time; wheel input past the content
	// edge accumulates toward a page flip.
	ModeSingle Mode = iota
	// ModeTwoPage lays out facing pages in one scrollable surface.
	ModeTwoPage
	// ModeContinuous lays out every page in one scrollable surface.
	ModeContinuous
)

func (m Mode) String() string {
	switch m {
	case ModeSingle:
		return "single"
	case ModeTwoPage:
		return "two-page"
	case ModeContinuous:
		return "continuous"
	}
	return "unknown"
}

// scrolled reports whether the mode lays all pages out in one surface,
// making "current page" a question of viewport intersection rather than
// flips.
func (m Mode) scrolled() bool { return m != ModeSingle }

// Edge says where a freshly shown page should be positioned.
type Edge int

const (
	EdgeTop Edge = iota
	EdgeBottom
)

// Surface is what the controller reads about the host view. All values
// are in the same pixel space as wheel deltas and scroll offsets.
type Surface interface {
	// PageCount is the number of visually present pages.
	PageCount() int

	// ViewportSize is the visible area.
	ViewportSize() geom.Size

	// ContentSize is the laid-out extent the view scrolls over: the
	// current page in single mode, the whole document in scrolled
	// modes.
	ContentSize() geom.Size

	// ScrollOffset is the current scroll position.
	ScrollOffset() geom.Point

	// PageRect is the laid-out bounds of a visual page in scrolled
	// modes. A zero rect means the layout is not known yet.
	PageRect(visual int) geom.Rect
}

// Commands is how the controller acts on the host view.
type Commands interface {
	// ShowPage displays a different page in single mode, positioned at
	// the given edge.
	ShowPage(visual int, edge Edge)

	// ScrollTo moves the scroll position.
	ScrollTo(offset geom.Point, smooth bool)

	// ZoomBy multiplies the zoom level. The host clamps the result.
	ZoomBy(factor float64)

	// PageChanged reports that the current page is now visual. Fired
	// for flips, jumps and scroll-derived changes alike.
	PageChanged(visual int)
}

// Config tunes input handling. Zero values select the defaults.
type Config struct {
	Sensitivity float64       // multiplier on wheel deltas
	ThresholdPx float64       // accumulated delta that triggers a flip
	Debounce    time.Duration // idle window that zeroes a partial accumulator
	Settle      time.Duration // guard length after programmatic moves
	Invert      bool          // flip wheel scroll direction
	ZoomStep    float64       // wheel and keyboard zoom factor
	Smooth      bool          // request animated scrolling from the host
	SwipeMin    float64       // minimum horizontal travel for a swipe
}

// Defaults for Config fields left at zero.
const (
	DefaultThresholdPx = 150.0
	DefaultDebounce    = 200 * time.Millisecond
	DefaultSettle      = 400 * time.Millisecond
	DefaultSwipeMin    = 60.0
)

func (c Config) withDefaults() Config {
	if c.Sensitivity <= 0 {
		c.Sensitivity = 1
	}
	if c.ThresholdPx <= 0 {
		c.ThresholdPx = DefaultThresholdPx
	}
	if c.Debounce <= 0 {
		c.Debounce = DefaultDebounce
	}
	if c.Settle <= 0 {
		c.Settle = DefaultSettle
	}
	if c.ZoomStep <= 1 {
		c.ZoomStep = geom.DefaultZoomStep
	}
	if c.SwipeMin <= 0 {
		c.SwipeMin = DefaultSwipeMin
	}
	return c
}

// edgeSlack absorbs sub-pixel scroll positions when testing whether the
// view sits at a content edge.
const edgeSlack = 0.5

// Controller coordinates scroll input for one document view.
type Controller struct {
	surface Surface
	cmds    Commands
	cfg     Config
	log     logging.Logger

	mode    Mode
	state   State
	current int
	acc     float64

	now        func() time.Time
	guardUntil time.Time
	settleAt   time.Time
	debounceAt time.Time

	deriveNext  time.Time
	deriveDirty bool

	touchActive bool
	touchPinch  bool
	touchStart  geom.Point
	touchLast   geom.Point
	pinchDist   float64
}

// New creates a controller over the given view. The current page starts
// at 1 when the document has pages. A nil log discards messages.
func New(surface Surface, cmds Commands, cfg Config, log logging.Logger) *Controller {
	if log == nil {
		log = logging.Nop()
	}
	c := &Controller{
		surface: surface,
		cmds:    cmds,
		cfg:     cfg.withDefaults(),
		log:     log,
		now:     time.Now,
	}
	if surface.PageCount() > 0 {
		c.current = 1
	}
	return c
}

// State returns the controller's current state, after applying any
// expired deadlines.
func (c *Controller) State() State {
	c.advance()
	return c.state
}

// Mode returns the active layout mode.
func (c *Controller) Mode() Mode { return c.mode }

// CurrentPage returns the current visual page, or 0 when the document
// has no pages.
func (c *Controller) CurrentPage() int { return c.current }

// Accumulator returns the pending wheel delta toward the next flip.
func (c *Controller) Accumulator() float64 { return c.acc }

// SetMode switches the layout mode. The accumulator and any pending
// deadlines reset; the current page is kept.
func (c *Controller) SetMode(m Mode) {
	c.mode = m
	c.acc = 0
	c.state = StateIdle
	c.guardUntil = time.Time{}
	c.settleAt = time.Time{}
	c.debounceAt = time.Time{}
	c.deriveDirty = false
}

// Tick applies expired deadlines. Hosts call it from their frame loop
// or a coarse timer; input methods apply deadlines themselves, so Tick
// matters only while input is quiet.
func (c *Controller) Tick() {
	c.advance()
}

// advance applies every deadline that has passed.
func (c *Controller) advance() {
	now := c.now()

	if c.state == StateProgrammaticScroll && !c.guardUntil.IsZero() && !now.Before(c.guardUntil) {
		c.guardUntil = time.Time{}
		c.state = StateIdle
	}
	if c.state == StateUserScrolling && !c.settleAt.IsZero() && !now.Before(c.settleAt) {
		c.settleAt = time.Time{}
		c.state = StateIdle
	}
	if !c.debounceAt.IsZero() && !now.Before(c.debounceAt) {
		c.debounceAt = time.Time{}
		c.acc = 0
	}
	if c.deriveDirty && c.state != StateProgrammaticScroll && !now.Before(c.deriveNext) {
		c.deriveDirty = false
		c.deriveNext = now.Add(c.cfg.Debounce)
		c.deriveCurrentPage()
	}
}

// ============================================================================
// Wheel Input
// ============================================================================

// Wheel handles a wheel event. zoomModifier is the state of the
// ctrl/cmd key, which turns the wheel into zoom and never paging. The
// return value reports whether the event was consumed; false means the
// host should let its native scrolling proceed.
func (c *Controller) Wheel(dx, dy float64, zoomModifier bool) bool {
	c.advance()

	if zoomModifier {
		if dy == 0 {
			return true
		}
		factor := c.cfg.ZoomStep
		if dy > 0 {
			factor = 1 / factor
		}
		c.cmds.ZoomBy(factor)
		return true
	}

	if c.state == StateProgrammaticScroll {
		// Guard window: self-inflicted motion must not trigger paging.
		return true
	}

	if c.mode.scrolled() {
		return c.wheelScrolled(dx, dy)
	}
	return c.wheelPaged(dy)
}

// wheelScrolled handles wheel input in two-page and continuous modes,
// where the wheel only ever scrolls. With inversion off the host's
// native scrolling is left alone; with it on the controller redirects
// the motion itself, since the native direction cannot be trusted.
func (c *Controller) wheelScrolled(dx, dy float64) bool {
	c.markUserScrolling()
	c.requestDerive()
	if !c.cfg.Invert {
		return false
	}
	off := c.surface.ScrollOffset()
	c.cmds.ScrollTo(geom.Point{
		X: off.X - dx*c.cfg.Sensitivity,
		Y: off.Y - dy*c.cfg.Sensitivity,
	}, false)
	return true
}

// wheelPaged handles wheel input in single mode: scroll within the page
// while it overflows, accumulate toward a flip at the edges.
func (c *Controller) wheelPaged(dy float64) bool {
	if c.surface.PageCount() == 0 {
		return false
	}

	d := dy * c.cfg.Sensitivity
	if c.cfg.Invert {
		d = -d
	}
	if d == 0 {
		return false
	}

	vp := c.surface.ViewportSize()
	content := c.surface.ContentSize()
	off := c.surface.ScrollOffset()

	overflows := content.H > vp.H+edgeSlack
	if overflows && !c.atEdge(d, vp, content, off) {
		// Mid-content: plain scrolling, no flip pending anymore.
		c.acc = 0
		c.debounceAt = time.Time{}
		c.markUserScrolling()
		if c.cfg.Invert {
			c.cmds.ScrollTo(geom.Point{X: off.X, Y: off.Y + d}, false)
			return true
		}
		return false
	}

	c.markUserScrolling()
	c.acc += d
	if math.Abs(c.acc) < c.cfg.ThresholdPx {
		c.debounceAt = c.now().Add(c.cfg.Debounce)
		return true
	}

	dir := 1
	if c.acc < 0 {
		dir = -1
	}
	c.acc = 0
	c.debounceAt = time.Time{}

	target := c.current + dir
	if target < 1 || target > c.surface.PageCount() {
		// Already at the document edge; the gesture dissipates.
		return true
	}
	edge := EdgeTop
	if dir < 0 {
		edge = EdgeBottom
	}
	c.flip(target, edge)
	return true
}

// atEdge reports whether the view cannot move further in the direction
// of d: the bottom edge for downward deltas, the top for upward.
func (c *Controller) atEdge(d float64, vp, content geom.Size, off geom.Point) bool {
	if d > 0 {
		return off.Y+vp.H >= content.H-edgeSlack
	}
	return off.Y <= edgeSlack
}

// ============================================================================
// Scroll and Navigation
// ============================================================================

// ScrollChanged tells the controller the scroll position moved under
// user control (drag, scrollbar, native wheel). During the programmatic
// guard it is ignored. In scrolled modes it re-derives the current page
// on a throttled interval.
func (c *Controller) ScrollChanged() {
	c.advance()
	if c.state == StateProgrammaticScroll {
		return
	}
	c.markUserScrolling()
	if c.mode.scrolled() {
		c.requestDerive()
	}
}

// GoToPage navigates to a visual page. Out-of-range targets clamp to
// the valid range; with no pages the call is ignored.
func (c *Controller) GoToPage(visual int) {
	c.advance()
	count := c.surface.PageCount()
	if count == 0 {
		return
	}
	if visual < 1 {
		visual = 1
	}
	if visual > count {
		visual = count
	}

	if !c.mode.scrolled() {
		c.flip(visual, EdgeTop)
		return
	}

	c.current = visual
	c.engageGuard()
	if r := c.surface.PageRect(visual); !r.IsEmpty() {
		c.cmds.ScrollTo(geom.Point{X: r.X, Y: r.Y}, c.cfg.Smooth)
	}
	c.cmds.PageChanged(visual)
}

// FirstPage navigates to the first page.
func (c *Controller) FirstPage() { c.GoToPage(1) }

// LastPage navigates to the last page.
func (c *Controller) LastPage() { c.GoToPage(c.surface.PageCount()) }

// NextPage navigates one page forward.
func (c *Controller) NextPage() { c.GoToPage(c.current + 1) }

// PreviousPage navigates one page back.
func (c *Controller) PreviousPage() { c.GoToPage(c.current - 1) }

// Refresh clamps the current page against the page count and, in
// scrolled modes, re-derives it from the viewport. Hosts call it after
// the page order changes.
func (c *Controller) Refresh() {
	count := c.surface.PageCount()
	switch {
	case count == 0:
		c.current = 0
	case c.current < 1:
		c.current = 1
	case c.current > count:
		c.current = count
	}
	if c.mode.scrolled() && count > 0 {
		c.deriveCurrentPage()
	}
}

// flip shows a different page in single mode and engages the guard so
// the resulting motion is not fed back into paging.
func (c *Controller) flip(visual int, edge Edge) {
	c.current = visual
	c.engageGuard()
	c.cmds.ShowPage(visual, edge)
	c.cmds.PageChanged(visual)
	c.log.Debug("page flip", "page", visual, "state", c.state.String())
}

// engageGuard enters ProgrammaticScroll for the settle window.
func (c *Controller) engageGuard() {
	c.state = StateProgrammaticScroll
	c.guardUntil = c.now().Add(c.cfg.Settle)
	c.settleAt = time.Time{}
	c.debounceAt = time.Time{}
	c.acc = 0
}

func (c *Controller) markUserScrolling() {
	c.state = StateUserScrolling
	c.settleAt = c.now().Add(c.cfg.Settle)
}

// requestDerive schedules a current-page derivation, immediately if the
// throttle interval has passed, otherwise on a later Tick.
func (c *Controller) requestDerive() {
	now := c.now()
	if now.Before(c.deriveNext) {
		c.deriveDirty = true
		return
	}
	c.deriveNext = now.Add(c.cfg.Debounce)
	c.deriveDirty = false
	c.deriveCurrentPage()
}

// deriveCurrentPage picks the page with the greatest visible
// intersection with the viewport. Lower visual indices win ties. When
// the layout reports no geometry the current page is left alone.
func (c *Controller) deriveCurrentPage() {
	count := c.surface.PageCount()
	if count == 0 {
		return
	}
	off := c.surface.ScrollOffset()
	vp := c.surface.ViewportSize()
	visible := geom.Rect{X: off.X, Y: off.Y, W: vp.W, H: vp.H}

	best := 0
	bestArea := 0.0
	for v := 1; v <= count; v++ {
		a := visible.Intersection(c.surface.PageRect(v)).Area()
		if a > bestArea {
			bestArea = a
			best = v
		}
	}
	if best == 0 || best == c.current {
		return
	}
	c.current = best
	c.cmds.PageChanged(best)
}

// ============================================================================
// Touch Input
// ============================================================================

// TouchStart begins a gesture with the given contact points.
func (c *Controller) TouchStart(points []geom.Point) {
	c.advance()
	if len(points) == 0 {
		return
	}
	c.touchActive = true
	c.touchPinch = false
	c.touchStart = points[0]
	c.touchLast = points[0]
	c.pinchDist = 0
	if len(points) >= 2 {
		c.touchPinch = true
		c.pinchDist = points[0].Distance(points[1])
	}
}

// TouchMove updates an active gesture. Two-point gestures drive zoom
// continuously; single-point motion is tracked for swipe detection.
func (c *Controller) TouchMove(points []geom.Point) {
	c.advance()
	if !c.touchActive || len(points) == 0 {
		return
	}

	if len(points) >= 2 {
		c.touchPinch = true
		d := points[0].Distance(points[1])
		if c.pinchDist > 0 && d > 0 {
			c.cmds.ZoomBy(d / c.pinchDist)
		}
		c.pinchDist = d
		return
	}

	c.touchLast = points[0]
}

// TouchEnd completes a gesture. A predominantly horizontal single-point
// drag past the swipe threshold flips the page in single mode; left
// means next, right means previous. Pinches never flip.
func (c *Controller) TouchEnd() {
	c.advance()
	if !c.touchActive {
		return
	}
	c.touchActive = false

	if c.touchPinch || c.mode.scrolled() {
		return
	}
	if c.state == StateProgrammaticScroll {
		return
	}
	count := c.surface.PageCount()
	if count == 0 {
		return
	}

	dx := c.touchLast.X - c.touchStart.X
	dy := c.touchLast.Y - c.touchStart.Y
	if math.Abs(dx) < c.cfg.SwipeMin || math.Abs(dx) <= math.Abs(dy) {
		return
	}

	target := c.current + 1
	edge := EdgeTop
	if dx > 0 {
		target = c.current - 1
		edge = EdgeBottom
	}
	if target < 1 || target > count {
		return
	}
	c.flip(target, edge)
}
