package geom

import "math"

// Zoom limits and stepping shared by every view.
const (
	MinZoom         = 0.1
	MaxZoom         = 10.0
	DefaultZoomStep = 1.25
)

// FitMode selects how a page is fitted into the available area.
type FitMode int

const (
	// FitWidth scales the page so its rotated width fills the area.
	FitWidth FitMode = iota
	// FitHeight scales the page so its rotated height fills the area.
	FitHeight
	// FitPage scales the page so it is fully visible.
	FitPage
)

// Viewport describes one page at a particular zoom and rotation. It holds
// the pixel dimensions of the rotated, scaled page and the transforms
// between content space and pixel space.
//
// Normalized coordinates are always relative to the unrotated content box,
// so a normalized point identifies the same spot on the page no matter
// what zoom or rotation the viewport was built with.
type Viewport struct {
	Base Size     // unrotated page size at zoom 1
	Zoom float64
	Rot  Rotation

	W, H float64 // pixel dimensions after rotation and zoom

	fwd Matrix // content -> pixel
	inv Matrix // pixel -> content
}

// PageViewport builds the viewport for a page of the given unrotated base
// size at a zoom factor and clockwise rotation. A zero or negative zoom is
// treated as 1. Empty base sizes produce an empty viewport with identity
// transforms rather than NaNs.
func PageViewport(base Size, zoom float64, rot Rotation) Viewport {
	if zoom <= 0 {
		zoom = 1
	}
	rot = NormalizeRotation(int(rot))

	vp := Viewport{Base: base, Zoom: zoom, Rot: rot}
	if base.IsEmpty() {
		vp.fwd = Identity()
		vp.inv = Identity()
		return vp
	}

	// Rotate about the origin, then translate the page back into the
	// positive quadrant, then scale. Derived from the corner mapping of
	// a clockwise quarter turn in a top-left origin space.
	var rm Matrix
	switch rot {
	case Rotate90:
		rm = Matrix{0, 1, -1, 0, base.H, 0}
	case Rotate180:
		rm = Matrix{-1, 0, 0, -1, base.W, base.H}
	case Rotate270:
		rm = Matrix{0, -1, 1, 0, 0, base.W}
	default:
		rm = Identity()
	}

	vp.fwd = rm.Multiply(Scale(zoom, zoom))
	vp.inv, _ = vp.fwd.Inverse()

	size := base
	if rot.Swaps() {
		size = base.Swapped()
	}
	vp.W = size.W * zoom
	vp.H = size.H * zoom

	return vp
}

// Size returns the pixel dimensions of the viewport.
func (v Viewport) Size() Size {
	return Size{W: v.W, H: v.H}
}

// Matrix returns the content-to-pixel transform.
func (v Viewport) Matrix() Matrix {
	return v.fwd
}

// ToPixel converts a content point to pixel coordinates.
func (v Viewport) ToPixel(p Point) Point {
	return v.fwd.Transform(p)
}

// ToContent converts a pixel point back to content coordinates.
func (v Viewport) ToContent(p Point) Point {
	return v.inv.Transform(p)
}

// ToPixelRect converts a content rectangle to pixel coordinates.
func (v Viewport) ToPixelRect(r Rect) Rect {
	return v.fwd.TransformRect(r)
}

// ToContentRect converts a pixel rectangle back to content coordinates.
func (v Viewport) ToContentRect(r Rect) Rect {
	return v.inv.TransformRect(r)
}

// Normalize converts a pixel point to normalized page coordinates in
// [0,1]x[0,1]. Points outside the page normalize outside that range; they
// are not clamped.
func (v Viewport) Normalize(p Point) Point {
	if v.Base.IsEmpty() {
		return Point{}
	}
	c := v.ToContent(p)
	return Point{X: c.X / v.Base.W, Y: c.Y / v.Base.H}
}

// Denormalize converts a normalized page point to pixel coordinates under
// this viewport's zoom and rotation.
func (v Viewport) Denormalize(n Point) Point {
	c := Point{X: n.X * v.Base.W, Y: n.Y * v.Base.H}
	return v.ToPixel(c)
}

// NormalizeRect converts a pixel rectangle to normalized page coordinates.
func (v Viewport) NormalizeRect(r Rect) Rect {
	if v.Base.IsEmpty() {
		return Rect{}
	}
	c := v.ToContentRect(r)
	return Rect{
		X: c.X / v.Base.W,
		Y: c.Y / v.Base.H,
		W: c.W / v.Base.W,
		H: c.H / v.Base.H,
	}
}

// DenormalizeRect converts a normalized page rectangle to pixel
// coordinates under this viewport's zoom and rotation.
func (v Viewport) DenormalizeRect(n Rect) Rect {
	c := Rect{
		X: n.X * v.Base.W,
		Y: n.Y * v.Base.H,
		W: n.W * v.Base.W,
		H: n.H * v.Base.H,
	}
	return v.ToPixelRect(c)
}

// FitZoom calculates the zoom factor that fits a page of the given
// unrotated base size into the available area under the given rotation.
// Returns 1 when either size is empty.
func FitZoom(base Size, avail Size, rot Rotation, mode FitMode) float64 {
	if base.IsEmpty() || avail.IsEmpty() {
		return 1
	}

	eff := base
	if NormalizeRotation(int(rot)).Swaps() {
		eff = base.Swapped()
	}

	byWidth := avail.W / eff.W
	byHeight := avail.H / eff.H

	var z float64
	switch mode {
	case FitWidth:
		z = byWidth
	case FitHeight:
		z = byHeight
	default:
		z = math.Min(byWidth, byHeight)
	}
	return ClampZoom(z)
}

// ClampZoom restricts a zoom factor to the supported range.
func ClampZoom(z float64) float64 {
	if z < MinZoom {
		return MinZoom
	}
	if z > MaxZoom {
		return MaxZoom
	}
	return z
}

// ZoomIn returns the next zoom step up, clamped to the supported range.
// Steps at or below 1 fall back to the default step.
func ZoomIn(z, step float64) float64 {
	if step <= 1 {
		step = DefaultZoomStep
	}
	return ClampZoom(z * step)
}

// ZoomOut returns the next zoom step down, clamped to the supported range.
func ZoomOut(z, step float64) float64 {
	if step <= 1 {
		step = DefaultZoomStep
	}
	return ClampZoom(z / step)
}
