// Package geom provides the 2D geometry for positioning document pages on
// screen: points, rectangles, affine transformation matrices, quarter-turn
// rotations, and the page viewport that maps between content coordinates
// and device pixels.
//
// Content space places the origin at the top-left corner of the unrotated
// page with x growing right and y growing down, measured in points at
// zoom 1. Pixel space uses the same orientation after zoom and rotation
// have been applied.
package geom

import "math"

// Point represents a 2D point.
type Point struct {
	X, Y float64
}

// Distance calculates the Euclidean distance to another point.
func (p Point) Distance(other Point) float64 {
	dx := p.X - other.X
	dy := p.Y - other.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Size represents the dimensions of a page or viewport.
type Size struct {
	W, H float64
}

// IsEmpty returns true if either dimension is zero or negative.
func (s Size) IsEmpty() bool {
	return s.W <= 0 || s.H <= 0
}

// Swapped returns the size with width and height exchanged.
func (s Size) Swapped() Size {
	return Size{W: s.H, H: s.W}
}

// Rect represents a rectangle with a top-left origin.
type Rect struct {
	X      float64 // Left
	Y      float64 // Top
	W      float64
	H      float64
}

// NewRect creates a rectangle from its top-left corner and dimensions.
func NewRect(x, y, w, h float64) Rect {
	return Rect{X: x, Y: y, W: w, H: h}
}

// RectFromPoints creates the rectangle spanned by two corner points.
func RectFromPoints(p1, p2 Point) Rect {
	x := math.Min(p1.X, p2.X)
	y := math.Min(p1.Y, p2.Y)
	w := math.Abs(p2.X - p1.X)
	h := math.Abs(p2.Y - p1.Y)
	return Rect{X: x, Y: y, W: w, H: h}
}

// Left returns the left edge X coordinate.
func (r Rect) Left() float64 {
	return r.X
}

// Right returns the right edge X coordinate.
func (r Rect) Right() float64 {
	return r.X + r.W
}

// Top returns the top edge Y coordinate.
func (r Rect) Top() float64 {
	return r.Y
}

// Bottom returns the bottom edge Y coordinate.
func (r Rect) Bottom() float64 {
	return r.Y + r.H
}

// Center returns the center point.
func (r Rect) Center() Point {
	return Point{
		X: r.X + r.W/2,
		Y: r.Y + r.H/2,
	}
}

// Contains checks if a point is inside the rectangle.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.Left() && p.X <= r.Right() &&
		p.Y >= r.Top() && p.Y <= r.Bottom()
}

// Intersects checks if two rectangles intersect.
func (r Rect) Intersects(other Rect) bool {
	return !(r.Right() < other.Left() ||
		r.Left() > other.Right() ||
		r.Bottom() < other.Top() ||
		r.Top() > other.Bottom())
}

// Intersection returns the intersection of two rectangles.
func (r Rect) Intersection(other Rect) Rect {
	if !r.Intersects(other) {
		return Rect{}
	}

	x := math.Max(r.Left(), other.Left())
	y := math.Max(r.Top(), other.Top())
	right := math.Min(r.Right(), other.Right())
	bottom := math.Min(r.Bottom(), other.Bottom())

	return Rect{
		X: x,
		Y: y,
		W: right - x,
		H: bottom - y,
	}
}

// Union returns the union of two rectangles.
func (r Rect) Union(other Rect) Rect {
	x := math.Min(r.Left(), other.Left())
	y := math.Min(r.Top(), other.Top())
	right := math.Max(r.Right(), other.Right())
	bottom := math.Max(r.Bottom(), other.Bottom())

	return Rect{
		X: x,
		Y: y,
		W: right - x,
		H: bottom - y,
	}
}

// Area returns the area of the rectangle.
func (r Rect) Area() float64 {
	return r.W * r.H
}

// Expand expands the rectangle by a margin on all sides.
func (r Rect) Expand(margin float64) Rect {
	return Rect{
		X: r.X - margin,
		Y: r.Y - margin,
		W: r.W + 2*margin,
		H: r.H + 2*margin,
	}
}

// OverlapRatio calculates the overlap ratio with another rectangle.
// Returns a value between 0 and 1.
func (r Rect) OverlapRatio(other Rect) float64 {
	if !r.Intersects(other) {
		return 0
	}

	intersection := r.Intersection(other)
	minArea := math.Min(r.Area(), other.Area())

	if minArea == 0 {
		return 0
	}

	return intersection.Area() / minArea
}

// IsEmpty returns true if the rectangle has zero area.
func (r Rect) IsEmpty() bool {
	return r.W <= 0 || r.H <= 0
}

// IsValid returns true if the rectangle has positive dimensions.
func (r Rect) IsValid() bool {
	return r.W > 0 && r.H > 0
}

// Matrix represents a 2D affine transformation matrix [a b c d e f],
// applied to points as x' = a*x + c*y + e, y' = b*x + d*y + f.
type Matrix [6]float64

// Identity returns an identity matrix.
func Identity() Matrix {
	return Matrix{1, 0, 0, 1, 0, 0}
}

// Transform applies the matrix transformation to a point.
func (m Matrix) Transform(p Point) Point {
	return Point{
		X: m[0]*p.X + m[2]*p.Y + m[4],
		Y: m[1]*p.X + m[3]*p.Y + m[5],
	}
}

// TransformRect applies the matrix to a rectangle and returns the
// axis-aligned bounding box of the four transformed corners.
func (m Matrix) TransformRect(r Rect) Rect {
	p1 := m.Transform(Point{X: r.Left(), Y: r.Top()})
	p2 := m.Transform(Point{X: r.Right(), Y: r.Top()})
	p3 := m.Transform(Point{X: r.Left(), Y: r.Bottom()})
	p4 := m.Transform(Point{X: r.Right(), Y: r.Bottom()})

	minX := math.Min(math.Min(p1.X, p2.X), math.Min(p3.X, p4.X))
	minY := math.Min(math.Min(p1.Y, p2.Y), math.Min(p3.Y, p4.Y))
	maxX := math.Max(math.Max(p1.X, p2.X), math.Max(p3.X, p4.X))
	maxY := math.Max(math.Max(p1.Y, p2.Y), math.Max(p3.Y, p4.Y))

	return Rect{X: minX, Y: minY, W: maxX - minX, H: maxY - minY}
}

// Multiply multiplies two matrices. The receiver is applied first,
// the argument second.
func (m Matrix) Multiply(other Matrix) Matrix {
	return Matrix{
		m[0]*other[0] + m[1]*other[2],
		m[0]*other[1] + m[1]*other[3],
		m[2]*other[0] + m[3]*other[2],
		m[2]*other[1] + m[3]*other[3],
		m[4]*other[0] + m[5]*other[2] + other[4],
		m[4]*other[1] + m[5]*other[3] + other[5],
	}
}

// Inverse returns the inverse transformation. The second return value is
// false when the matrix is singular.
func (m Matrix) Inverse() (Matrix, bool) {
	det := m[0]*m[3] - m[1]*m[2]
	if math.Abs(det) < 1e-12 {
		return Identity(), false
	}

	return Matrix{
		m[3] / det,
		-m[1] / det,
		-m[2] / det,
		m[0] / det,
		(m[2]*m[5] - m[3]*m[4]) / det,
		(m[1]*m[4] - m[0]*m[5]) / det,
	}, true
}

// Translate creates a translation matrix.
func Translate(tx, ty float64) Matrix {
	return Matrix{1, 0, 0, 1, tx, ty}
}

// Scale creates a scaling matrix.
func Scale(sx, sy float64) Matrix {
	return Matrix{sx, 0, 0, sy, 0, 0}
}

// RotateRad creates a rotation matrix (angle in radians, positive is
// clockwise in the top-left origin convention).
func RotateRad(angle float64) Matrix {
	cos := math.Cos(angle)
	sin := math.Sin(angle)
	return Matrix{cos, sin, -sin, cos, 0, 0}
}

// IsIdentity returns true if the matrix is an identity matrix.
func (m Matrix) IsIdentity() bool {
	return m[0] == 1 && m[1] == 0 && m[2] == 0 && m[3] == 1 && m[4] == 0 && m[5] == 0
}
