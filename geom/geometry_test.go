package geom

import (
	"math"
	"testing"
)

// ============================================================================
// Point and Size Tests
// ============================================================================

func TestPointDistance(t *testing.T) {
	tests := []struct {
		name     string
		p1, p2   Point
		expected float64
	}{
		{"same point", Point{0, 0}, Point{0, 0}, 0},
		{"horizontal", Point{0, 0}, Point{3, 0}, 3},
		{"vertical", Point{0, 0}, Point{0, 4}, 4},
		{"diagonal 3-4-5", Point{0, 0}, Point{3, 4}, 5},
		{"negative coords", Point{-1, -1}, Point{2, 3}, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.p1.Distance(tt.p2)
			if math.Abs(result-tt.expected) > 0.0001 {
				t.Errorf("Distance() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestSizeSwapped(t *testing.T) {
	s := Size{W: 612, H: 792}
	got := s.Swapped()
	if got.W != 792 || got.H != 612 {
		t.Errorf("Swapped() = %+v, want {792 612}", got)
	}
}

func TestSizeIsEmpty(t *testing.T) {
	tests := []struct {
		name string
		s    Size
		want bool
	}{
		{"normal", Size{612, 792}, false},
		{"zero width", Size{0, 792}, true},
		{"zero height", Size{612, 0}, true},
		{"negative", Size{-1, 10}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.s.IsEmpty(); got != tt.want {
				t.Errorf("IsEmpty() = %v, want %v", got, tt.want)
			}
		})
	}
}

// ============================================================================
// Rect Tests
// ============================================================================

func TestRectFromPoints(t *testing.T) {
	tests := []struct {
		name   string
		p1, p2 Point
		want   Rect
	}{
		{"normal", Point{10, 20}, Point{50, 70}, Rect{10, 20, 40, 50}},
		{"reversed", Point{50, 70}, Point{10, 20}, Rect{10, 20, 40, 50}},
		{"same point", Point{10, 10}, Point{10, 10}, Rect{10, 10, 0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RectFromPoints(tt.p1, tt.p2)
			if got != tt.want {
				t.Errorf("RectFromPoints() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestRectEdges(t *testing.T) {
	r := NewRect(10, 20, 100, 50)

	if r.Left() != 10 {
		t.Errorf("Left() = %v, want 10", r.Left())
	}
	if r.Right() != 110 {
		t.Errorf("Right() = %v, want 110", r.Right())
	}
	if r.Top() != 20 {
		t.Errorf("Top() = %v, want 20", r.Top())
	}
	if r.Bottom() != 70 {
		t.Errorf("Bottom() = %v, want 70", r.Bottom())
	}
	if c := r.Center(); c.X != 60 || c.Y != 45 {
		t.Errorf("Center() = %+v, want {60 45}", c)
	}
}

func TestRectContains(t *testing.T) {
	r := NewRect(10, 10, 100, 100)
	tests := []struct {
		name string
		p    Point
		want bool
	}{
		{"center", Point{60, 60}, true},
		{"corner", Point{10, 10}, true},
		{"opposite corner", Point{110, 110}, true},
		{"left of rect", Point{5, 60}, false},
		{"below rect", Point{60, 115}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Contains(tt.p); got != tt.want {
				t.Errorf("Contains(%+v) = %v, want %v", tt.p, got, tt.want)
			}
		})
	}
}

func TestRectIntersection(t *testing.T) {
	t.Run("overlapping", func(t *testing.T) {
		a := NewRect(0, 0, 100, 100)
		b := NewRect(50, 50, 100, 100)
		got := a.Intersection(b)
		want := Rect{50, 50, 50, 50}
		if got != want {
			t.Errorf("Intersection() = %+v, want %+v", got, want)
		}
	})

	t.Run("disjoint", func(t *testing.T) {
		a := NewRect(0, 0, 10, 10)
		b := NewRect(100, 100, 10, 10)
		got := a.Intersection(b)
		if !got.IsEmpty() {
			t.Errorf("Intersection() = %+v, want empty", got)
		}
	})
}

func TestRectOverlapRatio(t *testing.T) {
	t.Run("complete overlap", func(t *testing.T) {
		a := NewRect(0, 0, 100, 100)
		b := NewRect(25, 25, 50, 50)
		if got := a.OverlapRatio(b); math.Abs(got-1.0) > 0.0001 {
			t.Errorf("OverlapRatio() = %v, want 1.0", got)
		}
	})

	t.Run("half overlap", func(t *testing.T) {
		a := NewRect(0, 0, 100, 100)
		b := NewRect(50, 0, 100, 100)
		if got := a.OverlapRatio(b); math.Abs(got-0.5) > 0.0001 {
			t.Errorf("OverlapRatio() = %v, want 0.5", got)
		}
	})

	t.Run("no overlap", func(t *testing.T) {
		a := NewRect(0, 0, 10, 10)
		b := NewRect(100, 100, 10, 10)
		if got := a.OverlapRatio(b); got != 0 {
			t.Errorf("OverlapRatio() = %v, want 0", got)
		}
	})
}

// ============================================================================
// Matrix Tests
// ============================================================================

func TestMatrixIdentity(t *testing.T) {
	m := Identity()
	if !m.IsIdentity() {
		t.Error("Identity().IsIdentity() = false, want true")
	}

	p := Point{13, 37}
	if got := m.Transform(p); got != p {
		t.Errorf("Identity().Transform(%+v) = %+v, want unchanged", p, got)
	}
}

func TestMatrixCompose(t *testing.T) {
	// Translate then scale: (10, 20) -> (11, 22) -> (22, 44).
	m := Translate(1, 2).Multiply(Scale(2, 2))
	got := m.Transform(Point{10, 20})
	want := Point{22, 44}
	if math.Abs(got.X-want.X) > 1e-9 || math.Abs(got.Y-want.Y) > 1e-9 {
		t.Errorf("Transform() = %+v, want %+v", got, want)
	}
}

func TestMatrixInverse(t *testing.T) {
	tests := []struct {
		name string
		m    Matrix
	}{
		{"identity", Identity()},
		{"translate", Translate(42, -7)},
		{"scale", Scale(2.5, 0.5)},
		{"rotate", RotateRad(math.Pi / 3)},
		{"composite", Translate(5, 5).Multiply(Scale(3, 3)).Multiply(RotateRad(1.1))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv, ok := tt.m.Inverse()
			if !ok {
				t.Fatal("Inverse() reported singular matrix")
			}
			p := Point{12.5, -3.25}
			back := inv.Transform(tt.m.Transform(p))
			if math.Abs(back.X-p.X) > 1e-9 || math.Abs(back.Y-p.Y) > 1e-9 {
				t.Errorf("round trip = %+v, want %+v", back, p)
			}
		})
	}

	t.Run("singular", func(t *testing.T) {
		if _, ok := (Matrix{0, 0, 0, 0, 1, 1}).Inverse(); ok {
			t.Error("Inverse() of singular matrix reported ok")
		}
	})
}

func TestMatrixTransformRect(t *testing.T) {
	// A quarter turn swaps the rectangle's extent.
	m := Matrix{0, 1, -1, 0, 100, 0}
	got := m.TransformRect(NewRect(0, 0, 30, 100))
	want := Rect{0, 0, 100, 30}
	if math.Abs(got.X-want.X) > 1e-9 || math.Abs(got.Y-want.Y) > 1e-9 ||
		math.Abs(got.W-want.W) > 1e-9 || math.Abs(got.H-want.H) > 1e-9 {
		t.Errorf("TransformRect() = %+v, want %+v", got, want)
	}
}

// ============================================================================
// Rotation Tests
// ============================================================================

func TestNormalizeRotation(t *testing.T) {
	tests := []struct {
		degrees int
		want    Rotation
	}{
		{0, Rotate0},
		{90, Rotate90},
		{180, Rotate180},
		{270, Rotate270},
		{360, Rotate0},
		{450, Rotate90},
		{-90, Rotate270},
		{-270, Rotate90},
		{-360, Rotate0},
		{91, Rotate90},
	}

	for _, tt := range tests {
		if got := NormalizeRotation(tt.degrees); got != tt.want {
			t.Errorf("NormalizeRotation(%d) = %v, want %v", tt.degrees, got, tt.want)
		}
	}
}

func TestRotationPlus(t *testing.T) {
	tests := []struct {
		a, b, want Rotation
	}{
		{Rotate0, Rotate90, Rotate90},
		{Rotate90, Rotate90, Rotate180},
		{Rotate270, Rotate90, Rotate0},
		{Rotate180, Rotate270, Rotate90},
	}

	for _, tt := range tests {
		if got := tt.a.Plus(tt.b); got != tt.want {
			t.Errorf("%v.Plus(%v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestRotationSwaps(t *testing.T) {
	if Rotate0.Swaps() || Rotate180.Swaps() {
		t.Error("0 and 180 degree rotations must not swap dimensions")
	}
	if !Rotate90.Swaps() || !Rotate270.Swaps() {
		t.Error("90 and 270 degree rotations must swap dimensions")
	}
}
