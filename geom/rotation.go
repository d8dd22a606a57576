package geom

// Rotation is a clockwise quarter-turn page rotation in degrees.
// Valid values are 0, 90, 180 and 270.
type Rotation int

const (
	Rotate0   Rotation = 0
	Rotate90  Rotation = 90
	Rotate180 Rotation = 180
	Rotate270 Rotation = 270
)

// NormalizeRotation folds an arbitrary degree value into {0, 90, 180, 270}.
// Negative values rotate counter-clockwise; values that are not multiples
// of 90 are floored to the nearest quarter turn.
func NormalizeRotation(degrees int) Rotation {
	r := ((degrees % 360) + 360) % 360
	return Rotation(r - r%90)
}

// Plus composes two rotations.
func (r Rotation) Plus(other Rotation) Rotation {
	return NormalizeRotation(int(r) + int(other))
}

// Swaps returns true when the rotation exchanges width and height.
func (r Rotation) Swaps() bool {
	return r == Rotate90 || r == Rotate270
}

// IsValid returns true for the four quarter-turn values.
func (r Rotation) IsValid() bool {
	switch r {
	case Rotate0, Rotate90, Rotate180, Rotate270:
		return true
	}
	return false
}
