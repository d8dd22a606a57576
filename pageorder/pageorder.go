// Package pageorder tracks the mapping between visual page positions and
// original page identities, plus per-page rotation overrides. Original
// indices are the stable 1..N identities assigned when a document is
// opened; visual indices are 1-based display positions that change as
// pages are reordered or removed.
//
// The model is not safe for concurrent use; the owning session
// serializes access.
package pageorder

import (
	"fmt"

	"github.com/tsawler/lectern/geom"
)

// Model holds the current page order and rotation overrides.
type Model struct {
	max   int         // original page count N
	order []int       // visual position (0-based slot) -> original index
	index map[int]int // original index -> visual position (1-based)
	rot   map[int]geom.Rotation
}

// InvalidIndexError reports a page index outside the valid range.
type InvalidIndexError struct {
	Kind  string // "visual" or "original"
	Index int
	Count int
}

func (e *InvalidIndexError) Error() string {
	return fmt.Sprintf("invalid %s page index %d (valid range 1..%d)", e.Kind, e.Index, e.Count)
}

// InvalidReorderError reports a reorder request that is not a permutation
// of the current page order.
type InvalidReorderError struct {
	Reason string
}

func (e *InvalidReorderError) Error() string {
	return "invalid reorder: " + e.Reason
}

// New creates a model for a document with n pages in natural order.
func New(n int) *Model {
	if n < 0 {
		n = 0
	}
	m := &Model{
		max:   n,
		order: make([]int, n),
		index: make(map[int]int, n),
		rot:   make(map[int]geom.Rotation),
	}
	for i := 0; i < n; i++ {
		m.order[i] = i + 1
		m.index[i+1] = i + 1
	}
	return m
}

// Len returns the number of visible pages.
func (m *Model) Len() int {
	return len(m.order)
}

// PageCount returns the document's original page count N.
func (m *Model) PageCount() int {
	return m.max
}

// Order returns a copy of the current visual order as original indices.
func (m *Model) Order() []int {
	out := make([]int, len(m.order))
	copy(out, m.order)
	return out
}

// ToOriginal maps a visual position to its original index.
func (m *Model) ToOriginal(visual int) (int, error) {
	if visual < 1 || visual > len(m.order) {
		return 0, &InvalidIndexError{Kind: "visual", Index: visual, Count: len(m.order)}
	}
	return m.order[visual-1], nil
}

// ToVisual maps an original index to its current visual position. Pages
// that have been removed from the order report an error.
func (m *Model) ToVisual(original int) (int, error) {
	v, ok := m.index[original]
	if !ok {
		return 0, &InvalidIndexError{Kind: "original", Index: original, Count: m.max}
	}
	return v, nil
}

// Reorder replaces the page order. newOrder must contain exactly the
// original indices currently in the order, each once; anything else is
// rejected without touching the model.
func (m *Model) Reorder(newOrder []int) error {
	if len(newOrder) != len(m.order) {
		return &InvalidReorderError{
			Reason: fmt.Sprintf("length %d does not match current order length %d", len(newOrder), len(m.order)),
		}
	}

	seen := make(map[int]bool, len(newOrder))
	for _, o := range newOrder {
		if _, ok := m.index[o]; !ok {
			return &InvalidReorderError{Reason: fmt.Sprintf("original index %d is not in the current order", o)}
		}
		if seen[o] {
			return &InvalidReorderError{Reason: fmt.Sprintf("original index %d appears more than once", o)}
		}
		seen[o] = true
	}

	m.order = append(m.order[:0:0], newOrder...)
	m.reindex()
	return nil
}

// Move relocates the page at visual position from to visual position to,
// shifting the pages in between.
func (m *Model) Move(from, to int) error {
	n := len(m.order)
	if from < 1 || from > n {
		return &InvalidIndexError{Kind: "visual", Index: from, Count: n}
	}
	if to < 1 || to > n {
		return &InvalidIndexError{Kind: "visual", Index: to, Count: n}
	}
	if from == to {
		return nil
	}

	page := m.order[from-1]
	rest := append(m.order[:from-1:from-1], m.order[from:]...)
	m.order = append(rest[:to-1:to-1], append([]int{page}, rest[to-1:]...)...)
	m.reindex()
	return nil
}

// RemovePage deletes the entry at the given visual position. Later visual
// positions shift down by one; the surviving pages keep their original
// indices. Rotation overrides are retained so the identity keeps its
// rotation in saved state.
func (m *Model) RemovePage(visual int) error {
	if visual < 1 || visual > len(m.order) {
		return &InvalidIndexError{Kind: "visual", Index: visual, Count: len(m.order)}
	}
	m.order = append(m.order[:visual-1], m.order[visual:]...)
	m.reindex()
	return nil
}

// RotatePage increments the rotation override of the given original index
// by 90 degrees, creating the entry if absent.
func (m *Model) RotatePage(original int) error {
	if original < 1 || original > m.max {
		return &InvalidIndexError{Kind: "original", Index: original, Count: m.max}
	}
	m.rot[original] = m.rot[original].Plus(geom.Rotate90)
	return nil
}

// SetRotation sets the rotation override of an original index directly.
// Used by state restore paths.
func (m *Model) SetRotation(original int, r geom.Rotation) error {
	if original < 1 || original > m.max {
		return &InvalidIndexError{Kind: "original", Index: original, Count: m.max}
	}
	if !r.IsValid() {
		return fmt.Errorf("invalid rotation %d", int(r))
	}
	if r == geom.Rotate0 {
		delete(m.rot, original)
		return nil
	}
	m.rot[original] = r
	return nil
}

// RotationOf returns the rotation override for an original index, or zero
// when none is set.
func (m *Model) RotationOf(original int) geom.Rotation {
	return m.rot[original]
}

// Rotations returns a copy of the non-zero rotation overrides.
func (m *Model) Rotations() map[int]geom.Rotation {
	out := make(map[int]geom.Rotation, len(m.rot))
	for k, v := range m.rot {
		out[k] = v
	}
	return out
}

// Snapshot captures the order and overrides for persistence.
type Snapshot struct {
	Order     []int
	Rotations map[int]geom.Rotation
}

// Snapshot returns a deep copy of the model's state.
func (m *Model) Snapshot() Snapshot {
	return Snapshot{Order: m.Order(), Rotations: m.Rotations()}
}

// Restore replaces the model's state with a snapshot. The snapshot's
// order must be a duplicate-free subset of [1..N]; invalid snapshots are
// rejected without touching the model.
func (m *Model) Restore(s Snapshot) error {
	seen := make(map[int]bool, len(s.Order))
	for _, o := range s.Order {
		if o < 1 || o > m.max {
			return &InvalidReorderError{Reason: fmt.Sprintf("original index %d outside 1..%d", o, m.max)}
		}
		if seen[o] {
			return &InvalidReorderError{Reason: fmt.Sprintf("original index %d appears more than once", o)}
		}
		seen[o] = true
	}
	for o, r := range s.Rotations {
		if o < 1 || o > m.max || !r.IsValid() {
			return &InvalidReorderError{Reason: fmt.Sprintf("invalid rotation entry %d=%d", o, int(r))}
		}
	}

	m.order = append([]int(nil), s.Order...)
	m.rot = make(map[int]geom.Rotation, len(s.Rotations))
	for o, r := range s.Rotations {
		if r != geom.Rotate0 {
			m.rot[o] = r
		}
	}
	m.reindex()
	return nil
}

func (m *Model) reindex() {
	m.index = make(map[int]int, len(m.order))
	for i, o := range m.order {
		m.index[o] = i + 1
	}
}
