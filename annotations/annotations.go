// Package annotations stores user annotations for one document: CRUD,
// inverse-operation undo/redo, per-page queries, and a versioned JSON
// interchange format.
//
// Annotations are keyed by the page's stable original index and placed in
// coordinates normalized to the unrotated content box, so they survive
// zoom, rotation and page reordering unchanged. Every mutation flows
// through a single internal dispatch; the history stacks hold inverse
// operations, not snapshots of the whole store.
package annotations

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Type identifies the kind of annotation.
type Type string

const (
	TypeHighlight Type = "highlight"
	TypeComment   Type = "comment"
	TypeShape     Type = "shape"
	TypeText      Type = "text"
	TypeDrawing   Type = "drawing"
	TypeStamp     Type = "stamp"
	TypeImage     Type = "image"
)

// IsValid reports whether t is one of the known annotation types.
func (t Type) IsValid() bool {
	switch t {
	case TypeHighlight, TypeComment, TypeShape, TypeText, TypeDrawing, TypeStamp, TypeImage:
		return true
	}
	return false
}

// Position locates an annotation on its page, normalized to [0,1] against
// the unrotated content box. Width and height are zero for point-anchored
// annotations.
type Position struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`
}

// PathPoint is one vertex of a freehand drawing, normalized like Position.
type PathPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Annotation is one user annotation. The zero value is not valid; use
// Store.Add to create annotations.
type Annotation struct {
	ID          string      `json:"id"`
	Type        Type        `json:"type"`
	PageNumber  int         `json:"pageNumber"` // 1-based original index
	Position    Position    `json:"position"`
	Color       string      `json:"color"`
	Content     string      `json:"content,omitempty"`
	Path        []PathPoint `json:"path,omitempty"`
	StrokeWidth float64     `json:"strokeWidth,omitempty"`
	Timestamp   int64       `json:"timestamp"` // creation time, epoch milliseconds

	seq int // insertion sequence, breaks timestamp ties; not serialized
}

// Clone returns a deep copy.
func (a Annotation) Clone() Annotation {
	out := a
	if a.Path != nil {
		out.Path = append([]PathPoint(nil), a.Path...)
	}
	return out
}

// Patch selects the fields an update replaces. Nil pointers leave the
// field untouched; a non-nil Path replaces the whole path.
type Patch struct {
	Position    *Position
	Color       *string
	Content     *string
	Path        []PathPoint
	StrokeWidth *float64
}

// NotFoundError reports an unknown annotation id.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("annotation %q not found", e.ID)
}

// ============================================================================
// Store
// ============================================================================

// Store holds every annotation of one document. It is safe for concurrent
// use; mutations are atomic and never observable half-applied.
type Store struct {
	mu       sync.RWMutex
	items    map[string]Annotation
	undo     []histEntry
	redo     []histEntry
	nextSeq  int
	onChange func()

	now   func() time.Time
	newID func() string
}

type actionKind int

const (
	actAdd actionKind = iota
	actRemove
	actSet // full-record replacement, used by update in both directions
)

// action is one primitive mutation. add and set carry the full record;
// remove needs only the id.
type action struct {
	kind actionKind
	id   string
	ann  Annotation
}

// histEntry pairs the inverse applied on undo with the forward operation
// pushed to the redo stack.
type histEntry struct {
	inverse action
	forward action
}

// New creates an empty store.
func New() *Store {
	return &Store{
		items: make(map[string]Annotation),
		now:   time.Now,
		newID: randomID,
	}
}

func randomID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand failing means the process is in far deeper trouble;
		// fall back to a time-derived id rather than panicking.
		return fmt.Sprintf("%016x", time.Now().UnixNano())
	}
	return hex.EncodeToString(b[:])
}

// OnChange registers a callback invoked after every applied mutation,
// including undo, redo and import. At most one callback is kept.
func (s *Store) OnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

func (s *Store) notify() {
	s.mu.RLock()
	fn := s.onChange
	s.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// Add inserts a new annotation. The id and timestamp fields are assigned
// here; whatever the caller put in them is overwritten. Returns the
// assigned id.
func (s *Store) Add(a Annotation) (string, error) {
	if !a.Type.IsValid() {
		return "", fmt.Errorf("unknown annotation type %q", a.Type)
	}
	if a.PageNumber < 1 {
		return "", fmt.Errorf("invalid page number %d", a.PageNumber)
	}

	s.mu.Lock()
	a.ID = s.newID()
	a.Timestamp = s.now().UnixMilli()
	a = a.Clone()

	s.apply(action{kind: actAdd, id: a.ID, ann: a})
	s.push(histEntry{
		inverse: action{kind: actRemove, id: a.ID},
		forward: action{kind: actAdd, id: a.ID, ann: a},
	})
	s.mu.Unlock()

	s.notify()
	return a.ID, nil
}

// AddStamp inserts a stamp annotation anchored at a normalized point. The
// stamp's definition name travels in the content field.
func (s *Store) AddStamp(stampName string, pageNumber int, at PathPoint) (string, error) {
	return s.Add(Annotation{
		Type:       TypeStamp,
		PageNumber: pageNumber,
		Position:   Position{X: at.X, Y: at.Y},
		Content:    stampName,
	})
}

// AddImage inserts an image annotation covering a normalized rectangle.
// The image payload travels in the content field as a data URI.
func (s *Store) AddImage(dataURI string, pageNumber int, pos Position) (string, error) {
	return s.Add(Annotation{
		Type:       TypeImage,
		PageNumber: pageNumber,
		Position:   pos,
		Content:    dataURI,
	})
}

// Remove deletes an annotation by id.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	prev, ok := s.items[id]
	if !ok {
		s.mu.Unlock()
		return &NotFoundError{ID: id}
	}

	s.apply(action{kind: actRemove, id: id})
	s.push(histEntry{
		inverse: action{kind: actAdd, id: id, ann: prev},
		forward: action{kind: actRemove, id: id},
	})
	s.mu.Unlock()

	s.notify()
	return nil
}

// Update replaces the fields selected by patch. The annotation's type,
// page and creation timestamp are immutable.
func (s *Store) Update(id string, patch Patch) error {
	s.mu.Lock()
	prev, ok := s.items[id]
	if !ok {
		s.mu.Unlock()
		return &NotFoundError{ID: id}
	}

	next := prev.Clone()
	if patch.Position != nil {
		next.Position = *patch.Position
	}
	if patch.Color != nil {
		next.Color = *patch.Color
	}
	if patch.Content != nil {
		next.Content = *patch.Content
	}
	if patch.Path != nil {
		next.Path = append([]PathPoint(nil), patch.Path...)
	}
	if patch.StrokeWidth != nil {
		next.StrokeWidth = *patch.StrokeWidth
	}

	s.apply(action{kind: actSet, id: id, ann: next})
	s.push(histEntry{
		inverse: action{kind: actSet, id: id, ann: prev},
		forward: action{kind: actSet, id: id, ann: next},
	})
	s.mu.Unlock()

	s.notify()
	return nil
}

// Undo reverts the most recent mutation. Returns false when there is
// nothing to undo.
func (s *Store) Undo() bool {
	s.mu.Lock()
	if len(s.undo) == 0 {
		s.mu.Unlock()
		return false
	}
	e := s.undo[len(s.undo)-1]
	s.undo = s.undo[:len(s.undo)-1]

	s.apply(e.inverse)
	s.redo = append(s.redo, e)
	s.mu.Unlock()

	s.notify()
	return true
}

// Redo reapplies the most recently undone mutation. Returns false when
// there is nothing to redo.
func (s *Store) Redo() bool {
	s.mu.Lock()
	if len(s.redo) == 0 {
		s.mu.Unlock()
		return false
	}
	e := s.redo[len(s.redo)-1]
	s.redo = s.redo[:len(s.redo)-1]

	s.apply(e.forward)
	s.undo = append(s.undo, e)
	s.mu.Unlock()

	s.notify()
	return true
}

// CanUndo reports whether the undo stack is non-empty.
func (s *Store) CanUndo() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.undo) > 0
}

// CanRedo reports whether the redo stack is non-empty.
func (s *Store) CanRedo() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.redo) > 0
}

// Get returns a copy of the annotation with the given id.
func (s *Store) Get(id string) (Annotation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.items[id]
	if !ok {
		return Annotation{}, false
	}
	return a.Clone(), true
}

// ByPage returns the annotations on an original page, ordered by creation
// time.
func (s *Store) ByPage(original int) []Annotation {
	s.mu.RLock()
	out := make([]Annotation, 0, 8)
	for _, a := range s.items {
		if a.PageNumber == original {
			out = append(out, a.Clone())
		}
	}
	s.mu.RUnlock()

	sortAnnotations(out)
	return out
}

// All returns every annotation, ordered by page, then creation time.
func (s *Store) All() []Annotation {
	s.mu.RLock()
	out := make([]Annotation, 0, len(s.items))
	for _, a := range s.items {
		out = append(out, a.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].PageNumber != out[j].PageNumber {
			return out[i].PageNumber < out[j].PageNumber
		}
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp < out[j].Timestamp
		}
		return out[i].seq < out[j].seq
	})
	return out
}

// Count returns the number of stored annotations.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func sortAnnotations(list []Annotation) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].Timestamp != list[j].Timestamp {
			return list[i].Timestamp < list[j].Timestamp
		}
		return list[i].seq < list[j].seq
	})
}

// apply executes a primitive action against the map. Callers hold the
// write lock and manage history themselves.
func (s *Store) apply(act action) {
	switch act.kind {
	case actAdd, actSet:
		a := act.ann.Clone()
		if prev, ok := s.items[act.id]; ok {
			a.seq = prev.seq
		} else {
			s.nextSeq++
			a.seq = s.nextSeq
		}
		s.items[act.id] = a
	case actRemove:
		delete(s.items, act.id)
	}
}

// push records a history entry and clears the redo stack, as every fresh
// mutation invalidates the redo chain.
func (s *Store) push(e histEntry) {
	s.undo = append(s.undo, e)
	s.redo = s.redo[:0]
}
