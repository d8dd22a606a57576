package annotations

import (
	"encoding/json"
	"fmt"
)

// EnvelopeVersion is the interchange format version this package writes.
const EnvelopeVersion = 1

// Envelope is the versioned interchange document for annotation sets.
type Envelope struct {
	Version     int          `json:"version"`
	Annotations []Annotation `json:"annotations"`
}

// ImportError describes the first entry that failed validation. Index is
// the entry's position in the envelope, or -1 for envelope-level
// problems.
type ImportError struct {
	Index  int
	Field  string
	Reason string
}

func (e *ImportError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("annotation import rejected: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("annotation import rejected: entry %d, field %s: %s", e.Index, e.Field, e.Reason)
}

// ExportAll captures every annotation in a versioned envelope, ordered by
// page and creation time.
func (s *Store) ExportAll() Envelope {
	return Envelope{
		Version:     EnvelopeVersion,
		Annotations: s.All(),
	}
}

// EncodeJSON renders the store's annotations as indented JSON.
func (s *Store) EncodeJSON() ([]byte, error) {
	return json.MarshalIndent(s.ExportAll(), "", "  ")
}

// DecodeJSON parses an annotation envelope. It only decodes; call
// ImportAll to validate and apply it.
func DecodeJSON(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decoding annotation envelope: %w", err)
	}
	return env, nil
}

// ImportAll validates the envelope and replaces the store's content with
// it. Validation is all-or-nothing: the first invalid entry rejects the
// whole import and the store is left exactly as it was. pageCount bounds
// the page range check; pass 0 when the document's page count is not
// known. A successful import clears both history stacks, making the
// imported state the new undo baseline.
func (s *Store) ImportAll(env Envelope, pageCount int) error {
	if env.Version != EnvelopeVersion {
		return &ImportError{Index: -1, Field: "version", Reason: fmt.Sprintf("unsupported version %d", env.Version)}
	}

	seenIDs := make(map[string]bool, len(env.Annotations))
	for i, a := range env.Annotations {
		if err := validateEntry(i, a, pageCount); err != nil {
			return err
		}
		if seenIDs[a.ID] {
			return &ImportError{Index: i, Field: "id", Reason: fmt.Sprintf("duplicate id %q", a.ID)}
		}
		seenIDs[a.ID] = true
	}

	s.mu.Lock()
	s.items = make(map[string]Annotation, len(env.Annotations))
	s.nextSeq = 0
	for _, a := range env.Annotations {
		s.nextSeq++
		c := a.Clone()
		c.seq = s.nextSeq
		s.items[c.ID] = c
	}
	s.undo = nil
	s.redo = nil
	s.mu.Unlock()

	s.notify()
	return nil
}

func validateEntry(i int, a Annotation, pageCount int) error {
	if a.ID == "" {
		return &ImportError{Index: i, Field: "id", Reason: "missing"}
	}
	if !a.Type.IsValid() {
		return &ImportError{Index: i, Field: "type", Reason: fmt.Sprintf("unknown type %q", a.Type)}
	}
	if a.PageNumber < 1 {
		return &ImportError{Index: i, Field: "pageNumber", Reason: fmt.Sprintf("%d is not a valid original index", a.PageNumber)}
	}
	if pageCount > 0 && a.PageNumber > pageCount {
		return &ImportError{Index: i, Field: "pageNumber", Reason: fmt.Sprintf("%d exceeds page count %d", a.PageNumber, pageCount)}
	}
	if a.Timestamp <= 0 {
		return &ImportError{Index: i, Field: "timestamp", Reason: "missing"}
	}

	if err := checkRange(i, "position.x", a.Position.X); err != nil {
		return err
	}
	if err := checkRange(i, "position.y", a.Position.Y); err != nil {
		return err
	}
	if err := checkRange(i, "position.width", a.Position.Width); err != nil {
		return err
	}
	if err := checkRange(i, "position.height", a.Position.Height); err != nil {
		return err
	}

	for j, p := range a.Path {
		if err := checkRange(i, fmt.Sprintf("path[%d].x", j), p.X); err != nil {
			return err
		}
		if err := checkRange(i, fmt.Sprintf("path[%d].y", j), p.Y); err != nil {
			return err
		}
	}

	if a.StrokeWidth < 0 {
		return &ImportError{Index: i, Field: "strokeWidth", Reason: "negative"}
	}
	return nil
}

func checkRange(i int, field string, v float64) error {
	if v < 0 || v > 1 {
		return &ImportError{Index: i, Field: field, Reason: fmt.Sprintf("%v outside [0,1]", v)}
	}
	return nil
}
