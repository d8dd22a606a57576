package lectern

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/tsawler/lectern/annotations"
	"github.com/tsawler/lectern/geom"
	"github.com/tsawler/lectern/pageorder"
	"github.com/tsawler/lectern/scrollsync"
)

// StateVersion is the version of the persisted view state format.
const StateVersion = 1

// viewState is the persisted form of a session's restorable state.
type viewState struct {
	Version     int                  `json:"version"`
	Fingerprint string               `json:"fingerprint,omitempty"`
	Zoom        float64              `json:"zoom"`
	Rotation    int                  `json:"rotation"`
	Mode        string               `json:"mode"`
	CurrentPage int                  `json:"currentPage"`
	PageOrder   []int                `json:"pageOrder"`
	Rotations   []pageRotation       `json:"pageRotations,omitempty"`
	Annotations annotations.Envelope `json:"annotations"`
}

type pageRotation struct {
	Page    int `json:"page"`
	Degrees int `json:"degrees"`
}

// SaveState captures the session's restorable state: page order and
// rotations, zoom, mode, current page and the full annotation set, in a
// versioned JSON document keyed to the document's fingerprint.
func (s *Session) SaveState() ([]byte, error) {
	snap := s.order.Snapshot()
	rotations := make([]pageRotation, 0, len(snap.Rotations))
	for page, r := range snap.Rotations {
		rotations = append(rotations, pageRotation{Page: page, Degrees: int(r)})
	}
	sort.Slice(rotations, func(i, j int) bool { return rotations[i].Page < rotations[j].Page })

	st := viewState{
		Version:     StateVersion,
		Fingerprint: s.fingerprint,
		Zoom:        s.zoom,
		Rotation:    int(s.rotation),
		Mode:        s.scroll.Mode().String(),
		CurrentPage: s.scroll.CurrentPage(),
		PageOrder:   snap.Order,
		Rotations:   rotations,
		Annotations: s.notes.ExportAll(),
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("save state: %w", err)
	}
	return data, nil
}

// LoadState restores a state produced by SaveState. The page order,
// rotations and annotations are validated before anything is applied;
// an invalid state leaves the session unchanged. A state saved from a
// different document is rejected by fingerprint.
func (s *Session) LoadState(data []byte) error {
	var st viewState
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	if st.Version != StateVersion {
		return fmt.Errorf("load state: unsupported version %d", st.Version)
	}
	if st.Fingerprint != "" && s.fingerprint != "" && st.Fingerprint != s.fingerprint {
		return fmt.Errorf("load state: state belongs to a different document")
	}

	snap := pageorder.Snapshot{
		Order:     st.PageOrder,
		Rotations: make(map[int]geom.Rotation, len(st.Rotations)),
	}
	for _, pr := range st.Rotations {
		snap.Rotations[pr.Page] = geom.Rotation(pr.Degrees)
	}

	// A state without an annotations block means an empty set, not a
	// versionless envelope.
	env := st.Annotations
	if env.Version == 0 && len(env.Annotations) == 0 {
		env.Version = annotations.EnvelopeVersion
	}

	prev := s.order.Snapshot()
	if err := s.order.Restore(snap); err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	if err := s.notes.ImportAll(env, s.order.PageCount()); err != nil {
		// Roll the order back so a bad state changes nothing.
		if rerr := s.order.Restore(prev); rerr != nil {
			s.log.Error("state rollback failed", "error", rerr)
		}
		return fmt.Errorf("load state: %w", err)
	}

	s.rotation = geom.NormalizeRotation(st.Rotation)
	if st.Zoom > 0 {
		s.zoom = geom.ClampZoom(st.Zoom)
	}
	s.scroll.SetMode(parseMode(st.Mode))
	s.viewChanged()
	if st.CurrentPage >= 1 {
		s.scroll.GoToPage(st.CurrentPage)
	}
	s.log.Debug("state loaded", "pages", s.order.Len(), "annotations", s.notes.Count())
	return nil
}

func parseMode(name string) scrollsync.Mode {
	switch name {
	case "two-page":
		return scrollsync.ModeTwoPage
	case "continuous":
		return scrollsync.ModeContinuous
	default:
		return scrollsync.ModeSingle
	}
}
