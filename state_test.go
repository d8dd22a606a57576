package lectern

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/tsawler/lectern/annotations"
	"github.com/tsawler/lectern/scrollsync"
)

func TestSaveLoadStateRoundTrip(t *testing.T) {
	a, _, _ := newTestSession(t, 5)
	if err := a.Reorder([]int{2, 1, 3, 4, 5}); err != nil {
		t.Fatalf("Reorder() error = %v", err)
	}
	if err := a.RotatePage(1); err != nil { // visual 1 is original 2
		t.Fatalf("RotatePage() error = %v", err)
	}
	a.SetZoom(2)
	a.SetMode(scrollsync.ModeContinuous)
	if _, err := a.Annotations().Add(annotations.Annotation{
		Type:       annotations.TypeHighlight,
		PageNumber: 2,
		Position:   annotations.Position{X: 0.5, Y: 0.5, Width: 0.2, Height: 0.1},
		Color:      "#ffee00",
	}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	a.GoToPage(3)

	data, err := a.SaveState()
	if err != nil {
		t.Fatalf("SaveState() error = %v", err)
	}

	b, _, _ := newTestSession(t, 5)
	if err := b.LoadState(data); err != nil {
		t.Fatalf("LoadState() error = %v", err)
	}

	if diff := cmp.Diff([]int{2, 1, 3, 4, 5}, b.Order()); diff != "" {
		t.Errorf("Order() mismatch (-want +got):\n%s", diff)
	}
	if got := b.Zoom(); got != 2 {
		t.Errorf("Zoom() = %v, want 2", got)
	}
	if got := b.Mode(); got != scrollsync.ModeContinuous {
		t.Errorf("Mode() = %v, want ModeContinuous", got)
	}
	if got := b.CurrentPage(); got != 3 {
		t.Errorf("CurrentPage() = %d, want 3", got)
	}
	if got := b.Annotations().Count(); got != 1 {
		t.Errorf("Annotations().Count() = %d, want 1", got)
	}
	// Imported state is the new history baseline.
	if b.Annotations().CanUndo() {
		t.Error("CanUndo() = true after state load")
	}

	var st viewState
	if err := json.Unmarshal(Must(b.SaveState()), &st); err != nil {
		t.Fatalf("re-save unmarshal error = %v", err)
	}
	wantRot := []pageRotation{{Page: 2, Degrees: 90}}
	if diff := cmp.Diff(wantRot, st.Rotations); diff != "" {
		t.Errorf("saved rotations mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadStateRejectsInvalidOrder(t *testing.T) {
	s, _, _ := newTestSession(t, 5)
	data := Must(s.SaveState())

	var st viewState
	if err := json.Unmarshal(data, &st); err != nil {
		t.Fatalf("unmarshal error = %v", err)
	}
	st.PageOrder = []int{1, 1, 3, 4, 5}
	bad := Must(json.Marshal(st))

	if err := s.LoadState(bad); err == nil {
		t.Fatal("LoadState() accepted a duplicate page order")
	}
	if diff := cmp.Diff([]int{1, 2, 3, 4, 5}, s.Order()); diff != "" {
		t.Errorf("Order() changed by rejected load (-want +got):\n%s", diff)
	}
}

func TestLoadStateRollsBackOrderOnBadAnnotations(t *testing.T) {
	s, _, _ := newTestSession(t, 5)

	st := viewState{
		Version:   StateVersion,
		Zoom:      1.5,
		Mode:      "single",
		PageOrder: []int{2, 1, 3, 4, 5},
		Annotations: annotations.Envelope{
			Version: annotations.EnvelopeVersion,
			Annotations: []annotations.Annotation{{
				ID:         "a-1",
				Type:       annotations.TypeHighlight,
				PageNumber: 1,
				Position:   annotations.Position{X: 2.5},
				Timestamp:  1000,
			}},
		},
	}
	data := Must(json.Marshal(st))

	if err := s.LoadState(data); err == nil {
		t.Fatal("LoadState() accepted an out-of-range annotation")
	}
	if diff := cmp.Diff([]int{1, 2, 3, 4, 5}, s.Order()); diff != "" {
		t.Errorf("order not rolled back (-want +got):\n%s", diff)
	}
	if got := s.Zoom(); got != 1 {
		t.Errorf("Zoom() = %v after rejected load, want 1", got)
	}
	if got := s.Annotations().Count(); got != 0 {
		t.Errorf("Annotations().Count() = %d after rejected load, want 0", got)
	}
}

func TestLoadStateRejectsWrongVersion(t *testing.T) {
	s, _, _ := newTestSession(t, 3)

	st := viewState{Version: 99, PageOrder: []int{1, 2, 3}}
	if err := s.LoadState(Must(json.Marshal(st))); err == nil {
		t.Fatal("LoadState() accepted an unknown version")
	}
}

func TestLoadStateRejectsDifferentDocument(t *testing.T) {
	s, _, _ := newTestSession(t, 3)
	s.fingerprint = "aaaa"

	st := viewState{Version: StateVersion, Fingerprint: "bbbb", PageOrder: []int{1, 2, 3}}
	if err := s.LoadState(Must(json.Marshal(st))); err == nil {
		t.Fatal("LoadState() accepted state from a different document")
	}

	st.Fingerprint = "aaaa"
	if err := s.LoadState(Must(json.Marshal(st))); err != nil {
		t.Fatalf("LoadState() with matching fingerprint error = %v", err)
	}
}

func TestLoadStateRejectsMalformedJSON(t *testing.T) {
	s, _, _ := newTestSession(t, 3)
	if err := s.LoadState([]byte("{not json")); err == nil {
		t.Fatal("LoadState() accepted malformed JSON")
	}
}
