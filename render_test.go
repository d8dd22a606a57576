package lectern

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tsawler/lectern/geom"
)

func TestRenderPageDeliversImage(t *testing.T) {
	s, _, _ := newTestSession(t, 3)
	s.Wait()

	got := make(chan RenderResult, 1)
	if err := s.RenderPage(1, func(r RenderResult) { got <- r }); err != nil {
		t.Fatalf("RenderPage() error = %v", err)
	}

	select {
	case r := <-got:
		if r.Err != nil {
			t.Fatalf("render error = %v", r.Err)
		}
		if r.Original != 1 {
			t.Errorf("result.Original = %d, want 1", r.Original)
		}
		b := r.Image.Bounds()
		if b.Dx() != 600 || b.Dy() != 800 {
			t.Errorf("image bounds = %dx%d, want 600x800", b.Dx(), b.Dy())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("render result not delivered")
	}
}

func TestRenderPageQueuesUnloadedPage(t *testing.T) {
	s, _, _ := newTestSession(t, 6)
	s.Wait()

	err := s.RenderPage(6, func(RenderResult) {})
	if !errors.Is(err, ErrPageNotLoaded) {
		t.Fatalf("RenderPage(6) error = %v, want ErrPageNotLoaded", err)
	}

	// The miss queued the load; once it completes the render works.
	s.Wait()
	if !s.IsLoaded(6) {
		t.Fatal("page 6 not loaded after Wait")
	}
	got := make(chan RenderResult, 1)
	if err := s.RenderPage(6, func(r RenderResult) { got <- r }); err != nil {
		t.Fatalf("RenderPage(6) after load error = %v", err)
	}
	select {
	case r := <-got:
		if r.Err != nil {
			t.Fatalf("render error = %v", r.Err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("render result not delivered")
	}
}

func TestRenderPageRejectsBadIndex(t *testing.T) {
	s, _, _ := newTestSession(t, 3)
	if err := s.RenderPage(9, func(RenderResult) {}); err == nil {
		t.Fatal("RenderPage(9) accepted an out-of-range page")
	}
}

func TestRenderSupersedesPriorForSamePage(t *testing.T) {
	doc := newFakeDoc(2)
	gate := make(chan struct{})
	doc.pages[1].renderGate = gate
	s, _ := newSessionWithDoc(t, doc)
	s.Wait()

	got := make(chan int, 2)
	if err := s.RenderPage(1, func(RenderResult) { got <- 1 }); err != nil {
		t.Fatalf("first RenderPage() error = %v", err)
	}
	if err := s.RenderPage(1, func(RenderResult) { got <- 2 }); err != nil {
		t.Fatalf("second RenderPage() error = %v", err)
	}
	close(gate)

	select {
	case tag := <-got:
		if tag != 2 {
			t.Errorf("delivered render = %d, want only the second", tag)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no render delivered")
	}
	select {
	case tag := <-got:
		t.Errorf("superseded render %d was delivered", tag)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRenderQueueCloseDropsPending(t *testing.T) {
	doc := newFakeDoc(1)
	gate := make(chan struct{})
	doc.pages[1].renderGate = gate
	s, _ := newSessionWithDoc(t, doc)
	s.Wait()

	got := make(chan int, 1)
	if err := s.RenderPage(1, func(RenderResult) { got <- 1 }); err != nil {
		t.Fatalf("RenderPage() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	select {
	case <-got:
		t.Error("render delivered after Close")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRenderQueueRequestAfterClose(t *testing.T) {
	q := newRenderQueue(context.Background())
	q.close()
	q.close() // second close is a no-op

	page := &fakePage{size: geom.Size{W: 10, H: 10}}
	vp := geom.PageViewport(page.size, 1, geom.Rotate0)
	q.request(1, page, vp, func(RenderResult) {
		t.Error("deliver ran on a closed queue")
	})
}
