package lectern

import (
	"context"
	"image"
	"math"
	"sync"

	"github.com/tsawler/lectern/geom"
	"github.com/tsawler/lectern/source"
)

// RenderResult is a completed page rasterization. Original identifies
// the page; resolve it to a visual position with VisualOf when placing
// the image, and drop the result if the page is gone by then.
type RenderResult struct {
	Original int
	Viewport geom.Viewport
	Image    *image.RGBA
	Err      error
}

// renderJob tracks one in-flight rasterization so a newer request for
// the same page can cancel it.
type renderJob struct {
	cancel context.CancelFunc
}

// renderQueue runs rasterizations with per-page supersession: a new
// request for a page cancels the one already running for it, and a
// superseded render delivers nothing.
type renderQueue struct {
	ctx context.Context

	mu     sync.Mutex
	live   map[int]*renderJob
	closed bool
	wg     sync.WaitGroup
}

func newRenderQueue(ctx context.Context) *renderQueue {
	return &renderQueue{
		ctx:  ctx,
		live: make(map[int]*renderJob),
	}
}

// request starts rendering a page into a fresh image sized for the
// viewport. deliver runs on the render goroutine once, unless the job
// is superseded or the queue closed first.
func (q *renderQueue) request(original int, page source.Page, vp geom.Viewport, deliver func(RenderResult)) {
	w := int(math.Ceil(vp.W))
	h := int(math.Ceil(vp.H))
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	if prior, ok := q.live[original]; ok {
		prior.cancel()
	}
	rctx, cancel := context.WithCancel(q.ctx)
	job := &renderJob{cancel: cancel}
	q.live[original] = job
	q.wg.Add(1)
	q.mu.Unlock()

	go func() {
		defer q.wg.Done()
		defer cancel()

		img := image.NewRGBA(image.Rect(0, 0, w, h))
		err := page.Render(rctx, img, vp)

		q.mu.Lock()
		if q.live[original] == job {
			delete(q.live, original)
		}
		superseded := rctx.Err() != nil
		q.mu.Unlock()

		if superseded {
			return
		}
		deliver(RenderResult{Original: original, Viewport: vp, Image: img, Err: err})
	}()
}

// close cancels every live render and waits for the goroutines to
// drain. No deliveries happen after close returns.
func (q *renderQueue) close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	for _, job := range q.live {
		job.cancel()
	}
	q.live = make(map[int]*renderJob)
	q.mu.Unlock()
	q.wg.Wait()
}

// RenderPage rasterizes a visual page at the session's current zoom and
// rotation. The page's handle must already be cached; if it is not, the
// load is queued and ErrPageNotLoaded is returned so the host can show
// a placeholder and retry.
//
// Renders are per-page and superseding: requesting a page again cancels
// the render already running for it. The callback runs on an internal
// goroutine; apply the result on the view's goroutine.
func (s *Session) RenderPage(visual int, deliver func(RenderResult)) error {
	original, err := s.order.ToOriginal(visual)
	if err != nil {
		return err
	}
	page, ok := s.cache.Get(original)
	if !ok {
		s.cache.EnsureLoaded(s.ctx, original)
		return ErrPageNotLoaded
	}
	vp, err := s.PageViewport(visual)
	if err != nil {
		return err
	}
	s.renders.request(original, page, vp, deliver)
	return nil
}
