package lectern

import (
	"github.com/tsawler/lectern/geom"
	"github.com/tsawler/lectern/scrollsync"
)

// pageGap is the space between laid-out pages, in pixels.
const pageGap = 16.0

// relayout rebuilds the page rectangles and content extent for the
// current mode, zoom and rotations. Pages whose dimensions are not
// known yet are laid out at the placeholder size, so the geometry is
// stable from the first frame and only settles once, when real
// dimensions arrive.
func (s *Session) relayout() {
	n := s.order.Len()
	s.rects = make(map[int]geom.Rect, n)
	if n == 0 {
		s.content = geom.Size{}
		return
	}
	switch s.scroll.Mode() {
	case scrollsync.ModeContinuous:
		s.layoutRows(1)
	case scrollsync.ModeTwoPage:
		s.layoutRows(2)
	default:
		s.layoutSingle()
	}
}

// layoutSingle lays out just the current page; in single mode the view
// scrolls over one page at a time.
func (s *Session) layoutSingle() {
	cur := s.scroll.CurrentPage()
	if cur < 1 {
		cur = 1
	}
	vp, err := s.PageViewport(cur)
	if err != nil {
		s.content = geom.Size{}
		return
	}
	s.rects[cur] = geom.Rect{W: vp.W, H: vp.H}
	s.content = vp.Size()
}

// layoutRows stacks rows of perRow pages top to bottom, centering every
// row in the widest one.
func (s *Session) layoutRows(perRow int) {
	n := s.order.Len()
	type slot struct {
		visual int
		w, h   float64
	}

	width := 0.0
	rows := make([][]slot, 0, (n+perRow-1)/perRow)
	for v := 1; v <= n; v += perRow {
		row := make([]slot, 0, perRow)
		rowW := 0.0
		for i := 0; i < perRow && v+i <= n; i++ {
			vp, err := s.PageViewport(v + i)
			if err != nil {
				continue
			}
			row = append(row, slot{visual: v + i, w: vp.W, h: vp.H})
			rowW += vp.W
		}
		if len(row) == 0 {
			continue
		}
		rowW += pageGap * float64(len(row)-1)
		if rowW > width {
			width = rowW
		}
		rows = append(rows, row)
	}

	y := 0.0
	for _, row := range rows {
		rowW, rowH := 0.0, 0.0
		for _, sl := range row {
			rowW += sl.w
			if sl.h > rowH {
				rowH = sl.h
			}
		}
		rowW += pageGap * float64(len(row)-1)
		x := (width - rowW) / 2
		for _, sl := range row {
			s.rects[sl.visual] = geom.Rect{X: x, Y: y, W: sl.w, H: sl.h}
			x += sl.w + pageGap
		}
		y += rowH + pageGap
	}
	if y > 0 {
		y -= pageGap
	}
	s.content = geom.Size{W: width, H: y}
}
