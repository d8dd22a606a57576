package httpd

import (
	"net/http"

	"github.com/tsawler/lectern"
	"github.com/tsawler/lectern/geom"
	"github.com/tsawler/lectern/logging"
	"github.com/tsawler/lectern/scrollsync"
)

// ViewHandler handles view state and page arrangement requests.
type ViewHandler struct {
	registry *Registry
	log      logging.Logger
}

// NewViewHandler creates a new view handler.
func NewViewHandler(registry *Registry, log logging.Logger) *ViewHandler {
	return &ViewHandler{registry: registry, log: log}
}

type sizeJSON struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type pointJSON struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type viewResponse struct {
	Zoom        float64   `json:"zoom"`
	Rotation    int       `json:"rotation"`
	Mode        string    `json:"mode"`
	CurrentPage int       `json:"currentPage"`
	Viewport    sizeJSON  `json:"viewport"`
	Content     sizeJSON  `json:"content"`
	Scroll      pointJSON `json:"scroll"`
	Order       []int     `json:"order"`
}

// viewRequest carries a partial view update; absent fields leave the
// corresponding setting unchanged.
type viewRequest struct {
	Zoom     *float64   `json:"zoom"`
	Fit      *string    `json:"fit"` // "width" or "page"
	Mode     *string    `json:"mode"`
	Rotation *int       `json:"rotation"`
	Page     *int       `json:"page"` // visual page to jump to
	Viewport *sizeJSON  `json:"viewport"`
	Scroll   *pointJSON `json:"scroll"`
}

type reorderRequest struct {
	Order []int `json:"order"`
}

type moveRequest struct {
	To int `json:"to"`
}

type navigateRequest struct {
	Action string `json:"action"`
}

// GetView handles fetching the current view state.
func (h *ViewHandler) GetView(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, viewState(sess))
}

// UpdateView handles a partial view state update. Viewport size is
// applied before zoom and fit so that fit modes see the new geometry.
func (h *ViewHandler) UpdateView(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := h.session(w, r)
	if !ok {
		return
	}

	var req viewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.Viewport != nil {
		sess.SetViewportSize(geom.Size{W: req.Viewport.Width, H: req.Viewport.Height})
	}
	if req.Mode != nil {
		mode, ok := parseLayoutMode(*req.Mode)
		if !ok {
			writeError(w, http.StatusBadRequest, "Unknown layout mode: "+*req.Mode)
			return
		}
		sess.SetMode(mode)
	}
	if req.Rotation != nil {
		sess.SetRotation(geom.NormalizeRotation(*req.Rotation))
	}
	if req.Zoom != nil {
		sess.SetZoom(*req.Zoom)
	}
	if req.Fit != nil {
		switch *req.Fit {
		case "width":
			sess.FitWidth()
		case "page":
			sess.FitPage()
		default:
			writeError(w, http.StatusBadRequest, "Unknown fit mode: "+*req.Fit)
			return
		}
	}
	if req.Page != nil {
		if *req.Page < 1 || *req.Page > sess.PageCount() {
			writeError(w, http.StatusBadRequest, "Page out of range")
			return
		}
		sess.GoToPage(*req.Page)
	}
	if req.Scroll != nil {
		sess.SetScrollOffset(geom.Point{X: req.Scroll.X, Y: req.Scroll.Y})
	}

	writeJSON(w, http.StatusOK, viewState(sess))
}

// Navigate handles page navigation and stepped zoom actions.
func (h *ViewHandler) Navigate(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := h.session(w, r)
	if !ok {
		return
	}

	var req navigateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	switch req.Action {
	case "next":
		sess.NextPage()
	case "previous":
		sess.PreviousPage()
	case "first":
		sess.FirstPage()
	case "last":
		sess.LastPage()
	case "zoom-in":
		sess.ZoomIn()
	case "zoom-out":
		sess.ZoomOut()
	default:
		writeError(w, http.StatusBadRequest, "Unknown action: "+req.Action)
		return
	}

	writeJSON(w, http.StatusOK, viewState(sess))
}

// Reorder handles replacing the visual page order.
func (h *ViewHandler) Reorder(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := h.session(w, r)
	if !ok {
		return
	}

	var req reorderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := sess.Reorder(req.Order); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"order": sess.Order()})
}

// MovePage handles moving one page to a new visual position.
func (h *ViewHandler) MovePage(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := h.session(w, r)
	if !ok {
		return
	}
	from, err := pageParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid page number")
		return
	}

	var req moveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := sess.MovePage(from, req.To); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"order": sess.Order()})
}

// RemovePage handles removing a page from the view.
func (h *ViewHandler) RemovePage(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := h.session(w, r)
	if !ok {
		return
	}
	visual, err := pageParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid page number")
		return
	}

	if err := sess.RemovePage(visual); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"order": sess.Order(), "pages": sess.PageCount()})
}

// RotatePage handles rotating a page a quarter turn clockwise.
func (h *ViewHandler) RotatePage(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := h.session(w, r)
	if !ok {
		return
	}
	visual, err := pageParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid page number")
		return
	}

	if err := sess.RotatePage(visual); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"page": visual, "status": "rotated"})
}

func (h *ViewHandler) session(w http.ResponseWriter, r *http.Request) (*lectern.Session, string, bool) {
	return sessionFrom(h.registry, w, r)
}

func viewState(sess *lectern.Session) viewResponse {
	vp := sess.ViewportSize()
	content := sess.ContentSize()
	scroll := sess.ScrollOffset()
	return viewResponse{
		Zoom:        sess.Zoom(),
		Rotation:    int(sess.Rotation()),
		Mode:        sess.Mode().String(),
		CurrentPage: sess.CurrentPage(),
		Viewport:    sizeJSON{Width: vp.W, Height: vp.H},
		Content:     sizeJSON{Width: content.W, Height: content.H},
		Scroll:      pointJSON{X: scroll.X, Y: scroll.Y},
		Order:       sess.Order(),
	}
}

func parseLayoutMode(name string) (scrollsync.Mode, bool) {
	switch name {
	case "single":
		return scrollsync.ModeSingle, true
	case "two-page":
		return scrollsync.ModeTwoPage, true
	case "continuous":
		return scrollsync.ModeContinuous, true
	}
	return scrollsync.ModeSingle, false
}
