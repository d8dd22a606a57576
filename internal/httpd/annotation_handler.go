package httpd

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/tsawler/lectern"
	"github.com/tsawler/lectern/annotations"
	"github.com/tsawler/lectern/logging"
	"github.com/tsawler/lectern/pageorder"
	"github.com/tsawler/lectern/report"
)

// AnnotationHandler handles annotation CRUD, history and export
// requests.
type AnnotationHandler struct {
	registry *Registry
	log      logging.Logger
}

// NewAnnotationHandler creates a new annotation handler.
func NewAnnotationHandler(registry *Registry, log logging.Logger) *AnnotationHandler {
	return &AnnotationHandler{registry: registry, log: log}
}

// patchRequest mirrors annotations.Patch with JSON field names matching
// the annotation schema. Absent fields leave the annotation unchanged.
type patchRequest struct {
	Position    *annotations.Position   `json:"position"`
	Color       *string                 `json:"color"`
	Content     *string                 `json:"content"`
	Path        []annotations.PathPoint `json:"path"`
	StrokeWidth *float64                `json:"strokeWidth"`
}

type historyResponse struct {
	Applied bool `json:"applied"`
	CanUndo bool `json:"canUndo"`
	CanRedo bool `json:"canRedo"`
}

// ListAnnotations handles listing a session's annotations, optionally
// filtered to one original page via ?page=N.
func (h *AnnotationHandler) ListAnnotations(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := h.session(w, r)
	if !ok {
		return
	}

	store := sess.Annotations()
	var list []annotations.Annotation
	if pageStr := r.URL.Query().Get("page"); pageStr != "" {
		page, err := strconv.Atoi(pageStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid page number")
			return
		}
		list = store.ByPage(page)
	} else {
		list = store.All()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"annotations": list, "count": len(list)})
}

// CreateAnnotation handles adding an annotation. The server assigns the
// id and timestamp.
func (h *AnnotationHandler) CreateAnnotation(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := h.session(w, r)
	if !ok {
		return
	}

	var a annotations.Annotation
	if err := decodeJSON(r, &a); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := sess.Annotations().Add(a)
	if err != nil {
		// Add fails only on caller-supplied values.
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, _ := sess.Annotations().Get(id)
	writeJSON(w, http.StatusCreated, map[string]interface{}{"id": id, "annotation": created})
}

// GetAnnotation handles fetching one annotation by id.
func (h *AnnotationHandler) GetAnnotation(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := h.session(w, r)
	if !ok {
		return
	}

	id := mux.Vars(r)["annID"]
	a, ok := sess.Annotations().Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "Annotation not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"annotation": a})
}

// UpdateAnnotation handles patching an annotation's mutable fields.
func (h *AnnotationHandler) UpdateAnnotation(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := h.session(w, r)
	if !ok {
		return
	}

	var req patchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id := mux.Vars(r)["annID"]
	err := sess.Annotations().Update(id, annotations.Patch{
		Position:    req.Position,
		Color:       req.Color,
		Content:     req.Content,
		Path:        req.Path,
		StrokeWidth: req.StrokeWidth,
	})
	if err != nil {
		writeErr(w, err)
		return
	}

	updated, _ := sess.Annotations().Get(id)
	writeJSON(w, http.StatusOK, map[string]interface{}{"annotation": updated})
}

// DeleteAnnotation handles removing an annotation.
func (h *AnnotationHandler) DeleteAnnotation(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := h.session(w, r)
	if !ok {
		return
	}

	if err := sess.Annotations().Remove(mux.Vars(r)["annID"]); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Undo handles reverting the most recent annotation mutation.
func (h *AnnotationHandler) Undo(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := h.session(w, r)
	if !ok {
		return
	}

	store := sess.Annotations()
	writeJSON(w, http.StatusOK, historyResponse{
		Applied: store.Undo(),
		CanUndo: store.CanUndo(),
		CanRedo: store.CanRedo(),
	})
}

// Redo handles reapplying the most recently undone mutation.
func (h *AnnotationHandler) Redo(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := h.session(w, r)
	if !ok {
		return
	}

	store := sess.Annotations()
	writeJSON(w, http.StatusOK, historyResponse{
		Applied: store.Redo(),
		CanUndo: store.CanUndo(),
		CanRedo: store.CanRedo(),
	})
}

// ExportAnnotations handles downloading the versioned annotation
// envelope.
func (h *AnnotationHandler) ExportAnnotations(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := h.session(w, r)
	if !ok {
		return
	}

	data, err := sess.Annotations().EncodeJSON()
	if err != nil {
		writeErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="annotations.json"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// ImportAnnotations handles replacing the session's annotations with an
// uploaded envelope. The import is all-or-nothing.
func (h *AnnotationHandler) ImportAnnotations(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := h.session(w, r)
	if !ok {
		return
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read body")
		return
	}
	env, err := annotations.DecodeJSON(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := sess.Annotations().ImportAll(env, sess.OriginalPageCount()); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"imported": sess.Annotations().Count()})
}

// SyncAnnotations handles pushing the session's annotations to the
// persistent store on demand.
func (h *AnnotationHandler) SyncAnnotations(w http.ResponseWriter, r *http.Request) {
	_, id, ok := h.session(w, r)
	if !ok {
		return
	}

	if err := h.registry.Sync(r.Context(), id); err != nil {
		h.log.Warn("annotation sync failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to sync annotations")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "synced"})
}

// GetReport handles rendering the annotation report. The format query
// parameter selects html; the default is markdown.
func (h *AnnotationHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := h.session(w, r)
	if !ok {
		return
	}

	order, err := reportOrder(sess)
	if err != nil {
		writeErr(w, err)
		return
	}
	info := report.Info{Filename: sess.Name(), Meta: sess.Metadata()}

	if r.URL.Query().Get("format") == "html" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := report.WriteHTML(w, info, sess.Annotations(), order); err != nil {
			h.log.Warn("report render failed", "error", err)
		}
		return
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	if err := report.Write(w, info, sess.Annotations(), order); err != nil {
		h.log.Warn("report render failed", "error", err)
	}
}

// reportOrder rebuilds a page order model matching the session's
// current visual arrangement.
func reportOrder(sess *lectern.Session) (*pageorder.Model, error) {
	m := pageorder.New(sess.OriginalPageCount())
	if err := m.Restore(pageorder.Snapshot{Order: sess.Order()}); err != nil {
		return nil, err
	}
	return m, nil
}

func (h *AnnotationHandler) session(w http.ResponseWriter, r *http.Request) (*lectern.Session, string, bool) {
	return sessionFrom(h.registry, w, r)
}
