package httpd

import (
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/tsawler/lectern"
	"github.com/tsawler/lectern/logging"
	"github.com/tsawler/lectern/source"
)

// SessionHandler handles session lifecycle and document inspection
// requests.
type SessionHandler struct {
	registry  *Registry
	log       logging.Logger
	maxUpload int64
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(registry *Registry, log logging.Logger, maxUpload int64) *SessionHandler {
	return &SessionHandler{registry: registry, log: log, maxUpload: maxUpload}
}

type sessionSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Pages int    `json:"pages"`
}

type sessionResponse struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	Fingerprint   string           `json:"fingerprint"`
	Pages         int              `json:"pages"`
	OriginalPages int              `json:"originalPages"`
	Metadata      metadataResponse `json:"metadata"`
	Zoom          float64          `json:"zoom"`
	Rotation      int              `json:"rotation"`
	Mode          string           `json:"mode"`
	CurrentPage   int              `json:"currentPage"`
	Annotations   int              `json:"annotations"`
	Cache         cacheResponse    `json:"cache"`
}

type metadataResponse struct {
	Title    string `json:"title,omitempty"`
	Author   string `json:"author,omitempty"`
	Subject  string `json:"subject,omitempty"`
	Keywords string `json:"keywords,omitempty"`
	Creator  string `json:"creator,omitempty"`
	Producer string `json:"producer,omitempty"`
	Created  string `json:"created,omitempty"`
	Modified string `json:"modified,omitempty"`
}

type cacheResponse struct {
	Loaded   int    `json:"loaded"`
	InFlight int    `json:"inFlight"`
	Hits     uint64 `json:"hits"`
	Misses   uint64 `json:"misses"`
	Evicted  uint64 `json:"evicted"`
	Failed   uint64 `json:"failed"`
}

type outlineEntry struct {
	Title    string         `json:"title"`
	Page     int            `json:"page"`
	Children []outlineEntry `json:"children,omitempty"`
}

type pageSummary struct {
	Visual   int     `json:"visual"`
	Original int     `json:"original"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Loaded   bool    `json:"loaded"`
}

// OpenSession handles document upload and session creation.
func (h *SessionHandler) OpenSession(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "File is required")
		return
	}
	defer file.Close()

	if h.maxUpload > 0 && header.Size > h.maxUpload {
		writeError(w, http.StatusRequestEntityTooLarge, "File too large")
		return
	}

	name := strings.TrimSpace(filepath.Base(header.Filename))
	if name == "" || name == "." {
		name = "document"
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read file")
		return
	}

	id, sess, err := h.registry.Open(r.Context(), name, data, r.FormValue("password"))
	if err != nil {
		h.log.Warn("open failed", "document", name, "error", err)
		writeErr(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, sessionView(id, sess))
}

// ListSessions handles listing the open sessions.
func (h *SessionHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := []sessionSummary{}
	for _, id := range h.registry.IDs() {
		if sess, ok := h.registry.Get(id); ok {
			sessions = append(sessions, sessionSummary{ID: id, Name: sess.Name(), Pages: sess.PageCount()})
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

// GetSession handles fetching one session's full state summary.
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, id, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sessionView(id, sess))
}

// CloseSession handles closing a session, syncing its annotations
// first.
func (h *SessionHandler) CloseSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, ok := h.registry.Get(id); !ok {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	if err := h.registry.Close(r.Context(), id); err != nil {
		h.log.Warn("close failed", "id", id, "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetOutline handles fetching the document's navigation tree, mapped to
// the current visual order.
func (h *SessionHandler) GetOutline(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"outline": outlineView(sess.Outline())})
}

// ListPages handles listing the visual pages with their dimensions.
func (h *SessionHandler) ListPages(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := h.session(w, r)
	if !ok {
		return
	}

	pages := make([]pageSummary, 0, sess.PageCount())
	for visual := 1; visual <= sess.PageCount(); visual++ {
		original, err := sess.OriginalOf(visual)
		if err != nil {
			continue
		}
		size, _ := sess.Dimensions(visual)
		pages = append(pages, pageSummary{
			Visual:   visual,
			Original: original,
			Width:    size.W,
			Height:   size.H,
			Loaded:   sess.IsLoaded(visual),
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"pages": pages})
}

// GetPageText handles extracting the text of one visual page.
func (h *SessionHandler) GetPageText(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := h.session(w, r)
	if !ok {
		return
	}
	visual, err := pageParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid page number")
		return
	}

	text, err := sess.Text(r.Context(), visual)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"page": visual, "text": text})
}

// GetNativeAnnotations handles listing the annotations embedded in the
// document itself (links, notes) for one visual page.
func (h *SessionHandler) GetNativeAnnotations(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := h.session(w, r)
	if !ok {
		return
	}
	visual, err := pageParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid page number")
		return
	}

	native, err := sess.NativeAnnotations(r.Context(), visual)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"page": visual, "annotations": native})
}

// GetState handles exporting the session's persistable view state.
func (h *SessionHandler) GetState(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := h.session(w, r)
	if !ok {
		return
	}
	data, err := sess.SaveState()
	if err != nil {
		writeErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// PutState handles restoring a previously saved view state.
func (h *SessionHandler) PutState(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := h.session(w, r)
	if !ok {
		return
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read body")
		return
	}
	if err := sess.LoadState(data); err != nil {
		// A rejected state is always the caller's state, not ours.
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"pages": sess.PageCount(), "annotations": sess.Annotations().Count()})
}

func (h *SessionHandler) session(w http.ResponseWriter, r *http.Request) (*lectern.Session, string, bool) {
	return sessionFrom(h.registry, w, r)
}

func sessionView(id string, sess *lectern.Session) sessionResponse {
	stats := sess.CacheStats()
	return sessionResponse{
		ID:            id,
		Name:          sess.Name(),
		Fingerprint:   sess.Fingerprint(),
		Pages:         sess.PageCount(),
		OriginalPages: sess.OriginalPageCount(),
		Metadata:      metadataView(sess.Metadata()),
		Zoom:          sess.Zoom(),
		Rotation:      int(sess.Rotation()),
		Mode:          sess.Mode().String(),
		CurrentPage:   sess.CurrentPage(),
		Annotations:   sess.Annotations().Count(),
		Cache: cacheResponse{
			Loaded:   stats.Loaded,
			InFlight: stats.InFlight,
			Hits:     stats.Hits,
			Misses:   stats.Misses,
			Evicted:  stats.Evicted,
			Failed:   stats.Failed,
		},
	}
}

func metadataView(m source.Metadata) metadataResponse {
	resp := metadataResponse{
		Title:    m.Title,
		Author:   m.Author,
		Subject:  m.Subject,
		Keywords: m.Keywords,
		Creator:  m.Creator,
		Producer: m.Producer,
	}
	if !m.Created.IsZero() {
		resp.Created = m.Created.UTC().Format(time.RFC3339)
	}
	if !m.Modified.IsZero() {
		resp.Modified = m.Modified.UTC().Format(time.RFC3339)
	}
	return resp
}

func outlineView(items []lectern.OutlineItem) []outlineEntry {
	entries := make([]outlineEntry, 0, len(items))
	for _, it := range items {
		entries = append(entries, outlineEntry{
			Title:    it.Title,
			Page:     it.Page,
			Children: outlineView(it.Children),
		})
	}
	return entries
}

// pageParam parses the {page} path variable.
func pageParam(r *http.Request) (int, error) {
	return strconv.Atoi(mux.Vars(r)["page"])
}
