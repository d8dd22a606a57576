package httpd

import (
	"context"
	"net/http"

	"github.com/tsawler/lectern"
	"github.com/tsawler/lectern/logging"
	"github.com/tsawler/lectern/search"
)

// SearchHandler handles full-text search requests. Searches run in the
// background; clients poll for progress and results.
type SearchHandler struct {
	registry *Registry
	log      logging.Logger
}

// NewSearchHandler creates a new search handler.
func NewSearchHandler(registry *Registry, log logging.Logger) *SearchHandler {
	return &SearchHandler{registry: registry, log: log}
}

type searchRequest struct {
	Query         string `json:"query"`
	CaseSensitive bool   `json:"caseSensitive"`
	MaxResults    int    `json:"maxResults"`
}

type searchResult struct {
	Page    int    `json:"page"` // original page number
	Offset  int    `json:"offset"`
	Snippet string `json:"snippet"`
}

type searchResponse struct {
	Active       bool           `json:"active"`
	Query        string         `json:"query,omitempty"`
	Done         bool           `json:"done"`
	Cancelled    bool           `json:"cancelled"`
	PagesScanned int            `json:"pagesScanned"`
	TotalPages   int            `json:"totalPages"`
	Results      []searchResult `json:"results"`
}

// StartSearch handles starting a search, superseding any search still
// running for the session.
func (h *SearchHandler) StartSearch(w http.ResponseWriter, r *http.Request) {
	sess, id, ok := h.session(w, r)
	if !ok {
		return
	}

	var req searchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "Query is required")
		return
	}

	// The search must outlive this request; polling reads its state.
	srch := sess.Search(context.Background(), req.Query, search.Options{
		CaseSensitive: req.CaseSensitive,
		MaxResults:    req.MaxResults,
	})

	// Drain the event stream so the scan never stalls on a full
	// buffer. Results accumulate on the handle regardless.
	go func() {
		for range srch.Events() {
		}
	}()

	h.log.Info("search started", "id", id, "query", req.Query)
	writeJSON(w, http.StatusAccepted, searchView(srch))
}

// GetSearch handles polling the live search's progress and results.
func (h *SearchHandler) GetSearch(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := h.session(w, r)
	if !ok {
		return
	}

	srch := sess.LiveSearch()
	if srch == nil {
		writeJSON(w, http.StatusOK, searchResponse{Results: []searchResult{}})
		return
	}
	writeJSON(w, http.StatusOK, searchView(srch))
}

// CancelSearch handles stopping the live search.
func (h *SearchHandler) CancelSearch(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := h.session(w, r)
	if !ok {
		return
	}
	sess.CancelSearch()
	w.WriteHeader(http.StatusNoContent)
}

// NavigateSearch handles stepping the result cursor. The action field
// is "next" or "previous"; the cursor wraps at either end.
func (h *SearchHandler) NavigateSearch(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := h.session(w, r)
	if !ok {
		return
	}

	srch := sess.LiveSearch()
	if srch == nil {
		writeError(w, http.StatusNotFound, "No search in progress")
		return
	}

	var req navigateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var (
		match search.Result
		found bool
	)
	switch req.Action {
	case "next":
		match, found = srch.Next()
	case "previous":
		match, found = srch.Prev()
	default:
		writeError(w, http.StatusBadRequest, "Unknown action: "+req.Action)
		return
	}

	if !found {
		writeJSON(w, http.StatusOK, map[string]interface{}{"found": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"found": true,
		"match": searchResult{Page: match.PageNumber, Offset: match.Offset, Snippet: match.Snippet},
	})
}

func (h *SearchHandler) session(w http.ResponseWriter, r *http.Request) (*lectern.Session, string, bool) {
	return sessionFrom(h.registry, w, r)
}

func searchView(srch *search.Search) searchResponse {
	results := srch.Results()
	out := make([]searchResult, len(results))
	for i, res := range results {
		out[i] = searchResult{Page: res.PageNumber, Offset: res.Offset, Snippet: res.Snippet}
	}
	progress := srch.Progress()
	return searchResponse{
		Active:       true,
		Query:        srch.Query,
		Done:         srch.Done(),
		Cancelled:    srch.Cancelled(),
		PagesScanned: progress.PagesScanned,
		TotalPages:   progress.TotalPages,
		Results:      out,
	}
}
