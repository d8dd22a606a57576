package httpd

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/tsawler/lectern"
	"github.com/tsawler/lectern/annotations"
	"github.com/tsawler/lectern/pageorder"
	"github.com/tsawler/lectern/source"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeErr maps an engine error to a status code and writes it.
func writeErr(w http.ResponseWriter, err error) {
	writeError(w, errorStatus(err), err.Error())
}

// errorStatus translates the engine's error taxonomy into HTTP status
// codes. Validation problems are the caller's fault, document problems
// are the document's, everything else is ours.
func errorStatus(err error) int {
	var (
		notFound *annotations.NotFoundError
		badImp   *annotations.ImportError
		badIdx   *pageorder.InvalidIndexError
		badOrd   *pageorder.InvalidReorderError
		pageErr  *source.PageError
	)
	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &badImp), errors.As(err, &badIdx), errors.As(err, &badOrd):
		return http.StatusBadRequest
	case errors.Is(err, source.ErrPasswordRequired):
		return http.StatusUnauthorized
	case errors.Is(err, source.ErrPasswordIncorrect):
		return http.StatusForbidden
	case errors.Is(err, source.ErrCorrupt):
		return http.StatusUnprocessableEntity
	case errors.Is(err, source.ErrUnsupported):
		return http.StatusUnsupportedMediaType
	case errors.As(err, &pageErr):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads a request body into dst.
func decodeJSON(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// sessionFrom resolves the {id} path variable to a registered session,
// writing a 404 when it is unknown.
func sessionFrom(reg *Registry, w http.ResponseWriter, r *http.Request) (*lectern.Session, string, bool) {
	id := mux.Vars(r)["id"]
	sess, ok := reg.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "Session not found")
		return nil, "", false
	}
	return sess, id, true
}
