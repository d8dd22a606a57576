package httpd

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/tsawler/lectern/logging"
)

// NewRouter creates the lecternd HTTP router with all routes
// configured.
func NewRouter(cfg Config, registry *Registry, log logging.Logger) http.Handler {
	router := mux.NewRouter()

	// Health check endpoint
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok","service":"lecternd"}`))
	}).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()

	sessionHandler := NewSessionHandler(registry, log, cfg.MaxUploadBytes)
	annotationHandler := NewAnnotationHandler(registry, log)
	viewHandler := NewViewHandler(registry, log)
	searchHandler := NewSearchHandler(registry, log)

	// Session lifecycle
	api.HandleFunc("/sessions", sessionHandler.OpenSession).Methods("POST")
	api.HandleFunc("/sessions", sessionHandler.ListSessions).Methods("GET")
	api.HandleFunc("/sessions/{id}", sessionHandler.GetSession).Methods("GET")
	api.HandleFunc("/sessions/{id}", sessionHandler.CloseSession).Methods("DELETE")
	api.HandleFunc("/sessions/{id}/outline", sessionHandler.GetOutline).Methods("GET")
	api.HandleFunc("/sessions/{id}/state", sessionHandler.GetState).Methods("GET")
	api.HandleFunc("/sessions/{id}/state", sessionHandler.PutState).Methods("PUT")

	// Pages
	api.HandleFunc("/sessions/{id}/pages", sessionHandler.ListPages).Methods("GET")
	api.HandleFunc("/sessions/{id}/pages/{page}/text", sessionHandler.GetPageText).Methods("GET")
	api.HandleFunc("/sessions/{id}/pages/{page}/native-annotations", sessionHandler.GetNativeAnnotations).Methods("GET")
	api.HandleFunc("/sessions/{id}/pages/{page}/move", viewHandler.MovePage).Methods("POST")
	api.HandleFunc("/sessions/{id}/pages/{page}/rotate", viewHandler.RotatePage).Methods("POST")
	api.HandleFunc("/sessions/{id}/pages/{page}", viewHandler.RemovePage).Methods("DELETE")
	api.HandleFunc("/sessions/{id}/order", viewHandler.Reorder).Methods("PUT")

	// View state
	api.HandleFunc("/sessions/{id}/view", viewHandler.GetView).Methods("GET")
	api.HandleFunc("/sessions/{id}/view", viewHandler.UpdateView).Methods("PUT")
	api.HandleFunc("/sessions/{id}/view/navigate", viewHandler.Navigate).Methods("POST")

	// Annotations
	api.HandleFunc("/sessions/{id}/annotations", annotationHandler.ListAnnotations).Methods("GET")
	api.HandleFunc("/sessions/{id}/annotations", annotationHandler.CreateAnnotation).Methods("POST")
	api.HandleFunc("/sessions/{id}/annotations/undo", annotationHandler.Undo).Methods("POST")
	api.HandleFunc("/sessions/{id}/annotations/redo", annotationHandler.Redo).Methods("POST")
	api.HandleFunc("/sessions/{id}/annotations/export", annotationHandler.ExportAnnotations).Methods("GET")
	api.HandleFunc("/sessions/{id}/annotations/import", annotationHandler.ImportAnnotations).Methods("POST")
	api.HandleFunc("/sessions/{id}/annotations/sync", annotationHandler.SyncAnnotations).Methods("POST")
	api.HandleFunc("/sessions/{id}/annotations/{annID}", annotationHandler.GetAnnotation).Methods("GET")
	api.HandleFunc("/sessions/{id}/annotations/{annID}", annotationHandler.UpdateAnnotation).Methods("PUT")
	api.HandleFunc("/sessions/{id}/annotations/{annID}", annotationHandler.DeleteAnnotation).Methods("DELETE")
	api.HandleFunc("/sessions/{id}/report", annotationHandler.GetReport).Methods("GET")

	// Search
	api.HandleFunc("/sessions/{id}/search", searchHandler.StartSearch).Methods("POST")
	api.HandleFunc("/sessions/{id}/search", searchHandler.GetSearch).Methods("GET")
	api.HandleFunc("/sessions/{id}/search", searchHandler.CancelSearch).Methods("DELETE")
	api.HandleFunc("/sessions/{id}/search/navigate", searchHandler.NavigateSearch).Methods("POST")

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
		},
		AllowCredentials: true,
		MaxAge:           300,
	})

	return c.Handler(router)
}
