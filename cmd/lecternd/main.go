// Command lecternd serves the document viewing engine over REST for
// browser-based frontends. Uploaded documents become sessions addressed
// by id; annotations are persisted per document fingerprint.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/tsawler/lectern/internal/httpd"
	"github.com/tsawler/lectern/logging"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found or could not be loaded: %v", err)
	}

	cfg := httpd.FromEnv()
	logger := logging.New(os.Stdout, logging.ParseLevel(cfg.LogLevel))

	store := httpd.NewStore(cfg, logger)
	registry := httpd.NewRegistry(store, logger)
	router := httpd.NewRouter(cfg, registry, logger)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("server listening", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	registry.CloseAll(context.Background())
	_ = server.Close()
	logger.Info("server exited")
}
