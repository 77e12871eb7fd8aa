// main is the entry point of the Student Records API.
//
// STARTUP SEQUENCE:
//  1. Load configuration from a YAML file
//  2. Initialise the logger
//  3. Open the storage backend (SQLite file or in-memory)
//  4. Build the token manager, the importer and the router
//  5. Start the HTTP server in a separate goroutine
//  6. Block the main goroutine until an OS signal (Ctrl+C / kill) arrives
//  7. Gracefully shut down: finish in-flight requests, close storage, exit
//     (status 1 when the server could not start or stop cleanly)
//
// RUNNING THE SERVER:
//
//	go run ./cmd/students-api --config=config/local.yaml
//
// or (with the environment variable):
//
//	CONFIG_PATH=config/local.yaml go run ./cmd/students-api
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aanand-mishra/student-records-api/internal/auth"
	"github.com/aanand-mishra/student-records-api/internal/config"
	"github.com/aanand-mishra/student-records-api/internal/http/router"
	"github.com/aanand-mishra/student-records-api/internal/importer"
	"github.com/aanand-mishra/student-records-api/internal/logger"
	"github.com/aanand-mishra/student-records-api/internal/storage"
	"github.com/aanand-mishra/student-records-api/internal/storage/memory"
	"github.com/aanand-mishra/student-records-api/internal/storage/sqlite"
)

func main() {
	// ── 1. Load Config ────────────────────────────────────────────────────
	// If MustLoad returns, the config is guaranteed valid.
	cfg := config.MustLoad()

	// ── 2. Initialise Logger ──────────────────────────────────────────────
	log := logger.Setup(cfg.Env)

	log.Info("starting student-records-api",
		slog.String("env", cfg.Env),
		slog.String("storage_driver", cfg.StorageDriver),
	)

	// ── 3. Initialise Storage ─────────────────────────────────────────────
	// Everything past this point only sees the storage.Storage interface.
	store, err := openStorage(cfg)
	if err != nil {
		log.Error("failed to initialise storage", slog.String("error", err.Error()))
		os.Exit(1)
	}
	// os.Exit skips deferred calls, so the failure paths below close
	// storage themselves.
	defer closeStorage(log, store)

	log.Info("storage initialised", slog.String("path", cfg.StoragePath))

	// ── 4. Wire Dependencies ──────────────────────────────────────────────
	tokens, err := auth.NewTokenManager(cfg.TokenSecret, cfg.TokenIssuer, cfg.TokenTTL)
	if err != nil {
		log.Error("failed to initialise tokens", slog.String("error", err.Error()))
		closeStorage(log, store)
		os.Exit(1)
	}

	handler := router.New(router.Deps{
		Store:    store,
		Tokens:   tokens,
		Importer: importer.New(store),
		Config:   cfg,
	})

	// ── 5. Create the HTTP Server ─────────────────────────────────────────
	server := &http.Server{
		Addr:         cfg.HTTPServer.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.HTTPServer.ReadTimeout,
		WriteTimeout: cfg.HTTPServer.WriteTimeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	// ── 6. Serve Until a Signal Arrives ──────────────────────────────────
	// A listen failure (port in use, bad address) must end the process
	// with a non-zero status, as must a shutdown that runs out of time.
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	if err := serve(log, server, done, cfg.HTTPServer.ShutdownTimeout); err != nil {
		log.Error("server stopped with an error", slog.String("error", err.Error()))
		closeStorage(log, store)
		os.Exit(1)
	}

	log.Info("server stopped gracefully")
}

// serve runs server until stop fires, then shuts it down, giving in-flight
// requests up to timeout to finish. It returns early with the listen error
// if the server cannot start.
func serve(log *slog.Logger, server *http.Server, stop <-chan os.Signal, timeout time.Duration) error {
	// ListenAndServe returns http.ErrServerClosed once Shutdown is called.
	serverErr := make(chan error, 1)
	go func() {
		log.Info("server started", slog.String("address", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-stop:
		log.Info("shutdown signal received, stopping server...")
	case err := <-serverErr:
		return fmt.Errorf("listen: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

// openStorage picks the repository backend named by storage_driver.
func openStorage(cfg *config.Config) (storage.Storage, error) {
	switch cfg.StorageDriver {
	case config.DriverMemory:
		return memory.New(), nil
	default:
		db, err := sqlite.New(cfg)
		if err != nil {
			return nil, err
		}
		return db, nil
	}
}

func closeStorage(log *slog.Logger, store storage.Storage) {
	if err := store.Close(); err != nil {
		log.Error("failed to close storage", slog.String("error", err.Error()))
	}
}
