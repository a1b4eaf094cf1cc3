// Telemetry Server - Query-side HTTP API over the storage engine
//
// @title           Homelab Telemetry API
// @version         1.0
// @description     REST API for pushing and querying homelab telemetry.
//
// @host            localhost:8080
// @BasePath        /
//
// @schemes         http
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/asree/homelab-telemetry/internal/collector"
	"github.com/asree/homelab-telemetry/internal/config"
	"github.com/asree/homelab-telemetry/internal/httpapi"
	"github.com/asree/homelab-telemetry/internal/storage"
)

// Swagger docs are generated by `swag init` at build time (as in the
// teacher's cmd/api) into a docs package that registers itself with
// swaggo/swag; that generated package isn't checked in, so it isn't
// imported here.

func main() {
	logger := log.New(os.Stdout, "[SERVER] ", log.LstdFlags|log.Lmicroseconds)

	cfg := config.DefaultServerConfig()
	logger.Printf("Starting Telemetry Server...")
	logger.Printf("  Host: %s", cfg.Host)
	logger.Printf("  Port: %d", cfg.Port)
	logger.Printf("  Storage Path: %s", cfg.StoragePath)

	engine, err := storage.Open(cfg.StoragePath, log.New(os.Stdout, "[STORAGE] ", log.LstdFlags))
	if err != nil {
		logger.Fatalf("Failed to open storage: %v", err)
	}
	defer engine.Close()

	coll := collector.New(engine, nil)
	router := httpapi.NewRouter(coll, engine, httpapi.DefaultConfig())

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		logger.Fatalf("Failed to create maintenance scheduler: %v", err)
	}
	if _, err := scheduler.NewJob(
		gocron.DurationJob(cfg.MaintenanceInterval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			removed, err := engine.Cleanup(ctx, time.Now().Add(-cfg.RetentionPeriod))
			if err != nil {
				logger.Printf("Maintenance: cleanup failed: %v", err)
				return
			}
			if removed > 0 {
				logger.Printf("Maintenance: removed %d rows older than %v", removed, cfg.RetentionPeriod)
			}
		}),
	); err != nil {
		logger.Fatalf("Failed to register maintenance job: %v", err)
	}
	scheduler.Start()
	defer scheduler.Shutdown()

	go func() {
		logger.Printf("HTTP server listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Server error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	logger.Printf("Received signal %v, shutting down...", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Printf("Error during shutdown: %v", err)
	}

	logger.Println("Server stopped")
}
