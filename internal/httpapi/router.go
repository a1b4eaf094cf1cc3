// Package httpapi is the thin HTTP adapter of spec §1/§6: it exposes the
// Intake and Query Executor contracts over JSON, out of the spec's core
// scope but required to make the system usable from a browser or a script.
package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/asree/homelab-telemetry/internal/collector"
	"github.com/asree/homelab-telemetry/internal/storage"
)

// Config configures the router's limits. Only the intake body size is
// limited here; the router sets no per-request time limit, so request
// duration is bounded only by the http.Server read/write timeouts that
// cmd/server takes from ServerConfig (10s each by default).
type Config struct {
	MaxIntakeBodyBytes int64
}

// DefaultConfig returns the default 4 MiB intake body cap.
func DefaultConfig() Config {
	return Config{MaxIntakeBodyBytes: 4 << 20}
}

// NewRouter builds the full HTTP surface: health checks, Swagger UI, and
// the intake/query endpoints, mirroring the teacher's NewRouter layout.
func NewRouter(coll collector.Collector, exec storage.Executor, cfg Config) *mux.Router {
	router := mux.NewRouter()
	handler := newHandler(coll, exec, cfg)

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)

	router.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}).Methods(http.MethodGet)

	router.PathPrefix("/swagger/").Handler(httpSwagger.WrapHandler)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/intake", handler.Intake).Methods(http.MethodPost)
	api.HandleFunc("/query", handler.Query).Methods(http.MethodPost)

	return router
}
