package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/asree/homelab-telemetry/internal/collector"
	"github.com/asree/homelab-telemetry/internal/storage"
	"github.com/asree/homelab-telemetry/pkg/metric"
	"github.com/asree/homelab-telemetry/pkg/query"
	"github.com/asree/homelab-telemetry/pkg/timerange"
)

// handler serves the intake/query adapter over the Collector and Executor
// contracts, the same thin-wrapper shape as the teacher's Handler.
type handler struct {
	coll collector.Collector
	exec storage.Executor
	cfg  Config
}

func newHandler(coll collector.Collector, exec storage.Executor, cfg Config) *handler {
	return &handler{coll: coll, exec: exec, cfg: cfg}
}

// ErrorResponse is the structured body spec §7 says accompanies a 5xx
// intake failure.
type ErrorResponse struct {
	Error   string `json:"error" example:"internal_error"`
	Message string `json:"message,omitempty" example:"storage is busy"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err, message string) {
	writeJSON(w, status, ErrorResponse{Error: err, Message: message})
}

// Intake godoc
// @Summary      Push a batch of metrics
// @Description  Accepts the counters/gauges batch of spec §6 and forwards it to the collector
// @Tags         intake
// @Accept       json
// @Produce      json
// @Success      204
// @Failure      400  {object}  ErrorResponse
// @Failure      500  {object}  ErrorResponse
// @Router       /api/v1/intake [post]
func (h *handler) Intake(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxIntakeBodyBytes)

	var batch metric.Batch
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	if err := h.coll.PushMetrics(r.Context(), batch.All()); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// queryRequest is the wire shape of spec §6's query payload.
type queryRequest struct {
	Requests query.Batch         `json:"requests"`
	Range    timerange.TimeRange `json:"range"`
}

// Query godoc
// @Summary      Run a batch of scalar/time-series queries
// @Description  Executes the named batch of spec §6 against the storage engine
// @Tags         query
// @Accept       json
// @Produce      json
// @Success      200  {object}  map[string]query.Response
// @Failure      400  {object}  ErrorResponse
// @Failure      500  {object}  ErrorResponse
// @Router       /api/v1/query [post]
func (h *handler) Query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	resp, err := h.exec.Execute(r.Context(), req.Requests, req.Range, time.Now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
