/*
handlers.go - HTTP API handlers for the wage engine

PURPOSE:
  Exposes the engine over REST. Handles HTTP request/response and JSON
  serialization, and delegates everything else to payroll.Engine.

ENDPOINTS:
  Daily:
    GET  /api/workers/{id}/daily?date=YYYY-MM-DD         Daily breakdown

  Monthly:
    GET  /api/workers/{id}/months/{year}/{month}/totals  Aggregate (no write)
    POST /api/workers/{id}/months/{year}/{month}/issue   Aggregate and persist
    GET  /api/workers/{id}/months/{year}/{month}         Load snapshot
    POST /api/workers/{id}/months/{year}/{month}/approve issued -> approved
    POST /api/workers/{id}/months/{year}/{month}/pay     approved -> paid

  Listing:
    GET  /api/snapshots?worker_id=&year=&month=&status=&limit=

ACTORS:
  Issue, approve and pay record who acted. The id comes from the X-Actor-ID
  header, set by the authenticating proxy in front of this service.

ERROR HANDLING:
  - 400: Validation errors, missing rate configuration
  - 404: Unknown worker or snapshot
  - 409: Lifecycle step out of order
  - 503: No storage tier accepted the write
  - 500: Everything else

SEE ALSO:
  - dto.go: Response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/warp/wage-engine/payroll"
)

// ActorHeader carries the id of the caller performing a lifecycle step.
const ActorHeader = "X-Actor-ID"

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine *payroll.Engine

	// Seeder loads demo scenarios; nil disables the scenario endpoints.
	Seeder Seeder

	logger logrus.FieldLogger
}

// NewHandler creates a handler over engine.
func NewHandler(engine *payroll.Engine, seeder Seeder, logger logrus.FieldLogger) *Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handler{Engine: engine, Seeder: seeder, logger: logger}
}

// =============================================================================
// DAILY ENDPOINTS
// =============================================================================

// GetDaily returns the computation for every record the worker has on a date.
func (h *Handler) GetDaily(w http.ResponseWriter, r *http.Request) {
	workerID := chi.URLParam(r, "id")
	date, err := time.Parse(time.DateOnly, r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD", err)
		return
	}

	calcs, err := h.Engine.DailyBreakdown(r.Context(), workerID, date)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	resp := DailyBreakdownDTO{WorkerID: workerID, Date: formatDate(date), Records: make([]DailyDTO, 0, len(calcs))}
	for _, c := range calcs {
		resp.Records = append(resp.Records, toDailyDTO(c))
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// MONTHLY ENDPOINTS
// =============================================================================

// GetTotals aggregates the month without persisting anything.
func (h *Handler) GetTotals(w http.ResponseWriter, r *http.Request) {
	workerID, year, month, ok := periodParams(w, r)
	if !ok {
		return
	}
	totals, err := h.Engine.AggregateMonth(r.Context(), workerID, year, month)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTotalsDTO(totals))
}

// IssueSnapshot aggregates the month and persists it in status issued.
func (h *Handler) IssueSnapshot(w http.ResponseWriter, r *http.Request) {
	workerID, year, month, ok := periodParams(w, r)
	if !ok {
		return
	}
	actor, ok := actorID(w, r)
	if !ok {
		return
	}
	snap, res, err := h.Engine.Issue(r.Context(), workerID, year, month, actor)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSnapshotDTO(*snap, res.Tier))
}

// GetSnapshot loads the period's snapshot from whichever tier holds it.
func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	workerID, year, month, ok := periodParams(w, r)
	if !ok {
		return
	}
	res, err := h.Engine.LoadSnapshot(r.Context(), workerID, year, month)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	if res.Snapshot == nil {
		writeError(w, http.StatusNotFound, "Snapshot not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toSnapshotDTO(*res.Snapshot, res.Tier))
}

// ApproveSnapshot moves the snapshot to approved.
func (h *Handler) ApproveSnapshot(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Engine.ApproveSnapshot)
}

// PaySnapshot moves the snapshot to paid.
func (h *Handler) PaySnapshot(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Engine.PaySnapshot)
}

type transitionFunc func(ctx context.Context, workerID string, year, month int, actor string) (*payroll.MonthlySnapshot, error)

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, step transitionFunc) {
	workerID, year, month, ok := periodParams(w, r)
	if !ok {
		return
	}
	actor, ok := actorID(w, r)
	if !ok {
		return
	}
	snap, err := step(r.Context(), workerID, year, month, actor)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSnapshotDTO(*snap, ""))
}

// =============================================================================
// LISTING
// =============================================================================

// ListSnapshots lists snapshots, newest period first.
func (h *Handler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := payroll.ListFilter{WorkerID: q.Get("worker_id")}

	for _, p := range []struct {
		name string
		dst  *int
	}{
		{"year", &filter.Year},
		{"month", &filter.Month},
		{"limit", &filter.Limit},
	} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid "+p.name, err)
			return
		}
		*p.dst = v
	}
	if raw := q.Get("status"); raw != "" {
		status, err := payroll.ParseStatus(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid status", err)
			return
		}
		filter.Status = status
	}

	snaps, err := h.Engine.ListSnapshots(r.Context(), filter)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	resp := SnapshotListDTO{Snapshots: make([]SnapshotDTO, 0, len(snaps)), Count: len(snaps)}
	for _, s := range snaps {
		resp.Snapshots = append(resp.Snapshots, toSnapshotDTO(s, ""))
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// HELPERS
// =============================================================================

func periodParams(w http.ResponseWriter, r *http.Request) (string, int, int, bool) {
	workerID := chi.URLParam(r, "id")
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year", err)
		return "", 0, 0, false
	}
	month, err := strconv.Atoi(chi.URLParam(r, "month"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month", err)
		return "", 0, 0, false
	}
	return workerID, year, month, true
}

func actorID(w http.ResponseWriter, r *http.Request) (string, bool) {
	actor := strings.TrimSpace(r.Header.Get(ActorHeader))
	if actor == "" {
		writeError(w, http.StatusBadRequest, ActorHeader+" header is required", nil)
		return "", false
	}
	return actor, true
}

// statusFor maps engine errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case payroll.IsNotFound(err):
		return http.StatusNotFound
	case payroll.IsClientError(err):
		return http.StatusBadRequest
	case payroll.IsConflict(err):
		return http.StatusConflict
	case errors.Is(err, payroll.ErrPersistence), errors.Is(err, payroll.ErrSnapshotStateUnknown):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.WithError(err).WithField("path", r.URL.Path).Error("request failed")
	}
	writeError(w, status, http.StatusText(status), err)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
