// Package v1 provides the REST API handlers for synchronizations,
// contracts and run logs.
package v1

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/openbridge/objectsync/internal/sources"
	"github.com/openbridge/objectsync/internal/store"
	pkgsync "github.com/openbridge/objectsync/internal/sync"
)

// ErrorResponse is the standardized error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Routes holds the handlers' dependencies.
type Routes struct {
	stores       *store.Stores
	orchestrator *pkgsync.Orchestrator
}

// NewRoutes creates a Routes instance with the provided dependencies.
func NewRoutes(stores *store.Stores, orchestrator *pkgsync.Orchestrator) *Routes {
	return &Routes{
		stores:       stores,
		orchestrator: orchestrator,
	}
}

// Router creates the router for the v1 API.
func (rr *Routes) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/synchronizations", rr.listSynchronizations)
	r.Get("/synchronizations/{id}", rr.getSynchronization)
	r.Post("/synchronizations/{id}/run", rr.runSynchronization)
	r.Get("/synchronizations/{id}/logs", rr.listRunLogs)
	r.Get("/synchronizations/{id}/contracts", rr.listContracts)
	r.Get("/logs/{logId}/contract-logs", rr.listContractLogs)

	return r
}

// listSynchronizations handles GET /api/v1/synchronizations.
func (rr *Routes) listSynchronizations(w http.ResponseWriter, r *http.Request) {
	syncs, err := rr.stores.Synchronizations.List(r.Context())
	if err != nil {
		slog.Error("Failed to list synchronizations", "error", err)
		rr.writeError(w, "Failed to list synchronizations", http.StatusInternalServerError)
		return
	}
	rr.writeJSON(w, http.StatusOK, syncs)
}

// getSynchronization handles GET /api/v1/synchronizations/{id}.
func (rr *Routes) getSynchronization(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sync, err := rr.stores.Synchronizations.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrSynchronizationNotFound) {
			rr.writeError(w, "Synchronization not found", http.StatusNotFound)
			return
		}
		slog.Error("Failed to get synchronization", "id", id, "error", err)
		rr.writeError(w, "Failed to get synchronization", http.StatusInternalServerError)
		return
	}
	rr.writeJSON(w, http.StatusOK, sync)
}

// runSynchronization handles POST /api/v1/synchronizations/{id}/run.
//
// The run executes synchronously. The test query parameter makes the run
// read-only, force dispatches every object regardless of change
// detection. A rate-limited source yields 202 together with the partial
// run log; the run resumes from the persisted cursor later.
func (rr *Routes) runSynchronization(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	opts := pkgsync.RunOptions{
		Test:  r.URL.Query().Get("test") == "true",
		Force: r.URL.Query().Get("force") == "true",
	}

	runLog, err := rr.orchestrator.Run(r.Context(), id, opts)
	switch {
	case err == nil:
		rr.writeJSON(w, http.StatusOK, runLog)
	case errors.Is(err, store.ErrSynchronizationNotFound):
		rr.writeError(w, "Synchronization not found", http.StatusNotFound)
	case errors.Is(err, sources.ErrRateLimited):
		rr.writeJSON(w, http.StatusAccepted, runLog)
	default:
		slog.Error("Synchronization run failed", "id", id, "error", err)
		rr.writeError(w, err.Error(), http.StatusInternalServerError)
	}
}

// listRunLogs handles GET /api/v1/synchronizations/{id}/logs.
func (rr *Routes) listRunLogs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := rr.stores.Synchronizations.Get(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrSynchronizationNotFound) {
			rr.writeError(w, "Synchronization not found", http.StatusNotFound)
			return
		}
		slog.Error("Failed to get synchronization", "id", id, "error", err)
		rr.writeError(w, "Failed to get synchronization", http.StatusInternalServerError)
		return
	}

	logs, err := rr.stores.Logs.ListSyncLogs(r.Context(), id)
	if err != nil {
		slog.Error("Failed to list run logs", "id", id, "error", err)
		rr.writeError(w, "Failed to list run logs", http.StatusInternalServerError)
		return
	}
	rr.writeJSON(w, http.StatusOK, logs)
}

// listContracts handles GET /api/v1/synchronizations/{id}/contracts.
func (rr *Routes) listContracts(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := rr.stores.Synchronizations.Get(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrSynchronizationNotFound) {
			rr.writeError(w, "Synchronization not found", http.StatusNotFound)
			return
		}
		slog.Error("Failed to get synchronization", "id", id, "error", err)
		rr.writeError(w, "Failed to get synchronization", http.StatusInternalServerError)
		return
	}

	contracts, err := rr.stores.Contracts.ListBySynchronization(r.Context(), id)
	if err != nil {
		slog.Error("Failed to list contracts", "id", id, "error", err)
		rr.writeError(w, "Failed to list contracts", http.StatusInternalServerError)
		return
	}
	rr.writeJSON(w, http.StatusOK, contracts)
}

// listContractLogs handles GET /api/v1/logs/{logId}/contract-logs.
func (rr *Routes) listContractLogs(w http.ResponseWriter, r *http.Request) {
	logID, err := uuid.Parse(chi.URLParam(r, "logId"))
	if err != nil {
		rr.writeError(w, "Invalid log id", http.StatusBadRequest)
		return
	}

	if _, err := rr.stores.Logs.GetSyncLog(r.Context(), logID); err != nil {
		if errors.Is(err, store.ErrLogNotFound) {
			rr.writeError(w, "Run log not found", http.StatusNotFound)
			return
		}
		slog.Error("Failed to get run log", "id", logID, "error", err)
		rr.writeError(w, "Failed to get run log", http.StatusInternalServerError)
		return
	}

	logs, err := rr.stores.Logs.ListContractLogs(r.Context(), logID)
	if err != nil {
		slog.Error("Failed to list contract logs", "id", logID, "error", err)
		rr.writeError(w, "Failed to list contract logs", http.StatusInternalServerError)
		return
	}
	rr.writeJSON(w, http.StatusOK, logs)
}

func (*Routes) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

func (*Routes) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(ErrorResponse{Error: message}); err != nil {
		slog.Error("Failed to encode error response", "error", err)
	}
}
