// Package status exposes a small HTTP surface for operators: liveness and the
// recent run history from the journal.
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hallwaytech/previewd/internal/journal"
)

// RunHistory is the journal surface the status server reads.
type RunHistory interface {
	RecentRuns(ctx context.Context, limit int) ([]journal.Run, error)
	RunItems(ctx context.Context, runID string) ([]journal.ItemRecord, error)
}

// Deps carries the status server's collaborators.
type Deps struct {
	Journal  RunHistory // optional; stats report empty history when nil
	WorkerID string
	Version  string
}

// NewHandler builds the status router.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", handleHealth(deps))
	r.Get("/runs", handleRuns(deps))
	r.Get("/runs/{id}", handleRunItems(deps))
	return r
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "ok",
			"worker":  deps.WorkerID,
			"version": deps.Version,
			"time":    time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func handleRuns(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 20
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 1 {
				httpError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = parsed
		}

		runs := []journal.Run{}
		if deps.Journal != nil {
			var err error
			runs, err = deps.Journal.RecentRuns(r.Context(), limit)
			if err != nil {
				httpError(w, http.StatusInternalServerError, "reading run history: %v", err)
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
	}
}

func handleRunItems(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Journal == nil {
			httpError(w, http.StatusNotFound, "run history is not enabled")
			return
		}
		items, err := deps.Journal.RunItems(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "reading run items: %v", err)
			return
		}
		if items == nil {
			items = []journal.ItemRecord{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, format string, args ...any) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{"message": fmt.Sprintf(format, args...)},
	})
}
