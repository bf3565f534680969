package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mrmushfiq/llm0-express/internal/shared/database"
	"github.com/mrmushfiq/llm0-express/internal/shared/models"
)

// RunStore reads run summaries from the run log
type RunStore interface {
	GetRunSummary(ctx context.Context, runID string) (*models.RunSummary, error)
}

type RunsHandler struct {
	store RunStore
}

func NewRunsHandler(store RunStore) *RunsHandler {
	return &RunsHandler{store: store}
}

// HandleGetRun handles GET /v1/runs/{runID}
func (h *RunsHandler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	summary, err := h.store.GetRunSummary(r.Context(), runID)
	if errors.Is(err, database.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summary)
}
