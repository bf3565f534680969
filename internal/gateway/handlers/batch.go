package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/mrmushfiq/llm0-express/internal/express"
	"github.com/mrmushfiq/llm0-express/internal/express/dispatch"
	"github.com/mrmushfiq/llm0-express/internal/express/limits"
	"github.com/mrmushfiq/llm0-express/internal/express/planner"
	"github.com/mrmushfiq/llm0-express/internal/shared/models"
)

// Completer runs a batch of chat requests
type Completer interface {
	Complete(ctx context.Context, strategy dispatch.Strategy, requests []planner.Request, model string, tier limits.Tier, opts dispatch.Options) (*express.Run, error)
}

// BatchRequest is the body of POST /v1/batch/completions
type BatchRequest struct {
	Model    string             `json:"model"`
	Tier     string             `json:"tier,omitempty"`
	Strategy string             `json:"strategy,omitempty"`
	Requests [][]models.Message `json:"requests"`
	Options  dispatch.Options   `json:"options"`
}

// ResultItem is one slot of the response, aligned with the request index
type ResultItem struct {
	Index    int                `json:"index"`
	Skipped  bool               `json:"skipped,omitempty"`
	Response *dispatch.Response `json:"response"`
	Error    string             `json:"error,omitempty"`
}

// BatchResponse is the reply of POST /v1/batch/completions
type BatchResponse struct {
	RunID   string       `json:"run_id"`
	Batches int          `json:"batches"`
	Failed  int          `json:"failed"`
	Results []ResultItem `json:"results"`
}

type BatchHandler struct {
	completer   Completer
	defaultTier limits.Tier
	strategy    dispatch.Strategy
	logger      *zap.Logger
}

func NewBatchHandler(completer Completer, defaultTier limits.Tier, strategy dispatch.Strategy, logger *zap.Logger) *BatchHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchHandler{
		completer:   completer,
		defaultTier: defaultTier,
		strategy:    strategy,
		logger:      logger.With(zap.String("component", "handlers")),
	}
}

// HandleBatchCompletion handles POST /v1/batch/completions
func (h *BatchHandler) HandleBatchCompletion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Parse request
	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Model == "" {
		writeError(w, http.StatusBadRequest, "model is required")
		return
	}

	tier := h.defaultTier
	if req.Tier != "" {
		t, err := limits.ParseTier(req.Tier)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		tier = t
	}

	strategy := h.strategy
	if req.Strategy != "" {
		s, err := dispatch.ParseStrategy(req.Strategy)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		strategy = s
	}

	requests := make([]planner.Request, len(req.Requests))
	for i, msgs := range req.Requests {
		requests[i] = planner.Request{Messages: msgs}
	}

	run, err := h.completer.Complete(ctx, strategy, requests, req.Model, tier, req.Options)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, limits.ErrConfiguration):
			status = http.StatusBadRequest
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
			status = http.StatusGatewayTimeout
		case errors.Is(err, dispatch.ErrWorkerFailure):
			status = http.StatusBadGateway
		}
		h.logger.Warn("batch completion failed", zap.String("model", req.Model), zap.Error(err))
		writeError(w, status, fmt.Sprintf("batch error: %v", err))
		return
	}

	resp := BatchResponse{
		RunID:   run.ID,
		Batches: run.Batches,
		Failed:  run.Results.Failed(),
		Results: make([]ResultItem, len(run.Results)),
	}
	for i, res := range run.Results {
		item := ResultItem{Index: res.Position, Skipped: res.Skipped, Response: res.Response}
		if res.Err != nil {
			item.Error = res.Err.Error()
		}
		resp.Results[i] = item
	}

	// Set headers
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Run-ID", run.ID)
	w.Header().Set("X-Batches", fmt.Sprintf("%d", run.Batches))

	// Return response
	json.NewEncoder(w).Encode(resp)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
