package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/vigil/pkg/domain/interfaces"
	"github.com/m-mizutani/vigil/pkg/domain/model"
	"github.com/m-mizutani/vigil/pkg/domain/types"
	"github.com/m-mizutani/vigil/pkg/utils/async"
)

// PipelineHandler handles pipeline trigger and reporting requests
type PipelineHandler struct {
	pipelineUC interfaces.PipelineUseCase
	reportUC   interfaces.ReportUseCase
}

// NewPipelineHandler creates a new PipelineHandler
func NewPipelineHandler(pipelineUC interfaces.PipelineUseCase, reportUC interfaces.ReportUseCase) *PipelineHandler {
	return &PipelineHandler{
		pipelineUC: pipelineUC,
		reportUC:   reportUC,
	}
}

// TriggerRun starts a pipeline run. By default the run is dispatched in
// the background and the request returns immediately; pass ?wait=true to
// run inline and receive the full result.
func (h *PipelineHandler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := ctxlog.From(ctx)
	ds := dataSourceOf(r)

	if r.URL.Query().Get("wait") == "true" {
		result, err := h.pipelineUC.Run(ctx, ds)
		if err != nil {
			if errors.Is(err, types.ErrRunInFlight) {
				writeError(w, err, http.StatusConflict)
				return
			}
			logger.Error("Pipeline run failed", "error", err, "data_source", ds)
			writeError(w, err, http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	async.Dispatch(ctx, func(ctx context.Context) error {
		_, err := h.pipelineUC.Run(ctx, ds)
		return err
	})

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":      "accepted",
		"data_source": string(ds),
	})
}

// GetLogs returns the recent pipeline audit trail, newest first.
func (h *PipelineHandler) GetLogs(w http.ResponseWriter, r *http.Request) {
	ds := dataSourceOf(r)
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, goerr.New("invalid limit parameter"), http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries, err := h.reportUC.Logs(r.Context(), ds, limit)
	if err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data_source": ds,
		"logs":        entries,
	})
}

// GetRisks returns risk assessments filtered by the query parameters.
func (h *PipelineHandler) GetRisks(w http.ResponseWriter, r *http.Request) {
	ds := dataSourceOf(r)
	query := model.AssessmentQuery{
		Category:  model.RiskCategory(r.URL.Query().Get("category")),
		Language:  r.URL.Query().Get("language"),
		NameMatch: r.URL.Query().Get("q"),
		Ascending: r.URL.Query().Get("order") == "asc",
	}
	if v := r.URL.Query().Get("min_score"); v != "" {
		score, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeError(w, goerr.New("invalid min_score parameter"), http.StatusBadRequest)
			return
		}
		query.MinScore = score
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, goerr.New("invalid limit parameter"), http.StatusBadRequest)
			return
		}
		query.Limit = n
	}

	rows, err := h.reportUC.Assessments(r.Context(), ds, query)
	if err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data_source": ds,
		"count":       len(rows),
		"risks":       rows,
	})
}

// GetStatus returns the per-layer monitoring view and recent runs.
func (h *PipelineHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.reportUC.PipelineStatus(r.Context(), dataSourceOf(r))
	if err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func dataSourceOf(r *http.Request) types.DataSource {
	if v := r.URL.Query().Get("source"); v != "" {
		return types.DataSource(v)
	}
	return types.DefaultDataSource
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		ctxlog.From(context.Background()).Error("Failed to encode response", "error", err)
	}
}
