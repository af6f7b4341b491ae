package evaluation

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"

	"github.com/irbench/ir-bench/internal/dataset"
	"github.com/irbench/ir-bench/internal/metrics"
	apperrors "github.com/irbench/ir-bench/internal/pkg/errors"
	"github.com/irbench/ir-bench/internal/runstore"
)

// Handler provides the HTTP surface of the evaluation service.
type Handler struct {
	evaluator *Evaluator
}

// NewHandler creates an evaluation handler.
func NewHandler(e *Evaluator) *Handler {
	return &Handler{evaluator: e}
}

// RegisterRoutes registers the evaluation routes.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/evaluate", h.handleEvaluate)
	mux.HandleFunc("GET /v1/runs", h.handleListRuns)
	mux.HandleFunc("GET /v1/runs/{id}", h.handleGetRun)
	mux.HandleFunc("DELETE /v1/runs/{id}", h.handleDeleteRun)
	mux.HandleFunc("GET /v1/datasets", h.handleListDatasets)
	mux.HandleFunc("GET /v1/datasets/{name}", h.handleGetDataset)
	mux.HandleFunc("GET /v1/stats", h.handleStats)
}

func (h *Handler) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperrors.WriteError(w, apperrors.InvalidRequestError("invalid JSON body"))
		return
	}

	if req.Async {
		run, err := h.evaluator.Start(r.Context(), req)
		if err != nil {
			apperrors.WriteError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, run)
		return
	}

	run, err := h.evaluator.Run(r.Context(), req)
	if err != nil {
		// The failed record, if one was created, stays retrievable
		// through GET /v1/runs/{id}.
		var appErr *apperrors.AppError
		if run != nil && errors.As(err, &appErr) {
			apperrors.WriteError(w, appErr.WithDetail("run_id", run.ID))
			return
		}
		apperrors.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *Handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	var (
		runs []*runstore.Run
		err  error
	)
	if ds := r.URL.Query().Get("dataset"); ds != "" {
		runs, err = h.evaluator.runs.ListByDataset(r.Context(), ds)
	} else {
		runs, err = h.evaluator.runs.List(r.Context())
	}
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RunList{Runs: runs, Total: len(runs)})
}

func (h *Handler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.evaluator.runs.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *Handler) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	if err := h.evaluator.runs.Delete(r.Context(), r.PathValue("id")); err != nil {
		apperrors.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListDatasets(w http.ResponseWriter, r *http.Request) {
	known := dataset.Known()
	infos := make([]DatasetInfo, 0, len(known))
	for _, name := range known {
		info, err := h.datasetInfo(name)
		if err != nil {
			// A benchmark that is not on disk is simply not advertised.
			continue
		}
		infos = append(infos, info)
	}
	writeJSON(w, http.StatusOK, DatasetList{Datasets: infos})
}

func (h *Handler) handleGetDataset(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !slices.Contains(dataset.Known(), name) {
		apperrors.WriteError(w, apperrors.NotFoundError("dataset "+name))
		return
	}
	info, err := h.datasetInfo(name)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	m := h.evaluator.metrics
	if m == nil || m.TimeSeries == nil {
		apperrors.WriteError(w, apperrors.ServiceUnavailableError("metrics"))
		return
	}
	writeJSON(w, http.StatusOK, StatsResponse{
		EvaluationRate:    statsPoints(m.TimeSeries.EvaluationRate.History()),
		EvaluationLatency: statsPoints(m.TimeSeries.EvaluationLatency.History()),
		ExtractRate:       statsPoints(m.TimeSeries.ExtractRate.History()),
	})
}

// datasetInfo opens the benchmark and summarizes its ground truth.
func (h *Handler) datasetInfo(name string) (DatasetInfo, error) {
	ds, err := dataset.Load(dataset.Options{
		Root:     h.evaluator.cfg.Datasets.Root,
		ListFile: h.evaluator.cfg.Datasets.ListFile,
	}, name)
	if err != nil {
		return DatasetInfo{}, err
	}
	return DatasetInfo{
		Name:        ds.Name(),
		NumDatabase: ds.NumDatabase(),
		NumQueries:  ds.NumQueries(),
		Tiered:      ds.Tiered(),
	}, nil
}

func statsPoints(points []metrics.DataPoint) []StatsPoint {
	out := make([]StatsPoint, len(points))
	for i, p := range points {
		out[i] = StatsPoint{Timestamp: p.Timestamp, Value: p.Value}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Ignore encoding errors, headers are already sent.
	_ = json.NewEncoder(w).Encode(v)
}
