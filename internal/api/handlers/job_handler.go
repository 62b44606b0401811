package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sitewise-ai/knowledge-engine/internal/services"
)

type JobHandler struct {
	jobs   *services.JobService
	crawls *services.CrawlService
}

func NewJobHandler(jobs *services.JobService, crawls *services.CrawlService) *JobHandler {
	return &JobHandler{jobs: jobs, crawls: crawls}
}

type startCrawlRequest struct {
	Domain     string `json:"domain"`
	EstimateID string `json:"estimate_id,omitempty"`
}

// StartCrawl acknowledges with 202 and the queued job; the crawl itself
// runs in the background.
func (h *JobHandler) StartCrawl(w http.ResponseWriter, r *http.Request) {
	var req startCrawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Domain == "" {
		writeError(w, http.StatusBadRequest, "domain is required")
		return
	}

	job, err := h.crawls.Start(r.Context(), chi.URLParam(r, "tenantID"), req.Domain, req.EstimateID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.Get(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	view, err := h.jobs.View(r.Context(), job)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))

	jobs, err := h.jobs.List(r.Context(), chi.URLParam(r, "tenantID"), page, pageSize)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	views, err := h.jobs.Views(r.Context(), jobs)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": views})
}

func (h *JobHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	count, err := h.jobs.Deactivate(r.Context(), chi.URLParam(r, "tenantID"), chi.URLParam(r, "jobID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"chunks_deactivated": count})
}
