package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sitewise-ai/knowledge-engine/internal/core/estimate"
	"github.com/sitewise-ai/knowledge-engine/internal/services"
)

type EstimateHandler struct {
	estimates *services.EstimateService
}

func NewEstimateHandler(estimates *services.EstimateService) *EstimateHandler {
	return &EstimateHandler{estimates: estimates}
}

type estimateCrawlRequest struct {
	Domain string `json:"domain"`
}

// StartCrawl kicks an estimate computation. A cache hit completes inline
// (200); otherwise the caller polls with the returned id (202).
func (h *EstimateHandler) StartCrawl(w http.ResponseWriter, r *http.Request) {
	var req estimateCrawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Domain == "" {
		writeError(w, http.StatusBadRequest, "domain is required")
		return
	}

	status, err := h.estimates.Start(r.Context(), req.Domain)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	code := http.StatusAccepted
	if status.State == estimate.StatusCompleted {
		code = http.StatusOK
	}
	writeJSON(w, code, status)
}

func (h *EstimateHandler) GetCrawl(w http.ResponseWriter, r *http.Request) {
	status, err := h.estimates.Get(r.Context(), chi.URLParam(r, "estimateID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}
