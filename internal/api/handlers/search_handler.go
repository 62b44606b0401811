package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sitewise-ai/knowledge-engine/internal/services"
)

type SearchHandler struct {
	search   *services.SearchService
	tenants  *services.TenantService
	ingestor *services.Ingestor
}

func NewSearchHandler(search *services.SearchService, tenants *services.TenantService, ingestor *services.Ingestor) *SearchHandler {
	return &SearchHandler{search: search, tenants: tenants, ingestor: ingestor}
}

type searchRequest struct {
	Query  string  `json:"query"`
	Domain *string `json:"domain,omitempty"`
	Limit  int     `json:"limit,omitempty"`
}

func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	results, err := h.search.Search(r.Context(), chi.URLParam(r, "tenantID"), req.Query, req.Domain, req.Limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

type editChunkRequest struct {
	Text string `json:"text"`
}

// EditChunk updates a chunk's text and re-embeds it.
func (h *SearchHandler) EditChunk(w http.ResponseWriter, r *http.Request) {
	var req editChunkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tenant, err := h.tenants.Get(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	chunk, err := h.ingestor.UpdateChunkText(r.Context(), tenant, chi.URLParam(r, "chunkID"), req.Text)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chunk)
}
