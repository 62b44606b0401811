package handlers

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sitewise-ai/knowledge-engine/internal/services"
)

type UsageHandler struct {
	usage *services.UsageService
}

func NewUsageHandler(usage *services.UsageService) *UsageHandler {
	return &UsageHandler{usage: usage}
}

// Get reports a tenant's embedding token usage. Pass period=month for the
// current calendar month, or from/to as RFC3339 timestamps. With no
// parameters the current month is assumed.
func (h *UsageHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")

	from, to, month, err := parseUsageRange(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if month {
		summary, err := h.usage.CurrentMonth(r.Context(), tenantID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, summary)
		return
	}

	summary, err := h.usage.Summary(r.Context(), tenantID, from, to)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// parseUsageRange interprets the usage query parameters. period=month (and
// the bare query) selects the current calendar month; otherwise from/to give
// an explicit range, each side defaulting when omitted.
func parseUsageRange(q url.Values) (from, to time.Time, month bool, err error) {
	if period := q.Get("period"); period != "" {
		if period != "month" {
			return from, to, false, fmt.Errorf("unknown period %q", period)
		}
		return from, to, true, nil
	}

	rawFrom, rawTo := q.Get("from"), q.Get("to")
	if rawFrom == "" && rawTo == "" {
		return from, to, true, nil
	}

	if rawFrom != "" {
		if from, err = time.Parse(time.RFC3339, rawFrom); err != nil {
			return from, to, false, fmt.Errorf("from must be RFC3339")
		}
	}
	to = time.Now().UTC()
	if rawTo != "" {
		if to, err = time.Parse(time.RFC3339, rawTo); err != nil {
			return from, to, false, fmt.Errorf("to must be RFC3339")
		}
	}
	return from, to, false, nil
}
