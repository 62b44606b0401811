package handlers

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sitewise-ai/knowledge-engine/internal/services"
)

const maxUploadBytes = 50 << 20 // 50 MB across a multipart batch

type DocsHandler struct {
	docs *services.DocsService
}

func NewDocsHandler(docs *services.DocsService) *DocsHandler {
	return &DocsHandler{docs: docs}
}

func (h *DocsHandler) Estimate(w http.ResponseWriter, r *http.Request) {
	files, ok := readFiles(w, r)
	if !ok {
		return
	}
	estimates, err := h.docs.Estimate(r.Context(), chi.URLParam(r, "tenantID"), files)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": estimates})
}

func (h *DocsHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	files, ok := readFiles(w, r)
	if !ok {
		return
	}
	results, err := h.docs.Ingest(r.Context(), chi.URLParam(r, "tenantID"), files)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": results})
}

// readFiles pulls every "files" part out of the multipart form. It writes
// the error response itself when the form is unusable.
func readFiles(w http.ResponseWriter, r *http.Request) ([]services.UploadedFile, bool) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return nil, false
	}
	if r.MultipartForm == nil || len(r.MultipartForm.File["files"]) == 0 {
		writeError(w, http.StatusBadRequest, "no files provided")
		return nil, false
	}

	var files []services.UploadedFile
	for _, header := range r.MultipartForm.File["files"] {
		f, err := header.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, "unreadable file part: "+header.Filename)
			return nil, false
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, "unreadable file part: "+header.Filename)
			return nil, false
		}

		contentType := header.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		files = append(files, services.UploadedFile{
			Name:        header.Filename,
			ContentType: contentType,
			Data:        data,
		})
	}
	return files, true
}
