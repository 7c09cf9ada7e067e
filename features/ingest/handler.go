package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"docforge/internal/middleware"
)

type Handler struct {
	service  *Service
	maxBytes int64
}

func NewHandler(service *Service, maxBytes int64) *Handler {
	return &Handler{service: service, maxBytes: maxBytes}
}

// Submit accepts a multipart batch: one or more "files" parts plus "domain"
// and optional "format" fields. The response acknowledges acceptance only;
// processing outcome is polled via the document status endpoint.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	// Oversized bodies are cut off at the reader, after the cheap checks in
	// the validator have had their chance on the declared sizes.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.writeError(r.Context(), w, "VALIDATION_ERROR",
				fmt.Sprintf("content exceeds %d bytes", h.maxBytes), http.StatusRequestEntityTooLarge)
			return
		}
		h.writeError(r.Context(), w, "BAD_REQUEST", "malformed multipart body", http.StatusBadRequest)
		return
	}

	domain := r.FormValue("domain")
	if domain == "" {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "domain is required", http.StatusBadRequest)
		return
	}
	format := r.FormValue("format")

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "at least one file is required", http.StatusBadRequest)
		return
	}

	files := make([]File, 0, len(headers))
	for _, header := range headers {
		src, err := header.Open()
		if err != nil {
			h.writeError(r.Context(), w, "BAD_REQUEST", "unable to read file "+header.Filename, http.StatusBadRequest)
			return
		}
		content, err := io.ReadAll(src)
		src.Close()
		if err != nil {
			h.writeError(r.Context(), w, "BAD_REQUEST", "unable to read file "+header.Filename, http.StatusBadRequest)
			return
		}
		files = append(files, File{
			Name:        header.Filename,
			Content:     content,
			ContentType: header.Header.Get("Content-Type"),
		})
	}

	resp, err := h.service.SubmitBatch(r.Context(), files, domain, format)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			h.writeError(r.Context(), w, "VALIDATION_ERROR", verr.Error(), http.StatusBadRequest)
			return
		}
		slog.Error("submission failed", "error", err, "domain", domain)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resp}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
