package document

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"docforge/internal/middleware"
)

// StatusResponse is the public projection of a document record for status
// polling.
type StatusResponse struct {
	ID          string     `json:"id"`
	Filename    string     `json:"filename"`
	Status      Status     `json:"status"`
	Title       string     `json:"title"`
	IsContainer bool       `json:"is_container"`
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

type Repository interface {
	Get(ctx context.Context, id string) (*Document, error)
	List(ctx context.Context) ([]Document, error)
	Children(ctx context.Context, parentID string) ([]Document, error)
}

type Handler struct {
	repo Repository
}

func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo}
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	doc, err := h.repo.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.writeError(r.Context(), w, "NOT_FOUND", "Document not found", http.StatusNotFound)
			return
		}
		h.writeError(r.Context(), w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": toStatusResponse(doc)}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	docs, err := h.repo.List(r.Context())
	if err != nil {
		h.writeError(r.Context(), w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	statuses := make([]StatusResponse, 0, len(docs))
	for i := range docs {
		statuses = append(statuses, toStatusResponse(&docs[i]))
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"data": statuses,
		"meta": map[string]int{"count": len(statuses)},
	}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) Children(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	docs, err := h.repo.Children(r.Context(), id)
	if err != nil {
		h.writeError(r.Context(), w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	statuses := make([]StatusResponse, 0, len(docs))
	for i := range docs {
		statuses = append(statuses, toStatusResponse(&docs[i]))
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"data": statuses,
		"meta": map[string]int{"count": len(statuses)},
	}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func toStatusResponse(doc *Document) StatusResponse {
	return StatusResponse{
		ID:          doc.ID,
		Filename:    doc.Filename,
		Status:      doc.Status,
		Title:       doc.Title,
		IsContainer: doc.IsContainer,
		CreatedAt:   doc.CreatedAt,
		ProcessedAt: doc.ProcessedAt,
		Error:       doc.FailureMsg,
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
