// Package worker consumes completion tasks and finalizes document status.
// It is the sole writer of the terminal "completed" status.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nsqio/go-nsq"

	"docforge/features/document"
	"docforge/internal/graph"
	"docforge/internal/middleware"
	"docforge/internal/queue"
)

// DocumentStore is the slice of the record store the worker needs.
type DocumentStore interface {
	Get(ctx context.Context, id string) (*document.Document, error)
	TransitionStatus(ctx context.Context, id string, from, to document.Status, failureMsg string) error
}

type CompletionConsumer struct {
	updater     graph.Updater
	docs        DocumentStore
	maxAttempts uint16
}

func NewCompletionConsumer(updater graph.Updater, docs DocumentStore, maxAttempts int) *CompletionConsumer {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &CompletionConsumer{
		updater:     updater,
		docs:        docs,
		maxAttempts: uint16(maxAttempts),
	}
}

// HandleMessage applies the graph update for one completion task. Returning a
// non-nil error lets NSQ redeliver the task after its visibility timeout; the
// bounded attempt count converts the final failure into a terminal status.
func (h *CompletionConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var task queue.CompletionTask
	if err := json.Unmarshal(m.Body, &task); err != nil {
		// Poison pill, don't retry.
		slog.Error("poison pill: invalid completion task", "error", err)
		return nil
	}
	if task.DocumentID == "" {
		slog.Error("completion task missing document id, dropping")
		return nil
	}

	ctx := context.Background()
	if task.CorrelationID != "" {
		ctx = middleware.WithCorrelationID(ctx, task.CorrelationID)
	}

	doc, err := h.docs.Get(ctx, task.DocumentID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load document for completion", "document_id", task.DocumentID, "error", err)
		return h.failOrRetry(ctx, m, task.DocumentID, err)
	}

	// Redelivery after a finished run: the record is already terminal.
	if doc.Status == document.StatusCompleted || doc.Status == document.StatusFailed {
		slog.InfoContext(ctx, "completion task for terminal document, dropping",
			"document_id", doc.ID, "status", doc.Status)
		return nil
	}

	snap := graph.Snapshot{
		DocumentID: doc.ID,
		Title:      doc.Title,
		Domain:     doc.Domain,
		Authors:    doc.Authors,
		Keywords:   doc.Keywords,
		ParentID:   doc.ParentID,
	}
	if err := h.updater.Apply(ctx, snap); err != nil {
		slog.ErrorContext(ctx, "graph update failed",
			"document_id", doc.ID, "attempt", m.Attempts, "error", err)
		return h.failOrRetry(ctx, m, doc.ID, err)
	}

	err = h.docs.TransitionStatus(ctx, doc.ID, document.StatusProcessing, document.StatusCompleted, "")
	if err != nil {
		if errors.Is(err, document.ErrInvalidTransition) {
			// A concurrent writer already finalized the record.
			slog.WarnContext(ctx, "document no longer in processing, dropping completion",
				"document_id", doc.ID, "error", err)
			return nil
		}
		return h.failOrRetry(ctx, m, doc.ID, err)
	}

	slog.InfoContext(ctx, "document completed", "document_id", doc.ID)
	return nil
}

func (h *CompletionConsumer) failOrRetry(ctx context.Context, m *nsq.Message, documentID string, cause error) error {
	if m.Attempts < h.maxAttempts {
		return cause // trigger redelivery
	}

	msg := fmt.Sprintf("graph update: %v", cause)
	err := h.docs.TransitionStatus(ctx, documentID, document.StatusProcessing, document.StatusFailed, msg)
	if err != nil && !errors.Is(err, document.ErrInvalidTransition) {
		slog.ErrorContext(ctx, "failed to mark document failed after retry exhaustion",
			"document_id", documentID, "error", err)
	}
	// Attempts exhausted either way; stop redelivery.
	return nil
}
