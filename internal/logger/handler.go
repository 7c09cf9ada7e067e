package logger

import (
	"context"
	"io"
	"log/slog"

	"docforge/internal/middleware"
)

// ContextHandler decorates an slog.Handler with the correlation ID carried in
// the context, so pipeline and worker logs can be joined to the originating
// submission.
type ContextHandler struct {
	slog.Handler
}

func NewContextHandler(h slog.Handler) *ContextHandler {
	return &ContextHandler{Handler: h}
}

// NewJSON builds the default JSON logger used by main and the worker process.
func NewJSON(w io.Writer) *slog.Logger {
	return slog.New(NewContextHandler(slog.NewJSONHandler(w, nil)))
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if id, ok := ctx.Value(middleware.CorrelationKey).(string); ok && id != "" {
		r.AddAttrs(slog.String("correlation_id", id))
	}
	return h.Handler.Handle(ctx, r)
}
