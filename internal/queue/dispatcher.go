// Package queue dispatches completion tasks to the background worker.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"docforge/internal/config"
	"docforge/internal/middleware"
)

// CompletionTask is the queue message consumed by the background worker.
// Delivery is at-least-once; consumers must be idempotent.
type CompletionTask struct {
	DocumentID    string    `json:"document_id"`
	EnqueuedAt    time.Time `json:"enqueued_at"`
	Attempt       int       `json:"attempt"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// DispatchError reports that publishing was retried to exhaustion.
type DispatchError struct {
	DocumentID string
	Attempts   int
	Err        error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch completion task for document %s failed after %d attempts: %v",
		e.DocumentID, e.Attempts, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

type Publisher interface {
	Publish(topic string, body []byte) error
}

// Dispatcher publishes completion tasks with bounded exponential backoff.
// Retries happen here, inside the orchestrator's call, not in the queue.
type Dispatcher struct {
	pub             Publisher
	maxAttempts     int
	initialInterval time.Duration
}

func NewDispatcher(pub Publisher, maxAttempts int) *Dispatcher {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Dispatcher{
		pub:             pub,
		maxAttempts:     maxAttempts,
		initialInterval: 250 * time.Millisecond,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, documentID string) error {
	task := CompletionTask{
		DocumentID:    documentID,
		EnqueuedAt:    time.Now().UTC(),
		Attempt:       0,
		CorrelationID: middleware.GetCorrelationID(ctx),
	}
	body, err := json.Marshal(task)
	if err != nil {
		return &DispatchError{DocumentID: documentID, Attempts: 0, Err: err}
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = d.initialInterval

	attempt := 0
	operation := func() error {
		attempt++
		if err := d.pub.Publish(config.TopicCompletion, body); err != nil {
			slog.WarnContext(ctx, "completion dispatch attempt failed",
				"document_id", documentID, "attempt", attempt, "error", err)
			return err
		}
		return nil
	}

	err = backoff.Retry(operation,
		backoff.WithContext(backoff.WithMaxRetries(bo, uint64(d.maxAttempts-1)), ctx))
	if err != nil {
		return &DispatchError{DocumentID: documentID, Attempts: attempt, Err: err}
	}

	slog.InfoContext(ctx, "completion task dispatched", "document_id", documentID)
	return nil
}
