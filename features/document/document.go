package document

import (
	"errors"
	"fmt"
	"time"
)

// Status is the durable processing state of a document. Transitions are
// monotonic: pending → processing → completed | failed. Terminal states never
// move again.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// ErrInvalidTransition is a logic error: a write attempted a transition the
// state machine forbids (including any move out of a terminal state).
var ErrInvalidTransition = errors.New("invalid status transition")

var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing},
	StatusProcessing: {StatusCompleted, StatusFailed},
	StatusCompleted:  {},
	StatusFailed:     {},
}

// CanTransition reports whether from → to is in the closed transition table.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns ErrInvalidTransition, annotated with the states,
// when the move is not permitted.
func ValidateTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// Document is the durable per-document record. ID is assigned at submission
// and immutable.
type Document struct {
	ID           string            `json:"id"`
	Filename     string            `json:"filename"`
	Domain       string            `json:"domain"`
	Variant      string            `json:"variant"`
	RawKey       string            `json:"raw_key"`
	ConvertedKey string            `json:"converted_key,omitempty"`
	SizeBytes    int64             `json:"size_bytes"`
	ContentType  string            `json:"content_type"`
	ParentID     string            `json:"parent_id,omitempty"`
	IsContainer  bool              `json:"is_container"`
	Status       Status            `json:"status"`
	Title        string            `json:"title"`
	Authors      []string          `json:"authors"`
	Date         string            `json:"date,omitempty"`
	Keywords     []string          `json:"keywords"`
	Extras       map[string]string `json:"extras,omitempty"`
	FailureMsg   string            `json:"error,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
	ProcessedAt  *time.Time        `json:"processed_at,omitempty"`
}

// Action reports whether an upsert inserted or merged.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
)
