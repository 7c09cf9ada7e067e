// Package graph applies document metadata to the knowledge-graph
// representation. The real graph database sits behind Updater; the Postgres
// implementation here is the reference adapter.
package graph

import "context"

// Snapshot is the slice of a document the graph cares about.
type Snapshot struct {
	DocumentID string
	Title      string
	Domain     string
	Authors    []string
	Keywords   []string
	ParentID   string
}

// Updater applies a document's graph update. Apply must be idempotent:
// re-applying the same snapshot twice must not duplicate graph content, since
// the completion queue delivers at-least-once.
type Updater interface {
	Apply(ctx context.Context, snap Snapshot) error
}
