// Package index turns extracted chunks into search-index records and writes
// them through an abstract writer.
package index

import (
	"context"
	"fmt"
	"time"

	"docforge/internal/extract"
)

// Record is the per-chunk projection sent to the search index.
type Record struct {
	DocumentID string
	ChunkIndex int
	Title      string
	Abstract   string
	Content    string
	Section    string
	Domain     string
	Keywords   []string
	Vector     []float32
	CreatedAt  time.Time
	Metadata   map[string]string
}

// RecordWriter is the abstract index interface. Writes are not transactional
// across chunks.
type RecordWriter interface {
	Write(ctx context.Context, rec Record) error
	PurgeDocument(ctx context.Context, documentID string) error
}

// DocumentFields carries the denormalized document attributes copied onto
// every chunk record.
type DocumentFields struct {
	ID       string
	Title    string
	Abstract string
	Domain   string
	Keywords []string
	Extras   map[string]string
}

// Report counts how many chunks made it into the index.
type Report struct {
	ChunksIndexed int
	TotalChunks   int
}

// Error marks a failed indexing pass; Report preserves the partial count so
// retry tooling never has to assume the index is empty.
type Error struct {
	DocumentID string
	Report     Report
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("indexing document %s: indexed %d/%d chunks: %v",
		e.DocumentID, e.Report.ChunksIndexed, e.Report.TotalChunks, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

type Coordinator struct {
	writer RecordWriter
	now    func() time.Time
}

func NewCoordinator(writer RecordWriter) *Coordinator {
	return &Coordinator{writer: writer, now: time.Now}
}

// Index purges any records from a previous pass over the same document, then
// writes one record per chunk with its externally supplied embedding. On a
// mid-pass failure the already-written chunks stay put and the report carries
// the partial count.
func (c *Coordinator) Index(ctx context.Context, doc DocumentFields, chunks []extract.Chunk, vectors [][]float32) (Report, error) {
	report := Report{TotalChunks: len(chunks)}

	if len(vectors) != len(chunks) {
		return report, &Error{
			DocumentID: doc.ID,
			Report:     report,
			Err:        fmt.Errorf("got %d embeddings for %d chunks", len(vectors), len(chunks)),
		}
	}

	// Reprocessing the same identity overwrites rather than appends.
	if err := c.writer.PurgeDocument(ctx, doc.ID); err != nil {
		return report, &Error{DocumentID: doc.ID, Report: report, Err: err}
	}

	createdAt := c.now().UTC()
	for i, chunk := range chunks {
		rec := Record{
			DocumentID: doc.ID,
			ChunkIndex: chunk.Index,
			Title:      doc.Title,
			Abstract:   doc.Abstract,
			Content:    chunk.Text,
			Section:    chunk.Section,
			Domain:     doc.Domain,
			Keywords:   doc.Keywords,
			Vector:     vectors[i],
			CreatedAt:  createdAt,
			Metadata:   doc.Extras,
		}
		if err := c.writer.Write(ctx, rec); err != nil {
			report.ChunksIndexed = i
			return report, &Error{DocumentID: doc.ID, Report: report, Err: err}
		}
	}

	report.ChunksIndexed = len(chunks)
	return report, nil
}
