package weaviate

import (
	"context"
	"encoding/json"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"

	"docforge/internal/index"
	"docforge/internal/vector"
)

// Store writes chunk records to Weaviate. It implements index.RecordWriter.
type Store struct {
	client *weaviate.Client
}

func NewStore(client *weaviate.Client) *Store {
	return &Store{client: client}
}

func (s *Store) Write(ctx context.Context, rec index.Record) error {
	// Opaque metadata is stored JSON-encoded; the index never queries into it.
	metadata, err := json.Marshal(rec.Metadata)
	if err != nil {
		return err
	}

	_, err = s.client.Data().Creator().
		WithClassName(vector.ClassDocumentChunk).
		WithProperties(map[string]interface{}{
			"documentId": rec.DocumentID,
			"chunkIndex": rec.ChunkIndex,
			"title":      rec.Title,
			"abstract":   rec.Abstract,
			"content":    rec.Content,
			"section":    rec.Section,
			"domain":     rec.Domain,
			"keywords":   rec.Keywords,
			"createdAt":  rec.CreatedAt,
			"metadata":   string(metadata),
		}).
		WithVector(rec.Vector).
		Do(ctx)
	return err
}

// PurgeDocument removes every chunk record for a document identity so a
// reprocessing pass overwrites instead of duplicating.
func (s *Store) PurgeDocument(ctx context.Context, documentID string) error {
	_, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(vector.ClassDocumentChunk).
		WithOutput("minimal").
		WithWhere(filters.Where().
			WithPath([]string{"documentId"}).
			WithOperator(filters.Equal).
			WithValueString(documentID)).
		Do(ctx)
	return err
}
