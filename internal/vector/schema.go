package vector

import (
	"context"

	"github.com/weaviate/weaviate/entities/models"
)

// ClassDocumentChunk is the Weaviate class holding one object per indexed chunk.
const ClassDocumentChunk = "DocumentChunk"

// SchemaClient defines the interface for Weaviate schema operations
type SchemaClient interface {
	ClassExists(ctx context.Context, className string) (bool, error)
	CreateClass(ctx context.Context, class *models.Class) error
	GetClass(ctx context.Context, className string) (*models.Class, error)
	AddProperty(ctx context.Context, className string, property *models.Property) error
}

// EnsureSchema checks if the required classes exist and creates them if not
func EnsureSchema(ctx context.Context, client SchemaClient) error {
	exists, err := client.ClassExists(ctx, ClassDocumentChunk)
	if err != nil {
		return err
	}

	properties := []*models.Property{
		{
			Name:     "documentId",
			DataType: []string{"string"}, // UUID as string (exact match)
		},
		{
			Name:     "chunkIndex",
			DataType: []string{"int"},
		},
		{
			Name:     "title",
			DataType: []string{"text"},
		},
		{
			Name:     "abstract",
			DataType: []string{"text"},
		},
		{
			Name:     "content",
			DataType: []string{"text"},
		},
		{
			Name:     "section",
			DataType: []string{"string"},
		},
		{
			Name:     "domain",
			DataType: []string{"string"},
		},
		{
			Name:     "keywords",
			DataType: []string{"string[]"},
		},
		{
			Name:     "createdAt",
			DataType: []string{"date"},
		},
		{
			Name:     "metadata",
			DataType: []string{"text"}, // opaque JSON blob
		},
	}

	if !exists {
		class := &models.Class{
			Class:       ClassDocumentChunk,
			Description: "A chunk of an ingested document",
			Vectorizer:  "none",
			Properties:  properties,
		}
		return client.CreateClass(ctx, class)
	}

	// Class exists, check for missing properties
	class, err := client.GetClass(ctx, ClassDocumentChunk)
	if err != nil {
		return err
	}

	existingProps := make(map[string]bool)
	for _, p := range class.Properties {
		existingProps[p.Name] = true
	}

	for _, p := range properties {
		if !existingProps[p.Name] {
			if err := client.AddProperty(ctx, ClassDocumentChunk, p); err != nil {
				return err
			}
		}
	}

	return nil
}
