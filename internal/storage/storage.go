// Package storage defines the object-store boundary and the deterministic key
// scheme for raw and converted document content.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
)

// Error surfaces a failed storage call. The orchestrator treats it as fatal
// for the document, not for the batch.
type Error struct {
	Op  string
	Key string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ObjectStore is the abstract storage interface. Implementations are expected
// to be safe for concurrent use and to overwrite on repeated Put with the
// same key.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// UploadKey is the deterministic location for original content.
func UploadKey(domain, documentID, filename string) string {
	return path.Join("uploads", domain, documentID, filename)
}

// ConvertedKey is the deterministic location for converted content.
func ConvertedKey(domain, documentID, filename string) string {
	return path.Join("converted", domain, documentID, filename)
}
