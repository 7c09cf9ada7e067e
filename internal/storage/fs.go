package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
)

// FSStore stores objects under a root directory on the local filesystem.
// Keys map directly to relative paths.
type FSStore struct {
	root string
}

func NewFSStore(root string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, &Error{Op: "init", Key: root, Err: err}
	}
	return &FSStore{root: root}, nil
}

func (s *FSStore) Put(ctx context.Context, key string, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return &Error{Op: "put", Key: key, Err: err}
	}

	dst := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return &Error{Op: "put", Key: key, Err: err}
	}

	f, err := os.Create(dst)
	if err != nil {
		return &Error{Op: "put", Key: key, Err: err}
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return &Error{Op: "put", Key: key, Err: err}
	}
	return nil
}

func (s *FSStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, &Error{Op: "get", Key: key, Err: err}
	}

	f, err := os.Open(filepath.Join(s.root, filepath.FromSlash(key)))
	if err != nil {
		return nil, &Error{Op: "get", Key: key, Err: err}
	}
	return f, nil
}

func (s *FSStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return &Error{Op: "delete", Key: key, Err: err}
	}

	if err := os.Remove(filepath.Join(s.root, filepath.FromSlash(key))); err != nil && !os.IsNotExist(err) {
		return &Error{Op: "delete", Key: key, Err: err}
	}
	return nil
}
