package storage

import (
	"context"
	"errors"
)

// ErrNotFound is the sentinel for missing objects. Backends wrap it, so check
// with errors.Is.
var ErrNotFound = errors.New("not found")

// Storage is a flat object store keyed by slash-separated paths. The YAML
// repositories keep their documents in it and the proof store keeps raw
// uploads in it, so implementations must handle both small and large values.
type Storage interface {
	Read(ctx context.Context, path string) ([]byte, error)
	Write(ctx context.Context, path string, data []byte) error
	Delete(ctx context.Context, path string) error
	// List returns the paths of all objects under prefix, recursively.
	List(ctx context.Context, prefix string) ([]string, error)
	Exists(ctx context.Context, path string) (bool, error)
}
