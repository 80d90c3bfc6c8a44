// Package blobstore defines the flat-key destination docdr writes to.
package blobstore

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/dl-alexandre/docdr/internal/types"
	"github.com/dl-alexandre/docdr/internal/utils"
)

// Store is a flat-key object store
type Store interface {
	// List returns every object whose key starts with prefix.
	List(ctx context.Context, prefix string) ([]types.DestinationObject, error)
	// ListPrefixes returns the names of the "directories" directly under
	// prefix, without prefix or trailing slash.
	ListPrefixes(ctx context.Context, prefix string) ([]string, error)
	// Head returns object attributes, or utils.ErrNotFound.
	Head(ctx context.Context, key string) (types.DestinationObject, error)
	// Get opens an object; the caller closes the body.
	Get(ctx context.Context, key string) (types.DestinationObject, io.ReadCloser, error)
	// Put stores body under key. size is -1 when unknown.
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string, metadata map[string]string) error
	// Delete removes key; deleting an absent key succeeds.
	Delete(ctx context.Context, key string) error
}

// HeadIfExists is Head with absence reported through ok instead of an error
func HeadIfExists(ctx context.Context, store Store, key string) (obj types.DestinationObject, ok bool, err error) {
	obj, err = store.Head(ctx, key)
	if errors.Is(err, utils.ErrNotFound) {
		return types.DestinationObject{}, false, nil
	}
	if err != nil {
		return types.DestinationObject{}, false, err
	}
	return obj, true, nil
}

// ChildName returns the first path segment of key below prefix
func ChildName(prefix, key string) string {
	rest := strings.TrimPrefix(key, prefix)
	if i := strings.Index(rest, "/"); i >= 0 {
		return rest[:i]
	}
	return rest
}
