// Package gcs implements blobstore.Store on Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dl-alexandre/docdr/internal/api"
	"github.com/dl-alexandre/docdr/internal/blobstore"
	"github.com/dl-alexandre/docdr/internal/logging"
	"github.com/dl-alexandre/docdr/internal/types"
	"github.com/dl-alexandre/docdr/internal/utils"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/storage/v1"
)

const objectFields = "name, size, updated, contentType, metadata"

// Store is a bucket, used as a flat key space
type Store struct {
	service *storage.Service
	bucket  string
	client  *api.Client
	logger  logging.Logger
}

var _ blobstore.Store = (*Store)(nil)

// New returns a store for bucket
func New(service *storage.Service, bucket string, client *api.Client, logger logging.Logger) *Store {
	return &Store{
		service: service,
		bucket:  bucket,
		client:  client,
		logger:  logging.OrNoOp(logger),
	}
}

func (s *Store) list(ctx context.Context, prefix, delimiter string) ([]*storage.Object, []string, error) {
	reqCtx := s.client.NewRequestContext(ctx, types.RequestTypeListOrSearch, prefix)

	var objects []*storage.Object
	var prefixes []string
	pageToken := ""
	for {
		call := s.service.Objects.List(s.bucket).
			Prefix(prefix).
			Fields(googleapi.Field("nextPageToken, prefixes, items(" + objectFields + ")")).
			Context(ctx)
		if delimiter != "" {
			call = call.Delimiter(delimiter)
		}
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		page, err := api.ExecuteWithRetry(ctx, s.client, reqCtx, func() (*storage.Objects, error) {
			return call.Do()
		})
		if err != nil {
			return nil, nil, err
		}
		objects = append(objects, page.Items...)
		prefixes = append(prefixes, page.Prefixes...)

		if page.NextPageToken == "" {
			return objects, prefixes, nil
		}
		pageToken = page.NextPageToken
	}
}

// List returns every object under prefix
func (s *Store) List(ctx context.Context, prefix string) ([]types.DestinationObject, error) {
	objects, _, err := s.list(ctx, prefix, "")
	if err != nil {
		return nil, err
	}
	out := make([]types.DestinationObject, 0, len(objects))
	for _, o := range objects {
		out = append(out, convertObject(o))
	}
	return out, nil
}

// ListPrefixes returns the directory names directly under prefix
func (s *Store) ListPrefixes(ctx context.Context, prefix string) ([]string, error) {
	_, prefixes, err := s.list(ctx, prefix, "/")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		if name := strings.TrimSuffix(strings.TrimPrefix(p, prefix), "/"); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// Head returns object attributes
func (s *Store) Head(ctx context.Context, key string) (types.DestinationObject, error) {
	reqCtx := s.client.NewRequestContext(ctx, types.RequestTypeGetByID, key)
	obj, err := api.ExecuteWithRetry(ctx, s.client, reqCtx, func() (*storage.Object, error) {
		return s.service.Objects.Get(s.bucket, key).
			Fields(googleapi.Field(objectFields)).
			Context(ctx).
			Do()
	})
	if err != nil {
		return types.DestinationObject{}, err
	}
	return convertObject(obj), nil
}

// Get opens an object for reading
func (s *Store) Get(ctx context.Context, key string) (types.DestinationObject, io.ReadCloser, error) {
	attrs, err := s.Head(ctx, key)
	if err != nil {
		return types.DestinationObject{}, nil, err
	}

	reqCtx := s.client.NewRequestContext(ctx, types.RequestTypeDownload, key)
	resp, err := api.ExecuteWithRetry(ctx, s.client, reqCtx, func() (*http.Response, error) {
		return s.service.Objects.Get(s.bucket, key).Context(ctx).Download()
	})
	if err != nil {
		return types.DestinationObject{}, nil, err
	}
	return attrs, resp.Body, nil
}

// Put uploads body. Bodies that can seek are rewound and retried on
// transient failures; others get a single attempt.
func (s *Store) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string, metadata map[string]string) error {
	if contentType == "" {
		contentType = utils.DefaultContentType
	}
	object := &storage.Object{
		Name:        key,
		ContentType: contentType,
		Metadata:    metadata,
	}

	seeker, canRewind := body.(io.Seeker)
	client := s.client
	if !canRewind {
		client = api.NewClient(s.client.Service(), 0, 0, s.logger)
	}

	reqCtx := client.NewRequestContext(ctx, types.RequestTypeUpload, key)
	_, err := api.ExecuteWithRetry(ctx, client, reqCtx, func() (*storage.Object, error) {
		if canRewind {
			if _, err := seeker.Seek(0, io.SeekStart); err != nil {
				return nil, fmt.Errorf("rewind upload body: %w", err)
			}
		}
		return s.service.Objects.Insert(s.bucket, object).
			Media(body, googleapi.ContentType(contentType)).
			Context(ctx).
			Do()
	})
	if err != nil {
		return err
	}
	s.logger.Debug("Stored object", logging.F("key", key), logging.F("size", size))
	return nil
}

// Delete removes an object; a missing object is not an error
func (s *Store) Delete(ctx context.Context, key string) error {
	reqCtx := s.client.NewRequestContext(ctx, types.RequestTypeMutation, key)
	err := api.Execute(ctx, s.client, reqCtx, func() error {
		return s.service.Objects.Delete(s.bucket, key).Context(ctx).Do()
	})
	if err != nil && !errors.Is(err, utils.ErrNotFound) {
		return err
	}
	return nil
}

func convertObject(o *storage.Object) types.DestinationObject {
	obj := types.DestinationObject{
		Key:         o.Name,
		Size:        int64(o.Size),
		ContentType: o.ContentType,
		Metadata:    o.Metadata,
	}
	if o.Updated != "" {
		if t, err := time.Parse(time.RFC3339, o.Updated); err == nil {
			obj.LastModified = t.UTC()
		}
	}
	return obj
}
