// Package source defines the hierarchical document service docdr backs up.
package source

import (
	"context"
	"io"
	"time"

	"github.com/dl-alexandre/docdr/internal/types"
)

// Service is the read side of the document service. Every method returns
// errors that unwrap onto the utils taxonomy (ErrNotFound, ErrUnauthorized,
// ErrTransientIO).
type Service interface {
	// ListUsers returns the users in scope. Suspended users are skipped
	// unless includeAll is set.
	ListUsers(ctx context.Context, filter types.Filter, includeAll bool) ([]types.User, error)
	// ListFolder returns the active direct children of a folder, all pages.
	ListFolder(ctx context.Context, folderID string) (types.FolderContents, error)
	GetFolder(ctx context.Context, folderID string) (types.FolderRef, error)
	GetDocument(ctx context.Context, documentID string) (types.DocumentRef, error)
	// OpenVersion opens a version for reading. An empty versionID means the
	// latest. The caller closes the body. Size is -1 when unknown.
	OpenVersion(ctx context.Context, documentID, versionID string) (types.DocumentVersion, io.ReadCloser, error)
	// ListActivities returns events of the given types newer than since,
	// oldest first.
	ListActivities(ctx context.Context, since time.Time, activityTypes []types.ActivityType) ([]types.ActivityEvent, error)
}

type subjectKey struct{}

// WithSubject makes calls made with ctx act as the given user
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey{}, subject)
}

// SubjectFromContext returns the user set by WithSubject
func SubjectFromContext(ctx context.Context) string {
	s, _ := ctx.Value(subjectKey{}).(string)
	return s
}
