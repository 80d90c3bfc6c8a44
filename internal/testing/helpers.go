package testing

import (
	"context"
	"testing"
	"time"

	"github.com/dl-alexandre/docdr/internal/types"
)

// BaseTime is a fixed instant tests build their timelines around
var BaseTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// TestContext creates a standard test context
func TestContext() context.Context {
	return context.Background()
}

// TestRequestContext creates a standard request context for testing
func TestRequestContext() *types.RequestContext {
	return &types.RequestContext{
		TraceID:     "test-trace-id",
		Service:     "test",
		RequestType: types.RequestTypeListOrSearch,
		InvolvedIDs: []string{},
	}
}

// TestUser creates an active user whose root folder is "root-<username>"
func TestUser(id, username string) types.User {
	return types.User{
		ID:             id,
		Username:       username,
		Email:          username + "@example.com",
		OrganizationID: "org",
		RootFolderID:   "root-" + username,
		Status:         "ACTIVE",
		ModifiedAt:     BaseTime.Add(-24 * time.Hour),
	}
}

// TestFolder creates an active folder modified at BaseTime
func TestFolder(id, name, parentID string) types.FolderRef {
	return types.FolderRef{
		ID:         id,
		Name:       name,
		ParentID:   parentID,
		CreatedAt:  BaseTime.Add(-48 * time.Hour),
		ModifiedAt: BaseTime,
		State:      types.StateActive,
	}
}

// TestDocument creates an active document of the given size modified at BaseTime
func TestDocument(id, parentID string, size int64) types.DocumentRef {
	return types.DocumentRef{
		ID:              id,
		ParentFolderID:  parentID,
		LatestVersionID: "v1",
		Name:            id + ".txt",
		ContentType:     "text/plain",
		Size:            size,
		CreatedAt:       BaseTime.Add(-48 * time.Hour),
		ModifiedAt:      BaseTime,
		State:           types.StateActive,
	}
}

// AssertNoError is a helper to fail the test if error is not nil
func AssertNoError(t *testing.T, err error, msgAndArgs ...interface{}) {
	t.Helper()
	if err != nil {
		if len(msgAndArgs) > 0 {
			t.Fatalf("%v: %v", msgAndArgs[0], err)
		} else {
			t.Fatalf("unexpected error: %v", err)
		}
	}
}

// AssertError is a helper to fail the test if error is nil
func AssertError(t *testing.T, err error, msgAndArgs ...interface{}) {
	t.Helper()
	if err == nil {
		if len(msgAndArgs) > 0 {
			t.Fatalf("%v: expected error but got nil", msgAndArgs[0])
		} else {
			t.Fatal("expected error but got nil")
		}
	}
}

// AssertEqual is a helper to fail the test if two values are not equal
func AssertEqual(t *testing.T, got, want interface{}, msgAndArgs ...interface{}) {
	t.Helper()
	if got != want {
		if len(msgAndArgs) > 0 {
			t.Fatalf("%v: got %v, want %v", msgAndArgs[0], got, want)
		} else {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
