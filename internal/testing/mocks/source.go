// Package mocks provides in-memory stand-ins for the source service and the
// blob store.
package mocks

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/dl-alexandre/docdr/internal/source"
	"github.com/dl-alexandre/docdr/internal/types"
	"github.com/dl-alexandre/docdr/internal/utils"
)

// FakeSource is a source.Service backed by maps
type FakeSource struct {
	mu        sync.Mutex
	users     []types.User
	folders   map[string]types.FolderRef
	documents map[string]types.DocumentRef
	bodies    map[string][]byte
	events    []types.ActivityEvent
	errs      map[string]error
	calls     map[string]int
}

var _ source.Service = (*FakeSource)(nil)

// NewFakeSource returns an empty source
func NewFakeSource() *FakeSource {
	return &FakeSource{
		folders:   make(map[string]types.FolderRef),
		documents: make(map[string]types.DocumentRef),
		bodies:    make(map[string][]byte),
		errs:      make(map[string]error),
		calls:     make(map[string]int),
	}
}

// AddUser registers a user and an active root folder for it
func (f *FakeSource) AddUser(u types.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u.Status == "" {
		u.Status = "ACTIVE"
	}
	f.users = append(f.users, u)
	if _, ok := f.folders[u.RootFolderID]; !ok && u.RootFolderID != "" {
		f.folders[u.RootFolderID] = types.FolderRef{
			ID:        u.RootFolderID,
			Name:      "My Drive",
			CreatorID: u.ID,
			State:     types.StateActive,
		}
	}
}

// AddFolder registers or replaces a folder. An empty state means active.
func (f *FakeSource) AddFolder(ref types.FolderRef) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ref.State == "" {
		ref.State = types.StateActive
	}
	f.folders[ref.ID] = ref
}

// AddDocument registers or replaces a document and its latest body
func (f *FakeSource) AddDocument(ref types.DocumentRef, body []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ref.State == "" {
		ref.State = types.StateActive
	}
	if ref.Size == 0 {
		ref.Size = int64(len(body))
	}
	f.documents[ref.ID] = ref
	f.bodies[ref.ID] = body
}

// AddEvents appends to the activity feed
func (f *FakeSource) AddEvents(events ...types.ActivityEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, events...)
}

// SetError makes every call about id fail with err
func (f *FakeSource) SetError(id string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[id] = err
}

// CallCount returns how many times method was called
func (f *FakeSource) CallCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *FakeSource) enter(method, id string) error {
	f.calls[method]++
	if err, ok := f.errs[id]; ok {
		return err
	}
	return nil
}

func (f *FakeSource) ListUsers(_ context.Context, filter types.Filter, includeAll bool) ([]types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["ListUsers"]++

	var users []types.User
	for _, u := range f.users {
		if !filter.MatchesUser(u) {
			continue
		}
		if u.Status != "ACTIVE" && !includeAll {
			continue
		}
		users = append(users, u)
	}
	return users, nil
}

func (f *FakeSource) ListFolder(_ context.Context, folderID string) (types.FolderContents, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ListFolder", folderID); err != nil {
		return types.FolderContents{}, err
	}
	if _, ok := f.folders[folderID]; !ok {
		return types.FolderContents{}, fmt.Errorf("folder %s: %w", folderID, utils.ErrNotFound)
	}

	var contents types.FolderContents
	for _, folder := range f.folders {
		if folder.ParentID == folderID && folder.State.IsActive() {
			contents.Folders = append(contents.Folders, folder)
		}
	}
	for _, doc := range f.documents {
		if doc.ParentFolderID == folderID && doc.State.IsActive() {
			contents.Documents = append(contents.Documents, doc)
		}
	}
	sort.Slice(contents.Folders, func(i, j int) bool { return contents.Folders[i].ID < contents.Folders[j].ID })
	sort.Slice(contents.Documents, func(i, j int) bool { return contents.Documents[i].ID < contents.Documents[j].ID })
	return contents, nil
}

func (f *FakeSource) GetFolder(_ context.Context, folderID string) (types.FolderRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("GetFolder", folderID); err != nil {
		return types.FolderRef{}, err
	}
	folder, ok := f.folders[folderID]
	if !ok {
		return types.FolderRef{}, fmt.Errorf("folder %s: %w", folderID, utils.ErrNotFound)
	}
	return folder, nil
}

func (f *FakeSource) GetDocument(_ context.Context, documentID string) (types.DocumentRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("GetDocument", documentID); err != nil {
		return types.DocumentRef{}, err
	}
	doc, ok := f.documents[documentID]
	if !ok {
		return types.DocumentRef{}, fmt.Errorf("document %s: %w", documentID, utils.ErrNotFound)
	}
	return doc, nil
}

func (f *FakeSource) OpenVersion(_ context.Context, documentID, versionID string) (types.DocumentVersion, io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("OpenVersion", documentID); err != nil {
		return types.DocumentVersion{}, nil, err
	}
	doc, ok := f.documents[documentID]
	if !ok {
		return types.DocumentVersion{}, nil, fmt.Errorf("document %s: %w", documentID, utils.ErrNotFound)
	}
	if versionID == "" {
		versionID = doc.LatestVersionID
	}
	body := f.bodies[documentID]
	version := types.DocumentVersion{
		DocumentID:        doc.ID,
		ParentFolderID:    doc.ParentFolderID,
		VersionID:         versionID,
		Name:              doc.Name,
		ContentType:       doc.ContentType,
		Signature:         doc.Signature,
		Status:            "ACTIVE",
		Size:              int64(len(body)),
		ContentCreatedAt:  doc.CreatedAt,
		ContentModifiedAt: doc.ModifiedAt,
		ModifiedAt:        doc.ModifiedAt,
	}
	if doc.Size < 0 {
		version.Size = -1
	}
	return version, io.NopCloser(bytes.NewReader(body)), nil
}

func (f *FakeSource) ListActivities(_ context.Context, since time.Time, activityTypes []types.ActivityType) ([]types.ActivityEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["ListActivities"]++

	wanted := make(map[types.ActivityType]bool, len(activityTypes))
	for _, t := range activityTypes {
		wanted[t] = true
	}
	var events []types.ActivityEvent
	for _, ev := range f.events {
		if ev.Timestamp.Before(since) {
			continue
		}
		if len(wanted) > 0 && !wanted[ev.Type] {
			continue
		}
		events = append(events, ev)
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].Timestamp.Before(events[j].Timestamp) })
	return events, nil
}
