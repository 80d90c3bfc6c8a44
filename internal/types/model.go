package types

import (
	"strings"
	"time"
)

// ResourceState is the lifecycle state of a folder or document in the source service
type ResourceState string

const (
	StateActive    ResourceState = "ACTIVE"
	StateRecycling ResourceState = "RECYCLING"
	StateRecycled  ResourceState = "RECYCLED"
)

// IsActive reports whether the resource is live (not in or on its way to the bin)
func (s ResourceState) IsActive() bool {
	return s == StateActive
}

// FolderRef is a folder as reported by the source service
type FolderRef struct {
	ID         string        `json:"id" yaml:"id"`
	Name       string        `json:"name" yaml:"name"`
	ParentID   string        `json:"parentId,omitempty" yaml:"parentId,omitempty"`
	CreatorID  string        `json:"creatorId,omitempty" yaml:"creatorId,omitempty"`
	CreatedAt  time.Time     `json:"createdAt" yaml:"createdAt"`
	ModifiedAt time.Time     `json:"modifiedAt" yaml:"modifiedAt"`
	State      ResourceState `json:"state" yaml:"state"`
}

// DocumentRef is a document as reported by the source service
type DocumentRef struct {
	ID              string        `json:"id"`
	ParentFolderID  string        `json:"parentFolderId"`
	LatestVersionID string        `json:"latestVersionId,omitempty"`
	Name            string        `json:"name"`
	ContentType     string        `json:"contentType,omitempty"`
	Signature       string        `json:"signature,omitempty"`
	CreatorID       string        `json:"creatorId,omitempty"`
	// Size is -1 for documents whose length is only known once exported.
	Size            int64         `json:"size"`
	CreatedAt       time.Time     `json:"createdAt"`
	ModifiedAt      time.Time     `json:"modifiedAt"`
	State           ResourceState `json:"state"`
}

// FolderContents holds the active direct children of a folder
type FolderContents struct {
	Folders   []FolderRef   `json:"folders"`
	Documents []DocumentRef `json:"documents"`
}

// IsEmpty reports whether the folder has no active children
func (c FolderContents) IsEmpty() bool {
	return len(c.Folders) == 0 && len(c.Documents) == 0
}

// FolderSnapshot is a folder together with its direct children at the time it
// was listed. Consumers must treat it as read-only.
type FolderSnapshot struct {
	Folder         FolderRef     `json:"folder"`
	ChildFolders   []FolderRef   `json:"childFolders"`
	ChildDocuments []DocumentRef `json:"childDocuments"`
}

// DocumentVersion describes one downloadable version of a document
type DocumentVersion struct {
	DocumentID        string    `json:"documentId"`
	ParentFolderID    string    `json:"parentFolderId"`
	VersionID         string    `json:"versionId"`
	Name              string    `json:"name"`
	ContentType       string    `json:"contentType"`
	Signature         string    `json:"signature,omitempty"`
	Status            string    `json:"status,omitempty"`
	Size              int64     `json:"size"`
	ContentCreatedAt  time.Time `json:"contentCreatedAt"`
	ContentModifiedAt time.Time `json:"contentModifiedAt"`
	ModifiedAt        time.Time `json:"modifiedAt"`
}

// User is an account of the source organisation
type User struct {
	ID             string    `json:"id" yaml:"id"`
	Username       string    `json:"username" yaml:"username"`
	Email          string    `json:"email" yaml:"email"`
	GivenName      string    `json:"givenName,omitempty" yaml:"givenName,omitempty"`
	Surname        string    `json:"surname,omitempty" yaml:"surname,omitempty"`
	OrganizationID string    `json:"organizationId,omitempty" yaml:"organizationId,omitempty"`
	RootFolderID   string    `json:"rootFolderId" yaml:"rootFolderId"`
	Status         string    `json:"status" yaml:"status"`
	ModifiedAt     time.Time `json:"modifiedAt" yaml:"modifiedAt"`
}

// DestinationObject is an object in the blob store
type DestinationObject struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size"`
	LastModified time.Time         `json:"lastModified"`
	ContentType  string            `json:"contentType,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Name returns the last segment of the object key
func (o DestinationObject) Name() string {
	if i := strings.LastIndex(o.Key, "/"); i >= 0 {
		return o.Key[i+1:]
	}
	return o.Key
}
