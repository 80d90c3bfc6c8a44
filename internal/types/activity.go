package types

import "time"

// ActivityType is a change reported by the source activity feed
type ActivityType string

const (
	ActivityDocumentRenamed         ActivityType = "DOCUMENT_RENAMED"
	ActivityDocumentVersionUploaded ActivityType = "DOCUMENT_VERSION_UPLOADED"
	ActivityDocumentVersionDeleted  ActivityType = "DOCUMENT_VERSION_DELETED"
	ActivityDocumentRecycled        ActivityType = "DOCUMENT_RECYCLED"
	ActivityDocumentRestored        ActivityType = "DOCUMENT_RESTORED"
	ActivityDocumentReverted        ActivityType = "DOCUMENT_REVERTED"
	ActivityDocumentMoved           ActivityType = "DOCUMENT_MOVED"
	ActivityFolderCreated           ActivityType = "FOLDER_CREATED"
	ActivityFolderDeleted           ActivityType = "FOLDER_DELETED"
	ActivityFolderRenamed           ActivityType = "FOLDER_RENAMED"
	ActivityFolderRecycled          ActivityType = "FOLDER_RECYCLED"
	ActivityFolderRestored          ActivityType = "FOLDER_RESTORED"
	ActivityFolderMoved             ActivityType = "FOLDER_MOVED"
)

// ActionableActivityTypes lists every activity type an incremental run reacts to
var ActionableActivityTypes = []ActivityType{
	ActivityDocumentRenamed,
	ActivityDocumentVersionUploaded,
	ActivityDocumentVersionDeleted,
	ActivityDocumentRecycled,
	ActivityDocumentRestored,
	ActivityDocumentReverted,
	ActivityDocumentMoved,
	ActivityFolderCreated,
	ActivityFolderDeleted,
	ActivityFolderRenamed,
	ActivityFolderRecycled,
	ActivityFolderRestored,
	ActivityFolderMoved,
}

// IsMove reports whether the activity moved its resource to another folder
func (t ActivityType) IsMove() bool {
	return t == ActivityDocumentMoved || t == ActivityFolderMoved
}

// RemovesFolder reports whether the activity takes a folder out of the tree
func (t ActivityType) RemovesFolder() bool {
	return t == ActivityFolderDeleted || t == ActivityFolderRecycled
}

// ResourceKind distinguishes the two resource kinds in the feed
type ResourceKind string

const (
	KindDocument ResourceKind = "DOCUMENT"
	KindFolder   ResourceKind = "FOLDER"
)

// ActivityEvent is one entry of the activity feed
type ActivityEvent struct {
	Type       ActivityType `json:"type"`
	ResourceID string       `json:"resourceId"`
	Kind       ResourceKind `json:"kind"`
	Timestamp  time.Time    `json:"timestamp"`
	// OwnerID is the feed's guess at the owning user; it may be stale.
	OwnerID string `json:"ownerId,omitempty"`
	// OriginalParentID is set for moves only.
	OriginalParentID string `json:"originalParentId,omitempty"`
}
