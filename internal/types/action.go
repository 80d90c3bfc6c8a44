package types

import "fmt"

// ActionKind tags the variant carried by an Action
type ActionKind string

const (
	ActionCopy                ActionKind = "copy"
	ActionDelete              ActionKind = "delete"
	ActionRemoveFolderSubtree ActionKind = "remove-folder-subtree"
	ActionWriteFolderSummary  ActionKind = "write-folder-summary"
)

// Action is a unit of work against the destination. Only the fields relevant
// to Kind are set.
type Action struct {
	Kind       ActionKind    `json:"kind"`
	Username   string        `json:"username"`
	FolderID   string        `json:"folderId"`
	DocumentID string        `json:"documentId,omitempty"`
	VersionID  string        `json:"versionId,omitempty"`
	Subfolders []FolderRef   `json:"subfolders,omitempty"`
	Documents  []DocumentRef `json:"documents,omitempty"`
	// Listed is false when Subfolders and Documents were not gathered and the
	// executor has to list the folder itself.
	Listed bool `json:"listed"`
}

// CopyAction copies the latest version of a document into its folder prefix
func CopyAction(username, folderID, documentID, versionID string) Action {
	return Action{
		Kind:       ActionCopy,
		Username:   username,
		FolderID:   folderID,
		DocumentID: documentID,
		VersionID:  versionID,
	}
}

// DeleteAction removes a document object from a folder prefix
func DeleteAction(username, folderID, documentID string) Action {
	return Action{
		Kind:       ActionDelete,
		Username:   username,
		FolderID:   folderID,
		DocumentID: documentID,
	}
}

// RemoveFolderAction removes every object stored under a folder prefix
func RemoveFolderAction(username, folderID string) Action {
	return Action{
		Kind:     ActionRemoveFolderSubtree,
		Username: username,
		FolderID: folderID,
	}
}

// FolderSummaryAction writes a folder summary from children already listed
func FolderSummaryAction(username string, folder FolderRef, subfolders []FolderRef, documents []DocumentRef) Action {
	return Action{
		Kind:       ActionWriteFolderSummary,
		Username:   username,
		FolderID:   folder.ID,
		Subfolders: subfolders,
		Documents:  documents,
		Listed:     true,
	}
}

// UnlistedFolderSummaryAction writes a folder summary; the executor lists the folder
func UnlistedFolderSummaryAction(username, folderID string) Action {
	return Action{
		Kind:     ActionWriteFolderSummary,
		Username: username,
		FolderID: folderID,
	}
}

func (a Action) String() string {
	switch a.Kind {
	case ActionCopy, ActionDelete:
		return fmt.Sprintf("%s %s/%s/%s", a.Kind, a.Username, a.FolderID, a.DocumentID)
	default:
		return fmt.Sprintf("%s %s/%s", a.Kind, a.Username, a.FolderID)
	}
}

// ActionStatus is the outcome of executing an Action
type ActionStatus string

const (
	ActionStatusOK      ActionStatus = "ok"
	ActionStatusSkipped ActionStatus = "skipped"
	ActionStatusFailed  ActionStatus = "failed"
)

// ActionResult records what happened to one Action
type ActionResult struct {
	Action Action       `json:"action"`
	Status ActionStatus `json:"status"`
	Error  string       `json:"error,omitempty"`
	Detail string       `json:"detail,omitempty"`
}
