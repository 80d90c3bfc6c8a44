// Package layout names every object docdr keeps in the blob store.
//
//	<prefix>/<orgId>/.last_backup_<event>_<runStyle>
//	<prefix>/<orgId>/<username>/.userinfo
//	<prefix>/<orgId>/<username>/<folderId>/.folderinfo
//	<prefix>/<orgId>/<username>/<folderId>/<documentId>
package layout

import (
	"fmt"
	"strings"

	"github.com/dl-alexandre/docdr/internal/types"
)

const (
	UserInfoName    = ".userinfo"
	FolderInfoName  = ".folderinfo"
	RunRecordPrefix = ".last_backup_"
)

// Layout builds keys for one organisation under an optional prefix
type Layout struct {
	prefix string
	org    string
}

// New returns the layout for org under prefix. Surrounding slashes in prefix
// are ignored, so an empty prefix starts keys at the organisation id.
func New(prefix, organizationID string) Layout {
	return Layout{
		prefix: strings.Trim(prefix, "/"),
		org:    strings.Trim(organizationID, "/"),
	}
}

// OrganizationID returns the organisation the layout is for
func (l Layout) OrganizationID() string {
	return l.org
}

// Root is the organisation key without trailing slash
func (l Layout) Root() string {
	if l.prefix == "" {
		return l.org
	}
	return l.prefix + "/" + l.org
}

// RunRecordKey names the marker of a run event
func (l Layout) RunRecordKey(event types.RunEvent, style types.RunStyle) string {
	return fmt.Sprintf("%s/%s%s_%s", l.Root(), RunRecordPrefix,
		strings.ToLower(string(event)), strings.ToLower(string(style)))
}

// UsersPrefix lists the user directories
func (l Layout) UsersPrefix() string {
	return l.Root() + "/"
}

// UserPrefix is the directory of one user, with trailing slash
func (l Layout) UserPrefix(username string) string {
	return l.Root() + "/" + username + "/"
}

// UserInfoKey names the user info object
func (l Layout) UserInfoKey(username string) string {
	return l.UserPrefix(username) + UserInfoName
}

// FolderPrefix is the directory of one folder, with trailing slash so a
// listing never matches a sibling folder whose id extends this one.
func (l Layout) FolderPrefix(username, folderID string) string {
	return l.UserPrefix(username) + folderID + "/"
}

// FolderSummaryKey names the folder summary object
func (l Layout) FolderSummaryKey(username, folderID string) string {
	return l.FolderPrefix(username, folderID) + FolderInfoName
}

// DocumentKey names the object holding a document's latest version
func (l Layout) DocumentKey(username, folderID, documentID string) string {
	return l.FolderPrefix(username, folderID) + documentID
}

// IsReserved reports whether an object name inside a folder prefix is a
// bookkeeping object rather than a document.
func IsReserved(name string) bool {
	return name == FolderInfoName || name == UserInfoName
}
