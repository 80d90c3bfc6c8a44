package metadata

import (
	"time"

	"github.com/dl-alexandre/docdr/internal/types"
)

// Keys shared by records and views
const (
	KeyID                       = "Id"
	KeyName                     = "Name"
	KeyParentFolderID           = "ParentFolderId"
	KeyCreatorID                = "CreatorId"
	KeyStatus                   = "Status"
	KeyCreatedTimestamp         = "CreatedTimestamp"
	KeyModifiedTimestamp        = "ModifiedTimestamp"
	KeyVersionID                = "VersionId"
	KeyContentType              = "ContentType"
	KeySize                     = "Size"
	KeySignature                = "Signature"
	KeyContentCreatedTimestamp  = "ContentCreatedTimestamp"
	KeyContentModifiedTimestamp = "ContentModifiedTimestamp"
	KeyLatestVersionMetadata    = "LatestVersionMetadata"
	KeyUsername                 = "Username"
	KeyEmail                    = "Email"
	KeyGivenName                = "GivenName"
	KeySurname                  = "Surname"
	KeyOrganizationID           = "OrganizationId"
	KeyRootFolderID             = "RootFolderId"
	KeyLastModified             = "LastModified"
	KeyRunStyle                 = "RunStyle"
	KeyStartTime                = "StartTime"
	KeyEndTime                  = "EndTime"
)

var versionKeys = map[string]bool{
	KeyName:                     true,
	KeyContentType:              true,
	KeySize:                     true,
	KeySignature:                true,
	KeyStatus:                   true,
	KeyContentCreatedTimestamp:  true,
	KeyContentModifiedTimestamp: true,
}

// DocumentView groups the version-level keys of a document record under
// LatestVersionMetadata
func DocumentView(r Record) Record {
	out := make(Record, len(r))
	latest := Record{}
	for k, v := range r {
		if versionKeys[k] {
			latest[k] = v
			continue
		}
		out[k] = v
	}
	if len(latest) > 0 {
		out[KeyLatestVersionMetadata] = latest
	}
	return out
}

// FolderView returns the folder record as is
func FolderView(r Record) Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// UserView renames LastModified to ModifiedTimestamp
func UserView(r Record) Record {
	out := FolderView(r)
	if v, ok := out[KeyLastModified]; ok {
		delete(out, KeyLastModified)
		if _, exists := out[KeyModifiedTimestamp]; !exists {
			out[KeyModifiedTimestamp] = v
		}
	}
	return out
}

// FolderRecord builds the metadata stored with a folder summary
func FolderRecord(f types.FolderRef) Record {
	r := Record{}
	setString(r, KeyID, f.ID)
	setString(r, KeyName, f.Name)
	setString(r, KeyParentFolderID, f.ParentID)
	setString(r, KeyCreatorID, f.CreatorID)
	setString(r, KeyStatus, string(f.State))
	setTime(r, KeyCreatedTimestamp, f.CreatedAt)
	setTime(r, KeyModifiedTimestamp, f.ModifiedAt)
	return r
}

// VersionRecord builds the metadata stored with a document object
func VersionRecord(v types.DocumentVersion) Record {
	r := Record{}
	setString(r, KeyID, v.DocumentID)
	setString(r, KeyParentFolderID, v.ParentFolderID)
	setString(r, KeyVersionID, v.VersionID)
	setString(r, KeyName, v.Name)
	setString(r, KeyContentType, v.ContentType)
	setString(r, KeySignature, v.Signature)
	setString(r, KeyStatus, v.Status)
	r[KeySize] = v.Size
	setTime(r, KeyContentCreatedTimestamp, v.ContentCreatedAt)
	setTime(r, KeyContentModifiedTimestamp, v.ContentModifiedAt)
	setTime(r, KeyModifiedTimestamp, v.ModifiedAt)
	return r
}

// UserRecord builds the metadata stored with a user info object
func UserRecord(u types.User) Record {
	r := Record{}
	setString(r, KeyID, u.ID)
	setString(r, KeyUsername, u.Username)
	setString(r, KeyEmail, u.Email)
	setString(r, KeyGivenName, u.GivenName)
	setString(r, KeySurname, u.Surname)
	setString(r, KeyOrganizationID, u.OrganizationID)
	setString(r, KeyRootFolderID, u.RootFolderID)
	setString(r, KeyStatus, u.Status)
	setTime(r, KeyModifiedTimestamp, u.ModifiedAt)
	return r
}

func setString(r Record, key, v string) {
	if v != "" {
		r[key] = v
	}
}

func setTime(r Record, key string, t time.Time) {
	if !t.IsZero() {
		r[key] = t.UTC()
	}
}

// String returns the string at key
func (r Record) String(key string) (string, bool) {
	v, ok := r[key].(string)
	return v, ok
}

// Time returns the timestamp at key
func (r Record) Time(key string) (time.Time, bool) {
	v, ok := r[key].(time.Time)
	return v, ok
}

// Int64 returns the integer at key
func (r Record) Int64(key string) (int64, bool) {
	switch v := r[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	}
	return 0, false
}

// Float64 returns the number at key, widening integers
func (r Record) Float64(key string) (float64, bool) {
	switch v := r[key].(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	}
	return 0, false
}

// Sub returns the nested record at key
func (r Record) Sub(key string) (Record, bool) {
	v, ok := r[key].(Record)
	return v, ok
}
