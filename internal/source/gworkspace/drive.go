package gworkspace

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/dl-alexandre/docdr/internal/api"
	"github.com/dl-alexandre/docdr/internal/types"
	"github.com/dl-alexandre/docdr/internal/utils"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
)

const fileFields = "id, name, mimeType, parents, createdTime, modifiedTime, size, md5Checksum, " +
	"headRevisionId, version, trashed, explicitlyTrashed, owners(emailAddress)"

func (s *Service) drive(ctx context.Context, subject string) (*drive.Service, error) {
	svc, err := s.services.Drive(ctx, subject)
	if err != nil {
		return nil, utils.WrapAppError(utils.NewCLIError(utils.ErrCodeAuthInvalid,
			fmt.Sprintf("cannot create Drive client for %s", subject)).Build(), err)
	}
	return svc, nil
}

// ListFolder returns the active children of a folder
func (s *Service) ListFolder(ctx context.Context, folderID string) (types.FolderContents, error) {
	var contents types.FolderContents

	subject := s.subjectFor(ctx, folderID)
	svc, err := s.drive(ctx, subject)
	if err != nil {
		return contents, err
	}

	reqCtx := s.client.NewRequestContext(ctx, types.RequestTypeListOrSearch, folderID)
	reqCtx.Subject = subject
	query := fmt.Sprintf("'%s' in parents and trashed = false", folderID)

	var seen []string
	pageToken := ""
	for {
		call := svc.Files.List().
			Q(query).
			Fields(googleapi.Field("nextPageToken, files(" + fileFields + ")")).
			PageSize(1000).
			SupportsAllDrives(true).
			IncludeItemsFromAllDrives(true).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		result, err := api.ExecuteWithRetry(ctx, s.client, reqCtx, func() (*drive.FileList, error) {
			return call.Do()
		})
		if err != nil {
			return types.FolderContents{}, err
		}

		for _, f := range result.Files {
			switch f.MimeType {
			case utils.MimeTypeShortcut, utils.MimeTypeForm:
				continue
			case utils.MimeTypeFolder:
				folder := s.convertFolder(f)
				if folder.State.IsActive() {
					contents.Folders = append(contents.Folders, folder)
				}
			default:
				doc := s.convertDocument(f)
				if doc.State.IsActive() {
					contents.Documents = append(contents.Documents, doc)
				}
			}
			seen = append(seen, f.Id)
		}

		if result.NextPageToken == "" {
			break
		}
		pageToken = result.NextPageToken
	}

	s.remember(subject, seen...)
	return contents, nil
}

func (s *Service) getFile(ctx context.Context, id string) (*drive.File, error) {
	subject := s.subjectFor(ctx, id)
	svc, err := s.drive(ctx, subject)
	if err != nil {
		return nil, err
	}
	reqCtx := s.client.NewRequestContext(ctx, types.RequestTypeGetByID, id)
	reqCtx.Subject = subject
	f, err := api.ExecuteWithRetry(ctx, s.client, reqCtx, func() (*drive.File, error) {
		return svc.Files.Get(id).
			Fields(googleapi.Field(fileFields)).
			SupportsAllDrives(true).
			Context(ctx).
			Do()
	})
	if err != nil {
		return nil, err
	}
	// parents are looked up next when resolving owners
	s.carry(subject, f.Parents...)
	return f, nil
}

// GetFolder returns a folder; a non-folder id is reported as not found
func (s *Service) GetFolder(ctx context.Context, folderID string) (types.FolderRef, error) {
	f, err := s.getFile(ctx, folderID)
	if err != nil {
		return types.FolderRef{}, err
	}
	if f.MimeType != utils.MimeTypeFolder {
		return types.FolderRef{}, utils.NewAppError(utils.NewCLIError(utils.ErrCodeNotFound,
			fmt.Sprintf("%s is not a folder", folderID)).Build())
	}
	return s.convertFolder(f), nil
}

// GetDocument returns a document; a folder id is reported as not found
func (s *Service) GetDocument(ctx context.Context, documentID string) (types.DocumentRef, error) {
	f, err := s.getFile(ctx, documentID)
	if err != nil {
		return types.DocumentRef{}, err
	}
	if f.MimeType == utils.MimeTypeFolder {
		return types.DocumentRef{}, utils.NewAppError(utils.NewCLIError(utils.ErrCodeNotFound,
			fmt.Sprintf("%s is a folder", documentID)).Build())
	}
	return s.convertDocument(f), nil
}

// OpenVersion downloads a document version. Google-native documents are
// exported to an Office format and have no known size.
func (s *Service) OpenVersion(ctx context.Context, documentID, versionID string) (types.DocumentVersion, io.ReadCloser, error) {
	doc, err := s.GetDocument(ctx, documentID)
	if err != nil {
		return types.DocumentVersion{}, nil, err
	}

	subject := s.subjectFor(ctx, documentID)
	svc, err := s.drive(ctx, subject)
	if err != nil {
		return types.DocumentVersion{}, nil, err
	}

	version := types.DocumentVersion{
		DocumentID:        doc.ID,
		ParentFolderID:    doc.ParentFolderID,
		VersionID:         doc.LatestVersionID,
		Name:              doc.Name,
		ContentType:       doc.ContentType,
		Signature:         doc.Signature,
		Status:            string(doc.State),
		Size:              doc.Size,
		ContentCreatedAt:  doc.CreatedAt,
		ContentModifiedAt: doc.ModifiedAt,
		ModifiedAt:        doc.ModifiedAt,
	}

	reqCtx := s.client.NewRequestContext(ctx, types.RequestTypeDownload, documentID)
	reqCtx.Subject = subject

	var download func() (*http.Response, error)
	switch exportType, native := utils.ExportMimeTypes[doc.ContentType]; {
	case native:
		version.ContentType = exportType
		version.Size = -1
		version.Signature = ""
		download = func() (*http.Response, error) {
			return svc.Files.Export(documentID, exportType).Context(ctx).Download()
		}
	case utils.IsWorkspaceMimeType(doc.ContentType):
		return types.DocumentVersion{}, nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeNotFound,
			fmt.Sprintf("%s (%s) cannot be downloaded", documentID, doc.ContentType)).Build())
	case versionID == "" || versionID == doc.LatestVersionID:
		download = func() (*http.Response, error) {
			return svc.Files.Get(documentID).SupportsAllDrives(true).Context(ctx).Download()
		}
	default:
		version.VersionID = versionID
		download = func() (*http.Response, error) {
			return svc.Revisions.Get(documentID, versionID).Context(ctx).Download()
		}
	}

	resp, err := api.ExecuteWithRetry(ctx, s.client, reqCtx, download)
	if err != nil {
		return types.DocumentVersion{}, nil, err
	}
	if version.Size < 0 && resp.ContentLength >= 0 {
		version.Size = resp.ContentLength
	}
	return version, resp.Body, nil
}

func (s *Service) convertFolder(f *drive.File) types.FolderRef {
	return types.FolderRef{
		ID:         f.Id,
		Name:       f.Name,
		ParentID:   firstParent(f),
		CreatorID:  s.ownerID(f),
		CreatedAt:  parseTime(f.CreatedTime),
		ModifiedAt: parseTime(f.ModifiedTime),
		State:      fileState(f),
	}
}

func (s *Service) convertDocument(f *drive.File) types.DocumentRef {
	latest := f.HeadRevisionId
	if latest == "" && f.Version > 0 {
		latest = strconv.FormatInt(f.Version, 10)
	}
	size := f.Size
	if utils.IsWorkspaceMimeType(f.MimeType) {
		// exports have no size until downloaded
		size = -1
	}
	return types.DocumentRef{
		ID:              f.Id,
		ParentFolderID:  firstParent(f),
		LatestVersionID: latest,
		Name:            f.Name,
		ContentType:     f.MimeType,
		Signature:       f.Md5Checksum,
		CreatorID:       s.ownerID(f),
		Size:            size,
		CreatedAt:       parseTime(f.CreatedTime),
		ModifiedAt:      parseTime(f.ModifiedTime),
		State:           fileState(f),
	}
}

func (s *Service) ownerID(f *drive.File) string {
	if len(f.Owners) == 0 || f.Owners[0] == nil {
		return ""
	}
	return s.userIDForEmail(f.Owners[0].EmailAddress)
}

func firstParent(f *drive.File) string {
	if len(f.Parents) == 0 {
		return ""
	}
	return f.Parents[0]
}

// fileState maps the bin flags: an item binned on its own is RECYCLED, an
// item binned along with an ancestor is RECYCLING.
func fileState(f *drive.File) types.ResourceState {
	switch {
	case f.ExplicitlyTrashed:
		return types.StateRecycled
	case f.Trashed:
		return types.StateRecycling
	}
	return types.StateActive
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
