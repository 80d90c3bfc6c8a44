package gworkspace

import (
	"strings"
	"testing"
	"time"

	"github.com/dl-alexandre/docdr/internal/types"
	admin "google.golang.org/api/admin/directory/v1"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/driveactivity/v2"
)

func activity(detail *driveactivity.ActionDetail, item *driveactivity.DriveItem) *driveactivity.DriveActivity {
	return &driveactivity.DriveActivity{
		PrimaryActionDetail: detail,
		Timestamp:           "2024-04-01T10:00:00.5Z",
		Targets:             []*driveactivity.Target{{DriveItem: item}},
	}
}

func TestConvertActivity(t *testing.T) {
	file := &driveactivity.DriveItem{
		Name:     "items/doc1",
		MimeType: "text/plain",
		Owner: &driveactivity.Owner{User: &driveactivity.User{
			KnownUser: &driveactivity.KnownUser{PersonName: "people/1001"},
		}},
	}
	folder := &driveactivity.DriveItem{Name: "items/fold1", DriveFolder: &driveactivity.DriveFolder{}}

	tests := []struct {
		name   string
		detail *driveactivity.ActionDetail
		item   *driveactivity.DriveItem
		want   types.ActivityType
		skip   bool
	}{
		{"create document", &driveactivity.ActionDetail{Create: &driveactivity.Create{}}, file, types.ActivityDocumentVersionUploaded, false},
		{"create folder", &driveactivity.ActionDetail{Create: &driveactivity.Create{}}, folder, types.ActivityFolderCreated, false},
		{"edit document", &driveactivity.ActionDetail{Edit: &driveactivity.Edit{}}, file, types.ActivityDocumentVersionUploaded, false},
		{"edit folder", &driveactivity.ActionDetail{Edit: &driveactivity.Edit{}}, folder, "", true},
		{"rename folder", &driveactivity.ActionDetail{Rename: &driveactivity.Rename{}}, folder, types.ActivityFolderRenamed, false},
		{"trash document", &driveactivity.ActionDetail{Delete: &driveactivity.Delete{Type: "TRASH"}}, file, types.ActivityDocumentRecycled, false},
		{"trash folder", &driveactivity.ActionDetail{Delete: &driveactivity.Delete{Type: "TRASH"}}, folder, types.ActivityFolderRecycled, false},
		{"purge folder", &driveactivity.ActionDetail{Delete: &driveactivity.Delete{Type: "PERMANENT_DELETE"}}, folder, types.ActivityFolderDeleted, false},
		{"restore document", &driveactivity.ActionDetail{Restore: &driveactivity.Restore{Type: "UNTRASH"}}, file, types.ActivityDocumentRestored, false},
		{"comment", &driveactivity.ActionDetail{Comment: &driveactivity.Comment{}}, file, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := convertActivity(activity(tt.detail, tt.item))
			if tt.skip {
				if len(events) != 0 {
					t.Errorf("expected no events, got %+v", events)
				}
				return
			}
			if len(events) != 1 {
				t.Fatalf("got %d events, want 1", len(events))
			}
			if events[0].Type != tt.want {
				t.Errorf("Type = %s, want %s", events[0].Type, tt.want)
			}
		})
	}
}

func TestConvertActivityMove(t *testing.T) {
	act := activity(&driveactivity.ActionDetail{Move: &driveactivity.Move{
		RemovedParents: []*driveactivity.TargetReference{{DriveItem: &driveactivity.DriveItemReference{Name: "items/oldParent"}}},
		AddedParents:   []*driveactivity.TargetReference{{DriveItem: &driveactivity.DriveItemReference{Name: "items/newParent"}}},
	}}, &driveactivity.DriveItem{
		Name: "items/doc9",
		Owner: &driveactivity.Owner{User: &driveactivity.User{
			KnownUser: &driveactivity.KnownUser{PersonName: "people/42"},
		}},
	})

	events := convertActivity(act)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.Type != types.ActivityDocumentMoved || ev.ResourceID != "doc9" || ev.OriginalParentID != "oldParent" || ev.OwnerID != "42" {
		t.Errorf("unexpected event %+v", ev)
	}
	want := time.Date(2024, 4, 1, 10, 0, 0, 500000000, time.UTC)
	if !ev.Timestamp.Equal(want) {
		t.Errorf("Timestamp = %v, want %v", ev.Timestamp, want)
	}
}

func TestBuildFilter(t *testing.T) {
	if got := buildFilter(time.Time{}); got != actionFilter {
		t.Errorf("buildFilter(zero) = %q", got)
	}
	got := buildFilter(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
	if !strings.HasPrefix(got, `time >= "2024-01-02T03:04:05Z" AND `) {
		t.Errorf("buildFilter = %q", got)
	}
}

func TestFileState(t *testing.T) {
	tests := []struct {
		file *drive.File
		want types.ResourceState
	}{
		{&drive.File{}, types.StateActive},
		{&drive.File{Trashed: true}, types.StateRecycling},
		{&drive.File{Trashed: true, ExplicitlyTrashed: true}, types.StateRecycled},
	}
	for _, tt := range tests {
		if got := fileState(tt.file); got != tt.want {
			t.Errorf("fileState(%+v) = %s, want %s", tt.file, got, tt.want)
		}
	}
}

func TestConvertDocument(t *testing.T) {
	s := New(nil, nil, "admin@example.com")
	s.byEmail["alice@example.com"] = types.User{ID: "1001", Email: "alice@example.com"}

	doc := s.convertDocument(&drive.File{
		Id:           "d1",
		Name:         "Budget",
		MimeType:     "application/vnd.google-apps.spreadsheet",
		Parents:      []string{"f1"},
		Version:      17,
		ModifiedTime: "2024-02-03T04:05:06.789Z",
		Owners:       []*drive.User{{EmailAddress: "alice@example.com"}},
	})
	if doc.LatestVersionID != "17" {
		t.Errorf("LatestVersionID = %q, want 17", doc.LatestVersionID)
	}
	if doc.CreatorID != "1001" || doc.ParentFolderID != "f1" || doc.State != types.StateActive {
		t.Errorf("unexpected document %+v", doc)
	}
	if doc.ModifiedAt.IsZero() {
		t.Error("ModifiedAt not parsed")
	}
}

func TestConvertUser(t *testing.T) {
	u := convertUser(&admin.User{
		Id:            "1001",
		PrimaryEmail:  "alice@example.com",
		CustomerId:    "C0123",
		Name:          &admin.UserName{GivenName: "Alice", FamilyName: "Liddell"},
		CreationTime:  "2020-01-01T00:00:00.000Z",
		LastLoginTime: "2024-05-01T00:00:00.000Z",
	})
	if u.Username != "alice@example.com" || u.Status != userStatusActive || u.Surname != "Liddell" {
		t.Errorf("unexpected user %+v", u)
	}
	if !u.ModifiedAt.Equal(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("ModifiedAt = %v, want the later of creation and last login", u.ModifiedAt)
	}

	if s := convertUser(&admin.User{Suspended: true}); s.Status != userStatusSuspended {
		t.Errorf("suspended user Status = %s", s.Status)
	}
}
