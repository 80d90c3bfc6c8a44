package activity

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/dl-alexandre/docdr/internal/backup/owner"
	"github.com/dl-alexandre/docdr/internal/backup/reconcile"
	"github.com/dl-alexandre/docdr/internal/layout"
	"github.com/dl-alexandre/docdr/internal/pool"
	testhelpers "github.com/dl-alexandre/docdr/internal/testing"
	"github.com/dl-alexandre/docdr/internal/testing/mocks"
	"github.com/dl-alexandre/docdr/internal/types"
)

func event(typ types.ActivityType, id string, minutes int) types.ActivityEvent {
	kind := types.KindDocument
	if strings.HasPrefix(string(typ), "FOLDER_") {
		kind = types.KindFolder
	}
	return types.ActivityEvent{
		Type:       typ,
		ResourceID: id,
		Kind:       kind,
		Timestamp:  testhelpers.BaseTime.Add(time.Duration(minutes) * time.Minute),
		OwnerID:    "1001",
	}
}

func move(typ types.ActivityType, id string, minutes int, from string) types.ActivityEvent {
	ev := event(typ, id, minutes)
	ev.OriginalParentID = from
	return ev
}

func TestConsolidate_LatestWins(t *testing.T) {
	events := []types.ActivityEvent{
		event(types.ActivityDocumentVersionUploaded, "d1", 5),
		event(types.ActivityDocumentRenamed, "d2", 1),
		event(types.ActivityDocumentRecycled, "d1", 3),
		event(types.ActivityFolderCreated, "f1", 2),
		event(types.ActivityDocumentRestored, "d2", 1),
		event(types.ActivityFolderDeleted, "f1", 9),
	}
	documents, folders := Consolidate(events)

	if len(documents) != 2 || len(folders) != 1 {
		t.Fatalf("got %d documents, %d folders", len(documents), len(folders))
	}
	tests := []struct {
		got  Update
		id   string
		want types.ActivityType
	}{
		{documents[0], "d1", types.ActivityDocumentVersionUploaded},
		// equal timestamps keep the later event
		{documents[1], "d2", types.ActivityDocumentRestored},
		{folders[0], "f1", types.ActivityFolderDeleted},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			if tt.got.ResourceID != tt.id || tt.got.Type != tt.want {
				t.Errorf("update = %s %s, want %s %s", tt.got.ResourceID, tt.got.Type, tt.id, tt.want)
			}
		})
	}
}

func TestConsolidate_AccumulatesMoves(t *testing.T) {
	events := []types.ActivityEvent{
		move(types.ActivityDocumentMoved, "d1", 1, "f1"),
		event(types.ActivityDocumentRenamed, "d1", 2),
		move(types.ActivityDocumentMoved, "d1", 3, "f2"),
		event(types.ActivityDocumentVersionUploaded, "d1", 4),
		move(types.ActivityFolderMoved, "f9", 1, "p1"),
		move(types.ActivityFolderMoved, "f9", 2, "p2"),
	}
	documents, folders := Consolidate(events)

	if got := documents[0].OldFolderIDs; !reflect.DeepEqual(got, []string{"f1", "f2"}) {
		t.Errorf("document OldFolderIDs = %v", got)
	}
	if documents[0].Type != types.ActivityDocumentVersionUploaded {
		t.Errorf("document Type = %s", documents[0].Type)
	}
	if got := folders[0].OldFolderIDs; !reflect.DeepEqual(got, []string{"p1", "p2"}) {
		t.Errorf("folder OldFolderIDs = %v", got)
	}
}

func TestConsolidate_Empty(t *testing.T) {
	documents, folders := Consolidate(nil)
	if len(documents) != 0 || len(folders) != 0 {
		t.Errorf("got %v, %v", documents, folders)
	}
}

var lay = layout.New("", "org")

func newConsolidator(t *testing.T, src *mocks.FakeSource, opts ...Option) *Consolidator {
	t.Helper()
	store := mocks.NewMemoryStore()
	users, err := src.ListUsers(context.Background(), types.Filter{}, true)
	if err != nil {
		t.Fatal(err)
	}
	return New(src, owner.New(src, users), reconcile.New(src, store, lay, nil), opts...)
}

func TestConsolidator_Consolidate(t *testing.T) {
	src := mocks.NewFakeSource()
	alice := testhelpers.TestUser("1001", "alice")
	src.AddUser(alice)
	src.AddFolder(testhelpers.TestFolder("f1", "Reports", alice.RootFolderID))
	src.AddFolder(testhelpers.TestFolder("f2", "Archive", alice.RootFolderID))
	src.AddDocument(testhelpers.TestDocument("d1", "f2", 3), []byte("abc"))
	src.AddEvents(
		move(types.ActivityDocumentMoved, "d1", 1, "f1"),
		event(types.ActivityFolderRenamed, "f2", 2),
		// gone from the source: falls back to the feed's owner
		event(types.ActivityFolderDeleted, "f-gone", 3),
		event(types.ActivityDocumentRenamed, "d-orphan", 4),
	)
	orphanOwner := event(types.ActivityFolderCreated, "f-stranger", 5)
	orphanOwner.OwnerID = "9999"
	src.AddEvents(orphanOwner)

	c := newConsolidator(t, src)
	out := pool.NewQueue[types.Action]()
	report, err := c.Consolidate(context.Background(), testhelpers.BaseTime, out)
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}

	var got []string
	for _, a := range out.Drain() {
		got = append(got, a.String())
	}
	want := []string{
		"delete alice/f1/d1",
		"copy alice/f2/d1",
		"write-folder-summary alice/f2",
		"remove-folder-subtree alice/f-gone",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("actions = %v, want %v", got, want)
	}
	if report.Events != 5 || report.Actions != 4 || report.Dropped != 1 || report.Truncated != 0 {
		t.Errorf("report = %+v", report)
	}
}

func TestConsolidator_Limit(t *testing.T) {
	src := mocks.NewFakeSource()
	alice := testhelpers.TestUser("1001", "alice")
	src.AddUser(alice)
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("f%02d", i)
		src.AddFolder(testhelpers.TestFolder(id, id, alice.RootFolderID))
		src.AddEvents(event(types.ActivityFolderCreated, id, i))
	}

	c := newConsolidator(t, src, WithLimit(4), WithWorkers(3))
	out := pool.NewQueue[types.Action]()
	report, err := c.Consolidate(context.Background(), testhelpers.BaseTime, out)
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if n := out.Len(); n != 4 {
		t.Errorf("emitted %d actions, want 4", n)
	}
	if report.Actions != 4 || report.Truncated != 6 {
		t.Errorf("report = %+v", report)
	}
}

func TestConsolidator_LimitStopsPlanning(t *testing.T) {
	src := mocks.NewFakeSource()
	alice := testhelpers.TestUser("1001", "alice")
	src.AddUser(alice)
	src.AddFolder(testhelpers.TestFolder("f1", "Reports", alice.RootFolderID))
	for i := 0; i < 100; i++ {
		id := fmt.Sprintf("d%03d", i)
		src.AddDocument(testhelpers.TestDocument(id, "f1", 3), []byte("abc"))
		src.AddEvents(event(types.ActivityDocumentVersionUploaded, id, i))
	}

	const limit = 4
	c := newConsolidator(t, src, WithLimit(limit), WithWorkers(3))
	out := pool.NewQueue[types.Action]()
	report, err := c.Consolidate(context.Background(), testhelpers.BaseTime, out)
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if n := out.Len(); n != limit {
		t.Errorf("emitted %d actions, want %d", n, limit)
	}
	if report.Actions != limit || report.Truncated < 100-limit {
		t.Errorf("report = %+v", report)
	}
	// owner lookup plus reconcile, for at most one batch of documents
	if calls := src.CallCount("GetDocument"); calls > 2*limit {
		t.Errorf("GetDocument called %d times, want at most %d", calls, 2*limit)
	}
}

func TestConsolidator_SinceFiltersFeed(t *testing.T) {
	src := mocks.NewFakeSource()
	alice := testhelpers.TestUser("1001", "alice")
	src.AddUser(alice)
	src.AddFolder(testhelpers.TestFolder("f1", "Old", alice.RootFolderID))
	src.AddEvents(event(types.ActivityFolderRenamed, "f1", -10))

	c := newConsolidator(t, src)
	out := pool.NewQueue[types.Action]()
	report, err := c.Consolidate(context.Background(), testhelpers.BaseTime, out)
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if report.Events != 0 || out.Len() != 0 {
		t.Errorf("report = %+v, queued %d", report, out.Len())
	}
}
