package walker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"

	"github.com/dl-alexandre/docdr/internal/pool"
	testhelpers "github.com/dl-alexandre/docdr/internal/testing"
	"github.com/dl-alexandre/docdr/internal/testing/mocks"
	"github.com/dl-alexandre/docdr/internal/types"
	"github.com/dl-alexandre/docdr/internal/utils"
)

// buildTree creates root -> a, b; a -> a1 (with a document), a2 (empty);
// b -> b1 (recycled) and one document in root and b.
func buildTree() *mocks.FakeSource {
	src := mocks.NewFakeSource()
	src.AddFolder(testhelpers.TestFolder("root", "My Drive", ""))
	src.AddFolder(testhelpers.TestFolder("a", "A", "root"))
	src.AddFolder(testhelpers.TestFolder("b", "B", "root"))
	src.AddFolder(testhelpers.TestFolder("a1", "A1", "a"))
	src.AddFolder(testhelpers.TestFolder("a2", "A2", "a"))
	recycled := testhelpers.TestFolder("b1", "B1", "b")
	recycled.State = types.StateRecycled
	src.AddFolder(recycled)
	src.AddDocument(testhelpers.TestDocument("d-root", "root", 3), []byte("abc"))
	src.AddDocument(testhelpers.TestDocument("d-a1", "a1", 2), []byte("hi"))
	src.AddDocument(testhelpers.TestDocument("d-b", "b", 1), []byte("x"))
	return src
}

func snapshotIDs(snaps []types.FolderSnapshot) []string {
	ids := make([]string, 0, len(snaps))
	for _, s := range snaps {
		ids = append(ids, s.Folder.ID)
	}
	sort.Strings(ids)
	return ids
}

func TestWalker_VisitsEveryActiveFolderOnce(t *testing.T) {
	for _, workers := range []int{1, 4} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			src := buildTree()
			down := pool.NewQueue[types.FolderSnapshot]()
			w := New(src, down, WithWorkers(workers))

			if err := w.StartWalk(context.Background(), "root"); err != nil {
				t.Fatalf("StartWalk: %v", err)
			}
			w.FinishWalk()

			got := snapshotIDs(down.Drain())
			want := []string{"a", "a1", "b", "root"}
			if fmt.Sprint(got) != fmt.Sprint(want) {
				t.Errorf("snapshots = %v, want %v", got, want)
			}

			visited := w.Visited()
			for _, id := range []string{"root", "a", "b", "a1", "a2"} {
				if !visited[id] {
					t.Errorf("folder %s not visited", id)
				}
			}
			if visited["b1"] {
				t.Error("recycled folder was visited")
			}
			if !w.Empty()["a2"] {
				t.Error("a2 should be reported empty")
			}
			if calls := src.CallCount("ListFolder"); calls != 5 {
				t.Errorf("ListFolder calls = %d, want 5", calls)
			}
		})
	}
}

func TestWalker_SnapshotContents(t *testing.T) {
	src := buildTree()
	down := pool.NewQueue[types.FolderSnapshot]()
	w := New(src, down)
	if err := w.StartWalk(context.Background(), "root"); err != nil {
		t.Fatalf("StartWalk: %v", err)
	}
	w.FinishWalk()

	for _, snap := range down.Drain() {
		if snap.Folder.ID != "b" {
			continue
		}
		if len(snap.ChildFolders) != 0 {
			t.Errorf("b lists inactive children: %+v", snap.ChildFolders)
		}
		if len(snap.ChildDocuments) != 1 || snap.ChildDocuments[0].ID != "d-b" {
			t.Errorf("b documents = %+v", snap.ChildDocuments)
		}
		return
	}
	t.Fatal("no snapshot for b")
}

func TestWalker_SeveralRoots(t *testing.T) {
	src := buildTree()
	down := pool.NewQueue[types.FolderSnapshot]()
	w := New(src, down, WithWorkers(2))

	ctx := context.Background()
	for _, root := range []string{"a", "b", "a"} {
		if err := w.StartWalk(ctx, root); err != nil {
			t.Fatalf("StartWalk(%s): %v", root, err)
		}
	}
	w.FinishWalk()

	got := snapshotIDs(down.Drain())
	if fmt.Sprint(got) != "[a a1 b]" {
		t.Errorf("snapshots = %v", got)
	}
}

func TestWalker_InactiveRoot(t *testing.T) {
	src := mocks.NewFakeSource()
	root := testhelpers.TestFolder("root", "My Drive", "")
	root.State = types.StateRecycling
	src.AddFolder(root)

	down := pool.NewQueue[types.FolderSnapshot]()
	w := New(src, down)
	if err := w.StartWalk(context.Background(), "root"); err != nil {
		t.Fatalf("StartWalk: %v", err)
	}
	w.FinishWalk()

	if n := down.Len(); n != 0 {
		t.Errorf("emitted %d snapshots for an inactive root", n)
	}
	if len(w.Visited()) != 0 {
		t.Errorf("visited %v", w.Visited())
	}
}

func TestWalker_MissingRoot(t *testing.T) {
	w := New(mocks.NewFakeSource(), pool.NewQueue[types.FolderSnapshot]())
	err := w.StartWalk(context.Background(), "nope")
	if !errors.Is(err, utils.ErrNotFound) {
		t.Errorf("StartWalk error = %v, want ErrNotFound", err)
	}
	w.FinishWalk()
}

func TestWalker_ListFailureIsCounted(t *testing.T) {
	src := buildTree()
	src.SetError("a", utils.ErrTransientIO)

	down := pool.NewQueue[types.FolderSnapshot]()
	w := New(src, down)
	if err := w.StartWalk(context.Background(), "root"); err != nil {
		t.Fatalf("StartWalk: %v", err)
	}
	w.FinishWalk()

	if failed := w.Stats().Failed; failed != 1 {
		t.Errorf("Failed = %d, want 1", failed)
	}
	got := snapshotIDs(down.Drain())
	if fmt.Sprint(got) != "[b root]" {
		t.Errorf("snapshots = %v", got)
	}
}

func TestWalker_VanishedFolderIsNotAFailure(t *testing.T) {
	src := buildTree()
	src.SetError("a1", fmt.Errorf("gone: %w", utils.ErrNotFound))

	down := pool.NewQueue[types.FolderSnapshot]()
	w := New(src, down)
	if err := w.StartWalk(context.Background(), "root"); err != nil {
		t.Fatalf("StartWalk: %v", err)
	}
	w.FinishWalk()

	if failed := w.Stats().Failed; failed != 0 {
		t.Errorf("Failed = %d, want 0", failed)
	}
	if !w.Empty()["a1"] {
		t.Error("vanished folder should be reported empty")
	}
}
