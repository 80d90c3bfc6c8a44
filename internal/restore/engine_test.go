package restore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/dl-alexandre/docdr/internal/journal"
	testhelpers "github.com/dl-alexandre/docdr/internal/testing"
	"github.com/dl-alexandre/docdr/internal/types"
)

func TestEngine_Run(t *testing.T) {
	store := newStore(t)
	bob := testhelpers.TestUser("1002", "bob")
	putUser(t, store, bob)
	putFolder(t, store, "bob", testhelpers.TestFolder(bob.RootFolderID, "My Drive", ""))
	putDocument(t, store, "bob", bob.RootFolderID, "n", "notes.txt", []byte("notes"))

	tests := []struct {
		name    string
		filter  types.Filter
		want    []string
		missing []string
	}{
		{
			name:    "every user gets a directory",
			want:    []string{"alice/a.txt", "alice/Reports/r1.txt", "bob/notes.txt"},
			missing: []string{"a.txt"},
		},
		{
			name:    "single user restores into the target",
			filter:  types.Filter{UserQuery: "BOB@example.com"},
			want:    []string{"notes.txt"},
			missing: []string{"bob", "alice"},
		},
		{
			name:    "folder filter",
			filter:  types.Filter{UserQuery: "alice", FolderNames: []string{"Reports"}},
			want:    []string{"Reports/r1.txt", "Reports/Q1/q.txt"},
			missing: []string{"a.txt", "lost and found"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := filepath.Join(t.TempDir(), "out")
			report, err := NewEngine(store, lay, Options{}).Run(context.Background(), Request{Target: target, Filter: tt.filter})
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if report.Partial() {
				t.Errorf("report partial: %+v", report)
			}
			for _, rel := range tt.want {
				if _, err := os.Stat(filepath.Join(target, rel)); err != nil {
					t.Errorf("missing %s: %v", rel, err)
				}
			}
			for _, rel := range tt.missing {
				if _, err := os.Stat(filepath.Join(target, rel)); !os.IsNotExist(err) {
					t.Errorf("%s should not exist: %v", rel, err)
				}
			}
		})
	}
}

func TestEngine_DryRun(t *testing.T) {
	store := newStore(t)
	db, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	ctx := context.Background()
	target := filepath.Join(t.TempDir(), "out")

	report, err := NewEngine(store, lay, Options{}, WithJournal(db)).Run(ctx, Request{Target: target, DryRun: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Previews["alice"] == "" {
		t.Error("no preview for alice")
	}
	if _, err := os.Stat(target); !os.IsNotExist(err) {
		t.Errorf("dry run created the target: %v", err)
	}
	if n := store.CallCount("Get"); n != 0 {
		t.Errorf("dry run downloaded %d objects", n)
	}

	run, err := db.GetRun(ctx, report.RunID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Kind != "restore" || run.Status != journal.StatusOK {
		t.Errorf("journal run = %+v", run)
	}
}

func TestEngine_RequiresTarget(t *testing.T) {
	if _, err := NewEngine(newStore(t), lay, Options{}).Run(context.Background(), Request{}); err == nil {
		t.Error("expected an error without a target")
	}
}
