package types

import "testing"

func TestParseRunStyle(t *testing.T) {
	tests := []struct {
		in      string
		want    RunStyle
		wantErr bool
	}{
		{"", "", false},
		{"full", RunStyleFull, false},
		{" Incremental ", RunStyleIncremental, false},
		{"ABORT", RunStyleAbort, false},
		{"weekly", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRunStyle(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseRunStyle(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseRunStyle(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFilter(t *testing.T) {
	u := User{Username: "alice", Email: "alice@example.com"}

	if !(Filter{}).MatchesUser(u) || !(Filter{}).IsEmpty() {
		t.Fatal("zero filter should match everything")
	}
	if !(Filter{UserQuery: "ALICE@example.com"}).MatchesUser(u) {
		t.Error("email match should be case-insensitive")
	}
	if (Filter{UserQuery: "ali"}).MatchesUser(u) {
		t.Error("partial username should not match")
	}

	f := Filter{FolderNames: []string{"Finance"}, FolderPattern: "^Q[1-4]"}
	if err := f.Compile(); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	for name, want := range map[string]bool{"Finance": true, "Q3 reports": true, "HR": false} {
		if got := f.MatchesFolder(name); got != want {
			t.Errorf("MatchesFolder(%q) = %v, want %v", name, got, want)
		}
	}

	bad := Filter{FolderPattern: "("}
	if err := bad.Compile(); err == nil {
		t.Error("expected error for invalid pattern")
	}
}

func TestDestinationObjectName(t *testing.T) {
	tests := map[string]string{
		"org/alice/f1/d1":     "d1",
		"org/alice/.userinfo": ".userinfo",
		"plain":               "plain",
		"org/alice/f1/":       "",
	}
	for key, want := range tests {
		if got := (DestinationObject{Key: key}).Name(); got != want {
			t.Errorf("Name(%q) = %q, want %q", key, got, want)
		}
	}
}

func TestActionConstructors(t *testing.T) {
	folder := FolderRef{ID: "f1"}
	a := FolderSummaryAction("alice", folder, nil, nil)
	if a.Kind != ActionWriteFolderSummary || !a.Listed || a.FolderID != "f1" {
		t.Errorf("unexpected summary action: %+v", a)
	}
	if u := UnlistedFolderSummaryAction("alice", "f1"); u.Listed {
		t.Error("unlisted summary action must not be marked listed")
	}
	if c := CopyAction("alice", "f1", "d1", "v1"); c.String() != "copy alice/f1/d1" {
		t.Errorf("String() = %q", c.String())
	}
}
