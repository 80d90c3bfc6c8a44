package layout

import (
	"testing"

	"github.com/dl-alexandre/docdr/internal/types"
)

func TestKeys(t *testing.T) {
	tests := []struct {
		name   string
		layout Layout
		got    func(Layout) string
		want   string
	}{
		{"root with prefix", New("backups/", "org1"), Layout.Root, "backups/org1"},
		{"root without prefix", New("", "org1"), Layout.Root, "org1"},
		{"root slash prefix", New("/", "org1"), Layout.Root, "org1"},
		{
			"run record",
			New("b", "org1"),
			func(l Layout) string { return l.RunRecordKey(types.RunEventEnd, types.RunStyleFull) },
			"b/org1/.last_backup_end_full",
		},
		{
			"user info",
			New("", "org1"),
			func(l Layout) string { return l.UserInfoKey("alice") },
			"org1/alice/.userinfo",
		},
		{
			"folder prefix",
			New("b", "org1"),
			func(l Layout) string { return l.FolderPrefix("alice", "f1") },
			"b/org1/alice/f1/",
		},
		{
			"folder summary",
			New("b", "org1"),
			func(l Layout) string { return l.FolderSummaryKey("alice", "f1") },
			"b/org1/alice/f1/.folderinfo",
		},
		{
			"document",
			New("b", "org1"),
			func(l Layout) string { return l.DocumentKey("alice", "f1", "d9") },
			"b/org1/alice/f1/d9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.got(tt.layout); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsReserved(t *testing.T) {
	if !IsReserved(".folderinfo") || !IsReserved(".userinfo") {
		t.Error("bookkeeping names should be reserved")
	}
	if IsReserved("d1") {
		t.Error("document ids should not be reserved")
	}
}
