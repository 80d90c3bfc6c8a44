package utils

import "time"

// Worker counts per stage
const (
	DefaultWalkWorkers            = 4
	DefaultReconcileWorkers       = 4
	DefaultExecuteWorkers         = 6
	DefaultRestoreFolderWorkers   = 2
	DefaultRestoreFileWorkers     = 6
	DefaultConsolidateWorkers     = 6
	DefaultDequeueTimeout         = 60 * time.Second
	DefaultActivityActionLimit    = 5000
	DefaultMaxDaysSinceLastFull   = 30
	DefaultMaxHoursToCompleteFull = 12
)

// Bodies larger than this are spooled or streamed instead of held in memory
const StreamThresholdBytes = 1_000_000

// IsLarge reports whether a body of size bytes goes past threshold. An
// unknown (negative) size counts as large.
func IsLarge(size, threshold int64) bool {
	return size < 0 || size > threshold
}

// Restore treats a local file as current when its mtime is this close to the
// stored content modification time.
const MtimeTolerance = 2 * time.Second

// The incremental cutoff starts this long before the last completed run
const IncrementalOverlap = 30 * time.Minute

// Owner resolution gives up after this many parent hops
const MaxOwnerChainDepth = 50

// Default content type for stored objects
const DefaultContentType = "application/octet-stream"

// Restore places folders whose parent is unknown here
const LostAndFoundDir = "lost and found"

// OAuth scopes
const (
	ScopeDriveReadonly              = "https://www.googleapis.com/auth/drive.readonly"
	ScopeActivityReadonly           = "https://www.googleapis.com/auth/drive.activity.readonly"
	ScopeAdminDirectoryUserReadonly = "https://www.googleapis.com/auth/admin.directory.user.readonly"
	ScopeStorageReadWrite           = "https://www.googleapis.com/auth/devstorage.read_write"
)

var (
	// ScopesSource are requested when impersonating organisation users
	ScopesSource = []string{
		ScopeDriveReadonly,
		ScopeActivityReadonly,
		ScopeAdminDirectoryUserReadonly,
	}
	// ScopesDestination are requested for the blob store
	ScopesDestination = []string{
		ScopeStorageReadWrite,
	}
)

// Retry configuration
const (
	DefaultMaxRetries   = 3
	DefaultRetryDelayMs = 1000
	MaxRetryDelayMs     = 32000
)

// Schema version
const SchemaVersion = "1.0"

// Google Workspace MIME types
const (
	MimeTypeDocument     = "application/vnd.google-apps.document"
	MimeTypeSpreadsheet  = "application/vnd.google-apps.spreadsheet"
	MimeTypePresentation = "application/vnd.google-apps.presentation"
	MimeTypeDrawing      = "application/vnd.google-apps.drawing"
	MimeTypeForm         = "application/vnd.google-apps.form"
	MimeTypeScript       = "application/vnd.google-apps.script"
	MimeTypeFolder       = "application/vnd.google-apps.folder"
	MimeTypeShortcut     = "application/vnd.google-apps.shortcut"
)

// ExportMimeTypes maps Google-native types to the Office format they are
// exported as when backed up.
var ExportMimeTypes = map[string]string{
	MimeTypeDocument:     "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	MimeTypeSpreadsheet:  "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	MimeTypePresentation: "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	MimeTypeDrawing:      "application/pdf",
	MimeTypeScript:       "application/vnd.google-apps.script+json",
}

// IsWorkspaceMimeType checks if a MIME type is a Google Workspace type
func IsWorkspaceMimeType(mimeType string) bool {
	switch mimeType {
	case MimeTypeDocument, MimeTypeSpreadsheet, MimeTypePresentation,
		MimeTypeDrawing, MimeTypeForm, MimeTypeScript:
		return true
	}
	return false
}
