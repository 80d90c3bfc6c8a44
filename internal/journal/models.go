package journal

import "time"

// Run statuses
const (
	StatusRunning = "running"
	StatusOK      = "ok"
	StatusPartial = "partial"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

type Run struct {
	ID             string    `json:"id"`
	Kind           string    `json:"kind"`
	Style          string    `json:"style,omitempty"`
	OrganizationID string    `json:"organizationId"`
	Filter         string    `json:"filter,omitempty"`
	StartedAt      time.Time `json:"startedAt"`
	FinishedAt     time.Time `json:"finishedAt,omitempty"`
	Status         string    `json:"status"`
	// Summary is the JSON report of the run
	Summary string `json:"summary,omitempty"`
	Error   string `json:"error,omitempty"`
}

type Failure struct {
	RunID      string `json:"runId"`
	ActionKind string `json:"actionKind"`
	Username   string `json:"username,omitempty"`
	FolderID   string `json:"folderId,omitempty"`
	DocumentID string `json:"documentId,omitempty"`
	Error      string `json:"error"`
}
