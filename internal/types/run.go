package types

import (
	"fmt"
	"strings"
	"time"
)

// RunStyle is the kind of backup run
type RunStyle string

const (
	RunStyleAbort       RunStyle = "ABORT"
	RunStyleFull        RunStyle = "FULL"
	RunStyleIncremental RunStyle = "INCREMENTAL"
)

// ParseRunStyle accepts a run style in any case; the empty string is valid and
// means "let the minder decide".
func ParseRunStyle(s string) (RunStyle, error) {
	switch RunStyle(strings.ToUpper(strings.TrimSpace(s))) {
	case "":
		return "", nil
	case RunStyleAbort:
		return RunStyleAbort, nil
	case RunStyleFull:
		return RunStyleFull, nil
	case RunStyleIncremental:
		return RunStyleIncremental, nil
	}
	return "", fmt.Errorf("unknown run style %q (want FULL, INCREMENTAL or ABORT)", s)
}

// RunEvent marks the start or the end of a run
type RunEvent string

const (
	RunEventStart RunEvent = "START"
	RunEventEnd   RunEvent = "END"
)

// RunRecord is the persisted marker of a run event
type RunRecord struct {
	Style     RunStyle       `json:"runStyle" yaml:"runStyle"`
	Event     RunEvent       `json:"event" yaml:"event"`
	StartTime time.Time      `json:"startTime" yaml:"startTime"`
	EndTime   time.Time      `json:"endTime,omitempty" yaml:"endTime,omitempty"`
	Extra     map[string]any `json:"extra,omitempty" yaml:"extra,omitempty"`
}
