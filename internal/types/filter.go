package types

import (
	"fmt"
	"regexp"
	"strings"
)

// Filter narrows a run to some users and some top-level folders.
// The zero value matches everything.
type Filter struct {
	// UserQuery matches a username or email exactly (case-insensitive).
	UserQuery string `json:"userQuery,omitempty"`
	// FolderNames are names of folders directly under a user's root.
	FolderNames []string `json:"folderNames,omitempty"`
	// FolderPattern is a regular expression over the same top-level names.
	FolderPattern string `json:"folderPattern,omitempty"`

	pattern *regexp.Regexp
}

// Compile validates FolderPattern. It must be called before MatchesFolder when
// a pattern is set.
func (f *Filter) Compile() error {
	if f.FolderPattern == "" {
		f.pattern = nil
		return nil
	}
	re, err := regexp.Compile(f.FolderPattern)
	if err != nil {
		return fmt.Errorf("invalid folder pattern: %w", err)
	}
	f.pattern = re
	return nil
}

// IsEmpty reports whether the filter narrows nothing
func (f Filter) IsEmpty() bool {
	return f.UserQuery == "" && len(f.FolderNames) == 0 && f.FolderPattern == ""
}

// HasFolderFilter reports whether the filter narrows folders
func (f Filter) HasFolderFilter() bool {
	return len(f.FolderNames) > 0 || f.FolderPattern != ""
}

// MatchesUser reports whether u is in scope
func (f Filter) MatchesUser(u User) bool {
	if f.UserQuery == "" {
		return true
	}
	q := strings.TrimSpace(f.UserQuery)
	return strings.EqualFold(q, u.Username) || strings.EqualFold(q, u.Email)
}

// MatchesFolder reports whether a top-level folder name is in scope
func (f Filter) MatchesFolder(name string) bool {
	if !f.HasFolderFilter() {
		return true
	}
	for _, n := range f.FolderNames {
		if n == name {
			return true
		}
	}
	if f.pattern != nil {
		return f.pattern.MatchString(name)
	}
	if f.FolderPattern != "" {
		re, err := regexp.Compile(f.FolderPattern)
		return err == nil && re.MatchString(name)
	}
	return false
}
