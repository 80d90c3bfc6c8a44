package types

// SummaryEntry names one child in a folder summary
type SummaryEntry struct {
	ID   string `json:"id" yaml:"Id"`
	Name string `json:"name" yaml:"Name"`
}

// FolderSummary is the body of a folder summary object. It lists the
// children that were active when it was written.
type FolderSummary struct {
	Documents []SummaryEntry `json:"documents" yaml:"Documents"`
	Folders   []SummaryEntry `json:"folders" yaml:"Folders"`
}

// NewFolderSummary builds a summary from listed children
func NewFolderSummary(folders []FolderRef, documents []DocumentRef) FolderSummary {
	s := FolderSummary{
		Documents: make([]SummaryEntry, 0, len(documents)),
		Folders:   make([]SummaryEntry, 0, len(folders)),
	}
	for _, d := range documents {
		s.Documents = append(s.Documents, SummaryEntry{ID: d.ID, Name: d.Name})
	}
	for _, f := range folders {
		s.Folders = append(s.Folders, SummaryEntry{ID: f.ID, Name: f.Name})
	}
	return s
}
