package doc

import "strings"

// Scope identifies the set of pages an editing session works on: a job, or a
// folder inside a job.
type Scope struct {
	JobID    string
	FolderID string
}

// ID is the value stored in each page's jobId field and used to list the scope.
func (s Scope) ID() string {
	if folder := strings.TrimSpace(s.FolderID); folder != "" {
		return "folder-" + folder
	}
	return strings.TrimSpace(s.JobID)
}

// CanonicalRootID is the id of the synthetic root page for the scope.
func (s Scope) CanonicalRootID() string {
	if folder := strings.TrimSpace(s.FolderID); folder != "" {
		return "instructions-folder-" + folder
	}
	if job := strings.TrimSpace(s.JobID); job != "" {
		return "instructions-" + job
	}
	return ""
}

func (s Scope) Valid() bool {
	return s.ID() != ""
}
