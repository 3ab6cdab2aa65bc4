// Package doc defines the page record shared by the tree, move, reconcile and
// autosave packages, and the partial body sent to the document store.
package doc

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

const (
	// BlankHTML is loaded into the editor when a page has no stored content.
	BlankHTML = "<p></p>"
	// UntitledTitle replaces empty or whitespace-only titles.
	UntitledTitle = "Untitled"
	// RootTitle is the title written on a freshly created scope root.
	RootTitle = "Instructions"
	// PositionStep is the gap between consecutive sibling positions.
	PositionStep = 100
)

// Doc is one page in a scope. ParentID nil means top level.
type Doc struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	ParentID     *string         `json:"parentId"`
	Position     float64         `json:"position"`
	JobID        string          `json:"jobId,omitempty"`
	Icon         string          `json:"icon,omitempty"`
	HTMLSnapshot string          `json:"htmlSnapshot,omitempty"`
	TiptapJSON   json.RawMessage `json:"tiptapJson,omitempty"`
	Version      int             `json:"version,omitempty"`
	CreatedAt    time.Time       `json:"createdAt,omitzero"`
	UpdatedAt    time.Time       `json:"updatedAt,omitzero"`
}

// Raw is an untrusted store payload before normalization.
type Raw map[string]any

// Parent returns the parent id, or "" for a top-level doc.
func (d Doc) Parent() string {
	if d.ParentID == nil {
		return ""
	}
	return *d.ParentID
}

// Equal reports whether every field of d and other matches.
func (d Doc) Equal(other Doc) bool {
	return d.ID == other.ID &&
		d.Title == other.Title &&
		SameParent(d.ParentID, other.ParentID) &&
		d.Position == other.Position &&
		d.JobID == other.JobID &&
		d.Icon == other.Icon &&
		d.HTMLSnapshot == other.HTMLSnapshot &&
		bytes.Equal(d.TiptapJSON, other.TiptapJSON) &&
		d.Version == other.Version &&
		d.CreatedAt.Equal(other.CreatedAt) &&
		d.UpdatedAt.Equal(other.UpdatedAt)
}

// Ref returns a pointer to id, or nil when id is empty.
func Ref(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}

// SameParent compares two parent pointers by value.
func SameParent(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// NormalizeTitle trims title and substitutes UntitledTitle for blanks.
func NormalizeTitle(title string) string {
	trimmed := strings.TrimSpace(title)
	if trimmed == "" {
		return UntitledTitle
	}
	return trimmed
}

// Clone returns a copy of docs that can be mutated without touching the input.
func Clone(docs []Doc) []Doc {
	out := make([]Doc, len(docs))
	copy(out, docs)
	return out
}
