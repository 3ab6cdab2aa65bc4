package reconcile

import (
	"errors"
	"strings"
	"time"

	"chronicle/editor/internal/doc"
	"chronicle/editor/internal/tree"
	"chronicle/editor/internal/util"
)

var (
	ErrBlankTitle    = errors.New("title is required")
	ErrParentTooDeep = errors.New("parent cannot accept sub-pages")
	ErrUnknownParent = errors.New("parent page not found")
)

// MergeDoc upserts saved by id. changed is false when the list already held an
// identical doc, in which case the input slice is returned untouched.
func MergeDoc(docs []doc.Doc, saved doc.Doc) ([]doc.Doc, bool) {
	for i, d := range docs {
		if d.ID != saved.ID {
			continue
		}
		if d.Equal(saved) {
			return docs, false
		}
		out := doc.Clone(docs)
		out[i] = saved
		return out, true
	}
	out := make([]doc.Doc, 0, len(docs)+1)
	out = append(out, docs...)
	return append(out, saved), true
}

// EnsureActiveDocVisible resolves which page should be open: the requested id,
// then each fallback in order, then the root, then the first doc. It returns
// "" when the list is empty.
func EnsureActiveDocVisible(docs []doc.Doc, rootID, requestedID string, fallbacks ...string) string {
	present := tree.ByID(docs)
	candidates := make([]string, 0, len(fallbacks)+2)
	candidates = append(candidates, requestedID)
	candidates = append(candidates, fallbacks...)
	candidates = append(candidates, rootID)
	for _, id := range candidates {
		if id == "" {
			continue
		}
		if _, ok := present[id]; ok {
			return id
		}
	}
	if len(docs) > 0 {
		return docs[0].ID
	}
	return ""
}

// DeleteClosure lists id and all of its descendants, id first. The store only
// cascades one level, so the whole closure is computed locally.
func DeleteClosure(docs []doc.Doc, id string) []string {
	index := tree.BuildChildrenIndex(docs)
	seen := map[string]bool{id: true}
	out := []string{id}
	stack := []string{id}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, child := range index[current] {
			if seen[child.ID] {
				continue
			}
			seen[child.ID] = true
			out = append(out, child.ID)
			stack = append(stack, child.ID)
		}
	}
	return out
}

// RemoveClosure drops every listed id from docs in one pass.
func RemoveClosure(docs []doc.Doc, ids []string) []doc.Doc {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	out := make([]doc.Doc, 0, len(docs))
	for _, d := range docs {
		if !drop[d.ID] {
			out = append(out, d)
		}
	}
	return out
}

// NewPage mints an optimistic page appended under parentID. In root mode a nil
// parent means the root. The parent may sit at depth one at most.
func NewPage(docs []doc.Doc, rootID string, parentID *string, title, jobID string, now time.Time) (doc.Doc, error) {
	if strings.TrimSpace(title) == "" {
		return doc.Doc{}, ErrBlankTitle
	}
	if parentID == nil && rootID != "" {
		parentID = doc.Ref(rootID)
	}
	if parentID != nil {
		if _, ok := tree.ByID(docs)[*parentID]; !ok {
			return doc.Doc{}, ErrUnknownParent
		}
		if depth, ok := tree.ComputeDepth(docs, rootID)[*parentID]; !ok || depth > 1 {
			return doc.Doc{}, ErrParentTooDeep
		}
	}
	return doc.Doc{
		ID:           util.NewPageID(now),
		Title:        doc.NormalizeTitle(title),
		ParentID:     parentID,
		Position:     tree.NextPosition(docs, parentID),
		JobID:        jobID,
		HTMLSnapshot: doc.BlankHTML,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}
