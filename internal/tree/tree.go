// Package tree derives the page forest views from a flat list of docs. Every
// function is pure and tolerates missing or corrupt input.
package tree

import (
	"sort"
	"strings"

	"chronicle/editor/internal/doc"
)

// rootSentinels are titles recognised as the scope root when the canonical
// id is absent.
var rootSentinels = []string{"Instructions", "Root"}

// ChildrenIndex maps a parent id to its sorted children. Top-level docs are
// keyed by "".
type ChildrenIndex map[string][]doc.Doc

// Children returns the sorted children of parentID (nil for top level).
func (c ChildrenIndex) Children(parentID *string) []doc.Doc {
	if parentID == nil {
		return c[""]
	}
	return c[*parentID]
}

// BuildChildrenIndex groups docs by parent and orders each group by position,
// then title.
func BuildChildrenIndex(docs []doc.Doc) ChildrenIndex {
	index := make(ChildrenIndex)
	for _, d := range docs {
		key := d.Parent()
		index[key] = append(index[key], d)
	}
	for _, children := range index {
		SortSiblings(children)
	}
	return index
}

// SortSiblings orders a sibling list in place by (position, title).
func SortSiblings(siblings []doc.Doc) {
	sort.SliceStable(siblings, func(i, j int) bool {
		if siblings[i].Position != siblings[j].Position {
			return siblings[i].Position < siblings[j].Position
		}
		return siblings[i].Title < siblings[j].Title
	})
}

// ByID indexes docs by id. Later duplicates win.
func ByID(docs []doc.Doc) map[string]doc.Doc {
	out := make(map[string]doc.Doc, len(docs))
	for _, d := range docs {
		out[d.ID] = d
	}
	return out
}

// ComputeDepth walks the forest from the root (when rootID is present) or from
// every top-level doc, recording the shallowest depth at which each doc is
// reached. Docs unreachable from the start set are absent from the result.
func ComputeDepth(docs []doc.Doc, rootID string) map[string]int {
	index := BuildChildrenIndex(docs)
	byID := ByID(docs)

	var starts []doc.Doc
	if root, ok := byID[rootID]; ok && rootID != "" {
		starts = []doc.Doc{root}
	} else {
		starts = index[""]
	}

	type frame struct {
		id    string
		depth int
	}
	depth := make(map[string]int, len(docs))
	stack := make([]frame, 0, len(starts))
	for i := len(starts) - 1; i >= 0; i-- {
		stack = append(stack, frame{id: starts[i].ID})
	}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen, ok := depth[top.id]; ok && seen <= top.depth {
			continue
		}
		depth[top.id] = top.depth
		children := index[top.id]
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, frame{id: children[i].ID, depth: top.depth + 1})
		}
	}
	return depth
}

// ResolveRoot picks the scope root: the canonical id if fetched, else a
// top-level doc titled with a root sentinel, else the first top-level doc in
// input order. It returns "" for an empty scope.
func ResolveRoot(docs []doc.Doc, canonicalID string) string {
	if canonicalID != "" {
		for _, d := range docs {
			if d.ID == canonicalID {
				return d.ID
			}
		}
	}
	for _, sentinel := range rootSentinels {
		for _, d := range docs {
			if d.ParentID == nil && strings.EqualFold(strings.TrimSpace(d.Title), sentinel) {
				return d.ID
			}
		}
	}
	for _, d := range docs {
		if d.ParentID == nil {
			return d.ID
		}
	}
	return ""
}

// FilterUnderRoot keeps the root and everything reachable from it, preserving
// input order. Without a root every doc is kept.
func FilterUnderRoot(docs []doc.Doc, rootID string) []doc.Doc {
	if rootID == "" {
		return doc.Clone(docs)
	}
	if _, ok := ByID(docs)[rootID]; !ok {
		return doc.Clone(docs)
	}
	keep := Subtree(docs, rootID)
	out := make([]doc.Doc, 0, len(keep))
	for _, d := range docs {
		if keep[d.ID] {
			out = append(out, d)
		}
	}
	return out
}

// Subtree returns id and every doc reachable from it through parent pointers.
func Subtree(docs []doc.Doc, id string) map[string]bool {
	index := BuildChildrenIndex(docs)
	closure := map[string]bool{id: true}
	stack := []string{id}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, child := range index[current] {
			if closure[child.ID] {
				continue
			}
			closure[child.ID] = true
			stack = append(stack, child.ID)
		}
	}
	return closure
}

// WouldCreateCycle reports whether making targetParentID the parent of dragID
// would put dragID among its own ancestors.
func WouldCreateCycle(docs []doc.Doc, dragID string, targetParentID *string) bool {
	if targetParentID == nil {
		return false
	}
	byID := ByID(docs)
	visited := make(map[string]bool)
	current := *targetParentID
	for current != "" {
		if current == dragID {
			return true
		}
		if visited[current] {
			return false
		}
		visited[current] = true
		d, ok := byID[current]
		if !ok {
			return false
		}
		current = d.Parent()
	}
	return false
}

// ReassignPositions returns a copy of siblings with positions (i+1)*100.
func ReassignPositions(siblings []doc.Doc) []doc.Doc {
	out := doc.Clone(siblings)
	for i := range out {
		out[i].Position = float64((i + 1) * doc.PositionStep)
	}
	return out
}

// NextPosition is the position for a doc appended under parentID: the
// largest sibling position plus one step, or one step for an empty list.
func NextPosition(docs []doc.Doc, parentID *string) float64 {
	found := false
	var highest float64
	for _, d := range docs {
		if !doc.SameParent(d.ParentID, parentID) {
			continue
		}
		if !found || d.Position > highest {
			highest = d.Position
			found = true
		}
	}
	if !found {
		return doc.PositionStep
	}
	return highest + doc.PositionStep
}
