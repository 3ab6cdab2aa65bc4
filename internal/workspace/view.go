package workspace

import (
	"time"

	"chronicle/editor/internal/autosave"
	"chronicle/editor/internal/doc"
	"chronicle/editor/internal/tree"
)

// Node is one row of the rendered page tree.
type Node struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Depth    int    `json:"depth"`
	Children []Node `json:"children"`
}

// StatusView is the autosave state as shown to users.
type StatusView struct {
	Status  autosave.Status `json:"status"`
	Message string          `json:"message"`
	SavedAt time.Time       `json:"savedAt,omitzero"`
}

// View is a consistent snapshot of a session.
type View struct {
	ScopeID  string     `json:"scopeId"`
	RootID   string     `json:"rootId"`
	ActiveID string     `json:"activeId"`
	Writable bool       `json:"writable"`
	Expired  bool       `json:"expired"`
	Pages    []doc.Doc  `json:"pages"`
	Tree     []Node     `json:"tree"`
	Healed   []string   `json:"healed,omitempty"`
	Error    string     `json:"error,omitempty"`
	Save     StatusView `json:"save"`
}

// BuildTree nests docs under rootID, or under the top level without a root.
func BuildTree(docs []doc.Doc, rootID string) []Node {
	index := tree.BuildChildrenIndex(docs)
	visited := make(map[string]bool, len(docs))

	var build func(d doc.Doc, depth int) Node
	build = func(d doc.Doc, depth int) Node {
		visited[d.ID] = true
		node := Node{ID: d.ID, Title: d.Title, Depth: depth, Children: []Node{}}
		for _, child := range index[d.ID] {
			if visited[child.ID] {
				continue
			}
			node.Children = append(node.Children, build(child, depth+1))
		}
		return node
	}

	out := []Node{}
	if root, ok := tree.ByID(docs)[rootID]; ok {
		return append(out, build(root, 0))
	}
	for _, top := range index.Children(nil) {
		out = append(out, build(top, 0))
	}
	return out
}

func statusView(st autosave.State) StatusView {
	return StatusView{Status: st.Status, Message: st.Message(), SavedAt: st.SavedAt}
}
