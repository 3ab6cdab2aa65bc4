package move

import (
	"errors"

	"chronicle/editor/internal/doc"
	"chronicle/editor/internal/tree"
)

// ErrNoDrop is returned by Commit when no valid drop was proposed.
var ErrNoDrop = errors.New("no drop target proposed")

// Gesture tracks one drag from BeginDrag to CommitDrop or cancellation. Input
// layers translate their pointer events into these calls.
type Gesture struct {
	DragID string

	target *dropTarget
}

type dropTarget struct {
	parentID *string
	slot     int
}

// BeginDrag starts dragging dragID. The root and unknown ids cannot be dragged.
func BeginDrag(docs []doc.Doc, rootID, dragID string) (*Gesture, error) {
	if _, ok := tree.ByID(docs)[dragID]; !ok {
		return nil, &Rejection{Reason: ReasonNotFound, DragID: dragID}
	}
	if rootID != "" && dragID == rootID {
		return nil, &Rejection{Reason: ReasonRoot, DragID: dragID}
	}
	return &Gesture{DragID: dragID}, nil
}

// ProposeDrop previews dropping at slot under parentID without changing any
// state. A rejected proposal clears the previous one.
func (g *Gesture) ProposeDrop(docs []doc.Doc, rootID string, parentID *string, slot int) (Result, error) {
	result, err := MoveToSlot(docs, rootID, g.DragID, parentID, slot)
	if err != nil {
		g.target = nil
		return Result{}, err
	}
	var parent *string
	if parentID != nil {
		p := *parentID
		parent = &p
	}
	g.target = &dropTarget{parentID: parent, slot: slot}
	return result, nil
}

// AppendSlot is the container drop slot for parentID: after the last child.
func AppendSlot(docs []doc.Doc, parentID *string) int {
	return len(tree.BuildChildrenIndex(docs).Children(parentID))
}

// CommitDrop recomputes the last accepted proposal against docs, which may
// have changed since it was proposed, and ends the gesture.
func (g *Gesture) CommitDrop(docs []doc.Doc, rootID string) (Result, error) {
	target := g.target
	g.target = nil
	if target == nil {
		return Result{}, ErrNoDrop
	}
	return MoveToSlot(docs, rootID, g.DragID, target.parentID, target.slot)
}

// Proposed reports whether a drop target is currently accepted.
func (g *Gesture) Proposed() bool {
	return g.target != nil
}
