// Package move turns a reorder or reparent gesture into the next doc list and
// the minimal set of docs that must be persisted.
package move

import (
	"errors"
	"fmt"

	"chronicle/editor/internal/doc"
	"chronicle/editor/internal/tree"
)

// ErrRejected is wrapped by every Rejection.
var ErrRejected = errors.New("move rejected")

type Reason string

const (
	ReasonNotFound      Reason = "not_found"
	ReasonRoot          Reason = "root_not_draggable"
	ReasonSelfParent    Reason = "self_parent"
	ReasonParentMissing Reason = "parent_missing"
	ReasonDepth         Reason = "max_depth"
	ReasonCycle         Reason = "cycle"
)

// Rejection is returned when a move breaks a tree rule. No state was
// changed and nothing should be persisted.
type Rejection struct {
	Reason   Reason
	DragID   string
	ParentID string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("move %s under %q: %s", r.DragID, r.ParentID, r.Reason)
}

func (r *Rejection) Unwrap() error {
	return ErrRejected
}

// Result is the outcome of an accepted move. Updates lists the docs whose
// position or parent changed, destination list first, in persistence order.
type Result struct {
	NextDocs []doc.Doc
	Updates  []doc.Doc
}

// Patches converts the updates into store put bodies.
func (r Result) Patches() map[string]doc.Patch {
	out := make(map[string]doc.Patch, len(r.Updates))
	for _, u := range r.Updates {
		out[u.ID] = doc.Patch{}.WithPosition(u.Position).WithParent(u.ParentID)
	}
	return out
}

// Move places dragID under targetParentID so that it ends up at targetIndex in
// the destination sibling list (indexes counted without the dragged doc,
// clamped to the list bounds). In root mode a nil target parent means the root.
func Move(docs []doc.Doc, rootID, dragID string, targetParentID *string, targetIndex int) (Result, error) {
	target, err := validate(docs, rootID, dragID, targetParentID)
	if err != nil {
		return Result{}, err
	}
	return apply(docs, dragID, target, targetIndex), nil
}

// MoveToSlot is Move for drop slots measured against the rows currently shown
// under the target parent, dragged row included: before row i is slot i, after
// row i is slot i+1. Dropping a doc later in its own list shifts the slot left
// by one to account for its removal.
func MoveToSlot(docs []doc.Doc, rootID, dragID string, targetParentID *string, slot int) (Result, error) {
	target, err := validate(docs, rootID, dragID, targetParentID)
	if err != nil {
		return Result{}, err
	}
	return apply(docs, dragID, target, InsertionIndex(docs, dragID, target, slot)), nil
}

// InsertionIndex converts a drop slot into a Move index.
func InsertionIndex(docs []doc.Doc, dragID string, targetParentID *string, slot int) int {
	byID := tree.ByID(docs)
	dragged, ok := byID[dragID]
	if !ok || !doc.SameParent(dragged.ParentID, targetParentID) {
		return slot
	}
	siblings := tree.BuildChildrenIndex(docs).Children(targetParentID)
	for i, s := range siblings {
		if s.ID == dragID {
			if i < slot {
				return slot - 1
			}
			break
		}
	}
	return slot
}

func validate(docs []doc.Doc, rootID, dragID string, targetParentID *string) (*string, error) {
	reject := func(reason Reason, parent *string) error {
		p := ""
		if parent != nil {
			p = *parent
		}
		return &Rejection{Reason: reason, DragID: dragID, ParentID: p}
	}

	byID := tree.ByID(docs)
	dragged, ok := byID[dragID]
	if !ok {
		return nil, reject(ReasonNotFound, targetParentID)
	}
	if rootID != "" && dragID == rootID {
		return nil, reject(ReasonRoot, targetParentID)
	}
	if targetParentID == nil && rootID != "" {
		if _, ok := byID[rootID]; ok {
			targetParentID = doc.Ref(rootID)
		}
	}
	if targetParentID == nil {
		return nil, nil
	}
	if *targetParentID == dragID {
		return nil, reject(ReasonSelfParent, targetParentID)
	}
	if _, ok := byID[*targetParentID]; !ok {
		return nil, reject(ReasonParentMissing, targetParentID)
	}
	parent := *targetParentID
	// Reordering inside the current parent never deepens the tree.
	if doc.SameParent(dragged.ParentID, targetParentID) {
		return &parent, nil
	}
	if tree.WouldCreateCycle(docs, dragID, targetParentID) {
		return nil, reject(ReasonCycle, targetParentID)
	}
	depth, ok := tree.ComputeDepth(docs, rootID)[*targetParentID]
	if !ok || depth >= 1 {
		return nil, reject(ReasonDepth, targetParentID)
	}
	return &parent, nil
}

func apply(docs []doc.Doc, dragID string, targetParentID *string, targetIndex int) Result {
	byID := tree.ByID(docs)
	dragged := byID[dragID]
	index := tree.BuildChildrenIndex(docs)

	source := without(index.Children(dragged.ParentID), dragID)
	sameParent := doc.SameParent(dragged.ParentID, targetParentID)

	destination := source
	if !sameParent {
		destination = without(index.Children(targetParentID), dragID)
	}

	if targetIndex < 0 {
		targetIndex = 0
	}
	if targetIndex > len(destination) {
		targetIndex = len(destination)
	}

	moved := dragged
	moved.ParentID = targetParentID
	destination = append(destination[:targetIndex:targetIndex], append([]doc.Doc{moved}, destination[targetIndex:]...)...)

	reassigned := tree.ReassignPositions(destination)
	if !sameParent {
		reassigned = append(reassigned, tree.ReassignPositions(source)...)
	}

	changed := make(map[string]doc.Doc, len(reassigned))
	updates := make([]doc.Doc, 0, len(reassigned))
	for _, d := range reassigned {
		before := byID[d.ID]
		if before.Position == d.Position && doc.SameParent(before.ParentID, d.ParentID) {
			continue
		}
		changed[d.ID] = d
		updates = append(updates, d)
	}

	next := doc.Clone(docs)
	for i := range next {
		if d, ok := changed[next[i].ID]; ok {
			next[i] = d
		}
	}
	return Result{NextDocs: next, Updates: updates}
}

func without(siblings []doc.Doc, id string) []doc.Doc {
	out := make([]doc.Doc, 0, len(siblings))
	for _, s := range siblings {
		if s.ID != id {
			out = append(out, s)
		}
	}
	return out
}
