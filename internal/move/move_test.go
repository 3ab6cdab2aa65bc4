package move

import (
	"errors"
	"reflect"
	"testing"

	"chronicle/editor/internal/doc"
	"chronicle/editor/internal/tree"
)

func page(id, parent string, position float64) doc.Doc {
	return doc.Doc{ID: id, Title: id, ParentID: doc.Ref(parent), Position: position}
}

func siblingLayout(docs []doc.Doc, parent string) []string {
	var out []string
	for _, d := range tree.BuildChildrenIndex(docs).Children(doc.Ref(parent)) {
		out = append(out, d.ID)
	}
	return out
}

func positions(docs []doc.Doc) map[string]float64 {
	out := make(map[string]float64, len(docs))
	for _, d := range docs {
		out[d.ID] = d.Position
	}
	return out
}

func updateIDs(r Result) []string {
	var out []string
	for _, u := range r.Updates {
		out = append(out, u.ID)
	}
	return out
}

func flatList() []doc.Doc {
	return []doc.Doc{
		page("P", "", 100),
		page("A", "P", 100),
		page("B", "P", 200),
		page("C", "P", 300),
	}
}

func rootedList() []doc.Doc {
	return []doc.Doc{
		page("root", "", 0),
		page("a", "root", 100),
		page("b", "root", 200),
		page("a1", "a", 100),
	}
}

func TestMoveReorderToFront(t *testing.T) {
	result, err := Move(flatList(), "", "C", doc.Ref("P"), 0)
	if err != nil {
		t.Fatalf("Move() error = %v", err)
	}
	if got := siblingLayout(result.NextDocs, "P"); !reflect.DeepEqual(got, []string{"C", "A", "B"}) {
		t.Fatalf("layout = %v", got)
	}
	pos := positions(result.NextDocs)
	if pos["C"] != 100 || pos["A"] != 200 || pos["B"] != 300 {
		t.Fatalf("positions = %v", pos)
	}
	if got := updateIDs(result); !reflect.DeepEqual(got, []string{"C", "A", "B"}) {
		t.Fatalf("updates = %v", got)
	}
}

func TestMoveSameListForward(t *testing.T) {
	result, err := Move(flatList(), "", "A", doc.Ref("P"), 2)
	if err != nil {
		t.Fatalf("Move() error = %v", err)
	}
	if got := siblingLayout(result.NextDocs, "P"); !reflect.DeepEqual(got, []string{"B", "C", "A"}) {
		t.Fatalf("layout = %v", got)
	}
	pos := positions(result.NextDocs)
	if pos["B"] != 100 || pos["C"] != 200 || pos["A"] != 300 {
		t.Fatalf("positions = %v", pos)
	}
	if len(result.Updates) != 3 {
		t.Fatalf("expected 3 updates, got %v", updateIDs(result))
	}
}

func TestMoveToSlotCorrectsForwardDrops(t *testing.T) {
	cases := []struct {
		name    string
		slot    int
		layout  []string
		updates []string
	}{
		{name: "after last row", slot: 3, layout: []string{"B", "C", "A"}, updates: []string{"B", "C", "A"}},
		{name: "before C", slot: 2, layout: []string{"B", "A", "C"}, updates: []string{"B", "A"}},
		{name: "own slot", slot: 0, layout: []string{"A", "B", "C"}, updates: nil},
		{name: "clamped", slot: 99, layout: []string{"B", "C", "A"}, updates: []string{"B", "C", "A"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := MoveToSlot(flatList(), "", "A", doc.Ref("P"), tc.slot)
			if err != nil {
				t.Fatalf("MoveToSlot() error = %v", err)
			}
			if got := siblingLayout(result.NextDocs, "P"); !reflect.DeepEqual(got, tc.layout) {
				t.Fatalf("layout = %v, want %v", got, tc.layout)
			}
			if got := updateIDs(result); !reflect.DeepEqual(got, tc.updates) {
				t.Fatalf("updates = %v, want %v", got, tc.updates)
			}
		})
	}
}

func TestMoveReparentUpdatesBothLists(t *testing.T) {
	docs := rootedList()
	docs = append(docs, page("a2", "a", 200))
	result, err := Move(docs, "root", "a1", doc.Ref("root"), 1)
	if err != nil {
		t.Fatalf("Move() error = %v", err)
	}
	if got := siblingLayout(result.NextDocs, "root"); !reflect.DeepEqual(got, []string{"a", "a1", "b"}) {
		t.Fatalf("root layout = %v", got)
	}
	if got := siblingLayout(result.NextDocs, "a"); !reflect.DeepEqual(got, []string{"a2"}) {
		t.Fatalf("source layout = %v", got)
	}
	if got := updateIDs(result); !reflect.DeepEqual(got, []string{"a1", "b", "a2"}) {
		t.Fatalf("updates = %v", got)
	}
	patches := result.Patches()
	if p := patches["a1"]; !p.SetParent || p.ParentID == nil || *p.ParentID != "root" || *p.Position != 200 {
		t.Fatalf("unexpected a1 patch %+v", p)
	}
}

func TestMoveNilTargetMeansRootInRootMode(t *testing.T) {
	result, err := Move(rootedList(), "root", "a1", nil, 99)
	if err != nil {
		t.Fatalf("Move() error = %v", err)
	}
	if got := siblingLayout(result.NextDocs, "root"); !reflect.DeepEqual(got, []string{"a", "b", "a1"}) {
		t.Fatalf("layout = %v", got)
	}
}

func TestMoveIntoTopLevelWithoutRoot(t *testing.T) {
	docs := []doc.Doc{page("x", "", 100), page("y", "", 200)}
	result, err := Move(docs, "", "y", doc.Ref("x"), 0)
	if err != nil {
		t.Fatalf("Move() error = %v", err)
	}
	if got := updateIDs(result); !reflect.DeepEqual(got, []string{"y"}) {
		t.Fatalf("updates = %v", got)
	}
	if result.NextDocs[1].Parent() != "x" || result.NextDocs[1].Position != 100 {
		t.Fatalf("unexpected moved doc %+v", result.NextDocs[1])
	}
}

func TestMoveRejections(t *testing.T) {
	noRoot := []doc.Doc{page("x", "", 100), page("x1", "x", 100)}
	cases := []struct {
		name   string
		docs   []doc.Doc
		rootID string
		dragID string
		parent *string
		reason Reason
	}{
		{name: "unknown drag", docs: rootedList(), rootID: "root", dragID: "nope", parent: doc.Ref("root"), reason: ReasonNotFound},
		{name: "root drag", docs: rootedList(), rootID: "root", dragID: "root", parent: doc.Ref("a"), reason: ReasonRoot},
		{name: "self parent", docs: rootedList(), rootID: "root", dragID: "b", parent: doc.Ref("b"), reason: ReasonSelfParent},
		{name: "missing parent", docs: rootedList(), rootID: "root", dragID: "b", parent: doc.Ref("ghost"), reason: ReasonParentMissing},
		{name: "depth one parent", docs: rootedList(), rootID: "root", dragID: "b", parent: doc.Ref("a"), reason: ReasonDepth},
		{name: "descendant parent", docs: noRoot, rootID: "", dragID: "x", parent: doc.Ref("x1"), reason: ReasonCycle},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			before := doc.Clone(tc.docs)
			_, err := Move(tc.docs, tc.rootID, tc.dragID, tc.parent, 0)
			if !errors.Is(err, ErrRejected) {
				t.Fatalf("expected ErrRejected, got %v", err)
			}
			var rejection *Rejection
			if !errors.As(err, &rejection) || rejection.Reason != tc.reason {
				t.Fatalf("expected reason %s, got %v", tc.reason, err)
			}
			if !reflect.DeepEqual(before, tc.docs) {
				t.Fatal("input docs changed on rejection")
			}
		})
	}
}

func TestMoveReorderInsideDeepListIsAllowed(t *testing.T) {
	docs := append(rootedList(), page("a2", "a", 200))
	result, err := Move(docs, "root", "a2", doc.Ref("a"), 0)
	if err != nil {
		t.Fatalf("Move() error = %v", err)
	}
	if got := siblingLayout(result.NextDocs, "a"); !reflect.DeepEqual(got, []string{"a2", "a1"}) {
		t.Fatalf("layout = %v", got)
	}
}

func TestGestureLifecycle(t *testing.T) {
	docs := flatList()
	if _, err := BeginDrag(rootedList(), "root", "root"); !errors.Is(err, ErrRejected) {
		t.Fatalf("expected root drag rejection, got %v", err)
	}

	g, err := BeginDrag(docs, "", "A")
	if err != nil {
		t.Fatalf("BeginDrag() error = %v", err)
	}
	if _, err := g.CommitDrop(docs, ""); !errors.Is(err, ErrNoDrop) {
		t.Fatalf("expected ErrNoDrop, got %v", err)
	}

	if _, err := g.ProposeDrop(docs, "", doc.Ref("P"), AppendSlot(docs, doc.Ref("P"))); err != nil {
		t.Fatalf("ProposeDrop() error = %v", err)
	}
	if !g.Proposed() {
		t.Fatal("expected accepted proposal")
	}
	if _, err := g.ProposeDrop(docs, "", doc.Ref("A"), 0); err == nil {
		t.Fatal("expected self-parent rejection")
	}
	if g.Proposed() {
		t.Fatal("rejected proposal should clear the target")
	}

	if _, err := g.ProposeDrop(docs, "", doc.Ref("P"), 3); err != nil {
		t.Fatalf("ProposeDrop() error = %v", err)
	}
	result, err := g.CommitDrop(docs, "")
	if err != nil {
		t.Fatalf("CommitDrop() error = %v", err)
	}
	if got := siblingLayout(result.NextDocs, "P"); !reflect.DeepEqual(got, []string{"B", "C", "A"}) {
		t.Fatalf("layout = %v", got)
	}
	if g.Proposed() {
		t.Fatal("commit should end the gesture")
	}
}
