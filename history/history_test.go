// ABOUTME: Tests for the undo/redo history state machine and its version-echo filter.
// ABOUTME: Snapshots are tree nodes edited through the graph helpers.

package history

import (
	"errors"
	"testing"

	"github.com/2389-research/flowgraph/graph"
	"github.com/2389-research/flowgraph/tree"
)

// edited returns a copy of n at version+1 with one more inport.
func edited(t *testing.T, n *tree.Node) *tree.Node {
	t.Helper()
	next := n.Clone()
	next.Version++
	m, _ := next.Graph()
	if _, err := graph.AddPort(m, graph.KindInport, graph.Position{}); err != nil {
		t.Fatal(err)
	}
	next.ProcessInterface = tree.GeneratePID(next)
	return next
}

func inports(n *tree.Node) int {
	m, _ := n.Graph()
	return len(m.Inports)
}

func TestAddIgnoresVersionOnlyChange(t *testing.T) {
	base := tree.NewNode(tree.RootID, "Plant", tree.Model, "alice")
	h := New(base)

	echo := base.Clone()
	echo.Version = 2
	echo.ProcessInterface = tree.GeneratePID(echo)
	if h.Add(echo) {
		t.Error("version-only change was recorded")
	}
	if h.HasPast() {
		t.Error("HasPast after echo")
	}

	if !h.Add(edited(t, base)) {
		t.Fatal("real edit was not recorded")
	}
	if h.Past() != 1 || h.HasFuture() {
		t.Errorf("past=%d future=%d, want 1/0", h.Past(), h.Future())
	}
}

func TestUndoRedoWalk(t *testing.T) {
	v1 := tree.NewNode(tree.RootID, "Plant", tree.Model, "alice")
	v2 := edited(t, v1)
	v3 := edited(t, v2)
	h := New(v1)
	h.Add(v2)
	h.Add(v3)

	got, err := h.Undo()
	if err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if inports(got) != 1 || h.Past() != 1 || h.Future() != 1 {
		t.Errorf("after undo: inports=%d past=%d future=%d", inports(got), h.Past(), h.Future())
	}
	if _, err := h.Undo(); err != nil {
		t.Fatal(err)
	}
	if _, err := h.Undo(); !errors.Is(err, ErrNothingToUndo) {
		t.Errorf("err = %v, want ErrNothingToUndo", err)
	}
	if inports(h.Present()) != 0 || h.Future() != 2 {
		t.Errorf("present inports=%d future=%d", inports(h.Present()), h.Future())
	}

	got, err = h.Redo()
	if err != nil {
		t.Fatalf("Redo: %v", err)
	}
	if inports(got) != 1 {
		t.Errorf("redo gave %d inports, want nearest future first", inports(got))
	}
	h.Redo()
	if _, err := h.Redo(); !errors.Is(err, ErrNothingToRedo) {
		t.Errorf("err = %v, want ErrNothingToRedo", err)
	}
}

func TestAddClearsFuture(t *testing.T) {
	v1 := tree.NewNode(tree.RootID, "Plant", tree.Model, "alice")
	v2 := edited(t, v1)
	h := New(v1)
	h.Add(v2)
	if _, err := h.Undo(); err != nil {
		t.Fatal(err)
	}

	branch := v1.Clone()
	branch.Name = "Renamed"
	h.Add(branch)
	if h.HasFuture() {
		t.Error("future survived a new edit")
	}
	if h.Present().Name != "Renamed" {
		t.Errorf("present = %q", h.Present().Name)
	}
}

func TestSnapshotsAreIsolated(t *testing.T) {
	v1 := tree.NewNode(tree.RootID, "Plant", tree.Model, "alice")
	h := New(v1)
	m, _ := v1.Graph()
	if _, err := graph.AddPort(m, graph.KindOutport, graph.Position{}); err != nil {
		t.Fatal(err)
	}
	pm, _ := h.Present().Graph()
	if len(pm.Outports) != 0 {
		t.Error("history shares content with the caller")
	}
}

func TestLimitDropsOldest(t *testing.T) {
	n := tree.NewNode(tree.RootID, "Plant", tree.Model, "alice")
	h := New(n, WithLimit(2))
	for i := 0; i < 4; i++ {
		n = edited(t, n)
		h.Add(n)
	}
	if h.Past() != 2 {
		t.Fatalf("past = %d, want 2", h.Past())
	}
	h.Undo()
	got, _ := h.Undo()
	if inports(got) != 2 {
		t.Errorf("oldest kept snapshot has %d inports, want 2", inports(got))
	}
}

func TestReset(t *testing.T) {
	v1 := tree.NewNode(tree.RootID, "Plant", tree.Model, "alice")
	h := New(v1)
	h.Add(edited(t, v1))
	h.Reset(v1)
	if h.HasPast() || h.HasFuture() || inports(h.Present()) != 0 {
		t.Error("Reset kept history")
	}
}

func TestTrackRebasesMetadataChanges(t *testing.T) {
	v1 := tree.NewNode(tree.RootID, "Plant", tree.Model, "alice")
	h := New(v1)
	v2 := edited(t, v1)
	if !h.Track(v2) {
		t.Fatal("content change was not recorded")
	}

	moved := v2.Clone()
	moved.Version++
	moved.ParentID = "folder-1"
	moved.Name = "Plant (moved)"
	if h.Track(moved) {
		t.Error("move was recorded as an undo step")
	}
	if h.Past() != 1 {
		t.Errorf("past = %d, want 1", h.Past())
	}
	if got := h.Present(); got.ParentID != "folder-1" || got.Version != moved.Version {
		t.Errorf("present = parent %q v%d, want the moved node", got.ParentID, got.Version)
	}

	prev, err := h.Undo()
	if err != nil {
		t.Fatal(err)
	}
	if inports(prev) != 0 {
		t.Errorf("undo snapshot has %d inports, want 0", inports(prev))
	}
}
