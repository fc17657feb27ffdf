// ABOUTME: Tests for the graph summary renderer and its flow level computation.
// ABOUTME: Builds small graphs with the graph editing helpers and checks ordering and content.

package tui

import (
	"strings"
	"testing"

	"github.com/2389-research/flowgraph/graph"
	"github.com/2389-research/flowgraph/tree"
	"github.com/google/go-cmp/cmp"
)

// pipeline builds Input -> Scale -> Output.
func pipeline(t *testing.T) (*tree.Node, *graph.Model) {
	t.Helper()
	n := tree.NewNode(tree.RootID, "Plant", tree.Model, "alice")
	m, _ := n.Graph()
	in, err := graph.AddPort(m, graph.KindInport, graph.Position{})
	if err != nil {
		t.Fatal(err)
	}
	out, err := graph.AddPort(m, graph.KindOutport, graph.Position{X: 200})
	if err != nil {
		t.Fatal(err)
	}
	pid := &graph.InterfaceDescription{
		ObjectID: "pe-scale",
		Name:     "Scale",
		Inports:  map[string]*graph.Port{"x": {ObjectID: "x", Name: "x"}},
		Outports: map[string]*graph.Port{"y": {ObjectID: "y", Name: "y"}},
	}
	proc := graph.AddProcess(m, pid, "Scale", graph.Position{X: 100})
	var ppIn, ppOut string
	for id := range m.Processes[proc].Inports {
		ppIn = id
	}
	for id := range m.Processes[proc].Outports {
		ppOut = id
	}
	if _, err := graph.Connect(m, in, ppIn); err != nil {
		t.Fatalf("connect in: %v", err)
	}
	if _, err := graph.Connect(m, ppOut, out); err != nil {
		t.Fatalf("connect out: %v", err)
	}
	return n, m
}

func TestFlowLevelsFollowConnections(t *testing.T) {
	_, m := pipeline(t)
	elems, owner := collectElements(m)
	levels := flowLevels(elems, elementEdges(m, owner))

	var got [][]string
	for _, level := range levels {
		var labels []string
		for _, id := range level {
			labels = append(labels, elems[id].label)
		}
		got = append(got, labels)
	}
	want := [][]string{{"Input"}, {"Scale"}, {"Output"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("levels mismatch (-want +got):\n%s", diff)
	}
}

func TestFlowLevelsKeepsCycles(t *testing.T) {
	elems := map[string]element{
		"a": {id: "a", kind: graph.KindProcess, label: "A"},
		"b": {id: "b", kind: graph.KindProcess, label: "B"},
		"c": {id: "c", kind: graph.KindInport, label: "C"},
	}
	edges := map[string][]string{"a": {"b"}, "b": {"a"}}
	levels := flowLevels(elems, edges)
	want := [][]string{{"c"}, {"a", "b"}}
	if diff := cmp.Diff(want, levels); diff != "" {
		t.Errorf("levels mismatch (-want +got):\n%s", diff)
	}
}

func TestRenderSummaryShowsElementsAndEdges(t *testing.T) {
	n, _ := pipeline(t)
	out := RenderSummary(n, 0)
	for _, want := range []string{"MODEL: Plant (v1)", "[in] Input", "[proc] Scale", "[out] Output", "--> Scale", "--> Output", "2 connections"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "[in] Input") > strings.Index(out, "[out] Output") {
		t.Error("inport rendered after outport")
	}
}

func TestRenderSummaryEmptyGraphAndFolder(t *testing.T) {
	model := tree.NewNode(tree.RootID, "Blank", tree.Model, "alice")
	if out := RenderSummary(model, 60); !strings.Contains(out, "(empty graph)") {
		t.Errorf("empty model summary:\n%s", out)
	}
	folder := tree.NewNode(tree.RootID, "Docs", tree.Folder, "alice")
	out := RenderSummary(folder, 0)
	if !strings.Contains(out, "FOLDER: Docs") || strings.Contains(out, "connections") {
		t.Errorf("folder summary:\n%s", out)
	}
}
