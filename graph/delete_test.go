// ABOUTME: Tests for cascading deletes, idempotency, and the integrity invariants they protect.
// ABOUTME: Covers process, template-group, variable-reference, and port-with-variable cascades.

package graph

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDeleteProcessRemovesItsConnections(t *testing.T) {
	m := NewModel("gm", ObjectGraphModel)
	m.Inports["i1"] = &Port{ObjectID: "i1", Name: "Input"}
	m.Outports["o1"] = &Port{ObjectID: "o1", Name: "Output"}
	m.Processes["p1"] = &Process{
		ObjectID: "p1", Type: ProcessingElement,
		Inports:  map[string]*ProcessPort{"pi": {Ref: "a"}},
		Outports: map[string]*ProcessPort{"po": {Ref: "b"}},
	}
	m.Connections["c1"] = &Connection{ObjectID: "c1", Source: "i1", Destination: "pi"}
	m.Connections["c2"] = &Connection{ObjectID: "c2", Source: "po", Destination: "o1"}

	DeleteBySelection(m, Selector{Type: KindProcess, ID: "p1"})

	if len(m.Processes) != 0 {
		t.Fatalf("processes = %d, want 0", len(m.Processes))
	}
	if len(m.Connections) != 0 {
		t.Fatalf("connections = %d, want 0", len(m.Connections))
	}

	before := m.Clone()
	DeleteBySelection(m, Selector{Type: KindProcess, ID: "p1"})
	if diff := cmp.Diff(before, m); diff != "" {
		t.Errorf("second delete changed the model (-before +after):\n%s", diff)
	}
}

func TestDeleteIsIdempotentForEverySelector(t *testing.T) {
	for _, sel := range allSelectors() {
		t.Run(string(sel.Type)+"/"+sel.ID, func(t *testing.T) {
			m := fixture()
			DeleteBySelection(m, sel)
			once := m.Clone()
			DeleteBySelection(m, sel)
			if diff := cmp.Diff(once, m); diff != "" {
				t.Errorf("second delete changed the model (-first +second):\n%s", diff)
			}
		})
	}
}

func TestDeletePreservesIntegrity(t *testing.T) {
	sels := allSelectors()
	for start := range sels {
		m := fixture()
		for i := range sels {
			DeleteBySelection(m, sels[(start+i)%len(sels)])
			if problems := CheckIntegrity(m); len(problems) != 0 {
				t.Fatalf("start=%d step=%d: integrity problems: %v", start, i, problems)
			}
		}
	}
}

func TestDeleteUnknownIDIsNoop(t *testing.T) {
	m := fixture()
	before := m.Clone()
	for _, kind := range []Kind{KindInport, KindOutport, KindProcess, KindProcessInport, KindProcessOutport, KindVariable, KindVariableReference} {
		DeleteBySelection(m, Selector{Type: kind, ID: "missing"})
	}
	if diff := cmp.Diff(before, m); diff != "" {
		t.Errorf("deleting unknown ids changed the model:\n%s", diff)
	}
}

func TestDeleteTemplatePortRemovesWholeGroup(t *testing.T) {
	m := fixture()
	DeleteBySelection(m, Selector{Type: KindProcessInport, ID: "pt1"})

	p2 := m.Processes["p2"]
	if _, ok := p2.Inports["pt1"]; ok {
		t.Error("pt1 still present")
	}
	if _, ok := p2.Outports["pt2"]; ok {
		t.Error("pt2 (same template group) still present")
	}
	if _, ok := p2.Inports["pi2"]; !ok {
		t.Error("pi2 (not in group) was removed")
	}
	if _, ok := m.Connections["c5"]; ok {
		t.Error("connection c5 into the group survived")
	}
	refs := m.Variables["v1"].Metadata.References
	if len(refs) != 1 || refs[0].ID != "r1" {
		t.Errorf("v1 references = %v, want only r1", refs)
	}
}

func TestDeleteStaticProcessPortIsRefused(t *testing.T) {
	m := fixture()
	before := m.Clone()
	DeleteBySelection(m, Selector{Type: KindProcessInport, ID: "pi2"})
	if diff := cmp.Diff(before, m); diff != "" {
		t.Errorf("static process port delete changed the model:\n%s", diff)
	}
}

func TestDeleteLastReferenceRemovesVariable(t *testing.T) {
	m := fixture()
	DeleteBySelection(m, Selector{Type: KindVariableReference, ID: "r1"})
	if got := len(m.Variables["v1"].Metadata.References); got != 1 {
		t.Fatalf("references after first delete = %d, want 1", got)
	}
	if _, ok := m.Connections["c4"]; ok {
		t.Error("connection c4 to r1 survived")
	}

	DeleteBySelection(m, Selector{Type: KindVariableReference, ID: "r2"})
	if _, ok := m.Variables["v1"]; ok {
		t.Fatal("variable with no references survived")
	}
	if _, ok := m.Connections["c5"]; ok {
		t.Error("connection c5 from r2 survived")
	}
}

func TestDeletePortTakesAttachedReference(t *testing.T) {
	m := NewModel("gm", ObjectGraphModel)
	in, _ := AddPort(m, KindInport, Position{})
	varID, _, err := AddBroadcastVariable(m, in, Position{X: 50})
	if err != nil {
		t.Fatalf("AddBroadcastVariable: %v", err)
	}

	DeleteBySelection(m, Selector{Type: KindInport, ID: in})

	if _, ok := m.Variables[varID]; ok {
		t.Error("variable fed only by the deleted port survived")
	}
	if len(m.Connections) != 0 {
		t.Errorf("connections = %d, want 0", len(m.Connections))
	}
}

func TestDeleteConnectionsByPortKeepsPort(t *testing.T) {
	m := fixture()
	DeleteConnectionsByPort(m, "po1")
	if _, ok := m.Connections["c2"]; ok {
		t.Error("c2 survived")
	}
	if _, ok := m.Connections["c3"]; ok {
		t.Error("c3 survived")
	}
	if _, ok := m.Connections["c1"]; !ok {
		t.Error("c1 (not touching po1) was removed")
	}
	if _, ok := m.Processes["p1"].Outports["po1"]; !ok {
		t.Error("port itself was removed")
	}
}
