// ABOUTME: Tests for reconciling processes with their interface descriptions.
// ABOUTME: Covers port addition, stale port removal, template ports, and dangling connections.

package graph

import "testing"

func TestSynchronizeProcessAddsAndRemoves(t *testing.T) {
	m := fixture()
	pid := &InterfaceDescription{
		ObjectID: "pe-mux",
		Inports:  map[string]*Port{"in": {}, "extra": {}},
		Outports: map[string]*Port{},
		PortTemplates: map[string]*PortTemplate{
			"t1": {
				ID:               "t1",
				InportTemplates:  map[string]*Port{"tin": {}},
				OutportTemplates: map[string]*Port{"tout": {}},
			},
		},
	}
	lookup := func(p *Process) (*InterfaceDescription, bool) {
		if p.Ref == "pe-mux" {
			return pid, true
		}
		return nil, false
	}

	if !Synchronize(m, lookup) {
		t.Fatal("expected a change")
	}
	p2 := m.Processes["p2"]
	if _, ok := p2.Outports["po2"]; ok {
		t.Error("po2 no longer in the interface but survived")
	}
	if _, ok := p2.Inports["pt1"]; !ok {
		t.Error("template port pt1 was removed")
	}
	hasExtra := false
	for _, pp := range p2.Inports {
		if pp.Ref == "extra" {
			hasExtra = true
		}
	}
	if !hasExtra {
		t.Error("missing interface port was not added")
	}
	if _, ok := m.Connections["c4"]; ok {
		t.Error("connection from removed po2 survived")
	}
	if problems := CheckIntegrity(m); len(problems) != 0 {
		t.Errorf("integrity: %v", problems)
	}

	if Synchronize(m, lookup) {
		t.Error("second synchronize reported a change")
	}
}

func TestSynchronizeConnectionsDropsMissingReference(t *testing.T) {
	m := fixture()
	m.Variables["v1"].Metadata.References = m.Variables["v1"].Metadata.References[:1]
	if !SynchronizeConnections(m) {
		t.Fatal("expected a change")
	}
	if _, ok := m.Connections["c5"]; ok {
		t.Error("connection to removed reference r2 survived")
	}
	if _, ok := m.Connections["c4"]; !ok {
		t.Error("connection to r1 was removed")
	}
}

func TestInterfaceDescriptionClone(t *testing.T) {
	pid := &InterfaceDescription{
		Inports:       map[string]*Port{"a": {Name: "A"}},
		Outports:      map[string]*Port{},
		PortTemplates: map[string]*PortTemplate{"t": {ID: "t", InportTemplates: map[string]*Port{"x": {}}}},
	}
	cp := pid.Clone()
	cp.Inports["a"].Name = "changed"
	if pid.Inports["a"].Name != "A" {
		t.Error("clone shares ports with the original")
	}
	var nilPID *InterfaceDescription
	if nilPID.Clone() != nil {
		t.Error("nil clone should be nil")
	}
}
