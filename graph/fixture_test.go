// ABOUTME: Shared fixture for graph package tests.
// ABOUTME: Builds a small model with processes, a template group, and a variable with two taps.

package graph

// fixture layout:
//
//	i1 -> pi1 [p1] po1 -> o1
//	                po1 -> pi2 [p2] po2 -> v1(r1)
//	                       v1(r2) -> pt1 [p2, group g1] pt2
func fixture() *Model {
	m := NewModel("gm", ObjectGraphModel)
	m.Inports["i1"] = &Port{ObjectID: "i1", ObjectType: ObjectInport, Name: "Input", Metadata: Position{X: 10, Y: 20}}
	m.Outports["o1"] = &Port{ObjectID: "o1", ObjectType: ObjectOutport, Name: "Output", Metadata: Position{X: 500, Y: 20}}
	m.Processes["p1"] = &Process{
		ObjectID: "p1", ObjectType: ObjectProcess, Type: ProcessingElement, Ref: "pe-add", Label: "Adder",
		Inports:  map[string]*ProcessPort{"pi1": {Ref: "a"}},
		Outports: map[string]*ProcessPort{"po1": {Ref: "sum"}},
		Metadata: Position{X: 100, Y: 100},
	}
	m.Processes["p2"] = &Process{
		ObjectID: "p2", ObjectType: ObjectProcess, Type: ProcessingElement, Ref: "pe-mux",
		Inports: map[string]*ProcessPort{
			"pi2": {Ref: "in"},
			"pt1": {Ref: "tin", TemplateID: "t1", TemplateGroupID: "g1"},
		},
		Outports: map[string]*ProcessPort{
			"po2": {Ref: "out"},
			"pt2": {Ref: "tout", TemplateID: "t1", TemplateGroupID: "g1"},
		},
		Metadata: Position{X: 300, Y: 100},
	}
	m.Connections["c1"] = &Connection{ObjectID: "c1", Source: "i1", Destination: "pi1"}
	m.Connections["c2"] = &Connection{ObjectID: "c2", Source: "po1", Destination: "o1"}
	m.Connections["c3"] = &Connection{ObjectID: "c3", Source: "po1", Destination: "pi2"}
	m.Variables["v1"] = &Variable{
		ObjectID: "v1", ObjectType: ObjectBroadcastVariable, Label: "Signal",
		Metadata: VariableMetadata{References: []*Reference{
			{ID: "r1", PortID: "v1", PortType: PortDestination, Metadata: Position{X: 400, Y: 200}},
			{ID: "r2", PortID: "v1", PortType: PortSource, Metadata: Position{X: 200, Y: 300}},
		}},
	}
	m.Connections["c4"] = &Connection{ObjectID: "c4", Source: "po2", Destination: "v1", Metadata: &ConnectionMetadata{ReferenceDestination: "r1"}}
	m.Connections["c5"] = &Connection{ObjectID: "c5", Source: "v1", Destination: "pt1", Metadata: &ConnectionMetadata{ReferenceSource: "r2"}}
	return m
}

// allSelectors lists every deletable element in the fixture.
func allSelectors() []Selector {
	return []Selector{
		{Type: KindInport, ID: "i1"},
		{Type: KindOutport, ID: "o1"},
		{Type: KindProcess, ID: "p1"},
		{Type: KindProcess, ID: "p2"},
		{Type: KindProcessInport, ID: "pt1"},
		{Type: KindProcessOutport, ID: "pt2"},
		{Type: KindProcessInport, ID: "pi2"},
		{Type: KindVariableReference, ID: "r1"},
		{Type: KindVariableReference, ID: "r2"},
		{Type: KindVariable, ID: "v1"},
	}
}
