// ABOUTME: Polymorphic addressing of graph elements by id.
// ABOUTME: Resolve maps any element id to a tagged Entity in a fixed lookup order.

package graph

import "fmt"

// Kind discriminates the element an id refers to.
type Kind string

const (
	KindInport            Kind = "Inport"
	KindOutport           Kind = "Outport"
	KindProcess           Kind = "Process"
	KindProcessInport     Kind = "ProcessInport"
	KindProcessOutport    Kind = "ProcessOutport"
	KindVariable          Kind = "Variable"
	KindVariableReference Kind = "VariableReference"
)

// Selector addresses one element for deletion or copying.
type Selector struct {
	Type Kind   `json:"type"`
	ID   string `json:"id"`
}

// Entity is the result of Resolve. Exactly the fields relevant to Kind are set:
// Port for graph ports, Process (and ProcessPort for process ports), Variable
// (and Reference for variable references).
type Entity struct {
	Kind        Kind
	ID          string
	Port        *Port
	Process     *Process
	ProcessPort *ProcessPort
	Variable    *Variable
	Reference   *Reference
}

// IsSource reports whether the entity can start a connection.
func (e Entity) IsSource() bool {
	switch e.Kind {
	case KindInport, KindProcessOutport, KindVariable:
		return true
	case KindVariableReference:
		return e.Reference.PortType == PortSource
	}
	return false
}

// IsDestination reports whether the entity can end a connection.
func (e Entity) IsDestination() bool {
	switch e.Kind {
	case KindOutport, KindProcessInport, KindVariable:
		return true
	case KindVariableReference:
		return e.Reference.PortType == PortDestination
	}
	return false
}

// NotFoundError reports an id that does not resolve in a model.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("graph element not found: %s", e.ID)
}

// Resolve looks id up as Inport, Outport, Process, ProcessInport, ProcessOutport,
// Variable, then VariableReference. Ids are unique within one model, so the first
// hit is the only hit.
func Resolve(m *Model, id string) (Entity, bool) {
	if m == nil || id == "" {
		return Entity{}, false
	}
	if p, ok := m.Inports[id]; ok {
		return Entity{Kind: KindInport, ID: id, Port: p}, true
	}
	if p, ok := m.Outports[id]; ok {
		return Entity{Kind: KindOutport, ID: id, Port: p}, true
	}
	if p, ok := m.Processes[id]; ok {
		return Entity{Kind: KindProcess, ID: id, Process: p}, true
	}
	for _, p := range m.Processes {
		if pp, ok := p.Inports[id]; ok {
			return Entity{Kind: KindProcessInport, ID: id, Process: p, ProcessPort: pp}, true
		}
	}
	for _, p := range m.Processes {
		if pp, ok := p.Outports[id]; ok {
			return Entity{Kind: KindProcessOutport, ID: id, Process: p, ProcessPort: pp}, true
		}
	}
	if v, ok := m.Variables[id]; ok {
		return Entity{Kind: KindVariable, ID: id, Variable: v}, true
	}
	for _, v := range m.Variables {
		for _, r := range v.Metadata.References {
			if r.ID == id {
				return Entity{Kind: KindVariableReference, ID: id, Variable: v, Reference: r}, true
			}
		}
	}
	return Entity{}, false
}

// VariableOf returns the variable owning reference refID.
func VariableOf(m *Model, refID string) (*Variable, bool) {
	e, ok := Resolve(m, refID)
	if !ok || e.Kind != KindVariableReference {
		return nil, false
	}
	return e.Variable, true
}
