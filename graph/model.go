// ABOUTME: Typed content of a graph-model document: ports, processes, connections, variables.
// ABOUTME: Provides constructors and the deep Clone used for copy-on-write mutation.

package graph

import (
	"github.com/google/uuid"
)

// Object types stamped on serialized content.
const (
	ObjectGraphModel         = "GRAPH_MODEL"
	ObjectGraphModelTemplate = "GRAPH_MODEL_TEMPLATE"
	ObjectInport             = "INPORT"
	ObjectOutport            = "OUTPORT"
	ObjectProcess            = "PROCESS"
	ObjectConnection         = "CONNECTION"
	ObjectBroadcastVariable  = "BROADCAST_VARIABLE"
	ObjectNamedVariable      = "NAMED_VARIABLE"
)

// ProcessType says what a process's ref points at.
type ProcessType string

const (
	ProcessingElement ProcessType = "PROCESSING_ELEMENT"
	GraphModelProcess ProcessType = "GRAPH_MODEL"
)

// PortType is the direction of a variable reference tap.
type PortType string

const (
	PortSource      PortType = "source"
	PortDestination PortType = "destination"
)

// Position is canvas placement metadata.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Port is a graph-scope inport or outport.
type Port struct {
	ObjectID          string   `json:"objectId"`
	ObjectType        string   `json:"objectType,omitempty"`
	Name              string   `json:"name"`
	RequiredTypes     []string `json:"requiredTypes,omitempty"`
	DesiredUnits      []string `json:"desiredUnits,omitempty"`
	Types             []string `json:"types,omitempty"`
	Unit              string   `json:"unit,omitempty"`
	GeneratesResponse string   `json:"generatesResponse,omitempty"`
	Metadata          Position `json:"metadata"`
	TemplateGroupID   string   `json:"templateGroupId,omitempty"`
	TemplateID        string   `json:"templateId,omitempty"`
}

// ProcessPort is one entry of a process's inport or outport map. Its id is the map key.
type ProcessPort struct {
	Ref             string `json:"ref"`
	TemplateGroupID string `json:"templateGroupId,omitempty"`
	TemplateID      string `json:"templateId,omitempty"`
}

// Process instantiates a processing element or another graph model.
type Process struct {
	ObjectID   string                  `json:"objectId"`
	ObjectType string                  `json:"objectType,omitempty"`
	Type       ProcessType             `json:"type"`
	Ref        string                  `json:"ref"`
	Inports    map[string]*ProcessPort `json:"inports"`
	Outports   map[string]*ProcessPort `json:"outports"`
	Label      string                  `json:"label,omitempty"`
	Metadata   Position                `json:"metadata"`
}

// ConnectionMetadata names the variable reference a connection terminates at.
type ConnectionMetadata struct {
	ReferenceSource      string `json:"referenceSource,omitempty"`
	ReferenceDestination string `json:"referenceDestination,omitempty"`
}

// Connection is a directed edge between two port ids. When one end is a variable,
// that endpoint holds the variable id and Metadata names the reference.
type Connection struct {
	ObjectID    string              `json:"objectId"`
	ObjectType  string              `json:"objectType,omitempty"`
	Source      string              `json:"source"`
	Destination string              `json:"destination"`
	Metadata    *ConnectionMetadata `json:"metadata,omitempty"`
}

// IsVariableLink reports whether the connection ends at a variable reference.
func (c *Connection) IsVariableLink() bool {
	return c.Metadata != nil && (c.Metadata.ReferenceSource != "" || c.Metadata.ReferenceDestination != "")
}

// Reference is one tap of a variable placed on the canvas.
type Reference struct {
	ID       string   `json:"id"`
	PortID   string   `json:"portId,omitempty"`
	PortType PortType `json:"portType"`
	Metadata Position `json:"metadata"`
}

// VariableMetadata holds the reference taps of a variable.
type VariableMetadata struct {
	References []*Reference `json:"references"`
}

// Variable is a broadcast or named signal with one or more reference taps.
type Variable struct {
	ObjectID   string           `json:"objectId"`
	ObjectType string           `json:"objectType"`
	Label      string           `json:"label"`
	Metadata   VariableMetadata `json:"metadata"`
}

// Model is the document body of a MODEL or MODELTEMPLATE tree node.
type Model struct {
	ObjectID    string                 `json:"objectId"`
	ObjectType  string                 `json:"objectType"`
	Metadata    map[string]any         `json:"metadata,omitempty"`
	Inports     map[string]*Port       `json:"inports"`
	Outports    map[string]*Port       `json:"outports"`
	Processes   map[string]*Process    `json:"processes"`
	Connections map[string]*Connection `json:"connections"`
	Variables   map[string]*Variable   `json:"variables"`
}

// NewModel returns a model with every element map empty.
func NewModel(id, objectType string) *Model {
	return &Model{
		ObjectID:    id,
		ObjectType:  objectType,
		Metadata:    map[string]any{},
		Inports:     map[string]*Port{},
		Outports:    map[string]*Port{},
		Processes:   map[string]*Process{},
		Connections: map[string]*Connection{},
		Variables:   map[string]*Variable{},
	}
}

// ContentType implements the tree content union.
func (m *Model) ContentType() string {
	return m.ObjectType
}

// Normalize replaces nil maps with empty ones so decoded content is safe to mutate.
func (m *Model) Normalize() {
	if m.Metadata == nil {
		m.Metadata = map[string]any{}
	}
	if m.Inports == nil {
		m.Inports = map[string]*Port{}
	}
	if m.Outports == nil {
		m.Outports = map[string]*Port{}
	}
	if m.Processes == nil {
		m.Processes = map[string]*Process{}
	}
	if m.Connections == nil {
		m.Connections = map[string]*Connection{}
	}
	if m.Variables == nil {
		m.Variables = map[string]*Variable{}
	}
	for _, p := range m.Processes {
		if p.Inports == nil {
			p.Inports = map[string]*ProcessPort{}
		}
		if p.Outports == nil {
			p.Outports = map[string]*ProcessPort{}
		}
	}
}

// Clone returns a deep copy sharing no mutable state with m.
func (m *Model) Clone() *Model {
	if m == nil {
		return nil
	}
	out := &Model{
		ObjectID:    m.ObjectID,
		ObjectType:  m.ObjectType,
		Metadata:    cloneAnyMap(m.Metadata),
		Inports:     make(map[string]*Port, len(m.Inports)),
		Outports:    make(map[string]*Port, len(m.Outports)),
		Processes:   make(map[string]*Process, len(m.Processes)),
		Connections: make(map[string]*Connection, len(m.Connections)),
		Variables:   make(map[string]*Variable, len(m.Variables)),
	}
	for id, p := range m.Inports {
		out.Inports[id] = p.Clone()
	}
	for id, p := range m.Outports {
		out.Outports[id] = p.Clone()
	}
	for id, p := range m.Processes {
		out.Processes[id] = p.Clone()
	}
	for id, c := range m.Connections {
		out.Connections[id] = c.Clone()
	}
	for id, v := range m.Variables {
		out.Variables[id] = v.Clone()
	}
	return out
}

// Clone copies a port.
func (p *Port) Clone() *Port {
	cp := *p
	cp.RequiredTypes = cloneStrings(p.RequiredTypes)
	cp.DesiredUnits = cloneStrings(p.DesiredUnits)
	cp.Types = cloneStrings(p.Types)
	return &cp
}

// Clone copies a process including its port maps.
func (p *Process) Clone() *Process {
	cp := *p
	cp.Inports = cloneProcessPorts(p.Inports)
	cp.Outports = cloneProcessPorts(p.Outports)
	return &cp
}

// Clone copies a connection.
func (c *Connection) Clone() *Connection {
	cp := *c
	if c.Metadata != nil {
		md := *c.Metadata
		cp.Metadata = &md
	}
	return &cp
}

// Clone copies a variable and its references.
func (v *Variable) Clone() *Variable {
	cp := *v
	cp.Metadata.References = make([]*Reference, len(v.Metadata.References))
	for i, r := range v.Metadata.References {
		rc := *r
		cp.Metadata.References[i] = &rc
	}
	return &cp
}

func cloneProcessPorts(in map[string]*ProcessPort) map[string]*ProcessPort {
	out := make(map[string]*ProcessPort, len(in))
	for id, pp := range in {
		cp := *pp
		out[id] = &cp
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneAnyMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneAny(v)
	}
	return out
}

func cloneAny(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneAnyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneAny(e)
		}
		return out
	default:
		return v
	}
}

// NewID returns a fresh element id.
func NewID() string {
	return uuid.NewString()
}
