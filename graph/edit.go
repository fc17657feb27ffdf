// ABOUTME: Editing operations applied to a draft model inside a mutation.
// ABOUTME: Covers ports, processes, port templates, moves, connections, variables, and renames.

package graph

import (
	"errors"
	"fmt"
)

// ErrNotPort indicates AddPort was asked for something other than an inport or outport.
var ErrNotPort = errors.New("only graph inports and outports can be added")

// Default names for freshly dropped ports and variables.
const (
	DefaultInportName     = "Input"
	DefaultOutportName    = "Output"
	DefaultBroadcastLabel = "New"
	DefaultNamedLabel     = "Named Variable"
)

// AddPort drops a new graph inport or outport at pos and returns its id.
func AddPort(m *Model, kind Kind, pos Position) (string, error) {
	id := NewID()
	switch kind {
	case KindInport:
		m.Inports[id] = &Port{
			ObjectID:          id,
			ObjectType:        ObjectInport,
			Name:              UniqueName(m.Inports, DefaultInportName),
			RequiredTypes:     []string{},
			DesiredUnits:      []string{},
			GeneratesResponse: "PASSTHROUGH",
			Metadata:          pos,
		}
	case KindOutport:
		m.Outports[id] = &Port{
			ObjectID:          id,
			ObjectType:        ObjectOutport,
			Name:              UniqueName(m.Outports, DefaultOutportName),
			Types:             []string{},
			GeneratesResponse: "PASSTHROUGH",
			Metadata:          pos,
		}
	default:
		return "", fmt.Errorf("%w: %s", ErrNotPort, kind)
	}
	return id, nil
}

// AddProcess instantiates pid as a process with one process port per interface port.
func AddProcess(m *Model, pid *InterfaceDescription, label string, pos Position) string {
	id := NewID()
	p := &Process{
		ObjectID:   id,
		ObjectType: ObjectProcess,
		Type:       pid.Implementation,
		Ref:        pid.ObjectID,
		Inports:    map[string]*ProcessPort{},
		Outports:   map[string]*ProcessPort{},
		Label:      label,
		Metadata:   pos,
	}
	if p.Type == "" {
		p.Type = ProcessingElement
	}
	for _, ref := range sortedKeys(pid.Inports) {
		p.Inports[NewID()] = &ProcessPort{Ref: ref}
	}
	for _, ref := range sortedKeys(pid.Outports) {
		p.Outports[NewID()] = &ProcessPort{Ref: ref}
	}
	m.Processes[id] = p
	return id
}

// AddPortTemplate instantiates every port of tmpl on the process under one fresh
// template group id, which it returns.
func AddPortTemplate(m *Model, processID string, tmpl *PortTemplate) (string, error) {
	p, ok := m.Processes[processID]
	if !ok {
		return "", &NotFoundError{ID: processID}
	}
	group := NewID()
	for _, t := range sortedValues(tmpl.InportTemplates) {
		p.Inports[NewID()] = &ProcessPort{Ref: t.ObjectID, TemplateID: tmpl.ID, TemplateGroupID: group}
	}
	for _, t := range sortedValues(tmpl.OutportTemplates) {
		p.Outports[NewID()] = &ProcessPort{Ref: t.ObjectID, TemplateID: tmpl.ID, TemplateGroupID: group}
	}
	return group, nil
}

// Move sets the canvas position of a port, process, or variable reference.
func Move(m *Model, id string, pos Position) error {
	e, ok := Resolve(m, id)
	if !ok {
		return &NotFoundError{ID: id}
	}
	switch e.Kind {
	case KindInport, KindOutport:
		e.Port.Metadata = pos
	case KindProcess:
		e.Process.Metadata = pos
	case KindVariableReference:
		e.Reference.Metadata = pos
	default:
		return fmt.Errorf("cannot move %s %s", e.Kind, id)
	}
	return nil
}

// Connect validates and adds a connection, returning its id.
func Connect(m *Model, source, destination string) (string, error) {
	if err := ValidateConnection(m, source, destination); err != nil {
		return "", err
	}
	id := NewID()
	m.Connections[id] = &Connection{
		ObjectID:    id,
		ObjectType:  ObjectConnection,
		Source:      source,
		Destination: destination,
	}
	return id, nil
}

// AddBroadcastVariable creates a broadcast variable fed by originPortID.
func AddBroadcastVariable(m *Model, originPortID string, pos Position) (string, string, error) {
	return addVariable(m, originPortID, ObjectBroadcastVariable, DefaultBroadcastLabel, pos)
}

// AddNamedVariable creates a named variable fed by originPortID. The label gets "_1"
// appended until it is free.
func AddNamedVariable(m *Model, originPortID string, pos Position) (string, string, error) {
	label := DefaultNamedLabel
	for labelTaken(m, label) {
		label += "_1"
	}
	return addVariable(m, originPortID, ObjectNamedVariable, label, pos)
}

func labelTaken(m *Model, label string) bool {
	for _, v := range m.Variables {
		if v.Label == label {
			return true
		}
	}
	return false
}

func addVariable(m *Model, originPortID, objectType, label string, pos Position) (string, string, error) {
	if _, ok := Resolve(m, originPortID); !ok {
		return "", "", &NotFoundError{ID: originPortID}
	}
	varID, refID, connID := NewID(), NewID(), NewID()
	m.Variables[varID] = &Variable{
		ObjectID:   varID,
		ObjectType: objectType,
		Label:      label,
		Metadata: VariableMetadata{References: []*Reference{{
			ID:       refID,
			PortID:   varID,
			PortType: PortDestination,
			Metadata: pos,
		}}},
	}
	m.Connections[connID] = &Connection{
		ObjectID:    connID,
		ObjectType:  ObjectConnection,
		Source:      originPortID,
		Destination: varID,
		Metadata:    &ConnectionMetadata{ReferenceDestination: refID},
	}
	return varID, refID, nil
}

// LinkToVariable adds a new reference tap on variableID connected to originPortID.
// An origin that emits gets a destination tap; an origin that receives gets a source tap.
func LinkToVariable(m *Model, originPortID string, originType PortType, variableID string, pos Position) (string, error) {
	v, ok := m.Variables[variableID]
	if !ok {
		return "", &NotFoundError{ID: variableID}
	}
	if _, ok := Resolve(m, originPortID); !ok {
		return "", &NotFoundError{ID: originPortID}
	}
	refID, connID := NewID(), NewID()
	conn := &Connection{ObjectID: connID, ObjectType: ObjectConnection}
	ref := &Reference{ID: refID, PortID: variableID, Metadata: pos}
	if originType == PortSource {
		ref.PortType = PortDestination
		conn.Source, conn.Destination = originPortID, variableID
		conn.Metadata = &ConnectionMetadata{ReferenceDestination: refID}
	} else {
		ref.PortType = PortSource
		conn.Source, conn.Destination = variableID, originPortID
		conn.Metadata = &ConnectionMetadata{ReferenceSource: refID}
	}
	v.Metadata.References = append(v.Metadata.References, ref)
	m.Connections[connID] = conn
	return refID, nil
}

// RenamePort sets the name of a graph inport or outport.
func RenamePort(m *Model, id, name string) error {
	e, ok := Resolve(m, id)
	if !ok || (e.Kind != KindInport && e.Kind != KindOutport) {
		return &NotFoundError{ID: id}
	}
	e.Port.Name = name
	return nil
}

// SetProcessLabel sets the label of a process.
func SetProcessLabel(m *Model, id, label string) error {
	p, ok := m.Processes[id]
	if !ok {
		return &NotFoundError{ID: id}
	}
	p.Label = label
	return nil
}

// SetVariableLabel relabels a variable addressed by its own id or one of its references.
func SetVariableLabel(m *Model, id, label string) error {
	e, ok := Resolve(m, id)
	if !ok || (e.Kind != KindVariable && e.Kind != KindVariableReference) {
		return &NotFoundError{ID: id}
	}
	e.Variable.Label = label
	return nil
}

func sortedValues(in map[string]*Port) []*Port {
	out := make([]*Port, 0, len(in))
	for _, k := range sortedKeys(in) {
		out = append(out, in[k])
	}
	return out
}
