// ABOUTME: Connection validation rules and whole-model integrity checks.
// ABOUTME: Rejects self loops, duplicates, wrong direction, and cycles through process chains.

package graph

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrSelfLoop indicates a connection whose source and destination are the same.
	ErrSelfLoop = errors.New("connection goes nowhere")

	// ErrDuplicateConnection indicates an identical source/destination pair already exists.
	ErrDuplicateConnection = errors.New("connection already exists")

	// ErrWrongDirection indicates the source cannot emit or the destination cannot receive.
	ErrWrongDirection = errors.New("connection must run from a source to a destination")

	// ErrCircular indicates the connection would close a loop through processes.
	ErrCircular = errors.New("connection would create a cycle")
)

// ValidateConnection checks a prospective source -> destination connection.
func ValidateConnection(m *Model, source, destination string) error {
	if source == destination {
		return ErrSelfLoop
	}
	for _, c := range m.Connections {
		if c.Source == source && c.Destination == destination {
			return ErrDuplicateConnection
		}
	}
	src, ok := Resolve(m, source)
	if !ok {
		return &NotFoundError{ID: source}
	}
	dst, ok := Resolve(m, destination)
	if !ok {
		return &NotFoundError{ID: destination}
	}
	if !src.IsSource() || !dst.IsDestination() {
		return fmt.Errorf("%w: %s -> %s", ErrWrongDirection, src.Kind, dst.Kind)
	}
	if dst.Kind != KindProcessInport || src.Kind == KindInport {
		return nil
	}
	candidate := &Connection{Source: source, Destination: destination}
	if reaches(m, candidate, destination) {
		return ErrCircular
	}
	return nil
}

// reaches walks downstream from the process owning start and reports whether any
// connection on the way lands on start again.
func reaches(m *Model, extra *Connection, start string) bool {
	bySource := map[string][]*Connection{}
	for _, c := range m.Connections {
		bySource[c.Source] = append(bySource[c.Source], c)
	}
	bySource[extra.Source] = append(bySource[extra.Source], extra)

	visited := map[string]bool{}
	var walk func(portID string) bool
	walk = func(portID string) bool {
		e, ok := Resolve(m, portID)
		if !ok || e.Kind != KindProcessInport || visited[e.Process.ObjectID] {
			return false
		}
		visited[e.Process.ObjectID] = true
		for outID := range e.Process.Outports {
			for _, c := range bySource[outID] {
				if c.Destination == start || walk(c.Destination) {
					return true
				}
			}
		}
		return false
	}
	return walk(start)
}

// IntegrityError describes one broken invariant.
type IntegrityError struct {
	ElementID string
	Problem   string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("%s: %s", e.ElementID, e.Problem)
}

// CheckIntegrity returns every dangling connection endpoint and every variable
// without references, sorted by element id.
func CheckIntegrity(m *Model) []*IntegrityError {
	var problems []*IntegrityError
	for id, c := range m.Connections {
		if _, ok := Resolve(m, c.Source); !ok {
			problems = append(problems, &IntegrityError{ElementID: id, Problem: "source " + c.Source + " does not resolve"})
		}
		if _, ok := Resolve(m, c.Destination); !ok {
			problems = append(problems, &IntegrityError{ElementID: id, Problem: "destination " + c.Destination + " does not resolve"})
		}
		if c.Metadata != nil {
			for _, ref := range []string{c.Metadata.ReferenceSource, c.Metadata.ReferenceDestination} {
				if ref == "" {
					continue
				}
				if _, ok := VariableOf(m, ref); !ok {
					problems = append(problems, &IntegrityError{ElementID: id, Problem: "variable reference " + ref + " does not resolve"})
				}
			}
		}
	}
	for id, v := range m.Variables {
		if len(v.Metadata.References) == 0 {
			problems = append(problems, &IntegrityError{ElementID: id, Problem: "variable has no references"})
		}
	}
	sort.Slice(problems, func(i, j int) bool {
		if problems[i].ElementID != problems[j].ElementID {
			return problems[i].ElementID < problems[j].ElementID
		}
		return problems[i].Problem < problems[j].Problem
	})
	return problems
}
