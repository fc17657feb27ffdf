// ABOUTME: Process interface descriptions and reconciliation of processes against them.
// ABOUTME: Synchronize adds missing process ports, drops stale ones, and prunes dangling connections.

package graph

// ObjectInterfaceDescription marks a serialized InterfaceDescription.
const ObjectInterfaceDescription = "PROCESS_INTERFACE_DESCRIPTION"

// PortTemplate is a reusable bundle of process ports added as one group.
type PortTemplate struct {
	ID               string           `json:"id"`
	Name             string           `json:"name,omitempty"`
	InportTemplates  map[string]*Port `json:"inportTemplates"`
	OutportTemplates map[string]*Port `json:"outportTemplates"`
}

// InterfaceDescription (PID) is the externally visible port summary of a graph model
// or processing element.
type InterfaceDescription struct {
	ObjectID       string                   `json:"objectId"`
	ObjectType     string                   `json:"objectType"`
	Implementation ProcessType              `json:"implementation"`
	Name           string                   `json:"name"`
	Description    string                   `json:"description,omitempty"`
	Inports        map[string]*Port         `json:"inports"`
	Outports       map[string]*Port         `json:"outports"`
	PortTemplates  map[string]*PortTemplate `json:"portTemplates"`
	ParentID       string                   `json:"parentId,omitempty"`
	VersionID      string                   `json:"versionId,omitempty"`
}

// Clone deep-copies the description.
func (d *InterfaceDescription) Clone() *InterfaceDescription {
	if d == nil {
		return nil
	}
	cp := *d
	cp.Inports = clonePorts(d.Inports)
	cp.Outports = clonePorts(d.Outports)
	cp.PortTemplates = make(map[string]*PortTemplate, len(d.PortTemplates))
	for id, t := range d.PortTemplates {
		tc := *t
		tc.InportTemplates = clonePorts(t.InportTemplates)
		tc.OutportTemplates = clonePorts(t.OutportTemplates)
		cp.PortTemplates[id] = &tc
	}
	return &cp
}

func clonePorts(in map[string]*Port) map[string]*Port {
	out := make(map[string]*Port, len(in))
	for id, p := range in {
		out[id] = p.Clone()
	}
	return out
}

// InterfaceLookup finds the description a process instantiates.
type InterfaceLookup func(p *Process) (*InterfaceDescription, bool)

// Synchronize reconciles every process with its description and prunes connections
// left dangling. It reports whether anything changed.
func Synchronize(m *Model, lookup InterfaceLookup) bool {
	changed := false
	for _, id := range sortedKeys(m.Processes) {
		p := m.Processes[id]
		if pid, ok := lookup(p); ok {
			changed = SynchronizeProcess(p, pid) || changed
		}
	}
	return SynchronizeConnections(m) || changed
}

// SynchronizeProcess adds a process port for every interface port not yet referenced
// and removes process ports whose ref exists neither in the interface nor in the
// template they were instantiated from.
func SynchronizeProcess(p *Process, pid *InterfaceDescription) bool {
	changed := addMissingPorts(p.Inports, pid.Inports)
	changed = addMissingPorts(p.Outports, pid.Outports) || changed

	for id, pp := range p.Inports {
		if !definedIn(pid, pp, true) {
			delete(p.Inports, id)
			changed = true
		}
	}
	for id, pp := range p.Outports {
		if !definedIn(pid, pp, false) {
			delete(p.Outports, id)
			changed = true
		}
	}
	return changed
}

func addMissingPorts(ports map[string]*ProcessPort, defs map[string]*Port) bool {
	changed := false
	for _, ref := range sortedKeys(defs) {
		found := false
		for _, pp := range ports {
			if pp.Ref == ref {
				found = true
				break
			}
		}
		if !found {
			ports[NewID()] = &ProcessPort{Ref: ref}
			changed = true
		}
	}
	return changed
}

func definedIn(pid *InterfaceDescription, pp *ProcessPort, inport bool) bool {
	defs := pid.Outports
	if inport {
		defs = pid.Inports
	}
	if _, ok := defs[pp.Ref]; ok {
		return true
	}
	tmpl, ok := pid.PortTemplates[pp.TemplateID]
	if !ok {
		return false
	}
	tdefs := tmpl.OutportTemplates
	if inport {
		tdefs = tmpl.InportTemplates
	}
	_, ok = tdefs[pp.Ref]
	return ok
}

// SynchronizeConnections removes connections with an endpoint that no longer
// resolves, or whose variable reference has disappeared.
func SynchronizeConnections(m *Model) bool {
	changed := false
	for id, c := range m.Connections {
		if connectionResolves(m, c) {
			continue
		}
		delete(m.Connections, id)
		changed = true
	}
	return changed
}

func connectionResolves(m *Model, c *Connection) bool {
	if _, ok := Resolve(m, c.Source); !ok {
		return false
	}
	if _, ok := Resolve(m, c.Destination); !ok {
		return false
	}
	if c.Metadata != nil {
		for _, ref := range []string{c.Metadata.ReferenceSource, c.Metadata.ReferenceDestination} {
			if ref == "" {
				continue
			}
			if _, ok := VariableOf(m, ref); !ok {
				return false
			}
		}
	}
	return true
}
