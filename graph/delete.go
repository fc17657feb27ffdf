// ABOUTME: Type-dispatched deletion with cascades that keep connections and variables consistent.
// ABOUTME: Every delete is idempotent: unknown ids leave the model untouched.

package graph

import "sort"

// DeleteBySelection removes the selected element and everything that would dangle
// without it. Process ports are only removable when they belong to a template group,
// in which case the whole group goes.
func DeleteBySelection(m *Model, sel Selector) {
	switch sel.Type {
	case KindInport:
		if _, ok := m.Inports[sel.ID]; !ok {
			return
		}
		DeleteConnectionsByPort(m, sel.ID)
		delete(m.Inports, sel.ID)
	case KindOutport:
		if _, ok := m.Outports[sel.ID]; !ok {
			return
		}
		DeleteConnectionsByPort(m, sel.ID)
		delete(m.Outports, sel.ID)
	case KindProcess:
		p, ok := m.Processes[sel.ID]
		if !ok {
			return
		}
		for _, id := range processPortIDs(p) {
			DeleteConnectionsByPort(m, id)
		}
		delete(m.Processes, sel.ID)
	case KindProcessInport, KindProcessOutport:
		deleteTemplatePort(m, sel)
	case KindVariable:
		v, ok := m.Variables[sel.ID]
		if !ok {
			return
		}
		refs := make([]string, 0, len(v.Metadata.References))
		for _, r := range v.Metadata.References {
			refs = append(refs, r.ID)
		}
		for _, id := range refs {
			deleteReference(m, id)
		}
		removeVariable(m, sel.ID)
	case KindVariableReference:
		deleteReference(m, sel.ID)
	}
}

// DeleteConnectionsByPort removes every connection touching portID. A connection that
// ends at a variable reference takes the reference with it, which may in turn remove
// the variable.
func DeleteConnectionsByPort(m *Model, portID string) {
	for _, cid := range sortedKeys(m.Connections) {
		c, ok := m.Connections[cid]
		if !ok || (c.Source != portID && c.Destination != portID) {
			continue
		}
		if c.IsVariableLink() {
			switch {
			case c.Source == portID && c.Metadata.ReferenceDestination != "":
				deleteReference(m, c.Metadata.ReferenceDestination)
			case c.Destination == portID && c.Metadata.ReferenceSource != "":
				deleteReference(m, c.Metadata.ReferenceSource)
			}
		}
		delete(m.Connections, cid)
	}
}

func deleteTemplatePort(m *Model, sel Selector) {
	for _, p := range m.Processes {
		ports := p.Inports
		if sel.Type == KindProcessOutport {
			ports = p.Outports
		}
		pp, ok := ports[sel.ID]
		if !ok || pp.TemplateGroupID == "" {
			continue
		}
		DeleteConnectionsByPort(m, sel.ID)
		deletePortsByTemplateGroup(m, pp.TemplateGroupID)
	}
}

func deletePortsByTemplateGroup(m *Model, groupID string) {
	for _, p := range m.Processes {
		for _, ports := range []map[string]*ProcessPort{p.Inports, p.Outports} {
			for _, id := range sortedKeys(ports) {
				if ports[id].TemplateGroupID != groupID {
					continue
				}
				DeleteConnectionsByPort(m, id)
				delete(ports, id)
			}
		}
	}
}

func deleteReference(m *Model, refID string) {
	for vid, v := range m.Variables {
		idx := -1
		for i, r := range v.Metadata.References {
			if r.ID == refID {
				idx = i
				break
			}
		}
		if idx < 0 {
			continue
		}
		for cid, c := range m.Connections {
			if c.Metadata != nil && (c.Metadata.ReferenceSource == refID || c.Metadata.ReferenceDestination == refID) {
				delete(m.Connections, cid)
			}
		}
		v.Metadata.References = append(v.Metadata.References[:idx], v.Metadata.References[idx+1:]...)
		if len(v.Metadata.References) == 0 {
			removeVariable(m, vid)
		}
		return
	}
}

func removeVariable(m *Model, vid string) {
	for cid, c := range m.Connections {
		if c.Source == vid || c.Destination == vid {
			delete(m.Connections, cid)
		}
	}
	delete(m.Variables, vid)
}

func processPortIDs(p *Process) []string {
	ids := make([]string, 0, len(p.Inports)+len(p.Outports))
	ids = append(ids, sortedKeys(p.Inports)...)
	ids = append(ids, sortedKeys(p.Outports)...)
	return ids
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
