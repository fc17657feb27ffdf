// ABOUTME: Copy of selected canvas elements from one graph model into another (or the same) model.
// ABOUTME: Every pasted element gets a fresh id; only connections inside the selection are carried.

package clone

import (
	"sort"

	"github.com/2389-research/flowgraph/graph"
)

// PasteElements inserts copies of the elements sels addresses in src into dst and
// returns a selector for every new inport, outport, process, and variable reference.
// Inports, outports, processes and references are shifted by offset. With sameGraph,
// pasted references join their existing variable; otherwise each source variable is
// copied once under a unique label. src is only read and may be dst.
func PasteElements(src, dst *graph.Model, sels []graph.Selector, sameGraph bool, offset graph.Position) []graph.Selector {
	ids := map[string]string{}
	var created []graph.Selector
	shift := func(p graph.Position) graph.Position {
		return graph.Position{X: p.X + offset.X, Y: p.Y + offset.Y}
	}

	var refs []graph.Selector
	for _, sel := range sels {
		switch sel.Type {
		case graph.KindInport, graph.KindOutport:
			ports := src.Inports
			target := dst.Inports
			if sel.Type == graph.KindOutport {
				ports, target = src.Outports, dst.Outports
			}
			p, ok := ports[sel.ID]
			if !ok || ids[sel.ID] != "" {
				continue
			}
			cp := p.Clone()
			cp.ObjectID = graph.NewID()
			cp.Metadata = shift(p.Metadata)
			cp.Name = graph.UniqueName(target, p.Name)
			target[cp.ObjectID] = cp
			ids[sel.ID] = cp.ObjectID
			created = append(created, graph.Selector{Type: sel.Type, ID: cp.ObjectID})

		case graph.KindProcess:
			p, ok := src.Processes[sel.ID]
			if !ok || ids[sel.ID] != "" {
				continue
			}
			cp := &graph.Process{
				ObjectID:   graph.NewID(),
				ObjectType: p.ObjectType,
				Type:       p.Type,
				Ref:        p.Ref,
				Label:      p.Label,
				Metadata:   shift(p.Metadata),
				Inports:    map[string]*graph.ProcessPort{},
				Outports:   map[string]*graph.ProcessPort{},
			}
			if cp.Label != "" {
				cp.Label = graph.UniqueProcessLabel(dst.Processes, p.Label)
			}
			groups := map[string]string{}
			for ppID, pp := range p.Inports {
				ids[ppID] = graph.NewID()
				cp.Inports[ids[ppID]] = regroup(pp, groups)
			}
			for ppID, pp := range p.Outports {
				ids[ppID] = graph.NewID()
				cp.Outports[ids[ppID]] = regroup(pp, groups)
			}
			dst.Processes[cp.ObjectID] = cp
			ids[sel.ID] = cp.ObjectID
			created = append(created, graph.Selector{Type: graph.KindProcess, ID: cp.ObjectID})

		case graph.KindVariableReference:
			refs = append(refs, sel)
		}
	}

	for _, sel := range refs {
		v, ok := graph.VariableOf(src, sel.ID)
		if !ok || ids[sel.ID] != "" {
			continue
		}
		ref := findReference(v, sel.ID)

		var target *graph.Variable
		if sameGraph {
			target = dst.Variables[v.ObjectID]
			ids[v.ObjectID] = v.ObjectID
		} else if newID, ok := ids[v.ObjectID]; ok {
			target = dst.Variables[newID]
		} else {
			target = &graph.Variable{
				ObjectID:   graph.NewID(),
				ObjectType: v.ObjectType,
				Label:      graph.UniqueVariableLabel(dst.Variables, v.Label),
			}
			dst.Variables[target.ObjectID] = target
			ids[v.ObjectID] = target.ObjectID
		}
		if target == nil {
			continue
		}
		cp := &graph.Reference{
			ID:       graph.NewID(),
			PortType: ref.PortType,
			Metadata: shift(ref.Metadata),
		}
		if ref.PortID != "" {
			cp.PortID = target.ObjectID
		}
		target.Metadata.References = append(target.Metadata.References, cp)
		ids[sel.ID] = cp.ID
		created = append(created, graph.Selector{Type: graph.KindVariableReference, ID: cp.ID})
	}

	for _, id := range sortedIDs(src.Connections) {
		c := src.Connections[id]
		if !carried(c, ids) {
			continue
		}
		cp := c.Clone()
		cp.ObjectID = graph.NewID()
		cp.Source = ids[c.Source]
		cp.Destination = ids[c.Destination]
		if cp.Metadata != nil {
			if cp.Metadata.ReferenceSource != "" {
				cp.Metadata.ReferenceSource = ids[c.Metadata.ReferenceSource]
			}
			if cp.Metadata.ReferenceDestination != "" {
				cp.Metadata.ReferenceDestination = ids[c.Metadata.ReferenceDestination]
			}
		}
		dst.Connections[cp.ObjectID] = cp
	}
	return created
}

// carried reports whether both ends of c were pasted. A variable end counts only
// when the reference it lands on was pasted too.
func carried(c *graph.Connection, ids map[string]string) bool {
	if ids[c.Source] == "" || ids[c.Destination] == "" {
		return false
	}
	if c.Metadata == nil {
		return true
	}
	for _, ref := range []string{c.Metadata.ReferenceSource, c.Metadata.ReferenceDestination} {
		if ref != "" && ids[ref] == "" {
			return false
		}
	}
	return true
}

func findReference(v *graph.Variable, refID string) *graph.Reference {
	for _, r := range v.Metadata.References {
		if r.ID == refID {
			return r
		}
	}
	return &graph.Reference{ID: refID}
}

func regroup(pp *graph.ProcessPort, groups map[string]string) *graph.ProcessPort {
	cp := *pp
	if pp.TemplateGroupID != "" {
		g, ok := groups[pp.TemplateGroupID]
		if !ok {
			g = graph.NewID()
			groups[pp.TemplateGroupID] = g
		}
		cp.TemplateGroupID = g
	}
	return &cp
}

func sortedIDs[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
