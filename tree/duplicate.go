// ABOUTME: Duplication of a tree node under a new parent with every internal id regenerated.
// ABOUTME: Graph content keeps its topology; simulation scenarios are re-keyed.

package tree

import (
	"github.com/2389-research/flowgraph/graph"
	"github.com/google/uuid"
)

// Duplicate returns a version-1 copy of src placed under parentID. The copy shares
// no id with the source: graph elements are re-keyed with connections and variable
// references remapped, and simulation scenarios get fresh ids.
func Duplicate(src *Node, parentID, name, ownerID string) *Node {
	n := src.Clone()
	n.ID = uuid.NewString()
	n.ParentID = parentID
	n.Name = name
	n.OwnerID = ownerID
	n.OwnerName = ""
	n.Version = 1
	n.ReleaseNr = 0
	n.TrashedDate = nil

	switch c := n.Content.(type) {
	case *graph.Model:
		n.Content = RekeyModel(c, n.ID)
	case RawContent:
		n.Content = rekeyRaw(c, n.ID)
	}
	if n.Type == Model {
		n.ProcessDependencies = ProcessGraphModelIDs(n)
		n.ProcessInterface = GeneratePID(n)
	}
	return n
}

// RekeyModel returns a copy of m whose object id is objectID and whose every port,
// process, process port, connection, variable and reference id is fresh.
func RekeyModel(m *graph.Model, objectID string) *graph.Model {
	ids := map[string]string{}
	fresh := func(old string) string {
		if id, ok := ids[old]; ok {
			return id
		}
		id := graph.NewID()
		ids[old] = id
		return id
	}
	remap := func(old string) string {
		if id, ok := ids[old]; ok {
			return id
		}
		return old
	}

	out := graph.NewModel(objectID, m.ObjectType)
	for k, v := range m.Metadata {
		out.Metadata[k] = v
	}
	for id, p := range m.Inports {
		cp := p.Clone()
		cp.ObjectID = fresh(id)
		out.Inports[cp.ObjectID] = cp
	}
	for id, p := range m.Outports {
		cp := p.Clone()
		cp.ObjectID = fresh(id)
		out.Outports[cp.ObjectID] = cp
	}
	groups := map[string]string{}
	for id, p := range m.Processes {
		cp := &graph.Process{
			ObjectID:   fresh(id),
			ObjectType: p.ObjectType,
			Type:       p.Type,
			Ref:        p.Ref,
			Label:      p.Label,
			Metadata:   p.Metadata,
			Inports:    map[string]*graph.ProcessPort{},
			Outports:   map[string]*graph.ProcessPort{},
		}
		for ppID, pp := range p.Inports {
			cp.Inports[fresh(ppID)] = rekeyProcessPort(pp, groups)
		}
		for ppID, pp := range p.Outports {
			cp.Outports[fresh(ppID)] = rekeyProcessPort(pp, groups)
		}
		out.Processes[cp.ObjectID] = cp
	}
	for id, v := range m.Variables {
		cp := v.Clone()
		cp.ObjectID = fresh(id)
		for _, r := range cp.Metadata.References {
			r.ID = fresh(r.ID)
			r.PortID = cp.ObjectID
		}
		out.Variables[cp.ObjectID] = cp
	}
	for id, c := range m.Connections {
		cp := c.Clone()
		cp.ObjectID = fresh(id)
		cp.Source = remap(c.Source)
		cp.Destination = remap(c.Destination)
		if cp.Metadata != nil {
			if cp.Metadata.ReferenceSource != "" {
				cp.Metadata.ReferenceSource = remap(cp.Metadata.ReferenceSource)
			}
			if cp.Metadata.ReferenceDestination != "" {
				cp.Metadata.ReferenceDestination = remap(cp.Metadata.ReferenceDestination)
			}
		}
		out.Connections[cp.ObjectID] = cp
	}
	return out
}

func rekeyProcessPort(pp *graph.ProcessPort, groups map[string]string) *graph.ProcessPort {
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

func rekeyRaw(c RawContent, objectID string) Content {
	doc, err := c.Tree()
	if err != nil || doc == nil {
		return c
	}
	if _, ok := doc["objectId"]; ok {
		doc["objectId"] = objectID
	}
	if scenarios, ok := doc["scenarios"].(map[string]any); ok {
		rekeyed := make(map[string]any, len(scenarios))
		for _, s := range scenarios {
			id := uuid.NewString()
			if sm, ok := s.(map[string]any); ok {
				sm["scenarioId"] = id
				sm["objectId"] = id
			}
			rekeyed[id] = s
		}
		doc["scenarios"] = rekeyed
	}
	raw, err := RawFromTree(doc)
	if err != nil {
		return c
	}
	return raw
}
