// ABOUTME: Versioned tree nodes and the tagged content union they carry.
// ABOUTME: MODEL and MODELTEMPLATE content decodes to graph.Model; other types stay raw JSON.

package tree

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/2389-research/flowgraph/graph"
	"github.com/google/uuid"
)

// NodeType discriminates what a tree node holds.
type NodeType string

const (
	Folder           NodeType = "FOLDER"
	Model            NodeType = "MODEL"
	ModelTemplate    NodeType = "MODELTEMPLATE"
	Simulation       NodeType = "SIMULATION"
	SimulationResult NodeType = "SIMULATIONRESULT"
	FCSheet          NodeType = "FC_SHEET"
	Meta             NodeType = "META"
)

// Valid reports whether t is a known node type.
func (t NodeType) Valid() bool {
	switch t {
	case Folder, Model, ModelTemplate, Simulation, SimulationResult, FCSheet, Meta:
		return true
	}
	return false
}

// HasGraph reports whether nodes of type t carry graph-model content.
func (t NodeType) HasGraph() bool {
	return t == Model || t == ModelTemplate
}

// AccessControl is the sharing mode of a node.
type AccessControl string

const (
	Private         AccessControl = "PRIVATE"
	PublicReadOnly  AccessControl = "PUBLIC_READ_ONLY"
	PublicReadWrite AccessControl = "PUBLIC_READ_WRITE"
	Advanced        AccessControl = "ADVANCED"
	Inherit         AccessControl = "INHERIT"
)

// Permissions granted on a node to the current user.
const (
	PermRead   = "READ"
	PermCreate = "CREATE"
	PermModify = "MODIFY"
	PermDelete = "DELETE"
)

// RootID is the virtual parent of every top-level node.
const RootID = "root"

// Content is the body of a node. Exactly two implementations exist: *graph.Model
// and RawContent.
type Content interface {
	ContentType() string
}

// RawContent is content this package does not model, kept as its JSON encoding.
type RawContent json.RawMessage

// ContentType returns the objectType field of the raw document, if any.
func (r RawContent) ContentType() string {
	var head struct {
		ObjectType string `json:"objectType"`
	}
	if err := json.Unmarshal(r, &head); err != nil {
		return ""
	}
	return head.ObjectType
}

// MarshalJSON emits the raw document unchanged.
func (r RawContent) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return r, nil
}

// Tree decodes the raw document into maps and slices.
func (r RawContent) Tree() (map[string]any, error) {
	var out map[string]any
	if err := json.Unmarshal(r, &out); err != nil {
		return nil, fmt.Errorf("decode raw content: %w", err)
	}
	return out, nil
}

// RawFromTree encodes a decoded document back into RawContent.
func RawFromTree(v any) (RawContent, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode raw content: %w", err)
	}
	return RawContent(data), nil
}

// DecodeContent decodes raw JSON content according to the node type. Empty input
// and JSON null yield nil content.
func DecodeContent(t NodeType, raw []byte) (Content, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if t.HasGraph() {
		var m graph.Model
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("decode graph model: %w", err)
		}
		m.Normalize()
		return &m, nil
	}
	cp := make([]byte, len(raw))
	copy(cp, raw)
	return RawContent(cp), nil
}

// Node is one versioned document of the tree.
type Node struct {
	ID                           string                      `json:"id"`
	ParentID                     string                      `json:"parentId,omitempty"`
	Name                         string                      `json:"name"`
	Type                         NodeType                    `json:"type"`
	Version                      int64                       `json:"version"`
	ReleaseNr                    int                         `json:"releaseNr,omitempty"`
	Content                      Content                     `json:"content"`
	OwnerID                      string                      `json:"ownerId,omitempty"`
	OwnerName                    string                      `json:"ownerName,omitempty"`
	Description                  string                      `json:"description,omitempty"`
	AccessControl                AccessControl               `json:"accessControl"`
	TrashedDate                  *time.Time                  `json:"trashedDate,omitempty"`
	CurrentUserAccessPermissions []string                    `json:"currentUserAccessPermissions,omitempty"`
	ProcessInterface             *graph.InterfaceDescription `json:"processInterface,omitempty"`
	ProcessDependencies          []string                    `json:"processDependencies,omitempty"`
}

// UnmarshalJSON decodes a node, dispatching content on the node type.
func (n *Node) UnmarshalJSON(data []byte) error {
	type alias Node
	aux := struct {
		*alias
		Content json.RawMessage `json:"content"`
	}{alias: (*alias)(n)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	content, err := DecodeContent(n.Type, aux.Content)
	if err != nil {
		return fmt.Errorf("node %s: %w", n.ID, err)
	}
	n.Content = content
	return nil
}

// Graph returns the graph-model content of the node.
func (n *Node) Graph() (*graph.Model, bool) {
	if n == nil {
		return nil, false
	}
	m, ok := n.Content.(*graph.Model)
	return m, ok && m != nil
}

// Trashed reports whether the node has been soft-deleted.
func (n *Node) Trashed() bool {
	return n.TrashedDate != nil
}

// Clone returns a deep copy of the node.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	cp := *n
	cp.Content = CloneContent(n.Content)
	if n.TrashedDate != nil {
		d := *n.TrashedDate
		cp.TrashedDate = &d
	}
	cp.CurrentUserAccessPermissions = cloneStrings(n.CurrentUserAccessPermissions)
	cp.ProcessDependencies = cloneStrings(n.ProcessDependencies)
	cp.ProcessInterface = n.ProcessInterface.Clone()
	return &cp
}

// CloneContent deep-copies either member of the content union.
func CloneContent(c Content) Content {
	switch t := c.(type) {
	case *graph.Model:
		return t.Clone()
	case RawContent:
		cp := make(RawContent, len(t))
		copy(cp, t)
		return cp
	}
	return nil
}

// NewNode builds a fresh version-1 node. Graph-bearing types start with empty
// model content, folders are PRIVATE and everything else inherits its access.
func NewNode(parentID, name string, t NodeType, ownerID string) *Node {
	n := &Node{
		ID:            uuid.NewString(),
		ParentID:      parentID,
		Name:          name,
		Type:          t,
		Version:       1,
		OwnerID:       ownerID,
		AccessControl: Inherit,
		CurrentUserAccessPermissions: []string{
			PermRead, PermCreate, PermModify, PermDelete,
		},
	}
	switch t {
	case Folder:
		n.AccessControl = Private
	case Model:
		n.Content = graph.NewModel(n.ID, graph.ObjectGraphModel)
		n.ProcessDependencies = []string{}
		n.ProcessInterface = GeneratePID(n)
	case ModelTemplate:
		n.Content = graph.NewModel(n.ID, graph.ObjectGraphModelTemplate)
	case Simulation:
		n.Content = newSimulationContent(n.ID, "")
	}
	return n
}

// NewSimulation builds a SIMULATION node configured against the graph model ref.
func NewSimulation(parentID, name, ownerID, ref string) *Node {
	n := NewNode(parentID, name, Simulation, ownerID)
	n.Content = newSimulationContent(n.ID, ref)
	return n
}

func newSimulationContent(id, ref string) RawContent {
	scenarioID := uuid.NewString()
	doc := map[string]any{
		"objectId":             id,
		"objectType":           "SIMULATION_CONFIGURATION",
		"metadata":             map[string]any{},
		"ref":                  ref,
		"tracking":             "LATEST_RELEASE",
		"reportType":           "AGGREGATED",
		"monteCarloIterations": 20,
		"inports":              map[string]any{},
		"scenarios": map[string]any{
			scenarioID: map[string]any{
				"name":       "Scenario 1",
				"scenarioId": scenarioID,
				"objectId":   scenarioID,
				"inports":    map[string]any{},
				"objectType": "SIMULATION_SCENARIO",
			},
		},
	}
	raw, err := RawFromTree(doc)
	if err != nil {
		// a literal map of strings and maps always encodes
		panic(err)
	}
	return raw
}

// GeneratePID derives the process interface description of a MODEL node. Other
// node types have none.
func GeneratePID(n *Node) *graph.InterfaceDescription {
	if n == nil || n.Type != Model {
		return nil
	}
	pid := &graph.InterfaceDescription{
		ObjectID:       n.ID,
		ObjectType:     graph.ObjectInterfaceDescription,
		Implementation: graph.GraphModelProcess,
		Name:           n.Name,
		Description:    n.Description,
		Inports:        map[string]*graph.Port{},
		Outports:       map[string]*graph.Port{},
		PortTemplates:  map[string]*graph.PortTemplate{},
		ParentID:       n.ParentID,
		VersionID:      fmt.Sprintf("%d", n.Version),
	}
	if m, ok := n.Graph(); ok {
		for id, p := range m.Inports {
			pid.Inports[id] = p.Clone()
		}
		for id, p := range m.Outports {
			pid.Outports[id] = p.Clone()
		}
	}
	return pid
}

// ProcessGraphModelIDs lists, sorted and without duplicates, the graph models that
// processes of a MODEL node instantiate.
func ProcessGraphModelIDs(n *Node) []string {
	if n == nil || n.Type != Model {
		return nil
	}
	m, ok := n.Graph()
	if !ok {
		return nil
	}
	seen := map[string]bool{}
	var ids []string
	for _, p := range m.Processes {
		if p.Type == graph.GraphModelProcess && p.Ref != "" && !seen[p.Ref] {
			seen[p.Ref] = true
			ids = append(ids, p.Ref)
		}
	}
	sort.Strings(ids)
	return ids
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
