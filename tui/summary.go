// ABOUTME: Renders a graph node as a styled text summary grouped by flow level.
// ABOUTME: Uses Kahn's algorithm over element-to-element connections for level computation.

package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/2389-research/flowgraph/graph"
	"github.com/2389-research/flowgraph/tree"
)

// element is one box on the canvas: a graph port, a process, or a variable.
type element struct {
	id    string
	kind  graph.Kind
	label string
}

func (e element) icon() string {
	switch e.kind {
	case graph.KindInport:
		return "[in]"
	case graph.KindOutport:
		return "[out]"
	case graph.KindProcess:
		return "[proc]"
	case graph.KindVariable:
		return "[var]"
	default:
		return "[?]"
	}
}

var kindOrder = map[graph.Kind]int{
	graph.KindInport:   0,
	graph.KindProcess:  1,
	graph.KindVariable: 2,
	graph.KindOutport:  3,
}

// RenderSummary renders n's header, details, and graph content. width of zero
// leaves the border unconstrained.
func RenderSummary(n *tree.Node, width int) string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render(fmt.Sprintf("=== %s: %s (v%d) ===", n.Type, n.Name, n.Version)))
	b.WriteString("\n")
	writeDetail(&b, "id", n.ID)
	writeDetail(&b, "owner", n.OwnerID)
	writeDetail(&b, "access", string(n.AccessControl))
	if n.Trashed() {
		writeDetail(&b, "trashed", n.TrashedDate.Format("2006-01-02 15:04"))
	}
	if len(n.ProcessDependencies) > 0 {
		writeDetail(&b, "uses", strings.Join(n.ProcessDependencies, ", "))
	}

	if m, ok := n.Graph(); ok {
		b.WriteString("\n")
		b.WriteString(renderGraph(m))
	}

	if width > 0 {
		return BorderStyle.Width(width - 2).Render(b.String())
	}
	return BorderStyle.Render(b.String())
}

func writeDetail(b *strings.Builder, label, value string) {
	if value == "" {
		return
	}
	b.WriteString(LabelStyle.Render(label))
	b.WriteString(ValueStyle.Render(value))
	b.WriteString("\n")
}

func renderGraph(m *graph.Model) string {
	elems, owner := collectElements(m)
	if len(elems) == 0 {
		return EdgeStyle.Render("  (empty graph)") + "\n"
	}
	edges := elementEdges(m, owner)

	var b strings.Builder
	for _, level := range flowLevels(elems, edges) {
		for _, id := range level {
			e := elems[id]
			line := fmt.Sprintf("  %s %s", e.icon(), e.label)
			b.WriteString(StyleForKind(e.kind).Render(line))
			b.WriteString("\n")
			for _, to := range edges[id] {
				b.WriteString(EdgeStyle.Render("    --> " + elems[to].label))
				b.WriteString("\n")
			}
		}
	}
	b.WriteString(EdgeStyle.Render(fmt.Sprintf("%d inports, %d processes, %d outports, %d variables, %d connections",
		len(m.Inports), len(m.Processes), len(m.Outports), len(m.Variables), len(m.Connections))))
	b.WriteString("\n")
	return b.String()
}

// collectElements returns every element by id and the owning element of every
// connectable id.
func collectElements(m *graph.Model) (map[string]element, map[string]string) {
	elems := make(map[string]element)
	owner := make(map[string]string)
	for id, p := range m.Inports {
		elems[id] = element{id: id, kind: graph.KindInport, label: p.Name}
		owner[id] = id
	}
	for id, p := range m.Outports {
		elems[id] = element{id: id, kind: graph.KindOutport, label: p.Name}
		owner[id] = id
	}
	for id, p := range m.Processes {
		label := p.Label
		if label == "" {
			label = p.Ref
		}
		elems[id] = element{id: id, kind: graph.KindProcess, label: label}
		owner[id] = id
		for ppID := range p.Inports {
			owner[ppID] = id
		}
		for ppID := range p.Outports {
			owner[ppID] = id
		}
	}
	for id, v := range m.Variables {
		elems[id] = element{id: id, kind: graph.KindVariable, label: v.Label}
		owner[id] = id
	}
	return elems, owner
}

// elementEdges maps each element to the distinct elements its connections reach,
// sorted by id.
func elementEdges(m *graph.Model, owner map[string]string) map[string][]string {
	seen := make(map[[2]string]bool)
	edges := make(map[string][]string)
	for _, c := range m.Connections {
		from, ok1 := owner[c.Source]
		to, ok2 := owner[c.Destination]
		if !ok1 || !ok2 || seen[[2]string{from, to}] {
			continue
		}
		seen[[2]string{from, to}] = true
		edges[from] = append(edges[from], to)
	}
	for id := range edges {
		sort.Strings(edges[id])
	}
	return edges
}

// flowLevels computes levels with Kahn's algorithm. Elements caught in a cycle
// form a final level. Each level is ordered by kind, then label, then id.
func flowLevels(elems map[string]element, edges map[string][]string) [][]string {
	inDegree := make(map[string]int, len(elems))
	for id := range elems {
		if _, ok := inDegree[id]; !ok {
			inDegree[id] = 0
		}
		for _, to := range edges[id] {
			if to != id {
				inDegree[to]++
			}
		}
	}

	less := func(level []string) func(i, j int) bool {
		return func(i, j int) bool {
			a, b := elems[level[i]], elems[level[j]]
			if kindOrder[a.kind] != kindOrder[b.kind] {
				return kindOrder[a.kind] < kindOrder[b.kind]
			}
			if a.label != b.label {
				return a.label < b.label
			}
			return a.id < b.id
		}
	}

	var queue []string
	for id, d := range inDegree {
		if d == 0 {
			queue = append(queue, id)
		}
	}
	sort.Slice(queue, less(queue))

	var levels [][]string
	placed := make(map[string]bool, len(elems))
	for len(queue) > 0 {
		level := make([]string, len(queue))
		copy(level, queue)
		levels = append(levels, level)

		var next []string
		for _, id := range queue {
			placed[id] = true
			for _, to := range edges[id] {
				if to == id {
					continue
				}
				inDegree[to]--
				if inDegree[to] == 0 {
					next = append(next, to)
				}
			}
		}
		sort.Slice(next, less(next))
		queue = next
	}

	var rest []string
	for id := range elems {
		if !placed[id] {
			rest = append(rest, id)
		}
	}
	if len(rest) > 0 {
		sort.Slice(rest, less(rest))
		levels = append(levels, rest)
	}
	return levels
}
