// ABOUTME: Converts graph-model nodes to DOT text and renders them to SVG/PNG via graphviz.
// ABOUTME: Provides ToDOT, Render, and RenderDOTSource.

package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"

	"github.com/2389-research/flowgraph/graph"
	"github.com/2389-research/flowgraph/tree"
)

// ErrNoGraph is returned for nodes without graph content.
var ErrNoGraph = errors.New("node has no graph content")

// ErrGraphvizMissing is returned when svg or png output is requested without graphviz.
var ErrGraphvizMissing = errors.New("graphviz dot command not found")

// Fill colors per element kind.
const (
	ColorInport   = "#C8E6C9"
	ColorOutport  = "#BBDEFB"
	ColorProcess  = "#FFE0B2"
	ColorVariable = "#E1BEE7"
)

// ToDOT serializes the graph content of n as a DOT digraph. Element and
// connection order is deterministic (sorted by id).
func ToDOT(n *tree.Node) (string, error) {
	m, ok := n.Graph()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoGraph, n.ID)
	}

	var buf strings.Builder
	fmt.Fprintf(&buf, "digraph %s {\n", quoteID(n.Name))
	writeAttrsBlock(&buf, map[string]string{"rankdir": "LR", "label": n.Name})
	buf.WriteString("  node [fontname=\"Helvetica\", style=\"filled\"]\n")
	buf.WriteString("  edge [fontname=\"Helvetica\", fontsize=\"10\"]\n")

	for _, id := range sortedKeys(m.Inports) {
		writeNode(&buf, id, map[string]string{"label": m.Inports[id].Name, "shape": "cds", "fillcolor": ColorInport})
	}
	for _, id := range sortedKeys(m.Processes) {
		p := m.Processes[id]
		label := p.Label
		if label == "" {
			label = p.Ref
		}
		writeNode(&buf, id, map[string]string{"label": label, "shape": "box", "fillcolor": ColorProcess})
	}
	for _, id := range sortedKeys(m.Variables) {
		writeNode(&buf, id, map[string]string{"label": m.Variables[id].Label, "shape": "ellipse", "fillcolor": ColorVariable})
	}
	for _, id := range sortedKeys(m.Outports) {
		writeNode(&buf, id, map[string]string{"label": m.Outports[id].Name, "shape": "cds", "fillcolor": ColorOutport})
	}

	for _, id := range sortedKeys(m.Connections) {
		writeConnection(&buf, m, m.Connections[id])
	}

	buf.WriteString("}\n")
	return buf.String(), nil
}

// endpoint maps a connection end to the DOT node it attaches to and the process
// port label shown at that end, if any.
func endpoint(m *graph.Model, id string) (string, string, bool) {
	e, ok := graph.Resolve(m, id)
	if !ok {
		return "", "", false
	}
	switch e.Kind {
	case graph.KindProcessInport, graph.KindProcessOutport:
		return e.Process.ObjectID, e.ProcessPort.Ref, true
	case graph.KindVariableReference:
		return e.Variable.ObjectID, "", true
	default:
		return id, "", true
	}
}

func writeConnection(buf *strings.Builder, m *graph.Model, c *graph.Connection) {
	from, tail, ok1 := endpoint(m, c.Source)
	to, head, ok2 := endpoint(m, c.Destination)
	if !ok1 || !ok2 {
		return
	}
	attrs := map[string]string{}
	if tail != "" {
		attrs["taillabel"] = tail
	}
	if head != "" {
		attrs["headlabel"] = head
	}
	if c.IsVariableLink() {
		attrs["style"] = "dashed"
	}
	if len(attrs) == 0 {
		fmt.Fprintf(buf, "  %s -> %s\n", quoteID(from), quoteID(to))
		return
	}
	fmt.Fprintf(buf, "  %s -> %s [%s]\n", quoteID(from), quoteID(to), formatAttrs(attrs))
}

// Render produces rendered output for n in the specified format.
// Supported formats: "dot" (returns DOT text), "svg", "png" (shell out to graphviz dot command).
func Render(ctx context.Context, n *tree.Node, format string) ([]byte, error) {
	dotText, err := ToDOT(n)
	if err != nil {
		return nil, err
	}
	return RenderDOTSource(ctx, dotText, format)
}

// GraphvizAvailable checks whether the graphviz dot command is installed and reachable.
func GraphvizAvailable() bool {
	_, err := exec.LookPath("dot")
	return err == nil
}

// ContentType returns the MIME type of a render format.
func ContentType(format string) string {
	switch format {
	case "svg":
		return "image/svg+xml"
	case "png":
		return "image/png"
	default:
		return "text/vnd.graphviz; charset=utf-8"
	}
}

// RenderDOTSource takes raw DOT text and renders it to the specified format (svg, png).
// For "dot" format, it returns the input text as-is.
func RenderDOTSource(ctx context.Context, dotText string, format string) ([]byte, error) {
	if dotText == "" {
		return nil, fmt.Errorf("cannot render empty DOT text")
	}

	switch format {
	case "dot":
		return []byte(dotText), nil
	case "svg", "png":
		return renderWithGraphviz(ctx, dotText, format)
	default:
		return nil, fmt.Errorf("unsupported format %q: supported formats are dot, svg, png", format)
	}
}

// renderWithGraphviz pipes DOT text to the graphviz dot command and returns the output.
func renderWithGraphviz(ctx context.Context, dotText string, format string) ([]byte, error) {
	if !GraphvizAvailable() {
		return nil, fmt.Errorf("%w: install graphviz to render %s output", ErrGraphvizMissing, format)
	}

	cmd := exec.CommandContext(ctx, "dot", "-T"+format)
	cmd.Stdin = strings.NewReader(dotText)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("graphviz dot command failed: %w: %s", err, stderr.String())
	}
	return stdout.Bytes(), nil
}

func writeNode(buf *strings.Builder, id string, attrs map[string]string) {
	fmt.Fprintf(buf, "  %s [%s]\n", quoteID(id), formatAttrs(attrs))
}

// writeAttrsBlock writes graph-level attributes as individual lines.
func writeAttrsBlock(buf *strings.Builder, attrs map[string]string) {
	for _, k := range sortedKeys(attrs) {
		fmt.Fprintf(buf, "  %s=%q\n", k, attrs[k])
	}
}

// formatAttrs formats a map of attributes as a DOT attribute list (key="value", key="value").
func formatAttrs(attrs map[string]string) string {
	keys := sortedKeys(attrs)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%q", k, attrs[k]))
	}
	return strings.Join(parts, ", ")
}

// quoteID returns a DOT-safe identifier. Simple identifiers are returned as-is,
// everything else (uuids included) is quoted.
func quoteID(id string) string {
	if id == "" {
		return `""`
	}
	for _, c := range id {
		if !isIDChar(c) {
			return fmt.Sprintf("%q", id)
		}
	}
	return id
}

// isIDChar returns true if the rune is valid in a bare DOT identifier.
func isIDChar(c rune) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_'
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
