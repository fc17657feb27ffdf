// ABOUTME: Defines lipgloss styles for the graph summary and the version conflict prompt.
// ABOUTME: Provides StyleForKind to map graph element kinds to their display styles.

package tui

import (
	"github.com/2389-research/flowgraph/graph"
	"github.com/charmbracelet/lipgloss"
)

var (
	// Panel borders
	BorderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62"))

	// Title styling
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170"))

	// Element colors
	InportStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	OutportStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("75"))
	ProcessStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	VariableStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("141"))
	EdgeStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	// Detail labels
	LabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Width(10)
	ValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	// Conflict prompt
	ConflictStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(lipgloss.Color("214")).
			Padding(1, 2)
	ChoiceStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Padding(0, 1)
	SelectedChoiceStyle = lipgloss.NewStyle().
				Background(lipgloss.Color("62")).
				Foreground(lipgloss.Color("230")).
				Bold(true).
				Padding(0, 1)
	HelpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// StyleForKind returns the display style for a graph element kind.
func StyleForKind(k graph.Kind) lipgloss.Style {
	switch k {
	case graph.KindInport:
		return InportStyle
	case graph.KindOutport:
		return OutportStyle
	case graph.KindProcess:
		return ProcessStyle
	case graph.KindVariable:
		return VariableStyle
	default:
		return ValueStyle
	}
}
