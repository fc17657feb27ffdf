// ABOUTME: ConflictModel asks the user how to settle a version conflict: overwrite the server or reload.
// ABOUTME: Runs as a small Bubble Tea program driven by bubbles key bindings.

package tui

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/2389-research/flowgraph/mutation"
	"github.com/2389-research/flowgraph/treeclient"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

// Choice is the user's answer to a conflict prompt.
type Choice int

const (
	ChoiceNone      Choice = iota // Prompt dismissed without a decision
	ChoiceOverwrite               // Push the local edit over the server version
	ChoiceReload                  // Discard the local edit and fetch the server version
)

// String returns the lowercase name of the choice.
func (c Choice) String() string {
	switch c {
	case ChoiceOverwrite:
		return "overwrite"
	case ChoiceReload:
		return "reload"
	default:
		return "none"
	}
}

// ConflictKeyMap holds the bindings of the conflict prompt.
type ConflictKeyMap struct {
	Overwrite key.Binding
	Reload    key.Binding
	Left      key.Binding
	Right     key.Binding
	Confirm   key.Binding
	Cancel    key.Binding
}

// DefaultConflictKeys returns the standard bindings.
func DefaultConflictKeys() ConflictKeyMap {
	return ConflictKeyMap{
		Overwrite: key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "overwrite remote")),
		Reload:    key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload local")),
		Left:      key.NewBinding(key.WithKeys("left", "h", "shift+tab"), key.WithHelp("←", "previous")),
		Right:     key.NewBinding(key.WithKeys("right", "l", "tab"), key.WithHelp("→", "next")),
		Confirm:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "confirm")),
		Cancel:    key.NewBinding(key.WithKeys("esc", "q", "ctrl+c"), key.WithHelp("esc", "cancel")),
	}
}

var conflictChoices = []Choice{ChoiceOverwrite, ChoiceReload}

// ConflictModel renders the prompt and records the decision.
type ConflictModel struct {
	nodeName string
	local    int64
	message  string
	keys     ConflictKeyMap
	cursor   int
	choice   Choice
	done     bool
	width    int
}

// NewConflictModel builds a prompt for a rejected mutation. local is the version
// the rejected edit was based on.
func NewConflictModel(nodeName string, local int64, message string) ConflictModel {
	return ConflictModel{
		nodeName: nodeName,
		local:    local,
		message:  message,
		keys:     DefaultConflictKeys(),
	}
}

// Choice returns the decision, ChoiceNone until one is made.
func (m ConflictModel) Choice() Choice {
	return m.choice
}

// Done reports whether the prompt has finished.
func (m ConflictModel) Done() bool {
	return m.done
}

// Init implements tea.Model.
func (m ConflictModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m ConflictModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Overwrite):
			return m.finish(ChoiceOverwrite)
		case key.Matches(msg, m.keys.Reload):
			return m.finish(ChoiceReload)
		case key.Matches(msg, m.keys.Left):
			m.cursor = (m.cursor + len(conflictChoices) - 1) % len(conflictChoices)
		case key.Matches(msg, m.keys.Right):
			m.cursor = (m.cursor + 1) % len(conflictChoices)
		case key.Matches(msg, m.keys.Confirm):
			return m.finish(conflictChoices[m.cursor])
		case key.Matches(msg, m.keys.Cancel):
			return m.finish(ChoiceNone)
		}
	}
	return m, nil
}

func (m ConflictModel) finish(c Choice) (tea.Model, tea.Cmd) {
	m.choice = c
	m.done = true
	return m, tea.Quit
}

// View implements tea.Model.
func (m ConflictModel) View() string {
	if m.done {
		return ""
	}
	var b strings.Builder
	b.WriteString(TitleStyle.Render(fmt.Sprintf("[!] %s was changed on the server", m.nodeName)))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("Your edit was based on version %d.\n", m.local))
	if m.message != "" {
		b.WriteString(HelpStyle.Render(m.message))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	buttons := make([]string, len(conflictChoices))
	for i, c := range conflictChoices {
		label := m.keys.Overwrite.Help().Desc
		if c == ChoiceReload {
			label = m.keys.Reload.Help().Desc
		}
		if i == m.cursor {
			buttons[i] = SelectedChoiceStyle.Render(label)
		} else {
			buttons[i] = ChoiceStyle.Render(label)
		}
	}
	b.WriteString(strings.Join(buttons, "  "))
	b.WriteString("\n\n")
	b.WriteString(HelpStyle.Render(m.helpLine()))

	if m.width > 0 {
		return ConflictStyle.Width(m.width - 2).Render(b.String())
	}
	return ConflictStyle.Render(b.String())
}

func (m ConflictModel) helpLine() string {
	bindings := []key.Binding{m.keys.Overwrite, m.keys.Reload, m.keys.Confirm, m.keys.Cancel}
	parts := make([]string, len(bindings))
	for i, kb := range bindings {
		parts[i] = kb.Help().Key + " " + kb.Help().Desc
	}
	return strings.Join(parts, " • ")
}

// PromptConflict runs the prompt for a failed mutation on in/out and returns the
// decision. Failures that are not version conflicts return ChoiceNone at once.
func PromptConflict(ctx context.Context, f *mutation.Failure, in io.Reader, out io.Writer) (Choice, error) {
	if f == nil || f.Attempted == nil {
		return ChoiceNone, nil
	}
	if f.Kind != treeclient.VersionConflict {
		return ChoiceNone, nil
	}
	var local int64
	if f.Restored != nil {
		local = f.Restored.Version
	}
	var message string
	if f.Err != nil {
		message = f.Err.Error()
	}
	model := NewConflictModel(f.Attempted.Name, local, message)
	p := tea.NewProgram(model, tea.WithContext(ctx), tea.WithInput(in), tea.WithOutput(out))
	final, err := p.Run()
	if err != nil {
		return ChoiceNone, fmt.Errorf("conflict prompt: %w", err)
	}
	return final.(ConflictModel).Choice(), nil
}
