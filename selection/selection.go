// ABOUTME: Global selection of library nodes and canvas elements, plus the copy/cut clipboard.
// ABOUTME: Selections never mix contexts; selecting in one context drops every other context.

package selection

import (
	"slices"
	"sync"

	"github.com/2389-research/flowgraph/graph"
)

// Library is the context of tree nodes selected in the library view. Canvas
// selections use the id of the graph node they belong to as their context.
const Library = "Library"

// KindNode marks a selected tree node.
const KindNode graph.Kind = "TreeNode"

// Item is one selected element.
type Item struct {
	ID      string     `json:"id"`
	Type    graph.Kind `json:"type"`
	Context string     `json:"context"`
}

// Selector addresses the item inside its graph.
func (i Item) Selector() graph.Selector {
	return graph.Selector{Type: i.Type, ID: i.ID}
}

// Mode says how the clipboard was filled.
type Mode string

const (
	ModeCopy Mode = "COPY"
	ModeCut  Mode = "CUT"
)

// Clipboard is a captured selection.
type Clipboard struct {
	Mode  Mode   `json:"mode"`
	Items []Item `json:"items"`
}

// Context returns the context shared by every captured item.
func (c Clipboard) Context() string {
	if len(c.Items) == 0 {
		return ""
	}
	return c.Items[0].Context
}

// Model holds the live selection and the clipboard.
type Model struct {
	mu        sync.RWMutex
	items     []Item
	clipboard *Clipboard
}

// New returns an empty selection.
func New() *Model {
	return &Model{}
}

// Select makes item the selection. With toggle it flips item's membership instead,
// keeping other items of the same context.
func (s *Model) Select(item Item, toggle bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.keepContext(item.Context)
	if !toggle {
		s.items = []Item{item}
		return
	}
	if i := slices.Index(s.items, item); i >= 0 {
		s.items = slices.Delete(s.items, i, i+1)
		return
	}
	s.items = append(s.items, item)
}

// SelectMany replaces the selection with items from one drag gesture in context.
// An empty drag inside a graph selects the graph's own tree node instead.
func (s *Model) SelectMany(items []Item, context string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(items) == 0 && context != Library {
		s.items = []Item{{ID: context, Type: KindNode, Context: Library}}
		return
	}
	s.items = nil
	for _, it := range items {
		it.Context = context
		if !slices.Contains(s.items, it) {
			s.items = append(s.items, it)
		}
	}
}

// Deselect removes every item of context.
func (s *Model) Deselect(context string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = slices.DeleteFunc(s.items, func(it Item) bool { return it.Context == context })
}

// Clear empties the selection.
func (s *Model) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
}

// Items returns a copy of the selection.
func (s *Model) Items() []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.items)
}

// Copy captures the selection into the clipboard.
func (s *Model) Copy() Clipboard {
	return s.capture(ModeCopy)
}

// Cut captures the selection for a move. Only a library selection is cleared.
func (s *Model) Cut() Clipboard {
	cb := s.capture(ModeCut)
	if cb.Context() == Library {
		s.Clear()
	}
	return cb
}

func (s *Model) capture(mode Mode) Clipboard {
	s.mu.Lock()
	defer s.mu.Unlock()
	cb := Clipboard{Mode: mode, Items: slices.Clone(s.items)}
	s.clipboard = &cb
	return Clipboard{Mode: mode, Items: slices.Clone(cb.Items)}
}

// Clipboard returns the captured selection, if any.
func (s *Model) Clipboard() (Clipboard, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.clipboard == nil {
		return Clipboard{}, false
	}
	return Clipboard{Mode: s.clipboard.Mode, Items: slices.Clone(s.clipboard.Items)}, true
}

// ClearClipboard forgets the captured selection.
func (s *Model) ClearClipboard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clipboard = nil
}

// keepContext drops items of any other context. Callers hold mu.
func (s *Model) keepContext(context string) {
	s.items = slices.DeleteFunc(s.items, func(it Item) bool { return it.Context != context })
}
