// ABOUTME: In-memory undo/redo history of node snapshots for one editing session.
// ABOUTME: Snapshots that differ from the present only in version are treated as echoes and dropped.

package history

import (
	"errors"
	"sync"

	"github.com/2389-research/flowgraph/graph"
	"github.com/2389-research/flowgraph/tree"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

var (
	ErrNothingToUndo = errors.New("nothing to undo")
	ErrNothingToRedo = errors.New("nothing to redo")
)

// versionBlind ignores the fields that change on every commit without an edit.
var versionBlind = cmp.Options{
	cmpopts.IgnoreFields(tree.Node{}, "Version", "CurrentUserAccessPermissions"),
	cmpopts.IgnoreFields(graph.InterfaceDescription{}, "VersionID"),
	cmpopts.EquateEmpty(),
}

// Equivalent reports whether a and b differ at most in their version.
func Equivalent(a, b *tree.Node) bool {
	return cmp.Equal(a, b, versionBlind)
}

// SameContent reports whether a and b carry equivalent content, whatever their
// name, location, or version.
func SameContent(a, b *tree.Node) bool {
	return cmp.Equal(a.Content, b.Content, cmpopts.EquateEmpty())
}

// History holds past, present, and future snapshots. Past is oldest first; future
// is nearest-redo first.
type History struct {
	mu      sync.Mutex
	past    []*tree.Node
	present *tree.Node
	future  []*tree.Node
	limit   int
}

// Option configures a History.
type Option func(*History)

// WithLimit keeps at most n past snapshots, dropping the oldest. Zero is unlimited.
func WithLimit(n int) Option {
	return func(h *History) { h.limit = n }
}

// New starts a history whose present is a snapshot of present.
func New(present *tree.Node, opts ...Option) *History {
	h := &History{present: present.Clone()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Add records state as the new present and clears the future. A state equivalent to
// the present is ignored; Add reports whether it recorded anything.
func (h *History) Add(state *tree.Node) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.add(state)
}

func (h *History) add(state *tree.Node) bool {
	if Equivalent(h.present, state) {
		return false
	}
	h.past = append(h.past, h.present)
	if h.limit > 0 && len(h.past) > h.limit {
		h.past = h.past[len(h.past)-h.limit:]
	}
	h.present = state.Clone()
	h.future = nil
	return true
}

// Track follows a stored change of the node. A content change is recorded like
// Add; any other change replaces the present in place, so undo and redo never
// revert a rename or a move. Track reports whether it recorded a new entry.
func (h *History) Track(state *tree.Node) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !SameContent(h.present, state) {
		return h.add(state)
	}
	h.present = state.Clone()
	return false
}

// Undo moves the last past snapshot into the present and returns it.
func (h *History) Undo() (*tree.Node, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.past) == 0 {
		return nil, ErrNothingToUndo
	}
	last := h.past[len(h.past)-1]
	h.past = h.past[:len(h.past)-1]
	h.future = append([]*tree.Node{h.present}, h.future...)
	h.present = last
	return last.Clone(), nil
}

// Redo moves the first future snapshot into the present and returns it.
func (h *History) Redo() (*tree.Node, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.future) == 0 {
		return nil, ErrNothingToRedo
	}
	next := h.future[0]
	h.future = h.future[1:]
	h.past = append(h.past, h.present)
	h.present = next
	return next.Clone(), nil
}

// Present returns a copy of the current snapshot.
func (h *History) Present() *tree.Node {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.present.Clone()
}

// Reset discards past and future and makes state the present.
func (h *History) Reset(state *tree.Node) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.past = nil
	h.future = nil
	h.present = state.Clone()
}

func (h *History) HasPast() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.past) > 0
}

func (h *History) HasFuture() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.future) > 0
}

// Past returns the number of undoable snapshots.
func (h *History) Past() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.past)
}

// Future returns the number of redoable snapshots.
func (h *History) Future() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.future)
}
