// ABOUTME: Document Store holding the loaded tree nodes of one client.
// ABOUTME: Readers get snapshots, writers replace whole nodes; supports scope naming and glob listing.

package tree

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/2389-research/flowgraph/graph"
	"github.com/bmatcuk/doublestar/v4"
)

// Store is the set of currently loaded tree nodes. It is safe for concurrent use.
// Nodes are copied on the way in and on the way out, so a caller can never observe
// a half-applied change.
type Store struct {
	mu    sync.RWMutex
	nodes map[string]*Node
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{nodes: make(map[string]*Node)}
}

// Get returns a snapshot of the node with the given id.
func (s *Store) Get(id string) (*Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return nil, false
	}
	return n.Clone(), true
}

// Version returns the stored version of id without copying content.
func (s *Store) Version(id string) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return 0, false
	}
	return n.Version, true
}

// Put stores a copy of n, replacing any node with the same id.
func (s *Store) Put(n *Node) {
	if n == nil || n.ID == "" {
		return
	}
	cp := n.Clone()
	s.mu.Lock()
	s.nodes[cp.ID] = cp
	s.mu.Unlock()
}

// PutAll stores a copy of every node.
func (s *Store) PutAll(nodes []*Node) {
	for _, n := range nodes {
		s.Put(n)
	}
}

// Remove drops the given ids. Unknown ids are ignored.
func (s *Store) Remove(ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.nodes, id)
	}
}

// Len returns the number of loaded nodes.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// Nodes returns snapshots of every loaded node ordered by id.
func (s *Store) Nodes() []*Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		out = append(out, n.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Children returns snapshots of the direct children of parentID ordered by name.
// RootID and the empty string both address the top level.
func (s *Store) Children(parentID string) []*Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Node
	for _, n := range s.nodes {
		if sameParent(n.ParentID, parentID) {
			out = append(out, n.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func sameParent(a, b string) bool {
	if a == RootID {
		a = ""
	}
	if b == RootID {
		b = ""
	}
	return a == b
}

// UniqueNameInScope disambiguates name against the names of parentID's children,
// ignoring the node exceptID so a node never collides with itself.
func (s *Store) UniqueNameInScope(parentID, name, exceptID string) string {
	s.mu.RLock()
	taken := map[string]bool{}
	for _, n := range s.nodes {
		if n.ID != exceptID && sameParent(n.ParentID, parentID) {
			taken[n.Name] = true
		}
	}
	s.mu.RUnlock()
	return graph.Disambiguate(name, func(candidate string) bool { return taken[candidate] })
}

// FullPath returns the slash-separated names from the top level down to id. Parents
// that are not loaded are skipped.
func (s *Store) FullPath(id string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fullPath(id)
}

func (s *Store) fullPath(id string) string {
	var parts []string
	seen := map[string]bool{}
	for cur, ok := s.nodes[id]; ok && !seen[cur.ID]; cur, ok = s.nodes[cur.ParentID] {
		seen[cur.ID] = true
		parts = append(parts, escapeName(cur.Name))
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, "/")
}

// escapeName keeps a name containing a slash from splitting into two segments.
func escapeName(name string) string {
	return strings.ReplaceAll(name, "/", "_")
}

// Match returns the nodes whose full path matches the doublestar pattern, ordered
// by path. "**" crosses folders, "*" stays within one.
func (s *Store) Match(pattern string) ([]*Node, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("%w: %q", doublestar.ErrBadPattern, pattern)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	type hit struct {
		path string
		node *Node
	}
	var hits []hit
	for _, n := range s.nodes {
		p := s.fullPath(n.ID)
		ok, err := doublestar.Match(pattern, p)
		if err != nil {
			return nil, fmt.Errorf("match %q: %w", pattern, err)
		}
		if ok {
			hits = append(hits, hit{path: p, node: n.Clone()})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].path != hits[j].path {
			return hits[i].path < hits[j].path
		}
		return hits[i].node.ID < hits[j].node.ID
	})
	out := make([]*Node, len(hits))
	for i, h := range hits {
		out[i] = h.node
	}
	return out, nil
}
