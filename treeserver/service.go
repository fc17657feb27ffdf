// ABOUTME: Versioned tree service logic: optimistic locking, access control, trash and dependencies.
// ABOUTME: Transport-free; the HTTP layer maps its sentinel errors onto status codes.

package treeserver

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/2389-research/flowgraph/graph"
	"github.com/2389-research/flowgraph/patch"
	"github.com/2389-research/flowgraph/tree"
	"github.com/yuin/goldmark"
)

// Errors returned by Service. Each maps to one HTTP status.
var (
	ErrNotFound         = errors.New("node not found")
	ErrVersionConflict  = errors.New("version conflict")
	ErrTrashed          = errors.New("node is trashed")
	ErrFailedDependency = errors.New("failed dependency")
	ErrForbidden        = errors.New("permission denied")
	ErrBadRequest       = errors.New("bad request")
)

// Query selects part of the tree.
type Query struct {
	Sparse  bool
	Depth   int
	Trashed bool
}

// Service implements the tree operations on top of a DB. Writes are serialized so
// that a version check and its commit are atomic.
type Service struct {
	db  *DB
	mu  sync.Mutex
	now func() time.Time
}

// NewService returns a service backed by db.
func NewService(db *DB) *Service {
	return &Service{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Tree returns root and its descendants down to q.Depth levels, root being level
// one. For the virtual root the top-level nodes are level one. Depth 0 is unlimited.
func (s *Service) Tree(user, root string, q Query) ([]*tree.Node, error) {
	var level []*tree.Node
	if root == tree.RootID || root == "" {
		kids, err := s.db.Children(tree.RootID, q.Trashed)
		if err != nil {
			return nil, err
		}
		level = kids
	} else {
		n, _, err := s.db.Get(root)
		if err != nil {
			return nil, err
		}
		if n.Trashed() && !q.Trashed {
			return nil, fmt.Errorf("%w: %s", ErrTrashed, root)
		}
		if !s.canRead(n, user) {
			return nil, fmt.Errorf("%w: read %s", ErrForbidden, root)
		}
		level = []*tree.Node{n}
	}

	var out []*tree.Node
	for depth := 1; len(level) > 0; depth++ {
		var next []*tree.Node
		for _, n := range level {
			if !s.canRead(n, user) {
				continue
			}
			out = append(out, s.present(n, user, q.Sparse))
			if q.Depth > 0 && depth >= q.Depth {
				continue
			}
			kids, err := s.db.Children(n.ID, q.Trashed)
			if err != nil {
				return nil, err
			}
			next = append(next, kids...)
		}
		level = next
	}
	return out, nil
}

// Get returns one node with its content and the digest of its stored document.
func (s *Service) Get(user, id string) (*tree.Node, string, error) {
	n, dig, err := s.db.Get(id)
	if err != nil {
		return nil, "", err
	}
	if !s.canRead(n, user) {
		return nil, "", fmt.Errorf("%w: read %s", ErrForbidden, id)
	}
	return s.present(n, user, false), dig, nil
}

// Create stores a new node at version 1 owned by user.
func (s *Service) Create(user string, n *tree.Node) (*tree.Node, error) {
	if n == nil || !n.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown node type", ErrBadRequest)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	next := n.Clone()
	if next.ID == "" {
		next.ID = graph.NewID()
	}
	if _, _, err := s.db.Get(next.ID); err == nil {
		return nil, fmt.Errorf("%w: node %s already exists", ErrVersionConflict, next.ID)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if err := s.checkParentWritable(next.ParentID, user); err != nil {
		return nil, err
	}
	if next.OwnerID == "" {
		next.OwnerID = user
	}
	if next.AccessControl == "" {
		next.AccessControl = tree.Inherit
		if next.Type == tree.Folder {
			next.AccessControl = tree.Private
		}
	}
	next.Version = 1
	next.TrashedDate = nil
	if next.Type.HasGraph() && next.Content == nil {
		objectType := graph.ObjectGraphModel
		if next.Type == tree.ModelTemplate {
			objectType = graph.ObjectGraphModelTemplate
		}
		next.Content = graph.NewModel(next.ID, objectType)
	}
	if err := s.validateContent(next); err != nil {
		return nil, err
	}
	return s.commit(next, user)
}

// Update replaces node id. A sparse update keeps the stored content. A nil version
// skips the optimistic lock.
func (s *Service) Update(user, id string, body *tree.Node, version *int64, sparse bool) (*tree.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.writable(user, id, version)
	if err != nil {
		return nil, err
	}
	next := body.Clone()
	next.ID = id
	next.Version = cur.Version + 1
	next.Type = cur.Type
	next.OwnerID = cur.OwnerID
	next.TrashedDate = nil
	if next.AccessControl == "" {
		next.AccessControl = cur.AccessControl
	}
	if sparse {
		next.Content = tree.CloneContent(cur.Content)
	}
	if next.ParentID != cur.ParentID {
		if err := s.checkMove(next, user); err != nil {
			return nil, err
		}
	}
	if err := s.validateContent(next); err != nil {
		return nil, err
	}
	return s.commit(next, user)
}

// PatchContent applies a structural patch to the stored content of id.
func (s *Service) PatchContent(user, id string, p patch.Patch, version *int64) (*tree.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.writable(user, id, version)
	if err != nil {
		return nil, err
	}
	doc := map[string]any{}
	if cur.Content != nil {
		t, err := patch.ToTree(cur.Content)
		if err != nil {
			return nil, err
		}
		if m, ok := t.(map[string]any); ok {
			doc = m
		}
	}
	raw, err := json.Marshal(patch.Apply(doc, p))
	if err != nil {
		return nil, fmt.Errorf("encode patched content: %w", err)
	}
	content, err := tree.DecodeContent(cur.Type, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}

	next := cur.Clone()
	next.Content = content
	next.Version = cur.Version + 1
	if err := s.validateContent(next); err != nil {
		return nil, err
	}
	return s.commit(next, user)
}

// Trash soft-deletes id and all its untrashed descendants, returning their ids with
// id first. It fails with ErrFailedDependency while a model outside the subtree
// still instantiates a model inside it.
func (s *Service) Trash(user, id string, version *int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.writable(user, id, version)
	if err != nil {
		return nil, err
	}
	subtree, err := s.subtree(cur, false)
	if err != nil {
		return nil, err
	}
	inside := map[string]bool{}
	for _, n := range subtree {
		inside[n.ID] = true
	}
	models, err := s.db.ActiveByType(tree.Model)
	if err != nil {
		return nil, err
	}
	for _, m := range models {
		if inside[m.ID] {
			continue
		}
		for _, ref := range tree.ProcessGraphModelIDs(m) {
			if inside[ref] {
				return nil, fmt.Errorf("%w: %s is used by %s", ErrFailedDependency, ref, m.ID)
			}
		}
	}

	when := s.now()
	ids := make([]string, 0, len(subtree))
	for _, n := range subtree {
		n.TrashedDate = &when
		n.Version++
		if _, err := s.db.Commit(n, user); err != nil {
			return nil, err
		}
		ids = append(ids, n.ID)
	}
	log.Printf("component=treeserver action=trash node=%s count=%d user=%s", id, len(ids), user)
	return ids, nil
}

// Recover restores a trashed node together with the descendants trashed with it.
func (s *Service) Recover(user, id string) (*tree.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, _, err := s.db.Get(id)
	if err != nil {
		return nil, err
	}
	if !cur.Trashed() {
		return s.present(cur, user, false), nil
	}
	if !s.canWrite(cur, user) {
		return nil, fmt.Errorf("%w: recover %s", ErrForbidden, id)
	}
	if cur.ParentID != "" && cur.ParentID != tree.RootID {
		parent, _, err := s.db.Get(cur.ParentID)
		if err != nil {
			return nil, fmt.Errorf("%w: parent %s: %v", ErrFailedDependency, cur.ParentID, err)
		}
		if parent.Trashed() {
			return nil, fmt.Errorf("%w: parent %s is trashed", ErrFailedDependency, cur.ParentID)
		}
	}
	if err := s.checkDependencies(cur); err != nil {
		return nil, err
	}

	subtree, err := s.subtree(cur, true)
	if err != nil {
		return nil, err
	}
	trashedAt := cur.TrashedDate
	var restored *tree.Node
	for _, n := range subtree {
		if n.TrashedDate == nil || !n.TrashedDate.Equal(*trashedAt) {
			continue
		}
		n.TrashedDate = nil
		n.Version++
		if _, err := s.db.Commit(n, user); err != nil {
			return nil, err
		}
		if n.ID == id {
			restored = n
		}
	}
	log.Printf("component=treeserver action=recover node=%s user=%s", id, user)
	return s.present(restored, user, false), nil
}

// Copy duplicates id at version under parentID with a name unique in that folder.
func (s *Service) Copy(user, id string, version *int64, parentID string) (*tree.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	src, _, err := s.db.Get(id)
	if err != nil {
		return nil, err
	}
	if src.Trashed() {
		return nil, fmt.Errorf("%w: %s", ErrTrashed, id)
	}
	if !s.canRead(src, user) {
		return nil, fmt.Errorf("%w: read %s", ErrForbidden, id)
	}
	if version != nil && *version != src.Version {
		return nil, fmt.Errorf("%w: %s is at %d, not %d", ErrVersionConflict, id, src.Version, *version)
	}
	if src.Type == tree.Folder {
		return nil, fmt.Errorf("%w: folders cannot be copied", ErrBadRequest)
	}
	if parentID == "" {
		parentID = tree.RootID
	}
	if err := s.checkParentWritable(parentID, user); err != nil {
		return nil, err
	}
	siblings, err := s.db.Children(parentID, false)
	if err != nil {
		return nil, err
	}
	taken := map[string]bool{}
	for _, n := range siblings {
		taken[n.Name] = true
	}
	name := graph.Disambiguate(src.Name, func(c string) bool { return taken[c] })
	return s.commit(tree.Duplicate(src, parentID, name, user), user)
}

// History lists the committed versions of id.
func (s *Service) History(user, id string) ([]HistoryEntry, error) {
	n, _, err := s.db.Get(id)
	if err != nil {
		return nil, err
	}
	if !s.canRead(n, user) {
		return nil, fmt.Errorf("%w: read %s", ErrForbidden, id)
	}
	entries, err := s.db.History(id)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []HistoryEntry{}
	}
	return entries, nil
}

// CommentVersion attaches comment to one committed version of id.
func (s *Service) CommentVersion(user, id string, version int64, comment string) (*HistoryEntry, error) {
	n, _, err := s.db.Get(id)
	if err != nil {
		return nil, err
	}
	if !s.canWrite(n, user) {
		return nil, fmt.Errorf("%w: comment %s", ErrForbidden, id)
	}
	return s.db.CommentVersion(id, version, comment)
}

// Description renders the markdown description of id as HTML.
func (s *Service) Description(user, id string) ([]byte, error) {
	n, _, err := s.Get(user, id)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(n.Description), &buf); err != nil {
		return nil, fmt.Errorf("render description: %w", err)
	}
	return buf.Bytes(), nil
}

// writable loads id for modification: it must exist, be untrashed, be writable by
// user, and match version when one is given.
func (s *Service) writable(user, id string, version *int64) (*tree.Node, error) {
	cur, _, err := s.db.Get(id)
	if err != nil {
		return nil, err
	}
	if cur.Trashed() {
		return nil, fmt.Errorf("%w: %s", ErrTrashed, id)
	}
	if !s.canWrite(cur, user) {
		return nil, fmt.Errorf("%w: modify %s", ErrForbidden, id)
	}
	if version != nil && *version != cur.Version {
		return nil, fmt.Errorf("%w: %s is at %d, not %d", ErrVersionConflict, id, cur.Version, *version)
	}
	return cur, nil
}

func (s *Service) checkParentWritable(parentID, user string) error {
	if parentID == "" || parentID == tree.RootID {
		return nil
	}
	parent, _, err := s.db.Get(parentID)
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: parent %s", ErrFailedDependency, parentID)
	}
	if err != nil {
		return err
	}
	if parent.Trashed() {
		return fmt.Errorf("%w: parent %s", ErrTrashed, parentID)
	}
	if !s.canWrite(parent, user) {
		return fmt.Errorf("%w: create in %s", ErrForbidden, parentID)
	}
	return nil
}

func (s *Service) checkMove(n *tree.Node, user string) error {
	if err := s.checkParentWritable(n.ParentID, user); err != nil {
		return err
	}
	for cur := n.ParentID; cur != "" && cur != tree.RootID; {
		if cur == n.ID {
			return fmt.Errorf("%w: cannot move %s below itself", ErrBadRequest, n.ID)
		}
		p, _, err := s.db.Get(cur)
		if err != nil {
			return err
		}
		cur = p.ParentID
	}
	return nil
}

// validateContent enforces graph integrity and that every instantiated model
// exists and is active.
func (s *Service) validateContent(n *tree.Node) error {
	if m, ok := n.Graph(); ok {
		if problems := graph.CheckIntegrity(m); len(problems) > 0 {
			return fmt.Errorf("%w: %v", ErrBadRequest, problems[0])
		}
	} else if n.Type.HasGraph() {
		return fmt.Errorf("%w: %s node without graph content", ErrBadRequest, n.Type)
	}
	return s.checkDependencies(n)
}

func (s *Service) checkDependencies(n *tree.Node) error {
	for _, ref := range tree.ProcessGraphModelIDs(n) {
		if ref == n.ID {
			return fmt.Errorf("%w: %s instantiates itself", ErrFailedDependency, n.ID)
		}
		dep, _, err := s.db.Get(ref)
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: model %s does not exist", ErrFailedDependency, ref)
		}
		if err != nil {
			return err
		}
		if dep.Trashed() {
			return fmt.Errorf("%w: model %s is trashed", ErrFailedDependency, ref)
		}
	}
	return nil
}

func (s *Service) commit(n *tree.Node, user string) (*tree.Node, error) {
	if n.Type == tree.Model {
		n.ProcessInterface = tree.GeneratePID(n)
		n.ProcessDependencies = tree.ProcessGraphModelIDs(n)
	}
	n.CurrentUserAccessPermissions = nil
	if _, err := s.db.Commit(n, user); err != nil {
		return nil, err
	}
	log.Printf("component=treeserver action=commit node=%s version=%d user=%s", n.ID, n.Version, user)
	return s.present(n, user, false), nil
}

// subtree returns n and its descendants, breadth first. Trashed descendants are
// included only when withTrashed is set.
func (s *Service) subtree(n *tree.Node, withTrashed bool) ([]*tree.Node, error) {
	out := []*tree.Node{n}
	for i := 0; i < len(out); i++ {
		kids, err := s.db.Children(out[i].ID, withTrashed)
		if err != nil {
			return nil, err
		}
		out = append(out, kids...)
	}
	return out, nil
}

// present prepares a node for a response: a copy carrying the caller's permissions,
// without content when sparse.
func (s *Service) present(n *tree.Node, user string, sparse bool) *tree.Node {
	out := n.Clone()
	if sparse {
		out.Content = nil
	}
	perms := []string{tree.PermRead}
	if s.canWrite(n, user) {
		perms = append(perms, tree.PermCreate, tree.PermModify, tree.PermDelete)
	}
	sort.Strings(perms)
	out.CurrentUserAccessPermissions = perms
	return out
}

func (s *Service) canRead(n *tree.Node, user string) bool {
	mode, owner := s.effectiveAccess(n)
	return mode != tree.Private || owner == "" || owner == user
}

func (s *Service) canWrite(n *tree.Node, user string) bool {
	mode, owner := s.effectiveAccess(n)
	switch mode {
	case tree.Private, tree.PublicReadOnly:
		return owner == "" || owner == user
	}
	return true
}

// effectiveAccess resolves INHERIT by walking up to the first ancestor with an
// explicit mode. A chain ending at the top level is public read/write.
func (s *Service) effectiveAccess(n *tree.Node) (tree.AccessControl, string) {
	seen := map[string]bool{}
	cur := n
	for cur != nil && !seen[cur.ID] {
		seen[cur.ID] = true
		if cur.AccessControl != tree.Inherit && cur.AccessControl != "" {
			return cur.AccessControl, cur.OwnerID
		}
		if cur.ParentID == "" || cur.ParentID == tree.RootID {
			break
		}
		parent, _, err := s.db.Get(cur.ParentID)
		if err != nil {
			break
		}
		cur = parent
	}
	return tree.PublicReadWrite, ""
}
