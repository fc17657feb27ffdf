// ABOUTME: Mutation engine applying pure edits to tree nodes with optimistic persistence.
// ABOUTME: Clones, edits, diffs, applies locally at version+1, then patches or replaces remotely.

package mutation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/2389-research/flowgraph/graph"
	"github.com/2389-research/flowgraph/patch"
	"github.com/2389-research/flowgraph/tree"
	"github.com/2389-research/flowgraph/treeclient"
)

// ErrValidation is returned without any network call when a mutation targets a node
// that is not loaded, or a draft's version no longer matches the stored version.
var ErrValidation = errors.New("mutation validation failed")

// Backend is the persistence boundary. *treeclient.Client implements it.
type Backend interface {
	Node(ctx context.Context, id string) (*tree.Node, error)
	Tree(ctx context.Context, root string, q treeclient.TreeQuery) ([]*tree.Node, error)
	Create(ctx context.Context, n *tree.Node) (*tree.Node, error)
	Patch(ctx context.Context, id string, p patch.Patch, version *int64) (*tree.Node, error)
	Update(ctx context.Context, n *tree.Node, version *int64, sparse bool) (*tree.Node, error)
	Trash(ctx context.Context, id string, version *int64) ([]string, error)
	Recover(ctx context.Context, id string) (*tree.Node, error)
	Copy(ctx context.Context, id string, version int64, parentID string) (*tree.Node, error)
}

// Options adjust one mutation.
type Options struct {
	// ForceFullUpdate skips the version precondition and replaces the whole node.
	ForceFullUpdate bool
	// IgnoreVersionConflict omits the version from the request and adopts the
	// server's version on success.
	IgnoreVersionConflict bool
}

// Outcome says whether a mutation reached the server.
type Outcome string

const (
	Committed Outcome = "committed"
	NoChanges Outcome = "no-changes"
)

// Result is the outcome of a successful mutation. Node is the stored snapshot.
type Result struct {
	Outcome Outcome
	Node    *tree.Node
}

// Failure is a mutation the server rejected. Local state has already been rolled
// back to Restored; Attempted holds the rejected node for an explicit overwrite.
type Failure struct {
	Kind      treeclient.Kind
	NodeID    string
	Attempted *tree.Node
	Restored  *tree.Node
	Err       error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("mutation of %s failed (%s): %v", f.NodeID, f.Kind, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// IsKind reports whether err is a Failure of the given kind.
func IsKind(err error, kind treeclient.Kind) bool {
	var f *Failure
	return errors.As(err, &f) && f.Kind == kind
}

// Engine owns every write to a Document Store.
type Engine struct {
	store   *tree.Store
	backend Backend
	events  *Broadcaster

	mu    sync.Mutex
	slots map[string]chan struct{}
}

// NewEngine returns an engine writing to store and persisting through backend.
func NewEngine(store *tree.Store, backend Backend) *Engine {
	return &Engine{
		store:   store,
		backend: backend,
		events:  NewBroadcaster(),
		slots:   make(map[string]chan struct{}),
	}
}

// Store returns the Document Store the engine writes to.
func (e *Engine) Store() *tree.Store {
	return e.store
}

// Events returns the engine's broadcaster.
func (e *Engine) Events() *Broadcaster {
	return e.events
}

// acquire takes the per-node slot, so two mutations of one node never overlap
// between reading the old snapshot and reconciling the server's answer.
func (e *Engine) acquire(ctx context.Context, id string) (func(), error) {
	e.mu.Lock()
	slot, ok := e.slots[id]
	if !ok {
		slot = make(chan struct{}, 1)
		e.slots[id] = slot
	}
	e.mu.Unlock()

	select {
	case slot <- struct{}{}:
		return func() { <-slot }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// tryAcquire takes the slot of id only if no mutation holds it.
func (e *Engine) tryAcquire(id string) (func(), bool) {
	e.mu.Lock()
	slot, ok := e.slots[id]
	if !ok {
		slot = make(chan struct{}, 1)
		e.slots[id] = slot
	}
	e.mu.Unlock()

	select {
	case slot <- struct{}{}:
		return func() { <-slot }, true
	default:
		return nil, false
	}
}

// Mutate applies fn to a draft copy of node id and persists the result. fn may
// change anything on the draft; changing the version is only allowed together
// with ForceFullUpdate.
func (e *Engine) Mutate(ctx context.Context, id string, fn func(draft *tree.Node) error, opts Options) (Result, error) {
	release, err := e.acquire(ctx, id)
	if err != nil {
		return Result{}, err
	}
	defer release()

	old, ok := e.store.Get(id)
	if !ok {
		return Result{}, fmt.Errorf("%w: node %s is not loaded", ErrValidation, id)
	}
	draft := old.Clone()
	if err := fn(draft); err != nil {
		return Result{}, fmt.Errorf("mutate %s: %w", id, err)
	}
	if !opts.ForceFullUpdate && draft.Version != old.Version {
		return Result{}, fmt.Errorf("%w: node %s draft is at version %d, store has %d", ErrValidation, id, draft.Version, old.Version)
	}
	draft.ID = old.ID
	derive(draft)
	return e.commit(ctx, old, draft, opts, false)
}

// MutateGraph is Mutate for graph-model content.
func (e *Engine) MutateGraph(ctx context.Context, id string, fn func(m *graph.Model) error, opts Options) (Result, error) {
	return e.Mutate(ctx, id, func(draft *tree.Node) error {
		m, ok := draft.Graph()
		if !ok {
			return fmt.Errorf("%w: node %s has no graph content", ErrValidation, id)
		}
		return fn(m)
	}, opts)
}

// MutateSparse edits scalar fields such as name, description, or parent. Content
// changes made by fn are discarded. The update is always a sparse replace.
func (e *Engine) MutateSparse(ctx context.Context, id string, fn func(draft *tree.Node) error, ignoreVersionConflict bool) (Result, error) {
	release, err := e.acquire(ctx, id)
	if err != nil {
		return Result{}, err
	}
	defer release()

	old, ok := e.store.Get(id)
	if !ok {
		return Result{}, fmt.Errorf("%w: node %s is not loaded", ErrValidation, id)
	}
	draft := old.Clone()
	if err := fn(draft); err != nil {
		return Result{}, fmt.Errorf("mutate %s: %w", id, err)
	}
	draft.ID = old.ID
	draft.Version = old.Version
	draft.Content = tree.CloneContent(old.Content)
	derive(draft)
	return e.commit(ctx, old, draft, Options{IgnoreVersionConflict: ignoreVersionConflict}, true)
}

func (e *Engine) commit(ctx context.Context, old, draft *tree.Node, opts Options, sparse bool) (Result, error) {
	if sameNode(old, draft) {
		return Result{Outcome: NoChanges, Node: old}, nil
	}

	next := draft.Clone()
	next.Version = old.Version + 1
	derive(next)
	e.store.Put(next)

	var version *int64
	if !opts.IgnoreVersionConflict {
		v := old.Version
		version = &v
	}

	confirmed, err := e.dispatch(ctx, old, next, version, opts.ForceFullUpdate, sparse)
	if err != nil {
		return Result{}, e.rollback(old, next, err)
	}

	stored := next
	if opts.IgnoreVersionConflict && confirmed != nil && confirmed.Version != next.Version {
		log.Printf("component=mutation action=adopt_server_version node=%s expected=%d server=%d", next.ID, next.Version, confirmed.Version)
		if confirmed.Content == nil && next.Content != nil {
			confirmed.Content = tree.CloneContent(next.Content)
		}
		e.store.Put(confirmed)
		stored = confirmed
	}

	ev := newEvent(EventCommitted, stored.ID)
	ev.Version = stored.Version
	e.events.Broadcast(ev)
	return Result{Outcome: Committed, Node: stored.Clone()}, nil
}

// dispatch chooses between a content patch, a sparse replace, and a full replace.
func (e *Engine) dispatch(ctx context.Context, old, next *tree.Node, version *int64, force, sparse bool) (*tree.Node, error) {
	if sparse {
		return e.backend.Update(ctx, next, version, true)
	}
	if force || old.Content == nil || next.Content == nil {
		return e.backend.Update(ctx, next, version, false)
	}

	oldTree, err := patch.ToTree(old.Content)
	if err != nil {
		return nil, err
	}
	newTree, err := patch.ToTree(next.Content)
	if err != nil {
		return nil, err
	}
	p := patch.Diff(oldTree, newTree)
	if p.Empty() {
		return e.backend.Update(ctx, next, version, true)
	}
	return e.backend.Patch(ctx, next.ID, p, version)
}

func (e *Engine) rollback(old, attempted *tree.Node, cause error) error {
	e.store.Put(old)
	f := &Failure{
		Kind:      treeclient.KindOf(cause),
		NodeID:    old.ID,
		Attempted: attempted,
		Restored:  old.Clone(),
		Err:       cause,
	}
	log.Printf("component=mutation action=rollback node=%s version=%d kind=%s err=%v", old.ID, old.Version, f.Kind, cause)
	e.fail(old.ID, f.Kind, cause)
	return f
}

func (e *Engine) fail(nodeID string, kind treeclient.Kind, cause error) {
	ev := newEvent(EventFailed, nodeID)
	ev.Kind = kind
	ev.Err = cause
	e.events.Broadcast(ev)
}

// derive refreshes the data computed from content: dangling connections are pruned
// and a model's interface description and dependency list are regenerated.
func derive(n *tree.Node) {
	if m, ok := n.Graph(); ok {
		graph.SynchronizeConnections(m)
	}
	if n.Type == tree.Model {
		n.ProcessInterface = tree.GeneratePID(n)
		n.ProcessDependencies = tree.ProcessGraphModelIDs(n)
	}
}

// sameNode compares two nodes ignoring version and derived interface data.
func sameNode(a, b *tree.Node) bool {
	ca, cb := a.Clone(), b.Clone()
	for _, n := range []*tree.Node{ca, cb} {
		n.Version = 0
		n.ProcessInterface = nil
	}
	ja, err := json.Marshal(ca)
	if err != nil {
		return false
	}
	jb, err := json.Marshal(cb)
	if err != nil {
		return false
	}
	return bytes.Equal(ja, jb)
}
