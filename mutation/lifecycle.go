// ABOUTME: Node lifecycle operations routed through the engine: load, create, trash, recover, copy.
// ABOUTME: Also the two explicit answers to a version conflict: overwrite remote or reload local.

package mutation

import (
	"context"
	"fmt"
	"log"

	"github.com/2389-research/flowgraph/tree"
	"github.com/2389-research/flowgraph/treeclient"
)

// Load fetches node id and stores it, replacing any local copy.
func (e *Engine) Load(ctx context.Context, id string) (*tree.Node, error) {
	release, err := e.acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	n, err := e.backend.Node(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", id, err)
	}
	e.store.Put(n)
	return n.Clone(), nil
}

// Reload discards local state of id in favour of the server's copy.
func (e *Engine) Reload(ctx context.Context, id string) (*tree.Node, error) {
	n, err := e.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	ev := newEvent(EventReloaded, id)
	ev.Version = n.Version
	e.events.Broadcast(ev)
	return n, nil
}

// LoadTree fetches part of the tree into the store. Sparse results never replace
// the content of a node that is already loaded, and nodes with a mutation in
// flight keep their local copy.
func (e *Engine) LoadTree(ctx context.Context, root string, q treeclient.TreeQuery) ([]*tree.Node, error) {
	nodes, err := e.backend.Tree(ctx, root, q)
	if err != nil {
		return nil, fmt.Errorf("load tree %s: %w", root, err)
	}
	for _, n := range nodes {
		if n.Trashed() {
			continue
		}
		release, ok := e.tryAcquire(n.ID)
		if !ok {
			log.Printf("component=mutation action=skip_busy_node node=%s", n.ID)
			continue
		}
		if q.Sparse && n.Content == nil {
			if cur, ok := e.store.Get(n.ID); ok && cur.Content != nil {
				n.Content = cur.Content
			}
		}
		e.store.Put(n)
		release()
	}
	return nodes, nil
}

// Overwrite pushes attempted as a full replace without a version check, then adopts
// the server's answer. It resolves a VersionConflict in favour of the local edit.
func (e *Engine) Overwrite(ctx context.Context, attempted *tree.Node) (Result, error) {
	release, err := e.acquire(ctx, attempted.ID)
	if err != nil {
		return Result{}, err
	}
	defer release()

	old, hadOld := e.store.Get(attempted.ID)
	next := attempted.Clone()
	derive(next)
	if hadOld {
		next.Version = old.Version + 1
	}
	e.store.Put(next)

	confirmed, err := e.backend.Update(ctx, next, nil, false)
	if err != nil {
		if hadOld {
			return Result{}, e.rollback(old, next, err)
		}
		e.store.Remove(next.ID)
		e.fail(next.ID, treeclient.KindOf(err), err)
		return Result{}, &Failure{Kind: treeclient.KindOf(err), NodeID: next.ID, Attempted: next, Err: err}
	}
	if confirmed.Content == nil {
		confirmed.Content = tree.CloneContent(next.Content)
	}
	e.store.Put(confirmed)
	log.Printf("component=mutation action=overwrite node=%s version=%d", confirmed.ID, confirmed.Version)

	ev := newEvent(EventCommitted, confirmed.ID)
	ev.Version = confirmed.Version
	e.events.Broadcast(ev)
	return Result{Outcome: Committed, Node: confirmed.Clone()}, nil
}

// Create persists a new node and stores the server's copy.
func (e *Engine) Create(ctx context.Context, n *tree.Node) (*tree.Node, error) {
	created, err := e.backend.Create(ctx, n)
	if err != nil {
		e.fail(n.ID, treeclient.KindOf(err), err)
		return nil, &Failure{Kind: treeclient.KindOf(err), NodeID: n.ID, Attempted: n.Clone(), Err: err}
	}
	e.store.Put(created)
	log.Printf("component=mutation action=create node=%s type=%s", created.ID, created.Type)

	ev := newEvent(EventCreated, created.ID)
	ev.Version = created.Version
	e.events.Broadcast(ev)
	return created.Clone(), nil
}

// Trash soft-deletes id at its stored version and removes every trashed id from
// the store. Nothing changes locally when the server refuses.
func (e *Engine) Trash(ctx context.Context, id string) ([]string, error) {
	release, err := e.acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	v, ok := e.store.Version(id)
	if !ok {
		return nil, fmt.Errorf("%w: node %s is not loaded", ErrValidation, id)
	}
	ids, err := e.backend.Trash(ctx, id, &v)
	if err != nil {
		kind := treeclient.KindOf(err)
		log.Printf("component=mutation action=trash_refused node=%s kind=%s err=%v", id, kind, err)
		e.fail(id, kind, err)
		return nil, &Failure{Kind: kind, NodeID: id, Err: err}
	}
	e.store.Remove(ids...)

	ev := newEvent(EventTrashed, id)
	ev.IDs = ids
	e.events.Broadcast(ev)
	return ids, nil
}

// Recover restores a trashed node. A locally known copy is optimistically bumped
// and rolled back if the server refuses.
func (e *Engine) Recover(ctx context.Context, id string) (*tree.Node, error) {
	release, err := e.acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	old, hadOld := e.store.Get(id)
	if hadOld {
		next := old.Clone()
		next.Version = old.Version + 1
		next.TrashedDate = nil
		e.store.Put(next)
	}

	recovered, err := e.backend.Recover(ctx, id)
	if err != nil {
		if hadOld {
			return nil, e.rollback(old, nil, err)
		}
		e.fail(id, treeclient.KindOf(err), err)
		return nil, &Failure{Kind: treeclient.KindOf(err), NodeID: id, Err: err}
	}
	if recovered.Content == nil && hadOld {
		recovered.Content = tree.CloneContent(old.Content)
	}
	e.store.Put(recovered)

	ev := newEvent(EventRecovered, id)
	ev.Version = recovered.Version
	e.events.Broadcast(ev)
	return recovered.Clone(), nil
}

// Copy asks the server to duplicate id under parentID and stores the new node.
func (e *Engine) Copy(ctx context.Context, id, parentID string) (*tree.Node, error) {
	v, ok := e.store.Version(id)
	if !ok {
		return nil, fmt.Errorf("%w: node %s is not loaded", ErrValidation, id)
	}
	created, err := e.backend.Copy(ctx, id, v, parentID)
	if err != nil {
		e.fail(id, treeclient.KindOf(err), err)
		return nil, &Failure{Kind: treeclient.KindOf(err), NodeID: id, Err: err}
	}
	e.store.Put(created)

	ev := newEvent(EventCreated, created.ID)
	ev.Version = created.Version
	e.events.Broadcast(ev)
	return created.Clone(), nil
}
