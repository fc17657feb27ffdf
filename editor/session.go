// ABOUTME: Editing session binding one graph node to its undo history, the shared selection, and the engine.
// ABOUTME: Every committed edit feeds the history; undo and redo push restored snapshots as full updates.

package editor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"
	"time"

	"github.com/2389-research/flowgraph/graph"
	"github.com/2389-research/flowgraph/history"
	"github.com/2389-research/flowgraph/mutation"
	"github.com/2389-research/flowgraph/selection"
	"github.com/2389-research/flowgraph/tree"
	"github.com/2389-research/flowgraph/treeclient"
	"github.com/google/uuid"
)

// ErrClosed is returned by operations on a closed session.
var ErrClosed = errors.New("session is closed")

// Session edits one graph node.
type Session struct {
	ID         string
	NodeID     string
	CreatedAt  time.Time
	LastAccess time.Time

	engine    *mutation.Engine
	selection *selection.Model
	history   *history.History
	events    chan mutation.Event

	// editMu orders history moves with the commits that feed them.
	editMu sync.Mutex

	mu        sync.Mutex
	closed    bool
	closeErr  error
	done      chan struct{}
	closeOnce sync.Once
}

// Open starts a session on nodeID, loading the node if the store lacks it.
func Open(ctx context.Context, engine *mutation.Engine, sel *selection.Model, nodeID string) (*Session, error) {
	n, ok := engine.Store().Get(nodeID)
	if !ok || n.Content == nil {
		loaded, err := engine.Load(ctx, nodeID)
		if err != nil {
			return nil, fmt.Errorf("open session: %w", err)
		}
		n = loaded
	}
	if _, ok := n.Graph(); !ok {
		return nil, fmt.Errorf("open session: node %s has no graph content", nodeID)
	}

	now := time.Now()
	sess := &Session{
		ID:         uuid.New().String(),
		NodeID:     nodeID,
		CreatedAt:  now,
		LastAccess: now,
		engine:     engine,
		selection:  sel,
		history:    history.New(n),
		events:     engine.Events().Subscribe(),
		done:       make(chan struct{}),
	}
	go sess.watch()
	log.Printf("component=editor action=open session=%s node=%s version=%d", sess.ID, nodeID, n.Version)
	return sess, nil
}

// watch follows engine events for the session's node until the session closes.
func (sess *Session) watch() {
	for {
		select {
		case <-sess.done:
			return
		case ev, ok := <-sess.events:
			if !ok {
				return
			}
			switch {
			case ev.Type == mutation.EventTrashed && slices.Contains(ev.IDs, sess.NodeID):
				sess.closeWith(fmt.Errorf("node %s was trashed", sess.NodeID))
				return
			case ev.Type == mutation.EventFailed && ev.NodeID == sess.NodeID && ev.Kind == treeclient.Trashed:
				sess.closeWith(fmt.Errorf("node %s no longer exists: %w", sess.NodeID, ev.Err))
				return
			case ev.Type == mutation.EventCommitted && ev.NodeID == sess.NodeID:
				sess.follow()
			case ev.Type == mutation.EventReloaded && ev.NodeID == sess.NodeID:
				if n, ok := sess.engine.Store().Get(sess.NodeID); ok {
					sess.history.Reset(n)
				}
			}
		}
	}
}

// follow records a stored change of the node made outside this session's own
// calls. Changes the history has already seen are ignored by version.
func (sess *Session) follow() {
	sess.editMu.Lock()
	defer sess.editMu.Unlock()
	n, ok := sess.engine.Store().Get(sess.NodeID)
	if !ok || n.Version <= sess.history.Present().Version {
		return
	}
	sess.history.Track(n)
}

// Node returns the current snapshot of the session's node.
func (sess *Session) Node() (*tree.Node, bool) {
	return sess.engine.Store().Get(sess.NodeID)
}

// History exposes the session's undo history.
func (sess *Session) History() *history.History {
	return sess.history
}

// Edit applies fn to the graph content and records the committed result.
func (sess *Session) Edit(ctx context.Context, fn func(m *graph.Model) error) (mutation.Result, error) {
	if err := sess.touch(); err != nil {
		return mutation.Result{}, err
	}
	sess.editMu.Lock()
	defer sess.editMu.Unlock()
	res, err := sess.engine.MutateGraph(ctx, sess.NodeID, fn, mutation.Options{})
	if err != nil {
		return res, err
	}
	sess.record(res)
	return res, nil
}

// Rename changes the node name through a sparse update.
func (sess *Session) Rename(ctx context.Context, name string) (mutation.Result, error) {
	if err := sess.touch(); err != nil {
		return mutation.Result{}, err
	}
	sess.editMu.Lock()
	defer sess.editMu.Unlock()
	res, err := sess.engine.MutateSparse(ctx, sess.NodeID, func(d *tree.Node) error {
		d.Name = sess.engine.Store().UniqueNameInScope(d.ParentID, name, d.ID)
		return nil
	}, false)
	if err != nil {
		return res, err
	}
	sess.record(res)
	return res, nil
}

// DeleteSelected deletes every selected element of this graph in one mutation.
func (sess *Session) DeleteSelected(ctx context.Context) (mutation.Result, error) {
	var sels []graph.Selector
	for _, it := range sess.selection.Items() {
		if it.Context == sess.NodeID {
			sels = append(sels, it.Selector())
		}
	}
	res, err := sess.Edit(ctx, func(m *graph.Model) error {
		for _, s := range sels {
			graph.DeleteBySelection(m, s)
		}
		return nil
	})
	if err == nil {
		sess.selection.Deselect(sess.NodeID)
	}
	return res, err
}

// Undo restores the previous snapshot on the server.
func (sess *Session) Undo(ctx context.Context) (mutation.Result, error) {
	if err := sess.touch(); err != nil {
		return mutation.Result{}, err
	}
	sess.editMu.Lock()
	defer sess.editMu.Unlock()
	snap, err := sess.history.Undo()
	if err != nil {
		return mutation.Result{}, err
	}
	res, err := sess.restore(ctx, snap)
	if err != nil {
		if _, redoErr := sess.history.Redo(); redoErr != nil {
			log.Printf("component=editor action=undo_revert_failed session=%s err=%v", sess.ID, redoErr)
		}
		return res, err
	}
	return res, nil
}

// Redo re-applies the next snapshot on the server.
func (sess *Session) Redo(ctx context.Context) (mutation.Result, error) {
	if err := sess.touch(); err != nil {
		return mutation.Result{}, err
	}
	sess.editMu.Lock()
	defer sess.editMu.Unlock()
	snap, err := sess.history.Redo()
	if err != nil {
		return mutation.Result{}, err
	}
	res, err := sess.restore(ctx, snap)
	if err != nil {
		if _, undoErr := sess.history.Undo(); undoErr != nil {
			log.Printf("component=editor action=redo_revert_failed session=%s err=%v", sess.ID, undoErr)
		}
		return res, err
	}
	return res, nil
}

// restore puts the content of snap back on the node. Name and location stay
// as they are now.
func (sess *Session) restore(ctx context.Context, snap *tree.Node) (mutation.Result, error) {
	return sess.engine.Mutate(ctx, sess.NodeID, func(d *tree.Node) error {
		d.Content = tree.CloneContent(snap.Content)
		return nil
	}, mutation.Options{ForceFullUpdate: true})
}

func (sess *Session) record(res mutation.Result) {
	if res.Outcome == mutation.Committed && res.Node != nil {
		sess.history.Track(res.Node)
	}
}

func (sess *Session) touch() error {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed {
		if sess.closeErr != nil {
			return fmt.Errorf("%w: %v", ErrClosed, sess.closeErr)
		}
		return ErrClosed
	}
	sess.LastAccess = time.Now()
	return nil
}

// Done is closed when the session closes.
func (sess *Session) Done() <-chan struct{} {
	return sess.done
}

// Closed reports whether the session is closed and why, if it closed itself.
func (sess *Session) Closed() (bool, error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.closed, sess.closeErr
}

// Close ends the session and discards its history.
func (sess *Session) Close() {
	sess.closeWith(nil)
}

func (sess *Session) closeWith(reason error) {
	sess.closeOnce.Do(func() {
		sess.mu.Lock()
		sess.closed = true
		sess.closeErr = reason
		sess.mu.Unlock()
		close(sess.done)
		sess.engine.Events().Unsubscribe(sess.events)
		sess.selection.Deselect(sess.NodeID)
		if reason != nil {
			log.Printf("component=editor action=close session=%s node=%s reason=%q", sess.ID, sess.NodeID, reason)
		}
	})
}

func (sess *Session) lastAccess() time.Time {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.LastAccess
}
