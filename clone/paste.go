// ABOUTME: Paste of the clipboard through the mutation engine, for canvas elements and library nodes.
// ABOUTME: Canvas pastes are one graph mutation; library pastes move (cut) or duplicate (copy) nodes.

package clone

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/2389-research/flowgraph/graph"
	"github.com/2389-research/flowgraph/mutation"
	"github.com/2389-research/flowgraph/selection"
	"github.com/2389-research/flowgraph/tree"
)

// ErrEmptyClipboard is returned when there is nothing to paste.
var ErrEmptyClipboard = errors.New("clipboard is empty")

// Paster pastes the clipboard of a selection model.
type Paster struct {
	engine    *mutation.Engine
	selection *selection.Model
}

// NewPaster returns a paster writing through engine.
func NewPaster(engine *mutation.Engine, sel *selection.Model) *Paster {
	return &Paster{engine: engine, selection: sel}
}

// Paste inserts the clipboard at target: a graph node id for canvas elements, a
// folder id (or tree.RootID) for library nodes. The pasted elements become the
// selection, and are returned.
func (p *Paster) Paste(ctx context.Context, target string, offset graph.Position) ([]selection.Item, error) {
	cb, ok := p.selection.Clipboard()
	if !ok || len(cb.Items) == 0 {
		return nil, ErrEmptyClipboard
	}
	if cb.Context() == selection.Library {
		items, err := p.pasteLibrary(ctx, cb, target)
		p.selection.ClearClipboard()
		if len(items) > 0 {
			p.selection.SelectMany(items, selection.Library)
		}
		return items, err
	}
	items, err := p.pasteCanvas(ctx, cb, target, offset)
	if err != nil {
		return nil, err
	}
	p.selection.SelectMany(items, target)
	return items, nil
}

func (p *Paster) pasteCanvas(ctx context.Context, cb selection.Clipboard, target string, offset graph.Position) ([]selection.Item, error) {
	sourceID := cb.Context()
	sels := make([]graph.Selector, 0, len(cb.Items))
	for _, it := range cb.Items {
		sels = append(sels, it.Selector())
	}

	var source *graph.Model
	if sourceID != target {
		n, ok := p.engine.Store().Get(sourceID)
		if !ok {
			return nil, fmt.Errorf("%w: source graph %s is not loaded", mutation.ErrValidation, sourceID)
		}
		m, ok := n.Graph()
		if !ok {
			return nil, fmt.Errorf("%w: node %s has no graph content", mutation.ErrValidation, sourceID)
		}
		source = m
	}

	var created []graph.Selector
	_, err := p.engine.MutateGraph(ctx, target, func(m *graph.Model) error {
		src := source
		if src == nil {
			src = m
		}
		created = PasteElements(src, m, sels, source == nil, offset)
		return nil
	}, mutation.Options{})
	if err != nil {
		return nil, err
	}

	items := make([]selection.Item, 0, len(created))
	for _, s := range created {
		items = append(items, selection.Item{ID: s.ID, Type: s.Type, Context: target})
	}
	log.Printf("component=clone action=paste_canvas source=%s target=%s created=%d", sourceID, target, len(items))
	return items, nil
}

func (p *Paster) pasteLibrary(ctx context.Context, cb selection.Clipboard, parentID string) ([]selection.Item, error) {
	var items []selection.Item
	for _, it := range cb.Items {
		var (
			n   *tree.Node
			err error
		)
		switch cb.Mode {
		case selection.ModeCut:
			n, err = p.move(ctx, it.ID, parentID)
		default:
			n, err = p.duplicate(ctx, it.ID, parentID)
		}
		if err != nil {
			return items, err
		}
		if n != nil {
			items = append(items, selection.Item{ID: n.ID, Type: selection.KindNode, Context: selection.Library})
		}
	}
	log.Printf("component=clone action=paste_library mode=%s target=%s pasted=%d", cb.Mode, parentID, len(items))
	return items, nil
}

// move reparents id under parentID with a name unique among its new siblings.
func (p *Paster) move(ctx context.Context, id, parentID string) (*tree.Node, error) {
	res, err := p.engine.MutateSparse(ctx, id, func(draft *tree.Node) error {
		if draft.ID == parentID {
			return fmt.Errorf("%w: cannot move %s into itself", mutation.ErrValidation, id)
		}
		draft.ParentID = parentID
		draft.Name = p.engine.Store().UniqueNameInScope(parentID, draft.Name, draft.ID)
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return res.Node, nil
}

// duplicate asks the tree service for a copy of id under parentID. Folders are
// skipped.
func (p *Paster) duplicate(ctx context.Context, id, parentID string) (*tree.Node, error) {
	if n, ok := p.engine.Store().Get(id); ok && n.Type == tree.Folder {
		log.Printf("component=clone action=skip_folder node=%s", id)
		return nil, nil
	}
	return p.engine.Copy(ctx, id, parentID)
}
