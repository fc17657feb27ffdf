// ABOUTME: Graph editing subcommands: add-port, add-process, connect, move, delete, and paste.
// ABOUTME: Edits run inside an editing session; version conflicts go to the interactive prompt.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/2389-research/flowgraph/clone"
	"github.com/2389-research/flowgraph/editor"
	"github.com/2389-research/flowgraph/graph"
	"github.com/2389-research/flowgraph/mutation"
	"github.com/2389-research/flowgraph/selection"
	"github.com/2389-research/flowgraph/tree"
	"github.com/2389-research/flowgraph/treeclient"
	"github.com/2389-research/flowgraph/tui"
)

// edit applies fn to the graph of nodeID in a session that lives for one edit.
func (a *app) edit(ctx context.Context, nodeID string, fn func(m *graph.Model) error) (*tree.Node, error) {
	sess, err := editor.Open(ctx, a.engine, a.sel, nodeID)
	if err != nil {
		return nil, err
	}
	defer sess.Close()
	res, err := sess.Edit(ctx, fn)
	if err != nil {
		return a.resolveConflict(ctx, err)
	}
	return res.Node, nil
}

// resolveConflict asks the user to overwrite or reload when err is a version
// conflict and stdin is a terminal. Any other error is returned unchanged.
func (a *app) resolveConflict(ctx context.Context, err error) (*tree.Node, error) {
	var f *mutation.Failure
	if !errors.As(err, &f) || f.Kind != treeclient.VersionConflict || !a.interactive {
		return nil, err
	}
	choice, perr := tui.PromptConflict(ctx, f, a.stdin, a.stdout)
	if perr != nil {
		return nil, perr
	}
	switch choice {
	case tui.ChoiceOverwrite:
		res, err := a.engine.Overwrite(ctx, f.Attempted)
		if err != nil {
			return nil, err
		}
		return res.Node, nil
	case tui.ChoiceReload:
		n, err := a.engine.Reload(ctx, f.NodeID)
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(a.stderr, "edit discarded; %s reloaded at version %d\n", n.Name, n.Version)
		return n, nil
	default:
		return nil, err
	}
}

func positionFlags(fs *flag.FlagSet) (*float64, *float64) {
	return fs.Float64("x", 0, "Canvas x"), fs.Float64("y", 0, "Canvas y")
}

func parsePortKind(s string) (graph.Kind, error) {
	switch strings.ToLower(s) {
	case "in", "inport":
		return graph.KindInport, nil
	case "out", "outport":
		return graph.KindOutport, nil
	}
	return "", fmt.Errorf("unknown port kind %q (want in or out)", s)
}

func runAddPort(ctx context.Context, a *app, args []string) int {
	fs := flag.NewFlagSet("add-port", flag.ContinueOnError)
	kind := fs.String("kind", "in", "Port kind: in or out")
	name := fs.String("name", "", "Port name (default Input or Output)")
	x, y := positionFlags(fs)
	if ok, code := a.parse(fs, args, 1, "[-kind in|out] [-name n] [-x X -y Y] <graph-id>"); !ok {
		return code
	}
	k, err := parsePortKind(*kind)
	if err != nil {
		return a.fail(err)
	}
	var portID string
	n, err := a.edit(ctx, fs.Arg(0), func(m *graph.Model) error {
		id, err := graph.AddPort(m, k, graph.Position{X: *x, Y: *y})
		if err != nil {
			return err
		}
		portID = id
		if *name != "" {
			return graph.RenamePort(m, id, *name)
		}
		return nil
	})
	if err != nil {
		return a.fail(err)
	}
	fmt.Fprintf(a.stdout, "%s\tv%d\n", portID, n.Version)
	return 0
}

func runAddProcess(ctx context.Context, a *app, args []string) int {
	fs := flag.NewFlagSet("add-process", flag.ContinueOnError)
	ref := fs.String("ref", "", "Id of the model to instantiate")
	label := fs.String("label", "", "Process label (default the model name)")
	x, y := positionFlags(fs)
	if ok, code := a.parse(fs, args, 1, "-ref model-id [-label l] [-x X -y Y] <graph-id>"); !ok {
		return code
	}
	if *ref == "" {
		return a.fail(errors.New("-ref is required"))
	}
	refNode, err := a.engine.Load(ctx, *ref)
	if err != nil {
		return a.fail(err)
	}
	pid := refNode.ProcessInterface
	if pid == nil {
		pid = tree.GeneratePID(refNode)
	}
	if pid == nil {
		return a.fail(fmt.Errorf("node %s cannot be used as a process", *ref))
	}
	base := *label
	if base == "" {
		base = refNode.Name
	}

	var procID string
	n, err := a.edit(ctx, fs.Arg(0), func(m *graph.Model) error {
		procID = graph.AddProcess(m, pid, graph.UniqueProcessLabel(m.Processes, base), graph.Position{X: *x, Y: *y})
		return nil
	})
	if err != nil {
		return a.fail(err)
	}
	fmt.Fprintf(a.stdout, "%s\tv%d\n", procID, n.Version)
	return 0
}

func runConnect(ctx context.Context, a *app, args []string) int {
	fs := flag.NewFlagSet("connect", flag.ContinueOnError)
	if ok, code := a.parse(fs, args, 3, "<graph-id> <source-port> <destination-port>"); !ok {
		return code
	}
	var connID string
	n, err := a.edit(ctx, fs.Arg(0), func(m *graph.Model) error {
		id, err := graph.Connect(m, fs.Arg(1), fs.Arg(2))
		connID = id
		return err
	})
	if err != nil {
		return a.fail(err)
	}
	fmt.Fprintf(a.stdout, "%s\tv%d\n", connID, n.Version)
	return 0
}

func runMove(ctx context.Context, a *app, args []string) int {
	fs := flag.NewFlagSet("move", flag.ContinueOnError)
	x, y := positionFlags(fs)
	if ok, code := a.parse(fs, args, 2, "-x X -y Y <graph-id> <element-id>"); !ok {
		return code
	}
	n, err := a.edit(ctx, fs.Arg(0), func(m *graph.Model) error {
		return graph.Move(m, fs.Arg(1), graph.Position{X: *x, Y: *y})
	})
	if err != nil {
		return a.fail(err)
	}
	fmt.Fprintf(a.stdout, "v%d\n", n.Version)
	return 0
}

// selectElements resolves ids in the graph of nodeID and selects them.
func (a *app) selectElements(ctx context.Context, nodeID string, ids []string) error {
	n, ok := a.engine.Store().Get(nodeID)
	if !ok || n.Content == nil {
		var err error
		if n, err = a.engine.Load(ctx, nodeID); err != nil {
			return err
		}
	}
	m, ok := n.Graph()
	if !ok {
		return fmt.Errorf("node %s has no graph content", nodeID)
	}
	items := make([]selection.Item, 0, len(ids))
	for _, id := range ids {
		e, ok := graph.Resolve(m, id)
		if !ok {
			return &graph.NotFoundError{ID: id}
		}
		items = append(items, selection.Item{ID: id, Type: e.Kind, Context: nodeID})
	}
	a.sel.SelectMany(items, nodeID)
	return nil
}

func runDelete(ctx context.Context, a *app, args []string) int {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	if ok, code := a.parse(fs, args, 2, "<graph-id> <element-id>..."); !ok {
		return code
	}
	nodeID := fs.Arg(0)
	sess, err := editor.Open(ctx, a.engine, a.sel, nodeID)
	if err != nil {
		return a.fail(err)
	}
	defer sess.Close()
	if err := a.selectElements(ctx, nodeID, fs.Args()[1:]); err != nil {
		return a.fail(err)
	}
	res, err := sess.DeleteSelected(ctx)
	n := res.Node
	if err != nil {
		if n, err = a.resolveConflict(ctx, err); err != nil {
			return a.fail(err)
		}
	}
	fmt.Fprintf(a.stdout, "v%d\n", n.Version)
	return 0
}

func runPaste(ctx context.Context, a *app, args []string) int {
	fs := flag.NewFlagSet("paste", flag.ContinueOnError)
	from := fs.String("from", "", "Graph holding the elements; omit to paste tree nodes")
	cut := fs.Bool("cut", false, "Move tree nodes instead of copying them")
	x, y := positionFlags(fs)
	if ok, code := a.parse(fs, args, 2, "[-from graph-id] [-cut] [-x dx -y dy] <target-id> <id>..."); !ok {
		return code
	}
	target, ids := fs.Arg(0), fs.Args()[1:]

	if *from != "" {
		if err := a.selectElements(ctx, *from, ids); err != nil {
			return a.fail(err)
		}
		if *from != target {
			if _, err := a.engine.Load(ctx, target); err != nil {
				return a.fail(err)
			}
		}
		a.sel.Copy()
	} else {
		if _, err := a.engine.LoadTree(ctx, tree.RootID, treeclient.TreeQuery{Sparse: true}); err != nil {
			return a.fail(err)
		}
		items := make([]selection.Item, 0, len(ids))
		for _, id := range ids {
			items = append(items, selection.Item{ID: id, Type: selection.KindNode, Context: selection.Library})
		}
		a.sel.SelectMany(items, selection.Library)
		if *cut {
			a.sel.Cut()
		} else {
			a.sel.Copy()
		}
	}

	pasted, err := clone.NewPaster(a.engine, a.sel).Paste(ctx, target, graph.Position{X: *x, Y: *y})
	for _, it := range pasted {
		fmt.Fprintf(a.stdout, "%s\t%s\n", it.ID, it.Type)
	}
	if err != nil {
		return a.fail(err)
	}
	return 0
}
