// ABOUTME: Tree node subcommands: create, show, ls, rename, trash, recover, history, and export.
// ABOUTME: Each loads what it needs into the local store and writes through the mutation engine.

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/2389-research/flowgraph/editor"
	"github.com/2389-research/flowgraph/render"
	"github.com/2389-research/flowgraph/tree"
	"github.com/2389-research/flowgraph/treeclient"
	"github.com/2389-research/flowgraph/tui"
	"gopkg.in/yaml.v3"
)

// loadChildren fetches parentID's direct children so sibling names are known.
func (a *app) loadChildren(ctx context.Context, parentID string) error {
	depth := 2
	if parentID == "" || parentID == tree.RootID {
		depth = 1
		parentID = tree.RootID
	}
	_, err := a.engine.LoadTree(ctx, parentID, treeclient.TreeQuery{Sparse: true, Depth: depth})
	return err
}

func runCreate(ctx context.Context, a *app, args []string) int {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	parent := fs.String("parent", tree.RootID, "Parent node id")
	typ := fs.String("type", string(tree.Model), "Node type: FOLDER, MODEL, MODELTEMPLATE, SIMULATION, ...")
	access := fs.String("access", "", "Access control: PRIVATE, PUBLIC_READ_ONLY, PUBLIC_READ_WRITE, INHERIT")
	description := fs.String("description", "", "Markdown description")
	if ok, code := a.parse(fs, args, 1, "[flags] <name>"); !ok {
		return code
	}

	nodeType := tree.NodeType(strings.ToUpper(*typ))
	if !nodeType.Valid() {
		return a.fail(fmt.Errorf("unknown node type %q", *typ))
	}
	if err := a.loadChildren(ctx, *parent); err != nil {
		return a.fail(err)
	}
	name := a.engine.Store().UniqueNameInScope(*parent, strings.Join(fs.Args(), " "), "")
	n := tree.NewNode(*parent, name, nodeType, a.cfg.User)
	n.Description = *description
	if *access != "" {
		n.AccessControl = tree.AccessControl(strings.ToUpper(*access))
	}

	created, err := a.engine.Create(ctx, n)
	if err != nil {
		return a.fail(err)
	}
	fmt.Fprintf(a.stdout, "%s\t%s\t%s\tv%d\n", created.ID, created.Type, created.Name, created.Version)
	return 0
}

func runShow(ctx context.Context, a *app, args []string) int {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	asJSON := fs.Bool("json", false, "Print the node as JSON, element ids included")
	width := fs.Int("width", 0, "Wrap the summary to this width")
	if ok, code := a.parse(fs, args, 1, "[-json] <node-id>"); !ok {
		return code
	}
	n, err := a.engine.Load(ctx, fs.Arg(0))
	if err != nil {
		return a.fail(err)
	}
	if *asJSON {
		return a.writeJSON(n)
	}
	fmt.Fprintln(a.stdout, tui.RenderSummary(n, *width))
	return 0
}

func runList(ctx context.Context, a *app, args []string) int {
	fs := flag.NewFlagSet("ls", flag.ContinueOnError)
	root := fs.String("root", tree.RootID, "Subtree to list")
	if ok, code := a.parse(fs, args, 0, "[-root id] [pattern]"); !ok {
		return code
	}
	pattern := "**"
	if fs.NArg() > 0 {
		pattern = fs.Arg(0)
	}
	if _, err := a.engine.LoadTree(ctx, *root, treeclient.TreeQuery{Sparse: true}); err != nil {
		return a.fail(err)
	}
	nodes, err := a.engine.Store().Match(pattern)
	if err != nil {
		return a.fail(err)
	}
	for _, n := range nodes {
		fmt.Fprintf(a.stdout, "%-40s %-16s v%-4d %s\n", a.engine.Store().FullPath(n.ID), n.Type, n.Version, n.ID)
	}
	return 0
}

func runRename(ctx context.Context, a *app, args []string) int {
	fs := flag.NewFlagSet("rename", flag.ContinueOnError)
	if ok, code := a.parse(fs, args, 2, "<node-id> <name>"); !ok {
		return code
	}
	id, name := fs.Arg(0), strings.Join(fs.Args()[1:], " ")
	n, err := a.engine.Load(ctx, id)
	if err != nil {
		return a.fail(err)
	}
	if err := a.loadChildren(ctx, n.ParentID); err != nil {
		return a.fail(err)
	}

	var renamed *tree.Node
	if n.Type.HasGraph() {
		sess, err := editor.Open(ctx, a.engine, a.sel, id)
		if err != nil {
			return a.fail(err)
		}
		defer sess.Close()
		res, err := sess.Rename(ctx, name)
		if err != nil {
			if renamed, err = a.resolveConflict(ctx, err); err != nil {
				return a.fail(err)
			}
		} else {
			renamed = res.Node
		}
	} else {
		res, err := a.engine.MutateSparse(ctx, id, func(d *tree.Node) error {
			d.Name = a.engine.Store().UniqueNameInScope(d.ParentID, name, d.ID)
			return nil
		}, false)
		if err != nil {
			if renamed, err = a.resolveConflict(ctx, err); err != nil {
				return a.fail(err)
			}
		} else {
			renamed = res.Node
		}
	}
	fmt.Fprintf(a.stdout, "%s\t%s\tv%d\n", renamed.ID, renamed.Name, renamed.Version)
	return 0
}

func runTrash(ctx context.Context, a *app, args []string) int {
	fs := flag.NewFlagSet("trash", flag.ContinueOnError)
	if ok, code := a.parse(fs, args, 1, "<node-id>"); !ok {
		return code
	}
	if _, err := a.engine.Load(ctx, fs.Arg(0)); err != nil {
		return a.fail(err)
	}
	ids, err := a.engine.Trash(ctx, fs.Arg(0))
	if err != nil {
		return a.fail(err)
	}
	for _, id := range ids {
		fmt.Fprintln(a.stdout, id)
	}
	return 0
}

func runRecover(ctx context.Context, a *app, args []string) int {
	fs := flag.NewFlagSet("recover", flag.ContinueOnError)
	if ok, code := a.parse(fs, args, 1, "<node-id>"); !ok {
		return code
	}
	n, err := a.engine.Recover(ctx, fs.Arg(0))
	if err != nil {
		return a.fail(err)
	}
	fmt.Fprintf(a.stdout, "%s\t%s\tv%d\n", n.ID, n.Name, n.Version)
	return 0
}

func runHistory(ctx context.Context, a *app, args []string) int {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	comment := fs.String("comment", "", "Attach this comment to -version")
	ver := fs.Int64("version", 0, "Version to comment")
	if ok, code := a.parse(fs, args, 1, "[-version n -comment text] <node-id>"); !ok {
		return code
	}
	id := fs.Arg(0)

	if *comment != "" {
		if *ver <= 0 {
			return a.fail(fmt.Errorf("-comment needs -version"))
		}
		entry, err := a.client.CommentVersion(ctx, id, *ver, *comment)
		if err != nil {
			return a.fail(err)
		}
		fmt.Fprintf(a.stdout, "v%d\t%s\n", entry.Version, entry.Comment)
		return 0
	}

	entries, err := a.client.History(ctx, id)
	if err != nil {
		return a.fail(err)
	}
	for _, e := range entries {
		digest := e.Digest
		if len(digest) > 12 {
			digest = digest[:12]
		}
		fmt.Fprintf(a.stdout, "v%-4d %s  %-12s %s  %s\n",
			e.Version, e.CreatedAt.Format("2006-01-02 15:04:05"), e.UserID, digest, e.Comment)
	}
	return 0
}

func runExport(ctx context.Context, a *app, args []string) int {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	format := fs.String("format", "yaml", "Output format: yaml, json, dot, svg, or png")
	out := fs.String("o", "", "Write to this file instead of stdout")
	if ok, code := a.parse(fs, args, 1, "[-format yaml|json|dot|svg|png] [-o file] <node-id>"); !ok {
		return code
	}
	n, err := a.engine.Load(ctx, fs.Arg(0))
	if err != nil {
		return a.fail(err)
	}
	data, err := exportNode(ctx, n, *format)
	if err != nil {
		return a.fail(err)
	}
	if *out == "" {
		_, _ = a.stdout.Write(data)
		return 0
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		return a.fail(err)
	}
	return 0
}

// exportNode encodes n as JSON, YAML, or a graphviz rendering. YAML keys follow
// the JSON field names.
func exportNode(ctx context.Context, n *tree.Node, format string) ([]byte, error) {
	format = strings.ToLower(format)
	switch format {
	case "dot", "svg", "png":
		return render.Render(ctx, n, format)
	}
	data, err := json.MarshalIndent(n, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode node: %w", err)
	}
	switch format {
	case "json":
		return append(data, '\n'), nil
	case "yaml", "yml":
		var doc any
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("encode node: %w", err)
		}
		return yaml.Marshal(doc)
	default:
		return nil, fmt.Errorf("unknown export format %q", format)
	}
}

func (a *app) writeJSON(v any) int {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return a.fail(err)
	}
	return 0
}
