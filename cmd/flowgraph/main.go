// ABOUTME: CLI entrypoint for flowgraph: runs the tree service or edits graph documents against it.
// ABOUTME: Parses global flags, loads configuration, and dispatches to one subcommand per operation.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"

	"github.com/2389-research/flowgraph/config"
	"github.com/2389-research/flowgraph/mutation"
	"github.com/2389-research/flowgraph/selection"
	"github.com/2389-research/flowgraph/tree"
	"github.com/2389-research/flowgraph/treeclient"
	"github.com/mattn/go-isatty"
)

var version = "dev"

// app carries what every subcommand needs.
type app struct {
	cfg         *config.Config
	stdin       io.Reader
	stdout      io.Writer
	stderr      io.Writer
	interactive bool

	client *treeclient.Client
	engine *mutation.Engine
	sel    *selection.Model
}

type command struct {
	run     func(ctx context.Context, a *app, args []string) int
	summary string
}

var commands = map[string]command{
	"serve":       {runServe, "Start the tree service"},
	"token":       {runToken, "Issue a signed identity token"},
	"create":      {runCreate, "Create a tree node"},
	"show":        {runShow, "Show a node and its graph"},
	"ls":          {runList, "List nodes whose path matches a glob"},
	"add-port":    {runAddPort, "Add a graph inport or outport"},
	"add-process": {runAddProcess, "Instantiate a model as a process"},
	"connect":     {runConnect, "Connect two ports"},
	"move":        {runMove, "Move a graph element"},
	"delete":      {runDelete, "Delete graph elements"},
	"paste":       {runPaste, "Copy or move elements or nodes"},
	"rename":      {runRename, "Rename a node"},
	"trash":       {runTrash, "Move a node and its subtree to the trash"},
	"recover":     {runRecover, "Restore a trashed node"},
	"history":     {runHistory, "List or comment node versions"},
	"export":      {runExport, "Write a node as YAML or JSON"},
	"version":     {runVersion, "Print version and exit"},
}

func commandNames() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func main() {
	config.LoadDotEnvAuto()
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run parses global flags and dispatches to a subcommand.
// Returns an exit code: 0 for success, 1 for failure, 2 for usage errors.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("flowgraph", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", config.DefaultConfigPath(), "Config file")
	serverURL := fs.String("server", "", "Tree service URL (overrides config)")
	user := fs.String("user", "", "User identity (overrides config)")
	token := fs.String("token", "", "Bearer token (overrides config)")
	fs.Usage = func() { printHelp(stderr, version) }

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() == 0 {
		printHelp(stderr, version)
		return 2
	}

	name := fs.Arg(0)
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "error: unknown command %q\n", name)
		printHelp(stderr, version)
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	if *serverURL != "" {
		cfg.ServerURL = *serverURL
	}
	if *user != "" {
		cfg.User = *user
	}
	if *token != "" {
		cfg.Token = *token
	}

	a := newApp(cfg, stdin, stdout, stderr)
	return cmd.run(context.Background(), a, fs.Args()[1:])
}

func newApp(cfg *config.Config, stdin io.Reader, stdout, stderr io.Writer) *app {
	opts := []treeclient.Option{
		treeclient.WithUser(cfg.User),
		treeclient.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout}),
	}
	if cfg.Token != "" {
		opts = append(opts, treeclient.WithToken(cfg.Token))
	}
	client := treeclient.New(cfg.ServerURL, opts...)
	return &app{
		cfg:         cfg,
		stdin:       stdin,
		stdout:      stdout,
		stderr:      stderr,
		interactive: isTerminal(stdin),
		client:      client,
		engine:      mutation.NewEngine(tree.NewStore(), client),
		sel:         selection.New(),
	}
}

// isTerminal reports whether r is an interactive terminal.
func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// fail prints err and returns the failure exit code.
func (a *app) fail(err error) int {
	fmt.Fprintf(a.stderr, "error: %v\n", err)
	return 1
}

// parse parses a subcommand's flags, reporting usage errors with code 2. want is
// the minimum number of positional arguments.
func (a *app) parse(fs *flag.FlagSet, args []string, want int, usage string) (bool, int) {
	fs.SetOutput(a.stderr)
	fs.Usage = func() {
		fmt.Fprintf(a.stderr, "Usage: flowgraph %s %s\n", fs.Name(), usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return false, 0
		}
		return false, 2
	}
	if fs.NArg() < want {
		fs.Usage()
		return false, 2
	}
	return true, 0
}

func runVersion(_ context.Context, a *app, _ []string) int {
	fmt.Fprintf(a.stdout, "flowgraph %s\n", version)
	return 0
}
