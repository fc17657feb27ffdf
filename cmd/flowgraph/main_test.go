// ABOUTME: Tests for the flowgraph CLI covering dispatch, help, and every client subcommand end to end.
// ABOUTME: Runs commands against an in-process tree service backed by sqlite in a temp dir.

package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/2389-research/flowgraph/tree"
	"github.com/2389-research/flowgraph/treeclient"
	"github.com/2389-research/flowgraph/treeserver"
	"gopkg.in/yaml.v3"
)

type harness struct {
	t      *testing.T
	url    string
	client *treeclient.Client
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	for _, k := range []string{
		"FLOWGRAPH_SERVER_URL", "FLOWGRAPH_TOKEN", "FLOWGRAPH_USER", "FLOWGRAPH_BIND",
		"FLOWGRAPH_DATA_DIR", "FLOWGRAPH_JWT_SECRET", "FLOWGRAPH_ALLOW_REMOTE",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	db, err := treeserver.OpenDB(filepath.Join(t.TempDir(), "tree.db"))
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	srv := httptest.NewServer(treeserver.NewServer(treeserver.NewService(db)))
	t.Cleanup(srv.Close)
	return &harness{t: t, url: srv.URL, client: treeclient.New(srv.URL, treeclient.WithUser("alice"))}
}

// run executes one CLI invocation as alice and returns stdout, stderr and the exit code.
func (h *harness) run(args ...string) (string, string, int) {
	h.t.Helper()
	var stdout, stderr bytes.Buffer
	full := append([]string{"-config", "", "-server", h.url, "-user", "alice"}, args...)
	code := run(full, strings.NewReader(""), &stdout, &stderr)
	return stdout.String(), stderr.String(), code
}

// ok runs args, fails the test on a non-zero exit, and returns the first field of stdout.
func (h *harness) ok(args ...string) string {
	h.t.Helper()
	out, errOut, code := h.run(args...)
	if code != 0 {
		h.t.Fatalf("%v: exit %d\nstderr: %s", args, code, errOut)
	}
	fields := strings.Fields(out)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func (h *harness) node(id string) *tree.Node {
	h.t.Helper()
	n, err := h.client.Node(context.Background(), id)
	if err != nil {
		h.t.Fatalf("Node(%s): %v", id, err)
	}
	return n
}

func TestRunWithoutCommandPrintsHelp(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run(nil, strings.NewReader(""), &stdout, &stderr); code != 2 {
		t.Errorf("exit = %d, want 2", code)
	}
	if !strings.Contains(stderr.String(), "Commands:") {
		t.Errorf("help missing from stderr:\n%s", stderr.String())
	}
}

func TestRunUnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run([]string{"frobnicate"}, strings.NewReader(""), &stdout, &stderr); code != 2 {
		t.Errorf("exit = %d, want 2", code)
	}
	if !strings.Contains(stderr.String(), `unknown command "frobnicate"`) {
		t.Errorf("stderr = %q", stderr.String())
	}
}

func TestVersionCommand(t *testing.T) {
	h := newHarness(t)
	out, _, code := h.run("version")
	if code != 0 || !strings.Contains(out, "flowgraph dev") {
		t.Errorf("exit %d, out %q", code, out)
	}
}

func TestSubcommandUsageErrors(t *testing.T) {
	h := newHarness(t)
	for _, args := range [][]string{
		{"show"},
		{"connect", "g", "a"},
		{"rename", "x"},
		{"create", "-bogus", "x"},
	} {
		if _, _, code := h.run(args...); code != 2 {
			t.Errorf("%v: exit = %d, want 2", args, code)
		}
	}
}

func TestPrintHelpListsCommandsAndEnv(t *testing.T) {
	var buf bytes.Buffer
	t.Setenv("FLOWGRAPH_JWT_SECRET", "x")
	printHelp(&buf, "1.2.3")
	out := buf.String()
	for _, want := range []string{"flowgraph 1.2.3", "serve", "add-process", "paste", "FLOWGRAPH_JWT_SECRET    [set]", "FLOWGRAPH_TOKEN         [not set]"} {
		if !strings.Contains(out, want) {
			t.Errorf("help missing %q", want)
		}
	}
}

func TestCreateAndList(t *testing.T) {
	h := newHarness(t)
	folder := h.ok("create", "-type", "folder", "Plants")
	h.ok("create", "-parent", folder, "Boiler")
	h.ok("create", "-parent", folder, "Boiler")

	out, _, code := h.run("ls", "Plants/*")
	if code != 0 {
		t.Fatalf("ls exit %d", code)
	}
	for _, want := range []string{"Plants/Boiler ", "Plants/Boiler 1 "} {
		if !strings.Contains(out, want) {
			t.Errorf("ls missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Plants ") {
		t.Errorf("ls matched the folder itself:\n%s", out)
	}

	if _, errOut, code := h.run("create", "-type", "widget", "X"); code != 1 || !strings.Contains(errOut, "unknown node type") {
		t.Errorf("bad type: exit %d stderr %q", code, errOut)
	}
}

func TestGraphEditingCommands(t *testing.T) {
	h := newHarness(t)
	model := h.ok("create", "Boiler")
	in := h.ok("add-port", "-kind", "in", "-name", "Fuel", model)
	out := h.ok("add-port", "-kind", "out", "-x", "300", model)
	h.ok("connect", model, in, out)
	h.ok("move", "-x", "10", "-y", "20", model, in)

	n := h.node(model)
	m, _ := n.Graph()
	if n.Version != 5 {
		t.Errorf("version = %d, want 5", n.Version)
	}
	if m.Inports[in].Name != "Fuel" || m.Inports[in].Metadata.X != 10 || len(m.Connections) != 1 {
		t.Errorf("graph = %+v", m)
	}

	summary, _, code := h.run("show", model)
	if code != 0 || !strings.Contains(summary, "[in] Fuel") || !strings.Contains(summary, "--> Output") {
		t.Errorf("show exit %d:\n%s", code, summary)
	}

	h.ok("delete", model, in)
	m, _ = h.node(model).Graph()
	if len(m.Inports) != 0 || len(m.Connections) != 0 {
		t.Errorf("after delete: %d inports %d connections", len(m.Inports), len(m.Connections))
	}

	if _, errOut, code := h.run("connect", model, "nope", out); code != 1 || errOut == "" {
		t.Errorf("bad connect: exit %d stderr %q", code, errOut)
	}
}

func TestAddProcessRecordsDependency(t *testing.T) {
	h := newHarness(t)
	inner := h.ok("create", "Pump")
	h.ok("add-port", "-kind", "in", inner)
	outer := h.ok("create", "Plant")
	proc := h.ok("add-process", "-ref", inner, outer)

	n := h.node(outer)
	m, _ := n.Graph()
	p, ok := m.Processes[proc]
	if !ok || p.Label != "Pump" || p.Ref != inner || len(p.Inports) != 1 {
		t.Fatalf("process = %+v", p)
	}
	if len(n.ProcessDependencies) != 1 || n.ProcessDependencies[0] != inner {
		t.Errorf("dependencies = %v", n.ProcessDependencies)
	}

	if _, errOut, code := h.run("trash", inner); code != 1 || !strings.Contains(errOut, "FailedDependency") {
		t.Errorf("trash of used model: exit %d stderr %q", code, errOut)
	}
}

func TestPasteCanvasAndLibrary(t *testing.T) {
	h := newHarness(t)
	model := h.ok("create", "Boiler")
	in := h.ok("add-port", model)

	h.ok("paste", "-from", model, "-x", "40", model, in)
	m, _ := h.node(model).Graph()
	if len(m.Inports) != 2 {
		t.Fatalf("inports = %d, want 2", len(m.Inports))
	}

	folder := h.ok("create", "-type", "FOLDER", "Archive")
	copied := h.ok("paste", folder, model)
	c := h.node(copied)
	if c.ParentID != folder || c.Name != "Boiler" {
		t.Errorf("copy = %s under %s", c.Name, c.ParentID)
	}

	h.ok("paste", "-cut", folder, model)
	moved := h.node(model)
	if moved.ParentID != folder || moved.Name != "Boiler 1" {
		t.Errorf("cut = %q under %s", moved.Name, moved.ParentID)
	}
}

func TestRenameTrashRecoverHistory(t *testing.T) {
	h := newHarness(t)
	model := h.ok("create", "Boiler")
	h.ok("create", "Kettle")
	folder := h.ok("create", "-type", "FOLDER", "Docs")

	h.ok("rename", model, "Kettle")
	if got := h.node(model).Name; got != "Kettle 1" {
		t.Errorf("renamed model = %q, want Kettle 1", got)
	}
	h.ok("rename", folder, "Notes")
	if got := h.node(folder).Name; got != "Notes" {
		t.Errorf("renamed folder = %q", got)
	}

	trashed, _, code := h.run("trash", model)
	if code != 0 || !strings.Contains(trashed, model) {
		t.Fatalf("trash exit %d out %q", code, trashed)
	}
	h.ok("recover", model)

	h.ok("history", "-version", "1", "-comment", "first draft", model)
	hist, _, code := h.run("history", model)
	if code != 0 {
		t.Fatalf("history exit %d", code)
	}
	for _, want := range []string{"v1 ", "first draft", "v2 "} {
		if !strings.Contains(hist, want) {
			t.Errorf("history missing %q:\n%s", want, hist)
		}
	}
	if _, _, code := h.run("history", "-comment", "x", model); code != 1 {
		t.Errorf("comment without version: exit %d", code)
	}
}

func TestExportFormats(t *testing.T) {
	h := newHarness(t)
	model := h.ok("create", "Boiler")
	h.ok("add-port", model)

	out, _, code := h.run("export", model)
	if code != 0 {
		t.Fatalf("export exit %d", code)
	}
	var doc map[string]any
	if err := yaml.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("yaml: %v\n%s", err, out)
	}
	if doc["name"] != "Boiler" || doc["type"] != "MODEL" {
		t.Errorf("doc = %v", doc)
	}

	path := filepath.Join(t.TempDir(), "boiler.json")
	h.ok("export", "-format", "json", "-o", path, model)
	data, err := os.ReadFile(path)
	if err != nil || !strings.Contains(string(data), `"inports"`) {
		t.Errorf("json export: %v\n%s", err, data)
	}

	dot, _, code := h.run("export", "-format", "dot", model)
	if code != 0 || !strings.HasPrefix(dot, "digraph Boiler {") || !strings.Contains(dot, `label="Input"`) {
		t.Errorf("dot export: exit %d\n%s", code, dot)
	}

	if _, _, code := h.run("export", "-format", "toml", model); code != 1 {
		t.Errorf("unknown format: exit %d", code)
	}
}

func TestTokenCommand(t *testing.T) {
	h := newHarness(t)
	if _, errOut, code := h.run("token"); code != 1 || !strings.Contains(errOut, "FLOWGRAPH_JWT_SECRET") {
		t.Errorf("no secret: exit %d stderr %q", code, errOut)
	}

	t.Setenv("FLOWGRAPH_JWT_SECRET", "s3cret")
	tok := h.ok("token", "-for", "bob", "-name", "Bob", "-ttl", "1h")
	claims, err := treeserver.ParseToken([]byte("s3cret"), tok)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.Subject != "bob" || claims.Name != "Bob" {
		t.Errorf("claims = %+v", claims)
	}
	if claims.ExpiresAt.Time.Before(time.Now().Add(50 * time.Minute)) {
		t.Errorf("expiry = %v", claims.ExpiresAt)
	}
}

func TestServeRejectsPublicBind(t *testing.T) {
	h := newHarness(t)
	_, errOut, code := h.run("serve", "-bind", "0.0.0.0:0", "-data-dir", t.TempDir())
	if code != 1 || !strings.Contains(errOut, "non-loopback") {
		t.Errorf("exit %d stderr %q", code, errOut)
	}
}
