// ABOUTME: Tests for the mutation engine against a real tree service on a temporary sqlite file.
// ABOUTME: Covers optimistic commits, no-op detection, conflicts between engines, rollback, and events.

package mutation_test

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/2389-research/flowgraph/graph"
	"github.com/2389-research/flowgraph/mutation"
	"github.com/2389-research/flowgraph/tree"
	"github.com/2389-research/flowgraph/treeclient"
	"github.com/2389-research/flowgraph/treeserver"
)

func newService(t *testing.T) *httptest.Server {
	t.Helper()
	db, err := treeserver.OpenDB(filepath.Join(t.TempDir(), "tree.db"))
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	srv := httptest.NewServer(treeserver.NewServer(treeserver.NewService(db)))
	t.Cleanup(srv.Close)
	return srv
}

func newEngine(srv *httptest.Server) *mutation.Engine {
	return mutation.NewEngine(tree.NewStore(), treeclient.New(srv.URL, treeclient.WithUser("alice")))
}

func createModel(t *testing.T, e *mutation.Engine, name string) *tree.Node {
	t.Helper()
	n, err := e.Create(context.Background(), tree.NewNode(tree.RootID, name, tree.Model, ""))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return n
}

func addInport(m *graph.Model) error {
	_, err := graph.AddPort(m, graph.KindInport, graph.Position{X: 10, Y: 10})
	return err
}

func serverVersion(t *testing.T, srv *httptest.Server, id string) int64 {
	t.Helper()
	n, err := treeclient.New(srv.URL, treeclient.WithUser("alice")).Node(context.Background(), id)
	if err != nil {
		t.Fatalf("Node: %v", err)
	}
	return n.Version
}

func TestNewInportOnEmptyModel(t *testing.T) {
	srv := newService(t)
	e := newEngine(srv)
	n := createModel(t, e, "Plant")
	if n.Version != 1 {
		t.Fatalf("created version = %d", n.Version)
	}

	res, err := e.MutateGraph(context.Background(), n.ID, addInport, mutation.Options{})
	if err != nil {
		t.Fatalf("MutateGraph: %v", err)
	}
	if res.Outcome != mutation.Committed || res.Node.Version != 2 {
		t.Errorf("result = %s v%d, want committed v2", res.Outcome, res.Node.Version)
	}
	m, _ := res.Node.Graph()
	if len(m.Inports) != 1 {
		t.Fatalf("inports = %d, want 1", len(m.Inports))
	}
	for _, p := range m.Inports {
		if p.Name != "Input" {
			t.Errorf("name = %q, want Input", p.Name)
		}
	}
	if v := serverVersion(t, srv, n.ID); v != 2 {
		t.Errorf("server version = %d, want 2", v)
	}
	if v, _ := e.Store().Version(n.ID); v != 2 {
		t.Errorf("store version = %d, want 2", v)
	}
}

func TestVersionGrowsByOnePerMutation(t *testing.T) {
	srv := newService(t)
	e := newEngine(srv)
	n := createModel(t, e, "Plant")

	const edits = 5
	for i := 0; i < edits; i++ {
		if _, err := e.MutateGraph(context.Background(), n.ID, addInport, mutation.Options{}); err != nil {
			t.Fatalf("edit %d: %v", i, err)
		}
	}
	got, _ := e.Store().Get(n.ID)
	if got.Version != 1+edits {
		t.Errorf("version = %d, want %d", got.Version, 1+edits)
	}
	m, _ := got.Graph()
	if len(m.Inports) != edits {
		t.Errorf("inports = %d, want %d", len(m.Inports), edits)
	}
}

func TestUnchangedContentSkipsNetwork(t *testing.T) {
	srv := newService(t)
	e := newEngine(srv)
	n := createModel(t, e, "Plant")

	res, err := e.MutateGraph(context.Background(), n.ID, func(m *graph.Model) error { return nil }, mutation.Options{})
	if err != nil {
		t.Fatalf("MutateGraph: %v", err)
	}
	if res.Outcome != mutation.NoChanges {
		t.Errorf("outcome = %s, want no-changes", res.Outcome)
	}
	if v := serverVersion(t, srv, n.ID); v != 1 {
		t.Errorf("server version = %d, want 1", v)
	}
}

func TestValidationFailures(t *testing.T) {
	srv := newService(t)
	e := newEngine(srv)
	n := createModel(t, e, "Plant")

	_, err := e.MutateGraph(context.Background(), "missing", addInport, mutation.Options{})
	if !errors.Is(err, mutation.ErrValidation) {
		t.Errorf("unknown node err = %v, want ErrValidation", err)
	}

	_, err = e.Mutate(context.Background(), n.ID, func(d *tree.Node) error {
		d.Version = 7
		return nil
	}, mutation.Options{})
	if !errors.Is(err, mutation.ErrValidation) {
		t.Errorf("version change err = %v, want ErrValidation", err)
	}

	sentinel := errors.New("refused")
	_, err = e.MutateGraph(context.Background(), n.ID, func(m *graph.Model) error { return sentinel }, mutation.Options{})
	if !errors.Is(err, sentinel) {
		t.Errorf("mutator err = %v, want wrapped sentinel", err)
	}
	if v := serverVersion(t, srv, n.ID); v != 1 {
		t.Errorf("server version = %d, want untouched", v)
	}
}

func TestStaleSessionConflictsAndRollsBack(t *testing.T) {
	srv := newService(t)
	a := newEngine(srv)
	b := newEngine(srv)
	n := createModel(t, a, "Plant")
	if _, err := a.MutateGraph(context.Background(), n.ID, addInport, mutation.Options{}); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Load(context.Background(), n.ID); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if _, err := a.MutateGraph(context.Background(), n.ID, addInport, mutation.Options{}); err != nil {
		t.Fatalf("session A: %v", err)
	}

	events := b.Events().Subscribe()
	defer b.Events().Unsubscribe(events)

	_, err := b.MutateGraph(context.Background(), n.ID, func(m *graph.Model) error {
		_, err := graph.AddPort(m, graph.KindOutport, graph.Position{})
		return err
	}, mutation.Options{})
	var f *mutation.Failure
	if !errors.As(err, &f) || f.Kind != treeclient.VersionConflict {
		t.Fatalf("err = %v, want VersionConflict failure", err)
	}
	if !mutation.IsKind(err, treeclient.VersionConflict) {
		t.Error("IsKind disagrees with the failure")
	}

	got, _ := b.Store().Get(n.ID)
	gm, _ := got.Graph()
	if got.Version != 2 || len(gm.Outports) != 0 || len(gm.Inports) != 1 {
		t.Errorf("rolled back to v%d with %d outports, want v2 with none", got.Version, len(gm.Outports))
	}
	if f.Attempted == nil || f.Attempted.Version != 3 {
		t.Fatalf("attempted = %+v", f.Attempted)
	}

	ev := <-events
	if ev.Type != mutation.EventFailed || ev.Kind != treeclient.VersionConflict || ev.NodeID != n.ID {
		t.Errorf("event = %+v", ev)
	}

	res, err := b.Overwrite(context.Background(), f.Attempted)
	if err != nil {
		t.Fatalf("Overwrite: %v", err)
	}
	if res.Node.Version != 4 {
		t.Errorf("overwritten version = %d, want 4", res.Node.Version)
	}
	om, _ := res.Node.Graph()
	if len(om.Outports) != 1 || len(om.Inports) != 1 {
		t.Errorf("overwrite kept %d inports %d outports, want session B's content", len(om.Inports), len(om.Outports))
	}
}

func TestReloadAdoptsServerState(t *testing.T) {
	srv := newService(t)
	a := newEngine(srv)
	b := newEngine(srv)
	n := createModel(t, a, "Plant")
	if _, err := b.Load(context.Background(), n.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := a.MutateGraph(context.Background(), n.ID, addInport, mutation.Options{}); err != nil {
		t.Fatal(err)
	}

	got, err := b.Reload(context.Background(), n.ID)
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	gm, _ := got.Graph()
	if got.Version != 2 || len(gm.Inports) != 1 {
		t.Errorf("reloaded v%d with %d inports", got.Version, len(gm.Inports))
	}
}

func TestIgnoreVersionConflictAdoptsServerVersion(t *testing.T) {
	srv := newService(t)
	a := newEngine(srv)
	b := newEngine(srv)
	n := createModel(t, a, "Plant")
	if _, err := b.Load(context.Background(), n.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := a.MutateGraph(context.Background(), n.ID, addInport, mutation.Options{}); err != nil {
		t.Fatal(err)
	}

	res, err := b.MutateSparse(context.Background(), n.ID, func(d *tree.Node) error {
		d.Name = "Renamed"
		return nil
	}, true)
	if err != nil {
		t.Fatalf("MutateSparse: %v", err)
	}
	if res.Node.Version != 3 || res.Node.Name != "Renamed" {
		t.Errorf("result = %q v%d, want Renamed v3", res.Node.Name, res.Node.Version)
	}
	if v, _ := b.Store().Version(n.ID); v != 3 {
		t.Errorf("store version = %d, want server's 3", v)
	}
}

func TestNetworkFailureRollsBack(t *testing.T) {
	srv := newService(t)
	e := newEngine(srv)
	n := createModel(t, e, "Plant")
	srv.Close()

	_, err := e.MutateGraph(context.Background(), n.ID, addInport, mutation.Options{})
	if !mutation.IsKind(err, treeclient.NetworkFailure) {
		t.Fatalf("err = %v, want NetworkFailure", err)
	}
	got, _ := e.Store().Get(n.ID)
	gm, _ := got.Graph()
	if got.Version != 1 || len(gm.Inports) != 0 {
		t.Errorf("store = v%d with %d inports, want rollback", got.Version, len(gm.Inports))
	}
}

func TestTrashBlockedByDependentModel(t *testing.T) {
	srv := newService(t)
	e := newEngine(srv)
	pump := createModel(t, e, "Pump")
	plant := createModel(t, e, "Plant")
	_, err := e.MutateGraph(context.Background(), plant.ID, func(m *graph.Model) error {
		graph.AddProcess(m, tree.GeneratePID(pump), "Pump", graph.Position{})
		return nil
	}, mutation.Options{})
	if err != nil {
		t.Fatalf("add process: %v", err)
	}
	got, _ := e.Store().Get(plant.ID)
	if len(got.ProcessDependencies) != 1 || got.ProcessDependencies[0] != pump.ID {
		t.Errorf("dependencies = %v", got.ProcessDependencies)
	}

	_, err = e.Trash(context.Background(), pump.ID)
	if !mutation.IsKind(err, treeclient.FailedDependency) {
		t.Fatalf("err = %v, want FailedDependency", err)
	}
	if _, ok := e.Store().Get(pump.ID); !ok {
		t.Error("refused trash removed the node locally")
	}

	if _, err := e.Trash(context.Background(), plant.ID); err != nil {
		t.Fatalf("trash plant: %v", err)
	}
	if _, err := e.Trash(context.Background(), pump.ID); err != nil {
		t.Fatalf("trash pump after plant: %v", err)
	}
	if e.Store().Len() != 0 {
		t.Errorf("store still holds %d nodes", e.Store().Len())
	}
}

func TestRecoverRestoresNode(t *testing.T) {
	srv := newService(t)
	e := newEngine(srv)
	n := createModel(t, e, "Plant")

	events := e.Events().Subscribe()
	defer e.Events().Unsubscribe(events)

	ids, err := e.Trash(context.Background(), n.ID)
	if err != nil {
		t.Fatal(err)
	}
	if ev := <-events; ev.Type != mutation.EventTrashed || len(ev.IDs) != 1 || ev.IDs[0] != ids[0] {
		t.Errorf("trash event = %+v", ev)
	}

	got, err := e.Recover(context.Background(), n.ID)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if got.Trashed() || got.Version != 3 {
		t.Errorf("recovered = v%d trashed=%v", got.Version, got.Trashed())
	}
	if _, ok := e.Store().Get(n.ID); !ok {
		t.Error("recovered node missing from store")
	}
	if ev := <-events; ev.Type != mutation.EventRecovered {
		t.Errorf("recover event = %+v", ev)
	}
}

func TestConcurrentMutationsOfOneNodeSerialize(t *testing.T) {
	srv := newService(t)
	e := newEngine(srv)
	n := createModel(t, e, "Plant")

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.MutateGraph(context.Background(), n.ID, addInport, mutation.Options{})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("concurrent mutation: %v", err)
		}
	}
	if v := serverVersion(t, srv, n.ID); v != 1+writers {
		t.Errorf("server version = %d, want %d", v, 1+writers)
	}
}

func TestLoadTreeKeepsLoadedContent(t *testing.T) {
	srv := newService(t)
	e := newEngine(srv)
	for i := 0; i < 3; i++ {
		createModel(t, e, fmt.Sprintf("Model %d", i))
	}
	first := e.Store().Nodes()[0]

	fresh := newEngine(srv)
	if _, err := fresh.Load(context.Background(), first.ID); err != nil {
		t.Fatal(err)
	}
	nodes, err := fresh.LoadTree(context.Background(), tree.RootID, treeclient.TreeQuery{Sparse: true})
	if err != nil {
		t.Fatalf("LoadTree: %v", err)
	}
	if len(nodes) != 3 || fresh.Store().Len() != 3 {
		t.Fatalf("loaded %d, stored %d", len(nodes), fresh.Store().Len())
	}
	got, _ := fresh.Store().Get(first.ID)
	if got.Content == nil {
		t.Error("sparse listing dropped loaded content")
	}
}
