//go:build linux

package procexecutor

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/specialistvlad/shmdag/internal/dag"
	"github.com/specialistvlad/shmdag/internal/executor"
	"github.com/specialistvlad/shmdag/internal/graph"
	"github.com/specialistvlad/shmdag/internal/node"
	"github.com/specialistvlad/shmdag/internal/segment"
	"github.com/specialistvlad/shmdag/internal/shmname"
	"github.com/specialistvlad/shmdag/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	testutil.MaybeRunWorker()
	os.Exit(m.Run())
}

type fixture struct {
	dir   string
	graph *graph.Manager
	seg   *segment.Segment
	errW  *testutil.SafeBuffer
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	topo := testutil.BuildGraphFromNodes(t, []dag.Node{
		{ID: "hello", Payload: dag.Payload{Kind: dag.KindPrint, Label: "hello"}},
		{ID: "fails", Payload: dag.Payload{Kind: dag.KindCommand, Label: "fails", Command: []string{"sh", "-c", "exit 3"}}},
		{ID: "sleeps", Payload: dag.Payload{Kind: dag.KindCommand, Label: "sleeps", Command: []string{"sleep", "30"}}},
		{ID: "orphan", Payload: dag.Payload{Kind: dag.KindCommand, Label: "orphan", Command: []string{"sh", "-c", "sleep 5 & echo started"}}},
	})
	seg, err := segment.Create(ctx, shmname.MustParse("proc"), topo, segment.Options{Dir: dir})
	require.NoError(t, err)
	t.Cleanup(func() {
		seg.Close()
		seg.Unlink()
	})

	g, err := graph.New(topo, seg)
	require.NoError(t, err)
	return &fixture{dir: dir, graph: g, seg: seg, errW: &testutil.SafeBuffer{}}
}

func (f *fixture) options() Options {
	return Options{
		Args:      testutil.WorkerArgs,
		Segment:   "proc",
		ShmDir:    f.dir,
		KillGrace: 2 * time.Second,
		Stderr:    f.errW,
	}
}

// dispatch claims id the way the scheduler does before Start.
func (f *fixture) dispatch(t *testing.T, id string) executor.Assignment {
	t.Helper()
	ctx := context.Background()
	i, ok := f.graph.Topology().Index(id)
	require.True(t, ok)
	_, err := f.graph.MarkReady(ctx, i)
	require.NoError(t, err)
	claimed, err := f.graph.MarkDispatched(ctx, i)
	require.NoError(t, err)
	require.True(t, claimed)
	return executor.Assignment{Index: i, NodeID: id}
}

func (f *fixture) run(t *testing.T, opts Options, id string) (executor.Result, node.Slot) {
	t.Helper()
	e, err := New(opts)
	require.NoError(t, err)

	a := f.dispatch(t, id)
	done := make(chan executor.Result, 1)
	require.NoError(t, e.Start(context.Background(), a, done))

	var res executor.Result
	select {
	case res = <-done:
	case <-time.After(20 * time.Second):
		t.Fatalf("worker for %s did not finish; stderr:\n%s", id, f.errW.String())
	}
	e.Wait()

	slot, err := f.seg.Get(context.Background(), a.Index)
	require.NoError(t, err)
	return res, slot
}

func TestStart_Completed(t *testing.T) {
	f := setup(t)
	res, slot := f.run(t, f.options(), "hello")

	assert.Equal(t, 0, res.ExitCode, f.errW.String())
	assert.NoError(t, res.Err)
	assert.False(t, res.TimedOut)
	assert.Equal(t, "hello\n", string(res.Output))

	assert.Equal(t, node.StatusCompleted, slot.Status)
	assert.Equal(t, res.PID, slot.PID, "the worker records its own pid")
}

func TestStart_UnitFailure(t *testing.T) {
	f := setup(t)
	res, slot := f.run(t, f.options(), "fails")

	assert.Equal(t, 1, res.ExitCode)
	assert.NoError(t, res.Err, "a plain non-zero exit is not an executor error")
	assert.Equal(t, node.StatusFailed, slot.Status)
	assert.Contains(t, slot.Detail, "exit status 3")
}

func TestStart_Timeout(t *testing.T) {
	f := setup(t)
	opts := f.options()
	opts.NodeTimeout = 300 * time.Millisecond

	start := time.Now()
	res, slot := f.run(t, opts, "sleeps")

	assert.True(t, res.TimedOut)
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.Equal(t, node.StatusFailed, slot.Status)
}

func TestStart_BackgroundProcessHoldsStdout(t *testing.T) {
	f := setup(t)
	opts := f.options()
	opts.KillGrace = 500 * time.Millisecond

	start := time.Now()
	res, slot := f.run(t, opts, "orphan")

	assert.Less(t, time.Since(start), 10*time.Second, "the left-behind sleep must not hold up the reap")
	assert.Equal(t, 0, res.ExitCode, f.errW.String())
	assert.NoError(t, res.Err)
	assert.False(t, res.TimedOut)
	assert.Equal(t, "orphan\nstarted\n", string(res.Output))
	assert.Equal(t, node.StatusCompleted, slot.Status)
}

func TestStart_Stream(t *testing.T) {
	f := setup(t)
	out := &testutil.SafeBuffer{}
	opts := f.options()
	opts.Stream = out

	res, _ := f.run(t, opts, "hello")
	assert.Nil(t, res.Output)
	assert.Equal(t, "hello\n", out.String())
}

func TestStart_WorkerCannotOpenSegment(t *testing.T) {
	f := setup(t)
	opts := f.options()
	opts.Segment = "other"

	res, slot := f.run(t, opts, "hello")
	assert.Equal(t, 2, res.ExitCode)
	assert.Equal(t, node.StatusDispatched, slot.Status, "nothing was recorded by the worker")
}

func TestStart_SpawnFailure(t *testing.T) {
	f := setup(t)
	opts := f.options()
	opts.Executable = "/nonexistent/shmdag-worker"
	e, err := New(opts)
	require.NoError(t, err)

	err = e.Start(context.Background(), f.dispatch(t, "hello"), make(chan executor.Result, 1))
	assert.ErrorContains(t, err, "spawn worker for hello")
	e.Wait()
}

func TestStart_CancelStopsWorker(t *testing.T) {
	f := setup(t)
	e, err := New(f.options())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan executor.Result, 1)
	require.NoError(t, e.Start(ctx, f.dispatch(t, "sleeps"), done))

	time.AfterFunc(300*time.Millisecond, cancel)
	select {
	case res := <-done:
		assert.False(t, res.TimedOut, "cancellation is not a timeout")
		assert.NotEqual(t, 0, res.ExitCode)
	case <-time.After(20 * time.Second):
		t.Fatal("cancelled worker was not reaped")
	}
	e.Wait()
}
