package scheduler

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/specialistvlad/shmdag/internal/dag"
	"github.com/specialistvlad/shmdag/internal/executor"
	"github.com/specialistvlad/shmdag/internal/graph"
	"github.com/specialistvlad/shmdag/internal/inmemorystore"
	"github.com/specialistvlad/shmdag/internal/metrics"
	"github.com/specialistvlad/shmdag/internal/node"
	"github.com/specialistvlad/shmdag/internal/nodestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// behavior scripts what the fake worker of one node does.
type behavior struct {
	delay time.Duration
	fail  bool
	// silent workers exit without touching their slot.
	silent   bool
	exitCode int
	// block workers wait for cancellation, then record Failed.
	block    bool
	startErr error
}

// fakeExecutor follows the worker protocol on goroutines, with scripted
// outcomes per node.
type fakeExecutor struct {
	store    nodestore.Store
	behavior map[string]behavior

	wg         sync.WaitGroup
	mu         sync.Mutex
	running    int
	maxRunning int
}

func (f *fakeExecutor) Start(ctx context.Context, a executor.Assignment, done chan<- executor.Result) error {
	b := f.behavior[a.NodeID]
	if b.startErr != nil {
		return b.startErr
	}

	f.mu.Lock()
	f.running++
	f.maxRunning = max(f.maxRunning, f.running)
	f.mu.Unlock()

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		bg := context.Background()
		res := executor.Result{Assignment: a, PID: 1000 + a.Index, Output: []byte(a.NodeID + "\n")}

		if !b.silent {
			_, err := f.store.Transition(bg, a.Index, node.Transition{From: node.StatusDispatched, To: node.StatusRunning, PID: res.PID})
			if err != nil {
				panic(err)
			}
		}

		if b.block {
			<-ctx.Done()
		}
		time.Sleep(b.delay)

		f.mu.Lock()
		f.running--
		f.mu.Unlock()

		switch {
		case b.silent:
			res.ExitCode = b.exitCode
		case b.fail || b.block:
			res.ExitCode = 1
			f.store.Transition(bg, a.Index, node.Transition{From: node.StatusRunning, To: node.StatusFailed, ExitCode: 1, Detail: "scripted failure"})
		default:
			f.store.Transition(bg, a.Index, node.Transition{From: node.StatusRunning, To: node.StatusCompleted})
		}
		done <- res
	}()
	return nil
}

func (f *fakeExecutor) Wait() {
	f.wg.Wait()
}

// setup builds the graph from "from->to" edge strings.
func setup(t *testing.T, ids []string, edges []string, behaviors map[string]behavior) (*Orchestrator, *fakeExecutor, *bytes.Buffer, *metrics.Metrics) {
	t.Helper()
	nodes := make([]dag.Node, len(ids))
	for i, id := range ids {
		nodes[i] = dag.Node{ID: id, Payload: dag.Payload{Label: id}}
	}
	var es []dag.Edge
	for _, e := range edges {
		from, to, ok := strings.Cut(e, "->")
		require.True(t, ok)
		es = append(es, dag.Edge{From: from, To: to})
	}
	topo, err := dag.Build(nodes, es)
	require.NoError(t, err)

	store := inmemorystore.New(topo.Len())
	g, err := graph.New(topo, store)
	require.NoError(t, err)

	exec := &fakeExecutor{store: store, behavior: behaviors}
	var out bytes.Buffer
	m := metrics.New()
	return New(g, exec, Options{Stdout: &out, RunID: "test-run", Metrics: m}), exec, &out, m
}

func TestRun_Chain(t *testing.T) {
	o, _, out, m := setup(t, []string{"d", "c", "b", "a"}, []string{"a->b", "b->c", "c->d"}, nil)

	report, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "a\nb\nc\nd\n", out.String())
	assert.Equal(t, []string{"a", "b", "c", "d"}, report.DispatchOrder)
	assert.Equal(t, node.RunAllComplete, report.State)
	assert.Equal(t, "test-run", report.RunID)
	assert.Equal(t, 4, report.Counts()[node.StatusCompleted])
	assert.Equal(t, 4.0, testutil.ToFloat64(m.NodesDispatched))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("all_complete")))
}

func TestRun_DiamondKeepsDispatchOrderInOutput(t *testing.T) {
	// b finishes after c, but its output still comes first.
	o, _, out, _ := setup(t, []string{"a", "b", "c", "d"},
		[]string{"a->b", "a->c", "b->d", "c->d"},
		map[string]behavior{"b": {delay: 50 * time.Millisecond}})

	report, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c", "d"}, report.DispatchOrder)
	assert.Equal(t, "a\nb\nc\nd\n", out.String())
}

func TestRun_WorkersCap(t *testing.T) {
	o, exec, _, _ := setup(t, []string{"e", "d", "c", "b", "a"}, nil,
		map[string]behavior{"a": {delay: 10 * time.Millisecond}, "b": {delay: 10 * time.Millisecond}})
	o.opts.Workers = 2

	report, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, report.DispatchOrder)
	assert.LessOrEqual(t, exec.maxRunning, 2)
}

func TestRun_FailFast(t *testing.T) {
	o, _, out, m := setup(t, []string{"a", "b", "c", "d"},
		[]string{"a->b", "a->c", "b->d", "c->d"},
		map[string]behavior{"b": {fail: true}, "c": {delay: 30 * time.Millisecond}})

	report, err := o.Run(context.Background())

	var aborted *AbortedError
	require.ErrorAs(t, err, &aborted)
	assert.False(t, aborted.Cancelled)
	require.Len(t, aborted.Failed, 1)
	assert.Equal(t, "b", aborted.Failed[0].NodeID)
	assert.Equal(t, "scripted failure", aborted.Failed[0].Detail)

	require.NotNil(t, report)
	assert.Equal(t, node.RunAborted, report.State)
	assert.Equal(t, []string{"a", "b", "c"}, report.DispatchOrder)

	c, _ := report.Slot("c")
	assert.Equal(t, node.StatusCompleted, c.Status, "in-flight work runs to completion")
	d, _ := report.Slot("d")
	assert.Equal(t, node.StatusPending, d.Status, "nothing is admitted after a failure")

	assert.Equal(t, "a\nb\nc\n", out.String())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NodesFinished.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("aborted")))
}

func TestRun_WorkerDiesBeforeReporting(t *testing.T) {
	o, _, _, _ := setup(t, []string{"a", "b"}, []string{"a->b"},
		map[string]behavior{"a": {silent: true, exitCode: 137}})

	report, err := o.Run(context.Background())

	var aborted *AbortedError
	require.ErrorAs(t, err, &aborted)
	require.Len(t, aborted.Failed, 1)
	assert.Equal(t, "worker exited with code 137 before reporting", aborted.Failed[0].Detail)

	a, _ := report.Slot("a")
	assert.Equal(t, node.StatusFailed, a.Status)
	assert.Equal(t, 137, a.ExitCode)
}

func TestRun_SpawnFailure(t *testing.T) {
	o, _, _, _ := setup(t, []string{"a", "b"}, nil,
		map[string]behavior{"a": {startErr: errors.New("fork: resource temporarily unavailable")}})

	report, err := o.Run(context.Background())

	var aborted *AbortedError
	require.ErrorAs(t, err, &aborted)
	require.Len(t, aborted.Failed, 1)
	assert.Contains(t, aborted.Failed[0].Detail, "spawn failed: fork")

	assert.Equal(t, []string{"a"}, report.DispatchOrder, "b is never admitted")
	b, _ := report.Slot("b")
	assert.Equal(t, node.StatusPending, b.Status)
}

func TestRun_Cancellation(t *testing.T) {
	o, _, _, _ := setup(t, []string{"a", "b", "c"}, []string{"a->c", "b->c"},
		map[string]behavior{"a": {block: true}, "b": {block: true}})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	report, err := o.Run(ctx)

	var aborted *AbortedError
	require.ErrorAs(t, err, &aborted)
	assert.True(t, aborted.Cancelled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, aborted.Failed, 2)

	c, _ := report.Slot("c")
	assert.Equal(t, node.StatusPending, c.Status)
	assert.Equal(t, node.RunAborted, report.State)
}

func TestRun_AlreadyCancelled(t *testing.T) {
	o, _, _, _ := setup(t, []string{"a"}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := o.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, report.DispatchOrder)
}

func TestRun_Stalled(t *testing.T) {
	o, _, _, _ := setup(t, []string{"a", "b"}, []string{"a->b"}, nil)

	// a is claimed by an agent that never runs it.
	ctx := context.Background()
	_, err := o.graph.MarkReady(ctx, 0)
	require.NoError(t, err)
	_, err = o.graph.MarkDispatched(ctx, 0)
	require.NoError(t, err)

	report, err := o.Run(ctx)
	assert.ErrorIs(t, err, ErrStalled)
	assert.Equal(t, node.RunAborted, report.State)
}

func TestRun_EmptyGraph(t *testing.T) {
	o, _, out, _ := setup(t, nil, nil, nil)

	report, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, node.RunAllComplete, report.State)
	assert.Empty(t, out.String())
}

func TestSequencer(t *testing.T) {
	var buf bytes.Buffer
	s := newSequencer(&buf)

	s.deliver(2, []byte("c"))
	s.deliver(1, []byte("b"))
	assert.Empty(t, buf.String())

	s.deliver(0, []byte("a"))
	assert.Equal(t, "abc", buf.String())

	s.deliver(3, nil)
	s.deliver(4, []byte("e"))
	assert.Equal(t, "abce", buf.String())
}

func TestAbortedError(t *testing.T) {
	err := &AbortedError{Failed: []NodeFailure{{NodeID: "b", Detail: "exit status 1"}}}
	assert.Equal(t, "run aborted; node b failed: exit status 1", err.Error())

	err = &AbortedError{Cancelled: true, Cause: context.Canceled}
	assert.Equal(t, "run aborted: cancelled", err.Error())
	assert.ErrorIs(t, err, context.Canceled)
}
