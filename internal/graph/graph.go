package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/specialistvlad/shmdag/internal/ctxlog"
	"github.com/specialistvlad/shmdag/internal/dag"
	"github.com/specialistvlad/shmdag/internal/node"
	"github.com/specialistvlad/shmdag/internal/nodestore"
)

// Manager composes a topology and a node store into a Graph.
type Manager struct {
	topo  *dag.Graph
	store nodestore.Store
}

var _ Graph = (*Manager)(nil)

// New creates a graph manager. The store must have one slot per node.
func New(topo *dag.Graph, store nodestore.Store) (*Manager, error) {
	if topo.Len() != store.Len() {
		return nil, fmt.Errorf("graph has %d nodes but the store has %d slots", topo.Len(), store.Len())
	}
	return &Manager{topo: topo, store: store}, nil
}

func (m *Manager) Topology() *dag.Graph {
	return m.topo
}

func (m *Manager) Store() nodestore.Store {
	return m.store
}

func (m *Manager) Get(ctx context.Context, i int) (node.Slot, error) {
	return m.store.Get(ctx, i)
}

func (m *Manager) Snapshot(ctx context.Context) ([]node.Slot, error) {
	return m.store.Snapshot(ctx)
}

func (m *Manager) Ready(ctx context.Context) ([]int, error) {
	snap, err := m.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return ReadyIndices(m.topo, snap), nil
}

// ReadyIndices returns the nodes of snap that may be dispatched, sorted by id.
func ReadyIndices(topo *dag.Graph, snap []node.Slot) []int {
	var ready []int
	for _, i := range topo.LexicalOrder() {
		switch snap[i].Status {
		case node.StatusReady:
			ready = append(ready, i)
		case node.StatusPending:
			if predecessorsCompleted(topo, snap, i) {
				ready = append(ready, i)
			}
		}
	}
	return ready
}

func predecessorsCompleted(topo *dag.Graph, snap []node.Slot, i int) bool {
	for _, p := range topo.PredecessorsOf(i) {
		if snap[p].Status != node.StatusCompleted {
			return false
		}
	}
	return true
}

func (m *Manager) MarkReady(ctx context.Context, i int) (bool, error) {
	return m.claim(ctx, i, node.StatusPending, node.StatusReady)
}

func (m *Manager) MarkDispatched(ctx context.Context, i int) (bool, error) {
	return m.claim(ctx, i, node.StatusReady, node.StatusDispatched)
}

func (m *Manager) claim(ctx context.Context, i int, from, to node.Status) (bool, error) {
	_, err := m.store.Transition(ctx, i, node.Transition{From: from, To: to})
	if errors.Is(err, node.ErrStaleStatus) {
		ctxlog.FromContext(ctx).Debug("Node claimed by another agent.", "node", m.topo.Node(i).ID, "want", from.String())
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (m *Manager) MarkRunning(ctx context.Context, i int, pid int) error {
	_, err := m.store.Transition(ctx, i, node.Transition{From: node.StatusDispatched, To: node.StatusRunning, PID: pid})
	return err
}

func (m *Manager) MarkCompleted(ctx context.Context, i int) error {
	_, err := m.store.Transition(ctx, i, node.Transition{From: node.StatusRunning, To: node.StatusCompleted})
	return err
}

func (m *Manager) MarkFailed(ctx context.Context, i int, exitCode int, detail string) (bool, error) {
	for {
		slot, err := m.store.Get(ctx, i)
		if err != nil {
			return false, err
		}
		if slot.Status.Terminal() {
			return false, nil
		}
		_, err = m.store.Transition(ctx, i, node.Transition{
			From:     slot.Status,
			To:       node.StatusFailed,
			ExitCode: exitCode,
			Detail:   detail,
		})
		if errors.Is(err, node.ErrStaleStatus) {
			continue
		}
		if err != nil {
			return false, err
		}
		return true, nil
	}
}
