// Package topologystore encodes the immutable topology of a graph into the
// byte form stored in a shared segment, and decodes it back.
//
// # Why Topology Store Exists
//
// The topology is written once by the creating process and read by every
// worker process, which has nothing but the segment to go on. The encoding is
// MessagePack: self-describing, compact, and independent of Go struct layout,
// so a worker built from a different commit still fails loudly instead of
// misreading memory.
//
// # Round-Trip Law
//
// For every valid graph g, Decode(Encode(g)) has the same nodes in the same
// insertion order and the same edges. Decode re-runs dag.Build, so a corrupted
// snapshot can never produce a graph that violates the DAG invariants.
package topologystore

import (
	"errors"
	"fmt"

	"github.com/specialistvlad/shmdag/internal/dag"
	"github.com/vmihailenco/msgpack/v5"
)

// FormatVersion is bumped whenever the wire structs change incompatibly.
const FormatVersion = 1

// ErrCorrupt is returned when a snapshot does not describe a valid graph.
var ErrCorrupt = errors.New("corrupt topology snapshot")

type snapshot struct {
	Version int        `msgpack:"v"`
	Nodes   []wireNode `msgpack:"nodes"`
	// Edges are pairs of node indices.
	Edges [][2]uint32 `msgpack:"edges"`
}

type wireNode struct {
	ID      string            `msgpack:"id"`
	Kind    string            `msgpack:"kind,omitempty"`
	Label   string            `msgpack:"label"`
	Command []string          `msgpack:"cmd,omitempty"`
	Env     map[string]string `msgpack:"env,omitempty"`
	URL     string            `msgpack:"url,omitempty"`
	Method  string            `msgpack:"method,omitempty"`
}

// Encode serializes g in node insertion order.
func Encode(g *dag.Graph) ([]byte, error) {
	snap := snapshot{
		Version: FormatVersion,
		Nodes:   make([]wireNode, g.Len()),
	}
	for i, n := range g.Nodes() {
		snap.Nodes[i] = wireNode{
			ID:      n.ID,
			Kind:    n.Payload.Kind,
			Label:   n.Payload.Label,
			Command: n.Payload.Command,
			Env:     n.Payload.Env,
			URL:     n.Payload.URL,
			Method:  n.Payload.Method,
		}
	}
	for from := 0; from < g.Len(); from++ {
		for _, to := range g.SuccessorsOf(from) {
			snap.Edges = append(snap.Edges, [2]uint32{uint32(from), uint32(to)})
		}
	}

	b, err := msgpack.Marshal(&snap)
	if err != nil {
		return nil, fmt.Errorf("encode topology: %w", err)
	}
	return b, nil
}

// Decode rebuilds a graph from an Encode result.
func Decode(b []byte) (*dag.Graph, error) {
	var snap snapshot
	if err := msgpack.Unmarshal(b, &snap); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if snap.Version != FormatVersion {
		return nil, fmt.Errorf("%w: format version %d, want %d", ErrCorrupt, snap.Version, FormatVersion)
	}

	nodes := make([]dag.Node, len(snap.Nodes))
	for i, n := range snap.Nodes {
		nodes[i] = dag.Node{
			ID: n.ID,
			Payload: dag.Payload{
				Kind:    n.Kind,
				Label:   n.Label,
				Command: n.Command,
				Env:     n.Env,
				URL:     n.URL,
				Method:  n.Method,
			},
		}
	}
	edges := make([]dag.Edge, len(snap.Edges))
	for i, e := range snap.Edges {
		if int(e[0]) >= len(nodes) || int(e[1]) >= len(nodes) {
			return nil, fmt.Errorf("%w: edge %d references node index out of range", ErrCorrupt, i)
		}
		edges[i] = dag.Edge{From: nodes[e[0]].ID, To: nodes[e[1]].ID}
	}

	g, err := dag.Build(nodes, edges)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return g, nil
}
