package topologystore

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/specialistvlad/shmdag/internal/dag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func TestRoundTrip(t *testing.T) {
	testCases := []struct {
		name  string
		nodes []dag.Node
		edges []dag.Edge
	}{
		{name: "empty"},
		{
			name: "four nodes",
			nodes: []dag.Node{
				{ID: "0", Payload: dag.Payload{Label: "Node 0 was just executed"}},
				{ID: "1", Payload: dag.Payload{Label: "Node 1 was just executed"}},
				{ID: "2", Payload: dag.Payload{Label: "Node 2 was just executed"}},
				{ID: "3", Payload: dag.Payload{Label: "Node 3 was just executed"}},
			},
			edges: []dag.Edge{{From: "0", To: "1"}, {From: "2", To: "3"}, {From: "1", To: "3"}},
		},
		{
			name: "command payloads",
			nodes: []dag.Node{
				{ID: "fetch", Payload: dag.Payload{Kind: dag.KindCommand, Label: "fetching", Command: []string{"curl", "-sS", "example.com"}, Env: map[string]string{"A": "1"}}},
				{ID: "ping", Payload: dag.Payload{Kind: dag.KindHTTP, Label: "ping", URL: "http://127.0.0.1:8080/health", Method: "HEAD"}},
				{ID: "zeta"},
				{ID: "alpha", Payload: dag.Payload{Label: "Ünïcode ✓"}},
			},
			edges: []dag.Edge{{From: "fetch", To: "alpha"}, {From: "zeta", To: "alpha"}},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			g, err := dag.Build(tc.nodes, tc.edges)
			require.NoError(t, err)

			b, err := Encode(g)
			require.NoError(t, err)

			decoded, err := Decode(b)
			require.NoError(t, err)

			if diff := cmp.Diff(g.Nodes(), decoded.Nodes()); diff != "" {
				t.Errorf("nodes mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(g.Edges(), decoded.Edges()); diff != "" {
				t.Errorf("edges mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEncodeIsDeterministic(t *testing.T) {
	g, err := dag.Build([]dag.Node{{ID: "b"}, {ID: "a"}}, []dag.Edge{{From: "b", To: "a"}})
	require.NoError(t, err)

	first, err := Encode(g)
	require.NoError(t, err)
	second, err := Encode(g)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestDecode_Corrupt(t *testing.T) {
	t.Run("garbage bytes", func(t *testing.T) {
		_, err := Decode([]byte{0xc1, 0x00, 0x01})
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("wrong version", func(t *testing.T) {
		b, err := msgpack.Marshal(&snapshot{Version: FormatVersion + 1})
		require.NoError(t, err)
		_, err = Decode(b)
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("edge out of range", func(t *testing.T) {
		b, err := msgpack.Marshal(&snapshot{
			Version: FormatVersion,
			Nodes:   []wireNode{{ID: "a"}},
			Edges:   [][2]uint32{{0, 7}},
		})
		require.NoError(t, err)
		_, err = Decode(b)
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("cycle in snapshot", func(t *testing.T) {
		b, err := msgpack.Marshal(&snapshot{
			Version: FormatVersion,
			Nodes:   []wireNode{{ID: "a"}, {ID: "b"}},
			Edges:   [][2]uint32{{0, 1}, {1, 0}},
		})
		require.NoError(t, err)
		_, err = Decode(b)
		assert.ErrorIs(t, err, ErrCorrupt)
		assert.ErrorIs(t, err, dag.ErrCycleDetected)
	})
}
