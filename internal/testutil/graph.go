package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/specialistvlad/shmdag/internal/dag"
	"github.com/stretchr/testify/require"
)

// BuildGraph builds a print-only graph. Edges are "from->to" strings.
func BuildGraph(t *testing.T, ids []string, edges ...string) *dag.Graph {
	t.Helper()
	nodes := make([]dag.Node, len(ids))
	for i, id := range ids {
		nodes[i] = dag.Node{ID: id, Payload: dag.Payload{Kind: dag.KindPrint, Label: id}}
	}
	return BuildGraphFromNodes(t, nodes, edges...)
}

// BuildGraphFromNodes builds a graph from explicit nodes.
func BuildGraphFromNodes(t *testing.T, nodes []dag.Node, edges ...string) *dag.Graph {
	t.Helper()
	es := make([]dag.Edge, 0, len(edges))
	for _, e := range edges {
		from, to, ok := strings.Cut(e, "->")
		require.True(t, ok, "edge %q must look like a->b", e)
		es = append(es, dag.Edge{From: strings.TrimSpace(from), To: strings.TrimSpace(to)})
	}
	g, err := dag.Build(nodes, es)
	require.NoError(t, err)
	return g
}

// WriteFiles writes files, keyed by relative path, under a fresh temporary
// directory and returns it.
func WriteFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		writeFile(t, dir, name, content)
	}
	return dir
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
