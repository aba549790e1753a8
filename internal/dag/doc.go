// Package dag is the graph model of the application. It turns a flat list of
// nodes and edges into an immutable, validated Directed Acyclic Graph.
//
// Nodes live in an arena (a slice in insertion order) and every adjacency is
// expressed as integer indices into that arena, so the graph has no pointer
// back-references and can be encoded into shared memory verbatim. The
// insertion order is the serialization order: slot i of the shared status
// table belongs to the i-th node given to Build.
//
// Build is the only constructor. It rejects duplicate identifiers, edges that
// name unknown nodes and cycles, so callers never see a partially valid graph.
package dag
