// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file reads and writes Graphviz DOT.
//
// Why accept the "Struct Node" label form?
//
// Graphs exported by older tooling carry the whole node record in the label,
// e.g. `Struct Node, Node.args: hello, Node.execution_status: Executable`.
// Only the args part is meaningful, so it becomes the label.
package model

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/awalterschulze/gographviz"
	"github.com/specialistvlad/shmdag/internal/dag"
)

const (
	legacyPrefix = "Struct Node"
	legacyArgs   = "Node.args:"
)

// ParseDOT parses a directed DOT graph. file is only used in errors.
func ParseDOT(file string, src []byte) (*Definition, error) {
	g, err := gographviz.Read(src)
	if err != nil {
		return nil, parseErr(file, err)
	}
	if !g.Directed {
		return nil, parseErr(file, errors.New("graph must be a digraph"))
	}

	def := NewDefinition()
	declared := make(map[string]bool, len(g.Nodes.Nodes))
	for _, n := range g.Nodes.Nodes {
		id := unquote(n.Name)
		if declared[id] {
			continue
		}
		declared[id] = true
		label := id
		if l, ok := n.Attrs["label"]; ok {
			label = parseLabel(unquote(l))
		}
		def.addNode(dag.Node{ID: id, Payload: dag.Payload{Kind: dag.KindPrint, Label: label}}, file)
	}

	for _, e := range g.Edges.Edges {
		from, to := unquote(e.Src), unquote(e.Dst)
		for _, id := range []string{from, to} {
			if !declared[id] {
				declared[id] = true
				def.addNode(dag.Node{ID: id, Payload: dag.Payload{Kind: dag.KindPrint, Label: id}}, file)
			}
		}
		def.Edges = append(def.Edges, dag.Edge{From: from, To: to})
	}
	return def, nil
}

// parseLabel extracts the args of a legacy record label and returns any
// other label unchanged.
func parseLabel(label string) string {
	if !strings.HasPrefix(strings.TrimSpace(label), legacyPrefix) {
		return label
	}
	for _, part := range strings.Split(label, ",") {
		part = strings.TrimSpace(part)
		if args, ok := strings.CutPrefix(part, legacyArgs); ok {
			return strings.TrimSpace(args)
		}
	}
	return ""
}

func unquote(s string) string {
	if len(s) < 2 || s[0] != '"' {
		return s
	}
	if u, err := strconv.Unquote(s); err == nil {
		return u
	}
	return s[1 : len(s)-1]
}

// WriteDOT writes the topology of g as a DOT digraph that ParseDOT reads
// back into the same nodes and edges. Command payloads are not represented.
func WriteDOT(w io.Writer, g *dag.Graph) error {
	out := gographviz.NewGraph()
	if err := out.SetName("shmdag"); err != nil {
		return err
	}
	if err := out.SetDir(true); err != nil {
		return err
	}

	for _, n := range g.Nodes() {
		attrs := map[string]string{}
		if n.Payload.Label != n.ID {
			attrs["label"] = strconv.Quote(n.Payload.Label)
		}
		if err := out.AddNode("shmdag", strconv.Quote(n.ID), attrs); err != nil {
			return fmt.Errorf("add node %s: %w", n.ID, err)
		}
	}
	for _, e := range g.Edges() {
		if err := out.AddEdge(strconv.Quote(e.From), strconv.Quote(e.To), true, nil); err != nil {
			return fmt.Errorf("add edge %s -> %s: %w", e.From, e.To, err)
		}
	}

	_, err := io.WriteString(w, out.String())
	return err
}
