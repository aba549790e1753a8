// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// Package model turns graph description files into a format-agnostic
// Definition: a list of nodes and a list of edges, ready for dag.Build.
//
// # Formats
//
// The loader picks the parser by extension:
//
//   - .dot and .gv files are Graphviz digraphs. A node's id doubles as its
//     label unless a label attribute says otherwise. Nodes that only appear
//     in edges are declared implicitly.
//
//   - .hcl files, or a directory of them, hold `node` blocks. A node may set
//     a label, a list of `depends_on` references and a command to run.
//
// Why a separate model package?
//
// The engine never sees a file format. Parsing stops at Definition, and
// validation (duplicate ids, dangling references, cycles) belongs to
// dag.Build, so both formats fail in exactly the same way.
package model
