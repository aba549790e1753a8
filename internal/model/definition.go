// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines the Definition structure and the entry point that loads
// one from disk.
//
// Why have a Definition?
//
// A user may describe the same graph as one DOT file or as many HCL files.
// Definition is the single shape both formats are translated into before the
// topology is validated and frozen by dag.Build.
package model

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/specialistvlad/shmdag/internal/ctxlog"
	"github.com/specialistvlad/shmdag/internal/dag"
	"github.com/specialistvlad/shmdag/internal/fsutil"
)

var (
	// ErrUnsupportedFormat is returned for a file extension no parser handles.
	ErrUnsupportedFormat = errors.New("unsupported graph file format")
	// ErrParse is matched by every syntax or decoding failure.
	ErrParse = errors.New("graph file parse error")
	// ErrEmpty is returned when a directory holds no graph files.
	ErrEmpty = errors.New("no graph files found")
)

// Definition is a graph as read from one or more files, not yet validated.
type Definition struct {
	Nodes []dag.Node
	Edges []dag.Edge
	// Sources maps a node id to the file that first declared it.
	Sources map[string]*FSInfo

	// redeclared holds the files of every later declaration of an id.
	redeclared map[string][]string
}

// NewDefinition creates an empty Definition.
func NewDefinition() *Definition {
	return &Definition{
		Sources:    make(map[string]*FSInfo),
		redeclared: make(map[string][]string),
	}
}

func (d *Definition) addNode(n dag.Node, file string) {
	d.Nodes = append(d.Nodes, n)
	if _, ok := d.Sources[n.ID]; ok {
		d.redeclared[n.ID] = append(d.redeclared[n.ID], file)
		return
	}
	d.Sources[n.ID] = NewFSInfo(file)
}

// Build validates the definition and returns the immutable topology. Graph
// errors are annotated with the files that declared the offending nodes.
func (d *Definition) Build() (*dag.Graph, error) {
	g, err := dag.Build(d.Nodes, d.Edges)
	var graphErr *dag.GraphError
	if errors.As(err, &graphErr) {
		if files := d.declaringFiles(graphErr); len(files) > 0 {
			return nil, fmt.Errorf("%w (declared in %s)", err, strings.Join(files, ", "))
		}
	}
	return g, err
}

// declaringFiles lists, without repeats, the files that declared the nodes
// named by err. Ids no file declared, like the missing end of a dangling
// edge, are skipped.
func (d *Definition) declaringFiles(err *dag.GraphError) []string {
	var files []string
	add := func(file string) {
		if file != "" && !slices.Contains(files, file) {
			files = append(files, file)
		}
	}
	for _, id := range err.IDs {
		if src, ok := d.Sources[id]; ok {
			add(src.FilePath)
		}
		if err.Kind == dag.ErrDuplicateID {
			for _, file := range d.redeclared[id] {
				add(file)
			}
		}
	}
	return files
}

// Load reads a graph description. A directory is read as a set of HCL files.
func Load(ctx context.Context, path string) (*Definition, error) {
	logger := ctxlog.FromContext(ctx)

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("read graph file: %w", err)
	}

	if info.IsDir() {
		files, err := fsutil.FindFiles(path, ".hcl")
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", path, err)
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("%w in %s", ErrEmpty, path)
		}
		logger.Debug("Discovered HCL files.", "count", len(files), "path", path)
		return LoadHCL(ctx, files...)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".dot", ".gv":
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read graph file: %w", err)
		}
		return ParseDOT(path, src)
	case ".hcl":
		return LoadHCL(ctx, path)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
}

func parseErr(file string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrParse, file, err)
}
