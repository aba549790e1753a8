package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/specialistvlad/shmdag/internal/ctxlog"
	"github.com/specialistvlad/shmdag/internal/graph"
	"github.com/specialistvlad/shmdag/internal/handlers"
	"github.com/specialistvlad/shmdag/internal/model"
	"github.com/specialistvlad/shmdag/internal/segment"
	"github.com/specialistvlad/shmdag/internal/shmname"
)

// Inspect output formats.
const (
	FormatTable = "table"
	FormatDOT   = "dot"
	FormatJSON  = "json"
)

// Inspect opens a live segment and prints its state in the given format. It
// only reads, and it never unlinks anything.
func Inspect(ctx context.Context, suffix, shmDir, format string, w io.Writer) error {
	name, err := shmname.Parse(suffix)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	seg, err := segment.Open(ctx, name, segment.Options{Dir: shmDir})
	if err != nil {
		return err
	}
	defer func() {
		if err := seg.Close(); err != nil {
			ctxlog.FromContext(ctx).Warn("Failed to unmap segment.", "error", err)
		}
	}()

	if format == FormatDOT {
		return model.WriteDOT(w, seg.Graph())
	}

	mgr, err := graph.New(seg.Graph(), seg)
	if err != nil {
		return err
	}
	snap, err := TakeSnapshot(ctx, mgr, seg.RunID().String(), name.String())
	if err != nil {
		return err
	}

	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	case FormatTable, "":
		return writeTable(w, seg.Header(), snap)
	}
	return fmt.Errorf("%w: unknown inspect format %q", ErrInvalidConfig, format)
}

func writeTable(w io.Writer, h segment.Header, snap *StatusSnapshot) error {
	fmt.Fprintf(w, "segment:   %s\n", snap.Segment)
	fmt.Fprintf(w, "run id:    %s\n", snap.RunID)
	fmt.Fprintf(w, "run state: %s\n", snap.RunState)
	fmt.Fprintf(w, "layout:    v%d, %d nodes, %d bytes\n\n", h.Version, h.NodeCount, h.TotalSize)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NODE\tSTATUS\tPID\tEXIT\tDURATION\tDETAIL")
	for _, n := range snap.Nodes {
		var dur string
		if !n.StartedAt.IsZero() && !n.FinishedAt.IsZero() {
			dur = n.FinishedAt.Sub(n.StartedAt).Round(time.Millisecond).String()
		}
		pid := "-"
		if n.PID != 0 {
			pid = fmt.Sprint(n.PID)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n", n.ID, n.Status, pid, n.ExitCode, dur, n.Detail)
	}
	return tw.Flush()
}

// Cleanup removes the segment and semaphore objects of a crashed run and
// reports what it removed.
func Cleanup(ctx context.Context, suffix, shmDir string, w io.Writer) error {
	name, err := shmname.Parse(suffix)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	removed, err := segment.Remove(name, segment.Options{Dir: shmDir})
	for _, obj := range removed {
		fmt.Fprintf(w, "removed %s\n", obj)
	}
	if err != nil {
		return err
	}
	if len(removed) == 0 {
		fmt.Fprintf(w, "nothing to remove for %s\n", name)
	}
	ctxlog.FromContext(ctx).Debug("Cleanup finished.", "segment", name.String(), "removed", len(removed))
	return nil
}

// Validate loads and builds the graph at path and prints its topological
// order. Nothing is executed.
func Validate(ctx context.Context, path string, reg *handlers.Handlers, w io.Writer) error {
	g, err := LoadGraph(ctx, path, reg)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "graph ok: %d nodes, %d edges\n", g.Len(), len(g.Edges()))
	for i, id := range g.TopologicalOrder() {
		fmt.Fprintf(w, "%3d  %s\n", i+1, id)
	}
	return nil
}
