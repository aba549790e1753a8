package dag

// Payload kinds understood by the built-in executable units.
const (
	KindPrint   = "print"
	KindCommand = "command"
	KindHTTP    = "http"
)

// Payload is the opaque computation descriptor carried by a node. The graph
// never interprets it; the worker resolves it into an executable unit.
type Payload struct {
	// Kind selects the executable unit. Empty means KindPrint.
	Kind string
	// Label is printed when the node runs.
	Label string
	// Command is the argv of a KindCommand node.
	Command []string
	// Env holds extra environment variables for a KindCommand node.
	Env map[string]string
	// URL is the target of a KindHTTP node.
	URL string
	// Method is the request method of a KindHTTP node. Empty means GET.
	Method string
}

// UnitKind returns the payload kind, defaulting to KindPrint.
func (p Payload) UnitKind() string {
	if p.Kind == "" {
		return KindPrint
	}
	return p.Kind
}

// Node is a single vertex handed to Build.
type Node struct {
	ID      string
	Payload Payload
}

// Edge means To depends on From.
type Edge struct {
	From string
	To   string
}

// Graph is an immutable, validated DAG. It is safe for concurrent reads.
type Graph struct {
	// nodes is the arena, in insertion order.
	nodes []Node
	// index maps a node ID to its arena position.
	index map[string]int
	// preds and succs hold arena indices, sorted by node ID.
	preds [][]int
	succs [][]int
	// lexical is every arena index sorted by node ID.
	lexical []int
}
