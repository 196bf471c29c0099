package types

// WitnessGraph is the parsed form of a GraphML violation witness
// (spec.md §6): a directed graph whose nodes and edges carry typed data
// entries. Exactly one node is the entry node and exactly one is the
// violation node; every edge's endpoints must resolve to a known node.
type WitnessGraph struct {
	DefaultKeys map[string]string // key id -> default value, e.g. "originfile"
	Nodes       map[string]*WitnessNode
	Edges       []*WitnessEdge
	EntryID     string
	ViolationID string
}

// WitnessNode is a GraphML <node> with its <data> entries.
type WitnessNode struct {
	ID   string
	Data map[string]string
}

// WitnessEdge is a GraphML <edge> with its <data> entries.
type WitnessEdge struct {
	Source string
	Target string
	Data   map[string]string
}

// OriginFile reports the edge or node's "originfile" data entry, falling
// back to the graph's default, and whether one was found at all.
func (g *WitnessGraph) OriginFile(data map[string]string) (string, bool) {
	if v, ok := data["originfile"]; ok {
		return v, true
	}
	if v, ok := g.DefaultKeys["originfile"]; ok {
		return v, true
	}
	return "", false
}

// ErrorTrace is the JSON object the witness post-processor emits: the
// trimmed, annotated trace ready for the Bridge.
type ErrorTrace struct {
	Files    []string          `json:"files"`
	Nodes    []ErrorTraceNode   `json:"nodes"`
	Edges    []ErrorTraceEdge   `json:"edges"`
	Entry    string            `json:"entry"`
	Violation string           `json:"violation"`
	Warnings []ErrorTraceWarning `json:"warnings,omitempty"`
}

// ErrorTraceNode is a node as emitted in the trimmed trace.
type ErrorTraceNode struct {
	ID string `json:"id"`
}

// ErrorTraceEdge is an edge as emitted in the trimmed trace, with the
// notes attached by the comment scan (spec.md §4.5 step 4).
type ErrorTraceEdge struct {
	Source     string `json:"source"`
	Target     string `json:"target"`
	FileIndex  int    `json:"file,omitempty"`
	StartLine  int    `json:"start_line,omitempty"`
	Note       string `json:"note,omitempty"`
	OnPath     bool   `json:"-"`
}

// ErrorTraceWarning is a warning attached to a host edge (spec.md §4.5
// step 5).
type ErrorTraceWarning struct {
	EdgeIndex int    `json:"edge"`
	Text      string `json:"text"`
}
