package witness

import (
	"encoding/xml"
	"io"
	"os"

	"github.com/klever-verify/core/pkg/types"
)

// graphmlDocument mirrors the subset of GraphML the pipeline's witnesses
// use: a key dictionary (with optional defaults) plus a single graph of
// nodes and edges, each carrying typed <data> entries.
type graphmlDocument struct {
	XMLName xml.Name      `xml:"graphml"`
	Keys    []graphmlKey  `xml:"key"`
	Graph   graphmlGraph  `xml:"graph"`
}

type graphmlKey struct {
	ID       string `xml:"id,attr"`
	AttrName string `xml:"attr.name,attr"`
	Default  string `xml:"default"`
}

type graphmlGraph struct {
	Nodes []graphmlNode `xml:"node"`
	Edges []graphmlEdge `xml:"edge"`
}

type graphmlNode struct {
	ID   string        `xml:"id,attr"`
	Data []graphmlData `xml:"data"`
}

type graphmlEdge struct {
	Source string        `xml:"source,attr"`
	Target string        `xml:"target,attr"`
	Data   []graphmlData `xml:"data"`
}

type graphmlData struct {
	Key   string `xml:"key,attr"`
	Value string `xml:",chardata"`
}

// ParseGraphML reads a witness graph from path, resolving key IDs to the
// attribute names the rest of the package understands (originfile,
// startline, entry, violation, enterFunction, returnFrom).
func ParseGraphML(path string) (*types.WitnessGraph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &types.WitnessParseError{File: path, Err: err}
	}
	defer f.Close()
	return parseGraphMLReader(path, f)
}

func parseGraphMLReader(path string, r io.Reader) (*types.WitnessGraph, error) {
	var doc graphmlDocument
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, &types.WitnessParseError{File: path, Err: err}
	}

	keyNames := make(map[string]string, len(doc.Keys))
	defaults := make(map[string]string)
	for _, k := range doc.Keys {
		keyNames[k.ID] = k.AttrName
		if k.Default != "" {
			defaults[k.AttrName] = k.Default
		}
	}

	graph := &types.WitnessGraph{DefaultKeys: defaults, Nodes: make(map[string]*types.WitnessNode, len(doc.Graph.Nodes))}

	var entryID, violationID string
	for _, n := range doc.Graph.Nodes {
		data := resolveData(n.Data, keyNames)
		graph.Nodes[n.ID] = &types.WitnessNode{ID: n.ID, Data: data}
		if _, ok := data["entry"]; ok {
			entryID = n.ID
		}
		if _, ok := data["violation"]; ok {
			violationID = n.ID
		}
	}

	for _, e := range doc.Graph.Edges {
		if graph.Nodes[e.Source] == nil || graph.Nodes[e.Target] == nil {
			return nil, &types.WitnessParseError{File: path, Err: errUnresolvedEdge(e.Source, e.Target)}
		}
		data := resolveData(e.Data, keyNames)
		graph.Edges = append(graph.Edges, &types.WitnessEdge{Source: e.Source, Target: e.Target, Data: data})
	}

	if entryID == "" {
		return nil, &types.WitnessParseError{File: path, Err: errNoEntry}
	}
	if violationID == "" {
		return nil, &types.WitnessParseError{File: path, Err: errNoViolation}
	}
	graph.EntryID = entryID
	graph.ViolationID = violationID

	return graph, nil
}

func resolveData(entries []graphmlData, keyNames map[string]string) map[string]string {
	out := make(map[string]string, len(entries))
	for _, d := range entries {
		name, ok := keyNames[d.Key]
		if !ok {
			name = d.Key
		}
		out[name] = d.Value
	}
	return out
}
