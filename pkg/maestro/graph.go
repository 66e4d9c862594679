package maestro

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
)

// WorkflowGraph is the serialized workflow document.
//
// The format follows node-link editors: nodes carry their configuration in
// a free-form property bag, links are positional arrays
// [id, origin, origin_slot, target, target_slot, type]. Documents produced
// by an LLM planner are accepted leniently; malformed links survive parsing
// and are dropped with a warning at compile time.
type WorkflowGraph struct {
	LastNodeID int     `json:"last_node_id"`
	LastLinkID int     `json:"last_link_id"`
	Nodes      []*Node `json:"nodes"`
	Links      []*Link `json:"links"`
}

// Node is one workflow step.
type Node struct {
	// ID uniquely identifies the node. JSON documents may carry numeric
	// ids; they are normalized to strings at parse time.
	ID    string
	Type  string
	Title string
	Pos   []float64
	Size  []float64
	Color string
	// Properties is the node's configuration bag (prompt, value,
	// iterations...). Values keep their JSON types.
	Properties map[string]any
	// Inputs and Outputs are per-port link caches maintained for editor
	// display. The engine resolves data flow from the canonical link list,
	// never from these.
	Inputs  []InputPort
	Outputs []OutputPort
}

// InputPort is a node input connection point.
type InputPort struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Link *int   `json:"link"`
}

// OutputPort is a node output connection point.
type OutputPort struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Links []int  `json:"links"`
}

// nodeJSON is the wire shape of Node with lenient id and size decoding.
type nodeJSON struct {
	ID         json.RawMessage `json:"id"`
	Type       string          `json:"type"`
	Title      string          `json:"title,omitempty"`
	Pos        []float64       `json:"pos,omitempty"`
	Size       json.RawMessage `json:"size,omitempty"`
	Color      string          `json:"color,omitempty"`
	Properties map[string]any  `json:"properties,omitempty"`
	Inputs     []InputPort     `json:"inputs,omitempty"`
	Outputs    []OutputPort    `json:"outputs,omitempty"`
}

// UnmarshalJSON decodes a node, normalizing numeric ids to strings and
// accepting size either as an array or as an object keyed "0"/"1".
func (n *Node) UnmarshalJSON(data []byte) error {
	var aux nodeJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	id, err := flexString(aux.ID)
	if err != nil {
		return fmt.Errorf("node id: %w", err)
	}

	n.ID = id
	n.Type = aux.Type
	n.Title = aux.Title
	n.Pos = aux.Pos
	n.Size = decodeSize(aux.Size)
	n.Color = aux.Color
	n.Properties = aux.Properties
	n.Inputs = aux.Inputs
	n.Outputs = aux.Outputs
	return nil
}

// MarshalJSON encodes a node with its normalized string id.
func (n *Node) MarshalJSON() ([]byte, error) {
	idRaw, err := json.Marshal(n.ID)
	if err != nil {
		return nil, err
	}
	var sizeRaw json.RawMessage
	if n.Size != nil {
		sizeRaw, err = json.Marshal(n.Size)
		if err != nil {
			return nil, err
		}
	}
	return json.Marshal(nodeJSON{
		ID:         idRaw,
		Type:       n.Type,
		Title:      n.Title,
		Pos:        n.Pos,
		Size:       sizeRaw,
		Color:      n.Color,
		Properties: n.Properties,
		Inputs:     n.Inputs,
		Outputs:    n.Outputs,
	})
}

// Link connects an output slot of one node to an input slot of another.
// On the wire it is the positional array
// [id, origin, origin_slot, target, target_slot, type].
type Link struct {
	ID         int
	OriginID   string
	OriginSlot int
	TargetID   string
	TargetSlot int
	// Kind is the optional sixth element, the data type of the connection.
	Kind string

	// arity is the element count seen at decode time. Links with fewer
	// than five elements are kept through parsing and dropped during
	// compilation, with a warning.
	arity int
}

// NewLink creates a well-formed link.
func NewLink(id int, origin string, originSlot int, target string, targetSlot int, kind string) *Link {
	return &Link{
		ID:         id,
		OriginID:   origin,
		OriginSlot: originSlot,
		TargetID:   target,
		TargetSlot: targetSlot,
		Kind:       kind,
		arity:      6,
	}
}

// Malformed reports whether the link arrived with fewer than five elements.
func (l *Link) Malformed() bool {
	return l.arity < 5
}

// UnmarshalJSON decodes the positional link array. Short arrays do not
// fail; they mark the link malformed so compilation can drop it with a
// warning instead of rejecting the whole document.
func (l *Link) UnmarshalJSON(data []byte) error {
	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		return err
	}
	l.arity = len(elems)
	if l.arity < 5 {
		return nil
	}

	if err := json.Unmarshal(elems[0], &l.ID); err != nil {
		return fmt.Errorf("link id: %w", err)
	}
	var err error
	if l.OriginID, err = flexString(elems[1]); err != nil {
		return fmt.Errorf("link origin: %w", err)
	}
	if err := json.Unmarshal(elems[2], &l.OriginSlot); err != nil {
		return fmt.Errorf("link origin slot: %w", err)
	}
	if l.TargetID, err = flexString(elems[3]); err != nil {
		return fmt.Errorf("link target: %w", err)
	}
	if err := json.Unmarshal(elems[4], &l.TargetSlot); err != nil {
		return fmt.Errorf("link target slot: %w", err)
	}
	if l.arity >= 6 {
		// Tolerate a non-string sixth element; it carries no meaning
		// for execution.
		_ = json.Unmarshal(elems[5], &l.Kind)
	}
	return nil
}

// MarshalJSON encodes the link as its positional array.
func (l *Link) MarshalJSON() ([]byte, error) {
	elems := []any{l.ID, l.OriginID, l.OriginSlot, l.TargetID, l.TargetSlot}
	if l.Kind != "" || l.arity >= 6 {
		elems = append(elems, l.Kind)
	}
	return json.Marshal(elems)
}

// Parse decodes a workflow document.
func Parse(data []byte) (*WorkflowGraph, error) {
	var g WorkflowGraph
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&g); err != nil {
		return nil, fmt.Errorf("parse workflow: %w", err)
	}
	return &g, nil
}

// LoadFile reads and parses a workflow document from disk.
func LoadFile(path string) (*WorkflowGraph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load workflow: %w", err)
	}
	return Parse(data)
}

// Serialize encodes the workflow document as indented JSON.
func (g *WorkflowGraph) Serialize() ([]byte, error) {
	return json.MarshalIndent(g, "", "  ")
}

// Node returns the node with the given id, or nil.
func (g *WorkflowGraph) Node(id string) *Node {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// NodesByType returns the nodes of a type in declaration order.
func (g *WorkflowGraph) NodesByType(nodeType string) []*Node {
	var out []*Node
	for _, n := range g.Nodes {
		if n.Type == nodeType {
			out = append(out, n)
		}
	}
	return out
}

// flexString decodes a JSON string or number into a string.
func flexString(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", err
	}
	return n.String(), nil
}

// decodeSize accepts a size array [w, h] or an object {"0": w, "1": h}.
func decodeSize(raw json.RawMessage) []float64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if raw[0] == '[' {
		var arr []float64
		if err := json.Unmarshal(raw, &arr); err == nil {
			return arr
		}
		return nil
	}
	var obj map[string]float64
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil
	}
	size := make([]float64, len(obj))
	for i := range size {
		size[i] = obj[fmt.Sprintf("%d", i)]
	}
	return size
}
