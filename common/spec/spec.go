package spec

import (
	"encoding/json"
	"fmt"
)

// Node type constants
const (
	NodeTypeAgent     = "agent"
	NodeTypeTool      = "tool"
	NodeTypeCondition = "condition"
	NodeTypeRouter    = "router"
	NodeTypeTrigger   = "trigger"
	NodeTypeWebhook   = "webhook"
	NodeTypeSkill     = "skill"
	NodeTypeTransform = "transform"
	NodeTypeOutput    = "output"
)

// Collaboration strategy constants
const (
	CollaborationSequential   = "sequential"
	CollaborationParallel     = "parallel"
	CollaborationConsensus    = "consensus"
	CollaborationHierarchical = "hierarchical"
)

// WorkflowSpec is the node/edge definition of a workflow DAG.
// Engines treat it as an immutable value: anything that needs to mutate
// works on a Clone. Unknown node types and config keys pass through
// untouched so specs round-trip byte-for-byte through the store.
type WorkflowSpec struct {
	Nodes                 []Node `json:"nodes"`
	Edges                 []Edge `json:"edges"`
	CollaborationStrategy string `json:"collaboration_strategy,omitempty"`
}

// Node is a single typed step in the DAG.
type Node struct {
	ID       string                 `json:"id"`
	Type     string                 `json:"type"`
	Label    string                 `json:"label"`
	Config   map[string]interface{} `json:"config,omitempty"`
	Position *Position              `json:"position,omitempty"`
}

// Position is the canvas placement of a node.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Edge is a directed connection between two nodes. Edges may reference
// node ids that do not exist in the spec; consumers tolerate the dangling
// reference rather than rejecting the spec.
type Edge struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Label string `json:"label,omitempty"`
}

// Key returns the composite identity of an edge. Two edges with the same
// endpoints are the same edge regardless of label.
func (e Edge) Key() string {
	return e.From + "\x00" + e.To
}

// Parse decodes a raw JSON spec.
func Parse(raw []byte) (*WorkflowSpec, error) {
	if len(raw) == 0 {
		return &WorkflowSpec{}, nil
	}

	var s WorkflowSpec
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("failed to parse workflow spec: %w", err)
	}

	return &s, nil
}

// Clone returns a deep copy. Node configs and positions are copied through
// a JSON round trip so nested maps never alias the source.
func (s *WorkflowSpec) Clone() *WorkflowSpec {
	out := &WorkflowSpec{
		CollaborationStrategy: s.CollaborationStrategy,
		Nodes:                 make([]Node, len(s.Nodes)),
		Edges:                 make([]Edge, len(s.Edges)),
	}

	for i, n := range s.Nodes {
		out.Nodes[i] = n.Clone()
	}
	copy(out.Edges, s.Edges)

	return out
}

// Clone returns a deep copy of the node.
func (n Node) Clone() Node {
	out := n

	if n.Config != nil {
		out.Config = deepCopyMap(n.Config)
	}
	if n.Position != nil {
		p := *n.Position
		out.Position = &p
	}

	return out
}

// NodeByID returns the node with the given id, or false when absent.
func (s *WorkflowSpec) NodeByID(id string) (Node, bool) {
	for _, n := range s.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// NodeIndex returns a lookup map keyed by node id. Later duplicates win,
// matching the lenient handling of malformed specs elsewhere.
func (s *WorkflowSpec) NodeIndex() map[string]Node {
	index := make(map[string]Node, len(s.Nodes))
	for _, n := range s.Nodes {
		index[n.ID] = n
	}
	return index
}

// AgentCount returns the number of agent-type nodes. Rate limit tiers and
// lint checks both key off this.
func (s *WorkflowSpec) AgentCount() int {
	count := 0
	for _, n := range s.Nodes {
		if n.Type == NodeTypeAgent {
			count++
		}
	}
	return count
}

// Canonical returns the deterministic JSON serialization of the spec:
// struct fields in declaration order, map keys sorted lexicographically.
// Build fingerprints and structural equality both derive from this form.
func (s *WorkflowSpec) Canonical() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize spec: %w", err)
	}
	return data, nil
}

// Validate checks the invariants enforced at save time: node ids present
// and unique. Dangling edges are deliberately NOT an error here.
func (s *WorkflowSpec) Validate() error {
	seen := make(map[string]bool, len(s.Nodes))
	for i, n := range s.Nodes {
		if n.ID == "" {
			return fmt.Errorf("node at index %d has an empty id", i)
		}
		if seen[n.ID] {
			return fmt.Errorf("duplicate node id: %s", n.ID)
		}
		seen[n.ID] = true
	}
	return nil
}

// deepCopyMap copies a config map through JSON so nested values detach
// from the source. Falls back to a shallow copy for unmarshalable values.
func deepCopyMap(in map[string]interface{}) map[string]interface{} {
	data, err := json.Marshal(in)
	if err == nil {
		var out map[string]interface{}
		if err := json.Unmarshal(data, &out); err == nil {
			return out
		}
	}

	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
