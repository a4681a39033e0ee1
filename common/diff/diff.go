// Package diff computes structural differences between two workflow specs.
//
// Nodes are matched by id, edges by their (from, to) endpoints. Edge labels
// are deliberately outside the comparison: an edge with the same endpoints
// but a different label is the same edge. Output ordering is deterministic,
// following the second spec's iteration order for additions and
// modifications and the first spec's for removals.
package diff

import (
	"encoding/json"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch/v5"

	"github.com/archonhq/archon/common/spec"
)

// Diff is the full structural comparison of two specs.
type Diff struct {
	Nodes   NodeDiff `json:"nodes"`
	Edges   EdgeDiff `json:"edges"`
	Summary Summary  `json:"summary"`
}

// NodeDiff groups node-level differences.
type NodeDiff struct {
	Added    []spec.Node        `json:"added"`
	Removed  []spec.Node        `json:"removed"`
	Modified []NodeModification `json:"modified"`
}

// EdgeDiff groups edge-level differences. Edges are presence-only: there is
// no "modified" bucket.
type EdgeDiff struct {
	Added   []spec.Edge `json:"added"`
	Removed []spec.Edge `json:"removed"`
}

// NodeModification describes a node present in both specs with different
// content, broken out into field-level changes.
type NodeModification struct {
	ID      string        `json:"id"`
	Before  spec.Node     `json:"before"`
	After   spec.Node     `json:"after"`
	Changes []FieldChange `json:"changes"`
}

// FieldChange is a single changed field on a modified node. For config
// changes, Patch carries the RFC 7386 merge patch from before to after.
type FieldChange struct {
	Field  string          `json:"field"`
	Before interface{}     `json:"before"`
	After  interface{}     `json:"after"`
	Patch  json.RawMessage `json:"patch,omitempty"`
}

// Summary carries the headline counts.
type Summary struct {
	NodesAdded    int `json:"nodes_added"`
	NodesRemoved  int `json:"nodes_removed"`
	NodesModified int `json:"nodes_modified"`
	EdgesAdded    int `json:"edges_added"`
	EdgesRemoved  int `json:"edges_removed"`
	Total         int `json:"total_changes"`
}

// Compute diffs specA against specB. specA is the baseline ("before"),
// specB the candidate ("after").
func Compute(specA, specB *spec.WorkflowSpec) (*Diff, error) {
	d := &Diff{
		Nodes: NodeDiff{
			Added:    []spec.Node{},
			Removed:  []spec.Node{},
			Modified: []NodeModification{},
		},
		Edges: EdgeDiff{
			Added:   []spec.Edge{},
			Removed: []spec.Edge{},
		},
	}

	nodesA := specA.NodeIndex()
	nodesB := specB.NodeIndex()

	// Additions and modifications walk specB in order.
	for _, nodeB := range specB.Nodes {
		nodeA, inA := nodesA[nodeB.ID]
		if !inA {
			d.Nodes.Added = append(d.Nodes.Added, nodeB)
			continue
		}

		equal, err := nodesEqual(nodeA, nodeB)
		if err != nil {
			return nil, err
		}
		if equal {
			continue
		}

		changes, err := fieldChanges(nodeA, nodeB)
		if err != nil {
			return nil, err
		}
		d.Nodes.Modified = append(d.Nodes.Modified, NodeModification{
			ID:      nodeB.ID,
			Before:  nodeA,
			After:   nodeB,
			Changes: changes,
		})
	}

	// Removals walk specA in order.
	for _, nodeA := range specA.Nodes {
		if _, inB := nodesB[nodeA.ID]; !inB {
			d.Nodes.Removed = append(d.Nodes.Removed, nodeA)
		}
	}

	// Edges: presence by (from, to) key only.
	edgesA := edgeSet(specA)
	edgesB := edgeSet(specB)

	for _, e := range specB.Edges {
		if !edgesA[e.Key()] {
			d.Edges.Added = append(d.Edges.Added, e)
		}
	}
	for _, e := range specA.Edges {
		if !edgesB[e.Key()] {
			d.Edges.Removed = append(d.Edges.Removed, e)
		}
	}

	d.Summary = Summary{
		NodesAdded:    len(d.Nodes.Added),
		NodesRemoved:  len(d.Nodes.Removed),
		NodesModified: len(d.Nodes.Modified),
		EdgesAdded:    len(d.Edges.Added),
		EdgesRemoved:  len(d.Edges.Removed),
	}
	d.Summary.Total = d.Summary.NodesAdded + d.Summary.NodesRemoved +
		d.Summary.NodesModified + d.Summary.EdgesAdded + d.Summary.EdgesRemoved

	return d, nil
}

// Empty reports whether the diff contains no changes at all.
func (d *Diff) Empty() bool {
	return d.Summary.Total == 0
}

// nodesEqual compares two nodes structurally through their canonical JSON,
// so config map key order never produces a phantom modification.
func nodesEqual(a, b spec.Node) (bool, error) {
	rawA, err := json.Marshal(a)
	if err != nil {
		return false, fmt.Errorf("failed to serialize node %s: %w", a.ID, err)
	}
	rawB, err := json.Marshal(b)
	if err != nil {
		return false, fmt.Errorf("failed to serialize node %s: %w", b.ID, err)
	}
	return jsonpatch.Equal(rawA, rawB), nil
}

// fieldChanges breaks a modified node into per-field entries covering
// label, type, config and position.
func fieldChanges(before, after spec.Node) ([]FieldChange, error) {
	var changes []FieldChange

	if before.Label != after.Label {
		changes = append(changes, FieldChange{Field: "label", Before: before.Label, After: after.Label})
	}
	if before.Type != after.Type {
		changes = append(changes, FieldChange{Field: "type", Before: before.Type, After: after.Type})
	}

	configChanged, patch, err := configChange(before, after)
	if err != nil {
		return nil, err
	}
	if configChanged {
		changes = append(changes, FieldChange{
			Field:  "config",
			Before: before.Config,
			After:  after.Config,
			Patch:  patch,
		})
	}

	if positionChanged(before.Position, after.Position) {
		changes = append(changes, FieldChange{Field: "position", Before: before.Position, After: after.Position})
	}

	return changes, nil
}

func configChange(before, after spec.Node) (bool, json.RawMessage, error) {
	rawBefore, err := marshalConfig(before.Config)
	if err != nil {
		return false, nil, fmt.Errorf("failed to serialize config of node %s: %w", before.ID, err)
	}
	rawAfter, err := marshalConfig(after.Config)
	if err != nil {
		return false, nil, fmt.Errorf("failed to serialize config of node %s: %w", after.ID, err)
	}

	if jsonpatch.Equal(rawBefore, rawAfter) {
		return false, nil, nil
	}

	patch, err := jsonpatch.CreateMergePatch(rawBefore, rawAfter)
	if err != nil {
		return false, nil, fmt.Errorf("failed to create config patch for node %s: %w", after.ID, err)
	}

	return true, patch, nil
}

func marshalConfig(config map[string]interface{}) ([]byte, error) {
	if config == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(config)
}

func positionChanged(a, b *spec.Position) bool {
	if a == nil && b == nil {
		return false
	}
	if a == nil || b == nil {
		return true
	}
	return a.X != b.X || a.Y != b.Y
}

func edgeSet(s *spec.WorkflowSpec) map[string]bool {
	set := make(map[string]bool, len(s.Edges))
	for _, e := range s.Edges {
		set[e.Key()] = true
	}
	return set
}
