// Package merge reconciles two branch heads of a workflow into a single
// spec, surfacing conflicts it cannot resolve on its own.
//
// The engine is pure: it never touches storage. Committing a merge (new
// version, branch head advance) is the service layer's job and only happens
// once the engine reports zero unresolved conflicts.
package merge

import (
	"encoding/json"

	jsonpatch "github.com/evanphx/json-patch/v5"

	"github.com/archonhq/archon/common/spec"
)

// Strategy selects how divergent nodes are reconciled.
type Strategy string

const (
	// StrategyAuto keeps the target version and surfaces a conflict for
	// every divergent node, unless the caller supplied an explicit
	// resolution for it.
	StrategyAuto Strategy = "auto"
	// StrategyOurs keeps the target spec wholesale; source changes,
	// including source-only nodes and edges, are discarded.
	StrategyOurs Strategy = "ours"
	// StrategyTheirs takes the source version of every divergent node.
	StrategyTheirs Strategy = "theirs"
)

// ParseStrategy maps a request string onto a Strategy. Unknown values fall
// back to auto, matching the lenient posture of the API.
func ParseStrategy(s string) Strategy {
	switch Strategy(s) {
	case StrategyOurs:
		return StrategyOurs
	case StrategyTheirs:
		return StrategyTheirs
	default:
		return StrategyAuto
	}
}

// Conflict types.
const (
	ConflictNodeModified     = "node_modified"
	ConflictPropertyConflict = "property_conflict"
)

// Conflict is a divergent change the engine could not reconcile. Source and
// Target carry both sides so callers can build a resolution and re-invoke.
type Conflict struct {
	Type     string      `json:"type"`
	NodeID   string      `json:"node_id,omitempty"`
	Property string      `json:"property,omitempty"`
	Source   interface{} `json:"source"`
	Target   interface{} `json:"target"`
}

// Resolution carries the caller's explicit answers for known conflicts:
// a replacement node per node id, and a value for the collaboration
// strategy property.
type Resolution struct {
	Nodes                 map[string]spec.Node `json:"nodes,omitempty"`
	CollaborationStrategy *string              `json:"collaboration_strategy,omitempty"`
}

// Result is the merge outcome. When Conflicts is non-empty the MergedSpec
// is advisory only and must not be committed. Resolved counts divergences
// settled by strategy or explicit resolution instead of being surfaced.
type Result struct {
	MergedSpec *spec.WorkflowSpec `json:"merged_spec"`
	Conflicts  []Conflict         `json:"conflicts"`
	Resolved   int                `json:"resolved"`
}

// Merge reconciles source into target. The merged spec starts as a deep
// copy of target; source-only nodes are appended, divergent nodes resolve
// per strategy or explicit resolution, and source-only edges (keyed by
// endpoints) are appended. Edges never conflict.
//
// StrategyOurs is the exception: it discards the source outright, so the
// merged spec is exactly the target. Nothing is appended and nothing can
// conflict.
func Merge(source, target *spec.WorkflowSpec, strategy Strategy, res *Resolution) *Result {
	if strategy == StrategyOurs {
		return &Result{MergedSpec: target.Clone(), Conflicts: []Conflict{}}
	}

	merged := target.Clone()
	conflicts := []Conflict{}
	resolved := 0

	targetIndex := make(map[string]int, len(merged.Nodes))
	for i, n := range merged.Nodes {
		targetIndex[n.ID] = i
	}

	for _, sourceNode := range source.Nodes {
		idx, inTarget := targetIndex[sourceNode.ID]
		if !inTarget {
			merged.Nodes = append(merged.Nodes, sourceNode.Clone())
			targetIndex[sourceNode.ID] = len(merged.Nodes) - 1
			continue
		}

		targetNode := merged.Nodes[idx]
		if nodesEqual(sourceNode, targetNode) {
			continue
		}

		switch {
		case strategy == StrategyTheirs:
			merged.Nodes[idx] = sourceNode.Clone()
			resolved++
		case res != nil && hasNodeResolution(res, sourceNode.ID):
			merged.Nodes[idx] = res.Nodes[sourceNode.ID].Clone()
			resolved++
		default:
			conflicts = append(conflicts, Conflict{
				Type:   ConflictNodeModified,
				NodeID: sourceNode.ID,
				Source: sourceNode,
				Target: targetNode,
			})
		}
	}

	// Edges are add-only: a source edge whose endpoints are unknown to the
	// target is appended, everything else is already there.
	targetEdges := make(map[string]bool, len(merged.Edges))
	for _, e := range merged.Edges {
		targetEdges[e.Key()] = true
	}
	for _, e := range source.Edges {
		if !targetEdges[e.Key()] {
			merged.Edges = append(merged.Edges, e)
			targetEdges[e.Key()] = true
		}
	}

	if source.CollaborationStrategy != target.CollaborationStrategy {
		switch {
		case strategy == StrategyTheirs:
			merged.CollaborationStrategy = source.CollaborationStrategy
			resolved++
		case res != nil && res.CollaborationStrategy != nil:
			merged.CollaborationStrategy = *res.CollaborationStrategy
			resolved++
		default:
			conflicts = append(conflicts, Conflict{
				Type:     ConflictPropertyConflict,
				Property: "collaboration_strategy",
				Source:   source.CollaborationStrategy,
				Target:   target.CollaborationStrategy,
			})
		}
	}

	return &Result{MergedSpec: merged, Conflicts: conflicts, Resolved: resolved}
}

func hasNodeResolution(res *Resolution, nodeID string) bool {
	if res.Nodes == nil {
		return false
	}
	_, ok := res.Nodes[nodeID]
	return ok
}

// nodesEqual compares nodes structurally through canonical JSON, so config
// key order never manufactures a conflict.
func nodesEqual(a, b spec.Node) bool {
	rawA, errA := json.Marshal(a)
	rawB, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return jsonpatch.Equal(rawA, rawB)
}
