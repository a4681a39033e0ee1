package spec

// HasCycle reports whether the spec's edges form a directed cycle.
//
// Depth-first traversal from every unvisited node with a shared visited
// set, so the whole call costs O(nodes + edges). A node found on the
// current recursion stack means a cycle; a self-loop (from == to) counts.
// Edges pointing at node ids that do not exist are skipped, matching the
// lenient dangling-reference handling elsewhere.
func HasCycle(s *WorkflowSpec) bool {
	return firstCycleNode(s) != ""
}

// FirstCycleNode returns the id of the first node found on a cycle, or ""
// when the spec is acyclic. No ordering guarantee beyond "first found";
// lint uses it to name an offending node.
func FirstCycleNode(s *WorkflowSpec) string {
	return firstCycleNode(s)
}

func firstCycleNode(s *WorkflowSpec) string {
	exists := make(map[string]bool, len(s.Nodes))
	for _, n := range s.Nodes {
		exists[n.ID] = true
	}

	adjacency := make(map[string][]string, len(s.Nodes))
	for _, e := range s.Edges {
		if !exists[e.From] || !exists[e.To] {
			continue
		}
		adjacency[e.From] = append(adjacency[e.From], e.To)
	}

	visited := make(map[string]bool, len(s.Nodes))
	recStack := make(map[string]bool, len(s.Nodes))

	var visit func(id string) string
	visit = func(id string) string {
		visited[id] = true
		recStack[id] = true

		for _, next := range adjacency[id] {
			if !visited[next] {
				if found := visit(next); found != "" {
					return found
				}
			} else if recStack[next] {
				return next
			}
		}

		recStack[id] = false
		return ""
	}

	for _, n := range s.Nodes {
		if !visited[n.ID] {
			if found := visit(n.ID); found != "" {
				return found
			}
		}
	}

	return ""
}
