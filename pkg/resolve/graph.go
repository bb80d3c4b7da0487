package resolve

import "github.com/lorekeeper/chronicle/pkg/types"

// buildEdges constructs the precedence edge set from relative placements.
// An edge u -> v means "u is walked ahead of v in propagation order":
// relation before adds unit -> reference, after adds reference -> unit,
// during adds nothing. Edges only form between units present in the batch.
func buildEdges(hypotheses []types.TemporalHypothesis) map[string][]string {
	inBatch := make(map[string]bool, len(hypotheses))
	for _, h := range hypotheses {
		inBatch[h.UnitID] = true
	}

	edges := make(map[string][]string)
	for _, h := range hypotheses {
		if !h.HasRelative() || !inBatch[h.RelativeTo] {
			continue
		}
		switch h.Relation {
		case types.RelationBefore:
			edges[h.UnitID] = append(edges[h.UnitID], h.RelativeTo)
		case types.RelationAfter:
			edges[h.RelativeTo] = append(edges[h.RelativeTo], h.UnitID)
		}
	}
	return edges
}

// TopologicalOrder orders unit ids by precedence using Kahn's algorithm.
// Units that cannot be reached (members of relation cycles) come back in the
// unordered remainder, in input order. The walk sequence used for propagation
// is ordered followed by unordered; callers that need to know which units sit
// inside cycles can inspect the remainder directly.
func TopologicalOrder(hypotheses []types.TemporalHypothesis) (ordered []string, unordered []string) {
	edges := buildEdges(hypotheses)

	inDegree := make(map[string]int, len(hypotheses))
	for _, h := range hypotheses {
		inDegree[h.UnitID] = 0
	}
	for _, targets := range edges {
		for _, v := range targets {
			inDegree[v]++
		}
	}

	// Seed with zero in-degree nodes in input order for determinism
	var queue []string
	for _, h := range hypotheses {
		if inDegree[h.UnitID] == 0 {
			queue = append(queue, h.UnitID)
		}
	}

	ordered = make([]string, 0, len(hypotheses))
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		ordered = append(ordered, u)

		for _, v := range edges[u] {
			inDegree[v]--
			if inDegree[v] == 0 {
				queue = append(queue, v)
			}
		}
	}

	if len(ordered) == len(hypotheses) {
		return ordered, nil
	}

	reached := make(map[string]bool, len(ordered))
	for _, id := range ordered {
		reached[id] = true
	}
	for _, h := range hypotheses {
		if !reached[h.UnitID] {
			unordered = append(unordered, h.UnitID)
		}
	}
	return ordered, unordered
}
