package epiphany

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lorekeeper/chronicle/pkg/types"
)

// Thread is a cluster of units that belong to one storyline, detected
// from paused_by / parallel_to links between them.
type Thread struct {
	Label   string   `json:"label"`
	UnitIDs []string `json:"unit_ids"`
}

type neighbor struct {
	unitID    string
	edgeCount int
}

// ClusterThreads groups units connected by links into narrative
// threads using label propagation. Units with no links stay out of the
// result; a thread needs at least two members.
func ClusterThreads(units []types.ResolvedUnit) []Thread {
	projection := buildProjection(units)
	clusters := labelPropagation(projection)

	threads := make([]Thread, 0, len(clusters))
	for i, cluster := range clusters {
		sort.Strings(cluster)
		threads = append(threads, Thread{
			Label:   threadLabel(cluster, units, i),
			UnitIDs: cluster,
		})
	}

	sort.Slice(threads, func(i, j int) bool {
		return threads[i].UnitIDs[0] < threads[j].UnitIDs[0]
	})
	return threads
}

// threadInsights renders clusters as insights for the engine output.
func threadInsights(units []types.ResolvedUnit) []Insight {
	threads := ClusterThreads(units)
	insights := make([]Insight, 0, len(threads))
	for _, thread := range threads {
		insights = append(insights, Insight{
			Type: InsightNarrativeThread,
			Description: fmt.Sprintf("narrative thread %q spans %d units",
				thread.Label, len(thread.UnitIDs)),
			Confidence: 0.5 + 0.1*float64(len(thread.UnitIDs)),
			Evidence:   []string{fmt.Sprintf("units: %s", strings.Join(thread.UnitIDs, ", "))},
		})
	}
	return insights
}

// buildProjection turns unit links into an undirected neighbor map.
// Multiple links between the same pair add weight.
func buildProjection(units []types.ResolvedUnit) map[string][]neighbor {
	inBatch := make(map[string]bool, len(units))
	for _, u := range units {
		inBatch[u.Hypothesis.UnitID] = true
	}

	weights := make(map[string]map[string]int)
	addEdge := func(a, b string) {
		if weights[a] == nil {
			weights[a] = make(map[string]int)
		}
		weights[a][b]++
	}

	for _, u := range units {
		from := u.Hypothesis.UnitID
		for _, link := range u.Hypothesis.Links {
			if !inBatch[link.TargetUnitID] || link.TargetUnitID == from {
				continue
			}
			addEdge(from, link.TargetUnitID)
			addEdge(link.TargetUnitID, from)
		}
	}

	projection := make(map[string][]neighbor, len(weights))
	for unitID, neighborWeights := range weights {
		neighbors := make([]neighbor, 0, len(neighborWeights))
		for target, count := range neighborWeights {
			neighbors = append(neighbors, neighbor{unitID: target, edgeCount: count})
		}
		sort.Slice(neighbors, func(i, j int) bool {
			return neighbors[i].unitID < neighbors[j].unitID
		})
		projection[unitID] = neighbors
	}
	return projection
}

// labelPropagation assigns each node the dominant community among its
// neighbors, iterating until stable. Communities that end up with more
// than one member become clusters.
func labelPropagation(projection map[string][]neighbor) [][]string {
	if len(projection) == 0 {
		return nil
	}

	// Deterministic initial numbering keeps results stable across runs.
	ids := make([]string, 0, len(projection))
	for unitID := range projection {
		ids = append(ids, unitID)
	}
	sort.Strings(ids)

	communityMap := make(map[string]int, len(ids))
	for i, unitID := range ids {
		communityMap[unitID] = i
	}

	maxIterations := 100
	for iteration := 0; iteration < maxIterations; iteration++ {
		noChange := true
		newCommunityMap := make(map[string]int, len(communityMap))

		for _, unitID := range ids {
			currentCommunity := communityMap[unitID]

			// Count community support among neighbors, weighted by
			// edge count.
			candidates := make(map[int]int)
			for _, nb := range projection[unitID] {
				if nbCommunity, exists := communityMap[nb.unitID]; exists {
					candidates[nbCommunity] += nb.edgeCount
				}
			}

			newCommunity := currentCommunity
			bestCommunity, bestCount := -1, 0
			for community, count := range candidates {
				if count > bestCount || (count == bestCount && community > bestCommunity) {
					bestCommunity = community
					bestCount = count
				}
			}

			if bestCount > 1 {
				newCommunity = bestCommunity
			} else if bestCount == 1 && bestCommunity > currentCommunity {
				// Weak support: adopt the larger label so connected
				// components still converge to one community.
				newCommunity = bestCommunity
			}

			newCommunityMap[unitID] = newCommunity
			if newCommunity != currentCommunity {
				noChange = false
			}
		}

		communityMap = newCommunityMap
		if noChange {
			break
		}
	}

	grouped := make(map[int][]string)
	for _, unitID := range ids {
		community := communityMap[unitID]
		grouped[community] = append(grouped[community], unitID)
	}

	communities := make([]int, 0, len(grouped))
	for community := range grouped {
		communities = append(communities, community)
	}
	sort.Ints(communities)

	var clusters [][]string
	for _, community := range communities {
		if cluster := grouped[community]; len(cluster) > 1 {
			clusters = append(clusters, cluster)
		}
	}
	return clusters
}

// threadLabel names a cluster after the most common thread tag among
// its members, falling back to a numbered label.
func threadLabel(cluster []string, units []types.ResolvedUnit, index int) string {
	inCluster := make(map[string]bool, len(cluster))
	for _, id := range cluster {
		inCluster[id] = true
	}

	counts := make(map[string]int)
	for _, u := range units {
		if !inCluster[u.Hypothesis.UnitID] {
			continue
		}
		for _, thread := range u.Hypothesis.Threads {
			counts[strings.ToLower(strings.TrimSpace(thread))]++
		}
	}

	best, bestCount := "", 0
	for label, count := range counts {
		if label == "" {
			continue
		}
		if count > bestCount || (count == bestCount && label < best) {
			best = label
			bestCount = count
		}
	}
	if best != "" {
		return best
	}
	return fmt.Sprintf("thread-%d", index+1)
}
