package dedupe

import (
	"sort"

	"github.com/latticehq/lattice/internal/core/model"
)

// matchedPair records one scored pair that met the detection threshold.
// A and B index into the detector's working set.
type matchedPair struct {
	A, B  int
	Score pairScore
}

// clusterMatches groups matched pairs into transitive clusters via connected
// components and elects a canonical entity per cluster: highest mention count,
// ties broken by the older row. Every other member becomes a duplicate
// carrying its best match evidence. Singleton components never appear.
func clusterMatches(entities []model.Entity, pairs []matchedPair) []model.DuplicateGroup {
	if len(pairs) == 0 {
		return nil
	}

	adj := make(map[int][]int)
	bestByIndex := make(map[int]pairScore)
	for _, p := range pairs {
		adj[p.A] = append(adj[p.A], p.B)
		adj[p.B] = append(adj[p.B], p.A)
		if s, ok := bestByIndex[p.A]; !ok || p.Score.Score > s.Score {
			bestByIndex[p.A] = p.Score
		}
		if s, ok := bestByIndex[p.B]; !ok || p.Score.Score > s.Score {
			bestByIndex[p.B] = p.Score
		}
	}

	visited := make(map[int]bool)
	var groups []model.DuplicateGroup

	for i := range entities {
		if visited[i] || len(adj[i]) == 0 {
			continue
		}
		var component []int
		dfs(i, adj, visited, &component)
		if len(component) < 2 {
			continue
		}

		canonical := pickCanonical(entities, component)
		group := model.DuplicateGroup{Canonical: entities[canonical]}
		for _, idx := range component {
			if idx == canonical {
				continue
			}
			score := bestByIndex[idx]
			group.Duplicates = append(group.Duplicates, model.DuplicateMatch{
				Entity: entities[idx],
				Score:  score.Score,
				Method: score.Method,
				Reason: score.Reason,
			})
		}
		sort.SliceStable(group.Duplicates, func(a, b int) bool {
			return group.Duplicates[a].Score > group.Duplicates[b].Score
		})
		groups = append(groups, group)
	}

	return groups
}

func dfs(u int, adj map[int][]int, visited map[int]bool, component *[]int) {
	visited[u] = true
	*component = append(*component, u)
	for _, v := range adj[u] {
		if !visited[v] {
			dfs(v, adj, visited, component)
		}
	}
}

func pickCanonical(entities []model.Entity, component []int) int {
	canonical := component[0]
	for _, idx := range component[1:] {
		candidate := entities[idx]
		current := entities[canonical]
		if candidate.MentionCount > current.MentionCount {
			canonical = idx
			continue
		}
		if candidate.MentionCount == current.MentionCount && candidate.CreatedAt.Before(current.CreatedAt) {
			canonical = idx
		}
	}
	return canonical
}
