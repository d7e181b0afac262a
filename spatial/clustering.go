// Copyright 2026 The Visor Authors
// SPDX-License-Identifier: Apache-2.0

package spatial

// Located is anything that can be placed on the map.
type Located interface {
	Location() (Point, bool)
}

// Cluster groups items whose points are within distanceThreshold meters of
// any member of the group. Items without a location are ignored.
func Cluster[T Located](items []T, distanceThreshold float64) [][]T {
	type entry struct {
		item  T
		point Point
	}

	entries := make([]entry, 0, len(items))

	for _, it := range items {
		if p, ok := it.Location(); ok {
			entries = append(entries, entry{item: it, point: p})
		}
	}

	clusters := make([][]T, 0, len(entries))
	visited := make([]bool, len(entries))

	for i := range entries {
		if visited[i] {
			continue
		}

		members := []int{i}
		visited[i] = true

		// members grows while we walk it, so later additions are compared too
		for k := 0; k < len(members); k++ {
			m := &entries[members[k]].point

			for j := range entries {
				if visited[j] {
					continue
				}

				if m.HaversineDistance(&entries[j].point) <= distanceThreshold {
					members = append(members, j)
					visited[j] = true
				}
			}
		}

		cluster := make([]T, 0, len(members))
		for _, idx := range members {
			cluster = append(cluster, entries[idx].item)
		}

		clusters = append(clusters, cluster)
	}

	return clusters
}
