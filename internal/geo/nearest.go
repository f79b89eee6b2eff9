package geo

import "dispatch/internal/types"

// Match pairs a candidate with its distance from the query origin.
type Match[T any] struct {
	Item       T
	DistanceKm float64
}

// Nearest keeps the items within radiusKm of origin, nearest first, capped at
// limit (DefaultLimit when limit <= 0). Items whose position is nil are
// skipped. An empty result is not an error.
func Nearest[T any](origin types.Point, radiusKm float64, limit int, items []T, pos func(T) *types.Point) []Match[T] {
	if limit <= 0 {
		limit = DefaultLimit
	}
	out := make([]Match[T], 0, len(items))
	for _, it := range items {
		p := pos(it)
		if p == nil {
			continue
		}
		d := DistanceKm(origin, *p)
		if d <= radiusKm {
			out = append(out, Match[T]{Item: it, DistanceKm: d})
		}
	}
	sortByDistance(out, func(m Match[T]) float64 { return m.DistanceKm })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// sortByDistance performs an insertion sort (fine for small N, and stable) on
// any slice where each element exposes a distance via the accessor function.
func sortByDistance[T any](items []T, dist func(T) float64) {
	for i := 1; i < len(items); i++ {
		key := items[i]
		j := i - 1
		for j >= 0 && dist(items[j]) > dist(key) {
			items[j+1] = items[j]
			j--
		}
		items[j+1] = key
	}
}
