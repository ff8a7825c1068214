package vector

import (
	"sort"

	"github.com/kirillkom/firm-distillery/internal/core/domain"
)

const (
	overFetchFactor = 10
	overFetchFloor  = 100
)

// OverFetchLimit is the candidate pool size for boosted search.
func OverFetchLimit(k int) int {
	return max(k*overFetchFactor, overFetchFloor)
}

// RankBoosted orders candidates by presence of field, then by its distinct
// count, then by distance, and keeps the first k. Ties on all three keys
// fall back to the chunk id so the order is deterministic.
func RankBoosted(candidates []domain.RetrievedChunk, field domain.BoostField, k int) []domain.RetrievedChunk {
	if k <= 0 || len(candidates) == 0 {
		return []domain.RetrievedChunk{}
	}

	ranked := make([]domain.RetrievedChunk, len(candidates))
	copy(ranked, candidates)

	sort.SliceStable(ranked, func(i, j int) bool {
		si, _ := ranked[i].Patterns.Signal(field)
		sj, _ := ranked[j].Patterns.Signal(field)
		if si.Present != sj.Present {
			return si.Present
		}
		if si.Count != sj.Count {
			return si.Count > sj.Count
		}
		if ranked[i].Distance != ranked[j].Distance {
			return ranked[i].Distance < ranked[j].Distance
		}
		return ranked[i].ID < ranked[j].ID
	})

	if len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked
}

// sortByDistance orders plain search results nearest first.
func sortByDistance(chunks []domain.RetrievedChunk) {
	sort.SliceStable(chunks, func(i, j int) bool {
		if chunks[i].Distance != chunks[j].Distance {
			return chunks[i].Distance < chunks[j].Distance
		}
		return chunks[i].ID < chunks[j].ID
	})
}
