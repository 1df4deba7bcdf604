package usecase

import (
	"sort"

	"github.com/kirillkom/script-kb-assistant/internal/core/domain"
)

// DefaultRRFK is the smoothing constant used when none is configured.
const DefaultRRFK = 60

type fusedCandidate struct {
	item  domain.RankedItem
	score float64
	order int
}

// FuseRRF merges two best-first lists with Reciprocal Rank Fusion. Every appearance at
// zero-based rank r contributes 1/(k+r+1); contributions are summed per item ID. The
// output is sorted by descending fused score, ties keep first-encountered order with
// the structured list scanned first. limit <= 0 disables the cap. Inputs are not modified.
func FuseRRF(structured, semantic []domain.RankedItem, rrfK, limit int) []domain.RankedItem {
	if rrfK <= 0 {
		rrfK = DefaultRRFK
	}

	acc := make(map[string]*fusedCandidate, len(structured)+len(semantic))
	addList := func(items []domain.RankedItem) {
		for rank, item := range items {
			candidate, ok := acc[item.ID]
			if !ok {
				candidate = &fusedCandidate{item: item, order: len(acc)}
				acc[item.ID] = candidate
			}
			candidate.score += 1.0 / float64(rrfK+rank+1)
		}
	}

	addList(structured)
	addList(semantic)

	ordered := make([]*fusedCandidate, 0, len(acc))
	for _, c := range acc {
		ordered = append(ordered, c)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].score != ordered[j].score {
			return ordered[i].score > ordered[j].score
		}
		return ordered[i].order < ordered[j].order
	})

	out := make([]domain.RankedItem, 0, len(ordered))
	for _, c := range ordered {
		item := c.item
		item.Score = c.score
		out = append(out, item)
	}
	return trimCandidates(out, limit)
}

func trimCandidates(items []domain.RankedItem, limit int) []domain.RankedItem {
	if limit <= 0 || len(items) <= limit {
		return items
	}
	return items[:limit]
}
