package usecase

import (
	"context"
	"fmt"

	"github.com/kirillkom/script-kb-assistant/internal/core/domain"
	"github.com/kirillkom/script-kb-assistant/internal/core/ports"
)

const defaultStructuredLimit = 20

// StructuredSearch turns typed filters into an equality query on the kind's table.
type StructuredSearch struct {
	store ports.StructuredStore
	limit int
}

func NewStructuredSearch(store ports.StructuredStore, limit int) *StructuredSearch {
	if limit <= 0 {
		limit = defaultStructuredLimit
	}
	return &StructuredSearch{store: store, limit: limit}
}

// Search returns rows matching every defined filter field. Scores are rank-derived,
// 1/(1+position), and carry no relevance meaning. Nil filters yield no results.
func (s *StructuredSearch) Search(ctx context.Context, filters domain.Filters) ([]domain.RankedItem, error) {
	if filters == nil {
		return []domain.RankedItem{}, nil
	}
	kind := filters.Kind()
	table := kind.Table()
	if table == "" {
		return nil, domain.WrapError(domain.ErrSchemaMismatch, "structured search", fmt.Errorf("no table for kind %q", kind))
	}

	rows, err := s.store.StructuredQuery(ctx, table, filters.Conditions(), s.limit)
	if err != nil {
		return nil, fmt.Errorf("structured query %s: %w", table, err)
	}

	out := make([]domain.RankedItem, 0, len(rows))
	for pos, row := range rows {
		payload, err := domain.DecodePayload(kind, row.Fields)
		if err != nil {
			payload = domain.GenericPayload{Kind: kind, Fields: row.Fields}
		}
		out = append(out, domain.RankedItem{
			ID:      row.ID,
			Kind:    kind,
			Payload: payload,
			Provenance: domain.Provenance{
				DocumentName: row.DocumentName,
				ScriptName:   row.ScriptName,
				PageStart:    row.PageStart,
				PageEnd:      row.PageEnd,
			},
			Score: 1.0 / float64(1+pos),
		})
	}
	return out, nil
}
