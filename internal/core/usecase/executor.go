package usecase

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/script-kb-assistant/internal/core/domain"
)

type structuredSearcher interface {
	Search(ctx context.Context, filters domain.Filters) ([]domain.RankedItem, error)
}

type semanticSearcher interface {
	Search(ctx context.Context, text string) ([]domain.RankedItem, error)
}

// HybridExecutor runs the sub-searches implied by a classification.
type HybridExecutor struct {
	structured structuredSearcher
	semantic   semanticSearcher
}

func NewHybridExecutor(structured structuredSearcher, semantic semanticSearcher) *HybridExecutor {
	return &HybridExecutor{structured: structured, semantic: semantic}
}

// Execute returns structured and semantic results. In hybrid mode both searches run
// concurrently; the first error cancels the sibling and no partial results are returned.
func (e *HybridExecutor) Execute(ctx context.Context, query string, cls domain.IntentClassification) ([]domain.RankedItem, []domain.RankedItem, error) {
	semanticText := cls.SemanticQuery
	if semanticText == "" {
		semanticText = query
	}

	switch cls.QueryKind {
	case domain.QueryStructured:
		structured, err := e.structured.Search(ctx, cls.Filters)
		if err != nil {
			return nil, nil, err
		}
		return structured, []domain.RankedItem{}, nil

	case domain.QuerySemantic:
		semantic, err := e.semantic.Search(ctx, semanticText)
		if err != nil {
			return nil, nil, err
		}
		return []domain.RankedItem{}, semantic, nil

	case domain.QueryHybrid:
		var structured, semantic []domain.RankedItem
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			structured, err = e.structured.Search(gctx, cls.Filters)
			return err
		})
		g.Go(func() error {
			var err error
			semantic, err = e.semantic.Search(gctx, semanticText)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, nil, err
		}
		return structured, semantic, nil

	default:
		return nil, nil, domain.WrapError(domain.ErrSchemaMismatch, "execute search", fmt.Errorf("unknown query kind %q", cls.QueryKind))
	}
}
