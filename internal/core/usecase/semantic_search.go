package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirillkom/script-kb-assistant/internal/core/domain"
	"github.com/kirillkom/script-kb-assistant/internal/core/ports"
)

const (
	defaultSemanticLimit     = 10
	defaultSemanticThreshold = 0.5
)

// SemanticSearch embeds free text and looks up similar chunks.
type SemanticSearch struct {
	embedder  ports.Embedder
	vectors   ports.VectorStore
	documents ports.DocumentDirectory
	limit     int
	threshold float64
}

func NewSemanticSearch(
	embedder ports.Embedder,
	vectors ports.VectorStore,
	documents ports.DocumentDirectory,
	limit int,
	threshold float64,
) *SemanticSearch {
	if limit <= 0 {
		limit = defaultSemanticLimit
	}
	if threshold <= 0 {
		threshold = defaultSemanticThreshold
	}
	return &SemanticSearch{
		embedder:  embedder,
		vectors:   vectors,
		documents: documents,
		limit:     limit,
		threshold: threshold,
	}
}

// Search returns chunks above the similarity threshold, best first. Blank text returns
// an empty list without calling the embedder.
func (s *SemanticSearch) Search(ctx context.Context, text string) ([]domain.RankedItem, error) {
	if strings.TrimSpace(text) == "" {
		return []domain.RankedItem{}, nil
	}

	vector, err := s.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := s.vectors.VectorQuery(ctx, vector, s.limit, s.threshold)
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}
	if len(hits) == 0 {
		return []domain.RankedItem{}, nil
	}

	names, err := s.documents.DocumentNames(ctx, uniqueDocumentIDs(hits))
	if err != nil {
		return nil, fmt.Errorf("resolve document names: %w", err)
	}

	out := make([]domain.RankedItem, 0, len(hits))
	for _, hit := range hits {
		name := names[hit.DocumentID]
		if name == "" {
			name = hit.DocumentID
		}
		out = append(out, domain.RankedItem{
			ID:   hit.ChunkID,
			Kind: domain.KindChunk,
			Payload: domain.ChunkPayload{
				Content:    hit.Content,
				ChunkIndex: hit.ChunkIndex,
			},
			Provenance: domain.Provenance{
				DocumentName: name,
				PageStart:    hit.PageStart,
				PageEnd:      hit.PageEnd,
			},
			Score: hit.Similarity,
		})
	}
	return out, nil
}

func uniqueDocumentIDs(hits []domain.VectorHit) []string {
	seen := make(map[string]struct{}, len(hits))
	out := make([]string, 0, len(hits))
	for _, hit := range hits {
		if hit.DocumentID == "" {
			continue
		}
		if _, ok := seen[hit.DocumentID]; ok {
			continue
		}
		seen[hit.DocumentID] = struct{}{}
		out = append(out, hit.DocumentID)
	}
	return out
}
