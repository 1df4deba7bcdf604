package postgres

import (
	"context"
	"database/sql"

	"github.com/pgvector/pgvector-go"

	"github.com/kirillkom/script-kb-assistant/internal/core/domain"
)

// ChunkVectorStore searches chunk embeddings stored in a pgvector column using cosine
// distance.
type ChunkVectorStore struct {
	db *sql.DB
}

func NewChunkVectorStore(db *sql.DB) *ChunkVectorStore {
	return &ChunkVectorStore{db: db}
}

func (s *ChunkVectorStore) VectorQuery(ctx context.Context, embedding []float32, limit int, threshold float64) ([]domain.VectorHit, error) {
	if len(embedding) == 0 || limit <= 0 {
		return []domain.VectorHit{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id::text, document_id::text, content, chunk_index, page_start, page_end,
	1 - (embedding <=> $1) AS similarity
FROM chunks
WHERE embedding IS NOT NULL AND 1 - (embedding <=> $1) >= $2
ORDER BY embedding <=> $1
LIMIT $3
`, pgvector.NewVector(embedding), threshold, limit)
	if err != nil {
		return nil, dataAccessError("chunk vector query", err)
	}
	defer rows.Close()

	out := make([]domain.VectorHit, 0, limit)
	for rows.Next() {
		var (
			hit        domain.VectorHit
			chunkIndex sql.NullInt64
			pageStart  sql.NullInt64
			pageEnd    sql.NullInt64
		)
		if err := rows.Scan(&hit.ChunkID, &hit.DocumentID, &hit.Content, &chunkIndex, &pageStart, &pageEnd, &hit.Similarity); err != nil {
			return nil, dataAccessError("scan chunk hit", err)
		}
		hit.ChunkIndex = intPtr(chunkIndex)
		hit.PageStart = intPtr(pageStart)
		hit.PageEnd = intPtr(pageEnd)
		out = append(out, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, dataAccessError("iterate chunk hits", err)
	}
	return out, nil
}
