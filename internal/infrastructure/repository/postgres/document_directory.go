package postgres

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
)

type DocumentDirectory struct {
	db *sql.DB
}

func NewDocumentDirectory(db *sql.DB) *DocumentDirectory {
	return &DocumentDirectory{db: db}
}

// DocumentNames resolves ids in one round trip. Unknown ids are absent from the result.
func (d *DocumentDirectory) DocumentNames(ctx context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := d.db.QueryContext(ctx, `
SELECT id::text, name
FROM documents
WHERE id::text = ANY($1)
`, pq.Array(ids))
	if err != nil {
		return nil, dataAccessError("document names", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, dataAccessError("scan document name", err)
		}
		out[id] = name
	}
	if err := rows.Err(); err != nil {
		return nil, dataAccessError("iterate document names", err)
	}
	return out, nil
}
