package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/kirillkom/script-kb-assistant/internal/core/domain"
)

// StructuredStore reads extracted entity tables. Table and column names are checked
// against the entity vocabulary before being quoted into SQL.
type StructuredStore struct {
	db      *sql.DB
	columns map[string]map[string]struct{}
}

func NewStructuredStore(db *sql.DB) *StructuredStore {
	columns := make(map[string]map[string]struct{})
	for _, kind := range domain.StructuredKinds() {
		allowed := map[string]struct{}{domain.ScriptIDField: {}}
		for _, f := range kind.Fields() {
			allowed[f.Name] = struct{}{}
		}
		columns[kind.Table()] = allowed
	}
	return &StructuredStore{db: db, columns: columns}
}

func (s *StructuredStore) StructuredQuery(ctx context.Context, table string, conditions []domain.FieldCondition, limit int) ([]domain.EntityRow, error) {
	query, args, err := s.buildQuery(table, conditions, limit)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dataAccessError("structured query "+table, err)
	}
	defer rows.Close()

	out := make([]domain.EntityRow, 0)
	for rows.Next() {
		var (
			row        domain.EntityRow
			body       []byte
			pageStart  sql.NullInt64
			pageEnd    sql.NullInt64
			scriptName sql.NullString
		)
		if err := rows.Scan(&row.ID, &body, &row.DocumentName, &scriptName, &pageStart, &pageEnd); err != nil {
			return nil, dataAccessError("scan "+table, err)
		}
		if err := json.Unmarshal(body, &row.Fields); err != nil {
			return nil, dataAccessError("decode "+table+" row", err)
		}
		row.ScriptName = scriptName.String
		row.PageStart = intPtr(pageStart)
		row.PageEnd = intPtr(pageEnd)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, dataAccessError("iterate "+table, err)
	}
	return out, nil
}

func (s *StructuredStore) buildQuery(table string, conditions []domain.FieldCondition, limit int) (string, []any, error) {
	allowed, ok := s.columns[table]
	if !ok {
		return "", nil, domain.WrapError(domain.ErrSchemaMismatch, "structured query", fmt.Errorf("unknown table %q", table))
	}

	// The scripts table is its own script scope.
	scriptColumn := "script_id"
	scriptJoin := "LEFT JOIN scripts AS s ON s.id = e.script_id"
	scriptName := "s.name"
	if table == domain.KindScript.Table() {
		scriptColumn = "id"
		scriptJoin = ""
		scriptName = "e.name"
	}

	where := make([]string, 0, len(conditions))
	args := make([]any, 0, len(conditions)+1)
	for _, cond := range conditions {
		if _, ok := allowed[cond.Field]; !ok {
			return "", nil, domain.WrapError(domain.ErrSchemaMismatch, "structured query", fmt.Errorf("unknown column %q on %s", cond.Field, table))
		}
		column := cond.Field
		if column == domain.ScriptIDField {
			column = scriptColumn
		}
		args = append(args, cond.Value)
		where = append(where, fmt.Sprintf("%s = $%d", pgx.Identifier{"e", column}.Sanitize(), len(args)))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT e.id::text, to_jsonb(e), COALESCE(d.name, ''), %s, e.page_start, e.page_end\n", scriptName)
	fmt.Fprintf(&b, "FROM %s AS e\n", pgx.Identifier{table}.Sanitize())
	b.WriteString("LEFT JOIN documents AS d ON d.id = e.document_id\n")
	if scriptJoin != "" {
		b.WriteString(scriptJoin + "\n")
	}
	if len(where) > 0 {
		b.WriteString("WHERE " + strings.Join(where, " AND ") + "\n")
	}
	b.WriteString("ORDER BY e.id\n")
	if limit > 0 {
		args = append(args, limit)
		fmt.Fprintf(&b, "LIMIT $%d", len(args))
	}
	return b.String(), args, nil
}
