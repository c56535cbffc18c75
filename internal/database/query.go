package database

import (
	"fmt"
	"strings"

	"github.com/slpdev/slp-api/internal/errs"
)

// validOps is the allowlist of comparison operators for WHERE clauses.
// Any operator not in this list is rejected to prevent SQL injection
// through the operator position (which cannot be parameterized).
var validOps = map[string]bool{
	"=":     true,
	"!=":    true,
	"<>":    true,
	"<":     true,
	">":     true,
	"<=":    true,
	">=":    true,
	"LIKE":  true,
	"ILIKE": true,
}

type whereClause struct {
	column string
	op     string
	value  any
}

// SortDirection controls the ORDER BY direction.
type SortDirection bool

const (
	Asc  SortDirection = false
	Desc SortDirection = true
)

type orderClause struct {
	column string
	dir    SortDirection
}

// SelectBuilder constructs a parameterized SELECT query using a fluent API.
// Values are never interpolated into the SQL string — always passed as args.
//
// Usage:
//
//	sql, args, err := Select("subjects").
//	    Where("enrollment_id", "=", "E1").
//	    Limit(100).
//	    Offset(0).
//	    Build()
type SelectBuilder struct {
	table   string
	columns []string
	where   []whereClause
	orderBy []orderClause
	limit   *int
	offset  *int
}

// Select starts a new SelectBuilder for the given table.
func Select(table string) *SelectBuilder {
	return &SelectBuilder{table: table}
}

// Columns restricts the SELECT to the specified columns.
// If not called, SELECT * is used.
func (b *SelectBuilder) Columns(cols ...string) *SelectBuilder {
	b.columns = cols
	return b
}

// Where adds a WHERE condition. op must be one of the allowed comparison
// operators (=, !=, <, >, <=, >=, LIKE, ILIKE).
// Multiple calls are combined with AND.
func (b *SelectBuilder) Where(column, op string, value any) *SelectBuilder {
	b.where = append(b.where, whereClause{column, op, value})
	return b
}

// OrderBy appends an ORDER BY clause for the given column and direction.
func (b *SelectBuilder) OrderBy(column string, dir SortDirection) *SelectBuilder {
	b.orderBy = append(b.orderBy, orderClause{column, dir})
	return b
}

// Limit sets the maximum number of rows to return. Zero is honored
// (LIMIT 0 returns no rows).
func (b *SelectBuilder) Limit(n int) *SelectBuilder {
	b.limit = &n
	return b
}

// Offset sets the number of rows to skip (for pagination).
func (b *SelectBuilder) Offset(n int) *SelectBuilder {
	b.offset = &n
	return b
}

// Build produces the final SQL string and argument slice.
// Returns an error if any WHERE operator is not in the allowlist.
func (b *SelectBuilder) Build() (string, []any, error) {
	cols := "*"
	if len(b.columns) > 0 {
		quoted := make([]string, len(b.columns))
		for i, c := range b.columns {
			quoted[i] = quoteIdent(c)
		}
		cols = strings.Join(quoted, ", ")
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(cols)
	sb.WriteString(" FROM ")
	sb.WriteString(quoteIdent(b.table))

	var args []any
	argIdx := 1

	if len(b.where) > 0 {
		parts := make([]string, 0, len(b.where))
		for _, w := range b.where {
			op := strings.ToUpper(w.op)
			if !validOps[op] {
				return "", nil, errs.New(errs.ErrKindInvalidInput,
					fmt.Sprintf("unsupported WHERE operator: %q", w.op))
			}
			parts = append(parts, fmt.Sprintf("%s %s $%d", quoteIdent(w.column), op, argIdx))
			args = append(args, w.value)
			argIdx++
		}
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(parts, " AND "))
	}

	if len(b.orderBy) > 0 {
		parts := make([]string, len(b.orderBy))
		for i, o := range b.orderBy {
			dir := "ASC"
			if o.dir == Desc {
				dir = "DESC"
			}
			parts[i] = fmt.Sprintf("%s %s", quoteIdent(o.column), dir)
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(parts, ", "))
	}

	if b.limit != nil {
		sb.WriteString(fmt.Sprintf(" LIMIT $%d", argIdx))
		args = append(args, *b.limit)
		argIdx++
	}

	if b.offset != nil {
		sb.WriteString(fmt.Sprintf(" OFFSET $%d", argIdx))
		args = append(args, *b.offset)
	}

	return sb.String(), args, nil
}

// InsertBuilder constructs a parameterized INSERT ... RETURNING * statement.
// Column order follows the order of Set calls, so callers that iterate a
// table descriptor produce deterministic SQL.
type InsertBuilder struct {
	table   string
	columns []string
	values  []any
}

// Insert starts a new InsertBuilder for the given table.
func Insert(table string) *InsertBuilder {
	return &InsertBuilder{table: table}
}

// Set adds one column/value pair to the INSERT.
func (b *InsertBuilder) Set(column string, value any) *InsertBuilder {
	b.columns = append(b.columns, column)
	b.values = append(b.values, value)
	return b
}

// Build produces the final SQL string and argument slice. With no columns
// set it emits INSERT ... DEFAULT VALUES, so a row of all column defaults
// can still be created.
func (b *InsertBuilder) Build() (string, []any, error) {
	if len(b.columns) == 0 {
		sql := fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING *", quoteIdent(b.table))
		return sql, nil, nil
	}

	cols := make([]string, len(b.columns))
	placeholders := make([]string, len(b.columns))
	for i, c := range b.columns {
		cols[i] = quoteIdent(c)
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		quoteIdent(b.table),
		strings.Join(cols, ", "),
		strings.Join(placeholders, ", "))

	return sql, b.values, nil
}

// UpdateBuilder constructs a parameterized UPDATE ... RETURNING * statement.
// A WHERE condition is mandatory — full-table updates are never emitted.
type UpdateBuilder struct {
	table   string
	columns []string
	values  []any
	where   []whereClause
}

// Update starts a new UpdateBuilder for the given table.
func Update(table string) *UpdateBuilder {
	return &UpdateBuilder{table: table}
}

// Set adds one column/value pair to the SET clause.
func (b *UpdateBuilder) Set(column string, value any) *UpdateBuilder {
	b.columns = append(b.columns, column)
	b.values = append(b.values, value)
	return b
}

// Where adds a WHERE condition, combined with AND.
func (b *UpdateBuilder) Where(column, op string, value any) *UpdateBuilder {
	b.where = append(b.where, whereClause{column, op, value})
	return b
}

// Build produces the final SQL string and argument slice.
func (b *UpdateBuilder) Build() (string, []any, error) {
	if len(b.columns) == 0 {
		return "", nil, errs.New(errs.ErrKindInvalidInput, "update requires at least one column")
	}
	if len(b.where) == 0 {
		return "", nil, errs.New(errs.ErrKindInvalidInput, "update requires a WHERE condition")
	}

	var sb strings.Builder
	sb.WriteString("UPDATE ")
	sb.WriteString(quoteIdent(b.table))
	sb.WriteString(" SET ")

	args := make([]any, 0, len(b.values)+len(b.where))
	argIdx := 1

	sets := make([]string, len(b.columns))
	for i, c := range b.columns {
		sets[i] = fmt.Sprintf("%s = $%d", quoteIdent(c), argIdx)
		args = append(args, b.values[i])
		argIdx++
	}
	sb.WriteString(strings.Join(sets, ", "))

	whereSQL, args, err := buildWhere(b.where, args, argIdx)
	if err != nil {
		return "", nil, err
	}
	sb.WriteString(whereSQL)
	sb.WriteString(" RETURNING *")

	return sb.String(), args, nil
}

// DeleteBuilder constructs a parameterized DELETE statement.
// A WHERE condition is mandatory — full-table deletes are never emitted.
type DeleteBuilder struct {
	table string
	where []whereClause
}

// Delete starts a new DeleteBuilder for the given table.
func Delete(table string) *DeleteBuilder {
	return &DeleteBuilder{table: table}
}

// Where adds a WHERE condition, combined with AND.
func (b *DeleteBuilder) Where(column, op string, value any) *DeleteBuilder {
	b.where = append(b.where, whereClause{column, op, value})
	return b
}

// Build produces the final SQL string and argument slice.
func (b *DeleteBuilder) Build() (string, []any, error) {
	if len(b.where) == 0 {
		return "", nil, errs.New(errs.ErrKindInvalidInput, "delete requires a WHERE condition")
	}

	var sb strings.Builder
	sb.WriteString("DELETE FROM ")
	sb.WriteString(quoteIdent(b.table))

	whereSQL, args, err := buildWhere(b.where, nil, 1)
	if err != nil {
		return "", nil, err
	}
	sb.WriteString(whereSQL)

	return sb.String(), args, nil
}

// buildWhere renders a WHERE clause starting at placeholder argIdx,
// validating each operator against the allowlist.
func buildWhere(clauses []whereClause, args []any, argIdx int) (string, []any, error) {
	parts := make([]string, 0, len(clauses))
	for _, w := range clauses {
		op := strings.ToUpper(w.op)
		if !validOps[op] {
			return "", nil, errs.New(errs.ErrKindInvalidInput,
				fmt.Sprintf("unsupported WHERE operator: %q", w.op))
		}
		parts = append(parts, fmt.Sprintf("%s %s $%d", quoteIdent(w.column), op, argIdx))
		args = append(args, w.value)
		argIdx++
	}
	return " WHERE " + strings.Join(parts, " AND "), args, nil
}

// quoteIdent wraps a SQL identifier in double-quotes (ANSI standard).
// This safely handles reserved words and mixed-case names.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
