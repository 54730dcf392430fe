package pgstore

import (
	"fmt"
	"sort"
	"strings"

	"lms-dashboard-go/internal/remote"
)

// Queries are built with '?' placeholders and rebound by the caller.

func buildSelect(q remote.Query) (string, []any, error) {
	if !remote.ValidIdent(q.Table) {
		return "", nil, remote.ErrInvalidQuery
	}
	columns := "*"
	if len(q.Columns) > 0 {
		for _, c := range q.Columns {
			if !remote.ValidIdent(c) {
				return "", nil, remote.ErrInvalidQuery
			}
		}
		columns = strings.Join(q.Columns, ", ")
	}
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(columns)
	b.WriteString(" FROM ")
	b.WriteString(q.Table)
	args, err := writeWhere(&b, q.Filters)
	if err != nil {
		return "", nil, err
	}
	if len(q.Order) > 0 {
		parts := make([]string, 0, len(q.Order))
		for _, o := range q.Order {
			if !remote.ValidIdent(o.Column) {
				return "", nil, remote.ErrInvalidQuery
			}
			dir := "ASC"
			if o.Desc {
				dir = "DESC"
			}
			parts = append(parts, o.Column+" "+dir)
		}
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(parts, ", "))
	}
	if q.Limit > 0 {
		b.WriteString(fmt.Sprintf(" LIMIT %d", q.Limit))
	}
	if q.Offset > 0 {
		b.WriteString(fmt.Sprintf(" OFFSET %d", q.Offset))
	}
	return b.String(), args, nil
}

func buildCount(table string, filters []remote.Filter) (string, []any, error) {
	if !remote.ValidIdent(table) {
		return "", nil, remote.ErrInvalidQuery
	}
	var b strings.Builder
	b.WriteString("SELECT COUNT(*) FROM ")
	b.WriteString(table)
	args, err := writeWhere(&b, filters)
	if err != nil {
		return "", nil, err
	}
	return b.String(), args, nil
}

func buildInsert(table string, values remote.Values, returning bool) (string, []any, error) {
	if !remote.ValidIdent(table) || len(values) == 0 {
		return "", nil, remote.ErrInvalidQuery
	}
	columns := sortedColumns(values)
	args := make([]any, 0, len(columns))
	marks := make([]string, 0, len(columns))
	for _, c := range columns {
		if !remote.ValidIdent(c) {
			return "", nil, remote.ErrInvalidQuery
		}
		args = append(args, values[c])
		marks = append(marks, "?")
	}
	query := "INSERT INTO " + table + " (" + strings.Join(columns, ", ") + ") VALUES (" + strings.Join(marks, ", ") + ")"
	if returning {
		query += " RETURNING *"
	}
	return query, args, nil
}

func buildUpdate(table string, filters []remote.Filter, patch remote.Values, returning bool) (string, []any, error) {
	if !remote.ValidIdent(table) || len(patch) == 0 || len(filters) == 0 {
		return "", nil, remote.ErrInvalidQuery
	}
	columns := sortedColumns(patch)
	sets := make([]string, 0, len(columns))
	args := make([]any, 0, len(columns))
	for _, c := range columns {
		if !remote.ValidIdent(c) {
			return "", nil, remote.ErrInvalidQuery
		}
		sets = append(sets, c+" = ?")
		args = append(args, patch[c])
	}
	var b strings.Builder
	b.WriteString("UPDATE ")
	b.WriteString(table)
	b.WriteString(" SET ")
	b.WriteString(strings.Join(sets, ", "))
	whereArgs, err := writeWhere(&b, filters)
	if err != nil {
		return "", nil, err
	}
	if returning {
		b.WriteString(" RETURNING *")
	}
	return b.String(), append(args, whereArgs...), nil
}

func buildDelete(table string, filters []remote.Filter) (string, []any, error) {
	if !remote.ValidIdent(table) || len(filters) == 0 {
		return "", nil, remote.ErrInvalidQuery
	}
	var b strings.Builder
	b.WriteString("DELETE FROM ")
	b.WriteString(table)
	args, err := writeWhere(&b, filters)
	if err != nil {
		return "", nil, err
	}
	return b.String(), args, nil
}

func writeWhere(b *strings.Builder, filters []remote.Filter) ([]any, error) {
	if len(filters) == 0 {
		return nil, nil
	}
	if err := remote.ValidateFilters(filters); err != nil {
		return nil, err
	}
	clause, args := renderAnd(filters)
	b.WriteString(" WHERE ")
	b.WriteString(clause)
	return args, nil
}

func renderAnd(filters []remote.Filter) (string, []any) {
	parts := make([]string, 0, len(filters))
	var args []any
	for _, f := range filters {
		part, partArgs := renderFilter(f)
		parts = append(parts, part)
		args = append(args, partArgs...)
	}
	return strings.Join(parts, " AND "), args
}

func renderFilter(f remote.Filter) (string, []any) {
	switch f.Op {
	case remote.OpEq:
		if f.Value == nil {
			return f.Column + " IS NULL", nil
		}
		return f.Column + " = ?", []any{f.Value}
	case remote.OpNeq:
		if f.Value == nil {
			return f.Column + " IS NOT NULL", nil
		}
		return f.Column + " <> ?", []any{f.Value}
	case remote.OpGte:
		return f.Column + " >= ?", []any{f.Value}
	case remote.OpLte:
		return f.Column + " <= ?", []any{f.Value}
	case remote.OpILike:
		return f.Column + " ILIKE ?", []any{f.Value}
	case remote.OpIsNull:
		return f.Column + " IS NULL", nil
	case remote.OpIn:
		items, _ := f.Value.([]any)
		if len(items) == 0 {
			return "FALSE", nil
		}
		marks := make([]string, len(items))
		for i := range items {
			marks[i] = "?"
		}
		return f.Column + " IN (" + strings.Join(marks, ", ") + ")", items
	case remote.OpOr:
		parts := make([]string, 0, len(f.Groups))
		var args []any
		for _, group := range f.Groups {
			clause, groupArgs := renderAnd(group)
			parts = append(parts, "("+clause+")")
			args = append(args, groupArgs...)
		}
		return "(" + strings.Join(parts, " OR ") + ")", args
	}
	return "FALSE", nil
}

func sortedColumns(values remote.Values) []string {
	columns := make([]string, 0, len(values))
	for c := range values {
		columns = append(columns, c)
	}
	sort.Strings(columns)
	return columns
}
