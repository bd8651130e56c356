package query

import (
	"context"
	"strings"

	"duck-warehouse/internal/domain"
)

// QueryString renders the data query. limit <= 0 renders no LIMIT clause.
// Rendering never mutates the query, so repeated calls return identical SQL.
func (q *Query) QueryString(limit, offset int, having string) string {
	return render(&q.st, renderOptions{Limit: limit, Offset: offset, Having: having})
}

// Params returns the bound parameters referenced by the rendered SQL.
func (q *Query) Params() map[string]any { return q.Parameters() }

// CountQueryString renders a COUNT(*) wrapper over the grouped data query.
// Groups whose statistics are all NULL are not counted.
func (q *Query) CountQueryString() string {
	inner := render(&q.st, renderOptions{FieldsOnly: len(q.st.groups) > 0, NoOrder: true, Having: q.nonNullHaving()})
	return "SELECT COUNT(*) AS total FROM (" + inner + ") counted"
}

func (q *Query) nonNullHaving() string {
	if len(q.st.groups) == 0 || len(q.stats) == 0 {
		return ""
	}
	nulls := make([]string, 0, len(q.stats))
	for _, s := range q.stats {
		nulls = append(nulls, s.Formula()+" IS NULL")
	}
	return "NOT (" + strings.Join(nulls, " AND ") + ")"
}

// Count returns the number of groups the data query would produce.
func (q *Query) Count(ctx context.Context) (int64, error) {
	if q.Empty() {
		return 0, nil
	}
	rows, err := q.store.Query(ctx, q.CountQueryString(), q.Parameters())
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	n, _ := domain.AsInt64(rows[0]["total"])
	return n, nil
}

// DimensionValuesQuery renders a query listing the distinct id, name and
// short name of the group-by dimension that survive the current filters and
// role restrictions, ordered by name.
func (q *Query) DimensionValuesQuery() (string, map[string]any, error) {
	if q.groupBy == nil {
		return "", nil, domain.ErrMissingDimension("dimension values query")
	}

	prefix := q.aliasPrefix(q.groupBy)
	var fields []Field
	for _, col := range []string{"id", "name", "short_name"} {
		f, ok := q.fieldByAlias(prefix + col)
		if !ok {
			continue
		}
		fields = append(fields, Field{Expr: f.Expr, Alias: col})
	}
	if len(fields) == 0 {
		return "", nil, domain.ErrMissingDimension("dimension values query")
	}

	sql := render(&q.st, renderOptions{
		Distinct: true,
		Select:   fields,
		Orders:   []Order{{Field: "name", Direction: Asc}},
	})
	return sql, q.Parameters(), nil
}

// DimensionValues executes DimensionValuesQuery.
func (q *Query) DimensionValues(ctx context.Context) ([]Value, error) {
	sql, params, err := q.DimensionValuesQuery()
	if err != nil {
		return nil, err
	}
	if q.Empty() {
		return []Value{}, nil
	}
	rows, err := q.store.Query(ctx, sql, params)
	if err != nil {
		return nil, err
	}
	values := make([]Value, 0, len(rows))
	for _, row := range rows {
		name, _ := domain.AsString(row["name"])
		short, ok := domain.AsString(row["short_name"])
		if !ok {
			short = name
		}
		values = append(values, Value{ID: row["id"], Name: name, ShortName: short})
	}
	return values, nil
}

// aliasPrefix returns the field alias prefix used for dim in this query.
func (q *Query) aliasPrefix(dim Dimension) string {
	if q.mode == ModeTimeseries {
		return dim.Name() + "_"
	}
	return ""
}

func (q *Query) fieldByAlias(alias string) (Field, bool) {
	for _, f := range q.st.fields {
		if f.Alias == alias {
			return f, true
		}
	}
	return Field{}, false
}
