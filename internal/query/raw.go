package query

import (
	"context"
	"strings"

	"duck-warehouse/internal/domain"
	"duck-warehouse/internal/timeunit"
)

// NewRaw builds a query over the realm's unaggregated fact table, restricted
// to records whose time column falls within [start, end]. Date-only end
// bounds include the whole day. The raw table takes the realm's aggregate
// alias so dimension filters apply unchanged.
func NewRaw(store domain.Datastore, r Realm, start, end string) (*Query, error) {
	raw, ok := r.RawTable()
	if !ok {
		return nil, domain.ErrNotFound("realm %q has no raw table", r.Name())
	}
	startT, endT, err := timeunit.ParseRange(start, end)
	if err != nil {
		return nil, err
	}

	q := newQuery(r, store, ModeRaw)
	q.startDate, q.endDate = start, end
	q.fact = raw.Table
	q.fact.Alias = r.AggregateAlias()
	q.AddTable(q.fact)

	for _, c := range raw.Columns {
		expr := c.Expression
		if expr == "" {
			expr = q.fact.Column(c.Name)
		}
		q.AddField(Field{Expr: expr, Alias: c.Name})
	}

	upper := endT.Format("2006-01-02 15:04:05")
	if len(strings.TrimSpace(end)) == len("2006-01-02") {
		upper = endT.Format("2006-01-02") + " 23:59:59"
	}
	timeCol := q.fact.Column(raw.TimeColumn)
	q.AddPdoWhereCondition(timeCol, ">=", startT.Format("2006-01-02 15:04:05"))
	q.AddPdoWhereCondition(timeCol, "<=", upper)
	q.AddOrder(Order{Field: timeCol, Direction: Asc})
	return q, nil
}

// Records executes a raw query with pagination. limit <= 0 returns every record.
func (q *Query) Records(ctx context.Context, limit, offset int) ([]domain.Row, error) {
	if q.mode != ModeRaw {
		return nil, domain.ErrValidation("Records requires a raw query, got %s", q.mode)
	}
	return q.store.Query(ctx, q.QueryString(limit, offset, ""), q.Parameters())
}

// ColumnDocumentation describes the columns returned by a raw query.
func (q *Query) ColumnDocumentation() []RawColumn {
	raw, ok := q.realm.RawTable()
	if !ok {
		return nil
	}
	return append([]RawColumn(nil), raw.Columns...)
}
