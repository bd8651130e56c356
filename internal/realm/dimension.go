package realm

import (
	"context"
	"strconv"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/samber/lo"

	"duck-warehouse/internal/domain"
	"duck-warehouse/internal/query"
)

// SummaryID is the id of the single group produced by the "none" dimension.
const SummaryID int64 = -9999

// dimensionBase carries the configuration shared by every dimension variant.
type dimensionBase struct {
	cfg       domain.GroupByConfig
	realm     string
	category  string
	factAlias string
	permitted []string
	policy    query.SortPolicy
}

func newDimensionBase(cfg domain.GroupByConfig, rc *domain.RealmConfig, permitted []string) dimensionBase {
	return dimensionBase{
		cfg:       cfg,
		realm:     rc.Name,
		category:  rc.Category,
		factAlias: rc.AggregateAlias,
		permitted: permitted,
		policy:    query.ParseSortPolicy(cfg.OrderPolicy),
	}
}

func (d *dimensionBase) Name() string { return d.cfg.Name }

func (d *dimensionBase) Label() string {
	if d.cfg.Label != "" {
		return d.cfg.Label
	}
	return d.cfg.Name
}

func (d *dimensionBase) Description() string           { return d.cfg.Description }
func (d *dimensionBase) Realm() string                 { return d.realm }
func (d *dimensionBase) Category() string              { return d.category }
func (d *dimensionBase) Visible() bool                 { return d.cfg.IsVisible() }
func (d *dimensionBase) OrderPolicy() query.SortPolicy { return d.policy }

func (d *dimensionBase) ChartDefaults() domain.ChartDefaults { return d.cfg.Chart }

func (d *dimensionBase) PermittedStatistics() []string {
	return append([]string(nil), d.permitted...)
}

func (d *dimensionBase) prefix(multi bool) string {
	if multi {
		return d.cfg.Name + "_"
	}
	return ""
}

func (d *dimensionBase) factColumn() string {
	return d.factAlias + "." + d.cfg.FactColumn
}

// ValueParameter restricts the fact table's foreign key to values.
func (d *dimensionBase) ValueParameter(values []string) query.Parameter {
	if d.cfg.FactColumn == "" {
		return query.Parameter{Dimension: d.cfg.Name}
	}
	typed := typedValues(values)
	if len(typed) == 1 {
		return query.EqualParameter(d.cfg.Name, d.factColumn(), typed[0])
	}
	return query.InParameter(d.cfg.Name, d.factColumn(), typed)
}

// PullQueryParameters reads a single id from "<name>" and a comma-separated
// id list from "<name>_filter".
func (d *dimensionBase) PullQueryParameters(request map[string]string) []query.Parameter {
	ids := requestIDs(request, d.cfg.Name)
	if len(ids) == 0 || d.cfg.FactColumn == "" {
		return nil
	}
	return []query.Parameter{d.ValueParameter(ids)}
}

func requestIDs(request map[string]string, name string) []string {
	var ids []string
	if v := strings.TrimSpace(request[name]); v != "" {
		ids = append(ids, v)
	}
	for _, v := range strings.Split(request[name+"_filter"], ",") {
		if v = strings.TrimSpace(v); v != "" {
			ids = append(ids, v)
		}
	}
	return lo.Uniq(ids)
}

func typedValues(values []string) []any {
	out := make([]any, 0, len(values))
	for _, v := range values {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			out = append(out, n)
			continue
		}
		out = append(out, v)
	}
	return out
}

// describe renders "<label> = <name>, ..." for the ids in request.
func describe(ctx context.Context, store domain.Datastore, d query.Dimension, request map[string]string) ([]string, error) {
	ids := requestIDs(request, d.Name())
	if len(ids) == 0 {
		return nil, nil
	}
	values, err := d.PossibleValues(ctx, store, query.ValuesOptions{IDs: ids})
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, nil
	}
	names := lo.Map(values, func(v query.Value, _ int) string { return v.Name })
	return []string{d.Label() + " = " + strings.Join(names, ", ")}, nil
}

func valuesFromRows(rows []domain.Row) []query.Value {
	values := make([]query.Value, 0, len(rows))
	for _, row := range rows {
		name, _ := domain.AsString(row["name"])
		short, ok := domain.AsString(row["short_name"])
		if !ok || short == "" {
			short = name
		}
		values = append(values, query.Value{ID: row["id"], ShortName: short, Name: name})
	}
	return values
}

func paginate(b squirrel.SelectBuilder, opts query.ValuesOptions) squirrel.SelectBuilder {
	if opts.Limit > 0 {
		b = b.Limit(uint64(opts.Limit))
		if opts.Offset > 0 {
			b = b.Offset(uint64(opts.Offset))
		}
	}
	return b
}

func hintCondition(hint string, cols ...string) squirrel.Sqlizer {
	pattern := "%" + strings.ToLower(strings.TrimSpace(hint)) + "%"
	or := squirrel.Or{}
	for _, c := range lo.Uniq(cols) {
		or = append(or, squirrel.Expr("LOWER("+c+") LIKE ?", pattern))
	}
	return or
}

// === table ===

// tableDimension groups by the rows of a dimension table joined to the
// fact table through a foreign key column.
type tableDimension struct {
	dimensionBase
	table    query.Table
	idCol    string
	nameCol  string
	shortCol string
	orderCol string
}

var _ query.Dimension = (*tableDimension)(nil)

func newTableDimension(cfg domain.GroupByConfig, rc *domain.RealmConfig, permitted []string) (query.Dimension, error) {
	schema := cfg.Schema
	if schema == "" {
		schema = rc.DimensionSchema
	}
	alias := cfg.Alias
	if alias == "" {
		alias = cfg.Name
	}
	d := &tableDimension{
		dimensionBase: newDimensionBase(cfg, rc, permitted),
		table:         query.Table{Schema: schema, Name: cfg.Table, Alias: alias},
		idCol:         lo.CoalesceOrEmpty(cfg.IDColumn, "id"),
		nameCol:       lo.CoalesceOrEmpty(cfg.NameColumn, "name"),
	}
	d.shortCol = lo.CoalesceOrEmpty(cfg.ShortNameColumn, d.nameCol)
	d.orderCol = lo.CoalesceOrEmpty(cfg.OrderColumn, d.nameCol)
	return d, nil
}

func (d *tableDimension) link(q *query.Query, fact query.Table) {
	q.AddTable(d.table)
	q.AddWhereCondition(query.WhereCondition{
		Left:     d.table.Column(d.idCol),
		Operator: "=",
		Right:    fact.Column(d.cfg.FactColumn),
	})
}

func (d *tableDimension) ApplyTo(q *query.Query, fact query.Table, multi bool) {
	d.link(q, fact)
	p := d.prefix(multi)
	cols := []struct{ col, alias string }{
		{d.idCol, "id"},
		{d.nameCol, "name"},
		{d.shortCol, "short_name"},
		{d.orderCol, "order_id"},
	}
	for _, c := range cols {
		q.AddField(query.Field{Expr: d.table.Column(c.col), Alias: p + c.alias})
		q.AddGroup(d.table.Column(c.col))
	}
}

func (d *tableDimension) FilterByGroup(q *query.Query, fact query.Table) {
	d.link(q, fact)
}

func (d *tableDimension) AddOrder(q *query.Query, multi bool, dir query.Direction, prepend bool) {
	o := query.Order{Field: d.prefix(multi) + "order_id", Direction: dir}
	if prepend {
		q.PrependOrder(o)
		return
	}
	q.AddOrder(o)
}

func (d *tableDimension) PullQueryParameterDescriptions(ctx context.Context, store domain.Datastore, request map[string]string) ([]string, error) {
	return describe(ctx, store, d, request)
}

func (d *tableDimension) PossibleValues(ctx context.Context, store domain.Datastore, opts query.ValuesOptions) ([]query.Value, error) {
	b := squirrel.Select(
		d.table.Column(d.idCol)+" AS id",
		d.table.Column(d.nameCol)+" AS name",
		d.table.Column(d.shortCol)+" AS short_name",
	).From(d.table.String()).
		OrderBy(d.table.Column(d.orderCol), d.table.Column(d.idCol))

	if opts.Hint != "" {
		b = b.Where(hintCondition(opts.Hint, d.table.Column(d.nameCol), d.table.Column(d.shortCol)))
	}
	if len(opts.IDs) > 0 {
		b = b.Where(squirrel.Eq{d.table.Column(d.idCol): typedValues(opts.IDs)})
	}

	rows, err := runSelect(ctx, store, paginate(b, opts))
	if err != nil {
		return nil, err
	}
	return valuesFromRows(rows), nil
}

// === none ===

// noneDimension collapses the realm into one summary group.
type noneDimension struct {
	dimensionBase
}

var _ query.Dimension = (*noneDimension)(nil)

func newNoneDimension(cfg domain.GroupByConfig, rc *domain.RealmConfig, permitted []string) (query.Dimension, error) {
	if cfg.Label == "" {
		cfg.Label = "Summary"
	}
	cfg.FactColumn = ""
	cfg.OrderPolicy = domain.OrderPolicyNone
	return &noneDimension{dimensionBase: newDimensionBase(cfg, rc, permitted)}, nil
}

func (d *noneDimension) ApplyTo(q *query.Query, _ query.Table, multi bool) {
	p := d.prefix(multi)
	label := quoteLiteral(d.Label())
	q.AddField(query.Field{Expr: strconv.FormatInt(SummaryID, 10), Alias: p + "id"})
	q.AddField(query.Field{Expr: label, Alias: p + "name"})
	q.AddField(query.Field{Expr: label, Alias: p + "short_name"})
	q.AddField(query.Field{Expr: strconv.FormatInt(SummaryID, 10), Alias: p + "order_id"})
}

func (d *noneDimension) FilterByGroup(*query.Query, query.Table) {}

func (d *noneDimension) AddOrder(*query.Query, bool, query.Direction, bool) {}

func (d *noneDimension) PullQueryParameterDescriptions(context.Context, domain.Datastore, map[string]string) ([]string, error) {
	return nil, nil
}

func (d *noneDimension) PossibleValues(_ context.Context, _ domain.Datastore, opts query.ValuesOptions) ([]query.Value, error) {
	if opts.Offset > 0 {
		return []query.Value{}, nil
	}
	return []query.Value{{ID: SummaryID, ShortName: d.Label(), Name: d.Label()}}, nil
}

// quoteLiteral renders s as a SQL string literal with colons escaped for
// named binding.
func quoteLiteral(s string) string {
	s = strings.ReplaceAll(s, "'", "''")
	return "'" + strings.ReplaceAll(s, ":", "::") + "'"
}

// === time ===

// timeDimension groups by the periods of one aggregation unit. Its name is
// the unit name.
type timeDimension struct {
	dimensionBase
	table    query.Table
	startCol string
}

var _ query.Dimension = (*timeDimension)(nil)

func newTimeDimension(cfg domain.GroupByConfig, rc *domain.RealmConfig, permitted []string) (query.Dimension, error) {
	unit := strings.ToLower(cfg.Name)
	schema := lo.CoalesceOrEmpty(cfg.Schema, rc.DimensionSchema)
	table := lo.CoalesceOrEmpty(cfg.Table, unit+"s")
	cfg.FactColumn = lo.CoalesceOrEmpty(cfg.FactColumn, unit+"_id")
	if cfg.OrderPolicy == "" || cfg.OrderPolicy == domain.OrderPolicyDescending {
		cfg.OrderPolicy = domain.OrderPolicyNone
	}
	return &timeDimension{
		dimensionBase: newDimensionBase(cfg, rc, permitted),
		table:         query.Table{Schema: schema, Name: table, Alias: lo.CoalesceOrEmpty(cfg.Alias, unit+"_period")},
		startCol:      unit + "_start",
	}, nil
}

func (d *timeDimension) link(q *query.Query, fact query.Table) {
	q.AddTable(d.table)
	q.AddWhereCondition(query.WhereCondition{
		Left:     d.table.Column("id"),
		Operator: "=",
		Right:    fact.Column(d.cfg.FactColumn),
	})
}

func (d *timeDimension) ApplyTo(q *query.Query, fact query.Table, multi bool) {
	d.link(q, fact)
	p := d.prefix(multi)
	id := d.table.Column("id")
	start := d.table.Column(d.startCol)
	q.AddField(query.Field{Expr: id, Alias: p + "id"})
	q.AddField(query.Field{Expr: start, Alias: p + "name"})
	q.AddField(query.Field{Expr: start, Alias: p + "short_name"})
	q.AddField(query.Field{Expr: id, Alias: p + "order_id"})
	q.AddGroup(id)
	q.AddGroup(start)
}

func (d *timeDimension) FilterByGroup(q *query.Query, fact query.Table) {
	d.link(q, fact)
}

func (d *timeDimension) AddOrder(q *query.Query, multi bool, dir query.Direction, prepend bool) {
	o := query.Order{Field: d.prefix(multi) + "order_id", Direction: dir}
	if prepend {
		q.PrependOrder(o)
		return
	}
	q.AddOrder(o)
}

func (d *timeDimension) PullQueryParameterDescriptions(ctx context.Context, store domain.Datastore, request map[string]string) ([]string, error) {
	return describe(ctx, store, d, request)
}

func (d *timeDimension) PossibleValues(ctx context.Context, store domain.Datastore, opts query.ValuesOptions) ([]query.Value, error) {
	id := d.table.Column("id")
	start := d.table.Column(d.startCol)
	b := squirrel.Select(id+" AS id", start+" AS name", start+" AS short_name").
		From(d.table.String()).
		OrderBy(id)
	if opts.Hint != "" {
		b = b.Where(hintCondition(opts.Hint, start))
	}
	if len(opts.IDs) > 0 {
		b = b.Where(squirrel.Eq{id: typedValues(opts.IDs)})
	}
	rows, err := runSelect(ctx, store, paginate(b, opts))
	if err != nil {
		return nil, err
	}
	return valuesFromRows(rows), nil
}
