package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"duck-warehouse/internal/domain"
	"duck-warehouse/internal/timeunit"
)

// AllStatistics selects every statistic permitted by the group-by.
const AllStatistics = "all"

// Mode selects the reduction applied to query results.
type Mode int

const (
	ModeAggregate Mode = iota
	ModeTimeseries
	ModeRaw
)

func (m Mode) String() string {
	switch m {
	case ModeAggregate:
		return "aggregate"
	case ModeTimeseries:
		return "timeseries"
	case ModeRaw:
		return "raw"
	default:
		return "unknown"
	}
}

// Options configures a new Query.
type Options struct {
	// AggregationUnit is a resolved unit name (see timeunit.DeriveName).
	AggregationUnit string
	StartDate       string
	EndDate         string
	GroupBy         string
	// Statistic is a statistic name or AllStatistics.
	Statistic  string
	Parameters []Parameter
}

type pdoKey struct {
	left   string
	op     string
	values string
}

// Query accumulates the clauses of one analytical request against a realm
// and executes it. A Query is not safe for concurrent mutation; once
// configured, rendering and execution only read its state.
type Query struct {
	realm Realm
	store domain.Datastore
	mode  Mode

	unit        *timeunit.Unit
	startDate   string
	endDate     string
	minPeriodID int64
	maxPeriodID int64
	fact        Table

	st       state
	params   map[string]any
	paramSeq int
	pdoConds map[pdoKey]WhereCondition

	groupBy   Dimension
	auxGroups map[string]Dimension
	timeDim   Dimension

	stats         []Statistic
	mainStat      Statistic
	statCondition *WhereCondition

	roles roleState
	// filters holds the ids each dimension was explicitly narrowed to.
	filters map[string][]string
}

func newQuery(r Realm, store domain.Datastore, mode Mode) *Query {
	return &Query{
		realm:       r,
		store:       store,
		mode:        mode,
		st:          newState(),
		params:      map[string]any{},
		pdoConds:    map[pdoKey]WhereCondition{},
		auxGroups:   map[string]Dimension{},
		filters:     map[string][]string{},
		minPeriodID: timeunit.EmptyPeriodID,
		maxPeriodID: timeunit.EmptyPeriodID,
	}
}

// NewAggregate builds an Aggregate-mode query: one row per group-by value.
func NewAggregate(ctx context.Context, store domain.Datastore, r Realm, opts Options) (*Query, error) {
	return newAggregated(ctx, store, r, ModeAggregate, opts)
}

// NewTimeseries builds a Timeseries-mode query: one row per group-by value
// and period of the aggregation unit.
func NewTimeseries(ctx context.Context, store domain.Datastore, r Realm, opts Options) (*Query, error) {
	return newAggregated(ctx, store, r, ModeTimeseries, opts)
}

func newAggregated(ctx context.Context, store domain.Datastore, r Realm, mode Mode, opts Options) (*Query, error) {
	unit, err := timeunit.New(opts.AggregationUnit, r.AggregateTablePrefix())
	if err != nil {
		return nil, err
	}

	minID, maxID, err := unit.ResolveDateRangeIDs(ctx, store, r.DimensionSchema(), opts.StartDate, opts.EndDate)
	if err != nil {
		return nil, err
	}

	q := newQuery(r, store, mode)
	q.unit = unit
	q.startDate = opts.StartDate
	q.endDate = opts.EndDate
	q.minPeriodID = minID
	q.maxPeriodID = maxID
	q.fact = Table{Name: unit.FactTable(), Alias: r.AggregateAlias()}

	q.AddTable(q.fact)
	q.AddPdoWhereCondition(q.fact.Column(unit.IDColumn()), ">=", minID)
	q.AddPdoWhereCondition(q.fact.Column(unit.IDColumn()), "<=", maxID)

	if mode == ModeTimeseries {
		timeDim, err := r.Dimension(unit.Name())
		if err != nil {
			return nil, err
		}
		q.timeDim = timeDim
		timeDim.ApplyTo(q, q.fact, true)
		timeDim.AddOrder(q, true, Asc, false)
	}

	if err := q.SetGroupBy(opts.GroupBy); err != nil {
		return nil, err
	}
	if err := q.SetParameters(opts.Parameters); err != nil {
		return nil, err
	}
	stat := opts.Statistic
	if stat == "" {
		stat = AllStatistics
	}
	if err := q.SetStat(stat); err != nil {
		return nil, err
	}
	return q, nil
}

// Realm returns the realm the query is compiled against.
func (q *Query) Realm() Realm { return q.realm }

// Mode returns the execution mode.
func (q *Query) Mode() Mode { return q.mode }

// Unit returns the aggregation unit, or nil for raw queries.
func (q *Query) Unit() *timeunit.Unit { return q.unit }

// FactTable returns the base fact table.
func (q *Query) FactTable() Table { return q.fact }

// PeriodRange returns the resolved [min, max] period ids.
func (q *Query) PeriodRange() (int64, int64) { return q.minPeriodID, q.maxPeriodID }

// Empty reports whether the date range overlaps no periods. Executing an
// empty query returns an empty result without touching the datastore.
func (q *Query) Empty() bool {
	return q.mode != ModeRaw && q.minPeriodID == timeunit.EmptyPeriodID && q.maxPeriodID == timeunit.EmptyPeriodID
}

// GroupBy returns the primary group-by, or nil.
func (q *Query) GroupBy() Dimension { return q.groupBy }

// MainStatistic returns the designated main statistic, or nil when all
// permitted statistics were requested.
func (q *Query) MainStatistic() Statistic { return q.mainStat }

// Statistics returns the selected statistics in selection order.
func (q *Query) Statistics() []Statistic { return append([]Statistic(nil), q.stats...) }

// === Builder operations ===

// AddTable adds a FROM entry. Tables are keyed by alias.
func (q *Query) AddTable(t Table) { q.st.addTable(t) }

// AddLeftJoin adds a LEFT JOIN keyed by the joined table's alias.
func (q *Query) AddLeftJoin(t Table, on WhereCondition) {
	q.st.addLeftJoin(LeftJoin{Table: t, On: on})
}

// AddField adds a SELECT field keyed by alias.
func (q *Query) AddField(f Field) { q.st.addField(f) }

// AddStatField adds a statistic SELECT field keyed by alias.
func (q *Query) AddStatField(f Field) { q.st.addStatField(f) }

// AddWhereCondition adds a predicate; an identical predicate is added once.
func (q *Query) AddWhereCondition(w WhereCondition) { q.st.addWhere(w) }

// AddPdoWhereCondition adds "left op :substN" with value bound as a
// parameter. The same (left, op, value) triple is added once.
func (q *Query) AddPdoWhereCondition(left, op string, value any) {
	q.addBoundCondition(left, op, []any{value})
}

// AddPdoWhereInCondition adds "left IN (:substN, ...)" with every value bound.
func (q *Query) AddPdoWhereInCondition(left string, values []any) {
	q.addBoundCondition(left, "IN", values)
}

func (q *Query) addBoundCondition(left, op string, values []any) {
	cond, ok := q.boundCondition(left, op, values)
	if ok {
		q.st.addWhere(cond)
	}
}

// boundCondition renders a predicate with its values registered as bound
// parameters. Repeated calls with the same operands reuse the placeholders.
func (q *Query) boundCondition(left, op string, values []any) (WhereCondition, bool) {
	op = strings.ToUpper(strings.TrimSpace(op))
	if len(values) == 0 {
		return WhereCondition{}, false
	}
	k := pdoKey{left: left, op: op, values: strings.Join(lo.Map(values, func(v any, _ int) string { return toText(v) }), "\x00")}
	if cond, ok := q.pdoConds[k]; ok {
		return cond, true
	}

	var cond WhereCondition
	switch op {
	case "IN", "NOT IN":
		names := make([]string, 0, len(values))
		for _, v := range values {
			names = append(names, q.bind(v))
		}
		cond = WhereCondition{Left: left, Operator: op, Right: "(" + strings.Join(names, ", ") + ")"}
	default:
		cond = WhereCondition{Left: left, Operator: op, Right: q.bind(values[0])}
	}
	q.pdoConds[k] = cond
	return cond, true
}

// bind registers v and returns its ":substN" placeholder.
func (q *Query) bind(v any) string {
	name := fmt.Sprintf("subst%d", q.paramSeq)
	q.paramSeq++
	q.params[name] = v
	return ":" + name
}

// AddGroup adds a GROUP BY expression.
func (q *Query) AddGroup(expr string) { q.st.addGroup(expr) }

// AddOrder appends an ORDER BY entry unless the field is already ordered.
func (q *Query) AddOrder(o Order) { q.st.addOrder(o) }

// PrependOrder moves an ORDER BY entry to the front.
func (q *Query) PrependOrder(o Order) { q.st.prependOrder(o) }

// ClearOrders removes every ORDER BY entry.
func (q *Query) ClearOrders() { q.st.clearOrders() }

// Parameters returns a copy of the bound parameters.
func (q *Query) Parameters() map[string]any {
	out := make(map[string]any, len(q.params))
	for k, v := range q.params {
		out[k] = v
	}
	return out
}

// === Configuration ===

// SetGroupBy applies the named dimension as the primary group-by.
func (q *Query) SetGroupBy(name string) error {
	if name == "" {
		return domain.ErrValidation("group_by is required")
	}
	if q.unit != nil && timeunit.IsUnitName(name) && !strings.EqualFold(name, q.unit.Name()) {
		return domain.ErrUnavailableGranularity(q.realm.Name(), name)
	}

	dim, err := q.realm.Dimension(name)
	if err != nil {
		return err
	}

	if q.mode == ModeTimeseries && q.timeDim != nil && dim.Name() == q.timeDim.Name() {
		q.groupBy = dim
		return nil
	}

	multi := q.mode == ModeTimeseries
	dim.ApplyTo(q, q.fact, multi)
	dim.AddOrder(q, multi, Asc, false)
	q.groupBy = dim
	return nil
}

// SetStat selects the statistic(s) to compute. name must be permitted by the
// group-by; AllStatistics selects every permitted statistic and designates
// no main statistic.
func (q *Query) SetStat(name string) error {
	if q.groupBy == nil {
		return domain.ErrMissingDimension("setting a statistic")
	}
	permitted := q.groupBy.PermittedStatistics()

	if name == AllStatistics {
		if q.mode == ModeTimeseries {
			return domain.ErrValidation("timeseries queries require a single statistic")
		}
		for _, n := range permitted {
			stat, err := q.realm.Statistic(n)
			if err != nil {
				return err
			}
			q.addStatistic(stat)
		}
		q.mainStat = nil
		return nil
	}

	if !lo.Contains(permitted, name) {
		if _, err := q.realm.Statistic(name); err != nil {
			return err
		}
		return domain.ErrUnsupportedStatistic(q.groupBy.Name(), name)
	}
	stat, err := q.realm.Statistic(name)
	if err != nil {
		return err
	}
	q.addStatistic(stat)
	q.mainStat = stat

	if q.mode == ModeAggregate {
		if dir, ok := q.groupBy.OrderPolicy().SQLDirection(); ok {
			q.PrependOrder(Order{Field: stat.Name(), Direction: dir})
		}
	}
	return nil
}

func (q *Query) addStatistic(stat Statistic) {
	q.st.addStatField(Field{Expr: stat.Formula(), Alias: stat.Name()})
	if lo.ContainsBy(q.stats, func(s Statistic) bool { return s.Name() == stat.Name() }) {
		return
	}
	q.stats = append(q.stats, stat)

	if sem := stat.SEMFormula(); sem != "" {
		q.st.addStatField(Field{Expr: sem, Alias: "sem_" + stat.Name()})
	}
	if w := stat.WeightStatName(); w != "" && w != stat.Name() {
		if ws, err := q.realm.Statistic(w); err == nil {
			q.st.addStatField(Field{Expr: ws.Formula(), Alias: w})
		}
	}

	q.refreshStatCondition()
}

// refreshStatCondition replaces the composite statistic predicate: the extra
// conditions of all selected statistics are OR-combined into one clause.
func (q *Query) refreshStatCondition() {
	var parts []string
	for _, s := range q.stats {
		if c := s.AdditionalWhereCondition(); c != nil {
			parts = append(parts, "("+c.String()+")")
		}
	}
	parts = lo.Uniq(parts)
	if len(parts) == 0 {
		return
	}

	composite := Expression(strings.Join(parts, " OR "))
	if len(parts) > 1 {
		composite = Expression("(" + composite.Left + ")")
	}
	if q.statCondition != nil {
		q.st.removeWhere(*q.statCondition)
	}
	q.st.addWhere(composite)
	q.statCondition = &composite
}

// SetParameters applies caller filters. It is equivalent to AddParameters on
// a query with no prior filters.
func (q *Query) SetParameters(params []Parameter) error {
	return q.AddParameters(params)
}

// AddParameters applies caller filters. Every operand is bound. A parameter
// owned by a dimension other than the group-by joins that dimension as a
// filter-only group.
func (q *Query) AddParameters(params []Parameter) error {
	for _, p := range params {
		if p.Column == "" || len(p.Values) == 0 {
			continue
		}
		op := strings.ToUpper(strings.TrimSpace(p.Operator))
		if op == "" {
			op = "="
		}
		if op == "=" && len(p.Values) > 1 {
			op = "IN"
		}

		if p.Dimension != "" {
			if err := q.addFilterGroup(p.Dimension); err != nil {
				return err
			}
			q.filters[p.Dimension] = lo.Uniq(append(q.filters[p.Dimension], p.StringValues()...))
		}
		q.addBoundCondition(p.Column, op, p.Values)
	}
	return nil
}

// addFilterGroup joins a non-primary dimension for drill-through filtering.
func (q *Query) addFilterGroup(name string) error {
	if q.groupBy != nil && q.groupBy.Name() == name {
		return nil
	}
	if q.timeDim != nil && q.timeDim.Name() == name {
		return nil
	}
	if _, ok := q.auxGroups[name]; ok {
		return nil
	}
	dim, err := q.realm.Dimension(name)
	if err != nil {
		return err
	}
	if q.fact.Name != "" {
		dim.FilterByGroup(q, q.fact)
	}
	q.auxGroups[name] = dim
	return nil
}

// FilterDimensions returns the names of the auxiliary filter dimensions.
func (q *Query) FilterDimensions() []string {
	return lo.Keys(q.auxGroups)
}
