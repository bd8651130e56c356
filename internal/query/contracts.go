package query

import (
	"context"
	"strings"

	"duck-warehouse/internal/domain"
)

// Realm is the realm context a query is compiled against.
// Implemented by realm.Realm.
type Realm interface {
	Name() string
	Category() string
	// AggregateTablePrefix is prepended to a unit name to form the aggregate
	// table, e.g. "modw_aggregates.jobfact_by_".
	AggregateTablePrefix() string
	AggregateAlias() string
	// DimensionSchema holds the period and dimension tables.
	DimensionSchema() string
	Dimension(name string) (Dimension, error)
	Statistic(name string) (Statistic, error)
	RawTable() (RawTable, bool)
}

// SortPolicy is a dimension's post-execution sort rule for the main statistic.
type SortPolicy string

const (
	SortAscending     SortPolicy = domain.OrderPolicyAscending
	SortDescending    SortPolicy = domain.OrderPolicyDescending
	SortNone          SortPolicy = domain.OrderPolicyNone
	SortNumeric       SortPolicy = domain.OrderPolicyNumeric
	SortLexicographic SortPolicy = domain.OrderPolicyLexicographic
)

// ParseSortPolicy maps a configured order policy; unknown values sort descending.
func ParseSortPolicy(s string) SortPolicy {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "asc", "ascending":
		return SortAscending
	case "none", "natural":
		return SortNone
	case "numeric":
		return SortNumeric
	case "lexicographic":
		return SortLexicographic
	default:
		return SortDescending
	}
}

// SQLDirection returns the ORDER BY direction the policy implies for a
// statistic column, and false when the policy does not order by statistic.
func (p SortPolicy) SQLDirection() (Direction, bool) {
	switch p {
	case SortNone:
		return "", false
	case SortDescending:
		return Desc, true
	default:
		return Asc, true
	}
}

// Dimension is one groupable attribute of a realm.
type Dimension interface {
	Name() string
	Label() string
	Description() string
	Realm() string
	Category() string
	Visible() bool
	PermittedStatistics() []string
	OrderPolicy() SortPolicy
	ChartDefaults() domain.ChartDefaults

	// ApplyTo joins the dimension into q and adds its id/name/short_name/
	// order_id fields and GROUP BY. multi prefixes the aliases with
	// "<name>_" so the dimension can coexist with another one.
	ApplyTo(q *Query, fact Table, multi bool)
	// FilterByGroup joins the dimension into q without selecting or grouping.
	FilterByGroup(q *Query, fact Table)
	// AddOrder orders q by the dimension's order column.
	AddOrder(q *Query, multi bool, dir Direction, prepend bool)

	// ValueParameter restricts the fact table to the given dimension ids.
	ValueParameter(values []string) Parameter
	// PullQueryParameters reads "<name>" and "<name>_filter" from request.
	PullQueryParameters(request map[string]string) []Parameter
	// PullQueryParameterDescriptions returns labels for the ids in request.
	PullQueryParameterDescriptions(ctx context.Context, store domain.Datastore, request map[string]string) ([]string, error)
	// PossibleValues lists the dimension's values.
	PossibleValues(ctx context.Context, store domain.Datastore, opts ValuesOptions) ([]Value, error)
}

// ValuesOptions narrows a possible-values lookup.
type ValuesOptions struct {
	Hint   string // matched against short and long name
	Limit  int    // 0 = unlimited
	Offset int
	IDs    []string // restrict to these ids
}

// Value is one possible value of a dimension.
type Value struct {
	ID        any    `json:"id"`
	ShortName string `json:"short_name"`
	Name      string `json:"name"`
}

// Statistic is one aggregate formula of a realm.
type Statistic interface {
	Name() string
	Realm() string
	Formula() string
	// SEMFormula is the standard-error companion formula, or "".
	SEMFormula() string
	Label(withUnit bool) string
	Unit() string
	Description() string
	Decimals(dataMin, dataMax *float64) int
	// WeightStatName names the companion column that weights this statistic.
	WeightStatName() string
	AdditionalWhereCondition() *WhereCondition
}

// RawTable describes a realm's unaggregated fact table.
type RawTable struct {
	Table      Table
	TimeColumn string
	Columns    []RawColumn
}

// RawColumn documents one column returned by a raw query.
type RawColumn struct {
	Name          string `json:"name"`
	Expression    string `json:"-"`
	Documentation string `json:"documentation,omitempty"`
}
