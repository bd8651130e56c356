package domain

import (
	"strings"
	"unicode/utf8"
)

const (
	MaxRealmNameLength = 255

	// CompositeSeparator joins realm/dimension/statistic names in composite
	// identifiers; dimension names must not contain it.
	CompositeSeparator = "-"

	GroupByClassTable = "table"
	GroupByClassNone  = "none"
	GroupByClassTime  = "time"

	StatisticClassSum     = "sum"
	StatisticClassCount   = "count"
	StatisticClassAverage = "avg"
	StatisticClassMin     = "min"
	StatisticClassMax     = "max"
	StatisticClassFormula = "formula"

	OrderPolicyAscending     = "asc"
	OrderPolicyDescending    = "desc"
	OrderPolicyNone          = "none"
	OrderPolicyNumeric       = "numeric"
	OrderPolicyLexicographic = "lexicographic"

	DefaultAggregateAlias = "agg"
	DefaultWeightStatName = "weight"
)

// RealmConfig is the immutable definition of one realm: its aggregate fact
// tables, dimensions, and statistics.
type RealmConfig struct {
	Name                 string            `yaml:"name"`
	Category             string            `yaml:"category,omitempty"`
	Datasource           string            `yaml:"datasource,omitempty"`
	AggregateSchema      string            `yaml:"aggregate_schema,omitempty"`
	AggregateTablePrefix string            `yaml:"aggregate_table_prefix"` // e.g. "jobfact_by_"
	AggregateAlias       string            `yaml:"aggregate_alias,omitempty"`
	DimensionSchema      string            `yaml:"dimension_schema,omitempty"`
	RawTable             *RawTableConfig   `yaml:"raw_table,omitempty"`
	GroupBys             []GroupByConfig   `yaml:"group_bys"`
	Statistics           []StatisticConfig `yaml:"statistics"`
}

// GroupByConfig defines one dimension of a realm.
type GroupByConfig struct {
	Name            string        `yaml:"name"`
	Class           string        `yaml:"class"`
	Visible         *bool         `yaml:"visible,omitempty"`
	Label           string        `yaml:"label,omitempty"`
	Description     string        `yaml:"description,omitempty"`
	Schema          string        `yaml:"schema,omitempty"`
	Table           string        `yaml:"table,omitempty"`
	Alias           string        `yaml:"alias,omitempty"`
	IDColumn        string        `yaml:"id_column,omitempty"`
	NameColumn      string        `yaml:"name_column,omitempty"`
	ShortNameColumn string        `yaml:"short_name_column,omitempty"`
	OrderColumn     string        `yaml:"order_column,omitempty"`
	FactColumn      string        `yaml:"fact_column,omitempty"`
	Statistics      []string      `yaml:"statistics,omitempty"` // permitted; empty = all realm statistics
	OrderPolicy     string        `yaml:"order_policy,omitempty"`
	Chart           ChartDefaults `yaml:"chart,omitempty"`
}

// IsVisible reports whether the dimension is offered to callers. Unset means visible.
func (g GroupByConfig) IsVisible() bool {
	return g.Visible == nil || *g.Visible
}

// ChartDefaults are rendering hints consumed by chart collaborators.
type ChartDefaults struct {
	DisplayType   string `yaml:"display_type,omitempty" json:"display_type,omitempty"`
	CombineMethod string `yaml:"combine_method,omitempty" json:"combine_method,omitempty"`
	Limit         int    `yaml:"limit,omitempty" json:"limit,omitempty"`
	LogScale      bool   `yaml:"log_scale,omitempty" json:"log_scale,omitempty"`
	ShowLegend    bool   `yaml:"show_legend,omitempty" json:"show_legend,omitempty"`
}

// StatisticConfig defines one statistic of a realm.
type StatisticConfig struct {
	Name         string           `yaml:"name"`
	Class        string           `yaml:"class"`
	Label        string           `yaml:"label,omitempty"`
	Unit         string           `yaml:"unit,omitempty"`
	Description  string           `yaml:"description,omitempty"`
	Column       string           `yaml:"column,omitempty"`
	WeightColumn string           `yaml:"weight_column,omitempty"`
	Formula      string           `yaml:"formula,omitempty"`
	SEMFormula   string           `yaml:"sem_formula,omitempty"`
	Decimals     int              `yaml:"decimals,omitempty"`
	WeightStat   string           `yaml:"weight_stat,omitempty"`
	Condition    *ConditionConfig `yaml:"condition,omitempty"`
}

// ConditionConfig is an extra WHERE predicate contributed by a statistic.
type ConditionConfig struct {
	Left     string `yaml:"left"`
	Operator string `yaml:"operator"`
	Right    string `yaml:"right,omitempty"`
}

// RawTableConfig binds a realm to its unaggregated fact table.
type RawTableConfig struct {
	Schema     string            `yaml:"schema,omitempty"`
	Name       string            `yaml:"name"`
	TimeColumn string            `yaml:"time_column"`
	Columns    []RawColumnConfig `yaml:"columns"`
}

// RawColumnConfig documents one column returned by raw queries.
type RawColumnConfig struct {
	Name          string `yaml:"name"`
	Expression    string `yaml:"expression"`
	Documentation string `yaml:"documentation,omitempty"`
}

// Validate checks that the realm definition is well-formed and fills defaults.
func (c *RealmConfig) Validate() error {
	if c.Name == "" {
		return ErrValidation("realm name is required")
	}
	if utf8.RuneCountInString(c.Name) > MaxRealmNameLength {
		return ErrValidation("realm name must be <= %d characters", MaxRealmNameLength)
	}
	if c.AggregateTablePrefix == "" {
		return ErrValidation("realm %q: aggregate_table_prefix is required", c.Name)
	}
	if c.AggregateAlias == "" {
		c.AggregateAlias = DefaultAggregateAlias
	}
	if c.Category == "" {
		c.Category = c.Name
	}

	seen := make(map[string]bool, len(c.GroupBys))
	for i := range c.GroupBys {
		g := &c.GroupBys[i]
		if g.Name == "" {
			return ErrValidation("realm %q: group_by name is required", c.Name)
		}
		if strings.Contains(g.Name, CompositeSeparator) {
			return ErrValidation("realm %q: group_by name %q must not contain %q", c.Name, g.Name, CompositeSeparator)
		}
		if seen[g.Name] {
			return ErrValidation("realm %q: duplicate group_by %q", c.Name, g.Name)
		}
		seen[g.Name] = true
		if g.Class == "" {
			g.Class = GroupByClassTable
		}
		if g.OrderPolicy == "" {
			g.OrderPolicy = OrderPolicyDescending
		}
		if g.Class == GroupByClassTable && (g.Table == "" || g.FactColumn == "") {
			return ErrValidation("realm %q: group_by %q requires table and fact_column", c.Name, g.Name)
		}
	}

	seen = make(map[string]bool, len(c.Statistics))
	for i := range c.Statistics {
		s := &c.Statistics[i]
		if s.Name == "" {
			return ErrValidation("realm %q: statistic name is required", c.Name)
		}
		if seen[s.Name] {
			return ErrValidation("realm %q: duplicate statistic %q", c.Name, s.Name)
		}
		seen[s.Name] = true
		if s.Class == "" {
			s.Class = StatisticClassFormula
		}
		if s.Class == StatisticClassFormula && s.Formula == "" {
			return ErrValidation("realm %q: statistic %q requires a formula", c.Name, s.Name)
		}
		if s.Class != StatisticClassFormula && s.Column == "" {
			return ErrValidation("realm %q: statistic %q requires a column", c.Name, s.Name)
		}
		if s.WeightStat == "" {
			s.WeightStat = DefaultWeightStatName
		}
	}

	if c.RawTable != nil {
		if c.RawTable.Name == "" || c.RawTable.TimeColumn == "" {
			return ErrValidation("realm %q: raw_table requires name and time_column", c.Name)
		}
	}
	return nil
}
