package realm

import (
	"sort"

	"duck-warehouse/internal/domain"
	"duck-warehouse/internal/query"
)

// DimensionConstructor builds a dimension variant from its configuration.
// permitted holds the statistics the dimension may be combined with.
type DimensionConstructor func(cfg domain.GroupByConfig, rc *domain.RealmConfig, permitted []string) (query.Dimension, error)

// StatisticConstructor builds a statistic variant from its configuration.
type StatisticConstructor func(cfg domain.StatisticConfig, rc *domain.RealmConfig) (query.Statistic, error)

// Registry maps configured class names to variant constructors.
type Registry struct {
	dimensions map[string]DimensionConstructor
	statistics map[string]StatisticConstructor
}

func formulaStatistic(build statisticFormula) StatisticConstructor {
	return func(cfg domain.StatisticConfig, rc *domain.RealmConfig) (query.Statistic, error) {
		return newStatistic(cfg, rc, build)
	}
}

// DefaultRegistry returns the registry of built-in variants.
func DefaultRegistry() *Registry {
	return &Registry{
		dimensions: map[string]DimensionConstructor{
			domain.GroupByClassTable: newTableDimension,
			domain.GroupByClassNone:  newNoneDimension,
			domain.GroupByClassTime:  newTimeDimension,
		},
		statistics: map[string]StatisticConstructor{
			domain.StatisticClassSum:     formulaStatistic(sumFormula),
			domain.StatisticClassCount:   formulaStatistic(sumFormula),
			domain.StatisticClassAverage: formulaStatistic(averageFormula),
			domain.StatisticClassMin:     formulaStatistic(minFormula),
			domain.StatisticClassMax:     formulaStatistic(maxFormula),
			domain.StatisticClassFormula: formulaStatistic(rawFormula),
		},
	}
}

// RegisterDimension adds or replaces a dimension class. It must be called
// before the registry is used to build realms.
func (r *Registry) RegisterDimension(class string, c DimensionConstructor) {
	r.dimensions[class] = c
}

// RegisterStatistic adds or replaces a statistic class. It must be called
// before the registry is used to build realms.
func (r *Registry) RegisterStatistic(class string, c StatisticConstructor) {
	r.statistics[class] = c
}

// DimensionClasses lists the registered dimension classes.
func (r *Registry) DimensionClasses() []string { return sortedKeys(r.dimensions) }

// StatisticClasses lists the registered statistic classes.
func (r *Registry) StatisticClasses() []string { return sortedKeys(r.statistics) }

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
