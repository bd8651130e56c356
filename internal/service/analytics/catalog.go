package analytics

import (
	"context"

	"duck-warehouse/internal/domain"
	"duck-warehouse/internal/query"
)

// RealmDescription lists what can be queried in a realm.
type RealmDescription struct {
	Name       string            `json:"name"`
	Category   string            `json:"category"`
	MinUnit    string            `json:"min_aggregation_unit,omitempty"`
	Dimensions []DimensionInfo   `json:"group_bys"`
	Statistics []StatisticInfo   `json:"statistics"`
	RawColumns []query.RawColumn `json:"raw_columns,omitempty"`
}

// DimensionInfo describes one group-by of a realm.
type DimensionInfo struct {
	Name        string               `json:"name"`
	Label       string               `json:"label"`
	Description string               `json:"description,omitempty"`
	Category    string               `json:"category"`
	Visible     bool                 `json:"visible"`
	Statistics  []string             `json:"statistics"`
	Chart       domain.ChartDefaults `json:"chart"`
}

// StatisticInfo describes one statistic of a realm.
type StatisticInfo struct {
	Name        string `json:"name"`
	Label       string `json:"label"`
	Unit        string `json:"unit,omitempty"`
	Description string `json:"description,omitempty"`
}

// Realms returns the names of the configured realms.
func (s *Service) Realms(ctx context.Context) ([]string, error) {
	return s.realms.List(ctx)
}

// Describe returns the dimensions, statistics and raw columns of a realm.
// Hidden dimensions are included only when all is set.
func (s *Service) Describe(ctx context.Context, name string, all bool) (*RealmDescription, error) {
	r, err := s.realms.Get(ctx, name)
	if err != nil {
		return nil, err
	}

	desc := &RealmDescription{
		Name:     r.Name(),
		Category: r.Category(),
		MinUnit:  r.MinUnit(),
	}
	for _, d := range r.Dimensions(all) {
		desc.Dimensions = append(desc.Dimensions, DimensionInfo{
			Name:        d.Name(),
			Label:       d.Label(),
			Description: d.Description(),
			Category:    d.Category(),
			Visible:     d.Visible(),
			Statistics:  d.PermittedStatistics(),
			Chart:       d.ChartDefaults(),
		})
	}
	for _, st := range r.Statistics() {
		desc.Statistics = append(desc.Statistics, StatisticInfo{
			Name:        st.Name(),
			Label:       st.Label(false),
			Unit:        st.Unit(),
			Description: st.Description(),
		})
	}
	if raw, ok := r.RawTable(); ok {
		desc.RawColumns = raw.Columns
	}
	return desc, nil
}
