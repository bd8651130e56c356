// Package realm builds the dimension and statistic variants of a configured
// realm and caches them for the lifetime of the process.
package realm

import (
	"fmt"

	"duck-warehouse/internal/domain"
	"duck-warehouse/internal/query"
	"duck-warehouse/internal/timeunit"
)

// Realm is the resolved, read-only form of a realm configuration.
type Realm struct {
	cfg        domain.RealmConfig
	dimensions map[string]query.Dimension
	dimOrder   []string
	statistics map[string]query.Statistic
	statOrder  []string
	raw        *query.RawTable
}

var _ query.Realm = (*Realm)(nil)

// New validates cfg and builds its variants from reg.
func New(cfg domain.RealmConfig, reg *Registry) (*Realm, error) {
	if reg == nil {
		reg = DefaultRegistry()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := &Realm{
		cfg:        cfg,
		dimensions: make(map[string]query.Dimension, len(cfg.GroupBys)),
		statistics: make(map[string]query.Statistic, len(cfg.Statistics)),
	}

	for _, sc := range cfg.Statistics {
		build, ok := reg.statistics[sc.Class]
		if !ok {
			return nil, domain.ErrValidation("realm %q: statistic %q has unknown class %q", cfg.Name, sc.Name, sc.Class)
		}
		stat, err := build(sc, &r.cfg)
		if err != nil {
			return nil, fmt.Errorf("realm %q: statistic %q: %w", cfg.Name, sc.Name, err)
		}
		r.statistics[sc.Name] = stat
		r.statOrder = append(r.statOrder, sc.Name)
	}

	for _, gc := range cfg.GroupBys {
		build, ok := reg.dimensions[gc.Class]
		if !ok {
			return nil, domain.ErrValidation("realm %q: group_by %q has unknown class %q", cfg.Name, gc.Name, gc.Class)
		}
		permitted := gc.Statistics
		if len(permitted) == 0 {
			permitted = r.statOrder
		}
		for _, name := range permitted {
			if _, ok := r.statistics[name]; !ok {
				return nil, domain.ErrUnknownStatistic(cfg.Name, name)
			}
		}
		dim, err := build(gc, &r.cfg, append([]string(nil), permitted...))
		if err != nil {
			return nil, fmt.Errorf("realm %q: group_by %q: %w", cfg.Name, gc.Name, err)
		}
		r.dimensions[gc.Name] = dim
		r.dimOrder = append(r.dimOrder, gc.Name)
	}

	if rt := cfg.RawTable; rt != nil {
		raw := &query.RawTable{
			Table:      query.Table{Schema: rt.Schema, Name: rt.Name},
			TimeColumn: rt.TimeColumn,
		}
		for _, c := range rt.Columns {
			raw.Columns = append(raw.Columns, query.RawColumn{
				Name:          c.Name,
				Expression:    c.Expression,
				Documentation: c.Documentation,
			})
		}
		r.raw = raw
	}
	return r, nil
}

func (r *Realm) Name() string     { return r.cfg.Name }
func (r *Realm) Category() string { return r.cfg.Category }

// Datasource names the warehouse the realm reads from.
func (r *Realm) Datasource() string { return r.cfg.Datasource }

// AggregateTablePrefix returns the schema-qualified aggregate table prefix.
func (r *Realm) AggregateTablePrefix() string {
	if r.cfg.AggregateSchema == "" {
		return r.cfg.AggregateTablePrefix
	}
	return r.cfg.AggregateSchema + "." + r.cfg.AggregateTablePrefix
}

func (r *Realm) AggregateAlias() string  { return r.cfg.AggregateAlias }
func (r *Realm) DimensionSchema() string { return r.cfg.DimensionSchema }

// Dimension returns the named dimension or an UnknownDimensionError.
func (r *Realm) Dimension(name string) (query.Dimension, error) {
	d, ok := r.dimensions[name]
	if !ok {
		return nil, domain.ErrUnknownDimension(r.cfg.Name, name)
	}
	return d, nil
}

// Statistic returns the named statistic or an UnknownStatisticError.
func (r *Realm) Statistic(name string) (query.Statistic, error) {
	s, ok := r.statistics[name]
	if !ok {
		return nil, domain.ErrUnknownStatistic(r.cfg.Name, name)
	}
	return s, nil
}

func (r *Realm) RawTable() (query.RawTable, bool) {
	if r.raw == nil {
		return query.RawTable{}, false
	}
	return *r.raw, true
}

// Dimensions returns the dimensions in configuration order. Hidden
// dimensions are included only when all is set.
func (r *Realm) Dimensions(all bool) []query.Dimension {
	out := make([]query.Dimension, 0, len(r.dimOrder))
	for _, name := range r.dimOrder {
		d := r.dimensions[name]
		if all || d.Visible() {
			out = append(out, d)
		}
	}
	return out
}

// Statistics returns the statistics in configuration order.
func (r *Realm) Statistics() []query.Statistic {
	out := make([]query.Statistic, 0, len(r.statOrder))
	for _, name := range r.statOrder {
		out = append(out, r.statistics[name])
	}
	return out
}

// MinUnit returns the finest time unit the realm has a dimension for, or ""
// when it has none.
func (r *Realm) MinUnit() string {
	for _, u := range timeunit.Names {
		if _, ok := r.dimensions[u]; ok {
			return u
		}
	}
	return ""
}

// Config returns a copy of the validated configuration.
func (r *Realm) Config() domain.RealmConfig { return r.cfg }
