package realm

import (
	"context"

	"duck-warehouse/internal/domain"
)

// DefaultSchemas wraps source so that realms naming no aggregate or
// dimension schema use the given ones.
func DefaultSchemas(source domain.RealmConfigSource, aggregate, dimension string) domain.RealmConfigSource {
	if aggregate == "" && dimension == "" {
		return source
	}
	return &schemaDefaults{source: source, aggregate: aggregate, dimension: dimension}
}

type schemaDefaults struct {
	source    domain.RealmConfigSource
	aggregate string
	dimension string
}

func (s *schemaDefaults) LoadRealm(ctx context.Context, name string) (*domain.RealmConfig, error) {
	cfg, err := s.source.LoadRealm(ctx, name)
	if err != nil {
		return nil, err
	}
	if cfg.AggregateSchema == "" {
		cfg.AggregateSchema = s.aggregate
	}
	if cfg.DimensionSchema == "" {
		cfg.DimensionSchema = s.dimension
	}
	return cfg, nil
}

func (s *schemaDefaults) ListRealms(ctx context.Context) ([]string, error) {
	return s.source.ListRealms(ctx)
}
