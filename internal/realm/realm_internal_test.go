package realm

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"

	"github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duck-warehouse/internal/demo"
	"duck-warehouse/internal/domain"
	"duck-warehouse/internal/query"
)

func demoConfig(t *testing.T) domain.RealmConfig {
	t.Helper()
	cfg, err := NewFileSource(demo.Realms()).LoadRealm(context.Background(), demo.RealmName)
	require.NoError(t, err)
	return *cfg
}

func minimalConfig() domain.RealmConfig {
	return domain.RealmConfig{
		Name:                 "Storage",
		AggregateTablePrefix: "storagefact_by_",
		GroupBys: []domain.GroupByConfig{
			{Name: "none", Class: domain.GroupByClassNone},
			{Name: "month", Class: domain.GroupByClassTime},
		},
		Statistics: []domain.StatisticConfig{
			{Name: "file_count", Class: domain.StatisticClassSum, Column: "file_count"},
			{Name: "avg_size", Class: domain.StatisticClassAverage, Column: "size", WeightColumn: "file_count"},
		},
	}
}

// === Construction ===

func TestNew_DemoRealm(t *testing.T) {
	t.Parallel()

	r, err := New(demoConfig(t), nil)
	require.NoError(t, err)

	assert.Equal(t, "Jobs", r.Name())
	assert.Equal(t, "jobfact_by_", r.AggregateTablePrefix())
	assert.Equal(t, "jf", r.AggregateAlias())
	assert.Equal(t, "day", r.MinUnit())
	assert.Len(t, r.Dimensions(false), 7)
	assert.Len(t, r.Statistics(), 6)

	person, err := r.Dimension("person")
	require.NoError(t, err)
	assert.Equal(t, "User", person.Label())
	assert.Equal(t, query.SortDescending, person.OrderPolicy())
	assert.Len(t, person.PermittedStatistics(), 6)
	assert.Equal(t, "bar", person.ChartDefaults().DisplayType)

	resource, err := r.Dimension("resource")
	require.NoError(t, err)
	assert.Equal(t, query.SortLexicographic, resource.OrderPolicy())
	assert.NotContains(t, resource.PermittedStatistics(), "avg_wait_hours")

	month, err := r.Dimension("month")
	require.NoError(t, err)
	assert.Equal(t, query.SortNone, month.OrderPolicy())

	_, err = r.Dimension("bogus")
	var unknownDim *domain.UnknownDimensionError
	assert.True(t, errors.As(err, &unknownDim))

	_, err = r.Statistic("bogus")
	var unknownStat *domain.UnknownStatisticError
	assert.True(t, errors.As(err, &unknownStat))

	raw, ok := r.RawTable()
	require.True(t, ok)
	assert.Equal(t, "job_records", raw.Table.Name)
	assert.Equal(t, "end_time", raw.TimeColumn)
}

func TestNew_StatisticFormulas(t *testing.T) {
	t.Parallel()

	r, err := New(demoConfig(t), nil)
	require.NoError(t, err)

	tests := []struct {
		name    string
		formula string
	}{
		{"job_count", "COALESCE(SUM(jf.job_count), 0)"},
		{"total_cpu_hours", "COALESCE(SUM(jf.cpu_hours), 0)"},
		{"avg_cpu_hours", "1.0 * SUM(jf.cpu_hours) / NULLIF(SUM(jf.job_count), 0)"},
		{"max_cpu_hours", "MAX(jf.max_cpu_hours)"},
	}
	for _, tt := range tests {
		s, err := r.Statistic(tt.name)
		require.NoError(t, err)
		assert.Equal(t, tt.formula, s.Formula(), tt.name)
		assert.Nil(t, s.AdditionalWhereCondition(), tt.name)
	}

	wait, err := r.Statistic("avg_wait_hours")
	require.NoError(t, err)
	require.NotNil(t, wait.AdditionalWhereCondition())
	assert.Equal(t, "jf.job_count > 0", wait.AdditionalWhereCondition().String())
	assert.Equal(t, "Wait Hours Per Job (Hour)", wait.Label(true))
	assert.Equal(t, "Wait Hours Per Job", wait.Label(false))
	assert.Equal(t, "weight", wait.WeightStatName())
}

func TestNew_WeightedAverage(t *testing.T) {
	t.Parallel()

	r, err := New(minimalConfig(), nil)
	require.NoError(t, err)

	s, err := r.Statistic("avg_size")
	require.NoError(t, err)
	assert.Equal(t, "SUM(1.0 * agg.size * agg.file_count) / NULLIF(SUM(agg.file_count), 0)", s.Formula())
	assert.Equal(t, "month", r.MinUnit())
	assert.Equal(t, "Storage", r.Category())
}

func TestNew_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*domain.RealmConfig)
		check  func(t *testing.T, err error)
	}{
		{
			name:   "unknown permitted statistic",
			mutate: func(c *domain.RealmConfig) { c.GroupBys[0].Statistics = []string{"bogus"} },
			check: func(t *testing.T, err error) {
				var target *domain.UnknownStatisticError
				assert.True(t, errors.As(err, &target))
			},
		},
		{
			name:   "unknown dimension class",
			mutate: func(c *domain.RealmConfig) { c.GroupBys[0].Class = "cube" },
			check: func(t *testing.T, err error) {
				var target *domain.ValidationError
				assert.True(t, errors.As(err, &target))
			},
		},
		{
			name:   "unknown statistic class",
			mutate: func(c *domain.RealmConfig) { c.Statistics[0].Class = "median" },
			check: func(t *testing.T, err error) {
				var target *domain.ValidationError
				assert.True(t, errors.As(err, &target))
			},
		},
		{
			name:   "missing table prefix",
			mutate: func(c *domain.RealmConfig) { c.AggregateTablePrefix = "" },
			check: func(t *testing.T, err error) {
				var target *domain.ValidationError
				assert.True(t, errors.As(err, &target))
			},
		},
		{
			name:   "dimension name with separator",
			mutate: func(c *domain.RealmConfig) { c.GroupBys[0].Name = "a-b" },
			check: func(t *testing.T, err error) {
				var target *domain.ValidationError
				assert.True(t, errors.As(err, &target))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := minimalConfig()
			tt.mutate(&cfg)
			_, err := New(cfg, nil)
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestRegistry_CustomStatisticClass(t *testing.T) {
	t.Parallel()

	reg := DefaultRegistry()
	reg.RegisterStatistic("median", formulaStatistic(func(cfg domain.StatisticConfig, col func(string) string) (string, error) {
		return "MEDIAN(" + col(cfg.Column) + ")", nil
	}))
	assert.Contains(t, reg.StatisticClasses(), "median")
	assert.Equal(t, []string{"none", "table", "time"}, reg.DimensionClasses())

	cfg := minimalConfig()
	cfg.Statistics[0].Class = "median"
	r, err := New(cfg, reg)
	require.NoError(t, err)

	s, err := r.Statistic("file_count")
	require.NoError(t, err)
	assert.Equal(t, "MEDIAN(agg.file_count)", s.Formula())
}

// === Dimensions ===

func TestPullQueryParameters(t *testing.T) {
	t.Parallel()

	r, err := New(demoConfig(t), nil)
	require.NoError(t, err)
	person, err := r.Dimension("person")
	require.NoError(t, err)

	params := person.PullQueryParameters(map[string]string{"person": "1", "person_filter": "2, 3,1,"})
	require.Len(t, params, 1)
	assert.Equal(t, "jf.person_id", params[0].Column)
	assert.Equal(t, "IN", params[0].Operator)
	assert.Equal(t, []any{int64(1), int64(2), int64(3)}, params[0].Values)

	params = person.PullQueryParameters(map[string]string{"person": "4"})
	require.Len(t, params, 1)
	assert.Equal(t, "=", params[0].Operator)
	assert.Equal(t, []any{int64(4)}, params[0].Values)

	assert.Empty(t, person.PullQueryParameters(map[string]string{"resource": "1"}))

	none, err := r.Dimension("none")
	require.NoError(t, err)
	assert.Empty(t, none.PullQueryParameters(map[string]string{"none": "1"}))
}

func TestNoneDimension_PossibleValues(t *testing.T) {
	t.Parallel()

	r, err := New(demoConfig(t), nil)
	require.NoError(t, err)
	none, err := r.Dimension("none")
	require.NoError(t, err)

	values, err := none.PossibleValues(context.Background(), nil, query.ValuesOptions{})
	require.NoError(t, err)
	assert.Equal(t, []query.Value{{ID: SummaryID, ShortName: "Summary", Name: "Summary"}}, values)

	values, err = none.PossibleValues(context.Background(), nil, query.ValuesOptions{Offset: 1})
	require.NoError(t, err)
	assert.Empty(t, values)
}

type recordingStore struct {
	sql    string
	params map[string]any
}

func (s *recordingStore) Query(_ context.Context, sql string, params map[string]any) ([]domain.Row, error) {
	s.sql, s.params = sql, params
	return []domain.Row{{"id": int64(1), "name": "Lovelace, Ada", "short_name": nil}}, nil
}

func TestTableDimension_PossibleValuesSQL(t *testing.T) {
	t.Parallel()

	r, err := New(demoConfig(t), nil)
	require.NoError(t, err)
	person, err := r.Dimension("person")
	require.NoError(t, err)

	store := &recordingStore{}
	values, err := person.PossibleValues(context.Background(), store, query.ValuesOptions{
		Hint:  "Love",
		IDs:   []string{"1", "2"},
		Limit: 5,
	})
	require.NoError(t, err)

	assert.Contains(t, store.sql, "SELECT person.id AS id, person.long_name AS name, person.short_name AS short_name FROM person person")
	assert.Contains(t, store.sql, "(LOWER(person.long_name) LIKE :subst0 OR LOWER(person.short_name) LIKE :subst1)")
	assert.Contains(t, store.sql, "person.id IN (:subst2,:subst3)")
	assert.Contains(t, store.sql, "ORDER BY person.order_id, person.id LIMIT 5")
	assert.Equal(t, "%love%", store.params["subst0"])
	assert.Equal(t, int64(2), store.params["subst3"])

	require.Len(t, values, 1)
	assert.Equal(t, "Lovelace, Ada", values[0].ShortName)
}

// === Placeholders ===

func TestSubstFormat(t *testing.T) {
	t.Parallel()

	sql, err := substFormat{}.ReplacePlaceholders("a = ? AND b IN (?,?) AND c ?? d")
	require.NoError(t, err)
	assert.Equal(t, "a = :subst0 AND b IN (:subst1,:subst2) AND c ? d", sql)

	sql, _, err = squirrel.Select("x").From("t").Where(squirrel.Eq{"y": 1}).PlaceholderFormat(substFormat{}).ToSql()
	require.NoError(t, err)
	assert.Equal(t, "SELECT x FROM t WHERE y = :subst0", sql)
}

// === Sources ===

func TestFileSource(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"storage.yaml": {Data: []byte("aggregate_table_prefix: storagefact_by_\nstatistics:\n  - name: n\n    class: sum\n    column: n\n")},
		"cloud.yml":    {Data: []byte("name: Cloud\naggregate_table_prefix: cloudfact_by_\n")},
		"README.md":    {Data: []byte("not a realm")},
	}
	src := NewFileSource(fsys)
	ctx := context.Background()

	names, err := src.ListRealms(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"storage", "Cloud"}, names)

	cfg, err := src.LoadRealm(ctx, "storage")
	require.NoError(t, err)
	assert.Equal(t, "storagefact_by_", cfg.AggregateTablePrefix)
	require.Len(t, cfg.Statistics, 1)

	_, err = src.LoadRealm(ctx, "missing")
	var notFound *domain.NotFoundError
	assert.True(t, errors.As(err, &notFound))

	bad := NewFileSource(fstest.MapFS{"bad.yaml": {Data: []byte("name: [")}})
	_, err = bad.ListRealms(ctx)
	assert.ErrorContains(t, err, "parse realm config bad.yaml")
}

func TestDefaultSchemas(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"plain.yaml":  {Data: []byte("name: Plain\naggregate_table_prefix: plainfact_by_\n")},
		"pinned.yaml": {Data: []byte("name: Pinned\naggregate_schema: own\ndimension_schema: dims\naggregate_table_prefix: pinnedfact_by_\n")},
	}
	src := NewFileSource(fsys)
	ctx := context.Background()

	assert.Same(t, src, DefaultSchemas(src, "", ""))

	wrapped := DefaultSchemas(src, "modw_aggregates", "modw")
	cfg, err := wrapped.LoadRealm(ctx, "Plain")
	require.NoError(t, err)
	assert.Equal(t, "modw_aggregates", cfg.AggregateSchema)
	assert.Equal(t, "modw", cfg.DimensionSchema)

	cfg, err = wrapped.LoadRealm(ctx, "Pinned")
	require.NoError(t, err)
	assert.Equal(t, "own", cfg.AggregateSchema)
	assert.Equal(t, "dims", cfg.DimensionSchema)

	names, err := wrapped.ListRealms(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Plain", "Pinned"}, names)

	_, err = wrapped.LoadRealm(ctx, "missing")
	var notFound *domain.NotFoundError
	assert.True(t, errors.As(err, &notFound))
}
