package domain

import (
	"context"
	"errors"
	"math"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// === Users and role restrictions ===

func TestRoleRestriction_ResolveValue(t *testing.T) {
	t.Parallel()

	u := User{Username: "ghopper", Attributes: map[string]string{"person_id": "2"}}
	tests := []struct {
		name  string
		value string
		want  string
	}{
		{name: "literal", value: "7", want: "7"},
		{name: "attribute", value: "${user.person_id}", want: "2"},
		{name: "attribute with spaces", value: " ${user.person_id} ", want: "2"},
		{name: "unset attribute", value: "${user.organization_id}", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, RoleRestriction{Value: tt.value}.ResolveValue(u))
		})
	}
	assert.Empty(t, User{}.Attribute("person_id"))
}

func TestUserContext(t *testing.T) {
	t.Parallel()

	_, ok := UserFromContext(context.Background())
	assert.False(t, ok)

	ctx := WithUser(context.Background(), User{Username: "ada", Roles: []string{"pi"}})
	u, ok := UserFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "ada", u.Username)
}

// === Pagination ===

func TestPageRequest(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DefaultMaxResults, PageRequest{}.Limit())
	assert.Equal(t, MaxMaxResults, PageRequest{MaxResults: 5000}.Limit())
	assert.Equal(t, 7, PageRequest{MaxResults: 7}.Limit())

	offset, err := PageRequest{}.Offset()
	require.NoError(t, err)
	assert.Zero(t, offset)

	offset, err = PageRequest{PageToken: EncodePageToken(10)}.Offset()
	require.NoError(t, err)
	assert.Equal(t, 10, offset)
	assert.Empty(t, EncodePageToken(0))

	for _, token := range []string{"not base64!", EncodePageToken(3) + "=", "YWJj", "LTU"} {
		_, err := PageRequest{PageToken: token}.Offset()
		var vErr *ValidationError
		assert.ErrorAs(t, err, &vErr, token)
	}
}

func TestNewPage(t *testing.T) {
	t.Parallel()

	p := NewPage([]int{1, 2}, 0, 2, 5)
	assert.Equal(t, int64(5), p.Total)
	offset, err := PageRequest{PageToken: p.NextPageToken}.Offset()
	require.NoError(t, err)
	assert.Equal(t, 2, offset)

	assert.Empty(t, NewPage([]int{5}, 4, 2, 5).NextPageToken)
	assert.Empty(t, NewPage([]int{3, 4}, 2, 2, 4).NextPageToken)
}

// === Errors ===

func TestErrDatastore(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ErrDatastore("SELECT 1", nil))

	cause := errors.New("no such table: jobfact_by_day")
	err := ErrDatastore("SELECT * FROM jobfact_by_day", cause)
	var dsErr *DatastoreError
	require.ErrorAs(t, err, &dsErr)
	assert.Equal(t, "SELECT * FROM jobfact_by_day", dsErr.Query)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "datastore: no such table: jobfact_by_day", err.Error())
}

func TestErrorMessages(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want string
	}{
		{err: ErrUnknownDimension("Jobs", "queue"), want: `realm "Jobs" has no dimension "queue"`},
		{err: ErrUnknownStatistic("Jobs", "gpu_hours"), want: `realm "Jobs" has no statistic "gpu_hours"`},
		{err: ErrUnsupportedStatistic("resource", "avg_wait_hours"), want: `statistic "avg_wait_hours" is not available for dimension "resource"`},
		{err: ErrUnavailableGranularity("Jobs", "day"), want: `granularity "day" is not available for realm "Jobs"`},
		{err: ErrMissingDimension("Execute"), want: "Execute requires a group-by dimension"},
		{err: ErrInvalidDateRange("2021-01-01", "2020-01-01", "start after end"), want: `invalid date range "2021-01-01".."2020-01-01": start after end`},
		{err: ErrInvalidPeriod("2020-13-01", "month"), want: `invalid period "2020-13-01" for unit "month"`},
		{err: ErrConflict("role %q exists", "pi"), want: `role "pi" exists`},
	}
	for _, tt := range tests {
		assert.EqualError(t, tt.err, tt.want)
	}
}

// === Realm configuration ===

func validRealm() RealmConfig {
	return RealmConfig{
		Name:                 "Jobs",
		AggregateTablePrefix: "jobfact_by_",
		GroupBys: []GroupByConfig{
			{Name: "none", Class: GroupByClassNone},
			{Name: "person", Table: "person", FactColumn: "person_id"},
		},
		Statistics: []StatisticConfig{
			{Name: "job_count", Class: StatisticClassSum, Column: "job_count"},
			{Name: "avg_cpu", Formula: "SUM(agg.cpu_hours) / SUM(agg.job_count)"},
		},
	}
}

func TestRealmConfig_ValidateDefaults(t *testing.T) {
	t.Parallel()

	cfg := validRealm()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultAggregateAlias, cfg.AggregateAlias)
	assert.Equal(t, "Jobs", cfg.Category)
	assert.Equal(t, GroupByClassTable, cfg.GroupBys[1].Class)
	assert.Equal(t, OrderPolicyDescending, cfg.GroupBys[1].OrderPolicy)
	assert.Equal(t, StatisticClassFormula, cfg.Statistics[1].Class)
	assert.Equal(t, DefaultWeightStatName, cfg.Statistics[0].WeightStat)
	assert.True(t, cfg.GroupBys[0].IsVisible())
}

func TestRealmConfig_ValidateErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*RealmConfig)
		want   string
	}{
		{name: "no name", mutate: func(c *RealmConfig) { c.Name = "" }, want: "realm name is required"},
		{name: "no prefix", mutate: func(c *RealmConfig) { c.AggregateTablePrefix = "" }, want: "aggregate_table_prefix is required"},
		{name: "separator in group_by", mutate: func(c *RealmConfig) { c.GroupBys[0].Name = "job-size" }, want: "must not contain"},
		{name: "duplicate group_by", mutate: func(c *RealmConfig) {
			c.GroupBys[0] = GroupByConfig{Name: "person", Class: GroupByClassTable, Table: "p", FactColumn: "p"}
		}, want: "duplicate group_by"},
		{name: "table without fact column", mutate: func(c *RealmConfig) { c.GroupBys[1].FactColumn = "" }, want: "requires table and fact_column"},
		{name: "duplicate statistic", mutate: func(c *RealmConfig) { c.Statistics[1].Name = "job_count" }, want: "duplicate statistic"},
		{name: "formula missing", mutate: func(c *RealmConfig) { c.Statistics[1].Formula = "" }, want: "requires a formula"},
		{name: "column missing", mutate: func(c *RealmConfig) { c.Statistics[0].Column = "" }, want: "requires a column"},
		{name: "raw table incomplete", mutate: func(c *RealmConfig) { c.RawTable = &RawTableConfig{Name: "job_records"} }, want: "raw_table requires"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validRealm()
			tt.mutate(&cfg)
			err := cfg.Validate()
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

// === Value conversion ===

func TestAsFloat64(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in     any
		want   float64
		wantOK bool
	}{
		{in: nil, wantOK: false},
		{in: int64(4), want: 4, wantOK: true},
		{in: float32(1.5), want: 1.5, wantOK: true},
		{in: true, want: 1, wantOK: true},
		{in: big.NewInt(12), want: 12, wantOK: true},
		{in: []byte("2.25"), want: 2.25, wantOK: true},
		{in: "abc", wantOK: false},
	}
	for _, tt := range tests {
		got, ok := AsFloat64(tt.in)
		assert.Equal(t, tt.wantOK, ok, "%v", tt.in)
		if tt.wantOK {
			assert.InDelta(t, tt.want, got, 1e-9)
		}
	}
}

func TestAsInt64(t *testing.T) {
	t.Parallel()

	n, ok := AsInt64("202002")
	require.True(t, ok)
	assert.Equal(t, int64(202002), n)

	n, ok = AsInt64(float64(7.9))
	require.True(t, ok)
	assert.Equal(t, int64(7), n)

	n, ok = AsInt64([]byte("12"))
	require.True(t, ok)
	assert.Equal(t, int64(12), n)

	n, ok = AsInt64("7.5")
	require.True(t, ok)
	assert.Equal(t, int64(7), n)

	n, ok = AsInt64(uint16(9))
	require.True(t, ok)
	assert.Equal(t, int64(9), n)

	_, ok = AsInt64(nil)
	assert.False(t, ok)
	_, ok = AsInt64(math.NaN())
	assert.False(t, ok)
	_, ok = AsInt64("n/a")
	assert.False(t, ok)
}

func TestAsString(t *testing.T) {
	t.Parallel()

	day := time.Date(2020, 2, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		in   any
		want string
	}{
		{in: "x", want: "x"},
		{in: []byte("y"), want: "y"},
		{in: day, want: "2020-02-01"},
		{in: day.Add(90 * time.Minute), want: "2020-02-01 01:30:00"},
		{in: 2.5, want: "2.5"},
		{in: int64(3), want: "3"},
		{in: 4, want: "4"},
		{in: true, want: "true"},
		{in: uint8(5), want: "5"},
	}
	for _, tt := range tests {
		got, ok := AsString(tt.in)
		require.True(t, ok)
		assert.Equal(t, tt.want, got)
	}
	_, ok := AsString(nil)
	assert.False(t, ok)
}
