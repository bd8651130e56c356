package timeunit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duck-warehouse/internal/domain"
)

func TestDeriveName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		period  string
		start   string
		end     string
		minUnit string
		want    string
	}{
		{"ten years is quarter", Auto, "2001-01-01", "2011-06-01", "", Quarter},
		{"eight months is month", Auto, "2020-01-01", "2020-08-01", "", Month},
		{"two weeks is day", Auto, "2020-01-01", "2020-01-15", "", Day},
		{"just under six months is day", Auto, "2020-01-15", "2020-07-14", "", Day},
		{"six months is month", Auto, "2020-01-15", "2020-07-15", "", Month},
		{"min unit raises day", Auto, "2020-01-01", "2020-01-15", Month, Month},
		{"min unit does not lower", Auto, "2001-01-01", "2011-06-01", Month, Quarter},
		{"unknown min unit ignored", Auto, "2020-01-01", "2020-01-15", "week", Day},
		{"auto is case-insensitive", "AUTO", "2020-01-01", "2020-08-01", "", Month},
		{"explicit period lowercased", "Year", "", "", "", "year"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := DeriveName(tt.period, tt.start, tt.end, tt.minUnit)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDeriveName_InvalidRange(t *testing.T) {
	t.Parallel()

	_, err := DeriveName(Auto, "yesterday", "2020-01-01", "")
	var target *domain.InvalidDateRangeError
	require.True(t, errors.As(err, &target))
	assert.Equal(t, "yesterday", target.Start)
}

func TestMaxUnit(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Year, MaxUnit(Day, Year))
	assert.Equal(t, Year, MaxUnit(Year, Day))
	assert.Equal(t, Month, MaxUnit("bogus", Month))
	assert.Equal(t, Quarter, MaxUnit(Quarter, "bogus"))
	assert.Equal(t, Month, MaxUnit(Month, Month))
}

func TestCompareUnits(t *testing.T) {
	t.Parallel()

	assert.Equal(t, -1, CompareUnits(Day, Month))
	assert.Equal(t, 1, CompareUnits(Year, Quarter))
	assert.Equal(t, 0, CompareUnits("Month", Month))
	assert.Equal(t, 0, CompareUnits("bogus", Month))
}

func TestRawPeriodBounds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		ts, unit   string
		start, end string
	}{
		{"2020-02-10", Day, "2020-02-10", "2020-02-10"},
		{"2020-02-01", Month, "2020-02-01", "2020-02-29"},
		{"2021-02-01", Month, "2021-02-01", "2021-02-28"},
		{"2020-04-01", Quarter, "2020-04-01", "2020-06-30"},
		{"2020-01-01", Year, "2020-01-01", "2020-12-31"},
		{"2020-01-01 00:00:00", "MONTH", "2020-01-01", "2020-01-31"},
	}
	for _, tt := range tests {
		start, end, err := RawPeriodBounds(tt.ts, tt.unit)
		require.NoError(t, err, "%s %s", tt.ts, tt.unit)
		assert.Equal(t, tt.start, start)
		assert.Equal(t, tt.end, end)
	}

	var target *domain.InvalidPeriodError
	_, _, err := RawPeriodBounds("2020-01-01", "week")
	assert.True(t, errors.As(err, &target))
	_, _, err = RawPeriodBounds("soon", Month)
	assert.True(t, errors.As(err, &target))
}

func TestParseRange(t *testing.T) {
	t.Parallel()

	start, end, err := ParseRange("2020-01-01", "2020-01-01T12:00:00Z")
	require.NoError(t, err)
	assert.True(t, end.After(start))

	var target *domain.InvalidDateRangeError
	_, _, err = ParseRange("2020-02-01", "2020-01-01")
	require.True(t, errors.As(err, &target))
	assert.Equal(t, "end precedes start", target.Reason)

	_, _, err = ParseRange("2020-01-01", "tomorrow")
	assert.True(t, errors.As(err, &target))
}

func TestUnit(t *testing.T) {
	t.Parallel()

	u, err := New(" Month ", "agg.jobfact_by_")
	require.NoError(t, err)
	assert.Equal(t, Month, u.Name())
	assert.Equal(t, 30, u.Days())
	assert.Equal(t, 12, u.MaxPeriodPerYear())
	assert.Equal(t, 1, u.MinPeriodPerYear())
	assert.Equal(t, "agg.jobfact_by_month", u.FactTable())
	assert.Equal(t, "month_id", u.IDColumn())
	assert.Equal(t, "modw.months", u.PeriodTable("modw"))
	assert.Equal(t, "months", u.PeriodTable(""))

	_, err = New("fortnight", "")
	var target *domain.InvalidPeriodError
	assert.True(t, errors.As(err, &target))
}

type fakeStore struct {
	rows   []domain.Row
	err    error
	query  string
	params map[string]any
}

func (f *fakeStore) Query(_ context.Context, q string, params map[string]any) ([]domain.Row, error) {
	f.query, f.params = q, params
	return f.rows, f.err
}

func TestResolveDateRangeIDs(t *testing.T) {
	t.Parallel()

	u, err := New(Month, "jobfact_by_")
	require.NoError(t, err)
	ctx := context.Background()

	store := &fakeStore{rows: []domain.Row{{"min_id": int64(202001), "max_id": int64(202006)}}}
	minID, maxID, err := u.ResolveDateRangeIDs(ctx, store, "", "2020-01-01", "2020-06-30")
	require.NoError(t, err)
	assert.Equal(t, int64(202001), minID)
	assert.Equal(t, int64(202006), maxID)
	assert.Contains(t, store.query, "FROM jobfact_by_month p JOIN months u ON u.id = p.month_id")
	assert.Equal(t, map[string]any{"subst0": "2020-06-30", "subst1": "2020-01-01"}, store.params)

	empty := &fakeStore{rows: []domain.Row{{"min_id": int64(-1), "max_id": int64(-1)}}}
	minID, maxID, err = u.ResolveDateRangeIDs(ctx, empty, "", "2030-01-01", "2030-06-30")
	require.NoError(t, err)
	assert.Equal(t, EmptyPeriodID, minID)
	assert.Equal(t, EmptyPeriodID, maxID)

	failing := &fakeStore{err: domain.ErrDatastore("SELECT", errors.New("boom"))}
	_, _, err = u.ResolveDateRangeIDs(ctx, failing, "", "2020-01-01", "2020-06-30")
	var dsErr *domain.DatastoreError
	assert.True(t, errors.As(err, &dsErr))

	_, _, err = u.ResolveDateRangeIDs(ctx, store, "", "2020-06-30", "2020-01-01")
	var rangeErr *domain.InvalidDateRangeError
	assert.True(t, errors.As(err, &rangeErr))
}

func TestPeriods(t *testing.T) {
	t.Parallel()

	u, err := New(Year, "jobfact_by_")
	require.NoError(t, err)

	store := &fakeStore{rows: []domain.Row{
		{"id": int64(2020), "start_ts": int64(1577836800), "middle_ts": int64(1593604800)},
		{"id": "2021", "start_ts": int64(1609459200), "middle_ts": int64(1625140800)},
		{"id": nil},
	}}
	periods, err := u.Periods(context.Background(), store, "", 2020, 2021)
	require.NoError(t, err)
	assert.Equal(t, []Period{
		{ID: 2020, StartTS: 1577836800, MiddleTS: 1593604800},
		{ID: 2021, StartTS: 1609459200, MiddleTS: 1625140800},
	}, periods)

	none, err := u.Periods(context.Background(), store, "", EmptyPeriodID, EmptyPeriodID)
	require.NoError(t, err)
	assert.Empty(t, none)
}
