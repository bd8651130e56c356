package analytics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duck-warehouse/internal/demo"
	"duck-warehouse/internal/query"
	"duck-warehouse/internal/realm"
)

func TestAggregationUnit(t *testing.T) {
	t.Parallel()

	r, err := realm.NewCache(realm.NewFileSource(demo.Realms()), nil).Get(context.Background(), demo.RealmName)
	require.NoError(t, err)

	tests := []struct {
		name string
		req  Request
		want string
	}{
		{"empty period is auto", Request{GroupBy: "person", StartDate: "2020-01-01", EndDate: "2020-01-10"}, "day"},
		{"long range", Request{Period: "auto", GroupBy: "person", StartDate: "2001-01-01", EndDate: "2011-06-01"}, "quarter"},
		{"time group-by fixes unit", Request{Period: "AUTO", GroupBy: "Year", StartDate: "2020-01-01", EndDate: "2020-01-10"}, "year"},
		{"explicit period wins", Request{Period: "Quarter", GroupBy: "month"}, "quarter"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := aggregationUnit(r, tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPageValues(t *testing.T) {
	t.Parallel()

	values := []query.Value{
		{ID: 1, Name: "Babbage, Charles", ShortName: "cbabbage"},
		{ID: 2, Name: "Hopper, Grace", ShortName: "ghopper"},
		{ID: 3, Name: "Lovelace, Ada", ShortName: "alovelace"},
		{ID: 4, Name: "Turing, Alan", ShortName: "aturing"},
	}

	assert.Equal(t, values, pageValues(values, query.ValuesOptions{}))
	assert.Equal(t, values[1:3], pageValues(values, query.ValuesOptions{Offset: 1, Limit: 2}))
	assert.Equal(t, []query.Value{values[2]}, pageValues(values, query.ValuesOptions{Hint: "LOVE"}))
	assert.Equal(t, []query.Value{values[3]}, pageValues(values, query.ValuesOptions{Hint: "ing"}))
	assert.Empty(t, pageValues(values, query.ValuesOptions{Offset: 10}))
}

func TestNewService_Defaults(t *testing.T) {
	t.Parallel()

	svc := NewService(nil, nil, nil, 0, nil)
	assert.Equal(t, DefaultLimit, svc.limit(0))
	assert.Equal(t, 3, svc.limit(3))
	assert.NotNil(t, svc.logger)
}
