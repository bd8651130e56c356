package query

import (
	"context"
	"time"

	"github.com/samber/lo"
)

// Series is one statistic of an aggregate result, ready for charting.
type Series struct {
	Statistic  string    `json:"statistic"`
	Label      string    `json:"label"`
	Unit       string    `json:"unit,omitempty"`
	Decimals   int       `json:"decimals"`
	Dimension  string    `json:"dimension"`
	IDs        []any     `json:"id"`
	Names      []string  `json:"name"`
	ShortNames []string  `json:"short_name"`
	Values     []float64 `json:"values"`
	SEM        []float64 `json:"sem"`
	Weights    []float64 `json:"weight"`
}

// Dataset wraps an aggregate result as one Series per statistic.
type Dataset struct {
	Realm           string        `json:"realm"`
	GroupBy         string        `json:"group_by"`
	AggregationUnit string        `json:"aggregation_unit"`
	Series          []Series      `json:"series"`
	SQL             string        `json:"query"`
	Elapsed         time.Duration `json:"-"`
	QueryTime       float64       `json:"query_time"`
}

// Dataset executes the query and returns one Series for the main statistic,
// or one per selected statistic when none is designated.
func (q *Query) Dataset(ctx context.Context, limit int) (*Dataset, error) {
	res, err := q.Execute(ctx, limit, 0)
	if err != nil {
		return nil, err
	}

	ds := &Dataset{
		Realm:     q.realm.Name(),
		GroupBy:   q.groupBy.Name(),
		SQL:       res.SQL,
		Elapsed:   res.Elapsed,
		QueryTime: res.Elapsed.Seconds(),
	}
	if q.unit != nil {
		ds.AggregationUnit = q.unit.Name()
	}

	stats := q.stats
	if q.mainStat != nil {
		stats = []Statistic{q.mainStat}
	}
	for _, s := range stats {
		values := res.Values[s.Name()]
		var dataMin, dataMax *float64
		if len(values) > 0 {
			mn, mx := lo.Min(values), lo.Max(values)
			dataMin, dataMax = &mn, &mx
		}
		ds.Series = append(ds.Series, Series{
			Statistic:  s.Name(),
			Label:      s.Label(true),
			Unit:       s.Unit(),
			Decimals:   s.Decimals(dataMin, dataMax),
			Dimension:  q.groupBy.Name(),
			IDs:        nonNil(res.IDs),
			Names:      nonNil(res.Names),
			ShortNames: nonNil(res.ShortNames),
			Values:     values,
			SEM:        res.SEM[s.Name()],
			Weights:    nonNil(res.Weights),
		})
	}
	return ds, nil
}
