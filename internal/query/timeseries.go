package query

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"

	"duck-warehouse/internal/domain"
)

// TimeseriesResult holds one zero-filled bucket array per series.
type TimeseriesResult struct {
	Statistic string
	// Order lists series names in display order.
	Order   []string
	Values  map[string][]float64
	Weights map[string][]float64
	SEM     map[string][]float64
	// SeriesIDs maps series name to dimension id; ShortSeriesIDs maps series
	// short name to dimension id.
	SeriesIDs      map[string]any
	ShortSeriesIDs map[string]any
	// Labels are bucket start timestamps.
	Labels []int64

	SQL     string
	Elapsed time.Duration
}

// MarshalJSON emits "<series>", "<series>-weights" and "<series>-sem" arrays
// with the "series", "short_series" and "labels" lookups.
func (r *TimeseriesResult) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"series":       nonNilMap(r.SeriesIDs),
		"short_series": nonNilMap(r.ShortSeriesIDs),
		"labels":       nonNil(r.Labels),
		"query":        r.SQL,
		"query_time":   r.Elapsed.Seconds(),
	}
	for _, name := range r.Order {
		out[name] = r.Values[name]
		out[name+"-weights"] = r.Weights[name]
		out[name+"-sem"] = r.SEM[name]
	}
	return json.Marshal(out)
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// seriesTotal is the first-pass accumulator for one series.
type seriesTotal struct {
	id     any
	short  string
	value  float64
	weight float64
	seen   bool
	first  int // index of the series' first row
}

// reduceMode selects how bucket rows combine into a series total.
type reduceMode int

const (
	reduceSum reduceMode = iota
	reduceMin
	reduceMax
	reduceWeighted
)

func reduceModeFor(stat string) reduceMode {
	switch {
	case strings.Contains(stat, "min_"):
		return reduceMin
	case strings.Contains(stat, "max_"):
		return reduceMax
	case isWeightGoverned(stat):
		return reduceWeighted
	default:
		return reduceSum
	}
}

// accumulateSeries folds rows into per-series totals keyed by the series
// name column under prefix. min_ and max_ statistics keep the running
// extreme and ignore weights; weight-governed statistics produce a weighted
// mean with non-positive weights floored to 1; all others sum.
func accumulateSeries(rows []domain.Row, prefix, stat, weightCol string) map[string]*seriesTotal {
	mode := reduceModeFor(stat)
	totals := map[string]*seriesTotal{}

	for i, row := range rows {
		id, name, short := rowIdentity(row, prefix)
		t, ok := totals[name]
		if !ok {
			t = &seriesTotal{id: id, short: short, first: i}
			totals[name] = t
		}
		v, _ := domain.AsFloat64(row[stat])

		switch mode {
		case reduceMin:
			if !t.seen || v < t.value {
				t.value = v
			}
			t.weight = 1
		case reduceMax:
			if !t.seen || v > t.value {
				t.value = v
			}
			t.weight = 1
		case reduceWeighted:
			w := rowWeight(row, weightCol)
			t.value += w * v
			t.weight += w
		default:
			t.value += v
			t.weight = 1
		}
		t.seen = true
	}

	if mode == reduceWeighted {
		for _, t := range totals {
			if t.weight != 0 {
				t.value /= t.weight
			}
		}
	}
	return totals
}

// orderSeries returns series names in display order under policy. SortNone
// keeps the order in which the statement returned the series.
func orderSeries(totals map[string]*seriesTotal, policy SortPolicy) []string {
	names := make([]string, 0, len(totals))
	for name := range totals {
		names = append(names, name)
	}
	sort.Slice(names, func(a, b int) bool {
		return totals[names[a]].first < totals[names[b]].first
	})
	if policy == SortNone {
		return names
	}
	sort.SliceStable(names, func(a, b int) bool {
		ka := sortKey{value: totals[names[a]].value, name: names[a]}
		kb := sortKey{value: totals[names[b]].value, name: names[b]}
		return ka.less(kb, policy)
	})
	return names
}

// ExecuteTimeseries runs a Timeseries query. The period list is fetched
// first; the statement then runs once to rank series and once more to fill
// the per-bucket arrays. The first offset series in display order are
// skipped and limit > 0 keeps the next limit series.
func (q *Query) ExecuteTimeseries(ctx context.Context, limit, offset int) (*TimeseriesResult, error) {
	if q.mode != ModeTimeseries {
		return nil, domain.ErrValidation("ExecuteTimeseries requires a timeseries query, got %s", q.mode)
	}
	if q.mainStat == nil {
		return nil, domain.ErrValidation("timeseries queries require a single statistic")
	}

	stat := q.mainStat.Name()
	sql := q.QueryString(0, 0, "")
	res := &TimeseriesResult{
		Statistic:      stat,
		Values:         map[string][]float64{},
		Weights:        map[string][]float64{},
		SEM:            map[string][]float64{},
		SeriesIDs:      map[string]any{},
		ShortSeriesIDs: map[string]any{},
		Labels:         []int64{},
		SQL:            sql,
	}
	if q.Empty() {
		return res, nil
	}

	started := time.Now()

	periods, err := q.unit.Periods(ctx, q.store, q.realm.DimensionSchema(), q.minPeriodID, q.maxPeriodID)
	if err != nil {
		return nil, err
	}
	bucket := make(map[int64]int, len(periods))
	for i, p := range periods {
		bucket[p.ID] = i
		res.Labels = append(res.Labels, p.StartTS)
	}

	params := q.Parameters()
	rows, err := q.store.Query(ctx, sql, params)
	if err != nil {
		return nil, err
	}

	prefix := q.aliasPrefix(q.groupBy)
	weightCol := q.weightColumn()
	totals := accumulateSeries(rows, prefix, stat, weightCol)
	order := lo.Drop(orderSeries(totals, q.groupBy.OrderPolicy()), offset)
	if limit > 0 && len(order) > limit {
		order = order[:limit]
	}

	for _, name := range order {
		t := totals[name]
		res.Order = append(res.Order, name)
		res.SeriesIDs[name] = t.id
		res.ShortSeriesIDs[t.short] = t.id
		res.Values[name] = make([]float64, len(periods))
		res.Weights[name] = make([]float64, len(periods))
		res.SEM[name] = make([]float64, len(periods))
	}

	rows, err = q.store.Query(ctx, sql, params)
	if err != nil {
		return nil, err
	}
	fillBuckets(res, rows, bucket, q.timePrefix(), prefix, stat, weightCol)

	res.Elapsed = time.Since(started)
	return res, nil
}

// fillBuckets writes each row's value, weight and standard error into the
// bucket of its period. Rows of dropped series or unknown periods are
// skipped.
func fillBuckets(res *TimeseriesResult, rows []domain.Row, bucket map[int64]int, timePrefix, prefix, stat, weightCol string) {
	for _, row := range rows {
		_, name, _ := rowIdentity(row, prefix)
		values, ok := res.Values[name]
		if !ok {
			continue
		}
		periodID, ok := domain.AsInt64(row[timePrefix+"id"])
		if !ok {
			continue
		}
		i, ok := bucket[periodID]
		if !ok {
			continue
		}

		v, _ := domain.AsFloat64(row[stat])
		if math.IsNaN(v) {
			v = 0
		}
		sem, _ := domain.AsFloat64(row["sem_"+stat])
		values[i] = v
		res.Weights[name][i] = rowWeight(row, weightCol)
		res.SEM[name][i] = sem
	}
}

func (q *Query) timePrefix() string {
	if q.timeDim == nil {
		return ""
	}
	return q.timeDim.Name() + "_"
}
