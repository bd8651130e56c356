package query

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"duck-warehouse/internal/domain"
)

// Placeholders for rows without a dimension identity.
const (
	MissingID       int64 = -1
	MissingName           = "NA"
	OtherBucketID   int64 = -1
	OtherBucketName       = "Other"
)

// AggregateResult is the parallel-array reduction of an Aggregate query.
type AggregateResult struct {
	IDs        []any
	Names      []string
	ShortNames []string
	// Statistics lists the statistic aliases in selection order.
	Statistics []string
	Values     map[string][]float64
	SEM        map[string][]float64
	Weights    []float64

	SQL      string
	Elapsed  time.Duration
	RowCount int
}

// Len returns the number of emitted entries, including an Other bucket.
func (r *AggregateResult) Len() int { return len(r.IDs) }

// MarshalJSON emits the parallel arrays under their wire names: id, name,
// short_name, <stat>, sem_<stat> and weight, plus query metadata.
func (r *AggregateResult) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"id":         nonNil(r.IDs),
		"name":       nonNil(r.Names),
		"short_name": nonNil(r.ShortNames),
		"weight":     nonNil(r.Weights),
		"query":      r.SQL,
		"query_time": r.Elapsed.Seconds(),
		"count":      r.RowCount,
	}
	for _, s := range r.Statistics {
		out[s] = nonNil(r.Values[s])
		out["sem_"+s] = nonNil(r.SEM[s])
	}
	return json.Marshal(out)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func newAggregateResult(stats []string) *AggregateResult {
	r := &AggregateResult{
		Statistics: stats,
		Values:     make(map[string][]float64, len(stats)),
		SEM:        make(map[string][]float64, len(stats)),
	}
	for _, s := range stats {
		r.Values[s] = []float64{}
		r.SEM[s] = []float64{}
	}
	return r
}

// Execute runs an Aggregate query and folds the rows into parallel arrays.
// The first offset rows in display order are skipped. With limit > 0 and
// more remaining rows than limit, rows from index limit onward are summed
// into a trailing Other bucket.
func (q *Query) Execute(ctx context.Context, limit, offset int) (*AggregateResult, error) {
	if q.mode != ModeAggregate {
		return nil, domain.ErrValidation("Execute requires an aggregate query, got %s", q.mode)
	}

	sql := q.QueryString(0, 0, "")
	res := newAggregateResult(q.statNames())
	res.SQL = sql
	if q.Empty() {
		return res, nil
	}

	started := time.Now()
	rows, err := q.store.Query(ctx, sql, q.Parameters())
	if err != nil {
		return nil, err
	}
	res.Elapsed = time.Since(started)
	res.RowCount = len(rows)

	if q.mainStat != nil {
		sortRows(rows, q.mainStat.Name(), q.groupBy.OrderPolicy())
	}
	foldAggregate(res, lo.Drop(rows, offset), limit, q.weightColumn())
	return res, nil
}

func (q *Query) statNames() []string {
	names := make([]string, 0, len(q.stats))
	for _, s := range q.stats {
		names = append(names, s.Name())
	}
	return names
}

// weightColumn returns the row column weighting the main statistic, or ""
// when the query selects none.
func (q *Query) weightColumn() string {
	if q.mainStat == nil {
		return ""
	}
	w := q.mainStat.WeightStatName()
	if w == "" || !q.st.statKeys[w] {
		return ""
	}
	return w
}

// foldAggregate appends rows to res. Rows with index < limit are emitted
// as-is; the row at index == limit seeds the Other bucket and every later
// row adds to it. Other carries a plain sum of statistic values and
// weights, with standard error 0.
func foldAggregate(res *AggregateResult, rows []domain.Row, limit int, weightCol string) {
	var (
		other       map[string]float64
		otherWeight float64
	)

	for i, row := range rows {
		weight := rowWeight(row, weightCol)
		if limit > 0 && i >= limit {
			if other == nil {
				other = make(map[string]float64, len(res.Statistics))
			}
			for _, s := range res.Statistics {
				v, _ := domain.AsFloat64(row[s])
				other[s] += v
			}
			otherWeight += weight
			continue
		}

		id, name, short := rowIdentity(row, "")
		res.IDs = append(res.IDs, id)
		res.Names = append(res.Names, name)
		res.ShortNames = append(res.ShortNames, short)
		res.Weights = append(res.Weights, weight)
		for _, s := range res.Statistics {
			v, _ := domain.AsFloat64(row[s])
			sem, _ := domain.AsFloat64(row["sem_"+s])
			res.Values[s] = append(res.Values[s], v)
			res.SEM[s] = append(res.SEM[s], sem)
		}
	}

	if other == nil {
		return
	}
	res.IDs = append(res.IDs, OtherBucketID)
	res.Names = append(res.Names, OtherBucketName)
	res.ShortNames = append(res.ShortNames, OtherBucketName)
	res.Weights = append(res.Weights, otherWeight)
	for _, s := range res.Statistics {
		res.Values[s] = append(res.Values[s], other[s])
		res.SEM[s] = append(res.SEM[s], 0)
	}
}

// rowIdentity reads the id, name and short name columns under prefix,
// defaulting to (-1, "NA", "NA").
func rowIdentity(row domain.Row, prefix string) (any, string, string) {
	id := row[prefix+"id"]
	if id == nil {
		id = MissingID
	}
	name, ok := domain.AsString(row[prefix+"name"])
	if !ok {
		name = MissingName
	}
	short, ok := domain.AsString(row[prefix+"short_name"])
	if !ok {
		short = name
	}
	return id, name, short
}

// rowWeight returns the row's weight column, defaulting to 1 when the
// column is absent or not positive.
func rowWeight(row domain.Row, col string) float64 {
	if col == "" {
		return 1
	}
	w, ok := domain.AsFloat64(row[col])
	if !ok || w <= 0 {
		return 1
	}
	return w
}

// sortRows stably re-sorts rows for display under policy: by the statistic
// value for asc/desc (ties by name ascending), by name for numeric and
// lexicographic, and not at all for none.
func sortRows(rows []domain.Row, stat string, policy SortPolicy) {
	if policy == SortNone {
		return
	}
	keys := make([]sortKey, len(rows))
	for i, row := range rows {
		v, _ := domain.AsFloat64(row[stat])
		_, name, _ := rowIdentity(row, "")
		keys[i] = sortKey{value: v, name: name}
	}
	idx := make([]int, len(rows))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return keys[idx[a]].less(keys[idx[b]], policy)
	})

	sorted := make([]domain.Row, len(rows))
	for i, j := range idx {
		sorted[i] = rows[j]
	}
	copy(rows, sorted)
}

type sortKey struct {
	value float64
	name  string
}

func (k sortKey) less(o sortKey, policy SortPolicy) bool {
	switch policy {
	case SortNumeric:
		a, errA := strconv.ParseFloat(k.name, 64)
		b, errB := strconv.ParseFloat(o.name, 64)
		if errA == nil && errB == nil && a != b {
			return a < b
		}
		if (errA == nil) != (errB == nil) {
			return errA == nil
		}
		return k.name < o.name
	case SortLexicographic:
		return strings.ToLower(k.name) < strings.ToLower(o.name)
	case SortAscending:
		if k.value != o.value {
			return k.value < o.value
		}
		return k.name < o.name
	default:
		if k.value != o.value {
			return k.value > o.value
		}
		return k.name < o.name
	}
}
