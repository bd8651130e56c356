package timeunit

import (
	"context"
	"fmt"

	"duck-warehouse/internal/domain"
)

// EmptyPeriodID marks a date range with no overlapping periods.
const EmptyPeriodID int64 = -1

// Period is one row of a period-dimension table.
type Period struct {
	ID       int64
	StartTS  int64
	MiddleTS int64
}

// ResolveDateRangeIDs maps [start, end] onto the smallest and largest period
// ids present in this unit's aggregate table. It returns (-1, -1) when no
// period overlaps the range; callers treat that as an empty result.
func (u *Unit) ResolveDateRangeIDs(ctx context.Context, store domain.Datastore, periodSchema, start, end string) (int64, int64, error) {
	if _, _, err := ParseRange(start, end); err != nil {
		return EmptyPeriodID, EmptyPeriodID, err
	}

	q := fmt.Sprintf(
		"SELECT COALESCE(MIN(p.%[1]s_id), -1) AS min_id, COALESCE(MAX(p.%[1]s_id), -1) AS max_id "+
			"FROM %[2]s p JOIN %[3]s u ON u.id = p.%[1]s_id "+
			"WHERE u.%[1]s_start <= :subst0 AND u.%[1]s_end > :subst1",
		u.name, u.FactTable(), u.PeriodTable(periodSchema))

	rows, err := store.Query(ctx, q, map[string]any{"subst0": end, "subst1": start})
	if err != nil {
		return EmptyPeriodID, EmptyPeriodID, err
	}
	if len(rows) == 0 {
		return EmptyPeriodID, EmptyPeriodID, nil
	}

	minID, okMin := domain.AsInt64(rows[0]["min_id"])
	maxID, okMax := domain.AsInt64(rows[0]["max_id"])
	if !okMin || !okMax {
		return EmptyPeriodID, EmptyPeriodID, nil
	}
	return minID, maxID, nil
}

// Periods returns the periods with ids in [minID, maxID] ordered by id.
func (u *Unit) Periods(ctx context.Context, store domain.Datastore, periodSchema string, minID, maxID int64) ([]Period, error) {
	if minID == EmptyPeriodID && maxID == EmptyPeriodID {
		return nil, nil
	}

	q := fmt.Sprintf(
		"SELECT id, %[1]s_start_ts AS start_ts, %[1]s_middle_ts AS middle_ts FROM %[2]s "+
			"WHERE id BETWEEN :subst0 AND :subst1 ORDER BY id",
		u.name, u.PeriodTable(periodSchema))

	rows, err := store.Query(ctx, q, map[string]any{"subst0": minID, "subst1": maxID})
	if err != nil {
		return nil, err
	}

	periods := make([]Period, 0, len(rows))
	for _, row := range rows {
		id, ok := domain.AsInt64(row["id"])
		if !ok {
			continue
		}
		startTS, _ := domain.AsInt64(row["start_ts"])
		middleTS, _ := domain.AsInt64(row["middle_ts"])
		periods = append(periods, Period{ID: id, StartTS: startTS, MiddleTS: middleTS})
	}
	return periods, nil
}
