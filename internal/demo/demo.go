// Package demo builds a small, deterministic Jobs warehouse: period
// dimension tables, per-unit aggregate fact tables, and the raw job records
// they are rolled up from.
package demo

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"strings"
	"time"
)

// Date range covered by the demo data.
const (
	StartDate = "2020-01-01"
	EndDate   = "2021-12-31"
)

// RealmName is the name of the demo realm.
const RealmName = "Jobs"

//go:embed realms/*.yaml
var realmFiles embed.FS

// Realms returns the demo realm definitions as YAML files.
func Realms() fs.FS {
	sub, err := fs.Sub(realmFiles, "realms")
	if err != nil {
		panic(err)
	}
	return sub
}

// Person is a row of the person dimension.
type Person struct {
	ID        int64
	LongName  string
	ShortName string
	OrderID   int64
}

// Resource is a row of the resource dimension.
type Resource struct {
	ID   int64
	Code string
	Name string
}

// People and Resources are the demo dimension rows.
var (
	People = []Person{
		{ID: 1, LongName: "Lovelace, Ada", ShortName: "alovelace", OrderID: 3},
		{ID: 2, LongName: "Hopper, Grace", ShortName: "ghopper", OrderID: 2},
		{ID: 3, LongName: "Babbage, Charles", ShortName: "cbabbage", OrderID: 1},
		{ID: 4, LongName: "Turing, Alan", ShortName: "aturing", OrderID: 4},
	}
	Resources = []Resource{
		{ID: 1, Code: "frontier", Name: "Frontier Cluster"},
		{ID: 2, Code: "aurora", Name: "Aurora Cluster"},
	}
)

var units = []string{"day", "month", "quarter", "year"}

var schema = []string{
	`CREATE TABLE person (id INTEGER PRIMARY KEY, long_name TEXT NOT NULL, short_name TEXT NOT NULL, order_id INTEGER NOT NULL)`,
	`CREATE TABLE resourcefact (id INTEGER PRIMARY KEY, code TEXT NOT NULL, name TEXT NOT NULL)`,
	`CREATE TABLE job_records (job_id INTEGER PRIMARY KEY, person_id INTEGER NOT NULL, resource_id INTEGER NOT NULL,
		end_time TEXT NOT NULL, cpu_hours DOUBLE NOT NULL, wait_hours DOUBLE NOT NULL)`,
}

func periodDDL(unit string) string {
	return fmt.Sprintf(`CREATE TABLE %[1]ss (id INTEGER PRIMARY KEY, %[1]s_start TEXT NOT NULL, %[1]s_end TEXT NOT NULL,
		%[1]s_start_ts BIGINT NOT NULL, %[1]s_middle_ts BIGINT NOT NULL)`, unit)
}

func factDDL(unit string) string {
	return fmt.Sprintf(`CREATE TABLE jobfact_by_%[1]s (%[1]s_id INTEGER NOT NULL, person_id INTEGER NOT NULL,
		resource_id INTEGER NOT NULL, job_count BIGINT NOT NULL, cpu_hours DOUBLE NOT NULL,
		wait_hours DOUBLE NOT NULL, max_cpu_hours DOUBLE NOT NULL)`, unit)
}

// Job is one raw job record.
type Job struct {
	ID         int64
	PersonID   int64
	ResourceID int64
	EndTime    time.Time
	CPUHours   float64
	WaitHours  float64
}

// Jobs generates the demo job records. The result is the same on every call.
func Jobs() []Job {
	start, _ := time.Parse("2006-01-02", StartDate)
	end, _ := time.Parse("2006-01-02", EndDate)

	var jobs []Job
	id := int64(1)
	for d, day := 0, start; !day.After(end); d, day = d+1, day.AddDate(0, 0, 1) {
		for _, p := range People {
			for _, r := range Resources {
				n := (d + 2*int(p.ID) + int(r.ID)) % 4
				for k := 0; k < n; k++ {
					jobs = append(jobs, Job{
						ID:         id,
						PersonID:   p.ID,
						ResourceID: r.ID,
						EndTime:    day.Add(time.Duration(8+k) * time.Hour),
						CPUHours:   float64(d%7+int(p.ID)*2+int(r.ID)) + 0.5*float64(k),
						WaitHours:  float64((d+k)%5) * 0.25,
					})
					id++
				}
			}
		}
	}
	return jobs
}

// PeriodID returns the id of the period of unit containing t. Ids increase
// with time: day 2020-02-01 is 2020032, month 2020-02 is 202002, quarter
// 2020Q1 is 20201, year 2020 is 2020.
func PeriodID(unit string, t time.Time) int64 {
	y := int64(t.Year())
	switch unit {
	case "day":
		return y*1000 + int64(t.YearDay())
	case "month":
		return y*100 + int64(t.Month())
	case "quarter":
		return y*10 + int64((t.Month()-1)/3+1)
	default:
		return y
	}
}

// PeriodStart returns the first day of the period of unit containing t.
func PeriodStart(unit string, t time.Time) time.Time {
	y, m, d := t.Date()
	switch unit {
	case "day":
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	case "month":
		return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
	case "quarter":
		return time.Date(y, ((m-1)/3)*3+1, 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(y, 1, 1, 0, 0, 0, 0, time.UTC)
	}
}

func periodEnd(unit string, start time.Time) time.Time {
	switch unit {
	case "day":
		return start
	case "month":
		return start.AddDate(0, 1, -1)
	case "quarter":
		return start.AddDate(0, 3, -1)
	default:
		return start.AddDate(1, 0, -1)
	}
}

type factKey struct {
	period   int64
	person   int64
	resource int64
}

type fact struct {
	jobs   int64
	cpu    float64
	wait   float64
	maxCPU float64
}

// Seed creates the demo warehouse tables in db and fills them. db may be a
// DuckDB or SQLite warehouse.
func Seed(ctx context.Context, db *sql.DB) error {
	ddl := append([]string(nil), schema...)
	for _, u := range units {
		ddl = append(ddl, periodDDL(u), factDDL(u))
	}
	for _, stmt := range ddl {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create demo schema: %w", err)
		}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	var rows [][]any
	for _, p := range People {
		rows = append(rows, []any{p.ID, p.LongName, p.ShortName, p.OrderID})
	}
	if err := insertRows(ctx, tx, "person", []string{"id", "long_name", "short_name", "order_id"}, rows); err != nil {
		return err
	}

	rows = rows[:0]
	for _, r := range Resources {
		rows = append(rows, []any{r.ID, r.Code, r.Name})
	}
	if err := insertRows(ctx, tx, "resourcefact", []string{"id", "code", "name"}, rows); err != nil {
		return err
	}

	jobs := Jobs()
	rows = rows[:0]
	for _, j := range jobs {
		rows = append(rows, []any{j.ID, j.PersonID, j.ResourceID, j.EndTime.Format("2006-01-02 15:04:05"), j.CPUHours, j.WaitHours})
	}
	if err := insertRows(ctx, tx, "job_records",
		[]string{"job_id", "person_id", "resource_id", "end_time", "cpu_hours", "wait_hours"}, rows); err != nil {
		return err
	}

	start, _ := time.Parse("2006-01-02", StartDate)
	end, _ := time.Parse("2006-01-02", EndDate)
	for _, u := range units {
		if err := seedPeriods(ctx, tx, u, start, end); err != nil {
			return err
		}
		if err := seedFacts(ctx, tx, u, jobs); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func seedPeriods(ctx context.Context, tx *sql.Tx, unit string, start, end time.Time) error {
	var rows [][]any
	for p := PeriodStart(unit, start); !p.After(end); {
		last := periodEnd(unit, p)
		next := last.AddDate(0, 0, 1)
		startTS := p.Unix()
		rows = append(rows, []any{
			PeriodID(unit, p),
			p.Format("2006-01-02"),
			last.Format("2006-01-02") + " 23:59:59",
			startTS,
			startTS + (next.Unix()-startTS)/2,
		})
		p = next
	}
	cols := []string{"id", unit + "_start", unit + "_end", unit + "_start_ts", unit + "_middle_ts"}
	return insertRows(ctx, tx, unit+"s", cols, rows)
}

func seedFacts(ctx context.Context, tx *sql.Tx, unit string, jobs []Job) error {
	facts := map[factKey]*fact{}
	var order []factKey
	for _, j := range jobs {
		k := factKey{period: PeriodID(unit, j.EndTime), person: j.PersonID, resource: j.ResourceID}
		f, ok := facts[k]
		if !ok {
			f = &fact{}
			facts[k] = f
			order = append(order, k)
		}
		f.jobs++
		f.cpu += j.CPUHours
		f.wait += j.WaitHours
		if j.CPUHours > f.maxCPU {
			f.maxCPU = j.CPUHours
		}
	}

	rows := make([][]any, 0, len(order))
	for _, k := range order {
		f := facts[k]
		rows = append(rows, []any{k.period, k.person, k.resource, f.jobs, f.cpu, f.wait, f.maxCPU})
	}
	cols := []string{unit + "_id", "person_id", "resource_id", "job_count", "cpu_hours", "wait_hours", "max_cpu_hours"}
	return insertRows(ctx, tx, "jobfact_by_"+unit, cols, rows)
}

const insertBatch = 200

func insertRows(ctx context.Context, tx *sql.Tx, table string, cols []string, rows [][]any) error {
	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ") + ")"
	for start := 0; start < len(rows); start += insertBatch {
		end := min(start+insertBatch, len(rows))
		batch := rows[start:end]

		values := make([]string, len(batch))
		args := make([]any, 0, len(batch)*len(cols))
		for i, r := range batch {
			values[i] = placeholder
			args = append(args, r...)
		}
		stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", table, strings.Join(cols, ", "), strings.Join(values, ", "))
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return fmt.Errorf("insert into %s: %w", table, err)
		}
	}
	return nil
}
