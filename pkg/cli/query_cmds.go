package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"duck-warehouse/internal/app"
	"duck-warehouse/internal/query"
	"duck-warehouse/internal/service/analytics"
	"duck-warehouse/internal/timeunit"
)

// addRequestFlags binds the flags shared by the query commands to req.
func addRequestFlags(fs *pflag.FlagSet, req *analytics.Request) {
	fs.StringVar(&req.Realm, "realm", "", "Realm to query (required)")
	fs.StringVar(&req.GroupBy, "group-by", "none", "Dimension to group by")
	fs.StringVar(&req.Statistic, "statistic", "", "Statistic to compute; all permitted statistics when empty")
	fs.StringVar(&req.Period, "period", timeunit.Auto, "Aggregation unit (day, month, quarter, year, auto)")
	fs.StringVar(&req.StartDate, "start", "", "Start date, YYYY-MM-DD (required)")
	fs.StringVar(&req.EndDate, "end", "", "End date, YYYY-MM-DD (required)")
	fs.StringToStringVar(&req.Filters, "filter", nil, "Filter as dimension=id[,id...] (repeatable)")
}

// addPageFlags binds --limit and --offset for the commands that return
// entries.
func addPageFlags(fs *pflag.FlagSet, req *analytics.Request) {
	fs.IntVar(&req.Limit, "limit", 0, "Maximum number of entries; the configured default when 0")
	fs.IntVar(&req.Offset, "offset", 0, "Number of entries to skip")
}

func markRequired(cmd *cobra.Command, names ...string) {
	for _, n := range names {
		_ = cmd.MarkFlagRequired(n)
	}
}

func newAggregateCmd(opts *rootOptions) *cobra.Command {
	var req analytics.Request
	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Aggregate statistics over a date range, grouped by a dimension",
		Example: `  warehouse aggregate --realm Jobs --group-by person --statistic job_count --start 2020-01-01 --end 2021-12-31
  warehouse aggregate --realm Jobs --group-by resource --user-role pi --user-attr person_id=2 -o table`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				resp, err := a.Services.Analytics.Aggregate(ctx, opts.user(), req)
				if err != nil {
					return err
				}
				return render(cmd, resp, func(w io.Writer) error {
					return printAggregateTable(w, resp.Data)
				})
			})
		},
	}
	addRequestFlags(cmd.Flags(), &req)
	addPageFlags(cmd.Flags(), &req)
	markRequired(cmd, "realm", "start", "end")
	return cmd
}

func printAggregateTable(w io.Writer, res *query.AggregateResult) error {
	header := append([]string{"ID", "NAME"}, res.Statistics...)
	rows := make([][]string, 0, res.Len())
	for i := range res.Len() {
		row := []string{fmt.Sprint(res.IDs[i]), res.Names[i]}
		for _, s := range res.Statistics {
			row = append(row, formatFloat(res.Values[s][i]))
		}
		rows = append(rows, row)
	}
	return printTable(w, header, rows)
}

func newTimeseriesCmd(opts *rootOptions) *cobra.Command {
	var req analytics.Request
	cmd := &cobra.Command{
		Use:   "timeseries",
		Short: "Compute one statistic per dimension value and time bucket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				resp, err := a.Services.Analytics.Timeseries(ctx, opts.user(), req)
				if err != nil {
					return err
				}
				return render(cmd, resp, func(w io.Writer) error {
					return printTimeseriesTable(w, resp.Data)
				})
			})
		},
	}
	addRequestFlags(cmd.Flags(), &req)
	addPageFlags(cmd.Flags(), &req)
	markRequired(cmd, "realm", "statistic", "start", "end")
	return cmd
}

// printTimeseriesTable prints one row per bucket and one column per series.
func printTimeseriesTable(w io.Writer, res *query.TimeseriesResult) error {
	header := append([]string{"PERIOD"}, res.Order...)
	rows := make([][]string, 0, len(res.Labels))
	for i, label := range res.Labels {
		row := []string{time.Unix(label, 0).UTC().Format(time.DateOnly)}
		for _, name := range res.Order {
			row = append(row, formatFloat(res.Values[name][i]))
		}
		rows = append(rows, row)
	}
	return printTable(w, header, rows)
}

func newCountCmd(opts *rootOptions) *cobra.Command {
	var req analytics.Request
	cmd := &cobra.Command{
		Use:   "count",
		Short: "Count the distinct groups an aggregate request would return",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				n, err := a.Services.Analytics.Count(ctx, opts.user(), req)
				if err != nil {
					return err
				}
				return render(cmd, map[string]int64{"count": n}, func(w io.Writer) error {
					_, err := fmt.Fprintln(w, strconv.FormatInt(n, 10))
					return err
				})
			})
		},
	}
	addRequestFlags(cmd.Flags(), &req)
	markRequired(cmd, "realm", "start", "end")
	return cmd
}

func newExplainCmd(opts *rootOptions) *cobra.Command {
	var (
		req        analytics.Request
		timeseries bool
	)
	cmd := &cobra.Command{
		Use:   "explain",
		Short: "Print the SQL a request compiles to without running it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mode := query.ModeAggregate
			if timeseries {
				mode = query.ModeTimeseries
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				ex, err := a.Services.Analytics.Explain(ctx, opts.user(), req, mode)
				if err != nil {
					return err
				}
				return render(cmd, ex, func(w io.Writer) error {
					_, err := fmt.Fprintln(w, ex.SQL)
					return err
				})
			})
		},
	}
	addRequestFlags(cmd.Flags(), &req)
	cmd.Flags().BoolVar(&timeseries, "timeseries", false, "Explain the timeseries form of the request")
	markRequired(cmd, "realm", "start", "end")
	return cmd
}

func newRawCmd(opts *rootOptions) *cobra.Command {
	var req analytics.Request
	cmd := &cobra.Command{
		Use:   "raw",
		Short: "List the unaggregated records behind a realm",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				resp, err := a.Services.Analytics.Raw(ctx, opts.user(), req)
				if err != nil {
					return err
				}
				return render(cmd, resp, func(w io.Writer) error {
					return printRawTable(w, resp)
				})
			})
		},
	}
	addRequestFlags(cmd.Flags(), &req)
	addPageFlags(cmd.Flags(), &req)
	markRequired(cmd, "realm", "start", "end")
	return cmd
}

func printRawTable(w io.Writer, resp *analytics.RawResponse) error {
	header := make([]string, 0, len(resp.Columns))
	for _, c := range resp.Columns {
		header = append(header, c.Name)
	}
	rows := make([][]string, 0, len(resp.Records))
	for _, rec := range resp.Records {
		row := make([]string, 0, len(header))
		for _, h := range header {
			row = append(row, fmt.Sprint(rec[h]))
		}
		rows = append(rows, row)
	}
	return printTable(w, header, rows)
}

func newValuesCmd(opts *rootOptions) *cobra.Command {
	var req analytics.ValuesRequest
	cmd := &cobra.Command{
		Use:   "values",
		Short: "List the values of a dimension visible to the user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				values, err := a.Services.Analytics.DimensionValues(ctx, opts.user(), req)
				if err != nil {
					return err
				}
				return render(cmd, values, func(w io.Writer) error {
					rows := make([][]string, 0, len(values))
					for _, v := range values {
						rows = append(rows, []string{fmt.Sprint(v.ID), v.ShortName, v.Name})
					}
					return printTable(w, []string{"ID", "SHORT NAME", "NAME"}, rows)
				})
			})
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&req.Realm, "realm", "", "Realm of the dimension (required)")
	fs.StringVar(&req.Dimension, "dimension", "", "Dimension to list (required)")
	fs.StringVar(&req.Hint, "hint", "", "Case-insensitive substring matched against names")
	fs.IntVar(&req.Limit, "limit", 0, "Maximum number of values; unlimited when 0")
	fs.IntVar(&req.Offset, "offset", 0, "Number of values to skip")
	fs.StringVar(&req.StartDate, "start", "", "Start date bounding a fact-table lookup")
	fs.StringVar(&req.EndDate, "end", "", "End date bounding a fact-table lookup")
	markRequired(cmd, "realm", "dimension")
	return cmd
}
