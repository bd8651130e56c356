package analytics

import (
	"context"
	"strings"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"duck-warehouse/internal/domain"
	"duck-warehouse/internal/query"
)

// AggregateResponse is the result of an Aggregate request.
type AggregateResponse struct {
	RequestID       string                 `json:"request_id"`
	Realm           string                 `json:"realm"`
	GroupBy         string                 `json:"group_by"`
	AggregationUnit string                 `json:"aggregation_unit"`
	Total           int64                  `json:"total"`
	Restricted      bool                   `json:"restricted_by_role"`
	Filters         []string               `json:"filters,omitempty"`
	Data            *query.AggregateResult `json:"data"`
}

// TimeseriesResponse is the result of a Timeseries request.
type TimeseriesResponse struct {
	RequestID       string                  `json:"request_id"`
	Realm           string                  `json:"realm"`
	GroupBy         string                  `json:"group_by"`
	AggregationUnit string                  `json:"aggregation_unit"`
	Restricted      bool                    `json:"restricted_by_role"`
	Data            *query.TimeseriesResult `json:"data"`
}

// Explanation is the SQL a request compiles to, without executing it.
type Explanation struct {
	RequestID       string         `json:"request_id"`
	Mode            string         `json:"mode"`
	AggregationUnit string         `json:"aggregation_unit"`
	MinPeriodID     int64          `json:"min_period_id"`
	MaxPeriodID     int64          `json:"max_period_id"`
	Empty           bool           `json:"empty"`
	SQL             string         `json:"query"`
	CountSQL        string         `json:"count_query,omitempty"`
	Params          map[string]any `json:"params"`
}

// RawResponse is a page of unaggregated records.
type RawResponse struct {
	RequestID  string            `json:"request_id"`
	Realm      string            `json:"realm"`
	Columns    []query.RawColumn `json:"columns"`
	Records    []domain.Row      `json:"records"`
	Restricted bool              `json:"restricted_by_role"`
}

// ValuesRequest lists the values of one dimension.
type ValuesRequest struct {
	Realm     string
	Dimension string
	Hint      string
	Limit     int
	Offset    int
	// StartDate and EndDate bound the fact-table lookup used when the
	// caller's role restriction on the dimension is wide.
	StartDate string
	EndDate   string
}

// Aggregate executes an Aggregate request. The group count and the data
// query run concurrently.
func (s *Service) Aggregate(ctx context.Context, user domain.User, req Request) (*AggregateResponse, error) {
	requestID := domain.NewID()
	started := time.Now()

	c, err := s.compile(ctx, user, req, query.ModeAggregate)
	if err != nil {
		return nil, err
	}

	resp := &AggregateResponse{
		RequestID:       requestID,
		Realm:           c.realm.Name(),
		GroupBy:         c.query.GroupBy().Name(),
		AggregationUnit: c.unit,
		Restricted:      c.query.IsLimitedByRoleRestrictions(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := c.query.Count(gctx)
		resp.Total = n
		return err
	})
	g.Go(func() error {
		res, err := c.query.Execute(gctx, s.limit(req.Limit), req.Offset)
		resp.Data = res
		return err
	})
	g.Go(func() error {
		lines, err := s.describeFilters(gctx, c.realm, req.Filters)
		resp.Filters = lines
		return err
	})
	if err := g.Wait(); err != nil {
		s.logger.Warn("aggregate failed", "request_id", requestID, "realm", req.Realm, "error", err)
		return nil, err
	}

	s.logger.Info("aggregate executed",
		"request_id", requestID,
		"realm", resp.Realm,
		"group_by", resp.GroupBy,
		"statistic", req.Statistic,
		"rows", resp.Data.RowCount,
		"elapsed", time.Since(started),
	)
	return resp, nil
}

// Timeseries executes a Timeseries request for a single statistic.
func (s *Service) Timeseries(ctx context.Context, user domain.User, req Request) (*TimeseriesResponse, error) {
	requestID := domain.NewID()
	started := time.Now()

	c, err := s.compile(ctx, user, req, query.ModeTimeseries)
	if err != nil {
		return nil, err
	}
	res, err := c.query.ExecuteTimeseries(ctx, s.limit(req.Limit), req.Offset)
	if err != nil {
		s.logger.Warn("timeseries failed", "request_id", requestID, "realm", req.Realm, "error", err)
		return nil, err
	}

	s.logger.Info("timeseries executed",
		"request_id", requestID,
		"realm", c.realm.Name(),
		"group_by", c.query.GroupBy().Name(),
		"statistic", res.Statistic,
		"rows", len(res.Order),
		"elapsed", time.Since(started),
	)
	return &TimeseriesResponse{
		RequestID:       requestID,
		Realm:           c.realm.Name(),
		GroupBy:         c.query.GroupBy().Name(),
		AggregationUnit: c.unit,
		Restricted:      c.query.IsLimitedByRoleRestrictions(),
		Data:            res,
	}, nil
}

// Count returns the number of groups an Aggregate request produces.
func (s *Service) Count(ctx context.Context, user domain.User, req Request) (int64, error) {
	c, err := s.compile(ctx, user, req, query.ModeAggregate)
	if err != nil {
		return 0, err
	}
	return c.query.Count(ctx)
}

// Explain compiles a request and returns its SQL and bound parameters
// without executing the data query.
func (s *Service) Explain(ctx context.Context, user domain.User, req Request, mode query.Mode) (*Explanation, error) {
	c, err := s.compile(ctx, user, req, mode)
	if err != nil {
		return nil, err
	}
	minID, maxID := c.query.PeriodRange()
	ex := &Explanation{
		RequestID:       domain.NewID(),
		Mode:            mode.String(),
		AggregationUnit: c.unit,
		MinPeriodID:     minID,
		MaxPeriodID:     maxID,
		Empty:           c.query.Empty(),
		SQL:             c.query.QueryString(0, 0, ""),
		Params:          c.query.Parameters(),
	}
	if mode == query.ModeAggregate {
		ex.CountSQL = c.query.CountQueryString()
	}
	s.logger.Debug("query explained", "request_id", ex.RequestID, "realm", c.realm.Name(), "mode", ex.Mode)
	return ex, nil
}

// Raw returns a page of unaggregated records within the request's date range.
func (s *Service) Raw(ctx context.Context, user domain.User, req Request) (*RawResponse, error) {
	requestID := domain.NewID()
	started := time.Now()

	r, err := s.realms.Get(ctx, req.Realm)
	if err != nil {
		return nil, err
	}
	q, err := query.NewRaw(s.store, r, req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}
	params, err := filterParameters(r, req.Filters, "")
	if err != nil {
		return nil, err
	}
	if err := q.AddParameters(params); err != nil {
		return nil, err
	}
	if err := s.applyRoles(ctx, q, user); err != nil {
		return nil, err
	}

	records, err := q.Records(ctx, s.limit(req.Limit), req.Offset)
	if err != nil {
		s.logger.Warn("raw query failed", "request_id", requestID, "realm", req.Realm, "error", err)
		return nil, err
	}
	s.logger.Info("raw query executed",
		"request_id", requestID,
		"realm", r.Name(),
		"rows", len(records),
		"elapsed", time.Since(started),
	)
	return &RawResponse{
		RequestID:  requestID,
		Realm:      r.Name(),
		Columns:    q.ColumnDocumentation(),
		Records:    records,
		Restricted: q.IsLimitedByRoleRestrictions(),
	}, nil
}

// DimensionValues lists the values of a dimension the user may see. A
// restricted role narrows the lookup to its permitted ids; a wide
// restriction is answered from the fact table over the request's date range.
func (s *Service) DimensionValues(ctx context.Context, user domain.User, req ValuesRequest) ([]query.Value, error) {
	r, err := s.realms.Get(ctx, req.Realm)
	if err != nil {
		return nil, err
	}
	dim, err := r.Dimension(req.Dimension)
	if err != nil {
		return nil, err
	}
	roles, err := s.rolesFor(ctx, user, r.Name())
	if err != nil {
		return nil, err
	}
	union := query.RoleUnion(r.Name(), roles, user)

	opts := query.ValuesOptions{Hint: req.Hint, Limit: req.Limit, Offset: req.Offset}
	permitted, restricted := union[dim.Name()]
	if !restricted {
		return dim.PossibleValues(ctx, s.store, opts)
	}
	if !union.Wide(dim.Name()) {
		opts.IDs = permitted
		return dim.PossibleValues(ctx, s.store, opts)
	}

	if req.StartDate == "" || req.EndDate == "" {
		return nil, domain.ErrValidation("start and end dates are required to list %q values under a wide role restriction", dim.Name())
	}
	c, err := s.compile(ctx, user, Request{
		Realm:     r.Name(),
		GroupBy:   dim.Name(),
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
	}, query.ModeAggregate)
	if err != nil {
		return nil, err
	}
	values, err := c.query.DimensionValues(ctx)
	if err != nil {
		return nil, err
	}
	return pageValues(values, opts), nil
}

// pageValues applies a hint and limit/offset to values already fetched.
func pageValues(values []query.Value, opts query.ValuesOptions) []query.Value {
	if hint := strings.ToLower(strings.TrimSpace(opts.Hint)); hint != "" {
		values = lo.Filter(values, func(v query.Value, _ int) bool {
			return strings.Contains(strings.ToLower(v.Name), hint) || strings.Contains(strings.ToLower(v.ShortName), hint)
		})
	}
	if opts.Offset > 0 {
		values = lo.Drop(values, opts.Offset)
	}
	if opts.Limit > 0 && len(values) > opts.Limit {
		values = values[:opts.Limit]
	}
	return values
}
