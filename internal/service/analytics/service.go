// Package analytics answers analytical requests against realms: it resolves
// the realm and aggregation unit, applies request filters and the caller's
// role restrictions, and executes the compiled query.
package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/samber/lo"

	"duck-warehouse/internal/domain"
	"duck-warehouse/internal/query"
	"duck-warehouse/internal/realm"
	"duck-warehouse/internal/timeunit"
)

// DefaultLimit applies when neither the request nor the service names a limit.
const DefaultLimit = 10

// Request is one analytical request against a realm.
type Request struct {
	Realm     string
	GroupBy   string
	Statistic string
	// Period is timeunit.Auto or a unit name; empty means auto.
	Period    string
	StartDate string
	EndDate   string
	// Filters carries "<dimension>" and "<dimension>_filter" id lists.
	Filters map[string]string
	Limit   int
	Offset  int
}

// Service composes realm resolution, time-unit derivation and query
// execution.
type Service struct {
	realms       *realm.Cache
	store        domain.Datastore
	roles        domain.RoleRestrictionSource
	defaultLimit int
	logger       *slog.Logger
}

// NewService creates a new analytics Service. roles may be nil, in which case
// no role restrictions apply.
func NewService(
	realms *realm.Cache,
	store domain.Datastore,
	roles domain.RoleRestrictionSource,
	defaultLimit int,
	logger *slog.Logger,
) *Service {
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		realms:       realms,
		store:        store,
		roles:        roles,
		defaultLimit: defaultLimit,
		logger:       logger.With("component", "analytics"),
	}
}

func (s *Service) limit(n int) int {
	if n <= 0 {
		return s.defaultLimit
	}
	return n
}

// aggregationUnit picks the unit for req. Under auto, a time-unit group-by
// fixes the unit; otherwise the date range decides, clamped to the finest
// unit the realm supports.
func aggregationUnit(r *realm.Realm, req Request) (string, error) {
	period := strings.TrimSpace(req.Period)
	if period == "" {
		period = timeunit.Auto
	}
	if strings.EqualFold(period, timeunit.Auto) && timeunit.IsUnitName(req.GroupBy) {
		return strings.ToLower(req.GroupBy), nil
	}
	return timeunit.DeriveName(period, req.StartDate, req.EndDate, r.MinUnit())
}

// filterParameters pulls the dimension filters named in filters. Fact tables
// carry only the period id of their own unit, so a period filter must name
// unit. Raw queries pass unit "" and skip period dimensions; the raw table
// carries no period ids.
func filterParameters(r *realm.Realm, filters map[string]string, unit string) ([]query.Parameter, error) {
	if len(filters) == 0 {
		return nil, nil
	}
	var params []query.Parameter
	for _, d := range r.Dimensions(true) {
		pulled := d.PullQueryParameters(filters)
		if timeunit.IsUnitName(d.Name()) {
			if unit == "" {
				continue
			}
			if len(pulled) > 0 && !strings.EqualFold(d.Name(), unit) {
				return nil, domain.ErrUnavailableGranularity(r.Name(), d.Name())
			}
		}
		params = append(params, pulled...)
	}
	return params, nil
}

// FilterDescriptions returns a human-readable line per filtered dimension,
// e.g. "User = Hopper, Grace".
func (s *Service) FilterDescriptions(ctx context.Context, realmName string, filters map[string]string) ([]string, error) {
	r, err := s.realms.Get(ctx, realmName)
	if err != nil {
		return nil, err
	}
	return s.describeFilters(ctx, r, filters)
}

func (s *Service) describeFilters(ctx context.Context, r *realm.Realm, filters map[string]string) ([]string, error) {
	if len(filters) == 0 {
		return nil, nil
	}
	var out []string
	for _, d := range r.Dimensions(true) {
		lines, err := d.PullQueryParameterDescriptions(ctx, s.store, filters)
		if err != nil {
			return nil, fmt.Errorf("describe %s filter: %w", d.Name(), err)
		}
		out = append(out, lines...)
	}
	return out, nil
}

// rolesFor loads the restrictions of every role the user holds in realmName.
func (s *Service) rolesFor(ctx context.Context, user domain.User, realmName string) ([]query.Role, error) {
	if s.roles == nil || len(user.Roles) == 0 {
		return nil, nil
	}
	names := lo.Uniq(user.Roles)
	roles := make([]query.Role, 0, len(names))
	for _, name := range names {
		rs, err := s.roles.ListRestrictions(ctx, name, realmName)
		if err != nil {
			return nil, fmt.Errorf("load restrictions for role %q: %w", name, err)
		}
		roles = append(roles, query.Role{Name: name, Restrictions: rs})
	}
	return roles, nil
}

func (s *Service) applyRoles(ctx context.Context, q *query.Query, user domain.User) error {
	roles, err := s.rolesFor(ctx, user, q.Realm().Name())
	if err != nil {
		return err
	}
	if len(roles) == 0 {
		return nil
	}
	_, err = q.SetMultipleRoleParameters(roles, user)
	return err
}

// compiled is a configured query with the context it was built in.
type compiled struct {
	realm *realm.Realm
	query *query.Query
	unit  string
}

func (s *Service) compile(ctx context.Context, user domain.User, req Request, mode query.Mode) (*compiled, error) {
	r, err := s.realms.Get(ctx, req.Realm)
	if err != nil {
		return nil, err
	}
	unit, err := aggregationUnit(r, req)
	if err != nil {
		return nil, err
	}

	params, err := filterParameters(r, req.Filters, unit)
	if err != nil {
		return nil, err
	}

	opts := query.Options{
		AggregationUnit: unit,
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
		GroupBy:         req.GroupBy,
		Statistic:       req.Statistic,
		Parameters:      params,
	}

	var q *query.Query
	switch mode {
	case query.ModeTimeseries:
		q, err = query.NewTimeseries(ctx, s.store, r, opts)
	case query.ModeAggregate:
		q, err = query.NewAggregate(ctx, s.store, r, opts)
	default:
		return nil, domain.ErrValidation("unsupported query mode %s", mode)
	}
	if err != nil {
		return nil, err
	}
	if err := s.applyRoles(ctx, q, user); err != nil {
		return nil, err
	}
	return &compiled{realm: r, query: q, unit: unit}, nil
}
