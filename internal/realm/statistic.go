package realm

import (
	"fmt"
	"strings"

	"duck-warehouse/internal/domain"
	"duck-warehouse/internal/query"
)

// AliasPlaceholder in a configured formula or condition is replaced with the
// realm's aggregate table alias.
const AliasPlaceholder = "${agg}"

type statistic struct {
	cfg       domain.StatisticConfig
	realm     string
	formula   string
	sem       string
	condition *query.WhereCondition
}

var _ query.Statistic = (*statistic)(nil)

func (s *statistic) Name() string       { return s.cfg.Name }
func (s *statistic) Realm() string      { return s.realm }
func (s *statistic) Formula() string    { return s.formula }
func (s *statistic) SEMFormula() string { return s.sem }
func (s *statistic) Unit() string       { return s.cfg.Unit }

func (s *statistic) Description() string { return s.cfg.Description }

func (s *statistic) Label(withUnit bool) string {
	label := s.cfg.Label
	if label == "" {
		label = s.cfg.Name
	}
	return query.LabelWithUnit(label, s.cfg.Unit, withUnit)
}

func (s *statistic) Decimals(dataMin, dataMax *float64) int {
	return query.AdaptiveDecimals(s.cfg.Decimals, dataMin, dataMax)
}

func (s *statistic) WeightStatName() string { return s.cfg.WeightStat }

func (s *statistic) AdditionalWhereCondition() *query.WhereCondition {
	if s.condition == nil {
		return nil
	}
	c := *s.condition
	return &c
}

// statisticFormula builds the SQL aggregate for a configured statistic class.
type statisticFormula func(cfg domain.StatisticConfig, col func(string) string) (string, error)

func sumFormula(cfg domain.StatisticConfig, col func(string) string) (string, error) {
	return fmt.Sprintf("COALESCE(SUM(%s), 0)", col(cfg.Column)), nil
}

func averageFormula(cfg domain.StatisticConfig, col func(string) string) (string, error) {
	if cfg.WeightColumn == "" {
		return fmt.Sprintf("AVG(1.0 * %s)", col(cfg.Column)), nil
	}
	return fmt.Sprintf("SUM(1.0 * %s * %s) / NULLIF(SUM(%s), 0)",
		col(cfg.Column), col(cfg.WeightColumn), col(cfg.WeightColumn)), nil
}

func minFormula(cfg domain.StatisticConfig, col func(string) string) (string, error) {
	return fmt.Sprintf("MIN(%s)", col(cfg.Column)), nil
}

func maxFormula(cfg domain.StatisticConfig, col func(string) string) (string, error) {
	return fmt.Sprintf("MAX(%s)", col(cfg.Column)), nil
}

func rawFormula(cfg domain.StatisticConfig, _ func(string) string) (string, error) {
	if strings.TrimSpace(cfg.Formula) == "" {
		return "", domain.ErrValidation("statistic %q requires a formula", cfg.Name)
	}
	return cfg.Formula, nil
}

func newStatistic(cfg domain.StatisticConfig, rc *domain.RealmConfig, build statisticFormula) (query.Statistic, error) {
	alias := rc.AggregateAlias
	expand := func(expr string) string {
		return strings.ReplaceAll(expr, AliasPlaceholder, alias)
	}
	col := func(c string) string {
		if strings.ContainsAny(c, ".( ") {
			return expand(c)
		}
		return alias + "." + c
	}

	formula, err := build(cfg, col)
	if err != nil {
		return nil, err
	}

	s := &statistic{
		cfg:     cfg,
		realm:   rc.Name,
		formula: expand(formula),
		sem:     expand(cfg.SEMFormula),
	}
	if c := cfg.Condition; c != nil {
		s.condition = &query.WhereCondition{
			Left:     expand(c.Left),
			Operator: strings.ToUpper(strings.TrimSpace(c.Operator)),
			Right:    expand(c.Right),
		}
	}
	return s, nil
}
