package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"duck-warehouse/internal/domain"
)

// Compile-time check.
var _ domain.RealmConfigSource = (*RealmConfigRepo)(nil)

// RealmConfigRepo stores realm definitions in the metastore.
type RealmConfigRepo struct {
	db *sql.DB
}

// NewRealmConfigRepo creates a new RealmConfigRepo.
func NewRealmConfigRepo(db *sql.DB) *RealmConfigRepo {
	return &RealmConfigRepo{db: db}
}

// Save validates cfg and replaces any stored definition with the same name.
func (r *RealmConfigRepo) Save(ctx context.Context, cfg domain.RealmConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	var rawTable string
	if cfg.RawTable != nil {
		b, err := yaml.Marshal(cfg.RawTable)
		if err != nil {
			return fmt.Errorf("encode raw table: %w", err)
		}
		rawTable = string(b)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM realms WHERE name = ?`, cfg.Name); err != nil {
		return mapDBError(err)
	}

	realmID := domain.NewID()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO realms (id, name, category, datasource, aggregate_schema, aggregate_table_prefix,
			aggregate_alias, dimension_schema, raw_table)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		realmID, cfg.Name, cfg.Category, cfg.Datasource, cfg.AggregateSchema, cfg.AggregateTablePrefix,
		cfg.AggregateAlias, cfg.DimensionSchema, rawTable); err != nil {
		return mapDBError(err)
	}

	for i, g := range cfg.GroupBys {
		chart, err := yaml.Marshal(g.Chart)
		if err != nil {
			return fmt.Errorf("encode chart defaults for %q: %w", g.Name, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO realm_group_bys (realm_id, position, name, class, visible, label, description,
				schema_name, table_name, alias, id_column, name_column, short_name_column, order_column,
				fact_column, statistics, order_policy, chart)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			realmID, i, g.Name, g.Class, boolToInt(g.IsVisible()), g.Label, g.Description,
			g.Schema, g.Table, g.Alias, g.IDColumn, g.NameColumn, g.ShortNameColumn, g.OrderColumn,
			g.FactColumn, strings.Join(g.Statistics, ","), g.OrderPolicy, string(chart)); err != nil {
			return mapDBError(err)
		}
	}

	for i, s := range cfg.Statistics {
		var cond domain.ConditionConfig
		if s.Condition != nil {
			cond = *s.Condition
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO realm_statistics (realm_id, position, name, class, label, unit, description,
				column_name, weight_column, formula, sem_formula, decimals, weight_stat,
				condition_left, condition_operator, condition_right)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			realmID, i, s.Name, s.Class, s.Label, s.Unit, s.Description,
			s.Column, s.WeightColumn, s.Formula, s.SEMFormula, s.Decimals, s.WeightStat,
			cond.Left, cond.Operator, cond.Right); err != nil {
			return mapDBError(err)
		}
	}

	return tx.Commit()
}

// LoadRealm reads the named realm definition.
func (r *RealmConfigRepo) LoadRealm(ctx context.Context, name string) (*domain.RealmConfig, error) {
	var (
		cfg      domain.RealmConfig
		realmID  string
		rawTable string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, category, datasource, aggregate_schema, aggregate_table_prefix,
			aggregate_alias, dimension_schema, raw_table
		FROM realms WHERE name = ?`, name).Scan(
		&realmID, &cfg.Name, &cfg.Category, &cfg.Datasource, &cfg.AggregateSchema,
		&cfg.AggregateTablePrefix, &cfg.AggregateAlias, &cfg.DimensionSchema, &rawTable)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound("realm %q not found", name)
	}
	if err != nil {
		return nil, err
	}

	if rawTable != "" {
		var rt domain.RawTableConfig
		if err := yaml.Unmarshal([]byte(rawTable), &rt); err != nil {
			return nil, fmt.Errorf("decode raw table of realm %q: %w", name, err)
		}
		cfg.RawTable = &rt
	}

	if cfg.GroupBys, err = r.loadGroupBys(ctx, realmID); err != nil {
		return nil, err
	}
	if cfg.Statistics, err = r.loadStatistics(ctx, realmID); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r *RealmConfigRepo) loadGroupBys(ctx context.Context, realmID string) ([]domain.GroupByConfig, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT name, class, visible, label, description, schema_name, table_name, alias, id_column,
			name_column, short_name_column, order_column, fact_column, statistics, order_policy, chart
		FROM realm_group_bys WHERE realm_id = ? ORDER BY position`, realmID)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var out []domain.GroupByConfig
	for rows.Next() {
		var (
			g            domain.GroupByConfig
			visible      int64
			stats, chart string
		)
		if err := rows.Scan(&g.Name, &g.Class, &visible, &g.Label, &g.Description, &g.Schema, &g.Table,
			&g.Alias, &g.IDColumn, &g.NameColumn, &g.ShortNameColumn, &g.OrderColumn, &g.FactColumn,
			&stats, &g.OrderPolicy, &chart); err != nil {
			return nil, err
		}
		v := visible != 0
		g.Visible = &v
		g.Statistics = splitList(stats)
		if chart != "" {
			if err := yaml.Unmarshal([]byte(chart), &g.Chart); err != nil {
				return nil, fmt.Errorf("decode chart defaults of %q: %w", g.Name, err)
			}
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *RealmConfigRepo) loadStatistics(ctx context.Context, realmID string) ([]domain.StatisticConfig, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT name, class, label, unit, description, column_name, weight_column, formula, sem_formula,
			decimals, weight_stat, condition_left, condition_operator, condition_right
		FROM realm_statistics WHERE realm_id = ? ORDER BY position`, realmID)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var out []domain.StatisticConfig
	for rows.Next() {
		var (
			s    domain.StatisticConfig
			cond domain.ConditionConfig
		)
		if err := rows.Scan(&s.Name, &s.Class, &s.Label, &s.Unit, &s.Description, &s.Column,
			&s.WeightColumn, &s.Formula, &s.SEMFormula, &s.Decimals, &s.WeightStat,
			&cond.Left, &cond.Operator, &cond.Right); err != nil {
			return nil, err
		}
		if cond.Left != "" {
			s.Condition = &cond
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListRealms returns the stored realm names in name order.
func (r *RealmConfigRepo) ListRealms(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name FROM realms ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// Delete removes the named realm definition.
func (r *RealmConfigRepo) Delete(ctx context.Context, name string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM realms WHERE name = ?`, name)
	if err != nil {
		return mapDBError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound("realm %q not found", name)
	}
	return nil
}
