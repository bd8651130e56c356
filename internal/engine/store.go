// Package engine executes analytical SQL against the warehouse database.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"duck-warehouse/internal/domain"
)

// Supported warehouse drivers.
const (
	DriverDuckDB = "duckdb"
	DriverSQLite = "sqlite3"
)

// Compile-time check.
var _ domain.Datastore = (*Store)(nil)

// Store implements domain.Datastore over a *sql.DB. Statements use named
// ":name" placeholders which are bound positionally at execution.
type Store struct {
	db     *sql.DB
	driver string
}

// NewStore wraps an open warehouse connection.
func NewStore(db *sql.DB, driver string) *Store {
	return &Store{db: db, driver: driver}
}

// Open opens the warehouse at path with driver. An empty DuckDB path opens
// an in-memory database.
func Open(driver, path string) (*Store, error) {
	switch driver {
	case DriverDuckDB:
		db, err := OpenDuckDB(path)
		if err != nil {
			return nil, err
		}
		return NewStore(db, driver), nil
	case DriverSQLite:
		db, err := sql.Open(DriverSQLite, path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite warehouse: %w", err)
		}
		if err := ping(db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ping sqlite warehouse: %w", err)
		}
		return NewStore(db, driver), nil
	default:
		return nil, domain.ErrValidation("unsupported warehouse driver %q", driver)
	}
}

// OpenDuckDB opens a DuckDB database file, or an in-memory database when
// path is empty.
func OpenDuckDB(path string) (*sql.DB, error) {
	db, err := sql.Open(DriverDuckDB, path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	if err := ping(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}
	return db, nil
}

func ping(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

// DB returns the underlying connection pool.
func (s *Store) DB() *sql.DB { return s.db }

// Driver returns the driver name the store was opened with.
func (s *Store) Driver() string { return s.driver }

// Close closes the underlying pool.
func (s *Store) Close() error { return s.db.Close() }

// Query binds params into query and returns every row as a column map.
// Failures are reported as *domain.DatastoreError.
func (s *Store) Query(ctx context.Context, query string, params map[string]any) ([]domain.Row, error) {
	stmt, args, err := BindNamed(s.driver, query, params)
	if err != nil {
		return nil, domain.ErrDatastore(query, err)
	}

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, domain.ErrDatastore(stmt, err)
	}
	defer rows.Close() //nolint:errcheck

	out, err := scanRows(rows)
	if err != nil {
		return nil, domain.ErrDatastore(stmt, err)
	}
	return out, nil
}

// Exec runs a statement without result rows.
func (s *Store) Exec(ctx context.Context, stmt string, params map[string]any) error {
	bound, args, err := BindNamed(s.driver, stmt, params)
	if err != nil {
		return domain.ErrDatastore(stmt, err)
	}
	if _, err := s.db.ExecContext(ctx, bound, args...); err != nil {
		return domain.ErrDatastore(bound, err)
	}
	return nil
}

// BindNamed rewrites ":name" placeholders into the positional form of
// driver and returns the matching argument list. A literal colon is written
// "::". A placeholder without a value is an error.
func BindNamed(driver, query string, params map[string]any) (string, []any, error) {
	if !strings.Contains(query, ":") {
		return query, nil, nil
	}
	if params == nil {
		params = map[string]any{}
	}
	return sqlx.BindNamed(sqlx.BindType(driver), query, params)
}

func scanRows(rows *sql.Rows) ([]domain.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []domain.Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(domain.Row, len(cols))
		for i, c := range cols {
			row[c] = normalize(vals[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// normalize maps driver-specific scan types onto plain Go values.
func normalize(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case *big.Int:
		if x.IsInt64() {
			return x.Int64()
		}
		f, _ := new(big.Float).SetInt(x).Float64()
		return f
	case interface{ Float64() float64 }:
		return x.Float64()
	default:
		return v
	}
}
