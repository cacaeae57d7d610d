package loader

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	// database/sql drivers selectable with source.driver
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/grundstein/gas/internal/api"
)

// Opener opens a database connection pool
type Opener func(driver, dsn string) (*sql.DB, error)

// supportedDrivers are the drivers linked into the binary
var supportedDrivers = map[string]bool{
	"sqlite3":  true,
	"pgx":      true,
	"postgres": true,
}

// SQLSource loads collections from SQL queries, one query per collection.
// Every row becomes a record keyed by column name.
type SQLSource struct {
	Driver      string            `yaml:"driver"`
	DSN         string            `yaml:"dsn"`
	Collections map[string]string `yaml:"collections"`
}

func (s *SQLSource) validate() error {
	if !supportedDrivers[s.Driver] {
		return fmt.Errorf("unsupported driver %q (expected sqlite3, pgx or postgres)", s.Driver)
	}
	if s.DSN == "" {
		return errors.New("dsn is required")
	}
	for name, q := range s.Collections {
		if strings.TrimSpace(q) == "" {
			return fmt.Errorf("collection %s: empty query", name)
		}
	}
	return nil
}

// Load opens the database, runs every query, and closes it again
func (s *SQLSource) Load(ctx context.Context, open Opener) (api.Collections, error) {
	if open == nil {
		open = sql.Open
	}

	db, err := open(s.Driver, s.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", s.Driver, err)
	}
	defer db.Close()

	return s.Query(ctx, db)
}

// Query runs the collection queries against db in collection name order
func (s *SQLSource) Query(ctx context.Context, db *sql.DB) (api.Collections, error) {
	names := make([]string, 0, len(s.Collections))
	for name := range s.Collections {
		names = append(names, name)
	}
	sort.Strings(names)

	collections := make(api.Collections, len(names))
	for _, name := range names {
		items, err := queryRecords(ctx, db, s.Collections[name])
		if err != nil {
			return nil, fmt.Errorf("collection %s: %w", name, err)
		}
		collections[name] = items
	}
	return collections, nil
}

func queryRecords(ctx context.Context, db *sql.DB, query string) ([]api.Record, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	items := make([]api.Record, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		record := make(api.Record, len(columns))
		for i, column := range columns {
			if b, ok := values[i].([]byte); ok {
				record[column] = string(b)
				continue
			}
			record[column] = values[i]
		}
		items = append(items, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// resolveDSN makes relative sqlite file paths relative to dir
func resolveDSN(driver, dsn, dir string) string {
	if driver != "sqlite3" || dsn == "" || strings.HasPrefix(dsn, ":memory:") {
		return dsn
	}

	file := strings.TrimPrefix(dsn, "file:")
	if file == "" || filepath.IsAbs(file) || strings.HasPrefix(file, ":memory:") {
		return dsn
	}

	resolved := filepath.Join(dir, file)
	if strings.HasPrefix(dsn, "file:") {
		return "file:" + resolved
	}
	return resolved
}
