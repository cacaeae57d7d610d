package loader

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grundstein/gas/internal/api"
)

func TestSQLSource_Query(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT slug, title, published FROM posts").
		WillReturnRows(sqlmock.NewRows([]string{"slug", "title", "published"}).
			AddRow("hello", []byte("Hello World"), true).
			AddRow("draft", "Draft", false))
	mock.ExpectQuery("SELECT name FROM tags").
		WillReturnRows(sqlmock.NewRows([]string{"name"}))

	src := &SQLSource{
		Driver: "postgres",
		DSN:    "postgres://localhost/gas",
		Collections: map[string]string{
			"tags":  "SELECT name FROM tags",
			"posts": "SELECT slug, title, published FROM posts",
		},
	}

	collections, err := src.Query(context.Background(), db)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, []api.Record{
		{"slug": "hello", "title": "Hello World", "published": true},
		{"slug": "draft", "title": "Draft", "published": false},
	}, collections["posts"])
	assert.NotNil(t, collections["tags"])
	assert.Empty(t, collections["tags"])
}

func TestSQLSource_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT").WillReturnError(errors.New("relation does not exist"))

	src := &SQLSource{Driver: "pgx", DSN: "x", Collections: map[string]string{"posts": "SELECT * FROM posts"}}
	_, err = src.Query(context.Background(), db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "collection posts")
}

func TestSQLSource_LoadUsesOpener(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	mock.ExpectQuery("SELECT id FROM items").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectClose()

	var gotDriver, gotDSN string
	open := func(driver, dsn string) (*sql.DB, error) {
		gotDriver, gotDSN = driver, dsn
		return db, nil
	}

	src := &SQLSource{Driver: "pgx", DSN: "postgres://db/gas", Collections: map[string]string{"items": "SELECT id FROM items"}}
	collections, err := src.Load(context.Background(), open)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, "pgx", gotDriver)
	assert.Equal(t, "postgres://db/gas", gotDSN)
	assert.Equal(t, []api.Record{{"id": int64(7)}}, collections["items"])
}

func TestLoadDataSource_SQLiteSource(t *testing.T) {
	dir := t.TempDir()

	db, err := sql.Open("sqlite3", filepath.Join(dir, "data.db"))
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE items (slug TEXT, name TEXT, active BOOLEAN)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO items VALUES ('a', 'Alpha', 1), ('b', 'Beta', 0)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	dataFile := filepath.Join(dir, "__getData__.yaml")
	require.NoError(t, os.WriteFile(dataFile, []byte(`
db:
  items:
    - slug: overridden
  static:
    - slug: kept
schema:
  items:
    slug: {type: slug}
source:
  driver: sqlite3
  dsn: data.db
  collections:
    items: SELECT slug, name FROM items ORDER BY slug
`), 0644))

	l := New(afero.NewOsFs(), nil, nil)
	data, err := l.LoadDataSource(context.Background(), dataFile)
	require.NoError(t, err)

	assert.Equal(t, []api.Record{
		{"slug": "a", "name": "Alpha"},
		{"slug": "b", "name": "Beta"},
	}, data.Collections["items"])
	assert.Equal(t, []api.Record{{"slug": "kept"}}, data.Collections["static"])
}

func TestLoadDataSource_SQLFailure(t *testing.T) {
	l := memLoader(t, map[string]string{"/data.yaml": `
source:
  driver: postgres
  dsn: postgres://nowhere/gas
  collections:
    items: SELECT 1
`})
	l.SQL = func(driver, dsn string) (*sql.DB, error) {
		return nil, errors.New("connection refused")
	}

	_, err := l.LoadDataSource(context.Background(), "/data.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestResolveDSN(t *testing.T) {
	tests := []struct {
		driver, dsn, want string
	}{
		{"sqlite3", "data.db", "/api/v1/data.db"},
		{"sqlite3", "file:data.db?mode=ro", "file:/api/v1/data.db?mode=ro"},
		{"sqlite3", "/var/lib/gas.db", "/var/lib/gas.db"},
		{"sqlite3", ":memory:", ":memory:"},
		{"sqlite3", "file::memory:?cache=shared", "file::memory:?cache=shared"},
		{"postgres", "postgres://localhost/gas", "postgres://localhost/gas"},
	}

	for _, tt := range tests {
		t.Run(tt.dsn, func(t *testing.T) {
			assert.Equal(t, tt.want, resolveDSN(tt.driver, tt.dsn, "/api/v1"))
		})
	}
}
