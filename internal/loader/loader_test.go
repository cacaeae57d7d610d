package loader

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grundstein/gas/internal/api"
	"github.com/grundstein/gas/internal/schema"
)

func memLoader(t *testing.T, files map[string]string) *FileLoader {
	t.Helper()
	fs := afero.NewMemMapFs()
	for path, content := range files {
		require.NoError(t, fs.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0644))
	}
	return New(fs, NewRegistry(), nil)
}

func loadAndServe(t *testing.T, l *FileLoader, path string) *api.Response {
	t.Helper()
	ep, err := l.LoadHandler(context.Background(), path, api.Route{Version: "v1", Path: "/x"})
	require.NoError(t, err)
	resp, err := ep.Serve(&api.RequestContext{Context: context.Background()})
	require.NoError(t, err)
	return resp
}

func TestLoadHandler_StaticDocuments(t *testing.T) {
	l := memLoader(t, map[string]string{
		"/api/v1/text.yaml":      "code: 201\nbody: created\nhead:\n  X-Custom: yes\n",
		"/api/v1/object.json":    `{"body": {"a": 1}}`,
		"/api/v1/forced.yml":     "body: plain\njson: true\n",
		"/api/v1/whole.json":     `[{"slug": "a"}]`,
		"/api/v1/emptybody.json": `{"code": 204}`,
	})

	resp := loadAndServe(t, l, "/api/v1/text.yaml")
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "created", string(resp.Body))
	assert.False(t, resp.JSON)
	assert.Equal(t, "yes", resp.Headers.Get("X-Custom"))

	resp = loadAndServe(t, l, "/api/v1/object.json")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, resp.JSON)
	assert.JSONEq(t, `{"a":1}`, string(resp.Body))

	resp = loadAndServe(t, l, "/api/v1/forced.yml")
	assert.True(t, resp.JSON)
	assert.Equal(t, `"plain"`, string(resp.Body))

	resp = loadAndServe(t, l, "/api/v1/whole.json")
	assert.True(t, resp.JSON)
	assert.JSONEq(t, `[{"slug":"a"}]`, string(resp.Body))

	resp = loadAndServe(t, l, "/api/v1/emptybody.json")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Empty(t, resp.Body)
}

func TestLoadHandler_FreshHeadersPerRequest(t *testing.T) {
	l := memLoader(t, map[string]string{"/api/v1/a.yaml": "body: a\nhead:\n  X-A: 1\n"})

	ep, err := l.LoadHandler(context.Background(), "/api/v1/a.yaml", api.Route{Version: "v1", Path: "/a"})
	require.NoError(t, err)

	first, err := ep.Serve(&api.RequestContext{})
	require.NoError(t, err)
	first.Headers.Set("X-A", "mutated")

	second, err := ep.Serve(&api.RequestContext{})
	require.NoError(t, err)
	assert.Equal(t, "1", second.Headers.Get("X-A"))
}

func TestLoadHandler_Errors(t *testing.T) {
	l := memLoader(t, map[string]string{
		"/api/v1/broken.json": `{"body": `,
		"/api/v1/empty.yaml":  "",
		"/api/v1/notes.txt":   "hello",
		"/api/v1/script.sh":   "#!/bin/sh\necho hi\n",
	})

	for _, path := range []string{"/api/v1/broken.json", "/api/v1/empty.yaml", "/api/v1/notes.txt", "/api/v1/missing.json"} {
		t.Run(filepath.Base(path), func(t *testing.T) {
			_, err := l.LoadHandler(context.Background(), path, api.Route{Version: "v1", Path: "/x"})
			assert.Error(t, err)
		})
	}

	_, err := l.LoadHandler(context.Background(), "/api/v1/notes.txt", api.Route{Version: "v1", Path: "/notes"})
	assert.True(t, errors.Is(err, ErrUnsupportedHandler))

	// scripts only run from the os file system
	_, err = l.LoadHandler(context.Background(), "/api/v1/script.sh", api.Route{Version: "v1", Path: "/script"})
	assert.Error(t, err)
}

func TestLoadHandler_RegistryWins(t *testing.T) {
	l := memLoader(t, map[string]string{"/api/localhost/v1/hello.json": `{"body": "file"}`})
	l.Registry.MustRegister("localhost/v1/hello", api.EndpointFunc(func(rc *api.RequestContext) (*api.Response, error) {
		return api.Text(http.StatusOK, "registered"), nil
	}))

	ep, err := l.LoadHandler(context.Background(), "/api/localhost/v1/hello.json", api.Route{Host: "localhost", Version: "v1", Path: "/hello"})
	require.NoError(t, err)
	resp, err := ep.Serve(&api.RequestContext{})
	require.NoError(t, err)
	assert.Equal(t, "registered", string(resp.Body))
}

func TestLoadDataSource(t *testing.T) {
	l := memLoader(t, map[string]string{
		"/api/v1/__getData__.yaml": `
db:
  table:
    - slug: item1
      bool: true
      tags: [a, b]
    - slug: item2
      bool: false
  single:
    slug: only
  none:
schema:
  table:
    slug: {type: slug}
    bool: {type: boolean}
    tags: {type: array, itemType: string}
`,
	})

	data, err := l.LoadDataSource(context.Background(), "/api/v1/__getData__.yaml")
	require.NoError(t, err)

	require.Len(t, data.Collections["table"], 2)
	assert.Equal(t, "item1", data.Collections["table"][0]["slug"])
	assert.Equal(t, true, data.Collections["table"][0]["bool"])
	assert.Equal(t, []any{"a", "b"}, data.Collections["table"][0]["tags"])

	assert.Equal(t, []api.Record{{"slug": "only"}}, data.Collections["single"])
	assert.Empty(t, data.Collections["none"])

	require.Contains(t, data.Schema, "table")
	names := make([]string, 0)
	for _, f := range data.Schema["table"] {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"slug", "bool", "tags"}, names)
	assert.Equal(t, schema.KindArray, data.Schema["table"][2].Kind)
}

func TestLoadDataSource_JSON(t *testing.T) {
	l := memLoader(t, map[string]string{
		"/api/v1/data.json": `{"db": {"people": [{"name": "Ada"}]}, "schema": {"people": {"name": {"type": "string", "multiple": true}}}}`,
	})

	data, err := l.LoadDataSource(context.Background(), "/api/v1/data.json")
	require.NoError(t, err)
	assert.Equal(t, "Ada", data.Collections["people"][0]["name"])
	assert.True(t, data.Schema["people"][0].Multiple)
}

func TestLoadDataSource_Errors(t *testing.T) {
	tests := map[string]string{
		"scalar collection": "db:\n  table: 42\n",
		"scalar item":       "db:\n  table: [1, 2]\n",
		"invalid yaml":      "db: [",
		"schema violation":  "schema:\n  table:\n    tags: {type: array}\n",
		"unknown driver":    "source:\n  driver: oracle\n  dsn: x\n",
		"missing dsn":       "source:\n  driver: sqlite3\n",
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			l := memLoader(t, map[string]string{"/data.yaml": content})
			_, err := l.LoadDataSource(context.Background(), "/data.yaml")
			assert.Error(t, err)
		})
	}
}

func TestLoadDataSource_NoCollections(t *testing.T) {
	l := memLoader(t, map[string]string{"/data.yaml": "schema: {}\n"})

	data, err := l.LoadDataSource(context.Background(), "/data.yaml")
	require.NoError(t, err)
	assert.NotNil(t, data.Collections)
	assert.Empty(t, data.Collections)
}
