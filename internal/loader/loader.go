// Package loader resolves the files of an API directory into endpoints and
// data sources. Handler files are served by a compiled-in handler from the
// Registry, as a static response document, or by running an executable.
package loader

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/grundstein/gas/internal/api"
)

// ErrUnsupportedHandler is returned for handler files that are neither
// registered, a response document, nor executable
var ErrUnsupportedHandler = errors.New("unsupported handler file")

// FileLoader implements api.ModuleLoader
type FileLoader struct {
	// FS is the file system files are read from (default: the OS).
	// Executable handlers are only run from the OS file system.
	FS afero.Fs

	// Registry holds compiled-in handlers (optional)
	Registry *Registry

	// Logger is optional
	Logger *zap.Logger

	// SQL opens the database of SQL-backed collections (default: sql.Open)
	SQL Opener
}

var _ api.ModuleLoader = (*FileLoader)(nil)

// New creates a file loader reading from fs
func New(fs afero.Fs, registry *Registry, logger *zap.Logger) *FileLoader {
	return &FileLoader{FS: fs, Registry: registry, Logger: logger}
}

// LoadHandler resolves the handler file at path
func (l *FileLoader) LoadHandler(ctx context.Context, path string, route api.Route) (api.Endpoint, error) {
	if ep, ok := l.Registry.Lookup(route.Key()); ok {
		l.logger().Debug("using registered handler", zap.String("route", route.Key()), zap.String("file", path))
		return ep, nil
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
		content, err := afero.ReadFile(l.fs(), path)
		if err != nil {
			return nil, fmt.Errorf("failed to read response document: %w", err)
		}
		doc, err := parseResponseDocument(content)
		if err != nil {
			return nil, fmt.Errorf("invalid response document: %w", err)
		}
		if _, err := doc.response(); err != nil {
			return nil, fmt.Errorf("invalid response document: %w", err)
		}
		return staticEndpoint(doc), nil
	}

	info, err := l.fs().Stat(path)
	if err != nil {
		return nil, err
	}
	executable := info.Mode().Perm()&0111 != 0
	if filepath.Ext(path) == ".sh" || executable {
		if _, ok := l.fs().(*afero.OsFs); !ok {
			return nil, fmt.Errorf("executable handler %s: only supported on the os file system", path)
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, err
		}
		return &execEndpoint{path: abs, route: route, shell: !executable, logger: l.logger()}, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrUnsupportedHandler, filepath.Base(path))
}

// LoadDataSource decodes the data file at path and runs its SQL source
func (l *FileLoader) LoadDataSource(ctx context.Context, path string) (*api.DataSource, error) {
	content, err := afero.ReadFile(l.fs(), path)
	if err != nil {
		return nil, fmt.Errorf("failed to read data file: %w", err)
	}

	doc, err := decodeDataDocument(content)
	if err != nil {
		return nil, err
	}

	data := &api.DataSource{Collections: doc.collections, Schema: doc.Schema}
	if data.Collections == nil {
		data.Collections = make(api.Collections)
	}

	if doc.Source != nil {
		src := *doc.Source
		src.DSN = resolveDSN(src.Driver, src.DSN, filepath.Dir(path))

		collections, err := src.Load(ctx, l.SQL)
		if err != nil {
			return nil, err
		}
		for name, items := range collections {
			data.Collections[name] = items
		}
		l.logger().Debug("sql source loaded",
			zap.String("file", path),
			zap.String("driver", src.Driver),
			zap.Int("collections", len(collections)))
	}

	return data, nil
}

func (l *FileLoader) fs() afero.Fs {
	if l.FS == nil {
		return afero.NewOsFs()
	}
	return l.FS
}

func (l *FileLoader) logger() *zap.Logger {
	if l.Logger == nil {
		return zap.NewNop()
	}
	return l.Logger
}
