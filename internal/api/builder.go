package api

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/grundstein/gas/internal/schema"
)

// BuildObserver is notified about build events, e.g. to record metrics
type BuildObserver interface {
	LoadFailed(kind string)
	ScopeBuilt(host, version string, endpoints int)
}

// CollectionWrapper decorates a generated collection endpoint
type CollectionWrapper func(scope *VersionScope, collection string, ep Endpoint) Endpoint

// Builder composes a RouteTable from an API directory tree
type Builder struct {
	// FS is the file system the tree is read from (default: the OS)
	FS afero.Fs

	// Root is the API directory. An empty root yields an empty table.
	Root string

	// DataFile is the data file name, relative to each version directory,
	// or an absolute path shared by every version
	DataFile string

	// Layout selects multi- or single-tenant directory layouts
	Layout Layout

	// Loader resolves handler and data files
	Loader ModuleLoader

	// Logger receives build events (default: no-op)
	Logger *zap.Logger

	// Observer is optional
	Observer BuildObserver

	// WrapCollection is optional, e.g. to cache collection responses
	WrapCollection CollectionWrapper

	// Internal registers the /_schema and /_endpoints endpoints
	Internal bool
}

// loadedHandler is the result of loading one handler file
type loadedHandler struct {
	file     string
	route    Route
	endpoint Endpoint
	err      error
}

// Build walks the API directory and returns the route table.
// Load failures of single files are logged and skipped; only failing to
// read an existing root is an error.
func (b *Builder) Build(ctx context.Context) (*RouteTable, error) {
	start := time.Now()
	logger := b.logger()
	tb := NewTableBuilder(b.Layout)

	if b.Root == "" {
		logger.Info("no api directory configured, serving an empty api")
		return tb.Build(), nil
	}
	if b.Loader == nil {
		return nil, errors.New("route table builder requires a module loader")
	}

	dirs, err := b.subdirectories(b.Root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warn("api directory does not exist, serving an empty api", zap.String("dir", b.Root))
			return tb.Build(), nil
		}
		return nil, fmt.Errorf("failed to read api directory %s: %w", b.Root, err)
	}

	logger.Info("building route table",
		zap.String("dir", b.Root),
		zap.String("layout", b.Layout.String()))

	// branches never fail: a broken host or version is logged and skipped
	var scopes [][]*VersionScope
	var g errgroup.Group

	switch b.Layout {
	case SingleTenant:
		scopes = make([][]*VersionScope, 1)
		g.Go(func() error {
			scopes[0] = b.buildVersions(ctx, "", b.Root, dirs)
			return nil
		})
	default:
		scopes = make([][]*VersionScope, len(dirs))
		for i, host := range dirs {
			i, host := i, host
			tb.AddHost(host)
			g.Go(func() error {
				scopes[i] = b.buildHost(ctx, host)
				return nil
			})
		}
	}

	g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("route table build interrupted: %w", err)
	}

	count := 0
	for _, group := range scopes {
		for _, scope := range group {
			tb.Add(scope)
			count++
		}
	}

	table := tb.Build()
	logger.Info("route table built",
		zap.Int("hosts", len(table.Hosts())),
		zap.Int("scopes", count),
		zap.Duration("took", time.Since(start)))

	return table, nil
}

// buildHost builds every version of one host directory
func (b *Builder) buildHost(ctx context.Context, host string) []*VersionScope {
	hostDir := filepath.Join(b.Root, host)
	b.logger().Info("host discovered", zap.String("host", host))

	versions, err := b.subdirectories(hostDir)
	if err != nil {
		b.logger().Error("failed to read host directory", zap.String("dir", hostDir), zap.Error(err))
		return nil
	}
	return b.buildVersions(ctx, host, hostDir, versions)
}

// buildVersions builds the scopes of the version directories under dir concurrently
func (b *Builder) buildVersions(ctx context.Context, host, dir string, versions []string) []*VersionScope {
	scopes := make([]*VersionScope, len(versions))

	var g errgroup.Group
	for i, version := range versions {
		i, version := i, version
		g.Go(func() error {
			scopes[i] = b.buildScope(ctx, host, version, filepath.Join(dir, version))
			return nil
		})
	}
	g.Wait()

	return scopes
}

// buildScope loads the data file and handler files of one version directory
func (b *Builder) buildScope(ctx context.Context, host, version, dir string) *VersionScope {
	logger := b.logger().With(zap.String("host", host), zap.String("version", version))
	logger.Info("version discovered", zap.String("dir", dir))

	dataPath := b.dataPath(dir)
	data := b.loadData(ctx, logger, dataPath)
	scope := NewVersionScope(host, version, data)

	if data != nil && data.Schema != nil {
		names := make([]string, 0, len(data.Schema))
		for name := range data.Schema {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			items, ok := data.Collections[name]
			if !ok {
				logger.Warn("schema describes a collection without data", zap.String("collection", name))
			}

			var ep Endpoint = CollectionEndpoint(items, schema.CompileCollection(data.Schema[name]))
			if b.WrapCollection != nil {
				ep = b.WrapCollection(scope, name, ep)
			}
			scope.Handle("/"+name, ep, KindCollection, dataPath)
			logger.Debug("endpoint registered", zap.String("path", "/"+name), zap.String("kind", KindCollection.String()))
		}
	}

	if b.Internal {
		scope.Handle("/_schema", schemaEndpoint(), KindInternal, "")
		scope.Handle("/_endpoints", endpointsEndpoint(), KindInternal, "")
	}

	files, err := b.handlerFiles(dir, dataPath)
	if err != nil {
		logger.Error("failed to list handler files", zap.String("dir", dir), zap.Error(err))
	}

	loaded := make([]loadedHandler, len(files))
	var g errgroup.Group
	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			route := Route{Host: host, Version: version, Path: routePath(dir, file)}
			ep, err := b.Loader.LoadHandler(ctx, file, route)
			loaded[i] = loadedHandler{file: file, route: route, endpoint: ep, err: err}
			return nil
		})
	}
	g.Wait()

	// registration happens in file order after all loads finished, so
	// the explicit-wins rule does not depend on load completion order
	explicit := make(map[string]string)
	for _, h := range loaded {
		if h.err != nil {
			b.loadFailed(logger, &LoadError{Kind: "handler", Path: h.file, Err: h.err})
			continue
		}
		if first, dup := explicit[h.route.Path]; dup {
			logger.Warn("duplicate handler path, keeping the first file",
				zap.String("path", h.route.Path),
				zap.String("kept", first),
				zap.String("skipped", h.file))
			continue
		}
		if kind, ok := scope.Kind(h.route.Path); ok {
			logger.Debug("handler overrides endpoint",
				zap.String("path", h.route.Path),
				zap.String("replaced", kind.String()))
		}

		explicit[h.route.Path] = h.file
		scope.Handle(h.route.Path, h.endpoint, KindHandler, h.file)
		logger.Debug("endpoint registered", zap.String("path", h.route.Path), zap.String("kind", KindHandler.String()))
	}

	if b.Observer != nil {
		b.Observer.ScopeBuilt(host, version, len(scope.endpoints))
	}

	return scope
}

// loadData loads the data file at dataPath if it exists
func (b *Builder) loadData(ctx context.Context, logger *zap.Logger, dataPath string) *DataSource {
	if b.DataFile == "" {
		return nil
	}

	exists, err := afero.Exists(b.fs(), dataPath)
	if err != nil {
		b.loadFailed(logger, &LoadError{Kind: "data", Path: dataPath, Err: err})
		return nil
	}
	if !exists {
		return nil
	}

	data, err := b.Loader.LoadDataSource(ctx, dataPath)
	if err != nil {
		b.loadFailed(logger, &LoadError{Kind: "data", Path: dataPath, Err: err})
		return nil
	}
	return data
}

func (b *Builder) loadFailed(logger *zap.Logger, err *LoadError) {
	logger.Error("load error", zap.String("kind", err.Kind), zap.String("file", err.Path), zap.Error(err.Err))
	if b.Observer != nil {
		b.Observer.LoadFailed(err.Kind)
	}
}

// dataPath returns the data file location for a version directory
func (b *Builder) dataPath(dir string) string {
	if b.DataFile == "" {
		return ""
	}
	if filepath.IsAbs(b.DataFile) {
		return b.DataFile
	}
	return filepath.Join(dir, b.DataFile)
}

// subdirectories lists the visible directories directly under dir, sorted
func (b *Builder) subdirectories(dir string) ([]string, error) {
	entries, err := afero.ReadDir(b.fs(), dir)
	if err != nil {
		return nil, err
	}

	dirs := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() && !hidden(entry.Name()) {
			dirs = append(dirs, entry.Name())
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

// handlerFiles lists every visible file under dir except the data file
func (b *Builder) handlerFiles(dir, dataPath string) ([]string, error) {
	files := make([]string, 0)
	err := afero.Walk(b.fs(), dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if p != dir && hidden(info.Name()) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() || p == dataPath {
			return nil
		}
		files = append(files, p)
		return nil
	})
	return files, err
}

// routePath converts a file below dir into its URL path: the slash
// separated relative path without extension, prefixed with "/"
func routePath(dir, file string) string {
	rel, err := filepath.Rel(dir, file)
	if err != nil {
		rel = filepath.Base(file)
	}
	rel = filepath.ToSlash(rel)
	return "/" + strings.TrimSuffix(rel, path.Ext(rel))
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

func (b *Builder) fs() afero.Fs {
	if b.FS == nil {
		return afero.NewOsFs()
	}
	return b.FS
}

func (b *Builder) logger() *zap.Logger {
	if b.Logger == nil {
		return zap.NewNop()
	}
	return b.Logger
}
