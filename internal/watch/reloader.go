package watch

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/grundstein/gas/internal/api"
	"github.com/grundstein/gas/internal/web/cache"
)

// TableObserver is told about the outcome of every build
type TableObserver interface {
	TableBuilt(err error)
}

// Reloader builds route tables and publishes them to a Holder
type Reloader struct {
	builder  *api.Builder
	holder   *api.Holder
	cache    cache.Cache
	server   *ReloadServer
	observer TableObserver
	logger   *zap.Logger
	debounce time.Duration

	mu      sync.Mutex
	watcher *FileWatcher
}

// Option configures a Reloader
type Option func(*Reloader)

// WithCache clears c whenever a new table is published
func WithCache(c cache.Cache) Option {
	return func(r *Reloader) { r.cache = c }
}

// WithReloadServer notifies clients of rs about rebuilds
func WithReloadServer(rs *ReloadServer) Option {
	return func(r *Reloader) { r.server = rs }
}

// WithObserver reports build results to o
func WithObserver(o TableObserver) Option {
	return func(r *Reloader) { r.observer = o }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(r *Reloader) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithDebounce sets how long file changes are collected before a rebuild
func WithDebounce(d time.Duration) Option {
	return func(r *Reloader) { r.debounce = d }
}

// NewReloader creates a reloader publishing tables of builder to holder
func NewReloader(builder *api.Builder, holder *api.Holder, opts ...Option) *Reloader {
	r := &Reloader{
		builder:  builder,
		holder:   holder,
		logger:   zap.NewNop(),
		debounce: DefaultDebounce,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reload builds a new table and publishes it. When the build fails the
// current table stays in place and the error is returned. Reloads never
// run concurrently.
func (r *Reloader) Reload(ctx context.Context, files []string) (*api.RouteTable, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	if r.server != nil {
		r.server.NotifyBuilding(files)
	}

	table, err := r.builder.Build(ctx)
	if r.observer != nil {
		r.observer.TableBuilt(err)
	}
	if err != nil {
		r.logger.Error("route table build failed, keeping previous table", zap.Error(err))
		if r.server != nil {
			r.server.NotifyError(err)
		}
		return nil, err
	}

	r.holder.Store(table)

	if r.cache != nil {
		if err := r.cache.Clear(ctx); err != nil {
			r.logger.Warn("failed to clear response cache", zap.Error(err))
		}
	}

	endpoints := countEndpoints(table)
	elapsed := time.Since(start)
	r.logger.Info("route table built",
		zap.Strings("hosts", table.Hosts()),
		zap.Int("endpoints", endpoints),
		zap.Duration("duration", elapsed))

	if r.server != nil {
		r.server.NotifySuccess(elapsed, endpoints)
	}
	return table, nil
}

// Watch rebuilds the table whenever a file below the api root changes
func (r *Reloader) Watch() error {
	fw, err := NewFileWatcher(r.builder.Root, r.debounce, r.logger, func(files []string) {
		r.logger.Info("api files changed", zap.Strings("files", files))
		r.Reload(context.Background(), files)
	})
	if err != nil {
		return err
	}
	if err := fw.Start(); err != nil {
		fw.Stop()
		return err
	}

	r.mu.Lock()
	r.watcher = fw
	r.mu.Unlock()
	return nil
}

// Close stops watching
func (r *Reloader) Close() error {
	r.mu.Lock()
	fw := r.watcher
	r.watcher = nil
	r.mu.Unlock()

	if fw == nil {
		return nil
	}
	return fw.Stop()
}

func countEndpoints(table *api.RouteTable) int {
	n := 0
	for _, scope := range table.Scopes() {
		n += len(scope.Paths())
	}
	return n
}
