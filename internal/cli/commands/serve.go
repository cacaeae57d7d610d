package commands

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/fatih/color"
	"github.com/go-chi/chi/v5"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/grundstein/gas/internal/api"
	"github.com/grundstein/gas/internal/cli/config"
	"github.com/grundstein/gas/internal/cli/ui"
	"github.com/grundstein/gas/internal/loader"
	"github.com/grundstein/gas/internal/logging"
	"github.com/grundstein/gas/internal/metrics"
	"github.com/grundstein/gas/internal/watch"
	"github.com/grundstein/gas/internal/web/cache"
	"github.com/grundstein/gas/internal/web/dispatch"
	"github.com/grundstein/gas/internal/web/profiling"
	"github.com/grundstein/gas/internal/web/request"
	"github.com/grundstein/gas/internal/web/router"
	"github.com/grundstein/gas/internal/web/server"
)

// gateway is the wired request path: builder, holder, dispatcher, router
type gateway struct {
	cfg      *config.Config
	logger   *zap.Logger
	cache    cache.Cache
	metrics  *metrics.Metrics
	holder   *api.Holder
	reloader *watch.Reloader
	reloads  *watch.ReloadServer
	handler  http.Handler
}

// newBuilder creates the route table builder for cfg
func newBuilder(cfg *config.Config, registry *loader.Registry, logger *zap.Logger) *api.Builder {
	fs := afero.NewOsFs()
	return &api.Builder{
		FS:       fs,
		Root:     cfg.API.Dir,
		DataFile: cfg.API.DataFile,
		Layout:   cfg.Layout(),
		Loader:   loader.New(fs, registry, logger),
		Logger:   logger,
		Internal: true,
	}
}

// newGateway wires every component and builds the first route table
func newGateway(ctx context.Context, cfg *config.Config, registry *loader.Registry, logger *zap.Logger) (*gateway, error) {
	c, err := cache.New(cfg.CacheOptions())
	if err != nil {
		return nil, err
	}

	g := &gateway{
		cfg:     cfg,
		logger:  logger,
		cache:   c,
		metrics: metrics.New(),
		holder:  api.NewHolder(nil),
	}

	builder := newBuilder(cfg, registry, logger)
	builder.Observer = g.metrics
	if c != nil {
		builder.WrapCollection = cache.Wrapper(c, cfg.Cache.TTL, logger)
	}

	opts := []watch.Option{
		watch.WithObserver(g.metrics),
		watch.WithLogger(logger),
	}
	if c != nil {
		opts = append(opts, watch.WithCache(c))
	}
	if cfg.API.Watch {
		g.reloads = watch.NewReloadServer(logger)
		opts = append(opts, watch.WithReloadServer(g.reloads))
	}
	g.reloader = watch.NewReloader(builder, g.holder, opts...)

	if _, err := g.reloader.Reload(ctx, nil); err != nil {
		g.close()
		return nil, fmt.Errorf("failed to build routes: %w", err)
	}

	d := dispatch.New(g.holder,
		dispatch.WithLogger(logger),
		dispatch.WithCORS(cfg.CORSPolicy()),
		dispatch.WithParser(request.NewParserWithMaxSize(cfg.Server.MaxBodyBytes)),
		dispatch.WithObserver(g.metrics))

	routerOpts := router.Options{
		Dispatcher: d,
		Logger:     logger,
		Compress:   cfg.Server.Compress,
	}
	if g.reloads != nil {
		routerOpts.Reload = g.reloads
	}
	g.handler = router.New(routerOpts)

	return g, nil
}

// servers creates the api server and, when configured, the metrics server
func (g *gateway) servers() ([]*server.Server, error) {
	apiServer, err := server.New(&server.Config{
		Name:         "api",
		Address:      g.cfg.Address(),
		Handler:      g.handler,
		CertDir:      g.cfg.Server.CertDir,
		ReadTimeout:  g.cfg.Server.ReadTimeout,
		WriteTimeout: g.cfg.Server.WriteTimeout,
		IdleTimeout:  g.cfg.Server.IdleTimeout,
		Logger:       g.logger,
	})
	if err != nil {
		return nil, err
	}
	servers := []*server.Server{apiServer}

	if g.cfg.Metrics.Address != "" {
		mux := chi.NewRouter()
		mux.Handle(g.cfg.Metrics.Path, g.metrics.Handler())
		if g.cfg.Metrics.Pprof {
			profiling.RegisterRoutes(mux, profiling.DefaultConfig())
		}

		metricsServer, err := server.New(&server.Config{
			Name:    "metrics",
			Address: g.cfg.Metrics.Address,
			Handler: mux,
			Logger:  g.logger,
		})
		if err != nil {
			return nil, err
		}
		servers = append(servers, metricsServer)
	}

	return servers, nil
}

// registerHooks stops the watcher, then the reload server, then the cache
func (g *gateway) registerHooks(gs *server.GracefulShutdown) {
	gs.RegisterHook("watcher", func(ctx context.Context) error {
		return g.reloader.Close()
	})
	if g.reloads != nil {
		gs.RegisterHook("reload server", func(ctx context.Context) error {
			g.reloads.Close()
			return nil
		})
	}
	if g.cache != nil {
		gs.RegisterHook("cache", func(ctx context.Context) error {
			return g.cache.Close()
		})
	}
}

// close releases what newGateway opened when serving never starts
func (g *gateway) close() {
	if g.reloader != nil {
		g.reloader.Close()
	}
	if g.reloads != nil {
		g.reloads.Close()
	}
	if g.cache != nil {
		g.cache.Close()
	}
}

func runServe(cmd *cobra.Command, opts *rootOptions, registry *loader.Registry) error {
	cfg, err := opts.loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging())
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	g, err := newGateway(ctx, cfg, registry, logger)
	if err != nil {
		return err
	}

	servers, err := g.servers()
	if err != nil {
		g.close()
		return err
	}
	for _, s := range servers {
		if err := s.Listen(); err != nil {
			g.close()
			return err
		}
	}

	if cfg.API.Watch {
		if err := g.reloader.Watch(); err != nil {
			g.close()
			return fmt.Errorf("failed to watch %s: %w", cfg.API.Dir, err)
		}
	}

	printBanner(cmd.OutOrStdout(), cfg, g.holder.Load(), servers)

	gs := server.NewGracefulShutdown(&server.ShutdownConfig{
		Timeout: cfg.Server.ShutdownTimeout,
		Logger:  logger,
	}, servers...)
	g.registerHooks(gs)

	return gs.Run(ctx)
}

func printBanner(w io.Writer, cfg *config.Config, table *api.RouteTable, servers []*server.Server) {
	fmt.Fprintln(w, ui.Success("gas is serving "+cfg.API.Dir, color.NoColor))

	t := ui.NewKeyValueTable(w, color.NoColor)
	for _, s := range servers {
		t.AddRow(s.Name(), s.URL())
	}
	if table.Layout() == api.MultiTenant {
		for _, host := range table.Hosts() {
			t.AddRow("host", fmt.Sprintf("%s (%d versions)", host, len(table.VersionKeys(host))))
		}
	} else {
		t.AddRow("layout", table.Layout().String())
	}
	if cfg.File != "" {
		t.AddRow("config", cfg.File)
	}
	if cfg.API.Watch {
		t.AddRow("reload", router.ReloadPath)
	}
	t.Render()
}
