package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/grundstein/gas/internal/api"
	"github.com/grundstein/gas/internal/cli/ui"
	"github.com/grundstein/gas/internal/loader"
)

// errUnknownHost is returned after the host report has been printed
var errUnknownHost = errors.New("unknown host")

func newRoutesCommand(opts *rootOptions, registry *loader.Registry) *cobra.Command {
	var (
		host    string
		version string
		all     bool
	)

	cmd := &cobra.Command{
		Use:   "routes",
		Short: "List the endpoints of the api directory",
		Long: `Build the route table once and print every endpoint with its source.

Internal endpoints (/_schema, /_endpoints) are hidden unless --all is set.`,
		Example: `  gas routes
  gas routes --only localhost --api-version v1
  gas routes --dir ./api --all`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			table, err := newBuilder(cfg, registry, zap.NewNop()).Build(ctx)
			if err != nil {
				return err
			}
			return printRoutes(cmd, table, host, version, all)
		},
	}

	cmd.Flags().StringVar(&host, "only", "", "Only list routes of this host")
	cmd.Flags().StringVar(&version, "api-version", "", "Only list routes of this version")
	cmd.Flags().BoolVarP(&all, "all", "a", false, "Include internal endpoints")

	return cmd
}

func printRoutes(cmd *cobra.Command, table *api.RouteTable, host, version string, all bool) error {
	out := cmd.OutOrStdout()

	if host != "" && table.Layout() == api.MultiTenant && !table.HasHost(host) {
		ui.Message{
			Title:       "host not found",
			Problem:     host,
			Suggestions: ui.Suggest(host, table.Hosts()),
			Hints:       []string{"List all routes: gas routes"},
			NoColor:     color.NoColor,
		}.Write(cmd.ErrOrStderr())
		return errUnknownHost
	}

	t := ui.NewTable(out, color.NoColor, "HOST", "VERSION", "PATH", "KIND", "SOURCE")
	for _, scope := range table.Scopes() {
		if host != "" && table.Layout() == api.MultiTenant && scope.Host != host {
			continue
		}
		if version != "" && scope.Version != version {
			continue
		}
		for _, route := range scope.Routes() {
			if !all && route.Kind == api.KindInternal {
				continue
			}
			routeHost := route.Host
			if routeHost == "" {
				routeHost = "*"
			}
			t.AddRow(routeHost, route.Version, route.Path, route.Kind.String(), route.Source)
		}
	}

	if t.Len() == 0 {
		fmt.Fprintln(out, "No routes found.")
		return nil
	}
	t.Render()
	fmt.Fprintf(out, "\n%d %s\n", t.Len(), plural(t.Len(), "route", "routes"))
	return nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
