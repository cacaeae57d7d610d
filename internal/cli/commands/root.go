package commands

import (
	"fmt"
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/grundstein/gas/internal/cli/config"
	"github.com/grundstein/gas/internal/cli/ui"
	"github.com/grundstein/gas/internal/loader"
)

var (
	// Version information - set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Handlers holds compiled-in endpoints. They take precedence over handler
// files with the same route key, e.g. "localhost/v1/users".
var Handlers = loader.NewRegistry()

// rootOptions are the flags shared by every command
type rootOptions struct {
	configPath string
	dir        string
	host       string
	port       int
	watch      bool
	noColor    bool
}

// NewRootCommand creates the root command. Without a subcommand it serves
// the api directory.
func NewRootCommand() *cobra.Command {
	return newRootCommand(Handlers)
}

func newRootCommand(registry *loader.Registry) *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "gas",
		Short: "Serve a directory of api handlers and data files",
		Long: color.CyanString(`gas - grundstein api server

gas serves every host and version found below the api directory:

  api/<host>/<version>/__getData__.yaml   collections and schema
  api/<host>/<version>/<path>.yaml        static responses
  api/<host>/<version>/<path>.sh          executable handlers

Every collection is queryable at /<version>/<collection> and filtered
by its schema.`),
		Example: `  gas
  gas --dir ./api --port 8080
  gas --config gas.yaml --watch
  GAS_CACHE_BACKEND=memory gas`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.noColor {
				color.NoColor = true
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts, registry)
		},
	}

	opts.bindFlags(rootCmd)
	rootCmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "Rebuild routes when api files change")

	rootCmd.AddCommand(NewVersionCommand())
	rootCmd.AddCommand(newRoutesCommand(opts, registry))
	rootCmd.AddCommand(NewInitCommand())

	return rootCmd
}

// bindFlags registers the flags inherited by every subcommand of cmd
func (o *rootOptions) bindFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringVarP(&o.configPath, "config", "c", "", "Config file (default: ./gas.yaml if present)")
	flags.StringVarP(&o.dir, "dir", "d", "", "Api directory (default: api)")
	flags.StringVarP(&o.host, "host", "n", "", "Host to listen on (default: 127.0.0.1)")
	flags.IntVarP(&o.port, "port", "p", 0, "Port to listen on (default: 2351)")
	flags.BoolVar(&o.noColor, "no-color", false, "Disable colored output")
}

// loadConfig reads the configuration and applies flags set on cmd
func (o *rootOptions) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("dir") {
		cfg.API.Dir = o.dir
	}
	if flags.Changed("host") {
		cfg.Server.Host = o.host
	}
	if flags.Changed("port") {
		cfg.Server.Port = o.port
	}
	if flags.Changed("watch") {
		cfg.API.Watch = o.watch
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  "Display the gas version, Git commit, build date, and Go version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			t := ui.NewKeyValueTable(cmd.OutOrStdout(), color.NoColor)
			t.AddRow("gas version", Version)
			t.AddRow("Git commit", GitCommit)
			t.AddRow("Build date", BuildDate)
			t.AddRow("Go version", runtime.Version())
			t.Render()
		},
	}
}

// Execute runs the root command
func Execute() error {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		errorColor := color.New(color.FgRed, color.Bold)
		errorColor.Fprint(rootCmd.ErrOrStderr(), "Error: ")
		fmt.Fprintln(rootCmd.ErrOrStderr(), err)
		return err
	}
	return nil
}
