package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/fatih/color"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/grundstein/gas/internal/api"
	"github.com/grundstein/gas/internal/cli/ui"
)

var (
	hostPattern = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9.-]*[a-zA-Z0-9])?$`)
	namePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// initOptions are the answers that shape a new api directory
type initOptions struct {
	Host       string
	Version    string
	Layout     string
	Collection string

	yes   bool
	force bool
}

func defaultInitOptions() initOptions {
	return initOptions{
		Host:       "localhost",
		Version:    "v1",
		Layout:     api.MultiTenant.String(),
		Collection: "posts",
	}
}

// scaffoldFile is one file written by gas init
type scaffoldFile struct {
	Path    string
	Content string
	Mode    os.FileMode
}

// NewInitCommand creates the init command
func NewInitCommand() *cobra.Command {
	o := defaultInitOptions()

	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Create an api directory with example handlers",
		Long: `Create gas.yaml and an api directory with a data file, a static
response, and an executable handler.

Without --yes the host, version, layout, and collection are asked for.`,
		Example: `  gas init
  gas init my-api
  gas init --yes --layout single --collection people`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			flags := cmd.Flags()
			if !o.yes {
				if err := promptInit(&o, flags.Changed("layout")); err != nil {
					return err
				}
			}
			if err := o.validate(); err != nil {
				return err
			}

			files := scaffoldFiles(o)
			if err := writeScaffold(afero.NewOsFs(), dir, files, o.force); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, f := range files {
				fmt.Fprintln(out, ui.Success("created "+filepath.Join(dir, f.Path), color.NoColor))
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Next steps:")
			if dir != "." {
				fmt.Fprintf(out, "  cd %s\n", dir)
			}
			fmt.Fprintln(out, "  gas --watch")
			fmt.Fprintf(out, "  curl %s\n", o.exampleURL())
			return nil
		},
	}

	cmd.Flags().StringVar(&o.Host, "api-host", o.Host, "Hostname directory of the api")
	cmd.Flags().StringVar(&o.Version, "api-version", o.Version, "Version directory of the api")
	cmd.Flags().StringVar(&o.Layout, "layout", o.Layout, "Directory layout: multi or single")
	cmd.Flags().StringVar(&o.Collection, "collection", o.Collection, "Name of the example collection")
	cmd.Flags().BoolVarP(&o.yes, "yes", "y", false, "Use flags and defaults without prompting")
	cmd.Flags().BoolVarP(&o.force, "force", "f", false, "Overwrite existing files")

	return cmd
}

// promptInit asks for every answer, offering the current values as defaults
func promptInit(o *initOptions, layoutSet bool) error {
	if !layoutSet {
		layout := &survey.Select{
			Message: "Directory layout:",
			Options: []string{api.MultiTenant.String(), api.SingleTenant.String()},
			Default: o.Layout,
			Description: func(value string, index int) string {
				if value == api.SingleTenant.String() {
					return "api/<version>, any hostname"
				}
				return "api/<host>/<version>"
			},
		}
		if err := survey.AskOne(layout, &o.Layout); err != nil {
			return err
		}
	}

	var questions []*survey.Question
	if o.Layout == api.MultiTenant.String() {
		questions = append(questions, &survey.Question{
			Name:     "Host",
			Prompt:   &survey.Input{Message: "Hostname:", Default: o.Host},
			Validate: survey.ComposeValidators(survey.Required, patternValidator(hostPattern, "a hostname")),
		})
	}
	questions = append(questions,
		&survey.Question{
			Name:     "Version",
			Prompt:   &survey.Input{Message: "Api version:", Default: o.Version},
			Validate: survey.ComposeValidators(survey.Required, patternValidator(namePattern, "a version")),
		},
		&survey.Question{
			Name:     "Collection",
			Prompt:   &survey.Input{Message: "Example collection:", Default: o.Collection},
			Validate: survey.ComposeValidators(survey.Required, patternValidator(namePattern, "a collection name")),
		},
	)

	return survey.Ask(questions, o)
}

func patternValidator(pattern *regexp.Regexp, what string) survey.Validator {
	return func(answer interface{}) error {
		s, _ := answer.(string)
		if !pattern.MatchString(strings.TrimSpace(s)) {
			return fmt.Errorf("%q is not %s", s, what)
		}
		return nil
	}
}

func (o *initOptions) validate() error {
	o.Host = strings.ToLower(strings.TrimSpace(o.Host))
	o.Version = strings.TrimSpace(o.Version)
	o.Collection = strings.TrimSpace(o.Collection)

	layout, err := api.ParseLayout(o.Layout)
	if err != nil {
		return err
	}
	o.Layout = layout.String()

	if o.Layout == api.MultiTenant.String() && !hostPattern.MatchString(o.Host) {
		return fmt.Errorf("invalid hostname %q", o.Host)
	}
	if !namePattern.MatchString(o.Version) {
		return fmt.Errorf("invalid version %q: only letters, numbers, dashes, and underscores are allowed", o.Version)
	}
	if !namePattern.MatchString(o.Collection) {
		return fmt.Errorf("invalid collection %q: only letters, numbers, dashes, and underscores are allowed", o.Collection)
	}
	if strings.HasPrefix(o.Collection, "_") {
		return fmt.Errorf("invalid collection %q: names starting with '_' are reserved", o.Collection)
	}
	return nil
}

// versionDir is the version directory relative to the project
func (o initOptions) versionDir() string {
	if o.Layout == api.SingleTenant.String() {
		return filepath.Join("api", o.Version)
	}
	return filepath.Join("api", o.Host, o.Version)
}

func (o initOptions) exampleURL() string {
	host := o.Host
	if o.Layout == api.SingleTenant.String() {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s:2351/%s/%s?published=true", host, o.Version, o.Collection)
}

// scaffoldFiles returns the files of a new api directory
func scaffoldFiles(o initOptions) []scaffoldFile {
	dir := o.versionDir()

	config := fmt.Sprintf(`api:
  dir: api
  layout: %s
  watch: false

server:
  host: 127.0.0.1
  port: 2351

cache:
  backend: memory
  ttl: 5m

log:
  level: info
  format: console
`, o.Layout)

	data := fmt.Sprintf(`db:
  %[1]s:
    - slug: hello-world
      title: Hello World
      tags: [intro, gas]
      published: true
    - slug: drafts
      title: Drafts are filtered out
      tags: [gas]
      published: false

schema:
  %[1]s:
    slug: {type: slug}
    title: {type: string, fuzzy: true}
    tags: {type: array, itemType: string}
    published: {type: boolean}
`, o.Collection)

	hello := `code: 200
body:
  message: Hello from gas
`

	now := `#!/bin/sh
# The request arrives as JSON on stdin; stdout is the response document.
cat <<EOF
{"code": 200, "body": {"time": "$(date -u +%Y-%m-%dT%H:%M:%SZ)"}}
EOF
`

	return []scaffoldFile{
		{Path: "gas.yaml", Content: config, Mode: 0644},
		{Path: filepath.Join(dir, "__getData__.yaml"), Content: data, Mode: 0644},
		{Path: filepath.Join(dir, "hello.yaml"), Content: hello, Mode: 0644},
		{Path: filepath.Join(dir, "now.sh"), Content: now, Mode: 0755},
	}
}

// writeScaffold writes files below dir. Existing files are left untouched
// unless force is set; nothing is written if any of them exists.
func writeScaffold(fs afero.Fs, dir string, files []scaffoldFile, force bool) error {
	if !force {
		var existing []string
		for _, f := range files {
			path := filepath.Join(dir, f.Path)
			if ok, err := afero.Exists(fs, path); err != nil {
				return err
			} else if ok {
				existing = append(existing, path)
			}
		}
		if len(existing) > 0 {
			return fmt.Errorf("refusing to overwrite %s (use --force)", strings.Join(existing, ", "))
		}
	}

	for _, f := range files {
		path := filepath.Join(dir, f.Path)
		if err := fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		if err := afero.WriteFile(fs, path, []byte(f.Content), f.Mode); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		// WriteFile keeps the mode of existing files
		if err := fs.Chmod(path, f.Mode); err != nil {
			return fmt.Errorf("failed to chmod %s: %w", path, err)
		}
	}
	return nil
}
