package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/grundstein/gas/internal/loader"
)

// newProject scaffolds the default example project into a temp dir and
// returns the project dir
func newProject(t *testing.T, o initOptions) string {
	t.Helper()
	dir := t.TempDir()
	if err := writeScaffold(afero.NewOsFs(), dir, scaffoldFiles(o), false); err != nil {
		t.Fatalf("failed to scaffold project: %v", err)
	}
	return dir
}

// execute runs the root command with args and returns stdout and stderr
func execute(t *testing.T, registry *loader.Registry, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand(registry)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--no-color"}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestNewRootCommand(t *testing.T) {
	cmd := NewRootCommand()

	if cmd.Use != "gas" {
		t.Errorf("expected Use to be 'gas', got %s", cmd.Use)
	}

	if cmd.Short == "" {
		t.Error("expected Short description to be set")
	}

	if cmd.Long == "" {
		t.Error("expected Long description to be set")
	}

	if cmd.RunE == nil {
		t.Error("expected the root command to serve without a subcommand")
	}

	// Check subcommands are registered
	expectedCommands := []string{"version", "routes", "init"}

	for _, expected := range expectedCommands {
		found := false
		for _, sub := range cmd.Commands() {
			if sub.Name() == expected {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("expected command %s to be registered", expected)
		}
	}
}

func TestRootCommand_Flags(t *testing.T) {
	cmd := NewRootCommand()

	shorthands := map[string]string{
		"config": "c",
		"dir":    "d",
		"host":   "n",
		"port":   "p",
	}
	for name, short := range shorthands {
		flag := cmd.PersistentFlags().Lookup(name)
		if flag == nil {
			t.Errorf("expected persistent flag --%s", name)
			continue
		}
		if flag.Shorthand != short {
			t.Errorf("expected --%s shorthand %q, got %q", name, short, flag.Shorthand)
		}
	}

	if cmd.Flags().Lookup("watch") == nil {
		t.Error("expected --watch flag")
	}
}

func TestLoadConfig_FlagsOverride(t *testing.T) {
	opts := &rootOptions{}
	cmd := &cobra.Command{Use: "test"}
	opts.bindFlags(cmd)

	if err := cmd.ParseFlags([]string{"-d", "/srv/api", "--host", "0.0.0.0", "-p", "8080"}); err != nil {
		t.Fatalf("failed to parse flags: %v", err)
	}

	cfg, err := opts.loadConfig(cmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.API.Dir != "/srv/api" {
		t.Errorf("expected dir /srv/api, got %s", cfg.API.Dir)
	}
	if cfg.Address() != "0.0.0.0:8080" {
		t.Errorf("expected address 0.0.0.0:8080, got %s", cfg.Address())
	}
	if cfg.API.Watch {
		t.Error("expected watch to keep its default")
	}
}

func TestLoadConfig_UnsetFlagsKeepConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gas.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9000\napi:\n  dir: from-file\n"), 0644); err != nil {
		t.Fatal(err)
	}

	opts := &rootOptions{}
	cmd := &cobra.Command{Use: "test"}
	opts.bindFlags(cmd)
	if err := cmd.ParseFlags([]string{"--config", path}); err != nil {
		t.Fatalf("failed to parse flags: %v", err)
	}

	cfg, err := opts.loadConfig(cmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000 from the config file, got %d", cfg.Server.Port)
	}
	if cfg.API.Dir != "from-file" {
		t.Errorf("expected dir from the config file, got %s", cfg.API.Dir)
	}
}

func TestLoadConfig_InvalidPort(t *testing.T) {
	opts := &rootOptions{}
	cmd := &cobra.Command{Use: "test"}
	opts.bindFlags(cmd)
	if err := cmd.ParseFlags([]string{"--port", "70000"}); err != nil {
		t.Fatalf("failed to parse flags: %v", err)
	}

	if _, err := opts.loadConfig(cmd); err == nil {
		t.Error("expected error for port out of range")
	}
}

func TestNewVersionCommand(t *testing.T) {
	// Set test version info
	Version = "1.0.0-test"
	GitCommit = "abc123"
	BuildDate = "2025-01-01"

	out, _, err := execute(t, loader.NewRegistry(), "version")
	if err != nil {
		t.Fatalf("version command failed: %v", err)
	}

	for _, want := range []string{"gas version:", "1.0.0-test", "abc123", "2025-01-01", "Go version:"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestRootCommand_RejectsArgs(t *testing.T) {
	if _, _, err := execute(t, loader.NewRegistry(), "unexpected"); err == nil {
		t.Error("expected error for positional argument")
	}
}
