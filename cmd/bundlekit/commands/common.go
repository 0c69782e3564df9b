// Package commands implements the bundlekit CLI's subcommands. Each
// command is a thin cobra wrapper that parses flags into a
// bundleconfig.Config and delegates to the pipeline library.
package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/willibrandon/bundlekit/bundleconfig"
	"github.com/willibrandon/bundlekit/cmd/bundlekit/output"
	"github.com/willibrandon/bundlekit/observability"
	"github.com/willibrandon/bundlekit/pipeline"
	"github.com/willibrandon/bundlekit/shell"
	"github.com/willibrandon/bundlekit/validate"
)

// sharedFlags holds the CLI flags common to validate/write/pack, bound by
// addSharedFlags and read back by toOverrides.
type sharedFlags struct {
	packageDir      string
	entryPoints     []string
	resources       []string
	allowedLicenses []string
	externals       []string
}

func addSharedFlags(cmd *cobra.Command, f *sharedFlags) {
	cmd.Flags().StringVar(&f.packageDir, "package-dir", ".", "Root of the package to bundle")
	cmd.Flags().StringArrayVar(&f.entryPoints, "entrypoint", nil, "Entry point relative path (repeatable)")
	cmd.Flags().StringArrayVar(&f.resources, "resource", nil, "Declared resource as name:relpath (repeatable)")
	cmd.Flags().StringArrayVar(&f.allowedLicenses, "allowed-license", nil, "Allowed SPDX license identifier (repeatable)")
	cmd.Flags().StringArrayVar(&f.externals, "external", nil, "External dependency as name:{runtime|optional} (repeatable)")
}

// toOverrides converts parsed flags into a bundleconfig.Config fragment
// suitable as the flagOverrides argument to bundleconfig.Load.
func (f *sharedFlags) toOverrides() (bundleconfig.Config, error) {
	override := bundleconfig.Config{
		EntryPoints: f.entryPoints,
	}

	if len(f.resources) > 0 {
		override.Resources = make(map[string]string, len(f.resources))
		for _, r := range f.resources {
			name, relPath, ok := strings.Cut(r, ":")
			if !ok {
				return bundleconfig.Config{}, fmt.Errorf("--resource must be name:relpath, got %q", r)
			}
			override.Resources[name] = relPath
		}
	}

	if len(f.allowedLicenses) > 0 {
		override.AllowedLicenses = f.allowedLicenses
	}

	for _, e := range f.externals {
		name, kind, ok := strings.Cut(e, ":")
		if !ok {
			return bundleconfig.Config{}, fmt.Errorf("--external must be name:{runtime|optional}, got %q", e)
		}
		switch kind {
		case "runtime":
			override.Externals.Runtime = append(override.Externals.Runtime, name)
		case "optional":
			override.Externals.Optional = append(override.Externals.Optional, name)
		default:
			return bundleconfig.Config{}, fmt.Errorf("--external kind must be runtime or optional, got %q", kind)
		}
	}

	return override, nil
}

// buildPipeline loads config (defaults < bundlekit.config.json < flags)
// and constructs a ready-to-use Pipeline whose logger writes to stdout at
// the level chosen by --verbosity.
func buildPipeline(cmd *cobra.Command, f *sharedFlags) (*pipeline.Pipeline, error) {
	override, err := f.toOverrides()
	if err != nil {
		return nil, &validate.PipelineError{Code: validate.CodeInvalidConfig, Message: err.Error()}
	}

	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := bundleconfig.Load(f.packageDir, configPath, override)
	if err != nil {
		return nil, err
	}

	verbosity, _ := cmd.Flags().GetString("verbosity")
	log := observability.NewLogger(os.Stdout, observability.ParseLevel(verbosity))
	invoker := shell.NewAdapter(log)

	return pipeline.New(cfg, invoker, log), nil
}

func flushMetrics(cmd *cobra.Command) error {
	path, _ := cmd.Flags().GetString("metrics-out")
	if path == "" {
		return nil
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create metrics-out file: %w", err)
	}
	defer f.Close()

	return observability.WriteExpositionFormat(f)
}

// reportFailure prints err to the console and returns a silentError so
// main.go's top-level handler does not print it a second time.
func reportFailure(console *output.Console, err error) error {
	console.Error("%v", err)
	return silentError{}
}
