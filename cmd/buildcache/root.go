package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/raphi011/buildcache/internal/config"
	"github.com/raphi011/buildcache/internal/log"
	"github.com/raphi011/buildcache/internal/output"
)

// Command group IDs for organizing help output
const (
	GroupCore   = "core"
	GroupConfig = "config"
)

// annotationConfigOptional marks commands that still run when the config
// files are invalid, so that they can be used to repair them.
const annotationConfigOptional = "config-optional"

// globalFlags are the persistent flags shared by all commands.
type globalFlags struct {
	verbose  bool
	quiet    bool
	workDir  string
	cacheDir string
}

// newRootCmd builds the command tree.
func newRootCmd() *cobra.Command {
	var flags globalFlags

	cmd := &cobra.Command{
		Use:   "buildcache",
		Short: "Local key-addressed cache for build directories",
		Long: `buildcache saves parts of a working directory under a key and restores
them later, like the cache steps of a CI system, but on the local disk.

Keys are usually derived from a checksum of the files the cached content
depends on. Keys match exactly; list a fixed key after the checksum key to
fall back to an older entry:

  buildcache restore deps-$(buildcache checksum go.sum) deps-main
  go mod download
  buildcache save deps-$(buildcache checksum go.sum) vendor`,
		SilenceUsage:               true,
		SilenceErrors:              true,
		SuggestionsMinimumDistance: 2, // Enable typo suggestions
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Skip setup for completion and help commands
			if cmd.Name() == "completion" || cmd.Name() == cobra.ShellCompRequestCmd || cmd.Name() == "help" {
				return nil
			}
			return setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return log.FromContext(cmd.Context()).Close()
		},
		// Run is not set - shows help when no subcommand provided
	}

	pf := cmd.PersistentFlags()
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "Show debug output")
	pf.BoolVarP(&flags.quiet, "quiet", "q", false, "Suppress all log output")
	pf.StringVarP(&flags.workDir, "workdir", "C", "", "Run as if started in `dir`")
	pf.StringVar(&flags.cacheDir, "cache-dir", "", "Cache `dir`, relative to the working directory (default \".cache\")")
	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")
	_ = cmd.MarkPersistentFlagDirname("workdir")
	_ = cmd.MarkPersistentFlagDirname("cache-dir")

	cmd.Version = versionString()
	cmd.SetVersionTemplate("{{.Version}}\n")

	cmd.AddGroup(
		&cobra.Group{ID: GroupCore, Title: "Cache Commands:"},
		&cobra.Group{ID: GroupConfig, Title: "Configuration Commands:"},
	)

	cmd.AddCommand(newRestoreCmd())
	cmd.AddCommand(newSaveCmd())
	cmd.AddCommand(newChecksumCmd())
	cmd.AddCommand(newListCmd())

	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newCompletionCmd())

	return cmd
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	// Create context with signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Add output printer (stdout for primary data)
	ctx = output.WithPrinter(ctx, os.Stdout)

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "Interrupted")
		} else {
			fmt.Fprintln(os.Stderr, "buildcache:", err)
			fmt.Fprintln(os.Stderr, "Run 'buildcache --help' for usage.")
		}
		cancel()
		os.Exit(1)
	}
}

// setup resolves the working directory and config and stores them,
// together with the logger, in the command context.
func setup(cmd *cobra.Command) error {
	verbose, _ := cmd.Flags().GetBool("verbose")
	quiet, _ := cmd.Flags().GetBool("quiet")

	l := log.New(cmd.ErrOrStderr(), verbose, quiet)

	workDir, cfg, err := loadEnv(cmd)
	if err != nil {
		if cfg == nil || cmd.Annotations[annotationConfigOptional] == "" {
			return err
		}
		l.Warn("ignoring invalid config", "error", err)
	}

	logFile, err := cfg.ResolveLogFile(workDir)
	if err == nil {
		err = l.OpenFile(log.FileOptions{
			Path:       logFile,
			Level:      cfg.Log.Level,
			MaxSizeMB:  cfg.Log.MaxSize,
			MaxBackups: cfg.Log.MaxBackups,
			Compress:   cfg.Log.Compress,
		})
	}
	if err != nil {
		l.Warn("log file disabled", "error", err)
	}

	ctx := cmd.Context()
	ctx = log.WithLogger(ctx, l)
	ctx = config.WithConfig(ctx, cfg)
	ctx = config.WithWorkDir(ctx, workDir)
	cmd.SetContext(ctx)

	l.Debug("resolved environment", "workdir", workDir, "cache_dir", cfg.CacheDir)
	return nil
}

// loadEnv resolves -C and the effective config, with --cache-dir applied.
// If only the config is invalid, the defaults are returned with the error.
func loadEnv(cmd *cobra.Command) (string, *config.Config, error) {
	dirFlag, _ := cmd.Flags().GetString("workdir")
	cacheDirFlag, _ := cmd.Flags().GetString("cache-dir")

	workDir, err := resolveWorkDir(dirFlag)
	if err != nil {
		return "", nil, err
	}

	cfg, cfgErr := config.Resolve(workDir)
	if cfgErr != nil {
		def := config.Default()
		cfg = &def
	}
	if cacheDirFlag != "" {
		cfg.CacheDir = cacheDirFlag
	}
	return workDir, cfg, cfgErr
}

// resolveWorkDir returns the absolute working directory for -C.
func resolveWorkDir(dir string) (string, error) {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to get working directory: %w", err)
		}
		return wd, nil
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("workdir: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("workdir %s: not a directory", abs)
	}
	return abs, nil
}
