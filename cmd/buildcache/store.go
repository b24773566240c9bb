package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/raphi011/buildcache/internal/cache"
	"github.com/raphi011/buildcache/internal/config"
	"github.com/raphi011/buildcache/internal/log"
	"github.com/raphi011/buildcache/internal/output"
	"github.com/raphi011/buildcache/internal/ui/progress"
)

// newStore opens the cache store for the working directory and config
// stored in ctx by setup.
func newStore(ctx context.Context, opts ...cache.Option) (*cache.Store, error) {
	workDir := config.WorkDirFromContext(ctx)
	cfg := config.FromContext(ctx)
	if cfg == nil {
		def := config.Default()
		cfg = &def
	}

	cacheDir, err := cfg.ResolveCacheDir(workDir)
	if err != nil {
		return nil, err
	}
	return cache.New(workDir, cacheDir, opts...)
}

// newTracker returns a progress tracker on the console log writer. It only
// draws on a terminal without --quiet or --verbose.
func newTracker(cmd *cobra.Command, verb string) *progress.Tracker {
	quiet, _ := cmd.Flags().GetBool("quiet")
	l := log.FromContext(cmd.Context())
	out := l.Writer()
	return progress.NewTracker(out, verb, !quiet && !l.IsVerbose() && output.IsTerminal(out))
}

// completeKeys completes existing cache keys. Completion runs without
// setup, so the environment is resolved from the flags here.
func completeKeys(cmd *cobra.Command, toComplete string) ([]string, cobra.ShellCompDirective) {
	// Config errors fall back to defaults
	workDir, cfg, _ := loadEnv(cmd)
	if workDir == "" {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	ctx := config.WithWorkDir(context.Background(), workDir)
	ctx = config.WithConfig(ctx, cfg)
	store, err := newStore(ctx)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	entries, err := store.Entries()
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	var keys []string
	for _, e := range entries {
		if strings.HasPrefix(e.Key, toComplete) {
			keys = append(keys, e.Key)
		}
	}
	return keys, cobra.ShellCompDirectiveNoFileComp
}
