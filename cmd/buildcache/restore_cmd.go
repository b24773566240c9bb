package main

import (
	"github.com/spf13/cobra"

	"github.com/raphi011/buildcache/internal/cache"
	"github.com/raphi011/buildcache/internal/log"
)

func newRestoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "restore [keys...]",
		Short:   "Restore the first cache entry that exists",
		GroupID: GroupCore,
		Long: `Restore the first cache entry that exists into the working directory.

Keys are tried in order and only the first existing entry is copied. Restored
files overwrite files at the same paths; other files are left alone. A miss is
not an error.`,
		Example: `  buildcache restore deps-5891b5b5 deps-main
  buildcache -C ./web restore node-modules`,
		ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			return completeKeys(cmd, toComplete)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			l := log.FromContext(ctx)

			tracker := newTracker(cmd, "Restoring")
			store, err := newStore(ctx, cache.WithProgress(tracker.Observe))
			if err != nil {
				return err
			}

			tracker.Start()
			res, err := store.Restore(ctx, args)
			tracker.Stop()
			if err != nil {
				return err
			}

			if !res.Found {
				l.Println("No cache found")
				return nil
			}
			l.Printf("Cache %s found\n", res.Key)
			l.Debug("restored", "key", res.Key, "files", res.Files, "bytes", res.Bytes, "paths", tracker.Count())
			return nil
		},
	}

	return cmd
}
