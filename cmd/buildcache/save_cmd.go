package main

import (
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/raphi011/buildcache/internal/cache"
	"github.com/raphi011/buildcache/internal/log"
)

func newSaveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "save <key> [paths...]",
		Short:   "Save paths under a cache key",
		GroupID: GroupCore,
		Long: `Save files and directories of the working directory under a cache key.

An existing entry with the same key is replaced. Paths are relative to the
working directory; if any of them does not exist, nothing is saved.`,
		Example: `  buildcache save deps-$(buildcache checksum go.sum) vendor
  buildcache save build-main bin dist/app.tar`,
		Args: cobra.MinimumNArgs(1),
		ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			if len(args) == 0 {
				return completeKeys(cmd, toComplete)
			}
			return nil, cobra.ShellCompDirectiveDefault
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			l := log.FromContext(ctx)

			tracker := newTracker(cmd, "Saving")
			store, err := newStore(ctx, cache.WithProgress(tracker.Observe))
			if err != nil {
				return err
			}

			tracker.Start()
			res, err := store.Save(ctx, args[0], args[1:])
			tracker.Stop()
			if err != nil {
				return err
			}

			l.Printf("Saved %s files (%s) to %s\n",
				humanize.Comma(int64(res.Files)), humanize.Bytes(uint64(res.Bytes)), res.Key)
			l.Debug("saved", "key", res.Key, "paths", tracker.Count())
			return nil
		},
	}

	return cmd
}
