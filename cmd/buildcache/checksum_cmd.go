package main

import (
	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/raphi011/buildcache/internal/log"
	"github.com/raphi011/buildcache/internal/output"
)

func newChecksumCmd() *cobra.Command {
	var copyToClipboard bool

	cmd := &cobra.Command{
		Use:     "checksum [paths...]",
		Short:   "Print a combined digest of files and directories",
		GroupID: GroupCore,
		Long: `Print a sha256 digest over the contents of the given paths.

The digest changes when file contents, symlink targets or directory listings
change, and is printed without a trailing newline so it can be embedded in
cache keys.`,
		Example: `  buildcache checksum go.sum
  buildcache save deps-$(buildcache checksum package-lock.json) node_modules`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			l := log.FromContext(ctx)
			out := output.FromContext(ctx)

			store, err := newStore(ctx)
			if err != nil {
				return err
			}

			sum, err := store.Checksum(ctx, args)
			if err != nil {
				return err
			}
			out.Print(sum)

			if copyToClipboard {
				if err := clipboard.WriteAll(sum); err != nil {
					l.Warn("failed to copy to clipboard", "error", err)
				} else {
					l.Debug("copied checksum to clipboard")
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&copyToClipboard, "copy", false, "Also copy the checksum to the clipboard")

	return cmd
}
