package main

import (
	"fmt"
	"time"

	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"

	"github.com/raphi011/buildcache/internal/cache"
	"github.com/raphi011/buildcache/internal/log"
	"github.com/raphi011/buildcache/internal/output"
	"github.com/raphi011/buildcache/internal/ui/static"
)

func newListCmd() *cobra.Command {
	var keysOnly bool

	cmd := &cobra.Command{
		Use:     "list [filter]",
		Aliases: []string{"ls"},
		Short:   "List cache entries",
		GroupID: GroupCore,
		Long: `List the entries of the cache directory.

An optional filter fuzzy-matches keys; matches are ordered best first.`,
		Example: `  buildcache list
  buildcache list deps
  buildcache list --keys | xargs -n1 echo`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			l := log.FromContext(ctx)
			out := output.FromContext(ctx)

			store, err := newStore(ctx)
			if err != nil {
				return err
			}

			entries, err := store.Entries()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				entries = filterEntries(entries, args[0])
			}

			if keysOnly {
				for _, e := range entries {
					out.Println(e.Key)
				}
				return nil
			}

			if len(entries) == 0 {
				l.Println("No cache entries")
				return nil
			}
			_, err = fmt.Fprint(out.ColorWriter(), static.RenderEntries(entries, time.Now()))
			return err
		},
	}

	cmd.Flags().BoolVar(&keysOnly, "keys", false, "Print keys only")

	return cmd
}

// entrySource adapts entries for fuzzy matching on their keys.
type entrySource []cache.Entry

func (s entrySource) String(i int) string { return s[i].Key }
func (s entrySource) Len() int            { return len(s) }

// filterEntries returns the entries whose key fuzzy-matches pattern,
// best match first.
func filterEntries(entries []cache.Entry, pattern string) []cache.Entry {
	matches := fuzzy.FindFrom(pattern, entrySource(entries))
	filtered := make([]cache.Entry, len(matches))
	for i, m := range matches {
		filtered[i] = entries[m.Index]
	}
	return filtered
}
