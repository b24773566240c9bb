// Package static renders non-interactive terminal output such as the
// cache entry table.
package static

import (
	"strings"
	"time"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"
	"github.com/dustin/go-humanize"

	"github.com/raphi011/buildcache/internal/cache"
	"github.com/raphi011/buildcache/internal/ui/styles"
)

// EntryHeaders are the columns of RenderEntries.
var EntryHeaders = []string{"KEY", "FILES", "SIZE", "UPDATED"}

// RenderTable creates a formatted table with proper column alignment.
// Headers and rows are rendered using lipgloss/table which automatically
// calculates column widths based on content. No borders are rendered.
func RenderTable(headers []string, rows [][]string) string {
	if len(rows) == 0 {
		return ""
	}

	var output strings.Builder

	t := table.New().
		Headers(headers...).
		Rows(rows...).
		BorderTop(false).
		BorderBottom(false).
		BorderLeft(false).
		BorderRight(false).
		BorderHeader(false).
		BorderColumn(false).
		BorderRow(false).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return styles.Bold.PaddingRight(2)
			}
			if col == len(headers)-1 {
				return styles.MutedStyle.PaddingRight(2)
			}
			return lipgloss.NewStyle().PaddingRight(2)
		})

	output.WriteString(t.String())
	output.WriteString("\n")

	return output.String()
}

// EntryTableRow formats one cache entry; ages are relative to now.
func EntryTableRow(e cache.Entry, now time.Time) []string {
	return []string{
		e.Key,
		humanize.Comma(int64(e.Files)),
		humanize.Bytes(uint64(e.Bytes)),
		humanize.RelTime(e.ModTime, now, "ago", "from now"),
	}
}

// RenderEntries renders entries as a table, or "" if there are none.
func RenderEntries(entries []cache.Entry, now time.Time) string {
	rows := make([][]string, len(entries))
	for i, e := range entries {
		rows[i] = EntryTableRow(e, now)
	}
	return RenderTable(EntryHeaders, rows)
}
