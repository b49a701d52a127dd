// Package cli holds the terminal helpers of the hunt command: list
// parsing for flags and the group status table.
package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/eduzsantillan/scavenger-hunt/internal/hunt"
)

// FormatProgress renders "2/3 collected".
func FormatProgress(collected, total int) string {
	return fmt.Sprintf("%d/%d collected", collected, total)
}

// WriteStatus prints the group header and one row per collection record.
func WriteStatus(w io.Writer, status *hunt.GroupStatus) error {
	g := status.Group
	state := "in progress"
	if g.IsCompleted {
		state = "completed " + g.CompletedAt
	}
	if _, err := fmt.Fprintf(w, "%s %s (%s): %s, %s\n", g.Kind, g.ID, g.Name, FormatProgress(status.Collected(), len(status.Records)), state); err != nil {
		return err
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Item", "Collected", "Matched", "Labels", "Processed"})
	for _, r := range status.Records {
		tw.AppendRow(table.Row{
			r.ItemID,
			r.IsCollected,
			orDash(strings.Join(r.MatchedTerms, ",")),
			orDash(strings.Join(r.LabelsDetected, ",")),
			orDash(r.ProcessedAt),
		})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignCenter, AlignHeader: text.AlignLeft},
	})

	_, err := fmt.Fprintln(w, tw.Render())
	return err
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
