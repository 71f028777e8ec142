package sim

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/abrezinsky/racetrial/internal/event"
)

// RenderResults writes the finishing order of a run as a table, followed by anyone who
// did not finish or could not join.
func RenderResults(w io.Writer, rep *Report) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.SetTitle(fmt.Sprintf("%s | %s | %s (%.0fm) x%d", rep.Event, rep.Kind, rep.Route, rep.RouteLength, rep.Laps))
	t.AppendHeader(table.Row{"Pos", "Participant", "Time", "Gap"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
	})

	completions := append([]event.Completion(nil), rep.Completions...)
	sort.SliceStable(completions, func(i, j int) bool { return completions[i].Place < completions[j].Place })
	for i, c := range completions {
		gap := ""
		if i > 0 {
			gap = "+" + formatGap(c.Duration-completions[0].Duration)
		}
		t.AppendRow(table.Row{c.Place, c.ParticipantName, event.FormatDuration(c.Duration), gap})
	}

	if len(rep.Unfinished) > 0 || len(rep.JoinErrors) > 0 {
		t.AppendSeparator()
	}
	for _, u := range rep.Unfinished {
		t.AppendRow(table.Row{"DNF", u.Name, fmt.Sprintf("lap %d, %.0fm", u.Progress.CurrentLap, u.Progress.ProgressDistance), ""})
	}
	names := make([]string, 0, len(rep.JoinErrors))
	for name := range rep.JoinErrors {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		t.AppendRow(table.Row{"DNS", name, rep.JoinErrors[name], ""})
	}

	status := "finished"
	if rep.TimedOut {
		status = "timed out"
	}
	t.AppendFooter(table.Row{"", status, event.FormatDuration(rep.Elapsed), fmt.Sprintf("%d ticks", rep.Ticks)})
	t.Render()
}

// formatGap renders a time difference with tenths, for example "1.4s".
func formatGap(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}
