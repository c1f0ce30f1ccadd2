package display

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/mpapenbr/lapclock/pkg/model"
	"github.com/mpapenbr/lapclock/pkg/processing"
	"github.com/mpapenbr/lapclock/pkg/processing/export"
	"github.com/mpapenbr/lapclock/pkg/processing/ranking"
)

const (
	lightOn  = "●"
	lightOff = "○"
	noTime   = "--:--.---"
)

// ClockLine is the single status line which is refreshed while the
// session is running.
func ClockLine(v processing.View) string {
	parts := []string{v.FormattedTime, string(v.Status)}
	switch {
	case v.Flags.SafetyCar:
		parts = append(parts, "SC")
	case v.Flags.VirtualSafetyCar:
		parts = append(parts, "VSC")
	}
	if v.Status == model.StatusStarting {
		parts = append(parts, Lights(v.LightsOn, v.Lights))
	}
	return strings.Join(parts, "  ")
}

// Lights renders the start lights, on lights first
func Lights(on, total int) string {
	on = min(max(on, 0), total)
	return strings.Repeat(lightOn, on) + strings.Repeat(lightOff, total-on)
}

// Render writes the complete session view: the clock line followed by the
// ranking table. The active participant is marked with '>', the overall
// best lap with '*'.
func Render(w io.Writer, v processing.View) error {
	if _, err := fmt.Fprintln(w, ClockLine(v)); err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "POS\t\tID\tNAME\tLAPS\tBEST\tLAST\tTOTAL")
	for _, row := range v.Ranking {
		marker := ""
		if row.ParticipantID == v.ActiveParticipant {
			marker = ">"
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%d\t%s\t%s\t%s\n",
			row.Position,
			marker,
			row.ParticipantID,
			row.Name,
			row.LapCount,
			bestCell(row, v.GlobalBest),
			durationCell(row.Last),
			export.FormatDuration(row.TotalTime))
	}
	return tw.Flush()
}

func bestCell(row ranking.Row, global *time.Duration) string {
	ret := durationCell(row.Best)
	if row.Best != nil && global != nil && *row.Best == *global {
		ret += "*"
	}
	return ret
}

func durationCell(d *time.Duration) string {
	if d == nil {
		return noTime
	}
	return export.FormatDuration(*d)
}
