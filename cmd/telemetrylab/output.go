package main

import (
	"fmt"
	"io"
	"strconv"

	"codeberg.org/mutker/telemetrylab/internal/telemetry"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
)

// monitorRows is how many recent cycles the monitor table shows.
const monitorRows = 10

// Jank percentage bands for coloring.
const (
	jankWarnPercent     = 5.0
	jankCriticalPercent = 15.0
)

var (
	goodColor     = color.New(color.FgGreen)
	warnColor     = color.New(color.FgYellow)
	criticalColor = color.New(color.FgRed, color.Bold)
	mutedColor    = color.New(color.FgHiBlack)
)

func jankColor(pct float64) *color.Color {
	switch {
	case pct >= jankCriticalPercent:
		return criticalColor
	case pct >= jankWarnPercent:
		return warnColor
	default:
		return goodColor
	}
}

// statusLine summarizes a snapshot on one line.
func statusLine(snap telemetry.Snapshot) string {
	state := mutedColor.Sprint("stopped")
	if snap.IsRunning {
		state = goodColor.Sprint("running")
	}

	powerSave := "off"
	if snap.IsPowerSave {
		powerSave = warnColor.Sprint("on")
	}

	return fmt.Sprintf("%s  latency %dms  jank %s (frames %s, %d samples)  power-save %s  %dHz x%d",
		state,
		snap.LatencyMs,
		jankColor(snap.JankPercent).Sprintf("%.1f%%", snap.JankPercent),
		jankColor(snap.FrameJankPercent).Sprintf("%.1f%%", snap.FrameJankPercent),
		snap.Samples,
		powerSave,
		snap.RateHz,
		snap.Intensity,
	)
}

// renderStatus prints the status line and the most recent cycles.
func renderStatus(w io.Writer, snap telemetry.Snapshot, rows int) error {
	if _, err := fmt.Fprintln(w, statusLine(snap)); err != nil {
		return err
	}

	entries := snap.History
	if rows > 0 && len(entries) > rows {
		entries = entries[len(entries)-rows:]
	}
	if len(entries) == 0 {
		return nil
	}

	table := tablewriter.NewWriter(w)
	table.Header([]string{"Cycle", "Latency", "Jank"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})

	red := color.New(color.FgRed).SprintFunc()
	var data [][]string
	// Newest first, the way the history is displayed.
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		jank := ""
		if e.IsJank {
			jank = red("JANK")
		}
		data = append(data, []string{
			strconv.Itoa(e.Index),
			fmt.Sprintf("%dms", e.Latency.Milliseconds()),
			jank,
		})
	}

	if err := table.Bulk(data); err != nil {
		return err
	}
	return table.Render()
}
