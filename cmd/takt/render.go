package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	servercommon "github.com/hylla/takt/internal/adapters/server/common"
)

const (
	ganttTimelineWidth = 32
	historyWrapWidth   = 100
	clockLayout        = "01-02 15:04"
)

var (
	tableBorderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("62"))
	tableHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("230"))
	lateRowStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("204"))
	urgentRowStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	summaryStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
)

// writeScheduleSummary prints the headline of one schedule mutation.
func writeScheduleSummary(w io.Writer, resp servercommon.ScheduleResponse) {
	s := resp.Schedule
	_, _ = fmt.Fprintf(w, "schedule %s lineage %s version %d status %s strategy %s\n", s.ID, s.LineageID, s.Version, s.Status, s.Strategy)
	_, _ = fmt.Fprintf(w, "assignments: %d  excluded: %d  open conflicts: %d\n", len(s.Assignments), len(s.Excluded), countOpen(resp.Conflicts))
	for _, ex := range s.Excluded {
		_, _ = fmt.Fprintf(w, "  excluded %s: %s\n", ex.WorkOrderID, ex.Reason)
	}
	for _, sh := range resp.Shifted {
		_, _ = fmt.Fprintf(w, "  shifted %s on %s by %s\n", sh.WorkOrderID, sh.ResourceID, minutes(sh.DeltaMinutes))
	}
	if resp.AuditWarning != "" {
		_, _ = fmt.Fprintf(w, "warning: %s\n", resp.AuditWarning)
	}
}

// countOpen returns the number of unresolved conflicts.
func countOpen(conflicts []servercommon.ConflictView) int {
	open := 0
	for _, c := range conflicts {
		if c.ResolvedAt == nil {
			open++
		}
	}
	return open
}

// renderGantt renders bars as a lipgloss table with a proportional timeline column.
func renderGantt(g servercommon.GanttResponse, width int) string {
	var from, to time.Time
	for _, bar := range g.Bars {
		if from.IsZero() || bar.Start.Before(from) {
			from = bar.Start
		}
		if bar.End.After(to) {
			to = bar.End
		}
	}

	rows := make([][]string, 0, len(g.Bars))
	styles := make([]lipgloss.Style, 0, len(g.Bars))
	for _, bar := range g.Bars {
		label := bar.WorkOrderID
		if bar.Name != "" && bar.Name != bar.WorkOrderID {
			label += " " + bar.Name
		}
		tardiness := ""
		if bar.Late {
			tardiness = "+" + minutes(bar.TardinessMinutes)
		}
		rows = append(rows, []string{
			bar.ResourceID,
			strconv.Itoa(bar.Sequence),
			label,
			bar.Start.Format(clockLayout),
			bar.End.Format(clockLayout),
			bar.Priority,
			tardiness,
			timelineBar(bar.Start, bar.End, from, to, width),
		})
		switch {
		case bar.Late:
			styles = append(styles, lateRowStyle)
		case bar.Priority == "urgent":
			styles = append(styles, urgentRowStyle)
		default:
			styles = append(styles, lipgloss.NewStyle())
		}
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(tableBorderStyle).
		Headers("Resource", "#", "Work order", "Start", "End", "Priority", "Late", "Timeline").
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			if row >= 0 && row < len(styles) {
				return styles[row]
			}
			return lipgloss.NewStyle()
		})

	var b strings.Builder
	s := g.Schedule
	b.WriteString(fmt.Sprintf("%s v%d (%s, %s)\n", s.ID, s.Version, s.Status, s.Strategy))
	b.WriteString(t.Render())
	b.WriteString("\n")
	b.WriteString(summaryStyle.Render(metricsLine(g.Metrics, countOpen(g.Conflicts))))
	return b.String()
}

// metricsLine summarizes quality metrics on one line.
func metricsLine(m servercommon.MetricsView, openConflicts int) string {
	return fmt.Sprintf(
		"makespan %s  utilization %.1f%%  tardiness %s  late %d  conflicts %d  score %.2f",
		minutes(m.MakespanMinutes),
		m.AverageUtilization*100,
		minutes(m.TotalTardinessMinutes),
		m.LateCount,
		openConflicts,
		m.QualityScore,
	)
}

// timelineBar draws [start,end) within [from,to) as a fixed-width bar.
func timelineBar(start, end, from, to time.Time, width int) string {
	if width <= 0 {
		return ""
	}
	span := to.Sub(from)
	if span <= 0 {
		return strings.Repeat("█", width)
	}
	offset := int(float64(start.Sub(from)) / float64(span) * float64(width))
	length := int(float64(end.Sub(start))/float64(span)*float64(width) + 0.5)
	offset = min(max(offset, 0), width-1)
	length = min(max(length, 1), width-offset)
	return strings.Repeat("·", offset) + strings.Repeat("█", length) + strings.Repeat("·", width-offset-length)
}

// renderComparison renders the assignment diff between two strategies.
func renderComparison(c servercommon.ComparisonResponse) string {
	rows := make([][]string, 0, len(c.Diff))
	for _, d := range c.Diff {
		before, after := "-", "-"
		if d.Before != nil {
			before = d.Before.ResourceID + " " + d.Before.Start.Format(clockLayout)
		}
		if d.After != nil {
			after = d.After.ResourceID + " " + d.After.Start.Format(clockLayout)
		}
		delta := ""
		if d.StartDeltaMinutes != 0 {
			delta = minutes(d.StartDeltaMinutes)
		}
		rows = append(rows, []string{d.WorkOrderID, d.Kind, before, after, delta})
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(tableBorderStyle).
		Headers("Work order", "Change", "Current", "Candidate", "Shift").
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			return lipgloss.NewStyle()
		})

	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s vs %s\n", c.ScheduleID, c.Strategy))
	if len(rows) == 0 {
		b.WriteString("no assignment differences\n")
	} else {
		b.WriteString(t.Render())
		b.WriteString("\n")
	}
	b.WriteString(summaryStyle.Render("current:   " + metricsLine(c.Current, 0)))
	b.WriteString("\n")
	b.WriteString(summaryStyle.Render("candidate: " + metricsLine(c.Candidate, 0)))
	return b.String()
}

// historyMarkdown formats adjustment log entries as a markdown table.
func historyMarkdown(lineageID string, entries []servercommon.HistoryEntry) string {
	var b strings.Builder
	b.WriteString("# History: " + lineageID + "\n\n")
	if len(entries) == 0 {
		b.WriteString("_No adjustments recorded._\n")
		return b.String()
	}
	b.WriteString("| # | When | Type | Actor | Schedule | Reason |\n")
	b.WriteString("|---|------|------|-------|----------|--------|\n")
	for _, e := range entries {
		reason := e.Reason
		if e.AfterRef != "" && e.BeforeRef != "" {
			reason = strings.TrimSpace(reason + " (" + e.BeforeRef + " → " + e.AfterRef + ")")
		}
		b.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %s | %s |\n",
			e.ID,
			e.OccurredAt.UTC().Format(time.RFC3339),
			e.Type,
			escapeCell(e.Actor),
			e.ScheduleID,
			escapeCell(reason),
		))
	}
	return b.String()
}

// escapeCell keeps user text from breaking the markdown table.
func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", `\|`)
}

// renderMarkdown renders markdown for the terminal, falling back to the source on error.
func renderMarkdown(markdown string, width int) string {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return markdown
	}
	rendered, err := renderer.Render(markdown)
	if err != nil {
		return markdown
	}
	return strings.TrimRight(rendered, "\n")
}

// minutes formats a minute count as a duration string.
func minutes(m float64) string {
	return (time.Duration(m * float64(time.Minute))).Round(time.Minute).String()
}
