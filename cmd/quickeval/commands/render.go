package commands

import (
	"fmt"
	"io"
	"quickeval/internal/history"
	"quickeval/internal/portal"
	"quickeval/internal/runner"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
)

type eventStyles struct {
	plain   lipgloss.Style
	success lipgloss.Style
	warning lipgloss.Style
	failure lipgloss.Style
}

// newEventStyles only emits colors when out is a terminal.
func newEventStyles(out io.Writer) eventStyles {
	r := lipgloss.NewRenderer(out)
	return eventStyles{
		plain:   r.NewStyle(),
		success: r.NewStyle().Foreground(lipgloss.Color("2")),
		warning: r.NewStyle().Foreground(lipgloss.Color("3")),
		failure: r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
	}
}

func printBanner(out io.Writer) {
	fmt.Fprintln(out, "quickeval: one-shot course evaluations for zhjw.scu.edu.cn")
	fmt.Fprintln(out, "Your password is only used for this login and never saved.")
	fmt.Fprintln(out)
}

func renderPending(out io.Writer, records []portal.Record) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.AppendHeader(table.Row{"#", "Course", "Course session"})
	for i, record := range records {
		t.AppendRow(table.Row{i + 1, record.CourseName, record.CourseSessionId})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
}

func renderHistory(out io.Writer, entries []history.Entry) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.AppendHeader(table.Row{"Time", "Run", "Course", "Course session", "Status", "Reason"})
	for _, entry := range entries {
		run := entry.RunId
		if len(run) > 8 {
			run = run[:8]
		}
		t.AppendRow(table.Row{
			entry.Time.Format("2006-01-02 15:04:05"),
			run,
			entry.CourseName,
			entry.CourseSessionId,
			entry.Status,
			entry.Reason,
		})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
}

func formatEvent(e runner.Event) string {
	switch e.Kind {
	case runner.EventLoginFailed:
		return fmt.Sprintf("Login attempt %d failed: %s", e.Attempt, e.Detail)
	case runner.EventLoggedIn:
		return "Logged in."
	case runner.EventInvalidSelection:
		return fmt.Sprintf("Ignoring %q, it does not match any pending course.", e.Detail)
	case runner.EventStarted:
		return fmt.Sprintf("[%d] %s: submitting...", e.Position, e.Record.CourseName)
	case runner.EventSucceeded:
		return fmt.Sprintf("[%d] %s: done.", e.Position, e.Record.CourseName)
	case runner.EventRejected:
		return fmt.Sprintf("[%d] %s: rejected by the portal: %s", e.Position, e.Record.CourseName, e.Detail)
	case runner.EventFailed:
		return fmt.Sprintf("[%d] %s: failed: %v", e.Position, e.Record.CourseName, e.Err)
	case runner.EventAborted:
		return fmt.Sprintf("[%d] %s: the evaluation page changed, stopping: %v", e.Position, e.Record.CourseName, e.Err)
	}
	return e.Kind.String()
}

func (s eventStyles) of(kind runner.EventKind) lipgloss.Style {
	switch kind {
	case runner.EventSucceeded, runner.EventLoggedIn:
		return s.success
	case runner.EventRejected, runner.EventInvalidSelection, runner.EventLoginFailed:
		return s.warning
	case runner.EventFailed, runner.EventAborted:
		return s.failure
	}
	return s.plain
}

func printEvent(out io.Writer) func(runner.Event) {
	styles := newEventStyles(out)
	return func(e runner.Event) {
		fmt.Fprintln(out, styles.of(e.Kind).Render(formatEvent(e)))
	}
}
