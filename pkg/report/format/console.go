// Package format provides console rendering for reports and analysis
// results. Tables adapt to the terminal width and support color and
// truncation.
package format

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/term"

	"github.com/greg-hellings/esginsight/pkg/backend"
	"github.com/greg-hellings/esginsight/pkg/services"
	"github.com/greg-hellings/esginsight/pkg/state"
)

const defaultWrapWidth = 100

// maxSnippetRunes bounds the citation excerpt printed under a source.
const maxSnippetRunes = 160

// ConsoleFormatter renders reports and analysis results in a
// terminal-friendly layout.
type ConsoleFormatter struct {
	// MaxNameColWidth constrains the report name column. If 0, a dynamic
	// width is chosen based on terminal width.
	MaxNameColWidth int

	// WrapWidth is the width prose is wrapped to. If 0, the terminal width
	// is used, capped at 100.
	WrapWidth int

	// EnableColors toggles ANSI color output.
	EnableColors bool
}

// NewConsoleFormatter creates a formatter with sensible defaults.
func NewConsoleFormatter() *ConsoleFormatter {
	return &ConsoleFormatter{EnableColors: true}
}

func newTable(w io.Writer) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.Style().Options.SeparateRows = false
	tw.Style().Options.SeparateColumns = false
	tw.Style().Options.DrawBorder = true
	return tw
}

// RenderReports writes the report list. The selected report is marked with
// an asterisk.
func (f *ConsoleFormatter) RenderReports(reports []backend.Report, selectedID string, w io.Writer) error {
	if len(reports) == 0 {
		_, err := fmt.Fprintln(w, "No reports uploaded yet.")
		return err
	}

	tw := newTable(w)
	tw.AppendHeader(table.Row{"", "#", "ID", "Name", "Pages", "Uploaded"})

	nameWidth := f.MaxNameColWidth
	if nameWidth <= 0 {
		nameWidth = dynamicNameWidth(detectTerminalWidth(w))
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, WidthMax: nameWidth, WidthMin: minInt(10, nameWidth), Transformer: truncTransformer(nameWidth)},
	})

	for i, r := range reports {
		marker := ""
		if r.ID == selectedID {
			marker = f.color("*", text.FgGreen)
		}
		pages := f.color("-", text.FgHiBlack)
		if n, ok := r.PageCount(); ok {
			pages = fmt.Sprint(n)
		}
		uploaded := r.UploadedAt
		if ts, ok := r.UploadedTime(); ok {
			uploaded = ts.Format("2006-01-02 15:04")
		}
		tw.AppendRow(table.Row{marker, i + 1, r.ID, r.Name, pages, uploaded})
	}
	tw.Render()
	return nil
}

// RenderTranscript writes every message in order.
func (f *ConsoleFormatter) RenderTranscript(msgs []state.ChatMessage, w io.Writer) error {
	if len(msgs) == 0 {
		_, err := fmt.Fprintln(w, "No messages yet.")
		return err
	}
	for _, m := range msgs {
		if err := f.RenderChatMessage(m, w); err != nil {
			return err
		}
	}
	return nil
}

// RenderChatMessage writes one chat message followed by its sources.
func (f *ConsoleFormatter) RenderChatMessage(m state.ChatMessage, w io.Writer) error {
	var label string
	switch m.Role {
	case state.RoleUser:
		label = f.color("You:", text.Bold)
	default:
		label = f.color("Assistant:", text.Bold)
	}
	body := m.Text
	switch {
	case m.Failed:
		body = f.color(body, text.FgRed)
	case m.Pending:
		body = f.color(body, text.FgHiBlack)
	}
	if _, err := fmt.Fprintf(w, "%s %s\n", label, f.wrap(body, w)); err != nil {
		return fmt.Errorf("failed writing chat message: %w", err)
	}
	if len(m.Citations) > 0 {
		if _, err := fmt.Fprintln(w, "  Sources:"); err != nil {
			return fmt.Errorf("failed writing sources header: %w", err)
		}
		for i, c := range m.Citations {
			if _, err := fmt.Fprintf(w, "    [%d] %s · page %d\n", i+1, c.ReportName, c.Page); err != nil {
				return fmt.Errorf("failed writing citation %d: %w", i+1, err)
			}
			if snippet := strings.Join(strings.Fields(c.Snippet), " "); snippet != "" {
				snippet = f.color("\""+truncateRunes(snippet, maxSnippetRunes)+"\"", text.FgHiBlack)
				if _, err := fmt.Fprintf(w, "        %s\n", snippet); err != nil {
					return fmt.Errorf("failed writing snippet %d: %w", i+1, err)
				}
			}
		}
	}
	_, err := fmt.Fprintln(w)
	return err
}

// RenderSummary writes the executive summary markdown as-is.
func (f *ConsoleFormatter) RenderSummary(md string, w io.Writer) error {
	if _, err := fmt.Fprintln(w, f.color("Executive Summary", text.Bold)); err != nil {
		return err
	}
	if strings.TrimSpace(md) == "" {
		_, err := fmt.Fprintln(w, f.color("(empty summary)", text.FgHiBlack))
		return err
	}
	_, err := fmt.Fprintln(w, strings.TrimRight(md, "\n"))
	return err
}

// RenderCompliance writes the framework coverage table in fixed order.
func (f *ConsoleFormatter) RenderCompliance(res services.ComplianceResult, w io.Writer) error {
	tw := newTable(w)
	tw.AppendHeader(table.Row{"Framework", "Covered", "Notes"})
	if termWidth := detectTerminalWidth(w); termWidth > 0 {
		tw.SetColumnConfigs([]table.ColumnConfig{
			{Number: 3, WidthMax: maxInt(20, minInt(80, termWidth-30))},
		})
	}
	for _, item := range res.Items {
		covered := f.color("No", text.FgRed)
		if item.Covered {
			covered = f.color("Yes", text.FgGreen)
		}
		notes := item.Notes
		if notes == "" {
			notes = f.color("-", text.FgHiBlack)
		}
		tw.AppendRow(table.Row{item.Framework.Label, covered, notes})
	}
	tw.Render()
	if res.Raw != "" {
		if _, err := fmt.Fprintf(w, "\nModel output:\n%s\n", f.wrap(res.Raw, w)); err != nil {
			return fmt.Errorf("failed writing raw output: %w", err)
		}
	}
	return nil
}

// RenderRisk writes the greenwashing risk badge and explanation.
func (f *ConsoleFormatter) RenderRisk(ra services.RiskAssessment, w io.Writer) error {
	if _, err := fmt.Fprintf(w, "Greenwashing risk: %s\n", f.severity(ra.Severity)); err != nil {
		return fmt.Errorf("failed writing risk badge: %w", err)
	}
	if ra.Explanation != "" {
		if _, err := fmt.Fprintln(w, f.wrap(ra.Explanation, w)); err != nil {
			return fmt.Errorf("failed writing risk explanation: %w", err)
		}
	}
	return nil
}

// RenderMetrics writes the metric tree as indented JSON.
func (f *ConsoleFormatter) RenderMetrics(m services.MetricsResult, w io.Writer) error {
	_, err := fmt.Fprintln(w, m.Pretty())
	return err
}

// RenderHealth writes the backend health line.
func (f *ConsoleFormatter) RenderHealth(baseURL string, h *backend.Health, w io.Writer) error {
	status := f.color(h.Status, text.FgGreen)
	if h.Status != "ok" {
		status = f.color(h.Status, text.FgYellow)
	}
	_, err := fmt.Fprintf(w, "Backend: %s\n  Status:  %s\n  Model:   %s\n  Reports: %d\n  Chunks:  %d\n",
		baseURL, status, h.Model, h.Reports, h.Chunks)
	return err
}

// RenderError writes a failed action in place of its result.
func (f *ConsoleFormatter) RenderError(action, message string, w io.Writer) error {
	_, err := fmt.Fprintf(w, "%s %s\n", f.color(action+" failed:", text.FgRed), message)
	return err
}

func (f *ConsoleFormatter) severity(s services.Severity) string {
	switch s {
	case services.SeverityLow:
		return f.color(string(s), text.FgGreen)
	case services.SeverityHigh:
		return f.color(string(s), text.FgRed)
	default:
		return f.color(string(s), text.FgYellow)
	}
}

func (f *ConsoleFormatter) wrap(s string, w io.Writer) string {
	width := f.WrapWidth
	if width <= 0 {
		width = detectTerminalWidth(w)
		if width <= 0 || width > defaultWrapWidth {
			width = defaultWrapWidth
		}
	}
	return text.WrapSoft(s, width)
}

// dynamicNameWidth leaves room for the id, pages and upload columns.
func dynamicNameWidth(termWidth int) int {
	if termWidth <= 0 {
		return 48
	}
	if termWidth < 60 {
		termWidth = 60
	}
	return maxInt(15, termWidth-60)
}

// detectTerminalWidth attempts to get terminal width if writer is a file (stdout/stderr).
func detectTerminalWidth(w io.Writer) int {
	if f, ok := w.(*os.File); ok {
		if width, _, err := term.GetSize(int(f.Fd())); err == nil {
			return width
		}
	}
	return -1
}

// truncTransformer returns a text.Transformer to ellipsize overly wide cells.
func truncTransformer(max int) text.Transformer {
	return func(val interface{}) string {
		s := fmt.Sprint(val)
		if runeLen := utf8.RuneCountInString(s); runeLen > max {
			if max <= 1 {
				return "…"
			}
			return truncateRunes(s, max)
		}
		return s
	}
}

// truncateRunes truncates a string to (max) runes with ellipsis.
func truncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	var b strings.Builder
	count := 0
	for _, r := range s {
		if count >= max-1 {
			break
		}
		b.WriteRune(r)
		count++
	}
	b.WriteRune('…')
	return b.String()
}

func (f *ConsoleFormatter) color(s string, c text.Color) string {
	if !f.EnableColors {
		return s
	}
	return text.Colors{c}.Sprint(s)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
