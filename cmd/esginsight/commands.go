package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/greg-hellings/esginsight/pkg/backend"
	"github.com/greg-hellings/esginsight/pkg/services"
	"github.com/greg-hellings/esginsight/pkg/state"
)

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check that the analysis service is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := a.client.Health(cmd.Context())
			if err != nil {
				return fmt.Errorf("health check failed: %s", backend.ErrorMessage(err))
			}
			return a.formatter.RenderHealth(a.cfg.Backend.BaseURL, h, cmd.OutOrStdout())
		},
	}
}

func newReportsCmd(a *app) *cobra.Command {
	c := &cobra.Command{
		Use:     "reports",
		Aliases: []string{"ls"},
		Short:   "List uploaded reports",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.session.Refresh(cmd.Context()); err != nil {
				return fmt.Errorf("failed to load reports: %s", backend.ErrorMessage(err))
			}
			return a.formatter.RenderReports(a.session.Reports(), "", cmd.OutOrStdout())
		},
	}

	c.AddCommand(&cobra.Command{
		Use:   "upload <file>...",
		Short: "Upload PDF or TXT reports for indexing",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := uploadFiles(cmd.Context(), a, args); err != nil {
				return err
			}
			return a.formatter.RenderReports(a.session.Reports(), "", cmd.OutOrStdout())
		},
	})

	c.AddCommand(&cobra.Command{
		Use:   "sample",
		Short: "Load the built-in sample report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.session.LoadSample(cmd.Context()); err != nil {
				return fmt.Errorf("failed to load sample: %s", backend.ErrorMessage(err))
			}
			return a.formatter.RenderReports(a.session.Reports(), "", cmd.OutOrStdout())
		},
	})

	var ref string
	preview := &cobra.Command{
		Use:   "preview",
		Short: "Show the leading text of a report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.selectReport(cmd.Context(), ref); err != nil {
				return err
			}
			text, err := a.session.Preview(cmd.Context())
			if err != nil {
				return actionError("preview", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), text)
			return err
		},
	}
	addReportFlag(preview, &ref)
	c.AddCommand(preview)

	return c
}

// uploadFiles opens every path and uploads them in one request. Paths that
// cannot be opened are skipped with a warning.
func uploadFiles(ctx context.Context, a *app, paths []string) error {
	var uploads []backend.Upload
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			slog.Warn("Skipping unreadable file", "path", p, "error", err)
			continue
		}
		defer f.Close()
		uploads = append(uploads, backend.Upload{Name: filepath.Base(p), Content: f})
	}
	if len(uploads) == 0 {
		return errors.New("no readable files to upload")
	}
	if err := a.session.Upload(ctx, uploads); err != nil {
		return fmt.Errorf("upload failed: %s", backend.ErrorMessage(err))
	}
	return nil
}

func addReportFlag(c *cobra.Command, ref *string) {
	c.Flags().StringVarP(ref, "report", "r", "", "Report id or list number (see 'esginsight reports')")
}

func newChatCmd(a *app) *cobra.Command {
	var ref string
	c := &cobra.Command{
		Use:   "chat <question>...",
		Short: "Ask a question about a report",
		Long: strings.TrimSpace(`
Ask a question about the selected report. The answer is printed with the
pages it was drawn from.

Examples:
  esginsight chat -r 1 What were Scope 1 emissions in 2024?
  esginsight chat -r rep_1_1700000000 "Does the company disclose water use?"
`),
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.selectReport(cmd.Context(), ref); err != nil {
				return err
			}
			before := a.session.Transcript().Len()
			_, askErr := a.session.Ask(cmd.Context(), strings.Join(args, " "))
			if err := a.formatter.RenderTranscript(a.session.Transcript().Since(before), cmd.OutOrStdout()); err != nil {
				return err
			}
			if askErr != nil {
				return actionError("chat", askErr)
			}
			return nil
		},
	}
	addReportFlag(c, &ref)
	return c
}

func newSummaryCmd(a *app) *cobra.Command {
	var (
		ref      string
		doExport bool
		out      string
	)
	c := &cobra.Command{
		Use:   "summary",
		Short: "Generate an executive summary (optionally as PDF)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.selectReport(cmd.Context(), ref); err != nil {
				return err
			}
			md, err := a.session.RunSummary(cmd.Context())
			if err != nil {
				return actionError("summary", err)
			}
			if err := a.formatter.RenderSummary(md, cmd.OutOrStdout()); err != nil {
				return err
			}
			if doExport || out != "" {
				return exportSummary(a, out, cmd.OutOrStdout())
			}
			return nil
		},
	}
	addReportFlag(c, &ref)
	c.Flags().BoolVar(&doExport, "export", false, "Write the summary to a PDF file")
	c.Flags().StringVarP(&out, "out", "o", "", "PDF path (implies --export; default from config)")
	return c
}

// exportSummary writes the session's summary artifact to path, or to the
// configured filename when path is empty.
func exportSummary(a *app, path string, w io.Writer) error {
	if !a.session.CanExport() {
		return fmt.Errorf("export: %w", services.ErrNothingToExport)
	}
	if path == "" {
		path = a.cfg.Export.Filename
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	layout, err := a.session.ExportSummary(f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("failed to export summary: %w", err)
	}
	slog.Info("Summary exported", "path", path, "pages", len(layout.Pages), "lines", layout.LineCount())
	if abs, absErr := filepath.Abs(path); absErr == nil {
		prefs := a.loadPrefs()
		prefs.AppendRecentExport(abs)
		a.savePrefs(prefs)
	}
	_, err = fmt.Fprintf(w, "\nSaved %s (%d page(s))\n", path, len(layout.Pages))
	return err
}

func newComplianceCmd(a *app) *cobra.Command {
	var ref string
	c := &cobra.Command{
		Use:   "compliance",
		Short: "Check coverage of SDGs, GRI, SASB, IFRS S1 and IFRS S2",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.selectReport(cmd.Context(), ref); err != nil {
				return err
			}
			res, err := a.session.RunCompliance(cmd.Context())
			if err != nil {
				return actionError("compliance", err)
			}
			return a.formatter.RenderCompliance(res, cmd.OutOrStdout())
		},
	}
	addReportFlag(c, &ref)
	return c
}

func newRiskCmd(a *app) *cobra.Command {
	var ref string
	c := &cobra.Command{
		Use:   "risk",
		Short: "Assess greenwashing risk",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.selectReport(cmd.Context(), ref); err != nil {
				return err
			}
			res, err := a.session.RunRisk(cmd.Context())
			if err != nil {
				return actionError("risk", err)
			}
			return a.formatter.RenderRisk(res, cmd.OutOrStdout())
		},
	}
	addReportFlag(c, &ref)
	return c
}

func newMetricsCmd(a *app) *cobra.Command {
	var ref string
	c := &cobra.Command{
		Use:   "metrics",
		Short: "Extract structured ESG metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.selectReport(cmd.Context(), ref); err != nil {
				return err
			}
			res, err := a.session.RunMetrics(cmd.Context())
			if err != nil {
				return actionError("metrics", err)
			}
			return a.formatter.RenderMetrics(res, cmd.OutOrStdout())
		},
	}
	addReportFlag(c, &ref)
	return c
}

func newAnalyzeCmd(a *app) *cobra.Command {
	var (
		ref      string
		doExport bool
		out      string
	)
	c := &cobra.Command{
		Use:   "analyze",
		Short: "Run summary, compliance, risk and metrics concurrently",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.selectReport(cmd.Context(), ref); err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			var mu sync.Mutex
			failures, err := a.session.AnalyzeAll(cmd.Context(), func(key state.ActionKey, err error) {
				mu.Lock()
				defer mu.Unlock()
				if renderErr := renderActionResult(a, key, err, w); renderErr != nil {
					slog.Warn("Failed to render result", "action", key, "error", renderErr)
				}
			})
			if err != nil {
				return actionError("analyze", err)
			}
			if (doExport || out != "") && a.session.CanExport() {
				if err := exportSummary(a, out, w); err != nil {
					return err
				}
			}
			if len(failures) > 0 {
				return fmt.Errorf("%d of %d analyses failed", len(failures), len(services.AnalyzeActions))
			}
			return nil
		},
	}
	addReportFlag(c, &ref)
	c.Flags().BoolVar(&doExport, "export", false, "Write the summary to a PDF file when it succeeds")
	c.Flags().StringVarP(&out, "out", "o", "", "PDF path (implies --export; default from config)")
	return c
}

// renderActionResult prints the current state of one report action.
func renderActionResult(a *app, key state.ActionKey, err error, w io.Writer) error {
	if _, werr := fmt.Fprintf(w, "\n== %s ==\n", strings.ToUpper(string(key))); werr != nil {
		return werr
	}
	if err != nil {
		if errors.Is(err, services.ErrStaleResponse) {
			return a.formatter.RenderError(string(key), err.Error(), w)
		}
		return a.formatter.RenderError(string(key), backend.ErrorMessage(err), w)
	}
	s := a.session
	switch key {
	case state.ActionSummary:
		return a.formatter.RenderSummary(s.SummaryState().Payload, w)
	case state.ActionCompliance:
		return a.formatter.RenderCompliance(s.ComplianceState().Payload, w)
	case state.ActionRisk:
		return a.formatter.RenderRisk(s.RiskState().Payload, w)
	case state.ActionMetrics:
		return a.formatter.RenderMetrics(s.MetricsState().Payload, w)
	}
	return nil
}
