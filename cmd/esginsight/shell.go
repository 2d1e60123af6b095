package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/greg-hellings/esginsight/pkg/backend"
	"github.com/greg-hellings/esginsight/pkg/state"
)

const shellHelp = `Commands:
  /reports            list reports (current marked with *)
  /select <id|n>      select a report
  /preview            show the start of the selected report
  /summary            generate the executive summary
  /export [file]      save the last summary as PDF
  /compliance         framework coverage
  /risk               greenwashing risk
  /metrics            structured metrics
  /analyze            summary, compliance, risk and metrics together
  /refresh            reload the report list
  /sample             load the sample report
  /upload <files>     upload PDF or TXT files
  /history            show the chat transcript
  /recent             recently exported PDFs
  /help               this text
  /quit               leave the shell
Anything else is sent as a chat question about the selected report.`

func newShellCmd(a *app) *cobra.Command {
	var ref string
	c := &cobra.Command{
		Use:   "shell",
		Short: "Interactive session: select a report, chat and run analyses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sh := &shell{a: a, in: cmd.InOrStdin(), out: cmd.OutOrStdout(), prefs: a.loadPrefs()}
			if err := a.session.Refresh(cmd.Context()); err != nil {
				sh.printError("reports", err)
			}
			if ref != "" {
				sh.selectRef(ref)
			} else {
				sh.hintLastReport()
			}
			return sh.run(cmd.Context())
		},
	}
	addReportFlag(c, &ref)
	return c
}

// shell is a line-oriented REPL over one session.
type shell struct {
	a     *app
	in    io.Reader
	out   io.Writer
	prefs *state.Preferences
}

func (sh *shell) run(ctx context.Context) error {
	fmt.Fprintln(sh.out, "esginsight shell. Type /help for commands.")
	scanner := bufio.NewScanner(sh.in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for {
		fmt.Fprint(sh.out, sh.prompt())
		if !scanner.Scan() {
			fmt.Fprintln(sh.out)
			return scanner.Err()
		}
		if quit := sh.exec(ctx, scanner.Text()); quit {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (sh *shell) prompt() string {
	if rep, ok := sh.a.session.Current(); ok {
		return fmt.Sprintf("esg[%s]> ", rep.Name)
	}
	return "esg> "
}

// exec runs one input line and reports whether the shell should exit.
func (sh *shell) exec(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		sh.ask(ctx, line)
		return false
	}

	fields := strings.Fields(line)
	name, args := fields[0], fields[1:]
	s := sh.a.session
	f := sh.a.formatter

	switch name {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Fprintln(sh.out, shellHelp)
	case "/reports":
		sh.listReports()
	case "/refresh":
		if err := s.Refresh(ctx); err != nil {
			sh.printError("refresh", err)
			return false
		}
		sh.listReports()
	case "/sample":
		if err := s.LoadSample(ctx); err != nil {
			sh.printError("sample", err)
			return false
		}
		sh.listReports()
	case "/upload":
		if len(args) == 0 {
			fmt.Fprintln(sh.out, "usage: /upload <file>...")
			return false
		}
		if err := uploadFiles(ctx, sh.a, args); err != nil {
			fmt.Fprintln(sh.out, err)
			return false
		}
		sh.listReports()
	case "/select":
		if len(args) != 1 {
			fmt.Fprintln(sh.out, "usage: /select <id|n>")
			return false
		}
		sh.selectRef(args[0])
	case "/preview":
		text, err := s.Preview(ctx)
		if err != nil {
			sh.printError("preview", err)
			return false
		}
		fmt.Fprintln(sh.out, text)
	case "/summary":
		if _, err := s.RunSummary(ctx); err != nil {
			sh.printError("summary", err)
			return false
		}
		sh.render(renderActionResult(sh.a, state.ActionSummary, nil, sh.out))
		fmt.Fprintln(sh.out, "Use /export to save it as PDF.")
	case "/export":
		path := ""
		if len(args) > 0 {
			path = args[0]
		}
		if err := exportSummary(sh.a, path, sh.out); err != nil {
			fmt.Fprintln(sh.out, err)
		}
	case "/compliance":
		if _, err := s.RunCompliance(ctx); err != nil {
			sh.printError("compliance", err)
			return false
		}
		sh.render(renderActionResult(sh.a, state.ActionCompliance, nil, sh.out))
	case "/risk":
		if _, err := s.RunRisk(ctx); err != nil {
			sh.printError("risk", err)
			return false
		}
		sh.render(renderActionResult(sh.a, state.ActionRisk, nil, sh.out))
	case "/metrics":
		if _, err := s.RunMetrics(ctx); err != nil {
			sh.printError("metrics", err)
			return false
		}
		sh.render(renderActionResult(sh.a, state.ActionMetrics, nil, sh.out))
	case "/analyze":
		_, err := s.AnalyzeAll(ctx, func(key state.ActionKey, err error) {
			sh.render(renderActionResult(sh.a, key, err, sh.out))
		})
		if err != nil {
			sh.printError("analyze", err)
		}
	case "/recent":
		recent := sh.a.loadPrefs().RecentExports
		if len(recent) == 0 {
			fmt.Fprintln(sh.out, "No exports yet.")
		}
		for _, p := range recent {
			fmt.Fprintln(sh.out, p)
		}
	case "/history":
		sh.render(f.RenderTranscript(s.Transcript().Messages(), sh.out))
	default:
		fmt.Fprintf(sh.out, "unknown command %s (try /help)\n", name)
	}
	return false
}

func (sh *shell) ask(ctx context.Context, question string) {
	s := sh.a.session
	before := s.Transcript().Len()
	_, err := s.Ask(ctx, question)
	// Only the new answer; the question was typed by the user.
	msgs := s.Transcript().Since(before)
	if len(msgs) > 1 {
		sh.render(sh.a.formatter.RenderChatMessage(msgs[len(msgs)-1], sh.out))
		return
	}
	if err != nil {
		sh.printError("chat", err)
	}
}

func (sh *shell) listReports() {
	selected := ""
	if rep, ok := sh.a.session.Current(); ok {
		selected = rep.ID
	}
	sh.render(sh.a.formatter.RenderReports(sh.a.session.Reports(), selected, sh.out))
}

func (sh *shell) selectRef(ref string) {
	rep, err := resolveReport(sh.a.session.Reports(), ref)
	if err != nil {
		fmt.Fprintln(sh.out, err)
		return
	}
	if sh.a.session.Select(rep.ID) {
		fmt.Fprintf(sh.out, "Selected %s\n", rep.Name)
		sh.prefs.RememberReport(sh.a.cfg.Backend.BaseURL, rep.ID)
		sh.a.savePrefs(sh.prefs)
	}
}

// hintLastReport mentions the report used in an earlier run, if it is still
// listed. Selection stays empty until the user picks a report.
func (sh *shell) hintLastReport() {
	id, ok := sh.prefs.LastReport(sh.a.cfg.Backend.BaseURL)
	if !ok {
		return
	}
	if rep, found := findReport(sh.a.session.Reports(), id); found {
		fmt.Fprintf(sh.out, "Last used: %s (/select %s to resume)\n", rep.Name, rep.ID)
	}
}

func findReport(reports []backend.Report, id string) (backend.Report, bool) {
	for _, r := range reports {
		if r.ID == id {
			return r, true
		}
	}
	return backend.Report{}, false
}

func (sh *shell) printError(action string, err error) {
	sh.render(sh.a.formatter.RenderError(action, actionMessage(err), sh.out))
}

func (sh *shell) render(err error) {
	if err != nil {
		fmt.Fprintf(sh.out, "render error: %v\n", err)
	}
}

// actionMessage is the user-facing text for a failed action.
func actionMessage(err error) string {
	var apiErr *backend.APIError
	var tErr *backend.TransportError
	if errors.As(err, &apiErr) || errors.As(err, &tErr) {
		return backend.ErrorMessage(err)
	}
	return err.Error()
}
