package main

import (
	"bytes"
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/greg-hellings/esginsight/internal/testutil"
	"github.com/greg-hellings/esginsight/pkg/config"
)

// run executes the CLI against the fake backend with colors disabled.
func run(t *testing.T, fake *testutil.Backend, stdin string, args ...string) (string, error) {
	t.Helper()
	// Keep preferences out of the real user config dir. Runs within one
	// test share the file.
	if os.Getenv(config.EnvStateFile) == "" {
		t.Setenv(config.EnvStateFile, filepath.Join(t.TempDir(), "state.yaml"))
	}
	root := newRootCmd()
	root.SilenceUsage = true
	root.SilenceErrors = true
	root.SetArgs(append([]string{"--backend", fake.URL(), "--no-color"}, args...))
	if stdin != "" {
		root.SetIn(strings.NewReader(stdin))
	}
	return executeCommand(root)
}

// Helper: execute a Cobra command capturing stdout
func executeCommand(root *cobra.Command) (string, error) {
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	err := root.Execute()
	return buf.String(), err
}

func newFake(t *testing.T) *testutil.Backend {
	t.Helper()
	fake := testutil.NewBackend(t)
	fake.AddReport("afrigrid_2024.pdf", testutil.SampleText)
	fake.AddReport("sahel_mining_2023.txt", "Sahel Mining sustainability report.")
	return fake
}

func TestCLIVersion(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"version"})
	output, err := executeCommand(root)
	if err != nil {
		t.Fatalf("command returned error: %v", err)
	}
	expectContains(t, output, "esginsight version: dev", "version line missing")
}

func TestCLIStatus(t *testing.T) {
	fake := newFake(t)
	output, err := run(t, fake, "", "status")
	if err != nil {
		t.Fatalf("command returned error: %v\nOutput: %s", err, output)
	}
	expectContains(t, output, "Status:  ok", "health status missing")
	expectContains(t, output, "Reports: 2", "report count missing")
}

func TestCLIReports(t *testing.T) {
	fake := newFake(t)
	output, err := run(t, fake, "", "reports")
	if err != nil {
		t.Fatalf("command returned error: %v\nOutput: %s", err, output)
	}
	expectContains(t, output, "afrigrid_2024.pdf", "first report missing")
	expectContains(t, output, "sahel_mining_2023.txt", "second report missing")
}

func TestCLIReportsUploadAndSample(t *testing.T) {
	fake := testutil.NewBackend(t)
	path := filepath.Join(t.TempDir(), "acme_2024.txt")
	if err := os.WriteFile(path, []byte("Acme ESG report"), 0o600); err != nil {
		t.Fatalf("failed to write report: %v", err)
	}

	output, err := run(t, fake, "", "reports", "upload", path, filepath.Join(t.TempDir(), "missing.pdf"))
	if err != nil {
		t.Fatalf("upload returned error: %v\nOutput: %s", err, output)
	}
	expectContains(t, output, "acme_2024.txt", "uploaded report missing")
	if got := fake.Uploads(); len(got) != 1 || got[0] != "acme_2024.txt" {
		t.Errorf("expected only the readable file to be uploaded, got %v", got)
	}

	output, err = run(t, fake, "", "reports", "sample")
	if err != nil {
		t.Fatalf("sample returned error: %v\nOutput: %s", err, output)
	}
	expectContains(t, output, "Sample_ESG_Report_2024_Afrigrid.txt", "sample report missing")
}

func TestCLIChat(t *testing.T) {
	fake := newFake(t)
	output, err := run(t, fake, "", "chat", "-r", "1", "What", "were", "Scope", "1", "emissions?")
	if err != nil {
		t.Fatalf("command returned error: %v\nOutput: %s", err, output)
	}
	expectContains(t, output, "You: What were Scope 1 emissions?", "question missing")
	expectContains(t, output, "Assistant: Scope 1 emissions were 130000 tCO2e", "answer missing")
	expectContains(t, output, "page 1", "citation missing")

	queries := fake.Queries()
	if len(queries) != 1 || len(queries[0].ReportIDs) != 1 {
		t.Fatalf("expected one scoped query, got %+v", queries)
	}
}

func TestCLIChatRequiresReport(t *testing.T) {
	fake := newFake(t)
	_, err := run(t, fake, "", "chat", "hello")
	if err == nil || !strings.Contains(err.Error(), "--report") {
		t.Fatalf("expected missing report error, got %v", err)
	}
	if fake.Hits(testutil.RouteQuery) != 0 {
		t.Errorf("expected no query to be sent")
	}

	_, err = run(t, fake, "", "chat", "-r", "9", "hello")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected unknown report error, got %v", err)
	}
}

func TestCLIChatFailureShowsError(t *testing.T) {
	fake := newFake(t)
	fake.Fail(testutil.RouteQuery, http.StatusInternalServerError, "")
	output, err := run(t, fake, "", "chat", "-r", "1", "Scope 3?")
	if err == nil {
		t.Fatalf("expected error, got success. Output: %s", output)
	}
	expectContains(t, output, "Error: Request failed. Please try again.", "error placeholder missing")
	expectContains(t, err.Error(), "chat failed", "error should name the action")
}

func TestCLISummaryExport(t *testing.T) {
	fake := newFake(t)
	out := filepath.Join(t.TempDir(), "nested", "summary.pdf")
	output, err := run(t, fake, "", "summary", "-r", "1", "--out", out)
	if err != nil {
		t.Fatalf("command returned error: %v\nOutput: %s", err, output)
	}
	expectContains(t, output, "Afrigrid Energy Plc", "summary text missing")
	expectContains(t, output, "Saved "+out, "export confirmation missing")

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("expected PDF to be written: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		t.Errorf("output is not a PDF")
	}
}

func TestCLISummaryBlankNotExported(t *testing.T) {
	fake := newFake(t)
	fake.SetSummary("   ")
	out := filepath.Join(t.TempDir(), "summary.pdf")
	_, err := run(t, fake, "", "summary", "-r", "1", "--out", out)
	if err == nil || !strings.Contains(err.Error(), "no summary to export") {
		t.Fatalf("expected nothing-to-export error, got %v", err)
	}
	if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
		t.Errorf("expected no file to be written")
	}
}

func TestCLIComplianceRiskMetrics(t *testing.T) {
	fake := newFake(t)

	output, err := run(t, fake, "", "compliance", "-r", "1")
	if err != nil {
		t.Fatalf("compliance returned error: %v\nOutput: %s", err, output)
	}
	expectContains(t, output, "IFRS S2", "framework row missing")
	expectContains(t, output, "GRI Standards referenced", "notes missing")

	output, err = run(t, fake, "", "risk", "-r", "1")
	if err != nil {
		t.Fatalf("risk returned error: %v\nOutput: %s", err, output)
	}
	expectContains(t, output, "Greenwashing risk: Low", "risk badge missing")

	output, err = run(t, fake, "", "metrics", "-r", "2")
	if err != nil {
		t.Fatalf("metrics returned error: %v\nOutput: %s", err, output)
	}
	expectContains(t, output, `"scope1_tco2e": 130000`, "metric missing")
}

func TestCLIAnalyzePartialFailure(t *testing.T) {
	fake := newFake(t)
	fake.Fail(testutil.RouteCompliance, http.StatusBadGateway, "LLM quota exceeded")

	output, err := run(t, fake, "", "analyze", "-r", "1")
	if err == nil {
		t.Fatalf("expected error, got success. Output: %s", output)
	}
	expectContains(t, err.Error(), "1 of 4 analyses failed", "failure count missing")
	expectContains(t, output, "compliance failed: LLM quota exceeded", "compliance error missing")
	expectContains(t, output, "Greenwashing risk: Low", "risk result missing")
	expectContains(t, output, "Executive Summary", "summary result missing")
	expectContains(t, output, `"emissions"`, "metrics result missing")
}

func TestCLIShell(t *testing.T) {
	fake := newFake(t)
	script := strings.Join([]string{
		"/summary",
		"/select 2",
		"What about water?",
		"/select 1",
		"/risk",
		"/history",
		"/bogus",
		"/quit",
		"never read",
	}, "\n")

	output, err := run(t, fake, script, "shell")
	if err != nil {
		t.Fatalf("shell returned error: %v\nOutput: %s", err, output)
	}
	expectContains(t, output, "summary failed: no report selected", "precondition message missing")
	expectContains(t, output, "Selected sahel_mining_2023.txt", "selection message missing")
	expectContains(t, output, "Assistant: Scope 1 emissions were", "chat answer missing")
	expectContains(t, output, "Greenwashing risk: Low", "risk missing")
	expectContains(t, output, "You: What about water?", "history missing")
	expectContains(t, output, "unknown command /bogus", "unknown command message missing")
	if fake.Hits(testutil.RouteSummary) != 0 {
		t.Errorf("summary must not be requested without a selection")
	}
}

func TestCLIShellHintsLastReport(t *testing.T) {
	fake := newFake(t)
	output, err := run(t, fake, "/select 2\n/quit\n", "shell")
	if err != nil {
		t.Fatalf("shell returned error: %v\nOutput: %s", err, output)
	}
	expectContains(t, output, "Selected sahel_mining_2023.txt", "selection message missing")

	// A new run starts with no selection and only mentions the last report.
	output, err = run(t, fake, "/summary\n/quit\n", "shell")
	if err != nil {
		t.Fatalf("shell returned error: %v\nOutput: %s", err, output)
	}
	expectContains(t, output, "Last used: sahel_mining_2023.txt (/select rep_2_", "last report hint missing")
	expectContains(t, output, "summary failed: no report selected", "remembered report must not be selected")
	if strings.Contains(output, "esg[sahel_mining_2023.txt]> ") {
		t.Errorf("remembered report was selected without a user choice:\n%s", output)
	}
	if fake.Hits(testutil.RouteSummary) != 0 {
		t.Errorf("summary must not be requested without a selection")
	}

	// An explicit --report selects and suppresses the hint.
	output, err = run(t, fake, "/quit\n", "shell", "-r", "1")
	if err != nil {
		t.Fatalf("shell returned error: %v\nOutput: %s", err, output)
	}
	expectContains(t, output, "esg[afrigrid_2024.pdf]> ", "flag selection missing")
	if strings.Contains(output, "Last used:") {
		t.Errorf("hint should not be shown when --report is given")
	}
}

func TestCLIShellRecentExports(t *testing.T) {
	fake := newFake(t)
	out := filepath.Join(t.TempDir(), "pack.pdf")
	script := strings.Join([]string{"/recent", "/summary", "/export " + out, "/recent", "/quit"}, "\n")
	output, err := run(t, fake, script, "shell", "-r", "1")
	if err != nil {
		t.Fatalf("shell returned error: %v\nOutput: %s", err, output)
	}
	expectContains(t, output, "No exports yet.", "empty recent list message missing")
	expectContains(t, output, "Saved "+out, "export message missing")
	if strings.Count(output, out) < 2 {
		t.Errorf("expected export to be listed by /recent, got:\n%s", output)
	}
}

func TestCLIUnreachableBackend(t *testing.T) {
	fake := newFake(t)
	fake.Close()
	_, err := run(t, fake, "", "reports")
	if err == nil || !strings.Contains(err.Error(), "Could not reach the analysis service.") {
		t.Fatalf("expected transport error message, got %v", err)
	}
}

func TestCLIInvalidBackendFlag(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"--backend", "not-a-url", "reports"})
	_, err := executeCommand(root)
	if err == nil || !strings.Contains(err.Error(), "invalid --backend") {
		t.Fatalf("expected invalid backend error, got %v", err)
	}
}

func TestResolveReport(t *testing.T) {
	fake := newFake(t)
	reports := fake.Client(t)
	list, err := reports.ListReports(context.Background())
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	byIndex, err := resolveReport(list, "2")
	if err != nil || byIndex.ID != list[1].ID {
		t.Errorf("expected index 2 to resolve to %s, got %v %v", list[1].ID, byIndex.ID, err)
	}
	byID, err := resolveReport(list, list[0].ID)
	if err != nil || byID.ID != list[0].ID {
		t.Errorf("expected id lookup to succeed, got %v %v", byID.ID, err)
	}
	if _, err := resolveReport(list, "0"); err == nil {
		t.Error("expected index 0 to fail")
	}
}

// Helper: minimal contains assertion
func expectContains(t *testing.T, s, substr, msg string) {
	t.Helper()
	if !strings.Contains(s, substr) {
		t.Fatalf("%s: expected %q to contain %q", msg, s, substr)
	}
}
