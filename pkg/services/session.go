// Package services orchestrates an analysis session: report selection, the
// five analysis actions (chat, summary, compliance, risk, metrics) and the
// export of the summary artifact.
//
// Every action follows one lifecycle:
//
//	validate preconditions -> gate -> Loading -> backend call -> Success|Error
//
// Preconditions and gate rejections are resolved synchronously, before any
// backend call, and leave the action state untouched. The gate is released
// on every exit path. A result that resolves after the selection changed is
// discarded instead of being shown against the new report.
//
// Run* methods block until the call resolves; run them on goroutines to
// interleave independent actions.
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/greg-hellings/esginsight/pkg/backend"
	"github.com/greg-hellings/esginsight/pkg/export"
	"github.com/greg-hellings/esginsight/pkg/observability"
	"github.com/greg-hellings/esginsight/pkg/state"
)

var (
	// ErrNoSelection is returned when an action needs a selected report.
	ErrNoSelection = errors.New("no report selected")
	// ErrEmptyQuestion is returned for a blank chat question.
	ErrEmptyQuestion = errors.New("question is empty")
	// ErrBusy is returned when the same action is already in flight.
	ErrBusy = errors.New("action already in progress")
	// ErrStaleResponse is returned when a result arrived after the selection
	// changed and was discarded.
	ErrStaleResponse = errors.New("response discarded: selected report changed")
	// ErrNothingToExport is returned when no non-empty summary is available.
	ErrNothingToExport = errors.New("no summary to export")
)

// DefaultTopK is the number of passages retrieved per chat question.
const DefaultTopK = 8

// SessionOptions tunes a Session. Zero values select defaults.
type SessionOptions struct {
	TopK     int
	Exporter *export.Exporter
	Metrics  *observability.Metrics
}

// Session owns the state holders of one client session.
type Session struct {
	client   backend.Client
	topK     int
	exporter *export.Exporter
	metrics  *observability.Metrics

	// mu orders selection changes against result application so a result
	// is checked and applied atomically with respect to Select.
	mu sync.Mutex

	store      *state.ReportStore
	gate       *state.RequestGate
	transcript *state.ChatTranscript

	chat       *state.ActionState[state.ChatMessage]
	summary    *state.ActionState[string]
	compliance *state.ActionState[ComplianceResult]
	risk       *state.ActionState[RiskAssessment]
	metricsRes *state.ActionState[MetricsResult]
}

// NewSession creates a session with no reports and no selection.
func NewSession(client backend.Client, opts SessionOptions) *Session {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.Exporter == nil {
		opts.Exporter = export.New(export.DefaultOptions())
	}
	return &Session{
		client:     client,
		topK:       opts.TopK,
		exporter:   opts.Exporter,
		metrics:    opts.Metrics,
		store:      state.NewReportStore(),
		gate:       state.NewRequestGate(),
		transcript: state.NewChatTranscript(),
		chat:       state.NewActionState[state.ChatMessage](),
		summary:    state.NewActionState[string](),
		compliance: state.NewActionState[ComplianceResult](),
		risk:       state.NewActionState[RiskAssessment](),
		metricsRes: state.NewActionState[MetricsResult](),
	}
}

// Reports returns the known reports in arrival order.
func (s *Session) Reports() []backend.Report { return s.store.Reports() }

// Current returns the selected report.
func (s *Session) Current() (backend.Report, bool) { return s.store.Current() }

// Transcript returns the chat transcript.
func (s *Session) Transcript() *state.ChatTranscript { return s.transcript }

// Busy reports whether key has a call in flight.
func (s *Session) Busy(key state.ActionKey) bool { return s.gate.Held(key) }

// ChatState returns the chat action state; its payload is the last answer.
func (s *Session) ChatState() state.Snapshot[state.ChatMessage] { return s.chat.Snapshot() }

// SummaryState returns the summary action state.
func (s *Session) SummaryState() state.Snapshot[string] { return s.summary.Snapshot() }

// ComplianceState returns the compliance action state.
func (s *Session) ComplianceState() state.Snapshot[ComplianceResult] {
	return s.compliance.Snapshot()
}

// RiskState returns the risk action state.
func (s *Session) RiskState() state.Snapshot[RiskAssessment] { return s.risk.Snapshot() }

// MetricsState returns the metrics action state.
func (s *Session) MetricsState() state.Snapshot[MetricsResult] { return s.metricsRes.Snapshot() }

// Select makes id the current report. Unknown ids are ignored. A change of
// selection resets every action to Idle and drops the summary artifact.
func (s *Session) Select(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.store.Select(id) {
		return false
	}
	slog.Debug("Report selected", "report", id)
	s.resetActionsLocked()
	return true
}

// ClearSelection sets the selection to none.
func (s *Session) ClearSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store.ClearSelection() {
		s.resetActionsLocked()
	}
}

func (s *Session) resetActionsLocked() {
	s.chat.Reset()
	s.summary.Reset()
	s.compliance.Reset()
	s.risk.Reset()
	s.metricsRes.Reset()
}

// replaceReports installs a new report list; a dropped selection resets
// every action like any other selection change.
func (s *Session) replaceReports(reports []backend.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store.Replace(reports) {
		s.resetActionsLocked()
	}
}

// Refresh reloads the report list. On failure the previous list is kept and
// the error is returned.
func (s *Session) Refresh(ctx context.Context) error {
	return s.mutateReports(ctx, "refresh", func(ctx context.Context) ([]backend.Report, error) {
		return s.client.ListReports(ctx)
	})
}

// Upload sends files to the backend and installs the returned list.
func (s *Session) Upload(ctx context.Context, files []backend.Upload) error {
	if len(files) == 0 {
		return errors.New("no files to upload")
	}
	return s.mutateReports(ctx, "upload", func(ctx context.Context) ([]backend.Report, error) {
		return s.client.UploadReports(ctx, files)
	})
}

// LoadSample asks the backend for its sample report and installs the list.
func (s *Session) LoadSample(ctx context.Context) error {
	return s.mutateReports(ctx, "sample", s.client.LoadSample)
}

func (s *Session) mutateReports(ctx context.Context, op string, call func(context.Context) ([]backend.Report, error)) error {
	if !s.gate.TryEnter(state.ActionReports) {
		return fmt.Errorf("%s: %w", op, ErrBusy)
	}
	defer s.leave(state.ActionReports)

	reports, err := call(ctx)
	if err != nil {
		slog.Warn("Report list update failed", "op", op, "error", err)
		return fmt.Errorf("%s reports: %w", op, err)
	}
	s.replaceReports(reports)
	slog.Info("Report list updated", "op", op, "reports", len(reports))
	return nil
}

// Preview returns the leading text of the selected report.
func (s *Session) Preview(ctx context.Context) (string, error) {
	rep, ok := s.store.Current()
	if !ok {
		return "", ErrNoSelection
	}
	text, err := s.client.Preview(ctx, rep.ID)
	if err != nil {
		return "", fmt.Errorf("preview %s: %w", rep.ID, err)
	}
	return text, nil
}

// SummaryArtifact returns the exportable summary text. It is available only
// after a successful summary with non-blank text for the current selection.
func (s *Session) SummaryArtifact() (string, bool) {
	snap := s.summary.Snapshot()
	if snap.Phase != state.PhaseSuccess || strings.TrimSpace(snap.Payload) == "" {
		return "", false
	}
	return snap.Payload, true
}

// CanExport reports whether ExportSummary would produce a document.
func (s *Session) CanExport() bool {
	_, ok := s.SummaryArtifact()
	return ok
}

// ExportSummary renders the current summary artifact as a PDF to w.
func (s *Session) ExportSummary(w io.Writer) (*export.Layout, error) {
	text, ok := s.SummaryArtifact()
	if !ok {
		return nil, ErrNothingToExport
	}
	return s.exporter.Export(text, w)
}

func (s *Session) leave(key state.ActionKey) {
	if err := s.gate.Leave(key); err != nil {
		// Only reachable through a programming error; the gate is entered
		// exactly once per leave.
		slog.Error("Request gate release failed", "action", key, "error", err)
	}
}
