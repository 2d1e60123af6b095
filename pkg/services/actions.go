package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/greg-hellings/esginsight/pkg/backend"
	"github.com/greg-hellings/esginsight/pkg/observability"
	"github.com/greg-hellings/esginsight/pkg/state"
)

// ticket is an admitted call: the report and selection generation it was
// issued against.
type ticket struct {
	key        state.ActionKey
	report     backend.Report
	generation uint64
	started    time.Time
}

// admit validates the selection and takes the gate for key. On success the
// caller must finish with s.leave(key). begin runs under the session lock
// after admission.
func (s *Session) admit(ctx context.Context, key state.ActionKey, begin func() error) (ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rep, ok := s.store.Current()
	if !ok {
		s.metrics.RecordAction(ctx, string(key), observability.OutcomeRejected, 0)
		return ticket{}, ErrNoSelection
	}
	if !s.gate.TryEnter(key) {
		s.metrics.RecordAction(ctx, string(key), observability.OutcomeRejected, 0)
		return ticket{}, fmt.Errorf("%s: %w", key, ErrBusy)
	}
	if err := begin(); err != nil {
		s.leave(key)
		return ticket{}, fmt.Errorf("%s: %w", key, err)
	}
	return ticket{key: key, report: rep, generation: s.store.Generation(), started: time.Now()}, nil
}

// settle applies a resolved call under the session lock unless the
// selection moved on since the ticket was issued. It returns
// ErrStaleResponse for discarded results.
func (s *Session) settle(ctx context.Context, t ticket, callErr error, apply func(stale bool) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	elapsed := time.Since(t.started)
	stale := s.store.Generation() != t.generation
	if stale {
		slog.Debug("Discarding response for superseded selection",
			"action", t.key, "report", t.report.ID, "elapsed", elapsed.String())
		s.metrics.RecordAction(ctx, string(t.key), observability.OutcomeDiscarded, elapsed)
		if err := apply(true); err != nil {
			return err
		}
		return ErrStaleResponse
	}

	if callErr != nil {
		attrs := []any{"action", t.key, "report", t.report.ID, "error", callErr}
		var apiErr *backend.APIError
		if errors.As(callErr, &apiErr) {
			attrs = append(attrs, "status", apiErr.StatusCode)
		}
		slog.Warn("Analysis action failed", attrs...)
		s.metrics.RecordAction(ctx, string(t.key), observability.OutcomeError, elapsed)
	} else {
		slog.Info("Analysis action complete", "action", t.key, "report", t.report.ID, "elapsed", elapsed.String())
		s.metrics.RecordAction(ctx, string(t.key), observability.OutcomeSuccess, elapsed)
	}
	if err := apply(false); err != nil {
		return err
	}
	return callErr
}

// runReportAction drives the shared lifecycle for the per-report actions.
func runReportAction[T any](
	ctx context.Context,
	s *Session,
	key state.ActionKey,
	st *state.ActionState[T],
	call func(ctx context.Context, reportID string) (T, error),
) (T, error) {
	var zero T
	t, err := s.admit(ctx, key, st.Begin)
	if err != nil {
		return zero, err
	}
	defer s.leave(key)

	val, callErr := call(ctx, t.report.ID)

	err = s.settle(ctx, t, callErr, func(stale bool) error {
		if stale {
			// The selection change already reset this state to Idle.
			return nil
		}
		if callErr != nil {
			return st.Fail(backend.ErrorMessage(callErr))
		}
		return st.Succeed(val)
	})
	if err != nil {
		return zero, err
	}
	return val, nil
}

// RunSummary generates the executive summary for the selected report. The
// returned text becomes the exportable artifact.
func (s *Session) RunSummary(ctx context.Context) (string, error) {
	return runReportAction(ctx, s, state.ActionSummary, s.summary,
		func(ctx context.Context, id string) (string, error) {
			resp, err := s.client.Summary(ctx, id)
			if err != nil {
				return "", err
			}
			return resp.SummaryMD, nil
		})
}

// RunCompliance checks framework coverage for the selected report.
func (s *Session) RunCompliance(ctx context.Context) (ComplianceResult, error) {
	return runReportAction(ctx, s, state.ActionCompliance, s.compliance,
		func(ctx context.Context, id string) (ComplianceResult, error) {
			resp, err := s.client.Compliance(ctx, id)
			if err != nil {
				return ComplianceResult{}, err
			}
			return NewComplianceResult(resp), nil
		})
}

// RunRisk assesses greenwashing risk for the selected report.
func (s *Session) RunRisk(ctx context.Context) (RiskAssessment, error) {
	return runReportAction(ctx, s, state.ActionRisk, s.risk,
		func(ctx context.Context, id string) (RiskAssessment, error) {
			resp, err := s.client.Risk(ctx, id)
			if err != nil {
				return RiskAssessment{}, err
			}
			return NewRiskAssessment(resp), nil
		})
}

// RunMetrics extracts structured metrics for the selected report.
func (s *Session) RunMetrics(ctx context.Context) (MetricsResult, error) {
	return runReportAction(ctx, s, state.ActionMetrics, s.metricsRes,
		func(ctx context.Context, id string) (MetricsResult, error) {
			resp, err := s.client.Metrics(ctx, id)
			if err != nil {
				return MetricsResult{}, err
			}
			return NewMetricsResult(resp), nil
		})
}
