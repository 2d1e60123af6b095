package services

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/greg-hellings/esginsight/pkg/state"
)

// AnalyzeActions are the report-level actions run by AnalyzeAll.
var AnalyzeActions = []state.ActionKey{
	state.ActionSummary,
	state.ActionCompliance,
	state.ActionRisk,
	state.ActionMetrics,
}

// AnalyzeAll runs summary, compliance, risk and metrics concurrently for
// the selected report. Each action keeps its own gate and state, so one
// failing does not affect the others. onDone, if set, is called as each
// action resolves, in completion order. The returned map holds the error of
// every action that did not succeed.
func (s *Session) AnalyzeAll(ctx context.Context, onDone func(key state.ActionKey, err error)) (map[state.ActionKey]error, error) {
	if _, ok := s.store.Current(); !ok {
		return nil, ErrNoSelection
	}

	runners := map[state.ActionKey]func(context.Context) error{
		state.ActionSummary: func(ctx context.Context) error {
			_, err := s.RunSummary(ctx)
			return err
		},
		state.ActionCompliance: func(ctx context.Context) error {
			_, err := s.RunCompliance(ctx)
			return err
		},
		state.ActionRisk: func(ctx context.Context) error {
			_, err := s.RunRisk(ctx)
			return err
		},
		state.ActionMetrics: func(ctx context.Context) error {
			_, err := s.RunMetrics(ctx)
			return err
		},
	}

	results := make(chan actionResult, len(AnalyzeActions))
	// A plain group: failures are per action and must not cancel siblings.
	var g errgroup.Group
	for _, key := range AnalyzeActions {
		key := key
		run := runners[key]
		g.Go(func() error {
			results <- actionResult{key: key, err: run(ctx)}
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(results)
	}()

	failures := make(map[state.ActionKey]error)
	for r := range results {
		if r.err != nil {
			failures[r.key] = r.err
		}
		if onDone != nil {
			onDone(r.key, r.err)
		}
	}
	return failures, nil
}

type actionResult struct {
	key state.ActionKey
	err error
}
