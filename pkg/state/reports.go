// Package state holds the client-side state of an analysis session: the
// known reports and current selection, per-action request gating and
// lifecycle, and the chat transcript.
//
// Each holder guards itself with its own mutex and is mutated only through
// its methods. Holders never call each other; cross-holder rules (such as
// resetting action results when the selection changes) belong to the
// services layer.
package state

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/greg-hellings/esginsight/pkg/backend"
)

// ReportLister is the subset of backend.Client used by Refresh.
type ReportLister interface {
	ListReports(ctx context.Context) ([]backend.Report, error)
}

// ReportStore holds the known reports, in backend arrival order, and the
// currently selected report identifier.
type ReportStore struct {
	mu         sync.RWMutex
	reports    []backend.Report
	selected   string
	generation uint64
}

// NewReportStore creates an empty store with no selection.
func NewReportStore() *ReportStore {
	return &ReportStore{}
}

// Replace sets the full known set. Order is preserved as given; duplicate
// identifiers keep their first occurrence. If the selected report is absent
// from the new set the selection becomes none and Replace reports true.
func (s *ReportStore) Replace(reports []backend.Report) (selectionCleared bool) {
	next := make([]backend.Report, 0, len(reports))
	seen := make(map[string]struct{}, len(reports))
	for _, r := range reports {
		if _, dup := seen[r.ID]; dup {
			continue
		}
		seen[r.ID] = struct{}{}
		next = append(next, r)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = next
	if s.selected == "" {
		return false
	}
	if _, ok := seen[s.selected]; ok {
		return false
	}
	slog.Debug("Selected report no longer listed; clearing selection", "report", s.selected)
	s.selected = ""
	s.generation++
	return true
}

// Select sets the selection to id when it is present in the current set.
// Unknown identifiers are ignored. It reports whether the selection changed.
func (s *ReportStore) Select(id string) (changed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == s.selected || s.indexLocked(id) < 0 {
		return false
	}
	s.selected = id
	s.generation++
	return true
}

// ClearSelection sets the selection to none. It reports whether anything
// was selected before.
func (s *ReportStore) ClearSelection() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == "" {
		return false
	}
	s.selected = ""
	s.generation++
	return true
}

// Current returns the selected report, or false when nothing valid is selected.
func (s *ReportStore) Current() (backend.Report, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexLocked(s.selected); i >= 0 {
		return s.reports[i], true
	}
	return backend.Report{}, false
}

// Generation increases by one on every effective selection change. Callers
// capture it before an asynchronous call to detect a superseded selection.
func (s *ReportStore) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// Reports returns a copy of the known reports.
func (s *ReportStore) Reports() []backend.Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]backend.Report, len(s.reports))
	copy(out, s.reports)
	return out
}

// Len returns the number of known reports.
func (s *ReportStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.reports)
}

// Refresh fetches the report list and replaces the store contents. On
// failure the previous contents and selection are kept.
func (s *ReportStore) Refresh(ctx context.Context, lister ReportLister) (selectionCleared bool, err error) {
	reports, err := lister.ListReports(ctx)
	if err != nil {
		return false, fmt.Errorf("refresh reports: %w", err)
	}
	return s.Replace(reports), nil
}

func (s *ReportStore) indexLocked(id string) int {
	if id == "" {
		return -1
	}
	for i := range s.reports {
		if s.reports[i].ID == id {
			return i
		}
	}
	return -1
}
