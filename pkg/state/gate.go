package state

import (
	"errors"
	"fmt"
	"sync"
)

// ActionKey identifies an independently gated backend action.
type ActionKey string

const (
	ActionChat       ActionKey = "chat"
	ActionSummary    ActionKey = "summary"
	ActionCompliance ActionKey = "compliance"
	ActionRisk       ActionKey = "risk"
	ActionMetrics    ActionKey = "metrics"
	// ActionReports guards report list mutations (upload, sample, refresh).
	ActionReports ActionKey = "reports"
)

// AnalysisActions lists the five user-facing analysis actions in display order.
var AnalysisActions = []ActionKey{ActionChat, ActionSummary, ActionCompliance, ActionRisk, ActionMetrics}

// ErrGateNotHeld is returned by Leave for a key with no outstanding entry.
var ErrGateNotHeld = errors.New("request gate not held")

// RequestGate is a per-key single-flight guard. A key admits one entry at a
// time; different keys are independent.
type RequestGate struct {
	mu   sync.Mutex
	held map[ActionKey]struct{}
}

// NewRequestGate creates a gate with no keys held.
func NewRequestGate() *RequestGate {
	return &RequestGate{held: make(map[ActionKey]struct{})}
}

// TryEnter admits key when no earlier entry for it is outstanding.
func (g *RequestGate) TryEnter(key ActionKey) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.held[key]; busy {
		return false
	}
	g.held[key] = struct{}{}
	return true
}

// Leave releases key. Releasing a key that is not held is an invariant
// violation and returns ErrGateNotHeld.
func (g *RequestGate) Leave(key ActionKey) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.held[key]; !busy {
		return fmt.Errorf("leave %q: %w", key, ErrGateNotHeld)
	}
	delete(g.held, key)
	return nil
}

// Held reports whether key currently has an outstanding entry.
func (g *RequestGate) Held(key ActionKey) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, busy := g.held[key]
	return busy
}
