package state

import (
	"errors"
	"sync"
)

// Phase is the lifecycle position of one action.
type Phase int

const (
	// PhaseIdle means nothing has run since the last reset.
	PhaseIdle Phase = iota
	// PhaseLoading means a backend call is outstanding.
	PhaseLoading
	// PhaseSuccess means the last call produced a payload.
	PhaseSuccess
	// PhaseError means the last call failed; Message holds the reason.
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLoading:
		return "loading"
	case PhaseSuccess:
		return "success"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

var (
	// ErrAlreadyLoading is returned by Begin while a call is outstanding.
	ErrAlreadyLoading = errors.New("action already loading")
	// ErrNotLoading is returned when completing an action that is not loading,
	// e.g. after a reset discarded the call.
	ErrNotLoading = errors.New("action not loading")
)

// Snapshot is an immutable view of an ActionState.
type Snapshot[T any] struct {
	Phase   Phase
	Payload T      // zero unless Phase == PhaseSuccess
	Message string // set only when Phase == PhaseError
}

// ActionState tracks Idle -> Loading -> Success|Error for one action.
// A payload is only ever visible in PhaseSuccess; entering Loading or Error
// discards it.
type ActionState[T any] struct {
	mu   sync.RWMutex
	snap Snapshot[T]
}

// NewActionState returns an idle state.
func NewActionState[T any]() *ActionState[T] {
	return &ActionState[T]{}
}

// Begin moves to Loading and clears any previous result.
func (a *ActionState[T]) Begin() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.snap.Phase == PhaseLoading {
		return ErrAlreadyLoading
	}
	a.snap = Snapshot[T]{Phase: PhaseLoading}
	return nil
}

// Succeed moves Loading -> Success(payload).
func (a *ActionState[T]) Succeed(payload T) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.snap.Phase != PhaseLoading {
		return ErrNotLoading
	}
	a.snap = Snapshot[T]{Phase: PhaseSuccess, Payload: payload}
	return nil
}

// Fail moves Loading -> Error(message).
func (a *ActionState[T]) Fail(message string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.snap.Phase != PhaseLoading {
		return ErrNotLoading
	}
	a.snap = Snapshot[T]{Phase: PhaseError, Message: message}
	return nil
}

// Reset returns to Idle unconditionally.
func (a *ActionState[T]) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.snap = Snapshot[T]{}
}

// Snapshot returns the current state.
func (a *ActionState[T]) Snapshot() Snapshot[T] {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snap
}
