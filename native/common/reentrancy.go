package common

import "errors"

// ErrReentrantCall is returned when an operation re-enters an engine whose
// single-flight guard is already held.
var ErrReentrantCall = errors.New("reentrant call")

// ReentrancyGuard is a single-flight flag held for the duration of every
// state-mutating engine operation. The execution model is serialized
// single-writer, so the hazard is not parallelism but control transfer: a
// ledger callout re-entering the engine before bookkeeping is finalized.
// A re-entrant Enter fails fast instead of proceeding.
type ReentrancyGuard struct {
	held bool
}

// Enter acquires the guard or fails with ErrReentrantCall.
func (g *ReentrancyGuard) Enter() error {
	if g == nil {
		return nil
	}
	if g.held {
		return ErrReentrantCall
	}
	g.held = true
	return nil
}

// Exit releases the guard. Safe to defer immediately after a successful
// Enter.
func (g *ReentrancyGuard) Exit() {
	if g == nil {
		return
	}
	g.held = false
}
