package common

import "errors"

var ErrModulePaused = errors.New("module paused")

// PauseView reports whether a named module has been halted by the operator.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects the call when the module is paused. A nil view means no
// pause switchboard is wired and the call proceeds.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
