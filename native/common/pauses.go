package common

import "sync"

// Switchboard is the operator pause control. The zero value is usable and
// starts with every module running.
type Switchboard struct {
	mu     sync.RWMutex
	paused map[string]bool
}

func NewSwitchboard() *Switchboard {
	return &Switchboard{paused: make(map[string]bool)}
}

// SetPaused halts or resumes the named module.
func (s *Switchboard) SetPaused(module string, paused bool) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused == nil {
		s.paused = make(map[string]bool)
	}
	s.paused[module] = paused
}

// IsPaused implements the PauseView interface.
func (s *Switchboard) IsPaused(module string) bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused[module]
}
