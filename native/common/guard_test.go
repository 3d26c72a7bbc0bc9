package common

import (
	"errors"
	"testing"
)

func TestGuardNilViewAllows(t *testing.T) {
	if err := Guard(nil, "amm"); err != nil {
		t.Fatalf("nil view must allow: %v", err)
	}
}

func TestGuardBlocksPausedModule(t *testing.T) {
	pauses := NewSwitchboard()
	pauses.SetPaused("amm", true)
	if err := Guard(pauses, "amm"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if err := Guard(pauses, "farm"); err != nil {
		t.Fatalf("unpaused module blocked: %v", err)
	}
	pauses.SetPaused("amm", false)
	if err := Guard(pauses, "amm"); err != nil {
		t.Fatalf("resumed module blocked: %v", err)
	}
}

func TestReentrancyGuard(t *testing.T) {
	var guard ReentrancyGuard
	if err := guard.Enter(); err != nil {
		t.Fatalf("first enter: %v", err)
	}
	if err := guard.Enter(); !errors.Is(err, ErrReentrantCall) {
		t.Fatalf("expected ErrReentrantCall, got %v", err)
	}
	guard.Exit()
	if err := guard.Enter(); err != nil {
		t.Fatalf("enter after exit: %v", err)
	}
}
