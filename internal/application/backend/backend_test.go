package backend

import (
	"errors"
	"fmt"
	"testing"
)

func TestNewManager_RejectsIdenticalURLs(t *testing.T) {
	_, err := NewManager(Entry{URL: "http://same"}, Entry{URL: "http://same"})
	if err == nil {
		t.Fatalf("NewManager with identical primary/mock urls should have failed")
	}
}

func TestManager_Resolve(t *testing.T) {
	m, err := NewManager(Entry{URL: "http://primary"}, Entry{URL: "http://mock"})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	if _, err := m.Resolve(ChoicePrimary); err != nil {
		t.Errorf("Resolve(primary): %v", err)
	}
	if _, err := m.Resolve(""); err != nil {
		t.Errorf("Resolve(\"\") should default to primary: %v", err)
	}
	if _, err := m.Resolve(ChoiceMock); err != nil {
		t.Errorf("Resolve(mock): %v", err)
	}
	if _, err := m.Resolve("bogus"); err == nil {
		t.Errorf("Resolve(bogus) should have failed")
	}
}

func TestIsTransient_WrappedError(t *testing.T) {
	cause := errors.New("connection reset")
	wrapped := fmt.Errorf("submit failed: %w", NewTransientError(cause))
	if !IsTransient(wrapped) {
		t.Errorf("IsTransient(wrapped transient error) = false, want true")
	}
}

func TestIsTransient_OrdinaryErrorIsNotTransient(t *testing.T) {
	if IsTransient(errors.New("plain error")) {
		t.Errorf("IsTransient(plain error) = true, want false")
	}
}
