package common

import (
	"testing"
	"time"

	"github.com/ternarybob/arbor"
)

func TestSafeGo_RunsFunction(t *testing.T) {
	done := make(chan struct{})
	SafeGo(arbor.NewLogger(), "unit", func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("function never ran")
	}
}

func TestSafeGo_RecoversPanic(t *testing.T) {
	logger := arbor.NewLogger()
	SafeGo(logger, "exploding", func() { panic("boom") })

	// A later goroutine still runs; the panic stayed contained
	done := make(chan struct{})
	SafeGo(logger, "survivor", func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("panic escaped containment")
	}
}
