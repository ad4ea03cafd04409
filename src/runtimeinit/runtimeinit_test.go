package runtimeinit

import (
	"testing"
)

func TestBootstrap(t *testing.T) {
	var loggingEnabled *bool
	rt, err := Bootstrap(Options{
		SetupLogging:  func(enabled bool) { loggingEnabled = &enabled },
		SkipClipboard: true,
	})
	if loggingEnabled == nil {
		t.Fatal("SetupLogging was not called")
	}
	if err != nil {
		t.Skipf("capture unavailable in this environment: %v", err)
	}
	if rt.Config == nil || rt.Displays == nil || rt.Executor == nil {
		t.Fatalf("incomplete runtime: %+v", rt)
	}
	if rt.Executor.InFlight() {
		t.Error("fresh executor reports a capture in flight")
	}
}
