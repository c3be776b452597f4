package deltacore

import (
	"strings"
	"testing"
)

// TestEngineMetricsCountsAndTimesCommands confirms the pkg/metrics
// wiring: each Handle* call should bump the command counter and record
// a latency observation, visible in the Prometheus-format dump.
func TestEngineMetricsCountsAndTimesCommands(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	if err := engine.HandleM666("M666"); err != nil {
		t.Fatal(err)
	}
	if err := engine.HandleM666("M666"); err != nil {
		t.Fatal(err)
	}

	out := engine.Metrics()
	if !strings.Contains(out, `deltacal_commands_total{command="M666"} 2`) {
		t.Errorf("expected two M666 invocations counted, got:\n%s", out)
	}
	if !strings.Contains(out, "deltacal_command_seconds") {
		t.Errorf("expected command latency histogram present, got:\n%s", out)
	}
}
