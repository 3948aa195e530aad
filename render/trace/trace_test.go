package trace

import "testing"

func TestIsValidTraceLevel(t *testing.T) {
	for _, level := range []string{"none", "iterations", ""} {
		if !IsValidTraceLevel(level) {
			t.Errorf("level %q must be valid", level)
		}
	}
	if IsValidTraceLevel("verbose") {
		t.Error("unknown level accepted")
	}
}

func TestRecordRespectsLevel(t *testing.T) {
	off := NewSchedulerTrace(TraceLevelNone)
	off.Record(IterationRecord{Iteration: 1})
	if len(off.Iterations) != 0 {
		t.Error("disabled trace recorded an iteration")
	}
	if off.Enabled() {
		t.Error("none level reports enabled")
	}

	var nilTrace *SchedulerTrace
	if nilTrace.Enabled() {
		t.Error("nil trace reports enabled")
	}

	on := NewSchedulerTrace(TraceLevelIterations)
	on.Record(IterationRecord{Iteration: 1, Action: ActionGenerate, Generated: 64})
	on.Record(IterationRecord{Iteration: 2, Action: ActionDispatch})
	on.Record(IterationRecord{Iteration: 3, Action: ActionGenerate, Generated: 32})
	if len(on.Iterations) != 3 {
		t.Fatalf("recorded %d iterations, want 3", len(on.Iterations))
	}
	if on.Generations() != 2 {
		t.Errorf("counted %d generations, want 2", on.Generations())
	}
}
