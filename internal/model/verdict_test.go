package model_test

import (
	"testing"

	"pdjudge/internal/model"
)

var severityOrder = []model.Verdict{
	model.Accepted,
	model.WrongAnswer,
	model.MemoryLimitExceed,
	model.TimeLimitExceed,
	model.RuntimeError,
	model.CompileError,
	model.ContactManager,
	model.ForbiddenAction,
	model.SystemError,
}

func TestWorseFollowsSeverityOrderForAllPairs(t *testing.T) {
	t.Parallel()
	for i, a := range severityOrder {
		for j, b := range severityOrder {
			want := a
			if j > i {
				want = b
			}
			if got := a.Worse(b); got != want {
				t.Fatalf("Worse(%v, %v) = %v, want %v", a, b, got, want)
			}
			agg := model.Aggregate(1, []model.JudgeCase{
				{TestcaseID: 1, Verdict: a},
				{TestcaseID: 2, Verdict: b},
			}, nil)
			if agg.Verdict != want {
				t.Fatalf("aggregate of %v and %v = %v, want %v", a, b, agg.Verdict, want)
			}
		}
	}
}

func TestVerdictWireNamesRoundTrip(t *testing.T) {
	t.Parallel()
	for _, v := range severityOrder {
		raw, err := v.MarshalJSON()
		if err != nil {
			t.Fatalf("marshal %v: %v", v, err)
		}
		var back model.Verdict
		if err := back.UnmarshalJSON(raw); err != nil {
			t.Fatalf("unmarshal %s: %v", raw, err)
		}
		if back != v {
			t.Fatalf("round trip of %v produced %v", v, back)
		}
	}
	var v model.Verdict
	if err := v.UnmarshalJSON([]byte(`"NOT_A_VERDICT"`)); err == nil {
		t.Fatal("expected error for unknown verdict name")
	}
}
