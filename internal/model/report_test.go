package model_test

import (
	"testing"

	"pdjudge/internal/model"
)

func TestAggregateSumsTimeAndScoreAndPeaksMemory(t *testing.T) {
	t.Parallel()
	fullScore := 15
	j := model.Aggregate(42, []model.JudgeCase{
		{TestcaseID: 1, Verdict: model.Accepted, TimeLapseMs: 120, PeakMemoryKB: 2048, Score: 10},
		{TestcaseID: 2, Verdict: model.WrongAnswer, TimeLapseMs: 80, PeakMemoryKB: 4096, Score: 0},
	}, &fullScore)

	if j.Verdict != model.WrongAnswer {
		t.Fatalf("verdict = %v, want WRONG_ANSWER", j.Verdict)
	}
	if j.Score != 10 {
		t.Fatalf("score = %d, want 10", j.Score)
	}
	if j.TotalTimeMs != 200 {
		t.Fatalf("total time = %d, want 200", j.TotalTimeMs)
	}
	if j.MaxMemoryKB != 4096 {
		t.Fatalf("max memory = %d, want 4096", j.MaxMemoryKB)
	}
}

func TestAggregateCapsScoreAtFullScore(t *testing.T) {
	t.Parallel()
	cases := []model.JudgeCase{
		{TestcaseID: 1, Verdict: model.Accepted, Score: 40},
		{TestcaseID: 2, Verdict: model.Accepted, Score: 40},
	}

	fullScore := 50
	if got := model.Aggregate(1, cases, &fullScore).Score; got != 50 {
		t.Fatalf("capped score = %d, want 50", got)
	}
	if got := model.Aggregate(1, cases, nil).Score; got != 80 {
		t.Fatalf("uncapped score = %d, want 80", got)
	}
}

func TestFailureReportHasNoCases(t *testing.T) {
	t.Parallel()
	r := model.FailureReport(7, model.SystemError)
	if r.Judgment.Verdict != model.SystemError || r.Judgment.Score != 0 {
		t.Fatalf("judgment = %+v, want system error with zero score", r.Judgment)
	}
	if len(r.JudgeCases) != 0 {
		t.Fatalf("judge cases = %d, want 0", len(r.JudgeCases))
	}
}
