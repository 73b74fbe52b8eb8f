package model

// Report is the terminal outcome of one judged task.
type Report struct {
	// TaskID echoes the originating message id so report consumers can
	// deduplicate under at-least-once delivery.
	TaskID     string      `json:"task_id,omitempty"`
	Judgment   Judgment    `json:"judgment"`
	JudgeCases []JudgeCase `json:"judge_cases"`
}

// Judgment aggregates all judge cases of one submission.
type Judgment struct {
	SubmissionID int64   `json:"submission_id"`
	Verdict      Verdict `json:"verdict"`
	TotalTimeMs  int64   `json:"total_time_ms"`
	MaxMemoryKB  int64   `json:"max_memory_kb"`
	Score        int     `json:"score"`
}

// JudgeCase is the judged outcome of a single testcase.
type JudgeCase struct {
	TestcaseID   int64   `json:"testcase_id"`
	Verdict      Verdict `json:"verdict"`
	TimeLapseMs  int64   `json:"time_lapse_ms"`
	PeakMemoryKB int64   `json:"peak_memory_kb"`
	Score        int     `json:"score"`
}

// Aggregate folds judge cases into the report judgment: worst verdict,
// summed time, peak memory, summed score capped at fullScore when present.
func Aggregate(submissionID int64, cases []JudgeCase, fullScore *int) Judgment {
	j := Judgment{SubmissionID: submissionID, Verdict: Accepted}
	for _, c := range cases {
		j.Verdict = j.Verdict.Worse(c.Verdict)
		j.TotalTimeMs += c.TimeLapseMs
		if c.PeakMemoryKB > j.MaxMemoryKB {
			j.MaxMemoryKB = c.PeakMemoryKB
		}
		j.Score += c.Score
	}
	if fullScore != nil && j.Score > *fullScore {
		j.Score = *fullScore
	}
	return j
}

// FailureReport builds a report for a pipeline that stopped before any
// testcase ran: the given verdict, score zero, no cases.
func FailureReport(submissionID int64, v Verdict) Report {
	return Report{
		Judgment:   Judgment{SubmissionID: submissionID, Verdict: v},
		JudgeCases: []JudgeCase{},
	}
}
