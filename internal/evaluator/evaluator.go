// Package evaluator scores one testcase's output, either by direct
// comparison against the expected output or by delegating to a
// problem-supplied judge program.
package evaluator

import (
	"context"

	"pdjudge/internal/model"
)

// Result is the per-testcase scoring outcome.
type Result struct {
	Verdict model.Verdict
	Score   int
}

// Case carries everything one evaluation may need. Standard comparison only
// looks at the outputs; the special judge also uses the input and the
// scratch directory.
type Case struct {
	Input    []byte
	Actual   []byte
	Expected []byte
	// Score is the testcase's full score, awarded on acceptance.
	Score int
	// WorkDir is the submission's host scratch directory.
	WorkDir string
}

// Evaluator is the scoring capability of the judge pipeline.
type Evaluator interface {
	Evaluate(ctx context.Context, c Case) (Result, error)
}
