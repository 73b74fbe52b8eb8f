package evaluator

import (
	"bytes"
	"context"
	"strings"
	"unicode/utf8"

	"pdjudge/internal/model"
)

// Standard compares candidate output against expected output.
type Standard struct{}

// Evaluate implements Evaluator. Byte-identical outputs are accepted without
// decoding at all; otherwise both sides are compared as text with trailing
// space/CR/LF trimmed. Expected output that is not valid text marks the
// problem itself as broken, never the contestant.
func (Standard) Evaluate(_ context.Context, c Case) (Result, error) {
	if bytes.Equal(c.Actual, c.Expected) {
		return Result{Verdict: model.Accepted, Score: c.Score}, nil
	}
	if !utf8.Valid(c.Expected) {
		return Result{Verdict: model.ContactManager, Score: 0}, nil
	}
	// Candidate output is adversarial; decode it permissively so comparison
	// never fails outright.
	actual := strings.ToValidUTF8(string(c.Actual), "�")
	if trimTrailing(actual) == trimTrailing(string(c.Expected)) {
		return Result{Verdict: model.Accepted, Score: c.Score}, nil
	}
	return Result{Verdict: model.WrongAnswer, Score: 0}, nil
}

func trimTrailing(s string) string {
	return strings.TrimRight(s, " \r\n")
}
