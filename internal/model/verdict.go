// Package model defines the judge task and report shapes exchanged over the
// queue, and the verdict enumeration shared by every engine component.
package model

import (
	"encoding/json"
	"fmt"
)

// Verdict is the outcome of judging a testcase or a whole submission.
// Declaration order is severity order, best to worst; aggregation relies on
// this ordering, so new verdicts must be inserted at their severity rank.
type Verdict int

const (
	Accepted Verdict = iota
	WrongAnswer
	MemoryLimitExceed
	TimeLimitExceed
	RuntimeError
	CompileError
	ContactManager
	ForbiddenAction
	SystemError
)

var verdictNames = []string{
	Accepted:          "ACCEPTED",
	WrongAnswer:       "WRONG_ANSWER",
	MemoryLimitExceed: "MEMORY_LIMIT_EXCEED",
	TimeLimitExceed:   "TIME_LIMIT_EXCEED",
	RuntimeError:      "RUNTIME_ERROR",
	CompileError:      "COMPILE_ERROR",
	ContactManager:    "CONTACT_MANAGER",
	ForbiddenAction:   "FORBIDDEN_ACTION",
	SystemError:       "SYSTEM_ERROR",
}

// String returns the wire name of the verdict.
func (v Verdict) String() string {
	if v < 0 || int(v) >= len(verdictNames) {
		return fmt.Sprintf("VERDICT(%d)", int(v))
	}
	return verdictNames[v]
}

// Worse returns the more severe of two verdicts.
func (v Verdict) Worse(other Verdict) Verdict {
	if other > v {
		return other
	}
	return v
}

// WorstVerdict folds a slice of verdicts to the most severe one.
// An empty slice yields Accepted; callers guard against that case.
func WorstVerdict(vs []Verdict) Verdict {
	worst := Accepted
	for _, v := range vs {
		worst = worst.Worse(v)
	}
	return worst
}

// MarshalJSON encodes the verdict as its wire name.
func (v Verdict) MarshalJSON() ([]byte, error) {
	if v < 0 || int(v) >= len(verdictNames) {
		return nil, fmt.Errorf("unknown verdict %d", int(v))
	}
	return json.Marshal(verdictNames[v])
}

// UnmarshalJSON decodes a verdict from its wire name.
func (v *Verdict) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for i, n := range verdictNames {
		if n == name {
			*v = Verdict(i)
			return nil
		}
	}
	return fmt.Errorf("unknown verdict %q", name)
}
