package evaluator

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"pdjudge/internal/compiler"
	"pdjudge/internal/language"
	"pdjudge/internal/model"
	"pdjudge/internal/sandbox"
	appErr "pdjudge/pkg/errors"
)

// The judge program is trusted problem data but still sandboxed against a
// runaway judge. Its ceilings are fixed and independent of the contestant's
// testcase limits.
const (
	judgeTimeLimitMs   int64 = 10000
	judgeMemoryLimitKB int64 = 262144
)

// Scratch files the judge program reads and writes, relative to the
// submission's scratch directory.
const (
	judgeInputFile    = "spj_input.txt"
	judgeActualFile   = "spj_actual.txt"
	judgeExpectedFile = "spj_expected.txt"
	judgeVerdictFile  = "spj_verdict.out"
)

// Special scores testcases through a problem-supplied judge program. The
// judge source is compiled at most once per instance; one instance serves
// exactly one submission.
type Special struct {
	exec       sandbox.Executor
	comp       compiler.Compiler
	lang       language.Spec
	sourcePath string
	binaryPath string

	once       sync.Once
	compiled   compiler.Result
	compileErr error
}

// NewSpecial creates a special-judge evaluator for one submission. The judge
// source must already be present at sourcePath inside the submission's
// scratch directory.
func NewSpecial(exec sandbox.Executor, comp compiler.Compiler, lang language.Spec, sourcePath, binaryPath string) *Special {
	return &Special{
		exec:       exec,
		comp:       comp,
		lang:       lang,
		sourcePath: sourcePath,
		binaryPath: binaryPath,
	}
}

// Evaluate implements Evaluator. Convention: the judge exits with code 1 to
// mean "scored" and writes an integer score to its designated output file;
// any other outcome is a rejection. A judge that fails to compile marks the
// case as that compile error, distinct from the contestant's own build.
func (s *Special) Evaluate(ctx context.Context, c Case) (Result, error) {
	s.once.Do(func() {
		s.compiled, s.compileErr = s.comp.Compile(ctx, s.sourcePath, s.binaryPath)
	})
	if s.compileErr != nil {
		return Result{}, s.compileErr
	}
	if !s.compiled.OK {
		return Result{Verdict: model.CompileError, Score: 0}, nil
	}

	for name, body := range map[string][]byte{
		judgeInputFile:    c.Input,
		judgeActualFile:   c.Actual,
		judgeExpectedFile: c.Expected,
	} {
		if err := os.WriteFile(filepath.Join(c.WorkDir, name), body, 0644); err != nil {
			return Result{}, appErr.Wrapf(err, appErr.ScratchDir, "write judge scratch file %s failed", name)
		}
	}

	args, err := s.lang.RunArgs(mount(s.sourcePath), mount(s.binaryPath))
	if err != nil {
		return Result{}, appErr.Wrap(err, appErr.JudgeScriptBroken)
	}
	args = append(args,
		mount(judgeInputFile),
		mount(judgeActualFile),
		mount(judgeExpectedFile),
		mount(judgeVerdictFile),
	)

	res, err := s.exec.ExecuteWithOutputFile(ctx, sandbox.Request{
		Args:          args,
		TimeLimitMs:   judgeTimeLimitMs,
		MemoryLimitKB: judgeMemoryLimitKB,
		WorkDir:       c.WorkDir,
	}, judgeVerdictFile)
	if err != nil {
		return Result{}, err
	}

	if res.ExitCode == 1 && res.ExitSignal == 0 {
		score, err := strconv.Atoi(strings.TrimSpace(string(res.Stdout)))
		if err == nil {
			return Result{Verdict: model.Accepted, Score: score}, nil
		}
	}
	return Result{Verdict: model.WrongAnswer, Score: 0}, nil
}

// mount rewrites a scratch-relative or host scratch path to where the
// sandbox sees it.
func mount(path string) string {
	return filepath.Join(sandbox.WorkMount, filepath.Base(path))
}
