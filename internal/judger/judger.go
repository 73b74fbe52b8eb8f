// Package judger drives the full pipeline for one submission: download,
// compile, per-testcase sandboxed execution, evaluation, and aggregation
// into a judge report.
package judger

import (
	"context"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"pdjudge/internal/compiler"
	"pdjudge/internal/downloader"
	"pdjudge/internal/evaluator"
	"pdjudge/internal/language"
	"pdjudge/internal/model"
	"pdjudge/internal/sandbox"
	appErr "pdjudge/pkg/errors"
	"pdjudge/pkg/utils/logger"
)

// assistDirName is the scratch subdirectory holding class-wide assisting
// data. It sits inside the sandbox work mount so programs reach it with a
// relative path, and is re-bound read-only so runs cannot tamper with it.
const assistDirName = "assist"

// Judger judges submissions of one language. It processes one task at a
// time; concurrency comes from running more workers, never from sharing an
// instance's scratch space.
type Judger struct {
	dl          downloader.Downloader
	comp        compiler.Compiler
	exec        sandbox.Executor
	lang        language.Spec
	scratchRoot string
}

// New creates a judger from its strategy instances. comp must match lang:
// a subprocess compiler for compiled languages, the copy compiler for
// interpreted ones.
func New(dl downloader.Downloader, comp compiler.Compiler, exec sandbox.Executor, lang language.Spec, scratchRoot string) *Judger {
	return &Judger{
		dl:          dl,
		comp:        comp,
		exec:        exec,
		lang:        lang,
		scratchRoot: scratchRoot,
	}
}

// Judge runs the whole pipeline for one task. A returned report is always a
// valid judged outcome, even when its verdict is SYSTEM_ERROR; a returned
// error is a pipeline defect the caller must treat as a failed message.
func (j *Judger) Judge(ctx context.Context, task model.Task) (model.Report, error) {
	scratch, err := os.MkdirTemp(j.scratchRoot, "judge-*")
	if err != nil {
		return model.Report{}, appErr.Wrapf(err, appErr.ScratchDir, "create scratch dir failed")
	}
	defer os.RemoveAll(scratch)

	subID := task.Submission.ID

	sourcePath, err := j.dl.ToDir(ctx, task.Submission.FileURL, scratch, j.lang.SourceFile)
	if err != nil {
		logger.Warn(ctx, "submission download failed", zap.Error(err))
		return model.FailureReport(subID, model.SystemError), nil
	}

	binaryPath := filepath.Join(scratch, j.lang.BinaryFile)
	compiled, err := j.comp.Compile(ctx, sourcePath, binaryPath)
	if err != nil {
		return model.Report{}, err
	}
	if !compiled.OK {
		logger.Info(ctx, "submission failed to compile",
			zap.Int64("compile_ms", compiled.TimeMs),
			zap.String("stderr", clip(compiled.Stderr, 512)))
		return model.FailureReport(subID, model.CompileError), nil
	}

	if len(task.Testcases) == 0 {
		logger.Warn(ctx, "task has no testcases")
		return model.FailureReport(subID, model.ContactManager), nil
	}

	deps, err := j.fetchAssistingData(ctx, task, scratch)
	if err != nil {
		logger.Warn(ctx, "assisting data download failed", zap.Error(err))
		return model.FailureReport(subID, model.SystemError), nil
	}

	eval, verdict, err := j.pickEvaluator(ctx, task, scratch)
	if err != nil {
		return model.Report{}, err
	}
	if verdict != model.Accepted {
		return model.FailureReport(subID, verdict), nil
	}

	runArgs, err := j.lang.RunArgs(mountPath(sourcePath), mountPath(binaryPath))
	if err != nil {
		return model.Report{}, err
	}

	cases := make([]model.JudgeCase, 0, len(task.Testcases))
	for _, tc := range task.Testcases {
		jc, err := j.judgeCase(ctx, tc, runArgs, scratch, deps, eval)
		if err != nil {
			return model.Report{}, err
		}
		cases = append(cases, jc)
	}

	report := model.Report{
		Judgment:   model.Aggregate(subID, cases, task.Problem.FullScore),
		JudgeCases: cases,
	}
	logger.Info(ctx, "judgment complete",
		zap.String("verdict", report.Judgment.Verdict.String()),
		zap.Int("score", report.Judgment.Score),
		zap.Int("cases", len(cases)))
	return report, nil
}

// fetchAssistingData downloads all class-wide files as one atomic batch and
// returns the read-only bind for the runs. No assisting data means no bind.
func (j *Judger) fetchAssistingData(ctx context.Context, task model.Task, scratch string) (map[string]string, error) {
	if len(task.AssistingData) == 0 {
		return nil, nil
	}
	urls := make([]string, len(task.AssistingData))
	names := make([]string, len(task.AssistingData))
	for i, f := range task.AssistingData {
		urls[i] = f.FileURL
		names[i] = f.Filename
	}
	assistDir := filepath.Join(scratch, assistDirName)
	if _, err := j.dl.BatchToDir(ctx, urls, assistDir, names); err != nil {
		return nil, err
	}
	return map[string]string{
		assistDir: filepath.Join(sandbox.WorkMount, assistDirName),
	}, nil
}

// pickEvaluator selects standard comparison or, when the task carries a
// special-judge program, a special evaluator seeded with its downloaded
// source. A non-Accepted verdict reports a pre-case failure.
func (j *Judger) pickEvaluator(ctx context.Context, task model.Task, scratch string) (evaluator.Evaluator, model.Verdict, error) {
	setting := task.CustomizedJudgeSetting
	if setting == nil || setting.FileURL == "" {
		return evaluator.Standard{}, model.Accepted, nil
	}
	spjSource, err := j.dl.ToDir(ctx, setting.FileURL, scratch, "spj_"+j.lang.SourceFile)
	if err != nil {
		logger.Warn(ctx, "special judge download failed", zap.Error(err))
		return nil, model.SystemError, nil
	}
	spjBinary := filepath.Join(scratch, "spj_"+j.lang.BinaryFile)
	return evaluator.NewSpecial(j.exec, j.comp, j.lang, spjSource, spjBinary), model.Accepted, nil
}

// judgeCase judges one testcase in isolation. Its verdict defaults to
// SYSTEM_ERROR so any early exit reports a judged (if unhelpful) outcome;
// only sandbox-level defects abort the whole task via the error return.
func (j *Judger) judgeCase(ctx context.Context, tc model.Testcase, runArgs []string,
	scratch string, deps map[string]string, eval evaluator.Evaluator) (model.JudgeCase, error) {

	jc := model.JudgeCase{TestcaseID: tc.ID, Verdict: model.SystemError}

	var input []byte
	if tc.InputURL != "" {
		var err error
		if input, err = j.dl.AsBytes(ctx, tc.InputURL); err != nil {
			logger.Warn(ctx, "testcase input download failed",
				zap.Int64("testcase_id", tc.ID), zap.Error(err))
			return jc, nil
		}
	}

	res, err := j.exec.Execute(ctx, sandbox.Request{
		Args:          runArgs,
		Stdin:         input,
		TimeLimitMs:   tc.TimeLimitMs,
		MemoryLimitKB: tc.MemoryLimitKB,
		WorkDir:       scratch,
		Dependencies:  deps,
	})
	if err != nil {
		return jc, err
	}

	// Measured usage is recorded before any limit check so an over-limit
	// case still reports what it actually consumed.
	jc.TimeLapseMs = res.TimeLapseMs
	jc.PeakMemoryKB = res.PeakMemoryKB

	switch {
	case res.TimeLapseMs > tc.TimeLimitMs:
		jc.Verdict = model.TimeLimitExceed
		return jc, nil
	case res.PeakMemoryKB > tc.MemoryLimitKB:
		jc.Verdict = model.MemoryLimitExceed
		return jc, nil
	case len(res.Stderr) > 0:
		jc.Verdict = model.RuntimeError
		return jc, nil
	}

	var expected []byte
	if tc.OutputURL != "" {
		if expected, err = j.dl.AsBytes(ctx, tc.OutputURL); err != nil {
			// Isolated to this case: sibling testcases keep their standing.
			logger.Warn(ctx, "expected output download failed",
				zap.Int64("testcase_id", tc.ID), zap.Error(err))
			return jc, nil
		}
	}

	verdict, err := eval.Evaluate(ctx, evaluator.Case{
		Input:    input,
		Actual:   res.Stdout,
		Expected: expected,
		Score:    tc.Score,
		WorkDir:  scratch,
	})
	if err != nil {
		return jc, err
	}
	jc.Verdict = verdict.Verdict
	jc.Score = verdict.Score
	return jc, nil
}

// mountPath rewrites a host scratch path to where the sandbox sees it.
func mountPath(path string) string {
	return filepath.Join(sandbox.WorkMount, filepath.Base(path))
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
