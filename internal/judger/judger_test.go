package judger_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"pdjudge/internal/compiler"
	"pdjudge/internal/judger"
	"pdjudge/internal/language"
	"pdjudge/internal/model"
	"pdjudge/internal/sandbox"
	appErr "pdjudge/pkg/errors"
)

var testLang = language.Spec{
	ID: "cpp", SourceFile: "main.cpp", BinaryFile: "main",
	CompileEnabled: true, CompileCmdTpl: "g++ {src} -o {bin}", RunCmdTpl: "{bin}",
}

type fakeDL struct {
	files    map[string][]byte
	fail     map[string]bool
	batchErr error
}

func (f *fakeDL) AsBytes(_ context.Context, url string) ([]byte, error) {
	if url == "" {
		return nil, appErr.New(appErr.EmptyURL)
	}
	if f.fail[url] {
		return nil, appErr.Newf(appErr.DownloadFailed, "download %s failed", url)
	}
	return f.files[url], nil
}

func (f *fakeDL) ToDir(ctx context.Context, url, dir, filename string) (string, error) {
	body, err := f.AsBytes(ctx, url)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, filename)
	return path, os.WriteFile(path, body, 0644)
}

func (f *fakeDL) BatchAsBytes(ctx context.Context, urls []string) ([][]byte, error) {
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	out := make([][]byte, len(urls))
	for i, u := range urls {
		body, err := f.AsBytes(ctx, u)
		if err != nil {
			return nil, err
		}
		out[i] = body
	}
	return out, nil
}

func (f *fakeDL) BatchToDir(ctx context.Context, urls []string, dir string, filenames []string) ([]string, error) {
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	paths := make([]string, len(urls))
	for i, u := range urls {
		p, err := f.ToDir(ctx, u, dir, filenames[i])
		if err != nil {
			return nil, err
		}
		paths[i] = p
	}
	return paths, nil
}

type fakeCompiler struct {
	result compiler.Result
	err    error
}

func (f *fakeCompiler) Compile(context.Context, string, string) (compiler.Result, error) {
	return f.result, f.err
}

// fakeExec replays one canned result per run, in order.
type fakeExec struct {
	results []sandbox.ExecuteResult
	errs    []error
	calls   int
	reqs    []sandbox.Request
}

func (f *fakeExec) next(req sandbox.Request) (sandbox.ExecuteResult, error) {
	i := f.calls
	f.calls++
	f.reqs = append(f.reqs, req)
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	if i < len(f.results) {
		return f.results[i], err
	}
	return sandbox.ExecuteResult{}, err
}

func (f *fakeExec) Execute(_ context.Context, req sandbox.Request) (sandbox.ExecuteResult, error) {
	return f.next(req)
}

func (f *fakeExec) ExecuteWithOutputFile(_ context.Context, req sandbox.Request, _ string) (sandbox.ExecuteResult, error) {
	return f.next(req)
}

func okCompiler() *fakeCompiler {
	return &fakeCompiler{result: compiler.Result{OK: true}}
}

func baseTask() model.Task {
	return model.Task{
		Submission: model.Submission{ID: 77, FileURL: "http://files/main.cpp"},
		Testcases: []model.Testcase{
			{ID: 1, Score: 10, InputURL: "http://files/1.in", OutputURL: "http://files/1.out",
				TimeLimitMs: 1000, MemoryLimitKB: 65536},
		},
	}
}

func baseDL() *fakeDL {
	return &fakeDL{
		files: map[string][]byte{
			"http://files/main.cpp": []byte("int main() {}"),
			"http://files/1.in":     []byte("1 2\n"),
			"http://files/1.out":    []byte("3\n"),
			"http://files/2.in":     []byte("2 3\n"),
			"http://files/2.out":    []byte("5\n"),
		},
		fail: map[string]bool{},
	}
}

func TestJudgeAcceptedSubmission(t *testing.T) {
	t.Parallel()
	exec := &fakeExec{results: []sandbox.ExecuteResult{
		{Stdout: []byte("3\n"), TimeLapseMs: 120, PeakMemoryKB: 2048},
	}}
	j := judger.New(baseDL(), okCompiler(), exec, testLang, t.TempDir())

	report, err := j.Judge(context.Background(), baseTask())
	if err != nil {
		t.Fatalf("Judge: %v", err)
	}
	if report.Judgment.Verdict != model.Accepted || report.Judgment.Score != 10 {
		t.Fatalf("judgment = %v/%d, want Accepted/10", report.Judgment.Verdict, report.Judgment.Score)
	}
	if report.Judgment.SubmissionID != 77 {
		t.Fatalf("submission id = %d, want 77", report.Judgment.SubmissionID)
	}
	if len(report.JudgeCases) != 1 || report.JudgeCases[0].TimeLapseMs != 120 {
		t.Fatalf("cases = %+v, want one case with measured time", report.JudgeCases)
	}
	if got := string(exec.reqs[0].Stdin); got != "1 2\n" {
		t.Fatalf("stdin = %q, want testcase input", got)
	}
}

func TestJudgeSubmissionDownloadFailure(t *testing.T) {
	t.Parallel()
	dl := baseDL()
	dl.fail["http://files/main.cpp"] = true
	j := judger.New(dl, okCompiler(), &fakeExec{}, testLang, t.TempDir())

	report, err := j.Judge(context.Background(), baseTask())
	if err != nil {
		t.Fatalf("Judge: %v", err)
	}
	if report.Judgment.Verdict != model.SystemError || report.Judgment.Score != 0 {
		t.Fatalf("judgment = %v/%d, want SystemError/0", report.Judgment.Verdict, report.Judgment.Score)
	}
	if len(report.JudgeCases) != 0 {
		t.Fatalf("cases = %d, want none", len(report.JudgeCases))
	}
}

func TestJudgeCompileFailureProducesNoCases(t *testing.T) {
	t.Parallel()
	comp := &fakeCompiler{result: compiler.Result{OK: false, Stderr: "main.cpp:1: error"}}
	exec := &fakeExec{}
	j := judger.New(baseDL(), comp, exec, testLang, t.TempDir())

	report, err := j.Judge(context.Background(), baseTask())
	if err != nil {
		t.Fatalf("Judge: %v", err)
	}
	if report.Judgment.Verdict != model.CompileError {
		t.Fatalf("verdict = %v, want CompileError", report.Judgment.Verdict)
	}
	if len(report.JudgeCases) != 0 || exec.calls != 0 {
		t.Fatalf("cases = %d runs = %d, want 0/0", len(report.JudgeCases), exec.calls)
	}
}

func TestJudgeCompilerDefectAbortsTask(t *testing.T) {
	t.Parallel()
	comp := &fakeCompiler{err: appErr.New(appErr.CompilerTimeout)}
	j := judger.New(baseDL(), comp, &fakeExec{}, testLang, t.TempDir())

	_, err := j.Judge(context.Background(), baseTask())
	if !appErr.Is(err, appErr.CompilerTimeout) {
		t.Fatalf("err = %v, want CompilerTimeout to propagate", err)
	}
}

func TestJudgeZeroTestcases(t *testing.T) {
	t.Parallel()
	task := baseTask()
	task.Testcases = nil
	j := judger.New(baseDL(), okCompiler(), &fakeExec{}, testLang, t.TempDir())

	report, err := j.Judge(context.Background(), task)
	if err != nil {
		t.Fatalf("Judge: %v", err)
	}
	if report.Judgment.Verdict != model.ContactManager || len(report.JudgeCases) != 0 {
		t.Fatalf("got %v with %d cases, want ContactManager with none",
			report.Judgment.Verdict, len(report.JudgeCases))
	}
}

func TestJudgeAssistingDataIsAllOrNothing(t *testing.T) {
	t.Parallel()
	dl := baseDL()
	dl.batchErr = appErr.New(appErr.DownloadFailed)
	task := baseTask()
	task.AssistingData = []model.AssistingFile{
		{FileURL: "http://files/dict.txt", Filename: "dict.txt"},
	}
	j := judger.New(dl, okCompiler(), &fakeExec{}, testLang, t.TempDir())

	report, err := j.Judge(context.Background(), task)
	if err != nil {
		t.Fatalf("Judge: %v", err)
	}
	if report.Judgment.Verdict != model.SystemError || len(report.JudgeCases) != 0 {
		t.Fatalf("got %v with %d cases, want SystemError with none",
			report.Judgment.Verdict, len(report.JudgeCases))
	}
}

func TestJudgeAssistingDataBoundReadOnly(t *testing.T) {
	t.Parallel()
	dl := baseDL()
	dl.files["http://files/dict.txt"] = []byte("words")
	task := baseTask()
	task.AssistingData = []model.AssistingFile{
		{FileURL: "http://files/dict.txt", Filename: "dict.txt"},
	}
	exec := &fakeExec{results: []sandbox.ExecuteResult{{Stdout: []byte("3\n")}}}
	j := judger.New(dl, okCompiler(), exec, testLang, t.TempDir())

	if _, err := j.Judge(context.Background(), task); err != nil {
		t.Fatalf("Judge: %v", err)
	}
	if len(exec.reqs[0].Dependencies) != 1 {
		t.Fatalf("dependencies = %v, want the assisting dir bind", exec.reqs[0].Dependencies)
	}
	for host, mount := range exec.reqs[0].Dependencies {
		if filepath.Base(host) != "assist" || mount != "/work/assist" {
			t.Fatalf("bind %s -> %s, want scratch assist dir at /work/assist", host, mount)
		}
	}
}

func TestJudgePartialCredit(t *testing.T) {
	t.Parallel()
	full := 15
	task := baseTask()
	task.Problem.FullScore = &full
	task.Testcases = append(task.Testcases, model.Testcase{
		ID: 2, Score: 10, InputURL: "http://files/2.in", OutputURL: "http://files/2.out",
		TimeLimitMs: 1000, MemoryLimitKB: 65536,
	})
	exec := &fakeExec{results: []sandbox.ExecuteResult{
		{Stdout: []byte("3\n"), TimeLapseMs: 100, PeakMemoryKB: 1000},
		{Stdout: []byte("6\n"), TimeLapseMs: 200, PeakMemoryKB: 3000},
	}}
	j := judger.New(baseDL(), okCompiler(), exec, testLang, t.TempDir())

	report, err := j.Judge(context.Background(), task)
	if err != nil {
		t.Fatalf("Judge: %v", err)
	}
	if report.Judgment.Verdict != model.WrongAnswer || report.Judgment.Score != 10 {
		t.Fatalf("judgment = %v/%d, want WrongAnswer/10", report.Judgment.Verdict, report.Judgment.Score)
	}
	if report.Judgment.TotalTimeMs != 300 || report.Judgment.MaxMemoryKB != 3000 {
		t.Fatalf("usage = %d ms / %d KB, want 300 / 3000",
			report.Judgment.TotalTimeMs, report.Judgment.MaxMemoryKB)
	}
}

func TestJudgeLimitAndStderrChecks(t *testing.T) {
	t.Parallel()
	for name, tc := range map[string]struct {
		result sandbox.ExecuteResult
		want   model.Verdict
	}{
		"time limit": {
			result: sandbox.ExecuteResult{Stdout: []byte("3\n"), TimeLapseMs: 1500, PeakMemoryKB: 100},
			want:   model.TimeLimitExceed,
		},
		"memory limit": {
			result: sandbox.ExecuteResult{Stdout: []byte("3\n"), TimeLapseMs: 100, PeakMemoryKB: 70000},
			want:   model.MemoryLimitExceed,
		},
		"stderr means runtime error": {
			result: sandbox.ExecuteResult{Stdout: []byte("3\n"), Stderr: []byte("segfault"), TimeLapseMs: 100},
			want:   model.RuntimeError,
		},
	} {
		exec := &fakeExec{results: []sandbox.ExecuteResult{tc.result}}
		j := judger.New(baseDL(), okCompiler(), exec, testLang, t.TempDir())

		report, err := j.Judge(context.Background(), baseTask())
		if err != nil {
			t.Fatalf("%s: Judge: %v", name, err)
		}
		got := report.JudgeCases[0]
		if got.Verdict != tc.want || got.Score != 0 {
			t.Fatalf("%s: case = %v/%d, want %v/0", name, got.Verdict, got.Score, tc.want)
		}
		// Over-limit runs still report what they actually consumed.
		if got.TimeLapseMs != tc.result.TimeLapseMs || got.PeakMemoryKB != tc.result.PeakMemoryKB {
			t.Fatalf("%s: usage = %d/%d, want measured %d/%d",
				name, got.TimeLapseMs, got.PeakMemoryKB, tc.result.TimeLapseMs, tc.result.PeakMemoryKB)
		}
	}
}

func TestJudgeExpectedOutputFailureIsolatesCase(t *testing.T) {
	t.Parallel()
	dl := baseDL()
	dl.fail["http://files/1.out"] = true
	task := baseTask()
	task.Testcases = append(task.Testcases, model.Testcase{
		ID: 2, Score: 10, InputURL: "http://files/2.in", OutputURL: "http://files/2.out",
		TimeLimitMs: 1000, MemoryLimitKB: 65536,
	})
	exec := &fakeExec{results: []sandbox.ExecuteResult{
		{Stdout: []byte("3\n"), TimeLapseMs: 100},
		{Stdout: []byte("5\n"), TimeLapseMs: 100},
	}}
	j := judger.New(dl, okCompiler(), exec, testLang, t.TempDir())

	report, err := j.Judge(context.Background(), task)
	if err != nil {
		t.Fatalf("Judge: %v", err)
	}
	if len(report.JudgeCases) != 2 {
		t.Fatalf("cases = %d, want 2", len(report.JudgeCases))
	}
	if report.JudgeCases[0].Verdict != model.SystemError {
		t.Fatalf("case 1 = %v, want SystemError", report.JudgeCases[0].Verdict)
	}
	if report.JudgeCases[1].Verdict != model.Accepted || report.JudgeCases[1].Score != 10 {
		t.Fatalf("case 2 = %v/%d, want Accepted/10 despite sibling failure",
			report.JudgeCases[1].Verdict, report.JudgeCases[1].Score)
	}
}

func TestJudgeSandboxDefectAbortsTask(t *testing.T) {
	t.Parallel()
	exec := &fakeExec{errs: []error{appErr.New(appErr.SandboxProtocol)}}
	j := judger.New(baseDL(), okCompiler(), exec, testLang, t.TempDir())

	_, err := j.Judge(context.Background(), baseTask())
	if !appErr.Is(err, appErr.SandboxProtocol) {
		t.Fatalf("err = %v, want SandboxProtocol to propagate", err)
	}
}

func TestJudgeNoInputURLMeansEmptyStdin(t *testing.T) {
	t.Parallel()
	task := baseTask()
	task.Testcases[0].InputURL = ""
	exec := &fakeExec{results: []sandbox.ExecuteResult{{Stdout: []byte("3\n")}}}
	j := judger.New(baseDL(), okCompiler(), exec, testLang, t.TempDir())

	if _, err := j.Judge(context.Background(), task); err != nil {
		t.Fatalf("Judge: %v", err)
	}
	if len(exec.reqs[0].Stdin) != 0 {
		t.Fatalf("stdin = %q, want empty", exec.reqs[0].Stdin)
	}
}
