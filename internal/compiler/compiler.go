// Package compiler turns submitted source into a runnable artifact.
package compiler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	appErr "pdjudge/pkg/errors"
)

// Wall-clock budget for one compiler invocation. A compiler that exceeds it
// is a fatal condition, not a compile-error verdict.
const DefaultTimeout = 10 * time.Second

// Result is the outcome of a compile attempt. OK false means the submission
// failed to compile (a COMPILE_ERROR verdict for the judger); fatal
// conditions are returned as errors instead.
type Result struct {
	OK     bool
	Stderr string
	TimeMs int64
}

// ArgsBuilder produces the exact compiler command line for one language.
// The compiler itself never knows language details.
type ArgsBuilder func(sourcePath, targetPath string) ([]string, error)

// Compiler is the build-step capability of the judge pipeline.
type Compiler interface {
	Compile(ctx context.Context, sourcePath, targetPath string) (Result, error)
}

// Subprocess invokes an external compiler process on the host.
type Subprocess struct {
	args    ArgsBuilder
	timeout time.Duration
}

// NewSubprocess creates a subprocess compiler with the default timeout.
func NewSubprocess(args ArgsBuilder) *Subprocess {
	return &Subprocess{args: args, timeout: DefaultTimeout}
}

// NewSubprocessWithTimeout creates a subprocess compiler with an explicit
// wall-clock budget; zero falls back to the default.
func NewSubprocessWithTimeout(args ArgsBuilder, timeout time.Duration) *Subprocess {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Subprocess{args: args, timeout: timeout}
}

// Compile implements Compiler. Anything the compiler writes to stderr marks
// the submission as failing to compile, regardless of exit code. A compiler
// that exits non-zero while writing nothing to stderr is also treated as a
// failed compile, with the process error standing in for diagnostics, so the
// verdict channel never silently swallows a broken build.
func (c *Subprocess) Compile(ctx context.Context, sourcePath, targetPath string) (Result, error) {
	argv, err := c.args(sourcePath, targetPath)
	if err != nil {
		return Result{}, err
	}
	if len(argv) == 0 {
		return Result{}, appErr.New(appErr.InvalidParams).WithMessage("compiler command is empty")
	}

	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, argv[0], argv[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start).Milliseconds()

	if cctx.Err() == context.DeadlineExceeded {
		return Result{}, appErr.Newf(appErr.CompilerTimeout, "compiler exceeded %s wall-clock budget", c.timeout)
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return Result{}, appErr.Wrapf(runErr, appErr.CompilerSpawn, "start compiler failed")
		}
		if stderr.Len() == 0 {
			return Result{OK: false, Stderr: runErr.Error(), TimeMs: elapsed}, nil
		}
	}
	return Result{OK: stderr.Len() == 0, Stderr: stderr.String(), TimeMs: elapsed}, nil
}

// Copy is the no-build compiler for interpreted languages: it copies the
// source verbatim to the target path and always succeeds.
type Copy struct{}

// Compile implements Compiler. Interpreted languages commonly declare the
// same file as both source and artifact; copying a file onto itself would
// truncate it, so aliased paths are left untouched.
func (Copy) Compile(ctx context.Context, sourcePath, targetPath string) (Result, error) {
	if samePath(sourcePath, targetPath) {
		if _, err := os.Stat(sourcePath); err != nil {
			return Result{}, appErr.Wrapf(err, appErr.ScratchDir, "open source failed")
		}
		return Result{OK: true}, nil
	}

	src, err := os.Open(sourcePath)
	if err != nil {
		return Result{}, appErr.Wrapf(err, appErr.ScratchDir, "open source failed")
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(targetPath), 0755); err != nil {
		return Result{}, appErr.Wrapf(err, appErr.ScratchDir, "create target dir failed")
	}
	dst, err := os.OpenFile(targetPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0755)
	if err != nil {
		return Result{}, appErr.Wrapf(err, appErr.ScratchDir, "create target failed")
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return Result{}, appErr.Wrapf(err, appErr.ScratchDir, "copy source failed")
	}
	return Result{OK: true}, nil
}

func samePath(a, b string) bool {
	if filepath.Clean(a) == filepath.Clean(b) {
		return true
	}
	ai, err := os.Stat(a)
	if err != nil {
		return false
	}
	bi, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(ai, bi)
}
