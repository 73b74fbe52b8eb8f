package sandbox

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	appErr "pdjudge/pkg/errors"
	"pdjudge/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	defaultOutputCapBytes int64 = 64 * 1024
	// Extra seconds granted on top of the CPU budget before the wall
	// watchdog kills the process group; covers jail startup overhead.
	wallSlackSeconds = 5
)

// Config holds jail invocation settings.
type Config struct {
	// JailPath is the jail helper binary.
	JailPath string `json:"jailPath"`
	// UID and GID are the fixed unprivileged identity every run executes as.
	UID uint32 `json:"uid,default=65534"`
	GID uint32 `json:"gid,default=65534"`
	// MaxPids caps the process count inside the jail.
	MaxPids int64 `json:"maxPids,default=16"`
	// OutputCapBytes bounds captured stdout/stderr per stream.
	OutputCapBytes int64 `json:"outputCapBytes,optional"`
}

// Jail executes requests through the external jail helper.
type Jail struct {
	cfg Config
}

// NewJail creates a jail-backed executor.
func NewJail(cfg Config) (*Jail, error) {
	if cfg.JailPath == "" {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("jail path is required")
	}
	if cfg.MaxPids <= 0 {
		cfg.MaxPids = 16
	}
	if cfg.OutputCapBytes <= 0 {
		cfg.OutputCapBytes = defaultOutputCapBytes
	}
	return &Jail{cfg: cfg}, nil
}

// Execute implements Executor.
func (j *Jail) Execute(ctx context.Context, req Request) (ExecuteResult, error) {
	if len(req.Args) == 0 {
		return ExecuteResult{}, appErr.New(appErr.InvalidParams).WithMessage("sandbox argv is empty")
	}
	if req.WorkDir == "" {
		return ExecuteResult{}, appErr.New(appErr.InvalidParams).WithMessage("sandbox workdir is required")
	}

	usageFile, err := os.CreateTemp("", "judge-usage-*")
	if err != nil {
		return ExecuteResult{}, appErr.Wrapf(err, appErr.ScratchDir, "create usage file failed")
	}
	usagePath := usageFile.Name()
	_ = usageFile.Close()
	defer os.Remove(usagePath)

	cpuSeconds := cpuBudgetSeconds(req.TimeLimitMs)
	args := j.buildArgs(req, usagePath, cpuSeconds)

	cmd := exec.CommandContext(ctx, j.cfg.JailPath, args...)
	cmd.Stdin = bytes.NewReader(req.Stdin)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	stdout := newCappedBuffer(j.cfg.OutputCapBytes)
	stderr := newCappedBuffer(j.cfg.OutputCapBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return ExecuteResult{}, appErr.Wrapf(err, appErr.SandboxSpawn, "start jail failed")
	}

	// Wall watchdog: the jail enforces the CPU budget, this guards against
	// a run that sleeps instead of computing.
	done := make(chan struct{})
	go func() {
		wall := time.Duration(cpuSeconds+wallSlackSeconds) * time.Second
		select {
		case <-done:
		case <-ctx.Done():
			killGroup(cmd.Process.Pid)
		case <-time.After(wall):
			logger.Warn(ctx, "jail wall watchdog fired", zap.Int64("cpu_seconds", cpuSeconds))
			killGroup(cmd.Process.Pid)
		}
	}()

	waitErr := cmd.Wait()
	close(done)
	if waitErr != nil {
		// The jail reports the judged program's failure through the usage
		// record; its own non-zero exit only matters when that record is
		// unusable, which the parse below surfaces.
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return ExecuteResult{}, appErr.Wrapf(waitErr, appErr.SandboxSpawn, "wait jail failed")
		}
	}

	usage, err := parseUsageFile(usagePath)
	if err != nil {
		return ExecuteResult{}, err
	}
	return ExecuteResult{
		Stdout:       stdout.Bytes(),
		Stderr:       stderr.Bytes(),
		ExitCode:     usage.ExitCode,
		ExitSignal:   usage.ExitSignal,
		TimeLapseMs:  usage.TimeMs,
		PeakMemoryKB: usage.MemoryKB,
	}, nil
}

// ExecuteWithOutputFile implements Executor.
func (j *Jail) ExecuteWithOutputFile(ctx context.Context, req Request, outputFile string) (ExecuteResult, error) {
	res, err := j.Execute(ctx, req)
	if err != nil {
		return res, err
	}
	body, err := os.ReadFile(filepath.Join(req.WorkDir, outputFile))
	if err != nil {
		if os.IsNotExist(err) {
			res.Stdout = nil
			return res, nil
		}
		return res, appErr.Wrapf(err, appErr.ScratchDir, "read designated output %s failed", outputFile)
	}
	res.Stdout = body
	return res, nil
}

// buildArgs assembles the jail helper command line: unprivileged identity,
// single CPU, hard CPU/memory/pid ceilings, read-write scratch mount and
// read-only dependency binds, with the rest of the filesystem read-only.
func (j *Jail) buildArgs(req Request, usagePath string, cpuSeconds int64) []string {
	args := []string{
		"--quiet",
		"--user", strconv.FormatUint(uint64(j.cfg.UID), 10),
		"--group", strconv.FormatUint(uint64(j.cfg.GID), 10),
		"--max-cpus", "1",
		"--cpu-seconds", strconv.FormatInt(cpuSeconds, 10),
		"--memory-bytes", strconv.FormatInt(req.MemoryLimitKB*1024, 10),
		"--max-pids", strconv.FormatInt(j.cfg.MaxPids, 10),
		"--usage-file", usagePath,
		"--chdir", WorkMount,
		"--bind-rw", req.WorkDir + ":" + WorkMount,
	}
	hosts := make([]string, 0, len(req.Dependencies))
	for host := range req.Dependencies {
		hosts = append(hosts, host)
	}
	sort.Strings(hosts)
	for _, host := range hosts {
		args = append(args, "--bind-ro", host+":"+req.Dependencies[host])
	}
	args = append(args, "--")
	return append(args, req.Args...)
}

// cpuBudgetSeconds converts a millisecond limit to whole seconds rounded
// up, plus one second of slack for the jail's own overhead.
func cpuBudgetSeconds(timeLimitMs int64) int64 {
	if timeLimitMs <= 0 {
		return 1
	}
	return (timeLimitMs+999)/1000 + 1
}

func killGroup(pid int) {
	_ = unix.Kill(-pid, unix.SIGKILL)
}

// cappedBuffer keeps the first cap bytes written and discards the rest, so
// adversarial output cannot exhaust worker memory.
type cappedBuffer struct {
	buf bytes.Buffer
	cap int64
}

func newCappedBuffer(cap int64) *cappedBuffer {
	return &cappedBuffer{cap: cap}
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	remaining := b.cap - int64(b.buf.Len())
	if remaining > 0 {
		if int64(len(p)) > remaining {
			b.buf.Write(p[:remaining])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *cappedBuffer) Bytes() []byte {
	return b.buf.Bytes()
}
