// Package sandbox runs untrusted executables under an external jail helper
// and reports the resources they consumed. The jail owns process, namespace
// and cgroup isolation; this package only builds its command line, feeds it
// stdin, and reads back the usage record it writes.
package sandbox

import "context"

// ExecuteResult is the raw outcome of one jailed run. Limit verdicts are
// not decided here; the judger compares these numbers against the testcase
// limits.
type ExecuteResult struct {
	Stdout       []byte
	Stderr       []byte
	ExitCode     int
	ExitSignal   int
	TimeLapseMs  int64
	PeakMemoryKB int64
}

// Request describes one jailed run.
type Request struct {
	// Args is the sandbox-side argv of the program under test.
	Args []string
	// Stdin is fed to the program's standard input.
	Stdin []byte
	// TimeLimitMs derives the jail's hard CPU budget.
	TimeLimitMs int64
	// MemoryLimitKB derives the jail's hard memory ceiling.
	MemoryLimitKB int64
	// WorkDir is the host scratch directory mounted read-write at the
	// sandbox working directory.
	WorkDir string
	// Dependencies maps host paths to sandbox paths bound read-only.
	Dependencies map[string]string
}

// Executor is the jailed-run capability of the judge pipeline.
type Executor interface {
	// Execute runs the request and captures stdout/stderr directly.
	Execute(ctx context.Context, req Request) (ExecuteResult, error)
	// ExecuteWithOutputFile runs the request and then re-reads the named
	// file inside the sandbox working directory as the effective stdout.
	// The special-judge flow scores from a file the judge program wrote,
	// never from the stream path shared with the untrusted program.
	ExecuteWithOutputFile(ctx context.Context, req Request, outputFile string) (ExecuteResult, error)
}

// WorkMount is the sandbox-side working directory every run sees.
const WorkMount = "/work"
