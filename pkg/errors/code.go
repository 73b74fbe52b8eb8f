package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 20000-20099: System & Common errors
// 20100-20199: Queue & Messaging errors
// 20200-20299: Download errors
// 20300-20399: Compile errors
// 20400-20499: Sandbox errors
// 20500-20599: Evaluate errors
const (
	// Success
	Success ErrorCode = 20000

	// Generic errors (20000-20099)
	InternalError      ErrorCode = 20001
	InvalidParams      ErrorCode = 20002
	ServiceUnavailable ErrorCode = 20003
	Timeout            ErrorCode = 20004

	// Queue & Messaging errors (20100-20199)
	QueueUnavailable ErrorCode = 20100
	MalformedTask    ErrorCode = 20101
	PublishFailed    ErrorCode = 20102

	// Download errors (20200-20299)
	DownloadFailed ErrorCode = 20200
	EmptyURL       ErrorCode = 20201

	// Compile errors (20300-20399)
	CompilerTimeout ErrorCode = 20300
	CompilerSpawn   ErrorCode = 20301

	// Sandbox errors (20400-20499)
	SandboxSpawn    ErrorCode = 20400
	SandboxProtocol ErrorCode = 20401
	ScratchDir      ErrorCode = 20402

	// Evaluate errors (20500-20599)
	JudgeScriptBroken ErrorCode = 20500
)

var codeMessages = map[ErrorCode]string{
	Success:            "success",
	InternalError:      "internal error",
	InvalidParams:      "invalid parameters",
	ServiceUnavailable: "service unavailable",
	Timeout:            "operation timed out",
	QueueUnavailable:   "message queue unavailable",
	MalformedTask:      "malformed judge task message",
	PublishFailed:      "publish report failed",
	DownloadFailed:     "download failed",
	EmptyURL:           "download url is empty",
	CompilerTimeout:    "compiler exceeded wall-clock timeout",
	CompilerSpawn:      "compiler process could not be started",
	SandboxSpawn:       "sandbox process could not be started",
	SandboxProtocol:    "sandbox usage record is malformed",
	ScratchDir:         "scratch directory operation failed",
	JudgeScriptBroken:  "special judge program is broken",
}

// Message returns the default message for the error code.
func (c ErrorCode) Message() string {
	if msg, ok := codeMessages[c]; ok {
		return msg
	}
	return "unknown error"
}
