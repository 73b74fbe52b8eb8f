package model

// Task is one judge request as produced by the service layer. Every file
// reference is a pre-signed, time-bounded download URL; the engine never
// holds object storage credentials.
type Task struct {
	Problem                Problem         `json:"problem"`
	Submission             Submission      `json:"submission"`
	Testcases              []Testcase      `json:"testcases"`
	AssistingData          []AssistingFile `json:"assisting_data,omitempty"`
	CustomizedJudgeSetting *JudgeSetting   `json:"customized_judge_setting,omitempty"`
}

// Problem carries problem-level judging settings.
type Problem struct {
	// FullScore caps the aggregate score when set; problems without a
	// declared maximum leave it nil and score uncapped.
	FullScore *int `json:"full_score,omitempty"`
}

// Submission locates the submitted source code.
type Submission struct {
	ID      int64  `json:"id"`
	FileURL string `json:"file_url"`
}

// Testcase is one test of the task, in judging order.
type Testcase struct {
	ID            int64  `json:"id"`
	Score         int    `json:"score"`
	InputURL      string `json:"input_url,omitempty"`
	OutputURL     string `json:"output_url,omitempty"`
	TimeLimitMs   int64  `json:"time_limit_ms"`
	MemoryLimitKB int64  `json:"memory_limit_kb"`
}

// AssistingFile is a class-wide read-only file visible to every test run.
type AssistingFile struct {
	FileURL  string `json:"file_url"`
	Filename string `json:"filename"`
}

// JudgeSetting points at a special-judge program source.
type JudgeSetting struct {
	FileURL string `json:"file_url"`
}
