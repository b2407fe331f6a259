// Package model defines the data types shared across the judge worker:
// languages, submissions, task metadata, test cases, and results.
package model

// Verdict is the classification of a test case or whole submission.
type Verdict string

const (
	VerdictAC  Verdict = "ac"
	VerdictWA  Verdict = "wa"
	VerdictPS  Verdict = "ps"
	VerdictCE  Verdict = "ce"
	VerdictRE  Verdict = "re"
	VerdictTLE Verdict = "tle"
	VerdictSE  Verdict = "se"
	VerdictSK  Verdict = "sk"
)

// LanguageSpec describes how to compile (if applicable) and run one
// supported source language.
type LanguageSpec struct {
	ID             string
	Name           string
	FileExtension  string
	CompileEnabled bool
	// CompileCmdTpl uses {src} and {bin} placeholders, expanded then
	// tokenized with shlex. Empty for interpreted languages.
	CompileCmdTpl string
	// RunCmdTpl uses {src} and {bin} placeholders.
	RunCmdTpl string
	// TimeMultiplier and MemoryMultiplier scale task limits for languages
	// that are systematically slower/heavier than the baseline (e.g. an
	// interpreted language against a C++-calibrated time limit).
	TimeMultiplier   float64
	MemoryMultiplier float64
}

// Submission is one judge request's source payload.
type Submission struct {
	ID                int64
	Language          string
	SourceCode        string
	InOngoingContest  bool
}

// TaskInfo is the immutable-per-snapshot metadata describing how to judge a
// task: limits and optional checker.
type TaskInfo struct {
	TaskID            int64
	TimeLimitSeconds  float64
	MemoryLimitMB     int64
	Grader            bool
	GraderSourceCode  string
	GraderLanguage    string
}

// TestCase is one (subtask, test_case) pair's input and, absent a grader,
// expected output.
type TestCase struct {
	Subtask          int
	TestCaseNum      int
	InputPath        string
	ExpectedOutput   string // absent (empty + HasExpectedOutput=false) iff Grader=true
	HasExpectedOutput bool
}

// TestCaseResult is the graded outcome of one test case.
type TestCaseResult struct {
	Subtask     int     `json:"subtask"`
	TestCaseNum int     `json:"test_case_num"`
	Verdict     Verdict `json:"verdict"`
	Score       float64 `json:"score"`       // in [0, 100]
	TimeUsed    float64 `json:"time_used"`   // seconds
	MemoryUsed  float64 `json:"memory_used"` // megabytes
}

// JudgeRequest bundles everything the pipeline needs for one submission:
// task metadata, the submission itself, and the staged test-data snapshot
// path to read test cases from.
type JudgeRequest struct {
	TaskInfo     TaskInfo
	Submission   Submission
	SnapshotPath string
}

// JudgeOutcome is the pipeline's result for one submission: either a single
// aborted verdict, or a per-case result list.
type JudgeOutcome struct {
	SubmissionID int64
	Aborted      bool
	Verdict      Verdict // meaningful only if Aborted
	Results      []TestCaseResult
}
