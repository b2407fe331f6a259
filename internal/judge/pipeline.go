// Package judge orchestrates one submission end to end: compile, optional
// grader compile, iterate test cases, run each under the sandbox, grade,
// and aggregate into a JudgeOutcome.
package judge

import (
	"context"
	"math"
	"os"
	"strconv"
	"strings"

	"judgeworker/internal/compile"
	"judgeworker/internal/grade"
	"judgeworker/internal/model"
	"judgeworker/internal/sandbox"
	"judgeworker/internal/taskcache"
	"judgeworker/internal/testdata"
	appErr "judgeworker/pkg/errors"

	"go.uber.org/zap"
)

// Preparer is the subset of compile.Preparer the pipeline depends on.
type Preparer interface {
	Prepare(ctx context.Context, req compile.Request) ([]string, error)
}

// LanguageLookup is the subset of compile.Registry the pipeline depends on,
// for applying a language's per-language resource multipliers.
type LanguageLookup interface {
	Lookup(id string) (model.LanguageSpec, bool)
}

// Pipeline runs the judge algorithm against one worker's sandbox box.
type Pipeline struct {
	preparer Preparer
	driver   sandbox.Runner
	registry LanguageLookup
	metaPath func(boxID int) string
	log      *zap.Logger
}

// NewPipeline builds a Pipeline. metaPath resolves a worker's box id to the
// host-side file the sandbox should write its run metadata to.
func NewPipeline(preparer Preparer, driver sandbox.Runner, registry LanguageLookup, metaPath func(int) string, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{preparer: preparer, driver: driver, registry: registry, metaPath: metaPath, log: log}
}

// Judge runs req end to end inside boxID, per spec.md §4.5.
func (p *Pipeline) Judge(ctx context.Context, req model.JudgeRequest, boxID int) model.JudgeOutcome {
	outcome := model.JudgeOutcome{SubmissionID: req.Submission.ID}

	runArgs, err := p.preparer.Prepare(ctx, compile.Request{
		LanguageID: req.Submission.Language,
		BoxID:      boxID,
		BaseName:   "code" + strconv.FormatInt(req.Submission.ID, 10),
		Code:       req.Submission.SourceCode,
		Cleanup:    true,
	})
	if err != nil {
		if appErr.Is(err, appErr.CompilationError) {
			outcome.Aborted = true
			outcome.Verdict = model.VerdictCE
			return outcome
		}
		p.log.Error("submission preparation failed", zap.Int64("submission_id", req.Submission.ID), zap.Error(err))
		outcome.Aborted = true
		outcome.Verdict = model.VerdictSE
		return outcome
	}

	var graderArgs []string
	if req.TaskInfo.Grader {
		graderArgs, err = p.preparer.Prepare(ctx, compile.Request{
			LanguageID: req.TaskInfo.GraderLanguage,
			BoxID:      boxID,
			BaseName:   "grader" + strconv.FormatInt(req.TaskInfo.TaskID, 10),
			Code:       req.TaskInfo.GraderSourceCode,
			Cleanup:    false,
		})
		if err != nil {
			outcome.Aborted = true
			outcome.Verdict = model.VerdictSE
			return outcome
		}
	}

	it := testdata.NewIterator(taskcache.TestDataDir(req.SnapshotPath), req.TaskInfo.Grader)
	subtaskSkipped := make(map[int]bool)
	var results []model.TestCaseResult

	for {
		tc, ok, iterErr := it.Next()
		if iterErr != nil {
			p.log.Error("test case iteration failed", zap.Int64("submission_id", req.Submission.ID), zap.Error(iterErr))
			outcome.Aborted = true
			outcome.Verdict = model.VerdictSE
			return outcome
		}
		if !ok {
			break
		}

		if req.Submission.InOngoingContest && subtaskSkipped[tc.Subtask] {
			results = append(results, model.TestCaseResult{Subtask: tc.Subtask, TestCaseNum: tc.Num, Verdict: model.VerdictSK})
			continue
		}

		result, grErr := p.runCase(ctx, req, boxID, runArgs, graderArgs, tc)
		if grErr != nil {
			p.log.Error("test case execution failed", zap.Int64("submission_id", req.Submission.ID), zap.Error(grErr))
			outcome.Aborted = true
			outcome.Verdict = model.VerdictSE
			return outcome
		}
		if result.Verdict == model.VerdictSE && result.Score == -1 {
			outcome.Aborted = true
			outcome.Verdict = model.VerdictSE
			return outcome
		}
		results = append(results, result)

		if req.Submission.InOngoingContest && result.Verdict != model.VerdictAC {
			subtaskSkipped[tc.Subtask] = true
		}
	}

	outcome.Results = results
	return outcome
}

// runCase executes and grades a single test case. A result with
// Verdict==SE and Score==-1 is the sentinel for "abort the whole
// submission", matching spec.md's "if SE, abort the whole submission".
func (p *Pipeline) runCase(ctx context.Context, req model.JudgeRequest, boxID int, runArgs, graderArgs []string, tc testdata.Case) (model.TestCaseResult, error) {
	input, err := os.ReadFile(tc.InputPath)
	if err != nil {
		return model.TestCaseResult{}, err
	}
	inputStr := ensureTrailingNewline(string(input))

	metaPath := p.metaPath(boxID)
	os.Remove(metaPath)

	timeLimit, memoryLimit := p.scaledLimits(req.Submission.Language, req.TaskInfo.TimeLimitSeconds, req.TaskInfo.MemoryLimitMB)

	runResult, err := p.driver.Run(ctx, sandbox.RunRequest{
		Argv:             runArgs,
		BoxID:            boxID,
		Stdin:            inputStr,
		MetadataPath:     metaPath,
		TimeLimitSeconds: timeLimit,
		MemoryLimitMB:    memoryLimit,
	})
	if err != nil {
		return model.TestCaseResult{}, err
	}

	timeUsed := runResult.TimeUsed
	if timeUsed > timeLimit {
		timeUsed = timeLimit
	}
	memoryUsed := float64(runResult.MemoryKB) / 1024

	base := model.TestCaseResult{
		Subtask:     tc.Subtask,
		TestCaseNum: tc.Num,
		TimeUsed:    timeUsed,
		MemoryUsed:  memoryUsed,
	}

	switch runResult.Status {
	case sandbox.StatusRunErr:
		base.Verdict = model.VerdictRE
		base.Score = 0
		return base, nil
	case sandbox.StatusTimedOut:
		base.Verdict = model.VerdictTLE
		base.Score = 0
		return base, nil
	case sandbox.StatusInternal:
		base.Verdict = model.VerdictSE
		base.Score = -1
		return base, nil
	}

	if req.TaskInfo.Grader {
		graderTimeLimit, graderMemoryLimit := p.scaledLimits(req.TaskInfo.GraderLanguage, req.TaskInfo.TimeLimitSeconds, req.TaskInfo.MemoryLimitMB)
		verdict, score, grErr := grade.WithGrader(ctx, p.driver, graderArgs, boxID, metaPath,
			graderTimeLimit, graderMemoryLimit, inputStr, runResult.Stdout)
		if grErr != nil {
			return model.TestCaseResult{}, grErr
		}
		base.Verdict = verdict
		base.Score = score
		if verdict == model.VerdictSE {
			base.Score = -1
		}
		return base, nil
	}

	expected, err := os.ReadFile(tc.ExpectedOutputPath)
	if err != nil {
		return model.TestCaseResult{}, err
	}
	verdict, score := grade.NoGrader(runResult.Stdout, string(expected))
	base.Verdict = verdict
	base.Score = score
	return base, nil
}

// scaledLimits applies languageID's TimeMultiplier/MemoryMultiplier to the
// task's base limits, mirroring the teacher's applyMultipliers/scaleLimit.
// An unknown language or a non-positive multiplier leaves the limit as is.
func (p *Pipeline) scaledLimits(languageID string, timeLimitSeconds float64, memoryLimitMB int64) (float64, int64) {
	if p.registry == nil {
		return timeLimitSeconds, memoryLimitMB
	}
	lang, ok := p.registry.Lookup(languageID)
	if !ok {
		return timeLimitSeconds, memoryLimitMB
	}
	return scaleLimit(timeLimitSeconds, lang.TimeMultiplier), int64(math.Ceil(scaleLimit(float64(memoryLimitMB), lang.MemoryMultiplier)))
}

func scaleLimit(value, multiplier float64) float64 {
	if value <= 0 || multiplier <= 0 {
		return value
	}
	return value * multiplier
}

func ensureTrailingNewline(s string) string {
	if strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}
