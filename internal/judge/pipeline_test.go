package judge

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"judgeworker/internal/compile"
	"judgeworker/internal/model"
	"judgeworker/internal/sandbox"
	appErr "judgeworker/pkg/errors"
)

type fakePreparer struct {
	fail error
	argv []string
}

func (f *fakePreparer) Prepare(ctx context.Context, req compile.Request) ([]string, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	return f.argv, nil
}

// scriptedRunner returns a canned sandbox.RunResult per call, in order,
// keyed by the invocation index (first Run call gets scripted[0], etc.).
type scriptedRunner struct {
	results  []sandbox.RunResult
	calls    int
	requests []sandbox.RunRequest
}

func (s *scriptedRunner) Run(ctx context.Context, req sandbox.RunRequest) (sandbox.RunResult, error) {
	r := s.results[s.calls]
	s.calls++
	s.requests = append(s.requests, req)
	return r, nil
}

// fakeRegistry is a minimal LanguageLookup for exercising scaledLimits.
type fakeRegistry struct {
	specs map[string]model.LanguageSpec
}

func (f fakeRegistry) Lookup(id string) (model.LanguageSpec, bool) {
	s, ok := f.specs[id]
	return s, ok
}

func writeCase(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestJudgeCompilationErrorYieldsCE(t *testing.T) {
	p := NewPipeline(&fakePreparer{fail: appErr.Newf(appErr.CompilationError, "boom")}, &scriptedRunner{}, nil, func(int) string { return "" }, nil)

	req := model.JudgeRequest{Submission: model.Submission{ID: 1}, SnapshotPath: t.TempDir()}
	outcome := p.Judge(context.Background(), req, 0)

	if !outcome.Aborted || outcome.Verdict != model.VerdictCE {
		t.Fatalf("got %+v, want aborted CE", outcome)
	}
}

func TestJudgeAllACNoGrader(t *testing.T) {
	snapshot := t.TempDir()
	casesDir := filepath.Join(snapshot, "cases")
	os.MkdirAll(casesDir, 0o755)
	writeCase(t, casesDir, "1.1.in", "2 3\n")
	writeCase(t, casesDir, "1.1.out", "5\n")
	writeCase(t, casesDir, "1.2.in", "4 4\n")
	writeCase(t, casesDir, "1.2.out", "8\n")

	runner := &scriptedRunner{results: []sandbox.RunResult{
		{Status: sandbox.StatusOK, Stdout: "5\n"},
		{Status: sandbox.StatusOK, Stdout: "8\n"},
	}}
	p := NewPipeline(&fakePreparer{argv: []string{"./code1"}}, runner, nil, func(int) string {
		return filepath.Join(snapshot, "meta")
	}, nil)

	req := model.JudgeRequest{
		TaskInfo:     model.TaskInfo{TimeLimitSeconds: 1, MemoryLimitMB: 256},
		Submission:   model.Submission{ID: 1},
		SnapshotPath: snapshot,
	}
	outcome := p.Judge(context.Background(), req, 0)

	if outcome.Aborted {
		t.Fatalf("unexpected abort: %+v", outcome)
	}
	if len(outcome.Results) != 2 {
		t.Fatalf("got %d results, want 2", len(outcome.Results))
	}
	for _, r := range outcome.Results {
		if r.Verdict != model.VerdictAC || r.Score != 100 {
			t.Errorf("case %d.%d = %+v, want AC/100", r.Subtask, r.TestCaseNum, r)
		}
	}
}

func TestJudgeOngoingContestSubtaskShortCircuit(t *testing.T) {
	snapshot := t.TempDir()
	casesDir := filepath.Join(snapshot, "cases")
	os.MkdirAll(casesDir, 0o755)
	writeCase(t, casesDir, "1.1.in", "x\n")
	writeCase(t, casesDir, "1.1.out", "right\n")
	writeCase(t, casesDir, "1.2.in", "y\n")
	writeCase(t, casesDir, "1.2.out", "right\n")
	writeCase(t, casesDir, "2.1.in", "z\n")
	writeCase(t, casesDir, "2.1.out", "right\n")

	runner := &scriptedRunner{results: []sandbox.RunResult{
		{Status: sandbox.StatusOK, Stdout: "wrong\n"}, // 1.1 -> WA, trips skip for subtask 1
		{Status: sandbox.StatusOK, Stdout: "right\n"},  // 2.1 -> AC (1.2 never runs: SK instead)
	}}
	p := NewPipeline(&fakePreparer{argv: []string{"./code1"}}, runner, nil, func(int) string {
		return filepath.Join(snapshot, "meta")
	}, nil)

	req := model.JudgeRequest{
		TaskInfo:     model.TaskInfo{TimeLimitSeconds: 1, MemoryLimitMB: 256},
		Submission:   model.Submission{ID: 1, InOngoingContest: true},
		SnapshotPath: snapshot,
	}
	outcome := p.Judge(context.Background(), req, 0)

	if outcome.Aborted {
		t.Fatalf("unexpected abort: %+v", outcome)
	}
	if len(outcome.Results) != 3 {
		t.Fatalf("got %d results, want 3", len(outcome.Results))
	}
	if outcome.Results[0].Verdict != model.VerdictWA {
		t.Errorf("case 1.1 = %v, want WA", outcome.Results[0].Verdict)
	}
	if outcome.Results[1].Verdict != model.VerdictSK {
		t.Errorf("case 1.2 = %v, want SK (short-circuited)", outcome.Results[1].Verdict)
	}
	if outcome.Results[2].Verdict != model.VerdictAC {
		t.Errorf("case 2.1 = %v, want AC (different subtask still runs)", outcome.Results[2].Verdict)
	}
	if runner.calls != 2 {
		t.Errorf("runner invoked %d times, want 2 (case 1.2 must not execute)", runner.calls)
	}
}

func TestJudgeAppliesLanguageTimeAndMemoryMultiplier(t *testing.T) {
	snapshot := t.TempDir()
	casesDir := filepath.Join(snapshot, "cases")
	os.MkdirAll(casesDir, 0o755)
	writeCase(t, casesDir, "1.1.in", "x\n")
	writeCase(t, casesDir, "1.1.out", "right\n")

	runner := &scriptedRunner{results: []sandbox.RunResult{
		{Status: sandbox.StatusOK, Stdout: "right\n"},
	}}
	registry := fakeRegistry{specs: map[string]model.LanguageSpec{
		"python3": {ID: "python3", TimeMultiplier: 3.0, MemoryMultiplier: 2.0},
	}}
	p := NewPipeline(&fakePreparer{argv: []string{"./code1"}}, runner, registry, func(int) string {
		return filepath.Join(snapshot, "meta")
	}, nil)

	req := model.JudgeRequest{
		TaskInfo:     model.TaskInfo{TimeLimitSeconds: 1, MemoryLimitMB: 256},
		Submission:   model.Submission{ID: 1, Language: "python3"},
		SnapshotPath: snapshot,
	}
	outcome := p.Judge(context.Background(), req, 0)

	if outcome.Aborted {
		t.Fatalf("unexpected abort: %+v", outcome)
	}
	if len(runner.requests) != 1 {
		t.Fatalf("got %d sandbox runs, want 1", len(runner.requests))
	}
	got := runner.requests[0]
	if got.TimeLimitSeconds != 3 {
		t.Errorf("TimeLimitSeconds = %v, want 3 (1s * 3.0 multiplier)", got.TimeLimitSeconds)
	}
	if got.MemoryLimitMB != 512 {
		t.Errorf("MemoryLimitMB = %v, want 512 (256 * 2.0 multiplier)", got.MemoryLimitMB)
	}
}

func TestJudgeInternalSandboxErrorAbortsWithSE(t *testing.T) {
	snapshot := t.TempDir()
	casesDir := filepath.Join(snapshot, "cases")
	os.MkdirAll(casesDir, 0o755)
	writeCase(t, casesDir, "1.1.in", "x\n")
	writeCase(t, casesDir, "1.1.out", "y\n")
	writeCase(t, casesDir, "1.2.in", "x\n")
	writeCase(t, casesDir, "1.2.out", "y\n")

	runner := &scriptedRunner{results: []sandbox.RunResult{
		{Status: sandbox.StatusInternal},
	}}
	p := NewPipeline(&fakePreparer{argv: []string{"./code1"}}, runner, nil, func(int) string {
		return filepath.Join(snapshot, "meta")
	}, nil)

	req := model.JudgeRequest{
		TaskInfo:     model.TaskInfo{TimeLimitSeconds: 1, MemoryLimitMB: 256},
		Submission:   model.Submission{ID: 1},
		SnapshotPath: snapshot,
	}
	outcome := p.Judge(context.Background(), req, 0)

	if !outcome.Aborted || outcome.Verdict != model.VerdictSE {
		t.Fatalf("got %+v, want aborted SE", outcome)
	}
	if runner.calls != 1 {
		t.Errorf("runner invoked %d times, want 1 (second case must not run after abort)", runner.calls)
	}
}
