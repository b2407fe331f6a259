package grade

import (
	"context"
	"testing"

	"judgeworker/internal/model"
	"judgeworker/internal/sandbox"
	appErr "judgeworker/pkg/errors"
)

type scriptedGraderRunner struct {
	result sandbox.RunResult
}

func (s scriptedGraderRunner) Run(ctx context.Context, req sandbox.RunRequest) (sandbox.RunResult, error) {
	return s.result, nil
}

func TestWithGraderReturnsGraderErrorOnAbnormalExit(t *testing.T) {
	runner := scriptedGraderRunner{result: sandbox.RunResult{Status: sandbox.StatusOK, ExitCode: 1}}
	verdict, _, err := WithGrader(context.Background(), runner, []string{"./checker"}, 0, "", 1, 256, "in\n", "out\n")
	if verdict != model.VerdictSE {
		t.Errorf("verdict = %v, want SE", verdict)
	}
	if !appErr.Is(err, appErr.GraderError) {
		t.Errorf("err = %v, want GraderError", err)
	}
}

func TestWithGraderReturnsGraderErrorOnUnparseableOutput(t *testing.T) {
	runner := scriptedGraderRunner{result: sandbox.RunResult{Status: sandbox.StatusOK, ExitCode: 0, Stdout: "nonsense\n"}}
	verdict, _, err := WithGrader(context.Background(), runner, []string{"./checker"}, 0, "", 1, 256, "in\n", "out\n")
	if verdict != model.VerdictSE {
		t.Errorf("verdict = %v, want SE", verdict)
	}
	if !appErr.Is(err, appErr.GraderError) {
		t.Errorf("err = %v, want GraderError", err)
	}
}

func TestWithGraderSucceedsOnValidOutput(t *testing.T) {
	runner := scriptedGraderRunner{result: sandbox.RunResult{Status: sandbox.StatusOK, ExitCode: 0, Stdout: "AC\n"}}
	verdict, score, err := WithGrader(context.Background(), runner, []string{"./checker"}, 0, "", 1, 256, "in\n", "out\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if verdict != model.VerdictAC || score != 100 {
		t.Errorf("got (%v, %v), want (ac, 100)", verdict, score)
	}
}

func TestNormalizeTrailingNewlineAndRightStrip(t *testing.T) {
	got := Normalize("1 2 3  \n4 5 6\t\n")
	want := "1 2 3\n4 5 6\n"
	if got != want {
		t.Errorf("Normalize = %q, want %q", got, want)
	}
}

func TestNormalizeAddsMissingTrailingNewline(t *testing.T) {
	got := Normalize("42")
	if got != "42\n" {
		t.Errorf("Normalize(%q) = %q, want %q", "42", got, "42\n")
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	once := Normalize("a  \nb\n\nc \n")
	twice := Normalize(once)
	if once != twice {
		t.Errorf("Normalize not idempotent: %q vs %q", once, twice)
	}
}

func TestNoGraderMatch(t *testing.T) {
	v, score := NoGrader("1 2 3 \n", "1 2 3\n")
	if v != model.VerdictAC || score != 100 {
		t.Errorf("got (%v, %v), want (ac, 100)", v, score)
	}
}

func TestNoGraderMismatch(t *testing.T) {
	v, score := NoGrader("1 2 3\n", "1 2 4\n")
	if v != model.VerdictWA || score != 0 {
		t.Errorf("got (%v, %v), want (wa, 0)", v, score)
	}
}

func TestBuildGraderStdinFormat(t *testing.T) {
	got := buildGraderStdin("a\nb\n", "c\n")
	want := "2\na\nb\n1\nc\n"
	if got != want {
		t.Errorf("buildGraderStdin = %q, want %q", got, want)
	}
}

func TestParseGraderOutput(t *testing.T) {
	cases := []struct {
		in        string
		wantV     model.Verdict
		wantScore float64
	}{
		{"AC\n", model.VerdictAC, 100},
		{"WA\n", model.VerdictWA, 0},
		{"PS 42\n", model.VerdictPS, 42},
		{"PS 100\n", model.VerdictPS, 100},
		{"PS -1\n", model.VerdictSE, 0},
		{"PS 101\n", model.VerdictSE, 0},
		{"garbage\n", model.VerdictSE, 0},
		{"", model.VerdictSE, 0},
	}
	for _, c := range cases {
		v, score := parseGraderOutput(c.in)
		if v != c.wantV || score != c.wantScore {
			t.Errorf("parseGraderOutput(%q) = (%v, %v), want (%v, %v)", c.in, v, score, c.wantV, c.wantScore)
		}
	}
}
