// Package grade implements output comparison: the no-grader normalize+diff
// path and the with-grader stdin/stdout protocol.
package grade

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"

	"judgeworker/internal/model"
	"judgeworker/internal/sandbox"
	appErr "judgeworker/pkg/errors"
)

// Normalize ensures a trailing newline and right-strips every line, per
// spec.md §4.6. Used on both the actual and expected output before the
// byte-equality comparison.
func Normalize(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t\r")
	}
	joined := strings.Join(lines, "\n")
	if !strings.HasSuffix(joined, "\n") {
		joined += "\n"
	}
	return joined
}

// NoGrader compares actual output to the expected output after normalizing
// both. Returns (AC, 100) on match, else (WA, 0).
func NoGrader(actual, expected string) (model.Verdict, float64) {
	if Normalize(actual) == Normalize(expected) {
		return model.VerdictAC, 100
	}
	return model.VerdictWA, 0
}

// WithGrader runs the checker program inside boxID via driver, feeding it
// the spec's `<N_in>\n<input><N_out>\n<output>` stdin protocol, and parses
// its stdout into a verdict/score.
func WithGrader(ctx context.Context, driver sandbox.Runner, argv []string, boxID int,
	metadataPath string, timeLimitSeconds float64, memoryLimitMB int64, input, output string) (model.Verdict, float64, error) {

	stdin := buildGraderStdin(input, output)

	result, err := driver.Run(ctx, sandbox.RunRequest{
		Argv:             argv,
		BoxID:            boxID,
		Stdin:            stdin,
		MetadataPath:     metadataPath,
		TimeLimitSeconds: timeLimitSeconds,
		MemoryLimitMB:    memoryLimitMB,
	})
	if err != nil {
		return model.VerdictSE, 0, err
	}
	if result.Status != sandbox.StatusOK || result.ExitCode != 0 {
		return model.VerdictSE, 0, appErr.Newf(appErr.GraderError, "grader exited abnormally: status=%v exit_code=%d", result.Status, result.ExitCode)
	}
	verdict, score := parseGraderOutput(result.Stdout)
	if verdict == model.VerdictSE {
		return verdict, score, appErr.New(appErr.GraderError).WithMessage("grader produced unparseable output")
	}
	return verdict, score, nil
}

func buildGraderStdin(input, output string) string {
	in := ensureTrailingNewline(input)
	out := ensureTrailingNewline(output)
	return fmt.Sprintf("%d\n%s%d\n%s", countNewlines(in), in, countNewlines(out), out)
}

func ensureTrailingNewline(s string) string {
	if strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}

func countNewlines(s string) int {
	return strings.Count(s, "\n")
}

// parseGraderOutput matches only the grader's first stdout line, trimmed of
// surrounding whitespace; any later lines are ignored. A leading blank line
// therefore yields SE.
func parseGraderOutput(stdout string) (model.Verdict, float64) {
	scanner := bufio.NewScanner(strings.NewReader(stdout))
	if !scanner.Scan() {
		return model.VerdictSE, 0
	}
	line := strings.TrimSpace(scanner.Text())

	switch {
	case line == "AC":
		return model.VerdictAC, 100
	case line == "WA":
		return model.VerdictWA, 0
	case strings.HasPrefix(line, "PS "):
		numStr := strings.TrimSpace(strings.TrimPrefix(line, "PS "))
		score, err := strconv.ParseFloat(numStr, 64)
		if err != nil || score < 0 || score > 100 {
			return model.VerdictSE, 0
		}
		return model.VerdictPS, score
	default:
		return model.VerdictSE, 0
	}
}
