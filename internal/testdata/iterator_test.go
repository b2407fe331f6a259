package testdata

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func drain(t *testing.T, it *Iterator) []Case {
	t.Helper()
	var out []Case
	for {
		c, ok, err := it.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			return out
		}
		out = append(out, c)
	}
}

func TestIteratorOrderNoGrader(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir,
		"1.1.in", "1.1.out",
		"1.2.in", "1.2.out",
		"2.1.in", "2.1.out",
	)

	cases := drain(t, NewIterator(dir, false))
	if len(cases) != 3 {
		t.Fatalf("got %d cases, want 3", len(cases))
	}
	want := [][2]int{{1, 1}, {1, 2}, {2, 1}}
	for i, w := range want {
		if cases[i].Subtask != w[0] || cases[i].Num != w[1] {
			t.Errorf("case %d = (%d,%d), want (%d,%d)", i, cases[i].Subtask, cases[i].Num, w[0], w[1])
		}
	}
}

func TestIteratorEndsWhenSubtaskOneMissing(t *testing.T) {
	dir := t.TempDir()
	cases := drain(t, NewIterator(dir, false))
	if len(cases) != 0 {
		t.Fatalf("got %d cases, want 0 for empty directory", len(cases))
	}
}

func TestIteratorSkipsOutputCheckWithGrader(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "1.1.in", "1.2.in")

	cases := drain(t, NewIterator(dir, true))
	if len(cases) != 2 {
		t.Fatalf("got %d cases, want 2", len(cases))
	}
	for _, c := range cases {
		if c.ExpectedOutputPath != "" {
			t.Errorf("expected no output path with grader present, got %q", c.ExpectedOutputPath)
		}
	}
}

func TestIteratorMissingOutputErrorsWithoutGrader(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "1.1.in")

	it := NewIterator(dir, false)
	_, _, err := it.Next()
	if err == nil {
		t.Fatal("expected error for missing .out file")
	}
}

func TestIteratorStopsSubtaskButContinuesNext(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "1.1.in", "1.1.out", "2.1.in", "2.1.out", "2.2.in", "2.2.out")

	cases := drain(t, NewIterator(dir, false))
	if len(cases) != 3 {
		t.Fatalf("got %d cases, want 3 (subtask 1 ends after case 1)", len(cases))
	}
}
