// Package testdata streams (subtask, test case) pairs from a task's staged
// test-data directory, per the i.j.in / i.j.out naming convention.
package testdata

import (
	"os"
	"path/filepath"
	"strconv"

	appErr "judgeworker/pkg/errors"
)

// Case is one (subtask, case) pair's file paths. ExpectedOutputPath is empty
// when the Iterator was created with hasGrader true, since no-grader comparisons need the .out file
// while grader-based comparisons never read it.
type Case struct {
	Subtask            int
	Num                int
	InputPath          string
	ExpectedOutputPath string
}

// Iterator streams test cases for one task in strict subtask/case order,
// without materializing the whole set in memory.
type Iterator struct {
	dir       string
	hasGrader bool
	subtask   int
	caseNum   int
	done      bool
}

// NewIterator creates an Iterator over dir, the task's test-data directory.
func NewIterator(dir string, hasGrader bool) *Iterator {
	return &Iterator{dir: dir, hasGrader: hasGrader, subtask: 1, caseNum: 1}
}

// Next returns the next Case, or ok=false once the whole iteration has
// ended (i.1.in missing for the current subtask i). A subtask's own end
// (i.j.in missing, j>1) is handled internally by advancing to the next
// subtask rather than being surfaced to the caller.
func (it *Iterator) Next() (Case, bool, error) {
	for {
		if it.done {
			return Case{}, false, nil
		}

		inPath := it.inputPath(it.subtask, it.caseNum)
		if !fileExists(inPath) {
			if it.caseNum == 1 {
				it.done = true
				return Case{}, false, nil
			}
			it.subtask++
			it.caseNum = 1
			continue
		}

		c := Case{
			Subtask:   it.subtask,
			Num:       it.caseNum,
			InputPath: inPath,
		}
		if !it.hasGrader {
			outPath := it.outputPath(it.subtask, it.caseNum)
			if !fileExists(outPath) {
				return Case{}, false, appErr.Newf(appErr.ValidationFailed,
					"missing expected output for %d.%d.in", it.subtask, it.caseNum)
			}
			c.ExpectedOutputPath = outPath
		}

		it.caseNum++
		return c, true, nil
	}
}

func (it *Iterator) inputPath(subtask, num int) string {
	return filepath.Join(it.dir, strconv.Itoa(subtask)+"."+strconv.Itoa(num)+".in")
}

func (it *Iterator) outputPath(subtask, num int) string {
	return filepath.Join(it.dir, strconv.Itoa(subtask)+"."+strconv.Itoa(num)+".out")
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
