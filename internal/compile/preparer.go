package compile

import (
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"judgeworker/internal/sandbox"
	appErr "judgeworker/pkg/errors"

	"github.com/google/shlex"
)

// Preparer stages source code, runs compilers, and prepares a sandbox box
// directory with the executable argv the sandbox should run.
type Preparer struct {
	registry *Registry
	driver   *sandbox.Driver
	// RunDir is the host-side scratch directory source files are written
	// to before compilation, outside any sandbox.
	RunDir string
	// BoxDir resolves a box id to its sandbox box directory (files staged
	// here are what the sandboxed process actually sees).
	BoxDir func(boxID int) string
}

// NewPreparer builds a Preparer.
func NewPreparer(registry *Registry, driver *sandbox.Driver, runDir string, boxDir func(int) string) *Preparer {
	return &Preparer{registry: registry, driver: driver, RunDir: runDir, BoxDir: boxDir}
}

// Request describes one prepare() call: one piece of source code to stage
// and (if applicable) compile into a given sandbox box.
type Request struct {
	LanguageID string
	BoxID      int
	BaseName   string
	Code       string
	Cleanup    bool
}

// Prepare implements spec.md §4.2: optional sandbox reset, host-side source
// write, compilation, staging into the box directory, and the resulting
// argv the sandbox must be told to run.
func (p *Preparer) Prepare(ctx context.Context, req Request) ([]string, error) {
	lang, ok := p.registry.Lookup(req.LanguageID)
	if !ok {
		return nil, appErr.Newf(appErr.InvalidParams, "unknown language %q", req.LanguageID)
	}

	if req.Cleanup {
		if err := p.driver.Cleanup(ctx, req.BoxID); err != nil {
			return nil, err
		}
		if _, err := p.driver.Init(ctx, req.BoxID); err != nil {
			return nil, err
		}
	}

	srcName := req.BaseName + "." + lang.FileExtension
	hostSrcPath := filepath.Join(p.RunDir, srcName)
	if err := os.WriteFile(hostSrcPath, []byte(req.Code), 0o644); err != nil {
		return nil, appErr.Wrapf(err, appErr.JudgeSystemError, "write source file failed")
	}

	boxDir := p.BoxDir(req.BoxID)
	if err := os.MkdirAll(boxDir, 0o755); err != nil {
		return nil, appErr.Wrapf(err, appErr.JudgeSystemError, "prepare box directory failed")
	}

	if !lang.CompileEnabled {
		stagedSrc := filepath.Join(boxDir, srcName)
		if err := copyFile(hostSrcPath, stagedSrc, 0o644); err != nil {
			return nil, appErr.Wrapf(err, appErr.JudgeSystemError, "stage source file failed")
		}
		return buildArgv(lang.RunCmdTpl, srcName, req.BaseName)
	}

	hostBinPath := filepath.Join(p.RunDir, req.BaseName)
	// The compile template is expanded against host paths, not box-relative
	// names, since compilation runs outside the sandbox entirely.
	compileArgv, err := buildArgv(lang.CompileCmdTpl, hostSrcPath, hostBinPath)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, compileArgv[0], compileArgv[1:]...)
	cmd.Dir = p.RunDir
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, appErr.Newf(appErr.CompilationError, "compilation failed: %s", truncate(string(output), 8192))
	}

	stagedBin := filepath.Join(boxDir, req.BaseName)
	if err := copyFile(hostBinPath, stagedBin, 0o755); err != nil {
		return nil, appErr.Wrapf(err, appErr.JudgeSystemError, "stage executable failed")
	}

	return []string{"./" + req.BaseName}, nil
}

// buildArgv expands a command template's {src}/{bin} placeholders and
// tokenizes it with shlex, exactly as the teacher's buildCommand does.
func buildArgv(tpl, src, bin string) ([]string, error) {
	expanded := strings.NewReplacer("{src}", src, "{bin}", bin).Replace(tpl)
	argv, err := shlex.Split(expanded)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.JudgeSystemError, "tokenize command template failed")
	}
	if len(argv) == 0 {
		return nil, appErr.Newf(appErr.JudgeSystemError, "empty command template")
	}
	return argv, nil
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
