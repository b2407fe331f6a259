// Package sandbox wraps the external, namespaced sandbox tool (e.g. isolate):
// box lifecycle, limited execution, and metadata-driven status classification.
// The sandbox itself is an out-of-scope collaborator — this package only
// builds its CLI invocation and interprets its output.
package sandbox

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	appErr "judgeworker/pkg/errors"

	"go.uber.org/zap"
)

// Config controls how the driver invokes the external sandbox binary.
type Config struct {
	// BinaryPath is the external sandbox executable, e.g. "isolate".
	BinaryPath string
	// WallExtraSeconds is added to the CPU time limit to derive the wall
	// limit, catching programs that sleep instead of spinning.
	WallExtraSeconds float64
	// OutputMaxBytes bounds how much of stdout Run returns for
	// grading/checker consumption; the full output is buffered first and
	// then cut to this length.
	OutputMaxBytes int64
}

func (c Config) withDefaults() Config {
	if c.BinaryPath == "" {
		c.BinaryPath = "isolate"
	}
	if c.WallExtraSeconds <= 0 {
		c.WallExtraSeconds = 1
	}
	if c.OutputMaxBytes <= 0 {
		c.OutputMaxBytes = 64 * 1024 * 1024
	}
	return c
}

// Runner is the subset of Driver that executes a prepared run_args inside
// an already-initialized box. Callers that only need to run (the judge
// pipeline, the grader) depend on this interface instead of *Driver so
// they can be exercised against fakes in tests.
type Runner interface {
	Run(ctx context.Context, req RunRequest) (RunResult, error)
}

// Driver shells out to the external sandbox tool.
type Driver struct {
	cfg Config
	log *zap.Logger
}

// NewDriver creates a Driver.
func NewDriver(cfg Config, log *zap.Logger) *Driver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Driver{cfg: cfg.withDefaults(), log: log}
}

// Init initializes (or re-initializes) the sandbox for boxID and returns its
// box directory. Idempotent after Cleanup.
func (d *Driver) Init(ctx context.Context, boxID int) (string, error) {
	out, err := d.run(ctx, "--init", "-b", strconv.Itoa(boxID))
	if err != nil {
		return "", appErr.Wrapf(err, appErr.SandboxFault, "sandbox init failed: %s", out)
	}
	return strings.TrimSpace(out), nil
}

// Cleanup releases the sandbox for boxID. Safe to call redundantly.
func (d *Driver) Cleanup(ctx context.Context, boxID int) error {
	_, err := d.run(ctx, "--cleanup", "-b", strconv.Itoa(boxID))
	if err != nil {
		return appErr.Wrapf(err, appErr.SandboxFault, "sandbox cleanup failed")
	}
	return nil
}

// RunRequest describes one execution inside an already-initialized box.
type RunRequest struct {
	Argv             []string
	BoxID            int
	Stdin            string
	MetadataPath     string
	TimeLimitSeconds float64
	MemoryLimitMB    int64
}

// RunResult is the outcome of one sandboxed execution.
type RunResult struct {
	Status   Status
	Stdout   string
	ExitCode int
	TimeUsed float64 // seconds, as reported by the sandbox (clamped by caller)
	MemoryKB int64
}

// Run executes argv inside boxID under the given limits and parses the
// resulting metadata file.
func (d *Driver) Run(ctx context.Context, req RunRequest) (RunResult, error) {
	wallLimit := req.TimeLimitSeconds + d.cfg.WallExtraSeconds
	args := []string{
		"-b", strconv.Itoa(req.BoxID),
		"-M", req.MetadataPath,
		"-t", formatSeconds(req.TimeLimitSeconds),
		"-w", formatSeconds(wallLimit),
		"-m", strconv.FormatInt(req.MemoryLimitMB*1024, 10),
		"--stderr-to-stdout",
		"--silent",
		"--run", "--",
	}
	args = append(args, req.Argv...)

	cmd := exec.CommandContext(ctx, d.cfg.BinaryPath, args...)
	cmd.Stdin = strings.NewReader(req.Stdin)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true, Pdeathsig: syscall.SIGKILL}

	var stdout bytes.Buffer
	cmd.Stdout = io.MultiWriter(&stdout)

	var killed atomic.Bool
	killCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := cmd.Start(); err != nil {
		return RunResult{}, appErr.Wrapf(err, appErr.SandboxFault, "start sandbox helper failed")
	}

	done := make(chan struct{})
	go func() {
		timer := time.NewTimer(time.Duration(wallLimit*2+5) * time.Second)
		defer timer.Stop()
		select {
		case <-killCtx.Done():
		case <-timer.C:
			killed.Store(true)
			if cmd.Process != nil {
				_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
			}
		case <-done:
		}
	}()
	waitErr := cmd.Wait()
	close(done)

	if waitErr != nil && killed.Load() {
		d.log.Warn("sandbox helper killed after exceeding hard ceiling",
			zap.Int("box_id", req.BoxID), zap.Error(waitErr))
	}

	meta, metaErr := ParseMetadataFile(req.MetadataPath)
	if metaErr != nil {
		return RunResult{}, appErr.Wrapf(metaErr, appErr.SandboxFault, "parse sandbox metadata failed")
	}

	status := Classify(meta.Status)
	result := RunResult{
		Status:   status,
		Stdout:   limitString(stdout.String(), d.cfg.OutputMaxBytes),
		ExitCode: exitCode(cmd.ProcessState, waitErr),
		TimeUsed: meta.TimeSeconds,
		MemoryKB: meta.MaxRSSKB,
	}
	return result, nil
}

func (d *Driver) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, d.cfg.BinaryPath, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.String(), err
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}

func limitString(s string, max int64) string {
	if max <= 0 || int64(len(s)) <= max {
		return s
	}
	return s[:max]
}

func exitCode(state *os.ProcessState, waitErr error) int {
	if state != nil {
		return state.ExitCode()
	}
	if waitErr == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// BoxPath returns the conventional box directory for a given box id, used by
// callers that need to stage files before Run without re-querying Init.
func BoxPath(boxRoot string, boxID int) string {
	return filepath.Join(boxRoot, strconv.Itoa(boxID), "box")
}
