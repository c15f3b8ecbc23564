//go:build linux

package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"
)

// FastConfig configures the fast tier.
type FastConfig struct {
	// WorkRoot is where per-run scratch directories are created.
	// Default: os.TempDir().
	WorkRoot string
}

// FastSandbox is the fast isolation tier: the program runs under the shared
// host runtime with a hard wall-clock timeout, a capped output buffer and a
// dedicated scratch directory, but no namespace separation.
type FastSandbox struct {
	workRoot string
}

// NewFastSandbox creates the fast tier.
func NewFastSandbox(cfg FastConfig) *FastSandbox {
	workRoot := cfg.WorkRoot
	if workRoot == "" {
		workRoot = os.TempDir()
	}
	return &FastSandbox{workRoot: workRoot}
}

func (s *FastSandbox) Run(ctx context.Context, program Program, limits Limits) (Capture, error) {
	if len(program.RunCmd) == 0 {
		return Capture{}, fmt.Errorf("run command is required")
	}
	if program.FileName == "" {
		return Capture{}, fmt.Errorf("file name is required")
	}

	workDir, err := os.MkdirTemp(s.workRoot, "exec-fast-*")
	if err != nil {
		return Capture{}, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	if err := os.WriteFile(filepath.Join(workDir, program.FileName), []byte(program.Source), 0600); err != nil {
		return Capture{}, fmt.Errorf("write program: %w", err)
	}

	cmd := exec.Command(program.RunCmd[0], program.RunCmd[1:]...)
	cmd.Dir = workDir
	cmd.Stdin = strings.NewReader(program.Stdin)
	cmd.Env = runEnv(program.Env)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}

	stdout := newCappedBuffer(limits.MaxOutputBytes)
	stderr := newCappedBuffer(limits.MaxOutputBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Capture{}, fmt.Errorf("start program: %w", err)
	}

	var timedOut atomic.Bool
	done := make(chan struct{})
	killCtx, cancelKill := context.WithCancel(ctx)
	defer cancelKill()

	go func() {
		var wallTimer <-chan time.Time
		if limits.TimeoutMs > 0 {
			wallTimer = time.After(time.Duration(limits.TimeoutMs) * time.Millisecond)
		}
		select {
		case <-killCtx.Done():
			killProcessGroup(cmd.Process.Pid)
		case <-wallTimer:
			timedOut.Store(true)
			killProcessGroup(cmd.Process.Pid)
		case <-done:
		}
	}()

	waitErr := cmd.Wait()
	close(done)

	capture := Capture{
		Output: stdout.String(),
		Metrics: Metrics{
			ExecutionTimeMs: float64(time.Since(start).Microseconds()) / 1000,
			MemoryUsageKb:   peakRSSKb(cmd.ProcessState),
		},
	}

	switch {
	case timedOut.Load():
		capture.TimedOut = true
		capture.Error = fmt.Sprintf("time limit exceeded after %dms", limits.TimeoutMs)
	case waitErr != nil:
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return Capture{}, fmt.Errorf("wait program: %w", waitErr)
		}
		capture.Error = userErrorText(stderr.String(), exitErr.ExitCode())
	case stderr.Truncated() || stdout.Truncated():
		capture.Error = "output limit exceeded"
	}

	return capture, nil
}

func runEnv(env []string) []string {
	if len(env) > 0 {
		return env
	}
	return []string{"PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"}
}

func userErrorText(stderr string, exitCode int) string {
	text := strings.TrimSpace(stderr)
	if text != "" {
		return text
	}
	return fmt.Sprintf("program exited with code %d", exitCode)
}

func killProcessGroup(pid int) {
	if pid <= 0 {
		return
	}
	_ = syscall.Kill(-pid, syscall.SIGKILL)
}

func peakRSSKb(state *os.ProcessState) int64 {
	if state == nil {
		return 0
	}
	rusage, ok := state.SysUsage().(*syscall.Rusage)
	if !ok || rusage == nil {
		return 0
	}
	// Maxrss is already in kilobytes on Linux.
	return rusage.Maxrss
}

var _ Sandbox = (*FastSandbox)(nil)
