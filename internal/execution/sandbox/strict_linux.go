//go:build linux

package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/suchitj2702/algo-irl/pkg/utils/logger"

	"go.uber.org/zap"
)

// StrictConfig configures the strict tier.
type StrictConfig struct {
	// HelperPath locates the sandbox-init binary. Default: "sandbox-init"
	// resolved through PATH.
	HelperPath string

	// SeccompProfile is the path of the JSON seccomp profile applied to the
	// program. Empty disables seccomp.
	SeccompProfile string

	// WorkRoot is where per-run scratch directories are created.
	WorkRoot string

	EnableNamespaces bool
}

// StrictSandbox is the strict isolation tier: the program runs in a separate
// memory space behind the sandbox-init helper, with rlimits, optional
// namespaces and seccomp, and an explicit teardown of its scratch directory
// after every run.
type StrictSandbox struct {
	cfg StrictConfig
}

// NewStrictSandbox creates the strict tier.
func NewStrictSandbox(cfg StrictConfig) *StrictSandbox {
	if cfg.HelperPath == "" {
		cfg.HelperPath = "sandbox-init"
	}
	if cfg.WorkRoot == "" {
		cfg.WorkRoot = os.TempDir()
	}
	return &StrictSandbox{cfg: cfg}
}

func (s *StrictSandbox) Run(ctx context.Context, program Program, limits Limits) (Capture, error) {
	if len(program.RunCmd) == 0 {
		return Capture{}, fmt.Errorf("run command is required")
	}
	if program.FileName == "" {
		return Capture{}, fmt.Errorf("file name is required")
	}

	workDir, err := os.MkdirTemp(s.cfg.WorkRoot, "exec-strict-*")
	if err != nil {
		return Capture{}, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	if err := os.WriteFile(filepath.Join(workDir, program.FileName), []byte(program.Source), 0600); err != nil {
		return Capture{}, fmt.Errorf("write program: %w", err)
	}
	stdinPath := filepath.Join(workDir, "stdin.txt")
	if err := os.WriteFile(stdinPath, []byte(program.Stdin), 0600); err != nil {
		return Capture{}, fmt.Errorf("write stdin: %w", err)
	}
	stdoutPath := filepath.Join(workDir, "stdout.txt")
	stderrPath := filepath.Join(workDir, "stderr.txt")

	outputMB := (limits.MaxOutputBytes + (1 << 20) - 1) >> 20
	initReq := initRequest{
		RunSpec: helperRunSpec{
			WorkDir:    workDir,
			Cmd:        program.RunCmd,
			Env:        runEnv(program.Env),
			StdinPath:  stdinPath,
			StdoutPath: stdoutPath,
			StderrPath: stderrPath,
			Limits: resourceLimit{
				CPUTimeMs:  limits.TimeoutMs,
				WallTimeMs: limits.TimeoutMs,
				MemoryMB:   limits.MemoryLimitMb,
				OutputMB:   outputMB,
				PIDs:       64,
			},
		},
		Isolation: isolationProfile{
			SeccompProfile: s.cfg.SeccompProfile,
			DisableNetwork: !limits.NetworkEnabled,
		},
		EnableSeccomp: s.cfg.SeccompProfile != "",
		EnableNs:      s.cfg.EnableNamespaces,
	}

	stdinPipe, err := jsonToPipe(initReq)
	if err != nil {
		return Capture{}, fmt.Errorf("encode init request: %w", err)
	}
	defer stdinPipe.Close()

	cmd := exec.Command(s.cfg.HelperPath)
	cmd.SysProcAttr = buildSysProcAttr(s.cfg.EnableNamespaces, !limits.NetworkEnabled)
	cmd.Stdin = stdinPipe

	var helperStderr bytes.Buffer
	cmd.Stderr = &helperStderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Capture{}, fmt.Errorf("start helper: %w", err)
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

	programStdout := readLimitedFile(stdoutPath, limits.MaxOutputBytes)
	programStderr := readLimitedFile(stderrPath, limits.MaxOutputBytes)

	capture := Capture{
		Output: programStdout,
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
			return Capture{}, fmt.Errorf("wait helper: %w", waitErr)
		}
		// The helper reports its own failures on stderr before the program
		// image replaces it. A helper-side message with no program output
		// means the sandbox never ran the user program.
		if programStdout == "" && programStderr == "" && helperStderr.Len() > 0 {
			return Capture{}, fmt.Errorf("sandbox helper failed: %s", strings.TrimSpace(helperStderr.String()))
		}
		if killedBySignal(exitErr, syscall.SIGKILL) && limits.MemoryLimitMb > 0 {
			capture.Error = fmt.Sprintf("memory limit exceeded (%dMB)", limits.MemoryLimitMb)
		} else {
			capture.Error = userErrorText(programStderr, exitErr.ExitCode())
		}
	}

	if waitErr != nil && helperStderr.Len() > 0 {
		logger.Warn(ctx, "sandbox helper stderr", zap.String("stderr", helperStderr.String()))
	}

	return capture, nil
}

func buildSysProcAttr(enableNamespaces, disableNetwork bool) *syscall.SysProcAttr {
	attr := &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}
	if !enableNamespaces {
		return attr
	}

	cloneFlags := uintptr(syscall.CLONE_NEWNS | syscall.CLONE_NEWPID | syscall.CLONE_NEWUTS | syscall.CLONE_NEWIPC)
	if disableNetwork {
		cloneFlags |= syscall.CLONE_NEWNET
	}
	cloneFlags |= syscall.CLONE_NEWUSER

	attr.Cloneflags = cloneFlags
	attr.GidMappingsEnableSetgroups = false
	attr.UidMappings = []syscall.SysProcIDMap{{
		ContainerID: 0,
		HostID:      os.Getuid(),
		Size:        1,
	}}
	attr.GidMappings = []syscall.SysProcIDMap{{
		ContainerID: 0,
		HostID:      os.Getgid(),
		Size:        1,
	}}
	return attr
}

func jsonToPipe(req initRequest) (io.ReadCloser, error) {
	reader, writer := io.Pipe()
	go func() {
		enc := json.NewEncoder(writer)
		err := enc.Encode(req)
		_ = writer.CloseWithError(err)
	}()
	return reader, nil
}

func readLimitedFile(path string, maxBytes int64) string {
	if path == "" {
		return ""
	}
	file, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer file.Close()
	if maxBytes <= 0 {
		maxBytes = 1 << 20
	}
	data, err := io.ReadAll(io.LimitReader(file, maxBytes))
	if err != nil {
		return ""
	}
	return string(data)
}

func killedBySignal(exitErr *exec.ExitError, sig syscall.Signal) bool {
	status, ok := exitErr.Sys().(syscall.WaitStatus)
	return ok && status.Signaled() && status.Signal() == sig
}

var _ Sandbox = (*StrictSandbox)(nil)
