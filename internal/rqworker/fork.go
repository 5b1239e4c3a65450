package rqworker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/resquego/resque/internal/rqjob"
)

// execJobEnv names the environment variable carrying the job payload to the
// forked child. ExecArgs wraps the values the self-reexec subcommand needs
// to reconstruct and run one job.
const execJobEnv = "RESQUE_JOB"

// ExecArgs is the payload a forked child decodes from RESQUE_JOB to perform
// exactly one job and exit.
type ExecArgs struct {
	Queue    string          `json:"queue"`
	Envelope *rqjob.Envelope `json:"envelope"`
	WorkerID string          `json:"worker_id"`
	Track    bool            `json:"track"`
}

// Forker spawns and awaits the child process that performs one job. Go has
// no literal fork(2); the child is the same binary re-executed with a hidden
// subcommand, which is how it ends up running the same job-type
// registrations the parent made at startup.
type Forker interface {
	Fork(ctx context.Context, args ExecArgs) (ChildProcess, error)
}

// ChildProcess is the subset of a forked job process the worker loop needs:
// enough to signal it and to block for its outcome. *Child implements it;
// tests substitute a fake.
type ChildProcess interface {
	PID() int
	Signal(sig os.Signal) error
	Wait() (exitCode int, signal string, err error)
}

// Child is a running forked job process.
type Child struct {
	cmd *exec.Cmd
	pid int
}

// PID returns the child's process id.
func (c *Child) PID() int { return c.pid }

// Signal delivers sig to the child, tolerating the case where it has
// already exited.
func (c *Child) Signal(sig os.Signal) error {
	if c.cmd.Process == nil {
		return nil
	}
	err := c.cmd.Process.Signal(sig)
	if err == os.ErrProcessDone {
		return nil
	}
	return err
}

// Wait blocks until the child exits and reports its outcome. exec.Cmd.Wait
// already retries the underlying wait4 on EINTR inside the Go runtime, so no
// manual waitpid retry loop is needed here.
func (c *Child) Wait() (exitCode int, signal string, err error) {
	waitErr := c.cmd.Wait()
	if waitErr == nil {
		return 0, "", nil
	}
	exitErr, ok := waitErr.(*exec.ExitError)
	if !ok {
		return -1, "", waitErr
	}
	status, ok := exitErr.Sys().(syscall.WaitStatus)
	if !ok {
		return exitErr.ExitCode(), "", nil
	}
	if status.Signaled() {
		return -1, status.Signal().String(), nil
	}
	return status.ExitStatus(), "", nil
}

// SelfExecForker forks by re-executing the current binary's own executable
// path with execArgv appended (the hidden subcommand a cmd/resque wires up
// to call rqworker.RunChild), passing the job payload through an
// environment variable rather than argv so it never shows up in `ps`.
type SelfExecForker struct {
	ExecPath string
	ExecArgv []string
}

// NewSelfExecForker builds a Forker that re-invokes the running executable.
func NewSelfExecForker(execArgv ...string) (*SelfExecForker, error) {
	path, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolve executable path: %w", err)
	}
	return &SelfExecForker{ExecPath: path, ExecArgv: execArgv}, nil
}

// Fork starts the child process and returns immediately; callers call
// Child.Wait to block for completion, mirroring the parent/child split in
// spec.md §4.4 step 5.
func (f *SelfExecForker) Fork(ctx context.Context, args ExecArgs) (ChildProcess, error) {
	payload, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("marshal job for fork: %w", err)
	}

	cmd := exec.Command(f.ExecPath, f.ExecArgv...)
	cmd.Env = append(os.Environ(), execJobEnv+"="+string(payload))
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &Child{cmd: cmd, pid: cmd.Process.Pid}, nil
}

// ExecArgsFromEnv decodes the job payload set by SelfExecForker.Fork. Called
// by the hidden subcommand that RunChild implements.
func ExecArgsFromEnv() (ExecArgs, error) {
	raw := os.Getenv(execJobEnv)
	var args ExecArgs
	if raw == "" {
		return args, fmt.Errorf("%s not set: not running as a forked job child", execJobEnv)
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return args, fmt.Errorf("decode job payload: %w", err)
	}
	return args, nil
}
