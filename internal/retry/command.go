package retry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrInvalidCommand marks malformed invocations; they are never retried.
var ErrInvalidCommand = errors.New("invalid command")

// Command is an external process invocation.
type Command struct {
	Name string
	Args []string
	Dir  string
}

func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// CommandResult carries captured output of a successful run.
type CommandResult struct {
	Stdout string
	Stderr string
}

// CommandError is a process that exited with a non-zero status.
type CommandError struct {
	Command  string
	ExitCode int
	Stdout   string
	Stderr   string
}

func (e *CommandError) Error() string {
	stderr := strings.TrimSpace(e.Stderr)
	if stderr == "" {
		return fmt.Sprintf("command %q exited with code %d", e.Command, e.ExitCode)
	}
	return fmt.Sprintf("command %q exited with code %d: %s", e.Command, e.ExitCode, stderr)
}

// RunCommand executes cmd under policy, retrying non-zero exits.
func (e *Executor) RunCommand(ctx context.Context, policy Policy, cmd Command) (CommandResult, error) {
	if strings.TrimSpace(cmd.Name) == "" {
		return CommandResult{}, fmt.Errorf("%w: empty command name", ErrInvalidCommand)
	}
	if _, err := exec.LookPath(cmd.Name); err != nil {
		return CommandResult{}, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}

	return Run(ctx, e, cmd.String(), policy, func(ctx context.Context) (CommandResult, error) {
		return runOnce(ctx, cmd)
	})
}

func runOnce(ctx context.Context, cmd Command) (CommandResult, error) {
	var stdout, stderr bytes.Buffer
	proc := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	proc.Dir = cmd.Dir
	proc.Stdout = &stdout
	proc.Stderr = &stderr

	err := proc.Run()
	if err == nil {
		return CommandResult{Stdout: stdout.String(), Stderr: stderr.String()}, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return CommandResult{}, &CommandError{
			Command:  cmd.String(),
			ExitCode: exitErr.ExitCode(),
			Stdout:   stdout.String(),
			Stderr:   stderr.String(),
		}
	}
	return CommandResult{}, fmt.Errorf("start %q: %w", cmd.String(), err)
}
