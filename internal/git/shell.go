package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// ShellRunner shells out to the system git binary. Every invocation runs once:
// failures are reported to the caller and never retried.
type ShellRunner struct {
	// Git is the git binary to execute. Defaults to "git" when empty.
	Git string

	// Env is appended to the inherited process environment.
	Env []string
}

// NewShellRunner returns a Runner backed by system git commands.
func NewShellRunner() *ShellRunner {
	return &ShellRunner{}
}

func (r *ShellRunner) gitBinary() string {
	if r.Git == "" {
		return "git"
	}
	return r.Git
}

// Run executes git with args in dir. An empty dir runs in the process working
// directory. Stdout is returned as-is; stderr is only surfaced through *GitError.
func (r *ShellRunner) Run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, r.gitBinary(), args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	cmd.Env = append(cmd.Env, r.Env...)
	setProcessGroup(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return "", &GitError{Args: args, Dir: dir, ExitCode: -1, Stderr: stderr.String(), Err: err}
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case <-ctx.Done():
		terminateProcessGroup(cmd)
		<-done
		return stdout.String(), ctx.Err()
	case err := <-done:
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return stdout.String(), ctxErr
			}
			exitCode := -1
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				exitCode = exitErr.ExitCode()
			}
			return stdout.String(), &GitError{Args: args, Dir: dir, ExitCode: exitCode, Stdout: stdout.String(), Stderr: stderr.String(), Err: err}
		}
	}

	return stdout.String(), nil
}

// GitError wraps failures when invoking the git binary. ExitCode is -1 when the
// process could not be started or did not report an exit status. Some commands,
// like commit with nothing staged, explain themselves on stdout only; Error
// falls back to Stdout when Stderr is empty.
type GitError struct {
	Args     []string
	Dir      string
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
}

func (e *GitError) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("git %s: %v", strings.Join(redactArgs(e.Args), " "), e.Err)
	if stderr := strings.TrimSpace(RedactText(e.Stderr)); stderr != "" {
		msg += "\n" + stderr
	} else if stdout := strings.TrimSpace(RedactText(e.Stdout)); stdout != "" {
		msg += "\n" + stdout
	}
	return msg
}

func (e *GitError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ExitCode reports the exit status carried by a *GitError in err's chain.
func ExitCode(err error) (int, bool) {
	var gitErr *GitError
	if !errors.As(err, &gitErr) {
		return 0, false
	}
	return gitErr.ExitCode, true
}

func redactArgs(args []string) []string {
	out := make([]string, len(args))
	for i, arg := range args {
		out[i] = RedactURL(arg)
	}
	return out
}
