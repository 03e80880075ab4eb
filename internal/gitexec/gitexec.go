// Package gitexec runs the real git binary as a subprocess.
package gitexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Runner executes git commands against one repository.
type Runner struct {
	// GitPath is the real git binary, from config.
	GitPath string
	// Dir is the working directory for commands; empty means inherit.
	Dir string
	// GlobalArgs are tokens inserted before the subcommand
	// (e.g. -C <dir>, -c key=val carried over from the proxied argv).
	GlobalArgs []string
}

// NewRunner creates a runner for a repository directory.
func NewRunner(gitPath, dir string) *Runner {
	return &Runner{GitPath: gitPath, Dir: dir}
}

// Output runs git with the given args and returns stdout.
// A non-zero exit is returned as an *ExitError carrying stderr.
func (r *Runner) Output(ctx context.Context, args ...string) ([]byte, error) {
	return r.run(ctx, nil, args)
}

// OutputWithStdin runs git feeding stdin, returning stdout. Used for
// commands like `hash-object -w --stdin` where the payload may be binary
// and may exceed argv limits.
func (r *Runner) OutputWithStdin(ctx context.Context, stdin []byte, args ...string) ([]byte, error) {
	return r.run(ctx, stdin, args)
}

func (r *Runner) run(ctx context.Context, stdin []byte, args []string) ([]byte, error) {
	full := append(append([]string{}, r.GlobalArgs...), args...)
	cmd := exec.CommandContext(ctx, r.GitPath, full...)
	cmd.Dir = r.Dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	if err := cmd.Run(); err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			return stdout.Bytes(), &ExitError{
				Code:   ee.ExitCode(),
				Stderr: stderr.String(),
				Args:   full,
			}
		}
		return nil, fmt.Errorf("running git %s: %w", strings.Join(args, " "), err)
	}
	return stdout.Bytes(), nil
}

// Passthrough executes git with the caller's stdio attached unchanged and
// returns the child's exit code. This is the proxy's dispatch path: stdout,
// stderr, stdin, and the exit code all belong to the real git.
func Passthrough(gitPath string, args []string) (int, error) {
	cmd := exec.Command(gitPath, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode(), nil
	}
	return -1, fmt.Errorf("executing %s: %w", gitPath, err)
}

// ExitError is returned when git exits non-zero.
type ExitError struct {
	Code   int
	Stderr string
	Args   []string
}

func (e *ExitError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		msg = "exit status " + fmt.Sprint(e.Code)
	}
	return fmt.Sprintf("git %s: %s", strings.Join(e.Args, " "), msg)
}

// ExitCode extracts the git exit code from an error, or -1.
func ExitCode(err error) int {
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return -1
}
