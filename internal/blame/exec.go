package blame

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Executor runs git with a literal argument vector in dir and returns stdout.
// A failed run returns an *ExecError.
type Executor interface {
	Execute(ctx context.Context, dir string, args []string) (string, error)
}

// ExecError reports a git run that could not start or exited non-zero.
type ExecError struct {
	Args     []string
	ExitCode int // -1 when the process never ran to completion
	Output   string
	Err      error
}

func (e *ExecError) Error() string {
	sub := "git"
	if len(e.Args) > 0 {
		sub = "git " + e.Args[0]
	}
	if e.ExitCode >= 0 {
		return fmt.Sprintf("%s exited with status %d", sub, e.ExitCode)
	}
	return fmt.Sprintf("%s could not run: %v", sub, e.Err)
}

func (e *ExecError) Unwrap() error { return e.Err }

// GitExecutor runs the git binary directly, never through a shell.
type GitExecutor struct {
	Path string
}

// NewGitExecutor returns an executor for the git binary at path ("git" when
// empty, resolved through PATH).
func NewGitExecutor(path string) *GitExecutor {
	if path == "" {
		path = "git"
	}
	return &GitExecutor{Path: path}
}

// Execute implements Executor. stdout is returned for parsing; on failure the
// captured stderr (and any stdout) becomes ExecError.Output.
func (g *GitExecutor) Execute(ctx context.Context, dir string, args []string) (string, error) {
	cmd := exec.CommandContext(ctx, g.Path, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		ee := &ExecError{
			Args:     args,
			ExitCode: -1,
			Output:   combineOutput(stderr.String(), stdout.String()),
			Err:      err,
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			ee.ExitCode = exitErr.ExitCode()
		}
		return "", ee
	}
	return stdout.String(), nil
}

// combineOutput joins the two streams of a failed run, stderr first.
func combineOutput(stderr, stdout string) string {
	stderr, stdout = strings.TrimSpace(stderr), strings.TrimSpace(stdout)
	if stderr == "" || stdout == "" {
		return stderr + stdout
	}
	return stderr + "\n" + stdout
}

// Available checks that the configured git binary can be found.
func (g *GitExecutor) Available() error {
	if _, err := exec.LookPath(g.Path); err != nil {
		return fmt.Errorf("git not found at %q: %w", g.Path, err)
	}
	return nil
}
