package queue

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strconv"
	"strings"
)

// Result is the captured outcome of one tool invocation.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Combined returns stdout followed by stderr.
func (r Result) Combined() string {
	switch {
	case r.Stderr == "":
		return r.Stdout
	case r.Stdout == "":
		return r.Stderr
	}
	return r.Stdout + "\n" + r.Stderr
}

// Runner runs an external command and captures its output.
//
// A non-nil error means the process could not be run at all (missing
// binary, context expiry). A process that ran and exited non-zero is
// reported through Result.ExitCode with a nil error.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

// ExecRunner runs commands as local subprocesses.
type ExecRunner struct {
	// Dir is the working directory; empty uses the current one.
	Dir string
	// Env, when non-nil, is appended to the inherited environment.
	Env []string
}

// Run implements Runner.
func (r ExecRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if r.Dir != "" {
		cmd.Dir = r.Dir
	}
	if r.Env != nil {
		cmd.Env = append(cmd.Environ(), r.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, ctxErr
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return res, err
	}
	return res, nil
}

// Invoke runs tool through runner and maps every failure onto *Error:
// spawn errors and non-zero exits become KindToolUnavailable, deadline
// expiry becomes KindTimeout. On success the captured result is returned.
func Invoke(ctx context.Context, runner Runner, op, tool string, args ...string) (Result, error) {
	res, err := runner.Run(ctx, tool, args...)
	if err != nil {
		kind := KindToolUnavailable
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			kind = KindTimeout
		}
		return res, &Error{
			Kind:    kind,
			Op:      op,
			Message: tool + " did not complete",
			Output:  strings.TrimSpace(res.Combined()),
			Err:     err,
		}
	}
	if res.ExitCode != 0 {
		return res, &Error{
			Kind:    KindToolUnavailable,
			Op:      op,
			Message: tool + " exited with status " + strconv.Itoa(res.ExitCode),
			Output:  strings.TrimSpace(res.Combined()),
		}
	}
	return res, nil
}

// Lines splits output into trimmed, non-empty lines.
func Lines(output string) []string {
	var lines []string
	scanner := bufio.NewScanner(strings.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// JSONPayload returns the first JSON array or object embedded in output,
// skipping any banner or warning lines printed before it.
func JSONPayload(output string) (string, bool) {
	idx := strings.IndexAny(output, "[{")
	if idx < 0 {
		return "", false
	}
	return strings.TrimSpace(output[idx:]), true
}
