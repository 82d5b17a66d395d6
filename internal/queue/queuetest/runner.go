// Package queuetest provides a scripted queue.Runner for adapter tests.
package queuetest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/dshills/mqlsp/internal/queue"
)

// Reply is a canned response for one command line.
type Reply struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Err      error
}

// Runner answers commands from a script keyed by the joined command line.
// Keys may end in "*" to match any suffix; the longest such prefix wins.
// Unknown commands fail as if the binary were missing.
type Runner struct {
	mu      sync.Mutex
	replies map[string]Reply
	calls   []string
}

// NewRunner creates an empty scripted runner.
func NewRunner() *Runner {
	return &Runner{replies: make(map[string]Reply)}
}

// On registers the reply for a command line.
func (r *Runner) On(cmdline string, reply Reply) *Runner {
	r.mu.Lock()
	r.replies[cmdline] = reply
	r.mu.Unlock()
	return r
}

// Run implements queue.Runner.
func (r *Runner) Run(ctx context.Context, name string, args ...string) (queue.Result, error) {
	line := strings.Join(append([]string{name}, args...), " ")

	r.mu.Lock()
	r.calls = append(r.calls, line)
	reply, ok := r.replies[line]
	if !ok {
		best := -1
		for key, candidate := range r.replies {
			prefix, wild := strings.CutSuffix(key, "*")
			if wild && strings.HasPrefix(line, prefix) && len(prefix) > best {
				reply, ok, best = candidate, true, len(prefix)
			}
		}
	}
	r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return queue.Result{}, err
	}
	if !ok {
		return queue.Result{}, fmt.Errorf("exec: %q: executable file not found in $PATH", name)
	}
	return queue.Result{Stdout: reply.Stdout, Stderr: reply.Stderr, ExitCode: reply.ExitCode}, reply.Err
}

// Calls returns every command line run so far.
func (r *Runner) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	copy(out, r.calls)
	return out
}

// LastCall returns the most recent command line.
func (r *Runner) LastCall() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		return ""
	}
	return r.calls[len(r.calls)-1]
}
