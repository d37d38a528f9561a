// Package step runs a configured build step: it resolves the step's tool
// installation, assembles the argument list and launches the tool, mapping
// the exit code onto the run's result.
package step

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/vk/exerunner/internal/expand"
)

// Result is the outcome of a run. Results are ordered from best to worst.
type Result int

const (
	Success Result = iota
	Unstable
	Failure
)

func (r Result) String() string {
	switch r {
	case Success:
		return "SUCCESS"
	case Unstable:
		return "UNSTABLE"
	case Failure:
		return "FAILURE"
	default:
		return fmt.Sprintf("Result(%d)", int(r))
	}
}

// Combine returns the worse of r and other.
func (r Result) Combine(other Result) Result {
	if other > r {
		return other
	}
	return r
}

// ContextKind selects what a run knows about its environment.
type ContextKind int

const (
	// Freestyle runs see their environment: installation homes and
	// argument tokens are expanded and the variables are passed to the tool.
	Freestyle ContextKind = iota
	// Pipeline runs have no environment: homes and tokens are used as
	// written and the tool inherits the runner's own environment.
	Pipeline
)

func (k ContextKind) String() string {
	if k == Pipeline {
		return "pipeline"
	}
	return "freestyle"
}

// ParseContextKind parses "freestyle" or "pipeline". Empty means freestyle.
func ParseContextKind(s string) (ContextKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "freestyle":
		return Freestyle, nil
	case "pipeline":
		return Pipeline, nil
	default:
		return Freestyle, fmt.Errorf("unknown context %q: must be \"freestyle\" or \"pipeline\"", s)
	}
}

// Run is one execution of a job. A Run is used by a single step at a time,
// but its result may be read concurrently.
type Run struct {
	ID        string
	Number    int
	Job       string
	Workspace string
	Env       map[string]string
	Console   io.Writer
	Context   ContextKind

	mu       sync.Mutex
	result   Result
	exitCode int
}

// NewRun creates a run with a fresh ID and a Success result.
func NewRun(job string, number int, workspace string, env map[string]string, console io.Writer, kind ContextKind) *Run {
	return &Run{
		ID:        ulid.Make().String(),
		Number:    number,
		Job:       job,
		Workspace: workspace,
		Env:       env,
		Console:   console,
		Context:   kind,
	}
}

// SetResult records res unless the run already has a worse result.
func (r *Run) SetResult(res Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.result = r.result.Combine(res)
}

// Result returns the current result.
func (r *Run) Result() Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result
}

// ExitCode returns the exit code of the last tool launched by the run, or 0.
func (r *Run) ExitCode() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.exitCode
}

func (r *Run) setExitCode(code int) {
	r.mu.Lock()
	r.exitCode = code
	r.mu.Unlock()
}

func (r *Run) console() io.Writer {
	if r.Console == nil {
		return io.Discard
	}
	return r.Console
}

func (r *Run) expandContext() *expand.Context {
	return &expand.Context{
		Env:       r.Env,
		Workspace: r.Workspace,
		Build:     expand.BuildInfo{ID: r.ID, Number: r.Number, Job: r.Job},
		Out:       r.console(),
	}
}
