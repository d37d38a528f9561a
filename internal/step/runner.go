package step

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/vk/exerunner/internal/argv"
	"github.com/vk/exerunner/internal/config"
	"github.com/vk/exerunner/internal/ctxlog"
	"github.com/vk/exerunner/internal/expand"
	"github.com/vk/exerunner/internal/fsutil"
	"github.com/vk/exerunner/internal/invoke"
	"github.com/vk/exerunner/internal/tool"
)

// Resolver finds the installation a step refers to. *tool.Resolver
// implements it.
type Resolver interface {
	Resolve(ctx context.Context, name string, node *config.Node, env map[string]string) (tool.Installation, error)
}

// Runner performs build steps. A Runner holds no per-run state and may be
// shared by concurrent runs.
type Runner struct {
	Resolver Resolver
	Checker  fsutil.Checker
	Expander expand.Expander
	Invoker  invoke.Invoker
}

// Perform executes s for run on node. It returns an *AbortError when the
// installation or its executable cannot be found, when the tool cannot be
// launched, or when the tool exits nonzero and s.FailBuild is set. A nonzero
// exit with FailBuild unset marks the run Unstable and returns nil.
func (r *Runner) Perform(ctx context.Context, s *config.Step, run *Run, node *config.Node) error {
	ctx = ctxlog.With(ctx, "step", s.Name, "run_id", run.ID, "context", run.Context.String())
	logger := ctxlog.FromContext(ctx)
	out := run.console()

	var env map[string]string
	if run.Context == Freestyle {
		env = run.Env
		if env == nil {
			env = map[string]string{}
		}
	}

	inst, err := r.Resolver.Resolve(ctx, s.Installation, node, env)
	if err != nil {
		fmt.Fprintf(out, "ERROR: %v\n", err)
		return r.abort(ctx, s, run, err)
	}

	exe := strings.TrimSpace(inst.Home)
	if exe == "" {
		fmt.Fprintf(out, "ERROR: %v\n", ErrBlankPath)
		return r.abort(ctx, s, run, ErrBlankPath)
	}
	exe, err = absPath(exe, run.Workspace)
	if err != nil {
		fmt.Fprintf(out, "ERROR: %v\n", err)
		return r.abort(ctx, s, run, err)
	}
	exists, err := r.Checker.Exists(ctx, exe)
	if err != nil || !exists {
		pathErr := &PathError{Path: exe, Err: err}
		fmt.Fprintln(out, pathErr.Error())
		return r.abort(ctx, s, run, pathErr)
	}
	fmt.Fprintf(out, "Path To exe: %s\n", exe)

	builder := argv.Builder{Expander: r.Expander, Literal: run.Context == Pipeline}
	ec := run.expandContext()
	defaults := builder.Build(ctx, inst.DefaultArgs, ec)
	user := builder.Build(ctx, s.Args, ec)
	args := argv.Assemble(exe, defaults, user)

	cmd := invoke.Command{Args: args, Dir: run.Workspace, Out: out}
	if run.Context == Freestyle {
		cmd.Env = run.Env
	}

	logger.Info("Launching tool.", "installation", inst.Name, "exe", exe, "arg_count", len(args)-1)
	code, err := r.Invoker.Invoke(ctx, cmd)
	if err != nil {
		fmt.Fprintf(out, "ERROR: %v\n", err)
		return r.abort(ctx, s, run, err)
	}
	run.setExitCode(code)

	if code == 0 {
		logger.Info("Tool finished.", "exit_code", code)
		return nil
	}
	if s.FailBuild {
		return r.abort(ctx, s, run, &ExitCodeError{Code: code})
	}
	fmt.Fprintf(out, "Exe exited with code: %d\n", code)
	logger.Warn("Tool exited nonzero, marking run unstable.", "exit_code", code)
	run.SetResult(Unstable)
	return nil
}

func (r *Runner) abort(ctx context.Context, s *config.Step, run *Run, err error) error {
	ctxlog.FromContext(ctx).Error("Step aborted.", "error", err)
	run.SetResult(Failure)
	return &AbortError{Step: s.Name, Err: err}
}

// absPath resolves a relative exe against the workspace, the directory the
// tool is launched in, so the checked path and argv[0] are the same file.
func absPath(exe, workspace string) (string, error) {
	if filepath.IsAbs(exe) {
		return exe, nil
	}
	abs, err := filepath.Abs(filepath.Join(workspace, exe))
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", exe, err)
	}
	return abs, nil
}
