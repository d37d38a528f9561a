package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/vk/exerunner/internal/config"
	"github.com/vk/exerunner/internal/ctxlog"
	"github.com/vk/exerunner/internal/invoke"
	"github.com/vk/exerunner/internal/report"
	"github.com/vk/exerunner/internal/step"
	"github.com/vk/exerunner/internal/tool"
	"golang.org/x/sync/errgroup"
)

// Run executes the named steps, or every configured step when none are
// named, with at most Config.Workers running at once. Each step gets its own
// run; all of them share the configured build number. The returned result is the worst of all runs; the error joins every
// step that aborted.
func (a *App) Run(ctx context.Context, stepNames ...string) (step.Result, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	st := a.state.Load()

	steps, err := selectSteps(st.model, stepNames)
	if err != nil {
		return step.Failure, err
	}
	if len(steps) == 0 {
		a.logger.Warn("No steps configured, nothing to run.")
		return step.Success, nil
	}

	runner, err := a.runner(st.model)
	if err != nil {
		return step.Failure, err
	}

	if a.cfg.HealthcheckPort > 0 {
		stop := a.startHealthcheckServer(a.cfg.HealthcheckPort)
		defer stop()
	}

	a.logger.Info("Starting steps.", "count", len(steps), "workers", a.cfg.Workers)

	results := make([]step.Result, len(steps))
	errs := make([]error, len(steps))

	var g errgroup.Group
	g.SetLimit(a.cfg.Workers)
	for i, s := range steps {
		g.Go(func() error {
			console := newPrefixWriter(a.outW, fmt.Sprintf("[%s] ", s.Name))
			defer console.Flush()
			results[i], errs[i] = a.perform(ctx, runner, st, s, console)
			return nil
		})
	}
	_ = g.Wait()

	worst := step.Success
	for _, r := range results {
		worst = worst.Combine(r)
	}
	a.logger.Info("Steps finished.", "result", worst.String())
	return worst, errors.Join(errs...)
}

// Exec runs a single step that is not part of the configuration.
func (a *App) Exec(ctx context.Context, s *config.Step) (step.Result, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	st := a.state.Load()

	runner, err := a.runner(st.model)
	if err != nil {
		return step.Failure, err
	}
	return a.perform(ctx, runner, st, s, a.outW)
}

func (a *App) perform(ctx context.Context, runner *step.Runner, st *state, s *config.Step, console io.Writer) (step.Result, error) {
	a.active.Add(1)
	defer a.active.Add(-1)

	run := step.NewRun(a.cfg.Job, a.cfg.Number, a.cfg.Workspace, nil, console, a.kind)
	if a.kind == step.Freestyle {
		run.Env = a.environment(run)
	}

	err := runner.Perform(ctx, s, run, a.node(st.model))
	a.publish(ctx, st.reporter, run, s, err)
	return run.Result(), err
}

func (a *App) runner(model *config.Model) (*step.Runner, error) {
	platform := ""
	if node := a.node(model); node != nil {
		platform = node.Platform
	}
	p, err := invoke.ParsePlatform(platform)
	if err != nil {
		return nil, err
	}
	return &step.Runner{
		Resolver: tool.NewResolver(a.store),
		Checker:  a.checker,
		Expander: a.expander,
		Invoker:  invoke.ForPlatform(p),
	}, nil
}

func (a *App) publish(ctx context.Context, r report.Reporter, run *step.Run, s *config.Step, stepErr error) {
	ev := report.Event{
		RunID:    run.ID,
		Step:     s.Name,
		Result:   run.Result().String(),
		ExitCode: run.ExitCode(),
		Finished: time.Now().UTC(),
	}
	if stepErr != nil {
		ev.Error = stepErr.Error()
	}
	if err := r.Report(ctx, ev); err != nil {
		ctxlog.FromContext(ctx).Warn("Failed to report step result.", "step", s.Name, "error", err)
	}
}

func selectSteps(model *config.Model, names []string) ([]*config.Step, error) {
	if len(names) == 0 {
		return model.Steps, nil
	}
	steps := make([]*config.Step, 0, len(names))
	for _, name := range names {
		s := model.Step(name)
		if s == nil {
			return nil, fmt.Errorf("step %q is not configured", name)
		}
		steps = append(steps, s)
	}
	return steps, nil
}
