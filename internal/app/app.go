package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"sync/atomic"

	"github.com/vk/exerunner/internal/config"
	"github.com/vk/exerunner/internal/ctxlog"
	"github.com/vk/exerunner/internal/expand"
	"github.com/vk/exerunner/internal/fsutil"
	"github.com/vk/exerunner/internal/report"
	"github.com/vk/exerunner/internal/step"
	"github.com/vk/exerunner/internal/tool"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	cfg      *Config
	loader   config.Loader
	kind     step.ContextKind
	expander expand.Expander
	checker  fsutil.Checker

	store    *tool.Store
	state    atomic.Pointer[state]
	reporter report.Reporter // fixed by WithReporter, else derived from config
	active   atomic.Int64
}

// state is what a configuration load produces, swapped as a whole by Reload.
type state struct {
	model    *config.Model
	reporter report.Reporter
}

// Option customizes an App.
type Option func(*App)

// WithReporter publishes step results to r instead of the configured reporter.
func WithReporter(r report.Reporter) Option {
	return func(a *App) { a.reporter = r }
}

// WithChecker replaces the local file system existence check.
func WithChecker(c fsutil.Checker) Option {
	return func(a *App) { a.checker = c }
}

// NewApp is the constructor for the main application. It builds the logger,
// loads the configuration and fills the installation store.
func NewApp(outW io.Writer, cfg *Config, loader config.Loader, opts ...Option) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	kind, err := step.ParseContextKind(cfg.Context)
	if err != nil {
		return nil, err
	}
	expander, err := expand.New(cfg.Expander)
	if err != nil {
		return nil, err
	}
	if cfg.Workspace == "" {
		cfg.Workspace = "."
	}
	workspace, err := filepath.Abs(cfg.Workspace)
	if err != nil {
		return nil, fmt.Errorf("failed to determine workspace: %w", err)
	}
	cfg.Workspace = workspace

	a := &App{
		outW:     &syncWriter{w: outW},
		logger:   logger,
		cfg:      cfg,
		loader:   loader,
		kind:     kind,
		expander: expander,
		checker:  fsutil.LocalChecker{},
		store:    tool.NewStore(),
	}
	for _, opt := range opts {
		opt(a)
	}

	if err := a.Reload(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

// Reload loads the configuration again and atomically replaces the
// installation set. Runs already in progress keep the snapshot they started
// with.
func (a *App) Reload(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)

	model, err := a.loader.Load(ctx, a.cfg.ConfigPaths...)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := model.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if a.cfg.Node != "" {
		if _, ok := model.Nodes[a.cfg.Node]; !ok {
			return fmt.Errorf("node %q is not configured", a.cfg.Node)
		}
	}

	rep, err := a.buildReporter(model.Reporter)
	if err != nil {
		return err
	}

	insts := make([]tool.Installation, 0, len(model.Installations))
	for _, c := range model.Installations {
		insts = append(insts, tool.FromConfig(c))
	}
	sort.Slice(insts, func(i, j int) bool { return insts[i].Name < insts[j].Name })

	a.store.Replace(insts)
	a.state.Store(&state{model: model, reporter: rep})
	a.logger.Info("Configuration loaded.", "installations", len(insts), "nodes", len(model.Nodes), "steps", len(model.Steps))
	return nil
}

func (a *App) buildReporter(cfg *config.Reporter) (report.Reporter, error) {
	if a.reporter != nil {
		return a.reporter, nil
	}
	if a.cfg.ReportURL != "" {
		merged := config.Reporter{}
		if cfg != nil {
			merged = *cfg
		}
		merged.URL = a.cfg.ReportURL
		cfg = &merged
	}
	if cfg == nil || cfg.URL == "" {
		return report.Nop{}, nil
	}
	return report.NewSocketIO(cfg)
}

// Model returns the configuration currently in use.
func (a *App) Model() *config.Model {
	return a.state.Load().model
}

// Installations returns every installation resolved for the configured node.
// In the freestyle context homes are expanded with the process environment.
func (a *App) Installations(ctx context.Context) ([]tool.Installation, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	node := a.node(a.Model())

	var env map[string]string
	if a.kind == step.Freestyle {
		env = a.environment(step.NewRun(a.cfg.Job, a.cfg.Number, a.cfg.Workspace, nil, nil, a.kind))
	}

	resolver := tool.NewResolver(a.store)
	snapshot := a.store.Load()
	out := make([]tool.Installation, 0, len(snapshot))
	for _, inst := range snapshot {
		resolved, err := resolver.Resolve(ctx, inst.Name, node, env)
		if err != nil {
			return nil, err
		}
		out = append(out, resolved)
	}
	return out, nil
}

func (a *App) node(model *config.Model) *config.Node {
	if a.cfg.Node == "" {
		return nil
	}
	return model.Nodes[a.cfg.Node]
}

// environment returns the process environment plus the variables describing
// run.
func (a *App) environment(run *step.Run) map[string]string {
	env := expand.Environ()
	env["WORKSPACE"] = run.Workspace
	env["JOB_NAME"] = run.Job
	env["BUILD_NUMBER"] = fmt.Sprint(run.Number)
	env["BUILD_ID"] = run.ID
	if a.cfg.Node != "" {
		env["NODE_NAME"] = a.cfg.Node
	}
	return env
}
