package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/vk/exerunner/internal/app"
	"github.com/vk/exerunner/internal/config"
	"github.com/vk/exerunner/internal/hcl"
	"github.com/vk/exerunner/internal/step"
	"github.com/vk/exerunner/internal/yamlcfg"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

func usageError(err error) error {
	return &ExitError{Code: 2, Message: err.Error()}
}

// options are the persistent flags shared by every subcommand.
type options struct {
	configPaths []string
	logLevel    string
	logFormat   string
	node        string
	workspace   string
	job         string
	number      int
	context     string
	expander    string
	reportURL   string
}

// Execute runs the command line args. Errors that should end the process
// with a specific code are returned as *ExitError; usage mistakes map to 2.
func Execute(ctx context.Context, args []string, outW io.Writer) error {
	root := NewRootCommand(outW)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr
	}
	return usageError(err)
}

// NewRootCommand builds the exerunner command tree writing to outW.
func NewRootCommand(outW io.Writer) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "exerunner",
		Short: "exerunner runs configured tool installations as build steps",
		Long: `exerunner resolves named tool installations for the node it runs on,
assembles the command line from the installation's default arguments and the
step's arguments, expands build variables and launches the tool, mapping its
exit code onto a SUCCESS, UNSTABLE or FAILURE result.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return opts.validate()
		},
	}
	root.SetOut(outW)
	root.SetErr(outW)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError(err)
	})

	pf := root.PersistentFlags()
	pf.StringArrayVarP(&opts.configPaths, "config", "c", []string{"."}, "Configuration file or directory (.hcl, .yaml). Repeatable.")
	pf.StringVar(&opts.logLevel, "log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	pf.StringVar(&opts.logFormat, "log-format", "text", "Log output format. Options: 'text' or 'json'.")
	pf.StringVar(&opts.node, "node", "", "Configured node whose tool locations and platform apply.")
	pf.StringVar(&opts.workspace, "workspace", "", "Working directory of launched tools. Defaults to the current directory.")
	pf.StringVar(&opts.job, "job", "", "Job name exposed as JOB_NAME.")
	pf.IntVar(&opts.number, "build-number", 1, "Build number exposed as BUILD_NUMBER.")
	pf.StringVar(&opts.context, "context", "freestyle", "Execution context. Options: 'freestyle' or 'pipeline'.")
	pf.StringVar(&opts.expander, "expander", "template", "Argument expansion strategy. Options: 'template' or 'env'.")
	pf.StringVar(&opts.reportURL, "report-url", "", "socket.io URL step results are reported to.")

	root.AddCommand(
		newRunCommand(opts, outW),
		newExecCommand(opts, outW),
		newInstallationsCommand(opts, outW),
	)
	return root
}

func (o *options) validate() error {
	o.logFormat = strings.ToLower(o.logFormat)
	if o.logFormat != "text" && o.logFormat != "json" {
		return &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	o.logLevel = strings.ToLower(o.logLevel)
	switch o.logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}
	return nil
}

func (o *options) appConfig(workers, healthPort int) (*app.Config, error) {
	cfg, err := app.NewConfig(app.Config{
		ConfigPaths:     o.configPaths,
		Node:            o.node,
		Workspace:       o.workspace,
		Job:             o.job,
		Number:          o.number,
		Context:         o.context,
		Expander:        o.expander,
		Workers:         workers,
		LogLevel:        o.logLevel,
		LogFormat:       o.logFormat,
		ReportURL:       o.reportURL,
		HealthcheckPort: healthPort,
	})
	if err != nil {
		return nil, usageError(err)
	}
	return cfg, nil
}

func (o *options) newApp(outW io.Writer, workers, healthPort int) (*app.App, error) {
	cfg, err := o.appConfig(workers, healthPort)
	if err != nil {
		return nil, err
	}
	loader := config.Loaders{hcl.NewLoader(), yamlcfg.NewLoader()}
	a, err := app.NewApp(outW, cfg, loader)
	if err != nil {
		return nil, &ExitError{Code: 1, Message: err.Error()}
	}
	return a, nil
}

// resultError maps a finished build onto the process exit code.
func resultError(res step.Result, err error, unstableCode int) error {
	switch res {
	case step.Success:
		return nil
	case step.Unstable:
		if unstableCode == 0 {
			return nil
		}
		return &ExitError{Code: unstableCode, Message: "Build result: UNSTABLE"}
	default:
		msg := "Build result: FAILURE"
		if err != nil {
			msg = fmt.Sprintf("%s: %v", msg, err)
		}
		return &ExitError{Code: 1, Message: msg}
	}
}
