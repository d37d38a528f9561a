package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/vk/exerunner/internal/app"
	"github.com/vk/exerunner/internal/config"
)

func newRunCommand(opts *options, outW io.Writer) *cobra.Command {
	var (
		workers      int
		unstableCode int
		healthPort   int
	)
	cmd := &cobra.Command{
		Use:   "run [step...]",
		Short: "Run configured steps",
		Long:  `Run executes the named steps, or every configured step when none are named.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if unstableCode < 0 || unstableCode > 255 {
				return usageError(fmt.Errorf("invalid unstable-exit-code %d", unstableCode))
			}
			a, err := opts.newApp(outW, workers, healthPort)
			if err != nil {
				return err
			}
			res, err := a.Run(cmd.Context(), args...)
			return resultError(res, err, unstableCode)
		},
	}
	cmd.Flags().IntVar(&workers, "workers", app.DefaultWorkers, "Number of steps run concurrently.")
	cmd.Flags().IntVar(&unstableCode, "unstable-exit-code", 0, "Exit code used when the result is UNSTABLE.")
	cmd.Flags().IntVar(&healthPort, "healthcheck-port", 0, "Port for the HTTP health check server. 0 is disabled.")
	return cmd
}

func newExecCommand(opts *options, outW io.Writer) *cobra.Command {
	var (
		s            config.Step
		unstableCode int
	)
	cmd := &cobra.Command{
		Use:   "exec",
		Short: "Run an installation with ad-hoc arguments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.newApp(outW, 1, 0)
			if err != nil {
				return err
			}
			res, err := a.Exec(cmd.Context(), &s)
			return resultError(res, err, unstableCode)
		},
	}
	cmd.Flags().StringVar(&s.Name, "name", "exec", "Step name used in logs and reports.")
	cmd.Flags().StringVar(&s.Installation, "installation", "", "Installation to run.")
	cmd.Flags().StringVar(&s.Args, "args", "", "Arguments appended after the installation's default arguments.")
	cmd.Flags().BoolVar(&s.FailBuild, "fail-build", config.DefaultFailBuild, "Fail on a nonzero exit code instead of marking the build unstable.")
	cmd.Flags().IntVar(&unstableCode, "unstable-exit-code", 0, "Exit code used when the result is UNSTABLE.")
	_ = cmd.MarkFlagRequired("installation")
	return cmd
}

func newInstallationsCommand(opts *options, outW io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "installations",
		Short: "List installations resolved for the node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Only errors are logged while listing.
			opts.logLevel = "error"
			a, err := opts.newApp(cmd.ErrOrStderr(), 1, 0)
			if err != nil {
				return err
			}
			insts, err := a.Installations(cmd.Context())
			if err != nil {
				return &ExitError{Code: 1, Message: err.Error()}
			}
			for _, inst := range insts {
				fmt.Fprintf(outW, "%s\t%s\t%s\n", inst.Name, inst.Home, inst.DefaultArgs)
			}
			return nil
		},
	}
}
