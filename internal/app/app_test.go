package app_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vk/exerunner/internal/app"
	"github.com/vk/exerunner/internal/config"
	"github.com/vk/exerunner/internal/step"
	"github.com/vk/exerunner/internal/testutil"
	"github.com/vk/exerunner/internal/tool"
)

// toolBody echoes its arguments and exits with the code given as exit=N.
const toolBody = `echo "tool $*"
for a in "$@"; do
  case "$a" in
    exit=*) exit "${a#exit=}" ;;
  esac
done
exit 0`

const baseHCL = `
installation "tool" {
  home         = "${WORKSPACE}/bin/tool.sh"
  default_args = "-nosplash"
}
`

func runWithTool(t *testing.T, files map[string]string, mutate func(*app.Config), opts []app.Option, names ...string) *testutil.HarnessResult {
	t.Helper()
	a, out, dir := testutil.NewApp(t, files, mutate, opts...)
	testutil.WriteTool(t, filepath.Join(dir, "bin"), "tool.sh", toolBody)

	res, err := a.Run(context.Background(), names...)
	return &testutil.HarnessResult{Output: out.String(), Result: res, Err: err, App: a, Dir: dir}
}

func TestRun_AggregatesWorstResult(t *testing.T) {
	files := map[string]string{
		"tools.hcl": baseHCL,
		"steps.hcl": `
step "ok" {
  installation = "tool"
  args         = "exit=0 ${JOB_NAME}"
}

step "flaky" {
  installation = "tool"
  args         = "exit=2"
  fail_build   = false
}
`,
	}
	rep := &testutil.RecordingReporter{}
	result := runWithTool(t, files, nil, []app.Option{app.WithReporter(rep)})

	require.NoError(t, result.Err)
	require.Equal(t, step.Unstable, result.Result)
	testutil.AssertConsoleLine(t, result, "ok", "tool -nosplash exit=0 exerunner")
	testutil.AssertConsoleLine(t, result, "ok", "Path To exe: "+filepath.Join(result.Dir, "bin", "tool.sh"))
	testutil.AssertConsoleLine(t, result, "flaky", "Exe exited with code: 2")

	events := rep.Events()
	require.Len(t, events, 2)
	byStep := map[string]string{}
	for _, ev := range events {
		byStep[ev.Step] = ev.Result
		require.NotEmpty(t, ev.RunID)
	}
	require.Equal(t, map[string]string{"ok": "SUCCESS", "flaky": "UNSTABLE"}, byStep)
}

func TestRun_FatalExitFailsRunButOtherStepsComplete(t *testing.T) {
	files := map[string]string{
		"tools.hcl": baseHCL,
		"steps.hcl": `
step "broken" {
  installation = "tool"
  args         = "exit=1"
}

step "ok" {
  installation = "tool"
  args         = "exit=0"
}
`,
	}
	result := runWithTool(t, files, nil, nil)

	require.Equal(t, step.Failure, result.Result)
	require.ErrorContains(t, result.Err, "Exited with code: 1")
	var exitErr *step.ExitCodeError
	require.True(t, errors.As(result.Err, &exitErr))
	testutil.AssertConsoleLine(t, result, "ok", "tool -nosplash exit=0")
}

func TestRun_SelectsNamedSteps(t *testing.T) {
	files := map[string]string{
		"tools.hcl": baseHCL,
		"steps.hcl": `
step "a" {
  installation = "tool"
  args         = "exit=0 from-a"
}
step "b" {
  installation = "tool"
  args         = "exit=1"
}
`,
	}
	result := runWithTool(t, files, nil, nil, "a")
	require.NoError(t, result.Err)
	require.Equal(t, step.Success, result.Result)
	require.NotContains(t, result.Output, "[b]")

	_, err := result.App.Run(context.Background(), "missing")
	require.ErrorContains(t, err, `step "missing" is not configured`)
}

func TestRun_MissingInstallation(t *testing.T) {
	files := map[string]string{
		"steps.hcl": `
step "s" {
  installation = "ghost"
}
`,
	}
	result := testutil.RunSteps(context.Background(), t, files, nil)
	require.Equal(t, step.Failure, result.Result)
	require.ErrorIs(t, result.Err, tool.ErrInstallationNotFound)

	entries, err := os.ReadDir(result.Dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "only the configuration directory exists")
}

func TestRun_PipelineContextDoesNotExpand(t *testing.T) {
	files := map[string]string{
		"tools.hcl": baseHCL,
		"steps.hcl": `step "s" { installation = "tool" }`,
	}
	result := runWithTool(t, files, func(c *app.Config) { c.Context = "pipeline" }, nil)

	require.Equal(t, step.Failure, result.Result)
	var pathErr *step.PathError
	require.True(t, errors.As(result.Err, &pathErr))
	unexpanded := filepath.Join(result.Dir, "${WORKSPACE}", "bin", "tool.sh")
	require.Equal(t, unexpanded, pathErr.Path)
	testutil.AssertConsoleLine(t, result, "s", unexpanded+" doesn't exist")
}

func TestRun_EnvExpanderAndNodeLocation(t *testing.T) {
	files := map[string]string{
		"tools.yaml": `
installations:
  - name: tool
    home: /nowhere/tool.sh
nodes:
  - name: agent
    platform: posix
    tool_locations:
      tool: ${WORKSPACE}/bin/tool.sh
steps:
  - name: s
    installation: tool
    args: "exit=0 #$BUILD_NUMBER ${UNSET_VARIABLE_FOR_TEST}"
`,
	}
	mutate := func(c *app.Config) {
		c.Expander = "env"
		c.Node = "agent"
		c.Number = 41
	}
	result := runWithTool(t, files, mutate, nil)

	require.NoError(t, result.Err)
	testutil.AssertConsoleLine(t, result, "s", "tool exit=0 #41 ${UNSET_VARIABLE_FOR_TEST}")
}

func TestRun_CancellationAbortsStep(t *testing.T) {
	files := map[string]string{
		"tools.hcl": `
installation "sleeper" {
  home = "${WORKSPACE}/bin/sleeper.sh"
}
step "slow" {
  installation = "sleeper"
  fail_build   = false
}
`,
	}
	a, _, dir := testutil.NewApp(t, files, nil)
	testutil.WriteTool(t, filepath.Join(dir, "bin"), "sleeper.sh", "exec sleep 5")

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	res, err := a.Run(ctx)
	require.Less(t, time.Since(start), 4*time.Second)
	require.Equal(t, step.Failure, res)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExec(t *testing.T) {
	a, out, dir := testutil.NewApp(t, map[string]string{"tools.hcl": baseHCL}, nil)
	testutil.WriteTool(t, filepath.Join(dir, "bin"), "tool.sh", toolBody)

	res, err := a.Exec(context.Background(), &config.Step{Name: "adhoc", Installation: "tool", Args: "exit=3", FailBuild: false})
	require.NoError(t, err)
	require.Equal(t, step.Unstable, res)
	require.Contains(t, out.String(), "Exe exited with code: 3")
}

func TestInstallationsAndReload(t *testing.T) {
	a, _, dir := testutil.NewApp(t, map[string]string{"tools.hcl": baseHCL}, nil)

	insts, err := a.Installations(context.Background())
	require.NoError(t, err)
	require.Len(t, insts, 1)
	require.Equal(t, filepath.Join(dir, "bin", "tool.sh"), insts[0].Home)

	testutil.WriteFiles(t, filepath.Join(dir, "conf"), map[string]string{
		"more.hcl": `installation "other" { home = "/opt/other" }`,
	})
	require.NoError(t, a.Reload(context.Background()))

	insts, err = a.Installations(context.Background())
	require.NoError(t, err)
	names := make([]string, len(insts))
	for i, inst := range insts {
		names[i] = inst.Name
	}
	require.Equal(t, []string{"other", "tool"}, names)
}

func TestNewApp_Errors(t *testing.T) {
	tests := []struct {
		name    string
		files   map[string]string
		mutate  func(*app.Config)
		wantErr string
	}{
		{
			name:    "syntax error",
			files:   map[string]string{"bad.hcl": `installation "x" {`},
			wantErr: "failed to load configuration",
		},
		{
			name:    "unknown node",
			files:   map[string]string{"a.hcl": baseHCL},
			mutate:  func(c *app.Config) { c.Node = "nope" },
			wantErr: `node "nope" is not configured`,
		},
		{
			name:    "bad reporter url",
			files:   map[string]string{"a.hcl": baseHCL},
			mutate:  func(c *app.Config) { c.ReportURL = "not a url" },
			wantErr: "reporter",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			testutil.WriteFiles(t, dir, tt.files)
			cfg := app.Config{ConfigPaths: []string{dir}, Workspace: dir}
			if tt.mutate != nil {
				tt.mutate(&cfg)
			}
			appConfig, err := app.NewConfig(cfg)
			require.NoError(t, err)

			_, err = app.NewApp(&testutil.SafeBuffer{}, appConfig, testutil.Loader())
			require.Error(t, err)
			require.True(t, strings.Contains(err.Error(), tt.wantErr), "got %v", err)
		})
	}
}

func TestRun_StepsShareBuildNumber(t *testing.T) {
	files := map[string]string{
		"tools.hcl": baseHCL,
		"steps.hcl": `
step "first" {
  installation = "tool"
  args         = "exit=0 build=${BUILD_NUMBER}"
}
step "second" {
  installation = "tool"
  args         = "exit=0 build=${BUILD_NUMBER}"
}
step "third" {
  installation = "tool"
  args         = "exit=0 build=$BUILD_NUMBER"
}
`,
	}
	result := runWithTool(t, files, func(c *app.Config) { c.Number = 41 }, nil)

	require.NoError(t, result.Err)
	for _, name := range []string{"first", "second", "third"} {
		testutil.AssertConsoleLine(t, result, name, "tool -nosplash exit=0 build=41")
	}
}

func TestRun_RelativeWorkspace(t *testing.T) {
	files := map[string]string{
		"tools.hcl": `installation "rel" { home = "bin/tool.sh" }`,
		"steps.hcl": `
step "s" {
  installation = "rel"
  args         = "exit=0 ws=${WORKSPACE}"
}
`,
	}
	relative := func(c *app.Config) {
		t.Chdir(filepath.Dir(c.Workspace))
		c.Workspace = filepath.Base(c.Workspace)
	}
	result := runWithTool(t, files, relative, nil)

	require.NoError(t, result.Err)
	require.Equal(t, step.Success, result.Result)
	testutil.AssertConsoleLine(t, result, "s", "Path To exe: "+filepath.Join(result.Dir, "bin", "tool.sh"))
	testutil.AssertConsoleLine(t, result, "s", "tool exit=0 ws="+result.Dir)
}
