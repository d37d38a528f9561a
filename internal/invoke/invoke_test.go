package invoke

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("uses POSIX shell utilities")
	}
}

// shScript returns a Script invoker that runs the generated file with sh.
func shScript() *Script {
	return &Script{
		Interpreter: []string{"sh"},
		Prefix:      "exe_runner_",
		Ext:         ".sh",
		LineEnding:  "\n",
	}
}

func leftoverScripts(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "exe_runner_*"))
	require.NoError(t, err)
	return matches
}

func TestParsePlatform(t *testing.T) {
	p, err := ParsePlatform("Windows")
	require.NoError(t, err)
	require.Equal(t, Windows, p)

	p, err = ParsePlatform("linux")
	require.NoError(t, err)
	require.Equal(t, POSIX, p)

	p, err = ParsePlatform("")
	require.NoError(t, err)
	require.Equal(t, HostPlatform(), p)

	_, err = ParsePlatform("beos")
	require.Error(t, err)
}

func TestForPlatform(t *testing.T) {
	require.IsType(t, Direct{}, ForPlatform(POSIX))
	s, ok := ForPlatform(Windows).(*Script)
	require.True(t, ok)
	require.Equal(t, []string{"cmd.exe", "/C"}, s.Interpreter)
	require.Equal(t, ".bat", s.Ext)
}

func TestDirect_ExitCodes(t *testing.T) {
	skipOnWindows(t)
	tests := []struct {
		name string
		args []string
		want int
	}{
		{"success", []string{"sh", "-c", "exit 0"}, 0},
		{"one", []string{"sh", "-c", "exit 1"}, 1},
		{"two", []string{"sh", "-c", "exit 2"}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			code, err := Direct{}.Invoke(context.Background(), Command{Args: tt.args, Out: &out})
			require.NoError(t, err)
			require.Equal(t, tt.want, code)
			require.Contains(t, out.String(), "Executing : sh -c")
		})
	}
}

func TestDirect_DirEnvAndOutput(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	var out bytes.Buffer
	code, err := Direct{}.Invoke(context.Background(), Command{
		Args: []string{"sh", "-c", `echo "$EXR_VALUE"; pwd; echo oops >&2`},
		Dir:  dir,
		Env:  map[string]string{"EXR_VALUE": "overlay"},
		Out:  &out,
	})
	require.NoError(t, err)
	require.Equal(t, 0, code)
	require.Contains(t, out.String(), "overlay\n")
	require.Contains(t, out.String(), "oops\n")
	resolved, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	require.True(t, strings.Contains(out.String(), dir) || strings.Contains(out.String(), resolved))
}

func TestDirect_LaunchFailure(t *testing.T) {
	_, err := Direct{}.Invoke(context.Background(), Command{Args: []string{filepath.Join(t.TempDir(), "missing-tool")}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to start")

	_, err = Direct{}.Invoke(context.Background(), Command{})
	require.Error(t, err)
}

func TestScript_WritesCommandLineAndCleansUp(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	var out bytes.Buffer

	// "$0" is the script path, so the child prints its own script.
	code, err := shScript().Invoke(context.Background(), Command{
		Args: []string{"cat", "$0"},
		Dir:  dir,
		Out:  &out,
	})
	require.NoError(t, err)
	require.Equal(t, 0, code)
	require.Contains(t, out.String(), "Executing : sh "+filepath.Join(dir, "exe_runner_"))
	require.Contains(t, out.String(), "cat $0\n")
	require.Empty(t, leftoverScripts(t, dir))
}

func TestScript_PropagatesExitCode(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	code, err := shScript().Invoke(context.Background(), Command{
		Args: []string{"sh", "-c", "exit 3"},
		Dir:  dir,
	})
	require.NoError(t, err)
	require.Equal(t, 3, code)
	require.Empty(t, leftoverScripts(t, dir))
}

func TestScript_RelativeDir(t *testing.T) {
	skipOnWindows(t)
	base := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(base, "ws"), 0o755))
	t.Chdir(base)

	var out bytes.Buffer
	code, err := shScript().Invoke(context.Background(), Command{
		Args: []string{"pwd"},
		Dir:  "ws",
		Out:  &out,
	})
	require.NoError(t, err)
	require.Equal(t, 0, code, out.String())
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Equal(t, "ws", filepath.Base(lines[len(lines)-1]))
	require.Empty(t, leftoverScripts(t, filepath.Join(base, "ws")))
}

func TestScript_CleansUpOnLaunchFailure(t *testing.T) {
	dir := t.TempDir()
	s := shScript()
	s.Interpreter = []string{filepath.Join(dir, "no-such-interpreter")}
	_, err := s.Invoke(context.Background(), Command{Args: []string{"tool", "-x"}, Dir: dir})
	require.Error(t, err)
	require.Empty(t, leftoverScripts(t, dir))
}

func TestScript_CleansUpOnCancellation(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := shScript().Invoke(ctx, Command{Args: []string{"sleep", "5"}, Dir: dir})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), 4*time.Second)
	require.Empty(t, leftoverScripts(t, dir))
}

func TestScript_UnwritableDir(t *testing.T) {
	_, err := shScript().Invoke(context.Background(), Command{
		Args: []string{"tool"},
		Dir:  filepath.Join(t.TempDir(), "missing"),
	})
	require.ErrorContains(t, err, "failed to create temporary script")
}

func TestMergeEnv(t *testing.T) {
	got := mergeEnv([]string{"B=2", "A=1", "broken"}, map[string]string{"A": "x", "C": "3"})
	require.Equal(t, []string{"A=x", "B=2", "C=3"}, got)
}

func TestScript_FileIsUnique(t *testing.T) {
	dir := t.TempDir()
	s := shScript()
	a, err := s.writeScript(dir, "x")
	require.NoError(t, err)
	b, err := s.writeScript(dir, "x")
	require.NoError(t, err)
	require.NotEqual(t, a, b)
	data, err := os.ReadFile(a)
	require.NoError(t, err)
	require.Equal(t, "x\n", string(data))
}
