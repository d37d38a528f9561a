package testutil

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/exerunner/internal/app"
	"github.com/vk/exerunner/internal/config"
	"github.com/vk/exerunner/internal/hcl"
	"github.com/vk/exerunner/internal/step"
	"github.com/vk/exerunner/internal/yamlcfg"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// HarnessResult holds the outcomes of an integration test run.
type HarnessResult struct {
	Output string
	Result step.Result
	Err    error
	App    *app.App
	Dir    string
}

// Loader returns the loader the CLI uses: HCL and YAML files side by side.
func Loader() config.Loader {
	return config.Loaders{hcl.NewLoader(), yamlcfg.NewLoader()}
}

// WriteFiles writes name->content pairs under dir, creating subdirectories.
func WriteFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

// WriteTool writes an executable POSIX shell script named name into dir and
// returns its path. The test is skipped on Windows.
func WriteTool(t *testing.T, dir, name, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake tools are POSIX shell scripts")
	}
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(p, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return p
}

// NewApp writes files into a temporary directory, which also serves as the
// workspace, and builds an app configured to load them. mutate, if non-nil,
// adjusts the configuration before the app is built.
func NewApp(t *testing.T, files map[string]string, mutate func(*app.Config), opts ...app.Option) (*app.App, *SafeBuffer, string) {
	t.Helper()

	dir := t.TempDir()
	confDir := filepath.Join(dir, "conf")
	require.NoError(t, os.MkdirAll(confDir, 0o755))
	WriteFiles(t, confDir, files)

	cfg := app.Config{
		ConfigPaths: []string{confDir},
		Workspace:   dir,
		LogLevel:    "debug",
		LogFormat:   "text",
		Workers:     4,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	appConfig, err := app.NewConfig(cfg)
	require.NoError(t, err)

	out := &SafeBuffer{}
	testApp, err := app.NewApp(out, appConfig, Loader(), opts...)
	t.Cleanup(func() {
		if os.Getenv("EXERUNNER_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), out.String())
		}
	})
	require.NoError(t, err)
	return testApp, out, dir
}

// RunSteps builds an app from files and runs the named steps (all when none
// are named).
func RunSteps(ctx context.Context, t *testing.T, files map[string]string, mutate func(*app.Config), names ...string) *HarnessResult {
	t.Helper()
	testApp, out, dir := NewApp(t, files, mutate)
	res, err := testApp.Run(ctx, names...)
	return &HarnessResult{
		Output: out.String(),
		Result: res,
		Err:    err,
		App:    testApp,
		Dir:    dir,
	}
}
