// Package invoke launches a tool and reports its exit code.
//
// On POSIX targets the argument list is executed directly. On Windows
// targets the command line is written to a temporary batch script in the
// working directory and run through cmd.exe; the script is removed when the
// call returns, whatever the outcome.
package invoke

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/vk/exerunner/internal/argv"
	"github.com/vk/exerunner/internal/ctxlog"
)

// Command is one tool invocation.
type Command struct {
	Args []string
	Dir  string
	// Env is overlaid on the current process environment. Nil inherits it
	// unchanged.
	Env map[string]string
	// Out receives progress lines and the child's stdout and stderr.
	Out io.Writer
}

// Invoker runs a Command and returns the child's exit code. The error is
// non-nil only when the process could not be started or ctx was cancelled;
// a nonzero exit code is not an error.
type Invoker interface {
	Invoke(ctx context.Context, cmd Command) (int, error)
}

// Platform selects how commands are invoked.
type Platform int

const (
	POSIX Platform = iota
	Windows
)

func (p Platform) String() string {
	if p == Windows {
		return "windows"
	}
	return "posix"
}

// ParsePlatform parses "posix" or "windows". An empty string selects the
// host platform.
func ParsePlatform(s string) (Platform, error) {
	switch strings.ToLower(s) {
	case "":
		return HostPlatform(), nil
	case "posix", "unix", "linux", "darwin":
		return POSIX, nil
	case "windows":
		return Windows, nil
	default:
		return POSIX, fmt.Errorf("unknown platform %q", s)
	}
}

// HostPlatform returns the platform this process runs on.
func HostPlatform() Platform {
	if runtime.GOOS == "windows" {
		return Windows
	}
	return POSIX
}

// ForPlatform returns the invoker for p.
func ForPlatform(p Platform) Invoker {
	if p == Windows {
		return NewScript()
	}
	return Direct{}
}

// Direct executes the argument list as the process argv.
type Direct struct{}

// Invoke implements Invoker.
func (Direct) Invoke(ctx context.Context, cmd Command) (int, error) {
	if len(cmd.Args) == 0 {
		return -1, errors.New("invoke: empty argument list")
	}
	out := outputOf(cmd)
	fmt.Fprintf(out, "Executing : %s\n", argv.CommandLine(cmd.Args))
	return run(ctx, cmd.Args, cmd.Dir, cmd.Env, cmd.Out)
}

const waitDelay = time.Second

func run(ctx context.Context, args []string, dir string, env map[string]string, out io.Writer) (int, error) {
	logger := ctxlog.FromContext(ctx)

	c := exec.CommandContext(ctx, args[0], args[1:]...)
	c.Dir = dir
	if out != nil {
		c.Stdout = out
		c.Stderr = out
	}
	// Bound the wait for grandchildren that still hold the output pipe
	// after the child has been killed.
	c.WaitDelay = waitDelay
	if len(env) > 0 {
		c.Env = mergeEnv(os.Environ(), env)
	}

	logger.Debug("Starting process.", "bin", args[0], "argc", len(args)-1, "dir", dir)
	err := c.Run()
	if err == nil {
		return 0, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return -1, ctxErr
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, fmt.Errorf("failed to start %s: %w", args[0], err)
}

func outputOf(cmd Command) io.Writer {
	if cmd.Out == nil {
		return io.Discard
	}
	return cmd.Out
}

// mergeEnv overlays override on base ("KEY=value" entries) and returns the
// result sorted by key.
func mergeEnv(base []string, override map[string]string) []string {
	envMap := make(map[string]string, len(base)+len(override))
	for _, kv := range base {
		if k, v, ok := strings.Cut(kv, "="); ok {
			envMap[k] = v
		}
	}
	for k, v := range override {
		envMap[k] = v
	}
	keys := make([]string, 0, len(envMap))
	for k := range envMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+envMap[k])
	}
	return out
}
