package invoke

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/oklog/ulid/v2"
	"github.com/vk/exerunner/internal/argv"
	"github.com/vk/exerunner/internal/ctxlog"
)

// Script writes the command line to a temporary script in the working
// directory and runs Interpreter against it.
type Script struct {
	// Interpreter is the command placed before the script path.
	Interpreter []string
	// Trailer is appended after the script path.
	Trailer    []string
	Prefix     string
	Ext        string
	LineEnding string
}

// NewScript returns the cmd.exe batch-script invoker.
func NewScript() *Script {
	return &Script{
		Interpreter: []string{"cmd.exe", "/C"},
		Trailer:     []string{"&&", "exit", "%ERRORLEVEL%"},
		Prefix:      "exe_runner_",
		Ext:         ".bat",
		LineEnding:  "\r\n",
	}
}

// Invoke implements Invoker. The script is removed before Invoke returns on
// every path, including cancellation.
func (s *Script) Invoke(ctx context.Context, cmd Command) (int, error) {
	if len(cmd.Args) == 0 {
		return -1, errors.New("invoke: empty argument list")
	}
	logger := ctxlog.FromContext(ctx)
	out := outputOf(cmd)

	dir := cmd.Dir
	if dir == "" {
		dir = "."
	}
	// The interpreter runs inside dir, so a relative script path would be
	// resolved twice.
	dir, err := filepath.Abs(dir)
	if err != nil {
		return -1, fmt.Errorf("failed to resolve working directory: %w", err)
	}
	path, err := s.writeScript(dir, argv.CommandLine(cmd.Args))
	if err != nil {
		return -1, err
	}
	defer func() {
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			logger.Warn("Failed to remove temporary script.", "path", path, "error", rmErr)
			fmt.Fprintf(out, "WARNING: failed to delete %s: %v\n", path, rmErr)
		}
	}()
	logger.Debug("Wrote temporary script.", "path", path)

	args := make([]string, 0, len(s.Interpreter)+1+len(s.Trailer))
	args = append(args, s.Interpreter...)
	args = append(args, path)
	args = append(args, s.Trailer...)

	fmt.Fprintf(out, "Executing : %s\n", argv.CommandLine(args))
	return run(ctx, args, dir, cmd.Env, cmd.Out)
}

func (s *Script) writeScript(dir, line string) (string, error) {
	path := filepath.Join(dir, s.Prefix+ulid.Make().String()+s.Ext)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o700)
	if err != nil {
		return "", fmt.Errorf("failed to create temporary script: %w", err)
	}
	if _, err := f.WriteString(line + s.LineEnding); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to write temporary script: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to write temporary script: %w", err)
	}
	return path, nil
}
