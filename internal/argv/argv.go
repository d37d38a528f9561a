// Package argv turns configured argument strings into the argument list of
// a tool invocation.
package argv

import (
	"context"
	"fmt"
	"strings"

	"github.com/vk/exerunner/internal/ctxlog"
	"github.com/vk/exerunner/internal/expand"
)

// Tokenize splits s on spaces, tabs, carriage returns and newlines. Runs of
// separators never yield empty tokens.
func Tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\r' || r == '\n'
	})
}

// Builder expands the tokens of an argument string.
type Builder struct {
	Expander expand.Expander
	// Literal passes tokens through unexpanded.
	Literal bool
}

// Build tokenizes raw, expands every token and drops tokens that are blank
// after expansion. A token that fails to expand is reported to ec.Out and
// kept as written; Build itself never fails.
func (b *Builder) Build(ctx context.Context, raw string, ec *expand.Context) []string {
	logger := ctxlog.FromContext(ctx)

	var args []string
	for _, tok := range Tokenize(raw) {
		value := tok
		if !b.Literal && b.Expander != nil {
			expanded, err := b.Expander.Expand(ctx, tok, ec)
			if err != nil {
				logger.Warn("Argument expansion failed, passing token through.", "token", tok, "error", err)
				if ec != nil && ec.Out != nil {
					fmt.Fprintf(ec.Out, "ERROR: unable to evaluate %s: %v\n", tok, err)
				}
			} else {
				value = expanded
			}
		}
		if strings.TrimSpace(value) == "" {
			logger.Debug("Dropping blank argument.", "token", tok)
			continue
		}
		args = append(args, value)
	}
	return args
}

// Assemble returns exe followed by the default and user arguments, in that
// order.
func Assemble(exe string, defaults, user []string) []string {
	args := make([]string, 0, 1+len(defaults)+len(user))
	args = append(args, exe)
	args = append(args, defaults...)
	return append(args, user...)
}

// QuoteArg quotes arg for a cmd.exe command line when it is empty or
// contains whitespace or double quotes. Already quoted arguments are kept.
func QuoteArg(arg string) string {
	if arg == "" {
		return `""`
	}
	if len(arg) >= 2 && arg[0] == '"' && arg[len(arg)-1] == '"' {
		return arg
	}
	if !strings.ContainsAny(arg, " \t\"") {
		return arg
	}
	return `"` + strings.ReplaceAll(arg, `"`, `""`) + `"`
}

// CommandLine renders args as a single command line.
func CommandLine(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = QuoteArg(a)
	}
	return strings.Join(quoted, " ")
}
