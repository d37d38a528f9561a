// Package expand implements the variable expansion strategies applied to
// each argument token before a tool is launched.
//
// Two strategies exist: EnvExpander substitutes $NAME and ${NAME} from the
// run's environment, and TemplateExpander evaluates the token as an HCL
// template with environment, workspace and build variables plus a set of
// string functions. The strategy is chosen when the app is configured.
package expand

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
)

// Strategy names accepted by New.
const (
	KindTemplate = "template"
	KindEnv      = "env"
)

// BuildInfo identifies the run a token is expanded for.
type BuildInfo struct {
	ID     string
	Number int
	Job    string
}

// Context is what an expander may read while expanding a token: the run's
// variables, its workspace, and the build log.
type Context struct {
	Env       map[string]string
	Workspace string
	Build     BuildInfo
	Out       io.Writer
}

// Expander expands one argument token.
type Expander interface {
	Expand(ctx context.Context, token string, ec *Context) (string, error)
}

// New returns the expander registered under kind. An empty kind selects the
// template expander.
func New(kind string) (Expander, error) {
	switch strings.ToLower(kind) {
	case "", KindTemplate:
		return NewTemplateExpander(), nil
	case KindEnv:
		return EnvExpander{}, nil
	default:
		return nil, fmt.Errorf("unknown expander %q: must be %q or %q", kind, KindTemplate, KindEnv)
	}
}

// Environ returns the process environment as a map.
func Environ() map[string]string {
	env := make(map[string]string)
	for _, e := range os.Environ() {
		if k, v, ok := strings.Cut(e, "="); ok && k != "" {
			env[k] = v
		}
	}
	return env
}
