package expand

import (
	"context"
	"regexp"
)

var macroRegex = regexp.MustCompile(`\$([A-Za-z0-9_]+|\{[A-Za-z0-9_.]+\}|\$)`)

// ReplaceMacro substitutes $NAME and ${NAME} references in s with values
// from vars. "$$" is an escaped "$". References to names missing from vars
// are left untouched.
func ReplaceMacro(s string, vars map[string]string) string {
	if len(s) == 0 {
		return s
	}
	return macroRegex.ReplaceAllStringFunc(s, func(m string) string {
		name := m[1:]
		if name == "$" {
			return "$"
		}
		if name[0] == '{' {
			name = name[1 : len(name)-1]
		}
		if v, ok := vars[name]; ok {
			return v
		}
		return m
	})
}

// EnvExpander is plain environment-variable substitution.
type EnvExpander struct{}

// Expand implements Expander. It never fails.
func (EnvExpander) Expand(_ context.Context, token string, ec *Context) (string, error) {
	if ec == nil {
		return token, nil
	}
	return ReplaceMacro(token, ec.Env), nil
}
