package expand

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// reserved names shadow environment variables of the same name.
var reserved = map[string]bool{"env": true, "workspace": true, "build": true}

// TemplateExpander evaluates each token as an HCL template, e.g.
// "-data=${workspace}/${lower(env.JOB_NAME)}". Bare environment names that
// are valid identifiers are also visible as top-level variables, so
// "${WORKSPACE}" works as well. Plain $NAME references to known environment
// variables are substituted before the template is parsed.
type TemplateExpander struct {
	Functions map[string]function.Function
}

// NewTemplateExpander returns an expander with the default string functions.
func NewTemplateExpander() *TemplateExpander {
	return &TemplateExpander{
		Functions: map[string]function.Function{
			"upper":      stdlib.UpperFunc,
			"lower":      stdlib.LowerFunc,
			"title":      stdlib.TitleFunc,
			"trimspace":  stdlib.TrimSpaceFunc,
			"trimprefix": stdlib.TrimPrefixFunc,
			"trimsuffix": stdlib.TrimSuffixFunc,
			"replace":    stdlib.ReplaceFunc,
			"substr":     stdlib.SubstrFunc,
			"format":     stdlib.FormatFunc,
			"coalesce":   stdlib.CoalesceFunc,
		},
	}
}

// Expand implements Expander. Parse errors, unknown variables and unknown
// functions are returned as errors; a null result expands to "".
func (t *TemplateExpander) Expand(_ context.Context, token string, ec *Context) (string, error) {
	if ec != nil {
		token = replaceBareNames(token, ec.Env)
	}
	expr, diags := hclsyntax.ParseTemplate([]byte(token), "argument", hcl.InitialPos)
	if diags.HasErrors() {
		return "", diags
	}
	val, diags := expr.Value(t.evalContext(ec))
	if diags.HasErrors() {
		return "", diags
	}
	if val.IsNull() {
		return "", nil
	}
	if !val.IsWhollyKnown() {
		return "", fmt.Errorf("template %q produced an unknown value", token)
	}
	str, err := convert.Convert(val, cty.String)
	if err != nil {
		return "", fmt.Errorf("template %q: %w", token, err)
	}
	return str.AsString(), nil
}

var bareNameRegex = regexp.MustCompile(`\$\$|\$([A-Za-z0-9_]+)`)

// templateEscaper keeps substituted values from being read as template
// sequences.
var templateEscaper = strings.NewReplacer("${", "$${", "%{", "%%{")

// replaceBareNames substitutes $NAME for names present in env. "$$" and
// unknown names are left for the template parser.
func replaceBareNames(token string, env map[string]string) string {
	if len(env) == 0 || !strings.Contains(token, "$") {
		return token
	}
	return bareNameRegex.ReplaceAllStringFunc(token, func(m string) string {
		if m == "$$" {
			return m
		}
		if v, ok := env[m[1:]]; ok {
			return templateEscaper.Replace(v)
		}
		return m
	})
}

func (t *TemplateExpander) evalContext(ec *Context) *hcl.EvalContext {
	if ec == nil {
		ec = &Context{}
	}
	vars := make(map[string]cty.Value, len(ec.Env)+3)
	envObj := make(map[string]cty.Value, len(ec.Env))
	for k, v := range ec.Env {
		envObj[k] = cty.StringVal(v)
		if !reserved[k] && hclsyntax.ValidIdentifier(k) {
			vars[k] = cty.StringVal(v)
		}
	}
	vars["env"] = cty.ObjectVal(envObj)
	vars["workspace"] = cty.StringVal(ec.Workspace)
	vars["build"] = cty.ObjectVal(map[string]cty.Value{
		"id":     cty.StringVal(ec.Build.ID),
		"number": cty.NumberIntVal(int64(ec.Build.Number)),
		"job":    cty.StringVal(ec.Build.Job),
	})
	return &hcl.EvalContext{
		Variables: vars,
		Functions: t.Functions,
	}
}
