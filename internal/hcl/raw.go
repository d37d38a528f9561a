package hcl

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/exerunner/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// isExprDefined reports whether expr was written in the source. gohcl fills
// omitted optional hcl.Expression fields with a synthetic expression whose
// range has zero width, so a nil check is not enough.
func isExprDefined(ctx context.Context, expr hcl.Expression, attrName string) bool {
	if expr == nil {
		return false
	}
	rng := expr.Range()
	defined := rng.End.Byte > rng.Start.Byte
	ctxlog.FromContext(ctx).Debug("Checked HCL attribute presence.",
		"attribute", attrName,
		"hcl_range", rng.String(),
		"is_defined", defined,
	)
	return defined
}

// rawString returns the source text of a string attribute without evaluating
// its template sequences. Quoted strings are unescaped outside their template
// sequences, heredocs lose their marker lines. Any other expression must
// evaluate, without variables, to a value convertible to string.
func rawString(ctx context.Context, expr hcl.Expression, attrName string, files map[string]*hcl.File) (string, error) {
	if !isExprDefined(ctx, expr, attrName) {
		return "", nil
	}
	rng := expr.Range()
	if f, ok := files[rng.Filename]; ok && rng.End.Byte <= len(f.Bytes) {
		src := f.Bytes
		text := src[rng.Start.Byte:rng.End.Byte]

		// Some template nodes report the range of their content only.
		if rng.Start.Byte > 0 && rng.End.Byte < len(src) && src[rng.Start.Byte-1] == '"' && src[rng.End.Byte] == '"' {
			text = src[rng.Start.Byte-1 : rng.End.Byte+1]
		}

		switch {
		case len(text) >= 2 && text[0] == '"' && text[len(text)-1] == '"':
			s, err := strconv.Unquote(string(text))
			if err != nil {
				// Template sequences may hold their own quoted strings.
				s, err = unquoteTemplate(string(text[1 : len(text)-1]))
			}
			if err != nil {
				return "", fmt.Errorf("%s: attribute %q: invalid quoted string: %w", rng.String(), attrName, err)
			}
			return s, nil
		case bytes.HasPrefix(text, []byte("<<")):
			return heredocBody(string(text)), nil
		}
	}

	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return "", fmt.Errorf("%s: attribute %q must be a string: %w", rng.String(), attrName, diags)
	}
	if val.IsNull() {
		return "", nil
	}
	str, err := convert.Convert(val, cty.String)
	if err != nil {
		return "", fmt.Errorf("%s: attribute %q must be a string: %w", rng.String(), attrName, err)
	}
	return str.AsString(), nil
}

// unquoteTemplate unescapes the literal parts of a quoted template body and
// copies "${...}" and "%{...}" sequences verbatim.
func unquoteTemplate(body string) (string, error) {
	var out, lit strings.Builder
	flush := func() error {
		if lit.Len() == 0 {
			return nil
		}
		s, err := strconv.Unquote(`"` + lit.String() + `"`)
		if err != nil {
			return err
		}
		out.WriteString(s)
		lit.Reset()
		return nil
	}
	for i := 0; i < len(body); i++ {
		c := body[i]
		switch {
		case c == '\\' && i+1 < len(body):
			lit.WriteByte(c)
			lit.WriteByte(body[i+1])
			i++
		case (c == '$' || c == '%') && strings.HasPrefix(body[i+1:], string(c)+"{"):
			lit.WriteString(body[i : i+3])
			i += 2
		case (c == '$' || c == '%') && i+1 < len(body) && body[i+1] == '{':
			end := sequenceEnd(body, i+2)
			if end < 0 {
				return "", fmt.Errorf("unterminated template sequence at offset %d", i)
			}
			if err := flush(); err != nil {
				return "", err
			}
			out.WriteString(body[i : end+1])
			i = end
		default:
			lit.WriteByte(c)
		}
	}
	if err := flush(); err != nil {
		return "", err
	}
	return out.String(), nil
}

// sequenceEnd returns the index of the brace closing the template sequence
// whose body starts at start, skipping braces inside quoted strings.
func sequenceEnd(s string, start int) int {
	depth := 1
	inQuote := false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case inQuote && c == '\\':
			i++
		case c == '"':
			inQuote = !inQuote
		case inQuote:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// heredocBody strips the opening "<<MARKER" line and the closing marker line.
func heredocBody(text string) string {
	lines := strings.Split(text, "\n")
	if len(lines) < 2 {
		return ""
	}
	return strings.Join(lines[1:len(lines)-1], "\n")
}

// rawStringMap reads an object attribute whose keys are plain strings and
// whose values are raw strings (see rawString).
func rawStringMap(ctx context.Context, expr hcl.Expression, attrName string, files map[string]*hcl.File) (map[string]string, error) {
	if !isExprDefined(ctx, expr, attrName) {
		return nil, nil
	}
	pairs, diags := hcl.ExprMap(expr)
	if diags.HasErrors() {
		return nil, fmt.Errorf("attribute %q must be an object: %w", attrName, diags)
	}
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, diags := pair.Key.Value(nil)
		if diags.HasErrors() {
			return nil, fmt.Errorf("attribute %q: invalid key: %w", attrName, diags)
		}
		key, err := convert.Convert(key, cty.String)
		if err != nil || key.IsNull() {
			return nil, fmt.Errorf("attribute %q: keys must be strings", attrName)
		}
		val, err := rawString(ctx, pair.Value, attrName+"."+key.AsString(), files)
		if err != nil {
			return nil, err
		}
		out[key.AsString()] = val
	}
	return out, nil
}
