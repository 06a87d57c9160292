// Package expression evaluates the two small expression languages used
// by generators: ${name} substitution over provider-state parameters,
// and date/time arithmetic relative to a base instant.
package expression

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
)

// Contains reports whether s holds at least one ${...} expression.
func Contains(s string) bool {
	return strings.Contains(s, "${")
}

// Evaluate resolves an expression against provider-state parameters.
//
// A string without ${} is treated as a single parameter lookup. A
// string that is exactly one ${...} expression returns the raw typed
// value, preserving numbers and booleans. Mixed literal text and
// expressions concatenate to a string. Referencing an unknown
// parameter is an error; callers decide whether a fallback applies.
func Evaluate(s string, params map[string]any) (any, error) {
	if !Contains(s) {
		return lookup(s, params)
	}

	parts, err := split(s)
	if err != nil {
		return nil, err
	}

	// A single expression with no surrounding text keeps its type.
	if len(parts) == 1 && parts[0].isExpr {
		return lookup(parts[0].text, params)
	}

	var b strings.Builder
	for _, part := range parts {
		if !part.isExpr {
			b.WriteString(part.text)
			continue
		}
		value, err := lookup(part.text, params)
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(&b, "%v", value)
	}
	return b.String(), nil
}

type part struct {
	text   string
	isExpr bool
}

func split(s string) ([]part, error) {
	var parts []part
	for len(s) > 0 {
		start := strings.Index(s, "${")
		if start == -1 {
			parts = append(parts, part{text: s})
			break
		}
		if start > 0 {
			parts = append(parts, part{text: s[:start]})
		}
		end := strings.Index(s[start:], "}")
		if end == -1 {
			return nil, fmt.Errorf("unterminated ${ in expression %q", s)
		}
		parts = append(parts, part{text: s[start+2 : start+end], isExpr: true})
		s = s[start+end+1:]
	}
	return parts, nil
}

// lookup resolves a single expression. Plain parameter names hit the
// map directly; anything more structured (field access, arithmetic) is
// handed to the expr compiler with the parameters as environment.
func lookup(name string, params map[string]any) (any, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("empty expression")
	}

	if value, ok := params[name]; ok {
		return value, nil
	}

	if isIdentifier(name) {
		return nil, fmt.Errorf("unknown provider state parameter %q", name)
	}

	program, err := expr.Compile(name, expr.Env(params), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("invalid expression %q: %w", name, err)
	}
	value, err := expr.Run(program, params)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate %q: %w", name, err)
	}
	if value == nil {
		return nil, fmt.Errorf("expression %q resolved to nothing", name)
	}
	return value, nil
}

func isIdentifier(s string) bool {
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return len(s) > 0
}
