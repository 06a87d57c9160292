package generators

import (
	"fmt"
	"strconv"

	"github.com/ohler55/ojg/oj"

	"github.com/getpactd/pactd/internal/pathexp"
)

// PartData is the mutable view of an HTTP part (or message) that the
// kernel writes generated values into. Nil scalar pointers mean the
// part has no such field.
type PartData struct {
	Method      *string
	Path        *string
	Status      *int
	Headers     map[string][]string
	Query       map[string][]*string
	Body        []byte
	ContentType string
	Metadata    map[string]any
}

// Warning records a generator that failed. The template value is
// retained; generation never aborts.
type Warning struct {
	Category string
	Path     string
	Err      error
}

func (w Warning) String() string {
	return fmt.Sprintf("generator for %s %s: %v", w.Category, w.Path, w.Err)
}

// Apply runs every generator applicable in the context's mode over the
// part, replacing values in place. Failures are collected as warnings.
func Apply(cats Categories, part *PartData, ctx *Context) []Warning {
	var warnings []Warning

	warn := func(category, path string, err error) {
		warnings = append(warnings, Warning{Category: category, Path: path, Err: err})
	}

	for category, byPath := range cats {
		switch category {
		case CategoryPath:
			applyScalarString(byPath, part.Path, ctx, category, warn)
		case CategoryMethod:
			applyScalarString(byPath, part.Method, ctx, category, warn)
		case CategoryStatus:
			if gen, ok := byPath["$"]; ok && gen.AppliesTo(ctx.Mode) && part.Status != nil {
				value, err := gen.Generate(*part.Status, ctx)
				if err != nil {
					warn(category, "$", err)
					continue
				}
				if n, ok := toStatusCode(value); ok {
					*part.Status = n
				} else {
					warn(category, "$", fmt.Errorf("generated %v is not a status code", value))
				}
			}
		case CategoryHeaders:
			for name, gen := range byPath {
				if !gen.AppliesTo(ctx.Mode) {
					continue
				}
				values, ok := part.Headers[name]
				if !ok || len(values) == 0 {
					part.Headers[name] = []string{""}
					values = part.Headers[name]
				}
				for i, v := range values {
					generated, err := gen.Generate(v, ctx)
					if err != nil {
						warn(category, name, err)
						continue
					}
					values[i] = fmt.Sprintf("%v", generated)
				}
			}
		case CategoryQuery:
			for name, gen := range byPath {
				if !gen.AppliesTo(ctx.Mode) {
					continue
				}
				for i, v := range part.Query[name] {
					current := ""
					if v != nil {
						current = *v
					}
					generated, err := gen.Generate(current, ctx)
					if err != nil {
						warn(category, name, err)
						continue
					}
					s := fmt.Sprintf("%v", generated)
					part.Query[name][i] = &s
				}
			}
		case CategoryBody:
			body, bodyWarnings := applyToBody(byPath, part.Body, part.ContentType, ctx)
			warnings = append(warnings, bodyWarnings...)
			part.Body = body
		case CategoryMetadata:
			for path, gen := range byPath {
				if !gen.AppliesTo(ctx.Mode) {
					continue
				}
				key := path
				if parsed, err := pathexp.Parse(path); err == nil && len(parsed) == 2 && parsed[1].Kind == pathexp.TokenField {
					key = parsed[1].Name
				}
				generated, err := gen.Generate(part.Metadata[key], ctx)
				if err != nil {
					warn(category, path, err)
					continue
				}
				part.Metadata[key] = generated
			}
		}
	}

	return warnings
}

func applyScalarString(byPath map[string]Generator, ptr *string, ctx *Context, category string, warn func(string, string, error)) {
	gen, ok := byPath["$"]
	if !ok || !gen.AppliesTo(ctx.Mode) || ptr == nil {
		return
	}
	value, err := gen.Generate(*ptr, ctx)
	if err != nil {
		warn(category, "$", err)
		return
	}
	*ptr = fmt.Sprintf("%v", value)
}

func toStatusCode(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	default:
		return 0, false
	}
}

// applyToBody applies body generators for content types with a
// traversable tree. JSON bodies are walked structurally; other content
// types apply only a root generator to the whole text.
func applyToBody(byPath map[string]Generator, body []byte, contentType string, ctx *Context) ([]byte, []Warning) {
	if len(byPath) == 0 || len(body) == 0 {
		return body, nil
	}

	if isJSONContent(contentType) {
		return applyToJSONBody(byPath, body, ctx)
	}

	var warnings []Warning
	if gen, ok := byPath["$"]; ok && gen.AppliesTo(ctx.Mode) {
		value, err := gen.Generate(string(body), ctx)
		if err != nil {
			warnings = append(warnings, Warning{Category: CategoryBody, Path: "$", Err: err})
			return body, warnings
		}
		return []byte(fmt.Sprintf("%v", value)), nil
	}
	for path := range byPath {
		if path != "$" {
			warnings = append(warnings, Warning{Category: CategoryBody, Path: path,
				Err: fmt.Errorf("cannot traverse %s content", contentType)})
		}
	}
	return body, warnings
}

func applyToJSONBody(byPath map[string]Generator, body []byte, ctx *Context) ([]byte, []Warning) {
	tree, err := oj.Parse(body)
	if err != nil {
		return body, []Warning{{Category: CategoryBody, Path: "$", Err: fmt.Errorf("body is not valid JSON: %v", err)}}
	}

	var warnings []Warning
	type target struct {
		path pathexp.Path
		gen  Generator
	}
	var targets []target
	for path, gen := range byPath {
		if !gen.AppliesTo(ctx.Mode) {
			continue
		}
		parsed, err := pathexp.Parse(path)
		if err != nil {
			warnings = append(warnings, Warning{Category: CategoryBody, Path: path, Err: err})
			continue
		}
		targets = append(targets, target{path: parsed, gen: gen})
	}

	apply := func(value any, concrete []string) (any, bool) {
		for _, t := range targets {
			if len(t.path) != len(concrete) || t.path.Weight(concrete) == 0 {
				continue
			}
			generated, err := t.gen.Generate(value, ctx)
			if err != nil {
				warnings = append(warnings, Warning{Category: CategoryBody, Path: t.path.String(), Err: err})
				return value, false
			}
			return generated, true
		}
		return value, false
	}

	tree = walkJSON(tree, []string{"$"}, apply)

	out, err := oj.Marshal(tree)
	if err != nil {
		return body, append(warnings, Warning{Category: CategoryBody, Path: "$", Err: err})
	}
	return out, warnings
}

// walkJSON rewrites a decoded JSON tree bottom-up, offering every node
// to the apply callback with its concrete path.
func walkJSON(value any, path []string, apply func(any, []string) (any, bool)) any {
	switch v := value.(type) {
	case map[string]any:
		for key, child := range v {
			childPath := append(append([]string(nil), path...), key)
			v[key] = walkJSON(child, childPath, apply)
		}
	case []any:
		for i, child := range v {
			childPath := append(append([]string(nil), path...), strconv.Itoa(i))
			v[i] = walkJSON(child, childPath, apply)
		}
	}
	if replaced, ok := apply(value, path); ok {
		return replaced
	}
	return value
}

func isJSONContent(contentType string) bool {
	switch {
	case contentType == "":
		return false
	default:
		base := contentType
		for i := 0; i < len(base); i++ {
			if base[i] == ';' {
				base = base[:i]
				break
			}
		}
		return base == "application/json" || (len(base) > 5 && base[len(base)-5:] == "+json")
	}
}
