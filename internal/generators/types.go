// Package generators defines the closed set of value generators and
// the kernel that applies them to HTTP parts and message contents.
package generators

import (
	"encoding/json"
	"fmt"
)

// Kind identifies a generator variant.
type Kind string

const (
	KindRandomInt         Kind = "RandomInt"
	KindRandomDecimal     Kind = "RandomDecimal"
	KindRandomHexadecimal Kind = "RandomHexadecimal"
	KindRandomString      Kind = "RandomString"
	KindRegex             Kind = "Regex"
	KindUuid              Kind = "Uuid"
	KindDate              Kind = "Date"
	KindTime              Kind = "Time"
	KindDateTime          Kind = "DateTime"
	KindRandomBoolean     Kind = "RandomBoolean"
	KindProviderState     Kind = "ProviderState"
	KindMockServerURL     Kind = "MockServerURL"
	KindArrayContains     Kind = "ArrayContains"
)

// Mode says which side of the contract a generation run serves.
type Mode int

const (
	// ModeConsumer runs while recording example requests the consumer
	// will send.
	ModeConsumer Mode = iota
	// ModeProvider runs during verification, for path and state
	// injected values.
	ModeProvider
)

// UUID output formats.
const (
	UuidSimple          = "simple"
	UuidLowerHyphenated = "lower-case-hyphenated"
	UuidUpperHyphenated = "upper-case-hyphenated"
	UuidURN             = "URN"
)

// Generator is a single value generator. Kind selects the variant; the
// parameter fields used depend on the kind.
type Generator struct {
	Kind Kind

	// Min and Max bound RandomInt output.
	Min int
	Max int

	// Digits sizes RandomDecimal and RandomHexadecimal output.
	Digits int

	// Size is the RandomString length.
	Size int

	// Regex holds the pattern for Regex generators and the path
	// extraction pattern for MockServerURL.
	Regex string

	// Format selects the Uuid output format, or holds the date/time
	// format string.
	Format string

	// Expression is the provider-state or date/time expression.
	Expression string

	// DataType coerces ProviderState output ("string", "integer",
	// "decimal", "boolean", "raw").
	DataType string

	// Example is the recorded example URL for MockServerURL.
	Example string

	// Variants carries the raw ArrayContains variant generators.
	Variants json.RawMessage
}

// AppliesTo reports whether the generator runs in the given mode.
// Random generators are consumer-side only; provider-state injection
// is provider-side only; date/time and UUID generators run in either
// mode. MockServerURL runs in both: the verifier rewrites broker pact
// links, and the mock server rewrites links in the responses it
// serves.
func (g Generator) AppliesTo(mode Mode) bool {
	switch g.Kind {
	case KindProviderState:
		return mode == ModeProvider
	case KindRandomInt, KindRandomDecimal, KindRandomHexadecimal,
		KindRandomString, KindRegex, KindRandomBoolean:
		return mode == ModeConsumer
	default:
		return true
	}
}

// Category names mirror the matching-rule categories.
const (
	CategoryBody     = "body"
	CategoryHeaders  = "header"
	CategoryQuery    = "query"
	CategoryPath     = "path"
	CategoryMethod   = "method"
	CategoryStatus   = "status"
	CategoryMetadata = "metadata"
)

// Categories maps category name to path-expression to generator. The
// path, method and status categories key their single generator under
// "$".
type Categories map[string]map[string]Generator

// Add inserts a generator, creating the category as needed.
func (c Categories) Add(category, path string, g Generator) {
	cat, ok := c[category]
	if !ok {
		cat = map[string]Generator{}
		c[category] = cat
	}
	cat[path] = g
}

// IsEmpty reports whether no category holds a generator.
func (c Categories) IsEmpty() bool {
	for _, cat := range c {
		if len(cat) > 0 {
			return false
		}
	}
	return true
}

// UnmarshalCategories decodes the "generators" value of an HTTP part.
func UnmarshalCategories(raw json.RawMessage) (Categories, error) {
	if len(raw) == 0 {
		return Categories{}, nil
	}

	var byCategory map[string]json.RawMessage
	if err := json.Unmarshal(raw, &byCategory); err != nil {
		return nil, fmt.Errorf("invalid generators: %w", err)
	}

	cats := Categories{}
	for name, catRaw := range byCategory {
		switch name {
		case CategoryPath, CategoryMethod, CategoryStatus:
			gen, err := decodeGenerator(catRaw)
			if err != nil {
				return nil, fmt.Errorf("generator for %q: %w", name, err)
			}
			cats.Add(name, "$", gen)
		default:
			var byPath map[string]json.RawMessage
			if err := json.Unmarshal(catRaw, &byPath); err != nil {
				return nil, fmt.Errorf("generator category %q: %w", name, err)
			}
			for path, genRaw := range byPath {
				gen, err := decodeGenerator(genRaw)
				if err != nil {
					return nil, fmt.Errorf("generator at %q: %w", path, err)
				}
				cats.Add(name, path, gen)
			}
		}
	}
	return cats, nil
}

func decodeGenerator(raw json.RawMessage) (Generator, error) {
	var wire struct {
		Type       string          `json:"type"`
		Min        int             `json:"min"`
		Max        int             `json:"max"`
		Digits     int             `json:"digits"`
		Size       int             `json:"size"`
		Regex      string          `json:"regex"`
		Format     string          `json:"format"`
		Expression string          `json:"expression"`
		DataType   string          `json:"dataType"`
		Example    string          `json:"example"`
		Variants   json.RawMessage `json:"variants"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Generator{}, err
	}

	kind := Kind(wire.Type)
	switch kind {
	case KindRandomInt, KindRandomDecimal, KindRandomHexadecimal, KindRandomString,
		KindRegex, KindUuid, KindDate, KindTime, KindDateTime, KindRandomBoolean,
		KindProviderState, KindMockServerURL, KindArrayContains:
	default:
		return Generator{}, fmt.Errorf("unknown generator type %q", wire.Type)
	}

	return Generator{
		Kind:       kind,
		Min:        wire.Min,
		Max:        wire.Max,
		Digits:     wire.Digits,
		Size:       wire.Size,
		Regex:      wire.Regex,
		Format:     wire.Format,
		Expression: wire.Expression,
		DataType:   wire.DataType,
		Example:    wire.Example,
		Variants:   wire.Variants,
	}, nil
}

// MarshalCategories encodes the generator tree. Empty categories are
// omitted.
func MarshalCategories(c Categories) (json.RawMessage, error) {
	if c.IsEmpty() {
		return nil, nil
	}

	out := map[string]any{}
	for name, cat := range c {
		switch name {
		case CategoryPath, CategoryMethod, CategoryStatus:
			if gen, ok := cat["$"]; ok {
				out[name] = encodeGenerator(gen)
			}
		default:
			byPath := map[string]any{}
			for path, gen := range cat {
				byPath[path] = encodeGenerator(gen)
			}
			if len(byPath) > 0 {
				out[name] = byPath
			}
		}
	}
	return json.Marshal(out)
}

func encodeGenerator(g Generator) map[string]any {
	out := map[string]any{"type": string(g.Kind)}
	switch g.Kind {
	case KindRandomInt:
		out["min"] = g.Min
		out["max"] = g.Max
	case KindRandomDecimal, KindRandomHexadecimal:
		out["digits"] = g.Digits
	case KindRandomString:
		out["size"] = g.Size
	case KindRegex:
		out["regex"] = g.Regex
	case KindUuid:
		if g.Format != "" {
			out["format"] = g.Format
		}
	case KindDate, KindTime, KindDateTime:
		if g.Format != "" {
			out["format"] = g.Format
		}
		if g.Expression != "" {
			out["expression"] = g.Expression
		}
	case KindProviderState:
		out["expression"] = g.Expression
		if g.DataType != "" {
			out["dataType"] = g.DataType
		}
	case KindMockServerURL:
		out["example"] = g.Example
		out["regex"] = g.Regex
	case KindArrayContains:
		if len(g.Variants) > 0 {
			out["variants"] = g.Variants
		}
	}
	return out
}
