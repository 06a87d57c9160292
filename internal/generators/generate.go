package generators

import (
	"fmt"
	mathrand "math/rand/v2"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/getpactd/pactd/internal/expression"
	"github.com/getpactd/pactd/internal/matchrules"
)

// Context carries the inputs a generation run depends on.
type Context struct {
	// Mode selects which generators run.
	Mode Mode

	// ProviderState holds the merged provider-state parameters for
	// ProviderState generators.
	ProviderState map[string]any

	// MockServerURL is the base URL of the running mock server, for
	// MockServerURL rewrites.
	MockServerURL string

	// BaseTime anchors date/time expressions. The zero value means the
	// current time.
	BaseTime time.Time

	// Rand, when set, makes random generators deterministic. When nil
	// the shared PRNG is used.
	Rand *mathrand.Rand
}

func (c *Context) baseTime() time.Time {
	if c.BaseTime.IsZero() {
		return time.Now()
	}
	return c.BaseTime
}

func (c *Context) intN(n int) int {
	if n <= 0 {
		return 0
	}
	if c.Rand != nil {
		return c.Rand.IntN(n)
	}
	return mathrand.IntN(n)
}

// Generate produces a value to replace the template value. It returns
// an error when a ProviderState expression references an unknown state
// key, when a date/time expression or regex cannot be parsed, when a
// MockServerURL generator has no mock server URL or matching source,
// and for ArrayContains, which has no direct value.
func (g Generator) Generate(value any, ctx *Context) (any, error) {
	switch g.Kind {
	case KindRandomInt:
		max := g.Max
		if max < g.Min {
			max = g.Min
		}
		return int64(g.Min + ctx.intN(max-g.Min+1)), nil

	case KindRandomDecimal:
		return g.generateDecimal(ctx)

	case KindRandomHexadecimal:
		return randomChars(ctx, "0123456789abcdef", defaultSize(g.Digits, 8)), nil

	case KindRandomString:
		return randomChars(ctx, "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789", defaultSize(g.Size, 20)), nil

	case KindRegex:
		return generateFromRegex(g.Regex, ctx)

	case KindUuid:
		return formatUUID(newUUID(ctx), g.Format), nil

	case KindDate:
		t, err := expression.EvaluateDateTime(g.Expression, ctx.baseTime())
		if err != nil {
			return nil, err
		}
		return t.Format(layoutOrDefault(g.Format, "2006-01-02")), nil

	case KindTime:
		t, err := expression.EvaluateDateTime(g.Expression, ctx.baseTime())
		if err != nil {
			return nil, err
		}
		return t.Format(layoutOrDefault(g.Format, "15:04:05")), nil

	case KindDateTime:
		t, err := expression.EvaluateDateTime(g.Expression, ctx.baseTime())
		if err != nil {
			return nil, err
		}
		return t.Format(layoutOrDefault(g.Format, time.RFC3339)), nil

	case KindRandomBoolean:
		return ctx.intN(2) == 1, nil

	case KindProviderState:
		return g.generateFromState(value, ctx)

	case KindMockServerURL:
		return g.rewriteURL(value, ctx)

	default:
		return nil, fmt.Errorf("generator %q cannot produce a value directly", g.Kind)
	}
}

func (g Generator) generateDecimal(ctx *Context) (any, error) {
	digits := defaultSize(g.Digits, 6)
	if digits < 2 {
		digits = 2
	}
	// First digit non-zero, a decimal point somewhere inside.
	var b strings.Builder
	b.WriteByte(byte('1' + ctx.intN(9)))
	point := 1 + ctx.intN(digits-1)
	for i := 1; i < digits; i++ {
		if i == point {
			b.WriteByte('.')
		}
		b.WriteByte(byte('0' + ctx.intN(10)))
	}
	f, err := strconv.ParseFloat(b.String(), 64)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (g Generator) generateFromState(value any, ctx *Context) (any, error) {
	result, err := expression.Evaluate(g.Expression, ctx.ProviderState)
	if err != nil {
		return nil, err
	}
	// Output is coerced to the template value's JSON type so injection
	// never changes the shape of the document.
	return coerceToType(result, value, g.DataType), nil
}

func (g Generator) rewriteURL(value any, ctx *Context) (any, error) {
	if ctx.MockServerURL == "" {
		return nil, fmt.Errorf("no mock server URL in generation context")
	}

	source, _ := value.(string)
	if source == "" {
		source = g.Example
	}
	if source == "" {
		if v, ok := ctx.ProviderState["mockServerURL"].(string); ok {
			source = v
		} else if v, ok := ctx.ProviderState["href"].(string); ok {
			source = v
		}
	}
	if source == "" {
		return nil, fmt.Errorf("mock server URL generator has no source value")
	}

	re, err := regexp.Compile(g.Regex)
	if err != nil {
		return nil, fmt.Errorf("invalid mock server URL regex %q: %w", g.Regex, err)
	}
	groups := re.FindStringSubmatch(source)
	if len(groups) < 2 {
		return nil, fmt.Errorf("value %q does not match %q", source, g.Regex)
	}
	return strings.TrimSuffix(ctx.MockServerURL, "/") + groups[1], nil
}

// coerceToType converts a generated value to the template's JSON type,
// honouring an explicit dataType when given.
func coerceToType(generated, template any, dataType string) any {
	target := dataType
	if target == "" || target == "RAW" || target == "raw" {
		switch template.(type) {
		case string:
			target = "string"
		case int, int64, uint64:
			target = "integer"
		case float32, float64:
			target = "decimal"
		case bool:
			target = "boolean"
		default:
			return generated
		}
	}

	switch strings.ToLower(target) {
	case "string":
		return fmt.Sprintf("%v", generated)
	case "integer", "int":
		switch v := generated.(type) {
		case int64:
			return v
		case int:
			return int64(v)
		case uint64:
			return int64(v)
		case float64:
			return int64(v)
		case string:
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				return n
			}
		}
		return generated
	case "decimal", "float":
		switch v := generated.(type) {
		case float64:
			return v
		case int64:
			return float64(v)
		case int:
			return float64(v)
		case string:
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return f
			}
		}
		return generated
	case "boolean", "bool":
		switch v := generated.(type) {
		case bool:
			return v
		case string:
			if b, err := strconv.ParseBool(v); err == nil {
				return b
			}
		}
		return generated
	default:
		return generated
	}
}

func defaultSize(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}

func randomChars(ctx *Context, alphabet string, n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteByte(alphabet[ctx.intN(len(alphabet))])
	}
	return b.String()
}

func newUUID(ctx *Context) uuid.UUID {
	if ctx.Rand == nil {
		return uuid.New()
	}
	// Deterministic UUID from the seeded PRNG, with version and
	// variant bits set.
	var b [16]byte
	for i := range b {
		b[i] = byte(ctx.Rand.IntN(256))
	}
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	id, _ := uuid.FromBytes(b[:])
	return id
}

func formatUUID(id uuid.UUID, format string) string {
	switch format {
	case UuidSimple:
		return strings.ReplaceAll(id.String(), "-", "")
	case UuidUpperHyphenated:
		return strings.ToUpper(id.String())
	case UuidURN:
		return id.URN()
	default:
		return id.String()
	}
}

func layoutOrDefault(format, def string) string {
	if format == "" {
		return def
	}
	return matchrules.TimeLayout(format)
}
