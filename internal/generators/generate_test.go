package generators

import (
	mathrand "math/rand/v2"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seededContext(mode Mode) *Context {
	return &Context{
		Mode:     mode,
		Rand:     mathrand.New(mathrand.NewPCG(1, 2)),
		BaseTime: time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC),
	}
}

func TestRandomIntWithinBounds(t *testing.T) {
	ctx := seededContext(ModeConsumer)
	gen := Generator{Kind: KindRandomInt, Min: 10, Max: 20}
	for i := 0; i < 100; i++ {
		value, err := gen.Generate(nil, ctx)
		require.NoError(t, err)
		n, ok := value.(int64)
		require.True(t, ok)
		assert.GreaterOrEqual(t, n, int64(10))
		assert.LessOrEqual(t, n, int64(20))
	}
}

func TestRandomDecimal(t *testing.T) {
	ctx := seededContext(ModeConsumer)
	gen := Generator{Kind: KindRandomDecimal, Digits: 6}
	value, err := gen.Generate(nil, ctx)
	require.NoError(t, err)
	_, ok := value.(float64)
	assert.True(t, ok)
}

func TestRandomHexadecimal(t *testing.T) {
	ctx := seededContext(ModeConsumer)
	gen := Generator{Kind: KindRandomHexadecimal, Digits: 8}
	value, err := gen.Generate(nil, ctx)
	require.NoError(t, err)
	assert.Regexp(t, `^[0-9a-f]{8}$`, value)
}

func TestRandomString(t *testing.T) {
	ctx := seededContext(ModeConsumer)
	gen := Generator{Kind: KindRandomString, Size: 12}
	value, err := gen.Generate(nil, ctx)
	require.NoError(t, err)
	assert.Len(t, value.(string), 12)
}

func TestRegexGenerator(t *testing.T) {
	patterns := []string{
		`\d{3}-\d{4}`,
		`[A-Z]{2}\d+`,
		`(cat|dog|bird)`,
		`^/users/\d+$`,
		`[0-9a-f]{8}-[0-9a-f]{4}`,
	}
	ctx := seededContext(ModeConsumer)
	for _, pattern := range patterns {
		gen := Generator{Kind: KindRegex, Regex: pattern}
		value, err := gen.Generate(nil, ctx)
		require.NoError(t, err, pattern)
		assert.Regexp(t, regexp.MustCompile(pattern), value.(string), pattern)
	}
}

func TestUuidFormats(t *testing.T) {
	ctx := seededContext(ModeConsumer)

	tests := []struct {
		format  string
		pattern string
	}{
		{UuidLowerHyphenated, `^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`},
		{UuidSimple, `^[0-9a-f]{32}$`},
		{UuidUpperHyphenated, `^[0-9A-F]{8}-[0-9A-F]{4}-[0-9A-F]{4}-[0-9A-F]{4}-[0-9A-F]{12}$`},
		{UuidURN, `^urn:uuid:[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`},
	}
	for _, tt := range tests {
		gen := Generator{Kind: KindUuid, Format: tt.format}
		value, err := gen.Generate(nil, ctx)
		require.NoError(t, err)
		assert.Regexp(t, tt.pattern, value.(string), tt.format)
	}
}

func TestDateTimeGenerators(t *testing.T) {
	ctx := seededContext(ModeConsumer)

	gen := Generator{Kind: KindDate}
	value, err := gen.Generate(nil, ctx)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-15", value)

	gen = Generator{Kind: KindDate, Expression: "today + 2 days"}
	value, err = gen.Generate(nil, ctx)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-17", value)

	gen = Generator{Kind: KindTime, Format: "HH:mm"}
	value, err = gen.Generate(nil, ctx)
	require.NoError(t, err)
	assert.Equal(t, "10:30", value)

	gen = Generator{Kind: KindDateTime, Expression: "now - 1 hour", Format: "yyyy-MM-dd'T'HH:mm:ss"}
	value, err = gen.Generate(nil, ctx)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-15T09:30:00", value)
}

func TestProviderStateGenerator(t *testing.T) {
	ctx := seededContext(ModeProvider)
	ctx.ProviderState = map[string]any{"id": int64(99), "name": "Jane"}

	gen := Generator{Kind: KindProviderState, Expression: "${id}"}
	value, err := gen.Generate(int64(1), ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(99), value, "numeric template keeps numeric type")

	gen = Generator{Kind: KindProviderState, Expression: "${id}"}
	value, err = gen.Generate("1", ctx)
	require.NoError(t, err)
	assert.Equal(t, "99", value, "string template coerces to string")

	gen = Generator{Kind: KindProviderState, Expression: "/users/${id}"}
	value, err = gen.Generate("/users/1", ctx)
	require.NoError(t, err)
	assert.Equal(t, "/users/99", value)

	gen = Generator{Kind: KindProviderState, Expression: "${unknown}"}
	_, err = gen.Generate("fallback", ctx)
	assert.Error(t, err)
}

func TestMockServerURLGenerator(t *testing.T) {
	ctx := seededContext(ModeProvider)
	ctx.MockServerURL = "http://localhost:51234"

	gen := Generator{
		Kind:    KindMockServerURL,
		Example: "http://localhost:9876/pacts/provider/p/consumer/c",
		Regex:   `.*(\/pacts\/.*)$`,
	}
	value, err := gen.Generate("http://localhost:9876/pacts/provider/p/consumer/c", ctx)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:51234/pacts/provider/p/consumer/c", value)
}

func TestModeGating(t *testing.T) {
	assert.False(t, Generator{Kind: KindRandomInt}.AppliesTo(ModeProvider))
	assert.True(t, Generator{Kind: KindRandomInt}.AppliesTo(ModeConsumer))
	assert.False(t, Generator{Kind: KindProviderState}.AppliesTo(ModeConsumer))
	assert.True(t, Generator{Kind: KindProviderState}.AppliesTo(ModeProvider))
	assert.True(t, Generator{Kind: KindUuid}.AppliesTo(ModeConsumer))
	assert.True(t, Generator{Kind: KindUuid}.AppliesTo(ModeProvider))
	assert.True(t, Generator{Kind: KindDateTime}.AppliesTo(ModeProvider))
}

func TestApplyToPart(t *testing.T) {
	cats := Categories{}
	cats.Add(CategoryBody, "$.id", Generator{Kind: KindProviderState, Expression: "${id}"})
	cats.Add(CategoryPath, "$", Generator{Kind: KindProviderState, Expression: "/users/${id}"})
	cats.Add(CategoryHeaders, "X-Request-Id", Generator{Kind: KindUuid})

	path := "/users/1"
	part := &PartData{
		Path:        &path,
		Headers:     map[string][]string{"X-Request-Id": {"template"}},
		Body:        []byte(`{"id": 1, "name": "Alice"}`),
		ContentType: "application/json",
	}

	ctx := seededContext(ModeProvider)
	ctx.ProviderState = map[string]any{"id": int64(42)}

	warnings := Apply(cats, part, ctx)
	assert.Empty(t, warnings)

	assert.Equal(t, "/users/42", *part.Path)
	assert.Contains(t, string(part.Body), `"id":42`)
	assert.Regexp(t, `^[0-9a-f-]{36}$`, part.Headers["X-Request-Id"][0])
}

func TestApplyKeepsTemplateOnFailure(t *testing.T) {
	cats := Categories{}
	cats.Add(CategoryBody, "$.id", Generator{Kind: KindProviderState, Expression: "${missing}"})

	part := &PartData{
		Body:        []byte(`{"id": 1}`),
		ContentType: "application/json",
	}
	ctx := seededContext(ModeProvider)
	ctx.ProviderState = map[string]any{}

	warnings := Apply(cats, part, ctx)
	require.Len(t, warnings, 1)
	assert.Contains(t, string(part.Body), `"id":1`, "template value is retained on failure")
}

func TestWireRoundTrip(t *testing.T) {
	cats := Categories{}
	cats.Add(CategoryBody, "$.id", Generator{Kind: KindRandomInt, Min: 1, Max: 100})
	cats.Add(CategoryBody, "$.created", Generator{Kind: KindDateTime, Format: "yyyy-MM-dd'T'HH:mm:ss"})
	cats.Add(CategoryPath, "$", Generator{Kind: KindProviderState, Expression: "/orders/${id}"})

	raw, err := MarshalCategories(cats)
	require.NoError(t, err)

	decoded, err := UnmarshalCategories(raw)
	require.NoError(t, err)

	gen := decoded[CategoryBody]["$.id"]
	assert.Equal(t, KindRandomInt, gen.Kind)
	assert.Equal(t, 1, gen.Min)
	assert.Equal(t, 100, gen.Max)

	gen = decoded[CategoryPath]["$"]
	assert.Equal(t, KindProviderState, gen.Kind)
	assert.Equal(t, "/orders/${id}", gen.Expression)
}

func TestGeneratedStringsLookRandom(t *testing.T) {
	ctx := &Context{Mode: ModeConsumer}
	gen := Generator{Kind: KindRandomString, Size: 30}
	a, err := gen.Generate(nil, ctx)
	require.NoError(t, err)
	b, err := gen.Generate(nil, ctx)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.False(t, strings.ContainsAny(a.(string), " \t\n"))
}
