package pathexp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		want    Path
		wantErr bool
	}{
		{
			name: "root only",
			expr: "$",
			want: Path{{Kind: TokenRoot}},
		},
		{
			name: "dotted fields",
			expr: "$.a.b",
			want: Path{{Kind: TokenRoot}, {Kind: TokenField, Name: "a"}, {Kind: TokenField, Name: "b"}},
		},
		{
			name: "field with index",
			expr: "$.a[0]",
			want: Path{{Kind: TokenRoot}, {Kind: TokenField, Name: "a"}, {Kind: TokenIndex, Index: 0}},
		},
		{
			name: "wildcard bracket",
			expr: "$.a[*]",
			want: Path{{Kind: TokenRoot}, {Kind: TokenField, Name: "a"}, {Kind: TokenWildcard}},
		},
		{
			name: "wildcard dot",
			expr: "$.*",
			want: Path{{Kind: TokenRoot}, {Kind: TokenWildcard}},
		},
		{
			name: "quoted name with dot",
			expr: "$['x.y']",
			want: Path{{Kind: TokenRoot}, {Kind: TokenField, Name: "x.y"}},
		},
		{
			name: "double quoted name",
			expr: `$["x.y"]`,
			want: Path{{Kind: TokenRoot}, {Kind: TokenField, Name: "x.y"}},
		},
		{
			name: "deep mixed",
			expr: "$.items[2].id",
			want: Path{
				{Kind: TokenRoot},
				{Kind: TokenField, Name: "items"},
				{Kind: TokenIndex, Index: 2},
				{Kind: TokenField, Name: "id"},
			},
		},
		{name: "empty", expr: "", wantErr: true},
		{name: "missing root", expr: ".a", wantErr: true},
		{name: "trailing dot", expr: "$.a.", wantErr: true},
		{name: "unterminated bracket", expr: "$.a[0", wantErr: true},
		{name: "negative index", expr: "$.a[-1]", wantErr: true},
		{name: "empty bracket", expr: "$.a[]", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.expr)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestString(t *testing.T) {
	tests := []struct {
		expr string
		want string
	}{
		{"$", "$"},
		{"$.a.b", "$.a.b"},
		{"$.a[0]", "$.a[0]"},
		{"$.a[*]", "$.a[*]"},
		{"$['x.y']", "$['x.y']"},
	}

	for _, tt := range tests {
		p, err := Parse(tt.expr)
		require.NoError(t, err)
		assert.Equal(t, tt.want, p.String())
	}
}

func TestWeight(t *testing.T) {
	tests := []struct {
		name     string
		pattern  string
		concrete []string
		want     int
	}{
		{
			name:     "exact field match",
			pattern:  "$.a.b",
			concrete: []string{"$", "a", "b"},
			want:     8,
		},
		{
			name:     "exact beats wildcard",
			pattern:  "$.a[0].b",
			concrete: []string{"$", "a", "0", "b"},
			want:     16,
		},
		{
			name:     "wildcard match",
			pattern:  "$.a[*].b",
			concrete: []string{"$", "a", "0", "b"},
			want:     8,
		},
		{
			name:     "prefix pattern matches deeper path",
			pattern:  "$.a",
			concrete: []string{"$", "a", "b"},
			want:     4,
		},
		{
			name:     "root matches anything",
			pattern:  "$",
			concrete: []string{"$", "a", "b"},
			want:     2,
		},
		{
			name:     "field mismatch",
			pattern:  "$.a.b",
			concrete: []string{"$", "a", "c"},
			want:     0,
		},
		{
			name:     "pattern longer than concrete",
			pattern:  "$.a.b.c",
			concrete: []string{"$", "a", "b"},
			want:     0,
		},
		{
			name:     "index mismatch",
			pattern:  "$.a[1]",
			concrete: []string{"$", "a", "0"},
			want:     0,
		},
		{
			name:     "wildcard never matches root",
			pattern:  "$.*",
			concrete: []string{"$"},
			want:     0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Parse(tt.pattern)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Weight(tt.concrete))
		})
	}
}

// The specific-over-general property: a rule on $.a[0].b must outrank a
// rule on $.a[*].b for the concrete node $.a[0].b, and $.a outranks $.
func TestWeightOrdering(t *testing.T) {
	concrete := []string{"$", "a", "0", "b"}

	exact, err := Parse("$.a[0].b")
	require.NoError(t, err)
	wild, err := Parse("$.a[*].b")
	require.NoError(t, err)
	assert.Greater(t, exact.Weight(concrete), wild.Weight(concrete))

	root, err := Parse("$")
	require.NoError(t, err)
	field, err := Parse("$.a")
	require.NoError(t, err)
	assert.Greater(t, field.Weight([]string{"$", "a"}), root.Weight([]string{"$", "a"}))
}
