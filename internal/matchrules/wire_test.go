package matchrules

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshalV2Flat(t *testing.T) {
	raw := json.RawMessage(`{
		"$.body.name": {"match": "type"},
		"$.body.items": {"min": 2},
		"$.headers.Accept": {"match": "regex", "regex": "application/.*"},
		"$.query.limit": {"match": "type"},
		"$.path": {"match": "regex", "regex": "/users/\\d+"}
	}`)

	cats, err := UnmarshalCategories(raw, 2)
	require.NoError(t, err)

	list, ok := cats.Lookup(CategoryBody, []string{"$", "name"})
	require.True(t, ok)
	assert.Equal(t, KindType, list.Rules[0].Kind)

	list, ok = cats.Lookup(CategoryBody, []string{"$", "items"})
	require.True(t, ok)
	assert.Equal(t, KindMinType, list.Rules[0].Kind)
	assert.Equal(t, 2, list.Rules[0].Min)

	list, ok = cats.LookupName(CategoryHeaders, "Accept")
	require.True(t, ok)
	assert.Equal(t, KindRegex, list.Rules[0].Kind)

	list, ok = cats.Lookup(CategoryPath, []string{"$"})
	require.True(t, ok)
	assert.Equal(t, KindRegex, list.Rules[0].Kind)
}

func TestUnmarshalV3Nested(t *testing.T) {
	raw := json.RawMessage(`{
		"body": {
			"$.id": {"matchers": [{"match": "integer"}], "combine": "AND"},
			"$.tags": {"matchers": [{"match": "type", "min": 1}, {"match": "notEmpty"}], "combine": "OR"}
		},
		"path": {"matchers": [{"match": "regex", "regex": "/orders/.*"}], "combine": "AND"},
		"header": {
			"Content-Type": {"matchers": [{"match": "regex", "regex": "application/json.*"}], "combine": "AND"}
		},
		"status": {"matchers": [{"match": "statusCode", "status": "success"}], "combine": "AND"}
	}`)

	cats, err := UnmarshalCategories(raw, 3)
	require.NoError(t, err)

	list, ok := cats.Lookup(CategoryBody, []string{"$", "id"})
	require.True(t, ok)
	assert.Equal(t, KindInteger, list.Rules[0].Kind)

	list, ok = cats.Lookup(CategoryBody, []string{"$", "tags"})
	require.True(t, ok)
	assert.Equal(t, CombineOr, list.Combine)
	assert.Len(t, list.Rules, 2)

	list, ok = cats.Lookup(CategoryPath, []string{"$"})
	require.True(t, ok)
	assert.Equal(t, KindRegex, list.Rules[0].Kind)

	list, ok = cats.Lookup(CategoryStatus, []string{"$"})
	require.True(t, ok)
	assert.Equal(t, StatusSuccess, list.Rules[0].Status)
}

func TestRoundTripV3(t *testing.T) {
	cats := Categories{}
	cats.Add(CategoryBody, "$.id", Rule{Kind: KindInteger})
	cats.Add(CategoryBody, "$.items", Rule{Kind: KindMinType, Min: 2})
	cats.Add(CategoryBody, "$.when", Rule{Kind: KindDateTime, Format: "yyyy-MM-dd'T'HH:mm:ss"})
	cats.Add(CategoryHeaders, "Accept", Rule{Kind: KindInclude, Value: "json"})
	cats.Add(CategoryPath, "$", Rule{Kind: KindRegex, Regex: `/users/\d+`})
	cats.Add(CategoryStatus, "$", Rule{Kind: KindStatusCode, Status: StatusCodes, Codes: []int{200, 201}})

	raw, err := MarshalCategories(cats, 3)
	require.NoError(t, err)

	decoded, err := UnmarshalCategories(raw, 3)
	require.NoError(t, err)

	list, ok := decoded.Lookup(CategoryBody, []string{"$", "items"})
	require.True(t, ok)
	assert.Equal(t, Rule{Kind: KindMinType, Min: 2}, list.Rules[0])

	list, ok = decoded.Lookup(CategoryBody, []string{"$", "when"})
	require.True(t, ok)
	assert.Equal(t, KindDateTime, list.Rules[0].Kind)
	assert.Equal(t, "yyyy-MM-dd'T'HH:mm:ss", list.Rules[0].Format)

	list, ok = decoded.Lookup(CategoryStatus, []string{"$"})
	require.True(t, ok)
	assert.Equal(t, []int{200, 201}, list.Rules[0].Codes)
}

func TestMarshalEmptyOmitted(t *testing.T) {
	raw, err := MarshalCategories(Categories{}, 3)
	require.NoError(t, err)
	assert.Nil(t, raw)

	raw, err = MarshalCategories(Categories{CategoryBody: Category{}}, 3)
	require.NoError(t, err)
	assert.Nil(t, raw)
}

func TestLookupWeighting(t *testing.T) {
	cats := Categories{}
	cats.Add(CategoryBody, "$.items[*].id", Rule{Kind: KindType})
	cats.Add(CategoryBody, "$.items[0].id", Rule{Kind: KindInteger})

	list, ok := cats.Lookup(CategoryBody, []string{"$", "items", "0", "id"})
	require.True(t, ok)
	assert.Equal(t, KindInteger, list.Rules[0].Kind, "specific path must override wildcard")

	list, ok = cats.Lookup(CategoryBody, []string{"$", "items", "3", "id"})
	require.True(t, ok)
	assert.Equal(t, KindType, list.Rules[0].Kind)
}

func TestArrayContainsVariantsRoundTrip(t *testing.T) {
	raw := json.RawMessage(`{
		"body": {
			"$.items": {"matchers": [{"match": "arrayContains", "variants": [
				{"index": 0, "rules": {"$.href": {"matchers": [{"match": "regex", "regex": ".*/orders/.*"}], "combine": "AND"}}}
			]}], "combine": "AND"}
		}
	}`)

	cats, err := UnmarshalCategories(raw, 4)
	require.NoError(t, err)

	list, ok := cats.Lookup(CategoryBody, []string{"$", "items"})
	require.True(t, ok)
	rule := list.Rules[0]
	require.Equal(t, KindArrayContains, rule.Kind)
	require.Len(t, rule.Variants, 1)

	variantList, ok := rule.Variants[0].Rules["$.href"]
	require.True(t, ok)
	require.Len(t, variantList.Rules, 1)
	assert.Equal(t, KindRegex, variantList.Rules[0].Kind)
	assert.Equal(t, ".*/orders/.*", variantList.Rules[0].Regex)

	// Re-encode and decode again; the variant rules survive.
	encoded, err := MarshalCategories(cats, 4)
	require.NoError(t, err)
	decoded, err := UnmarshalCategories(encoded, 4)
	require.NoError(t, err)
	list, ok = decoded.Lookup(CategoryBody, []string{"$", "items"})
	require.True(t, ok)
	require.Len(t, list.Rules[0].Variants, 1)
	assert.Contains(t, list.Rules[0].Variants[0].Rules, "$.href")
}

func TestDecodeEachKeyEachValue(t *testing.T) {
	raw := json.RawMessage(`{
		"body": {
			"$.versions": {"matchers": [{"match": "eachKey", "rules": [{"match": "semver"}]}], "combine": "AND"}
		}
	}`)

	cats, err := UnmarshalCategories(raw, 4)
	require.NoError(t, err)

	list, ok := cats.Lookup(CategoryBody, []string{"$", "versions"})
	require.True(t, ok)
	require.Equal(t, KindEachKey, list.Rules[0].Kind)
	require.Len(t, list.Rules[0].Definition, 1)
	assert.Equal(t, KindSemver, list.Rules[0].Definition[0].Kind)
}
