package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getpactd/pactd/internal/matchrules"
	"github.com/getpactd/pactd/pkg/pact"
)

func strPtr(s string) *string { return &s }

func jsonRequest(method, path string, body string) *pact.Request {
	req := &pact.Request{
		Method:        method,
		Path:          path,
		Query:         pact.QueryValues{},
		Headers:       pact.Headers{"Content-Type": {"application/json"}},
		MatchingRules: matchrules.Categories{},
		Generators:    nil,
	}
	if body != "" {
		req.Body = pact.PresentBody([]byte(body), "application/json")
	}
	return req
}

func actualFor(req *pact.Request) *ActualRequest {
	return &ActualRequest{
		Method:      req.Method,
		Path:        req.Path,
		Query:       req.Query,
		Headers:     req.Headers,
		Body:        req.Body.Content,
		ContentType: "application/json",
	}
}

func TestMatchRequestSelfIsEmpty(t *testing.T) {
	req := jsonRequest("GET", "/users/123", `{"id": 123, "name": "Alice"}`)
	req.Query = pact.QueryValues{"limit": {strPtr("10")}}

	mismatches := MatchRequest(req, actualFor(req), nil)
	assert.Empty(t, mismatches, "an expected part must match itself")
}

func TestMatchRequestMethod(t *testing.T) {
	expected := jsonRequest("GET", "/users", "")
	actual := actualFor(expected)
	actual.Method = "POST"

	mismatches := MatchRequest(expected, actual, nil)
	require.Len(t, mismatches, 1)
	assert.Equal(t, MismatchMethod, mismatches[0].Kind)
}

func TestMatchRequestMethodCaseInsensitive(t *testing.T) {
	expected := jsonRequest("get", "/users", "")
	actual := actualFor(expected)
	actual.Method = "GET"

	assert.Empty(t, MatchRequest(expected, actual, nil))
}

func TestMatchRequestPathRule(t *testing.T) {
	expected := jsonRequest("GET", "/users/123", "")
	expected.MatchingRules.Add(matchrules.CategoryPath, "$", matchrules.Rule{Kind: matchrules.KindRegex, Regex: `^/users/\d+$`})

	actual := actualFor(expected)
	actual.Path = "/users/456"
	assert.Empty(t, MatchRequest(expected, actual, nil))

	actual.Path = "/users/abc"
	mismatches := MatchRequest(expected, actual, nil)
	require.Len(t, mismatches, 1)
	assert.Equal(t, MismatchPath, mismatches[0].Kind)
}

func TestMatchQueryMissingAndExtra(t *testing.T) {
	expected := jsonRequest("GET", "/search", "")
	expected.Query = pact.QueryValues{"q": {strPtr("dogs")}}

	actual := actualFor(expected)
	actual.Query = pact.QueryValues{"page": {strPtr("2")}}

	mismatches := MatchRequest(expected, actual, nil)
	require.Len(t, mismatches, 2)
	assert.Equal(t, MismatchQuery, mismatches[0].Kind)
	assert.Equal(t, "q", mismatches[0].Parameter)
	assert.Equal(t, "page", mismatches[1].Parameter)
}

func TestMatchQueryNullValue(t *testing.T) {
	expected := jsonRequest("GET", "/things", "")
	expected.Query = pact.QueryValues{"flag": {nil}}

	actual := actualFor(expected)
	actual.Query = pact.QueryValues{"flag": {nil}}

	assert.Empty(t, MatchRequest(expected, actual, nil))
}

func TestMatchHeadersCaseInsensitive(t *testing.T) {
	expected := jsonRequest("GET", "/users", "")
	expected.Headers = pact.Headers{"content-type": {"application/json"}, "X-Request-Id": {"abc"}}

	actual := actualFor(expected)
	actual.Headers = pact.Headers{"Content-Type": {"application/json"}, "x-request-id": {"abc"}}

	assert.Empty(t, MatchRequest(expected, actual, nil))
}

func TestMatchHeaderContentTypeByMIME(t *testing.T) {
	expected := jsonRequest("GET", "/users", "")
	expected.Headers = pact.Headers{"Content-Type": {"application/json;charset=utf-8"}}

	actual := actualFor(expected)
	actual.Headers = pact.Headers{"Content-Type": {"application/json; charset=UTF-8"}}

	assert.Empty(t, MatchRequest(expected, actual, nil))
}

func TestMatchHeaderSingleValueNotSplit(t *testing.T) {
	expected := jsonRequest("GET", "/users", "")
	expected.Headers = pact.Headers{"Set-Cookie": {"a=1, b=2"}}

	actual := actualFor(expected)
	actual.Headers = pact.Headers{"Set-Cookie": {"a=1, b=2"}}

	assert.Empty(t, MatchRequest(expected, actual, nil))
}

func TestMatchHeaderCommaSplit(t *testing.T) {
	expected := jsonRequest("GET", "/users", "")
	expected.Headers = pact.Headers{"X-Tags": {"a, b"}}

	actual := actualFor(expected)
	actual.Headers = pact.Headers{"X-Tags": {"a,b"}}

	assert.Empty(t, MatchRequest(expected, actual, nil))
}

func TestMatchResponseStatus(t *testing.T) {
	expected := &pact.Response{Status: 200, Headers: pact.Headers{}, MatchingRules: matchrules.Categories{}}
	actual := &ActualResponse{Status: 404, Headers: pact.Headers{}}

	mismatches := MatchResponse(expected, actual, nil)
	require.Len(t, mismatches, 1)
	assert.Equal(t, MismatchStatus, mismatches[0].Kind)
}

func TestMatchResponseStatusClassRule(t *testing.T) {
	expected := &pact.Response{Status: 200, Headers: pact.Headers{}, MatchingRules: matchrules.Categories{}}
	expected.MatchingRules.Add(matchrules.CategoryStatus, "$", matchrules.Rule{Kind: matchrules.KindStatusCode, Status: matchrules.StatusSuccess})

	actual := &ActualResponse{Status: 201, Headers: pact.Headers{}}
	assert.Empty(t, MatchResponse(expected, actual, nil))

	actual.Status = 500
	mismatches := MatchResponse(expected, actual, nil)
	require.Len(t, mismatches, 1)
	assert.Equal(t, MismatchStatus, mismatches[0].Kind)
}

func TestMatchBodyIntegerRule(t *testing.T) {
	expected := &pact.Response{
		Status:        200,
		Headers:       pact.Headers{"Content-Type": {"application/json"}},
		Body:          pact.PresentBody([]byte(`{"id": 1, "name": "Alice"}`), "application/json"),
		MatchingRules: matchrules.Categories{},
	}
	expected.MatchingRules.Add(matchrules.CategoryBody, "$.id", matchrules.Rule{Kind: matchrules.KindInteger})
	expected.MatchingRules.Add(matchrules.CategoryBody, "$.name", matchrules.Rule{Kind: matchrules.KindType})

	actual := &ActualResponse{
		Status:      200,
		Headers:     pact.Headers{"Content-Type": {"application/json"}},
		Body:        []byte(`{"id": 7, "name": "Bob"}`),
		ContentType: "application/json",
	}
	assert.Empty(t, MatchResponse(expected, actual, nil))

	actual.Body = []byte(`{"id": "not-a-number", "name": "Bob"}`)
	mismatches := MatchResponse(expected, actual, nil)
	require.Len(t, mismatches, 1)
	assert.Equal(t, MismatchBody, mismatches[0].Kind)
	assert.Equal(t, "$.id", mismatches[0].Path)
}

func TestMatchBodyTypeMismatchIsFatal(t *testing.T) {
	expected := &pact.Response{
		Status:        200,
		Headers:       pact.Headers{"Content-Type": {"application/json"}},
		Body:          pact.PresentBody([]byte(`{"id": 1}`), "application/json"),
		MatchingRules: matchrules.Categories{},
	}
	actual := &ActualResponse{
		Status:      200,
		Headers:     pact.Headers{"Content-Type": {"text/plain"}},
		Body:        []byte("plain text"),
		ContentType: "text/plain",
	}

	// The differing Content-Type header is reported on its own; the body
	// yields a single BodyTypeMismatch and no deeper body mismatches.
	mismatches := MatchResponse(expected, actual, nil)
	require.Len(t, mismatches, 2)
	assert.Equal(t, MismatchHeader, mismatches[0].Kind)
	assert.Equal(t, MismatchBodyType, mismatches[1].Kind)
}

func TestMatchBodyEmptyExpectedSkipsActual(t *testing.T) {
	expected := &pact.Response{Status: 200, Headers: pact.Headers{}, MatchingRules: matchrules.Categories{}}
	actual := &ActualResponse{Status: 200, Headers: pact.Headers{}, Body: []byte(`{"anything": true}`)}

	assert.Empty(t, MatchResponse(expected, actual, nil))
}

func TestTemplateArrayMatching(t *testing.T) {
	expected := &pact.Response{
		Status:        200,
		Headers:       pact.Headers{"Content-Type": {"application/json"}},
		Body:          pact.PresentBody([]byte(`{"items": [{"id": 1}]}`), "application/json"),
		MatchingRules: matchrules.Categories{},
	}
	expected.MatchingRules.Add(matchrules.CategoryBody, "$.items", matchrules.Rule{Kind: matchrules.KindMinType, Min: 1})

	actual := &ActualResponse{
		Status:      200,
		Headers:     pact.Headers{"Content-Type": {"application/json"}},
		Body:        []byte(`{"items": [{"id": 10}, {"id": 20}, {"id": 30}]}`),
		ContentType: "application/json",
	}
	assert.Empty(t, MatchResponse(expected, actual, nil), "each element should match the template by type")

	actual.Body = []byte(`{"items": []}`)
	mismatches := MatchResponse(expected, actual, nil)
	require.NotEmpty(t, mismatches)
	assert.Contains(t, mismatches[0].Description, "at least 1")
}

func TestMinTypeLengthDoesNotCascade(t *testing.T) {
	expected := &pact.Response{
		Status:        200,
		Headers:       pact.Headers{"Content-Type": {"application/json"}},
		Body:          pact.PresentBody([]byte(`{"groups": [{"members": ["a", "b", "c"]}]}`), "application/json"),
		MatchingRules: matchrules.Categories{},
	}
	expected.MatchingRules.Add(matchrules.CategoryBody, "$.groups", matchrules.Rule{Kind: matchrules.KindMinType, Min: 1})

	// The inner members array has only one element; the min check on
	// $.groups must not apply to it, only the type check cascades.
	actual := &ActualResponse{
		Status:      200,
		Headers:     pact.Headers{"Content-Type": {"application/json"}},
		Body:        []byte(`{"groups": [{"members": ["x"]}]}`),
		ContentType: "application/json",
	}
	assert.Empty(t, MatchResponse(expected, actual, nil))
}

func TestSpecificPathOverridesWildcard(t *testing.T) {
	expected := &pact.Response{
		Status:        200,
		Headers:       pact.Headers{"Content-Type": {"application/json"}},
		Body:          pact.PresentBody([]byte(`{"items": [{"id": "1"}]}`), "application/json"),
		MatchingRules: matchrules.Categories{},
	}
	expected.MatchingRules.Add(matchrules.CategoryBody, "$.items", matchrules.Rule{Kind: matchrules.KindMinType, Min: 1})
	expected.MatchingRules.Add(matchrules.CategoryBody, "$.items[*].id", matchrules.Rule{Kind: matchrules.KindType})
	expected.MatchingRules.Add(matchrules.CategoryBody, "$.items[0].id", matchrules.Rule{Kind: matchrules.KindInteger})

	actual := &ActualResponse{
		Status:      200,
		Headers:     pact.Headers{"Content-Type": {"application/json"}},
		Body:        []byte(`{"items": [{"id": "first-must-be-int"}, {"id": "ok"}]}`),
		ContentType: "application/json",
	}
	mismatches := MatchResponse(expected, actual, nil)
	require.Len(t, mismatches, 1)
	assert.Equal(t, "$.items[0].id", mismatches[0].Path)
}

func TestValuesMatcherSuppressesKeyEquality(t *testing.T) {
	expected := &pact.Response{
		Status:        200,
		Headers:       pact.Headers{"Content-Type": {"application/json"}},
		Body:          pact.PresentBody([]byte(`{"counts": {"a": 1}}`), "application/json"),
		MatchingRules: matchrules.Categories{},
	}
	expected.MatchingRules.Add(matchrules.CategoryBody, "$.counts", matchrules.Rule{Kind: matchrules.KindValues})
	expected.MatchingRules.Add(matchrules.CategoryBody, "$.counts.*", matchrules.Rule{Kind: matchrules.KindInteger})

	actual := &ActualResponse{
		Status:      200,
		Headers:     pact.Headers{"Content-Type": {"application/json"}},
		Body:        []byte(`{"counts": {"x": 5, "y": 10, "z": 15}}`),
		ContentType: "application/json",
	}
	assert.Empty(t, MatchResponse(expected, actual, nil))
}

func TestEachKeySuppressesKeyEquality(t *testing.T) {
	expected := &pact.Response{
		Status:        200,
		Headers:       pact.Headers{"Content-Type": {"application/json"}},
		Body:          pact.PresentBody([]byte(`{"versions": {"1.0.0": "ok"}}`), "application/json"),
		MatchingRules: matchrules.Categories{},
	}
	expected.MatchingRules.Add(matchrules.CategoryBody, "$.versions", matchrules.Rule{
		Kind:       matchrules.KindEachKey,
		Definition: []matchrules.Rule{{Kind: matchrules.KindSemver}},
	})

	actual := &ActualResponse{
		Status:      200,
		Headers:     pact.Headers{"Content-Type": {"application/json"}},
		Body:        []byte(`{"versions": {"2.1.0": "ok", "3.0.0": "gone"}}`),
		ContentType: "application/json",
	}
	assert.Empty(t, MatchResponse(expected, actual, nil), "keys only need to satisfy the key rules")

	actual.Body = []byte(`{"versions": {"not-a-version": "ok"}}`)
	mismatches := MatchResponse(expected, actual, nil)
	require.Len(t, mismatches, 1)
	assert.Contains(t, mismatches[0].Description, "not-a-version")
}

func TestObjectKeySetEquality(t *testing.T) {
	expected := &pact.Response{
		Status:        200,
		Headers:       pact.Headers{"Content-Type": {"application/json"}},
		Body:          pact.PresentBody([]byte(`{"a": 1, "b": 2}`), "application/json"),
		MatchingRules: matchrules.Categories{},
	}
	actual := &ActualResponse{
		Status:      200,
		Headers:     pact.Headers{"Content-Type": {"application/json"}},
		Body:        []byte(`{"a": 1, "c": 3}`),
		ContentType: "application/json",
	}

	mismatches := MatchResponse(expected, actual, nil)
	require.Len(t, mismatches, 2)
	assert.Contains(t, mismatches[0].Description, `"b"`)
	assert.Contains(t, mismatches[1].Description, `"c"`)
}

func TestMatchXMLBody(t *testing.T) {
	expected := &pact.Response{
		Status:        200,
		Headers:       pact.Headers{"Content-Type": {"application/xml"}},
		Body:          pact.PresentBody([]byte(`<user id="1"><name>Alice</name></user>`), "application/xml"),
		MatchingRules: matchrules.Categories{},
	}
	actual := &ActualResponse{
		Status:      200,
		Headers:     pact.Headers{"Content-Type": {"application/xml"}},
		Body:        []byte(`<user id="1"><name>Alice</name></user>`),
		ContentType: "application/xml",
	}
	assert.Empty(t, MatchResponse(expected, actual, nil))

	actual.Body = []byte(`<user id="2"><name>Alice</name></user>`)
	mismatches := MatchResponse(expected, actual, nil)
	require.Len(t, mismatches, 1)
	assert.Equal(t, "$.user.@id", mismatches[0].Path)
}

func TestMatchFormBody(t *testing.T) {
	expected := &pact.Response{
		Status:        200,
		Headers:       pact.Headers{"Content-Type": {"application/x-www-form-urlencoded"}},
		Body:          pact.PresentBody([]byte(`name=Alice&age=30`), "application/x-www-form-urlencoded"),
		MatchingRules: matchrules.Categories{},
	}
	actual := &ActualResponse{
		Status:      200,
		Headers:     pact.Headers{"Content-Type": {"application/x-www-form-urlencoded"}},
		Body:        []byte(`age=30&name=Alice`),
		ContentType: "application/x-www-form-urlencoded",
	}
	assert.Empty(t, MatchResponse(expected, actual, nil))

	actual.Body = []byte(`name=Bob&age=30`)
	mismatches := MatchResponse(expected, actual, nil)
	require.Len(t, mismatches, 1)
	assert.Equal(t, MismatchBody, mismatches[0].Kind)
}

func TestMatchTextBodyWithIncludeRule(t *testing.T) {
	expected := &pact.Response{
		Status:        200,
		Headers:       pact.Headers{"Content-Type": {"text/plain"}},
		Body:          pact.PresentBody([]byte("hello world"), "text/plain"),
		MatchingRules: matchrules.Categories{},
	}
	expected.MatchingRules.Add(matchrules.CategoryBody, "$", matchrules.Rule{Kind: matchrules.KindInclude, Value: "world"})

	actual := &ActualResponse{
		Status:      200,
		Headers:     pact.Headers{"Content-Type": {"text/plain"}},
		Body:        []byte("goodbye world"),
		ContentType: "text/plain",
	}
	assert.Empty(t, MatchResponse(expected, actual, nil))
}

func TestMatchMessage(t *testing.T) {
	msg := &pact.MessageContents{
		Contents:      pact.PresentBody([]byte(`{"event": "created", "id": 1}`), "application/json"),
		Metadata:      map[string]any{"contentType": "application/json", "queue": "user-events"},
		MatchingRules: matchrules.Categories{},
	}
	msg.MatchingRules.Add(matchrules.CategoryBody, "$.id", matchrules.Rule{Kind: matchrules.KindInteger})

	mismatches := MatchMessage(msg, []byte(`{"event": "created", "id": 42}`), "application/json",
		map[string]any{"contentType": "application/json", "queue": "user-events"}, nil)
	assert.Empty(t, mismatches)

	mismatches = MatchMessage(msg, []byte(`{"event": "created", "id": 42}`), "application/json",
		map[string]any{"contentType": "application/json", "queue": "other"}, nil)
	require.Len(t, mismatches, 1)
	assert.Equal(t, MismatchMetadata, mismatches[0].Kind)
}

func TestOrCombineReportsOnlyWhenAllFail(t *testing.T) {
	expected := &pact.Response{
		Status:        200,
		Headers:       pact.Headers{"Content-Type": {"application/json"}},
		Body:          pact.PresentBody([]byte(`{"value": "x"}`), "application/json"),
		MatchingRules: matchrules.Categories{},
	}
	expected.MatchingRules[matchrules.CategoryBody] = matchrules.Category{
		"$.value": {
			Combine: matchrules.CombineOr,
			Rules: []matchrules.Rule{
				{Kind: matchrules.KindInteger},
				{Kind: matchrules.KindType},
			},
		},
	}

	actual := &ActualResponse{
		Status:      200,
		Headers:     pact.Headers{"Content-Type": {"application/json"}},
		Body:        []byte(`{"value": "anything"}`),
		ContentType: "application/json",
	}
	assert.Empty(t, MatchResponse(expected, actual, nil), "OR succeeds when one rule passes")

	actual.Body = []byte(`{"value": []}`)
	mismatches := MatchResponse(expected, actual, nil)
	assert.Len(t, mismatches, 2, "OR reports every failure when none pass")
}
