package pact

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/getpactd/pactd/internal/generators"
	"github.com/getpactd/pactd/internal/matchrules"
)

// QueryValues holds query parameters as ordered value lists. A nil
// entry in a value list is a parameter present with no value (?flag).
type QueryValues map[string][]*string

// Headers holds header values keyed by name. Comparison is
// case-insensitive; the recorded casing is preserved for writing.
type Headers map[string][]string

// Get performs a case-insensitive header lookup.
func (h Headers) Get(name string) ([]string, bool) {
	for k, v := range h {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return nil, false
}

// Request is the expected HTTP request half of an interaction.
type Request struct {
	Method        string
	Path          string
	Query         QueryValues
	Headers       Headers
	Body          OptionalBody
	MatchingRules matchrules.Categories
	Generators    generators.Categories
}

// Response is the expected HTTP response half of an interaction.
type Response struct {
	Status        int
	Headers       Headers
	Body          OptionalBody
	MatchingRules matchrules.Categories
	Generators    generators.Categories
}

// ContentType resolves the effective content type of the request body.
func (r *Request) ContentType() string {
	return r.Body.ResolveContentType(firstHeader(r.Headers, "Content-Type"))
}

// ContentType resolves the effective content type of the response body.
func (r *Response) ContentType() string {
	return r.Body.ResolveContentType(firstHeader(r.Headers, "Content-Type"))
}

func firstHeader(h Headers, name string) string {
	values, ok := h.Get(name)
	if !ok || len(values) == 0 {
		return ""
	}
	return values[0]
}

// requestWire is the request JSON shape shared by all spec versions.
// Query and headers are RawMessage because their shape varies: V2
// queries may be a bare string, V2 headers are single-valued.
type requestWire struct {
	Method        string          `json:"method"`
	Path          json.RawMessage `json:"path,omitempty"`
	Query         json.RawMessage `json:"query,omitempty"`
	Headers       json.RawMessage `json:"headers,omitempty"`
	Body          json.RawMessage `json:"body,omitempty"`
	MatchingRules json.RawMessage `json:"matchingRules,omitempty"`
	Generators    json.RawMessage `json:"generators,omitempty"`
}

type responseWire struct {
	Status        int             `json:"status"`
	Headers       json.RawMessage `json:"headers,omitempty"`
	Body          json.RawMessage `json:"body,omitempty"`
	MatchingRules json.RawMessage `json:"matchingRules,omitempty"`
	Generators    json.RawMessage `json:"generators,omitempty"`
}

func unmarshalRequest(raw json.RawMessage, version SpecVersion) (*Request, error) {
	var wire requestWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	req := &Request{Method: strings.ToUpper(wire.Method)}

	if len(wire.Path) > 0 {
		if err := json.Unmarshal(wire.Path, &req.Path); err != nil {
			return nil, fmt.Errorf("invalid request path: %w", err)
		}
	}

	query, err := unmarshalQuery(wire.Query)
	if err != nil {
		return nil, err
	}
	req.Query = query

	headers, err := unmarshalHeaders(wire.Headers)
	if err != nil {
		return nil, err
	}
	req.Headers = headers

	body, err := unmarshalBodyWire(wire.Body, version, firstHeader(headers, "Content-Type"))
	if err != nil {
		return nil, err
	}
	req.Body = body

	rules, err := matchrules.UnmarshalCategories(wire.MatchingRules, version.Major())
	if err != nil {
		return nil, fmt.Errorf("request matching rules: %w", err)
	}
	req.MatchingRules = rules

	gens, err := generators.UnmarshalCategories(wire.Generators)
	if err != nil {
		return nil, fmt.Errorf("request generators: %w", err)
	}
	req.Generators = gens

	return req, nil
}

func unmarshalResponse(raw json.RawMessage, version SpecVersion) (*Response, error) {
	var wire responseWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("invalid response: %w", err)
	}

	res := &Response{Status: wire.Status}
	if res.Status == 0 {
		res.Status = 200
	}

	headers, err := unmarshalHeaders(wire.Headers)
	if err != nil {
		return nil, err
	}
	res.Headers = headers

	body, err := unmarshalBodyWire(wire.Body, version, firstHeader(headers, "Content-Type"))
	if err != nil {
		return nil, err
	}
	res.Body = body

	rules, err := matchrules.UnmarshalCategories(wire.MatchingRules, version.Major())
	if err != nil {
		return nil, fmt.Errorf("response matching rules: %w", err)
	}
	res.MatchingRules = rules

	gens, err := generators.UnmarshalCategories(wire.Generators)
	if err != nil {
		return nil, fmt.Errorf("response generators: %w", err)
	}
	res.Generators = gens

	return res, nil
}

func unmarshalBodyWire(raw json.RawMessage, version SpecVersion, contentType string) (OptionalBody, error) {
	if version.Major() >= 4 {
		return unmarshalV4Body(raw)
	}
	return unmarshalLegacyBody(raw, contentType)
}

// unmarshalQuery decodes either the V2 query-string form ("a=1&b=2")
// or the V3+ map form ({"a": ["1"], "flag": [null]}).
func unmarshalQuery(raw json.RawMessage) (QueryValues, error) {
	if len(raw) == 0 {
		return QueryValues{}, nil
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return parseQueryString(asString)
	}

	var asMap map[string]json.RawMessage
	if err := json.Unmarshal(raw, &asMap); err != nil {
		return nil, fmt.Errorf("invalid query: %w", err)
	}

	query := QueryValues{}
	for name, valRaw := range asMap {
		// A value may be a single string or a list of string-or-null.
		var single string
		if err := json.Unmarshal(valRaw, &single); err == nil {
			query[name] = []*string{&single}
			continue
		}
		var list []*string
		if err := json.Unmarshal(valRaw, &list); err != nil {
			return nil, fmt.Errorf("invalid query values for %q: %w", name, err)
		}
		query[name] = list
	}
	return query, nil
}

func parseQueryString(s string) (QueryValues, error) {
	query := QueryValues{}
	if s == "" {
		return query, nil
	}
	for _, pair := range strings.Split(s, "&") {
		if pair == "" {
			continue
		}
		name, value, hasValue := strings.Cut(pair, "=")
		decodedName, err := url.QueryUnescape(name)
		if err != nil {
			return nil, fmt.Errorf("invalid query parameter %q: %w", pair, err)
		}
		if !hasValue {
			query[decodedName] = append(query[decodedName], nil)
			continue
		}
		decodedValue, err := url.QueryUnescape(value)
		if err != nil {
			return nil, fmt.Errorf("invalid query value %q: %w", pair, err)
		}
		query[decodedName] = append(query[decodedName], &decodedValue)
	}
	return query, nil
}

// unmarshalHeaders decodes headers whose values may be single strings
// or string lists.
func unmarshalHeaders(raw json.RawMessage) (Headers, error) {
	if len(raw) == 0 {
		return Headers{}, nil
	}

	var asMap map[string]json.RawMessage
	if err := json.Unmarshal(raw, &asMap); err != nil {
		return nil, fmt.Errorf("invalid headers: %w", err)
	}

	headers := Headers{}
	for name, valRaw := range asMap {
		var single string
		if err := json.Unmarshal(valRaw, &single); err == nil {
			headers[name] = []string{single}
			continue
		}
		var list []string
		if err := json.Unmarshal(valRaw, &list); err != nil {
			return nil, fmt.Errorf("invalid header values for %q: %w", name, err)
		}
		headers[name] = list
	}
	return headers, nil
}

func marshalRequest(req *Request, version SpecVersion) (json.RawMessage, error) {
	wire := requestWire{Method: req.Method}

	if req.Path != "" {
		path, err := json.Marshal(req.Path)
		if err != nil {
			return nil, err
		}
		wire.Path = path
	}

	query, err := marshalQuery(req.Query, version)
	if err != nil {
		return nil, err
	}
	wire.Query = query

	headers, err := marshalHeaders(req.Headers, version)
	if err != nil {
		return nil, err
	}
	wire.Headers = headers

	body, err := marshalBodyWire(req.Body, version)
	if err != nil {
		return nil, err
	}
	wire.Body = body

	rules, err := matchrules.MarshalCategories(req.MatchingRules, version.Major())
	if err != nil {
		return nil, err
	}
	wire.MatchingRules = rules

	gens, err := generators.MarshalCategories(req.Generators)
	if err != nil {
		return nil, err
	}
	if version.Major() >= 3 {
		wire.Generators = gens
	}

	return json.Marshal(wire)
}

func marshalResponse(res *Response, version SpecVersion) (json.RawMessage, error) {
	wire := responseWire{Status: res.Status}

	headers, err := marshalHeaders(res.Headers, version)
	if err != nil {
		return nil, err
	}
	wire.Headers = headers

	body, err := marshalBodyWire(res.Body, version)
	if err != nil {
		return nil, err
	}
	wire.Body = body

	rules, err := matchrules.MarshalCategories(res.MatchingRules, version.Major())
	if err != nil {
		return nil, err
	}
	wire.MatchingRules = rules

	gens, err := generators.MarshalCategories(res.Generators)
	if err != nil {
		return nil, err
	}
	if version.Major() >= 3 {
		wire.Generators = gens
	}

	return json.Marshal(wire)
}

func marshalBodyWire(body OptionalBody, version SpecVersion) (json.RawMessage, error) {
	if version.Major() >= 4 {
		return marshalV4Body(body)
	}
	return marshalLegacyBody(body)
}

func marshalQuery(query QueryValues, version SpecVersion) (json.RawMessage, error) {
	if len(query) == 0 {
		return nil, nil
	}

	if version.Major() <= 2 {
		names := make([]string, 0, len(query))
		for name := range query {
			names = append(names, name)
		}
		sort.Strings(names)

		var parts []string
		for _, name := range names {
			for _, value := range query[name] {
				if value == nil {
					parts = append(parts, url.QueryEscape(name))
				} else {
					parts = append(parts, url.QueryEscape(name)+"="+url.QueryEscape(*value))
				}
			}
		}
		return json.Marshal(strings.Join(parts, "&"))
	}

	return json.Marshal(query)
}

func marshalHeaders(headers Headers, version SpecVersion) (json.RawMessage, error) {
	if len(headers) == 0 {
		return nil, nil
	}

	if version.Major() <= 2 {
		flat := map[string]string{}
		for name, values := range headers {
			flat[name] = strings.Join(values, ", ")
		}
		return json.Marshal(flat)
	}

	return json.Marshal(headers)
}
