package matching

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/getpactd/pactd/internal/matchrules"
	"github.com/getpactd/pactd/pkg/pact"
)

// ActualRequest is the concrete request captured from the wire, in the
// shape the kernel compares against an expected request.
type ActualRequest struct {
	Method      string
	Path        string
	Query       pact.QueryValues
	Headers     pact.Headers
	Body        []byte
	ContentType string
}

// ActualResponse is the concrete response received from a provider.
type ActualResponse struct {
	Status      int
	Headers     pact.Headers
	Body        []byte
	ContentType string
}

// FromHTTPRequest captures an inbound http.Request as an ActualRequest.
// The body must already have been read by the caller.
func FromHTTPRequest(r *http.Request, body []byte) *ActualRequest {
	query := pact.QueryValues{}
	for name, values := range r.URL.Query() {
		for _, v := range values {
			value := v
			query[name] = append(query[name], &value)
		}
	}
	headers := pact.Headers{}
	for name, values := range r.Header {
		headers[name] = append([]string(nil), values...)
	}
	return &ActualRequest{
		Method:      r.Method,
		Path:        r.URL.Path,
		Query:       query,
		Headers:     headers,
		Body:        body,
		ContentType: r.Header.Get("Content-Type"),
	}
}

// MatchRequest compares an actual request against the expected one and
// returns all mismatches in part order: method, path, query, headers,
// body. Nothing short-circuits; every part is compared.
func MatchRequest(expected *pact.Request, actual *ActualRequest, cfg *Config) []Mismatch {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var mismatches []Mismatch

	if !strings.EqualFold(expected.Method, actual.Method) {
		mismatches = append(mismatches, Mismatch{
			Kind:        MismatchMethod,
			Expected:    expected.Method,
			Actual:      actual.Method,
			Description: fmt.Sprintf("expected method %s but received %s", expected.Method, actual.Method),
		})
	}

	mismatches = append(mismatches, matchPath(expected, actual)...)
	mismatches = append(mismatches, matchQuery(expected, actual)...)
	mismatches = append(mismatches, matchHeaders(expected.Headers, actual.Headers, expected.MatchingRules, cfg)...)

	actualCT := pact.OptionalBody{Content: actual.Body}.ResolveContentType(actual.ContentType)
	mismatches = append(mismatches, matchBody(expected.Body, expected.ContentType(), actual.Body, actualCT, expected.MatchingRules, cfg)...)

	return mismatches
}

// MatchResponse compares an actual response against the expected one:
// headers, status, then body.
func MatchResponse(expected *pact.Response, actual *ActualResponse, cfg *Config) []Mismatch {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var mismatches []Mismatch

	mismatches = append(mismatches, matchHeaders(expected.Headers, actual.Headers, expected.MatchingRules, cfg)...)
	mismatches = append(mismatches, matchStatus(expected, actual)...)

	actualCT := pact.OptionalBody{Content: actual.Body}.ResolveContentType(actual.ContentType)
	mismatches = append(mismatches, matchBody(expected.Body, expected.ContentType(), actual.Body, actualCT, expected.MatchingRules, cfg)...)

	return mismatches
}

func matchPath(expected *pact.Request, actual *ActualRequest) []Mismatch {
	if list, ok := expected.MatchingRules.Lookup(matchrules.CategoryPath, []string{"$"}); ok {
		var mismatches []Mismatch
		for _, err := range applyRuleList(list, expected.Path, actual.Path) {
			mismatches = append(mismatches, Mismatch{
				Kind:        MismatchPath,
				Expected:    expected.Path,
				Actual:      actual.Path,
				Description: err.Error(),
			})
		}
		return mismatches
	}

	if expected.Path != actual.Path {
		return []Mismatch{{
			Kind:        MismatchPath,
			Expected:    expected.Path,
			Actual:      actual.Path,
			Description: fmt.Sprintf("expected path %s but received %s", expected.Path, actual.Path),
		}}
	}
	return nil
}

func matchStatus(expected *pact.Response, actual *ActualResponse) []Mismatch {
	if list, ok := expected.MatchingRules.Lookup(matchrules.CategoryStatus, []string{"$"}); ok {
		var mismatches []Mismatch
		for _, err := range applyRuleList(list, expected.Status, actual.Status) {
			mismatches = append(mismatches, Mismatch{
				Kind:        MismatchStatus,
				Expected:    strconv.Itoa(expected.Status),
				Actual:      strconv.Itoa(actual.Status),
				Description: err.Error(),
			})
		}
		return mismatches
	}

	if expected.Status != actual.Status {
		return []Mismatch{{
			Kind:        MismatchStatus,
			Expected:    strconv.Itoa(expected.Status),
			Actual:      strconv.Itoa(actual.Status),
			Description: fmt.Sprintf("expected status %d but received %d", expected.Status, actual.Status),
		}}
	}
	return nil
}

// applyRuleList applies every rule of a list to a scalar pair. Under
// AND all failures are reported; under OR failures are reported only
// when no rule succeeded.
func applyRuleList(list matchrules.RuleList, expected, actual any) []error {
	var failures []error
	for _, rule := range list.Rules {
		if err := rule.Match(expected, actual); err != nil {
			failures = append(failures, err)
		}
	}
	if list.Combine == matchrules.CombineOr && len(failures) < len(list.Rules) {
		return nil
	}
	return failures
}
