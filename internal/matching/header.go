package matching

import (
	"fmt"
	"sort"
	"strings"

	"github.com/getpactd/pactd/internal/matchrules"
	"github.com/getpactd/pactd/pkg/pact"
)

// matchHeaders compares headers by case-insensitive name. Only the
// expected headers are checked; providers are free to send extra
// headers.
func matchHeaders(expected, actual pact.Headers, rules matchrules.Categories, cfg *Config) []Mismatch {
	var mismatches []Mismatch

	names := make([]string, 0, len(expected))
	for name := range expected {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		expectedValues := expected[name]
		actualValues, ok := actual.Get(name)
		if !ok {
			mismatches = append(mismatches, Mismatch{
				Kind:        MismatchHeader,
				Parameter:   name,
				Expected:    strings.Join(expectedValues, ", "),
				Actual:      "",
				Description: fmt.Sprintf("expected header %q but it was missing", name),
			})
			continue
		}
		mismatches = append(mismatches, matchHeaderValues(name, expectedValues, actualValues, rules, cfg)...)
	}

	return mismatches
}

func matchHeaderValues(name string, expected, actual []string, rules matchrules.Categories, cfg *Config) []Mismatch {
	list, hasRule := rules.LookupName(matchrules.CategoryHeaders, name)

	expectedFlat := flattenHeaderValues(name, expected, cfg)
	actualFlat := flattenHeaderValues(name, actual, cfg)

	if hasRule {
		var mismatches []Mismatch
		for i, expectedValue := range expectedFlat {
			actualValue := ""
			if i < len(actualFlat) {
				actualValue = actualFlat[i]
			}
			for _, err := range applyRuleList(list, expectedValue, actualValue) {
				mismatches = append(mismatches, Mismatch{
					Kind:        MismatchHeader,
					Parameter:   name,
					Expected:    expectedValue,
					Actual:      actualValue,
					Description: err.Error(),
				})
			}
		}
		return mismatches
	}

	if len(expectedFlat) != len(actualFlat) {
		return []Mismatch{{
			Kind:      MismatchHeader,
			Parameter: name,
			Expected:  strings.Join(expectedFlat, ", "),
			Actual:    strings.Join(actualFlat, ", "),
			Description: fmt.Sprintf("expected %d value(s) for header %q but received %d",
				len(expectedFlat), name, len(actualFlat)),
		}}
	}

	var mismatches []Mismatch
	for i := range expectedFlat {
		if headerValueEqual(name, expectedFlat[i], actualFlat[i]) {
			continue
		}
		mismatches = append(mismatches, Mismatch{
			Kind:      MismatchHeader,
			Parameter: name,
			Expected:  expectedFlat[i],
			Actual:    actualFlat[i],
			Description: fmt.Sprintf("expected header %q to equal %q but received %q",
				name, expectedFlat[i], actualFlat[i]),
		})
	}
	return mismatches
}

// flattenHeaderValues splits comma-separated header values, except for
// the configured single-value headers which are never split.
func flattenHeaderValues(name string, values []string, cfg *Config) []string {
	if cfg.isSingleValueHeader(name) {
		return values
	}
	var flat []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			flat = append(flat, strings.TrimSpace(part))
		}
	}
	return flat
}

// headerValueEqual compares one header value pair. Accept and
// Content-Type compare by MIME type plus parameters rather than by raw
// string.
func headerValueEqual(name, expected, actual string) bool {
	if isMIMEHeader(name) {
		return mimeEquivalent(expected, actual)
	}
	return expected == actual
}
