package matching

import (
	"fmt"
	"sort"

	"github.com/getpactd/pactd/internal/matchrules"
	"github.com/getpactd/pactd/pkg/pact"
)

// matchQuery compares query parameters. The expected parameter names
// are the source of truth: missing names are mismatches, and extra
// names are mismatches unless a values matcher is attached at the
// query root.
func matchQuery(expected *pact.Request, actual *ActualRequest) []Mismatch {
	var mismatches []Mismatch

	names := make([]string, 0, len(expected.Query))
	for name := range expected.Query {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		actualValues, ok := actual.Query[name]
		if !ok {
			mismatches = append(mismatches, Mismatch{
				Kind:        MismatchQuery,
				Parameter:   name,
				Expected:    renderQueryValues(expected.Query[name]),
				Actual:      "",
				Description: fmt.Sprintf("expected query parameter %q but it was missing", name),
			})
			continue
		}
		mismatches = append(mismatches, matchQueryValues(name, expected.Query[name], actualValues, expected.MatchingRules)...)
	}

	if !expected.MatchingRules.HasValuesMatcher(matchrules.CategoryQuery, []string{"$"}) {
		extras := make([]string, 0)
		for name := range actual.Query {
			if _, ok := expected.Query[name]; !ok {
				extras = append(extras, name)
			}
		}
		sort.Strings(extras)
		for _, name := range extras {
			mismatches = append(mismatches, Mismatch{
				Kind:        MismatchQuery,
				Parameter:   name,
				Expected:    "",
				Actual:      renderQueryValues(actual.Query[name]),
				Description: fmt.Sprintf("unexpected query parameter %q", name),
			})
		}
	}

	return mismatches
}

func matchQueryValues(name string, expected, actual []*string, rules matchrules.Categories) []Mismatch {
	list, hasRule := rules.LookupName(matchrules.CategoryQuery, name)

	// Values compare as ordered sequences. A type rule promotes the
	// element comparison from equality to type, but the length check
	// stays.
	var mismatches []Mismatch
	if len(expected) != len(actual) {
		return []Mismatch{{
			Kind:      MismatchQuery,
			Parameter: name,
			Expected:  renderQueryValues(expected),
			Actual:    renderQueryValues(actual),
			Description: fmt.Sprintf("expected %d value(s) for query parameter %q but received %d",
				len(expected), name, len(actual)),
		}}
	}

	for i, actualValue := range actual {
		expectedValue := expected[i]

		// A parameter present with no value matches a null-valued
		// expectation.
		if expectedValue == nil && actualValue == nil {
			continue
		}
		if expectedValue == nil || actualValue == nil {
			mismatches = append(mismatches, Mismatch{
				Kind:        MismatchQuery,
				Parameter:   name,
				Expected:    renderQueryValue(expectedValue),
				Actual:      renderQueryValue(actualValue),
				Description: fmt.Sprintf("query parameter %q value %d does not match", name, i),
			})
			continue
		}

		if hasRule {
			for _, err := range applyRuleList(list, *expectedValue, *actualValue) {
				mismatches = append(mismatches, Mismatch{
					Kind:        MismatchQuery,
					Parameter:   name,
					Expected:    *expectedValue,
					Actual:      *actualValue,
					Description: err.Error(),
				})
			}
			continue
		}

		if *expectedValue != *actualValue {
			mismatches = append(mismatches, Mismatch{
				Kind:      MismatchQuery,
				Parameter: name,
				Expected:  *expectedValue,
				Actual:    *actualValue,
				Description: fmt.Sprintf("expected query parameter %q to equal %q but received %q",
					name, *expectedValue, *actualValue),
			})
		}
	}

	return mismatches
}

func renderQueryValues(values []*string) string {
	out := "["
	for i, v := range values {
		if i > 0 {
			out += ", "
		}
		out += renderQueryValue(v)
	}
	return out + "]"
}

func renderQueryValue(v *string) string {
	if v == nil {
		return "null"
	}
	return *v
}
