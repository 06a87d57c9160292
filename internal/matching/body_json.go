package matching

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/ohler55/ojg/oj"

	"github.com/getpactd/pactd/internal/matchrules"
)

// The JSON codec parses with ojg, which keeps the integer/decimal
// distinction (int64 vs float64) that the numeric matchers depend on.

func matchJSONBody(expected, actual []byte, rules matchrules.Categories) []Mismatch {
	expectedValue, err := oj.Parse(expected)
	if err != nil {
		return []Mismatch{{
			Kind:        MismatchBody,
			Path:        "$",
			Expected:    string(expected),
			Actual:      string(actual),
			Description: fmt.Sprintf("expected body is not valid JSON: %v", err),
		}}
	}
	actualValue, err := oj.Parse(actual)
	if err != nil {
		return []Mismatch{{
			Kind:        MismatchBody,
			Path:        "$",
			Expected:    string(expected),
			Actual:      string(actual),
			Description: fmt.Sprintf("actual body is not valid JSON: %v", err),
		}}
	}
	return compareJSON(expectedValue, actualValue, []string{"$"}, rules)
}

// resolveBodyRules finds the effective rule list for a body node. Rules
// declared on an ancestor cascade down with their length checks
// demoted; rules that do not cascade are dropped.
func resolveBodyRules(rules matchrules.Categories, path []string) (matchrules.RuleList, bool) {
	list, patternLen, ok := rules.Resolve(matchrules.CategoryBody, path)
	if !ok {
		return matchrules.RuleList{}, false
	}
	if patternLen < len(path) {
		var kept []matchrules.Rule
		for _, r := range list.Rules {
			if !r.Cascades() {
				continue
			}
			kept = append(kept, r.ChildRule())
		}
		if len(kept) == 0 {
			return matchrules.RuleList{}, false
		}
		return matchrules.RuleList{Combine: list.Combine, Rules: kept}, true
	}
	return list, true
}

func compareJSON(expected, actual any, path []string, rules matchrules.Categories) []Mismatch {
	switch exp := expected.(type) {
	case []any:
		return compareJSONArray(exp, actual, path, rules)
	case map[string]any:
		return compareJSONObject(exp, actual, path, rules)
	default:
		return compareJSONScalar(expected, actual, path, rules)
	}
}

func compareJSONScalar(expected, actual any, path []string, rules matchrules.Categories) []Mismatch {
	if list, ok := resolveBodyRules(rules, path); ok {
		var mismatches []Mismatch
		for _, err := range applyRuleList(list, expected, actual) {
			mismatches = append(mismatches, bodyMismatch(path, expected, actual, err.Error()))
		}
		return mismatches
	}

	if !jsonValuesEqual(expected, actual) {
		return []Mismatch{bodyMismatch(path, expected, actual,
			fmt.Sprintf("expected %s but received %s", renderJSON(expected), renderJSON(actual)))}
	}
	return nil
}

func compareJSONArray(expected []any, actual any, path []string, rules matchrules.Categories) []Mismatch {
	actualList, ok := actual.([]any)
	if !ok {
		return []Mismatch{bodyMismatch(path, expected, actual,
			fmt.Sprintf("expected an array but received %s", renderJSON(actual)))}
	}

	var mismatches []Mismatch

	list, hasRule := resolveBodyRules(rules, path)
	if hasRule {
		for _, err := range applyRuleList(list, expected, actualList) {
			mismatches = append(mismatches, bodyMismatch(path, expected, actual, err.Error()))
		}
		for _, rule := range list.Rules {
			if rule.Kind == matchrules.KindArrayContains {
				mismatches = append(mismatches, matchArrayContains(rule, expected, actualList, path)...)
				return mismatches
			}
		}
	}

	if hasTypeMatcher(list) && len(expected) > 0 {
		// Template mode: every actual element is compared against the
		// first expected element.
		template := expected[0]
		for i, element := range actualList {
			childPath := append(append([]string(nil), path...), strconv.Itoa(i))
			mismatches = append(mismatches, compareJSON(template, element, childPath, rules)...)
		}
		return mismatches
	}

	// Positional mode.
	if len(expected) != len(actualList) {
		mismatches = append(mismatches, bodyMismatch(path, expected, actual,
			fmt.Sprintf("expected an array of %d items but received %d", len(expected), len(actualList))))
	}
	for i := range expected {
		if i >= len(actualList) {
			break
		}
		childPath := append(append([]string(nil), path...), strconv.Itoa(i))
		mismatches = append(mismatches, compareJSON(expected[i], actualList[i], childPath, rules)...)
	}
	return mismatches
}

func matchArrayContains(rule matchrules.Rule, expected []any, actual []any, path []string) []Mismatch {
	var mismatches []Mismatch
	for _, variant := range rule.Variants {
		if variant.Index >= len(expected) {
			mismatches = append(mismatches, bodyMismatch(path, expected, actual,
				fmt.Sprintf("arrayContains variant %d has no matching expected element", variant.Index)))
			continue
		}
		template := expected[variant.Index]
		variantRules := matchrules.Categories{matchrules.CategoryBody: variant.Rules}

		found := false
		for _, element := range actual {
			if len(compareJSON(template, element, []string{"$"}, variantRules)) == 0 {
				found = true
				break
			}
		}
		if !found {
			mismatches = append(mismatches, bodyMismatch(path, template, actual,
				fmt.Sprintf("no element of the array matched variant %d (%s)", variant.Index, renderJSON(template))))
		}
	}
	return mismatches
}

func compareJSONObject(expected map[string]any, actual any, path []string, rules matchrules.Categories) []Mismatch {
	actualMap, ok := actual.(map[string]any)
	if !ok {
		return []Mismatch{bodyMismatch(path, expected, actual,
			fmt.Sprintf("expected an object but received %s", renderJSON(actual)))}
	}

	var mismatches []Mismatch

	list, hasRule := resolveBodyRules(rules, path)
	if hasRule {
		for _, err := range applyRuleList(list, expected, actualMap) {
			mismatches = append(mismatches, bodyMismatch(path, expected, actual, err.Error()))
		}
		for _, rule := range list.Rules {
			switch rule.Kind {
			case matchrules.KindEachKey:
				mismatches = append(mismatches, matchEachKey(rule, actualMap, path)...)
			case matchrules.KindEachValue:
				mismatches = append(mismatches, matchEachValue(rule, expected, actualMap, path, rules)...)
			}
		}
	}

	if hasValuesRule(list) {
		// Only the values are matched, each against the template value.
		template, ok := templateValue(expected)
		if !ok {
			return mismatches
		}
		for _, key := range sortedKeys(actualMap) {
			childPath := append(append([]string(nil), path...), key)
			mismatches = append(mismatches, compareJSON(template, actualMap[key], childPath, rules)...)
		}
		return mismatches
	}
	if suppressesKeyEquality(list) {
		// EachKey/EachValue have already walked the entries; key-set
		// equality does not apply.
		return mismatches
	}

	// Key-set equality.
	for _, key := range sortedKeys(expected) {
		actualValue, ok := actualMap[key]
		childPath := append(append([]string(nil), path...), key)
		if !ok {
			mismatches = append(mismatches, bodyMismatch(childPath, expected[key], nil,
				fmt.Sprintf("expected key %q but it was missing", key)))
			continue
		}
		mismatches = append(mismatches, compareJSON(expected[key], actualValue, childPath, rules)...)
	}
	for _, key := range sortedKeys(actualMap) {
		if _, ok := expected[key]; !ok {
			childPath := append(append([]string(nil), path...), key)
			mismatches = append(mismatches, bodyMismatch(childPath, nil, actualMap[key],
				fmt.Sprintf("unexpected key %q", key)))
		}
	}
	return mismatches
}

func matchEachKey(rule matchrules.Rule, actual map[string]any, path []string) []Mismatch {
	var mismatches []Mismatch
	for _, key := range sortedKeys(actual) {
		for _, sub := range rule.Definition {
			if err := sub.Match(key, key); err != nil {
				childPath := append(append([]string(nil), path...), key)
				mismatches = append(mismatches, bodyMismatch(childPath, key, key,
					fmt.Sprintf("key %q: %v", key, err)))
			}
		}
	}
	return mismatches
}

func matchEachValue(rule matchrules.Rule, expected map[string]any, actual map[string]any, path []string, rules matchrules.Categories) []Mismatch {
	template, hasTemplate := templateValue(expected)

	var mismatches []Mismatch
	for _, key := range sortedKeys(actual) {
		childPath := append(append([]string(nil), path...), key)
		value := actual[key]
		if len(rule.Definition) > 0 {
			for _, sub := range rule.Definition {
				if err := sub.Match(template, value); err != nil {
					mismatches = append(mismatches, bodyMismatch(childPath, template, value, err.Error()))
				}
			}
			continue
		}
		if hasTemplate {
			mismatches = append(mismatches, compareJSON(template, value, childPath, rules)...)
		}
	}
	return mismatches
}

func hasTypeMatcher(list matchrules.RuleList) bool {
	for _, r := range list.Rules {
		if r.IsTypeMatcher() {
			return true
		}
	}
	return false
}

func hasValuesRule(list matchrules.RuleList) bool {
	for _, r := range list.Rules {
		if r.Kind == matchrules.KindValues {
			return true
		}
	}
	return false
}

func suppressesKeyEquality(list matchrules.RuleList) bool {
	for _, r := range list.Rules {
		if r.IsValuesMatcher() {
			return true
		}
	}
	return false
}

// templateValue picks the template for values-matched objects: the
// value of the first expected key in sorted order.
func templateValue(expected map[string]any) (any, bool) {
	keys := sortedKeys(expected)
	if len(keys) == 0 {
		return nil, false
	}
	return expected[keys[0]], true
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func bodyMismatch(path []string, expected, actual any, description string) Mismatch {
	return Mismatch{
		Kind:        MismatchBody,
		Path:        pathString(path),
		Expected:    renderJSON(expected),
		Actual:      renderJSON(actual),
		Description: description,
	}
}

func renderJSON(v any) string {
	if v == nil {
		return "null"
	}
	return oj.JSON(v)
}

// jsonValuesEqual compares decoded values with numeric coercion so an
// int64 1 equals a float64 1.0.
func jsonValuesEqual(a, b any) bool {
	return matchrules.Rule{Kind: matchrules.KindEquality}.Match(a, b) == nil
}
