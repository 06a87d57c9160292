package matching

import (
	"fmt"
	"net/url"

	"github.com/getpactd/pactd/internal/matchrules"
)

// Form-encoded bodies parse to a name-to-values mapping and are then
// matched as a JSON object of string arrays, reusing the JSON walker
// and its rule semantics.
func matchFormBody(expected, actual []byte, rules matchrules.Categories) []Mismatch {
	expectedForm, err := url.ParseQuery(string(expected))
	if err != nil {
		return []Mismatch{{
			Kind:        MismatchBody,
			Path:        "$",
			Expected:    string(expected),
			Actual:      string(actual),
			Description: fmt.Sprintf("expected body is not valid form data: %v", err),
		}}
	}
	actualForm, err := url.ParseQuery(string(actual))
	if err != nil {
		return []Mismatch{{
			Kind:        MismatchBody,
			Path:        "$",
			Expected:    string(expected),
			Actual:      string(actual),
			Description: fmt.Sprintf("actual body is not valid form data: %v", err),
		}}
	}

	return compareJSON(formToTree(expectedForm), formToTree(actualForm), []string{"$"}, rules)
}

func formToTree(form url.Values) map[string]any {
	tree := map[string]any{}
	for name, values := range form {
		list := make([]any, len(values))
		for i, v := range values {
			list[i] = v
		}
		tree[name] = list
	}
	return tree
}
