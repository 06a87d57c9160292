package matching

import (
	"fmt"

	"github.com/getpactd/pactd/internal/matchrules"
	"github.com/getpactd/pactd/pkg/pact"
)

// MatchMessage compares an actual message payload and metadata against
// the expected message contents.
func MatchMessage(expected *pact.MessageContents, actualBody []byte, actualCT string, actualMetadata map[string]any, cfg *Config) []Mismatch {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var mismatches []Mismatch

	resolvedActualCT := pact.OptionalBody{Content: actualBody}.ResolveContentType(actualCT)
	mismatches = append(mismatches, matchBody(expected.Contents, expected.ContentType(), actualBody, resolvedActualCT, expected.MatchingRules, cfg)...)
	mismatches = append(mismatches, matchMetadata(expected.Metadata, actualMetadata, expected.MatchingRules)...)

	return mismatches
}

// matchMetadata compares message metadata entries. Only expected keys
// are checked; extra actual metadata is allowed.
func matchMetadata(expected, actual map[string]any, rules matchrules.Categories) []Mismatch {
	var mismatches []Mismatch

	for _, key := range sortedKeys(expected) {
		expectedValue := expected[key]
		actualValue, ok := actual[key]
		if !ok {
			mismatches = append(mismatches, Mismatch{
				Kind:        MismatchMetadata,
				Parameter:   key,
				Expected:    renderJSON(expectedValue),
				Actual:      "",
				Description: fmt.Sprintf("expected metadata key %q but it was missing", key),
			})
			continue
		}

		if list, ok := rules.LookupName(matchrules.CategoryMetadata, key); ok {
			for _, err := range applyRuleList(list, expectedValue, actualValue) {
				mismatches = append(mismatches, Mismatch{
					Kind:        MismatchMetadata,
					Parameter:   key,
					Expected:    renderJSON(expectedValue),
					Actual:      renderJSON(actualValue),
					Description: err.Error(),
				})
			}
			continue
		}

		if !jsonValuesEqual(expectedValue, actualValue) {
			mismatches = append(mismatches, Mismatch{
				Kind:      MismatchMetadata,
				Parameter: key,
				Expected:  renderJSON(expectedValue),
				Actual:    renderJSON(actualValue),
				Description: fmt.Sprintf("expected metadata %q to equal %s but received %s",
					key, renderJSON(expectedValue), renderJSON(actualValue)),
			})
		}
	}

	return mismatches
}
