package matching

import (
	"fmt"
	"mime"
	"strings"

	"golang.org/x/text/encoding/htmlindex"

	"github.com/getpactd/pactd/internal/matchrules"
)

// Text bodies compare by whole-string equality unless a rule is
// attached at the root. Non-UTF-8 content is decoded per the charset
// parameter of the content type before comparison.
func matchTextBody(expected []byte, expectedCT string, actual []byte, actualCT string, rules matchrules.Categories) []Mismatch {
	expectedText := decodeCharset(expected, expectedCT)
	actualText := decodeCharset(actual, actualCT)

	if list, ok := rules.Lookup(matchrules.CategoryBody, []string{"$"}); ok {
		var mismatches []Mismatch
		for _, err := range applyRuleList(list, expectedText, actualText) {
			mismatches = append(mismatches, Mismatch{
				Kind:        MismatchBody,
				Path:        "$",
				Expected:    expectedText,
				Actual:      actualText,
				Description: err.Error(),
			})
		}
		return mismatches
	}

	if expectedText != actualText {
		return []Mismatch{{
			Kind:        MismatchBody,
			Path:        "$",
			Expected:    expectedText,
			Actual:      actualText,
			Description: fmt.Sprintf("expected body %q but received %q", truncate(expectedText), truncate(actualText)),
		}}
	}
	return nil
}

// decodeCharset converts body bytes to a UTF-8 string using the
// charset content-type parameter, defaulting to treating the bytes as
// UTF-8 already.
func decodeCharset(data []byte, contentType string) string {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return string(data)
	}
	charset, ok := params["charset"]
	if !ok || strings.EqualFold(charset, "utf-8") {
		return string(data)
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return string(data)
	}
	decoded, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return string(data)
	}
	return string(decoded)
}

func truncate(s string) string {
	const limit = 120
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
