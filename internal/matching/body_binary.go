package matching

import (
	"bytes"
	"fmt"

	"github.com/getpactd/pactd/internal/matchrules"
)

// Binary bodies compare byte-for-byte unless a ContentType rule is
// attached at the root, which matches by magic-byte sniffing instead.
func matchBinaryBody(expected, actual []byte, rules matchrules.Categories) []Mismatch {
	if list, ok := rules.Lookup(matchrules.CategoryBody, []string{"$"}); ok {
		var mismatches []Mismatch
		for _, err := range applyRuleList(list, expected, actual) {
			mismatches = append(mismatches, Mismatch{
				Kind:        MismatchBody,
				Path:        "$",
				Expected:    fmt.Sprintf("%d bytes", len(expected)),
				Actual:      fmt.Sprintf("%d bytes", len(actual)),
				Description: err.Error(),
			})
		}
		return mismatches
	}

	if !bytes.Equal(expected, actual) {
		return []Mismatch{{
			Kind:        MismatchBody,
			Path:        "$",
			Expected:    fmt.Sprintf("%d bytes", len(expected)),
			Actual:      fmt.Sprintf("%d bytes", len(actual)),
			Description: "binary content does not match",
		}}
	}
	return nil
}
