package matching

import (
	"fmt"

	"github.com/getpactd/pactd/internal/matchrules"
	"github.com/getpactd/pactd/pkg/pact"
)

// matchBody dispatches body comparison to the codec selected by the
// expected part's resolved content type. A content-type family
// mismatch is fatal for the body and stops descent.
func matchBody(expected pact.OptionalBody, expectedCT string, actual []byte, actualCT string, rules matchrules.Categories, cfg *Config) []Mismatch {
	switch expected.State {
	case pact.BodyMissing, pact.BodyEmpty:
		// Nothing expected: the actual body is not compared.
		return nil
	case pact.BodyNull:
		if len(actual) > 0 && string(actual) != "null" {
			return []Mismatch{{
				Kind:        MismatchBody,
				Path:        "$",
				Expected:    "null",
				Actual:      string(actual),
				Description: "expected a null body but received content",
			}}
		}
		return nil
	}

	if len(actual) == 0 {
		return []Mismatch{{
			Kind:        MismatchBody,
			Path:        "$",
			Expected:    string(expected.Content),
			Actual:      "",
			Description: "expected a body but none was received",
		}}
	}

	expectedFamily := familyOf(expectedCT)
	if expectedFamily != familyOf(actualCT) {
		return []Mismatch{{
			Kind:        MismatchBodyType,
			Expected:    expectedCT,
			Actual:      actualCT,
			Description: fmt.Sprintf("expected a body of type %s but received %s", expectedCT, actualCT),
		}}
	}

	switch expectedFamily {
	case familyJSON:
		return matchJSONBody(expected.Content, actual, rules)
	case familyXML:
		return matchXMLBody(expected.Content, actual, rules)
	case familyForm:
		return matchFormBody(expected.Content, actual, rules)
	case familyMultipart:
		return matchMultipartBody(expected.Content, expectedCT, actual, actualCT, rules, cfg)
	case familyText:
		return matchTextBody(expected.Content, expectedCT, actual, actualCT, rules)
	default:
		return matchBinaryBody(expected.Content, actual, rules)
	}
}
