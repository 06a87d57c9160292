package matching

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"mime/multipart"

	"github.com/getpactd/pactd/internal/matchrules"
	"github.com/getpactd/pactd/pkg/pact"
)

// Multipart bodies are split on their MIME boundary; each named part is
// then matched independently with the codec for its own content type.
func matchMultipartBody(expected []byte, expectedCT string, actual []byte, actualCT string, rules matchrules.Categories, cfg *Config) []Mismatch {
	expectedParts, err := parseMultipart(expected, expectedCT)
	if err != nil {
		return []Mismatch{{
			Kind:        MismatchBody,
			Path:        "$",
			Expected:    expectedCT,
			Actual:      actualCT,
			Description: fmt.Sprintf("expected body is not valid multipart content: %v", err),
		}}
	}
	actualParts, err := parseMultipart(actual, actualCT)
	if err != nil {
		return []Mismatch{{
			Kind:        MismatchBody,
			Path:        "$",
			Expected:    expectedCT,
			Actual:      actualCT,
			Description: fmt.Sprintf("actual body is not valid multipart content: %v", err),
		}}
	}

	var mismatches []Mismatch
	for _, name := range sortedKeys(expectedParts) {
		expectedPart := expectedParts[name]
		actualPart, ok := actualParts[name]
		if !ok {
			mismatches = append(mismatches, Mismatch{
				Kind:        MismatchBody,
				Path:        "$." + name,
				Expected:    name,
				Actual:      "",
				Description: fmt.Sprintf("expected multipart part %q but it was missing", name),
			})
			continue
		}

		body := pact.PresentBody(expectedPart.content, expectedPart.contentType)
		mismatches = append(mismatches, matchBody(body, expectedPart.contentType, actualPart.content, actualPart.contentType, rules, cfg)...)
	}
	return mismatches
}

type multipartPart struct {
	content     []byte
	contentType string
}

func parseMultipart(data []byte, contentType string) (map[string]multipartPart, error) {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, err
	}
	boundary, ok := params["boundary"]
	if !ok {
		return nil, fmt.Errorf("content type %q has no boundary", contentType)
	}

	parts := map[string]multipartPart{}
	reader := multipart.NewReader(bytes.NewReader(data), boundary)
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		content, err := io.ReadAll(part)
		if err != nil {
			return nil, err
		}
		ct := part.Header.Get("Content-Type")
		if ct == "" {
			ct = "text/plain"
		}
		parts[part.FormName()] = multipartPart{content: content, contentType: ct}
	}
	return parts, nil
}
