package pact

import (
	"encoding/json"

	"github.com/getpactd/pactd/internal/generators"
	"github.com/getpactd/pactd/internal/matchrules"
)

func marshalMessageRules(msg *MessageContents, version SpecVersion) (json.RawMessage, error) {
	return matchrules.MarshalCategories(msg.MatchingRules, version.Major())
}

func marshalMessageGenerators(msg *MessageContents) (json.RawMessage, error) {
	return generators.MarshalCategories(msg.Generators)
}

// MetadataString fetches a string metadata value from message metadata,
// tolerating missing keys.
func (m *MessageContents) MetadataString(key string) string {
	if m.Metadata == nil {
		return ""
	}
	if v, ok := m.Metadata[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// ContentType resolves the effective content type of the message
// contents, preferring the contentType metadata key.
func (m *MessageContents) ContentType() string {
	return m.Contents.ResolveContentType(m.MetadataString("contentType"))
}
