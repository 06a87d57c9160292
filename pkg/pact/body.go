package pact

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"unicode"
)

// BodyState is the presence state of an HTTP or message body.
type BodyState int

const (
	// BodyMissing means the pact says nothing about the body.
	BodyMissing BodyState = iota
	// BodyEmpty is an explicitly empty body.
	BodyEmpty
	// BodyNull is an explicit JSON null body.
	BodyNull
	// BodyPresent is a body with content.
	BodyPresent
)

// ContentTypeHint lets a producer override content detection for a
// present body.
type ContentTypeHint string

const (
	HintDefault ContentTypeHint = "DEFAULT"
	HintText    ContentTypeHint = "TEXT"
	HintBinary  ContentTypeHint = "BINARY"
)

// OptionalBody is a body with explicit presence semantics.
type OptionalBody struct {
	State       BodyState
	Content     []byte
	ContentType string
	Hint        ContentTypeHint
}

// PresentBody builds a present body with the given content type.
func PresentBody(content []byte, contentType string) OptionalBody {
	return OptionalBody{State: BodyPresent, Content: content, ContentType: contentType, Hint: HintDefault}
}

// JSONBody marshals v and wraps it as an application/json body.
func JSONBody(v any) (OptionalBody, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return OptionalBody{}, fmt.Errorf("failed to marshal body: %w", err)
	}
	return PresentBody(data, "application/json"), nil
}

// IsPresent reports whether the body carries content.
func (b OptionalBody) IsPresent() bool {
	return b.State == BodyPresent
}

// ResolveContentType resolves the effective content type of the body.
// Resolution order: the supplied Content-Type header value, the body's
// own recorded type, the content-type hint, magic-byte sniffing, then
// text/plain for ASCII-only content and application/octet-stream
// otherwise.
func (b OptionalBody) ResolveContentType(headerValue string) string {
	if headerValue != "" {
		return headerValue
	}
	if b.ContentType != "" {
		return b.ContentType
	}
	switch b.Hint {
	case HintText:
		return "text/plain"
	case HintBinary:
		return "application/octet-stream"
	}
	if len(b.Content) == 0 {
		return "text/plain"
	}
	if sniffed := sniffContentType(b.Content); sniffed != "" {
		return sniffed
	}
	if isASCII(b.Content) {
		return "text/plain"
	}
	return "application/octet-stream"
}

// sniffContentType recognises common body shapes by leading bytes.
func sniffContentType(data []byte) string {
	trimmed := strings.TrimLeftFunc(string(data), unicode.IsSpace)
	switch {
	case strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "["):
		if json.Valid(data) {
			return "application/json"
		}
	case strings.HasPrefix(trimmed, "<?xml") || strings.HasPrefix(trimmed, "<"):
		return "application/xml"
	}
	detected := http.DetectContentType(data)
	if detected != "application/octet-stream" && !strings.HasPrefix(detected, "text/plain") {
		return strings.SplitN(detected, ";", 2)[0]
	}
	return ""
}

func isASCII(data []byte) bool {
	for _, b := range data {
		if b > unicode.MaxASCII {
			return false
		}
	}
	return true
}

// v4BodyWire is the V4 pact-file encoding of a body.
type v4BodyWire struct {
	Content         json.RawMessage `json:"content,omitempty"`
	ContentType     string          `json:"contentType,omitempty"`
	Encoded         any             `json:"encoded,omitempty"`
	ContentTypeHint ContentTypeHint `json:"contentTypeHint,omitempty"`
}

// marshalV4Body encodes a body in the V4 wire form. JSON content is
// embedded as-is; other text is embedded as a string; binary content is
// base64 encoded.
func marshalV4Body(b OptionalBody) (json.RawMessage, error) {
	switch b.State {
	case BodyMissing:
		return nil, nil
	case BodyNull:
		return json.Marshal(map[string]any{"content": nil})
	case BodyEmpty:
		return json.Marshal(map[string]any{"content": "", "encoded": false})
	}

	ct := b.ResolveContentType("")
	wire := v4BodyWire{ContentType: ct}
	if b.Hint != "" && b.Hint != HintDefault {
		wire.ContentTypeHint = b.Hint
	}

	switch {
	case isJSONContentType(ct) && json.Valid(b.Content):
		wire.Content = json.RawMessage(b.Content)
		wire.Encoded = false
	case b.Hint == HintBinary || !isASCIIOrUTF8Text(b.Content):
		encoded, err := json.Marshal(base64.StdEncoding.EncodeToString(b.Content))
		if err != nil {
			return nil, err
		}
		wire.Content = encoded
		wire.Encoded = "base64"
	default:
		encoded, err := json.Marshal(string(b.Content))
		if err != nil {
			return nil, err
		}
		wire.Content = encoded
		wire.Encoded = false
	}

	return json.Marshal(wire)
}

// unmarshalV4Body decodes the V4 wire form. A missing content key means
// a missing body; a JSON null means a null body; an empty unencoded
// string means an explicitly empty body.
func unmarshalV4Body(raw json.RawMessage) (OptionalBody, error) {
	if len(raw) == 0 {
		return OptionalBody{State: BodyMissing}, nil
	}

	var wire struct {
		Content         *json.RawMessage `json:"content"`
		ContentType     string           `json:"contentType"`
		Encoded         any              `json:"encoded"`
		ContentTypeHint ContentTypeHint  `json:"contentTypeHint"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return OptionalBody{}, fmt.Errorf("invalid body: %w", err)
	}

	hint := wire.ContentTypeHint
	if hint == "" {
		hint = HintDefault
	}

	if wire.Content == nil {
		// encoding/json leaves the pointer nil both for an absent key and
		// for an explicit null, so presence is read from the raw object.
		var keys map[string]json.RawMessage
		if err := json.Unmarshal(raw, &keys); err == nil {
			if _, ok := keys["content"]; ok {
				return OptionalBody{State: BodyNull}, nil
			}
		}
		return OptionalBody{State: BodyMissing}, nil
	}

	encoding := ""
	switch e := wire.Encoded.(type) {
	case string:
		encoding = e
	case bool:
		if e {
			encoding = "base64"
		}
	}

	var content []byte
	var asString string
	if err := json.Unmarshal(*wire.Content, &asString); err == nil {
		if asString == "" && encoding == "" {
			return OptionalBody{State: BodyEmpty, ContentType: wire.ContentType, Hint: hint}, nil
		}
		if encoding == "base64" {
			decoded, err := base64.StdEncoding.DecodeString(asString)
			if err != nil {
				return OptionalBody{}, fmt.Errorf("body base64 decode failed: %w", err)
			}
			content = decoded
		} else {
			content = []byte(asString)
		}
	} else {
		// Structured JSON content is kept verbatim.
		content = []byte(*wire.Content)
	}

	return OptionalBody{
		State:       BodyPresent,
		Content:     content,
		ContentType: wire.ContentType,
		Hint:        hint,
	}, nil
}

// marshalLegacyBody encodes a body in the pre-V4 wire form, where the
// body value appears directly under the "body" key.
func marshalLegacyBody(b OptionalBody) (json.RawMessage, error) {
	switch b.State {
	case BodyMissing, BodyEmpty:
		return nil, nil
	case BodyNull:
		return json.RawMessage("null"), nil
	}
	if isJSONContentType(b.ResolveContentType("")) && json.Valid(b.Content) {
		return json.RawMessage(b.Content), nil
	}
	return json.Marshal(string(b.Content))
}

// unmarshalLegacyBody decodes the pre-V4 wire form.
func unmarshalLegacyBody(raw json.RawMessage, contentType string) (OptionalBody, error) {
	if len(raw) == 0 {
		return OptionalBody{State: BodyMissing}, nil
	}
	if string(raw) == "null" {
		return OptionalBody{State: BodyNull}, nil
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		if asString == "" {
			return OptionalBody{State: BodyEmpty, ContentType: contentType}, nil
		}
		return OptionalBody{State: BodyPresent, Content: []byte(asString), ContentType: contentType, Hint: HintDefault}, nil
	}

	return OptionalBody{State: BodyPresent, Content: []byte(raw), ContentType: contentType, Hint: HintDefault}, nil
}

func isJSONContentType(ct string) bool {
	base := strings.SplitN(ct, ";", 2)[0]
	base = strings.TrimSpace(strings.ToLower(base))
	return base == "application/json" || strings.HasSuffix(base, "+json")
}

func isASCIIOrUTF8Text(data []byte) bool {
	for _, b := range data {
		if b < 0x09 {
			return false
		}
	}
	return true
}
