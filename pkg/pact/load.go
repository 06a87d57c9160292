package pact

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/getpactd/pactd/internal/generators"
	"github.com/getpactd/pactd/internal/matchrules"
)

// pactWire is the top-level pact file shape. Unknown fields are
// tolerated and dropped.
type pactWire struct {
	Consumer     Pacticipant                `json:"consumer"`
	Provider     Pacticipant                `json:"provider"`
	Interactions []json.RawMessage          `json:"interactions"`
	Messages     []json.RawMessage          `json:"messages"`
	Metadata     map[string]json.RawMessage `json:"metadata"`
}

// Read parses a pact document. The specification version is taken from
// metadata.pactSpecification.version and defaults to V2 when absent.
func Read(data []byte) (*Pact, error) {
	var wire pactWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPact, err)
	}

	if wire.Consumer.Name == "" || wire.Provider.Name == "" {
		return nil, ErrMissingName
	}

	version, err := peekVersion(wire.Metadata)
	if err != nil {
		return nil, err
	}

	p := &Pact{
		Consumer:    wire.Consumer,
		Provider:    wire.Provider,
		Metadata:    wire.Metadata,
		SpecVersion: version,
	}
	if p.Metadata == nil {
		p.Metadata = map[string]json.RawMessage{}
	}

	for idx, raw := range wire.Interactions {
		interaction, err := unmarshalInteraction(raw, version)
		if err != nil {
			return nil, fmt.Errorf("interaction %d: %w", idx, err)
		}
		p.Interactions = append(p.Interactions, interaction)
	}

	// V3 message pacts list messages separately from interactions.
	for idx, raw := range wire.Messages {
		msg, err := unmarshalV3Message(raw, version)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", idx, err)
		}
		p.Interactions = append(p.Interactions, msg)
	}

	return p, nil
}

// ReadFile loads a pact from disk.
func ReadFile(path string) (*Pact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pact file: %w", err)
	}
	p, err := Read(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

func peekVersion(metadata map[string]json.RawMessage) (SpecVersion, error) {
	for _, key := range []string{"pactSpecification", "pact-specification", "pactSpecificationVersion"} {
		raw, ok := metadata[key]
		if !ok {
			continue
		}
		// Either {"version": "3.0.0"} or a bare version string.
		var nested struct {
			Version string `json:"version"`
		}
		if err := json.Unmarshal(raw, &nested); err == nil && nested.Version != "" {
			v, err := ParseSpecVersion(nested.Version)
			if err != nil {
				return "", fmt.Errorf("%w: %q", ErrUnknownVersion, nested.Version)
			}
			return v, nil
		}
		var bare string
		if err := json.Unmarshal(raw, &bare); err == nil && bare != "" {
			v, err := ParseSpecVersion(bare)
			if err != nil {
				return "", fmt.Errorf("%w: %q", ErrUnknownVersion, bare)
			}
			return v, nil
		}
	}
	return V2, nil
}

// interactionWire covers the union of all interaction shapes across
// spec versions.
type interactionWire struct {
	Description    string          `json:"description"`
	Type           InteractionType `json:"type"`
	Key            string          `json:"key"`
	Pending        bool            `json:"pending"`
	Transport      string          `json:"transport"`
	ProviderState  string          `json:"providerState"`
	ProviderStates []ProviderState `json:"providerStates"`
	Request        json.RawMessage `json:"request"`
	Response       json.RawMessage `json:"response"`
	Contents       json.RawMessage `json:"contents"`
	Metadata       map[string]any  `json:"metaData"`
	MetadataAlt    map[string]any  `json:"metadata"`
	MatchingRules  json.RawMessage `json:"matchingRules"`
	Generators     json.RawMessage `json:"generators"`
	Comments       Comments        `json:"comments"`
	PluginConfig   map[string]any  `json:"pluginConfiguration"`
}

func unmarshalInteraction(raw json.RawMessage, version SpecVersion) (*Interaction, error) {
	var wire interactionWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("invalid interaction: %w", err)
	}
	if wire.Description == "" {
		return nil, fmt.Errorf("interaction has no description")
	}

	interaction := &Interaction{
		Description:  wire.Description,
		Pending:      wire.Pending,
		Transport:    wire.Transport,
		Comments:     wire.Comments,
		PluginConfig: wire.PluginConfig,
	}
	if wire.Key != "" {
		interaction.SetKey(wire.Key)
	}

	interaction.ProviderStates = wire.ProviderStates
	if len(interaction.ProviderStates) == 0 && wire.ProviderState != "" {
		interaction.ProviderStates = []ProviderState{{Name: wire.ProviderState}}
	}

	itype := wire.Type
	if itype == "" {
		itype = TypeHTTP
	}
	if version.Major() < 4 && itype != TypeHTTP {
		return nil, fmt.Errorf("interaction type %q requires a V4 pact", itype)
	}

	switch itype {
	case TypeHTTP:
		interaction.Type = TypeHTTP
		req, err := unmarshalRequest(orEmptyObject(wire.Request), version)
		if err != nil {
			return nil, err
		}
		res, err := unmarshalResponse(orEmptyObject(wire.Response), version)
		if err != nil {
			return nil, err
		}
		interaction.Request = req
		interaction.Response = res

	case TypeAsyncMsg:
		interaction.Type = TypeAsyncMsg
		msg, err := unmarshalMessageContents(wire.Contents, mergedMetadata(wire), wire.MatchingRules, wire.Generators, version)
		if err != nil {
			return nil, err
		}
		interaction.Message = msg

	case TypeSyncMsg:
		interaction.Type = TypeSyncMsg
		reqMsg, err := unmarshalMessageWrapper(wire.Request, version)
		if err != nil {
			return nil, err
		}
		interaction.RequestMessage = reqMsg

		var responses []json.RawMessage
		if len(wire.Response) > 0 {
			if err := json.Unmarshal(wire.Response, &responses); err != nil {
				// A single response object is tolerated.
				responses = []json.RawMessage{wire.Response}
			}
		}
		for _, r := range responses {
			msg, err := unmarshalMessageWrapper(r, version)
			if err != nil {
				return nil, err
			}
			interaction.ResponseMessages = append(interaction.ResponseMessages, *msg)
		}

	default:
		return nil, fmt.Errorf("unknown interaction type %q", wire.Type)
	}

	return interaction, nil
}

func mergedMetadata(wire interactionWire) map[string]any {
	if wire.Metadata != nil {
		return wire.Metadata
	}
	return wire.MetadataAlt
}

func unmarshalMessageContents(contents json.RawMessage, metadata map[string]any, rules, gens json.RawMessage, version SpecVersion) (*MessageContents, error) {
	msg := &MessageContents{Metadata: metadata}

	body, err := unmarshalBodyWire(contents, version, metadataContentType(metadata))
	if err != nil {
		return nil, err
	}
	msg.Contents = body

	cats, err := matchrules.UnmarshalCategories(rules, version.Major())
	if err != nil {
		return nil, fmt.Errorf("message matching rules: %w", err)
	}
	msg.MatchingRules = cats

	genCats, err := generators.UnmarshalCategories(gens)
	if err != nil {
		return nil, fmt.Errorf("message generators: %w", err)
	}
	msg.Generators = genCats

	return msg, nil
}

// unmarshalMessageWrapper decodes the message object of a synchronous
// interaction, which nests its body under a "contents" key next to its
// own metadata, rules and generators.
func unmarshalMessageWrapper(raw json.RawMessage, version SpecVersion) (*MessageContents, error) {
	var wrapper struct {
		Contents      json.RawMessage `json:"contents"`
		Metadata      map[string]any  `json:"metadata"`
		MatchingRules json.RawMessage `json:"matchingRules"`
		Generators    json.RawMessage `json:"generators"`
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &wrapper); err != nil {
			return nil, fmt.Errorf("invalid message: %w", err)
		}
	}
	return unmarshalMessageContents(wrapper.Contents, wrapper.Metadata, wrapper.MatchingRules, wrapper.Generators, version)
}

// unmarshalV3Message decodes an entry of the V3 "messages" array.
func unmarshalV3Message(raw json.RawMessage, version SpecVersion) (*Interaction, error) {
	var wire interactionWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("invalid message: %w", err)
	}
	if wire.Description == "" {
		return nil, fmt.Errorf("message has no description")
	}

	interaction := &Interaction{
		Type:           TypeAsyncMsg,
		Description:    wire.Description,
		ProviderStates: wire.ProviderStates,
	}
	if len(interaction.ProviderStates) == 0 && wire.ProviderState != "" {
		interaction.ProviderStates = []ProviderState{{Name: wire.ProviderState}}
	}

	msg, err := unmarshalMessageContents(wire.Contents, mergedMetadata(wire), wire.MatchingRules, wire.Generators, version)
	if err != nil {
		return nil, err
	}
	interaction.Message = msg
	return interaction, nil
}

func metadataContentType(metadata map[string]any) string {
	for key, value := range metadata {
		if key == "contentType" || key == "content-type" {
			if s, ok := value.(string); ok {
				return s
			}
		}
	}
	return ""
}

func orEmptyObject(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("{}")
	}
	return raw
}
