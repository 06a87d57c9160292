package pact

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/getpactd/pactd/internal/generators"
	"github.com/getpactd/pactd/internal/matchrules"
)

// InteractionType discriminates the interaction variants of a V4 pact.
// Pre-V4 pacts only contain request/response interactions.
type InteractionType string

const (
	TypeHTTP     InteractionType = "Synchronous/HTTP"
	TypeAsyncMsg InteractionType = "Asynchronous/Messages"
	TypeSyncMsg  InteractionType = "Synchronous/Messages"
)

// ProviderState is a named precondition the provider must stage before
// an interaction is replayed.
type ProviderState struct {
	Name   string         `json:"name"`
	Params map[string]any `json:"params,omitempty"`
}

// Comments carries free-text annotations attached to a V4 interaction.
type Comments struct {
	TestName string   `json:"testname,omitempty"`
	Text     []string `json:"text,omitempty"`
}

// MessageContents is the payload of one message in a message
// interaction.
type MessageContents struct {
	Contents      OptionalBody
	Metadata      map[string]any
	MatchingRules matchrules.Categories
	Generators    generators.Categories
}

// Interaction is one expected exchange. Type selects the variant:
// Request/Response for HTTP, Message for asynchronous messages, and
// RequestMessage/ResponseMessages for synchronous messages.
type Interaction struct {
	// Type is the interaction variant. The zero value means an HTTP
	// request/response interaction.
	Type InteractionType

	Description    string
	ProviderStates []ProviderState

	// HTTP interaction parts.
	Request  *Request
	Response *Response

	// Asynchronous message payload.
	Message *MessageContents

	// Synchronous message parts.
	RequestMessage   *MessageContents
	ResponseMessages []MessageContents

	// V4 fields.
	key          string
	Pending      bool
	Comments     Comments
	Transport    string
	PluginConfig map[string]any
}

// IsHTTP reports whether the interaction is a request/response
// exchange.
func (i *Interaction) IsHTTP() bool {
	return i.Type == "" || i.Type == TypeHTTP
}

// Key returns the interaction's stable identifier: 16 hex characters
// derived from the description, provider states and contents. It is
// computed on first use and cached.
func (i *Interaction) Key() string {
	if i.key == "" {
		i.key = i.computeKey()
	}
	return i.key
}

// SetKey overrides the stored key, as when loading a pact that already
// carries one.
func (i *Interaction) SetKey(key string) {
	i.key = key
}

func (i *Interaction) computeKey() string {
	h := sha256.New()
	h.Write([]byte(i.Description))

	states := make([]string, 0, len(i.ProviderStates))
	for _, s := range i.ProviderStates {
		params, _ := json.Marshal(s.Params)
		states = append(states, s.Name+string(params))
	}
	sort.Strings(states)
	for _, s := range states {
		h.Write([]byte(s))
	}

	switch {
	case i.IsHTTP():
		if i.Request != nil {
			h.Write([]byte(i.Request.Method))
			h.Write([]byte(i.Request.Path))
			h.Write(i.Request.Body.Content)
		}
		if i.Response != nil {
			fmt.Fprintf(h, "%d", i.Response.Status)
			h.Write(i.Response.Body.Content)
		}
	case i.Type == TypeAsyncMsg:
		if i.Message != nil {
			h.Write(i.Message.Contents.Content)
		}
	case i.Type == TypeSyncMsg:
		if i.RequestMessage != nil {
			h.Write(i.RequestMessage.Contents.Content)
		}
		for _, m := range i.ResponseMessages {
			h.Write(m.Contents.Content)
		}
	}

	return hex.EncodeToString(h.Sum(nil))[:16]
}

// identity is the pre-V4 uniqueness tuple: description plus sorted
// provider state names.
func (i *Interaction) identity() string {
	names := make([]string, 0, len(i.ProviderStates))
	for _, s := range i.ProviderStates {
		names = append(names, s.Name)
	}
	sort.Strings(names)
	return i.Description + "|" + strings.Join(names, ",")
}

// DisplayName renders the interaction for console output.
func (i *Interaction) DisplayName() string {
	if len(i.ProviderStates) == 0 {
		return i.Description
	}
	names := make([]string, 0, len(i.ProviderStates))
	for _, s := range i.ProviderStates {
		names = append(names, s.Name)
	}
	return fmt.Sprintf("%s (given %s)", i.Description, strings.Join(names, ", "))
}

// equalContent compares two interactions' request/response (or message)
// content, for merge conflict detection. The stored key is excluded:
// two identical interactions may carry keys computed from differently
// formatted source bytes.
func (i *Interaction) equalContent(other *Interaction) bool {
	a, ok1 := canonicalContent(i)
	b, ok2 := canonicalContent(other)
	return ok1 && ok2 && a == b
}

// canonicalContent renders an interaction as key-order- and
// whitespace-normalised JSON with the key field removed.
func canonicalContent(i *Interaction) (string, bool) {
	raw, err := marshalInteraction(i, V4)
	if err != nil {
		return "", false
	}
	var v map[string]any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", false
	}
	delete(v, "key")
	out, err := json.Marshal(v)
	if err != nil {
		return "", false
	}
	return string(out), true
}
