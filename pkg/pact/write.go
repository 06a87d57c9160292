package pact

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrMergeConflict is returned when an interaction being written
// collides with a different interaction already on disk.
var ErrMergeConflict = errors.New("pact merge conflict")

// Marshal serialises the pact at its own specification version.
func Marshal(p *Pact) ([]byte, error) {
	return MarshalVersion(p, p.SpecVersion)
}

// MarshalVersion serialises the pact at the given specification
// version.
func MarshalVersion(p *Pact, version SpecVersion) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	out := map[string]any{
		"consumer": p.Consumer,
		"provider": p.Provider,
	}

	httpLike := []json.RawMessage{}
	var messages []json.RawMessage
	for _, i := range p.Interactions {
		raw, err := marshalInteraction(i, version)
		if err != nil {
			return nil, fmt.Errorf("interaction %q: %w", i.Description, err)
		}
		if version.Major() < 4 && i.Type == TypeAsyncMsg {
			messages = append(messages, raw)
		} else {
			httpLike = append(httpLike, raw)
		}
	}
	if len(httpLike) > 0 || len(messages) == 0 {
		out["interactions"] = httpLike
	}
	if len(messages) > 0 {
		out["messages"] = messages
	}

	metadata := map[string]any{}
	for k, v := range p.Metadata {
		metadata[k] = v
	}
	metadata["pactSpecification"] = map[string]string{"version": version.String()}
	out["metadata"] = metadata

	return json.MarshalIndent(out, "", "  ")
}

func marshalInteraction(i *Interaction, version SpecVersion) (json.RawMessage, error) {
	out := map[string]any{
		"description": i.Description,
	}

	if len(i.ProviderStates) > 0 {
		if version.Major() >= 3 {
			out["providerStates"] = i.ProviderStates
		} else {
			out["providerState"] = i.ProviderStates[0].Name
		}
	}

	if version.Major() >= 4 {
		out["key"] = i.Key()
		out["pending"] = i.Pending
		itype := i.Type
		if itype == "" {
			itype = TypeHTTP
		}
		out["type"] = itype
		if i.Transport != "" {
			out["transport"] = i.Transport
		}
		if i.Comments.TestName != "" || len(i.Comments.Text) > 0 {
			out["comments"] = i.Comments
		}
		if len(i.PluginConfig) > 0 {
			out["pluginConfiguration"] = i.PluginConfig
		}
	}

	switch {
	case i.IsHTTP():
		if i.Request != nil {
			raw, err := marshalRequest(i.Request, version)
			if err != nil {
				return nil, err
			}
			out["request"] = json.RawMessage(raw)
		}
		if i.Response != nil {
			raw, err := marshalResponse(i.Response, version)
			if err != nil {
				return nil, err
			}
			out["response"] = json.RawMessage(raw)
		}

	case i.Type == TypeAsyncMsg:
		if i.Message != nil {
			if err := marshalMessageInto(out, i.Message, version); err != nil {
				return nil, err
			}
		}

	case i.Type == TypeSyncMsg:
		if i.RequestMessage != nil {
			reqOut := map[string]any{}
			if err := marshalMessageInto(reqOut, i.RequestMessage, version); err != nil {
				return nil, err
			}
			out["request"] = reqOut
		}
		var responses []map[string]any
		for idx := range i.ResponseMessages {
			resOut := map[string]any{}
			if err := marshalMessageInto(resOut, &i.ResponseMessages[idx], version); err != nil {
				return nil, err
			}
			responses = append(responses, resOut)
		}
		if len(responses) > 0 {
			out["response"] = responses
		}
	}

	return json.Marshal(out)
}

func marshalMessageInto(out map[string]any, msg *MessageContents, version SpecVersion) error {
	contents, err := marshalBodyWire(msg.Contents, version)
	if err != nil {
		return err
	}
	if contents != nil {
		out["contents"] = json.RawMessage(contents)
	}
	if len(msg.Metadata) > 0 {
		out["metadata"] = msg.Metadata
	}
	rules, err := marshalMessageRules(msg, version)
	if err != nil {
		return err
	}
	if rules != nil {
		out["matchingRules"] = json.RawMessage(rules)
	}
	gens, err := marshalMessageGenerators(msg)
	if err != nil {
		return err
	}
	if gens != nil {
		out["generators"] = json.RawMessage(gens)
	}
	return nil
}

// Merge combines an in-memory pact with one already on disk. Existing
// interactions with the same key (V4) or identity tuple (pre-V4) must
// be identical or the merge fails; new interactions are appended.
func Merge(mem, disk *Pact) (*Pact, error) {
	if mem.Consumer.Name != disk.Consumer.Name || mem.Provider.Name != disk.Provider.Name {
		return nil, fmt.Errorf("%w: pact is between %s/%s but file contains %s/%s",
			ErrMergeConflict, mem.Consumer.Name, mem.Provider.Name, disk.Consumer.Name, disk.Provider.Name)
	}

	// The merged pact is written at the highest version present.
	version := mem.SpecVersion
	if version.Before(disk.SpecVersion) {
		version = disk.SpecVersion
	}

	merged := &Pact{
		Consumer:    mem.Consumer,
		Provider:    mem.Provider,
		Metadata:    disk.Metadata,
		SpecVersion: version,
	}
	merged.Interactions = append(merged.Interactions, disk.Interactions...)

	for _, in := range mem.Interactions {
		existing := findMatching(disk, in, version)
		if existing == nil {
			merged.Interactions = append(merged.Interactions, in)
			continue
		}
		if !existing.equalContent(in) {
			return nil, fmt.Errorf("%w: interaction %q differs from the copy on disk", ErrMergeConflict, in.Description)
		}
		// Identical: the disk copy is kept.
	}

	return merged, nil
}

func findMatching(p *Pact, in *Interaction, version SpecVersion) *Interaction {
	for _, existing := range p.Interactions {
		if version.Major() >= 4 {
			if existing.Key() == in.Key() {
				return existing
			}
			continue
		}
		if existing.identity() == in.identity() {
			return existing
		}
	}
	return nil
}

// DefaultFileName is the conventional pact file name for a pact.
func DefaultFileName(p *Pact) string {
	sanitize := func(s string) string {
		return strings.Map(func(r rune) rune {
			switch r {
			case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
				return '_'
			}
			return r
		}, s)
	}
	return fmt.Sprintf("%s-%s.json", sanitize(p.Consumer.Name), sanitize(p.Provider.Name))
}

// WriteFile writes the pact to dir, merging with any existing file for
// the same consumer/provider pair. The write is serialised against
// concurrent writers with an advisory lock and lands atomically via a
// temp file rename.
func WriteFile(p *Pact, dir string) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create pact directory: %w", err)
	}

	path := filepath.Join(dir, DefaultFileName(p))

	unlock, err := lockPath(path)
	if err != nil {
		return "", fmt.Errorf("failed to lock pact file: %w", err)
	}
	defer unlock()

	toWrite := p
	if existing, err := os.ReadFile(path); err == nil {
		disk, err := Read(existing)
		if err != nil {
			return "", fmt.Errorf("existing pact file is unreadable: %w", err)
		}
		merged, err := Merge(p, disk)
		if err != nil {
			return "", err
		}
		toWrite = merged
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to read existing pact file: %w", err)
	}

	data, err := Marshal(toWrite)
	if err != nil {
		return "", err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write temporary pact file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("failed to rename pact file: %w", err)
	}

	return path, nil
}
