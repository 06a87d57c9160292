package pact

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Pacticipant names one side of the contract.
type Pacticipant struct {
	Name string `json:"name"`
}

// Pact is the root contract document: a consumer, a provider and the
// interactions recorded between them.
type Pact struct {
	Consumer     Pacticipant
	Provider     Pacticipant
	Interactions []*Interaction
	Metadata     map[string]json.RawMessage
	SpecVersion  SpecVersion
}

// Load errors.
var (
	ErrMalformedPact  = errors.New("malformed pact document")
	ErrMissingName    = errors.New("consumer and provider names are required")
	ErrUnknownVersion = errors.New("unknown pact specification version")
)

// New builds an empty pact between the named consumer and provider at
// the given specification version.
func New(consumer, provider string, version SpecVersion) *Pact {
	return &Pact{
		Consumer:    Pacticipant{Name: consumer},
		Provider:    Pacticipant{Name: provider},
		SpecVersion: version,
		Metadata:    map[string]json.RawMessage{},
	}
}

// AddInteraction appends an interaction, rejecting duplicates of the
// (description, provider states) identity tuple.
func (p *Pact) AddInteraction(i *Interaction) error {
	for _, existing := range p.Interactions {
		if existing.identity() == i.identity() {
			return fmt.Errorf("duplicate interaction %q", i.DisplayName())
		}
	}
	p.Interactions = append(p.Interactions, i)
	return nil
}

// FindByKey returns the interaction with the given V4 key, or nil.
func (p *Pact) FindByKey(key string) *Interaction {
	for _, i := range p.Interactions {
		if i.Key() == key {
			return i
		}
	}
	return nil
}

// Validate checks the structural invariants of the pact: non-empty
// participant names and unique interaction identities.
func (p *Pact) Validate() error {
	if p.Consumer.Name == "" || p.Provider.Name == "" {
		return ErrMissingName
	}
	seen := map[string]string{}
	for _, i := range p.Interactions {
		id := i.identity()
		if prev, ok := seen[id]; ok {
			return fmt.Errorf("interactions %q and %q share the same description and provider states", prev, i.Description)
		}
		seen[id] = i.Description
	}
	return nil
}
