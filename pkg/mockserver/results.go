// Package mockserver hosts an HTTP listener bound to a pact: it
// selects the best-matching expected interaction for each inbound
// request, responds with the recorded response, and records matches
// and mismatches.
package mockserver

import (
	"github.com/getpactd/pactd/internal/matching"
	"github.com/getpactd/pactd/pkg/pact"
)

// ResultKind classifies a recorded mock server event.
type ResultKind string

const (
	// ResultMatched is a request that fully matched an interaction.
	ResultMatched ResultKind = "request-matched"

	// ResultRequestMismatch is a request that partially matched: an
	// interaction was selected for diagnostics but produced
	// mismatches.
	ResultRequestMismatch ResultKind = "request-mismatch"

	// ResultRequestNotFound is a request no interaction came close to.
	ResultRequestNotFound ResultKind = "request-not-found"

	// ResultMissingInteraction marks an interaction that was never
	// matched by the time the server shut down.
	ResultMissingInteraction ResultKind = "missing-request"
)

// MatchResult is one recorded event. The sequence preserves completion
// order, not arrival order.
type MatchResult struct {
	Kind        ResultKind          `json:"type"`
	Method      string              `json:"method,omitempty"`
	Path        string              `json:"path,omitempty"`
	Interaction *pact.Interaction   `json:"-"`
	Mismatches  []matching.Mismatch `json:"mismatches,omitempty"`
}
