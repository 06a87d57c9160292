package mockserver

import (
	"sort"

	"github.com/getpactd/pactd/internal/matching"
	"github.com/getpactd/pactd/pkg/pact"
)

// The selector scores each interaction by how many request rule
// categories produced zero mismatches: method, path, query, headers
// and body each contribute one point. A perfect score selects the
// interaction; otherwise the best-scoring candidate is kept for
// diagnostics.
const perfectScore = 5

type candidate struct {
	interaction *pact.Interaction
	position    int
	score       int
	mismatches  []matching.Mismatch
}

// selectInteraction scores every HTTP interaction in the pact against
// the actual request. Equal scores resolve to the interaction that
// appears earliest in the pact.
func selectInteraction(p *pact.Pact, actual *matching.ActualRequest, cfg *matching.Config) *candidate {
	var candidates []candidate

	for position, interaction := range p.Interactions {
		if !interaction.IsHTTP() || interaction.Request == nil {
			continue
		}
		mismatches := matching.MatchRequest(interaction.Request, actual, cfg)
		candidates = append(candidates, candidate{
			interaction: interaction,
			position:    position,
			score:       scoreMismatches(mismatches),
			mismatches:  mismatches,
		})
	}

	if len(candidates) == 0 {
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].position < candidates[j].position
	})

	return &candidates[0]
}

func scoreMismatches(mismatches []matching.Mismatch) int {
	failed := map[matching.MismatchKind]bool{}
	for _, m := range mismatches {
		switch m.Kind {
		case matching.MismatchMethod:
			failed[matching.MismatchMethod] = true
		case matching.MismatchPath:
			failed[matching.MismatchPath] = true
		case matching.MismatchQuery:
			failed[matching.MismatchQuery] = true
		case matching.MismatchHeader:
			failed[matching.MismatchHeader] = true
		case matching.MismatchBody, matching.MismatchBodyType:
			failed[matching.MismatchBody] = true
		}
	}

	score := 0
	for _, kind := range []matching.MismatchKind{
		matching.MismatchMethod,
		matching.MismatchPath,
		matching.MismatchQuery,
		matching.MismatchHeader,
		matching.MismatchBody,
	} {
		if !failed[kind] {
			score++
		}
	}
	return score
}
